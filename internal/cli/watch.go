package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/danieljhkim/docplan/internal/watch"
)

var watchDebounce time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch [target] [format]",
	Short: "Rebuild a target whenever sources change",
	Long: `Build the target once, then watch the source root and rebuild after
every burst of changes. Changes under the output root and editor temporary
files are ignored. The target defaults to build. Stop with Ctrl-C.`,
	Args: cobra.RangeArgs(0, 2),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watch.DefaultDebounce, "Quiet period before a rebuild")
}

func runWatch(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	target := targetBuild
	if len(args) > 0 {
		target, args = args[0], args[1:]
	}
	req, err := requestFor(s.engine.Config(), target, args)
	if err != nil {
		return err
	}
	req.DryRun = opts.dryRun
	req.Jobs = s.cfg.Jobs

	ctx, stop := signalContext()
	defer stop()

	pc := s.engine.Config()
	w := watch.New(watch.Options{
		SourceRoot: pc.SourceRoot,
		OutputRoot: pc.OutputRoot,
		Debounce:   watchDebounce,
		Logger:     s.logger,
	}, func(ctx context.Context) error {
		result, err := s.engine.Build(ctx, req)
		if merr := s.writeMetrics(); merr != nil {
			s.logger.Warn(merr.Error())
		}
		if result != nil {
			_ = printResult(cmd.OutOrStdout(), result, req.DryRun)
		}
		return err
	})
	return w.Run(ctx)
}
