package cli

import (
	"github.com/spf13/cobra"

	"github.com/danieljhkim/docplan/internal/planner"
)

var planTier string

var planCmd = &cobra.Command{
	Use:   "plan [target] [format]",
	Short: "Show what a build would rebuild and why",
	Long: `Plan every tier of a build target without invoking the renderer.

Each stale artifact is listed with the reason it is stale: missing,
source-changed, dependency-changed, upstream-rebuilt or upstream-newer.
Artifacts a tier would rebuild count as rebuilt for the tiers after it.
The target defaults to build; --tier stops after the given tier.`,
	Args: cobra.RangeArgs(0, 2),
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringVar(&planTier, "tier", "", "Last tier to plan: templates, images, index or final")
}

func runPlan(cmd *cobra.Command, args []string) error {
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
	if planTier != "" {
		tier, err := planner.ParseTier(planTier)
		if err != nil {
			return usageErrorf("%v", err)
		}
		if tier < req.UpTo {
			req.UpTo = tier
		}
	}
	req.DryRun = true

	ctx, stop := signalContext()
	defer stop()

	result, err := s.engine.Build(ctx, req)
	if result != nil {
		if perr := printResult(cmd.OutOrStdout(), result, true); perr != nil {
			return perr
		}
	}
	return err
}
