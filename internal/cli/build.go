package cli

import (
	"github.com/spf13/cobra"
)

var expandTemplatesCmd = &cobra.Command{
	Use:   targetExpandTemplates,
	Short: "Expand stale templates",
	Long: `Expand every template whose expansion is missing or older than the
template or anything it includes.`,
	Args: cobra.NoArgs,
	RunE: runTarget,
}

var buildImagesCmd = &cobra.Command{
	Use:   targetBuildImages,
	Short: "Convert stale vector images and diagrams",
	Long:  `Expand templates, then convert vector images and diagrams whose raster is out of date.`,
	Args:  cobra.NoArgs,
	RunE:  runTarget,
}

var buildIndexCmd = &cobra.Command{
	Use:   targetBuildIndex,
	Short: "Regenerate stale index files",
	Long: `Run the template and image tiers, then regenerate the link and index
files of every directory whose index document or its dependencies changed.`,
	Args: cobra.NoArgs,
	RunE: runTarget,
}

var renderCmd = &cobra.Command{
	Use:   "render <format>",
	Short: "Render documents to a format such as html, epub or latex",
	Long: `Run every earlier tier, then render the documents whose output in the
given format is out of date.`,
	Args: cobra.ExactArgs(1),
	RunE: runTarget,
}

var exportCmd = &cobra.Command{
	Use:   "export <format>",
	Short: "Export documents to docx or pdf",
	Long: `Run every earlier tier, then export the documents whose docx or pdf
output is out of date.`,
	Args: cobra.ExactArgs(1),
	RunE: runTarget,
}

var buildCmd = &cobra.Command{
	Use:   targetBuild,
	Short: "Bring every artifact up to date",
	Args:  cobra.NoArgs,
	RunE:  runTarget,
}

// runTarget runs the build target named by the command.
func runTarget(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	req, err := requestFor(s.engine.Config(), cmd.Name(), args)
	if err != nil {
		return err
	}
	req.DryRun = opts.dryRun
	req.Jobs = s.cfg.Jobs

	ctx, stop := signalContext()
	defer stop()

	result, buildErr := s.engine.Build(ctx, req)
	if err := s.writeMetrics(); err != nil {
		s.logger.Warn(err.Error())
	}
	if result != nil {
		if err := printResult(cmd.OutOrStdout(), result, req.DryRun); err != nil {
			return err
		}
	}
	return buildErr
}
