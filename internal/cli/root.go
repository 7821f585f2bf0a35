package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// globalOptions holds the persistent flags. Zero values leave the
// configuration untouched.
type globalOptions struct {
	configFile   string
	sourceRoot   string
	outputRoot   string
	renderer     string
	jobs         int
	staleOnEqual bool
	dryRun       bool
	jsonOutput   bool
	logLevel     string
	logFormat    string
	metricsFile  string
}

var (
	opts globalOptions

	// started is set once a command's flags and arguments were accepted.
	// Errors returned before that are usage errors.
	started bool

	// Colors for help output sections
	groupTitleColor   = color.New(color.FgCyan, color.Bold)
	sectionTitleColor = color.New(color.FgBlue, color.Bold)
)

// rootCmd is the root command for docplan.
var rootCmd = &cobra.Command{
	Use:     "docplan",
	Version: "dev",
	Short:   "Incremental documentation build planner",
	Long: `docplan rebuilds documentation artifacts that are out of date.

Sources are processed in tiers: templates are expanded, images converted,
index files generated, and finally documents rendered or exported. Each tier
only rebuilds artifacts whose sources, includes or upstream artifacts changed.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		started = true
	},
}

func SetVersion(v string) {
	if v == "" {
		return
	}
	rootCmd.Version = v
	rootCmd.SetVersionTemplate("{{.Version}}\n")
}

// customHelpFunc returns a custom help function that colors group titles
func customHelpFunc(cmd *cobra.Command, args []string) {
	var help strings.Builder

	if cmd.Long != "" {
		help.WriteString(cmd.Long)
		help.WriteString("\n\n")
	} else if cmd.Short != "" {
		help.WriteString(cmd.Short)
		help.WriteString("\n\n")
	}

	help.WriteString(sectionTitleColor.Sprint("Usage:"))
	help.WriteString("\n")
	fmt.Fprintf(&help, "  %s\n\n", cmd.UseLine())

	for _, group := range cmd.Groups() {
		help.WriteString(groupTitleColor.Sprint(group.Title))
		help.WriteString("\n")

		for _, c := range cmd.Commands() {
			if c.GroupID == group.ID && !c.Hidden {
				fmt.Fprintf(&help, "  %-17s %s\n", c.Name(), c.Short)
			}
		}
		help.WriteString("\n")
	}

	hasUngrouped := false
	for _, c := range cmd.Commands() {
		if c.GroupID == "" && !c.Hidden && c.IsAvailableCommand() {
			if !hasUngrouped {
				help.WriteString(sectionTitleColor.Sprint("Additional Commands:"))
				help.WriteString("\n")
				hasUngrouped = true
			}
			fmt.Fprintf(&help, "  %-17s %s\n", c.Name(), c.Short)
		}
	}
	if hasUngrouped {
		help.WriteString("\n")
	}

	if cmd.HasAvailableLocalFlags() || cmd.HasAvailablePersistentFlags() {
		help.WriteString(sectionTitleColor.Sprint("Flags:"))
		help.WriteString("\n")
		help.WriteString(cmd.LocalFlags().FlagUsages())
		help.WriteString(cmd.InheritedFlags().FlagUsages())
		help.WriteString("\n")
	}

	fmt.Fprintf(&help, "Use \"%s [command] --help\" for more information about a command.\n", cmd.CommandPath())

	fmt.Fprint(cmd.OutOrStdout(), help.String())
}

func init() {
	rootCmd.SetHelpFunc(customHelpFunc)
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageErrorf("%v", err)
	})

	// Global flags
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&opts.configFile, "config", "c", "", "Configuration file (default: docplan.yaml, searched upwards)")
	pf.StringVar(&opts.sourceRoot, "source-root", "", "Directory holding the sources")
	pf.StringVar(&opts.outputRoot, "output-root", "", "Directory receiving the artifacts")
	pf.StringVar(&opts.renderer, "renderer", "", "Renderer executable")
	pf.IntVarP(&opts.jobs, "jobs", "j", 0, "Concurrent renderer invocations per stage")
	pf.BoolVar(&opts.staleOnEqual, "stale-on-equal", false, "Rebuild artifacts whose timestamp equals a dependency's")
	pf.BoolVarP(&opts.dryRun, "dry-run", "n", false, "Plan without invoking the renderer")
	pf.BoolVar(&opts.jsonOutput, "json", false, "Output in JSON format")
	pf.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	pf.StringVar(&opts.logFormat, "log-format", "", "Log format: text or json")
	pf.StringVar(&opts.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file after the run")

	rootCmd.AddGroup(&cobra.Group{
		ID:    "build-targets",
		Title: "Build Targets:",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "inspection",
		Title: "Inspection:",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "project-setup",
		Title: "Project Setup:",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "cli-tooling",
		Title: "CLI & Tooling:",
	})

	// CLI & Tooling commands
	versionCmd := &cobra.Command{
		Use:     "version",
		Short:   "Print the docplan CLI version",
		Args:    cobra.NoArgs,
		GroupID: "cli-tooling",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), rootCmd.Version)
		},
	}
	rootCmd.AddCommand(versionCmd)

	helpCmd := &cobra.Command{
		Use:     "help [command]",
		Short:   "Help about any command",
		GroupID: "cli-tooling",
		RunE: func(cmd *cobra.Command, args []string) error {
			target, _, err := cmd.Root().Find(args)
			if err != nil || target == nil {
				return usageErrorf("unknown help topic %q", strings.Join(args, " "))
			}
			return target.Help()
		},
	}
	rootCmd.SetHelpCommand(helpCmd)

	completionCmd := &cobra.Command{
		Use:     "completion",
		Short:   "Generate the autocompletion script for the specified shell",
		GroupID: "cli-tooling",
		Long: `Generate the autocompletion script for docplan for the specified shell.
See each sub-command's help for details on how to use the generated script.`,
	}
	completionCmd.AddCommand(&cobra.Command{
		Use:                   "bash",
		Short:                 "Generate the autocompletion script for bash",
		DisableFlagsInUseLine: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.GenBashCompletion(cmd.OutOrStdout())
		},
	})
	completionCmd.AddCommand(&cobra.Command{
		Use:                   "zsh",
		Short:                 "Generate the autocompletion script for zsh",
		DisableFlagsInUseLine: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.GenZshCompletion(cmd.OutOrStdout())
		},
	})
	completionCmd.AddCommand(&cobra.Command{
		Use:                   "fish",
		Short:                 "Generate the autocompletion script for fish",
		DisableFlagsInUseLine: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.GenFishCompletion(cmd.OutOrStdout(), true)
		},
	})
	rootCmd.AddCommand(completionCmd)

	// Build Targets commands
	for _, c := range []*cobra.Command{expandTemplatesCmd, buildImagesCmd, buildIndexCmd, renderCmd, exportCmd, buildCmd, watchCmd} {
		c.GroupID = "build-targets"
		rootCmd.AddCommand(c)
	}

	// Inspection commands
	planCmd.GroupID = "inspection"
	kindsCmd.GroupID = "inspection"
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(kindsCmd)

	// Project Setup commands
	initCmd.GroupID = "project-setup"
	rootCmd.AddCommand(initCmd)
}

// Execute executes the root command.
func Execute() error {
	started = false
	err := rootCmd.Execute()
	if err != nil && !started {
		return asUsageError(err)
	}
	return err
}
