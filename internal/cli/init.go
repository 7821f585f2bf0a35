package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/danieljhkim/docplan/internal/config"
)

var (
	initForce  bool
	initSample bool
)

// sampleTree is the example documentation written by "init --sample".
var sampleTree = map[string]string{
	"index.rest": `Sample Project
==============

.. toctree::
   :maxdepth: 2

   intro
   release
`,
	"intro.rest": `Introduction
============

.. include:: _links_sphinx.rst

The overview below is generated from img/overview.dot.

.. figure:: img/overview.png

   Build tiers.
`,
	"release.rest.stpl": `Release {{version}}
==================

.. image:: img/logo.png
`,
	"img/overview.dot": `digraph tiers {
  rankdir=LR;
  templates -> images -> index -> final;
}
`,
	"img/logo.svg": `<svg xmlns="http://www.w3.org/2000/svg" width="64" height="64">
  <circle cx="32" cy="32" r="30" fill="#3a6ea5"/>
</svg>
`,
}

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Write a sample docplan.yaml",
	Long: `Write an example configuration with the default kinds and rules to
docplan.yaml in the given directory (default: the current directory).

With --sample a small documentation tree is written next to it: an index,
a document, a template and two images exercising every tier.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite existing files")
	initCmd.Flags().BoolVar(&initSample, "sample", false, "Also write a sample documentation tree")
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}
	dir = absPath(dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	out := cmd.OutOrStdout()
	cfgPath := filepath.Join(dir, config.DefaultFile)
	if err := config.WriteSample(cfgPath, initForce); err != nil {
		return err
	}
	printSuccess(out, fmt.Sprintf("Wrote %s", cfgPath))

	if initSample {
		written, err := writeSampleTree(dir, initForce)
		if err != nil {
			return err
		}
		for _, p := range written {
			printLabelValue(out, "sample", p)
		}
	}

	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintln(out, "Next steps:")
	_, _ = fmt.Fprintln(out, "  1. Point renderer_path at your renderer in docplan.yaml")
	_, _ = fmt.Fprintln(out, "  2. Preview the work:   docplan plan")
	_, _ = fmt.Fprintln(out, "  3. Build everything:   docplan build")
	return nil
}

// writeSampleTree writes sampleTree below dir and returns the written paths.
// Existing files are kept unless force is set.
func writeSampleTree(dir string, force bool) ([]string, error) {
	names := make([]string, 0, len(sampleTree))
	for name := range sampleTree {
		names = append(names, name)
	}
	sort.Strings(names)

	var written []string
	for _, name := range names {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if _, err := os.Stat(p); err == nil && !force {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return written, fmt.Errorf("failed to create directory for %s: %w", p, err)
		}
		if err := os.WriteFile(p, []byte(sampleTree[name]), 0o644); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", p, err)
		}
		written = append(written, p)
	}
	return written, nil
}
