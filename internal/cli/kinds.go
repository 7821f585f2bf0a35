package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/danieljhkim/docplan/internal/render"
)

var kindsCmd = &cobra.Command{
	Use:   "kinds",
	Short: "Show how sources are classified and what is derived from them",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		pc, err := cfg.Planner()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrConfig, err)
		}

		type kindJSON struct {
			Pattern string `json:"pattern"`
			Kind    string `json:"kind"`
		}
		type ruleJSON struct {
			Name     string   `json:"name"`
			Kind     string   `json:"kind"`
			Tier     string   `json:"tier"`
			Artifact string   `json:"artifact"`
			Format   string   `json:"format,omitempty"`
			Target   string   `json:"target"`
			Command  []string `json:"command"`
		}

		kinds := make([]kindJSON, 0, len(pc.Kinds))
		for _, k := range pc.Kinds {
			kinds = append(kinds, kindJSON{Pattern: k.Pattern, Kind: string(k.Kind)})
		}
		rules := make([]ruleJSON, 0, len(pc.Rules))
		for _, r := range pc.Rules {
			command := r.Command
			if len(command) == 0 {
				command = render.DefaultCommand
			}
			rules = append(rules, ruleJSON{
				Name:     r.Name,
				Kind:     string(r.Kind),
				Tier:     r.Tier().String(),
				Artifact: string(r.Artifact),
				Format:   r.Format,
				Target:   r.Target,
				Command:  command,
			})
		}

		out := cmd.OutOrStdout()
		if opts.jsonOutput {
			return outputJSON(out, map[string]any{"kinds": kinds, "rules": rules})
		}

		printSection(out, "Kinds")
		rows := make([][]string, 0, len(kinds))
		for _, k := range kinds {
			rows = append(rows, []string{k.Pattern, k.Kind})
		}
		printTable(out, []string{"PATTERN", "KIND"}, rows)

		_, _ = fmt.Fprintln(out)
		printSection(out, "Rules")
		rows = rows[:0]
		for _, r := range rules {
			rows = append(rows, []string{r.Name, r.Tier, r.Kind, r.Artifact, r.Target, strings.Join(r.Command, " ")})
		}
		printTable(out, []string{"RULE", "TIER", "KIND", "ARTIFACT", "TARGET", "COMMAND"}, rows)
		return nil
	},
}
