package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/danieljhkim/docplan/internal/engine"
	"github.com/danieljhkim/docplan/internal/planner"
)

type buildJSON struct {
	RunID      string      `json:"run_id"`
	DryRun     bool        `json:"dry_run"`
	Sources    int         `json:"sources"`
	Planned    int         `json:"planned"`
	Rebuilt    int         `json:"rebuilt"`
	Failed     int         `json:"failed"`
	DurationMS float64     `json:"duration_ms"`
	Stages     []stageJSON `json:"stages"`
}

type stageJSON struct {
	Tier       string     `json:"tier"`
	Planned    int        `json:"planned"`
	Fresh      int        `json:"fresh"`
	DurationMS float64    `json:"duration_ms"`
	Items      []itemJSON `json:"items"`
}

type itemJSON struct {
	Source   string `json:"source"`
	Target   string `json:"target"`
	Rule     string `json:"rule"`
	Reason   string `json:"reason"`
	Cause    string `json:"cause,omitempty"`
	Status   string `json:"status,omitempty"`
	ExitCode *int   `json:"exit_code,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
	Error    string `json:"error,omitempty"`
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func toBuildJSON(res *engine.BuildResult) buildJSON {
	out := buildJSON{
		RunID:      res.RunID,
		DryRun:     res.DryRun,
		Sources:    res.Sources,
		Planned:    res.Planned(),
		Rebuilt:    len(res.Rebuilt()),
		Failed:     len(res.Failures()),
		DurationMS: millis(res.Duration),
		Stages:     []stageJSON{},
	}
	for _, s := range res.Stages {
		sj := stageJSON{
			Tier:       s.Tier.String(),
			Planned:    len(s.Plan.Items),
			Fresh:      s.Plan.Fresh(),
			DurationMS: millis(s.Duration),
			Items:      []itemJSON{},
		}
		for i, item := range s.Plan.Items {
			ij := itemJSON{
				Source: item.Source.Path,
				Target: item.Target,
				Rule:   item.Rule.Name,
				Reason: string(item.Reason),
				Cause:  item.Cause,
			}
			if s.Report != nil {
				ij.Status = "ok"
				if rerr := s.Report.Results[i].Err; rerr != nil {
					code := rerr.ExitCode
					ij.Status = "failed"
					ij.ExitCode = &code
					ij.Stderr = rerr.Stderr
					if rerr.Err != nil {
						ij.Error = rerr.Err.Error()
					}
				}
			}
			sj.Items = append(sj.Items, ij)
		}
		out.Stages = append(out.Stages, sj)
	}
	return out
}

// printResult prints a build or plan result in the selected output format.
func printResult(w io.Writer, res *engine.BuildResult, dryRun bool) error {
	if opts.jsonOutput {
		return outputJSON(w, toBuildJSON(res))
	}

	for _, s := range res.Stages {
		printStage(w, s)
	}

	failures := res.Failures()
	if len(failures) > 0 {
		printFailures(w, failures)
		return nil
	}

	switch {
	case dryRun && res.Planned() == 0, !dryRun && len(res.Rebuilt()) == 0:
		printSuccess(w, "Everything is up to date")
	case dryRun:
		printWarning(w, fmt.Sprintf("Dry run: %s would be rebuilt", countLabel(res.Planned(), "artifact", "artifacts")))
	default:
		printSuccess(w, fmt.Sprintf("Rebuilt %s in %s",
			countLabel(len(res.Rebuilt()), "artifact", "artifacts"),
			res.Duration.Round(time.Millisecond)))
	}
	return nil
}

func printStage(w io.Writer, s engine.StageResult) {
	printSection(w, s.Tier.String())
	if s.Plan.IsEmpty() {
		printEmptyState(w, fmt.Sprintf("up to date (%s)", countLabel(s.Plan.Fresh(), "artifact", "artifacts")))
		return
	}

	rel := make(map[string]string, len(s.Plan.Artifacts))
	for _, a := range s.Plan.Artifacts {
		rel[a.Path] = a.Rel
	}

	headers := []string{"TARGET", "REASON", "CAUSE"}
	if s.Report != nil {
		headers = append(headers, "STATUS")
	}
	rows := make([][]string, 0, len(s.Plan.Items))
	for i, item := range s.Plan.Items {
		target := item.Target
		if r, ok := rel[target]; ok {
			target = r
		}
		row := []string{target, string(item.Reason), item.Cause}
		if s.Report != nil {
			status := "ok"
			if s.Report.Results[i].Err != nil {
				status = "failed"
			}
			row = append(row, status)
		}
		rows = append(rows, row)
	}
	printTable(w, headers, rows)
}

// printFailures lists every failed source and target with the renderer's
// error output.
func printFailures(w io.Writer, failures []*planner.RenderError) {
	_, _ = fmt.Fprintln(w)
	printError(w, fmt.Sprintf("%s failed", countLabel(len(failures), "item", "items")))
	for _, f := range failures {
		printLabelValue(w, f.Source, "-> "+f.Target)
		if f.ExitCode > 0 {
			printEmptyState(w, fmt.Sprintf("  exit status %d", f.ExitCode))
		} else if f.Err != nil {
			printEmptyState(w, "  "+f.Err.Error())
		}
		for _, line := range strings.Split(strings.TrimRight(f.Stderr, "\n"), "\n") {
			if line != "" {
				printEmptyState(w, "  | "+line)
			}
		}
	}
}
