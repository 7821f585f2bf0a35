package engine

import (
	"time"

	"github.com/danieljhkim/docplan/internal/planner"
)

// BuildResult represents the outcome of one build run.
type BuildResult struct {
	// RunID identifies the run in logs and output
	RunID string

	// Sources is the number of sources discovered under the source root
	Sources int

	// Stages holds one entry per tier that ran, in tier order
	Stages []StageResult

	DryRun   bool
	Duration time.Duration
}

// StageResult represents one planned and executed tier.
type StageResult struct {
	Tier planner.Tier

	// Plan lists the stale items and every artifact the stage knows about
	Plan *planner.Plan

	// Report is nil for a dry run
	Report *planner.Report

	Duration time.Duration
}

// Planned returns the number of stale items across all stages.
func (r *BuildResult) Planned() int {
	n := 0
	for _, s := range r.Stages {
		n += len(s.Plan.Items)
	}
	return n
}

// Rebuilt returns the targets rebuilt successfully across all stages.
func (r *BuildResult) Rebuilt() []string {
	var out []string
	for _, s := range r.Stages {
		if s.Report != nil {
			out = append(out, s.Report.Succeeded()...)
		}
	}
	return out
}

// Failures returns every render failure of the run in tier and plan order.
func (r *BuildResult) Failures() []*planner.RenderError {
	var out []*planner.RenderError
	for _, s := range r.Stages {
		if s.Report != nil {
			out = append(out, s.Report.Failures()...)
		}
	}
	return out
}

// Stage returns the result for tier, if it ran.
func (r *BuildResult) Stage(tier planner.Tier) (StageResult, bool) {
	for _, s := range r.Stages {
		if s.Tier == tier {
			return s, true
		}
	}
	return StageResult{}, false
}
