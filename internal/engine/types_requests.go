package engine

import "github.com/danieljhkim/docplan/internal/planner"

// BuildRequest represents a request to bring artifacts up to date.
type BuildRequest struct {
	// UpTo is the last tier to run. Every earlier tier runs first.
	UpTo planner.Tier

	// Selector narrows the final tier to some formats or artifact kinds
	Selector planner.Selector

	// DryRun plans every tier without invoking the renderer. Planned targets
	// are treated as rebuilt so later tiers show what a real run would do.
	DryRun bool

	// Jobs bounds concurrent renderer invocations within a stage
	Jobs int
}
