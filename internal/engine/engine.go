// Package engine provides the build orchestration for docplan.
//
// The engine package sits between CLI commands and the planner. For each
// tier up to the requested one it discovers sources, plans the stage against
// the artifacts already known from earlier tiers, invokes the renderer for
// stale items and forwards what was rebuilt to the next tier.
//
// Key components:
//   - Engine: holds the injected filesystem, scanner, invoker and clock
//   - Build: runs the tier loop for one BuildRequest
//   - BuildResult: per-stage plans and reports of a run
package engine

import (
	"io"
	"log/slog"

	"github.com/danieljhkim/docplan/internal/clock"
	"github.com/danieljhkim/docplan/internal/fsops"
	"github.com/danieljhkim/docplan/internal/metrics"
	"github.com/danieljhkim/docplan/internal/planner"
)

// Engine orchestrates docplan builds.
// It is the main API surface called by the CLI.
type Engine struct {
	cfg      *planner.Config
	fs       fsops.FS
	scanner  planner.Scanner
	invoker  planner.Invoker
	clock    clock.Clock
	recorder metrics.Recorder
	logger   *slog.Logger
}

// New creates a new Engine with the given dependencies. A nil recorder or
// logger disables metrics or logging.
func New(
	cfg *planner.Config,
	fs fsops.FS,
	scanner planner.Scanner,
	invoker planner.Invoker,
	clk clock.Clock,
	recorder metrics.Recorder,
	logger *slog.Logger,
) *Engine {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if clk == nil {
		clk = &clock.RealClock{}
	}
	return &Engine{
		cfg:      cfg,
		fs:       fs,
		scanner:  scanner,
		invoker:  invoker,
		clock:    clk,
		recorder: recorder,
		logger:   logger,
	}
}

// Config returns the planner configuration the engine builds with.
func (e *Engine) Config() *planner.Config {
	return e.cfg
}
