package planner

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDiscovery indicates the source root could not be read.
	ErrDiscovery = errors.New("discovery failed")

	// ErrStaleCheck indicates a timestamp or document could not be read while
	// planning.
	ErrStaleCheck = errors.New("stale check failed")

	// ErrRender indicates the external renderer failed for an item.
	ErrRender = errors.New("render failed")

	// ErrTargetConflict indicates two items of one stage derive the same target.
	ErrTargetConflict = errors.New("conflicting targets")

	// ErrTargetOutside indicates a rule derives a target outside the output
	// root.
	ErrTargetOutside = errors.New("target outside the output root")
)

// DiscoveryError reports an unreadable or missing source root. It is fatal.
type DiscoveryError struct {
	Root string
	Err  error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discovery failed for %s: %v", e.Root, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

func (e *DiscoveryError) Is(target error) bool { return target == ErrDiscovery }

// StaleCheckError reports a timestamp or dependency that could not be read.
// It is fatal: a plan built without it cannot be trusted.
type StaleCheckError struct {
	Path string
	Err  error
}

func (e *StaleCheckError) Error() string {
	return fmt.Sprintf("stale check failed for %s: %v", e.Path, e.Err)
}

func (e *StaleCheckError) Unwrap() error { return e.Err }

func (e *StaleCheckError) Is(target error) bool { return target == ErrStaleCheck }

// RenderError reports a failed renderer invocation for one item.
type RenderError struct {
	Source string
	Target string
	Rule   string

	// ExitCode is the renderer's exit status, or -1 when it did not exit
	// normally (crash, timeout, not found).
	ExitCode int

	// Stderr holds the tail of the renderer's error output.
	Stderr string

	Err error
}

func (e *RenderError) Error() string {
	msg := fmt.Sprintf("render %s -> %s", e.Source, e.Target)
	if e.ExitCode > 0 {
		msg += fmt.Sprintf(" (exit %d)", e.ExitCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RenderError) Unwrap() error { return e.Err }

func (e *RenderError) Is(target error) bool { return target == ErrRender }

// BuildError aggregates the render failures of one stage.
type BuildError struct {
	Tier     Tier
	Attempts int
	Failures []*RenderError
}

func (e *BuildError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d of %d items failed", e.Tier, len(e.Failures), e.Attempts)
	for _, f := range e.Failures {
		fmt.Fprintf(&b, "\n  %s -> %s", f.Source, f.Target)
	}
	return b.String()
}

// Unwrap exposes every failure to errors.Is and errors.As.
func (e *BuildError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}
