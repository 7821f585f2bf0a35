package cli

import (
	"errors"
	"fmt"

	"github.com/danieljhkim/docplan/internal/engine"
	"github.com/danieljhkim/docplan/internal/planner"
)

// Process exit codes.
const (
	ExitOK         = 0
	ExitFailure    = 1
	ExitUsage      = 2
	ExitDiscovery  = 3
	ExitStaleCheck = 4
	ExitRender     = 5
)

// ErrConfig marks configuration errors.
var ErrConfig = errors.New("configuration error")

// usageError marks a command line that could not be accepted.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }

func (e *usageError) Unwrap() error { return e.err }

func usageErrorf(format string, args ...any) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}

func asUsageError(err error) error {
	var ue *usageError
	if errors.As(err, &ue) {
		return err
	}
	return &usageError{err: err}
}

// ExitCodeFor maps an error returned by Execute to a process exit code.
// When an error carries several classes the most severe wins: usage and
// configuration, then discovery, stale-check and render failures.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitOK
	}

	var ue *usageError
	switch {
	case errors.As(err, &ue),
		errors.Is(err, ErrConfig),
		errors.Is(err, planner.ErrTargetConflict),
		errors.Is(err, planner.ErrTargetOutside),
		errors.Is(err, engine.ErrNoRules),
		errors.Is(err, engine.ErrValidation):
		return ExitUsage
	case errors.Is(err, planner.ErrDiscovery):
		return ExitDiscovery
	case errors.Is(err, planner.ErrStaleCheck):
		return ExitStaleCheck
	case errors.Is(err, planner.ErrRender):
		return ExitRender
	default:
		return ExitFailure
	}
}
