package engine

import "errors"

var (
	// ErrNoRules indicates the request selects no derivation rule for the
	// final tier, e.g. a format nothing is configured to produce.
	ErrNoRules = errors.New("no derivation rules selected")

	// ErrValidation indicates a malformed request.
	ErrValidation = errors.New("validation failed")
)
