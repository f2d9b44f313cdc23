package toolloop

import "fmt"

// OutcomeKind categorizes how a loop run ended.
type OutcomeKind int

const (
	// OutcomeComplete indicates the role returned a validated terminal result.
	// Value holds the decoded result.
	OutcomeComplete OutcomeKind = iota

	// OutcomeExceeded indicates the step budget ran out before a terminal
	// reply. It is reported, never returned as an error.
	OutcomeExceeded

	// OutcomeGeneratorError indicates the remote call failed or the context
	// was cancelled. Err holds the cause.
	OutcomeGeneratorError
)

// String returns human-readable name for OutcomeKind.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeComplete:
		return "complete"
	case OutcomeExceeded:
		return "exceeded"
	case OutcomeGeneratorError:
		return "generator_error"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", k)
	}
}

// Outcome is the result of one Run.
//
//nolint:govet // fieldalignment: ordered for readability
type Outcome[T any] struct {
	Kind OutcomeKind

	// Value is the decoded result. Zero unless Kind == OutcomeComplete.
	Value T

	// Err is the generator failure for OutcomeGeneratorError.
	Err error

	// Steps is the number of remote calls made, including ones whose reply
	// failed to parse.
	Steps int

	// Corrections counts corrective retries (malformed replies and rejected
	// commands).
	Corrections int
}
