package convergence

import "errors"

var (
	// ErrNoImplementation means the developer used its whole step budget
	// without returning a change set.
	ErrNoImplementation = errors.New("developer produced no implementation")

	// ErrNoReview means the reviewer used its whole step budget without
	// returning a review.
	ErrNoReview = errors.New("reviewer produced no review")

	// ErrRoundLimit means the configured round cap was reached with blocking
	// review comments still open.
	ErrRoundLimit = errors.New("review did not converge within the round limit")
)
