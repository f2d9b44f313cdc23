package toolloop

import "errors"

// ErrInvalidConfig is returned when Run is called without a state or decoder.
var ErrInvalidConfig = errors.New("invalid toolloop config")
