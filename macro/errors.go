package macro

import "errors"

// Error taxonomy for a compilation. Every failed Result carries an Err that
// wraps exactly one of these.
var (
	// ErrInvalidInput: caller-supplied data violates shape or cardinality rules.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTemplateMismatch: the template does not have the shape the compiler expects.
	ErrTemplateMismatch = errors.New("template mismatch")

	// ErrPersistence: the artifact sink rejected the final write.
	ErrPersistence = errors.New("persistence error")
)
