package render

import (
	"errors"
	"fmt"
)

// Error is a manifest rendering failure: a required secret missing from the
// bundle, an unresolved template placeholder, or a template producing
// something other than a single named document.
type Error struct {
	// Target names what failed to render: a template path or the secret
	// manifest.
	Target string
	// Reason describes the failure when no underlying error exists.
	Reason string
	// Err is the underlying cause, if any.
	Err error
}

// Error implements error.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("render %s: %v", e.Target, e.Err)
	}
	return fmt.Sprintf("render %s: %s", e.Target, e.Reason)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsRenderError reports whether err wraps a render Error.
func IsRenderError(err error) bool {
	var target *Error
	return errors.As(err, &target)
}
