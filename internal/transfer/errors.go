package transfer

import (
	"errors"
	"fmt"
)

// Error reports a failed publish step. Op names the step that failed and
// Target the address or path it acted on.
type Error struct {
	Op     string
	Target string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.Target, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsTransferError reports whether err is a publish transfer failure.
func IsTransferError(err error) bool {
	var te *Error
	return errors.As(err, &te)
}
