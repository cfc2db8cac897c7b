package gateway

import (
	"context"
	"errors"
	"fmt"
)

// Error reports a failed or timed-out call to an external collaborator.
type Error struct {
	Gateway string
	Op      string
	Timeout bool
	Err     error
}

func (e *Error) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s %s: gateway timeout: %v", e.Gateway, e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Gateway, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap converts err into a *Error for the given gateway operation. A deadline
// expiry is flagged as a timeout. Existing *Error values are returned unchanged.
func Wrap(gw, op string, err error) error {
	if err == nil {
		return nil
	}
	var ge *Error
	if errors.As(err, &ge) {
		return err
	}
	return &Error{
		Gateway: gw,
		Op:      op,
		Timeout: errors.Is(err, context.DeadlineExceeded),
		Err:     err,
	}
}

// IsTimeout reports whether err is a gateway timeout.
func IsTimeout(err error) bool {
	var ge *Error
	return errors.As(err, &ge) && ge.Timeout
}
