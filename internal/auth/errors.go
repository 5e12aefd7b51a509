package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var ErrIPNotAuthorized = errors.New("source address not authorized")

// TransientError marks an infrastructure failure (store or database outage)
// that did not evaluate the credential at all. Callers may retry; the error is
// never reported as an authentication verdict.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure in %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

func IsTransient(err error) bool {
	var transientErr *TransientError
	if errors.As(err, &transientErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
