package scheduler

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
)

// ErrorKind is the typed failure class carried in a Result. Kinds are data,
// not Go errors: a preload settles every task independently and reports its
// outcome instead of propagating a failure.
type ErrorKind string

const (
	ErrorNone              ErrorKind = ""
	ErrorInvalidURL        ErrorKind = "INVALID_URL"
	ErrorUnsupportedFormat ErrorKind = "UNSUPPORTED_FORMAT"
	ErrorNetwork           ErrorKind = "NETWORK_ERROR"
	ErrorTimeout           ErrorKind = "TIMEOUT"
	ErrorLoadFailed        ErrorKind = "LOAD_FAILED"
)

// StatusError indicates an HTTP response with a non-success status code.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d", e.Code)
}

// classifyLoadError maps a loader failure onto an ErrorKind.
func classifyLoadError(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTimeout
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return ErrorTimeout
		}
		return ErrorNetwork
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorTimeout
		}
		return ErrorNetwork
	}

	return ErrorLoadFailed
}
