package transport

import (
	"errors"
	"fmt"
)

// ErrTruncated is returned when a stream ends without a terminal event.
var ErrTruncated = errors.New("stream ended without a terminal event")

// RemoteError is a terminal error event reported by the responder.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// StatusError is a synchronous rejection returned before any streaming,
// such as a validation failure.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed: %d", e.StatusCode)
	}
	return fmt.Sprintf("request failed: %d: %s", e.StatusCode, e.Message)
}

// IsValidation reports whether err is a synchronous 400 rejection.
func IsValidation(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == 400
}
