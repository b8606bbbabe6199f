// internal/browser/session/errors.go
package session

import (
	"errors"
	"fmt"
)

var (
	// ErrProtocol is the kind of every HTTP-level failure: error statuses when
	// they are configured to raise, and redirect loops.
	ErrProtocol = errors.New("http protocol error")
	// ErrMissingTarget means the frame a request originated from is gone.
	ErrMissingTarget = errors.New("missing target frame")
	// ErrClosed is returned by operations on a closed conversation.
	ErrClosed = errors.New("conversation is closed")
)

// HTTPStatusError reports a response the conversation refused to accept.
type HTTPStatusError struct {
	URL     string
	Status  int
	Message string
	// Response is the response that triggered the error, when one was read.
	Response *Response
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("%s: %d %s", e.URL, e.Status, e.Message)
}

func (e *HTTPStatusError) Unwrap() error {
	return ErrProtocol
}

// NavigationError represents a failure during a page navigation attempt.
type NavigationError struct {
	URL     string
	Message string
	Err     error // Underlying network or protocol error
}

func (e *NavigationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Message, e.URL)
	}
	return fmt.Sprintf("%s: %s: %v", e.Message, e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error {
	return e.Err
}
