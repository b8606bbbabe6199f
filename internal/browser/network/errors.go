// internal/browser/network/errors.go
package network

import (
	"errors"
	"fmt"
)

// ErrTransferTruncated is returned when a response body ends before its declared Content-Length.
var ErrTransferTruncated = errors.New("network: transfer truncated")

// TruncatedError carries the details of a short body.
type TruncatedError struct {
	URL      string
	Expected int64
	Received int64
}

func (e *TruncatedError) Error() string {
	return fmt.Sprintf("network: transfer from %s truncated: expected %d bytes, received %d", e.URL, e.Expected, e.Received)
}

func (e *TruncatedError) Unwrap() error {
	return ErrTransferTruncated
}
