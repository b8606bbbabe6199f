// internal/browser/network/length.go
package network

import (
	"errors"
	"io"
	"net/http"
)

// LengthCheckMiddleware compares the bytes read from a response body with its
// declared Content-Length. When Strict is set a short body fails with a
// *TruncatedError; otherwise the short body simply ends, as legacy browsers allow.
type LengthCheckMiddleware struct {
	Transport http.RoundTripper
	Strict    bool
}

// NewLengthCheckMiddleware wraps transport, defaulting to http.DefaultTransport.
func NewLengthCheckMiddleware(transport http.RoundTripper, strict bool) *LengthCheckMiddleware {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &LengthCheckMiddleware{Transport: transport, Strict: strict}
}

// RoundTrip implements http.RoundTripper.
func (m *LengthCheckMiddleware) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := m.Transport.RoundTrip(req)
	if err != nil || resp.Body == nil || resp.Body == http.NoBody {
		return resp, err
	}
	resp.Body = &countingBody{
		ReadCloser: resp.Body,
		url:        req.URL.String(),
		expected:   resp.ContentLength,
		strict:     m.Strict,
	}
	return resp, nil
}

type countingBody struct {
	io.ReadCloser
	url      string
	expected int64
	received int64
	strict   bool
}

func (b *countingBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	b.received += int64(n)

	short := b.expected >= 0 && b.received < b.expected
	switch {
	case errors.Is(err, io.ErrUnexpectedEOF), err == io.EOF && short:
		if b.strict {
			return n, &TruncatedError{URL: b.url, Expected: b.expected, Received: b.received}
		}
		return n, io.EOF
	}
	return n, err
}
