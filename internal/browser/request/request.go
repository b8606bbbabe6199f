// internal/browser/request/request.go
package request

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Encoding is how parameters travel on the wire.
type Encoding int

const (
	// EncodingQuery places parameters in the URL query string.
	EncodingQuery Encoding = iota
	// EncodingURLEncoded sends an application/x-www-form-urlencoded body.
	EncodingURLEncoded
	// EncodingMultipart sends a multipart/form-data body.
	EncodingMultipart
)

func (e Encoding) String() string {
	switch e {
	case EncodingQuery:
		return "query"
	case EncodingURLEncoded:
		return "application/x-www-form-urlencoded"
	case EncodingMultipart:
		return "multipart/form-data"
	}
	return fmt.Sprintf("Encoding(%d)", int(e))
}

// EncodingForType maps a form enctype attribute onto an Encoding.
func EncodingForType(enctype string) Encoding {
	if strings.EqualFold(strings.TrimSpace(enctype), "multipart/form-data") {
		return EncodingMultipart
	}
	return EncodingURLEncoded
}

// File is an upload selected for a file parameter. A nil *File or one with an
// empty Name is an unselected file field.
type File struct {
	Name        string
	ContentType string
	Content     []byte
}

// Param is one entry of the ordered parameter multimap.
type Param struct {
	Name  string
	Value string
	// File is set for file parameters; Value is ignored then.
	File *File
	// IsFile marks parameters that came from a file control even when no file is selected.
	IsFile bool
}

// ParameterHolder owns the parameters of a validated request. Every mutation is
// checked against the rules of the controls the request was built from.
type ParameterHolder interface {
	SetParameter(name string, values []string) error
	SetFiles(name string, files []*File) error
	RemoveParameter(name string) error
	// Values returns the string values currently held for name.
	Values(name string) []string
	// Parameters returns the pairs that will be submitted, or a validation error
	// describing why the current state cannot be submitted.
	Parameters() ([]Param, error)
}

// Request is everything needed to ask the conversation for a new response.
type Request struct {
	Method string
	URL    *url.URL
	// Target is the declared or inherited frame/window name. Empty means _top.
	Target string
	// SourceFrame is the selector of the frame holding the element the request
	// came from; empty for requests not derived from a page.
	SourceFrame string
	// Encoding is the declared body encoding; GET always uses EncodingQuery.
	Encoding Encoding
	// Charset is the submission character set for parameter bytes.
	Charset string
	Headers http.Header

	params []Param
	holder ParameterHolder
}

// New creates a free-form request. For GET the URL's query string becomes the
// initial parameter list so that parameters added later are appended to it.
func New(method, rawURL string) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid request URL %q: %w", rawURL, err)
	}
	return NewFromURL(method, u), nil
}

// NewFromURL is New for an already parsed URL. The URL is copied.
func NewFromURL(method string, u *url.URL) *Request {
	method = strings.ToUpper(method)
	if method == "" {
		method = http.MethodGet
	}
	copied := *u
	r := &Request{
		Method:   method,
		URL:      &copied,
		Encoding: EncodingURLEncoded,
		Headers:  http.Header{},
	}
	if method == http.MethodGet {
		r.Encoding = EncodingQuery
		r.params = ParseQuery(copied.RawQuery)
		copied.RawQuery = ""
	}
	return r
}

// Get is shorthand for New(http.MethodGet, rawURL).
func Get(rawURL string) (*Request, error) {
	return New(http.MethodGet, rawURL)
}

// NewValidated creates a request whose parameters live in holder.
func NewValidated(method string, u *url.URL, holder ParameterHolder) *Request {
	r := NewFromURL(method, u)
	r.params = nil
	if r.Method == http.MethodGet {
		r.URL.RawQuery = ""
	}
	r.holder = holder
	return r
}

// NewUnchecked creates a request from already-serialized parameters that can be
// freely overridden.
func NewUnchecked(method string, u *url.URL, params []Param) *Request {
	r := NewFromURL(method, u)
	if r.Method == http.MethodGet {
		r.URL.RawQuery = ""
	}
	r.params = append([]Param(nil), params...)
	return r
}

// Validated reports whether parameter mutations are checked against form controls.
func (r *Request) Validated() bool {
	return r.holder != nil
}

// SetParameter replaces every value of name.
func (r *Request) SetParameter(name string, values ...string) error {
	if r.holder != nil {
		return r.holder.SetParameter(name, values)
	}
	r.replace(name, stringParams(name, values))
	return nil
}

// AddParameter appends one value for name, keeping existing values.
func (r *Request) AddParameter(name, value string) error {
	if r.holder != nil {
		return r.holder.SetParameter(name, append(r.Values(name), value))
	}
	r.params = append(r.params, Param{Name: name, Value: value})
	return nil
}

// SetFiles selects the uploads for a file parameter.
func (r *Request) SetFiles(name string, files ...*File) error {
	if r.holder != nil {
		return r.holder.SetFiles(name, files)
	}
	params := make([]Param, 0, len(files))
	for _, f := range files {
		params = append(params, Param{Name: name, File: f, IsFile: true})
	}
	r.replace(name, params)
	return nil
}

// RemoveParameter drops name from the request.
func (r *Request) RemoveParameter(name string) error {
	if r.holder != nil {
		return r.holder.RemoveParameter(name)
	}
	r.replace(name, nil)
	return nil
}

// replace swaps the values of name in place, keeping the position of its first occurrence.
func (r *Request) replace(name string, with []Param) {
	out := make([]Param, 0, len(r.params)+len(with))
	inserted := false
	for _, p := range r.params {
		if p.Name != name {
			out = append(out, p)
			continue
		}
		if !inserted {
			out = append(out, with...)
			inserted = true
		}
	}
	if !inserted {
		out = append(out, with...)
	}
	r.params = out
}

func stringParams(name string, values []string) []Param {
	params := make([]Param, len(values))
	for i, v := range values {
		params[i] = Param{Name: name, Value: v}
	}
	return params
}

// Parameters returns the ordered parameters that will be submitted.
func (r *Request) Parameters() ([]Param, error) {
	if r.holder != nil {
		return r.holder.Parameters()
	}
	return append([]Param(nil), r.params...), nil
}

// Values returns the string values currently held for name.
func (r *Request) Values(name string) []string {
	if r.holder != nil {
		return r.holder.Values(name)
	}
	var values []string
	for _, p := range r.params {
		if p.Name == name && !p.IsFile {
			values = append(values, p.Value)
		}
	}
	return values
}

// Names lists parameter names in first-seen order.
func (r *Request) Names() []string {
	params, _ := r.Parameters()
	seen := map[string]bool{}
	var names []string
	for _, p := range params {
		if !seen[p.Name] {
			seen[p.Name] = true
			names = append(names, p.Name)
		}
	}
	return names
}

// EffectiveEncoding is the encoding Build will use. A selected file forces
// multipart for anything but GET.
func (r *Request) EffectiveEncoding(params []Param) Encoding {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return EncodingQuery
	}
	for _, p := range params {
		if p.File != nil && p.File.Name != "" {
			return EncodingMultipart
		}
	}
	if r.Encoding == EncodingQuery {
		return EncodingURLEncoded
	}
	return r.Encoding
}

// Clone returns a copy that can be mutated independently. Validated requests
// share their holder.
func (r *Request) Clone() *Request {
	c := *r
	u := *r.URL
	c.URL = &u
	c.Headers = r.Headers.Clone()
	if c.Headers == nil {
		c.Headers = http.Header{}
	}
	c.params = append([]Param(nil), r.params...)
	return &c
}

// String renders method and URL.
func (r *Request) String() string {
	return r.Method + " " + r.URL.String()
}

// Build produces the wire request. Parameter validation errors of a validated
// request surface here.
func (r *Request) Build(ctx context.Context) (*http.Request, error) {
	params, err := r.Parameters()
	if err != nil {
		return nil, err
	}
	enc := newCharsetEncoder(r.Charset)

	target := *r.URL
	var body []byte
	var contentType string

	switch r.EffectiveEncoding(params) {
	case EncodingQuery:
		if query := encodeQuery(params, enc, false); query != "" {
			if target.RawQuery != "" {
				target.RawQuery += "&" + query
			} else {
				target.RawQuery = query
			}
		}
	case EncodingURLEncoded:
		body = []byte(encodeQuery(params, enc, true))
		contentType = "application/x-www-form-urlencoded"
	case EncodingMultipart:
		body, contentType, err = encodeMultipart(params, enc)
		if err != nil {
			return nil, fmt.Errorf("failed to encode multipart body: %w", err)
		}
	}

	var req *http.Request
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, r.Method, target.String(), bytes.NewReader(body))
	} else {
		req, err = http.NewRequestWithContext(ctx, r.Method, target.String(), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request for %s: %w", r.Method, target.String(), err)
	}
	for k, vs := range r.Headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}
