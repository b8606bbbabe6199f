// internal/browser/session/response.go
package session

import (
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/xkilldash9x/pagewalk/internal/browser/dom"
	"github.com/xkilldash9x/pagewalk/internal/browser/form"
	"github.com/xkilldash9x/pagewalk/internal/browser/jsexec"
	"github.com/xkilldash9x/pagewalk/internal/browser/request"
)

// Response is one HTTP response as displayed in a frame.
type Response struct {
	// URL is the final URL after redirects.
	URL        *url.URL
	Status     int
	StatusText string
	Header     http.Header
	// ContentType is the media type without parameters.
	ContentType string
	Charset     string
	// Body is the raw body after content decoding.
	Body []byte
	// Document is nil for content that is not markup.
	Document *dom.Document
	// Refresh is the pending refresh from a Refresh header or meta tag.
	Refresh *dom.Refresh
	// Request is the request that produced the response.
	Request *request.Request
	// Target is the name links and forms of this page inherit when they have
	// no target of their own.
	Target string

	text     string
	selector Selector
	frame    *Frame
	forms    []*form.Form
	scope    *jsexec.Scope
}

// Frame returns the frame the response was loaded into.
func (r *Response) Frame() *Frame { return r.frame }

// Selector returns the selector of the frame the response was loaded into.
func (r *Response) Selector() Selector { return r.selector }

// Window returns the window holding the response.
func (r *Response) Window() *Window {
	if r.frame == nil {
		return nil
	}
	return r.frame.window
}

// Text returns the body decoded to UTF-8.
func (r *Response) Text() string { return r.text }

// IsMarkup reports whether the body was parsed into a Document.
func (r *Response) IsMarkup() bool { return r.Document != nil }

// Title returns the document title, "" for non-markup content.
func (r *Response) Title() string {
	if r.Document == nil {
		return ""
	}
	return r.Document.Title()
}

// Forms returns the live form state of the page in document order.
func (r *Response) Forms() []*form.Form { return append([]*form.Form(nil), r.forms...) }

// FormWithName returns the first form with the given name, or nil.
func (r *Response) FormWithName(name string) *form.Form {
	for _, f := range r.forms {
		if f.Name() == name {
			return f
		}
	}
	return nil
}

// FormWithID returns the form with the given id, or nil.
func (r *Response) FormWithID(id string) *form.Form {
	for _, f := range r.forms {
		if f.ID() == id {
			return f
		}
	}
	return nil
}

// Links returns the links of the document.
func (r *Response) Links() []*dom.Link {
	if r.Document == nil {
		return nil
	}
	return r.Document.Links()
}

// FrameNames returns the names of the frames the page declares.
func (r *Response) FrameNames() []string {
	if r.Document == nil {
		return nil
	}
	var names []string
	for _, ref := range r.Document.Frames() {
		names = append(names, ref.Name)
	}
	return names
}

// TargetFor applies target inheritance to an element's own target attribute:
// the element's target, else the document's base target, else the target
// this response was displayed under.
func (r *Response) TargetFor(own string) string {
	if own = strings.TrimSpace(own); own != "" {
		return own
	}
	if r.Document != nil {
		if base := r.Document.BaseTarget(); base != "" {
			return base
		}
	}
	return r.Target
}

// LinkRequest builds the request that following l would send.
func (r *Response) LinkRequest(l *dom.Link) (*request.Request, error) {
	if l == nil {
		return nil, fmt.Errorf("nil link")
	}
	if l.URL == nil {
		return nil, fmt.Errorf("link %q has no usable href", l.Href)
	}
	u := *l.URL
	u.Fragment = ""
	req := request.NewFromURL(http.MethodGet, &u)
	req.Target = r.TargetFor(l.Target)
	req.SourceFrame = string(r.selector)
	req.Charset = r.Charset
	return req, nil
}

// RefreshRequest builds the request for the pending refresh, nil when there is none.
func (r *Response) RefreshRequest() *request.Request {
	if r.Refresh == nil || r.Refresh.URL == nil {
		return nil
	}
	req := request.NewFromURL(http.MethodGet, r.Refresh.URL)
	req.Target = TargetSelf
	req.SourceFrame = string(r.selector)
	return req
}

// owns reports whether node belongs to this response's document.
func (r *Response) owns(node *html.Node) bool {
	return r.Document != nil && node != nil && documentRoot(node) == r.Document.Root()
}

func documentRoot(n *html.Node) *html.Node {
	for n.Parent != nil {
		n = n.Parent
	}
	return n
}

// mediaType parses a Content-Type header, defaulting to text/html as browsers do
// for untyped responses.
func mediaType(contentType string) (string, map[string]string) {
	if strings.TrimSpace(contentType) == "" {
		return "text/html", nil
	}
	mt, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0])), nil
	}
	return mt, params
}

// isMarkup reports whether a media type is parsed into a Document.
func isMarkup(mt string) bool {
	switch {
	case mt == "text/html", mt == "application/xhtml+xml",
		mt == "text/xml", mt == "application/xml",
		strings.HasSuffix(mt, "+xml"):
		return true
	}
	return false
}
