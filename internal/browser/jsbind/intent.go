// internal/browser/jsbind/intent.go
package jsbind

import (
	"golang.org/x/net/html"

	"github.com/xkilldash9x/pagewalk/internal/browser/form"
)

// IntentKind identifies a side effect requested by a script that only the
// conversation can carry out.
type IntentKind int

const (
	// IntentNavigate is an assignment to location or a call to location.assign.
	IntentNavigate IntentKind = iota
	// IntentOpenWindow is a call to window.open.
	IntentOpenWindow
	// IntentSubmit is form.submit() or a scripted click on a submit button.
	IntentSubmit
	// IntentFollowLink is a scripted click on a link or image-map area.
	IntentFollowLink
)

func (k IntentKind) String() string {
	switch k {
	case IntentNavigate:
		return "navigate"
	case IntentOpenWindow:
		return "open-window"
	case IntentSubmit:
		return "submit"
	case IntentFollowLink:
		return "follow-link"
	}
	return "unknown"
}

// Intent is recorded during script execution and applied by the conversation
// once the script returns, in the order recorded.
type Intent struct {
	Kind IntentKind
	// URL is the raw, unresolved URL for navigate and open-window.
	URL string
	// Target is the window name passed to window.open.
	Target string

	Form      *form.Form
	Submitter *form.Control
	// SkipHandlers is set for form.submit(), which does not fire onsubmit.
	SkipHandlers bool

	Link *html.Node
}
