// internal/browser/session/interfaces.go
package session

import (
	"context"
	"net/http"

	"golang.org/x/net/html"

	"github.com/xkilldash9x/pagewalk/internal/browser/jsexec"
)

// ScriptEngine evaluates page scripts. *jsexec.Engine is the standard
// implementation; a nil engine disables scripting.
type ScriptEngine interface {
	// Evaluate runs source in the page's scope.
	Evaluate(ctx context.Context, source string, scope *jsexec.Scope) (*jsexec.Result, error)
	// DispatchEvent fires the named event on element.
	DispatchEvent(ctx context.Context, element *html.Node, event string, scope *jsexec.Scope) (*jsexec.Result, error)
}

var _ ScriptEngine = (*jsexec.Engine)(nil)

// Listener observes the wire traffic of a conversation. Every RequestSent is
// followed by exactly one ResponseReceived for the same request, redirect
// hops included. A transport failure is reported with a nil response and the
// error.
type Listener interface {
	RequestSent(req *http.Request, body []byte)
	ResponseReceived(req *http.Request, resp *http.Response, body []byte, err error)
}

// PageListener is implemented by listeners that also want to know when a
// response is displayed in a frame.
type PageListener interface {
	PageLoaded(resp *Response)
}
