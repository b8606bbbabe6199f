// internal/browser/jsexec/engine.go
package jsexec

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/pagewalk/internal/browser/dom"
	"github.com/xkilldash9x/pagewalk/internal/browser/jsbind"
)

// DefaultTimeout is the fallback execution timeout if the context has no deadline.
const DefaultTimeout = 30 * time.Second

// Scope is the script environment of one loaded page. The goja runtime is
// created on first use and reused for every later script on the same page, so
// globals and listeners persist between handlers.
type Scope struct {
	page jsbind.Page

	mu     sync.Mutex
	vm     *goja.Runtime
	bridge *jsbind.DOMBridge
}

// NewScope creates the scope for page.
func NewScope(page jsbind.Page) *Scope {
	return &Scope{page: page}
}

// Page returns the page the scope is bound to.
func (s *Scope) Page() jsbind.Page { return s.page }

func (s *Scope) runtime(logger *zap.Logger) (*goja.Runtime, *jsbind.DOMBridge) {
	if s.vm == nil {
		s.vm = goja.New()
		s.bridge = jsbind.NewDOMBridge(s.vm, logger, s.page)
	}
	return s.vm, s.bridge
}

// Result is the outcome of one evaluation.
type Result struct {
	// Value is the exported completion value.
	Value interface{}
	// Proceed is false when an event handler cancelled the default action.
	Proceed bool
	// Intents are the navigation effects the script requested, in order.
	Intents []jsbind.Intent
}

// Engine evaluates scripts against page scopes.
type Engine struct {
	logger  *zap.Logger
	timeout time.Duration
}

// NewEngine creates an engine. A zero timeout means DefaultTimeout.
func NewEngine(logger *zap.Logger, timeout time.Duration) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Engine{logger: logger.Named("jsexec"), timeout: timeout}
}

// Evaluate runs source in scope. A leading "javascript:" scheme is stripped so
// link hrefs can be passed as is.
func (e *Engine) Evaluate(ctx context.Context, source string, scope *Scope) (*Result, error) {
	source = stripScheme(source)
	return e.run(ctx, scope, func(ctx context.Context, vm *goja.Runtime, _ *jsbind.DOMBridge) (*Result, error) {
		value, err := vm.RunString(source)
		if err != nil {
			return nil, e.classify(ctx, err, source, "")
		}
		return &Result{Value: value.Export(), Proceed: true}, nil
	})
}

// DispatchEvent fires event on node: its on<event> attribute and any listeners
// registered by earlier scripts.
func (e *Engine) DispatchEvent(ctx context.Context, node *html.Node, event string, scope *Scope) (*Result, error) {
	return e.run(ctx, scope, func(ctx context.Context, _ *goja.Runtime, bridge *jsbind.DOMBridge) (*Result, error) {
		proceed, err := bridge.RunHandler(node, event)
		if err != nil {
			return nil, e.classify(ctx, err, dom.Attr(node, "on"+event), event)
		}
		return &Result{Proceed: proceed}, nil
	})
}

func (e *Engine) run(ctx context.Context, scope *Scope, body func(context.Context, *goja.Runtime, *jsbind.DOMBridge) (*Result, error)) (*Result, error) {
	if scope == nil {
		return nil, errors.New("jsexec: nil scope")
	}
	// One script at a time per runtime; the interrupt channel is shared state.
	scope.mu.Lock()
	defer scope.mu.Unlock()

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	vm, bridge := scope.runtime(e.logger)
	interrupted := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt(ctx.Err())
		close(interrupted)
	})
	defer func() {
		if !stop() {
			<-interrupted
		}
		vm.ClearInterrupt()
	}()

	result, err := body(ctx, vm, bridge)
	intents := bridge.TakeIntents()
	if err != nil {
		return nil, err
	}
	result.Intents = intents
	return result, nil
}

// classify turns a goja failure into a ScriptError, or the context error when
// the script was interrupted.
func (e *Engine) classify(ctx context.Context, err error, source, event string) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return fmt.Errorf("javascript execution interrupted by context: %w", ctx.Err())
	}
	msg := err.Error()
	var exception *goja.Exception
	if errors.As(err, &exception) {
		msg = exception.Value().String()
	}
	e.logger.Debug("Script failed.", zap.String("event", event), zap.String("error", msg))
	return &ScriptError{Source: abbreviate(source), Event: event, Message: msg, Err: err}
}

// InlineScripts returns the text of the document's script elements in document
// order, skipping external and non-JavaScript scripts.
func InlineScripts(doc *dom.Document) []string {
	if doc == nil || doc.Root() == nil {
		return nil
	}
	var out []string
	dom.Walk(doc.Root(), func(n *html.Node) bool {
		if dom.Tag(n) != "script" {
			return true
		}
		if dom.HasAttr(n, "src") || !isJavaScript(dom.Attr(n, "type")) {
			return false
		}
		if src := strings.TrimSpace(dom.Text(n)); src != "" {
			out = append(out, src)
		}
		return false
	})
	return out
}

func isJavaScript(scriptType string) bool {
	switch strings.ToLower(strings.TrimSpace(scriptType)) {
	case "", "text/javascript", "application/javascript", "module", "text/ecmascript":
		return true
	}
	return false
}

func stripScheme(source string) string {
	trimmed := strings.TrimSpace(source)
	if len(trimmed) >= len("javascript:") && strings.EqualFold(trimmed[:len("javascript:")], "javascript:") {
		return trimmed[len("javascript:"):]
	}
	return source
}

func abbreviate(s string) string {
	const max = 120
	s = strings.TrimSpace(s)
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
