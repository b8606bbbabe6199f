// internal/browser/session/session.go
package session

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/pagewalk/internal/browser/cookies"
	"github.com/xkilldash9x/pagewalk/internal/browser/dom"
	"github.com/xkilldash9x/pagewalk/internal/browser/form"
	"github.com/xkilldash9x/pagewalk/internal/browser/jsexec"
	"github.com/xkilldash9x/pagewalk/internal/browser/network"
	"github.com/xkilldash9x/pagewalk/internal/browser/request"
	"github.com/xkilldash9x/pagewalk/internal/config"
)

// Conversation is one simulated browser: a cookie store, a set of windows and
// the policy flags that govern how responses are handled. Operations run
// synchronously; script side effects are carried out before an operation
// returns. Independent conversations may be used concurrently.
type Conversation struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
	cfg    config.ConversationConfig

	client  *http.Client
	cookies *cookies.Store
	parsers *dom.ParserProvider
	scripts ScriptEngine

	mu           sync.RWMutex
	windows      []*Window
	current      *Window
	listeners    []Listener
	scriptErrors []error
	// pages maps document roots to their responses so elements can be traced
	// back to the page they came from.
	pages map[*html.Node]*Response

	closeOnce sync.Once
}

// Option customizes a Conversation.
type Option func(*options)

type options struct {
	transport http.RoundTripper
	scripts   ScriptEngine
	noScripts bool
	parsers   *dom.ParserProvider
	cookies   *cookies.Store
	listeners []Listener
}

// WithTransport replaces the base transport below the compression and length
// check middleware. Tests use it to talk to an httptest server.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

// WithScriptEngine sets the script engine. Nil disables scripting.
func WithScriptEngine(e ScriptEngine) Option {
	return func(o *options) {
		o.scripts = e
		o.noScripts = e == nil
	}
}

// WithParserProvider sets the markup parser selection.
func WithParserProvider(p *dom.ParserProvider) Option {
	return func(o *options) { o.parsers = p }
}

// WithCookieStore shares an existing cookie store.
func WithCookieStore(s *cookies.Store) Option {
	return func(o *options) { o.cookies = s }
}

// WithListener registers a listener from the start.
func WithListener(l Listener) Option {
	return func(o *options) { o.listeners = append(o.listeners, l) }
}

// New creates a conversation from the application config.
func New(parent context.Context, cfg config.Interface, logger *zap.Logger, opts ...Option) (*Conversation, error) {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	id := uuid.NewString()
	log := logger.Named("conversation").With(zap.String("conversation_id", id))
	conv := cfg.Conversation()

	clientCfg, err := network.ClientConfigFrom(cfg.Network(), conv.AcceptGzip, log.Named("network"))
	if err != nil {
		return nil, fmt.Errorf("failed to configure network: %w", err)
	}
	client, err := network.NewClient(clientCfg, o.transport)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize network stack: %w", err)
	}

	ctx, cancel := context.WithCancel(parent)
	c := &Conversation{
		id:        id,
		ctx:       ctx,
		cancel:    cancel,
		logger:    log,
		cfg:       conv,
		client:    client,
		cookies:   o.cookies,
		parsers:   o.parsers,
		scripts:   o.scripts,
		listeners: o.listeners,
		pages:     map[*html.Node]*Response{},
	}
	if c.cookies == nil {
		c.cookies = cookies.NewStore(log)
	}
	if c.parsers == nil {
		c.parsers = dom.NewParserProvider(cfg.Parser())
	}
	if c.scripts == nil && !o.noScripts && conv.Scripting.Enabled {
		c.scripts = jsexec.NewEngine(log, conv.Scripting.Timeout)
	}
	if c.cfg.MaxRedirects <= 0 {
		c.cfg.MaxRedirects = 10
	}
	log.Debug("Conversation created.", zap.Bool("scripting", c.scripts != nil))
	return c, nil
}

// ID returns the conversation id.
func (c *Conversation) ID() string { return c.id }

// Close releases idle connections. Later operations fail with ErrClosed.
func (c *Conversation) Close() error {
	c.closeOnce.Do(func() {
		c.logger.Debug("Closing conversation.")
		c.cancel()
		c.client.CloseIdleConnections()
		c.mu.Lock()
		c.pages = map[*html.Node]*Response{}
		c.mu.Unlock()
	})
	return nil
}

// operation ties ctx to the conversation lifetime.
func (c *Conversation) operation(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if c.ctx.Err() != nil {
		return nil, nil, ErrClosed
	}
	opCtx, cancel := CombineContext(ctx, c.ctx)
	return opCtx, cancel, nil
}

// -- Requests --

// Submit sends req, follows redirects as configured and displays the result
// in the frame the request targets. It returns the content of that frame once
// any script the page ran on load has finished.
func (c *Conversation) Submit(ctx context.Context, req *request.Request) (*Response, error) {
	ctx, cancel, err := c.operation(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return c.submit(ctx, req)
}

func (c *Conversation) submit(ctx context.Context, req *request.Request) (*Response, error) {
	// Windows open only for a response that arrived.
	p, err := c.locateTarget(req)
	if err != nil {
		return nil, err
	}
	resp, err := c.fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	frame := p.open(c)
	if err := c.display(ctx, frame, resp, 0); err != nil {
		return nil, err
	}
	return frame.response, nil
}

// GetResponse requests rawURL in the current window.
func (c *Conversation) GetResponse(ctx context.Context, rawURL string) (*Response, error) {
	req, err := request.Get(rawURL)
	if err != nil {
		return nil, err
	}
	if !req.URL.IsAbs() {
		return nil, fmt.Errorf("URL %q is not absolute", rawURL)
	}
	return c.Submit(ctx, req)
}

// Click follows a link the way a user click would: the onclick handler runs
// first and may cancel it, and javascript: links are evaluated instead of
// requested. It returns the content of the frame the link targeted.
func (c *Conversation) Click(ctx context.Context, link *dom.Link) (*Response, error) {
	ctx, cancel, err := c.operation(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	if link == nil {
		return nil, fmt.Errorf("nil link")
	}
	resp, err := c.responseFor(link.Node)
	if err != nil {
		return nil, err
	}
	proceed, err := c.dispatch(ctx, resp, link.Node, "click")
	if err != nil {
		return nil, err
	}
	if !proceed {
		return c.displayed(resp), nil
	}
	return c.followLink(ctx, resp, link)
}

func (c *Conversation) followLink(ctx context.Context, resp *Response, link *dom.Link) (*Response, error) {
	if link.IsScript() {
		if err := c.evaluate(ctx, resp, link.Href); err != nil {
			return nil, err
		}
		return c.displayed(resp), nil
	}
	req, err := resp.LinkRequest(link)
	if err != nil {
		return nil, err
	}
	return c.submit(ctx, req)
}

// SubmitForm submits f with the given button, which may be nil when the form
// has at most one usable submit button. The button's onclick and the form's
// onsubmit run first; either can cancel the submission.
func (c *Conversation) SubmitForm(ctx context.Context, f *form.Form, submit *form.Control) (*Response, error) {
	ctx, cancel, err := c.operation(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	resp, err := c.responseFor(f.Node())
	if err != nil {
		return nil, err
	}
	// Surface validation errors before any handler runs.
	if _, err := f.Request(submit); err != nil {
		return nil, err
	}
	if submit != nil {
		proceed, err := c.dispatch(ctx, resp, submit.Node(), "click")
		if err != nil || !proceed {
			return c.displayed(resp), err
		}
	}
	return c.submitForm(ctx, resp, f, submit, false)
}

// submitForm runs onsubmit unless skipHandlers is set, then sends the form.
func (c *Conversation) submitForm(ctx context.Context, resp *Response, f *form.Form, submit *form.Control, skipHandlers bool) (*Response, error) {
	if !skipHandlers {
		proceed, err := c.dispatch(ctx, resp, f.Node(), "submit")
		if err != nil {
			return nil, err
		}
		if !proceed {
			c.logger.Debug("Submission cancelled by onsubmit.", zap.String("form", f.Name()))
			return c.displayed(resp), nil
		}
	}
	var req *request.Request
	if skipHandlers && submit == nil {
		req = f.UncheckedRequest(nil)
	} else {
		var err error
		if req, err = f.Request(submit); err != nil {
			return nil, err
		}
	}
	return c.submit(ctx, req)
}

// FollowRefresh loads the pending refresh of resp into its frame. It returns
// resp unchanged when there is none.
func (c *Conversation) FollowRefresh(ctx context.Context, resp *Response) (*Response, error) {
	req := resp.RefreshRequest()
	if req == nil {
		return resp, nil
	}
	return c.Submit(ctx, req)
}

// -- Windows --

// OpenWindow loads rawURL into the window or frame called name, creating a
// window when no frame has that name. An empty name always opens a new window.
func (c *Conversation) OpenWindow(ctx context.Context, rawURL, name string) (*Window, error) {
	if name == "" {
		name = TargetBlank
	}
	if rawURL == "" {
		ctx, cancel, err := c.operation(ctx)
		if err != nil {
			return nil, err
		}
		defer cancel()
		req := &request.Request{Target: name}
		frame, err := c.resolveTarget(req)
		if err != nil {
			return nil, err
		}
		if frame.response == nil {
			if err := c.display(ctx, frame, c.blankResponse(req), 0); err != nil {
				return nil, err
			}
		}
		c.setCurrent(frame.window)
		return frame.window, nil
	}
	req, err := request.Get(rawURL)
	if err != nil {
		return nil, err
	}
	req.Target = name
	resp, err := c.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.Window(), nil
}

// CloseWindow closes w. The most recently opened remaining window becomes current.
func (c *Conversation) CloseWindow(w *Window) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := slices.Index(c.windows, w)
	if i < 0 {
		return
	}
	w.closed = true
	c.windows = slices.Delete(c.windows, i, i+1)
	c.forgetLocked(w.root)
	if c.current == w {
		c.current = nil
		if n := len(c.windows); n > 0 {
			c.current = c.windows[n-1]
		}
	}
	c.logger.Debug("Closed window.", zap.String("window_id", w.id), zap.String("name", w.Name()))
}

// Windows returns the open windows in creation order.
func (c *Conversation) Windows() []*Window {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*Window(nil), c.windows...)
}

// CurrentWindow returns the window that last received a top-level response.
func (c *Conversation) CurrentWindow() *Window {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Window returns the open window with the given name, or nil.
func (c *Conversation) Window(name string) *Window {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, w := range c.windows {
		if w.Name() == name {
			return w
		}
	}
	return nil
}

// CurrentPage returns the content of the current window's top frame.
func (c *Conversation) CurrentPage() *Response {
	if w := c.CurrentWindow(); w != nil {
		return w.Content()
	}
	return nil
}

// FrameContents returns the response displayed in the frame sel of w.
func (c *Conversation) FrameContents(w *Window, sel Selector) (*Response, error) {
	f := w.Frame(sel)
	if f == nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingTarget, sel)
	}
	return f.response, nil
}

func (c *Conversation) setCurrent(w *Window) {
	c.mu.Lock()
	c.current = w
	c.mu.Unlock()
}

// -- Cookies --

// Cookies returns the cookies that would be sent to u.
func (c *Conversation) Cookies(u *url.URL) []*cookies.Cookie { return c.cookies.Matching(u) }

// CookieValue returns the value of the named cookie for any domain.
func (c *Conversation) CookieValue(name string) (string, bool) { return c.cookies.Value(name) }

// PutCookie stores a cookie as is, without domain checks.
func (c *Conversation) PutCookie(ck *cookies.Cookie) { c.cookies.Put(ck) }

// CookieStore exposes the underlying store.
func (c *Conversation) CookieStore() *cookies.Store { return c.cookies }

// -- Listeners --

// AddListener registers l for all later traffic.
func (c *Conversation) AddListener(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// RemoveListener unregisters l.
func (c *Conversation) RemoveListener(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = slices.DeleteFunc(c.listeners, func(x Listener) bool { return x == l })
}

func (c *Conversation) snapshotListeners() []Listener {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Listener(nil), c.listeners...)
}

// -- Script errors --

// ScriptErrors returns the script failures recorded while exceptions on
// script errors are disabled.
func (c *Conversation) ScriptErrors() []error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]error(nil), c.scriptErrors...)
}

// ClearScriptErrors forgets the recorded script failures.
func (c *Conversation) ClearScriptErrors() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scriptErrors = nil
}

// -- Page registry --

func (c *Conversation) register(resp *Response) {
	if resp.Document == nil {
		return
	}
	c.mu.Lock()
	c.pages[resp.Document.Root()] = resp
	c.mu.Unlock()
}

// forget drops the pages shown in frame and its subframes. Their elements
// no longer resolve to a page.
func (c *Conversation) forget(frame *Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.forgetLocked(frame)
}

func (c *Conversation) forgetLocked(frame *Frame) {
	frame.walk(func(f *Frame) bool {
		if f.response != nil && f.response.Document != nil {
			delete(c.pages, f.response.Document.Root())
		}
		return true
	})
}

// responseFor finds the response whose document contains node.
func (c *Conversation) responseFor(node *html.Node) (*Response, error) {
	if node == nil {
		return nil, fmt.Errorf("nil element")
	}
	c.mu.RLock()
	resp := c.pages[documentRoot(node)]
	c.mu.RUnlock()
	if resp == nil {
		return nil, fmt.Errorf("element <%s> does not belong to a page of this conversation", dom.Tag(node))
	}
	return resp, nil
}

// displayed is what the frame of resp currently shows, which may be a newer
// response if a script navigated.
func (c *Conversation) displayed(resp *Response) *Response {
	if resp.frame != nil && resp.frame.response != nil {
		return resp.frame.response
	}
	return resp
}
