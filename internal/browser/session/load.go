// internal/browser/session/load.go
package session

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/pagewalk/internal/browser/dom"
	"github.com/xkilldash9x/pagewalk/internal/browser/form"
	"github.com/xkilldash9x/pagewalk/internal/browser/jsbind"
	"github.com/xkilldash9x/pagewalk/internal/browser/jsexec"
	"github.com/xkilldash9x/pagewalk/internal/browser/request"
)

// maxLoadDepth bounds nested frames and chained refreshes.
const maxLoadDepth = 16

var blankURL = &url.URL{Scheme: "about", Opaque: "blank"}

// display installs resp as the content of frame, loads its subframes, runs its
// scripts and follows an immediate refresh.
func (c *Conversation) display(ctx context.Context, frame *Frame, resp *Response, depth int) error {
	if depth > maxLoadDepth {
		c.logger.Warn("Frame nesting too deep, not loading.", zap.String("url", resp.URL.String()))
		return nil
	}
	resp.frame = frame
	resp.selector = frame.selector
	resp.Target = frame.displayTarget()

	if resp.Document != nil {
		resp.forms = form.All(resp.Document, form.Origin{Frame: string(frame.selector), Target: resp.Target})
		for _, f := range resp.forms {
			c.watchChanges(resp, f)
		}
	}
	c.forget(frame)
	frame.response = resp
	c.register(resp)
	if frame.IsTop() {
		c.setCurrent(frame.window)
	}
	c.logger.Debug("Displaying response.",
		zap.String("url", resp.URL.String()),
		zap.String("frame", string(frame.selector)),
		zap.Int("status", resp.Status))

	var refs []*dom.FrameRef
	if resp.Document != nil {
		refs = resp.Document.Frames()
	}
	names := make([]string, len(refs))
	for i, ref := range refs {
		names[i] = ref.Name
	}
	children := frame.reset(names)
	for i, ref := range refs {
		if err := c.loadSubframe(ctx, children[i], ref, depth+1); err != nil {
			return err
		}
	}

	c.notifyPage(resp)
	if err := c.runPageScripts(ctx, resp); err != nil {
		return err
	}

	if frame.response != resp || !c.cfg.AutoRefresh {
		return nil
	}
	refresh := resp.RefreshRequest()
	if refresh == nil {
		return nil
	}
	if c.cfg.MaxRefreshDelay > 0 && resp.Refresh.Delay > c.cfg.MaxRefreshDelay {
		c.logger.Debug("Refresh delay over limit, not following.", zap.Duration("delay", resp.Refresh.Delay))
		return nil
	}
	next, err := c.fetch(ctx, refresh)
	if err != nil {
		return err
	}
	return c.display(ctx, frame, next, depth+1)
}

// loadSubframe fills one frame slot declared by the parent's document.
func (c *Conversation) loadSubframe(ctx context.Context, frame *Frame, ref *dom.FrameRef, depth int) error {
	if !ref.Scheduled() {
		return c.display(ctx, frame, c.blankResponse(nil), depth)
	}
	req := request.NewFromURL(http.MethodGet, ref.URL)
	req.SourceFrame = string(frame.parent.selector)
	req.Target = TargetSelf
	resp, err := c.fetch(ctx, req)
	if err != nil {
		var statusErr *HTTPStatusError
		if errors.As(err, &statusErr) && statusErr.Response != nil {
			// A failing subframe still occupies its slot.
			return c.display(ctx, frame, statusErr.Response, depth)
		}
		return err
	}
	return c.display(ctx, frame, resp, depth)
}

// blankResponse is the empty document shown by frames with nothing to load.
func (c *Conversation) blankResponse(req *request.Request) *Response {
	u := *blankURL
	doc, err := dom.Parse(dom.HTMLParser{}, strings.NewReader(""), &u, dom.Options{})
	if err != nil {
		c.logger.Error("Failed to build blank document.", zap.Error(err))
	}
	return &Response{
		URL:         &u,
		Status:      http.StatusOK,
		StatusText:  http.StatusText(http.StatusOK),
		Header:      http.Header{},
		ContentType: "text/html",
		Document:    doc,
		Request:     req,
	}
}

// watchChanges fires onchange when the user edits a control.
func (c *Conversation) watchChanges(resp *Response, f *form.Form) {
	if c.scripts == nil {
		return
	}
	f.OnChange(func(ctrl *form.Control) error {
		if dom.Attr(ctrl.Node(), "onchange") == "" {
			return nil
		}
		ctx, cancel, err := c.operation(context.Background())
		if err != nil {
			return err
		}
		defer cancel()
		_, err = c.dispatch(ctx, resp, ctrl.Node(), "change")
		return err
	})
}

// scope returns the script scope of resp, creating it on first use.
func (c *Conversation) scope(resp *Response) *jsexec.Scope {
	if resp.scope == nil {
		windowName := ""
		if resp.frame != nil {
			windowName = resp.frame.name
		}
		u := resp.URL
		resp.scope = jsexec.NewScope(jsbind.Page{
			Document:   resp.Document,
			Forms:      resp.forms,
			WindowName: windowName,
			Cookies:    func() string { return c.cookies.Header(u) },
		})
	}
	return resp.scope
}

// runPageScripts evaluates the inline scripts in document order and fires
// onload. It stops once a script has replaced the page.
func (c *Conversation) runPageScripts(ctx context.Context, resp *Response) error {
	if c.scripts == nil || resp.Document == nil {
		return nil
	}
	for _, src := range jsexec.InlineScripts(resp.Document) {
		if err := c.evaluate(ctx, resp, src); err != nil {
			return err
		}
		if resp.frame.response != resp {
			return nil
		}
	}
	body, err := resp.Document.Query("//body")
	if err != nil || body == nil {
		return nil
	}
	_, err = c.dispatch(ctx, resp, body, "load")
	return err
}

// evaluate runs source against the page of resp and applies its effects.
func (c *Conversation) evaluate(ctx context.Context, resp *Response, source string) error {
	if c.scripts == nil || resp.Document == nil {
		return nil
	}
	result, err := c.scripts.Evaluate(ctx, source, c.scope(resp))
	if err != nil {
		return c.scriptFailed(err)
	}
	return c.apply(ctx, resp, result.Intents)
}

// dispatch fires event on node and applies the handler's effects. The result
// reports whether the default action should go ahead.
func (c *Conversation) dispatch(ctx context.Context, resp *Response, node *html.Node, event string) (bool, error) {
	if c.scripts == nil || resp.Document == nil {
		return true, nil
	}
	result, err := c.scripts.DispatchEvent(ctx, node, event, c.scope(resp))
	if err != nil {
		// A handler that failed does not cancel the default action.
		return true, c.scriptFailed(err)
	}
	if err := c.apply(ctx, resp, result.Intents); err != nil {
		return false, err
	}
	return result.Proceed, nil
}

// scriptFailed raises a script error or records it, depending on the
// scripting policy. Other failures, such as timeouts, are always raised.
func (c *Conversation) scriptFailed(err error) error {
	var scriptErr *jsexec.ScriptError
	if !errors.As(err, &scriptErr) || c.cfg.Scripting.ExceptionsOnError {
		return err
	}
	c.logger.Warn("Script error ignored.", zap.Error(err))
	c.mu.Lock()
	c.scriptErrors = append(c.scriptErrors, err)
	c.mu.Unlock()
	return nil
}

// apply carries out the navigation effects a script requested.
func (c *Conversation) apply(ctx context.Context, resp *Response, intents []jsbind.Intent) error {
	for _, in := range intents {
		c.logger.Debug("Applying script effect.", zap.Stringer("kind", in.Kind), zap.String("url", in.URL))
		var err error
		switch in.Kind {
		case jsbind.IntentNavigate:
			err = c.navigate(ctx, resp, in.URL, TargetSelf)
		case jsbind.IntentOpenWindow:
			target := in.Target
			if target == "" {
				target = TargetBlank
			}
			if strings.TrimSpace(in.URL) == "" {
				err = c.openBlank(ctx, resp, target)
			} else {
				err = c.navigate(ctx, resp, in.URL, target)
			}
		case jsbind.IntentSubmit:
			_, err = c.submitForm(ctx, resp, in.Form, in.Submitter, in.SkipHandlers)
		case jsbind.IntentFollowLink:
			link := resp.Document.LinkFor(in.Link)
			if link == nil {
				continue
			}
			_, err = c.followLink(ctx, resp, link)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// navigate loads rawURL, resolved against resp, into target.
func (c *Conversation) navigate(ctx context.Context, resp *Response, rawURL, target string) error {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(rawURL)), "javascript:") {
		return c.evaluate(ctx, resp, rawURL)
	}
	var (
		u   *url.URL
		err error
	)
	if resp.Document != nil {
		u, err = resp.Document.Resolve(rawURL)
	} else {
		u, err = resp.URL.Parse(rawURL)
	}
	if err != nil {
		return &NavigationError{URL: rawURL, Message: "invalid script navigation URL", Err: err}
	}
	u.Fragment = ""
	req := request.NewFromURL(http.MethodGet, u)
	req.Target = target
	req.SourceFrame = string(resp.selector)
	_, err = c.submit(ctx, req)
	return err
}

// openBlank shows an empty page in target, the result of window.open("").
func (c *Conversation) openBlank(ctx context.Context, resp *Response, target string) error {
	req := &request.Request{Target: target, SourceFrame: string(resp.selector)}
	frame, err := c.resolveTarget(req)
	if err != nil {
		return err
	}
	if frame.response != nil {
		return nil
	}
	return c.display(ctx, frame, c.blankResponse(req), 0)
}

// notifyPage tells page listeners about a newly displayed response.
func (c *Conversation) notifyPage(resp *Response) {
	for _, l := range c.snapshotListeners() {
		if pl, ok := l.(PageListener); ok {
			pl.PageLoaded(resp)
		}
	}
}

