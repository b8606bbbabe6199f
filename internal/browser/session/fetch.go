// internal/browser/session/fetch.go
package session

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pagewalk/internal/browser/dom"
	"github.com/xkilldash9x/pagewalk/internal/browser/request"
)

// fetch sends req and follows redirects. The returned response is not yet
// displayed anywhere.
func (c *Conversation) fetch(ctx context.Context, req *request.Request) (*Response, error) {
	httpReq, err := req.Build(ctx)
	if err != nil {
		return nil, err
	}
	c.prepareHeaders(httpReq, req)
	original := httpReq.URL.String()
	// Every hop carries the page the chain started from; a request that did
	// not come from a page refers to its own URL.
	referer := httpReq.Header.Get("Referer")
	if referer == "" {
		referer = original
	}

	for hop := 0; ; hop++ {
		wire, body, err := c.exchange(httpReq)
		if err != nil {
			return nil, err
		}
		location := wire.Header.Get("Location")
		if !c.cfg.AutoRedirect || !isRedirect(wire.StatusCode) || location == "" {
			return c.finish(req, httpReq, wire, body)
		}
		if hop >= c.cfg.MaxRedirects {
			return nil, &HTTPStatusError{
				URL:     original,
				Status:  wire.StatusCode,
				Message: fmt.Sprintf("more than %d redirects", c.cfg.MaxRedirects),
			}
		}
		next, err := c.redirect(ctx, httpReq, wire.StatusCode, location, referer)
		if err != nil {
			return nil, err
		}
		c.logger.Debug("Following redirect.",
			zap.Int("status", wire.StatusCode),
			zap.String("from", httpReq.URL.String()),
			zap.String("to", next.URL.String()))
		httpReq = next
	}
}

// finish turns the final wire response into a Response, raising error
// statuses when configured to.
func (c *Conversation) finish(req *request.Request, httpReq *http.Request, wire *http.Response, body []byte) (*Response, error) {
	resp, err := c.newResponse(req, httpReq, wire, body)
	if err != nil {
		return nil, err
	}
	if wire.StatusCode >= http.StatusBadRequest {
		if c.cfg.ExceptionsOnErrorStatus {
			return nil, &HTTPStatusError{
				URL:      httpReq.URL.String(),
				Status:   resp.Status,
				Message:  resp.StatusText,
				Response: resp,
			}
		}
		c.logger.Warn("Request resulted in error status code.",
			zap.Int("status", wire.StatusCode), zap.String("url", httpReq.URL.String()))
	}
	return resp, nil
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

// prepareHeaders adds the conversation-wide headers. Headers already set on
// the request win.
func (c *Conversation) prepareHeaders(httpReq *http.Request, req *request.Request) {
	setDefault := func(name, value string) {
		if value != "" && httpReq.Header.Get(name) == "" {
			httpReq.Header.Set(name, value)
		}
	}
	setDefault("User-Agent", c.cfg.UserAgent)
	for name, value := range c.cfg.Headers {
		setDefault(name, value)
	}
	if c.cfg.Auth.Username != "" && httpReq.Header.Get("Authorization") == "" {
		httpReq.SetBasicAuth(c.cfg.Auth.Username, c.cfg.Auth.Password)
	}
	if req.SourceFrame != "" {
		if f := c.frame(Selector(req.SourceFrame)); f != nil && f.response != nil && f.response.URL != nil {
			referer := *f.response.URL
			referer.Fragment = ""
			referer.User = nil
			setDefault("Referer", referer.String())
		}
	}
}

// redirect builds the next hop. 307 and 308 resend the method and body; the
// others become a GET. Every hop sends the same Referer.
func (c *Conversation) redirect(ctx context.Context, prev *http.Request, status int, location, referer string) (*http.Request, error) {
	nextURL, err := prev.URL.Parse(location)
	if err != nil {
		return nil, &NavigationError{URL: location, Message: "invalid redirect location", Err: err}
	}

	method := prev.Method
	var body io.Reader
	preserve := status == http.StatusTemporaryRedirect || status == http.StatusPermanentRedirect
	if preserve {
		if prev.GetBody != nil {
			rc, err := prev.GetBody()
			if err != nil {
				return nil, fmt.Errorf("failed to get body for redirect reuse: %w", err)
			}
			defer rc.Close()
			data, err := io.ReadAll(rc)
			if err != nil {
				return nil, fmt.Errorf("failed to read body for redirect reuse: %w", err)
			}
			body = bytes.NewReader(data)
		}
	} else if method != http.MethodHead {
		method = http.MethodGet
	}

	next, err := http.NewRequestWithContext(ctx, method, nextURL.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create redirect request: %w", err)
	}
	for name, values := range prev.Header {
		if !preserve && strings.HasPrefix(strings.ToLower(name), "content-") {
			continue
		}
		next.Header[name] = append([]string(nil), values...)
	}
	next.Header.Del("Cookie")
	if !strings.EqualFold(prev.URL.Hostname(), nextURL.Hostname()) {
		next.Header.Del("Authorization")
	}
	next.Header.Set("Referer", referer)
	return next, nil
}

// exchange performs one wire round trip: cookies out, listeners, cookies in.
func (c *Conversation) exchange(req *http.Request) (*http.Response, []byte, error) {
	if header := c.cookies.Header(req.URL); header != "" {
		req.Header.Set("Cookie", header)
	} else {
		req.Header.Del("Cookie")
	}

	listeners := c.snapshotListeners()
	if len(listeners) > 0 {
		reqBody := requestBody(req)
		for _, l := range listeners {
			l.RequestSent(req, reqBody)
		}
	}

	c.logger.Debug("Executing request.", zap.String("method", req.Method), zap.String("url", req.URL.String()))
	wire, err := c.client.Do(req)
	if err != nil {
		for _, l := range listeners {
			l.ResponseReceived(req, nil, nil, err)
		}
		return nil, nil, &NavigationError{URL: req.URL.String(), Message: "request failed", Err: err}
	}
	body, err := io.ReadAll(wire.Body)
	closeErr := wire.Body.Close()
	if err == nil {
		err = closeErr
	}
	for _, l := range listeners {
		l.ResponseReceived(req, wire, body, err)
	}
	if err != nil {
		return nil, nil, &NavigationError{URL: req.URL.String(), Message: "failed to read response body", Err: err}
	}

	if c.cfg.AcceptCookies {
		c.cookies.Update(req.URL, wire.Header)
	}
	return wire, body, nil
}

func requestBody(req *http.Request) []byte {
	if req.GetBody == nil {
		return nil
	}
	rc, err := req.GetBody()
	if err != nil {
		return nil
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	return data
}

// newResponse decodes and, for markup, parses the body.
func (c *Conversation) newResponse(req *request.Request, httpReq *http.Request, wire *http.Response, body []byte) (*Response, error) {
	contentType := wire.Header.Get("Content-Type")
	mt, params := mediaType(contentType)
	finalURL := *httpReq.URL
	resp := &Response{
		URL:         &finalURL,
		Status:      wire.StatusCode,
		StatusText:  strings.TrimSpace(strings.TrimPrefix(wire.Status, strconv.Itoa(wire.StatusCode))),
		Header:      wire.Header,
		ContentType: mt,
		Charset:     params["charset"],
		Body:        body,
		Request:     req,
	}
	if resp.StatusText == "" {
		resp.StatusText = http.StatusText(wire.StatusCode)
	}

	_, parserOverride := c.parsers.ByMediaType[mt]
	if !isMarkup(mt) && !parserOverride && !strings.HasPrefix(mt, "text/") {
		resp.text = string(body)
		return resp, nil
	}

	decoded, charset, err := dom.Decode(body, contentType, c.cfg.DefaultCharset)
	if err != nil {
		return nil, &NavigationError{URL: finalURL.String(), Message: "failed to decode response body", Err: err}
	}
	resp.Charset = charset
	resp.text = string(decoded)
	if !isMarkup(mt) && !parserOverride {
		return resp, nil
	}

	doc, err := dom.Parse(c.parsers.ParserFor(contentType), bytes.NewReader(decoded), resp.URL, dom.Options{
		Charset: charset,
		Header:  wire.Header,
	})
	if err != nil {
		return nil, &NavigationError{URL: finalURL.String(), Message: "failed to parse response", Err: err}
	}
	resp.Document = doc
	resp.Refresh = doc.Refresh()
	return resp, nil
}
