package session

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/pagewalk/internal/config"
)

const testTimeout = 10 * time.Second

// -- Mock HTTP Transport --

// mockTransport is a simple http.RoundTripper implementation for testing.
type mockTransport struct {
	handler func(*http.Request) (*http.Response, error)
}

// RoundTrip satisfies the http.RoundTripper interface.
func (m *mockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return m.handler(req)
}

// htmlResponse builds a canned text/html response for mockTransport handlers.
func htmlResponse(req *http.Request, status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     fmt.Sprintf("%d %s", status, http.StatusText(status)),
		Proto:      "HTTP/1.1",
		Header:     http.Header{"Content-Type": []string{"text/html; charset=utf-8"}},
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    req,
	}
}

// -- Test site --

// site is an httptest server whose pages are registered per path.
type site struct {
	*httptest.Server
	mux *http.ServeMux

	mu   sync.Mutex
	hits map[string]int
}

func newSite(t *testing.T) *site {
	t.Helper()
	s := &site{mux: http.NewServeMux(), hits: map[string]int{}}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		s.mu.Unlock()
		s.mux.ServeHTTP(w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

// page serves a static HTML body at path.
func (s *site) page(path, body string) {
	s.mux.HandleFunc(path, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, body)
	})
}

func (s *site) handle(path string, fn http.HandlerFunc) { s.mux.HandleFunc(path, fn) }

func (s *site) url(path string) string { return s.URL + path }

func (s *site) hitCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// -- Conversation fixture --

func newTestConfig(mutate func(*config.ConversationConfig)) *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.ConversationCfg.Scripting.Timeout = 2 * time.Second
	if mutate != nil {
		mutate(&cfg.ConversationCfg)
	}
	return cfg
}

func newTestConversation(t *testing.T, mutate func(*config.ConversationConfig), opts ...Option) *Conversation {
	t.Helper()
	conv, err := New(context.Background(), newTestConfig(mutate), zaptest.NewLogger(t), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conv.Close() })
	return conv
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	t.Cleanup(cancel)
	return ctx
}

// recordingListener logs the traffic it sees.
type recordingListener struct {
	mu        sync.Mutex
	sent      []string
	received  []int
	errors    []error
	pageLoads []string
}

func (l *recordingListener) RequestSent(req *http.Request, _ []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sent = append(l.sent, req.Method+" "+req.URL.Path)
}

func (l *recordingListener) ResponseReceived(_ *http.Request, resp *http.Response, _ []byte, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if resp != nil {
		l.received = append(l.received, resp.StatusCode)
	}
	if err != nil {
		l.errors = append(l.errors, err)
	}
}

func (l *recordingListener) PageLoaded(resp *Response) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pageLoads = append(l.pageLoads, resp.URL.Path)
}
