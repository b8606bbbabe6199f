// internal/browser/session/harvester.go
package session

import (
	"encoding/base64"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagewalk/api/schemas"
)

// exchangeState holds one request from the moment it is sent until its
// response arrives.
type exchangeState struct {
	request  *http.Request
	postBody []byte
	pageID   string
	started  time.Time

	response *http.Response
	body     []byte
	err      error
	elapsed  time.Duration
}

// Harvester records the traffic of a conversation as a HAR log. Register it
// with WithListener or AddListener; it is safe for concurrent use.
type Harvester struct {
	logger        *zap.Logger
	captureBodies bool

	mu      sync.Mutex
	pending map[*http.Request]*exchangeState
	entries []*exchangeState
	pages   []schemas.Page
	pageID  string
	// loadStart marks when the first request since the previous page went out.
	loadStart time.Time
}

var (
	_ Listener     = (*Harvester)(nil)
	_ PageListener = (*Harvester)(nil)
)

// NewHarvester creates a harvester. Without captureBodies only sizes are kept.
func NewHarvester(logger *zap.Logger, captureBodies bool) *Harvester {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Harvester{
		logger:        logger.Named("harvester"),
		captureBodies: captureBodies,
		pending:       make(map[*http.Request]*exchangeState),
		pageID:        "page_" + uuid.NewString(),
	}
}

// RequestSent implements Listener.
func (h *Harvester) RequestSent(req *http.Request, body []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := time.Now()
	if h.loadStart.IsZero() {
		h.loadStart = now
	}
	state := &exchangeState{
		request:  req,
		postBody: body,
		pageID:   h.pageID,
		started:  now,
	}
	h.pending[req] = state
	h.entries = append(h.entries, state)
}

// ResponseReceived implements Listener.
func (h *Harvester) ResponseReceived(req *http.Request, resp *http.Response, body []byte, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	state, ok := h.pending[req]
	if !ok {
		h.logger.Debug("Response for unknown request.", zap.String("url", req.URL.String()))
		return
	}
	delete(h.pending, req)
	state.response = resp
	state.body = body
	state.err = err
	state.elapsed = time.Since(state.started)
}

// PageLoaded implements PageListener. Each top-level page closes the page
// record the preceding requests belong to.
func (h *Harvester) PageLoaded(resp *Response) {
	if f := resp.Frame(); f != nil && !f.IsTop() {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	now := time.Now()
	started := h.loadStart
	if started.IsZero() {
		started = now
	}
	h.pages = append(h.pages, schemas.Page{
		StartedDateTime: started,
		ID:              h.pageID,
		Title:           resp.Title(),
		PageTimings: schemas.PageTimings{
			OnContentLoad: -1,
			OnLoad:        milliseconds(now.Sub(started)),
		},
	})
	h.pageID = "page_" + uuid.NewString()
	h.loadStart = time.Time{}
}

// GenerateHAR returns the log recorded so far. Requests still in flight are
// left out.
func (h *Harvester) GenerateHAR() *schemas.HAR {
	h.mu.Lock()
	defer h.mu.Unlock()

	har := schemas.NewHAR()
	har.Log.Pages = append(har.Log.Pages, h.pages...)
	for _, state := range h.entries {
		if _, inFlight := h.pending[state.request]; inFlight {
			continue
		}
		har.Log.Entries = append(har.Log.Entries, schemas.Entry{
			Pageref:         state.pageID,
			StartedDateTime: state.started,
			Time:            milliseconds(state.elapsed),
			Request:         h.buildHARRequest(state),
			Response:        h.buildHARResponse(state),
			Cache:           struct{}{},
			Timings: schemas.Timings{
				Blocked: -1,
				DNS:     -1,
				Connect: -1,
				SSL:     -1,
				Wait:    milliseconds(state.elapsed),
			},
		})
	}
	return har
}

// Reset drops everything recorded so far.
func (h *Harvester) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pending = make(map[*http.Request]*exchangeState)
	h.entries = nil
	h.pages = nil
	h.loadStart = time.Time{}
}

func (h *Harvester) buildHARRequest(state *exchangeState) schemas.Request {
	req := state.request
	qs := make([]schemas.NVPair, 0)
	for k, v := range req.URL.Query() {
		for _, val := range v {
			qs = append(qs, schemas.NVPair{Name: k, Value: val})
		}
	}

	harReq := schemas.Request{
		Method:      req.Method,
		URL:         req.URL.String(),
		HTTPVersion: "HTTP/1.1",
		Cookies:     convertCookies(req.Cookies()),
		Headers:     convertHeaders(req.Header),
		QueryString: qs,
		HeadersSize: calculateHeaderSize(req.Header),
		BodySize:    int64(len(state.postBody)),
	}
	if len(state.postBody) > 0 {
		mimeType := req.Header.Get("Content-Type")
		harReq.PostData = &schemas.PostData{MimeType: mimeType}
		if h.captureBodies || isTextMime(mimeType) {
			harReq.PostData.Text = string(state.postBody)
		}
	}
	return harReq
}

func (h *Harvester) buildHARResponse(state *exchangeState) schemas.Response {
	resp := state.response
	if resp == nil {
		statusText := ""
		if state.err != nil {
			statusText = state.err.Error()
		}
		return schemas.Response{
			StatusText:  statusText,
			HTTPVersion: "HTTP/1.1",
			Cookies:     []schemas.HARCookie{},
			Headers:     []schemas.NVPair{},
			BodySize:    -1,
			HeadersSize: -1,
		}
	}

	mimeType := resp.Header.Get("Content-Type")
	content := schemas.Content{
		Size:     int64(len(state.body)),
		MimeType: mimeType,
	}
	if h.captureBodies && len(state.body) > 0 {
		if isTextMime(mimeType) {
			content.Text = string(state.body)
		} else {
			content.Encoding = "base64"
			content.Text = base64.StdEncoding.EncodeToString(state.body)
		}
	}

	return schemas.Response{
		Status:      resp.StatusCode,
		StatusText:  strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode))),
		HTTPVersion: resp.Proto,
		Cookies:     convertCookies(resp.Cookies()),
		Headers:     convertHeaders(resp.Header),
		Content:     content,
		RedirectURL: resp.Header.Get("Location"),
		HeadersSize: calculateHeaderSize(resp.Header),
		BodySize:    int64(len(state.body)),
	}
}

// -- Helpers --

func milliseconds(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func isTextMime(mimeType string) bool {
	lowerMime := strings.ToLower(mimeType)
	return mimeType == "" ||
		strings.HasPrefix(lowerMime, "text/") ||
		strings.Contains(lowerMime, "javascript") ||
		strings.Contains(lowerMime, "json") ||
		strings.Contains(lowerMime, "xml") ||
		strings.Contains(lowerMime, "x-www-form-urlencoded")
}

func calculateHeaderSize(headers http.Header) int64 {
	var size int64
	for k, values := range headers {
		for _, v := range values {
			// key, value, ": " and "\r\n"
			size += int64(len(k) + len(v) + 4)
		}
	}
	return size
}

func convertHeaders(headers http.Header) []schemas.NVPair {
	pairs := make([]schemas.NVPair, 0, len(headers))
	for k, values := range headers {
		for _, v := range values {
			pairs = append(pairs, schemas.NVPair{Name: k, Value: v})
		}
	}
	return pairs
}

func convertCookies(cookies []*http.Cookie) []schemas.HARCookie {
	out := make([]schemas.HARCookie, 0, len(cookies))
	for _, ck := range cookies {
		hc := schemas.HARCookie{
			Name:     ck.Name,
			Value:    ck.Value,
			Path:     ck.Path,
			Domain:   ck.Domain,
			HTTPOnly: ck.HttpOnly,
			Secure:   ck.Secure,
		}
		if !ck.Expires.IsZero() {
			hc.Expires = ck.Expires.UTC().Format(time.RFC3339)
		}
		out = append(out, hc)
	}
	return out
}
