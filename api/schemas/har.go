package schemas

import (
	"time"
)

// -- HAR Schemas --
//
// The types below follow HAR 1.2 (http://www.softwareishard.com/blog/har-1-2-spec/).
// Only the fields a conversation can fill are modelled.

// HAR is the document root.
type HAR struct {
	Log HARLog `json:"log"`
}

// HARLog holds every page and exchange recorded for one or more conversations.
type HARLog struct {
	Version string  `json:"version"`
	Creator Creator `json:"creator"`
	Pages   []Page  `json:"pages"`
	Entries []Entry `json:"entries"`
}

// Creator names the tool that wrote the log.
type Creator struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Page is one document displayed in a top-level frame. Entries point at it
// through Pageref.
type Page struct {
	StartedDateTime time.Time   `json:"startedDateTime"`
	ID              string      `json:"id"`
	Title           string      `json:"title"`
	PageTimings     PageTimings `json:"pageTimings"`
}

// PageTimings are milliseconds since StartedDateTime; -1 when unknown.
type PageTimings struct {
	OnContentLoad float64 `json:"onContentLoad"`
	OnLoad        float64 `json:"onLoad"`
}

// Entry is one request and its response. A redirect chain produces one entry
// per hop.
type Entry struct {
	Pageref         string    `json:"pageref"`
	StartedDateTime time.Time `json:"startedDateTime"`
	// Time is the elapsed milliseconds for the exchange.
	Time     float64  `json:"time"`
	Request  Request  `json:"request"`
	Response Response `json:"response"`
	// Cache is always empty; conversations keep no HTTP cache.
	Cache   struct{} `json:"cache"`
	Timings Timings  `json:"timings"`
}

type Request struct {
	Method      string      `json:"method"`
	URL         string      `json:"url"`
	HTTPVersion string      `json:"httpVersion"`
	Cookies     []HARCookie `json:"cookies"`
	Headers     []NVPair    `json:"headers"`
	QueryString []NVPair    `json:"queryString"`
	PostData    *PostData   `json:"postData,omitempty"`
	HeadersSize int64       `json:"headersSize"`
	BodySize    int64       `json:"bodySize"`
}

// Response is the wire response. Status 0 marks an exchange that failed
// before a response arrived; StatusText then carries the error.
type Response struct {
	Status      int         `json:"status"`
	StatusText  string      `json:"statusText"`
	HTTPVersion string      `json:"httpVersion"`
	Cookies     []HARCookie `json:"cookies"`
	Headers     []NVPair    `json:"headers"`
	Content     Content     `json:"content"`
	RedirectURL string      `json:"redirectURL"`
	HeadersSize int64       `json:"headersSize"`
	BodySize    int64       `json:"bodySize"`
}

// Timings breaks Entry.Time into phases. The transport does not expose
// blocked, dns, connect or ssl, so those are -1.
type Timings struct {
	Blocked float64 `json:"blocked"`
	DNS     float64 `json:"dns"`
	Connect float64 `json:"connect"`
	SSL     float64 `json:"ssl"`
	Send    float64 `json:"send"`
	Wait    float64 `json:"wait"`
	Receive float64 `json:"receive"`
}

// NVPair is a name and value: a header, a query parameter or a form field.
type NVPair struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// HARCookie is a cookie as HAR writes it. Expires is RFC 3339, empty for
// session cookies.
type HARCookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Path     string `json:"path,omitempty"`
	Domain   string `json:"domain,omitempty"`
	Expires  string `json:"expires,omitempty"`
	HTTPOnly bool   `json:"httpOnly,omitempty"`
	Secure   bool   `json:"secure,omitempty"`
}

// PostData is a request body. Text is set for textual bodies, or for all
// bodies when the harvester captures them.
type PostData struct {
	MimeType string   `json:"mimeType"`
	Text     string   `json:"text"`
	Params   []NVPair `json:"params"`
}

// Content is a response body. Binary bodies are base64 with Encoding set.
type Content struct {
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
	Text     string `json:"text,omitempty"`
	Encoding string `json:"encoding,omitempty"`
}

// NewHAR returns an empty log stamped with the pagewalk creator.
func NewHAR() *HAR {
	return &HAR{
		Log: HARLog{
			Version: "1.2",
			Creator: Creator{Name: "pagewalk", Version: "0.1"},
			Pages:   make([]Page, 0),
			Entries: make([]Entry, 0),
		},
	}
}
