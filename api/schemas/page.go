package schemas

import "time"

// -- Page Summary Schemas --

// PageSummary is the JSON dump of one fetched page.
type PageSummary struct {
	URL         string         `json:"url"`
	FinalURL    string         `json:"finalUrl,omitempty"`
	Status      int            `json:"status,omitempty"`
	ContentType string         `json:"contentType,omitempty"`
	Title       string         `json:"title,omitempty"`
	FetchedAt   time.Time      `json:"fetchedAt"`
	Links       []LinkSummary  `json:"links,omitempty"`
	Forms       []FormSummary  `json:"forms,omitempty"`
	Tables      [][][]string   `json:"tables,omitempty"`
	Frames      []FrameSummary `json:"frames,omitempty"`
	Text        string         `json:"text,omitempty"`
	Cookies     []HARCookie    `json:"cookies,omitempty"`
	// ScriptErrors lists script failures that did not abort the load.
	ScriptErrors []string `json:"scriptErrors,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// LinkSummary describes one anchor or image-map area.
type LinkSummary struct {
	Text   string `json:"text,omitempty"`
	Href   string `json:"href"`
	URL    string `json:"url,omitempty"`
	Target string `json:"target,omitempty"`
}

// FormSummary describes a form and the parameters it would submit as loaded.
type FormSummary struct {
	Name       string   `json:"name,omitempty"`
	ID         string   `json:"id,omitempty"`
	Method     string   `json:"method"`
	Action     string   `json:"action"`
	Enctype    string   `json:"enctype"`
	Target     string   `json:"target,omitempty"`
	Parameters []NVPair `json:"parameters"`
	Buttons    []string `json:"buttons,omitempty"`
}

// FrameSummary describes one frame slot of the fetched window.
type FrameSummary struct {
	Selector string `json:"selector"`
	Name     string `json:"name,omitempty"`
	URL      string `json:"url,omitempty"`
	Title    string `json:"title,omitempty"`
}
