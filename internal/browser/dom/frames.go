// internal/browser/dom/frames.go
package dom

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// FrameRef is a frame or iframe waiting to be loaded into its own frame slot.
type FrameRef struct {
	Node   *html.Node
	Name   string
	Src    string
	IFrame bool
	// URL is nil for frames without a usable src; they load as blank pages.
	URL *url.URL
}

func newFrameRef(n *html.Node, d *Document) *FrameRef {
	ref := &FrameRef{
		Node:   n,
		Name:   Attr(n, "name"),
		Src:    strings.TrimSpace(Attr(n, "src")),
		IFrame: Tag(n) == "iframe",
	}
	if ref.Src != "" {
		if u, err := d.base.Parse(ref.Src); err == nil {
			ref.URL = u
		}
	}
	return ref
}

// Scheduled reports whether the frame has a source to load.
func (f *FrameRef) Scheduled() bool { return f.URL != nil }

// Refresh is a pending navigation declared by a Refresh header or meta refresh.
type Refresh struct {
	Delay time.Duration
	URL   *url.URL
}

// parseRefresh reads values like `5; URL=next.html` or `0;url='x'`. A missing URL
// refreshes the current page.
func parseRefresh(value string, base *url.URL) *Refresh {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	delayPart, rest, _ := strings.Cut(value, ";")
	if !strings.Contains(delayPart, "=") {
		value = rest
	} else {
		// Some servers omit the delay: "URL=next.html".
		delayPart = "0"
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(delayPart), 64)
	if err != nil || seconds < 0 {
		seconds = 0
	}
	r := &Refresh{Delay: time.Duration(seconds * float64(time.Second)), URL: base}

	target := strings.TrimSpace(value)
	if k, v, ok := strings.Cut(target, "="); ok && strings.EqualFold(strings.TrimSpace(k), "url") {
		target = strings.TrimSpace(v)
	}
	target = strings.Trim(target, `'"`)
	if target != "" {
		if u, err := base.Parse(target); err == nil {
			r.URL = u
		}
	}
	return r
}
