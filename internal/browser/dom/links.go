// internal/browser/dom/links.go
package dom

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// Link is a navigable reference: an anchor, or an area of an image map.
type Link struct {
	Node *html.Node
	// Tag is "a" or "area".
	Tag  string
	Href string
	// URL is Href resolved against the document base; nil when Href is unparsable.
	URL *url.URL
	// Target is the element's own target attribute, "" when absent.
	Target  string
	Text    string
	ID      string
	Name    string
	Title   string
	OnClick string
	// MapName is the name of the enclosing <map> for areas.
	MapName string
	// ImageAlt is the alt text of an image inside an anchor, or of an area.
	ImageAlt string
}

func newLink(n *html.Node, d *Document) *Link {
	l := &Link{
		Node:    n,
		Tag:     Tag(n),
		Href:    strings.TrimSpace(Attr(n, "href")),
		Target:  Attr(n, "target"),
		Text:    Text(n),
		ID:      Attr(n, "id"),
		Name:    Attr(n, "name"),
		Title:   Attr(n, "title"),
		OnClick: Attr(n, "onclick"),
	}
	if u, err := d.base.Parse(l.Href); err == nil {
		l.URL = u
	}
	if l.Tag == "area" {
		l.ImageAlt = Attr(n, "alt")
		if m := Ancestor(n, "map"); m != nil {
			l.MapName = Attr(m, "name")
		}
	} else if img := firstElement(n, "img"); img != nil {
		l.ImageAlt = Attr(img, "alt")
	}
	return l
}

// IsScript reports whether the link runs script instead of navigating.
func (l *Link) IsScript() bool {
	return strings.HasPrefix(strings.ToLower(l.Href), "javascript:")
}

// Path is an XPath expression selecting the link element.
func (l *Link) Path() string { return ElementPath(l.Node) }

// Image is an img element.
type Image struct {
	Node   *html.Node
	Src    string
	URL    *url.URL
	Alt    string
	ID     string
	Name   string
	UseMap string
}

func newImage(n *html.Node, d *Document) *Image {
	img := &Image{
		Node:   n,
		Src:    strings.TrimSpace(Attr(n, "src")),
		Alt:    Attr(n, "alt"),
		ID:     Attr(n, "id"),
		Name:   Attr(n, "name"),
		UseMap: strings.TrimPrefix(Attr(n, "usemap"), "#"),
	}
	if u, err := d.base.Parse(img.Src); err == nil && img.Src != "" {
		img.URL = u
	}
	return img
}

// Links returns anchors and image-map areas in document order.
func (d *Document) Links() []*Link { return d.links }

// Images returns the images in document order.
func (d *Document) Images() []*Image { return d.images }

// LinkWithText returns the first link whose text contains text, ignoring case.
// Image links also match on their alt text.
func (d *Document) LinkWithText(text string) *Link {
	needle := strings.ToLower(text)
	for _, l := range d.links {
		if strings.Contains(strings.ToLower(l.Text), needle) ||
			(l.ImageAlt != "" && strings.Contains(strings.ToLower(l.ImageAlt), needle)) {
			return l
		}
	}
	return nil
}

// LinkWithID returns the link with the given id.
func (d *Document) LinkWithID(id string) *Link {
	for _, l := range d.links {
		if l.ID == id {
			return l
		}
	}
	return nil
}

// LinkWithName returns the first link with the given name.
func (d *Document) LinkWithName(name string) *Link {
	for _, l := range d.links {
		if l.Name == name {
			return l
		}
	}
	return nil
}

// LinksInMap returns the areas of the named image map.
func (d *Document) LinksInMap(name string) []*Link {
	var out []*Link
	for _, l := range d.links {
		if l.Tag == "area" && l.MapName == name {
			out = append(out, l)
		}
	}
	return out
}

// LinkFor returns the Link wrapping node, or nil.
func (d *Document) LinkFor(node *html.Node) *Link {
	for _, l := range d.links {
		if l.Node == node {
			return l
		}
	}
	return nil
}
