// internal/browser/dom/document.go
package dom

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// Category groups elements for the by-category index.
type Category int

const (
	CategoryLink Category = iota
	CategoryImage
	CategoryTable
	CategoryForm
	CategoryMeta
	CategoryTextBlock
	CategoryFrame
)

// Options carries response context needed while indexing.
type Options struct {
	// Charset is the canonical name of the charset the body was decoded from.
	Charset string
	// Header supplies the Refresh header, if any.
	Header http.Header
	// Typed marks documents produced by a typed (XML) parser.
	Typed bool
	// PreservesTagCase mirrors the parser capability.
	PreservesTagCase bool
}

// Document is an indexed view of a parsed page. It is built once and not
// mutated afterwards; form state lives in the form package.
type Document struct {
	root    *html.Node
	url     *url.URL
	base    *url.URL
	target  string
	charset string
	typed   bool
	tagCase bool
	title   string

	byID       map[string]*html.Node
	byName     map[string][]*html.Node
	byCategory map[Category][]*html.Node

	links      []*Link
	images     []*Image
	tables     []*Table
	meta       []Meta
	textBlocks []*TextBlock
	frames     []*FrameRef
	refresh    *Refresh
}

// Parse runs p over r and indexes the result.
func Parse(p Parser, r io.Reader, docURL *url.URL, opts Options) (*Document, error) {
	if p == nil {
		p = HTMLParser{}
	}
	opts.Typed = p.TypedDocument()
	opts.PreservesTagCase = p.PreservesTagCase()
	root, err := p.Parse(r, docURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", docURL, err)
	}
	return NewDocument(root, docURL, opts), nil
}

// NewDocument indexes an already parsed tree.
func NewDocument(root *html.Node, docURL *url.URL, opts Options) *Document {
	if docURL == nil {
		docURL = &url.URL{}
	}
	d := &Document{
		root:       root,
		url:        docURL,
		base:       docURL,
		charset:    opts.Charset,
		typed:      opts.Typed,
		tagCase:    opts.PreservesTagCase,
		byID:       map[string]*html.Node{},
		byName:     map[string][]*html.Node{},
		byCategory: map[Category][]*html.Node{},
	}
	d.index()
	if d.refresh == nil && opts.Header != nil {
		if value := opts.Header.Get("Refresh"); value != "" {
			d.refresh = parseRefresh(value, d.base)
		}
	}
	return d
}

// index makes one pass over the tree. The base element is resolved first
// because every URL in the page depends on it.
func (d *Document) index() {
	if base := firstElement(d.root, "base"); base != nil {
		if href := strings.TrimSpace(Attr(base, "href")); href != "" {
			if u, err := d.url.Parse(href); err == nil {
				d.base = u
			}
		}
		d.target = Attr(base, "target")
	}

	var heading string
	Walk(d.root, func(n *html.Node) bool {
		tag := Tag(n)
		if id := Attr(n, "id"); id != "" {
			if _, dup := d.byID[id]; !dup {
				d.byID[id] = n
			}
		}
		if name := Attr(n, "name"); name != "" {
			d.byName[name] = append(d.byName[name], n)
		}

		switch tag {
		case "title":
			if d.title == "" {
				d.title = Text(n)
			}
		case "a", "area":
			if HasAttr(n, "href") {
				d.links = append(d.links, newLink(n, d))
				d.byCategory[CategoryLink] = append(d.byCategory[CategoryLink], n)
			}
		case "img":
			d.images = append(d.images, newImage(n, d))
			d.byCategory[CategoryImage] = append(d.byCategory[CategoryImage], n)
		case "table":
			d.tables = append(d.tables, newTable(n))
			d.byCategory[CategoryTable] = append(d.byCategory[CategoryTable], n)
		case "form":
			d.byCategory[CategoryForm] = append(d.byCategory[CategoryForm], n)
		case "meta":
			m := Meta{Name: Attr(n, "name"), HTTPEquiv: Attr(n, "http-equiv"), Content: Attr(n, "content")}
			d.meta = append(d.meta, m)
			d.byCategory[CategoryMeta] = append(d.byCategory[CategoryMeta], n)
			if strings.EqualFold(m.HTTPEquiv, "refresh") && d.refresh == nil {
				d.refresh = parseRefresh(m.Content, d.base)
			}
		case "frame", "iframe":
			ref := newFrameRef(n, d)
			d.frames = append(d.frames, ref)
			d.byCategory[CategoryFrame] = append(d.byCategory[CategoryFrame], n)
			if tag == "iframe" && ref.Scheduled() {
				// Fallback content is never shown once the frame loads.
				return false
			}
		}

		if isTextBlockTag(tag) {
			block := newTextBlock(n, heading)
			if block.Text != "" {
				d.textBlocks = append(d.textBlocks, block)
				d.byCategory[CategoryTextBlock] = append(d.byCategory[CategoryTextBlock], n)
				if block.Heading() {
					heading = block.Text
				}
			}
		}
		return true
	})
	linkNestedTables(d.tables)
}

func (d *Document) Root() *html.Node { return d.root }

// URL is the address the document was loaded from.
func (d *Document) URL() *url.URL { return d.url }

// BaseURL is the <base href> if present, else URL.
func (d *Document) BaseURL() *url.URL { return d.base }

// BaseTarget is the target of the <base> element, or "".
func (d *Document) BaseTarget() string { return d.target }

func (d *Document) Title() string   { return d.title }
func (d *Document) Charset() string { return d.charset }

// Typed reports whether the document came from a typed (XML) parser.
func (d *Document) Typed() bool { return d.typed }

// PreservesTagCase reports whether element names kept their source case.
func (d *Document) PreservesTagCase() bool { return d.tagCase }

// Resolve resolves a reference against the base URL.
func (d *Document) Resolve(ref string) (*url.URL, error) {
	return d.base.Parse(strings.TrimSpace(ref))
}

// ElementByID returns the first element with the given id.
func (d *Document) ElementByID(id string) *html.Node { return d.byID[id] }

// ElementsByName returns every element with the given name attribute.
func (d *Document) ElementsByName(name string) []*html.Node { return d.byName[name] }

// Elements returns the elements of one category in document order.
func (d *Document) Elements(c Category) []*html.Node { return d.byCategory[c] }

// FindByAttribute returns the elements whose attribute satisfies match.
func (d *Document) FindByAttribute(name string, match func(value string) bool) []*html.Node {
	var found []*html.Node
	Walk(d.root, func(n *html.Node) bool {
		if v, ok := LookupAttr(n, name); ok && match(v) {
			found = append(found, n)
		}
		return true
	})
	return found
}

// ElementsWithAttribute returns the elements whose attribute equals value.
func (d *Document) ElementsWithAttribute(name, value string) []*html.Node {
	return d.FindByAttribute(name, func(v string) bool { return v == value })
}

// Query returns the first node matching an XPath expression.
func (d *Document) Query(expr string) (*html.Node, error) {
	n, err := htmlquery.Query(d.root, expr)
	if err != nil {
		return nil, fmt.Errorf("invalid xpath %q: %w", expr, err)
	}
	return n, nil
}

// QueryAll returns every node matching an XPath expression.
func (d *Document) QueryAll(expr string) ([]*html.Node, error) {
	nodes, err := htmlquery.QueryAll(d.root, expr)
	if err != nil {
		return nil, fmt.Errorf("invalid xpath %q: %w", expr, err)
	}
	return nodes, nil
}

// Forms returns the form elements in document order.
func (d *Document) Forms() []*html.Node { return d.byCategory[CategoryForm] }

// Meta returns every meta element.
func (d *Document) Meta() []Meta { return d.meta }

// MetaContent returns the content of meta elements whose name or http-equiv matches.
func (d *Document) MetaContent(name string) []string {
	var out []string
	for _, m := range d.meta {
		if strings.EqualFold(m.Name, name) || strings.EqualFold(m.HTTPEquiv, name) {
			out = append(out, m.Content)
		}
	}
	return out
}

// Frames returns the frame and iframe references in document order.
func (d *Document) Frames() []*FrameRef { return d.frames }

// IsFrameset reports whether the page is a frameset document.
func (d *Document) IsFrameset() bool {
	for _, f := range d.frames {
		if !f.IFrame {
			return true
		}
	}
	return false
}

// Refresh returns the pending refresh, or nil.
func (d *Document) Refresh() *Refresh { return d.refresh }

func firstElement(root *html.Node, tag string) *html.Node {
	var found *html.Node
	Walk(root, func(n *html.Node) bool {
		if found == nil && Tag(n) == tag {
			found = n
		}
		return found == nil
	})
	return found
}

// Meta is one meta element.
type Meta struct {
	Name      string
	HTTPEquiv string
	Content   string
}
