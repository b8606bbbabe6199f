// internal/browser/dom/parser.go
package dom

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/url"
	"strings"

	"github.com/beevik/etree"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/xkilldash9x/pagewalk/internal/config"
)

// Parser turns a UTF-8 byte stream into an element tree. Implementations
// advertise their capabilities so callers can query them before parsing.
type Parser interface {
	Parse(r io.Reader, base *url.URL) (*html.Node, error)
	// PreservesTagCase reports whether element names keep their source case.
	PreservesTagCase() bool
	// TypedDocument reports whether the parser produces a typed (XML) document
	// rather than an HTML one.
	TypedDocument() bool
}

// HTMLParser parses with the HTML5 tree builder of golang.org/x/net/html.
type HTMLParser struct{}

func (HTMLParser) Parse(r io.Reader, _ *url.URL) (*html.Node, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("html parse: %w", err)
	}
	return root, nil
}

func (HTMLParser) PreservesTagCase() bool { return false }
func (HTMLParser) TypedDocument() bool    { return false }

// XMLParser parses well-formed XML or XHTML with etree and converts the result
// into the same node type the HTML parser produces.
type XMLParser struct{}

func (XMLParser) PreservesTagCase() bool { return true }
func (XMLParser) TypedDocument() bool    { return true }

func (XMLParser) Parse(r io.Reader, _ *url.URL) (*html.Node, error) {
	doc := etree.NewDocument()
	// The body has already been decoded to UTF-8.
	doc.ReadSettings.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}
	if _, err := doc.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("xml parse: %w", err)
	}
	root := &html.Node{Type: html.DocumentNode}
	convertTokens(root, doc.Child)
	return root, nil
}

func convertTokens(parent *html.Node, tokens []etree.Token) {
	for _, tok := range tokens {
		switch t := tok.(type) {
		case *etree.Element:
			n := &html.Node{Type: html.ElementNode, Data: t.Tag}
			for _, a := range t.Attr {
				n.Attr = append(n.Attr, html.Attribute{Namespace: a.Space, Key: a.Key, Val: a.Value})
			}
			parent.AppendChild(n)
			convertTokens(n, t.Child)
		case *etree.CharData:
			parent.AppendChild(&html.Node{Type: html.TextNode, Data: t.Data})
		case *etree.Comment:
			parent.AppendChild(&html.Node{Type: html.CommentNode, Data: t.Data})
		}
	}
}

// ParserProvider selects the parser for a response. It is configured per
// conversation; there is no process-wide registry.
type ParserProvider struct {
	Default Parser
	// ByMediaType overrides Default for specific media types.
	ByMediaType map[string]Parser
}

// NewParserProvider builds a provider from the parser config section.
func NewParserProvider(cfg config.ParserConfig) *ParserProvider {
	p := &ParserProvider{Default: HTMLParser{}, ByMediaType: map[string]Parser{}}
	if strings.EqualFold(cfg.Default, "xml") {
		p.Default = XMLParser{}
	}
	for _, mt := range cfg.XMLContentTypes {
		p.ByMediaType[strings.ToLower(strings.TrimSpace(mt))] = XMLParser{}
	}
	return p
}

// ParserFor returns the parser for a Content-Type header value.
func (p *ParserProvider) ParserFor(contentType string) Parser {
	if p == nil {
		return HTMLParser{}
	}
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		if parser, ok := p.ByMediaType[strings.ToLower(mediaType)]; ok {
			return parser
		}
	}
	if p.Default == nil {
		return HTMLParser{}
	}
	return p.Default
}

// Decode converts body to UTF-8. The charset comes from a byte order mark, the
// Content-Type header or a meta declaration; when none is found defaultCharset
// is used. It returns the decoded bytes and the canonical charset name.
func Decode(body []byte, contentType, defaultCharset string) ([]byte, string, error) {
	enc, name, certain := charset.DetermineEncoding(body, contentType)
	if !certain && name == "windows-1252" && defaultCharset != "" {
		if fallback, err := htmlindex.Get(defaultCharset); err == nil {
			enc = fallback
			name, _ = htmlindex.Name(fallback)
		}
	}
	if name == "utf-8" {
		return bytes.TrimPrefix(body, []byte("\xef\xbb\xbf")), name, nil
	}
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return nil, name, fmt.Errorf("decode %s body: %w", name, err)
	}
	return decoded, name, nil
}
