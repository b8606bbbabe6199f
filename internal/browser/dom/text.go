// internal/browser/dom/text.go
package dom

import (
	"strings"

	"golang.org/x/net/html"
)

// TextBlock is a paragraph, heading, list item or other block of prose.
type TextBlock struct {
	Node  *html.Node
	Tag   string
	Text  string
	Class string
	ID    string
	// Label is the text of the closest preceding heading, "" if none.
	Label string
}

func isTextBlockTag(tag string) bool {
	switch tag {
	case "p", "h1", "h2", "h3", "h4", "h5", "h6", "li", "pre", "blockquote", "dt", "dd", "caption":
		return true
	}
	return false
}

func newTextBlock(n *html.Node, label string) *TextBlock {
	return &TextBlock{
		Node:  n,
		Tag:   Tag(n),
		Text:  Text(n),
		Class: Attr(n, "class"),
		ID:    Attr(n, "id"),
		Label: label,
	}
}

// Heading reports whether the block is an h1-h6 element.
func (b *TextBlock) Heading() bool {
	return len(b.Tag) == 2 && b.Tag[0] == 'h' && b.Tag[1] >= '1' && b.Tag[1] <= '6'
}

// TextBlocks returns the text blocks in document order.
func (d *Document) TextBlocks() []*TextBlock { return d.textBlocks }

// TextBlockStartingWith returns the first block whose text starts with prefix.
func (d *Document) TextBlockStartingWith(prefix string) *TextBlock {
	for _, b := range d.textBlocks {
		if strings.HasPrefix(b.Text, prefix) {
			return b
		}
	}
	return nil
}

// TextBlocksLabelled returns the blocks that follow the heading with the given text.
func (d *Document) TextBlocksLabelled(label string) []*TextBlock {
	var out []*TextBlock
	for _, b := range d.textBlocks {
		if b.Label == label && !b.Heading() {
			out = append(out, b)
		}
	}
	return out
}
