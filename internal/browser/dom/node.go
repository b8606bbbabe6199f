// internal/browser/dom/node.go
package dom

import (
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// Tag returns the lower-cased element name of n, or "" for non-elements.
// Parsers that preserve tag case still compare case-insensitively here.
func Tag(n *html.Node) string {
	if n == nil || n.Type != html.ElementNode {
		return ""
	}
	return strings.ToLower(n.Data)
}

// Attr returns the value of the named attribute, matching names case-insensitively.
func Attr(n *html.Node, name string) string {
	v, _ := LookupAttr(n, name)
	return v
}

// LookupAttr is Attr that also reports presence, so checked="" can be told from no checked.
func LookupAttr(n *html.Node, name string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val, true
		}
	}
	return "", false
}

// HasAttr reports whether the attribute is present.
func HasAttr(n *html.Node, name string) bool {
	_, ok := LookupAttr(n, name)
	return ok
}

// SetAttr sets or adds an attribute.
func SetAttr(n *html.Node, name, value string) {
	for i, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: value})
}

// RemoveAttr deletes an attribute if present.
func RemoveAttr(n *html.Node, name string) {
	for i, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

// Text returns the inner text of n with runs of whitespace collapsed to one space.
func Text(n *html.Node) string {
	if n == nil {
		return ""
	}
	return strings.Join(strings.Fields(htmlquery.InnerText(n)), " ")
}

// Ancestor returns the closest ancestor of n with the given tag, or nil.
func Ancestor(n *html.Node, tag string) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if Tag(p) == tag {
			return p
		}
	}
	return nil
}

// ElementPath builds an XPath expression that selects n. An ancestor with an id
// anchors the path, which keeps it short and stable.
func ElementPath(n *html.Node) string {
	var steps []string
	for cur := n; cur != nil && cur.Type != html.DocumentNode; cur = cur.Parent {
		tag := Tag(cur)
		if tag == "" {
			continue
		}
		if id := Attr(cur, "id"); id != "" {
			steps = append(steps, fmt.Sprintf(`//*[@id='%s']`, id))
			break
		}
		index := 1
		for prev := cur.PrevSibling; prev != nil; prev = prev.PrevSibling {
			if Tag(prev) == tag {
				index++
			}
		}
		steps = append(steps, fmt.Sprintf("%s[%d]", tag, index))
	}
	if len(steps) == 0 {
		return "/"
	}
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	path := strings.Join(steps, "/")
	if !strings.HasPrefix(path, "//") {
		path = "/" + path
	}
	return path
}

// Walk visits element nodes depth-first in document order. When visit returns
// false the children of that element are skipped.
func Walk(n *html.Node, visit func(*html.Node) bool) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && !visit(c) {
			continue
		}
		Walk(c, visit)
	}
}
