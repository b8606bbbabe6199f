// internal/browser/form/form.go
package form

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/xkilldash9x/pagewalk/internal/browser/dom"
	"github.com/xkilldash9x/pagewalk/internal/browser/request"
)

// Origin describes where the form was extracted from. Requests built from the
// form carry it so the conversation can resolve their target.
type Origin struct {
	// Frame is the selector of the frame holding the document.
	Frame string
	// Target is the target the document itself was loaded under; forms without
	// their own or a base target inherit it.
	Target string
}

// Form is the mutable control state of one form element. It belongs to the
// response it was extracted from and is never touched by later responses.
type Form struct {
	doc      *dom.Document
	node     *html.Node
	origin   Origin
	name     string
	id       string
	action   *url.URL
	method   string
	target   string
	enctype  request.Encoding
	charset  string
	controls []*Control
	onChange func(*Control) error
}

// New builds the form state for a form element of doc.
func New(doc *dom.Document, node *html.Node, origin Origin) (*Form, error) {
	if dom.Tag(node) != "form" {
		return nil, fmt.Errorf("element <%s> is not a form", dom.Tag(node))
	}
	f := &Form{
		doc:     doc,
		node:    node,
		origin:  origin,
		name:    dom.Attr(node, "name"),
		id:      dom.Attr(node, "id"),
		method:  http.MethodGet,
		target:  dom.Attr(node, "target"),
		enctype: request.EncodingForType(dom.Attr(node, "enctype")),
		charset: submissionCharset(dom.Attr(node, "accept-charset"), doc.Charset()),
	}
	if strings.EqualFold(strings.TrimSpace(dom.Attr(node, "method")), http.MethodPost) {
		f.method = http.MethodPost
	}

	f.action = doc.URL()
	if action := strings.TrimSpace(dom.Attr(node, "action")); action != "" {
		u, err := doc.Resolve(action)
		if err != nil {
			return nil, fmt.Errorf("invalid form action %q: %w", action, err)
		}
		f.action = u
	}

	f.collectControls()
	return f, nil
}

// All builds every form of doc in document order. Forms whose action cannot be
// parsed are skipped.
func All(doc *dom.Document, origin Origin) []*Form {
	var forms []*Form
	for _, n := range doc.Forms() {
		if f, err := New(doc, n, origin); err == nil {
			forms = append(forms, f)
		}
	}
	return forms
}

// submissionCharset picks the first accept-charset entry the encoder knows,
// falling back to the document charset.
func submissionCharset(accept, docCharset string) string {
	for _, name := range strings.FieldsFunc(accept, func(r rune) bool { return r == ' ' || r == ',' }) {
		if enc, err := htmlindex.Get(name); err == nil {
			if canonical, err := htmlindex.Name(enc); err == nil {
				return canonical
			}
		}
	}
	return docCharset
}

// collectControls gathers the controls owned by the form in document order,
// including those outside it that reference it with a form attribute.
func (f *Form) collectControls() {
	groups := map[string]*Control{}
	dom.Walk(f.doc.Root(), func(n *html.Node) bool {
		kind, ok := kindOf(n)
		if !ok || f.owner(n) != f.node {
			return true
		}
		c := newControl(n, kind)
		if key := groupKey(c); key != "" {
			if existing, ok := groups[key]; ok {
				existing.merge(c)
				return kind != KindSelectOne && kind != KindSelectMultiple
			}
			groups[key] = c
		}
		f.controls = append(f.controls, c)
		return kind != KindSelectOne && kind != KindSelectMultiple
	})
	for _, c := range f.controls {
		c.initDefaults()
	}
}

func (f *Form) owner(n *html.Node) *html.Node {
	if ref := dom.Attr(n, "form"); ref != "" {
		if owner := f.doc.ElementByID(ref); dom.Tag(owner) == "form" {
			return owner
		}
		return nil
	}
	return dom.Ancestor(n, "form")
}

func groupKey(c *Control) string {
	if c.name == "" {
		return ""
	}
	switch c.kind {
	case KindRadio:
		return "radio:" + c.name
	case KindSelectOne, KindSelectMultiple:
		return "select:" + c.name
	}
	return ""
}

func (f *Form) Document() *dom.Document { return f.doc }
func (f *Form) Node() *html.Node        { return f.node }
func (f *Form) Name() string            { return f.name }
func (f *Form) ID() string              { return f.id }
func (f *Form) Method() string          { return f.method }
func (f *Form) Enctype() request.Encoding {
	return f.enctype
}

// Action returns the resolved submission URL.
func (f *Form) Action() *url.URL {
	u := *f.action
	return &u
}

// Charset is the submission charset, "" when neither the form nor the document
// declares one.
func (f *Form) Charset() string { return f.charset }

// Target is the form's own target, else the base target, else the target the
// document was loaded under.
func (f *Form) Target() string {
	if f.target != "" {
		return f.target
	}
	if t := f.doc.BaseTarget(); t != "" {
		return t
	}
	return f.origin.Target
}

func (f *Form) Origin() Origin { return f.origin }

// OnSubmit returns the onsubmit handler source.
func (f *Form) OnSubmit() string { return dom.Attr(f.node, "onsubmit") }

// OnChange registers fn to run after every successful validated mutation.
func (f *Form) OnChange(fn func(*Control) error) { f.onChange = fn }

// Controls returns every control in declaration order.
func (f *Form) Controls() []*Control { return append([]*Control(nil), f.controls...) }

// ControlsNamed returns the controls sharing name.
func (f *Form) ControlsNamed(name string) []*Control {
	var out []*Control
	for _, c := range f.controls {
		if c.name == name {
			out = append(out, c)
		}
	}
	return out
}

// Control returns the first control named name, or nil.
func (f *Form) Control(name string) *Control {
	for _, c := range f.controls {
		if c.name == name {
			return c
		}
	}
	return nil
}

// ControlFor returns the control backed by node, or nil.
func (f *Form) ControlFor(node *html.Node) *Control {
	for _, c := range f.controls {
		for _, n := range c.nodes {
			if n == node {
				return c
			}
		}
	}
	return nil
}

// SubmitButtons returns the submit and image controls.
func (f *Form) SubmitButtons() []*Control {
	var out []*Control
	for _, c := range f.controls {
		if c.CanSubmit() {
			out = append(out, c)
		}
	}
	return out
}

// SubmitButton returns the submit control with the given name and, if value is
// not empty, that value.
func (f *Form) SubmitButton(name, value string) *Control {
	for _, c := range f.SubmitButtons() {
		if c.name == name && (value == "" || c.declared == value) {
			return c
		}
	}
	return nil
}

// ParameterNames lists the distinct names of non-button controls.
func (f *Form) ParameterNames() []string {
	seen := map[string]bool{}
	var names []string
	for _, c := range f.controls {
		if c.name == "" || c.IsButton() || seen[c.name] {
			continue
		}
		seen[c.name] = true
		names = append(names, c.name)
	}
	return names
}

// Values returns the current values held under name.
func (f *Form) Values(name string) []string {
	var out []string
	for _, c := range f.ControlsNamed(name) {
		out = append(out, c.values...)
	}
	return out
}

// Value returns the first current value of name, or "".
func (f *Form) Value(name string) string {
	if v := f.Values(name); len(v) > 0 {
		return v[0]
	}
	return ""
}

// Options returns the option labels available for name.
func (f *Form) Options(name string) []string {
	var out []string
	for _, c := range f.ControlsNamed(name) {
		for _, o := range c.options {
			out = append(out, o.Label)
		}
	}
	return out
}

// OptionValues returns the option values available for name.
func (f *Form) OptionValues(name string) []string {
	var out []string
	for _, c := range f.ControlsNamed(name) {
		out = append(out, c.OptionValues()...)
	}
	return out
}

// IsDisabled reports whether every control named name is disabled.
func (f *Form) IsDisabled(name string) bool {
	controls := f.ControlsNamed(name)
	for _, c := range controls {
		if !c.disabled {
			return false
		}
	}
	return len(controls) > 0
}

// IsReadOnly reports whether any control named name is read-only.
func (f *Form) IsReadOnly(name string) bool {
	for _, c := range f.ControlsNamed(name) {
		if c.readOnly {
			return true
		}
	}
	return false
}

// clone copies the control state so a request can be mutated without
// affecting the form.
func (f *Form) clone() *Form {
	cp := *f
	cp.controls = make([]*Control, len(f.controls))
	for i, c := range f.controls {
		cp.controls[i] = c.clone()
	}
	cp.onChange = nil
	return &cp
}

func (f *Form) indexOf(c *Control) int {
	for i, existing := range f.controls {
		if existing == c {
			return i
		}
	}
	return -1
}
