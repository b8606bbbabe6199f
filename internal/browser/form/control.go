// internal/browser/form/control.go
package form

import (
	"slices"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/pagewalk/internal/browser/dom"
	"github.com/xkilldash9x/pagewalk/internal/browser/request"
)

// Option is one choice of a select, or one member of a radio group.
type Option struct {
	Value    string
	Label    string
	Selected bool
	Disabled bool
	Node     *html.Node
}

// Control is one logical form control. Radio buttons sharing a name form a
// single group control, as do selects sharing a name.
type Control struct {
	name     string
	kind     Kind
	nodes    []*html.Node
	id       string
	declared string
	options  []Option
	defaults []string
	values   []string
	files    []*request.File

	multipleFiles bool
	disabled      bool
	readOnly      bool
}

func newControl(n *html.Node, kind Kind) *Control {
	c := &Control{
		name:     dom.Attr(n, "name"),
		kind:     kind,
		nodes:    []*html.Node{n},
		id:       dom.Attr(n, "id"),
		disabled: dom.HasAttr(n, "disabled") || inDisabledFieldset(n),
		readOnly: dom.HasAttr(n, "readonly"),
	}
	switch kind {
	case KindCheckbox:
		c.declared = valueOr(n, "on")
		if dom.HasAttr(n, "checked") {
			c.defaults = []string{c.declared}
		}
	case KindRadio:
		v := valueOr(n, "on")
		c.options = []Option{{Value: v, Label: v, Selected: dom.HasAttr(n, "checked"), Disabled: c.disabled, Node: n}}
	case KindSelectOne, KindSelectMultiple:
		c.options = selectOptions(n, c.disabled)
	case KindTextArea:
		c.defaults = []string{htmlquery.InnerText(n)}
	case KindFile:
		c.multipleFiles = dom.HasAttr(n, "multiple")
	case KindSubmit, KindImage, KindButton, KindReset:
		c.declared = dom.Attr(n, "value")
	default:
		c.defaults = []string{dom.Attr(n, "value")}
	}
	return c
}

func valueOr(n *html.Node, fallback string) string {
	if v, ok := dom.LookupAttr(n, "value"); ok {
		return v
	}
	return fallback
}

func selectOptions(sel *html.Node, disabled bool) []Option {
	var opts []Option
	dom.Walk(sel, func(n *html.Node) bool {
		if dom.Tag(n) != "option" {
			return true
		}
		label := dom.Text(n)
		opts = append(opts, Option{
			Value:    valueOr(n, label),
			Label:    label,
			Selected: dom.HasAttr(n, "selected"),
			Disabled: disabled || dom.HasAttr(n, "disabled") || dom.HasAttr(n.Parent, "disabled"),
			Node:     n,
		})
		return false
	})
	return opts
}

// inDisabledFieldset reports whether n sits in a disabled fieldset outside its
// first legend.
func inDisabledFieldset(n *html.Node) bool {
	for child, p := n, n.Parent; p != nil; child, p = p, p.Parent {
		if dom.Tag(p) != "fieldset" || !dom.HasAttr(p, "disabled") {
			continue
		}
		if dom.Tag(child) == "legend" && firstLegend(p) == child {
			continue
		}
		return true
	}
	return false
}

func firstLegend(fieldset *html.Node) *html.Node {
	for c := fieldset.FirstChild; c != nil; c = c.NextSibling {
		if dom.Tag(c) == "legend" {
			return c
		}
	}
	return nil
}

// merge folds a same-named radio or select into c.
func (c *Control) merge(other *Control) {
	c.nodes = append(c.nodes, other.nodes...)
	c.options = append(c.options, other.options...)
	c.readOnly = c.readOnly || other.readOnly
	c.disabled = c.disabled && other.disabled
	if c.kind == KindSelectOne {
		c.kind = KindSelectMultiple
	}
}

// initDefaults computes the default selection of option-based controls and
// resets the current values to the defaults.
func (c *Control) initDefaults() {
	switch c.kind {
	case KindRadio:
		c.defaults = nil
		for _, o := range c.options {
			if o.Selected {
				c.defaults = []string{o.Value}
			}
		}
	case KindSelectOne:
		c.defaults = nil
		for _, o := range c.options {
			if o.Selected {
				c.defaults = []string{o.Value}
				break
			}
		}
		if c.defaults == nil && len(c.options) > 0 {
			c.defaults = []string{c.options[0].Value}
		}
	case KindSelectMultiple:
		c.defaults = nil
		for _, o := range c.options {
			if o.Selected {
				c.defaults = append(c.defaults, o.Value)
			}
		}
	}
	c.reset()
}

func (c *Control) reset() {
	c.values = slices.Clone(c.defaults)
	c.files = nil
}

func (c *Control) Name() string { return c.name }
func (c *Control) Kind() Kind   { return c.kind }
func (c *Control) ID() string   { return c.id }

// Node returns the first element backing the control.
func (c *Control) Node() *html.Node { return c.nodes[0] }

// Nodes returns every element backing the control.
func (c *Control) Nodes() []*html.Node { return slices.Clone(c.nodes) }

// Value returns the first current value, or "".
func (c *Control) Value() string {
	if len(c.values) == 0 {
		return ""
	}
	return c.values[0]
}

func (c *Control) Values() []string   { return slices.Clone(c.values) }
func (c *Control) Defaults() []string { return slices.Clone(c.defaults) }
func (c *Control) Options() []Option  { return slices.Clone(c.options) }

// OptionValues returns the valid set of a radio group or select.
func (c *Control) OptionValues() []string {
	out := make([]string, len(c.options))
	for i, o := range c.options {
		out[i] = o.Value
	}
	return out
}

// DeclaredValue is the value attribute of a checkbox or button.
func (c *Control) DeclaredValue() string { return c.declared }

func (c *Control) Files() []*request.File { return slices.Clone(c.files) }

// Checked reports whether a checkbox is checked or a radio group has a selection.
func (c *Control) Checked() bool { return len(c.values) > 0 }

func (c *Control) IsDisabled() bool { return c.disabled }
func (c *Control) IsReadOnly() bool { return c.readOnly }

// Locked reports whether validated mutation is refused.
func (c *Control) Locked() bool { return c.disabled || c.readOnly }

// IsButton reports whether the control only contributes when used to submit.
func (c *Control) IsButton() bool { return rules[c.kind].button }

// CanSubmit reports whether the control submits the form when clicked.
func (c *Control) CanSubmit() bool { return c.kind == KindSubmit || c.kind == KindImage }

// OptionFor returns the option backed by node, or nil.
func (c *Control) OptionFor(node *html.Node) *Option {
	for i := range c.options {
		if c.options[i].Node == node {
			return &c.options[i]
		}
	}
	return nil
}

// check applies the kind's rule to a complete set of values.
func (c *Control) check(values []string) error {
	r := rules[c.kind]
	if len(values) > 1 && !r.multiple {
		return paramError(c.name, values[1], ErrMultipleValues)
	}
	for _, v := range values {
		if !r.accepts(c, v) {
			return paramError(c.name, v, ErrIllegalValue)
		}
	}
	return nil
}

// normalize fills in the implicit empty value of textual controls.
func (c *Control) normalize(values []string) []string {
	if rules[c.kind].textual && len(values) == 0 {
		return []string{""}
	}
	return slices.Clone(values)
}

// absorb takes the values c can hold from remaining, returning what it took
// and what is left for the next same-named control.
func (c *Control) absorb(remaining []string) (taken, rest []string) {
	r := rules[c.kind]
	for _, v := range remaining {
		if r.accepts(c, v) && (r.multiple || len(taken) == 0) {
			taken = append(taken, v)
			continue
		}
		rest = append(rest, v)
	}
	return c.normalize(taken), rest
}

func (c *Control) clone() *Control {
	cp := *c
	cp.values = slices.Clone(c.values)
	cp.files = slices.Clone(c.files)
	cp.options = slices.Clone(c.options)
	return &cp
}
