// internal/browser/jsbind/element.go
package jsbind

import (
	"strings"

	"github.com/dop251/goja"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/pagewalk/internal/browser/dom"
	"github.com/xkilldash9x/pagewalk/internal/browser/form"
)

// Element is the script view of one element.
type Element struct {
	bridge *DOMBridge
	Node   *html.Node
	Object *goja.Object
}

// WrapNodeList converts nodes into a JS array.
func (b *DOMBridge) WrapNodeList(nodes []*html.Node) goja.Value {
	items := make([]interface{}, len(nodes))
	for i, n := range nodes {
		items[i] = b.Wrap(n)
	}
	return b.vm.NewArray(items...)
}

// Wrap returns the JS object for node, creating it on first use.
func (b *DOMBridge) Wrap(node *html.Node) goja.Value {
	if node == nil {
		return goja.Null()
	}
	if e, ok := b.wrapped[node]; ok {
		return e.Object
	}
	e := &Element{bridge: b, Node: node, Object: b.vm.NewObject()}
	b.wrapped[node] = e
	e.define()
	return e.Object
}

func (e *Element) define() {
	b, n := e.bridge, e.Node
	tag := dom.Tag(n)

	b.set(e.Object, "nodeType", 1)
	b.set(e.Object, "tagName", strings.ToUpper(tag))
	b.set(e.Object, "nodeName", strings.ToUpper(tag))
	b.accessor(e.Object, "id", func() goja.Value { return b.vm.ToValue(dom.Attr(n, "id")) }, nil)
	b.accessor(e.Object, "name", func() goja.Value { return b.vm.ToValue(dom.Attr(n, "name")) }, nil)
	b.accessor(e.Object, "className", func() goja.Value { return b.vm.ToValue(dom.Attr(n, "class")) }, nil)
	b.accessor(e.Object, "textContent", func() goja.Value { return b.vm.ToValue(dom.Text(n)) }, nil)
	b.accessor(e.Object, "innerText", func() goja.Value { return b.vm.ToValue(dom.Text(n)) }, nil)
	b.accessor(e.Object, "parentNode", func() goja.Value { return b.parentElement(n) }, nil)

	b.set(e.Object, "getAttribute", e.getAttribute)
	b.set(e.Object, "hasAttribute", func(call goja.FunctionCall) goja.Value {
		return b.vm.ToValue(dom.HasAttr(n, call.Argument(0).String()))
	})
	b.set(e.Object, "setAttribute", e.setAttribute)
	b.set(e.Object, "removeAttribute", e.removeAttribute)
	b.set(e.Object, "getElementsByTagName", func(call goja.FunctionCall) goja.Value {
		return b.WrapNodeList(b.byTag(n, call.Argument(0).String()))
	})
	b.set(e.Object, "querySelector", func(call goja.FunctionCall) goja.Value {
		return b.querySelector(n, "."+translateCSSToXPath(call.Argument(0).String()))
	})
	b.set(e.Object, "querySelectorAll", func(call goja.FunctionCall) goja.Value {
		return b.querySelectorAll(n, "."+translateCSSToXPath(call.Argument(0).String()))
	})
	b.set(e.Object, "addEventListener", func(call goja.FunctionCall) goja.Value {
		if fn, ok := goja.AssertFunction(call.Argument(1)); ok {
			b.addListener(n, call.Argument(0).String(), fn)
		}
		return goja.Undefined()
	})
	b.set(e.Object, "removeEventListener", func(goja.FunctionCall) goja.Value { return goja.Undefined() })
	b.set(e.Object, "focus", func(goja.FunctionCall) goja.Value { return goja.Undefined() })
	b.set(e.Object, "blur", func(goja.FunctionCall) goja.Value { return goja.Undefined() })
	b.set(e.Object, "click", e.click)

	switch tag {
	case "a", "area":
		b.accessor(e.Object, "href", func() goja.Value {
			if l := b.page.Document.LinkFor(n); l != nil && l.URL != nil {
				return b.vm.ToValue(l.URL.String())
			}
			return b.vm.ToValue(dom.Attr(n, "href"))
		}, nil)
		b.accessor(e.Object, "target", func() goja.Value { return b.vm.ToValue(dom.Attr(n, "target")) }, nil)
	case "form":
		if f := b.formFor(n); f != nil {
			e.defineForm(f)
		}
	}
	if f, c := b.controlFor(n); c != nil {
		e.defineControl(f, c)
	}
}

func (b *DOMBridge) parentElement(n *html.Node) goja.Value {
	if n.Parent == nil || n.Parent.Type != html.ElementNode {
		return goja.Null()
	}
	return b.Wrap(n.Parent)
}

func (e *Element) getAttribute(call goja.FunctionCall) goja.Value {
	if v, ok := dom.LookupAttr(e.Node, call.Argument(0).String()); ok {
		return e.bridge.vm.ToValue(v)
	}
	return goja.Null()
}

// setAttribute routes disabled and readonly to the control state.
func (e *Element) setAttribute(call goja.FunctionCall) goja.Value {
	name := strings.ToLower(call.Argument(0).String())
	value := call.Argument(1).String()
	if f, c := e.bridge.controlFor(e.Node); c != nil {
		switch name {
		case "disabled":
			f.ScriptAccess().SetDisabled(c, true)
			return goja.Undefined()
		case "readonly":
			f.ScriptAccess().SetReadOnly(c, true)
			return goja.Undefined()
		}
	}
	dom.SetAttr(e.Node, name, value)
	return goja.Undefined()
}

func (e *Element) removeAttribute(call goja.FunctionCall) goja.Value {
	name := strings.ToLower(call.Argument(0).String())
	if f, c := e.bridge.controlFor(e.Node); c != nil {
		switch name {
		case "disabled":
			f.ScriptAccess().SetDisabled(c, false)
			return goja.Undefined()
		case "readonly":
			f.ScriptAccess().SetReadOnly(c, false)
			return goja.Undefined()
		}
	}
	dom.RemoveAttr(e.Node, name)
	return goja.Undefined()
}

// click runs the onclick handlers and, unless cancelled, the default action.
func (e *Element) click(goja.FunctionCall) goja.Value {
	b := e.bridge
	proceed, err := b.RunHandler(e.Node, "click")
	if err != nil {
		b.throw(err)
	}
	if !proceed {
		return goja.Undefined()
	}

	if tag := dom.Tag(e.Node); (tag == "a" || tag == "area") && dom.HasAttr(e.Node, "href") {
		b.emit(Intent{Kind: IntentFollowLink, Link: e.Node})
		return goja.Undefined()
	}
	f, c := b.controlFor(e.Node)
	if c == nil {
		return goja.Undefined()
	}
	script := f.ScriptAccess()
	switch c.Kind() {
	case form.KindSubmit, form.KindImage:
		if !c.IsDisabled() {
			b.emit(Intent{Kind: IntentSubmit, Form: f, Submitter: c})
		}
	case form.KindReset:
		script.Reset()
	case form.KindCheckbox:
		script.SetChecked(c, e.Node, !c.Checked())
	case form.KindRadio:
		script.SetChecked(c, e.Node, true)
	}
	return goja.Undefined()
}

// defineForm adds the HTMLFormElement surface.
func (e *Element) defineForm(f *form.Form) {
	b := e.bridge
	b.set(e.Object, "submit", func(goja.FunctionCall) goja.Value {
		b.emit(Intent{Kind: IntentSubmit, Form: f, SkipHandlers: true})
		return goja.Undefined()
	})
	b.set(e.Object, "reset", func(goja.FunctionCall) goja.Value {
		f.ScriptAccess().Reset()
		return goja.Undefined()
	})
	b.accessor(e.Object, "action", func() goja.Value { return b.vm.ToValue(f.Action().String()) }, nil)
	b.accessor(e.Object, "method", func() goja.Value { return b.vm.ToValue(strings.ToLower(f.Method())) }, nil)
	b.accessor(e.Object, "target", func() goja.Value { return b.vm.ToValue(f.Target()) }, nil)

	var nodes []*html.Node
	for _, c := range f.Controls() {
		nodes = append(nodes, c.Nodes()...)
	}
	b.accessor(e.Object, "elements", func() goja.Value { return b.WrapNodeList(nodes) }, nil)
	b.set(e.Object, "length", len(nodes))

	// Named access: form.q resolves to the control named q unless that
	// would shadow a built-in member.
	for _, c := range f.Controls() {
		name := c.Name()
		if name == "" || defined(e.Object, name) {
			continue
		}
		node := c.Node()
		b.accessor(e.Object, name, func() goja.Value { return b.Wrap(node) }, nil)
	}
}

// defineControl adds value, checked, disabled and readOnly backed by the form state.
func (e *Element) defineControl(f *form.Form, c *form.Control) {
	b, n := e.bridge, e.Node
	script := f.ScriptAccess()

	b.accessor(e.Object, "type", func() goja.Value { return b.vm.ToValue(c.Kind().String()) }, nil)
	b.accessor(e.Object, "form", func() goja.Value { return b.Wrap(f.Node()) }, nil)
	b.accessor(e.Object, "defaultValue", func() goja.Value {
		if d := c.Defaults(); len(d) > 0 {
			return b.vm.ToValue(d[0])
		}
		return b.vm.ToValue("")
	}, nil)

	b.accessor(e.Object, "value", func() goja.Value {
		return b.vm.ToValue(controlValue(c, n))
	}, func(v goja.Value) {
		if err := script.SetValues(c, v.String()); err != nil {
			b.logger.Debug("Script value rejected.", zap.String("name", c.Name()), zap.Error(err))
		}
	})
	b.accessor(e.Object, "checked", func() goja.Value {
		switch c.Kind() {
		case form.KindCheckbox:
			return b.vm.ToValue(c.Checked())
		case form.KindRadio:
			opt := c.OptionFor(n)
			return b.vm.ToValue(opt != nil && c.Value() == opt.Value && c.Checked())
		}
		return b.vm.ToValue(false)
	}, func(v goja.Value) {
		script.SetChecked(c, n, v.ToBoolean())
	})
	b.accessor(e.Object, "disabled", func() goja.Value {
		if opt := c.OptionFor(n); opt != nil && c.Kind() == form.KindRadio {
			return b.vm.ToValue(opt.Disabled)
		}
		return b.vm.ToValue(c.IsDisabled())
	}, func(v goja.Value) {
		script.SetDisabled(c, v.ToBoolean())
	})
	b.accessor(e.Object, "readOnly", func() goja.Value {
		return b.vm.ToValue(c.IsReadOnly())
	}, func(v goja.Value) {
		script.SetReadOnly(c, v.ToBoolean())
	})

	if c.Kind() == form.KindSelectOne || c.Kind() == form.KindSelectMultiple {
		b.accessor(e.Object, "selectedIndex", func() goja.Value {
			current := c.Value()
			for i, v := range c.OptionValues() {
				if v == current && c.Checked() {
					return b.vm.ToValue(i)
				}
			}
			return b.vm.ToValue(-1)
		}, func(v goja.Value) {
			values := c.OptionValues()
			i := int(v.ToInteger())
			if i < 0 || i >= len(values) {
				_ = script.SetValues(c)
				return
			}
			_ = script.SetValues(c, values[i])
		})
		b.accessor(e.Object, "options", func() goja.Value {
			var nodes []*html.Node
			for _, o := range c.Options() {
				nodes = append(nodes, o.Node)
			}
			return b.WrapNodeList(nodes)
		}, nil)
	}
}

// controlValue is what element.value reads for node.
func controlValue(c *form.Control, n *html.Node) string {
	switch c.Kind() {
	case form.KindCheckbox, form.KindSubmit, form.KindImage, form.KindButton, form.KindReset:
		return c.DeclaredValue()
	case form.KindRadio:
		if opt := c.OptionFor(n); opt != nil {
			return opt.Value
		}
		return ""
	case form.KindFile:
		if files := c.Files(); len(files) > 0 && files[0] != nil {
			return files[0].Name
		}
		return ""
	}
	return c.Value()
}

// defined reports whether obj already has a value for name.
func defined(obj *goja.Object, name string) bool {
	v := obj.Get(name)
	return v != nil && !goja.IsUndefined(v)
}
