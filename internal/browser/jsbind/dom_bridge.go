// internal/browser/jsbind/dom_bridge.go
package jsbind

import (
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"github.com/dop251/goja"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/pagewalk/internal/browser/dom"
	"github.com/xkilldash9x/pagewalk/internal/browser/form"
)

// Page is the document exposed to scripts together with its live form state.
type Page struct {
	Document   *dom.Document
	Forms      []*form.Form
	WindowName string
	// Cookies returns the value read through document.cookie. Nil reads as "".
	Cookies func() string
}

// DOMBridge binds one page into a goja runtime. It is not safe for concurrent
// use; callers serialize access to the runtime.
type DOMBridge struct {
	vm     *goja.Runtime
	logger *zap.Logger
	page   Page

	window   *goja.Object
	document *goja.Object
	location *goja.Object

	// Identity map so the same node always yields the same JS object.
	wrapped   map[*html.Node]*Element
	listeners map[*html.Node]map[string][]goja.Callable
	intents   []Intent
}

// NewDOMBridge installs window, document and console into vm.
func NewDOMBridge(vm *goja.Runtime, logger *zap.Logger, page Page) *DOMBridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &DOMBridge{
		vm:        vm,
		logger:    logger.Named("dom_bridge"),
		page:      page,
		wrapped:   map[*html.Node]*Element{},
		listeners: map[*html.Node]map[string][]goja.Callable{},
	}
	b.initializeRuntime()
	return b
}

// Page returns the bound page.
func (b *DOMBridge) Page() Page { return b.page }

// TakeIntents returns the intents recorded since the last call and clears them.
func (b *DOMBridge) TakeIntents() []Intent {
	out := b.intents
	b.intents = nil
	return out
}

func (b *DOMBridge) emit(i Intent) {
	b.logger.Debug("Script requested action.", zap.Stringer("intent", i.Kind), zap.String("url", i.URL))
	b.intents = append(b.intents, i)
}

// initializeRuntime makes the global object the window, as in a browser.
func (b *DOMBridge) initializeRuntime() {
	b.window = b.vm.GlobalObject()
	b.document = b.newDocument()
	b.location = b.newLocation()

	b.set(b.window, "window", b.window)
	b.set(b.window, "self", b.window)
	b.set(b.window, "top", b.window)
	b.set(b.window, "document", b.document)
	b.set(b.window, "name", b.page.WindowName)
	b.set(b.window, "alert", b.alert)
	b.set(b.window, "confirm", b.confirm)
	b.set(b.window, "open", b.open)
	b.accessor(b.window, "location", func() goja.Value { return b.location }, b.assignLocation)
	b.accessor(b.document, "location", func() goja.Value { return b.location }, b.assignLocation)

	b.initConsole()
	b.initTimers()
}

func (b *DOMBridge) set(obj *goja.Object, name string, value interface{}) {
	if err := obj.Set(name, value); err != nil {
		b.logger.Error("Failed to set script property.", zap.String("property", name), zap.Error(err))
	}
}

// accessor defines a getter and optional setter property.
func (b *DOMBridge) accessor(obj *goja.Object, name string, get func() goja.Value, set func(goja.Value)) {
	getter := b.vm.ToValue(func(goja.FunctionCall) goja.Value { return get() })
	setter := goja.Undefined()
	if set != nil {
		setter = b.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			set(call.Argument(0))
			return goja.Undefined()
		})
	}
	if err := obj.DefineAccessorProperty(name, getter, setter, goja.FLAG_TRUE, goja.FLAG_TRUE); err != nil {
		b.logger.Error("Failed to define accessor.", zap.String("property", name), zap.Error(err))
	}
}

// throw converts a Go error into a JS exception.
func (b *DOMBridge) throw(err error) {
	if ex, ok := err.(*goja.Exception); ok {
		panic(ex.Value())
	}
	panic(b.vm.NewGoError(err))
}

// -- Window --

func (b *DOMBridge) alert(call goja.FunctionCall) goja.Value {
	b.logger.Info("[JS Alert]", zap.String("message", call.Argument(0).String()))
	return goja.Undefined()
}

func (b *DOMBridge) confirm(call goja.FunctionCall) goja.Value {
	b.logger.Info("[JS Confirm]", zap.String("message", call.Argument(0).String()))
	return b.vm.ToValue(true)
}

func (b *DOMBridge) open(call goja.FunctionCall) goja.Value {
	rawURL := ""
	if arg := call.Argument(0); !goja.IsUndefined(arg) && !goja.IsNull(arg) {
		rawURL = arg.String()
	}
	name := ""
	if arg := call.Argument(1); !goja.IsUndefined(arg) && !goja.IsNull(arg) {
		name = arg.String()
	}
	b.emit(Intent{Kind: IntentOpenWindow, URL: rawURL, Target: name})

	handle := b.vm.NewObject()
	b.set(handle, "name", name)
	b.set(handle, "closed", false)
	b.set(handle, "focus", func(goja.FunctionCall) goja.Value { return goja.Undefined() })
	b.set(handle, "close", func(goja.FunctionCall) goja.Value { return goja.Undefined() })
	return handle
}

// -- Location --

func (b *DOMBridge) href() string {
	if b.page.Document == nil || b.page.Document.URL() == nil {
		return "about:blank"
	}
	return b.page.Document.URL().String()
}

func (b *DOMBridge) newLocation() *goja.Object {
	loc := b.vm.NewObject()
	b.accessor(loc, "href", func() goja.Value { return b.vm.ToValue(b.href()) }, b.assignLocation)
	navigate := func(call goja.FunctionCall) goja.Value {
		b.assignLocation(call.Argument(0))
		return goja.Undefined()
	}
	b.set(loc, "assign", navigate)
	b.set(loc, "replace", navigate)
	b.set(loc, "reload", func(goja.FunctionCall) goja.Value {
		b.emit(Intent{Kind: IntentNavigate, URL: b.href()})
		return goja.Undefined()
	})
	b.set(loc, "toString", func(goja.FunctionCall) goja.Value { return b.vm.ToValue(b.href()) })
	return loc
}

func (b *DOMBridge) assignLocation(v goja.Value) {
	b.emit(Intent{Kind: IntentNavigate, URL: v.String()})
}

// -- Document --

func (b *DOMBridge) newDocument() *goja.Object {
	d := b.vm.NewObject()
	doc := b.page.Document

	b.set(d, "getElementById", func(call goja.FunctionCall) goja.Value {
		if doc == nil {
			return goja.Null()
		}
		return b.Wrap(doc.ElementByID(call.Argument(0).String()))
	})
	b.set(d, "getElementsByName", func(call goja.FunctionCall) goja.Value {
		if doc == nil {
			return b.vm.NewArray()
		}
		return b.WrapNodeList(doc.ElementsByName(call.Argument(0).String()))
	})
	b.set(d, "getElementsByTagName", func(call goja.FunctionCall) goja.Value {
		return b.WrapNodeList(b.byTag(b.root(), call.Argument(0).String()))
	})
	b.set(d, "querySelector", func(call goja.FunctionCall) goja.Value {
		return b.querySelector(b.root(), call.Argument(0).String())
	})
	b.set(d, "querySelectorAll", func(call goja.FunctionCall) goja.Value {
		return b.querySelectorAll(b.root(), call.Argument(0).String())
	})
	b.set(d, "write", func(call goja.FunctionCall) goja.Value {
		b.logger.Debug("Ignoring document.write.", zap.String("markup", call.Argument(0).String()))
		return goja.Undefined()
	})

	b.accessor(d, "forms", b.forms, nil)
	b.accessor(d, "links", func() goja.Value {
		if doc == nil {
			return b.vm.NewArray()
		}
		nodes := make([]*html.Node, 0, len(doc.Links()))
		for _, l := range doc.Links() {
			nodes = append(nodes, l.Node)
		}
		return b.WrapNodeList(nodes)
	}, nil)
	b.accessor(d, "title", func() goja.Value {
		if doc == nil {
			return b.vm.ToValue("")
		}
		return b.vm.ToValue(doc.Title())
	}, nil)
	b.accessor(d, "URL", func() goja.Value { return b.vm.ToValue(b.href()) }, nil)
	b.accessor(d, "body", func() goja.Value {
		if nodes := b.byTag(b.root(), "body"); len(nodes) > 0 {
			return b.Wrap(nodes[0])
		}
		return goja.Null()
	}, nil)
	b.accessor(d, "cookie", func() goja.Value {
		if b.page.Cookies == nil {
			return b.vm.ToValue("")
		}
		return b.vm.ToValue(b.page.Cookies())
	}, nil)
	return d
}

func (b *DOMBridge) root() *html.Node {
	if b.page.Document == nil {
		return nil
	}
	return b.page.Document.Root()
}

func (b *DOMBridge) forms() goja.Value {
	items := make([]interface{}, len(b.page.Forms))
	for i, f := range b.page.Forms {
		items[i] = b.Wrap(f.Node())
	}
	arr := b.vm.NewArray(items...)
	for i, f := range b.page.Forms {
		for _, key := range []string{f.Name(), f.ID()} {
			if key != "" && !defined(arr, key) {
				b.set(arr, key, items[i])
			}
		}
	}
	return arr
}

func (b *DOMBridge) byTag(root *html.Node, tag string) []*html.Node {
	if root == nil {
		return nil
	}
	tag = strings.ToLower(tag)
	var out []*html.Node
	dom.Walk(root, func(n *html.Node) bool {
		if tag == "*" || dom.Tag(n) == tag {
			out = append(out, n)
		}
		return true
	})
	return out
}

func (b *DOMBridge) querySelector(root *html.Node, selector string) goja.Value {
	if root == nil {
		return goja.Null()
	}
	node, err := htmlquery.Query(root, translateCSSToXPath(selector))
	if err != nil {
		b.throw(fmt.Errorf("invalid selector: %s", selector))
	}
	return b.Wrap(node)
}

func (b *DOMBridge) querySelectorAll(root *html.Node, selector string) goja.Value {
	if root == nil {
		return b.vm.NewArray()
	}
	nodes, err := htmlquery.QueryAll(root, translateCSSToXPath(selector))
	if err != nil {
		b.throw(fmt.Errorf("invalid selector: %s", selector))
	}
	return b.WrapNodeList(nodes)
}

// controlFor finds the form control backed by node.
func (b *DOMBridge) controlFor(node *html.Node) (*form.Form, *form.Control) {
	for _, f := range b.page.Forms {
		if c := f.ControlFor(node); c != nil {
			return f, c
		}
	}
	return nil, nil
}

func (b *DOMBridge) formFor(node *html.Node) *form.Form {
	for _, f := range b.page.Forms {
		if f.Node() == node {
			return f
		}
	}
	return nil
}

// -- Events --

// RunHandler runs the on<event> attribute of node and then the listeners added
// with addEventListener. It returns false when a handler returned false or
// called preventDefault.
func (b *DOMBridge) RunHandler(node *html.Node, event string) (bool, error) {
	this := b.Wrap(node)
	prevented := false
	evt := b.vm.NewObject()
	b.set(evt, "type", event)
	b.set(evt, "target", this)
	b.set(evt, "preventDefault", func(goja.FunctionCall) goja.Value {
		prevented = true
		return goja.Undefined()
	})

	if src := strings.TrimSpace(dom.Attr(node, "on"+event)); src != "" {
		fnVal, err := b.vm.RunString("(function(event) {\n" + src + "\n})")
		if err != nil {
			return true, err
		}
		fn, ok := goja.AssertFunction(fnVal)
		if !ok {
			return true, fmt.Errorf("on%s handler did not compile to a function", event)
		}
		result, err := fn(this, evt)
		if err != nil {
			return true, err
		}
		if result != nil && result.StrictEquals(b.vm.ToValue(false)) {
			prevented = true
		}
	}
	for _, listener := range b.listeners[node][event] {
		if _, err := listener(this, evt); err != nil {
			return true, err
		}
	}
	return !prevented, nil
}

func (b *DOMBridge) addListener(node *html.Node, event string, fn goja.Callable) {
	if b.listeners[node] == nil {
		b.listeners[node] = map[string][]goja.Callable{}
	}
	b.listeners[node][event] = append(b.listeners[node][event], fn)
}
