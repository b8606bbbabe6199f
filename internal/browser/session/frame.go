// internal/browser/session/frame.go
package session

import (
	"strconv"
	"strings"
)

// Selector identifies a frame by its position: the window id followed by the
// index path through nested framesets, e.g. "<window id>/1/0". Names are a
// secondary lookup since they need not be unique.
type Selector string

func (s Selector) child(i int) Selector {
	return s + "/" + Selector(strconv.Itoa(i))
}

// WindowID returns the window part of the selector.
func (s Selector) WindowID() string {
	id, _, _ := strings.Cut(string(s), "/")
	return id
}

// Depth is the number of frameset levels below the window root.
func (s Selector) Depth() int {
	return strings.Count(string(s), "/")
}

// Frame is one slot of a window's frame tree. It holds the response most
// recently loaded into it.
type Frame struct {
	selector Selector
	name     string
	window   *Window
	parent   *Frame
	children []*Frame
	response *Response
}

func (f *Frame) Selector() Selector { return f.selector }
func (f *Frame) Name() string       { return f.name }
func (f *Frame) Window() *Window    { return f.window }

// Parent returns the containing frame, or nil for the window root.
func (f *Frame) Parent() *Frame { return f.parent }

// Children returns the frames declared by the current response.
func (f *Frame) Children() []*Frame { return append([]*Frame(nil), f.children...) }

// Response returns the content currently displayed, or nil before the first load.
func (f *Frame) Response() *Response { return f.response }

// IsTop reports whether f is the window root.
func (f *Frame) IsTop() bool { return f.parent == nil }

// walk visits f and its descendants depth first until fn returns false.
func (f *Frame) walk(fn func(*Frame) bool) bool {
	if !fn(f) {
		return false
	}
	for _, c := range f.children {
		if !c.walk(fn) {
			return false
		}
	}
	return true
}

// reset discards the subframes of the previous content.
func (f *Frame) reset(names []string) []*Frame {
	f.children = make([]*Frame, len(names))
	for i, name := range names {
		f.children[i] = &Frame{
			selector: f.selector.child(i),
			name:     name,
			window:   f.window,
			parent:   f,
		}
	}
	return f.children
}

// displayTarget is the target name links and forms of f's content inherit.
func (f *Frame) displayTarget() string {
	switch {
	case f.name != "":
		return f.name
	case f.parent != nil:
		return TargetSelf
	}
	return ""
}
