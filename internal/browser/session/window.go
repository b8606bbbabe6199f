// internal/browser/session/window.go
package session

import (
	"github.com/google/uuid"
)

// Window is a top-level browsing unit. Its name may be empty.
type Window struct {
	id     string
	conv   *Conversation
	root   *Frame
	closed bool
}

func newWindow(conv *Conversation, name string) *Window {
	w := &Window{id: uuid.NewString(), conv: conv}
	w.root = &Frame{selector: Selector(w.id), name: name, window: w}
	return w
}

// ID is the unique id that prefixes every frame selector of the window.
func (w *Window) ID() string { return w.id }

// Name returns the window name.
func (w *Window) Name() string { return w.root.name }

// Root returns the top frame.
func (w *Window) Root() *Frame { return w.root }

// Content returns the response displayed in the top frame.
func (w *Window) Content() *Response { return w.root.response }

// Closed reports whether CloseWindow has been called on w.
func (w *Window) Closed() bool { return w.closed }

// Frames returns every frame of the window, the root first.
func (w *Window) Frames() []*Frame {
	var out []*Frame
	w.root.walk(func(f *Frame) bool {
		out = append(out, f)
		return true
	})
	return out
}

// Frame returns the frame with the given selector, or nil.
func (w *Window) Frame(sel Selector) *Frame {
	var found *Frame
	w.root.walk(func(f *Frame) bool {
		if f.selector == sel {
			found = f
			return false
		}
		return true
	})
	return found
}

// FrameNamed returns the first frame, in tree order, with the given name.
func (w *Window) FrameNamed(name string) *Frame {
	if name == "" {
		return nil
	}
	var found *Frame
	w.root.walk(func(f *Frame) bool {
		if f.name == name {
			found = f
			return false
		}
		return true
	})
	return found
}
