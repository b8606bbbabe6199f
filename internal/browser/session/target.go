// internal/browser/session/target.go
package session

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pagewalk/internal/browser/request"
)

// Reserved target names.
const (
	TargetSelf   = "_self"
	TargetParent = "_parent"
	TargetTop    = "_top"
	TargetBlank  = "_blank"
)

// placement is where a response will be shown: an existing frame, or the
// root of a window opened once the response arrives.
type placement struct {
	frame  *Frame
	window string
}

// open returns the frame, creating the window when p names a new one.
func (p placement) open(c *Conversation) *Frame {
	if p.frame != nil {
		return p.frame
	}
	return c.addWindow(p.window).root
}

// resolveTarget finds the frame a request loads into, creating a window when
// the target names nothing that exists.
func (c *Conversation) resolveTarget(req *request.Request) (*Frame, error) {
	p, err := c.locateTarget(req)
	if err != nil {
		return nil, err
	}
	return p.open(c), nil
}

// locateTarget finds the frame a request loads into without opening windows.
func (c *Conversation) locateTarget(req *request.Request) (placement, error) {
	var source *Frame
	if req.SourceFrame != "" {
		source = c.frame(Selector(req.SourceFrame))
		if source == nil {
			return placement{}, fmt.Errorf("%w: %s", ErrMissingTarget, req.SourceFrame)
		}
	}

	target := strings.TrimSpace(req.Target)
	switch strings.ToLower(target) {
	case "", TargetTop:
		if source != nil {
			return placement{frame: source.window.root}, nil
		}
		return c.currentPlacement(), nil
	case TargetSelf:
		if source != nil {
			return placement{frame: source}, nil
		}
		return c.currentPlacement(), nil
	case TargetParent:
		if source == nil {
			return c.currentPlacement(), nil
		}
		if source.parent != nil {
			return placement{frame: source.parent}, nil
		}
		return placement{frame: source.window.root}, nil
	case TargetBlank:
		return placement{}, nil
	}

	if source != nil {
		// A frame's own name means itself, so pages in same-named siblings
		// each stay in their slot.
		if source.name == target {
			return placement{frame: source}, nil
		}
		if f := source.window.FrameNamed(target); f != nil {
			return placement{frame: f}, nil
		}
	}
	if f := c.frameNamed(target); f != nil {
		return placement{frame: f}, nil
	}
	return placement{window: target}, nil
}

// frame finds a frame by selector across all open windows.
func (c *Conversation) frame(sel Selector) *Frame {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, w := range c.windows {
		if w.id == sel.WindowID() {
			return w.Frame(sel)
		}
	}
	return nil
}

// frameNamed searches the current window first, then the others in creation order.
func (c *Conversation) frameNamed(name string) *Frame {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current != nil {
		if f := c.current.FrameNamed(name); f != nil {
			return f
		}
	}
	for _, w := range c.windows {
		if f := w.FrameNamed(name); f != nil {
			return f
		}
	}
	return nil
}

// currentPlacement is the current window's root, or an unnamed window when
// none is open.
func (c *Conversation) currentPlacement() placement {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current != nil {
		return placement{frame: c.current.root}
	}
	return placement{}
}

func (c *Conversation) addWindow(name string) *Window {
	w := newWindow(c, name)
	c.mu.Lock()
	c.windows = append(c.windows, w)
	if c.current == nil {
		c.current = w
	}
	c.mu.Unlock()
	c.logger.Debug("Opened window.", zap.String("window_id", w.id), zap.String("name", name))
	return w
}
