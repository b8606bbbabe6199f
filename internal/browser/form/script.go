// internal/browser/form/script.go
package form

import (
	"golang.org/x/net/html"
)

// ScriptAccess is the view of a form handed to page scripts. It ignores the
// disabled and read-only locks and can change them. Value rules still apply and
// no change callbacks run.
type ScriptAccess struct {
	form *Form
}

// ScriptAccess returns the script view of f.
func (f *Form) ScriptAccess() *ScriptAccess {
	return &ScriptAccess{form: f}
}

func (s *ScriptAccess) Form() *Form { return s.form }

// SetParameter is Form.SetParameter without the locks.
func (s *ScriptAccess) SetParameter(name string, values ...string) error {
	return s.form.setParameter(name, values, true)
}

// SetValues sets the values of a single control.
func (s *ScriptAccess) SetValues(c *Control, values ...string) error {
	if c.kind == KindFile {
		if len(values) > 0 {
			return paramError(c.name, values[0], ErrInvalidFileParameter)
		}
		c.files = nil
		return nil
	}
	if err := c.check(values); err != nil {
		return err
	}
	c.values = c.normalize(values)
	return nil
}

// SetChecked checks or unchecks the checkbox or radio button backed by node.
func (s *ScriptAccess) SetChecked(c *Control, node *html.Node, checked bool) {
	switch c.kind {
	case KindCheckbox:
		if checked {
			c.values = []string{c.declared}
		} else {
			c.values = nil
		}
	case KindRadio:
		opt := c.OptionFor(node)
		if opt == nil {
			return
		}
		if checked {
			c.values = []string{opt.Value}
		} else if c.Value() == opt.Value {
			c.values = nil
		}
	}
}

// SetDisabled toggles the disabled state. Validated mutations see the new
// state immediately.
func (s *ScriptAccess) SetDisabled(c *Control, disabled bool) {
	c.disabled = disabled
	for i := range c.options {
		c.options[i].Disabled = disabled
	}
}

// SetReadOnly toggles the read-only state.
func (s *ScriptAccess) SetReadOnly(c *Control, readOnly bool) {
	c.readOnly = readOnly
}

// Reset is Form.Reset.
func (s *ScriptAccess) Reset() { s.form.Reset() }
