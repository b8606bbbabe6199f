// internal/browser/form/mutate.go
package form

import (
	"slices"

	"github.com/xkilldash9x/pagewalk/internal/browser/request"
)

// SetParameter replaces the values held under name. Values are checked against
// the rules of every control with that name; nothing changes when any check fails.
func (f *Form) SetParameter(name string, values ...string) error {
	return f.setParameter(name, values, false)
}

// RemoveParameter clears name: text fields become empty, checkboxes and
// selections are cleared, file fields drop their files.
func (f *Form) RemoveParameter(name string) error {
	controls := f.ControlsNamed(name)
	if len(controls) > 0 && controls[0].kind == KindFile {
		return f.SetFiles(name)
	}
	return f.setParameter(name, nil, false)
}

func (f *Form) setParameter(name string, values []string, script bool) error {
	controls := f.ControlsNamed(name)
	if len(controls) == 0 {
		return paramError(name, "", ErrUnknownParameter)
	}
	for _, c := range controls {
		if c.kind == KindFile {
			if len(values) > 0 {
				return paramError(name, values[0], ErrInvalidFileParameter)
			}
		}
	}

	if !script && allLocked(controls) {
		return paramError(name, "", ErrControlLocked)
	}

	plan, err := planValues(name, controls, values)
	if err != nil {
		return err
	}

	var changed []*Control
	for i, c := range controls {
		held := len(c.values) > 0 || len(c.files) > 0
		if !script && c.Locked() && (held || len(plan[i]) > 0) {
			return paramError(name, "", ErrControlLocked)
		}
		if c.kind == KindFile {
			if len(c.files) == 0 {
				continue
			}
		} else if slices.Equal(c.values, plan[i]) {
			continue
		}
		changed = append(changed, c)
	}
	for i, c := range controls {
		if c.kind == KindFile {
			c.files = nil
			continue
		}
		c.values = plan[i]
	}
	if script {
		return nil
	}
	return f.notify(changed...)
}

// planValues distributes values over same-named controls in declaration order.
// A single control sees the whole list; with several, each takes what it can
// hold and anything left over would never be submitted.
func planValues(name string, controls []*Control, values []string) ([][]string, error) {
	plan := make([][]string, len(controls))
	if len(controls) == 1 {
		c := controls[0]
		if err := c.check(values); err != nil {
			return nil, err
		}
		plan[0] = c.normalize(values)
		return plan, nil
	}

	remaining := values
	for i, c := range controls {
		if c.kind == KindFile {
			continue
		}
		plan[i], remaining = c.absorb(remaining)
	}
	for _, v := range remaining {
		accepted := slices.ContainsFunc(controls, func(c *Control) bool {
			return c.kind != KindFile && rules[c.kind].accepts(c, v)
		})
		if !accepted {
			return nil, paramError(name, v, ErrIllegalValue)
		}
	}
	if len(remaining) > 0 {
		return nil, paramError(name, remaining[0], ErrUnusedParameterValue)
	}
	return plan, nil
}

// SetFiles selects uploads for the file controls named name. Passing no files
// clears them.
func (f *Form) SetFiles(name string, files ...*request.File) error {
	controls := f.ControlsNamed(name)
	if len(controls) == 0 {
		return paramError(name, "", ErrUnknownParameter)
	}
	for _, c := range controls {
		if c.kind != KindFile {
			return paramError(name, "", ErrInvalidFileParameter)
		}
	}

	if allLocked(controls) {
		return paramError(name, "", ErrControlLocked)
	}

	plan := make([][]*request.File, len(controls))
	remaining := files
	for i, c := range controls {
		switch {
		case len(remaining) == 0:
		case c.multipleFiles:
			plan[i], remaining = remaining, nil
		case len(controls) == 1 && len(remaining) > 1:
			return paramError(name, remaining[1].Name, ErrMultipleValues)
		default:
			plan[i], remaining = remaining[:1], remaining[1:]
		}
	}
	if len(remaining) > 0 {
		return paramError(name, remaining[0].Name, ErrUnusedParameterValue)
	}

	var changed []*Control
	for i, c := range controls {
		if len(c.files) == 0 && len(plan[i]) == 0 {
			continue
		}
		if c.Locked() {
			return paramError(name, "", ErrControlLocked)
		}
		changed = append(changed, c)
	}
	for i, c := range controls {
		c.files = slices.Clone(plan[i])
	}
	return f.notify(changed...)
}

// allLocked reports whether no control under a name accepts validated
// mutation. Such a name refuses every attempt, even one that changes nothing.
func allLocked(controls []*Control) bool {
	return !slices.ContainsFunc(controls, func(c *Control) bool { return !c.Locked() })
}

// ToggleCheckbox flips the first checkbox named name.
func (f *Form) ToggleCheckbox(name string) error {
	for _, c := range f.ControlsNamed(name) {
		if c.kind == KindCheckbox {
			return f.toggle(c)
		}
	}
	return f.missingKind(name)
}

// ToggleCheckboxValue flips the checkbox named name whose value is value.
func (f *Form) ToggleCheckboxValue(name, value string) error {
	for _, c := range f.ControlsNamed(name) {
		if c.kind == KindCheckbox && c.declared == value {
			return f.toggle(c)
		}
	}
	if len(f.ControlsNamed(name)) > 0 {
		return paramError(name, value, ErrIllegalValue)
	}
	return paramError(name, value, ErrUnknownParameter)
}

func (f *Form) toggle(c *Control) error {
	if c.Locked() {
		return paramError(c.name, "", ErrControlLocked)
	}
	if c.Checked() {
		c.values = nil
	} else {
		c.values = []string{c.declared}
	}
	return f.notify(c)
}

// SelectRadio selects value in the radio group name, deselecting the others.
func (f *Form) SelectRadio(name, value string) error {
	for _, c := range f.ControlsNamed(name) {
		if c.kind != KindRadio {
			continue
		}
		if c.Locked() {
			return paramError(name, value, ErrControlLocked)
		}
		idx := slices.IndexFunc(c.options, func(o Option) bool { return o.Value == value })
		if idx < 0 {
			return paramError(name, value, ErrIllegalValue)
		}
		if c.options[idx].Disabled {
			return paramError(name, value, ErrControlLocked)
		}
		c.values = []string{value}
		return f.notify(c)
	}
	return f.missingKind(name)
}

func (f *Form) missingKind(name string) error {
	if len(f.ControlsNamed(name)) > 0 {
		return paramError(name, "", ErrIllegalValue)
	}
	return paramError(name, "", ErrUnknownParameter)
}

// Reset restores every control to its default state.
func (f *Form) Reset() {
	for _, c := range f.controls {
		c.reset()
	}
}

func (f *Form) notify(changed ...*Control) error {
	if f.onChange == nil {
		return nil
	}
	for _, c := range changed {
		if err := f.onChange(c); err != nil {
			return err
		}
	}
	return nil
}
