// internal/browser/form/kind.go
package form

import (
	"slices"
	"strings"

	"golang.org/x/net/html"

	"github.com/xkilldash9x/pagewalk/internal/browser/dom"
)

// Kind is the closed set of control kinds. Behaviour per kind lives in rules.
type Kind int

const (
	KindText Kind = iota
	KindPassword
	KindHidden
	KindTextArea
	KindCheckbox
	KindRadio
	KindSelectOne
	KindSelectMultiple
	KindFile
	KindSubmit
	KindImage
	KindButton
	KindReset
	kindCount
)

var kindNames = [kindCount]string{
	KindText:           "text",
	KindPassword:       "password",
	KindHidden:         "hidden",
	KindTextArea:       "textarea",
	KindCheckbox:       "checkbox",
	KindRadio:          "radio",
	KindSelectOne:      "select-one",
	KindSelectMultiple: "select-multiple",
	KindFile:           "file",
	KindSubmit:         "submit",
	KindImage:          "image",
	KindButton:         "button",
	KindReset:          "reset",
}

func (k Kind) String() string {
	if k >= 0 && k < kindCount {
		return kindNames[k]
	}
	return "unknown"
}

// rule is the validation behaviour of one kind.
type rule struct {
	// multiple allows more than one value at a time.
	multiple bool
	// accepts reports whether v is in the valid set of c.
	accepts func(c *Control, v string) bool
	// button kinds only contribute when used to submit.
	button bool
	// textual kinds always hold exactly one value, possibly empty.
	textual bool
}

func anyValue(*Control, string) bool { return true }

func declaredValue(c *Control, v string) bool { return v == c.declared }

func optionValue(c *Control, v string) bool {
	return slices.ContainsFunc(c.options, func(o Option) bool { return o.Value == v })
}

func noValue(*Control, string) bool { return false }

var rules = [kindCount]rule{
	KindText:           {accepts: anyValue, textual: true},
	KindPassword:       {accepts: anyValue, textual: true},
	KindHidden:         {accepts: anyValue, textual: true},
	KindTextArea:       {accepts: anyValue, textual: true},
	KindCheckbox:       {accepts: declaredValue},
	KindRadio:          {accepts: optionValue},
	KindSelectOne:      {accepts: optionValue},
	KindSelectMultiple: {accepts: optionValue, multiple: true},
	KindFile:           {accepts: noValue},
	KindSubmit:         {accepts: declaredValue, button: true},
	KindImage:          {accepts: declaredValue, button: true},
	KindButton:         {accepts: declaredValue, button: true},
	KindReset:          {accepts: declaredValue, button: true},
}

// kindOf classifies a form-associated element. Input types without their own
// behaviour (email, number, date, ...) act as text.
func kindOf(n *html.Node) (Kind, bool) {
	switch dom.Tag(n) {
	case "textarea":
		return KindTextArea, true
	case "select":
		if dom.HasAttr(n, "multiple") {
			return KindSelectMultiple, true
		}
		return KindSelectOne, true
	case "button":
		switch strings.ToLower(strings.TrimSpace(dom.Attr(n, "type"))) {
		case "reset":
			return KindReset, true
		case "button":
			return KindButton, true
		}
		return KindSubmit, true
	case "input":
		switch strings.ToLower(strings.TrimSpace(dom.Attr(n, "type"))) {
		case "password":
			return KindPassword, true
		case "hidden":
			return KindHidden, true
		case "checkbox":
			return KindCheckbox, true
		case "radio":
			return KindRadio, true
		case "file":
			return KindFile, true
		case "submit":
			return KindSubmit, true
		case "image":
			return KindImage, true
		case "button":
			return KindButton, true
		case "reset":
			return KindReset, true
		}
		return KindText, true
	}
	return 0, false
}
