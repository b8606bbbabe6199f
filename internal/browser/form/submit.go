// internal/browser/form/submit.go
package form

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/xkilldash9x/pagewalk/internal/browser/dom"
	"github.com/xkilldash9x/pagewalk/internal/browser/request"
)

// Request builds a validated request submitting the form with submit. A nil
// submit is allowed when the form has at most one usable submit button.
// The request holds a snapshot of the control state; mutating it through
// SetParameter applies the same rules as the form without changing the form.
func (f *Form) Request(submit *Control) (*request.Request, error) {
	return f.RequestAt(submit, 0, 0)
}

// RequestAt is Request for an image button clicked at (x, y).
func (f *Form) RequestAt(submit *Control, x, y int) (*request.Request, error) {
	submitter, err := f.submitter(submit)
	if err != nil {
		return nil, err
	}
	snapshot := f.clone()
	holder := &validatedParameters{form: snapshot, x: x, y: y}
	if submitter != nil {
		holder.submitter = snapshot.controls[f.indexOf(submitter)]
	}
	r := request.NewValidated(f.submitMethod(submitter), f.submitAction(submitter), holder)
	f.decorate(r, submitter)
	return r, nil
}

// UncheckedRequest builds a request from the current state without any
// validation. Its parameters can be overridden freely, including names that
// do not exist in the form.
func (f *Form) UncheckedRequest(submit *Control) *request.Request {
	params, _ := f.submission(submit, 0, 0, false)
	r := request.NewUnchecked(f.submitMethod(submit), f.submitAction(submit), params)
	f.decorate(r, submit)
	return r
}

// Parameters returns the pairs the form would submit without a submit button.
func (f *Form) Parameters() []request.Param {
	params, _ := f.submission(nil, 0, 0, false)
	return params
}

func (f *Form) submitter(submit *Control) (*Control, error) {
	if submit == nil {
		var usable []*Control
		for _, c := range f.SubmitButtons() {
			if !c.disabled {
				usable = append(usable, c)
			}
		}
		switch len(usable) {
		case 0:
			return nil, nil
		case 1:
			return usable[0], nil
		}
		return nil, paramError(usable[0].name, "", ErrSubmissionAmbiguity)
	}
	if f.indexOf(submit) < 0 {
		return nil, paramError(submit.name, "", ErrUnknownParameter)
	}
	if !submit.CanSubmit() {
		return nil, paramError(submit.name, "", ErrIllegalValue)
	}
	if submit.disabled {
		return nil, paramError(submit.name, "", ErrControlDisabled)
	}
	return submit, nil
}

// submitAction honours a formaction override on the submit button.
func (f *Form) submitAction(submit *Control) *url.URL {
	if submit != nil {
		if action := strings.TrimSpace(dom.Attr(submit.Node(), "formaction")); action != "" {
			if u, err := f.doc.Resolve(action); err == nil {
				return u
			}
		}
	}
	return f.Action()
}

func (f *Form) submitMethod(submit *Control) string {
	if submit != nil {
		switch strings.ToUpper(strings.TrimSpace(dom.Attr(submit.Node(), "formmethod"))) {
		case http.MethodPost:
			return http.MethodPost
		case http.MethodGet:
			return http.MethodGet
		}
	}
	return f.method
}

func (f *Form) decorate(r *request.Request, submit *Control) {
	r.Target = f.Target()
	r.Encoding = f.enctype
	if submit != nil {
		if t := dom.Attr(submit.Node(), "formtarget"); t != "" {
			r.Target = t
		}
		if enctype := dom.Attr(submit.Node(), "formenctype"); enctype != "" {
			r.Encoding = request.EncodingForType(enctype)
		}
	}
	if r.Method == http.MethodGet {
		r.Encoding = request.EncodingQuery
	}
	r.SourceFrame = f.origin.Frame
	r.Charset = f.charset
}

// submission serializes the control state in declaration order. With validate
// set, a value pinned on a button other than the submitter is an error since
// it would never reach the server.
func (f *Form) submission(submitter *Control, x, y int, validate bool) ([]request.Param, error) {
	var params []request.Param
	for _, c := range f.controls {
		if c.IsButton() {
			if c == submitter {
				params = append(params, buttonParams(c, x, y)...)
			} else if validate && len(c.values) > 0 {
				return nil, paramError(c.name, c.values[0], ErrUnusedParameterValue)
			}
			continue
		}
		if c.name == "" || c.disabled {
			continue
		}
		if c.kind == KindFile {
			if len(c.files) == 0 {
				params = append(params, request.Param{Name: c.name, IsFile: true})
			}
			for _, file := range c.files {
				params = append(params, request.Param{Name: c.name, File: file, IsFile: true})
			}
			continue
		}
		for _, v := range c.values {
			params = append(params, request.Param{Name: c.name, Value: v})
		}
	}
	return params, nil
}

func buttonParams(c *Control, x, y int) []request.Param {
	if c.kind != KindImage {
		if c.name == "" {
			return nil
		}
		return []request.Param{{Name: c.name, Value: c.declared}}
	}
	prefix := ""
	if c.name != "" {
		prefix = c.name + "."
	}
	params := []request.Param{
		{Name: prefix + "x", Value: strconv.Itoa(x)},
		{Name: prefix + "y", Value: strconv.Itoa(y)},
	}
	if c.name != "" && c.declared != "" {
		params = append(params, request.Param{Name: c.name, Value: c.declared})
	}
	return params
}

// validatedParameters backs a validated request with a private copy of the
// form state.
type validatedParameters struct {
	form      *Form
	submitter *Control
	x, y      int
}

func (v *validatedParameters) SetParameter(name string, values []string) error {
	return v.form.SetParameter(name, values...)
}

func (v *validatedParameters) SetFiles(name string, files []*request.File) error {
	return v.form.SetFiles(name, files...)
}

func (v *validatedParameters) RemoveParameter(name string) error {
	return v.form.RemoveParameter(name)
}

func (v *validatedParameters) Values(name string) []string {
	return v.form.Values(name)
}

func (v *validatedParameters) Parameters() ([]request.Param, error) {
	params, err := v.form.submission(v.submitter, v.x, v.y, true)
	if err != nil {
		return nil, fmt.Errorf("cannot submit form: %w", err)
	}
	return params, nil
}
