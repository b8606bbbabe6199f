// internal/browser/form/errors.go
package form

import (
	"errors"
	"fmt"
)

// Sentinel kinds for parameter failures. They are always wrapped in a
// *ParameterError; test with errors.Is.
var (
	ErrUnknownParameter     = errors.New("no control with this name")
	ErrUnusedParameterValue = errors.New("value would not be submitted")
	ErrInvalidFileParameter = errors.New("file and string values are not interchangeable")
	ErrControlLocked        = errors.New("control is disabled or read-only")
	ErrControlDisabled      = errors.New("control is disabled")
	ErrSubmissionAmbiguity  = errors.New("form has more than one submit button and none was chosen")
	ErrIllegalValue         = errors.New("value is not allowed for this control")
	ErrMultipleValues       = errors.New("control does not accept multiple values")
)

// ParameterError reports a rejected parameter operation.
type ParameterError struct {
	Name  string
	Value string
	Err   error
}

func (e *ParameterError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("parameter '%s': %v", e.Name, e.Err)
	}
	return fmt.Sprintf("parameter '%s' value '%s': %v", e.Name, e.Value, e.Err)
}

// Unwrap exposes the sentinel kind.
func (e *ParameterError) Unwrap() error {
	return e.Err
}

func paramError(name, value string, kind error) *ParameterError {
	return &ParameterError{Name: name, Value: value, Err: kind}
}
