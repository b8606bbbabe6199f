// internal/browser/jsexec/errors.go
package jsexec

import "fmt"

// ScriptError is a script that threw or failed to compile.
type ScriptError struct {
	// Source is the script text, truncated for display.
	Source string
	// Event names the handler that failed, empty for top-level scripts.
	Event   string
	Message string
	Err     error
}

func (e *ScriptError) Error() string {
	if e.Event != "" {
		return fmt.Sprintf("javascript error in on%s handler: %s", e.Event, e.Message)
	}
	return fmt.Sprintf("javascript error: %s", e.Message)
}

func (e *ScriptError) Unwrap() error {
	return e.Err
}
