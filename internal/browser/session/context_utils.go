// internal/browser/session/context_utils.go
package session

import (
	"context"
)

// CombineContext derives a context from primary that is also canceled when
// secondary is. Values come from primary only. The conversation uses it to tie
// each operation to both the caller's context and its own lifetime.
func CombineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancelCause(primary)
	stop := context.AfterFunc(secondary, func() {
		cancel(context.Cause(secondary))
	})
	return combined, func() {
		stop()
		cancel(context.Canceled)
	}
}
