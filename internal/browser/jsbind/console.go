// internal/browser/jsbind/console.go
package jsbind

import (
	"fmt"
	"strings"

	"github.com/dop251/goja"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// initConsole routes console output to the logger.
func (b *DOMBridge) initConsole() {
	console := b.vm.NewObject()
	logFunc := func(level zapcore.Level) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			args := make([]string, len(call.Arguments))
			for i, arg := range call.Arguments {
				args[i] = b.stringify(arg)
			}
			b.logger.Log(level, "[JS Console]", zap.String("message", strings.Join(args, " ")))
			return goja.Undefined()
		}
	}
	b.set(console, "log", logFunc(zap.InfoLevel))
	b.set(console, "info", logFunc(zap.InfoLevel))
	b.set(console, "warn", logFunc(zap.WarnLevel))
	b.set(console, "error", logFunc(zap.ErrorLevel))
	b.set(console, "debug", logFunc(zap.DebugLevel))
	b.set(b.window, "console", console)
}

// stringify renders objects with JSON.stringify when possible.
func (b *DOMBridge) stringify(v goja.Value) string {
	if _, isObject := v.(*goja.Object); !isObject {
		return v.String()
	}
	if jsJSON := b.vm.Get("JSON"); jsJSON != nil && !goja.IsUndefined(jsJSON) {
		if stringify, ok := goja.AssertFunction(jsJSON.ToObject(b.vm).Get("stringify")); ok {
			if result, err := stringify(goja.Undefined(), v); err == nil && !goja.IsUndefined(result) {
				return result.String()
			}
		}
	}
	return v.String()
}

// initTimers provides setTimeout that runs its callback at once. Pages are
// evaluated synchronously so there is no later turn to defer to.
func (b *DOMBridge) initTimers() {
	b.set(b.window, "setTimeout", func(call goja.FunctionCall) goja.Value {
		if cb, ok := goja.AssertFunction(call.Argument(0)); ok {
			if _, err := cb(goja.Undefined()); err != nil {
				b.throw(err)
			}
		}
		return b.vm.ToValue(1)
	})
	b.set(b.window, "clearTimeout", func(goja.FunctionCall) goja.Value { return goja.Undefined() })
}

// translateCSSToXPath translates simple selectors (tag, #id, .class, descendant
// combinator) to XPath. Anything that already looks like XPath passes through.
func translateCSSToXPath(css string) string {
	css = strings.TrimSpace(css)
	if css == "*" {
		return "//*"
	}
	if strings.HasPrefix(css, "/") || strings.HasPrefix(css, "./") || strings.HasPrefix(css, "(") {
		return css
	}

	var xpath strings.Builder
	for _, part := range strings.Fields(css) {
		xpath.WriteString("//")
		tagName := "*"
		var predicates []string

		token := part
		for token != "" {
			switch token[0] {
			case '#', '.':
				end := strings.IndexAny(token[1:], ".#")
				if end == -1 {
					end = len(token)
				} else {
					end++
				}
				value := token[1:end]
				if !strings.Contains(value, "'") {
					if token[0] == '#' {
						predicates = append(predicates, fmt.Sprintf("@id='%s'", value))
					} else {
						predicates = append(predicates, fmt.Sprintf("contains(concat(' ', normalize-space(@class), ' '), ' %s ')", value))
					}
				}
				token = token[end:]
			default:
				end := strings.IndexAny(token, ".#")
				if end == -1 {
					end = len(token)
				}
				tagName = strings.ToLower(token[:end])
				token = token[end:]
			}
		}

		xpath.WriteString(tagName)
		if len(predicates) > 0 {
			xpath.WriteString("[" + strings.Join(predicates, " and ") + "]")
		}
	}
	return xpath.String()
}
