// internal/browser/jsbind/history.go
package jsbind

import (
	"fmt"
	"net/url"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/xkilldash9x/alertbench/api/schemas"
)

func (b *DOMBridge) initHistory() {
	h := b.vm.NewObject()
	b.setClass(h, "History")
	accessor := func(name string, get func() goja.Value) {
		getter := b.vm.ToValue(func(goja.FunctionCall) goja.Value { return get() })
		if err := h.DefineAccessorProperty(name, getter, nil, goja.FLAG_TRUE, goja.FLAG_TRUE); err != nil {
			b.logger.Error("Failed to define history property", zap.String("property", name), zap.Error(err))
		}
	}
	accessor("length", func() goja.Value { return b.vm.ToValue(b.env.GetHistoryLength()) })
	accessor("state", func() goja.Value {
		state := b.env.GetCurrentHistoryState()
		if state == nil {
			return goja.Null()
		}
		return b.vm.ToValue(state)
	})

	traverse := func(delta int) func(goja.FunctionCall) goja.Value {
		return func(goja.FunctionCall) goja.Value {
			b.env.TraverseHistory(delta)
			return goja.Undefined()
		}
	}
	_ = h.Set("back", traverse(-1))
	_ = h.Set("forward", traverse(1))
	_ = h.Set("go", func(call goja.FunctionCall) goja.Value {
		delta := int(call.Argument(0).ToInteger())
		if delta == 0 {
			b.navigate(stripFragment(b.env.CurrentURL()), true)
			return goja.Undefined()
		}
		b.env.TraverseHistory(delta)
		return goja.Undefined()
	})

	if b.browser.Features.HistoryPushState {
		_ = h.Set("pushState", func(call goja.FunctionCall) goja.Value {
			if err := b.env.PushHistory(b.historyEntry(call)); err != nil {
				panic(b.vm.NewGoError(err))
			}
			return goja.Undefined()
		})
		_ = h.Set("replaceState", func(call goja.FunctionCall) goja.Value {
			if err := b.env.ReplaceHistory(b.historyEntry(call)); err != nil {
				panic(b.vm.NewGoError(err))
			}
			return goja.Undefined()
		})
	}

	b.history = h
	b.setGlobal("history", h)
}

// historyEntry validates pushState/replaceState arguments. The URL must
// resolve to the document's origin.
func (b *DOMBridge) historyEntry(call goja.FunctionCall) *schemas.HistoryState {
	entry := &schemas.HistoryState{
		Title: valueString(call.Argument(1), true),
		URL:   b.env.CurrentURL(),
	}
	if state := call.Argument(0); !isNullish(state) {
		entry.State = state.Export()
	}
	if ref := call.Argument(2); !isNullish(ref) {
		resolved, err := b.env.ResolveURL(ref.String())
		if err != nil {
			b.throwDOMException("SecurityError", fmt.Sprintf("A history state object with URL '%s' cannot be created.", ref.String()))
		}
		if !sameOrigin(resolved, b.env.CurrentURL()) {
			b.throwDOMException("SecurityError", fmt.Sprintf("A history state object with URL '%s' cannot be created in a document with origin '%s'.",
				resolved, urlPart(b.env.CurrentURL(), "origin")))
		}
		entry.URL = resolved
	}
	return entry
}

func sameOrigin(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	return ua.Scheme == ub.Scheme && ua.Host == ub.Host
}
