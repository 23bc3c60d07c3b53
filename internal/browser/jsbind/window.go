// internal/browser/jsbind/window.go
package jsbind

import (
	"github.com/dop251/goja"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/xkilldash9x/alertbench/api/schemas"
)

const (
	viewportWidth  = 1024
	viewportHeight = 768
)

func (b *DOMBridge) initWindow() {
	for _, name := range []string{"window", "top"} {
		b.defineGlobalAccessor(name, func() goja.Value { return b.window }, nil)
	}
	// Replaceable: page script may declare variables with these names.
	for _, name := range []string{"self", "parent", "frames"} {
		name := name
		b.defineGlobalAccessor(name, func() goja.Value { return b.window }, func(v goja.Value) { b.shadowGlobal(name, v) })
	}
	b.brandWindow()
	b.defineGlobalAccessor("document", func() goja.Value { return b.document }, nil)
	b.defineGlobalAccessor("name", func() goja.Value { return b.str(b.windowName) }, func(v goja.Value) {
		b.windowName = valueString(v, false)
	})
	b.defineGlobalAccessor("event", func() goja.Value {
		if b.currentEvent == nil {
			return goja.Undefined()
		}
		return b.currentEvent
	}, nil)

	for name, fn := range b.eventFuncs {
		b.setGlobal(name, fn)
	}
	seen := make(map[string]bool)
	for _, list := range [][]string{windowHandlers, elementHandlers} {
		for _, name := range list {
			if seen[name] {
				continue
			}
			seen[name] = true
			typ := name
			b.defineGlobalAccessor("on"+typ,
				func() goja.Value { return b.getHandler(b.window, typ) },
				func(v goja.Value) { b.setHandlerProperty(b.window, typ, v) })
		}
	}

	b.setGlobal("alert", func(call goja.FunctionCall) goja.Value {
		b.env.RecordDialog(schemas.DialogAlert, dialogMessage(call))
		return goja.Undefined()
	})
	b.setGlobal("confirm", func(call goja.FunctionCall) goja.Value {
		b.env.RecordDialog(schemas.DialogConfirm, dialogMessage(call))
		return b.vm.ToValue(true)
	})
	b.setGlobal("prompt", func(call goja.FunctionCall) goja.Value {
		b.env.RecordDialog(schemas.DialogPrompt, dialogMessage(call))
		return b.vm.ToValue("")
	})
	b.setGlobal("postMessage", func(call goja.FunctionCall) goja.Value {
		data := call.Argument(0)
		origin := urlPart(b.env.CurrentURL(), "origin")
		b.sched.Go("postMessage", func() func(vm *goja.Runtime) {
			return func(*goja.Runtime) {
				ev := b.newEvent("message", false, false)
				ev.expando["data"] = data
				ev.expando["origin"] = b.str(origin)
				ev.expando["source"] = b.window
				b.dispatch(b.window, ev)
			}
		})
		return goja.Undefined()
	})
	b.setGlobal("open", func(call goja.FunctionCall) goja.Value {
		b.logger.Debug("Ignoring window.open", zap.String("url", valueString(call.Argument(0), true)))
		return goja.Null()
	})

	noop := func(goja.FunctionCall) goja.Value { return goja.Undefined() }
	for _, name := range []string{"focus", "blur", "close", "print", "stop", "scroll", "scrollTo", "scrollBy", "moveTo", "moveBy", "resizeTo", "resizeBy"} {
		b.setGlobal(name, noop)
	}

	if b.browser.Features.GetComputedStyle {
		b.setGlobal("getComputedStyle", func(call goja.FunctionCall) goja.Value {
			return b.computedStyleObject(b.argNode(call, 0, "getComputedStyle"))
		})
	}

	if !b.browser.IsIE() || b.browser.DocumentMode >= 9 {
		for name, v := range map[string]int{
			"innerWidth": viewportWidth, "innerHeight": viewportHeight,
			"outerWidth": viewportWidth, "outerHeight": viewportHeight,
			"pageXOffset": 0, "pageYOffset": 0, "scrollX": 0, "scrollY": 0,
			"devicePixelRatio": 1,
		} {
			b.setGlobal(name, v)
		}
	}
	screen := b.vm.NewObject()
	for name, v := range map[string]int{
		"width": viewportWidth, "height": viewportHeight,
		"availWidth": viewportWidth, "availHeight": viewportHeight,
		"colorDepth": 24, "pixelDepth": 24,
	} {
		_ = screen.Set(name, v)
	}
	b.setGlobal("screen", screen)
}

// dialogMessage converts the first argument the way alert does. A call
// without arguments shows an empty dialog.
func dialogMessage(call goja.FunctionCall) string {
	if len(call.Arguments) == 0 {
		return ""
	}
	return valueString(call.Arguments[0], false)
}

// defineNamedGlobals exposes elements with an id as window properties.
// Names that already exist on the window are left alone, and assigning
// to a named global replaces it with a plain property.
func (b *DOMBridge) defineNamedGlobals() {
	own := make(map[string]bool)
	for _, k := range b.window.GetOwnPropertyNames() {
		own[k] = true
	}
	for _, n := range b.find(b.doc, "//*[@id]") {
		id := attrOr(n, "id", "")
		if id == "" || own[id] || b.window.Get(id) != nil {
			continue
		}
		own[id] = true
		name := id
		getter := b.vm.ToValue(func(goja.FunctionCall) goja.Value {
			matches := b.find(b.doc, "//*[@id="+xpathLiteral(name)+"]")
			switch len(matches) {
			case 0:
				return goja.Undefined()
			case 1:
				return b.wrap(matches[0])
			}
			return b.staticCollection(matches)
		})
		setter := b.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			b.shadowGlobal(name, call.Argument(0))
			return goja.Undefined()
		})
		if err := b.window.DefineAccessorProperty(name, getter, setter, goja.FLAG_TRUE, goja.FLAG_TRUE); err != nil {
			b.logger.Debug("Failed to expose named element", zap.String("id", name), zap.Error(err))
		}
	}
}

// shadowGlobal replaces a window accessor with a plain writable property.
func (b *DOMBridge) shadowGlobal(name string, v goja.Value) {
	if err := b.window.DefineDataProperty(name, v, goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_TRUE); err != nil {
		b.logger.Debug("Failed to shadow global", zap.String("name", name), zap.Error(err))
	}
}

func (b *DOMBridge) initNavigator() {
	nav := b.vm.NewObject()
	b.setClass(nav, "Navigator")
	props := map[string]interface{}{
		"userAgent":     b.browser.UserAgent,
		"appName":       b.browser.AppName,
		"appVersion":    b.browser.AppVersion,
		"appCodeName":   "Mozilla",
		"platform":      b.browser.Platform,
		"language":      b.browser.Language,
		"cookieEnabled": true,
		"onLine":        true,
	}
	switch {
	case b.browser.IsIE():
		props["userLanguage"] = b.browser.Language
		props["browserLanguage"] = b.browser.Language
		props["systemLanguage"] = b.browser.Language
	case b.browser.Family == schemas.FF:
		props["product"] = "Gecko"
		props["vendor"] = ""
		props["languages"] = []interface{}{b.browser.Language}
	default:
		props["product"] = "Gecko"
		props["vendor"] = "Google Inc."
		props["languages"] = []interface{}{b.browser.Language}
	}
	for name, v := range props {
		_ = nav.Set(name, v)
	}
	_ = nav.Set("javaEnabled", func(goja.FunctionCall) goja.Value { return b.vm.ToValue(false) })
	b.navigator = nav
	b.setGlobal("navigator", nav)
}

// interfaceObjects maps DOM interface names to the prototype group whose
// object becomes Interface.prototype.
var interfaceObjects = map[string]string{
	"Node":              "node",
	"CharacterData":     "chardata",
	"Text":              "chardata",
	"Element":           "element",
	"HTMLElement":       "element",
	"HTMLFormElement":   "form",
	"HTMLInputElement":  "control",
	"HTMLSelectElement": "select",
	"HTMLOptionElement": "option",
	"HTMLAnchorElement": "anchor",
	"HTMLScriptElement": "script",
	"HTMLImageElement":  "embedded",
	"HTMLBodyElement":   "body",
}

var nodeConstants = map[string]int{
	"ELEMENT_NODE":                elementNode,
	"TEXT_NODE":                   textNode,
	"COMMENT_NODE":                commentNode,
	"DOCUMENT_NODE":               documentNode,
	"DOCUMENT_TYPE_NODE":          doctypeNode,
	"DOCUMENT_FRAGMENT_NODE":      fragmentNode,
	"ATTRIBUTE_NODE":              2,
	"CDATA_SECTION_NODE":          4,
	"PROCESSING_INSTRUCTION_NODE": 7,
}

func (b *DOMBridge) initConstructors() {
	for name, group := range interfaceObjects {
		iface := b.vm.ToValue(func(goja.ConstructorCall) *goja.Object {
			panic(b.vm.NewTypeError("Illegal constructor"))
		}).(*goja.Object)
		proto := b.protos[group]
		if err := iface.DefineDataProperty("prototype", proto, goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE); err != nil {
			b.logger.Debug("Failed to link interface prototype", zap.String("interface", name), zap.Error(err))
		}
		if name == "Node" {
			for k, v := range nodeConstants {
				_ = iface.Set(k, v)
				_ = proto.Set(k, v)
			}
		}
		b.setGlobal(name, iface)
	}

	b.setGlobal("Option", func(call goja.ConstructorCall) *goja.Object {
		o := b.newOption(call.Argument(0), call.Argument(1), call.Argument(2).ToBoolean(), call.Argument(3).ToBoolean())
		return b.wrap(o)
	})
	b.setGlobal("Image", func(call goja.ConstructorCall) *goja.Object {
		img := &html.Node{Type: html.ElementNode, Data: "img", DataAtom: atom.Img}
		if w := call.Argument(0); !goja.IsUndefined(w) {
			setAttr(img, "width", w.String())
		}
		if h := call.Argument(1); !goja.IsUndefined(h) {
			setAttr(img, "height", h.String())
		}
		return b.wrap(img)
	})

	if b.browser.Features.EventCtor {
		ctor := func(custom bool) func(goja.ConstructorCall) *goja.Object {
			return func(call goja.ConstructorCall) *goja.Object {
				if len(call.Arguments) == 0 {
					panic(b.vm.NewTypeError("Failed to construct 'Event': 1 argument required, but only 0 present."))
				}
				var bubbles, cancelable bool
				var detail goja.Value = goja.Null()
				if init, ok := call.Argument(1).(*goja.Object); ok {
					if v := init.Get("bubbles"); v != nil {
						bubbles = v.ToBoolean()
					}
					if v := init.Get("cancelable"); v != nil {
						cancelable = v.ToBoolean()
					}
					if v := init.Get("detail"); v != nil && !goja.IsUndefined(v) {
						detail = v
					}
				}
				ev := b.newEvent(call.Argument(0).String(), bubbles, cancelable)
				ev.trusted = false
				if custom {
					ev.expando["detail"] = detail
				}
				return ev.obj
			}
		}
		b.setGlobal("Event", ctor(false))
		b.setGlobal("CustomEvent", ctor(true))
	}
}
