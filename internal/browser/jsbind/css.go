// internal/browser/jsbind/css.go
package jsbind

import (
	"sort"
	"strconv"
	"strings"

	"github.com/dop251/goja"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/alertbench/internal/browser/style"
)

var knownProperties = func() map[string]bool {
	m := make(map[string]bool, len(style.KnownProperties))
	for _, p := range style.KnownProperties {
		m[p] = true
	}
	return m
}()

func (b *DOMBridge) cssFormat() style.Format {
	return style.Format{
		TrailingSemicolon: b.browser.Features.CSSTextTrailingSemicolon,
		Uppercase:         b.browser.Features.CSSTextUppercase,
	}
}

// inlineStyle is the CSSStyleDeclaration behind element.style. It keeps no
// state of its own: every access reparses the style attribute and every
// write serializes back into it.
type inlineStyle struct {
	b       *DOMBridge
	n       *html.Node
	methods map[string]goja.Value
	expando map[string]goja.Value
}

func (b *DOMBridge) styleObject(n *html.Node) goja.Value {
	if obj, ok := b.styles[n]; ok {
		return obj
	}
	s := &inlineStyle{b: b, n: n, expando: make(map[string]goja.Value)}
	s.initMethods()
	obj := b.vm.NewDynamicObject(s)
	b.styles[n] = obj
	return obj
}

func (s *inlineStyle) decls() *style.Declarations {
	return style.ParseDeclarations(attrOr(s.n, "style", ""))
}

func (s *inlineStyle) write(d *style.Declarations) {
	setAttr(s.n, "style", d.CSSText(s.b.cssFormat()))
}

func (s *inlineStyle) initMethods() {
	vm := s.b.vm
	s.methods = map[string]goja.Value{
		"item": vm.ToValue(func(call goja.FunctionCall) goja.Value {
			return vm.ToValue(s.decls().Item(int(call.Argument(0).ToInteger())))
		}),
		"getPropertyValue": vm.ToValue(func(call goja.FunctionCall) goja.Value {
			return vm.ToValue(s.decls().Get(call.Argument(0).String()))
		}),
		"getPropertyPriority": vm.ToValue(func(call goja.FunctionCall) goja.Value {
			return vm.ToValue(s.decls().Priority(call.Argument(0).String()))
		}),
		"setProperty": vm.ToValue(func(call goja.FunctionCall) goja.Value {
			d := s.decls()
			d.Set(call.Argument(0).String(), valueString(call.Argument(1), true), valueString(call.Argument(2), true))
			s.write(d)
			return goja.Undefined()
		}),
		"removeProperty": vm.ToValue(func(call goja.FunctionCall) goja.Value {
			d := s.decls()
			old := d.Remove(call.Argument(0).String())
			s.write(d)
			return vm.ToValue(old)
		}),
	}
	if s.b.browser.IsIE() {
		s.methods["getAttribute"] = s.methods["getPropertyValue"]
		s.methods["setAttribute"] = s.methods["setProperty"]
		s.methods["removeAttribute"] = vm.ToValue(func(call goja.FunctionCall) goja.Value {
			d := s.decls()
			removed := d.Remove(style.CSSPropertyName(call.Argument(0).String())) != ""
			s.write(d)
			return vm.ToValue(removed)
		})
	}
}

// cssName maps a script property name to a CSS property, or "" when key
// does not name one.
func (s *inlineStyle) cssName(key string, d *style.Declarations) string {
	name := style.CSSPropertyName(key)
	if knownProperties[name] || d.Get(name) != "" {
		return name
	}
	return ""
}

func (s *inlineStyle) Get(key string) goja.Value {
	vm := s.b.vm
	switch key {
	case "cssText":
		return vm.ToValue(s.decls().CSSText(s.b.cssFormat()))
	case "length":
		return vm.ToValue(s.decls().Len())
	}
	if m, ok := s.methods[key]; ok {
		return m
	}
	if v, ok := s.expando[key]; ok {
		return v
	}
	d := s.decls()
	if i, err := strconv.Atoi(key); err == nil {
		if i >= 0 && i < d.Len() {
			return vm.ToValue(d.Item(i))
		}
		return nil
	}
	name := s.cssName(key, d)
	if name == "" {
		return nil
	}
	value := d.Get(name)
	if strings.HasPrefix(value, "#") && style.IsColorProperty(name) {
		value = style.FormatColor(value, s.b.browser.Features.ColorAsRGB)
	}
	return vm.ToValue(value)
}

func (s *inlineStyle) Set(key string, val goja.Value) bool {
	if key == "cssText" {
		s.write(style.ParseDeclarations(valueString(val, true)))
		return true
	}
	d := s.decls()
	if name := s.cssName(key, d); name != "" {
		d.Set(name, valueString(val, true), "")
		s.write(d)
		return true
	}
	s.expando[key] = val
	return true
}

func (s *inlineStyle) Has(key string) bool { return s.Get(key) != nil }

func (s *inlineStyle) Delete(key string) bool {
	delete(s.expando, key)
	return true
}

func (s *inlineStyle) Keys() []string {
	d := s.decls()
	keys := make([]string, 0, d.Len())
	for i := 0; i < d.Len(); i++ {
		keys = append(keys, strconv.Itoa(i))
	}
	return keys
}

// computedStyle is the read-only declaration returned by getComputedStyle
// and IE's currentStyle.
type computedStyle struct {
	b       *DOMBridge
	cs      *style.ComputedStyle
	methods map[string]goja.Value
}

func (b *DOMBridge) computedStyleObject(n *html.Node) goja.Value {
	if n.Type != html.ElementNode {
		panic(b.vm.NewTypeError("Failed to execute 'getComputedStyle': parameter 1 is not of type 'Element'."))
	}
	engine := style.NewEngineForDocument(b.doc, b.logger)
	c := &computedStyle{b: b, cs: engine.Compute(n)}
	c.methods = map[string]goja.Value{
		"getPropertyValue": b.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			return b.vm.ToValue(c.value(style.CSSPropertyName(call.Argument(0).String())))
		}),
		"item": b.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			props := c.cs.Properties()
			if i := int(call.Argument(0).ToInteger()); i >= 0 && i < len(props) {
				return b.vm.ToValue(props[i])
			}
			return b.vm.ToValue("")
		}),
	}
	if b.browser.IsIE() {
		c.methods["getAttribute"] = c.methods["getPropertyValue"]
	}
	return b.vm.NewDynamicObject(c)
}

func (c *computedStyle) value(name string) string {
	v := c.cs.Get(name)
	if style.IsColorProperty(name) {
		return style.FormatColor(v, c.b.browser.Features.ColorAsRGB)
	}
	return v
}

func (c *computedStyle) Get(key string) goja.Value {
	switch key {
	case "cssText":
		return c.b.vm.ToValue("")
	case "length":
		return c.b.vm.ToValue(len(c.cs.Properties()))
	}
	if m, ok := c.methods[key]; ok {
		return m
	}
	name := style.CSSPropertyName(key)
	if !knownProperties[name] && c.cs.Get(name) == "" {
		return nil
	}
	return c.b.vm.ToValue(c.value(name))
}

// Set ignores writes; computed styles are read-only.
func (c *computedStyle) Set(string, goja.Value) bool { return true }

func (c *computedStyle) Has(key string) bool { return c.Get(key) != nil }

func (c *computedStyle) Delete(string) bool { return false }

func (c *computedStyle) Keys() []string {
	keys := c.cs.Properties()
	sort.Strings(keys)
	return keys
}
