// internal/browser/jsbind/forms.go
package jsbind

import (
	"bytes"
	"mime/multipart"
	"net/url"
	"strings"

	"github.com/antchfx/htmlquery"
	"github.com/dop251/goja"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/xkilldash9x/alertbench/api/schemas"
)

// controlState is the mutable state of a form control. Until a dirty flag
// is set the control reflects its content attribute.
type controlState struct {
	value         string
	valueDirty    bool
	checked       bool
	checkedDirty  bool
	selected      bool
	selectedDirty bool
}

func (b *DOMBridge) controlState(n *html.Node) *controlState {
	st, ok := b.controls[n]
	if !ok {
		st = &controlState{}
		b.controls[n] = st
	}
	return st
}

var inputTypes = map[string]bool{
	"button": true, "checkbox": true, "color": true, "date": true, "email": true,
	"file": true, "hidden": true, "image": true, "number": true, "password": true,
	"radio": true, "range": true, "reset": true, "search": true, "submit": true,
	"tel": true, "text": true, "url": true,
}

func inputType(n *html.Node) string {
	t := strings.ToLower(strings.TrimSpace(attrOr(n, "type", "")))
	if inputTypes[t] {
		return t
	}
	return "text"
}

func buttonType(n *html.Node) string {
	switch t := strings.ToLower(strings.TrimSpace(attrOr(n, "type", ""))); t {
	case "reset", "button":
		return t
	}
	return "submit"
}

func isDisabledControl(n *html.Node) bool {
	return isElement(n, "input", "select", "textarea", "button", "option") && hasAttr(n, "disabled")
}

// valueIsAttribute reports input types whose value reflects the attribute.
func valueIsAttribute(t string) bool {
	switch t {
	case "checkbox", "radio", "hidden", "submit", "reset", "button", "image":
		return true
	}
	return false
}

func (b *DOMBridge) controlValue(n *html.Node) string {
	switch n.Data {
	case "input":
		t := inputType(n)
		if valueIsAttribute(t) {
			if v, ok := getAttr(n, "value"); ok {
				return v
			}
			if t == "checkbox" || t == "radio" {
				return "on"
			}
			return ""
		}
		if st, ok := b.controls[n]; ok && st.valueDirty {
			return st.value
		}
		return attrOr(n, "value", "")
	case "textarea":
		if st, ok := b.controls[n]; ok && st.valueDirty {
			return st.value
		}
		return strings.TrimPrefix(textContent(n), "\n")
	case "select":
		if selected := b.selectedOptions(n); len(selected) > 0 {
			return optionValue(selected[0])
		}
		return ""
	case "option":
		return optionValue(n)
	}
	return attrOr(n, "value", "")
}

func (b *DOMBridge) setControlValue(n *html.Node, v string) {
	switch n.Data {
	case "input":
		if valueIsAttribute(inputType(n)) {
			setAttr(n, "value", v)
			return
		}
		st := b.controlState(n)
		st.value, st.valueDirty = v, true
	case "textarea":
		st := b.controlState(n)
		st.value, st.valueDirty = v, true
	case "select":
		for _, o := range b.options(n) {
			b.controlState(o).selected = optionValue(o) == v && !b.anySelectedBefore(n, o, v)
			b.controlState(o).selectedDirty = true
		}
	default:
		setAttr(n, "value", v)
	}
}

// anySelectedBefore reports whether an option earlier than o already
// carries value v, so only the first match is selected.
func (b *DOMBridge) anySelectedBefore(sel, o *html.Node, v string) bool {
	for _, x := range b.options(sel) {
		if x == o {
			return false
		}
		if optionValue(x) == v {
			return true
		}
	}
	return false
}

func (b *DOMBridge) isChecked(n *html.Node) bool {
	if st, ok := b.controls[n]; ok && st.checkedDirty {
		return st.checked
	}
	return hasAttr(n, "checked")
}

func (b *DOMBridge) setChecked(n *html.Node, on bool) {
	if on && inputType(n) == "radio" {
		for _, r := range b.radioGroup(n) {
			if r != n {
				st := b.controlState(r)
				st.checked, st.checkedDirty = false, true
			}
		}
	}
	st := b.controlState(n)
	st.checked, st.checkedDirty = on, true
}

// radioGroup returns the radio buttons sharing n's name and form owner.
func (b *DOMBridge) radioGroup(n *html.Node) []*html.Node {
	name := attrOr(n, "name", "")
	if name == "" {
		return []*html.Node{n}
	}
	owner := b.formOwner(n)
	root := owner
	if root == nil {
		for p := n; p != nil; p = p.Parent {
			root = p
		}
	}
	var group []*html.Node
	for _, r := range b.find(root, ".//input[@name="+xpathLiteral(name)+"]") {
		if inputType(r) == "radio" && b.formOwner(r) == owner {
			group = append(group, r)
		}
	}
	return group
}

func (b *DOMBridge) formOwner(n *html.Node) *html.Node {
	if id, ok := getAttr(n, "form"); ok && b.doc != nil {
		if f := htmlquery.FindOne(b.doc, "//form[@id="+xpathLiteral(id)+"]"); f != nil {
			return f
		}
		return nil
	}
	return ancestor(n, "form")
}

// -- Select and option --

func (b *DOMBridge) options(sel *html.Node) []*html.Node {
	return b.find(sel, ".//option")
}

func optionText(o *html.Node) string {
	return strings.Join(strings.Fields(textContent(o)), " ")
}

func optionValue(o *html.Node) string {
	if v, ok := getAttr(o, "value"); ok {
		return v
	}
	return optionText(o)
}

func isMultiple(sel *html.Node) bool { return hasAttr(sel, "multiple") }

// displaysSingle reports whether a select shows one row; such a select
// always has a selected option when it has any.
func displaysSingle(sel *html.Node) bool {
	if isMultiple(sel) {
		return false
	}
	size := strings.TrimSpace(attrOr(sel, "size", ""))
	return size == "" || size == "0" || size == "1"
}

func (b *DOMBridge) explicitlySelected(o *html.Node) bool {
	if st, ok := b.controls[o]; ok && st.selectedDirty {
		return st.selected
	}
	return hasAttr(o, "selected")
}

func (b *DOMBridge) selectedOptions(sel *html.Node) []*html.Node {
	opts := b.options(sel)
	var out []*html.Node
	for _, o := range opts {
		if b.explicitlySelected(o) {
			out = append(out, o)
			if !isMultiple(sel) {
				break
			}
		}
	}
	if len(out) == 0 && displaysSingle(sel) {
		for _, o := range opts {
			if !hasAttr(o, "disabled") {
				return []*html.Node{o}
			}
		}
	}
	if !isMultiple(sel) && len(out) > 1 {
		out = out[:1]
	}
	return out
}

func (b *DOMBridge) isSelected(o *html.Node) bool {
	sel := ancestor(o, "select")
	if sel == nil {
		return b.explicitlySelected(o)
	}
	for _, s := range b.selectedOptions(sel) {
		if s == o {
			return true
		}
	}
	return false
}

func (b *DOMBridge) setOptionSelected(o *html.Node, on bool) {
	if sel := ancestor(o, "select"); sel != nil && on && !isMultiple(sel) {
		for _, x := range b.options(sel) {
			st := b.controlState(x)
			st.selected, st.selectedDirty = false, true
		}
	}
	st := b.controlState(o)
	st.selected, st.selectedDirty = on, true
}

func (b *DOMBridge) selectedIndex(sel *html.Node) int {
	selected := b.selectedOptions(sel)
	if len(selected) == 0 {
		return -1
	}
	for i, o := range b.options(sel) {
		if o == selected[0] {
			return i
		}
	}
	return -1
}

func (b *DOMBridge) setSelectedIndex(sel *html.Node, idx int) {
	for i, o := range b.options(sel) {
		st := b.controlState(o)
		st.selected, st.selectedDirty = i == idx, true
	}
}

func (b *DOMBridge) optionIndex(o *html.Node) int {
	sel := ancestor(o, "select")
	if sel == nil {
		return 0
	}
	for i, x := range b.options(sel) {
		if x == o {
			return i
		}
	}
	return 0
}

// newOption creates a detached option element, as new Option(...) does.
func (b *DOMBridge) newOption(text, value goja.Value, defaultSelected, selected bool) *html.Node {
	o := &html.Node{Type: html.ElementNode, Data: "option", DataAtom: atom.Option}
	if !isNullish(text) {
		if s := text.String(); s != "" {
			o.AppendChild(&html.Node{Type: html.TextNode, Data: s})
		}
	}
	if value != nil && !goja.IsUndefined(value) {
		setAttr(o, "value", valueString(value, false))
	}
	if defaultSelected {
		setAttr(o, "selected", "")
	}
	if selected {
		st := b.controlState(o)
		st.selected, st.selectedDirty = true, true
	}
	return o
}

func (b *DOMBridge) optionsCollection(sel *html.Node) goja.Value {
	key := collectionKey{sel, "options"}
	if obj, ok := b.collections[key]; ok {
		return obj
	}
	c := &collection{
		b:     b,
		items: func() []*html.Node { return b.options(sel) },
		named: true,
		methods: map[string]goja.Value{
			"add": b.vm.ToValue(func(call goja.FunctionCall) goja.Value {
				b.addOption(sel, call.Argument(0), call.Argument(1))
				return goja.Undefined()
			}),
			"remove": b.vm.ToValue(func(call goja.FunctionCall) goja.Value {
				b.removeOption(sel, int(call.Argument(0).ToInteger()))
				return goja.Undefined()
			}),
		},
	}
	c.setIndex = func(i int, v goja.Value) {
		opts := b.options(sel)
		if isNullish(v) {
			b.removeOption(sel, i)
			return
		}
		o := b.unwrap(v)
		if !isElement(o, "option") {
			return
		}
		if i < len(opts) {
			b.insertBefore(opts[i].Parent, o, opts[i])
			opts[i].Parent.RemoveChild(opts[i])
			return
		}
		for j := len(opts); j < i; j++ {
			sel.AppendChild(&html.Node{Type: html.ElementNode, Data: "option", DataAtom: atom.Option})
		}
		b.insertBefore(sel, o, nil)
	}
	c.setLength = func(n int) { b.setOptionCount(sel, n) }
	obj := b.newCollection(c)
	b.collections[key] = obj
	return obj
}

func (b *DOMBridge) setOptionCount(sel *html.Node, n int) {
	opts := b.options(sel)
	for i := len(opts) - 1; i >= n && i >= 0; i-- {
		opts[i].Parent.RemoveChild(opts[i])
	}
	for i := len(opts); i < n; i++ {
		sel.AppendChild(&html.Node{Type: html.ElementNode, Data: "option", DataAtom: atom.Option})
	}
}

func (b *DOMBridge) addOption(sel *html.Node, option, before goja.Value) {
	o := b.unwrap(option)
	if !isElement(o, "option", "optgroup") {
		panic(b.vm.NewTypeError("Failed to execute 'add': The provided value is not of type 'HTMLOptionElement'."))
	}
	var ref *html.Node
	if n := b.unwrap(before); n != nil {
		ref = n
	} else if !isNullish(before) {
		opts := b.options(sel)
		if i := int(before.ToInteger()); i >= 0 && i < len(opts) {
			ref = opts[i]
		}
	}
	parent := sel
	if ref != nil {
		parent = ref.Parent
	}
	b.insertBefore(parent, o, ref)
}

func (b *DOMBridge) removeOption(sel *html.Node, i int) {
	opts := b.options(sel)
	if i >= 0 && i < len(opts) {
		opts[i].Parent.RemoveChild(opts[i])
	}
}

// -- Prototypes --

func (b *DOMBridge) formProperty(n *html.Node) goja.Value {
	return b.WrapNode(b.formOwner(n))
}

func (b *DOMBridge) formPrototype(element *goja.Object) *goja.Object {
	proto := b.newProto(element)
	b.defineProperties(proto, map[string]property{
		"elements": {get: func(n *html.Node) goja.Value {
			return b.liveCollection(collectionKey{n, "elements"}, func() []*html.Node { return b.formControls(n) }, true)
		}},
		"length": {get: func(n *html.Node) goja.Value { return b.vm.ToValue(len(b.formControls(n))) }},
		"name":   b.reflect("name"),
		"target": b.reflect("target"),
		"action": {
			get: func(n *html.Node) goja.Value { return b.str(b.formAction(n)) },
			set: func(n *html.Node, v goja.Value) { setAttr(n, "action", valueString(v, false)) },
		},
		"method": {
			get: func(n *html.Node) goja.Value { return b.str(formMethod(n)) },
			set: func(n *html.Node, v goja.Value) { setAttr(n, "method", valueString(v, false)) },
		},
		"enctype": {
			get: func(n *html.Node) goja.Value { return b.str(formEnctype(n)) },
			set: func(n *html.Node, v goja.Value) { setAttr(n, "enctype", valueString(v, false)) },
		},
		"encoding": {
			get: func(n *html.Node) goja.Value { return b.str(formEnctype(n)) },
			set: func(n *html.Node, v goja.Value) { setAttr(n, "enctype", valueString(v, false)) },
		},
	})
	b.defineMethods(proto, map[string]method{
		"submit": func(n *html.Node, _ goja.FunctionCall) goja.Value {
			b.submitForm(n, nil)
			return goja.Undefined()
		},
		"reset": func(n *html.Node, _ goja.FunctionCall) goja.Value {
			b.resetForm(n)
			return goja.Undefined()
		},
		"item": func(n *html.Node, call goja.FunctionCall) goja.Value {
			controls := b.formControls(n)
			if i := int(call.Argument(0).ToInteger()); i >= 0 && i < len(controls) {
				return b.wrap(controls[i])
			}
			return goja.Null()
		},
	})
	return proto
}

func (b *DOMBridge) controlPrototype(element *goja.Object) *goja.Object {
	proto := b.newProto(element)
	b.defineProperties(proto, map[string]property{
		"value": {
			get: func(n *html.Node) goja.Value { return b.str(b.controlValue(n)) },
			set: func(n *html.Node, v goja.Value) { b.setControlValue(n, valueString(v, true)) },
		},
		"defaultValue": {
			get: func(n *html.Node) goja.Value {
				if n.Data == "textarea" {
					return b.str(textContent(n))
				}
				return b.str(attrOr(n, "value", ""))
			},
			set: func(n *html.Node, v goja.Value) {
				if n.Data == "textarea" {
					setTextContent(n, valueString(v, true))
					return
				}
				setAttr(n, "value", valueString(v, true))
			},
		},
		"checked": {
			get: func(n *html.Node) goja.Value { return b.vm.ToValue(b.isChecked(n)) },
			set: func(n *html.Node, v goja.Value) { b.setChecked(n, v.ToBoolean()) },
		},
		"defaultChecked": b.reflectBool("checked"),
		"type": {
			get: func(n *html.Node) goja.Value {
				switch n.Data {
				case "textarea":
					return b.str("textarea")
				case "button":
					return b.str(buttonType(n))
				}
				return b.str(inputType(n))
			},
			set: func(n *html.Node, v goja.Value) { setAttr(n, "type", valueString(v, false)) },
		},
		"name":      b.reflect("name"),
		"disabled":  b.reflectBool("disabled"),
		"readOnly":  b.reflectBool("readonly"),
		"form":      {get: func(n *html.Node) goja.Value { return b.formProperty(n) }},
		"maxLength": b.reflectInt("maxlength", -1),
		"size":      b.reflectInt("size", 20),
	})
	b.defineMethods(proto, map[string]method{
		"select": func(*html.Node, goja.FunctionCall) goja.Value { return goja.Undefined() },
		"setSelectionRange": func(*html.Node, goja.FunctionCall) goja.Value {
			return goja.Undefined()
		},
	})
	return proto
}

func (b *DOMBridge) selectPrototype(element *goja.Object) *goja.Object {
	proto := b.newProto(element)
	b.defineProperties(proto, map[string]property{
		"options": {get: func(n *html.Node) goja.Value { return b.optionsCollection(n) }},
		"length": {
			get: func(n *html.Node) goja.Value { return b.vm.ToValue(len(b.options(n))) },
			set: func(n *html.Node, v goja.Value) { b.setOptionCount(n, int(v.ToInteger())) },
		},
		"selectedIndex": {
			get: func(n *html.Node) goja.Value { return b.vm.ToValue(b.selectedIndex(n)) },
			set: func(n *html.Node, v goja.Value) { b.setSelectedIndex(n, int(v.ToInteger())) },
		},
		"value": {
			get: func(n *html.Node) goja.Value { return b.str(b.controlValue(n)) },
			set: func(n *html.Node, v goja.Value) { b.setControlValue(n, valueString(v, true)) },
		},
		"type": {get: func(n *html.Node) goja.Value {
			if isMultiple(n) {
				return b.str("select-multiple")
			}
			return b.str("select-one")
		}},
		"multiple": b.reflectBool("multiple"),
		"name":     b.reflect("name"),
		"disabled": b.reflectBool("disabled"),
		"size":     b.reflectInt("size", 0),
		"form":     {get: func(n *html.Node) goja.Value { return b.formProperty(n) }},
	})
	b.defineMethods(proto, map[string]method{
		"add": func(n *html.Node, call goja.FunctionCall) goja.Value {
			b.addOption(n, call.Argument(0), call.Argument(1))
			return goja.Undefined()
		},
		"remove": func(n *html.Node, call goja.FunctionCall) goja.Value {
			if len(call.Arguments) == 0 {
				// select.remove() with no index removes the element itself.
				if n.Parent != nil {
					n.Parent.RemoveChild(n)
				}
				return goja.Undefined()
			}
			b.removeOption(n, int(call.Argument(0).ToInteger()))
			return goja.Undefined()
		},
		"item": func(n *html.Node, call goja.FunctionCall) goja.Value {
			opts := b.options(n)
			if i := int(call.Argument(0).ToInteger()); i >= 0 && i < len(opts) {
				return b.wrap(opts[i])
			}
			return goja.Null()
		},
	})
	return proto
}

func (b *DOMBridge) optionPrototype(element *goja.Object) *goja.Object {
	proto := b.newProto(element)
	b.defineProperties(proto, map[string]property{
		"text": {
			get: func(n *html.Node) goja.Value { return b.str(optionText(n)) },
			set: func(n *html.Node, v goja.Value) { setTextContent(n, valueString(v, true)) },
		},
		"value": {
			get: func(n *html.Node) goja.Value { return b.str(optionValue(n)) },
			set: func(n *html.Node, v goja.Value) { setAttr(n, "value", valueString(v, true)) },
		},
		"label": {get: func(n *html.Node) goja.Value { return b.str(attrOr(n, "label", optionText(n))) }},
		"selected": {
			get: func(n *html.Node) goja.Value { return b.vm.ToValue(b.isSelected(n)) },
			set: func(n *html.Node, v goja.Value) { b.setOptionSelected(n, v.ToBoolean()) },
		},
		"defaultSelected": b.reflectBool("selected"),
		"index":           {get: func(n *html.Node) goja.Value { return b.vm.ToValue(b.optionIndex(n)) }},
		"disabled":        b.reflectBool("disabled"),
		"form": {get: func(n *html.Node) goja.Value {
			if sel := ancestor(n, "select"); sel != nil {
				return b.formProperty(sel)
			}
			return goja.Null()
		}},
	})
	return proto
}

// -- Form --

// formControls lists a form's listed elements in tree order.
func (b *DOMBridge) formControls(form *html.Node) []*html.Node {
	var out []*html.Node
	for _, n := range b.find(form, ".//input|.//select|.//textarea|.//button|.//fieldset|.//object") {
		if n.Data == "input" && inputType(n) == "image" {
			continue
		}
		if b.formOwner(n) == form {
			out = append(out, n)
		}
	}
	return out
}

// defineFormControls exposes named controls as properties of the form
// wrapper. The accessors resolve by name on every read, so they track
// later changes.
func (b *DOMBridge) defineFormControls(obj *goja.Object, form *html.Node) {
	defined, ok := b.formNames[form]
	if !ok {
		defined = make(map[string]bool)
		b.formNames[form] = defined
	}
	own := make(map[string]bool)
	for _, k := range obj.GetOwnPropertyNames() {
		own[k] = true
	}
	for _, c := range b.formControls(form) {
		for _, key := range []string{attrOr(c, "id", ""), attrOr(c, "name", "")} {
			if key == "" || defined[key] || own[key] {
				continue
			}
			name := key
			getter := b.vm.ToValue(func(goja.FunctionCall) goja.Value {
				var matches []*html.Node
				for _, c := range b.formControls(form) {
					if attrOr(c, "id", "") == name || attrOr(c, "name", "") == name {
						matches = append(matches, c)
					}
				}
				switch len(matches) {
				case 0:
					return goja.Undefined()
				case 1:
					return b.wrap(matches[0])
				}
				return b.staticCollection(matches)
			})
			if err := obj.DefineAccessorProperty(name, getter, nil, goja.FLAG_TRUE, goja.FLAG_TRUE); err != nil {
				b.logger.Debug("Failed to expose form control", zap.String("name", name), zap.Error(err))
				continue
			}
			defined[name] = true
		}
	}
}

func (b *DOMBridge) formAction(form *html.Node) string {
	action := strings.TrimSpace(attrOr(form, "action", ""))
	if action == "" {
		return b.env.CurrentURL()
	}
	if isJavaScriptURL(action) {
		return action
	}
	resolved, err := b.env.ResolveURL(action)
	if err != nil {
		return action
	}
	return resolved
}

func formMethod(form *html.Node) string {
	if strings.EqualFold(strings.TrimSpace(attrOr(form, "method", "")), "post") {
		return "post"
	}
	return "get"
}

func formEnctype(form *html.Node) string {
	switch t := strings.ToLower(strings.TrimSpace(attrOr(form, "enctype", ""))); t {
	case "multipart/form-data", "text/plain":
		return t
	}
	return "application/x-www-form-urlencoded"
}

// requestSubmit fires submit on the form and submits unless cancelled.
func (b *DOMBridge) requestSubmit(form, submitter *html.Node) {
	if !b.dispatch(b.wrap(form), b.newEvent("submit", true, true)) {
		return
	}
	b.submitForm(form, submitter)
}

func (b *DOMBridge) resetForm(form *html.Node) {
	if !b.dispatch(b.wrap(form), b.newEvent("reset", true, true)) {
		return
	}
	for _, c := range b.formControls(form) {
		delete(b.controls, c)
		if c.Data == "select" {
			for _, o := range b.options(c) {
				delete(b.controls, o)
			}
		}
	}
}

// formDataSet builds the name/value pairs a submission sends, in tree order.
func (b *DOMBridge) formDataSet(form, submitter *html.Node) []schemas.NVPair {
	var pairs []schemas.NVPair
	for _, n := range htmlquery.Find(form, ".//input|.//select|.//textarea|.//button") {
		if b.formOwner(n) != form || hasAttr(n, "disabled") {
			continue
		}
		name := attrOr(n, "name", "")
		switch n.Data {
		case "input":
			t := inputType(n)
			switch t {
			case "checkbox", "radio":
				if name == "" || !b.isChecked(n) {
					continue
				}
			case "submit", "reset", "button":
				if n != submitter || name == "" || t != "submit" {
					continue
				}
			case "image":
				if n != submitter {
					continue
				}
				prefix := ""
				if name != "" {
					prefix = name + "."
				}
				pairs = append(pairs, schemas.NVPair{Name: prefix + "x", Value: "0"}, schemas.NVPair{Name: prefix + "y", Value: "0"})
				continue
			case "file":
				if name != "" {
					pairs = append(pairs, schemas.NVPair{Name: name, Value: ""})
				}
				continue
			}
			if name == "" {
				continue
			}
			pairs = append(pairs, schemas.NVPair{Name: name, Value: b.controlValue(n)})
		case "button":
			if n != submitter || name == "" || buttonType(n) != "submit" {
				continue
			}
			pairs = append(pairs, schemas.NVPair{Name: name, Value: attrOr(n, "value", "")})
		case "select":
			if name == "" {
				continue
			}
			for _, o := range b.selectedOptions(n) {
				if !hasAttr(o, "disabled") {
					pairs = append(pairs, schemas.NVPair{Name: name, Value: optionValue(o)})
				}
			}
		case "textarea":
			if name == "" {
				continue
			}
			pairs = append(pairs, schemas.NVPair{Name: name, Value: b.controlValue(n)})
		}
	}
	return pairs
}

func encodeURLEncoded(pairs []schemas.NVPair) string {
	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = url.QueryEscape(p.Name) + "=" + url.QueryEscape(p.Value)
	}
	return strings.Join(parts, "&")
}

// submitForm navigates with the form's data set. No submit event fires.
func (b *DOMBridge) submitForm(form, submitter *html.Node) {
	action := b.formAction(form)
	method := formMethod(form)
	if submitter != nil {
		if v, ok := getAttr(submitter, "formaction"); ok && strings.TrimSpace(v) != "" {
			if resolved, err := b.env.ResolveURL(strings.TrimSpace(v)); err == nil {
				action = resolved
			}
		}
		if v, ok := getAttr(submitter, "formmethod"); ok {
			method = strings.ToLower(strings.TrimSpace(v))
		}
	}
	if isJavaScriptURL(action) {
		b.runJavaScriptURL(action)
		return
	}
	pairs := b.formDataSet(form, submitter)

	if method != "post" {
		target := action
		if i := strings.IndexByte(target, '#'); i >= 0 {
			target = target[:i]
		}
		if i := strings.IndexByte(target, '?'); i >= 0 {
			target = target[:i]
		}
		b.env.JSNavigate(schemas.NavigationRequest{URL: target + "?" + encodeURLEncoded(pairs), Method: "GET"})
		return
	}

	req := schemas.NavigationRequest{URL: action, Method: "POST"}
	switch formEnctype(form) {
	case "multipart/form-data":
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		for _, p := range pairs {
			if err := mw.WriteField(p.Name, p.Value); err != nil {
				b.logger.Debug("Failed to encode form field", zap.String("name", p.Name), zap.Error(err))
			}
		}
		_ = mw.Close()
		req.Body = buf.Bytes()
		req.ContentType = mw.FormDataContentType()
	case "text/plain":
		var sb strings.Builder
		for _, p := range pairs {
			sb.WriteString(p.Name + "=" + p.Value + "\r\n")
		}
		req.Body = []byte(sb.String())
		req.ContentType = "text/plain"
	default:
		req.Body = []byte(encodeURLEncoded(pairs))
		req.ContentType = "application/x-www-form-urlencoded"
	}
	b.env.JSNavigate(req)
}
