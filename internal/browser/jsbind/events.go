// internal/browser/jsbind/events.go
package jsbind

import (
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// Event phases.
const (
	phaseNone = iota
	phaseCapture
	phaseTarget
	phaseBubble
)

// elementHandlers are the on* properties every element exposes.
var elementHandlers = []string{
	"abort", "blur", "change", "click", "contextmenu", "dblclick", "error", "focus",
	"input", "keydown", "keypress", "keyup", "load", "mousedown", "mousemove",
	"mouseout", "mouseover", "mouseup", "readystatechange", "reset", "scroll",
	"select", "submit",
}

// windowHandlers are the handlers body and frameset forward to the window.
var windowHandlers = []string{
	"beforeunload", "hashchange", "load", "message", "pagehide", "pageshow",
	"popstate", "resize", "unload",
}

func isWindowHandler(typ string) bool {
	for _, h := range windowHandlers {
		if h == typ {
			return true
		}
	}
	return false
}

type listenerKind int

const (
	kindListener listenerKind = iota
	kindHandler
	kindAttach
)

type listener struct {
	fn      goja.Value
	capture bool
	once    bool
	kind    listenerKind
}

// targetState holds the listeners of one event target.
type targetState struct {
	listeners map[string][]*listener
	// attrSource is the inline attribute text the handler was last synced
	// with; fromAttr marks handlers compiled from it.
	attrSource map[string]string
	fromAttr   map[string]bool
}

func (b *DOMBridge) state(obj *goja.Object) *targetState {
	st, ok := b.targets[obj]
	if !ok {
		st = &targetState{
			listeners:  make(map[string][]*listener),
			attrSource: make(map[string]string),
			fromAttr:   make(map[string]bool),
		}
		b.targets[obj] = st
	}
	return st
}

func (st *targetState) handler(typ string) *listener {
	for _, l := range st.listeners[typ] {
		if l.kind == kindHandler {
			return l
		}
	}
	return nil
}

// setHandler installs fn as the on<typ> handler. A new handler takes the
// position of the one it replaces, or goes last (first with atFront).
func (st *targetState) setHandler(typ string, fn goja.Value, atFront bool) {
	list := st.listeners[typ]
	callable := false
	if obj, ok := fn.(*goja.Object); ok {
		_, callable = goja.AssertFunction(obj)
	}
	for i, l := range list {
		if l.kind != kindHandler {
			continue
		}
		if !callable {
			st.listeners[typ] = append(list[:i:i], list[i+1:]...)
			return
		}
		l.fn = fn
		return
	}
	if !callable {
		return
	}
	l := &listener{fn: fn, kind: kindHandler}
	if atFront {
		st.listeners[typ] = append([]*listener{l}, list...)
		return
	}
	st.listeners[typ] = append(list, l)
}

func (st *targetState) add(typ string, l *listener) {
	for _, existing := range st.listeners[typ] {
		if existing.kind == l.kind && existing.capture == l.capture && existing.fn.StrictEquals(l.fn) {
			return
		}
	}
	st.listeners[typ] = append(st.listeners[typ], l)
}

func (st *targetState) remove(typ string, fn goja.Value, capture bool, kind listenerKind) {
	list := st.listeners[typ]
	for i, l := range list {
		if l.kind == kind && l.capture == capture && l.fn.StrictEquals(fn) {
			st.listeners[typ] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

func (st *targetState) contains(typ string, l *listener) bool {
	for _, x := range st.listeners[typ] {
		if x == l {
			return true
		}
	}
	return false
}

// -- Event objects --

// event is the state behind a DOM Event object. Script sees it through a
// dynamic object so expando properties (keyCode on IE) are kept.
type event struct {
	b          *DOMBridge
	obj        *goja.Object
	typ        string
	bubbles    bool
	cancelable bool
	trusted    bool

	initialized      bool
	dispatching      bool
	target           goja.Value
	currentTarget    goja.Value
	phase            int
	defaultPrevented bool
	stopped          bool
	stoppedNow       bool
	timeStamp        int64

	methods map[string]goja.Value
	expando map[string]goja.Value
}

func (b *DOMBridge) newEvent(typ string, bubbles, cancelable bool) *event {
	ev := &event{
		b:           b,
		typ:         typ,
		bubbles:     bubbles,
		cancelable:  cancelable,
		trusted:     true,
		initialized: true,
		timeStamp:   time.Now().UnixMilli(),
		expando:     make(map[string]goja.Value),
	}
	ev.obj = b.vm.NewDynamicObject(ev)
	b.events[ev.obj] = ev
	return ev
}

// newScriptEvent creates an uninitialized event for document.createEvent.
func (b *DOMBridge) newScriptEvent() *event {
	ev := b.newEvent("", false, false)
	ev.trusted = false
	ev.initialized = false
	return ev
}

func (ev *event) preventDefault() {
	if ev.cancelable {
		ev.defaultPrevented = true
	}
}

func (ev *event) method(name string) goja.Value {
	if ev.methods == nil {
		ev.methods = make(map[string]goja.Value)
	}
	if m, ok := ev.methods[name]; ok {
		return m
	}
	vm := ev.b.vm
	var m goja.Value
	switch name {
	case "preventDefault":
		m = vm.ToValue(func(goja.FunctionCall) goja.Value { ev.preventDefault(); return goja.Undefined() })
	case "stopPropagation":
		m = vm.ToValue(func(goja.FunctionCall) goja.Value { ev.stopped = true; return goja.Undefined() })
	case "stopImmediatePropagation":
		m = vm.ToValue(func(goja.FunctionCall) goja.Value {
			ev.stopped = true
			ev.stoppedNow = true
			return goja.Undefined()
		})
	case "initEvent", "initUIEvent", "initMouseEvent", "initKeyEvent", "initKeyboardEvent", "initCustomEvent":
		m = vm.ToValue(func(call goja.FunctionCall) goja.Value {
			if ev.dispatching {
				return goja.Undefined()
			}
			ev.typ = call.Argument(0).String()
			ev.bubbles = call.Argument(1).ToBoolean()
			ev.cancelable = call.Argument(2).ToBoolean()
			ev.initialized = true
			ev.defaultPrevented = false
			ev.stopped = false
			ev.stoppedNow = false
			if name == "initCustomEvent" {
				ev.expando["detail"] = call.Argument(3)
			}
			return goja.Undefined()
		})
	default:
		return nil
	}
	ev.methods[name] = m
	return m
}

var eventMethods = []string{
	"preventDefault", "stopPropagation", "stopImmediatePropagation", "initEvent",
	"initUIEvent", "initMouseEvent", "initKeyEvent", "initKeyboardEvent", "initCustomEvent",
}

var eventZeroProps = []string{
	"button", "charCode", "clientX", "clientY", "detail", "keyCode", "pageX", "pageY",
	"screenX", "screenY", "which",
}

var eventFalseProps = []string{"altKey", "ctrlKey", "metaKey", "shiftKey"}

func (ev *event) Get(key string) goja.Value {
	if v, ok := ev.expando[key]; ok {
		return v
	}
	vm := ev.b.vm
	orNull := func(v goja.Value) goja.Value {
		if v == nil {
			return goja.Null()
		}
		return v
	}
	switch key {
	case "type":
		return vm.ToValue(ev.typ)
	case "bubbles":
		return vm.ToValue(ev.bubbles)
	case "cancelable":
		return vm.ToValue(ev.cancelable)
	case "target", "srcElement":
		return orNull(ev.target)
	case "currentTarget":
		return orNull(ev.currentTarget)
	case "eventPhase":
		return vm.ToValue(ev.phase)
	case "defaultPrevented":
		return vm.ToValue(ev.defaultPrevented)
	case "returnValue":
		return vm.ToValue(!ev.defaultPrevented)
	case "cancelBubble":
		return vm.ToValue(ev.stopped)
	case "isTrusted":
		return vm.ToValue(ev.trusted)
	case "timeStamp":
		return vm.ToValue(ev.timeStamp)
	case "relatedTarget", "fromElement", "toElement":
		return goja.Null()
	case "view":
		return ev.b.window
	case "NONE":
		return vm.ToValue(phaseNone)
	case "CAPTURING_PHASE":
		return vm.ToValue(phaseCapture)
	case "AT_TARGET":
		return vm.ToValue(phaseTarget)
	case "BUBBLING_PHASE":
		return vm.ToValue(phaseBubble)
	}
	for _, p := range eventZeroProps {
		if p == key {
			return vm.ToValue(0)
		}
	}
	for _, p := range eventFalseProps {
		if p == key {
			return vm.ToValue(false)
		}
	}
	if m := ev.method(key); m != nil {
		return m
	}
	return nil
}

func (ev *event) Set(key string, val goja.Value) bool {
	switch key {
	case "returnValue":
		if !val.ToBoolean() {
			ev.preventDefault()
		}
		return true
	case "cancelBubble":
		if val.ToBoolean() {
			ev.stopped = true
		}
		return true
	}
	ev.expando[key] = val
	return true
}

func (ev *event) Has(key string) bool { return ev.Get(key) != nil }

func (ev *event) Delete(key string) bool {
	delete(ev.expando, key)
	return true
}

func (ev *event) Keys() []string {
	keys := []string{"type", "bubbles", "cancelable", "target", "currentTarget", "eventPhase", "defaultPrevented", "timeStamp"}
	extra := make([]string, 0, len(ev.expando))
	for k := range ev.expando {
		extra = append(extra, k)
	}
	sort.Strings(extra)
	return append(keys, extra...)
}

// -- Target methods --

// thisTarget resolves the receiver of an EventTarget method. A bare call
// at global scope targets the window.
func (b *DOMBridge) thisTarget(call goja.FunctionCall) *goja.Object {
	if isNullish(call.This) {
		return b.window
	}
	if obj, ok := call.This.(*goja.Object); ok {
		if obj == b.window || b.objects[obj] != nil {
			return obj
		}
		if _, ok := b.targets[obj]; ok {
			return obj
		}
	}
	panic(b.vm.NewTypeError("Illegal invocation"))
}

func listenerOptions(v goja.Value) (capture, once bool) {
	if obj, ok := v.(*goja.Object); ok {
		if c := obj.Get("capture"); c != nil {
			capture = c.ToBoolean()
		}
		if o := obj.Get("once"); o != nil {
			once = o.ToBoolean()
		}
		return capture, once
	}
	if v != nil && !goja.IsUndefined(v) {
		capture = v.ToBoolean()
	}
	return capture, false
}

func (b *DOMBridge) initEventFuncs() {
	b.eventFuncs = make(map[string]goja.Value)
	features := b.browser.Features
	if features.EventModelW3C {
		b.eventFuncs["addEventListener"] = b.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			target := b.thisTarget(call)
			if isNullish(call.Argument(1)) {
				return goja.Undefined()
			}
			capture, once := listenerOptions(call.Argument(2))
			b.state(target).add(call.Argument(0).String(), &listener{fn: call.Argument(1), capture: capture, once: once})
			return goja.Undefined()
		})
		b.eventFuncs["removeEventListener"] = b.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			target := b.thisTarget(call)
			capture, _ := listenerOptions(call.Argument(2))
			b.state(target).remove(call.Argument(0).String(), call.Argument(1), capture, kindListener)
			return goja.Undefined()
		})
		b.eventFuncs["dispatchEvent"] = b.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			target := b.thisTarget(call)
			ev := b.eventArg(call.Argument(0))
			if !ev.initialized || ev.dispatching {
				b.throwDOMException("InvalidStateError", "The event is already being dispatched or was not initialized.")
			}
			ev.trusted = false
			if n := b.objects[target]; n != nil && ev.typ == "click" {
				return b.vm.ToValue(b.dispatchActivation(n, ev))
			}
			return b.vm.ToValue(b.dispatch(target, ev))
		})
	}
	if features.EventModelAttach {
		b.eventFuncs["attachEvent"] = b.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			target := b.thisTarget(call)
			typ := strings.TrimPrefix(call.Argument(0).String(), "on")
			if _, ok := goja.AssertFunction(call.Argument(1)); !ok {
				return b.vm.ToValue(false)
			}
			b.state(target).add(typ, &listener{fn: call.Argument(1), kind: kindAttach})
			return b.vm.ToValue(true)
		})
		b.eventFuncs["detachEvent"] = b.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			target := b.thisTarget(call)
			typ := strings.TrimPrefix(call.Argument(0).String(), "on")
			b.state(target).remove(typ, call.Argument(1), false, kindAttach)
			return goja.Undefined()
		})
		b.eventFuncs["fireEvent"] = b.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			target := b.thisTarget(call)
			typ := strings.TrimPrefix(call.Argument(0).String(), "on")
			var ev *event
			if src, ok := b.events[asObject(call.Argument(1))]; ok {
				ev = src
				ev.typ = typ
				ev.initialized = true
			} else {
				ev = b.newEvent(typ, bubblesByDefault(typ), true)
			}
			ev.trusted = false
			return b.vm.ToValue(b.dispatch(target, ev))
		})
	}
}

func asObject(v goja.Value) *goja.Object {
	obj, _ := v.(*goja.Object)
	return obj
}

func (b *DOMBridge) eventArg(v goja.Value) *event {
	if obj, ok := v.(*goja.Object); ok {
		if ev, ok := b.events[obj]; ok {
			return ev
		}
	}
	panic(b.vm.NewTypeError("Failed to execute 'dispatchEvent': parameter 1 is not of type 'Event'."))
}

// bubblesByDefault reports whether a user-agent event of this type bubbles.
func bubblesByDefault(typ string) bool {
	switch typ {
	case "focus", "blur", "load", "unload", "readystatechange", "scroll", "mouseenter", "mouseleave", "abort", "error":
		return false
	}
	return true
}

// defineHandlerProperties adds on* accessors for names to a prototype.
// Window handlers defined on body forward to the window.
func (b *DOMBridge) defineHandlerProperties(proto *goja.Object, names []string) {
	props := make(map[string]property, len(names))
	for _, name := range names {
		typ := name
		targetOf := func(n *html.Node) *goja.Object {
			if isWindowHandler(typ) && isElement(n, "body", "frameset") {
				return b.window
			}
			return b.wrap(n)
		}
		props["on"+typ] = property{
			get: func(n *html.Node) goja.Value { return b.getHandler(targetOf(n), typ) },
			set: func(n *html.Node, v goja.Value) { b.setHandlerProperty(targetOf(n), typ, v) },
		}
	}
	b.defineProperties(proto, props)
}

func (b *DOMBridge) getHandler(target *goja.Object, typ string) goja.Value {
	b.syncInlineHandler(target, typ)
	if h := b.state(target).handler(typ); h != nil {
		return h.fn
	}
	return goja.Null()
}

func (b *DOMBridge) setHandlerProperty(target *goja.Object, typ string, v goja.Value) {
	st := b.state(target)
	st.setHandler(typ, v, false)
	st.fromAttr[typ] = false
	if n := b.inlineSource(target, typ); n != nil {
		st.attrSource[typ] = attrOr(n, "on"+typ, "")
	} else {
		delete(st.attrSource, typ)
	}
}

// inlineSource returns the element whose on<typ> attribute feeds target's handler.
func (b *DOMBridge) inlineSource(target *goja.Object, typ string) *html.Node {
	if target == b.window {
		if !isWindowHandler(typ) {
			return nil
		}
		if body := b.body(); body != nil && hasAttr(body, "on"+typ) {
			return body
		}
		return nil
	}
	n := b.objects[target]
	if n == nil || n.Type != html.ElementNode || !hasAttr(n, "on"+typ) {
		return nil
	}
	if isWindowHandler(typ) && isElement(n, "body", "frameset") {
		return nil
	}
	return n
}

// syncInlineHandler compiles an on* content attribute into the handler
// slot when the attribute is new or changed since it was last seen.
func (b *DOMBridge) syncInlineHandler(target *goja.Object, typ string) {
	st := b.state(target)
	n := b.inlineSource(target, typ)
	if n == nil {
		if st.fromAttr[typ] {
			st.setHandler(typ, goja.Null(), false)
			st.fromAttr[typ] = false
			delete(st.attrSource, typ)
		}
		return
	}
	src := attrOr(n, "on"+typ, "")
	if prev, seen := st.attrSource[typ]; seen && prev == src {
		return
	}
	st.attrSource[typ] = src
	fn := b.compileHandler(typ, src)
	if fn == nil {
		return
	}
	st.setHandler(typ, fn, true)
	st.fromAttr[typ] = true
}

func (b *DOMBridge) compileHandler(typ, body string) goja.Value {
	source := "on" + typ + " attribute"
	code := "(function(event){with(document){with(this.form||{}){with(this){" + body + "\n}}}})"
	fn, err := b.vm.RunScript(source, code)
	if err != nil {
		b.sched.ReportError(source, err)
		return nil
	}
	return fn
}

// syncWindowProperty picks up handlers declared as global functions
// (function onload() {...}), which replace the accessor.
func (b *DOMBridge) syncWindowProperty(typ string) {
	v := b.window.Get("on" + typ)
	if v == nil {
		return
	}
	if _, ok := goja.AssertFunction(v); !ok {
		return
	}
	st := b.state(b.window)
	if h := st.handler(typ); h != nil && h.fn.StrictEquals(v) {
		return
	}
	st.setHandler(typ, v, false)
	st.fromAttr[typ] = false
}

// -- Dispatch --

// eventPath lists the targets above target, nearest first.
func (b *DOMBridge) eventPath(target *goja.Object, typ string) []*goja.Object {
	n := b.objects[target]
	if n == nil {
		return nil
	}
	var path []*goja.Object
	for p := n.Parent; p != nil; p = p.Parent {
		path = append(path, b.wrap(p))
	}
	if typ != "load" && b.isConnected(n) {
		path = append(path, b.window)
	}
	return path
}

// dispatch runs ev through the capture, target and bubble phases and
// reports whether the default action should run.
func (b *DOMBridge) dispatch(target *goja.Object, ev *event) bool {
	path := b.eventPath(target, ev.typ)
	ev.target = target
	ev.dispatching = true
	prev := b.currentEvent
	b.currentEvent = ev.obj
	defer func() {
		b.currentEvent = prev
		ev.dispatching = false
		ev.phase = phaseNone
		ev.currentTarget = nil
	}()

	for i := len(path) - 1; i >= 0 && !ev.stopped; i-- {
		ev.phase = phaseCapture
		b.invokeListeners(path[i], ev)
	}
	if !ev.stopped {
		ev.phase = phaseTarget
		b.invokeListeners(target, ev)
	}
	if ev.bubbles {
		for i := 0; i < len(path) && !ev.stopped; i++ {
			ev.phase = phaseBubble
			b.invokeListeners(path[i], ev)
		}
	}
	return !ev.defaultPrevented
}

func (b *DOMBridge) invokeListeners(obj *goja.Object, ev *event) {
	if obj == b.window {
		b.syncWindowProperty(ev.typ)
	}
	b.syncInlineHandler(obj, ev.typ)
	st := b.state(obj)
	list := append([]*listener(nil), st.listeners[ev.typ]...)
	if len(list) == 0 {
		return
	}
	ev.currentTarget = obj
	for _, l := range list {
		if ev.stoppedNow {
			return
		}
		switch ev.phase {
		case phaseCapture:
			if l.kind != kindListener || !l.capture {
				continue
			}
		case phaseBubble:
			if l.kind == kindListener && l.capture {
				continue
			}
		}
		if !st.contains(ev.typ, l) {
			continue
		}
		if l.once {
			st.remove(ev.typ, l.fn, l.capture, l.kind)
		}
		b.callListener(obj, l, ev)
	}
}

func (b *DOMBridge) callListener(obj *goja.Object, l *listener, ev *event) {
	this := goja.Value(obj)
	fn, ok := goja.AssertFunction(l.fn)
	if !ok {
		// A listener object with a handleEvent method.
		lobj, isObj := l.fn.(*goja.Object)
		if !isObj {
			return
		}
		if fn, ok = goja.AssertFunction(lobj.Get("handleEvent")); !ok {
			return
		}
		this = lobj
	}
	if l.kind == kindAttach {
		this = b.window
	}
	b.sched.Invoke("on"+ev.typ+" handler", func() error {
		ret, err := fn(this, ev.obj)
		if err != nil {
			return err
		}
		if l.kind != kindListener && ret != nil && ret.StrictEquals(b.vm.ToValue(false)) {
			ev.preventDefault()
		}
		return nil
	})
}

// -- Activation --

func (b *DOMBridge) newMouseEvent(typ string) *event {
	return b.newEvent(typ, true, true)
}

func (b *DOMBridge) click(n *html.Node) {
	if isDisabledControl(n) {
		return
	}
	b.dispatchActivation(n, b.newMouseEvent("click"))
}

// dispatchActivation dispatches a click and runs the activation behavior
// of the element or its nearest activatable ancestor unless cancelled.
func (b *DOMBridge) dispatchActivation(n *html.Node, ev *event) bool {
	revert, changed := b.preActivate(n)
	if !b.dispatch(b.wrap(n), ev) {
		if revert != nil {
			revert()
		}
		return false
	}
	if changed {
		b.dispatch(b.wrap(n), b.newEvent("input", true, false))
		b.dispatch(b.wrap(n), b.newEvent("change", true, false))
	}
	b.activate(n)
	return true
}

// preActivate toggles checkboxes and radio buttons before the click is
// dispatched; the returned func undoes it.
func (b *DOMBridge) preActivate(n *html.Node) (revert func(), changed bool) {
	if !isElement(n, "input") {
		return nil, false
	}
	switch inputType(n) {
	case "checkbox":
		was := b.isChecked(n)
		b.setChecked(n, !was)
		return func() { b.setChecked(n, was) }, true
	case "radio":
		if b.isChecked(n) {
			return nil, false
		}
		group := b.radioGroup(n)
		previous := make(map[*html.Node]bool, len(group))
		for _, r := range group {
			previous[r] = b.isChecked(r)
		}
		b.setChecked(n, true)
		return func() {
			for r, was := range previous {
				b.controlState(r).checked = was
				b.controlState(r).checkedDirty = true
			}
		}, true
	}
	return nil, false
}

func (b *DOMBridge) activate(n *html.Node) {
	for p := n; p != nil; p = p.Parent {
		if p.Type != html.ElementNode {
			continue
		}
		switch p.Data {
		case "a", "area":
			if href, ok := getAttr(p, "href"); ok {
				b.followHyperlink(href)
				return
			}
		case "input":
			switch inputType(p) {
			case "submit", "image":
				if form := b.formOwner(p); form != nil {
					b.requestSubmit(form, p)
				}
			case "reset":
				if form := b.formOwner(p); form != nil {
					b.resetForm(form)
				}
			}
			return
		case "button":
			switch buttonType(p) {
			case "submit":
				if form := b.formOwner(p); form != nil {
					b.requestSubmit(form, p)
				}
			case "reset":
				if form := b.formOwner(p); form != nil {
					b.resetForm(form)
				}
			}
			return
		}
	}
}

func (b *DOMBridge) followHyperlink(href string) {
	href = strings.TrimSpace(href)
	if isJavaScriptURL(href) {
		b.runJavaScriptURL(href)
		return
	}
	resolved, err := b.env.ResolveURL(href)
	if err != nil {
		b.logger.Debug("Ignoring unresolvable link", zap.String("href", href), zap.Error(err))
		return
	}
	b.navigate(resolved, false)
}

func isJavaScriptURL(s string) bool {
	return len(s) >= 11 && strings.EqualFold(s[:11], "javascript:")
}

// runJavaScriptURL evaluates a javascript: URL as a queued task.
func (b *DOMBridge) runJavaScriptURL(raw string) {
	code := raw[len("javascript:"):]
	if unescaped, err := url.PathUnescape(code); err == nil {
		code = unescaped
	}
	const source = "javascript: URL"
	b.sched.Go(source, func() func(vm *goja.Runtime) {
		return func(vm *goja.Runtime) {
			if _, err := vm.RunScript(source, code); err != nil {
				b.sched.ReportError(source, err)
			}
		}
	})
}

func isFocusable(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	switch n.Data {
	case "input", "select", "textarea", "button":
		return !hasAttr(n, "disabled")
	case "a", "area":
		return hasAttr(n, "href")
	}
	return hasAttr(n, "tabindex")
}

func (b *DOMBridge) focus(n *html.Node) {
	if !isFocusable(n) || b.activeElement == n || !b.isConnected(n) {
		return
	}
	if b.activeElement != nil {
		b.blur(b.activeElement)
	}
	b.activeElement = n
	b.dispatch(b.wrap(n), b.newEvent("focus", false, false))
}

func (b *DOMBridge) blur(n *html.Node) {
	if b.activeElement != n {
		return
	}
	b.activeElement = nil
	b.dispatch(b.wrap(n), b.newEvent("blur", false, false))
}

// -- Session-driven events --

// FireDOMContentLoaded marks the document interactive and fires
// DOMContentLoaded on the document.
func (b *DOMBridge) FireDOMContentLoaded() {
	b.SetReadyState("interactive")
	b.dispatch(b.document, b.newEvent("DOMContentLoaded", true, false))
}

// FireLoad completes the document and fires load on the window.
func (b *DOMBridge) FireLoad() {
	b.SetReadyState("complete")
	ev := b.newEvent("load", false, false)
	b.dispatch(b.window, ev)
}

// FireUnload fires unload on the window before the document is discarded.
func (b *DOMBridge) FireUnload() {
	b.dispatch(b.window, b.newEvent("unload", false, false))
}

// DispatchHashChange fires hashchange on the window.
func (b *DOMBridge) DispatchHashChange(oldURL, newURL string) {
	ev := b.newEvent("hashchange", false, false)
	ev.expando["oldURL"] = b.str(oldURL)
	ev.expando["newURL"] = b.str(newURL)
	b.dispatch(b.window, ev)
}

// DispatchPopState fires popstate on the window with the entry's state.
func (b *DOMBridge) DispatchPopState(state interface{}) {
	ev := b.newEvent("popstate", false, false)
	if state == nil {
		ev.expando["state"] = goja.Null()
	} else {
		ev.expando["state"] = b.vm.ToValue(state)
	}
	b.dispatch(b.window, ev)
}
