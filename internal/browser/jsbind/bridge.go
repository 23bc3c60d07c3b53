// internal/browser/jsbind/bridge.go
package jsbind

import (
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"github.com/dop251/goja"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/alertbench/api/schemas"
)

// DOMBridge manages the connection between the Goja runtime and the Go DOM
// representation of one document. Host objects are created lazily and
// cached, so a node always maps to the same JS object.
//
// A bridge is not safe for concurrent use: every method must be called on
// the event loop goroutine that owns vm.
type DOMBridge struct {
	vm      *goja.Runtime
	logger  *zap.Logger
	browser schemas.BrowserVersion
	env     BrowserEnvironment
	sched   Scheduler

	doc      *html.Node
	document *goja.Object
	window   *goja.Object

	// Identity maps between DOM nodes and their wrappers.
	nodes   map[*html.Node]*goja.Object
	objects map[*goja.Object]*html.Node

	protos      map[string]*goja.Object
	collections map[collectionKey]*goja.Object
	styles      map[*html.Node]*goja.Object
	targets     map[*goja.Object]*targetState
	controls    map[*html.Node]*controlState
	formNames   map[*html.Node]map[string]bool
	events      map[*goja.Object]*event
	docMethods  map[string]goja.Value
	docExpando  map[string]goja.Value
	eventFuncs  map[string]goja.Value

	location  *goja.Object
	history   *goja.Object
	navigator *goja.Object
	xml       *xmlViews

	readyState    string
	currentScript *html.Node
	writeAnchor   *html.Node
	started       map[*html.Node]bool
	opened        bool // document.open() after load
	writeBuffer   strings.Builder
	openedScripts int
	currentEvent  goja.Value
	activeElement *html.Node
	windowName    string
	scriptSeq     int
}

// NewDOMBridge installs the window and document globals on vm. browser
// selects the quirks the host objects exhibit.
func NewDOMBridge(vm *goja.Runtime, logger *zap.Logger, browser schemas.BrowserVersion, env BrowserEnvironment, sched Scheduler) *DOMBridge {
	if logger == nil {
		logger = zap.NewNop()
	}

	b := &DOMBridge{
		vm:          vm,
		logger:      logger.Named("dom_bridge"),
		browser:     browser,
		env:         env,
		sched:       sched,
		nodes:       make(map[*html.Node]*goja.Object),
		objects:     make(map[*goja.Object]*html.Node),
		protos:      make(map[string]*goja.Object),
		collections: make(map[collectionKey]*goja.Object),
		styles:      make(map[*html.Node]*goja.Object),
		targets:     make(map[*goja.Object]*targetState),
		controls:    make(map[*html.Node]*controlState),
		formNames:   make(map[*html.Node]map[string]bool),
		events:      make(map[*goja.Object]*event),
		docMethods:  make(map[string]goja.Value),
		docExpando:  make(map[string]goja.Value),
		started:     make(map[*html.Node]bool),
		readyState:  "loading",
	}
	b.window = vm.GlobalObject()

	b.initEventFuncs()
	b.initPrototypes()
	b.document = vm.NewDynamicObject(b.newDocumentObject())
	b.setClass(b.document, "HTMLDocument")
	b.initializeRuntime()
	return b
}

// initializeRuntime sets the global variables (window, document, location...) in the JS context.
func (b *DOMBridge) initializeRuntime() {
	b.initWindow()
	b.initLocation()
	b.initHistory()
	b.initNavigator()
	b.initConstructors()
	if b.browser.Features.XMLHttpRequest {
		b.initXHR()
	}
	if b.browser.IsIE() {
		b.initActiveX()
	}
	if b.browser.Features.DOMParser {
		b.initDOMParser()
	}
	if b.browser.Features.URLConstructor {
		b.initURL()
	}
}

// UpdateDOM sets the document the bridge exposes and publishes its element
// ids as globals. It is called once, before any script runs.
func (b *DOMBridge) UpdateDOM(doc *html.Node) {
	if b.doc != nil {
		delete(b.objects, b.document)
		delete(b.nodes, b.doc)
	}
	b.doc = doc
	b.nodes[doc] = b.document
	b.objects[b.document] = doc
	b.defineNamedGlobals()
}

// Document returns the DOM the bridge exposes, including script mutations.
func (b *DOMBridge) Document() *html.Node { return b.doc }

// ReadyState returns document.readyState.
func (b *DOMBridge) ReadyState() string { return b.readyState }

// SetReadyState updates document.readyState and fires readystatechange on
// the document.
func (b *DOMBridge) SetReadyState(state string) {
	if b.readyState == state {
		return
	}
	b.readyState = state
	b.dispatch(b.document, b.newEvent("readystatechange", false, false))
}

// WrapNode returns the JS object for a DOM node, creating it on first use.
func (b *DOMBridge) WrapNode(n *html.Node) goja.Value {
	if n == nil {
		return goja.Null()
	}
	return b.wrap(n)
}

func (b *DOMBridge) wrap(n *html.Node) *goja.Object {
	if obj, ok := b.nodes[n]; ok {
		return obj
	}
	obj := b.vm.NewObject()
	if err := obj.SetPrototype(b.protoFor(n)); err != nil {
		b.logger.Error("Failed to set wrapper prototype", zap.String("node", n.Data), zap.Error(err))
	}
	b.nodes[n] = obj
	b.objects[obj] = n
	if n.Type == html.ElementNode && n.Data == "form" {
		b.defineFormControls(obj, n)
	}
	return obj
}

// unwrap returns the node behind a wrapper, or nil for any other value.
func (b *DOMBridge) unwrap(v goja.Value) *html.Node {
	if obj, ok := v.(*goja.Object); ok {
		return b.objects[obj]
	}
	return nil
}

// thisNode resolves the receiver of a host method or accessor.
func (b *DOMBridge) thisNode(call goja.FunctionCall) *html.Node {
	if n := b.unwrap(call.This); n != nil {
		return n
	}
	panic(b.vm.NewTypeError("Illegal invocation"))
}

// argNode resolves a node argument, throwing a TypeError for anything else.
func (b *DOMBridge) argNode(call goja.FunctionCall, i int, method string) *html.Node {
	if n := b.unwrap(call.Argument(i)); n != nil {
		return n
	}
	panic(b.vm.NewTypeError(fmt.Sprintf("Failed to execute '%s': parameter %d is not of type 'Node'.", method, i+1)))
}

// -- Property definition helpers --

type property struct {
	get func(n *html.Node) goja.Value
	set func(n *html.Node, v goja.Value)
}

type method func(n *html.Node, call goja.FunctionCall) goja.Value

func (b *DOMBridge) defineProperties(obj *goja.Object, props map[string]property) {
	for name, p := range props {
		p := p
		getter := b.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			return p.get(b.thisNode(call))
		})
		var setter goja.Value
		if p.set != nil {
			setter = b.vm.ToValue(func(call goja.FunctionCall) goja.Value {
				p.set(b.thisNode(call), call.Argument(0))
				return goja.Undefined()
			})
		}
		if err := obj.DefineAccessorProperty(name, getter, setter, goja.FLAG_TRUE, goja.FLAG_TRUE); err != nil {
			b.logger.Error("Failed to define property", zap.String("property", name), zap.Error(err))
		}
	}
}

func (b *DOMBridge) methodValue(m method) goja.Value {
	return b.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		return m(b.thisNode(call), call)
	})
}

func (b *DOMBridge) defineMethods(obj *goja.Object, methods map[string]method) {
	for name, m := range methods {
		if err := obj.Set(name, b.methodValue(m)); err != nil {
			b.logger.Error("Failed to define method", zap.String("method", name), zap.Error(err))
		}
	}
}

// setGlobal defines a global, logging a rejected assignment.
func (b *DOMBridge) setGlobal(name string, value interface{}) {
	if err := b.window.Set(name, value); err != nil {
		b.logger.Error("Failed to set global", zap.String("name", name), zap.Error(err))
	}
}

func (b *DOMBridge) defineGlobalAccessor(name string, get func() goja.Value, set func(goja.Value)) {
	getter := b.vm.ToValue(func(goja.FunctionCall) goja.Value { return get() })
	var setter goja.Value
	if set != nil {
		setter = b.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			set(call.Argument(0))
			return goja.Undefined()
		})
	}
	if err := b.window.DefineAccessorProperty(name, getter, setter, goja.FLAG_TRUE, goja.FLAG_TRUE); err != nil {
		b.logger.Error("Failed to define global accessor", zap.String("name", name), zap.Error(err))
	}
}

// -- Value helpers --

func (b *DOMBridge) str(s string) goja.Value { return b.vm.ToValue(s) }

// valueString converts a JS value the way DOM string setters do: null
// becomes "null" unless nullAsEmpty is set.
func valueString(v goja.Value, nullAsEmpty bool) string {
	if v == nil || goja.IsUndefined(v) {
		if nullAsEmpty {
			return ""
		}
		return "undefined"
	}
	if goja.IsNull(v) {
		if nullAsEmpty {
			return ""
		}
		return "null"
	}
	return v.String()
}

func isNullish(v goja.Value) bool {
	return v == nil || goja.IsUndefined(v) || goja.IsNull(v)
}

// -- Attribute helpers --

func getAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

func attrOr(n *html.Node, key, fallback string) string {
	if v, ok := getAttr(n, key); ok {
		return v
	}
	return fallback
}

func hasAttr(n *html.Node, key string) bool {
	_, ok := getAttr(n, key)
	return ok
}

func setAttr(n *html.Node, key, val string) {
	key = strings.ToLower(key)
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) bool {
	for i, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return true
		}
	}
	return false
}

func setBoolAttr(n *html.Node, key string, on bool) {
	if on {
		if !hasAttr(n, key) {
			setAttr(n, key, "")
		}
		return
	}
	removeAttr(n, key)
}

// -- Tree helpers --

func isElement(n *html.Node, tags ...string) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	if len(tags) == 0 {
		return true
	}
	for _, t := range tags {
		if n.Data == t {
			return true
		}
	}
	return false
}

// isConnected reports whether n is part of the bridge's document.
func (b *DOMBridge) isConnected(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == b.doc {
			return true
		}
	}
	return false
}

func ancestor(n *html.Node, tag string) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if isElement(p, tag) {
			return p
		}
	}
	return nil
}

func (b *DOMBridge) body() *html.Node {
	if b.doc == nil {
		return nil
	}
	if n := htmlquery.FindOne(b.doc, "/html/body"); n != nil {
		return n
	}
	return htmlquery.FindOne(b.doc, "/html/frameset")
}

func (b *DOMBridge) head() *html.Node {
	if b.doc == nil {
		return nil
	}
	return htmlquery.FindOne(b.doc, "/html/head")
}

func (b *DOMBridge) documentElement() *html.Node {
	if b.doc == nil {
		return nil
	}
	for c := b.doc.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return c
		}
	}
	return nil
}

// xpathLiteral quotes s as an XPath string literal.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = "'" + p + "'"
	}
	return "concat(" + strings.Join(quoted, `, "'", `) + ")"
}

// isXMLName reports whether s can be used as a tag name in an XPath step.
func isXMLName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_', r > 0x7f:
		case i > 0 && (r >= '0' && r <= '9' || r == '-' || r == '.'):
		default:
			return false
		}
	}
	return true
}

// find runs an XPath query below root, logging rather than failing on a
// malformed expression.
func (b *DOMBridge) find(root *html.Node, expr string) []*html.Node {
	if root == nil {
		return nil
	}
	nodes, err := htmlquery.QueryAll(root, expr)
	if err != nil {
		b.logger.Debug("XPath query failed", zap.String("xpath", expr), zap.Error(err))
		return nil
	}
	return nodes
}
