// internal/browser/jsbind/document.go
package jsbind

import (
	"fmt"
	"sort"
	"strings"

	"github.com/antchfx/htmlquery"
	"github.com/dop251/goja"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// documentObject is the script-visible document. It is a dynamic object so
// that named forms and images resolve as properties while expandos still work.
type documentObject struct {
	b       *DOMBridge
	getters map[string]func() goja.Value
	setters map[string]func(goja.Value)
}

var documentHandlers = func() map[string]bool {
	m := make(map[string]bool, len(elementHandlers)+1)
	for _, h := range elementHandlers {
		m["on"+h] = true
	}
	m["onDOMContentLoaded"] = true
	return m
}()

func (b *DOMBridge) newDocumentObject() *documentObject {
	d := &documentObject{b: b}
	d.initGetters()
	d.initSetters()
	b.initDocumentMethods()
	return d
}

func (d *documentObject) initGetters() {
	b := d.b
	wrap := func(n func() *html.Node) func() goja.Value {
		return func() goja.Value { return b.WrapNode(n()) }
	}
	list := func(kind, xpath string) func() goja.Value {
		return func() goja.Value {
			return b.liveCollection(collectionKey{b.doc, kind}, func() []*html.Node { return b.find(b.doc, xpath) }, true)
		}
	}
	d.getters = map[string]func() goja.Value{
		"nodeType":        func() goja.Value { return b.vm.ToValue(documentNode) },
		"nodeName":        func() goja.Value { return b.str("#document") },
		"nodeValue":       goja.Null,
		"parentNode":      goja.Null,
		"parentElement":   goja.Null,
		"ownerDocument":   goja.Null,
		"documentElement": wrap(b.documentElement),
		"body":            wrap(b.body),
		"head":            wrap(b.head),
		"firstChild":      func() goja.Value { return b.WrapNode(b.doc.FirstChild) },
		"lastChild":       func() goja.Value { return b.WrapNode(b.doc.LastChild) },
		"childNodes": func() goja.Value {
			return b.liveCollection(collectionKey{b.doc, "childNodes"}, func() []*html.Node { return children(b.doc, false) }, false)
		},
		"children": func() goja.Value {
			return b.liveCollection(collectionKey{b.doc, "children"}, func() []*html.Node { return children(b.doc, true) }, true)
		},
		"doctype": func() goja.Value {
			for c := b.doc.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.DoctypeNode {
					return b.wrap(c)
				}
			}
			return goja.Null()
		},
		"textContent": func() goja.Value {
			if b.browser.Features.TextContent {
				return goja.Null()
			}
			return goja.Undefined()
		},
		"title":        func() goja.Value { return b.str(b.title()) },
		"cookie":       func() goja.Value { return b.str(b.cookie()) },
		"URL":          func() goja.Value { return b.str(b.env.CurrentURL()) },
		"documentURI":  func() goja.Value { return b.str(b.env.CurrentURL()) },
		"location":     func() goja.Value { return b.location },
		"readyState":   func() goja.Value { return b.str(b.readyState) },
		"referrer":     func() goja.Value { return b.str("") },
		"domain":       func() goja.Value { return b.str(urlPart(b.env.CurrentURL(), "hostname")) },
		"characterSet": func() goja.Value { return b.str("UTF-8") },
		"charset":      func() goja.Value { return b.str("UTF-8") },
		"contentType":  func() goja.Value { return b.str("text/html") },
		"compatMode": func() goja.Value {
			for c := b.doc.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.DoctypeNode {
					return b.str("CSS1Compat")
				}
			}
			return b.str("BackCompat")
		},
		"defaultView": func() goja.Value { return b.window },
		"activeElement": func() goja.Value {
			if b.activeElement != nil && b.isConnected(b.activeElement) {
				return b.wrap(b.activeElement)
			}
			return b.WrapNode(b.body())
		},
		"forms":   list("forms", "//form"),
		"images":  list("images", "//img"),
		"links":   list("links", "//a[@href]|//area[@href]"),
		"anchors": list("anchors", "//a[@name]"),
		"scripts": list("scripts", "//script"),
		"embeds":  list("embeds", "//embed"),
		"implementation": func() goja.Value {
			impl := b.vm.NewObject()
			_ = impl.Set("hasFeature", func(goja.FunctionCall) goja.Value { return b.vm.ToValue(true) })
			return impl
		},
	}
	if b.browser.IsIE() {
		d.getters["documentMode"] = func() goja.Value { return b.vm.ToValue(b.browser.DocumentMode) }
		d.getters["parentWindow"] = func() goja.Value { return b.window }
		d.getters["all"] = list("all", "//*")
	} else {
		d.getters["currentScript"] = func() goja.Value { return b.WrapNode(b.currentScript) }
	}
}

func (d *documentObject) initSetters() {
	b := d.b
	d.setters = map[string]func(goja.Value){
		"title":    func(v goja.Value) { b.setTitle(valueString(v, false)) },
		"cookie":   func(v goja.Value) { b.setCookie(valueString(v, false)) },
		"location": func(v goja.Value) { b.navigateRef(valueString(v, false), false) },
		"body": func(v goja.Value) {
			n := b.unwrap(v)
			if !isElement(n, "body", "frameset") {
				b.throwDOMException("HierarchyRequestError", "The new body element is of type '"+b.nodeName(n)+"'. It must be either a 'BODY' or 'FRAMESET' element.")
			}
			root := b.documentElement()
			if root == nil {
				return
			}
			if old := b.body(); old != nil {
				root.RemoveChild(old)
			}
			b.insertBefore(root, n, nil)
		},
	}
}

func (d *documentObject) Get(key string) goja.Value {
	b := d.b
	if b.doc == nil {
		return nil
	}
	if get, ok := d.getters[key]; ok {
		return get()
	}
	if m, ok := b.docMethods[key]; ok {
		return m
	}
	if documentHandlers[key] {
		return b.getHandler(b.document, strings.TrimPrefix(key, "on"))
	}
	if v, ok := b.docExpando[key]; ok {
		return v
	}
	return b.documentNamedItem(key)
}

func (d *documentObject) Set(key string, val goja.Value) bool {
	b := d.b
	if set, ok := d.setters[key]; ok {
		set(val)
		return true
	}
	if _, ok := d.getters[key]; ok {
		// Read-only.
		return true
	}
	if documentHandlers[key] {
		b.setHandlerProperty(b.document, strings.TrimPrefix(key, "on"), val)
		return true
	}
	b.docExpando[key] = val
	return true
}

func (d *documentObject) Has(key string) bool { return d.Get(key) != nil }

func (d *documentObject) Delete(key string) bool {
	delete(d.b.docExpando, key)
	return true
}

func (d *documentObject) Keys() []string {
	keys := make([]string, 0, len(d.b.docExpando))
	for k := range d.b.docExpando {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// documentNamedItem resolves document.<name> to forms, images, embeds,
// objects and iframes carrying that name.
func (b *DOMBridge) documentNamedItem(name string) goja.Value {
	if name == "" {
		return nil
	}
	lit := xpathLiteral(name)
	matches := b.find(b.doc, fmt.Sprintf(
		"//form[@name=%[1]s]|//img[@name=%[1]s]|//embed[@name=%[1]s]|//object[@name=%[1]s]|//iframe[@name=%[1]s]|//object[@id=%[1]s]", lit))
	switch len(matches) {
	case 0:
		return nil
	case 1:
		return b.wrap(matches[0])
	}
	return b.staticCollection(matches)
}

func (b *DOMBridge) title() string {
	t := htmlquery.FindOne(b.doc, "//title")
	if t == nil {
		return ""
	}
	return strings.Join(strings.Fields(textContent(t)), " ")
}

func (b *DOMBridge) setTitle(s string) {
	t := htmlquery.FindOne(b.doc, "//title")
	if t == nil {
		head := b.head()
		if head == nil {
			return
		}
		t = &html.Node{Type: html.ElementNode, Data: "title", DataAtom: atom.Title}
		head.AppendChild(t)
	}
	setTextContent(t, s)
}

func (b *DOMBridge) cookie() string {
	c, err := b.env.GetCookieString()
	if err != nil {
		b.logger.Debug("Failed to read cookies", zap.Error(err))
		return ""
	}
	return c
}

func (b *DOMBridge) setCookie(s string) {
	if err := b.env.AddCookieFromString(s); err != nil {
		b.logger.Debug("Rejected cookie", zap.String("cookie", s), zap.Error(err))
	}
}

var eventInterfaces = map[string]bool{
	"event": true, "events": true, "htmlevents": true, "uievent": true, "uievents": true,
	"mouseevent": true, "mouseevents": true, "keyboardevent": true, "keyevents": true,
	"customevent": true, "focusevent": true, "messageevent": true, "hashchangeevent": true,
	"popstateevent": true,
}

func (b *DOMBridge) initDocumentMethods() {
	for name, fn := range b.eventFuncs {
		b.docMethods[name] = fn
	}
	for name, m := range b.nodeMethods() {
		b.docMethods[name] = b.methodValue(m)
	}

	fn := func(f func(call goja.FunctionCall) goja.Value) goja.Value { return b.vm.ToValue(f) }
	methods := map[string]goja.Value{
		"getElementById": fn(func(call goja.FunctionCall) goja.Value {
			id := call.Argument(0).String()
			if id == "" {
				return goja.Null()
			}
			nodes := b.find(b.doc, "//*[@id="+xpathLiteral(id)+"]")
			if len(nodes) == 0 {
				return goja.Null()
			}
			return b.wrap(nodes[0])
		}),
		"getElementsByTagName": fn(func(call goja.FunctionCall) goja.Value {
			return b.elementsByTagName(b.doc, call.Argument(0).String())
		}),
		"getElementsByName": fn(func(call goja.FunctionCall) goja.Value {
			name := call.Argument(0).String()
			return b.liveCollection(collectionKey{b.doc, "name:" + name}, func() []*html.Node {
				return b.find(b.doc, "//*[@name="+xpathLiteral(name)+"]")
			}, false)
		}),
		"querySelector": fn(func(call goja.FunctionCall) goja.Value {
			return b.WrapNode(b.compileSelector(call.Argument(0).String()).QueryFirst(b.doc))
		}),
		"querySelectorAll": fn(func(call goja.FunctionCall) goja.Value {
			return b.staticCollection(b.compileSelector(call.Argument(0).String()).QueryAll(b.doc))
		}),
		"createElement": fn(func(call goja.FunctionCall) goja.Value {
			tag := call.Argument(0).String()
			if !isXMLName(tag) {
				b.throwDOMException("InvalidCharacterError", fmt.Sprintf("The tag name provided ('%s') is not a valid name.", tag))
			}
			tag = strings.ToLower(tag)
			return b.wrap(&html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))})
		}),
		"createTextNode": fn(func(call goja.FunctionCall) goja.Value {
			return b.wrap(&html.Node{Type: html.TextNode, Data: valueString(call.Argument(0), false)})
		}),
		"createComment": fn(func(call goja.FunctionCall) goja.Value {
			return b.wrap(&html.Node{Type: html.CommentNode, Data: valueString(call.Argument(0), false)})
		}),
		"createDocumentFragment": fn(func(goja.FunctionCall) goja.Value {
			return b.wrap(&html.Node{Type: html.DocumentNode})
		}),
		"write": fn(func(call goja.FunctionCall) goja.Value {
			b.documentWrite(joinArgs(call), false)
			return goja.Undefined()
		}),
		"writeln": fn(func(call goja.FunctionCall) goja.Value {
			b.documentWrite(joinArgs(call), true)
			return goja.Undefined()
		}),
		"open": fn(func(goja.FunctionCall) goja.Value {
			if !b.parsing() {
				b.openDocument()
			}
			return b.document
		}),
		"close": fn(func(goja.FunctionCall) goja.Value {
			b.opened = false
			b.writeBuffer.Reset()
			return goja.Undefined()
		}),
		"hasFocus": fn(func(goja.FunctionCall) goja.Value { return b.vm.ToValue(true) }),
	}
	if b.browser.DocumentMode == 0 || b.browser.DocumentMode >= 9 {
		methods["getElementsByClassName"] = fn(func(call goja.FunctionCall) goja.Value {
			return b.elementsByClassName(b.doc, call.Argument(0).String())
		})
	}
	if b.browser.Features.EventModelW3C {
		methods["createEvent"] = fn(func(call goja.FunctionCall) goja.Value {
			kind := call.Argument(0).String()
			if !eventInterfaces[strings.ToLower(kind)] {
				b.throwDOMException("NotSupportedError", fmt.Sprintf("The provided event type ('%s') is invalid.", kind))
			}
			return b.newScriptEvent().obj
		})
	}
	if b.browser.Features.EventModelAttach {
		methods["createEventObject"] = fn(func(goja.FunctionCall) goja.Value {
			return b.newScriptEvent().obj
		})
	}
	for name, m := range methods {
		b.docMethods[name] = m
	}
}

func joinArgs(call goja.FunctionCall) string {
	var sb strings.Builder
	for _, a := range call.Arguments {
		sb.WriteString(valueString(a, false))
	}
	return sb.String()
}

// parsing reports whether a parser-inserted script is running during load,
// the only time document.write inserts in place.
func (b *DOMBridge) parsing() bool {
	return b.readyState == "loading" && b.writeAnchor != nil && b.writeAnchor.Parent != nil
}

// documentWrite inserts markup after the running script while the document
// is loading. Afterwards it implies document.open and the written markup
// becomes the whole document.
func (b *DOMBridge) documentWrite(markup string, newline bool) {
	if newline {
		markup += "\n"
	}
	if b.parsing() && !b.opened {
		b.writeInPlace(markup)
		return
	}
	if b.readyState == "loading" && !b.opened {
		b.logger.Debug("Ignoring document.write from an asynchronous script")
		return
	}
	if !b.opened {
		b.openDocument()
	}
	b.writeBuffer.WriteString(markup)
	b.reparseOpened()
}

// writeInPlace parses markup in the context of the running script's parent.
// Scripts in it stay pending, so the session runs them next in document
// order.
func (b *DOMBridge) writeInPlace(markup string) {
	parent := b.writeAnchor.Parent
	context := parent
	if context.Type != html.ElementNode {
		context = nil
	}
	if context == nil {
		context = &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	}
	nodes, err := html.ParseFragment(strings.NewReader(markup), context)
	if err != nil {
		b.logger.Debug("Failed to parse written markup", zap.Error(err))
		return
	}
	ref := b.writeAnchor.NextSibling
	for _, n := range nodes {
		parent.InsertBefore(n, ref)
		b.writeAnchor = n
	}
	if form := ancestor(b.writeAnchor, "form"); form != nil {
		if obj, ok := b.nodes[form]; ok {
			b.defineFormControls(obj, form)
		}
	}
}

// openDocument clears the document for document.open.
func (b *DOMBridge) openDocument() {
	b.opened = true
	b.writeBuffer.Reset()
	b.openedScripts = 0
	b.activeElement = nil
	for c := b.doc.FirstChild; c != nil; {
		next := c.NextSibling
		b.doc.RemoveChild(c)
		c = next
	}
}

// reparseOpened rebuilds an opened document from everything written so
// far, then runs the scripts that have not run yet.
func (b *DOMBridge) reparseOpened() {
	parsed, err := html.Parse(strings.NewReader(b.writeBuffer.String()))
	if err != nil {
		b.logger.Debug("Failed to parse written document", zap.Error(err))
		return
	}
	for c := b.doc.FirstChild; c != nil; {
		next := c.NextSibling
		b.doc.RemoveChild(c)
		c = next
	}
	for c := parsed.FirstChild; c != nil; {
		next := c.NextSibling
		parsed.RemoveChild(c)
		b.doc.AppendChild(c)
		c = next
	}
	scripts := collectScripts(b.doc)
	for i := 0; i < b.openedScripts && i < len(scripts); i++ {
		b.started[scripts[i]] = true
	}
	for {
		scripts = collectScripts(b.doc)
		if b.openedScripts >= len(scripts) {
			return
		}
		s := scripts[b.openedScripts]
		b.openedScripts++
		b.maybeRunInserted(s)
	}
}
