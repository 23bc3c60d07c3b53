// internal/browser/jsbind/nodes.go
package jsbind

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/dop251/goja"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/xkilldash9x/alertbench/internal/browser/style"
)

// Node type constants as exposed to script.
const (
	elementNode  = 1
	textNode     = 3
	commentNode  = 8
	documentNode = 9
	doctypeNode  = 10
	fragmentNode = 11
)

// tagGroups selects the specialised prototype for an element.
var tagGroups = map[string]string{
	"form":     "form",
	"input":    "control",
	"textarea": "control",
	"button":   "control",
	"select":   "select",
	"option":   "option",
	"a":        "anchor",
	"area":     "anchor",
	"script":   "script",
	"img":      "embedded",
	"iframe":   "embedded",
	"frame":    "embedded",
	"body":     "body",
	"frameset": "body",
}

func (b *DOMBridge) newProto(parent *goja.Object) *goja.Object {
	obj := b.vm.NewObject()
	if err := obj.SetPrototype(parent); err != nil {
		b.logger.Error("Failed to chain prototype", zap.Error(err))
	}
	return obj
}

func (b *DOMBridge) initPrototypes() {
	node := b.vm.NewObject()
	for name, fn := range b.eventFuncs {
		_ = node.Set(name, fn)
	}
	b.defineProperties(node, b.nodeProperties())
	b.defineMethods(node, b.nodeMethods())
	b.protos["node"] = node

	chardata := b.newProto(node)
	b.defineProperties(chardata, map[string]property{
		"data": {
			get: func(n *html.Node) goja.Value { return b.str(n.Data) },
			set: func(n *html.Node, v goja.Value) { n.Data = valueString(v, true) },
		},
		"length": {get: func(n *html.Node) goja.Value { return b.vm.ToValue(len([]rune(n.Data))) }},
	})
	b.protos["chardata"] = chardata

	element := b.newProto(node)
	b.defineProperties(element, b.elementProperties())
	b.defineMethods(element, b.elementMethods())
	b.defineHandlerProperties(element, elementHandlers)
	b.protos["element"] = element

	b.protos["form"] = b.formPrototype(element)
	b.protos["control"] = b.controlPrototype(element)
	b.protos["select"] = b.selectPrototype(element)
	b.protos["option"] = b.optionPrototype(element)

	anchor := b.newProto(element)
	b.defineProperties(anchor, map[string]property{
		"href":     b.urlAttr("href"),
		"name":     b.reflect("name"),
		"target":   b.reflect("target"),
		"hash":     {get: func(n *html.Node) goja.Value { return b.str(hashOf(b.resolveAttr(n, "href"))) }},
		"search":   {get: func(n *html.Node) goja.Value { return b.str(searchOf(b.resolveAttr(n, "href"))) }},
		"pathname": {get: func(n *html.Node) goja.Value { return b.str(urlPart(b.resolveAttr(n, "href"), "pathname")) }},
		"protocol": {get: func(n *html.Node) goja.Value { return b.str(urlPart(b.resolveAttr(n, "href"), "protocol")) }},
		"host":     {get: func(n *html.Node) goja.Value { return b.str(urlPart(b.resolveAttr(n, "href"), "host")) }},
		"hostname": {get: func(n *html.Node) goja.Value { return b.str(urlPart(b.resolveAttr(n, "href"), "hostname")) }},
		"port":     {get: func(n *html.Node) goja.Value { return b.str(urlPart(b.resolveAttr(n, "href"), "port")) }},
		"text": {
			get: func(n *html.Node) goja.Value { return b.str(textContent(n)) },
			set: func(n *html.Node, v goja.Value) { setTextContent(n, valueString(v, true)) },
		},
	})
	b.defineMethods(anchor, map[string]method{
		"toString": func(n *html.Node, _ goja.FunctionCall) goja.Value { return b.str(b.resolveAttr(n, "href")) },
	})
	b.protos["anchor"] = anchor

	script := b.newProto(element)
	b.defineProperties(script, map[string]property{
		"src":   b.urlAttr("src"),
		"type":  b.reflect("type"),
		"defer": b.reflectBool("defer"),
		"async": b.reflectBool("async"),
		"text": {
			get: func(n *html.Node) goja.Value { return b.str(textContent(n)) },
			set: func(n *html.Node, v goja.Value) { setTextContent(n, valueString(v, true)) },
		},
	})
	b.protos["script"] = script

	embedded := b.newProto(element)
	b.defineProperties(embedded, map[string]property{
		"src":    b.urlAttr("src"),
		"name":   b.reflect("name"),
		"alt":    b.reflect("alt"),
		"width":  b.reflectInt("width", 0),
		"height": b.reflectInt("height", 0),
	})
	b.protos["embedded"] = embedded

	body := b.newProto(element)
	b.defineHandlerProperties(body, windowHandlers)
	b.protos["body"] = body

	b.brandNodePrototypes()
}

func (b *DOMBridge) protoFor(n *html.Node) *goja.Object {
	switch n.Type {
	case html.ElementNode:
		if group, ok := tagGroups[n.Data]; ok {
			return b.protos[group]
		}
		return b.protos["element"]
	case html.TextNode, html.CommentNode:
		return b.protos["chardata"]
	default:
		return b.protos["node"]
	}
}

// -- Reflected attribute helpers --

func (b *DOMBridge) reflect(attr string) property {
	return property{
		get: func(n *html.Node) goja.Value { return b.str(attrOr(n, attr, "")) },
		set: func(n *html.Node, v goja.Value) { setAttr(n, attr, valueString(v, false)) },
	}
}

func (b *DOMBridge) reflectBool(attr string) property {
	return property{
		get: func(n *html.Node) goja.Value { return b.vm.ToValue(hasAttr(n, attr)) },
		set: func(n *html.Node, v goja.Value) { setBoolAttr(n, attr, v.ToBoolean()) },
	}
}

func (b *DOMBridge) reflectInt(attr string, fallback int64) property {
	return property{
		get: func(n *html.Node) goja.Value {
			v, ok := getAttr(n, attr)
			if !ok {
				return b.vm.ToValue(fallback)
			}
			var i int64
			if _, err := fmt.Sscan(strings.TrimSpace(v), &i); err != nil {
				return b.vm.ToValue(fallback)
			}
			return b.vm.ToValue(i)
		},
		set: func(n *html.Node, v goja.Value) { setAttr(n, attr, fmt.Sprint(v.ToInteger())) },
	}
}

// urlAttr reflects a URL attribute resolved against the document.
func (b *DOMBridge) urlAttr(attr string) property {
	return property{
		get: func(n *html.Node) goja.Value { return b.str(b.resolveAttr(n, attr)) },
		set: func(n *html.Node, v goja.Value) {
			setAttr(n, attr, valueString(v, false))
			if attr == "src" && isElement(n, "script") {
				b.maybeRunInserted(n)
			}
		},
	}
}

func (b *DOMBridge) resolveAttr(n *html.Node, attr string) string {
	v, ok := getAttr(n, attr)
	if !ok {
		return ""
	}
	resolved, err := b.env.ResolveURL(strings.TrimSpace(v))
	if err != nil {
		return v
	}
	return resolved
}

// -- Node --

func (b *DOMBridge) nodeProperties() map[string]property {
	return map[string]property{
		"nodeType": {get: func(n *html.Node) goja.Value { return b.vm.ToValue(b.nodeType(n)) }},
		"nodeName": {get: func(n *html.Node) goja.Value { return b.str(b.nodeName(n)) }},
		"nodeValue": {
			get: func(n *html.Node) goja.Value {
				if n.Type == html.TextNode || n.Type == html.CommentNode {
					return b.str(n.Data)
				}
				return goja.Null()
			},
			set: func(n *html.Node, v goja.Value) {
				if n.Type == html.TextNode || n.Type == html.CommentNode {
					n.Data = valueString(v, true)
				}
			},
		},
		"parentNode": {get: func(n *html.Node) goja.Value { return b.WrapNode(n.Parent) }},
		"parentElement": {get: func(n *html.Node) goja.Value {
			if isElement(n.Parent) {
				return b.wrap(n.Parent)
			}
			return goja.Null()
		}},
		"childNodes": {get: func(n *html.Node) goja.Value {
			return b.liveCollection(collectionKey{n, "childNodes"}, func() []*html.Node { return children(n, false) }, false)
		}},
		"firstChild":      {get: func(n *html.Node) goja.Value { return b.WrapNode(n.FirstChild) }},
		"lastChild":       {get: func(n *html.Node) goja.Value { return b.WrapNode(n.LastChild) }},
		"previousSibling": {get: func(n *html.Node) goja.Value { return b.WrapNode(n.PrevSibling) }},
		"nextSibling":     {get: func(n *html.Node) goja.Value { return b.WrapNode(n.NextSibling) }},
		"ownerDocument": {get: func(n *html.Node) goja.Value {
			if n == b.doc {
				return goja.Null()
			}
			return b.document
		}},
		"textContent": {
			get: func(n *html.Node) goja.Value {
				if !b.browser.Features.TextContent {
					return goja.Undefined()
				}
				if n.Type == html.DocumentNode && n == b.doc {
					return goja.Null()
				}
				return b.str(textContent(n))
			},
			set: func(n *html.Node, v goja.Value) {
				if b.browser.Features.TextContent {
					b.setText(n, valueString(v, true))
				}
			},
		},
	}
}

func (b *DOMBridge) nodeType(n *html.Node) int {
	switch n.Type {
	case html.ElementNode:
		return elementNode
	case html.TextNode:
		return textNode
	case html.CommentNode:
		return commentNode
	case html.DoctypeNode:
		return doctypeNode
	case html.DocumentNode:
		if n == b.doc {
			return documentNode
		}
		return fragmentNode
	}
	return 0
}

func (b *DOMBridge) nodeName(n *html.Node) string {
	switch n.Type {
	case html.ElementNode:
		return strings.ToUpper(n.Data)
	case html.TextNode:
		return "#text"
	case html.CommentNode:
		return "#comment"
	case html.DoctypeNode:
		return n.Data
	case html.DocumentNode:
		if n == b.doc {
			return "#document"
		}
		return "#document-fragment"
	}
	return ""
}

func (b *DOMBridge) nodeMethods() map[string]method {
	return map[string]method{
		"appendChild": func(n *html.Node, call goja.FunctionCall) goja.Value {
			child := b.argNode(call, 0, "appendChild")
			b.insertBefore(n, child, nil)
			return call.Argument(0)
		},
		"insertBefore": func(n *html.Node, call goja.FunctionCall) goja.Value {
			child := b.argNode(call, 0, "insertBefore")
			ref := b.unwrap(call.Argument(1))
			if ref == nil && !isNullish(call.Argument(1)) {
				panic(b.vm.NewTypeError("Failed to execute 'insertBefore': parameter 2 is not of type 'Node'."))
			}
			b.insertBefore(n, child, ref)
			return call.Argument(0)
		},
		"removeChild": func(n *html.Node, call goja.FunctionCall) goja.Value {
			child := b.argNode(call, 0, "removeChild")
			if child.Parent != n {
				b.throwDOMException("NotFoundError", "The node to be removed is not a child of this node.")
			}
			n.RemoveChild(child)
			return call.Argument(0)
		},
		"replaceChild": func(n *html.Node, call goja.FunctionCall) goja.Value {
			newChild := b.argNode(call, 0, "replaceChild")
			oldChild := b.argNode(call, 1, "replaceChild")
			if oldChild.Parent != n {
				b.throwDOMException("NotFoundError", "The node to be replaced is not a child of this node.")
			}
			if newChild == oldChild {
				return call.Argument(1)
			}
			ref := oldChild.NextSibling
			if ref == newChild {
				ref = newChild.NextSibling
			}
			n.RemoveChild(oldChild)
			b.insertBefore(n, newChild, ref)
			return call.Argument(1)
		},
		"cloneNode": func(n *html.Node, call goja.FunctionCall) goja.Value {
			if n == b.doc {
				b.throwDOMException("NotSupportedError", "The document cannot be cloned.")
			}
			return b.wrap(cloneNode(n, call.Argument(0).ToBoolean()))
		},
		"hasChildNodes": func(n *html.Node, _ goja.FunctionCall) goja.Value {
			return b.vm.ToValue(n.FirstChild != nil)
		},
		"contains": func(n *html.Node, call goja.FunctionCall) goja.Value {
			other := b.unwrap(call.Argument(0))
			for p := other; p != nil; p = p.Parent {
				if p == n {
					return b.vm.ToValue(true)
				}
			}
			return b.vm.ToValue(false)
		},
	}
}

// insertBefore moves child under parent, before ref (or last when ref is
// nil), running any scripts it connects to the document.
func (b *DOMBridge) insertBefore(parent, child, ref *html.Node) {
	switch parent.Type {
	case html.ElementNode, html.DocumentNode:
	default:
		b.throwDOMException("HierarchyRequestError", "This node type does not support children.")
	}
	for p := parent; p != nil; p = p.Parent {
		if p == child {
			b.throwDOMException("HierarchyRequestError", "The new child element contains the parent.")
		}
	}
	if ref != nil && ref.Parent != parent {
		b.throwDOMException("NotFoundError", "The node before which the new node is to be inserted is not a child of this node.")
	}
	if child == b.doc {
		b.throwDOMException("HierarchyRequestError", "Nodes of type '#document' may not be inserted.")
	}

	var inserted []*html.Node
	if child.Type == html.DocumentNode {
		// A fragment contributes its children.
		for c := child.FirstChild; c != nil; {
			next := c.NextSibling
			child.RemoveChild(c)
			parent.InsertBefore(c, ref)
			inserted = append(inserted, c)
			c = next
		}
	} else {
		if child == ref {
			return
		}
		if child.Parent != nil {
			child.Parent.RemoveChild(child)
		}
		parent.InsertBefore(child, ref)
		inserted = append(inserted, child)
	}
	for _, c := range inserted {
		b.afterInsert(c)
	}
}

// afterInsert runs scripts newly connected to the document and exposes
// named form controls.
func (b *DOMBridge) afterInsert(n *html.Node) {
	if !b.isConnected(n) {
		return
	}
	if form := ancestor(n, "form"); form != nil {
		if obj, ok := b.nodes[form]; ok {
			b.defineFormControls(obj, form)
		}
	}
	for _, s := range collectScripts(n) {
		b.maybeRunInserted(s)
	}
}

func cloneNode(n *html.Node, deep bool) *html.Node {
	c := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
		Attr:      append([]html.Attribute(nil), n.Attr...),
	}
	if deep {
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			c.AppendChild(cloneNode(child, true))
		}
	}
	return c
}

func children(n *html.Node, elementsOnly bool) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if elementsOnly && c.Type != html.ElementNode {
			continue
		}
		out = append(out, c)
	}
	return out
}

func textContent(n *html.Node) string {
	switch n.Type {
	case html.TextNode, html.CommentNode:
		return n.Data
	}
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			switch c.Type {
			case html.TextNode:
				sb.WriteString(c.Data)
			case html.ElementNode:
				walk(c)
			}
		}
	}
	walk(n)
	return sb.String()
}

func setTextContent(n *html.Node, s string) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	if s != "" {
		n.AppendChild(&html.Node{Type: html.TextNode, Data: s})
	}
}

// setText replaces a node's content; for script elements connected to the
// document this may run the new code.
func (b *DOMBridge) setText(n *html.Node, s string) {
	if n.Type == html.TextNode || n.Type == html.CommentNode {
		n.Data = s
		return
	}
	setTextContent(n, s)
	if isElement(n, "script") {
		b.maybeRunInserted(n)
	}
}

var blockElements = map[string]bool{
	"address": true, "blockquote": true, "div": true, "dl": true, "fieldset": true,
	"form": true, "h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"hr": true, "li": true, "ol": true, "p": true, "pre": true, "table": true, "tr": true,
	"ul": true,
}

// innerText approximates rendered text: scripts and styles are skipped,
// whitespace collapses, and blocks and line breaks start new lines.
func innerText(n *html.Node) string {
	var sb strings.Builder
	newline := func() {
		if sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") {
			sb.WriteByte('\n')
		}
	}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			switch c.Type {
			case html.TextNode:
				sb.WriteString(collapseSpace(c.Data, sb.String()))
			case html.ElementNode:
				switch c.Data {
				case "script", "style", "noscript", "head", "title":
					continue
				case "br":
					sb.WriteByte('\n')
					continue
				}
				if blockElements[c.Data] {
					newline()
				}
				walk(c)
				if blockElements[c.Data] {
					newline()
				}
			}
		}
	}
	if n.Type == html.TextNode {
		return n.Data
	}
	walk(n)
	lines := strings.Split(sb.String(), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return strings.Trim(strings.Join(lines, "\n"), "\n")
}

func collapseSpace(s, before string) string {
	var sb strings.Builder
	space := before == "" || strings.HasSuffix(before, " ") || strings.HasSuffix(before, "\n")
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !space {
				sb.WriteByte(' ')
			}
			space = true
			continue
		}
		sb.WriteRune(r)
		space = false
	}
	return sb.String()
}

// -- Element --

func (b *DOMBridge) elementProperties() map[string]property {
	props := map[string]property{
		"tagName":   {get: func(n *html.Node) goja.Value { return b.str(strings.ToUpper(n.Data)) }},
		"localName": {get: func(n *html.Node) goja.Value { return b.str(n.Data) }},
		"id":        b.reflect("id"),
		"className": b.reflect("class"),
		"title":     b.reflect("title"),
		"lang":      b.reflect("lang"),
		"dir":       b.reflect("dir"),
		"hidden":    b.reflectBool("hidden"),
		"innerHTML": {
			get: func(n *html.Node) goja.Value { return b.str(innerHTML(n)) },
			set: func(n *html.Node, v goja.Value) { b.setInnerHTML(n, valueString(v, true)) },
		},
		"outerHTML": {
			get: func(n *html.Node) goja.Value { return b.str(renderNode(n)) },
			set: func(n *html.Node, v goja.Value) { b.setOuterHTML(n, valueString(v, true)) },
		},
		"innerText": {
			get: func(n *html.Node) goja.Value { return b.str(innerText(n)) },
			set: func(n *html.Node, v goja.Value) { b.setText(n, valueString(v, true)) },
		},
		"children": {get: func(n *html.Node) goja.Value {
			return b.liveCollection(collectionKey{n, "children"}, func() []*html.Node { return children(n, true) }, true)
		}},
		"childElementCount": {get: func(n *html.Node) goja.Value { return b.vm.ToValue(len(children(n, true))) }},
		"firstElementChild": {get: func(n *html.Node) goja.Value {
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.ElementNode {
					return b.wrap(c)
				}
			}
			return goja.Null()
		}},
		"lastElementChild": {get: func(n *html.Node) goja.Value {
			for c := n.LastChild; c != nil; c = c.PrevSibling {
				if c.Type == html.ElementNode {
					return b.wrap(c)
				}
			}
			return goja.Null()
		}},
		"previousElementSibling": {get: func(n *html.Node) goja.Value {
			for c := n.PrevSibling; c != nil; c = c.PrevSibling {
				if c.Type == html.ElementNode {
					return b.wrap(c)
				}
			}
			return goja.Null()
		}},
		"nextElementSibling": {get: func(n *html.Node) goja.Value {
			for c := n.NextSibling; c != nil; c = c.NextSibling {
				if c.Type == html.ElementNode {
					return b.wrap(c)
				}
			}
			return goja.Null()
		}},
		"style": {
			get: func(n *html.Node) goja.Value { return b.styleObject(n) },
			set: func(n *html.Node, v goja.Value) { setAttr(n, "style", valueString(v, true)) },
		},
		"attributes": {get: func(n *html.Node) goja.Value { return b.attributesObject(n) }},
	}
	if b.browser.Features.CurrentStyle {
		props["currentStyle"] = property{get: func(n *html.Node) goja.Value { return b.computedStyleObject(n) }}
	}
	return props
}

func (b *DOMBridge) elementMethods() map[string]method {
	return map[string]method{
		"getAttribute": func(n *html.Node, call goja.FunctionCall) goja.Value {
			if v, ok := getAttr(n, call.Argument(0).String()); ok {
				return b.str(v)
			}
			return goja.Null()
		},
		"setAttribute": func(n *html.Node, call goja.FunctionCall) goja.Value {
			name := call.Argument(0).String()
			if !isXMLName(name) {
				b.throwDOMException("InvalidCharacterError", fmt.Sprintf("'%s' is not a valid attribute name.", name))
			}
			setAttr(n, name, valueString(call.Argument(1), false))
			b.attributeChanged(n, strings.ToLower(name))
			return goja.Undefined()
		},
		"removeAttribute": func(n *html.Node, call goja.FunctionCall) goja.Value {
			name := strings.ToLower(call.Argument(0).String())
			removeAttr(n, name)
			b.attributeChanged(n, name)
			return goja.Undefined()
		},
		"hasAttribute": func(n *html.Node, call goja.FunctionCall) goja.Value {
			return b.vm.ToValue(hasAttr(n, call.Argument(0).String()))
		},
		"getElementsByTagName": func(n *html.Node, call goja.FunctionCall) goja.Value {
			return b.elementsByTagName(n, call.Argument(0).String())
		},
		"getElementsByClassName": func(n *html.Node, call goja.FunctionCall) goja.Value {
			return b.elementsByClassName(n, call.Argument(0).String())
		},
		"querySelector": func(n *html.Node, call goja.FunctionCall) goja.Value {
			return b.WrapNode(b.compileSelector(call.Argument(0).String()).QueryFirst(n))
		},
		"querySelectorAll": func(n *html.Node, call goja.FunctionCall) goja.Value {
			return b.staticCollection(b.compileSelector(call.Argument(0).String()).QueryAll(n))
		},
		"matches": func(n *html.Node, call goja.FunctionCall) goja.Value {
			return b.vm.ToValue(b.compileSelector(call.Argument(0).String()).Match(n))
		},
		"insertAdjacentHTML": func(n *html.Node, call goja.FunctionCall) goja.Value {
			b.insertAdjacentHTML(n, strings.ToLower(call.Argument(0).String()), call.Argument(1).String())
			return goja.Undefined()
		},
		"click": func(n *html.Node, _ goja.FunctionCall) goja.Value {
			b.click(n)
			return goja.Undefined()
		},
		"focus": func(n *html.Node, _ goja.FunctionCall) goja.Value {
			b.focus(n)
			return goja.Undefined()
		},
		"blur": func(n *html.Node, _ goja.FunctionCall) goja.Value {
			b.blur(n)
			return goja.Undefined()
		},
	}
}

// attributeChanged keeps state derived from attributes in step.
func (b *DOMBridge) attributeChanged(n *html.Node, name string) {
	switch {
	case name == "name" || name == "id":
		if form := ancestor(n, "form"); form != nil {
			if obj, ok := b.nodes[form]; ok {
				b.defineFormControls(obj, form)
			}
		}
	case name == "src" && isElement(n, "script"):
		b.maybeRunInserted(n)
	}
}

func (b *DOMBridge) compileSelector(sel string) *style.Selector {
	compiled, err := style.Compile(sel)
	if err != nil {
		b.throwDOMException("SyntaxError", fmt.Sprintf("'%s' is not a valid selector.", sel))
	}
	return compiled
}

func (b *DOMBridge) elementsByTagName(root *html.Node, tag string) goja.Value {
	key := collectionKey{root, "tag:" + strings.ToLower(tag)}
	return b.liveCollection(key, func() []*html.Node {
		switch {
		case tag == "*":
			return b.find(root, ".//*")
		case isXMLName(tag):
			return b.find(root, ".//"+strings.ToLower(tag))
		}
		return nil
	}, true)
}

func (b *DOMBridge) elementsByClassName(root *html.Node, names string) goja.Value {
	classes := strings.Fields(names)
	key := collectionKey{root, "class:" + strings.Join(classes, " ")}
	return b.liveCollection(key, func() []*html.Node {
		if len(classes) == 0 {
			return nil
		}
		conds := make([]string, len(classes))
		for i, c := range classes {
			conds[i] = fmt.Sprintf("contains(concat(' ', normalize-space(@class), ' '), %s)", xpathLiteral(" "+c+" "))
		}
		return b.find(root, ".//*["+strings.Join(conds, " and ")+"]")
	}, true)
}

// -- Markup --

func renderNode(n *html.Node) string {
	var sb strings.Builder
	if err := html.Render(&sb, n); err != nil {
		return ""
	}
	return sb.String()
}

func innerHTML(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&sb, c)
	}
	return sb.String()
}

// parseFragment parses markup in the context of n. Scripts created this way
// never run.
func (b *DOMBridge) parseFragment(context *html.Node, markup string) []*html.Node {
	if context == nil || context.Type != html.ElementNode {
		context = &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	}
	nodes, err := html.ParseFragment(strings.NewReader(markup), context)
	if err != nil {
		b.logger.Debug("Failed to parse fragment", zap.Error(err))
		return nil
	}
	for _, n := range nodes {
		for _, s := range collectScripts(n) {
			b.started[s] = true
		}
	}
	return nodes
}

func (b *DOMBridge) setInnerHTML(n *html.Node, markup string) {
	nodes := b.parseFragment(n, markup)
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	for _, c := range nodes {
		n.AppendChild(c)
	}
	if form := ancestor(n, "form"); form != nil || isElement(n, "form") {
		if form == nil {
			form = n
		}
		if obj, ok := b.nodes[form]; ok {
			b.defineFormControls(obj, form)
		}
	}
}

func (b *DOMBridge) setOuterHTML(n *html.Node, markup string) {
	parent := n.Parent
	if parent == nil {
		return
	}
	if parent.Type == html.DocumentNode {
		b.throwDOMException("NoModificationAllowedError", "Failed to set the 'outerHTML' property on 'Element'.")
	}
	for _, c := range b.parseFragment(parent, markup) {
		parent.InsertBefore(c, n)
	}
	parent.RemoveChild(n)
}

func (b *DOMBridge) insertAdjacentHTML(n *html.Node, position, markup string) {
	var parent, ref *html.Node
	switch position {
	case "beforebegin":
		parent, ref = n.Parent, n
	case "afterbegin":
		parent, ref = n, n.FirstChild
	case "beforeend":
		parent, ref = n, nil
	case "afterend":
		parent, ref = n.Parent, n.NextSibling
	default:
		b.throwDOMException("SyntaxError", fmt.Sprintf("The value provided ('%s') is not one of 'beforeBegin', 'afterBegin', 'beforeEnd', or 'afterEnd'.", position))
	}
	if parent == nil || parent.Type == html.DocumentNode {
		b.throwDOMException("NoModificationAllowedError", "The element has no parent.")
	}
	for _, c := range b.parseFragment(parent, markup) {
		parent.InsertBefore(c, ref)
	}
}

// attributesObject is a snapshot NamedNodeMap-like array of {name, value}.
func (b *DOMBridge) attributesObject(n *html.Node) goja.Value {
	items := make([]interface{}, 0, len(n.Attr))
	byName := b.vm.NewObject()
	for _, a := range n.Attr {
		attr := b.vm.NewObject()
		_ = attr.Set("name", a.Key)
		_ = attr.Set("nodeName", a.Key)
		_ = attr.Set("value", a.Val)
		_ = attr.Set("nodeValue", a.Val)
		_ = attr.Set("specified", true)
		items = append(items, attr)
		_ = byName.Set(a.Key, attr)
	}
	arr := b.vm.NewArray(items...)
	_ = arr.Set("getNamedItem", func(name string) goja.Value {
		if v := byName.Get(strings.ToLower(name)); v != nil {
			return v
		}
		return goja.Null()
	})
	return arr
}
