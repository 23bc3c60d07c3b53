// internal/browser/jsbind/xml.go
package jsbind

import (
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"
	"github.com/dop251/goja"
	"go.uber.org/zap"
)

const parserErrorNS = "http://www.mozilla.org/newlayout/xml/parsererror.xml"

var errNoRoot = errors.New("no root element found")

// Node type values reported for XML tokens.
const (
	cdataNode    = 4
	procInstNode = 7
)

// xmlViews exposes etree documents to script. Each token maps to one
// wrapper, like the HTML identity maps.
type xmlViews struct {
	b       *DOMBridge
	objects map[etree.Token]*goja.Object
	tokens  map[*goja.Object]etree.Token
	// docs maps a document's holder element back to the document.
	docs map[*etree.Element]*etree.Document

	protoNode     *goja.Object
	protoElement  *goja.Object
	protoDocument *goja.Object
}

type xmlProperty struct {
	get func(t etree.Token) goja.Value
	set func(t etree.Token, v goja.Value)
}

func (b *DOMBridge) xmlViews() *xmlViews {
	if b.xml == nil {
		b.xml = newXMLViews(b)
	}
	return b.xml
}

func newXMLViews(b *DOMBridge) *xmlViews {
	x := &xmlViews{
		b:       b,
		objects: make(map[etree.Token]*goja.Object),
		tokens:  make(map[*goja.Object]etree.Token),
		docs:    make(map[*etree.Element]*etree.Document),
	}
	x.initPrototypes()
	return x
}

// parseXML parses s strictly. A document without a root element is an error.
func parseXML(s string) (*etree.Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(s); err != nil {
		return nil, err
	}
	if doc.Root() == nil {
		return nil, errNoRoot
	}
	return doc, nil
}

// parserErrorDocument is what a failed parse produces: a document whose
// root is a parsererror element describing the failure.
func parserErrorDocument(err error, source string) *etree.Document {
	doc := etree.NewDocument()
	root := doc.CreateElement("parsererror")
	root.CreateAttr("xmlns", parserErrorNS)
	root.SetText("XML Parsing Error: " + err.Error())
	src := root.CreateElement("sourcetext")
	src.SetText(source)
	return doc
}

func (x *xmlViews) wrapDocument(doc *etree.Document) *goja.Object {
	holder := &doc.Element
	x.docs[holder] = doc
	return x.wrap(holder)
}

func (x *xmlViews) wrap(t etree.Token) *goja.Object {
	if obj, ok := x.objects[t]; ok {
		return obj
	}
	obj := x.b.vm.NewObject()
	proto := x.protoNode
	if e, ok := t.(*etree.Element); ok {
		proto = x.protoElement
		if _, isDoc := x.docs[e]; isDoc {
			proto = x.protoDocument
		}
	}
	if err := obj.SetPrototype(proto); err != nil {
		x.b.logger.Error("Failed to set XML wrapper prototype", zap.Error(err))
	}
	x.objects[t] = obj
	x.tokens[obj] = t
	return obj
}

func (x *xmlViews) wrapOrNull(t etree.Token) goja.Value {
	if t == nil {
		return goja.Null()
	}
	if e, ok := t.(*etree.Element); ok && e == nil {
		return goja.Null()
	}
	return x.wrap(t)
}

func (x *xmlViews) this(call goja.FunctionCall) etree.Token {
	if obj, ok := call.This.(*goja.Object); ok {
		if t, ok := x.tokens[obj]; ok {
			return t
		}
	}
	panic(x.b.vm.NewTypeError("Illegal invocation"))
}

func (x *xmlViews) define(proto *goja.Object, props map[string]xmlProperty) {
	vm := x.b.vm
	for name, p := range props {
		p := p
		getter := vm.ToValue(func(call goja.FunctionCall) goja.Value { return p.get(x.this(call)) })
		var setter goja.Value
		if p.set != nil {
			setter = vm.ToValue(func(call goja.FunctionCall) goja.Value {
				p.set(x.this(call), call.Argument(0))
				return goja.Undefined()
			})
		}
		if err := proto.DefineAccessorProperty(name, getter, setter, goja.FLAG_TRUE, goja.FLAG_TRUE); err != nil {
			x.b.logger.Error("Failed to define XML property", zap.String("property", name), zap.Error(err))
		}
	}
}

func (x *xmlViews) isDocument(t etree.Token) bool {
	e, ok := t.(*etree.Element)
	if !ok {
		return false
	}
	_, isDoc := x.docs[e]
	return isDoc
}

// children lists the DOM-visible children of t. Whitespace outside the
// root element is not part of an XML document's tree.
func (x *xmlViews) children(t etree.Token) []etree.Token {
	e, ok := t.(*etree.Element)
	if !ok {
		return nil
	}
	doc := x.isDocument(e)
	var out []etree.Token
	for _, c := range e.Child {
		if cd, ok := c.(*etree.CharData); ok && doc && cd.IsWhitespace() {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (x *xmlViews) parent(t etree.Token) *etree.Element {
	return t.Parent()
}

func (x *xmlViews) sibling(t etree.Token, delta int) etree.Token {
	p := x.parent(t)
	if p == nil {
		return nil
	}
	siblings := x.children(p)
	for i, s := range siblings {
		if s == t {
			if j := i + delta; j >= 0 && j < len(siblings) {
				return siblings[j]
			}
			return nil
		}
	}
	return nil
}

func (x *xmlViews) nodeType(t etree.Token) int {
	switch v := t.(type) {
	case *etree.Element:
		if x.isDocument(v) {
			return documentNode
		}
		return elementNode
	case *etree.CharData:
		if v.IsCData() {
			return cdataNode
		}
		return textNode
	case *etree.Comment:
		return commentNode
	case *etree.ProcInst:
		return procInstNode
	case *etree.Directive:
		return doctypeNode
	}
	return 0
}

func (x *xmlViews) nodeName(t etree.Token) string {
	switch v := t.(type) {
	case *etree.Element:
		if x.isDocument(v) {
			return "#document"
		}
		return v.FullTag()
	case *etree.CharData:
		if v.IsCData() {
			return "#cdata-section"
		}
		return "#text"
	case *etree.Comment:
		return "#comment"
	case *etree.ProcInst:
		return v.Target
	case *etree.Directive:
		return strings.Fields(v.Data + " x")[0]
	}
	return ""
}

func (x *xmlViews) nodeValue(t etree.Token) goja.Value {
	switch v := t.(type) {
	case *etree.CharData:
		return x.b.str(v.Data)
	case *etree.Comment:
		return x.b.str(v.Data)
	case *etree.ProcInst:
		return x.b.str(v.Inst)
	}
	return goja.Null()
}

func xmlText(t etree.Token) string {
	switch v := t.(type) {
	case *etree.CharData:
		return v.Data
	case *etree.Comment:
		return v.Data
	case *etree.ProcInst:
		return v.Inst
	case *etree.Element:
		var sb strings.Builder
		var walk func(e *etree.Element)
		walk = func(e *etree.Element) {
			for _, c := range e.Child {
				switch cv := c.(type) {
				case *etree.CharData:
					sb.WriteString(cv.Data)
				case *etree.Element:
					walk(cv)
				}
			}
		}
		walk(v)
		return sb.String()
	}
	return ""
}

func (x *xmlViews) root(t etree.Token) *etree.Element {
	e, ok := t.(*etree.Element)
	if !ok {
		return nil
	}
	if doc, isDoc := x.docs[e]; isDoc {
		return doc.Root()
	}
	return e
}

func (x *xmlViews) elementsByTagName(t etree.Token, name string) goja.Value {
	e, ok := t.(*etree.Element)
	if !ok {
		return x.b.vm.NewArray()
	}
	var matches []*etree.Element
	var walk func(e *etree.Element)
	walk = func(e *etree.Element) {
		for _, c := range e.ChildElements() {
			if name == "*" || c.FullTag() == name {
				matches = append(matches, c)
			}
			walk(c)
		}
	}
	walk(e)
	return x.array(matches)
}

func (x *xmlViews) array(elems []*etree.Element) goja.Value {
	items := make([]interface{}, len(elems))
	for i, c := range elems {
		items[i] = x.wrap(c)
	}
	return x.list(items)
}

// list builds a NodeList-like array with item().
func (x *xmlViews) list(items []interface{}) goja.Value {
	arr := x.b.vm.NewArray(items...)
	_ = arr.Set("item", func(call goja.FunctionCall) goja.Value {
		i := int(call.Argument(0).ToInteger())
		if i < 0 || i >= len(items) {
			return goja.Null()
		}
		return x.b.vm.ToValue(items[i])
	})
	return arr
}

func (x *xmlViews) tokenArg(call goja.FunctionCall, i int) etree.Token {
	if obj, ok := call.Argument(i).(*goja.Object); ok {
		if t, ok := x.tokens[obj]; ok {
			return t
		}
	}
	panic(x.b.vm.NewTypeError(fmt.Sprintf("parameter %d is not of type 'Node'.", i+1)))
}

func (x *xmlViews) initPrototypes() {
	b := x.b
	vm := b.vm
	node := vm.NewObject()
	x.define(node, map[string]xmlProperty{
		"nodeType":  {get: func(t etree.Token) goja.Value { return vm.ToValue(x.nodeType(t)) }},
		"nodeName":  {get: func(t etree.Token) goja.Value { return b.str(x.nodeName(t)) }},
		"nodeValue": {get: x.nodeValue},
		"data":      {get: x.nodeValue},
		"parentNode": {get: func(t etree.Token) goja.Value {
			if x.isDocument(t) {
				return goja.Null()
			}
			return x.wrapOrNull(x.parent(t))
		}},
		"childNodes": {get: func(t etree.Token) goja.Value {
			kids := x.children(t)
			items := make([]interface{}, len(kids))
			for i, c := range kids {
				items[i] = x.wrap(c)
			}
			return x.list(items)
		}},
		"firstChild": {get: func(t etree.Token) goja.Value {
			if kids := x.children(t); len(kids) > 0 {
				return x.wrap(kids[0])
			}
			return goja.Null()
		}},
		"lastChild": {get: func(t etree.Token) goja.Value {
			if kids := x.children(t); len(kids) > 0 {
				return x.wrap(kids[len(kids)-1])
			}
			return goja.Null()
		}},
		"previousSibling": {get: func(t etree.Token) goja.Value { return x.wrapOrNull(x.sibling(t, -1)) }},
		"nextSibling":     {get: func(t etree.Token) goja.Value { return x.wrapOrNull(x.sibling(t, 1)) }},
		"ownerDocument": {get: func(t etree.Token) goja.Value {
			if x.isDocument(t) {
				return goja.Null()
			}
			for p := x.parent(t); p != nil; p = p.Parent() {
				if x.isDocument(p) {
					return x.wrap(p)
				}
			}
			return goja.Null()
		}},
		"textContent": {
			get: func(t etree.Token) goja.Value {
				if x.isDocument(t) {
					return goja.Null()
				}
				return b.str(xmlText(t))
			},
			set: func(t etree.Token, v goja.Value) {
				switch tv := t.(type) {
				case *etree.CharData:
					tv.Data = valueString(v, true)
				case *etree.Element:
					for len(tv.Child) > 0 {
						tv.RemoveChild(tv.Child[0])
					}
					tv.SetText(valueString(v, true))
				}
			},
		},
	})
	methods := map[string]func(t etree.Token, call goja.FunctionCall) goja.Value{
		"hasChildNodes": func(t etree.Token, _ goja.FunctionCall) goja.Value {
			return vm.ToValue(len(x.children(t)) > 0)
		},
		"appendChild": func(t etree.Token, call goja.FunctionCall) goja.Value {
			e, ok := t.(*etree.Element)
			if !ok {
				b.throwDOMException("HierarchyRequestError", "This node type does not support children.")
			}
			child := x.tokenArg(call, 0)
			if p := child.Parent(); p != nil {
				p.RemoveChild(child)
			}
			e.AddChild(child)
			return call.Argument(0)
		},
		"removeChild": func(t etree.Token, call goja.FunctionCall) goja.Value {
			e, ok := t.(*etree.Element)
			child := x.tokenArg(call, 0)
			if !ok || child.Parent() != e {
				b.throwDOMException("NotFoundError", "The node to be removed is not a child of this node.")
			}
			e.RemoveChild(child)
			return call.Argument(0)
		},
		"getElementsByTagName": func(t etree.Token, call goja.FunctionCall) goja.Value {
			return x.elementsByTagName(t, call.Argument(0).String())
		},
	}
	x.defineMethods(node, methods)
	if b.browser.IsIE() {
		x.define(node, map[string]xmlProperty{
			"xml":  {get: func(t etree.Token) goja.Value { return b.str(x.serialize(t)) }},
			"text": {get: func(t etree.Token) goja.Value { return b.str(xmlText(t)) }},
		})
	}
	x.protoNode = node

	element := b.newProto(node)
	x.define(element, map[string]xmlProperty{
		"tagName":   {get: func(t etree.Token) goja.Value { return b.str(t.(*etree.Element).FullTag()) }},
		"localName": {get: func(t etree.Token) goja.Value { return b.str(t.(*etree.Element).Tag) }},
		"prefix": {get: func(t etree.Token) goja.Value {
			if space := t.(*etree.Element).Space; space != "" {
				return b.str(space)
			}
			return goja.Null()
		}},
		"namespaceURI": {get: func(t etree.Token) goja.Value {
			if ns := t.(*etree.Element).NamespaceURI(); ns != "" {
				return b.str(ns)
			}
			return goja.Null()
		}},
		"attributes": {get: func(t etree.Token) goja.Value {
			attrs := t.(*etree.Element).Attr
			items := make([]interface{}, len(attrs))
			for i, a := range attrs {
				attr := vm.NewObject()
				_ = attr.Set("name", a.FullKey())
				_ = attr.Set("nodeName", a.FullKey())
				_ = attr.Set("value", a.Value)
				_ = attr.Set("nodeValue", a.Value)
				items[i] = attr
			}
			return vm.NewArray(items...)
		}},
	})
	x.defineMethods(element, map[string]func(t etree.Token, call goja.FunctionCall) goja.Value{
		"getAttribute": func(t etree.Token, call goja.FunctionCall) goja.Value {
			if a := t.(*etree.Element).SelectAttr(call.Argument(0).String()); a != nil {
				return b.str(a.Value)
			}
			return goja.Null()
		},
		"hasAttribute": func(t etree.Token, call goja.FunctionCall) goja.Value {
			return vm.ToValue(t.(*etree.Element).SelectAttr(call.Argument(0).String()) != nil)
		},
		"setAttribute": func(t etree.Token, call goja.FunctionCall) goja.Value {
			t.(*etree.Element).CreateAttr(call.Argument(0).String(), valueString(call.Argument(1), false))
			return goja.Undefined()
		},
		"removeAttribute": func(t etree.Token, call goja.FunctionCall) goja.Value {
			t.(*etree.Element).RemoveAttr(call.Argument(0).String())
			return goja.Undefined()
		},
	})
	x.protoElement = element

	document := b.newProto(node)
	x.define(document, map[string]xmlProperty{
		"documentElement": {get: func(t etree.Token) goja.Value { return x.wrapOrNull(x.root(t)) }},
	})
	x.defineMethods(document, map[string]func(t etree.Token, call goja.FunctionCall) goja.Value{
		"createElement": func(_ etree.Token, call goja.FunctionCall) goja.Value {
			tag := call.Argument(0).String()
			if !isXMLName(strings.ReplaceAll(tag, ":", "_")) {
				b.throwDOMException("InvalidCharacterError", fmt.Sprintf("The tag name provided ('%s') is not a valid name.", tag))
			}
			return x.wrap(etree.NewElement(tag))
		},
		"createTextNode": func(_ etree.Token, call goja.FunctionCall) goja.Value {
			holder := etree.NewElement("holder")
			cd := holder.CreateText(valueString(call.Argument(0), false))
			holder.RemoveChild(cd)
			return x.wrap(cd)
		},
	})
	x.protoDocument = document
	x.brandXMLPrototypes()
}

func (x *xmlViews) defineMethods(proto *goja.Object, methods map[string]func(t etree.Token, call goja.FunctionCall) goja.Value) {
	for name, m := range methods {
		m := m
		fn := x.b.vm.ToValue(func(call goja.FunctionCall) goja.Value { return m(x.this(call), call) })
		if err := proto.Set(name, fn); err != nil {
			x.b.logger.Error("Failed to define XML method", zap.String("method", name), zap.Error(err))
		}
	}
}

var xmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// serialize renders t as markup. Elements are copied into a scratch
// document so only their own subtree is written.
func (x *xmlViews) serialize(t etree.Token) string {
	switch v := t.(type) {
	case *etree.Element:
		if doc, ok := x.docs[v]; ok {
			s, err := doc.WriteToString()
			if err != nil {
				x.b.logger.Debug("Failed to serialize XML document", zap.Error(err))
			}
			return s
		}
		scratch := etree.NewDocument()
		scratch.SetRoot(v.Copy())
		s, err := scratch.WriteToString()
		if err != nil {
			x.b.logger.Debug("Failed to serialize XML element", zap.Error(err))
		}
		return s
	case *etree.CharData:
		if v.IsCData() {
			return "<![CDATA[" + v.Data + "]]>"
		}
		return xmlEscaper.Replace(v.Data)
	case *etree.Comment:
		return "<!--" + v.Data + "-->"
	case *etree.ProcInst:
		return "<?" + v.Target + " " + v.Inst + "?>"
	}
	return ""
}

// xmlDocument parses body for responseXML. ok is false when the body is
// not well-formed.
func (b *DOMBridge) xmlDocument(body string) (goja.Value, bool) {
	doc, err := parseXML(body)
	if err != nil {
		return goja.Null(), false
	}
	return b.xmlViews().wrapDocument(doc), true
}

func isXMLMimeType(mime string) bool {
	mime = strings.ToLower(strings.TrimSpace(strings.SplitN(mime, ";", 2)[0]))
	return mime == "text/xml" || mime == "application/xml" || strings.HasSuffix(mime, "+xml")
}

func (b *DOMBridge) initDOMParser() {
	b.setGlobal("DOMParser", func(goja.ConstructorCall) *goja.Object {
		parser := b.vm.NewObject()
		_ = parser.Set("parseFromString", func(call goja.FunctionCall) goja.Value {
			source := valueString(call.Argument(0), false)
			mime := call.Argument(1).String()
			if !isXMLMimeType(mime) {
				panic(b.vm.NewTypeError(fmt.Sprintf("Failed to execute 'parseFromString' on 'DOMParser': The provided value '%s' is not a supported type.", mime)))
			}
			doc, err := parseXML(source)
			if err != nil {
				if b.browser.IsIE() {
					b.throwDOMException("SyntaxError", err.Error())
				}
				doc = parserErrorDocument(err, source)
			}
			return b.xmlViews().wrapDocument(doc)
		})
		return parser
	})
	b.setGlobal("XMLSerializer", func(goja.ConstructorCall) *goja.Object {
		serializer := b.vm.NewObject()
		_ = serializer.Set("serializeToString", func(call goja.FunctionCall) goja.Value {
			arg := call.Argument(0)
			if n := b.unwrap(arg); n != nil {
				return b.str(renderNode(n))
			}
			if obj, ok := arg.(*goja.Object); ok {
				if t, ok := b.xmlViews().tokens[obj]; ok {
					return b.str(b.xmlViews().serialize(t))
				}
			}
			panic(b.vm.NewTypeError("Failed to execute 'serializeToString' on 'XMLSerializer': parameter 1 is not of type 'Node'."))
		})
		return serializer
	})
}

// newActiveXDocument implements the Microsoft.XMLDOM object. Its content
// is replaced by every loadXML call.
func (b *DOMBridge) newActiveXDocument() *goja.Object {
	x := b.xmlViews()
	obj := b.vm.NewObject()
	var current *goja.Object
	errorCode, reason := 0, ""

	delegate := func(name string) {
		getter := b.vm.ToValue(func(goja.FunctionCall) goja.Value {
			if current == nil {
				return goja.Null()
			}
			return current.Get(name)
		})
		if err := obj.DefineAccessorProperty(name, getter, nil, goja.FLAG_TRUE, goja.FLAG_TRUE); err != nil {
			b.logger.Error("Failed to define XMLDOM property", zap.String("property", name), zap.Error(err))
		}
	}
	for _, name := range []string{"documentElement", "childNodes", "firstChild", "lastChild", "xml", "text"} {
		delegate(name)
	}
	parseError := b.vm.NewObject()
	errGetter := func(get func() goja.Value) goja.Value {
		return b.vm.ToValue(func(goja.FunctionCall) goja.Value { return get() })
	}
	_ = parseError.DefineAccessorProperty("errorCode", errGetter(func() goja.Value { return b.vm.ToValue(errorCode) }), nil, goja.FLAG_TRUE, goja.FLAG_TRUE)
	_ = parseError.DefineAccessorProperty("reason", errGetter(func() goja.Value { return b.str(reason) }), nil, goja.FLAG_TRUE, goja.FLAG_TRUE)
	_ = obj.Set("parseError", parseError)
	_ = obj.Set("async", false)

	_ = obj.Set("loadXML", func(call goja.FunctionCall) goja.Value {
		doc, err := parseXML(valueString(call.Argument(0), false))
		if err != nil {
			errorCode, reason = -1072896682, err.Error()
			current = x.wrapDocument(etree.NewDocument())
			return b.vm.ToValue(false)
		}
		errorCode, reason = 0, ""
		current = x.wrapDocument(doc)
		return b.vm.ToValue(true)
	})
	_ = obj.Set("getElementsByTagName", func(call goja.FunctionCall) goja.Value {
		if current == nil {
			return b.vm.NewArray()
		}
		return x.elementsByTagName(x.tokens[current], call.Argument(0).String())
	})
	return obj
}
