// internal/browser/jsbind/classnames.go
package jsbind

import (
	"strings"

	"github.com/beevik/etree"
	"github.com/dop251/goja"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// Host objects print as "[object <Interface>]" through Symbol.toStringTag.
// IE before document mode 9 prints every host object except the window as
// "[object]".

// elementInterfaces names the interface of HTML elements that have their
// own. Tags missing here are HTMLElement when known and HTMLUnknownElement
// otherwise.
var elementInterfaces = map[string]string{
	"a":          "HTMLAnchorElement",
	"area":       "HTMLAreaElement",
	"audio":      "HTMLAudioElement",
	"base":       "HTMLBaseElement",
	"blockquote": "HTMLQuoteElement",
	"body":       "HTMLBodyElement",
	"br":         "HTMLBRElement",
	"button":     "HTMLButtonElement",
	"canvas":     "HTMLCanvasElement",
	"caption":    "HTMLTableCaptionElement",
	"col":        "HTMLTableColElement",
	"colgroup":   "HTMLTableColElement",
	"datalist":   "HTMLDataListElement",
	"del":        "HTMLModElement",
	"details":    "HTMLDetailsElement",
	"dir":        "HTMLDirectoryElement",
	"div":        "HTMLDivElement",
	"dl":         "HTMLDListElement",
	"embed":      "HTMLEmbedElement",
	"fieldset":   "HTMLFieldSetElement",
	"font":       "HTMLFontElement",
	"form":       "HTMLFormElement",
	"frame":      "HTMLFrameElement",
	"frameset":   "HTMLFrameSetElement",
	"h1":         "HTMLHeadingElement",
	"h2":         "HTMLHeadingElement",
	"h3":         "HTMLHeadingElement",
	"h4":         "HTMLHeadingElement",
	"h5":         "HTMLHeadingElement",
	"h6":         "HTMLHeadingElement",
	"head":       "HTMLHeadElement",
	"hr":         "HTMLHRElement",
	"html":       "HTMLHtmlElement",
	"iframe":     "HTMLIFrameElement",
	"img":        "HTMLImageElement",
	"input":      "HTMLInputElement",
	"ins":        "HTMLModElement",
	"label":      "HTMLLabelElement",
	"legend":     "HTMLLegendElement",
	"li":         "HTMLLIElement",
	"link":       "HTMLLinkElement",
	"map":        "HTMLMapElement",
	"menu":       "HTMLMenuElement",
	"meta":       "HTMLMetaElement",
	"meter":      "HTMLMeterElement",
	"object":     "HTMLObjectElement",
	"ol":         "HTMLOListElement",
	"optgroup":   "HTMLOptGroupElement",
	"option":     "HTMLOptionElement",
	"output":     "HTMLOutputElement",
	"p":          "HTMLParagraphElement",
	"param":      "HTMLParamElement",
	"pre":        "HTMLPreElement",
	"progress":   "HTMLProgressElement",
	"q":          "HTMLQuoteElement",
	"script":     "HTMLScriptElement",
	"select":     "HTMLSelectElement",
	"source":     "HTMLSourceElement",
	"span":       "HTMLSpanElement",
	"style":      "HTMLStyleElement",
	"table":      "HTMLTableElement",
	"tbody":      "HTMLTableSectionElement",
	"td":         "HTMLTableCellElement",
	"template":   "HTMLTemplateElement",
	"textarea":   "HTMLTextAreaElement",
	"tfoot":      "HTMLTableSectionElement",
	"th":         "HTMLTableCellElement",
	"thead":      "HTMLTableSectionElement",
	"time":       "HTMLTimeElement",
	"title":      "HTMLTitleElement",
	"tr":         "HTMLTableRowElement",
	"track":      "HTMLTrackElement",
	"ul":         "HTMLUListElement",
	"video":      "HTMLVideoElement",
}

// plainElements are known tags whose interface is HTMLElement itself.
var plainElements = func() map[string]bool {
	m := make(map[string]bool)
	for _, tag := range strings.Fields(`abbr acronym address article aside b bdi bdo big center cite code
		dd dfn dt em figcaption figure footer header hgroup i kbd main mark nav nobr noscript
		rp rt ruby s samp section small strike strong sub summary sup tt u var wbr`) {
		m[tag] = true
	}
	return m
}()

// protoInterfaces names each node prototype group when the prototype
// itself is the receiver.
var protoInterfaces = map[string]string{
	"node":     "Node",
	"chardata": "CharacterData",
	"element":  "HTMLElement",
	"form":     "HTMLFormElement",
	"control":  "HTMLInputElement",
	"select":   "HTMLSelectElement",
	"option":   "HTMLOptionElement",
	"anchor":   "HTMLAnchorElement",
	"script":   "HTMLScriptElement",
	"embedded": "HTMLImageElement",
	"body":     "HTMLBodyElement",
}

func nodeClassName(n *html.Node) string {
	switch n.Type {
	case html.ElementNode:
		if n.Namespace == "svg" {
			if n.Data == "svg" {
				return "SVGSVGElement"
			}
			return "SVGElement"
		}
		tag := strings.ToLower(n.Data)
		if name, ok := elementInterfaces[tag]; ok {
			return name
		}
		if plainElements[tag] || strings.Contains(tag, "-") {
			return "HTMLElement"
		}
		return "HTMLUnknownElement"
	case html.TextNode:
		return "Text"
	case html.CommentNode:
		return "Comment"
	case html.DoctypeNode:
		return "DocumentType"
	case html.DocumentNode:
		return "DocumentFragment"
	}
	return "Node"
}

func (b *DOMBridge) legacyClassNames() bool {
	return b.browser.IsIE() && b.browser.DocumentMode < 9
}

func (b *DOMBridge) setLegacyToString(obj *goja.Object) {
	fn := b.vm.ToValue(func(goja.FunctionCall) goja.Value { return b.str("[object]") })
	if err := obj.DefineDataProperty("toString", fn, goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_FALSE); err != nil {
		b.logger.Error("Failed to define legacy toString", zap.Error(err))
	}
}

// setClassName installs a Symbol.toStringTag getter that names the receiver.
func (b *DOMBridge) setClassName(obj *goja.Object, name func(this goja.Value) string) {
	getter := b.vm.ToValue(func(call goja.FunctionCall) goja.Value { return b.str(name(call.This)) })
	if err := obj.DefineAccessorPropertySymbol(goja.SymToStringTag, getter, nil, goja.FLAG_TRUE, goja.FLAG_FALSE); err != nil {
		b.logger.Error("Failed to define class name", zap.Error(err))
	}
}

func (b *DOMBridge) brandNodePrototypes() {
	if b.legacyClassNames() {
		b.setLegacyToString(b.protos["node"])
		return
	}
	for group, fallback := range protoInterfaces {
		fallback := fallback
		b.setClassName(b.protos[group], func(this goja.Value) string {
			if n := b.unwrap(this); n != nil {
				return nodeClassName(n)
			}
			return fallback
		})
	}
}

// classProto returns the shared prototype for host objects of one interface.
func (b *DOMBridge) classProto(name string) *goja.Object {
	key := "class:" + name
	if p, ok := b.protos[key]; ok {
		return p
	}
	p := b.vm.NewObject()
	if b.legacyClassNames() {
		b.setLegacyToString(p)
	} else if err := p.DefineDataPropertySymbol(goja.SymToStringTag, b.str(name), goja.FLAG_FALSE, goja.FLAG_TRUE, goja.FLAG_FALSE); err != nil {
		b.logger.Error("Failed to define class name", zap.String("class", name), zap.Error(err))
	}
	b.protos[key] = p
	return p
}

// setClass makes obj an instance of the named interface.
func (b *DOMBridge) setClass(obj *goja.Object, name string) {
	if err := obj.SetPrototype(b.classProto(name)); err != nil {
		b.logger.Error("Failed to set class prototype", zap.String("class", name), zap.Error(err))
	}
}

func (b *DOMBridge) brandWindow() {
	if err := b.window.DefineDataPropertySymbol(goja.SymToStringTag, b.str("Window"), goja.FLAG_FALSE, goja.FLAG_TRUE, goja.FLAG_FALSE); err != nil {
		b.logger.Error("Failed to name the window", zap.Error(err))
	}
}

// brandXMLPrototypes names XML views after the token they wrap.
func (x *xmlViews) brandXMLPrototypes() {
	b := x.b
	if b.legacyClassNames() {
		b.setLegacyToString(x.protoNode)
		return
	}
	b.setClassName(x.protoNode, func(this goja.Value) string {
		obj, _ := this.(*goja.Object)
		t, ok := x.tokens[obj]
		if !ok {
			return "Node"
		}
		if x.isDocument(t) {
			return "XMLDocument"
		}
		switch t := t.(type) {
		case *etree.Element:
			return "Element"
		case *etree.CharData:
			if t.IsCData() {
				return "CDATASection"
			}
			return "Text"
		case *etree.Comment:
			return "Comment"
		case *etree.ProcInst:
			return "ProcessingInstruction"
		}
		return "Node"
	})
}
