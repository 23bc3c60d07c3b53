// internal/browser/style/style.go
package style

import (
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/alertbench/internal/browser/parser"
)

// DefaultUserAgentCSS supplies the per-tag display defaults and the few
// presentational defaults page scripts commonly probe.
const DefaultUserAgentCSS = `
html, body, div, p, h1, h2, h3, h4, h5, h6, ul, ol, dl, dt, dd, form, fieldset,
header, footer, section, article, nav, main, aside, address, blockquote, pre,
figure, figcaption, hr, legend, center, dir, menu, details, summary, optgroup {
    display: block;
}
head, script, style, title, meta, link, base, noscript, template, datalist, param, area {
    display: none;
}
[hidden] { display: none; }
li { display: list-item; }
table { display: table; }
caption { display: table-caption; }
thead { display: table-header-group; }
tbody { display: table-row-group; }
tfoot { display: table-footer-group; }
tr { display: table-row; }
td, th { display: table-cell; }
col { display: table-column; }
colgroup { display: table-column-group; }
input, button, textarea, select, img, iframe, object, embed, video, canvas {
    display: inline-block;
}
option { display: block; }
body { margin: 8px; }
h1 { font-size: 2em; font-weight: bold; }
h2 { font-size: 1.5em; font-weight: bold; }
b, strong, th { font-weight: bold; }
i, em, cite, var, dfn { font-style: italic; }
a { color: #0000EE; text-decoration: underline; cursor: pointer; }
`

// inheritedProperties take their parent's value when not specified.
var inheritedProperties = map[parser.Property]bool{
	"color": true, "cursor": true, "direction": true, "font-family": true,
	"font-size": true, "font-style": true, "font-variant": true, "font-weight": true,
	"letter-spacing": true, "line-height": true, "list-style-type": true,
	"text-align": true, "text-indent": true, "text-transform": true,
	"visibility": true, "white-space": true, "word-spacing": true,
}

// initialValues apply when nothing in the cascade or inheritance sets a property.
var initialValues = map[parser.Property]parser.Value{
	"color":            "black",
	"display":          "inline",
	"visibility":       "visible",
	"position":         "static",
	"float":            "none",
	"clear":            "none",
	"background-color": "transparent",
	"font-style":       "normal",
	"font-weight":      "normal",
	"font-size":        "16px",
	"text-align":       "start",
	"text-decoration":  "none",
	"white-space":      "normal",
	"cursor":           "auto",
	"overflow":         "visible",
	"z-index":          "auto",
	"opacity":          "1",
	"width":            "auto",
	"height":           "auto",
	"margin-top":       "0px",
	"margin-right":     "0px",
	"margin-bottom":    "0px",
	"margin-left":      "0px",
	"padding-top":      "0px",
	"padding-right":    "0px",
	"padding-bottom":   "0px",
	"padding-left":     "0px",
}

// InitialValue returns the initial value of property, or "" when unknown.
func InitialValue(property string) string {
	return string(initialValues[parser.Property(strings.ToLower(property))])
}

// -- Style Engine --

// Engine runs the cascade over the user agent sheet, the document's author
// sheets and inline style attributes.
type Engine struct {
	userAgentSheets []parser.StyleSheet
	authorSheets    []parser.StyleSheet
	logger          *zap.Logger
}

var defaultUserAgentSheet = parser.NewParser(DefaultUserAgentCSS).Parse()

// NewEngine creates an engine holding only the user agent sheet.
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		userAgentSheets: []parser.StyleSheet{defaultUserAgentSheet},
		logger:          logger.Named("style"),
	}
}

// AddAuthorSheet adds a stylesheet provided by the page.
func (se *Engine) AddAuthorSheet(sheet parser.StyleSheet) {
	se.authorSheets = append(se.authorSheets, sheet)
}

// AddAuthorCSS parses css and adds it as an author sheet.
func (se *Engine) AddAuthorCSS(css string) {
	sheet := parser.NewParser(css).Parse()
	se.logger.Debug("Added author sheet.", zap.Int("rules", len(sheet.Rules)))
	se.AddAuthorSheet(sheet)
}

// NewEngineForDocument collects every <style> element under doc in document order.
func NewEngineForDocument(doc *html.Node, logger *zap.Logger) *Engine {
	se := NewEngine(logger)
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "style" {
			var css strings.Builder
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.TextNode {
					css.WriteString(c.Data)
				}
			}
			se.AddAuthorCSS(css.String())
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	if doc != nil {
		walk(doc)
	}
	return se
}

// StyleOrigin is where a declaration came from.
type StyleOrigin int

const (
	OriginUserAgent StyleOrigin = iota
	OriginAuthor
	OriginInline
)

type DeclarationWithContext struct {
	Declaration parser.Declaration
	Specificity struct{ A, B, C int }
	Origin      StyleOrigin
	Order       int
}

// CalculateStyles returns the cascaded values for node: the winning declared
// value of each property, before inheritance and initial values.
func (se *Engine) CalculateStyles(node *html.Node) map[parser.Property]parser.Value {
	styles := make(map[parser.Property]parser.Value)
	if node == nil || node.Type != html.ElementNode {
		return styles
	}

	var declarations []DeclarationWithContext
	order := 0

	processSheets := func(sheets []parser.StyleSheet, origin StyleOrigin) {
		for _, sheet := range sheets {
			for _, rule := range sheet.Rules {
				for _, selectorGroup := range rule.SelectorGroups {
					matched, ok := matchGroup(node, selectorGroup)
					if !ok {
						continue
					}
					a, b, c := matched.CalculateSpecificity()
					for _, decl := range rule.Declarations {
						declarations = append(declarations, DeclarationWithContext{
							Declaration: decl,
							Specificity: struct{ A, B, C int }{a, b, c},
							Origin:      origin,
							Order:       order,
						})
						order++
					}
					break
				}
			}
		}
	}

	processSheets(se.userAgentSheets, OriginUserAgent)
	processSheets(se.authorSheets, OriginAuthor)

	if styleAttr, ok := getAttr(node, "style"); ok {
		for _, decl := range parser.ParseDeclarationBlock(styleAttr) {
			declarations = append(declarations, DeclarationWithContext{
				Declaration: decl,
				Origin:      OriginInline,
				Order:       order,
			})
			order++
		}
	}

	sort.SliceStable(declarations, func(i, j int) bool {
		d1, d2 := declarations[i], declarations[j]
		p1, p2 := calculateCascadePriority(d1), calculateCascadePriority(d2)
		if p1 != p2 {
			return p1 < p2
		}
		s1, s2 := d1.Specificity, d2.Specificity
		if s1.A != s2.A {
			return s1.A < s2.A
		}
		if s1.B != s2.B {
			return s1.B < s2.B
		}
		if s1.C != s2.C {
			return s1.C < s2.C
		}
		return d1.Order < d2.Order
	})

	// Later entries win; shorthands expand in place so a later longhand
	// still overrides an earlier shorthand.
	for _, declCtx := range declarations {
		prop, val := declCtx.Declaration.Property, declCtx.Declaration.Value
		styles[prop] = val
		expandShorthand(styles, prop, val)
	}
	return styles
}

// calculateCascadePriority orders origins and importance. Inline
// declarations sit on their own level, so selector specificity never
// outranks them.
func calculateCascadePriority(d DeclarationWithContext) int {
	isImportant := d.Declaration.Important
	switch d.Origin {
	case OriginUserAgent:
		if isImportant {
			return 6
		}
		return 1
	case OriginAuthor:
		if isImportant {
			return 4
		}
		return 2
	case OriginInline:
		if isImportant {
			return 5
		}
		return 3
	}
	return 0
}

func expandShorthand(styles map[parser.Property]parser.Value, prop parser.Property, val parser.Value) {
	switch prop {
	case "margin":
		expand1To4Shorthand(styles, val, "margin-top", "margin-right", "margin-bottom", "margin-left")
	case "padding":
		expand1To4Shorthand(styles, val, "padding-top", "padding-right", "padding-bottom", "padding-left")
	case "border-width":
		expand1To4Shorthand(styles, val, "border-top-width", "border-right-width", "border-bottom-width", "border-left-width")
	case "border-color":
		expand1To4Shorthand(styles, val, "border-top-color", "border-right-color", "border-bottom-color", "border-left-color")
	case "background":
		// Only the color component is tracked.
		for _, part := range strings.Fields(string(val)) {
			if _, ok := ParseColor(part); ok {
				styles["background-color"] = parser.Value(part)
			}
		}
	}
}

func expand1To4Shorthand(styles map[parser.Property]parser.Value, val parser.Value, top, right, bottom, left parser.Property) {
	parts := strings.Fields(string(val))
	switch len(parts) {
	case 1:
		v1 := parser.Value(parts[0])
		styles[top], styles[right], styles[bottom], styles[left] = v1, v1, v1, v1
	case 2:
		v1, v2 := parser.Value(parts[0]), parser.Value(parts[1])
		styles[top], styles[right], styles[bottom], styles[left] = v1, v2, v1, v2
	case 3:
		v1, v2, v3 := parser.Value(parts[0]), parser.Value(parts[1]), parser.Value(parts[2])
		styles[top], styles[right], styles[bottom], styles[left] = v1, v2, v3, v2
	case 4:
		v1, v2, v3, v4 := parser.Value(parts[0]), parser.Value(parts[1]), parser.Value(parts[2]), parser.Value(parts[3])
		styles[top], styles[right], styles[bottom], styles[left] = v1, v2, v3, v4
	}
}

// -- Computed style --

// ComputedStyle is a node's resolved style: cascaded values, then inherited
// values, then initial values.
type ComputedStyle struct {
	Node   *html.Node
	values map[parser.Property]parser.Value
}

// Compute resolves the style of node, computing its ancestors first so that
// inherit and inherited properties see the parent's resolved values.
func (se *Engine) Compute(node *html.Node) *ComputedStyle {
	var chain []*html.Node
	for n := node; n != nil; n = n.Parent {
		if n.Type == html.ElementNode {
			chain = append(chain, n)
		}
	}

	var parent *ComputedStyle
	for i := len(chain) - 1; i >= 0; i-- {
		cs := &ComputedStyle{Node: chain[i], values: se.CalculateStyles(chain[i])}
		cs.resolve(parent)
		parent = cs
	}
	if parent == nil {
		return &ComputedStyle{Node: node, values: map[parser.Property]parser.Value{}}
	}
	return parent
}

func (cs *ComputedStyle) resolve(parent *ComputedStyle) {
	for prop, val := range cs.values {
		switch strings.ToLower(string(val)) {
		case "inherit":
			if parent != nil {
				cs.values[prop] = parser.Value(parent.Get(string(prop)))
			} else {
				cs.values[prop] = initialValues[prop]
			}
		case "initial":
			cs.values[prop] = initialValues[prop]
		}
	}
	if parent == nil {
		return
	}
	for prop := range inheritedProperties {
		if _, ok := cs.values[prop]; !ok {
			if val, ok := parent.values[prop]; ok {
				cs.values[prop] = val
			}
		}
	}
}

// Get returns the resolved value of property (hyphenated form), falling
// back to its initial value.
func (cs *ComputedStyle) Get(property string) string {
	return cs.Lookup(property, InitialValue(property))
}

// Lookup returns the resolved value of property or fallback when unset.
func (cs *ComputedStyle) Lookup(property, fallback string) string {
	if val, ok := cs.values[parser.Property(strings.ToLower(property))]; ok {
		return string(val)
	}
	return fallback
}

// Properties lists the explicitly resolved properties, sorted.
func (cs *ComputedStyle) Properties() []string {
	props := make([]string, 0, len(cs.values))
	for p := range cs.values {
		props = append(props, string(p))
	}
	sort.Strings(props)
	return props
}

// IsVisible reports whether the node renders at all.
func (cs *ComputedStyle) IsVisible() bool {
	return cs.Get("display") != "none" && cs.Get("visibility") != "hidden"
}

func getAttr(node *html.Node, key string) (string, bool) {
	for _, attr := range node.Attr {
		if attr.Key == key {
			return attr.Val, true
		}
	}
	return "", false
}
