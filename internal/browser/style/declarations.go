// internal/browser/style/declarations.go
package style

import (
	"strings"
	"unicode"

	"github.com/xkilldash9x/alertbench/internal/browser/parser"
)

// Format controls how a declaration block is serialized.
type Format struct {
	// TrailingSemicolon terminates the last declaration with ';'.
	TrailingSemicolon bool
	// Uppercase renders property names in upper case.
	Uppercase bool
}

// ModernFormat is the serialization of current engines.
var ModernFormat = Format{TrailingSemicolon: true}

// Declarations is an ordered declaration block, as backs an element's
// style attribute. Property names are case-insensitive and shorthands are
// kept verbatim.
type Declarations struct {
	items []parser.Declaration
}

// ParseDeclarations parses cssText. A repeated property keeps only its last
// value, at its last position.
func ParseDeclarations(cssText string) *Declarations {
	decls := &Declarations{}
	for _, d := range parser.ParseDeclarationBlock(cssText) {
		decls.remove(d.Property)
		decls.items = append(decls.items, d)
	}
	return decls
}

func normalizeProperty(name string) parser.Property {
	return parser.Property(strings.ToLower(strings.TrimSpace(name)))
}

func (d *Declarations) index(prop parser.Property) int {
	for i, item := range d.items {
		if item.Property == prop {
			return i
		}
	}
	return -1
}

func (d *Declarations) remove(prop parser.Property) (string, bool) {
	i := d.index(prop)
	if i < 0 {
		return "", false
	}
	old := string(d.items[i].Value)
	d.items = append(d.items[:i], d.items[i+1:]...)
	return old, true
}

// Len returns the number of declarations.
func (d *Declarations) Len() int { return len(d.items) }

// Item returns the property name at i, or "" when out of range.
func (d *Declarations) Item(i int) string {
	if i < 0 || i >= len(d.items) {
		return ""
	}
	return string(d.items[i].Property)
}

// Get returns the value of property, or "".
func (d *Declarations) Get(property string) string {
	if i := d.index(normalizeProperty(property)); i >= 0 {
		return string(d.items[i].Value)
	}
	return ""
}

// Priority returns "important" when property was declared !important.
func (d *Declarations) Priority(property string) string {
	if i := d.index(normalizeProperty(property)); i >= 0 && d.items[i].Important {
		return "important"
	}
	return ""
}

// Set updates property in place or appends it. An empty value removes it.
// The value is reparsed so "red !important" and priority "important" agree.
func (d *Declarations) Set(property, value, priority string) {
	prop := normalizeProperty(property)
	value = strings.TrimSpace(value)
	if prop == "" {
		return
	}
	if value == "" {
		d.remove(prop)
		return
	}
	parsed := parser.ParseDeclarationBlock(string(prop) + ": " + value)
	if len(parsed) != 1 {
		return
	}
	decl := parsed[0]
	if strings.EqualFold(priority, "important") {
		decl.Important = true
	}
	if i := d.index(prop); i >= 0 {
		d.items[i] = decl
		return
	}
	d.items = append(d.items, decl)
}

// Remove deletes property and returns its old value.
func (d *Declarations) Remove(property string) string {
	old, _ := d.remove(normalizeProperty(property))
	return old
}

// All returns a copy of the declarations in order.
func (d *Declarations) All() []parser.Declaration {
	return append([]parser.Declaration(nil), d.items...)
}

// CSSText serializes the block: "prop: value;" joined by a single space.
func (d *Declarations) CSSText(f Format) string {
	var sb strings.Builder
	for i, item := range d.items {
		if i > 0 {
			sb.WriteString("; ")
		}
		name := string(item.Property)
		if f.Uppercase {
			name = strings.ToUpper(name)
		}
		sb.WriteString(name)
		sb.WriteString(": ")
		sb.WriteString(string(item.Value))
		if item.Important {
			if f.Uppercase {
				sb.WriteString(" !IMPORTANT")
			} else {
				sb.WriteString(" !important")
			}
		}
	}
	if len(d.items) > 0 && f.TrailingSemicolon {
		sb.WriteByte(';')
	}
	return sb.String()
}

// CSSPropertyName converts a scripting name (backgroundColor, cssFloat) to
// its hyphenated CSS form. Hyphenated names pass through lower-cased.
func CSSPropertyName(name string) string {
	switch name {
	case "cssFloat", "styleFloat":
		return "float"
	}
	if strings.Contains(name, "-") {
		return strings.ToLower(name)
	}
	var sb strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				sb.WriteByte('-')
			}
			sb.WriteRune(unicode.ToLower(r))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// ScriptPropertyName converts a hyphenated CSS name to camelCase.
func ScriptPropertyName(name string) string {
	if name == "float" {
		return "cssFloat"
	}
	parts := strings.Split(name, "-")
	var sb strings.Builder
	for i, p := range parts {
		if p == "" {
			continue
		}
		if i == 0 || sb.Len() == 0 {
			sb.WriteString(p)
			continue
		}
		sb.WriteString(strings.ToUpper(p[:1]))
		sb.WriteString(p[1:])
	}
	return sb.String()
}

// KnownProperties are exposed as camelCase properties on style objects even
// before they are set, so reading an unset property yields "".
var KnownProperties = []string{
	"background", "background-color", "background-image", "border", "border-color",
	"border-style", "border-width", "bottom", "clear", "color", "cursor", "display",
	"float", "font", "font-family", "font-size", "font-style", "font-weight", "height",
	"left", "letter-spacing", "line-height", "list-style", "margin", "margin-bottom",
	"margin-left", "margin-right", "margin-top", "max-height", "max-width", "min-height",
	"min-width", "opacity", "outline", "overflow", "padding", "padding-bottom",
	"padding-left", "padding-right", "padding-top", "position", "right", "text-align",
	"text-decoration", "text-indent", "text-transform", "top", "vertical-align",
	"visibility", "white-space", "width", "word-spacing", "z-index",
}
