// internal/browser/parser/css.go
package parser

import (
	"errors"
	"fmt"
	"strings"
)

// Property represents a CSS property name, lower-cased (e.g., "display").
type Property string

// Value represents a CSS value exactly as written, minus !important.
type Value string

// Declaration is a key-value pair (e.g., display: none).
type Declaration struct {
	Property  Property
	Value     Value
	Important bool
}

// RuleSet represents a set of declarations applied by one or more selectors.
type RuleSet struct {
	SelectorGroups []SelectorGroup
	Declarations   []Declaration
}

// StyleSheet is the parsed form of one <style> element.
type StyleSheet struct {
	Rules []RuleSet
}

// SelectorGroup represents a comma-separated list of selectors (e.g., "h1, h2 .title").
type SelectorGroup []ComplexSelector

// ComplexSelector represents a sequence of simple selectors joined by combinators (e.g., "div > p").
type ComplexSelector struct {
	Selectors []SimpleSelectorWithCombinator
}

// SimpleSelectorWithCombinator pairs a simple selector with its preceding combinator.
type SimpleSelectorWithCombinator struct {
	Combinator     Combinator
	SimpleSelector SimpleSelector
}

// SimpleSelector represents a compound selector (tag, ID, classes, attributes, pseudo-classes).
type SimpleSelector struct {
	TagName       string
	ID            string
	Classes       []string
	Attributes    []AttributeSelector
	PseudoClasses []string
}

// AttributeSelector represents a CSS attribute selector like `[href]` or `[target="_blank"]`.
type AttributeSelector struct {
	Name     string
	Operator string // "", "=", "~=", "|=", "^=", "$=", "*="
	Value    string
}

// Combinator defines the relationship between simple selectors.
type Combinator int

const (
	CombinatorNone            Combinator = iota // first selector
	CombinatorDescendant                        // space
	CombinatorChild                             // >
	CombinatorAdjacentSibling                   // +
	CombinatorGeneralSibling                    // ~
)

// SupportedPseudoClasses lists the structural and form pseudo-classes the
// matcher understands. Others make a selector invalid.
var SupportedPseudoClasses = map[string]bool{
	"first-child": true,
	"last-child":  true,
	"only-child":  true,
	"empty":       true,
	"root":        true,
	"checked":     true,
	"disabled":    true,
	"enabled":     true,
	// Dynamic states never match in a page without a pointer.
	"hover":  true,
	"focus":  true,
	"active": true,
}

// ErrInvalidSelector is wrapped by every selector syntax error.
var ErrInvalidSelector = errors.New("invalid selector")

// CalculateSpecificity sums the specificity of every compound in the selector.
func (cs ComplexSelector) CalculateSpecificity() (int, int, int) {
	a, b, c := 0, 0, 0
	for _, s := range cs.Selectors {
		sa, sb, sc := s.SimpleSelector.CalculateSpecificity()
		a += sa
		b += sb
		c += sc
	}
	return a, b, c
}

// CalculateSpecificity calculates for a simple selector.
func (s SimpleSelector) CalculateSpecificity() (a, b, c int) {
	if s.ID != "" {
		a = 1
	}
	b = len(s.Classes) + len(s.Attributes) + len(s.PseudoClasses)
	if s.TagName != "" && s.TagName != "*" {
		c = 1
	}
	return a, b, c
}

// IsValid checks if the selector has at least one component.
func (s SimpleSelector) IsValid() bool {
	return s.TagName != "" || s.ID != "" || len(s.Classes) > 0 || len(s.Attributes) > 0 || len(s.PseudoClasses) > 0
}

// Parser holds the state of the CSS parser.
type Parser struct {
	input string
	pos   int
}

func NewParser(input string) *Parser {
	return &Parser{input: input, pos: 0}
}

// Parse builds a StyleSheet. Invalid rules are skipped, as a browser does.
func (p *Parser) Parse() StyleSheet {
	var rules []RuleSet
	for {
		p.consumeWhitespace()
		if p.eof() {
			break
		}
		if p.startsWith("/*") {
			p.skipComment()
			continue
		}
		if p.startsWith("<!--") {
			p.consumeN(4)
			continue
		}
		if p.startsWith("-->") {
			p.consumeN(3)
			continue
		}
		if p.currentChar() == '@' {
			p.skipAtRule()
			continue
		}

		start := p.pos
		p.skipTo('{')
		prelude := p.input[start:p.pos]
		if p.eof() {
			break
		}
		declarations, err := p.parseDeclarations()
		if err != nil {
			continue
		}
		group, err := ParseSelectorGroup(prelude)
		if err != nil || len(declarations) == 0 {
			continue
		}
		rules = append(rules, RuleSet{SelectorGroups: []SelectorGroup{group}, Declarations: declarations})
	}
	return StyleSheet{Rules: rules}
}

// ParseSelectorGroup parses a selector list strictly, as querySelector does:
// any syntax error invalidates the whole list.
func ParseSelectorGroup(input string) (SelectorGroup, error) {
	p := NewParser(strings.TrimSpace(p0(input)))
	if p.eof() {
		return nil, fmt.Errorf("%w: empty selector", ErrInvalidSelector)
	}
	var group SelectorGroup
	for {
		complex, err := p.parseComplexSelector()
		if err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrInvalidSelector, input, err)
		}
		group = append(group, complex)
		p.consumeWhitespace()
		if p.eof() {
			return group, nil
		}
		if p.currentChar() != ',' {
			return nil, fmt.Errorf("%w %q: unexpected %q at %d", ErrInvalidSelector, input, p.currentChar(), p.pos)
		}
		p.consumeChar()
	}
}

// p0 strips comments from a selector prelude.
func p0(s string) string {
	for {
		i := strings.Index(s, "/*")
		if i < 0 {
			return s
		}
		j := strings.Index(s[i+2:], "*/")
		if j < 0 {
			return s[:i]
		}
		s = s[:i] + " " + s[i+2+j+2:]
	}
}

// parseComplexSelector parses compounds joined by combinators, stopping at
// ',' or end of input.
func (p *Parser) parseComplexSelector() (ComplexSelector, error) {
	var complexSelector ComplexSelector
	combinator := CombinatorNone

	for {
		p.consumeWhitespace()
		if p.eof() || p.currentChar() == ',' {
			if combinator != CombinatorNone && combinator != CombinatorDescendant {
				return complexSelector, fmt.Errorf("dangling combinator")
			}
			break
		}

		simple, err := p.parseSimpleSelector()
		if err != nil {
			return complexSelector, err
		}
		complexSelector.Selectors = append(complexSelector.Selectors, SimpleSelectorWithCombinator{
			Combinator:     combinator,
			SimpleSelector: simple,
		})

		hadSpace := p.consumeWhitespace()
		if p.eof() || p.currentChar() == ',' {
			break
		}

		switch p.currentChar() {
		case '>':
			combinator = CombinatorChild
			p.consumeChar()
		case '+':
			combinator = CombinatorAdjacentSibling
			p.consumeChar()
		case '~':
			combinator = CombinatorGeneralSibling
			p.consumeChar()
		default:
			if !hadSpace {
				return complexSelector, fmt.Errorf("unexpected %q at %d", p.currentChar(), p.pos)
			}
			combinator = CombinatorDescendant
		}
	}
	if len(complexSelector.Selectors) == 0 {
		return complexSelector, fmt.Errorf("empty compound selector")
	}
	return complexSelector, nil
}

// parseSimpleSelector parses a single compound (e.g., div#id.class1:first-child).
func (p *Parser) parseSimpleSelector() (SimpleSelector, error) {
	selector := SimpleSelector{}

	if !p.eof() {
		ch := p.currentChar()
		if ch == '*' {
			p.consumeChar()
			selector.TagName = "*"
		} else if isValidIdentifierStart(ch) {
			selector.TagName = strings.ToLower(p.parseIdentifier())
		}
	}

loop:
	for !p.eof() {
		switch p.currentChar() {
		case '#':
			p.consumeChar()
			id := p.parseIdentifier()
			if id == "" {
				return selector, fmt.Errorf("empty id selector")
			}
			selector.ID = id
		case '.':
			p.consumeChar()
			class := p.parseIdentifier()
			if class == "" {
				return selector, fmt.Errorf("empty class selector")
			}
			selector.Classes = append(selector.Classes, class)
		case '[':
			p.consumeChar()
			attr, err := p.parseAttributeSelector()
			if err != nil {
				return selector, err
			}
			selector.Attributes = append(selector.Attributes, attr)
		case ':':
			p.consumeChar()
			if p.currentChar() == ':' {
				return selector, fmt.Errorf("pseudo-elements are not supported")
			}
			name := strings.ToLower(p.parseIdentifier())
			if !SupportedPseudoClasses[name] {
				return selector, fmt.Errorf("unsupported pseudo-class %q", name)
			}
			selector.PseudoClasses = append(selector.PseudoClasses, name)
		default:
			break loop
		}
	}

	if !selector.IsValid() {
		return selector, fmt.Errorf("unexpected %q at %d", p.currentChar(), p.pos)
	}
	return selector, nil
}

// parseAttributeSelector parses the contents of `[...]`; the '[' is consumed.
func (p *Parser) parseAttributeSelector() (AttributeSelector, error) {
	p.consumeWhitespace()
	name := strings.ToLower(p.parseIdentifier())
	p.consumeWhitespace()

	if name == "" {
		return AttributeSelector{}, fmt.Errorf("missing attribute name")
	}
	if p.eof() {
		return AttributeSelector{}, fmt.Errorf("unexpected EOF in attribute selector")
	}
	if p.currentChar() == ']' {
		p.consumeChar()
		return AttributeSelector{Name: name}, nil
	}

	var operator strings.Builder
	switch ch := p.consumeChar(); ch {
	case '=':
		operator.WriteByte(ch)
	case '~', '|', '^', '$', '*':
		operator.WriteByte(ch)
		if p.currentChar() != '=' {
			return AttributeSelector{}, fmt.Errorf("expected '=' after %q", ch)
		}
		operator.WriteByte(p.consumeChar())
	default:
		return AttributeSelector{}, fmt.Errorf("unexpected %q in attribute selector", ch)
	}

	p.consumeWhitespace()
	var value string
	if p.currentChar() == '"' || p.currentChar() == '\'' {
		quote := p.consumeChar()
		start := p.pos
		for !p.eof() && p.currentChar() != quote {
			p.pos++
		}
		if p.eof() {
			return AttributeSelector{}, fmt.Errorf("unterminated string in attribute selector")
		}
		value = p.input[start:p.pos]
		p.consumeChar()
	} else {
		value = p.parseIdentifier()
	}
	p.consumeWhitespace()

	if p.eof() || p.currentChar() != ']' {
		return AttributeSelector{}, fmt.Errorf("expected ']' to close attribute selector")
	}
	p.consumeChar()

	return AttributeSelector{Name: name, Operator: operator.String(), Value: value}, nil
}

// ParseDeclarationBlock parses the body of a style attribute or cssText
// ("color: red; margin: 0 !important"). Malformed declarations are dropped.
func ParseDeclarationBlock(input string) []Declaration {
	p := NewParser(input)
	var declarations []Declaration
	for {
		p.consumeWhitespace()
		if p.eof() {
			break
		}
		if p.startsWith("/*") {
			p.skipComment()
			continue
		}
		if p.currentChar() == ';' || p.currentChar() == '}' {
			p.consumeChar()
			continue
		}
		if d, ok := p.parseDeclaration(); ok {
			declarations = append(declarations, d)
		}
	}
	return declarations
}

// parseDeclarations parses the content within { ... }.
func (p *Parser) parseDeclarations() ([]Declaration, error) {
	p.consumeWhitespace()
	if p.eof() || p.currentChar() != '{' {
		return nil, fmt.Errorf("expected '{' at start of declarations")
	}
	p.consumeChar()

	var declarations []Declaration
	for {
		p.consumeWhitespace()
		if p.eof() || p.currentChar() == '}' {
			break
		}
		if p.startsWith("/*") {
			p.skipComment()
			continue
		}
		if p.currentChar() == ';' {
			p.consumeChar()
			continue
		}
		if d, ok := p.parseDeclaration(); ok {
			declarations = append(declarations, d)
		}
	}

	if !p.eof() && p.currentChar() == '}' {
		p.consumeChar()
	}
	return declarations, nil
}

// parseDeclaration parses a single 'property: value;' pair. The parser always
// advances, even on malformed input.
func (p *Parser) parseDeclaration() (Declaration, bool) {
	recover := func() (Declaration, bool) {
		p.skipTo(';', '}')
		if !p.eof() && p.currentChar() == ';' {
			p.consumeChar()
		}
		return Declaration{}, false
	}

	if !isValidIdentifierStart(p.currentChar()) {
		if p.eof() {
			return Declaration{}, false
		}
		p.consumeChar()
		return recover()
	}
	prop := p.parseIdentifier()
	p.consumeWhitespace()

	if p.eof() || p.currentChar() != ':' {
		return recover()
	}
	p.consumeChar()
	p.consumeWhitespace()

	val := p.parseValue()
	val, important := splitImportant(val)

	p.consumeWhitespace()
	if !p.eof() && p.currentChar() == ';' {
		p.consumeChar()
	}
	if val == "" {
		return Declaration{}, false
	}
	return Declaration{
		Property:  Property(strings.ToLower(prop)),
		Value:     Value(val),
		Important: important,
	}, true
}

// splitImportant removes a trailing "!important" (any case, optional space
// after the bang).
func splitImportant(val string) (string, bool) {
	lower := strings.ToLower(val)
	if !strings.HasSuffix(lower, "important") {
		return val, false
	}
	rest := strings.TrimRight(val[:len(val)-len("important")], " \t\n\r")
	if !strings.HasSuffix(rest, "!") {
		return val, false
	}
	return strings.TrimSpace(rest[:len(rest)-1]), true
}

// parseValue reads a CSS value until a delimiter, keeping quoted strings and
// parenthesized groups intact.
func (p *Parser) parseValue() string {
	start := p.pos
	for !p.eof() {
		ch := p.currentChar()
		if ch == ';' || ch == '}' {
			break
		}
		if ch == '"' || ch == '\'' {
			p.skipQuotedString(ch)
			continue
		}
		if ch == '(' {
			p.consumeChar()
			p.skipBlock('(', ')')
			continue
		}
		p.pos++
	}
	return strings.TrimSpace(p.input[start:p.pos])
}

// --- Lexer-like Helpers ---

func (p *Parser) eof() bool {
	return p.pos >= len(p.input)
}

func (p *Parser) currentChar() byte {
	if p.eof() {
		return 0
	}
	return p.input[p.pos]
}

func (p *Parser) consumeChar() byte {
	ch := p.currentChar()
	if !p.eof() {
		p.pos++
	}
	return ch
}

func (p *Parser) consumeN(n int) {
	p.pos += n
	if p.pos > len(p.input) {
		p.pos = len(p.input)
	}
}

// consumeWhitespace reports whether anything was consumed.
func (p *Parser) consumeWhitespace() bool {
	start := p.pos
	for !p.eof() && isWhitespace(p.currentChar()) {
		p.pos++
	}
	return p.pos > start
}

func (p *Parser) startsWith(s string) bool {
	if p.pos+len(s) > len(p.input) {
		return false
	}
	return p.input[p.pos:p.pos+len(s)] == s
}

func (p *Parser) skipComment() {
	p.pos += 2
	endIndex := strings.Index(p.input[p.pos:], "*/")
	if endIndex == -1 {
		p.pos = len(p.input)
	} else {
		p.pos += endIndex + 2
	}
}

func (p *Parser) skipTo(targets ...byte) {
	for !p.eof() {
		ch := p.currentChar()
		for _, target := range targets {
			if ch == target {
				return
			}
		}
		p.pos++
	}
}

// skipBlock consumes up to and including the close that balances an
// already-consumed open.
func (p *Parser) skipBlock(open, close byte) {
	depth := 1
	for !p.eof() {
		c := p.consumeChar()
		if c == open {
			depth++
		} else if c == close {
			depth--
			if depth == 0 {
				return
			}
		}
	}
}

func (p *Parser) skipQuotedString(quote byte) {
	p.consumeChar()
	for !p.eof() {
		ch := p.consumeChar()
		if ch == '\\' {
			p.consumeChar()
		} else if ch == quote {
			return
		}
	}
}

func (p *Parser) skipAtRule() {
	p.consumeChar()
	_ = p.parseIdentifier()
	for !p.eof() {
		ch := p.currentChar()
		if ch == '{' {
			p.consumeChar()
			p.skipBlock('{', '}')
			return
		}
		if ch == ';' {
			p.consumeChar()
			return
		}
		p.pos++
	}
}

func (p *Parser) parseIdentifier() string {
	start := p.pos
	for !p.eof() && isValidIdentifierChar(p.currentChar()) {
		p.pos++
	}
	return p.input[start:p.pos]
}

func isWhitespace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' || ch == '\f'
}

func isValidIdentifierStart(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_' || ch == '-' || ch >= 0x80
}

func isValidIdentifierChar(ch byte) bool {
	return isValidIdentifierStart(ch) || (ch >= '0' && ch <= '9')
}
