// internal/browser/style/selectors.go
package style

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/xkilldash9x/alertbench/internal/browser/parser"
)

// Selector is a compiled selector list, used by querySelector(All) and
// matches.
type Selector struct {
	source string
	group  parser.SelectorGroup
}

// Compile parses a selector list; syntax errors wrap parser.ErrInvalidSelector.
func Compile(selector string) (*Selector, error) {
	group, err := parser.ParseSelectorGroup(selector)
	if err != nil {
		return nil, err
	}
	return &Selector{source: selector, group: group}, nil
}

func (s *Selector) String() string { return s.source }

// Match reports whether node matches any selector in the list.
func (s *Selector) Match(node *html.Node) bool {
	_, ok := matchGroup(node, s.group)
	return ok
}

// QueryAll returns every element below root (root excluded) that matches,
// in document order.
func (s *Selector) QueryAll(root *html.Node) []*html.Node {
	var out []*html.Node
	walkElements(root, func(n *html.Node) bool {
		if s.Match(n) {
			out = append(out, n)
		}
		return true
	})
	return out
}

// QueryFirst returns the first matching element below root, or nil.
func (s *Selector) QueryFirst(root *html.Node) *html.Node {
	var found *html.Node
	walkElements(root, func(n *html.Node) bool {
		if s.Match(n) {
			found = n
			return false
		}
		return true
	})
	return found
}

// walkElements visits descendant elements in document order until fn
// returns false.
func walkElements(root *html.Node, fn func(*html.Node) bool) bool {
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && !fn(c) {
			return false
		}
		if !walkElements(c, fn) {
			return false
		}
	}
	return true
}

// matchGroup returns the first complex selector of group matching node.
func matchGroup(node *html.Node, group parser.SelectorGroup) (*parser.ComplexSelector, bool) {
	if node == nil || node.Type != html.ElementNode {
		return nil, false
	}
	for i := range group {
		complexSelector := &group[i]
		currentIndex := len(complexSelector.Selectors) - 1
		if currentIndex < 0 {
			continue
		}
		if recursiveMatch(node, complexSelector, currentIndex) {
			return complexSelector, true
		}
	}
	return nil, false
}

func recursiveMatch(node *html.Node, complexSelector *parser.ComplexSelector, index int) bool {
	if node == nil || index < 0 || node.Type != html.ElementNode {
		return false
	}
	current := complexSelector.Selectors[index]
	if !matchesSimple(node, current.SimpleSelector) {
		return false
	}
	if index == 0 {
		return true
	}
	nextIndex := index - 1
	switch current.Combinator {
	case parser.CombinatorDescendant:
		for parent := node.Parent; parent != nil; parent = parent.Parent {
			if recursiveMatch(parent, complexSelector, nextIndex) {
				return true
			}
		}
		return false
	case parser.CombinatorChild:
		return recursiveMatch(node.Parent, complexSelector, nextIndex)
	case parser.CombinatorAdjacentSibling:
		return recursiveMatch(previousElementSibling(node), complexSelector, nextIndex)
	case parser.CombinatorGeneralSibling:
		for sibling := previousElementSibling(node); sibling != nil; sibling = previousElementSibling(sibling) {
			if recursiveMatch(sibling, complexSelector, nextIndex) {
				return true
			}
		}
		return false
	case parser.CombinatorNone:
		return true
	}
	return false
}

func previousElementSibling(node *html.Node) *html.Node {
	for sibling := node.PrevSibling; sibling != nil; sibling = sibling.PrevSibling {
		if sibling.Type == html.ElementNode {
			return sibling
		}
	}
	return nil
}

func nextElementSibling(node *html.Node) *html.Node {
	for sibling := node.NextSibling; sibling != nil; sibling = sibling.NextSibling {
		if sibling.Type == html.ElementNode {
			return sibling
		}
	}
	return nil
}

func matchesSimple(node *html.Node, selector parser.SimpleSelector) bool {
	if selector.TagName != "" && selector.TagName != "*" && strings.ToLower(node.Data) != selector.TagName {
		return false
	}
	if selector.ID != "" {
		if id, ok := getAttr(node, "id"); !ok || id != selector.ID {
			return false
		}
	}
	if len(selector.Classes) > 0 {
		classAttr, _ := getAttr(node, "class")
		nodeClasses := strings.Fields(classAttr)
		for _, requiredClass := range selector.Classes {
			if !containsString(nodeClasses, requiredClass) {
				return false
			}
		}
	}
	for _, attrSel := range selector.Attributes {
		if !matchesAttribute(node, attrSel) {
			return false
		}
	}
	for _, pseudo := range selector.PseudoClasses {
		if !matchesPseudoClass(node, pseudo) {
			return false
		}
	}
	return true
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func matchesAttribute(node *html.Node, sel parser.AttributeSelector) bool {
	var actualValue string
	found := false
	for _, attr := range node.Attr {
		if strings.EqualFold(attr.Key, sel.Name) {
			actualValue = attr.Val
			found = true
			break
		}
	}
	if !found {
		return false
	}

	switch sel.Operator {
	case "":
		return true
	case "=":
		return actualValue == sel.Value
	case "~=":
		return containsString(strings.Fields(actualValue), sel.Value)
	case "|=":
		return actualValue == sel.Value || strings.HasPrefix(actualValue, sel.Value+"-")
	case "^=":
		return sel.Value != "" && strings.HasPrefix(actualValue, sel.Value)
	case "$=":
		return sel.Value != "" && strings.HasSuffix(actualValue, sel.Value)
	case "*=":
		return sel.Value != "" && strings.Contains(actualValue, sel.Value)
	default:
		return false
	}
}

var formControls = map[string]bool{
	"button": true, "input": true, "select": true, "textarea": true,
	"option": true, "optgroup": true, "fieldset": true,
}

func matchesPseudoClass(node *html.Node, pseudo string) bool {
	switch pseudo {
	case "first-child":
		return previousElementSibling(node) == nil
	case "last-child":
		return nextElementSibling(node) == nil
	case "only-child":
		return previousElementSibling(node) == nil && nextElementSibling(node) == nil
	case "empty":
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode || (c.Type == html.TextNode && c.Data != "") {
				return false
			}
		}
		return true
	case "root":
		return node.Parent != nil && node.Parent.Type == html.DocumentNode
	case "checked":
		switch node.Data {
		case "input":
			typ, _ := getAttr(node, "type")
			typ = strings.ToLower(typ)
			_, checked := getAttr(node, "checked")
			return checked && (typ == "checkbox" || typ == "radio")
		case "option":
			_, selected := getAttr(node, "selected")
			return selected
		}
		return false
	case "disabled":
		_, disabled := getAttr(node, "disabled")
		return formControls[node.Data] && disabled
	case "enabled":
		_, disabled := getAttr(node, "disabled")
		return formControls[node.Data] && !disabled
	}
	// Dynamic pseudo-classes never match.
	return false
}
