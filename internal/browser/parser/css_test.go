// browser/parser/css_test.go
package parser

import (
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Helper functions to build expected structures concisely
func d(prop, val string, important bool) Declaration {
	return Declaration{Property: Property(prop), Value: Value(val), Important: important}
}

func s(tag, id string, classes []string, attrs []AttributeSelector) SimpleSelector {
	return SimpleSelector{TagName: tag, ID: id, Classes: classes, Attributes: attrs}
}

func cs(selectors ...SimpleSelectorWithCombinator) ComplexSelector {
	return ComplexSelector{Selectors: selectors}
}

func sc(c Combinator, sel SimpleSelector) SimpleSelectorWithCombinator {
	return SimpleSelectorWithCombinator{Combinator: c, SimpleSelector: sel}
}

func TestParseSimpleSelectorsAndAttributes(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected SimpleSelector
	}{
		{"Tag", "div", s("div", "", nil, nil)},
		{"Tag Upper", "DIV", s("div", "", nil, nil)},
		{"ID", "#main", s("", "main", nil, nil)},
		{"Class", ".button", s("", "", []string{"button"}, nil)},
		{"Multiple Classes", ".btn.primary", s("", "", []string{"btn", "primary"}, nil)},
		{"Combined", "input#username.required", s("input", "username", []string{"required"}, nil)},
		{"Universal", "*", s("*", "", nil, nil)},
		{"Attr Presence", "[disabled]", s("", "", nil, []AttributeSelector{{Name: "disabled"}})},
		{"Attr Exact", `[type="text"]`, s("", "", nil, []AttributeSelector{{Name: "type", Operator: "=", Value: "text"}})},
		{"Attr Unquoted", `[type=text]`, s("", "", nil, []AttributeSelector{{Name: "type", Operator: "=", Value: "text"}})},
		{"Attr Contains Word (~=)", `[class~="alert"]`, s("", "", nil, []AttributeSelector{{Name: "class", Operator: "~=", Value: "alert"}})},
		{"Attr Prefix Hyphen (|=)", `[lang|="en"]`, s("", "", nil, []AttributeSelector{{Name: "lang", Operator: "|=", Value: "en"}})},
		{"Attr Starts With (^=)", `[href^='https']`, s("", "", nil, []AttributeSelector{{Name: "href", Operator: "^=", Value: "https"}})},
		{"Attr Ends With ($=)", `[src$=".png"]`, s("", "", nil, []AttributeSelector{{Name: "src", Operator: "$=", Value: ".png"}})},
		{"Attr Contains Substring (*=)", `[ title *= "ex" ]`, s("", "", nil, []AttributeSelector{{Name: "title", Operator: "*=", Value: "ex"}})},
		{"Mixed", `a.external[target="_blank"]`, s("a", "", []string{"external"}, []AttributeSelector{{Name: "target", Operator: "=", Value: "_blank"}})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			group, err := ParseSelectorGroup(tt.input)
			require.NoError(t, err)
			require.Len(t, group, 1)
			require.Len(t, group[0].Selectors, 1)
			assert.Equal(t, tt.expected, group[0].Selectors[0].SimpleSelector)
		})
	}
}

func TestParsePseudoClasses(t *testing.T) {
	group, err := ParseSelectorGroup("li:first-child, input:CHECKED:disabled")
	require.NoError(t, err)
	require.Len(t, group, 2)
	assert.Equal(t, []string{"first-child"}, group[0].Selectors[0].SimpleSelector.PseudoClasses)
	assert.Equal(t, []string{"checked", "disabled"}, group[1].Selectors[0].SimpleSelector.PseudoClasses)

	_, _, c := group[0].CalculateSpecificity()
	assert.Equal(t, 1, c)
	_, b, _ := group[1].CalculateSpecificity()
	assert.Equal(t, 2, b)
}

func TestParseCombinators(t *testing.T) {
	group, err := ParseSelectorGroup(`
		div p,
		article > section,
		h1+h2,
		h2 ~ p,
		.container .item > span
	`)
	require.NoError(t, err)
	require.Len(t, group, 5)

	expected := SelectorGroup{
		cs(sc(CombinatorNone, s("div", "", nil, nil)), sc(CombinatorDescendant, s("p", "", nil, nil))),
		cs(sc(CombinatorNone, s("article", "", nil, nil)), sc(CombinatorChild, s("section", "", nil, nil))),
		cs(sc(CombinatorNone, s("h1", "", nil, nil)), sc(CombinatorAdjacentSibling, s("h2", "", nil, nil))),
		cs(sc(CombinatorNone, s("h2", "", nil, nil)), sc(CombinatorGeneralSibling, s("p", "", nil, nil))),
		cs(
			sc(CombinatorNone, s("", "", []string{"container"}, nil)),
			sc(CombinatorDescendant, s("", "", []string{"item"}, nil)),
			sc(CombinatorChild, s("span", "", nil, nil)),
		),
	}
	assert.Equal(t, expected, group)
}

func TestParseSelectorGroupErrors(t *testing.T) {
	invalid := []string{
		"",
		"   ",
		"> p",
		"div >",
		"div,",
		",div",
		"div..x",
		"#",
		"[href",
		"[=x]",
		`[a="x]`,
		"[a!=b]",
		"p::before",
		"a:visited-ish",
		"div{",
		"a b ) c",
	}
	for _, in := range invalid {
		t.Run(in, func(t *testing.T) {
			_, err := ParseSelectorGroup(in)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidSelector)
		})
	}
}

func TestSpecificity(t *testing.T) {
	tests := []struct {
		selector string
		a, b, c  int
	}{
		{"*", 0, 0, 0},
		{"li", 0, 0, 1},
		{"ul li", 0, 0, 2},
		{"ul ol+li", 0, 0, 3},
		{"h1 + *[rel=up]", 0, 1, 1},
		{"ul ol li.red", 0, 1, 3},
		{"li.red.level", 0, 2, 1},
		{"#x34y", 1, 0, 0},
		{"div#main.a:first-child", 1, 2, 1},
	}
	for _, tt := range tests {
		t.Run(tt.selector, func(t *testing.T) {
			group, err := ParseSelectorGroup(tt.selector)
			require.NoError(t, err)
			a, b, c := group[0].CalculateSpecificity()
			assert.Equal(t, [3]int{tt.a, tt.b, tt.c}, [3]int{a, b, c})
		})
	}
}

func TestParseStyleSheet(t *testing.T) {
	input := `
		<!--
		/* leading comment */
		@charset "utf-8";
		@media print { p { color: red; } }
		body { color: black; margin: 0 }
		h1, h2.title { font-weight: bold !important; }
		p > span { background: url("a;b}.png") no-repeat; }
		::selection { color: red }
		div { }
		a:hover { color: blue; }
		-->
	`
	sheet := NewParser(input).Parse()
	require.Len(t, sheet.Rules, 4)

	assert.Equal(t, []Declaration{d("color", "black", false), d("margin", "0", false)}, sheet.Rules[0].Declarations)
	assert.Len(t, sheet.Rules[1].SelectorGroups[0], 2)
	assert.Equal(t, []Declaration{d("font-weight", "bold", true)}, sheet.Rules[1].Declarations)
	assert.Equal(t, []Declaration{d("background", `url("a;b}.png") no-repeat`, false)}, sheet.Rules[2].Declarations)
	assert.Equal(t, []string{"hover"}, sheet.Rules[3].SelectorGroups[0][0].Selectors[0].SimpleSelector.PseudoClasses)
}

func TestParseDeclarationBlock(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []Declaration
	}{
		{"Empty", "", nil},
		{"Single", "color: red", []Declaration{d("color", "red", false)}},
		{"Case", "COLOR: Red;", []Declaration{d("color", "Red", false)}},
		{"Multiple", "color:red;  margin : 0 auto ;", []Declaration{d("color", "red", false), d("margin", "0 auto", false)}},
		{"Important", "color: red !important", []Declaration{d("color", "red", true)}},
		{"Important Spaced", "color: red ! IMPORTANT;", []Declaration{d("color", "red", true)}},
		{"Not Important", "content: important", []Declaration{d("content", "important", false)}},
		{"Comment", "/* x */ color: red; /* y */", []Declaration{d("color", "red", false)}},
		{"Quoted", `font-family: "a;b", serif`, []Declaration{d("font-family", `"a;b", serif`, false)}},
		{"Parens", "background: rgb(1, 2, 3)", []Declaration{d("background", "rgb(1, 2, 3)", false)}},
		{"Missing Colon", "color red; width: 1px", []Declaration{d("width", "1px", false)}},
		{"Empty Value", "color: ; width: 1px", []Declaration{d("width", "1px", false)}},
		{"Garbage", "}}{; 1: 2; width: 1px", []Declaration{d("width", "1px", false)}},
		{"Custom Property", "--main-color: red", []Declaration{d("--main-color", "red", false)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseDeclarationBlock(tt.input))
		})
	}
}

func FuzzParser(f *testing.F) {
	f.Add([]byte("div > p.a[href^='x']:first-child { color: red !important }"))
	f.Add([]byte("@media x { a { b: c } } > } { ["))
	f.Fuzz(func(t *testing.T, data []byte) {
		consumer := fuzz.NewConsumer(data)
		sheet, err := consumer.GetString()
		if err != nil {
			return
		}
		block, err := consumer.GetString()
		if err != nil {
			return
		}

		// None of these may panic or hang.
		_ = NewParser(sheet).Parse()
		_ = ParseDeclarationBlock(block)
		if group, err := ParseSelectorGroup(sheet); err == nil {
			for _, complex := range group {
				assert.NotEmpty(t, complex.Selectors)
			}
		}
	})
}
