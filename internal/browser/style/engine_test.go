package style

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/net/html"
)

// Helper to set up the style engine with specific CSS.
func setupEngine(t *testing.T, css string) *Engine {
	engine := NewEngine(zaptest.NewLogger(t))
	engine.AddAuthorCSS(css)
	return engine
}

func TestCSSCascade(t *testing.T) {
	t.Run("Specificity Ordering", func(t *testing.T) {
		node := parseHTMLAndFind(t, `<p id="target" class="highlight">Test</p>`, "target")
		engine := setupEngine(t, `
			#target { color: id; }
			p.highlight { color: class; }
			p { color: tag; }
		`)
		assert.Equal(t, "id", engine.Compute(node).Get("color"))
	})

	t.Run("Source Order Breaks Ties", func(t *testing.T) {
		node := parseHTMLAndFind(t, `<p id="target" class="a b">Test</p>`, "target")
		engine := setupEngine(t, `.a { color: first; } .b { color: second; }`)
		assert.Equal(t, "second", engine.Compute(node).Get("color"))
	})

	t.Run("Inline Beats Any Selector", func(t *testing.T) {
		node := parseHTMLAndFind(t, `<p id="target" class="c" style="color: inline">Test</p>`, "target")
		engine := setupEngine(t, `#target.c { color: idclass; }`)
		assert.Equal(t, "inline", engine.Compute(node).Get("color"))
	})

	t.Run("Important Beats Inline", func(t *testing.T) {
		node := parseHTMLAndFind(t, `<p id="target" style="color: inline">Test</p>`, "target")
		engine := setupEngine(t, `p { color: important !important; }`)
		assert.Equal(t, "important", engine.Compute(node).Get("color"))
	})

	t.Run("Inline Important Beats Author Important", func(t *testing.T) {
		node := parseHTMLAndFind(t, `<p id="target" style="color: inline !important">Test</p>`, "target")
		engine := setupEngine(t, `#target { color: author !important; }`)
		assert.Equal(t, "inline", engine.Compute(node).Get("color"))
	})

	t.Run("Author Overrides User Agent", func(t *testing.T) {
		node := parseHTMLAndFind(t, `<div id="target"></div>`, "target")
		assert.Equal(t, "block", setupEngine(t, "").Compute(node).Get("display"))
		assert.Equal(t, "none", setupEngine(t, "div { display: none }").Compute(node).Get("display"))
	})
}

func TestInheritanceAndInitialValues(t *testing.T) {
	doc := parseDoc(t, `<div id="parent" style="color: red; border-color: blue"><span id="child">x</span><em id="reset" style="color: initial">y</em><b id="forced" style="border-color: inherit">z</b></div>`)
	engine := NewEngine(nil)
	find := func(id string) *html.Node {
		sel, err := Compile("#" + id)
		require.NoError(t, err)
		return sel.QueryFirst(doc)
	}

	child := engine.Compute(find("child"))
	assert.Equal(t, "red", child.Get("color"), "color inherits")
	assert.Equal(t, "", child.Get("border-color"), "border-color does not inherit")
	assert.Equal(t, "inline", child.Get("display"))
	assert.Equal(t, "visible", child.Get("visibility"))
	assert.True(t, child.IsVisible())

	assert.Equal(t, "black", engine.Compute(find("reset")).Get("color"))
	assert.Equal(t, "blue", engine.Compute(find("forced")).Get("border-color"))
	assert.Equal(t, "fallback", child.Lookup("z-index", "fallback"))
}

func TestDisplayDefaultsPerTag(t *testing.T) {
	doc := parseDoc(t, `<ul><li id="li"></li></ul><table><tr id="tr"><td id="td"></td></tr></table><p id="hidden" hidden></p><script id="js"></script>`)
	engine := NewEngineForDocument(doc, zaptest.NewLogger(t))
	for id, want := range map[string]string{"li": "list-item", "tr": "table-row", "td": "table-cell", "hidden": "none", "js": "none"} {
		sel, err := Compile("#" + id)
		require.NoError(t, err)
		assert.Equal(t, want, engine.Compute(sel.QueryFirst(doc)).Get("display"), id)
	}
}

func TestEngineForDocumentCollectsStyleElements(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(`<html><head><style>#t { color: green; margin: 1px 2px }</style></head>
		<body><p id="t" style="margin-left: 5px">x</p><style>#t { color: blue }</style></body></html>`))
	require.NoError(t, err)
	engine := NewEngineForDocument(doc, nil)
	sel, err := Compile("#t")
	require.NoError(t, err)
	cs := engine.Compute(sel.QueryFirst(doc))

	assert.Equal(t, "blue", cs.Get("color"), "later sheet wins")
	assert.Equal(t, "1px", cs.Get("margin-top"))
	assert.Equal(t, "2px", cs.Get("margin-right"))
	assert.Equal(t, "5px", cs.Get("margin-left"), "inline longhand overrides sheet shorthand")
	assert.Contains(t, cs.Properties(), "margin-bottom")
}

func TestShorthandExpansion(t *testing.T) {
	node := parseHTMLAndFind(t, `<div id="t" style="padding: 1px 2px 3px; background: url(x.png) #fff no-repeat"></div>`, "t")
	cs := NewEngine(nil).Compute(node)
	assert.Equal(t, "1px", cs.Get("padding-top"))
	assert.Equal(t, "2px", cs.Get("padding-right"))
	assert.Equal(t, "3px", cs.Get("padding-bottom"))
	assert.Equal(t, "2px", cs.Get("padding-left"))
	assert.Equal(t, "#fff", cs.Get("background-color"))
}

func TestComputeNonElement(t *testing.T) {
	doc := parseDoc(t, "")
	cs := NewEngine(nil).Compute(doc)
	assert.Empty(t, cs.Properties())
	assert.Equal(t, "black", cs.Get("color"))
}
