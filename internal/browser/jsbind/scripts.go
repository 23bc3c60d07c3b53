// internal/browser/jsbind/scripts.go
package jsbind

import (
	"context"
	"fmt"
	"strings"

	"github.com/dop251/goja"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/alertbench/api/schemas"
)

// PendingScript is a parser-inserted script the session has to run next.
type PendingScript struct {
	Node *html.Node
	// Name identifies the script in error reports.
	Name string
	// Src is the resolved URL of an external script; empty for inline code.
	Src  string
	Code string
}

// External reports whether the script body has to be fetched.
func (p PendingScript) External() bool { return hasAttr(p.Node, "src") }

var scriptTypes = map[string]bool{
	"":                         true,
	"text/javascript":          true,
	"text/ecmascript":          true,
	"text/jscript":             true,
	"text/livescript":          true,
	"text/x-javascript":        true,
	"text/x-ecmascript":        true,
	"application/javascript":   true,
	"application/ecmascript":   true,
	"application/x-javascript": true,
	"application/x-ecmascript": true,
}

// isJavaScript reports whether a script element holds classic script.
func isJavaScript(n *html.Node) bool {
	if t, ok := getAttr(n, "type"); ok {
		return scriptTypes[strings.ToLower(strings.TrimSpace(t))]
	}
	if lang, ok := getAttr(n, "language"); ok {
		lang = strings.ToLower(strings.TrimSpace(lang))
		return lang == "" || strings.HasPrefix(lang, "javascript") || lang == "jscript" ||
			lang == "ecmascript" || lang == "livescript"
	}
	return true
}

// collectScripts lists the script elements of n's subtree, n included, in
// tree order.
func collectScripts(n *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if isElement(n, "script") {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

// NextPendingScript marks the first script in document order that has not
// started yet and returns it. Scripts of other languages are skipped.
func (b *DOMBridge) NextPendingScript() (PendingScript, bool) {
	if b.doc == nil {
		return PendingScript{}, false
	}
	for _, s := range collectScripts(b.doc) {
		if b.started[s] {
			continue
		}
		b.started[s] = true
		if !isJavaScript(s) {
			b.logger.Debug("Skipping script of unsupported type", zap.String("type", attrOr(s, "type", "")))
			continue
		}
		return b.pendingScript(s), true
	}
	return PendingScript{}, false
}

func (b *DOMBridge) pendingScript(s *html.Node) PendingScript {
	b.scriptSeq++
	p := PendingScript{Node: s}
	if hasAttr(s, "src") {
		p.Src = b.resolveAttr(s, "src")
		p.Name = p.Src
		return p
	}
	p.Code = textContent(s)
	p.Name = fmt.Sprintf("%s (inline script %d)", stripFragment(b.env.CurrentURL()), b.scriptSeq)
	return p
}

// RunScriptElement evaluates code as the body of script element n.
// document.write output lands after n while it runs. Exceptions are
// reported, never returned. External scripts fire load afterwards.
func (b *DOMBridge) RunScriptElement(n *html.Node, name, code string) {
	prevScript, prevAnchor := b.currentScript, b.writeAnchor
	b.currentScript, b.writeAnchor = n, n
	b.sched.Invoke(name, func() error {
		_, err := b.vm.RunScript(name, code)
		return err
	})
	b.currentScript, b.writeAnchor = prevScript, prevAnchor
	if hasAttr(n, "src") {
		b.dispatch(b.wrap(n), b.newEvent("load", false, false))
	}
}

// ScriptFailed fires error on a script whose source could not be loaded.
func (b *DOMBridge) ScriptFailed(n *html.Node) {
	b.dispatch(b.wrap(n), b.newEvent("error", false, false))
}

// maybeRunInserted prepares a script element that script connected to the
// document. Inline code runs at once; external code is fetched in the
// background and runs when it arrives.
func (b *DOMBridge) maybeRunInserted(n *html.Node) {
	if b.started[n] || !b.isConnected(n) {
		return
	}
	_, external := getAttr(n, "src")
	code := textContent(n)
	if !external && code == "" {
		// Stays unstarted so that later text may still run it.
		return
	}
	b.started[n] = true
	if !isJavaScript(n) {
		return
	}
	if !external {
		b.scriptSeq++
		b.RunScriptElement(n, fmt.Sprintf("%s (dynamic script %d)", stripFragment(b.env.CurrentURL()), b.scriptSeq), code)
		return
	}

	src := b.resolveAttr(n, "src")
	b.sched.Go(src, func() func(vm *goja.Runtime) {
		resp, err := b.env.ExecuteFetch(context.Background(), schemas.FetchRequest{URL: src, Method: "GET"})
		return func(*goja.Runtime) {
			if err != nil || resp.Status >= 400 {
				b.logger.Debug("Dynamic script failed to load", zap.String("src", src), zap.Error(err))
				b.ScriptFailed(n)
				return
			}
			b.RunScriptElement(n, src, string(resp.Body))
		}
	})
}
