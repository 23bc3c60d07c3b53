// internal/browser/jsbind/collections.go
package jsbind

import (
	"sort"
	"strconv"

	"github.com/dop251/goja"
	"golang.org/x/net/html"
)

type collectionKey struct {
	node *html.Node
	kind string
}

// collection backs NodeList and HTMLCollection objects. Live collections
// re-run items on every access.
type collection struct {
	b     *DOMBridge
	items func() []*html.Node
	// named collections also resolve element ids and names as properties.
	named   bool
	methods map[string]goja.Value
	expando map[string]goja.Value

	// Optional hooks for HTMLOptionsCollection.
	setIndex  func(i int, v goja.Value)
	setLength func(n int)
}

// liveCollection returns the cached collection for key, creating it with items.
func (b *DOMBridge) liveCollection(key collectionKey, items func() []*html.Node, named bool) *goja.Object {
	if obj, ok := b.collections[key]; ok {
		return obj
	}
	obj := b.newCollection(&collection{b: b, items: items, named: named})
	b.collections[key] = obj
	return obj
}

// staticCollection snapshots nodes, as querySelectorAll does.
func (b *DOMBridge) staticCollection(nodes []*html.Node) *goja.Object {
	return b.newCollection(&collection{b: b, items: func() []*html.Node { return nodes }})
}

func (b *DOMBridge) newCollection(c *collection) *goja.Object {
	c.expando = make(map[string]goja.Value)
	base := map[string]goja.Value{
		"item": b.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			items := c.items()
			i := int(call.Argument(0).ToInteger())
			if i < 0 || i >= len(items) {
				return goja.Null()
			}
			return b.wrap(items[i])
		}),
		"namedItem": b.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			if v := c.lookupName(call.Argument(0).String()); v != nil {
				return v
			}
			return goja.Null()
		}),
		"forEach": b.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			fn, ok := goja.AssertFunction(call.Argument(0))
			if !ok {
				panic(b.vm.NewTypeError("forEach callback is not a function"))
			}
			for i, n := range c.items() {
				if _, err := fn(call.Argument(1), b.wrap(n), b.vm.ToValue(i)); err != nil {
					b.rethrow(err)
				}
			}
			return goja.Undefined()
		}),
	}
	if c.methods == nil {
		c.methods = base
	} else {
		for k, v := range base {
			if _, ok := c.methods[k]; !ok {
				c.methods[k] = v
			}
		}
	}
	return b.vm.NewDynamicObject(c)
}

func (c *collection) lookupName(name string) goja.Value {
	if name == "" {
		return nil
	}
	var matches []*html.Node
	for _, n := range c.items() {
		if n.Type != html.ElementNode {
			continue
		}
		if attrOr(n, "id", "") == name || attrOr(n, "name", "") == name {
			matches = append(matches, n)
		}
	}
	switch len(matches) {
	case 0:
		return nil
	case 1:
		return c.b.wrap(matches[0])
	}
	return c.b.staticCollection(matches)
}

func (c *collection) Get(key string) goja.Value {
	if key == "length" {
		return c.b.vm.ToValue(len(c.items()))
	}
	if i, err := strconv.Atoi(key); err == nil {
		items := c.items()
		if i >= 0 && i < len(items) {
			return c.b.wrap(items[i])
		}
		return nil
	}
	if v, ok := c.expando[key]; ok {
		return v
	}
	if v, ok := c.methods[key]; ok {
		return v
	}
	if c.named {
		return c.lookupName(key)
	}
	return nil
}

func (c *collection) Set(key string, val goja.Value) bool {
	if key == "length" {
		if c.setLength != nil {
			c.setLength(int(val.ToInteger()))
		}
		return true
	}
	if i, err := strconv.Atoi(key); err == nil {
		if c.setIndex != nil {
			c.setIndex(i, val)
		}
		return true
	}
	c.expando[key] = val
	return true
}

func (c *collection) Has(key string) bool {
	if key == "length" {
		return true
	}
	if i, err := strconv.Atoi(key); err == nil {
		return i >= 0 && i < len(c.items())
	}
	if _, ok := c.expando[key]; ok {
		return true
	}
	if _, ok := c.methods[key]; ok {
		return true
	}
	return c.named && c.lookupName(key) != nil
}

func (c *collection) Delete(key string) bool {
	delete(c.expando, key)
	return true
}

func (c *collection) Keys() []string {
	n := len(c.items())
	keys := make([]string, 0, n+len(c.expando))
	for i := 0; i < n; i++ {
		keys = append(keys, strconv.Itoa(i))
	}
	extra := make([]string, 0, len(c.expando))
	for k := range c.expando {
		extra = append(extra, k)
	}
	sort.Strings(extra)
	return append(keys, extra...)
}
