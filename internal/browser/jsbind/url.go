// internal/browser/jsbind/url.go
package jsbind

import (
	"errors"
	"net/url"
	"strings"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/xkilldash9x/alertbench/api/schemas"
)

// searchParams is the state of a URLSearchParams object. onChange, when
// set, writes the serialized pairs back into the owning URL.
type searchParams struct {
	pairs    []schemas.NVPair
	onChange func(query string)
}

func parseSearchParams(query string) []schemas.NVPair {
	query = strings.TrimPrefix(query, "?")
	var pairs []schemas.NVPair
	for _, part := range strings.Split(query, "&") {
		if part == "" {
			continue
		}
		name, value, _ := strings.Cut(part, "=")
		pairs = append(pairs, schemas.NVPair{Name: unescapeQuery(name), Value: unescapeQuery(value)})
	}
	return pairs
}

func unescapeQuery(s string) string {
	if u, err := url.QueryUnescape(s); err == nil {
		return u
	}
	return strings.ReplaceAll(s, "+", " ")
}

func (p *searchParams) String() string { return encodeURLEncoded(p.pairs) }

func (p *searchParams) changed() {
	if p.onChange != nil {
		p.onChange(p.String())
	}
}

func (b *DOMBridge) newSearchParamsObject(p *searchParams) *goja.Object {
	obj := b.vm.NewObject()
	b.setClass(obj, "URLSearchParams")
	methods := map[string]func(goja.FunctionCall) goja.Value{
		"get": func(call goja.FunctionCall) goja.Value {
			name := call.Argument(0).String()
			for _, kv := range p.pairs {
				if kv.Name == name {
					return b.str(kv.Value)
				}
			}
			return goja.Null()
		},
		"getAll": func(call goja.FunctionCall) goja.Value {
			name := call.Argument(0).String()
			values := []interface{}{}
			for _, kv := range p.pairs {
				if kv.Name == name {
					values = append(values, kv.Value)
				}
			}
			return b.vm.NewArray(values...)
		},
		"has": func(call goja.FunctionCall) goja.Value {
			name := call.Argument(0).String()
			for _, kv := range p.pairs {
				if kv.Name == name {
					return b.vm.ToValue(true)
				}
			}
			return b.vm.ToValue(false)
		},
		"append": func(call goja.FunctionCall) goja.Value {
			p.pairs = append(p.pairs, schemas.NVPair{Name: call.Argument(0).String(), Value: valueString(call.Argument(1), false)})
			p.changed()
			return goja.Undefined()
		},
		"set": func(call goja.FunctionCall) goja.Value {
			name, value := call.Argument(0).String(), valueString(call.Argument(1), false)
			out := p.pairs[:0]
			found := false
			for _, kv := range p.pairs {
				if kv.Name != name {
					out = append(out, kv)
					continue
				}
				if !found {
					out = append(out, schemas.NVPair{Name: name, Value: value})
					found = true
				}
			}
			if !found {
				out = append(out, schemas.NVPair{Name: name, Value: value})
			}
			p.pairs = out
			p.changed()
			return goja.Undefined()
		},
		"delete": func(call goja.FunctionCall) goja.Value {
			name := call.Argument(0).String()
			out := p.pairs[:0]
			for _, kv := range p.pairs {
				if kv.Name != name {
					out = append(out, kv)
				}
			}
			p.pairs = out
			p.changed()
			return goja.Undefined()
		},
		"forEach": func(call goja.FunctionCall) goja.Value {
			fn, ok := goja.AssertFunction(call.Argument(0))
			if !ok {
				panic(b.vm.NewTypeError("URLSearchParams.forEach callback is not a function"))
			}
			for _, kv := range append([]schemas.NVPair(nil), p.pairs...) {
				if _, err := fn(call.Argument(1), b.str(kv.Value), b.str(kv.Name), obj); err != nil {
					b.rethrow(err)
				}
			}
			return goja.Undefined()
		},
		"toString": func(goja.FunctionCall) goja.Value { return b.str(p.String()) },
	}
	for name, fn := range methods {
		_ = obj.Set(name, fn)
	}
	return obj
}

func (b *DOMBridge) initURL() {
	b.setGlobal("URLSearchParams", func(call goja.ConstructorCall) *goja.Object {
		p := &searchParams{}
		switch init := call.Argument(0).(type) {
		case *goja.Object:
			if _, isFunc := goja.AssertFunction(init); !isFunc {
				for _, k := range init.Keys() {
					p.pairs = append(p.pairs, schemas.NVPair{Name: k, Value: valueString(init.Get(k), false)})
				}
				break
			}
			p.pairs = parseSearchParams(init.String())
		default:
			if !isNullish(init) {
				p.pairs = parseSearchParams(init.String())
			}
		}
		return b.newSearchParamsObject(p)
	})

	b.setGlobal("URL", func(call goja.ConstructorCall) *goja.Object {
		raw := call.Argument(0).String()
		var u *url.URL
		var err error
		if base := call.Argument(1); !goja.IsUndefined(base) {
			var bu *url.URL
			if bu, err = url.Parse(base.String()); err == nil && bu.IsAbs() {
				u, err = bu.Parse(raw)
			} else {
				err = errInvalidBase
			}
		} else {
			u, err = url.Parse(strings.TrimSpace(raw))
		}
		if err != nil || !u.IsAbs() {
			b.logger.Debug("Rejected URL", zap.String("url", raw), zap.Error(err))
			panic(b.vm.NewTypeError("Failed to construct 'URL': Invalid URL"))
		}
		if u.Path == "" && u.Host != "" {
			u.Path = "/"
		}
		return b.newURLObject(u)
	})
}

var errInvalidBase = errors.New("invalid base URL")

func (b *DOMBridge) newURLObject(u *url.URL) *goja.Object {
	obj := b.vm.NewObject()
	b.setClass(obj, "URL")
	params := &searchParams{pairs: parseSearchParams(u.RawQuery)}
	params.onChange = func(query string) { u.RawQuery = query; u.ForceQuery = false }
	paramsObj := b.newSearchParamsObject(params)

	define := func(name string, get func() string, set func(string)) {
		getter := b.vm.ToValue(func(goja.FunctionCall) goja.Value { return b.str(get()) })
		var setter goja.Value
		if set != nil {
			setter = b.vm.ToValue(func(call goja.FunctionCall) goja.Value {
				set(valueString(call.Argument(0), false))
				return goja.Undefined()
			})
		}
		if err := obj.DefineAccessorProperty(name, getter, setter, goja.FLAG_TRUE, goja.FLAG_TRUE); err != nil {
			b.logger.Error("Failed to define URL property", zap.String("property", name), zap.Error(err))
		}
	}
	href := func() string { return u.String() }

	define("href", href, func(v string) {
		parsed, err := url.Parse(v)
		if err != nil || !parsed.IsAbs() {
			panic(b.vm.NewTypeError("Failed to set the 'href' property on 'URL': Invalid URL"))
		}
		*u = *parsed
		params.pairs = parseSearchParams(u.RawQuery)
	})
	define("protocol", func() string { return urlPart(href(), "protocol") }, func(v string) {
		u.Scheme = strings.TrimSuffix(v, ":")
	})
	define("host", func() string { return u.Host }, func(v string) { u.Host = v })
	define("hostname", u.Hostname, func(v string) {
		if port := u.Port(); port != "" {
			u.Host = v + ":" + port
			return
		}
		u.Host = v
	})
	define("port", u.Port, func(v string) {
		if v == "" {
			u.Host = u.Hostname()
			return
		}
		u.Host = u.Hostname() + ":" + v
	})
	define("pathname", func() string { return urlPart(href(), "pathname") }, func(v string) {
		if !strings.HasPrefix(v, "/") {
			v = "/" + v
		}
		u.Path, u.RawPath = v, ""
	})
	define("search", func() string { return searchOf(href()) }, func(v string) {
		u.RawQuery = strings.TrimPrefix(v, "?")
		params.pairs = parseSearchParams(u.RawQuery)
	})
	define("hash", func() string { return hashOf(href()) }, func(v string) {
		u.Fragment, u.RawFragment = "", ""
		if v = strings.TrimPrefix(v, "#"); v != "" {
			u.Fragment = v
			u.RawFragment = encodeFragment(v)
		}
	})
	define("username", func() string { return u.User.Username() }, nil)
	define("password", func() string {
		p, _ := u.User.Password()
		return p
	}, nil)
	define("origin", func() string { return urlPart(href(), "origin") }, nil)

	if err := obj.DefineDataProperty("searchParams", paramsObj, goja.FLAG_FALSE, goja.FLAG_TRUE, goja.FLAG_TRUE); err != nil {
		b.logger.Error("Failed to define URL searchParams", zap.Error(err))
	}
	_ = obj.Set("toString", func(goja.FunctionCall) goja.Value { return b.str(href()) })
	_ = obj.Set("toJSON", func(goja.FunctionCall) goja.Value { return b.str(href()) })
	return obj
}
