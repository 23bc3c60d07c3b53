// internal/browser/jsbind/location.go
package jsbind

import (
	"net/url"
	"strings"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/xkilldash9x/alertbench/api/schemas"
)

// hashOf returns the fragment of raw with its '#', or "" when empty.
func hashOf(raw string) string {
	i := strings.IndexByte(raw, '#')
	if i < 0 || i == len(raw)-1 {
		return ""
	}
	return raw[i:]
}

// searchOf returns the query of raw with its '?', or "" when empty.
func searchOf(raw string) string {
	raw = stripFragment(raw)
	i := strings.IndexByte(raw, '?')
	if i < 0 || i == len(raw)-1 {
		return ""
	}
	return raw[i:]
}

func stripFragment(raw string) string {
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		return raw[:i]
	}
	return raw
}

func stripQuery(raw string) string {
	raw = stripFragment(raw)
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		return raw[:i]
	}
	return raw
}

// urlPart returns one of the Location/URL component getters for raw.
func urlPart(raw, part string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	switch part {
	case "protocol":
		if u.Scheme == "" {
			return ""
		}
		return u.Scheme + ":"
	case "host":
		return u.Host
	case "hostname":
		return u.Hostname()
	case "port":
		return u.Port()
	case "pathname":
		if u.Opaque != "" {
			return u.Opaque
		}
		if p := u.EscapedPath(); p != "" {
			return p
		}
		if u.Host != "" {
			return "/"
		}
		return ""
	case "origin":
		if u.Host == "" {
			return "null"
		}
		return u.Scheme + "://" + u.Host
	}
	return ""
}

// encodeFragment percent-encodes the characters of the fragment
// percent-encode set: C0 controls, space, '"', '<', '>', '`' and any
// non-ASCII byte.
func encodeFragment(s string) string {
	const hex = "0123456789ABCDEF"
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 0x20 || c >= 0x7f || c == ' ' || c == '"' || c == '<' || c == '>' || c == '`' {
			sb.WriteByte('%')
			sb.WriteByte(hex[c>>4])
			sb.WriteByte(hex[c&0x0f])
			continue
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

// navigate asks the session to load target. javascript: URLs run instead.
func (b *DOMBridge) navigate(target string, replace bool) {
	if isJavaScriptURL(target) {
		b.runJavaScriptURL(target)
		return
	}
	b.env.JSNavigate(schemas.NavigationRequest{URL: target, Method: "GET", Replace: replace})
}

func (b *DOMBridge) navigateRef(ref string, replace bool) {
	ref = strings.TrimSpace(ref)
	if isJavaScriptURL(ref) {
		b.runJavaScriptURL(ref)
		return
	}
	resolved, err := b.env.ResolveURL(ref)
	if err != nil {
		b.logger.Debug("Ignoring unresolvable location", zap.String("url", ref), zap.Error(err))
		return
	}
	b.navigate(resolved, replace)
}

func (b *DOMBridge) initLocation() {
	loc := b.vm.NewObject()
	current := func() string { return b.env.CurrentURL() }
	define := func(name string, get func() string, set func(string)) {
		getter := b.vm.ToValue(func(goja.FunctionCall) goja.Value { return b.str(get()) })
		var setter goja.Value
		if set != nil {
			setter = b.vm.ToValue(func(call goja.FunctionCall) goja.Value {
				set(valueString(call.Argument(0), false))
				return goja.Undefined()
			})
		}
		if err := loc.DefineAccessorProperty(name, getter, setter, goja.FLAG_TRUE, goja.FLAG_TRUE); err != nil {
			b.logger.Error("Failed to define location property", zap.String("property", name), zap.Error(err))
		}
	}
	// withPart rebuilds the current URL with one component replaced.
	withPart := func(apply func(u *url.URL, v string)) func(string) {
		return func(v string) {
			u, err := url.Parse(current())
			if err != nil {
				return
			}
			apply(u, v)
			b.navigate(u.String(), false)
		}
	}

	define("href", current, func(v string) { b.navigateRef(v, false) })
	define("protocol", func() string { return urlPart(current(), "protocol") }, withPart(func(u *url.URL, v string) {
		u.Scheme = strings.TrimSuffix(v, ":")
	}))
	define("host", func() string { return urlPart(current(), "host") }, withPart(func(u *url.URL, v string) { u.Host = v }))
	define("hostname", func() string { return urlPart(current(), "hostname") }, withPart(func(u *url.URL, v string) {
		if port := u.Port(); port != "" {
			u.Host = v + ":" + port
			return
		}
		u.Host = v
	}))
	define("port", func() string { return urlPart(current(), "port") }, withPart(func(u *url.URL, v string) {
		if v == "" {
			u.Host = u.Hostname()
			return
		}
		u.Host = u.Hostname() + ":" + v
	}))
	define("pathname", func() string { return urlPart(current(), "pathname") }, withPart(func(u *url.URL, v string) {
		if !strings.HasPrefix(v, "/") {
			v = "/" + v
		}
		u.Path = v
		u.RawPath = ""
	}))
	define("search", func() string { return searchOf(current()) }, func(v string) {
		v = strings.TrimPrefix(v, "?")
		target := stripQuery(current())
		if v != "" {
			target += "?" + v
		}
		b.navigate(target, false)
	})
	define("hash", func() string { return hashOf(current()) }, func(v string) {
		v = strings.TrimPrefix(v, "#")
		b.navigate(stripFragment(current())+"#"+encodeFragment(v), false)
	})
	define("origin", func() string { return urlPart(current(), "origin") }, nil)

	methods := map[string]func(goja.FunctionCall) goja.Value{
		"assign": func(call goja.FunctionCall) goja.Value {
			b.navigateRef(call.Argument(0).String(), false)
			return goja.Undefined()
		},
		"replace": func(call goja.FunctionCall) goja.Value {
			b.navigateRef(call.Argument(0).String(), true)
			return goja.Undefined()
		},
		"reload": func(goja.FunctionCall) goja.Value {
			b.navigate(stripFragment(current()), true)
			return goja.Undefined()
		},
		"toString": func(goja.FunctionCall) goja.Value { return b.str(current()) },
		"valueOf":  func(goja.FunctionCall) goja.Value { return loc },
	}
	for name, fn := range methods {
		_ = loc.Set(name, fn)
	}
	b.location = loc

	b.defineGlobalAccessor("location", func() goja.Value { return b.location }, func(v goja.Value) {
		b.navigateRef(valueString(v, false), false)
	})
}
