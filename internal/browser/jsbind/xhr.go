// internal/browser/jsbind/xhr.go
package jsbind

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/xkilldash9x/alertbench/api/schemas"
)

// XMLHttpRequest ready states.
const (
	xhrUnsent = iota
	xhrOpened
	xhrHeadersReceived
	xhrLoading
	xhrDone
)

var xhrHandlers = []string{"readystatechange", "loadstart", "progress", "load", "error", "abort", "timeout", "loadend"}

var forbiddenMethods = map[string]bool{"CONNECT": true, "TRACE": true, "TRACK": true}

// xhr is the state of one XMLHttpRequest. Requests run through the
// session's fetcher on a background goroutine; generation ties a
// completion to the open() call that started it, so a completion that
// arrives after abort() or a second open() is dropped.
type xhr struct {
	b   *DOMBridge
	obj *goja.Object

	method  string
	url     string
	async   bool
	headers []schemas.NVPair

	readyState  int
	sent        bool
	generation  int
	status      int
	statusText  string
	respHeaders []schemas.NVPair
	body        []byte
	responseURL string
	mimeType    string
	xmlDoc      goja.Value
	xmlParsed   bool

	methods map[string]goja.Value
	expando map[string]goja.Value
}

func (b *DOMBridge) initXHR() {
	b.setGlobal("XMLHttpRequest", func(goja.ConstructorCall) *goja.Object {
		return b.newXHR()
	})
}

func (b *DOMBridge) initActiveX() {
	b.setGlobal("ActiveXObject", func(call goja.ConstructorCall) *goja.Object {
		progID := strings.ToLower(call.Argument(0).String())
		switch {
		case strings.HasSuffix(progID, ".xmlhttp") || strings.Contains(progID, ".xmlhttp."):
			return b.newXHR()
		case progID == "microsoft.xmldom" || strings.HasPrefix(progID, "msxml2.domdocument"):
			return b.newActiveXDocument()
		}
		panic(b.newDOMException("Error", "Automation server can't create object"))
	})
}

func (b *DOMBridge) newXHR() *goja.Object {
	x := &xhr{b: b, expando: make(map[string]goja.Value)}
	x.initMethods()
	x.obj = b.vm.NewDynamicObject(x)
	b.setClass(x.obj, "XMLHttpRequest")
	b.state(x.obj)
	return x.obj
}

func (x *xhr) initMethods() {
	b := x.b
	fn := func(f func(call goja.FunctionCall) goja.Value) goja.Value { return b.vm.ToValue(f) }
	x.methods = map[string]goja.Value{
		"open": fn(func(call goja.FunctionCall) goja.Value {
			async := true
			if len(call.Arguments) > 2 && !goja.IsUndefined(call.Argument(2)) {
				async = call.Argument(2).ToBoolean()
			}
			x.open(call.Argument(0).String(), call.Argument(1).String(), async)
			return goja.Undefined()
		}),
		"setRequestHeader": fn(func(call goja.FunctionCall) goja.Value {
			if x.readyState != xhrOpened || x.sent {
				b.throwDOMException("InvalidStateError", "Failed to execute 'setRequestHeader' on 'XMLHttpRequest': The object's state must be OPENED.")
			}
			x.headers = append(x.headers, schemas.NVPair{Name: call.Argument(0).String(), Value: valueString(call.Argument(1), false)})
			return goja.Undefined()
		}),
		"send": fn(func(call goja.FunctionCall) goja.Value {
			var body []byte
			if v := call.Argument(0); !isNullish(v) && x.method != "GET" && x.method != "HEAD" {
				body = []byte(v.String())
			}
			x.send(body)
			return goja.Undefined()
		}),
		"abort": fn(func(goja.FunctionCall) goja.Value {
			x.abort()
			return goja.Undefined()
		}),
		"getResponseHeader": fn(func(call goja.FunctionCall) goja.Value {
			if x.readyState < xhrHeadersReceived {
				return goja.Null()
			}
			name := call.Argument(0).String()
			var values []string
			for _, h := range x.respHeaders {
				if strings.EqualFold(h.Name, name) {
					values = append(values, h.Value)
				}
			}
			if len(values) == 0 {
				return goja.Null()
			}
			return b.str(strings.Join(values, ", "))
		}),
		"getAllResponseHeaders": fn(func(goja.FunctionCall) goja.Value {
			if x.readyState < xhrHeadersReceived {
				return b.str("")
			}
			return b.str(x.allResponseHeaders())
		}),
		"overrideMimeType": fn(func(call goja.FunctionCall) goja.Value {
			x.mimeType = call.Argument(0).String()
			return goja.Undefined()
		}),
	}
	for name, f := range b.eventFuncs {
		x.methods[name] = f
	}
}

func (x *xhr) open(method, rawURL string, async bool) {
	b := x.b
	upper := strings.ToUpper(method)
	if forbiddenMethods[upper] {
		b.throwDOMException("SecurityError", fmt.Sprintf("'%s' HTTP method is unsupported.", method))
	}
	switch upper {
	case "DELETE", "GET", "HEAD", "OPTIONS", "POST", "PUT":
		method = upper
	}
	resolved, err := b.env.ResolveURL(rawURL)
	if err != nil {
		b.throwDOMException("SyntaxError", fmt.Sprintf("Failed to execute 'open' on 'XMLHttpRequest': Invalid URL '%s'.", rawURL))
	}

	x.generation++
	x.method, x.url, x.async = method, stripFragment(resolved), async
	x.headers = nil
	x.sent = false
	x.resetResponse()
	x.setState(xhrOpened)
}

func (x *xhr) resetResponse() {
	x.status, x.statusText = 0, ""
	x.respHeaders, x.body, x.responseURL = nil, nil, ""
	x.xmlDoc, x.xmlParsed = nil, false
}

// setState moves to state and fires readystatechange. Re-entering OPENED
// fires again, as open() always does.
func (x *xhr) setState(state int) {
	if x.readyState == state && state != xhrOpened {
		return
	}
	x.readyState = state
	x.fire("readystatechange")
}

func (x *xhr) fire(typ string) {
	x.b.dispatch(x.obj, x.b.newEvent(typ, false, false))
}

func (x *xhr) request(body []byte) schemas.FetchRequest {
	req := schemas.FetchRequest{URL: x.url, Method: x.method, Headers: append([]schemas.NVPair(nil), x.headers...), Body: body}
	if body != nil {
		hasType := false
		for _, h := range req.Headers {
			if strings.EqualFold(h.Name, "Content-Type") {
				hasType = true
				break
			}
		}
		if !hasType {
			req.Headers = append(req.Headers, schemas.NVPair{Name: "Content-Type", Value: "text/plain;charset=UTF-8"})
		}
	}
	return req
}

func (x *xhr) send(body []byte) {
	b := x.b
	if x.readyState != xhrOpened || x.sent {
		b.throwDOMException("InvalidStateError", "Failed to execute 'send' on 'XMLHttpRequest': The object's state must be OPENED.")
	}
	x.sent = true
	req := x.request(body)

	if !x.async {
		resp, err := b.env.ExecuteFetch(context.Background(), req)
		if err != nil {
			x.fail()
			b.throwDOMException("NetworkError", fmt.Sprintf("Failed to execute 'send' on 'XMLHttpRequest': Failed to load '%s'.", x.url))
		}
		x.receive(resp)
		x.readyState = xhrDone
		x.fire("readystatechange")
		x.fire("load")
		x.fire("loadend")
		return
	}

	if b.browser.Features.ReadyStateOpenedTwice {
		x.setState(xhrOpened)
	}
	x.fire("loadstart")
	gen := x.generation
	b.sched.Go("XMLHttpRequest "+x.url, func() func(vm *goja.Runtime) {
		resp, err := b.env.ExecuteFetch(context.Background(), req)
		return func(*goja.Runtime) {
			if gen != x.generation {
				return
			}
			if err != nil {
				b.logger.Debug("XMLHttpRequest failed", zap.String("url", req.URL), zap.Error(err))
				x.fail()
				x.fire("readystatechange")
				x.fire("error")
				x.fire("loadend")
				return
			}
			x.complete(resp, gen)
		}
	})
}

// complete walks an async request through HEADERS_RECEIVED, LOADING and
// DONE. A handler that aborts or reopens stops the walk.
func (x *xhr) complete(resp *schemas.FetchResponse, gen int) {
	x.receive(resp)
	for _, state := range []int{xhrHeadersReceived, xhrLoading, xhrDone} {
		x.setState(state)
		if gen != x.generation {
			return
		}
	}
	x.fire("load")
	x.fire("loadend")
}

func (x *xhr) receive(resp *schemas.FetchResponse) {
	x.status = resp.Status
	x.statusText = resp.StatusText
	if x.statusText == "" {
		x.statusText = http.StatusText(resp.Status)
	}
	x.respHeaders = resp.Headers
	x.body = resp.Body
	x.responseURL = resp.URL
}

func (x *xhr) fail() {
	x.resetResponse()
	x.readyState = xhrDone
}

func (x *xhr) abort() {
	x.generation++
	if (x.readyState == xhrOpened && x.sent) || x.readyState == xhrHeadersReceived || x.readyState == xhrLoading {
		x.resetResponse()
		x.sent = false
		x.readyState = xhrDone
		x.fire("readystatechange")
		x.fire("abort")
		x.fire("loadend")
	}
	if x.readyState == xhrDone {
		x.readyState = xhrUnsent
	}
}

func (x *xhr) allResponseHeaders() string {
	lines := make([]string, 0, len(x.respHeaders))
	for _, h := range x.respHeaders {
		name := h.Name
		if !x.b.browser.IsIE() {
			name = strings.ToLower(name)
		}
		lines = append(lines, name+": "+h.Value+"\r\n")
	}
	if !x.b.browser.IsIE() {
		sort.Strings(lines)
	}
	return strings.Join(lines, "")
}

func (x *xhr) contentType() string {
	if x.mimeType != "" {
		return x.mimeType
	}
	for _, h := range x.respHeaders {
		if strings.EqualFold(h.Name, "Content-Type") {
			return h.Value
		}
	}
	return ""
}

func (x *xhr) responseXML() goja.Value {
	if x.readyState != xhrDone || len(x.body) == 0 || !isXMLMimeType(x.contentType()) {
		return goja.Null()
	}
	if !x.xmlParsed {
		x.xmlParsed = true
		x.xmlDoc, _ = x.b.xmlDocument(string(x.body))
	}
	return x.xmlDoc
}

func (x *xhr) Get(key string) goja.Value {
	b := x.b
	switch key {
	case "readyState":
		return b.vm.ToValue(x.readyState)
	case "status":
		return b.vm.ToValue(x.status)
	case "statusText":
		return b.str(x.statusText)
	case "responseText", "response":
		if x.readyState < xhrLoading {
			return b.str("")
		}
		return b.str(string(x.body))
	case "responseXML":
		return x.responseXML()
	case "responseURL":
		return b.str(x.responseURL)
	case "UNSENT":
		return b.vm.ToValue(xhrUnsent)
	case "OPENED":
		return b.vm.ToValue(xhrOpened)
	case "HEADERS_RECEIVED":
		return b.vm.ToValue(xhrHeadersReceived)
	case "LOADING":
		return b.vm.ToValue(xhrLoading)
	case "DONE":
		return b.vm.ToValue(xhrDone)
	}
	if typ, ok := strings.CutPrefix(key, "on"); ok && x.isHandler(typ) {
		return b.getHandler(x.obj, typ)
	}
	if m, ok := x.methods[key]; ok {
		return m
	}
	if v, ok := x.expando[key]; ok {
		return v
	}
	return nil
}

func (x *xhr) isHandler(typ string) bool {
	for _, h := range xhrHandlers {
		if h == typ {
			return true
		}
	}
	return false
}

func (x *xhr) Set(key string, val goja.Value) bool {
	if typ, ok := strings.CutPrefix(key, "on"); ok && x.isHandler(typ) {
		x.b.setHandlerProperty(x.obj, typ, val)
		return true
	}
	switch key {
	case "readyState", "status", "statusText", "responseText", "response", "responseXML", "responseURL":
		return true
	}
	x.expando[key] = val
	return true
}

func (x *xhr) Has(key string) bool { return x.Get(key) != nil }

func (x *xhr) Delete(key string) bool {
	delete(x.expando, key)
	return true
}

func (x *xhr) Keys() []string {
	keys := []string{"readyState", "status", "statusText", "responseText", "responseXML"}
	for k := range x.expando {
		keys = append(keys, k)
	}
	return keys
}
