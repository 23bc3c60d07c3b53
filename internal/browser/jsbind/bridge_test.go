// internal/browser/jsbind/bridge_test.go
package jsbind

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/alertbench/api/schemas"
	"github.com/xkilldash9x/alertbench/internal/browser/jsexec"
)

const testURL = "http://localhost:12345/"

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// -- Mock BrowserEnvironment --

// MockBrowserEnvironment mocks the navigation and network side of the
// session. URL resolution, cookies, history bookkeeping and dialogs have
// real implementations so scripts can observe them.
type MockBrowserEnvironment struct {
	mock.Mock
	mu         sync.Mutex
	currentURL *url.URL
	cookies    []string
	history    []*schemas.HistoryState
	dialogs    []string
}

func NewMockBrowserEnvironment(initialURL string) *MockBrowserEnvironment {
	u, err := url.Parse(initialURL)
	if err != nil {
		panic("invalid initialURL for mock environment: " + err.Error())
	}
	return &MockBrowserEnvironment{
		currentURL: u,
		history:    []*schemas.HistoryState{{URL: initialURL}},
	}
}

func (m *MockBrowserEnvironment) JSNavigate(req schemas.NavigationRequest) {
	m.Called(req)
}

func (m *MockBrowserEnvironment) CurrentURL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentURL.String()
}

func (m *MockBrowserEnvironment) ResolveURL(ref string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := m.currentURL.Parse(ref)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func (m *MockBrowserEnvironment) ExecuteFetch(ctx context.Context, req schemas.FetchRequest) (*schemas.FetchResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.FetchResponse), args.Error(1)
}

func (m *MockBrowserEnvironment) AddCookieFromString(cookieStr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pair, _, _ := strings.Cut(cookieStr, ";")
	m.cookies = append(m.cookies, strings.TrimSpace(pair))
	return nil
}

func (m *MockBrowserEnvironment) GetCookieString() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return strings.Join(m.cookies, "; "), nil
}

func (m *MockBrowserEnvironment) PushHistory(state *schemas.HistoryState) error {
	args := m.Called(state)
	if args.Error(0) == nil {
		m.mu.Lock()
		m.history = append(m.history, state)
		m.currentURL, _ = url.Parse(state.URL)
		m.mu.Unlock()
	}
	return args.Error(0)
}

func (m *MockBrowserEnvironment) ReplaceHistory(state *schemas.HistoryState) error {
	args := m.Called(state)
	if args.Error(0) == nil {
		m.mu.Lock()
		m.history[len(m.history)-1] = state
		m.currentURL, _ = url.Parse(state.URL)
		m.mu.Unlock()
	}
	return args.Error(0)
}

func (m *MockBrowserEnvironment) GetHistoryLength() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.history)
}

func (m *MockBrowserEnvironment) GetCurrentHistoryState() interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.history[len(m.history)-1].State
}

func (m *MockBrowserEnvironment) TraverseHistory(delta int) {
	m.Called(delta)
}

func (m *MockBrowserEnvironment) RecordDialog(_ schemas.DialogKind, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dialogs = append(m.dialogs, message)
}

func (m *MockBrowserEnvironment) Dialogs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.dialogs...)
}

// -- Test Setup Utilities --

type TestEnvironment struct {
	Bridge  *DOMBridge
	Runtime *jsexec.Runtime
	MockEnv *MockBrowserEnvironment
	T       *testing.T
}

// SetupTest creates the runtime and bridge for browser without loading a
// document. Navigations are accepted and recorded but never performed.
func SetupTest(t *testing.T, browser schemas.Tag) *TestEnvironment {
	t.Helper()
	version, ok := schemas.LookupBrowser(browser)
	require.True(t, ok, "unknown browser %s", browser)

	logger := zaptest.NewLogger(t)
	rt, err := jsexec.NewRuntime(logger, jsexec.WithTimeout(2*time.Second))
	require.NoError(t, err)
	t.Cleanup(rt.Close)

	env := NewMockBrowserEnvironment(testURL)
	env.On("JSNavigate", mock.Anything).Return().Maybe()

	te := &TestEnvironment{Runtime: rt, MockEnv: env, T: t}
	require.NoError(t, rt.Run(context.Background(), func(vm *goja.Runtime) error {
		te.Bridge = NewDOMBridge(vm, logger, version, env, rt)
		return nil
	}))
	return te
}

// LoadPage parses markup and drives it the way a session does: scripts in
// document order, DOMContentLoaded, load, then background jobs.
func (te *TestEnvironment) LoadPage(markup string) {
	te.T.Helper()
	doc, err := html.Parse(strings.NewReader(markup))
	require.NoError(te.T, err)

	require.NoError(te.T, te.Runtime.Run(context.Background(), func(*goja.Runtime) error {
		te.Bridge.UpdateDOM(doc)
		for {
			script, ok := te.Bridge.NextPendingScript()
			if !ok {
				break
			}
			if script.External() {
				te.Bridge.ScriptFailed(script.Node)
				continue
			}
			te.Bridge.RunScriptElement(script.Node, script.Name, script.Code)
		}
		te.Bridge.FireDOMContentLoaded()
		te.Bridge.FireLoad()
		return nil
	}))
	te.WaitIdle()
}

// WaitIdle waits for timers and requests started by the page.
func (te *TestEnvironment) WaitIdle() {
	te.T.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(te.T, te.Runtime.Tracker().WaitIdle(ctx))
}

// MustRunJS evaluates script after load and returns its result as a string.
func (te *TestEnvironment) MustRunJS(script string) string {
	te.T.Helper()
	v, err := te.Runtime.Execute(context.Background(), "test", script)
	require.NoError(te.T, err)
	var out string
	require.NoError(te.T, te.Runtime.Run(context.Background(), func(*goja.Runtime) error {
		out = v.String()
		return nil
	}))
	return out
}

func (te *TestEnvironment) Alerts() []string { return te.MockEnv.Dialogs() }

// -- Test Cases --

func TestDOMManipulation_AppendAndQuery(t *testing.T) {
	te := SetupTest(t, schemas.CHROME)
	te.LoadPage(`<html><body><div id="container"></div><script>
		var container = document.getElementById('container');
		var p = document.createElement('p');
		p.textContent = 'Hello';
		p.id = 'newP';
		container.appendChild(p);
		alert(document.querySelector('#container > #newP').textContent);
		alert(container.childNodes.length);
	</script></body></html>`)

	assert.Equal(t, []string{"Hello", "1"}, te.Alerts())
	assert.Equal(t, "P", te.MustRunJS(`document.getElementById('newP').tagName`))
}

func TestDOMManipulation_InsertAndRemove(t *testing.T) {
	te := SetupTest(t, schemas.CHROME)
	te.LoadPage(`<html><body><ul><li id="item2">Two</li></ul><div id="parent"><span id="child">x</span></div><script>
		var list = document.querySelector('ul');
		var one = document.createElement('li');
		one.appendChild(document.createTextNode('One'));
		list.insertBefore(one, document.getElementById('item2'));
		alert(list.textContent);
		var parent = document.getElementById('parent');
		parent.removeChild(document.getElementById('child'));
		alert(document.getElementById('child') === null);
	</script></body></html>`)

	assert.Equal(t, []string{"OneTwo", "true"}, te.Alerts())
}

func TestAlertArguments(t *testing.T) {
	te := SetupTest(t, schemas.CHROME)
	te.LoadPage(`<script>
		alert();
		alert(null);
		alert(undefined);
		alert(1.5);
		alert([1, 2]);
		alert(confirm('sure?'));
		alert(prompt('name?') === '');
	</script>`)

	assert.Equal(t, []string{"", "null", "undefined", "1.5", "1,2", "sure?", "true", "name?", "true"}, te.Alerts())
}

func TestDocumentWrite_RunsWrittenScriptsInOrder(t *testing.T) {
	te := SetupTest(t, schemas.CHROME)
	te.LoadPage(`<html><body><script>
		alert(1);
		document.write('<script>alert(2)<\/script>');
	</script><script>alert(3)</script></body></html>`)

	assert.Equal(t, []string{"1", "2", "3"}, te.Alerts())
}

func TestDocumentWrite_MarkupIsParsedInPlace(t *testing.T) {
	te := SetupTest(t, schemas.CHROME)
	te.LoadPage(`<html><body><script>document.write('<div id="written">hi</div>')</script><script>
		alert(document.getElementById('written').textContent);
		alert(document.getElementById('written').previousSibling.tagName);
	</script></body></html>`)

	assert.Equal(t, []string{"hi", "SCRIPT"}, te.Alerts())
}

func TestScriptErrorDoesNotStopLaterScripts(t *testing.T) {
	te := SetupTest(t, schemas.CHROME)
	te.LoadPage(`<script>alert('a'); undefinedFunction();</script><script>alert('b')</script>`)

	assert.Equal(t, []string{"a", "b"}, te.Alerts())
	errs := te.Runtime.Errors()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "undefinedFunction")
}

func TestNamedGlobals(t *testing.T) {
	te := SetupTest(t, schemas.CHROME)
	te.LoadPage(`<div id="foo">x</div><script>
		alert(foo.id);
		alert(window.foo === document.getElementById('foo'));
		foo = 3;
		alert(foo);
	</script>`)

	assert.Equal(t, []string{"foo", "true", "3"}, te.Alerts())
}

func TestEventDispatchOrder(t *testing.T) {
	te := SetupTest(t, schemas.CHROME)
	te.LoadPage(`<div id="outer"><span id="inner">x</span></div><script>
		var outer = document.getElementById('outer');
		var inner = document.getElementById('inner');
		outer.addEventListener('click', function() { alert('capture') }, true);
		outer.addEventListener('click', function() { alert('bubble') }, false);
		inner.addEventListener('click', function(e) { alert('target ' + e.eventPhase) });
		inner.click();
	</script>`)

	assert.Equal(t, []string{"capture", "target 2", "bubble"}, te.Alerts())
}

func TestInlineHandlerAndLoadEvents(t *testing.T) {
	te := SetupTest(t, schemas.CHROME)
	te.LoadPage(`<body onload="alert('load')"><button id="b" onclick="alert(this.id)">b</button><script>
		document.addEventListener('DOMContentLoaded', function() { alert('ready ' + document.readyState) });
		document.getElementById('b').click();
	</script></body>`)

	assert.Equal(t, []string{"b", "ready interactive", "load"}, te.Alerts())
}

func TestAttachEvent_IE8(t *testing.T) {
	te := SetupTest(t, schemas.IE8)
	te.LoadPage(`<div id="d">x</div><script>
		alert(typeof document.addEventListener);
		var d = document.getElementById('d');
		d.attachEvent('onclick', function() { alert('first ' + window.event.type) });
		d.attachEvent('onclick', function() { alert('second') });
		d.click();
	</script>`)

	assert.Equal(t, []string{"undefined", "first click", "second"}, te.Alerts())
}

func TestReturnFalseCancelsNavigation(t *testing.T) {
	te := SetupTest(t, schemas.CHROME)
	te.LoadPage(`<a id="l" href="/next" onclick="alert('clicked'); return false">go</a><script>
		document.getElementById('l').click();
	</script>`)

	assert.Equal(t, []string{"clicked"}, te.Alerts())
	te.MockEnv.AssertNotCalled(t, "JSNavigate", mock.Anything)
}

func TestLinkClickNavigates(t *testing.T) {
	te := SetupTest(t, schemas.CHROME)
	te.LoadPage(`<a id="l" href="next?x=1">go</a><script>document.getElementById('l').click()</script>`)

	te.MockEnv.AssertCalled(t, "JSNavigate", schemas.NavigationRequest{URL: testURL + "next?x=1", Method: "GET"})
}

func TestLocationHashIsEncoded(t *testing.T) {
	te := SetupTest(t, schemas.CHROME)
	te.LoadPage(`<script>location.hash = '<a>foobar</a>';</script>`)

	te.MockEnv.AssertCalled(t, "JSNavigate", schemas.NavigationRequest{
		URL:    testURL + "#%3Ca%3Efoobar%3C/a%3E",
		Method: "GET",
	})
}

func TestLocationGetters(t *testing.T) {
	te := SetupTest(t, schemas.CHROME)
	te.LoadPage(`<script>
		alert(location.protocol);
		alert(location.host);
		alert(location.pathname);
		alert(location.origin);
	</script>`)

	assert.Equal(t, []string{"http:", "localhost:12345", "/", "http://localhost:12345"}, te.Alerts())
}

func TestHistoryPushState(t *testing.T) {
	te := SetupTest(t, schemas.CHROME)
	te.MockEnv.On("PushHistory", mock.MatchedBy(func(s *schemas.HistoryState) bool {
		return s.URL == testURL+"next"
	})).Return(nil).Once()

	te.LoadPage(`<script>
		history.pushState({page: 2}, 'two', '/next');
		alert(history.length);
		alert(history.state.page);
		alert(location.href);
		try {
			history.pushState(null, '', 'http://evil.test/');
		} catch (e) {
			alert(e.name);
		}
	</script>`)

	assert.Equal(t, []string{"2", "2", testURL + "next", "SecurityError"}, te.Alerts())
	te.MockEnv.AssertExpectations(t)
}

func TestCookies(t *testing.T) {
	te := SetupTest(t, schemas.CHROME)
	te.LoadPage(`<script>
		document.cookie = 'a=1; path=/';
		document.cookie = 'b=2';
		alert(document.cookie);
	</script>`)

	assert.Equal(t, []string{"a=1; b=2"}, te.Alerts())
}

func TestStyleCSSText(t *testing.T) {
	page := `<div id="d"></div><script>
		var s = document.getElementById('d').style;
		s.color = 'red';
		s.marginTop = '1px';
		alert(s.cssText);
		alert(s.marginTop);
	</script>`

	tests := []struct {
		browser schemas.Tag
		want    []string
	}{
		{schemas.CHROME, []string{"color: red; margin-top: 1px;", "1px"}},
		{schemas.IE8, []string{"COLOR: red; MARGIN-TOP: 1px", "1px"}},
	}
	for _, tt := range tests {
		t.Run(tt.browser.String(), func(t *testing.T) {
			te := SetupTest(t, tt.browser)
			te.LoadPage(page)
			assert.Equal(t, tt.want, te.Alerts())
		})
	}
}

func TestGetComputedStyle(t *testing.T) {
	te := SetupTest(t, schemas.CHROME)
	te.LoadPage(`<style>#t { color: red }</style><div id="t">x</div><span id="s">y</span><script>
		alert(getComputedStyle(document.getElementById('t')).color);
		alert(getComputedStyle(document.getElementById('t')).display);
		alert(window.getComputedStyle(document.getElementById('s')).display);
	</script>`)

	assert.Equal(t, []string{"rgb(255, 0, 0)", "block", "inline"}, te.Alerts())
}

func TestSelectOptions(t *testing.T) {
	te := SetupTest(t, schemas.CHROME)
	te.LoadPage(`<form name="f"><select id="s" name="s"><option value="a">A</option><option value="b" selected>B</option></select></form><script>
		var s = document.getElementById('s');
		alert(s.value);
		alert(s.selectedIndex);
		s.options.add(new Option('C', 'c'));
		alert(s.options.length);
		s.selectedIndex = 2;
		alert(s.value);
		alert(document.f.s === s);
	</script>`)

	assert.Equal(t, []string{"b", "1", "3", "c", "true"}, te.Alerts())
}

func TestFormSubmitGet(t *testing.T) {
	te := SetupTest(t, schemas.CHROME)
	te.LoadPage(`<form action="/search" method="get" onsubmit="alert('submit')">
		<input name="q" value="a b">
		<input type="checkbox" name="c" value="on1">
		<input type="submit" id="go" name="go" value="Go">
	</form><script>document.getElementById('go').click()</script>`)

	assert.Equal(t, []string{"submit"}, te.Alerts())
	te.MockEnv.AssertCalled(t, "JSNavigate", schemas.NavigationRequest{
		URL:    testURL + "search?q=a+b&go=Go",
		Method: "GET",
	})
}

func TestXHRReadyStateSequence(t *testing.T) {
	page := `<script>
		var xhr = new XMLHttpRequest();
		var states = [];
		xhr.onreadystatechange = function() { states.push(xhr.readyState) };
		xhr.onload = function() { alert(states.join(',')); alert(xhr.status + ' ' + xhr.responseText) };
		xhr.open('GET', 'data.txt', true);
		xhr.send();
	</script>`

	tests := []struct {
		browser schemas.Tag
		states  string
	}{
		{schemas.CHROME, "1,2,3,4"},
		{schemas.IE11, "1,1,2,3,4"},
	}
	for _, tt := range tests {
		t.Run(tt.browser.String(), func(t *testing.T) {
			te := SetupTest(t, tt.browser)
			te.MockEnv.On("ExecuteFetch", mock.Anything, mock.MatchedBy(func(req schemas.FetchRequest) bool {
				return req.URL == testURL+"data.txt" && req.Method == "GET"
			})).Return(&schemas.FetchResponse{
				URL:        testURL + "data.txt",
				Status:     200,
				StatusText: "OK",
				Headers:    []schemas.NVPair{{Name: "Content-Type", Value: "text/plain"}},
				Body:       []byte("payload"),
			}, nil).Once()

			te.LoadPage(page)
			assert.Equal(t, []string{tt.states, "200 payload"}, te.Alerts())
			te.MockEnv.AssertExpectations(t)
		})
	}
}

func TestXHRResponseXML(t *testing.T) {
	te := SetupTest(t, schemas.CHROME)
	te.MockEnv.On("ExecuteFetch", mock.Anything, mock.Anything).Return(&schemas.FetchResponse{
		URL:     testURL + "data.xml",
		Status:  200,
		Headers: []schemas.NVPair{{Name: "Content-Type", Value: "text/xml"}},
		Body:    []byte(`<root><item name="one"/><item name="two"/></root>`),
	}, nil).Once()

	te.LoadPage(`<script>
		var xhr = new XMLHttpRequest();
		xhr.open('GET', 'data.xml', false);
		xhr.send();
		var items = xhr.responseXML.getElementsByTagName('item');
		alert(items.length);
		alert(items[1].getAttribute('name'));
		alert(xhr.getResponseHeader('content-type'));
	</script>`)

	assert.Equal(t, []string{"2", "two", "text/xml"}, te.Alerts())
}

func TestDOMParser(t *testing.T) {
	te := SetupTest(t, schemas.CHROME)
	te.LoadPage(`<script>
		var p = new DOMParser();
		var doc = p.parseFromString('<a><b>text</b></a>', 'text/xml');
		alert(doc.documentElement.nodeName);
		alert(doc.documentElement.firstChild.textContent);
		alert(new XMLSerializer().serializeToString(doc.documentElement));
		var bad = p.parseFromString('<a><b></a>', 'text/xml');
		alert(bad.documentElement.nodeName);
	</script>`)

	assert.Equal(t, []string{"a", "text", "<a><b>text</b></a>", "parsererror"}, te.Alerts())
}

func TestURLSearchParams(t *testing.T) {
	te := SetupTest(t, schemas.CHROME)
	te.LoadPage(`<script>
		var u = new URL('/path?a=1&b=2', 'http://example.com');
		alert(u.href);
		alert(u.searchParams.get('b'));
		u.searchParams.append('c', 'x y');
		alert(u.search);
		try { new URL('relative'); } catch (e) { alert(e.name) }
	</script>`)

	assert.Equal(t, []string{"http://example.com/path?a=1&b=2", "2", "?a=1&b=2&c=x+y", "TypeError"}, te.Alerts())
}

func TestNavigatorPerBrowser(t *testing.T) {
	tests := []struct {
		browser schemas.Tag
		appName string
	}{
		{schemas.CHROME, "Netscape"},
		{schemas.IE8, "Microsoft Internet Explorer"},
	}
	for _, tt := range tests {
		t.Run(tt.browser.String(), func(t *testing.T) {
			te := SetupTest(t, tt.browser)
			te.LoadPage(`<script>alert(navigator.appName)</script>`)
			assert.Equal(t, []string{tt.appName}, te.Alerts())
		})
	}
}

func TestTimersRunAfterLoad(t *testing.T) {
	te := SetupTest(t, schemas.CHROME)
	te.LoadPage(`<script>
		setTimeout(function() { alert('later') }, 10);
		window.onload = function() { alert('load') };
		alert('now');
	</script>`)

	assert.Equal(t, []string{"now", "load", "later"}, te.Alerts())
}

func TestWindow_ReplaceableGlobals(t *testing.T) {
	te := SetupTest(t, schemas.CHROME)
	te.LoadPage(`<script>
		alert(self === window);
		var parent = 5;
		alert(parent);
		var self = 'me';
		alert(self);
		frames = [1, 2];
		alert(frames.length);
		var top = 'x';
		alert(top === window);
		alert(window.window === window);
	</script>`)

	assert.Equal(t, []string{"true", "5", "me", "2", "true", "true"}, te.Alerts())
}

const classNamesPage = `<html><body><form><select id="s"><option id="o">1</option></select></form><script>
	alert(window);
	alert(document);
	alert(document.body);
	alert(document.getElementById('o'));
	alert(document.getElementById('s'));
	alert(document.forms[0]);
	alert(document.createTextNode('t'));
	alert(Object.prototype.toString.call(document.createElement('foo')));
	alert(new XMLHttpRequest());
</script></body></html>`

func TestHostObjectClassNames(t *testing.T) {
	modern := []string{
		"[object Window]", "[object HTMLDocument]", "[object HTMLBodyElement]",
		"[object HTMLOptionElement]", "[object HTMLSelectElement]", "[object HTMLFormElement]",
		"[object Text]", "[object HTMLUnknownElement]", "[object XMLHttpRequest]",
	}
	tests := map[schemas.Tag][]string{
		schemas.CHROME: modern,
		schemas.FF60:   modern,
		schemas.IE11:   modern,
		schemas.IE8: {
			"[object Window]", "[object]", "[object]", "[object]", "[object]", "[object]",
			"[object]", "[object Object]", "[object]",
		},
	}
	for tag, want := range tests {
		t.Run(string(tag), func(t *testing.T) {
			te := SetupTest(t, tag)
			te.LoadPage(classNamesPage)
			assert.Equal(t, want, te.Alerts())
		})
	}
}

func TestHostObjectClassNames_NonNodes(t *testing.T) {
	te := SetupTest(t, schemas.CHROME)
	te.LoadPage(`<script>
		var d = new DOMParser().parseFromString('<r><c>t</c></r>', 'text/xml');
		alert(d);
		alert(d.documentElement);
		alert(d.documentElement.firstChild.firstChild);
		alert(Object.prototype.toString.call(new URL('http://a.test/?x=1')));
		alert(new URL('http://a.test/?x=1').searchParams);
		alert(Object.prototype.toString.call(navigator));
		alert(Object.prototype.toString.call(history));
	</script>`)

	assert.Equal(t, []string{
		"[object XMLDocument]", "[object Element]", "[object Text]",
		"[object URL]", "x=1", "[object Navigator]", "[object History]",
	}, te.Alerts())
}
