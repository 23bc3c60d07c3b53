// internal/browser/session/session_test.go
package session

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/alertbench/api/schemas"
	"github.com/xkilldash9x/alertbench/internal/browser/jsbind"
	"github.com/xkilldash9x/alertbench/internal/config"
	"github.com/xkilldash9x/alertbench/internal/mockweb"
)

const baseURL = "http://localhost:12345/"

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// newTestSession creates a session over a fresh mock connection.
func newTestSession(t *testing.T, tag schemas.Tag) (*Session, *mockweb.MockConnection) {
	t.Helper()
	browser, ok := schemas.LookupBrowser(tag)
	require.True(t, ok, "unknown browser %s", tag)

	logger := zaptest.NewLogger(t)
	conn := mockweb.NewMockConnection(mockweb.WithLogger(logger))
	s, err := New(context.Background(), config.NewDefaultConfig(), browser, conn, logger)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s, conn
}

func waitIdle(t *testing.T, s *Session) {
	t.Helper()
	require.Zero(t, s.WaitForBackgroundJobs(context.Background(), 5*time.Second), "background jobs did not finish")
}

func TestNew_RequiresTransport(t *testing.T) {
	_, err := New(context.Background(), nil, schemas.DefaultBrowser, nil, nil)
	assert.Error(t, err)
}

func TestLoadHTML_RecordsDialogsInOrder(t *testing.T) {
	s, _ := newTestSession(t, schemas.CHROME)
	markup := `<html><head><script>
		alert('one');
		window.onload = function() { alert('three'); };
	</script></head><body><script>confirm('two');</script></body></html>`

	require.NoError(t, s.LoadHTML(context.Background(), baseURL, markup))

	assert.Equal(t, []string{"one", "two", "three"}, s.Alerts())
	dialogs := s.Dialogs()
	require.Len(t, dialogs, 3)
	assert.Equal(t, schemas.DialogConfirm, dialogs[1].Kind)
	assert.Equal(t, baseURL, s.CurrentURL())
	assert.Equal(t, 1, s.HistoryLength())
}

func TestLoadHTML_ExternalScripts(t *testing.T) {
	s, conn := newTestSession(t, schemas.CHROME)
	conn.SetResponseWithContentType(baseURL+"lib.js", "function f() {} alert('lib');", "text/javascript")
	conn.SetResponseWithStatus(baseURL+"broken.js", "alert('never');", http.StatusNotFound, "Not Found")

	markup := `<html><head>
		<script src="lib.js"></script>
		<script src="missing.js" onerror="alert('missing')"></script>
		<script src="broken.js"></script>
		<script>alert(typeof f);</script>
	</head><body></body></html>`
	require.NoError(t, s.LoadHTML(context.Background(), baseURL, markup))

	assert.Equal(t, []string{"lib", "missing", "function"}, s.Alerts())
	assert.Equal(t, baseURL, conn.LastHeaders().Get("Referer"))
}

func TestLoadHTML_ScriptErrorsDoNotStopTheLoad(t *testing.T) {
	s, _ := newTestSession(t, schemas.CHROME)
	markup := `<script>undefinedFunction();</script><script>alert('after');</script>`

	require.NoError(t, s.LoadHTML(context.Background(), baseURL, markup))

	assert.Equal(t, []string{"after"}, s.Alerts())
	errs := s.ScriptErrors()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "undefinedFunction")
}

func TestNavigate_FollowsRedirects(t *testing.T) {
	s, conn := newTestSession(t, schemas.CHROME)
	conn.SetResponse(baseURL+"old", mockweb.Response{
		Status:  http.StatusSeeOther,
		Headers: map[string]string{"Location": "/new"},
	})
	conn.SetResponseAsHTML(baseURL+"new", `<script>alert(location.href)</script>`)

	require.NoError(t, s.Navigate(context.Background(), baseURL+"old#top"))

	assert.Equal(t, []string{baseURL + "new#top"}, s.Alerts())
	assert.Equal(t, baseURL+"new#top", s.CurrentURL())
	assert.Equal(t, 2, conn.RequestCount())
}

func TestNavigate_UnregisteredURL(t *testing.T) {
	s, _ := newTestSession(t, schemas.CHROME)

	err := s.Navigate(context.Background(), baseURL+"nowhere.html")

	require.Error(t, err)
	assert.True(t, errors.Is(err, mockweb.ErrNoResponse))
	var navErr *jsbind.NavigationError
	require.True(t, errors.As(err, &navErr))
	assert.Equal(t, baseURL+"nowhere.html", navErr.URL)
}

func TestNavigate_ErrorStatusStillLoads(t *testing.T) {
	s, conn := newTestSession(t, schemas.CHROME)
	conn.SetResponseWithStatus(baseURL+"gone.html", `<script>alert('404 page')</script>`, http.StatusNotFound, "Not Found")

	require.NoError(t, s.Navigate(context.Background(), baseURL+"gone.html"))
	assert.Equal(t, []string{"404 page"}, s.Alerts())
}

func TestScriptNavigation_RunsAfterCurrentScript(t *testing.T) {
	s, conn := newTestSession(t, schemas.CHROME)
	conn.SetResponseAsHTML(baseURL+"second.html", `<script>alert('second ' + document.title)</script>`)
	markup := `<script>
		location.href = 'first.html';
		location.href = 'second.html';
		alert('still running');
	</script>`

	require.NoError(t, s.LoadHTML(context.Background(), baseURL, markup))
	waitIdle(t, s)

	assert.Equal(t, []string{"still running", "second "}, s.Alerts())
	assert.Equal(t, baseURL+"second.html", s.CurrentURL())
	assert.Equal(t, 2, s.HistoryLength())
	assert.Equal(t, 0, conn.RequestCountFor(baseURL+"first.html"))
	assert.Equal(t, baseURL, conn.LastHeaders().Get("Referer"))
}

func TestScriptNavigation_LocationReplace(t *testing.T) {
	s, conn := newTestSession(t, schemas.CHROME)
	conn.SetResponseAsHTML(baseURL+"next.html", `<script>alert(history.length)</script>`)

	require.NoError(t, s.LoadHTML(context.Background(), baseURL, `<script>location.replace('next.html')</script>`))
	waitIdle(t, s)

	assert.Equal(t, []string{"1"}, s.Alerts())
	assert.Equal(t, 1, s.HistoryLength())
}

func TestHashChange_DoesNotReload(t *testing.T) {
	s, conn := newTestSession(t, schemas.CHROME)
	markup := `<script>
		window.onhashchange = function() { alert('hash ' + location.hash); };
		location.hash = 'foo';
		alert('set');
	</script>`

	require.NoError(t, s.LoadHTML(context.Background(), baseURL, markup))
	waitIdle(t, s)

	assert.Equal(t, []string{"set", "hash #foo"}, s.Alerts())
	assert.Equal(t, baseURL+"#foo", s.CurrentURL())
	assert.Equal(t, 2, s.HistoryLength())
	assert.Equal(t, 1, conn.RequestCount())
}

func TestHistoryBack_FiresPopState(t *testing.T) {
	s, conn := newTestSession(t, schemas.CHROME)
	markup := `<script>
		window.onpopstate = function() { alert('pop ' + location.pathname); };
		history.pushState({n: 1}, '', 'other.html');
		alert(location.pathname + ' ' + history.length);
		history.back();
	</script>`

	require.NoError(t, s.LoadHTML(context.Background(), baseURL+"index.html", markup))
	waitIdle(t, s)

	assert.Equal(t, []string{"/other.html 2", "pop /index.html"}, s.Alerts())
	assert.Equal(t, baseURL+"index.html", s.CurrentURL())
	assert.Equal(t, 1, conn.RequestCount())
}

func TestHistoryBack_ReloadsPreviousDocument(t *testing.T) {
	s, conn := newTestSession(t, schemas.CHROME)
	conn.SetResponseAsHTML(baseURL+"first.html", `<script>alert('first')</script>`)
	conn.SetResponseAsHTML(baseURL+"second.html", `<script>alert('second'); if (history.length == 2 && !window.done) { window.done = true; history.back(); }</script>`)

	require.NoError(t, s.Navigate(context.Background(), baseURL+"first.html"))
	require.NoError(t, s.Navigate(context.Background(), baseURL+"second.html"))
	waitIdle(t, s)

	assert.Equal(t, []string{"first", "second", "first"}, s.Alerts())
	assert.Equal(t, baseURL+"first.html", s.CurrentURL())
	assert.Equal(t, 2, s.HistoryLength())
}

func TestCookies(t *testing.T) {
	s, conn := newTestSession(t, schemas.CHROME)
	conn.SetResponse(baseURL, mockweb.Response{
		BodyText:    `<script>document.cookie = 'a=1'; alert(document.cookie);</script>`,
		ContentType: "text/html",
		Headers:     map[string]string{"Set-Cookie": "sid=abc; Path=/"},
	})
	conn.SetResponseAsHTML(baseURL+"next.html", `<p>next</p>`)

	require.NoError(t, s.Navigate(context.Background(), baseURL))
	require.NoError(t, s.Navigate(context.Background(), baseURL+"next.html"))

	assert.Equal(t, []string{"sid=abc; a=1"}, s.Alerts())
	assert.Equal(t, "sid=abc; a=1", conn.LastHeaders().Get("Cookie"))
}

func TestXMLHttpRequest_Async(t *testing.T) {
	s, conn := newTestSession(t, schemas.CHROME)
	conn.SetResponseWithContentType(baseURL+"data.txt", "hello", "text/plain")
	markup := `<script>
		var xhr = new XMLHttpRequest();
		xhr.onload = function() { alert(xhr.status + ' ' + xhr.responseText); };
		xhr.open('GET', 'data.txt', true);
		xhr.send();
		alert('sent');
	</script>`

	require.NoError(t, s.LoadHTML(context.Background(), baseURL, markup))
	waitIdle(t, s)

	assert.Equal(t, []string{"sent", "200 hello"}, s.Alerts())
}

func TestFormSubmit_Post(t *testing.T) {
	s, conn := newTestSession(t, schemas.CHROME)
	conn.SetResponseAsHTML(baseURL+"submit", `<script>alert('posted')</script>`)
	markup := `<form method="post" action="submit"><input name="q" value="a b"></form>
		<script>document.forms[0].submit();</script>`

	require.NoError(t, s.LoadHTML(context.Background(), baseURL, markup))
	waitIdle(t, s)

	assert.Equal(t, []string{"posted"}, s.Alerts())
	assert.Equal(t, http.MethodPost, conn.LastMethod())
	assert.Equal(t, "a b", conn.LastParams().Get("q"))
	assert.Equal(t, baseURL+"submit", s.CurrentURL())
}

func TestFormSubmit_FailedNavigationIsAScriptError(t *testing.T) {
	s, conn := newTestSession(t, schemas.CHROME)
	markup := `<form name="f" action="submit.html"><input name="q" value="a b"></form>
		<script>document.f.submit(); alert('submitted');</script>`

	require.NoError(t, s.LoadHTML(context.Background(), baseURL, markup))
	waitIdle(t, s)

	assert.Equal(t, []string{"submitted"}, s.Alerts())
	assert.Equal(t, baseURL, s.CurrentURL())
	assert.Equal(t, 1, conn.RequestCountFor(baseURL+"submit.html?q=a+b"))

	errs := s.ScriptErrors()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Source, baseURL+"submit.html?q=a+b")
	assert.True(t, errors.Is(errs[0], mockweb.ErrNoResponse))
	var navErr *jsbind.NavigationError
	require.True(t, errors.As(errs[0], &navErr))
	assert.Equal(t, baseURL+"submit.html?q=a+b", navErr.URL)
}

func TestCharsetDecoding(t *testing.T) {
	s, conn := newTestSession(t, schemas.CHROME)
	conn.SetResponse(baseURL, mockweb.Response{
		Body:        []byte("<script>alert('caf\xe9')</script>"),
		ContentType: "text/html",
		Charset:     "iso-8859-1",
	})

	require.NoError(t, s.Navigate(context.Background(), baseURL))
	assert.Equal(t, []string{"café"}, s.Alerts())
}

func TestWaitForBackgroundJobs_ReportsPendingInterval(t *testing.T) {
	s, _ := newTestSession(t, schemas.CHROME)
	require.NoError(t, s.LoadHTML(context.Background(), baseURL, `<script>setInterval(function() {}, 10);</script>`))

	assert.Equal(t, 1, s.WaitForBackgroundJobs(context.Background(), 50*time.Millisecond))
}

func TestExecuteAndDocumentHTML(t *testing.T) {
	s, _ := newTestSession(t, schemas.CHROME)
	require.NoError(t, s.LoadHTML(context.Background(), baseURL, `<body><div id="d">x</div></body>`))

	v, err := s.Execute(context.Background(), `document.getElementById('d').textContent = 'changed'; 1 + 1`)
	require.NoError(t, err)
	assert.EqualValues(t, 2, v)

	out, err := s.DocumentHTML(context.Background())
	require.NoError(t, err)
	assert.Contains(t, out, `<div id="d">changed</div>`)
}

func TestClose_IsIdempotent(t *testing.T) {
	s, _ := newTestSession(t, schemas.CHROME)
	require.NoError(t, s.LoadHTML(context.Background(), baseURL, `<script>setTimeout(function() { alert('late'); }, 10000);</script>`))

	s.Close()
	s.Close()

	_, err := s.Execute(context.Background(), "1")
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.Empty(t, s.Alerts())
}

func TestHistoryStack(t *testing.T) {
	var h history
	assert.Nil(t, h.current())

	h.push(&historyEntry{HistoryState: schemas.HistoryState{URL: "a"}})
	h.push(&historyEntry{HistoryState: schemas.HistoryState{URL: "b"}})
	h.push(&historyEntry{HistoryState: schemas.HistoryState{URL: "c"}})
	require.Equal(t, 3, h.len())

	e, i, ok := h.at(-2)
	require.True(t, ok)
	assert.Equal(t, "a", e.URL)
	h.index = i

	h.push(&historyEntry{HistoryState: schemas.HistoryState{URL: "d"}})
	assert.Equal(t, 2, h.len(), "push drops forward entries")
	assert.Equal(t, "d", h.current().URL)

	h.replace(&historyEntry{HistoryState: schemas.HistoryState{URL: "e"}})
	assert.Equal(t, 2, h.len())
	assert.Equal(t, "e", h.current().URL)

	_, _, ok = h.at(1)
	assert.False(t, ok)
}
