package mockweb

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func get(t *testing.T, c *MockConnection, rawURL string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	require.NoError(t, err)
	resp, err := c.RoundTrip(req)
	require.NoError(t, err)
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestMockConnection_ExactMatch(t *testing.T) {
	c := NewMockConnection(WithLogger(zaptest.NewLogger(t)))
	c.SetResponseAsHTML("http://localhost:12345/", "<html></html>")

	resp := get(t, c, "http://localhost:12345/#section")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "200 OK", resp.Status)
	assert.Equal(t, "text/html", resp.Header.Get("Content-Type"))
	assert.Equal(t, "<html></html>", readBody(t, resp))

	// An empty path is the same resource as "/".
	resp = get(t, c, "http://LOCALHOST:12345")
	assert.Equal(t, "<html></html>", readBody(t, resp))
}

func TestMockConnection_StatusAndHeaders(t *testing.T) {
	c := NewMockConnection()
	c.SetResponseWithStatus("http://localhost/missing", "gone", http.StatusNotFound, "Not Here")
	c.SetResponse("http://localhost/data.xml", Response{
		BodyText:    "<a/>",
		ContentType: "text/xml",
		Charset:     "ISO-8859-1",
		Headers:     map[string]string{"X-Custom": "yes"},
	})

	resp := get(t, c, "http://localhost/missing")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "404 Not Here", resp.Status)
	assert.Equal(t, "gone", readBody(t, resp))

	resp = get(t, c, "http://localhost/data.xml")
	assert.Equal(t, "text/xml; charset=ISO-8859-1", resp.Header.Get("Content-Type"))
	assert.Equal(t, "yes", resp.Header.Get("X-Custom"))
	assert.EqualValues(t, 4, resp.ContentLength)
}

func TestMockConnection_QueryAndDefault(t *testing.T) {
	c := NewMockConnection()
	c.SetResponseWithContentType("http://localhost/a.js?v=1", "alert(1)", "text/javascript")
	c.SetResponseIgnoringQuery("http://localhost/jsonp", Response{BodyText: "cb()"})

	assert.Equal(t, "alert(1)", readBody(t, get(t, c, "http://localhost/a.js?v=1")))
	assert.Equal(t, "cb()", readBody(t, get(t, c, "http://localhost/jsonp?callback=cb&_=123")))

	req, _ := http.NewRequest(http.MethodGet, "http://localhost/a.js?v=2", nil)
	_, err := c.RoundTrip(req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoResponse))

	c.SetDefaultResponseHTML("<p>default</p>")
	assert.Equal(t, "<p>default</p>", readBody(t, get(t, c, "http://localhost/a.js?v=2")))
	// Failed lookups are recorded too.
	assert.Equal(t, 4, c.RequestCount())
	assert.Equal(t, 2, c.RequestCountFor("http://localhost/a.js?v=2"))
}

func TestMockConnection_Recording(t *testing.T) {
	c := NewMockConnection()
	c.SetDefaultResponse(Response{BodyText: "ok", ContentType: "text/plain"})
	assert.Equal(t, "", c.LastMethod())
	assert.Nil(t, c.LastURL())

	req, err := http.NewRequest(http.MethodPost, "http://localhost/submit?x=1", strings.NewReader("a=1&b=two"))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", "http://localhost/")
	_, err = c.RoundTrip(req)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, c.LastMethod())
	assert.Equal(t, "http://localhost/", c.LastHeaders().Get("Referer"))
	assert.Equal(t, "/submit", c.LastURL().Path)
	assert.Equal(t, url.Values{"x": {"1"}, "a": {"1"}, "b": {"two"}}, c.LastParams())

	last, ok := c.LastRequest()
	require.True(t, ok)
	assert.Equal(t, "a=1&b=two", string(last.Body))
	assert.Equal(t, 1, c.RequestCountFor("http://localhost/submit?x=1"))
	assert.Equal(t, 0, c.RequestCountFor("http://localhost/submit"))

	c.Reset()
	assert.Zero(t, c.RequestCount())
}

func TestMockConnection_HeadHasNoBody(t *testing.T) {
	c := NewMockConnection()
	c.SetResponseAsHTML("http://localhost/", "<html></html>")
	req, _ := http.NewRequest(http.MethodHead, "http://localhost/", nil)
	resp, err := c.RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, "", readBody(t, resp))
}

func TestMockConnection_DefaultsAndClone(t *testing.T) {
	c := NewMockConnection(WithDefaults(Defaults{ContentType: "text/plain", Charset: "utf-8"}))
	c.SetResponse("http://localhost/", Response{BodyText: "x"})
	resp := get(t, c, "http://localhost/")
	assert.Equal(t, "text/plain; charset=utf-8", resp.Header.Get("Content-Type"))

	clone := c.Clone()
	clone.SetResponseAsHTML("http://localhost/only-in-clone", "y")
	assert.Zero(t, clone.RequestCount(), "recorded requests are not cloned")
	_, ok := c.Lookup(&url.URL{Scheme: "http", Host: "localhost", Path: "/only-in-clone"})
	assert.False(t, ok)
}

func TestMockConnection_Concurrent(t *testing.T) {
	c := NewMockConnection()
	c.SetDefaultResponseHTML("ok")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, _ := http.NewRequest(http.MethodGet, "http://localhost/xhr", nil)
			resp, err := c.RoundTrip(req)
			if err == nil {
				resp.Body.Close()
			}
			c.SetResponseAsHTML("http://localhost/other", "x")
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, c.RequestCountFor("http://localhost/xhr"))
}
