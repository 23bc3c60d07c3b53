// internal/browser/network/httpclient_test.go
package network

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"io"
	"net/http"
	"net/url"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/alertbench/internal/mockweb"
)

func gzipBytes(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func brotliBytes(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := brotli.NewWriter(&buf)
	_, err := w.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func zlibBytes(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, err := w.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func rawDeflateBytes(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	require.NoError(t, err)
	_, err = w.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestClientDecodesEncodedMockBodies(t *testing.T) {
	const page = "<html><body><script>alert('compressed')</script></body></html>"
	conn := mockweb.NewMockConnection()
	conn.SetResponse("http://localhost/gz", mockweb.Response{Body: gzipBytes(t, page), Headers: map[string]string{"Content-Encoding": "gzip"}})
	conn.SetResponse("http://localhost/br", mockweb.Response{Body: brotliBytes(t, page), Headers: map[string]string{"Content-Encoding": "br"}})
	conn.SetResponse("http://localhost/zlib", mockweb.Response{Body: zlibBytes(t, page), Headers: map[string]string{"Content-Encoding": "deflate"}})
	conn.SetResponse("http://localhost/raw", mockweb.Response{Body: rawDeflateBytes(t, page), Headers: map[string]string{"Content-Encoding": "deflate"}})
	conn.SetResponse("http://localhost/layered", mockweb.Response{
		Body:    brotliBytes(t, string(gzipBytes(t, page))),
		Headers: map[string]string{"Content-Encoding": "gzip, br"},
	})

	client := NewClient(NewBrowserClientConfig(conn))
	for _, path := range []string{"/gz", "/br", "/zlib", "/raw", "/layered"} {
		t.Run(path, func(t *testing.T) {
			resp, err := client.Get("http://localhost" + path)
			require.NoError(t, err)
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Equal(t, page, string(body))
			assert.Empty(t, resp.Header.Get("Content-Encoding"))
			assert.True(t, resp.Uncompressed)
		})
	}
	assert.Equal(t, AcceptEncoding, conn.LastHeaders().Get("Accept-Encoding"))
}

func TestUnsupportedEncoding(t *testing.T) {
	conn := mockweb.NewMockConnection()
	conn.SetResponse("http://localhost/", mockweb.Response{BodyText: "x", Headers: map[string]string{"Content-Encoding": "zstd"}})
	client := NewClient(NewBrowserClientConfig(conn))
	_, err := client.Get("http://localhost/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported Content-Encoding")
}

func TestClientDoesNotFollowRedirects(t *testing.T) {
	conn := mockweb.NewMockConnection()
	conn.SetResponse("http://localhost/old", mockweb.Response{Status: http.StatusFound, Headers: map[string]string{"Location": "/new"}})
	client := NewClient(NewBrowserClientConfig(conn))

	resp, err := client.Get("http://localhost/old")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, 1, conn.RequestCount())
}

func TestClientCookiesAndDefaultHeaders(t *testing.T) {
	conn := mockweb.NewMockConnection()
	conn.SetResponse("http://localhost/set", mockweb.Response{Headers: map[string]string{"Set-Cookie": "session=abc; Path=/"}})
	conn.SetDefaultResponseHTML("ok")

	cfg := NewBrowserClientConfig(conn)
	cfg.DefaultHeaders = map[string]string{"User-Agent": "alertbench-test", "Accept-Language": "en-US"}
	client := NewClient(cfg)

	resp, err := client.Get("http://localhost/set")
	require.NoError(t, err)
	resp.Body.Close()

	req, _ := http.NewRequest(http.MethodGet, "http://localhost/next", nil)
	req.Header.Set("Accept-Language", "de")
	resp, err = client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	h := conn.LastHeaders()
	assert.Equal(t, "alertbench-test", h.Get("User-Agent"))
	assert.Equal(t, "de", h.Get("Accept-Language"), "explicit headers win")
	assert.Contains(t, h.Get("Cookie"), "session=abc")

	u, _ := url.Parse("http://localhost/")
	require.Len(t, cfg.CookieJar.Cookies(u), 1)
}
