package mockweb

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestServer_ProxyRequests(t *testing.T) {
	conn := NewMockConnection()
	conn.SetResponseAsHTML("http://localhost:12345/", "<html>mock</html>")

	srv := NewServer(conn, "localhost:12345", false, zaptest.NewLogger(t))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	proxyURL, err := url.Parse(ts.URL)
	require.NoError(t, err)
	client := &http.Client{Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)}}

	resp, err := client.Get("http://localhost:12345/")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<html>mock</html>", string(body))

	miss, err := client.Get("http://localhost:12345/nope")
	require.NoError(t, err)
	defer miss.Body.Close()
	assert.Equal(t, http.StatusNotFound, miss.StatusCode)
	assert.Equal(t, 2, conn.RequestCount())
}

func TestServer_DirectRequests(t *testing.T) {
	conn := NewMockConnection()
	conn.SetResponseAsHTML("http://localhost:12345/page.html", "direct")

	srv := NewServer(conn, "localhost:12345", false, zaptest.NewLogger(t))
	addr, err := srv.Start("127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = srv.Shutdown(context.Background()) }()

	_, err = srv.Start("127.0.0.1:0")
	assert.Error(t, err, "a second Start is rejected")

	resp, err := http.Get("http://" + addr + "/page.html")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "direct", string(body))
	assert.Equal(t, 1, conn.RequestCountFor("http://localhost:12345/page.html"))
}
