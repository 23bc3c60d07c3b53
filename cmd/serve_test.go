package cmd

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/alertbench/internal/expect"
	"github.com/xkilldash9x/alertbench/internal/harness"
	"github.com/xkilldash9x/alertbench/internal/mockweb"
)

func TestRegisterSuite(t *testing.T) {
	base, err := url.Parse("http://localhost:12345/")
	require.NoError(t, err)
	suite := &harness.Suite{Name: "demo", Cases: []harness.Case{
		{Name: "first case", HTML: "<p>1</p>", Expect: expect.Alerts()},
		{Name: "own-url", URL: "http://localhost:12345/own.html", HTML: "<p>2</p>", Expect: expect.Alerts()},
	}}
	conn := mockweb.NewMockConnection()

	pages := registerSuite(conn, suite, base)

	require.Len(t, pages, 2)
	assert.Equal(t, "http://localhost:12345/cases/first%20case.html", pages[0].url)
	assert.Equal(t, "http://localhost:12345/own.html", pages[1].url)

	for _, raw := range []string{pages[0].url, pages[1].url, base.String()} {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		_, ok := conn.Lookup(u)
		assert.True(t, ok, "nothing registered for %s", raw)
	}

	index, _ := conn.Lookup(base)
	assert.Contains(t, index.BodyText, "own.html")
	assert.Contains(t, index.BodyText, "first case")
}

func TestServeCmd_StopsWhenCancelled(t *testing.T) {
	path := writeSuite(t, passingSuite)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := execute(t, ctx, "serve", path, "--listen", "127.0.0.1:0")
	require.NoError(t, err)
	assert.Contains(t, out, "Serving suite passing on 127.0.0.1:")
	assert.Contains(t, out, "mode: http://localhost:12345/cases/mode.html")
}
