package cdp

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/alertbench/api/schemas"
	"github.com/xkilldash9x/alertbench/internal/config"
	"github.com/xkilldash9x/alertbench/internal/mockweb"
)

const testURL = "http://localhost:12345/"

func newChromeRunner(t *testing.T) *Runner {
	t.Helper()
	cfg := config.NewDefaultConfig()
	if !Available(cfg.Chrome()) {
		t.Skip("Chrome is not installed; skipping real-browser test.")
	}
	cfg.ChromeCfg.QuietPeriod = 200 * time.Millisecond
	cfg.HarnessCfg.AsyncWait = 5 * time.Second
	return NewRunner(cfg, zaptest.NewLogger(t))
}

func TestExecOptions(t *testing.T) {
	base := len(ExecOptions(config.ChromeConfig{}))

	opts := ExecOptions(config.ChromeConfig{
		Headless: true,
		ExecPath: "/opt/chrome/chrome",
		Args:     []string{"--disable-dev-shm-usage", "--window-size=800,600"},
	})
	assert.Len(t, opts, base+4)
}

func TestAvailable_ExplicitMissingPath(t *testing.T) {
	assert.False(t, Available(config.ChromeConfig{ExecPath: "/nonexistent/chrome-binary"}))
}

func TestHandlerGroup_RefusesWorkAfterStop(t *testing.T) {
	var g handlerGroup
	release := make(chan struct{})
	var ran atomic.Int32

	require.True(t, g.spawn(func() {
		<-release
		ran.Add(1)
	}))

	stopped := make(chan struct{})
	go func() {
		g.stop()
		close(stopped)
	}()

	// stop marks the group before it blocks on the running handler.
	require.Eventually(t, func() bool {
		g.mu.Lock()
		defer g.mu.Unlock()
		return g.stopped
	}, time.Second, time.Millisecond)
	assert.False(t, g.spawn(func() { ran.Add(1) }))

	close(release)
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("stop did not return after the handler finished")
	}
	assert.Equal(t, int32(1), ran.Load())
}

func TestRun_RejectsOtherBrowsers(t *testing.T) {
	r := NewRunner(nil, zaptest.NewLogger(t))
	ie, ok := schemas.LookupBrowser(schemas.IE8)
	require.True(t, ok)

	_, err := r.Run(context.Background(), ie, mockweb.NewMockConnection(), testURL)
	assert.ErrorIs(t, err, ErrUnsupportedBrowser)
}

func TestRun_CapturesDialogsFromMockWeb(t *testing.T) {
	r := newChromeRunner(t)
	conn := mockweb.NewMockConnection()
	conn.SetResponseWithContentType(testURL+"lib.js", "alert('lib');", "text/javascript")
	conn.SetResponseWithContentType(testURL+"data.txt", "payload", "text/plain")
	conn.SetResponseAsHTML(testURL, `<html><head><script src="lib.js"></script></head><body><script>
		alert('inline');
		var xhr = new XMLHttpRequest();
		xhr.onload = function() { alert(xhr.responseText); };
		xhr.open('GET', 'data.txt', true);
		xhr.send();
	</script></body></html>`)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	capture, err := r.Run(ctx, schemas.DefaultBrowser, conn, testURL)
	require.NoError(t, err)

	assert.Equal(t, []string{"lib", "inline", "payload"}, capture.Alerts)
	assert.Equal(t, testURL, capture.FinalURL)
	assert.Zero(t, capture.PendingJobs)
	assert.GreaterOrEqual(t, conn.RequestCount(), 3)
}
