// Package cdp runs pages in a real headless Chrome. Every request the browser
// makes is answered from a mockweb.MockConnection through the Fetch domain,
// so a case sees the same web it sees in the in-process session.
package cdp

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/alertbench/api/schemas"
	"github.com/xkilldash9x/alertbench/internal/config"
	"github.com/xkilldash9x/alertbench/internal/mockweb"
)

// ErrUnsupportedBrowser is returned when asked to emulate a browser other
// than Chrome.
var ErrUnsupportedBrowser = errors.New("cdp runner only supports CHROME")

const idleCheckFrequency = 50 * time.Millisecond

var chromeNames = []string{
	"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "chrome", "headless-shell",
}

// Available reports whether a Chrome binary can be found for cfg.
func Available(cfg config.ChromeConfig) bool {
	if cfg.ExecPath != "" {
		_, err := exec.LookPath(cfg.ExecPath)
		return err == nil
	}
	for _, name := range chromeNames {
		if _, err := exec.LookPath(name); err == nil {
			return true
		}
	}
	return false
}

// ExecOptions builds the allocator options for cfg.
func ExecOptions(cfg config.ChromeConfig) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("enable-automation", true),
	}
	if cfg.Headless {
		opts = append(opts, chromedp.Headless)
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	for _, arg := range cfg.Args {
		key, value, found := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if found {
			opts = append(opts, chromedp.Flag(key, value))
		} else {
			opts = append(opts, chromedp.Flag(key, true))
		}
	}
	return opts
}

// Runner loads pages in a fresh Chrome process per call.
type Runner struct {
	cfg    config.Interface
	logger *zap.Logger
}

// NewRunner creates a Chrome runner.
func NewRunner(cfg config.Interface, logger *zap.Logger) *Runner {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{cfg: cfg, logger: logger.Named("cdp")}
}

// Name identifies the runner in reports.
func (r *Runner) Name() string { return config.RunnerChrome }

// recorder collects what the page did while it was loaded.
type recorder struct {
	mu           sync.Mutex
	alerts       []string
	errs         []string
	inflight     int
	lastActivity time.Time
}

func (rec *recorder) touch(delta int) {
	rec.mu.Lock()
	rec.inflight += delta
	rec.lastActivity = time.Now()
	rec.mu.Unlock()
}

func (rec *recorder) quietFor(d time.Duration) bool {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.inflight == 0 && time.Since(rec.lastActivity) >= d
}

// handlerGroup runs event handlers in their own goroutines. Events can
// still arrive while the browser shuts down, so spawn refuses new work once
// stop has begun.
type handlerGroup struct {
	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

func (g *handlerGroup) spawn(fn func()) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopped {
		return false
	}
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		fn()
	}()
	return true
}

// stop waits for the running handlers.
func (g *handlerGroup) stop() {
	g.mu.Lock()
	g.stopped = true
	g.mu.Unlock()
	g.wg.Wait()
}

// Run navigates Chrome to pageURL and records every dialog until the page
// has been quiet for the configured period or the async deadline expires.
func (r *Runner) Run(ctx context.Context, browser schemas.BrowserVersion, conn *mockweb.MockConnection, pageURL string) (*schemas.Capture, error) {
	if browser.Family != schemas.CHROME {
		return nil, fmt.Errorf("%w: got %s", ErrUnsupportedBrowser, browser.Tag)
	}
	start := time.Now()
	logger := r.logger.With(zap.String("url", pageURL))

	chromeCfg := r.cfg.Chrome()
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, ExecOptions(chromeCfg)...)
	defer allocCancel()
	browserCtx, browserCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(logger.Sugar().Debugf))
	var handlers handlerGroup
	defer func() {
		browserCancel()
		handlers.stop()
	}()

	// Starts the browser and creates the tab.
	if err := chromedp.Run(browserCtx); err != nil {
		return nil, fmt.Errorf("failed to start Chrome: %w", err)
	}

	rec := &recorder{lastActivity: time.Now()}
	chromedp.ListenTarget(browserCtx, func(ev interface{}) {
		switch ev := ev.(type) {
		case *fetch.EventRequestPaused:
			rec.touch(1)
			if !handlers.spawn(func() {
				defer rec.touch(-1)
				r.fulfill(browserCtx, conn, ev)
			}) {
				rec.touch(-1)
			}
		case *page.EventJavascriptDialogOpening:
			rec.mu.Lock()
			rec.alerts = append(rec.alerts, ev.Message)
			rec.lastActivity = time.Now()
			rec.mu.Unlock()
			handlers.spawn(func() {
				if err := chromedp.Run(browserCtx, page.HandleJavaScriptDialog(true)); err != nil {
					logger.Debug("Failed to accept dialog.", zap.Error(err))
				}
			})
		case *runtime.EventExceptionThrown:
			rec.mu.Lock()
			rec.errs = append(rec.errs, ev.ExceptionDetails.Error())
			rec.mu.Unlock()
		}
	})

	err := chromedp.Run(browserCtx,
		runtime.Enable(),
		fetch.Enable().WithPatterns([]*fetch.RequestPattern{{URLPattern: "*"}}),
		chromedp.Navigate(pageURL),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s in Chrome: %w", pageURL, err)
	}

	pending := 0
	if err := waitQuiet(browserCtx, rec, chromeCfg.QuietPeriod, r.cfg.Harness().AsyncWait); err != nil {
		logger.Debug("Page did not settle before the deadline.", zap.Error(err))
		rec.mu.Lock()
		pending = rec.inflight
		rec.mu.Unlock()
	}

	var finalURL string
	if err := chromedp.Run(browserCtx, chromedp.Location(&finalURL)); err != nil {
		logger.Debug("Failed to read final location.", zap.Error(err))
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	return &schemas.Capture{
		Alerts:      append([]string{}, rec.alerts...),
		FinalURL:    finalURL,
		PendingJobs: pending,
		ScriptErrs:  append([]string(nil), rec.errs...),
		Duration:    time.Since(start),
	}, nil
}

// waitQuiet returns once nothing has happened for quiet, or an error when
// deadline passes first.
func waitQuiet(ctx context.Context, rec *recorder, quiet, deadline time.Duration) error {
	if deadline <= 0 {
		deadline = quiet
	}
	timeout := time.NewTimer(deadline)
	defer timeout.Stop()
	ticker := time.NewTicker(idleCheckFrequency)
	defer ticker.Stop()
	for {
		if rec.quietFor(quiet) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout.C:
			return fmt.Errorf("page still active after %s", deadline)
		case <-ticker.C:
		}
	}
}

// fulfill answers one intercepted request from conn.
func (r *Runner) fulfill(ctx context.Context, conn *mockweb.MockConnection, ev *fetch.EventRequestPaused) {
	resp, err := conn.RoundTrip(toHTTPRequest(ctx, ev.Request))
	if err != nil {
		r.logger.Debug("No mock response, failing request.", zap.String("url", ev.Request.URL), zap.Error(err))
		if err := chromedp.Run(ctx, fetch.FailRequest(ev.RequestID, network.ErrorReasonConnectionRefused)); err != nil {
			r.logger.Debug("Failed to fail request.", zap.Error(err))
		}
		return
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		r.logger.Debug("Failed to read mock body.", zap.Error(err))
	}

	names := make([]string, 0, len(resp.Header))
	for k := range resp.Header {
		names = append(names, k)
	}
	sort.Strings(names)
	var headers []*fetch.HeaderEntry
	for _, k := range names {
		for _, v := range resp.Header[k] {
			headers = append(headers, &fetch.HeaderEntry{Name: k, Value: v})
		}
	}

	phrase := strings.TrimSpace(strings.TrimPrefix(resp.Status, fmt.Sprint(resp.StatusCode)))
	action := fetch.FulfillRequest(ev.RequestID, int64(resp.StatusCode)).
		WithResponseHeaders(headers).
		WithBody(base64.StdEncoding.EncodeToString(body))
	if phrase != "" {
		action = action.WithResponsePhrase(phrase)
	}
	if err := chromedp.Run(ctx, action); err != nil {
		r.logger.Debug("Failed to fulfill request.", zap.String("url", ev.Request.URL), zap.Error(err))
	}
}

func toHTTPRequest(ctx context.Context, req *network.Request) *http.Request {
	var body []byte
	for _, entry := range req.PostDataEntries {
		if b, err := base64.StdEncoding.DecodeString(entry.Bytes); err == nil {
			body = append(body, b...)
		}
	}
	var rd io.Reader
	if len(body) > 0 {
		rd = strings.NewReader(string(body))
	}
	hr, err := http.NewRequestWithContext(ctx, req.Method, req.URL, rd)
	if err != nil {
		hr, _ = http.NewRequestWithContext(ctx, http.MethodGet, "about:blank", nil)
	}
	for k, v := range req.Headers {
		hr.Header.Set(k, fmt.Sprint(v))
	}
	return hr
}
