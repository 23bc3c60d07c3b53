// Package harness loads test pages into a browser, captures their alerts and
// judges them against browser-conditional expectations.
package harness

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/alertbench/api/schemas"
	"github.com/xkilldash9x/alertbench/internal/browser/session"
	"github.com/xkilldash9x/alertbench/internal/config"
	"github.com/xkilldash9x/alertbench/internal/expect"
	"github.com/xkilldash9x/alertbench/internal/mockweb"
	"github.com/xkilldash9x/alertbench/internal/observability"
)

// DefaultURL is where LoadPage serves its markup.
const DefaultURL = "http://localhost:12345/"

// ErrUnexpectedPass reports a case marked not-yet-implemented for a browser
// that produced the expected alerts anyway.
var ErrUnexpectedPass = errors.New("case marked not yet implemented passed")

// Harness runs pages in one browser version over one mock connection.
type Harness struct {
	Config  config.Interface
	Logger  *zap.Logger
	Browser schemas.BrowserVersion
	Conn    *mockweb.MockConnection

	tag    schemas.Tag
	runner Runner
}

// Option configures a Harness.
type Option func(*Harness)

// WithBrowser selects the browser version by tag. A family tag selects its
// newest version.
func WithBrowser(tag schemas.Tag) Option {
	return func(h *Harness) { h.tag = tag }
}

// WithRunner replaces the runner chosen from the configuration.
func WithRunner(r Runner) Option {
	return func(h *Harness) { h.runner = r }
}

// WithConnection serves pages from conn instead of a fresh connection.
func WithConnection(conn *mockweb.MockConnection) Option {
	return func(h *Harness) { h.Conn = conn }
}

// New creates a harness. A nil cfg uses the defaults and a nil logger the
// global one.
func New(cfg config.Interface, logger *zap.Logger, opts ...Option) (*Harness, error) {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	if logger == nil {
		logger = observability.GetLogger()
	}
	h := &Harness{Config: cfg, Logger: logger.Named("harness")}
	for _, opt := range opts {
		opt(h)
	}

	if h.tag == "" {
		h.Browser = cfg.Browser().DefaultVersion()
	} else {
		b, err := lookupBrowser(cfg, h.tag)
		if err != nil {
			return nil, err
		}
		h.Browser = b
	}
	if h.Conn == nil {
		h.Conn = newConnection(cfg, h.Logger)
	}
	if h.runner == nil {
		r, err := newRunner(cfg, h.Logger)
		if err != nil {
			return nil, err
		}
		h.runner = r
	}
	return h, nil
}

func lookupBrowser(cfg config.Interface, tag schemas.Tag) (schemas.BrowserVersion, error) {
	b, ok := schemas.LookupBrowser(tag)
	if !ok {
		return schemas.BrowserVersion{}, fmt.Errorf("unknown browser tag %q", tag)
	}
	if ua := cfg.Browser().UserAgent; ua != "" {
		b.UserAgent = ua
	}
	return b, nil
}

func newConnection(cfg config.Interface, logger *zap.Logger) *mockweb.MockConnection {
	m := cfg.Mock()
	return mockweb.NewMockConnection(
		mockweb.WithLogger(logger),
		mockweb.WithDefaults(mockweb.Defaults{
			Status:      m.DefaultStatus,
			ContentType: m.DefaultContentType,
			Charset:     m.DefaultCharset,
		}),
	)
}

func (h *Harness) baseURL() string {
	if u := h.Config.Harness().BaseURL; u != "" {
		return u
	}
	return DefaultURL
}

// LoadPage serves markup at the base URL and loads it in a new in-process
// session. The caller closes the session.
func (h *Harness) LoadPage(ctx context.Context, markup string) (*session.Session, error) {
	s, err := session.New(ctx, h.Config, h.Browser, h.Conn, h.Logger)
	if err != nil {
		return nil, err
	}
	if err := s.LoadHTML(ctx, h.baseURL(), markup); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to load page: %w", err)
	}
	return s, nil
}

// Result is the judged outcome of one page in one browser.
type Result struct {
	Case         string           `json:"case"`
	Browser      schemas.Tag      `json:"browser"`
	Runner       string           `json:"runner"`
	Status       expect.Status    `json:"status"`
	Expected     []string         `json:"expected"`
	Actual       []string         `json:"actual"`
	Mismatch     *expect.Mismatch `json:"-"`
	Diff         string           `json:"diff,omitempty"`
	Error        string           `json:"error,omitempty"`
	FinalURL     string           `json:"finalUrl,omitempty"`
	PendingJobs  int              `json:"pendingJobs,omitempty"`
	ScriptErrors []string         `json:"scriptErrors,omitempty"`
	Duration     time.Duration    `json:"duration"`

	err error
}

// Err returns why the result fails a run, or nil.
func (r *Result) Err() error {
	switch r.Status {
	case expect.StatusFailed:
		return r.Mismatch
	case expect.StatusUnexpectedPass:
		return ErrUnexpectedPass
	case expect.StatusErrored:
		return r.err
	}
	return nil
}

// judge classifies a capture, or the error that prevented one.
func judge(name, runner string, browser schemas.BrowserVersion, exp *expect.Expectation, capture *schemas.Capture, runErr error) *Result {
	res := &Result{Case: name, Browser: browser.Tag, Runner: runner}
	if exp == nil {
		exp = expect.Alerts()
	}
	if runErr != nil {
		res.Status = expect.StatusErrored
		res.Expected, _ = exp.Resolve(browser.Tag)
		res.Error = runErr.Error()
		res.err = runErr
		return res
	}

	v := exp.Judge(browser.Tag, capture.Alerts)
	res.Status = v.Status
	res.Expected = v.Expected
	res.Actual = capture.Alerts
	res.Mismatch = v.Mismatch
	if v.Mismatch != nil {
		res.Diff = v.Mismatch.Diff
	}
	res.FinalURL = capture.FinalURL
	res.PendingJobs = capture.PendingJobs
	res.ScriptErrors = capture.ScriptErrs
	res.Duration = capture.Duration
	return res
}

// LoadPageWithAlerts serves markup at the base URL, runs it, and judges the
// captured alerts against exp for the harness browser. A mismatch is
// reported in the result, not as an error.
func (h *Harness) LoadPageWithAlerts(ctx context.Context, markup string, exp *expect.Expectation) (*Result, error) {
	if exp == nil {
		return nil, errors.New("expectation is required")
	}
	pageURL := h.baseURL()
	h.Conn.SetResponseAsHTML(pageURL, markup)
	capture, err := h.runner.Run(ctx, h.Browser, h.Conn, pageURL)
	res := judge(caseName(markup), h.runner.Name(), h.Browser, exp, capture, err)
	h.logResult(h.Logger, res)
	return res, nil
}

func caseName(markup string) string {
	name := strings.Join(strings.Fields(markup), " ")
	if r := []rune(name); len(r) > 40 {
		name = string(r[:40]) + "..."
	}
	return name
}

func (h *Harness) logResult(logger *zap.Logger, res *Result) {
	fields := []zap.Field{
		zap.String("status", string(res.Status)),
		zap.Strings("actual", res.Actual),
		zap.Duration("duration", res.Duration),
	}
	switch {
	case res.Status == expect.StatusErrored:
		logger.Warn("Case errored.", append(fields, zap.String("error", res.Error))...)
	case res.Status.IsFailure():
		logger.Info("Case failed.", append(fields, zap.Strings("expected", res.Expected))...)
	default:
		logger.Debug("Case finished.", fields...)
	}
}
