package harness

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/alertbench/api/schemas"
	"github.com/xkilldash9x/alertbench/internal/browser/cdp"
	"github.com/xkilldash9x/alertbench/internal/browser/session"
	"github.com/xkilldash9x/alertbench/internal/config"
	"github.com/xkilldash9x/alertbench/internal/mockweb"
)

// Runner loads a page served by conn in one browser and reports what it saw.
type Runner interface {
	Name() string
	Run(ctx context.Context, browser schemas.BrowserVersion, conn *mockweb.MockConnection, pageURL string) (*schemas.Capture, error)
}

var (
	_ Runner = (*InProcessRunner)(nil)
	_ Runner = (*cdp.Runner)(nil)
)

// InProcessRunner loads pages in a simulated session.
type InProcessRunner struct {
	cfg    config.Interface
	logger *zap.Logger
}

// NewInProcessRunner creates the default runner.
func NewInProcessRunner(cfg config.Interface, logger *zap.Logger) *InProcessRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InProcessRunner{cfg: cfg, logger: logger}
}

func (r *InProcessRunner) Name() string { return config.RunnerInProcess }

// Run navigates a fresh session to pageURL and waits for its background
// jobs within the configured async deadline.
func (r *InProcessRunner) Run(ctx context.Context, browser schemas.BrowserVersion, conn *mockweb.MockConnection, pageURL string) (*schemas.Capture, error) {
	start := time.Now()
	s, err := session.New(ctx, r.cfg, browser, conn, r.logger)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	if err := s.Navigate(ctx, pageURL); err != nil {
		return nil, err
	}
	pending := s.WaitForBackgroundJobs(ctx, r.cfg.Harness().AsyncWait)
	return captureOf(s, pending, start), nil
}

func captureOf(s *session.Session, pending int, start time.Time) *schemas.Capture {
	c := &schemas.Capture{
		Alerts:      s.Alerts(),
		FinalURL:    s.CurrentURL(),
		PendingJobs: pending,
		Duration:    time.Since(start),
	}
	for _, se := range s.ScriptErrors() {
		c.ScriptErrs = append(c.ScriptErrs, se.Error())
	}
	return c
}

// newRunner builds the runner named by cfg.
func newRunner(cfg config.Interface, logger *zap.Logger) (Runner, error) {
	switch name := cfg.Harness().Runner; name {
	case "", config.RunnerInProcess:
		return NewInProcessRunner(cfg, logger), nil
	case config.RunnerChrome:
		return cdp.NewRunner(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown runner %q", name)
	}
}
