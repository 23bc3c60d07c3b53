package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/alertbench/api/schemas"
	"github.com/xkilldash9x/alertbench/internal/expect"
	"github.com/xkilldash9x/alertbench/internal/mockweb"
	"github.com/xkilldash9x/alertbench/internal/observability"
)

// Case is one test page with its expected alerts and the resources it loads.
type Case struct {
	Name string `yaml:"name" json:"name"`
	// URL is where HTML is served; the base URL when empty.
	URL    string              `yaml:"url,omitempty" json:"url,omitempty"`
	HTML   string              `yaml:"html" json:"html"`
	Expect *expect.Expectation `yaml:"expect" json:"-"`
	// Responses are registered by their URL field before the page loads.
	Responses       []mockweb.Response `yaml:"responses,omitempty" json:"-"`
	DefaultResponse *mockweb.Response  `yaml:"defaultResponse,omitempty" json:"-"`
}

// Suite is a named list of cases.
type Suite struct {
	Name  string `yaml:"name" json:"name"`
	Cases []Case `yaml:"cases" json:"cases"`
}

// LoadSuiteFile reads a YAML suite. The suite is named after the file when
// it does not name itself.
func LoadSuiteFile(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read suite: %w", err)
	}
	var s Suite
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse suite %s: %w", path, err)
	}
	if s.Name == "" {
		s.Name = filepath.Base(path)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("suite %s: %w", path, err)
	}
	return &s, nil
}

// Validate checks that every case can be run.
func (s *Suite) Validate() error {
	seen := make(map[string]bool, len(s.Cases))
	for i, c := range s.Cases {
		if c.Name == "" {
			return fmt.Errorf("case %d has no name", i)
		}
		if seen[c.Name] {
			return fmt.Errorf("duplicate case name %q", c.Name)
		}
		seen[c.Name] = true
		if c.Expect == nil {
			return fmt.Errorf("case %q has no expectation", c.Name)
		}
		for _, r := range c.Responses {
			if r.URL == "" {
				return fmt.Errorf("case %q: response without url", c.Name)
			}
		}
	}
	return nil
}

// Register seeds conn with the case's page and resources and returns the
// page URL.
func (c *Case) Register(conn *mockweb.MockConnection, baseURL string) string {
	pageURL := c.URL
	if pageURL == "" {
		pageURL = baseURL
	}
	if c.DefaultResponse != nil {
		conn.SetDefaultResponse(*c.DefaultResponse)
	}
	for _, r := range c.Responses {
		conn.SetResponse(r.URL, r)
	}
	conn.SetResponseAsHTML(pageURL, c.HTML)
	return pageURL
}

var errFailFast = errors.New("stopping after first failure")

// RunSuite runs every case in every browser of tags, each pair on its own
// connection and session, with at most harness.concurrency pairs at once.
// With no tags the configured browser list is used.
func (h *Harness) RunSuite(ctx context.Context, suite *Suite, tags []schemas.Tag) (*Report, error) {
	browsers, err := h.browsersFor(tags)
	if err != nil {
		return nil, err
	}
	runID := newRunID()
	logger := h.Logger.With(zap.String("run_id", runID), zap.String("suite", suite.Name))
	logger.Info("Running suite.", zap.Int("cases", len(suite.Cases)), zap.Int("browsers", len(browsers)), zap.String("runner", h.runner.Name()))

	start := time.Now()
	results := make([]*Result, len(suite.Cases)*len(browsers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, h.Config.Harness().Concurrency))

	for i := range suite.Cases {
		c := &suite.Cases[i]
		for j, b := range browsers {
			slot := i*len(browsers) + j
			b := b
			g.Go(func() error {
				if gctx.Err() != nil {
					return nil
				}
				res := h.runCase(gctx, observability.ForCase(logger, c.Name, b.Tag), c, b)
				results[slot] = res
				if h.Config.Harness().FailFast && res.Status.IsFailure() {
					return errFailFast
				}
				return nil
			})
		}
	}
	err = g.Wait()

	report := NewReport(runID, suite.Name, h.runner.Name())
	for _, r := range results {
		if r != nil {
			report.Add(r)
		}
	}
	report.Duration = time.Since(start)
	logger.Info("Suite finished.", zap.Any("counts", report.Counts), zap.Duration("duration", report.Duration))

	if err != nil && !errors.Is(err, errFailFast) {
		return report, err
	}
	if ctx.Err() != nil {
		return report, ctx.Err()
	}
	return report, nil
}

func (h *Harness) runCase(ctx context.Context, logger *zap.Logger, c *Case, b schemas.BrowserVersion) *Result {
	conn := newConnection(h.Config, logger)
	pageURL := c.Register(conn, h.baseURL())
	capture, err := h.runner.Run(ctx, b, conn, pageURL)
	res := judge(c.Name, h.runner.Name(), b, c.Expect, capture, err)
	h.logResult(logger, res)
	return res
}

func (h *Harness) browsersFor(tags []schemas.Tag) ([]schemas.BrowserVersion, error) {
	if len(tags) == 0 {
		browsers := h.Config.Browser().ResolvedTags()
		if len(browsers) == 0 {
			browsers = []schemas.BrowserVersion{h.Browser}
		}
		return browsers, nil
	}
	seen := make(map[schemas.Tag]bool, len(tags))
	var out []schemas.BrowserVersion
	for _, t := range tags {
		b, err := lookupBrowser(h.Config, t)
		if err != nil {
			return nil, err
		}
		if seen[b.Tag] {
			continue
		}
		seen[b.Tag] = true
		out = append(out, b)
	}
	return out, nil
}
