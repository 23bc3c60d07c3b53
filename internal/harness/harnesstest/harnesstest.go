// Package harnesstest runs alert expectations from go tests.
package harnesstest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/alertbench/api/schemas"
	"github.com/xkilldash9x/alertbench/internal/config"
	"github.com/xkilldash9x/alertbench/internal/expect"
	"github.com/xkilldash9x/alertbench/internal/harness"
)

// DefaultTags are the browsers Run covers when none are given.
var DefaultTags = []schemas.Tag{schemas.CHROME, schemas.FF60, schemas.FF68, schemas.IE8, schemas.IE11, schemas.EDGE}

// Run loads markup in each browser of tags, in a subtest named after the
// tag, and fails the subtest when the alerts do not match exp. Known
// divergences are logged and skipped.
func Run(t *testing.T, markup string, exp *expect.Expectation, tags ...schemas.Tag) {
	t.Helper()
	if len(tags) == 0 {
		tags = DefaultTags
	}
	for _, tag := range tags {
		tag := tag
		t.Run(string(tag), func(t *testing.T) {
			t.Helper()
			res := RunOne(t, markup, exp, tag)
			switch res.Status {
			case expect.StatusKnownDivergence:
				t.Skipf("known divergence: %v", res.Mismatch)
			case expect.StatusErrored:
				t.Fatalf("page failed to run: %s", res.Error)
			case expect.StatusUnexpectedPass:
				t.Errorf("%v: %s is marked not yet implemented but produced %q", harness.ErrUnexpectedPass, tag, res.Actual)
			default:
				expect.AssertAlerts(t, res.Expected, res.Actual)
			}
		})
	}
}

// RunOne loads markup in a single browser and returns the judged result.
func RunOne(t *testing.T, markup string, exp *expect.Expectation, tag schemas.Tag) *harness.Result {
	t.Helper()
	h, err := harness.New(config.NewDefaultConfig(), zaptest.NewLogger(t), harness.WithBrowser(tag))
	require.NoError(t, err)
	res, err := h.LoadPageWithAlerts(context.Background(), markup, exp)
	require.NoError(t, err)
	return res
}
