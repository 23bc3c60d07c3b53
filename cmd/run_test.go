package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/alertbench/internal/expect"
	"github.com/xkilldash9x/alertbench/internal/harness"
)

const passingSuite = `
name: passing
cases:
  - name: mode
    html: <script>alert(typeof document.documentMode)</script>
    expect:
      default: [undefined]
      IE: [number]
`

const failingSuite = `
name: failing
cases:
  - name: wrong
    html: <script>alert('a')</script>
    expect: [b]
`

func writeSuite(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "suite.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestRunCmd_Passing(t *testing.T) {
	path := writeSuite(t, passingSuite)

	out, err := execute(t, context.Background(), "run", path, "--browser", "CHROME", "--browser", "IE8")
	require.NoError(t, err)
	assert.Contains(t, out, "Suite passing")
	assert.Contains(t, out, "IE8")
}

func TestRunCmd_FailingWritesJSONReport(t *testing.T) {
	path := writeSuite(t, failingSuite)
	reportPath := filepath.Join(t.TempDir(), "report.json")

	_, err := execute(t, context.Background(), "run", path, "-b", "FF60", "--format", "json", "--output", reportPath)
	require.ErrorIs(t, err, ErrRunFailed)

	data, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	var report harness.Report
	require.NoError(t, jsoniter.Unmarshal(data, &report))
	require.Len(t, report.Results, 1)
	assert.Equal(t, expect.StatusFailed, report.Results[0].Status)
	assert.Equal(t, []string{"a"}, report.Results[0].Actual)
}

func TestRunCmd_InvalidOptions(t *testing.T) {
	path := writeSuite(t, passingSuite)

	tests := map[string][]string{
		"UnknownFormat":  {"run", path, "--format", "xml"},
		"UnknownBrowser": {"run", path, "--browser", "MOSAIC"},
		"UnknownRunner":  {"run", path, "--runner", "lynx"},
		"MissingSuite":   {"run", filepath.Join(t.TempDir(), "absent.yaml")},
		"NoArgs":         {"run"},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := execute(t, context.Background(), args...)
			assert.Error(t, err)
			assert.NotErrorIs(t, err, ErrRunFailed)
		})
	}
}
