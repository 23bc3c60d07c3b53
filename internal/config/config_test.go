// File: internal/config/config_test.go
package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/alertbench/api/schemas"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "alertbench", cfg.Logger().ServiceName)
	assert.Equal(t, 10*time.Second, cfg.Network().RequestTimeout)
	assert.Equal(t, 10, cfg.Network().MaxRedirects)
	assert.Equal(t, 2*time.Second, cfg.Harness().AsyncWait)
	assert.Equal(t, "http://localhost:12345/", cfg.Harness().BaseURL)
	assert.Equal(t, RunnerInProcess, cfg.Harness().Runner)
	assert.Equal(t, 200, cfg.Mock().DefaultStatus)
	assert.Equal(t, "CHROME", cfg.Browser().Default)
	assert.Len(t, cfg.Browser().Tags, 6)
	assert.True(t, cfg.Chrome().Headless)
	require.NoError(t, cfg.Validate())
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("Harness Validation", func(t *testing.T) {
		cfg := NewDefaultConfig()
		assert.NoError(t, cfg.Validate(), "A valid config should not produce a validation error")

		badConcurrency := *cfg
		badConcurrency.HarnessCfg.Concurrency = 0
		err := badConcurrency.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "harness.concurrency must be a positive integer")

		badRunner := *cfg
		badRunner.HarnessCfg.Runner = "selenium"
		err = badRunner.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "harness.runner")

		badTimeout := *cfg
		badTimeout.HarnessCfg.ScriptTimeout = 0
		assert.Error(t, badTimeout.Validate())
	})

	t.Run("Browser Validation", func(t *testing.T) {
		valid := BrowserConfig{Default: "ie8", Tags: []string{"FF60", "chrome"}}
		assert.NoError(t, valid.Validate())

		unknown := BrowserConfig{Tags: []string{"NETSCAPE"}}
		err := unknown.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown browser tag")

		defaultKey := BrowserConfig{Tags: []string{"DEFAULT"}}
		assert.Error(t, defaultKey.Validate())
	})
}

func TestBrowserConfigResolution(t *testing.T) {
	b := BrowserConfig{Tags: []string{"FF", "FF68", "ie8"}, UserAgent: "custom/1.0"}
	versions := b.ResolvedTags()
	require.Len(t, versions, 2, "FF and FF68 collapse into one version")
	assert.Equal(t, schemas.FF68, versions[0].Tag)
	assert.Equal(t, schemas.IE8, versions[1].Tag)
	assert.Equal(t, "custom/1.0", versions[1].UserAgent)

	empty := BrowserConfig{Default: "IE"}
	versions = empty.ResolvedTags()
	require.Len(t, versions, 1)
	assert.Equal(t, schemas.IE11, versions[0].Tag)

	assert.Equal(t, schemas.CHROME, BrowserConfig{}.DefaultVersion().Tag)
	assert.Equal(t, schemas.IE8, BrowserConfig{Default: "IE8"}.DefaultVersion().Tag)
}

// -- Factory Function Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("Successful Load from YAML", func(t *testing.T) {
		yamlBytes := []byte(`
harness:
  concurrency: 2
  async_wait: 750ms
browser:
  tags: [IE8, FF60]
`)
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlBytes)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, 2, cfg.Harness().Concurrency)
		assert.Equal(t, 750*time.Millisecond, cfg.Harness().AsyncWait)
		assert.Equal(t, []string{"IE8", "FF60"}, cfg.Browser().Tags)
		// Check a default value was also loaded
		assert.Equal(t, "info", cfg.Logger().Level)
	})

	t.Run("Validation Failure", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("harness.concurrency", 0) // Intentionally invalid

		cfg, err := NewConfigFromViper(v)
		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "invalid configuration")
		assert.Contains(t, err.Error(), "harness.concurrency must be a positive integer")
	})

	t.Run("Environment Variable Binding", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)

		yamlConfig := []byte(`
harness:
  runner: inprocess
`)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlConfig)))

		t.Setenv("ALERTBENCH_HARNESS_RUNNER", "chrome")
		t.Setenv("ALERTBENCH_HARNESS_BASE_URL", "http://example.test/")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		// The env var overrides the value from the config buffer.
		assert.Equal(t, RunnerChrome, cfg.Harness().Runner)
		assert.Equal(t, "http://example.test/", cfg.Harness().BaseURL)
	})
}

func TestSetters(t *testing.T) {
	cfg := NewDefaultConfig()
	var iface Interface = cfg

	iface.SetBrowserTags([]string{"IE8"})
	iface.SetHarnessRunner(RunnerChrome)
	iface.SetHarnessAsyncWait(time.Second)
	iface.SetHarnessConcurrency(9)
	iface.SetProxyListen(":8080")

	assert.Equal(t, []string{"IE8"}, cfg.Browser().Tags)
	assert.Equal(t, RunnerChrome, cfg.Harness().Runner)
	assert.Equal(t, time.Second, cfg.Harness().AsyncWait)
	assert.Equal(t, 9, cfg.Harness().Concurrency)
	assert.Equal(t, ":8080", cfg.Proxy().Listen)
}
