// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/xkilldash9x/alertbench/api/schemas"
)

// EnvPrefix is the prefix viper uses when mapping environment variables onto
// config keys, e.g. ALERTBENCH_HARNESS_ASYNC_WAIT.
const EnvPrefix = "ALERTBENCH"

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Network() NetworkConfig
	Harness() HarnessConfig
	Mock() MockConfig
	Proxy() ProxyConfig
	Chrome() ChromeConfig

	// Setters used by CLI flags.
	SetBrowserTags(tags []string)
	SetHarnessRunner(runner string)
	SetHarnessAsyncWait(d time.Duration)
	SetHarnessConcurrency(n int)
	SetProxyListen(addr string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	BrowserCfg BrowserConfig `mapstructure:"browser" yaml:"browser"`
	NetworkCfg NetworkConfig `mapstructure:"network" yaml:"network"`
	HarnessCfg HarnessConfig `mapstructure:"harness" yaml:"harness"`
	MockCfg    MockConfig    `mapstructure:"mock" yaml:"mock"`
	ProxyCfg   ProxyConfig   `mapstructure:"proxy" yaml:"proxy"`
	ChromeCfg  ChromeConfig  `mapstructure:"chrome" yaml:"chrome"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig   { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig { return c.BrowserCfg }
func (c *Config) Network() NetworkConfig { return c.NetworkCfg }
func (c *Config) Harness() HarnessConfig { return c.HarnessCfg }
func (c *Config) Mock() MockConfig       { return c.MockCfg }
func (c *Config) Proxy() ProxyConfig     { return c.ProxyCfg }
func (c *Config) Chrome() ChromeConfig   { return c.ChromeCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserTags(tags []string)        { c.BrowserCfg.Tags = tags }
func (c *Config) SetHarnessRunner(runner string)      { c.HarnessCfg.Runner = runner }
func (c *Config) SetHarnessAsyncWait(d time.Duration) { c.HarnessCfg.AsyncWait = d }
func (c *Config) SetHarnessConcurrency(n int)         { c.HarnessCfg.Concurrency = n }
func (c *Config) SetProxyListen(addr string)          { c.ProxyCfg.Listen = addr }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig selects which simulated browsers a run covers.
type BrowserConfig struct {
	// Default is the tag used by single-browser entry points (LoadPage).
	Default string `mapstructure:"default" yaml:"default"`
	// Tags lists the browsers a suite run covers.
	Tags []string `mapstructure:"tags" yaml:"tags"`
	// UserAgent overrides the navigator.userAgent of every version when set.
	UserAgent string `mapstructure:"user_agent" yaml:"user_agent"`
}

// NetworkConfig tunes the session's HTTP client.
type NetworkConfig struct {
	RequestTimeout time.Duration     `mapstructure:"request_timeout" yaml:"request_timeout"`
	MaxRedirects   int               `mapstructure:"max_redirects" yaml:"max_redirects"`
	Headers        map[string]string `mapstructure:"headers" yaml:"headers"`
}

// HarnessConfig controls how cases are executed and judged.
type HarnessConfig struct {
	// AsyncWait bounds how long a case waits for timers and XHRs after load.
	AsyncWait time.Duration `mapstructure:"async_wait" yaml:"async_wait"`
	// ScriptTimeout interrupts a single script that runs longer than this.
	ScriptTimeout time.Duration `mapstructure:"script_timeout" yaml:"script_timeout"`
	Concurrency   int           `mapstructure:"concurrency" yaml:"concurrency"`
	BaseURL       string        `mapstructure:"base_url" yaml:"base_url"`
	// Runner is "inprocess" or "chrome".
	Runner   string `mapstructure:"runner" yaml:"runner"`
	FailFast bool   `mapstructure:"fail_fast" yaml:"fail_fast"`
}

// MockConfig holds the defaults applied to registered mock responses.
type MockConfig struct {
	DefaultStatus      int    `mapstructure:"default_status" yaml:"default_status"`
	DefaultContentType string `mapstructure:"default_content_type" yaml:"default_content_type"`
	DefaultCharset     string `mapstructure:"default_charset" yaml:"default_charset"`
}

// ProxyConfig defines the listener of the mock-serving proxy.
type ProxyConfig struct {
	Listen  string `mapstructure:"listen" yaml:"listen"`
	Verbose bool   `mapstructure:"verbose" yaml:"verbose"`
}

// ChromeConfig configures the real-browser runner.
type ChromeConfig struct {
	Headless    bool          `mapstructure:"headless" yaml:"headless"`
	ExecPath    string        `mapstructure:"exec_path" yaml:"exec_path"`
	QuietPeriod time.Duration `mapstructure:"quiet_period" yaml:"quiet_period"`
	Args        []string      `mapstructure:"args" yaml:"args"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "alertbench")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.default", string(schemas.CHROME))
	v.SetDefault("browser.tags", []string{
		string(schemas.CHROME), string(schemas.FF60), string(schemas.FF68),
		string(schemas.IE8), string(schemas.IE11), string(schemas.EDGE),
	})
	v.SetDefault("browser.user_agent", "")

	// -- Network --
	v.SetDefault("network.request_timeout", "10s")
	v.SetDefault("network.max_redirects", 10)

	// -- Harness --
	v.SetDefault("harness.async_wait", "2s")
	v.SetDefault("harness.script_timeout", "5s")
	v.SetDefault("harness.concurrency", 4)
	v.SetDefault("harness.base_url", "http://localhost:12345/")
	v.SetDefault("harness.runner", "inprocess")
	v.SetDefault("harness.fail_fast", false)

	// -- Mock --
	v.SetDefault("mock.default_status", 200)
	v.SetDefault("mock.default_content_type", "text/html")
	v.SetDefault("mock.default_charset", "")

	// -- Proxy --
	v.SetDefault("proxy.listen", "127.0.0.1:12345")
	v.SetDefault("proxy.verbose", false)

	// -- Chrome --
	v.SetDefault("chrome.headless", true)
	v.SetDefault("chrome.exec_path", "")
	v.SetDefault("chrome.quiet_period", "500ms")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
// Environment variables prefixed with ALERTBENCH_ override file values.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.HarnessCfg.Concurrency <= 0 {
		return fmt.Errorf("harness.concurrency must be a positive integer")
	}
	if c.HarnessCfg.AsyncWait < 0 {
		return fmt.Errorf("harness.async_wait must not be negative")
	}
	if c.HarnessCfg.ScriptTimeout <= 0 {
		return fmt.Errorf("harness.script_timeout must be a positive duration")
	}
	switch c.HarnessCfg.Runner {
	case RunnerInProcess, RunnerChrome:
	default:
		return fmt.Errorf("harness.runner must be %q or %q, got %q", RunnerInProcess, RunnerChrome, c.HarnessCfg.Runner)
	}
	if c.NetworkCfg.MaxRedirects < 0 {
		return fmt.Errorf("network.max_redirects must not be negative")
	}
	if err := c.BrowserCfg.Validate(); err != nil {
		return fmt.Errorf("browser configuration invalid: %w", err)
	}
	return nil
}

// Runner names accepted by harness.runner.
const (
	RunnerInProcess = "inprocess"
	RunnerChrome    = "chrome"
)

// Validate checks that every configured tag names a known browser.
func (b *BrowserConfig) Validate() error {
	if b.Default != "" {
		if _, err := schemas.ParseTag(b.Default); err != nil {
			return fmt.Errorf("browser.default: %w", err)
		}
	}
	for _, t := range b.Tags {
		tag, err := schemas.ParseTag(t)
		if err != nil {
			return fmt.Errorf("browser.tags: %w", err)
		}
		if tag == schemas.TagDefault {
			return fmt.Errorf("browser.tags: %q is an expectation key, not a browser", t)
		}
	}
	return nil
}

// ResolvedTags parses Tags into browser versions, falling back to Default.
func (b BrowserConfig) ResolvedTags() []schemas.BrowserVersion {
	raw := b.Tags
	if len(raw) == 0 && b.Default != "" {
		raw = []string{b.Default}
	}
	var out []schemas.BrowserVersion
	seen := make(map[schemas.Tag]bool)
	for _, t := range raw {
		tag, err := schemas.ParseTag(t)
		if err != nil {
			continue
		}
		bv, ok := schemas.LookupBrowser(tag)
		if !ok || seen[bv.Tag] {
			continue
		}
		seen[bv.Tag] = true
		if b.UserAgent != "" {
			bv.UserAgent = b.UserAgent
		}
		out = append(out, bv)
	}
	return out
}

// DefaultVersion returns the browser version named by Default, or the
// package default when unset or unknown.
func (b BrowserConfig) DefaultVersion() schemas.BrowserVersion {
	bv := schemas.DefaultBrowser
	if tag, err := schemas.ParseTag(b.Default); err == nil {
		if v, ok := schemas.LookupBrowser(tag); ok {
			bv = v
		}
	}
	if b.UserAgent != "" {
		bv.UserAgent = b.UserAgent
	}
	return bv
}
