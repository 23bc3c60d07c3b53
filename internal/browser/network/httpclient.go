// browser/network/httpclient.go
package network

import (
	"net/http"
	"net/http/cookiejar"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
)

// Defaults for the simulated browser's client.
const (
	DefaultRequestTimeout = 10 * time.Second
	DefaultMaxRedirects   = 10
)

// ClientConfig holds the configuration for a session's HTTP client.
type ClientConfig struct {
	// Transport is the base round tripper: the mock connection in tests and
	// suite runs. It is wrapped with CompressionMiddleware.
	Transport http.RoundTripper

	RequestTimeout time.Duration
	MaxRedirects   int

	// DefaultHeaders are added to every request that does not already set them.
	DefaultHeaders map[string]string

	CookieJar http.CookieJar
	Logger    *zap.Logger
}

// NewBrowserClientConfig returns a config with an empty cookie jar and the
// default timeouts. transport may be nil for http.DefaultTransport.
func NewBrowserClientConfig(transport http.RoundTripper) *ClientConfig {
	return &ClientConfig{
		Transport:      transport,
		RequestTimeout: DefaultRequestTimeout,
		MaxRedirects:   DefaultMaxRedirects,
		CookieJar:      NewCookieJar(),
		Logger:         zap.NewNop(),
	}
}

// NewCookieJar creates an in-memory jar using the public suffix list, so
// document.cookie behaves like a browser's for registrable domains.
func NewCookieJar() http.CookieJar {
	// cookiejar.New only errors for invalid options.
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	return jar
}

// headerTransport adds default headers without overwriting explicit ones.
type headerTransport struct {
	next    http.RoundTripper
	headers map[string]string
}

func (h *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var cloned bool
	for k, v := range h.headers {
		if req.Header.Get(k) != "" {
			continue
		}
		if !cloned {
			req = req.Clone(req.Context())
			cloned = true
		}
		req.Header.Set(k, v)
	}
	return h.next.RoundTrip(req)
}

// NewClient creates the http.Client a session loads pages and resources
// with. Redirects are not followed automatically: the session follows them
// itself so it can track navigation and apply the browser's method rules.
func NewClient(config *ClientConfig) *http.Client {
	if config == nil {
		config = NewBrowserClientConfig(nil)
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	var rt http.RoundTripper = NewCompressionMiddleware(config.Transport)
	if len(config.DefaultHeaders) > 0 {
		rt = &headerTransport{next: rt, headers: config.DefaultHeaders}
	}

	return &http.Client{
		Transport: rt,
		Timeout:   config.RequestTimeout,
		Jar:       config.CookieJar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
