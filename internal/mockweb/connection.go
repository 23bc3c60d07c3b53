// Package mockweb provides the deterministic web a test page is loaded from:
// a registry of canned responses keyed by URL that implements
// http.RoundTripper, and a goproxy-based server that exposes the same
// registry to external browsers.
package mockweb

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrNoResponse is returned (wrapped) by RoundTrip when a URL has no
// registered response and no default response is configured.
var ErrNoResponse = errors.New("mockweb: no response registered")

// Response is a canned HTTP response.
type Response struct {
	Body []byte `yaml:"-" json:"-"`
	// BodyText is a convenience for fixtures; Body wins when both are set.
	BodyText      string `yaml:"body" json:"body"`
	Status        int    `yaml:"status" json:"status"`
	StatusMessage string `yaml:"statusMessage" json:"statusMessage"`
	ContentType   string `yaml:"contentType" json:"contentType"`
	Charset       string `yaml:"charset" json:"charset"`
	// Headers are added verbatim; a Content-Type here overrides ContentType.
	Headers map[string]string `yaml:"headers" json:"headers"`
	// URL is only used by fixture files to key the response.
	URL string `yaml:"url" json:"url"`
}

func (r Response) body() []byte {
	if r.Body != nil {
		return r.Body
	}
	return []byte(r.BodyText)
}

// RecordedRequest is one request the connection has served (or failed to).
type RecordedRequest struct {
	Method  string
	URL     *url.URL
	Headers http.Header
	Body    []byte
	// Params holds the parsed query string merged with a form-encoded body.
	Params url.Values
	Time   time.Time
}

// Defaults are applied to registered responses that leave fields empty.
type Defaults struct {
	Status      int
	ContentType string
	Charset     string
}

// MockConnection is an http.RoundTripper serving registered responses. It is
// safe for concurrent use; the page loader and XHR workers share one.
type MockConnection struct {
	mu              sync.RWMutex
	responses       map[string]Response
	ignoreQuery     map[string]Response
	defaultResponse *Response
	defaults        Defaults
	requests        []RecordedRequest
	logger          *zap.Logger
}

// Option configures a MockConnection.
type Option func(*MockConnection)

// WithLogger sets the logger used for request tracing.
func WithLogger(l *zap.Logger) Option {
	return func(c *MockConnection) {
		if l != nil {
			c.logger = l.Named("mockweb")
		}
	}
}

// WithDefaults overrides the status/content-type defaults.
func WithDefaults(d Defaults) Option {
	return func(c *MockConnection) {
		if d.Status != 0 {
			c.defaults.Status = d.Status
		}
		if d.ContentType != "" {
			c.defaults.ContentType = d.ContentType
		}
		c.defaults.Charset = d.Charset
	}
}

// NewMockConnection creates an empty connection. Nothing is shared between
// instances, so each test should build its own.
func NewMockConnection(opts ...Option) *MockConnection {
	c := &MockConnection{
		responses:   make(map[string]Response),
		ignoreQuery: make(map[string]Response),
		defaults:    Defaults{Status: http.StatusOK, ContentType: "text/html"},
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// normalizeKey strips the fragment and canonicalizes an empty path to "/".
func normalizeKey(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("mockweb: invalid url %q: %w", raw, err)
	}
	return keyOf(u), nil
}

func keyOf(u *url.URL) string {
	c := *u
	c.Fragment = ""
	c.RawFragment = ""
	if c.Path == "" && c.Host != "" {
		c.Path = "/"
	}
	c.Scheme = strings.ToLower(c.Scheme)
	c.Host = strings.ToLower(c.Host)
	return c.String()
}

func withoutQuery(u *url.URL) string {
	c := *u
	c.RawQuery = ""
	c.ForceQuery = false
	return keyOf(&c)
}

// SetResponse registers resp for rawURL, replacing any earlier registration.
func (c *MockConnection) SetResponse(rawURL string, resp Response) {
	key, err := normalizeKey(rawURL)
	if err != nil {
		c.logger.Warn("Ignoring registration for unparsable URL.", zap.String("url", rawURL), zap.Error(err))
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses[key] = resp
}

// SetResponseIgnoringQuery registers resp for every query string variant of rawURL.
func (c *MockConnection) SetResponseIgnoringQuery(rawURL string, resp Response) {
	u, err := url.Parse(rawURL)
	if err != nil {
		c.logger.Warn("Ignoring registration for unparsable URL.", zap.String("url", rawURL), zap.Error(err))
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ignoreQuery[withoutQuery(u)] = resp
}

// SetResponseAsHTML registers an HTML document body for rawURL.
func (c *MockConnection) SetResponseAsHTML(rawURL, body string) {
	c.SetResponse(rawURL, Response{BodyText: body, ContentType: "text/html"})
}

// SetResponseWithContentType registers a body with an explicit content type,
// e.g. a script ("text/javascript") or an XHR payload ("text/xml").
func (c *MockConnection) SetResponseWithContentType(rawURL, body, contentType string) {
	c.SetResponse(rawURL, Response{BodyText: body, ContentType: contentType})
}

// SetResponseWithStatus registers a body with an explicit status line.
func (c *MockConnection) SetResponseWithStatus(rawURL, body string, status int, message string) {
	c.SetResponse(rawURL, Response{BodyText: body, Status: status, StatusMessage: message})
}

// SetDefaultResponse sets the response served for every unregistered URL.
func (c *MockConnection) SetDefaultResponse(resp Response) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := resp
	c.defaultResponse = &r
}

// SetDefaultResponseHTML is SetDefaultResponse for an HTML body.
func (c *MockConnection) SetDefaultResponseHTML(body string) {
	c.SetDefaultResponse(Response{BodyText: body, ContentType: "text/html"})
}

// Lookup returns the response registered for u: exact match first, then a
// query-insensitive registration, then the default.
func (c *MockConnection) Lookup(u *url.URL) (Response, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if r, ok := c.responses[keyOf(u)]; ok {
		return r, true
	}
	if r, ok := c.ignoreQuery[withoutQuery(u)]; ok {
		return r, true
	}
	if c.defaultResponse != nil {
		return *c.defaultResponse, true
	}
	return Response{}, false
}

// RoundTrip implements http.RoundTripper.
func (c *MockConnection) RoundTrip(req *http.Request) (*http.Response, error) {
	rec := RecordedRequest{
		Method:  req.Method,
		URL:     cloneURL(req.URL),
		Headers: req.Header.Clone(),
		Time:    time.Now(),
	}
	if rec.Method == "" {
		rec.Method = http.MethodGet
	}
	if req.Body != nil {
		body, err := io.ReadAll(req.Body)
		_ = req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("mockweb: reading request body: %w", err)
		}
		rec.Body = body
	}
	rec.Params = parseParams(rec.URL, req.Header.Get("Content-Type"), rec.Body)

	c.mu.Lock()
	c.requests = append(c.requests, rec)
	c.mu.Unlock()

	resp, ok := c.Lookup(req.URL)
	if !ok {
		c.logger.Debug("No mock response registered.", zap.String("method", rec.Method), zap.Stringer("url", req.URL))
		return nil, fmt.Errorf("%w for %s %s", ErrNoResponse, rec.Method, req.URL)
	}
	c.logger.Debug("Serving mock response.", zap.String("method", rec.Method), zap.Stringer("url", req.URL))
	return c.build(req, resp), nil
}

func (c *MockConnection) build(req *http.Request, r Response) *http.Response {
	status := r.Status
	if status == 0 {
		status = c.defaults.Status
	}
	msg := r.StatusMessage
	if msg == "" {
		msg = http.StatusText(status)
	}

	header := make(http.Header)
	ct := r.ContentType
	if ct == "" {
		ct = c.defaults.ContentType
	}
	charset := r.Charset
	if charset == "" {
		charset = c.defaults.Charset
	}
	if ct != "" {
		if charset != "" && !strings.Contains(ct, ";") {
			if formatted := mime.FormatMediaType(ct, map[string]string{"charset": charset}); formatted != "" {
				ct = formatted
			}
		}
		header.Set("Content-Type", ct)
	}
	for k, v := range r.Headers {
		header.Set(k, v)
	}

	body := r.body()
	if req.Method == http.MethodHead {
		body = nil
	}
	header.Set("Content-Length", strconv.Itoa(len(body)))

	return &http.Response{
		Status:        fmt.Sprintf("%d %s", status, msg),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}

func cloneURL(u *url.URL) *url.URL {
	if u == nil {
		return &url.URL{}
	}
	c := *u
	if u.User != nil {
		user := *u.User
		c.User = &user
	}
	return &c
}

func parseParams(u *url.URL, contentType string, body []byte) url.Values {
	params := u.Query()
	mt, _, _ := mime.ParseMediaType(contentType)
	if mt == "application/x-www-form-urlencoded" && len(body) > 0 {
		if form, err := url.ParseQuery(string(body)); err == nil {
			for k, vs := range form {
				params[k] = append(params[k], vs...)
			}
		}
	}
	return params
}

// --- Request inspection ---

// RequestCount returns how many requests have been made.
func (c *MockConnection) RequestCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.requests)
}

// Requests returns a copy of every recorded request, oldest first.
func (c *MockConnection) Requests() []RecordedRequest {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]RecordedRequest(nil), c.requests...)
}

// LastRequest returns the most recent request, or false if none was made.
func (c *MockConnection) LastRequest() (RecordedRequest, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.requests) == 0 {
		return RecordedRequest{}, false
	}
	return c.requests[len(c.requests)-1], true
}

// LastMethod returns the method of the most recent request, or "".
func (c *MockConnection) LastMethod() string {
	r, _ := c.LastRequest()
	return r.Method
}

// LastHeaders returns the headers of the most recent request, or nil.
func (c *MockConnection) LastHeaders() http.Header {
	r, _ := c.LastRequest()
	return r.Headers
}

// LastURL returns the URL of the most recent request, or nil.
func (c *MockConnection) LastURL() *url.URL {
	r, ok := c.LastRequest()
	if !ok {
		return nil
	}
	return r.URL
}

// LastParams returns the parsed parameters of the most recent request.
func (c *MockConnection) LastParams() url.Values {
	r, _ := c.LastRequest()
	return r.Params
}

// RequestCountFor counts requests whose URL (fragment stripped) equals rawURL.
func (c *MockConnection) RequestCountFor(rawURL string) int {
	key, err := normalizeKey(rawURL)
	if err != nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, r := range c.requests {
		if keyOf(r.URL) == key {
			n++
		}
	}
	return n
}

// Reset forgets every recorded request; registrations are kept.
func (c *MockConnection) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = nil
}

// Clone copies the registrations (not the recorded requests) into a fresh
// connection, so a suite can run one case on several browsers in isolation.
func (c *MockConnection) Clone() *MockConnection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := &MockConnection{
		responses:   make(map[string]Response, len(c.responses)),
		ignoreQuery: make(map[string]Response, len(c.ignoreQuery)),
		defaults:    c.defaults,
		logger:      c.logger,
	}
	for k, v := range c.responses {
		out.responses[k] = v
	}
	for k, v := range c.ignoreQuery {
		out.ignoreQuery[k] = v
	}
	if c.defaultResponse != nil {
		d := *c.defaultResponse
		out.defaultResponse = &d
	}
	return out
}
