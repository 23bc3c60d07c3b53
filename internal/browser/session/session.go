// internal/browser/session/session.go
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/alertbench/api/schemas"
	"github.com/xkilldash9x/alertbench/internal/browser/jsbind"
	"github.com/xkilldash9x/alertbench/internal/browser/jsexec"
	"github.com/xkilldash9x/alertbench/internal/browser/network"
	"github.com/xkilldash9x/alertbench/internal/config"
)

// ErrSessionClosed is returned by operations on a closed session.
var ErrSessionClosed = errors.New("session is closed")

// Dialog is one alert, confirm or prompt a page opened.
type Dialog struct {
	Kind    schemas.DialogKind `json:"kind"`
	Message string             `json:"message"`
}

// page is one loaded document: its JS window and the DOM bridge on it.
type page struct {
	id     int
	rt     *jsexec.Runtime
	bridge *jsbind.DOMBridge // loop goroutine only

	// pendingNav is the latest script navigation queued on this page; a
	// later one supersedes it. Guarded by Session.mu.
	pendingNav   *schemas.NavigationRequest
	navScheduled bool
}

// Session is one simulated browser tab. It loads documents through its
// HTTP client, runs their scripts on a fresh JS window per document, and
// records every dialog the pages open.
type Session struct {
	id      string
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *zap.Logger
	cfg     config.Interface
	browser schemas.BrowserVersion

	transport http.RoundTripper
	client    *http.Client
	jar       http.CookieJar
	tracker   *jsexec.JobTracker

	// navMu serializes document loads, whether requested by the caller or
	// by page script.
	navMu sync.Mutex

	mu         sync.Mutex
	page       *page
	docSeq     int
	currentURL *url.URL
	history    history
	dialogs    []Dialog
	retired    []*jsexec.ScriptError
	console    []schemas.ConsoleLog
	closed     bool
	wg         sync.WaitGroup
	closeOnce  sync.Once
}

// New creates a session for one browser version. transport serves every
// request; it is normally a *mockweb.MockConnection.
func New(ctx context.Context, cfg config.Interface, browser schemas.BrowserVersion, transport http.RoundTripper, logger *zap.Logger) (*Session, error) {
	if transport == nil {
		return nil, errors.New("session requires a transport")
	}
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sessionID := uuid.New().String()
	log := logger.Named("session").With(zap.String("session_id", sessionID), zap.String("browser", browser.Nickname))
	sctx, cancel := context.WithCancel(ctx)

	netCfg := network.NewBrowserClientConfig(transport)
	netCfg.Logger = log.Named("network")
	if d := cfg.Network().RequestTimeout; d > 0 {
		netCfg.RequestTimeout = d
	}
	netCfg.MaxRedirects = cfg.Network().MaxRedirects
	netCfg.DefaultHeaders = map[string]string{
		"User-Agent":      browser.UserAgent,
		"Accept-Language": browser.Language,
	}
	for k, v := range cfg.Network().Headers {
		netCfg.DefaultHeaders[k] = v
	}

	s := &Session{
		id:        sessionID,
		ctx:       sctx,
		cancel:    cancel,
		logger:    log,
		cfg:       cfg,
		browser:   browser,
		transport: transport,
		client:    network.NewClient(netCfg),
		jar:       netCfg.CookieJar,
		tracker:   jsexec.NewJobTracker(),
	}
	s.logger.Debug("Session created.")
	return s, nil
}

// ID returns the session's unique id.
func (s *Session) ID() string { return s.id }

// Browser returns the simulated browser version.
func (s *Session) Browser() schemas.BrowserVersion { return s.browser }

// Navigate loads targetURL, resolved against the current document, and
// runs its scripts up to and including the load event.
func (s *Session) Navigate(ctx context.Context, targetURL string) error {
	resolved, err := s.resolve(targetURL)
	if err != nil {
		return fmt.Errorf("failed to resolve URL '%s': %w", targetURL, err)
	}

	navCtx, navCancel := CombineContext(s.ctx, ctx)
	defer navCancel()

	s.navMu.Lock()
	defer s.navMu.Unlock()
	return s.navigate(navCtx, navigation{req: schemas.NavigationRequest{URL: resolved, Method: http.MethodGet}})
}

// HTMLRegistrar is implemented by transports that can serve markup
// registered at run time, such as *mockweb.MockConnection.
type HTMLRegistrar interface {
	SetResponseAsHTML(rawURL, body string)
}

// LoadHTML registers markup for targetURL on the session's transport and
// navigates to it.
func (s *Session) LoadHTML(ctx context.Context, targetURL, markup string) error {
	reg, ok := s.transport.(HTMLRegistrar)
	if !ok {
		return fmt.Errorf("transport %T cannot register responses", s.transport)
	}
	resolved, err := s.resolve(targetURL)
	if err != nil {
		return fmt.Errorf("failed to resolve URL '%s': %w", targetURL, err)
	}
	reg.SetResponseAsHTML(resolved, markup)
	return s.Navigate(ctx, resolved)
}

// Alerts returns the message of every dialog opened so far, in order.
func (s *Session) Alerts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.dialogs))
	for i, d := range s.dialogs {
		out[i] = d.Message
	}
	return out
}

// Dialogs returns every dialog opened so far with its kind.
func (s *Session) Dialogs() []Dialog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Dialog(nil), s.dialogs...)
}

// CurrentURL returns the URL of the current document, fragment included.
func (s *Session) CurrentURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentURL == nil {
		return "about:blank"
	}
	return s.currentURL.String()
}

// HistoryLength returns the number of session history entries.
func (s *Session) HistoryLength() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.len()
}

// WaitForBackgroundJobs waits until no timer, request or scheduled
// navigation is outstanding, or until timeout. It returns the number of
// jobs still pending.
func (s *Session) WaitForBackgroundJobs(ctx context.Context, timeout time.Duration) int {
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := s.tracker.WaitIdle(wctx); err != nil {
		s.logger.Debug("Background jobs still pending.", zap.Int("pending", s.tracker.Pending()), zap.Error(err))
	}
	return s.tracker.Pending()
}

// ScriptErrors returns the uncaught exceptions of every document loaded so far.
func (s *Session) ScriptErrors() []*jsexec.ScriptError {
	s.mu.Lock()
	out := append([]*jsexec.ScriptError(nil), s.retired...)
	p := s.page
	s.mu.Unlock()
	if p != nil {
		out = append(out, p.rt.Errors()...)
	}
	return out
}

// ConsoleLogs returns what page script wrote to the console.
func (s *Session) ConsoleLogs() []schemas.ConsoleLog {
	s.mu.Lock()
	out := append([]schemas.ConsoleLog(nil), s.console...)
	p := s.page
	s.mu.Unlock()
	if p != nil {
		out = append(out, p.rt.ConsoleLogs()...)
	}
	return out
}

func (s *Session) currentPage() (*page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.page == nil {
		return nil, errors.New("no document loaded")
	}
	return s.page, nil
}

// Execute runs script in the current document's window and returns its
// exported result.
func (s *Session) Execute(ctx context.Context, script string) (interface{}, error) {
	p, err := s.currentPage()
	if err != nil {
		return nil, err
	}
	v, err := p.rt.Execute(ctx, "(session script)", script)
	if err != nil {
		return nil, err
	}
	var out interface{}
	err = p.rt.Run(ctx, func(*goja.Runtime) error {
		out = v.Export()
		return nil
	})
	return out, err
}

// DocumentHTML serializes the current DOM, script changes included.
func (s *Session) DocumentHTML(ctx context.Context) (string, error) {
	p, err := s.currentPage()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	err = p.rt.Run(ctx, func(*goja.Runtime) error {
		return html.Render(&buf, p.bridge.Document())
	})
	if err != nil {
		return "", fmt.Errorf("failed to render document: %w", err)
	}
	return buf.String(), nil
}

// Close stops the current document's event loop and cancels queued
// navigations. It is idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		p := s.page
		s.mu.Unlock()

		s.cancel()
		if p != nil {
			p.rt.Close()
		}
		s.wg.Wait()
		s.client.CloseIdleConnections()
		s.logger.Debug("Session closed.")
	})
}

func (s *Session) resolve(ref string) (string, error) {
	s.mu.Lock()
	base := s.currentURL
	s.mu.Unlock()
	var (
		u   *url.URL
		err error
	)
	if base == nil {
		u, err = url.Parse(ref)
	} else {
		u, err = base.Parse(ref)
	}
	if err != nil {
		return "", err
	}
	if !u.IsAbs() {
		return "", fmt.Errorf("URL %q is not absolute", ref)
	}
	return u.String(), nil
}

// isCurrent reports whether p is still the session's document.
func (s *Session) isCurrent(p *page) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.page == p
}

// afterCurrentTask runs fn once the script running on p's loop has
// finished, holding the navigation lock. It is tracked as a background job
// and skipped when p is no longer the current document.
func (s *Session) afterCurrentTask(p *page, fn func(ctx context.Context)) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	s.tracker.Track()
	go func() {
		defer s.wg.Done()
		defer s.tracker.Done()

		// The loop runs tasks in order, so this returns after the current one.
		_ = p.rt.Run(s.ctx, func(*goja.Runtime) error { return nil })

		s.navMu.Lock()
		defer s.navMu.Unlock()
		if !s.isCurrent(p) {
			return
		}
		fn(s.ctx)
	}()
}

func (s *Session) recordDialog(kind schemas.DialogKind, message string) {
	s.logger.Debug("Dialog opened.", zap.String("kind", string(kind)), zap.String("message", message))
	s.mu.Lock()
	s.dialogs = append(s.dialogs, Dialog{Kind: kind, Message: message})
	s.mu.Unlock()
}
