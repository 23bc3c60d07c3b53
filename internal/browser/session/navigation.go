// internal/browser/session/navigation.go
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/antchfx/htmlquery"
	"github.com/dop251/goja"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"

	"github.com/xkilldash9x/alertbench/api/schemas"
	"github.com/xkilldash9x/alertbench/internal/browser/jsbind"
	"github.com/xkilldash9x/alertbench/internal/browser/jsexec"
)

// navigation is a document load request.
type navigation struct {
	req      schemas.NavigationRequest
	referrer string
	// traverse, when set, loads the history entry at index instead of
	// adding a new one.
	traverse bool
	index    int
}

// navigate fetches and loads a document. Callers hold navMu.
func (s *Session) navigate(ctx context.Context, nav navigation) error {
	s.logger.Info("Navigating", zap.String("method", nav.req.Method), zap.String("url", nav.req.URL))

	resp, err := s.fetch(ctx, nav.req.Method, nav.req.URL, nav.req.Body, nav.req.ContentType, nav.referrer, nil)
	if err != nil {
		return &jsbind.NavigationError{URL: nav.req.URL, Message: "navigation failed", Err: err}
	}
	doc, err := parseDocument(resp)
	if err != nil {
		return &jsbind.NavigationError{URL: nav.req.URL, Message: "failed to parse document", Err: err}
	}
	if resp.StatusCode >= 400 {
		s.logger.Warn("Document loaded with error status", zap.Int("status", resp.StatusCode), zap.Stringer("url", resp.Request.URL))
	}

	final := resp.Request.URL
	if u, err := url.Parse(nav.req.URL); err == nil && u.Fragment != "" && final.Fragment == "" {
		// Fragments are not sent, so keep the requested one across redirects.
		f := *final
		f.Fragment, f.RawFragment = u.Fragment, u.RawFragment
		final = &f
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.docSeq++
	id := s.docSeq
	old := s.page
	s.page = nil
	s.currentURL = final
	entry := &historyEntry{HistoryState: schemas.HistoryState{URL: final.String()}, doc: id}
	if resp.Request.Method == http.MethodPost {
		entry.method, entry.body, entry.ctype = http.MethodPost, nav.req.Body, nav.req.ContentType
	}
	switch {
	case nav.traverse && nav.index < s.history.len():
		s.history.index = nav.index
		s.history.entries[nav.index] = entry
	case nav.req.Replace:
		s.history.replace(entry)
	default:
		s.history.push(entry)
	}
	s.mu.Unlock()

	if old != nil {
		s.retire(Detach(ctx), old)
	}

	p, err := s.startPage(ctx, id, doc)
	if err != nil {
		return err
	}
	return s.loadPage(ctx, p)
}

// reportNavigationError records a failed script navigation among the
// script errors of p, or of the session once p has been replaced.
func (s *Session) reportNavigationError(p *page, target string, err error) {
	var navErr *jsbind.NavigationError
	if !errors.As(err, &navErr) {
		err = &jsbind.NavigationError{URL: target, Message: "navigation failed", Err: err}
	}
	source := "navigation to " + target

	s.mu.Lock()
	current := s.page == p
	if !current {
		s.retired = append(s.retired, jsexec.NewScriptError(source, err))
	}
	s.mu.Unlock()
	if current {
		p.rt.ReportError(source, err)
	}
}

// retire fires unload on a replaced document and stops its window.
func (s *Session) retire(ctx context.Context, p *page) {
	if err := p.rt.Run(ctx, func(*goja.Runtime) error {
		p.bridge.FireUnload()
		return nil
	}); err != nil {
		s.logger.Debug("Failed to fire unload", zap.Error(err))
	}
	p.rt.Close()

	s.mu.Lock()
	s.retired = append(s.retired, p.rt.Errors()...)
	s.console = append(s.console, p.rt.ConsoleLogs()...)
	s.mu.Unlock()
}

// startPage creates the JS window for a freshly parsed document.
func (s *Session) startPage(ctx context.Context, id int, doc *html.Node) (*page, error) {
	rt, err := jsexec.NewRuntime(s.logger,
		jsexec.WithTimeout(s.cfg.Harness().ScriptTimeout),
		jsexec.WithTracker(s.tracker))
	if err != nil {
		return nil, fmt.Errorf("failed to start JS runtime: %w", err)
	}
	p := &page{id: id, rt: rt}
	env := &pageEnv{s: s, p: p}

	err = rt.Run(ctx, func(vm *goja.Runtime) error {
		p.bridge = jsbind.NewDOMBridge(vm, s.logger, s.browser, env, rt)
		p.bridge.UpdateDOM(doc)
		return nil
	})
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to bind document: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		rt.Close()
		return nil, ErrSessionClosed
	}
	s.page = p
	return p, nil
}

// loadPage runs the document's scripts in order, then fires
// DOMContentLoaded and load. Script errors never stop the load.
func (s *Session) loadPage(ctx context.Context, p *page) error {
	for {
		var (
			script jsbind.PendingScript
			ok     bool
		)
		if err := p.rt.Run(ctx, func(*goja.Runtime) error {
			script, ok = p.bridge.NextPendingScript()
			return nil
		}); err != nil {
			return fmt.Errorf("loading document: %w", err)
		}
		if !ok {
			break
		}

		code, loaded := script.Code, true
		if script.External() {
			code, loaded = s.fetchScript(ctx, script.Src)
		}
		err := p.rt.Run(ctx, func(*goja.Runtime) error {
			if !loaded {
				p.bridge.ScriptFailed(script.Node)
				return nil
			}
			p.bridge.RunScriptElement(script.Node, script.Name, code)
			return nil
		})
		if err != nil {
			return fmt.Errorf("running %s: %w", script.Name, err)
		}
	}

	if err := p.rt.Run(ctx, func(*goja.Runtime) error {
		p.bridge.FireDOMContentLoaded()
		return nil
	}); err != nil {
		return fmt.Errorf("firing DOMContentLoaded: %w", err)
	}
	if err := p.rt.Run(ctx, func(*goja.Runtime) error {
		p.bridge.FireLoad()
		return nil
	}); err != nil {
		return fmt.Errorf("firing load: %w", err)
	}
	s.logger.Debug("Document loaded.", zap.String("url", s.CurrentURL()))
	return nil
}

// fetchScript loads an external script body. An unreachable script or an
// error status counts as a failed load.
func (s *Session) fetchScript(ctx context.Context, src string) (string, bool) {
	if src == "" {
		return "", false
	}
	resp, err := s.fetch(ctx, http.MethodGet, src, nil, "", s.CurrentURL(), nil)
	if err != nil {
		s.logger.Debug("Script failed to load", zap.String("src", src), zap.Error(err))
		return "", false
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		s.logger.Debug("Script failed to load", zap.String("src", src), zap.Int("status", resp.StatusCode))
		return "", false
	}
	body, err := decodedBody(resp)
	if err != nil {
		s.logger.Debug("Failed to read script", zap.String("src", src), zap.Error(err))
		return "", false
	}
	return string(body), true
}

// fetch sends a request and follows redirects the way a browser does:
// 301, 302 and 303 turn into GET, 307 and 308 keep the method and body.
func (s *Session) fetch(ctx context.Context, method, rawURL string, body []byte, contentType, referrer string, header http.Header) (*http.Response, error) {
	if method == "" {
		method = http.MethodGet
	}
	maxRedirects := s.cfg.Network().MaxRedirects
	for i := 0; ; i++ {
		req, err := http.NewRequestWithContext(ctx, method, stripFragment(rawURL), bodyReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to create request for '%s': %w", rawURL, err)
		}
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		if contentType != "" && len(body) > 0 {
			req.Header.Set("Content-Type", contentType)
		}
		if referrer != "" {
			req.Header.Set("Referer", stripFragment(referrer))
		}

		s.logger.Debug("Executing request", zap.String("method", method), zap.String("url", req.URL.String()))
		resp, err := s.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}

		location := resp.Header.Get("Location")
		if resp.StatusCode < 300 || resp.StatusCode >= 400 || resp.StatusCode == http.StatusNotModified || location == "" {
			return resp, nil
		}
		_ = resp.Body.Close()
		if i >= maxRedirects {
			return nil, fmt.Errorf("maximum number of redirects (%d) exceeded", maxRedirects)
		}

		next, err := req.URL.Parse(location)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redirect Location '%s': %w", location, err)
		}
		switch resp.StatusCode {
		case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther:
			if method != http.MethodHead {
				method = http.MethodGet
			}
			body, contentType = nil, ""
		}
		rawURL = next.String()
	}
}

func bodyReader(body []byte) io.Reader {
	if body == nil {
		return nil
	}
	return bytes.NewReader(body)
}

func stripFragment(raw string) string {
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		return raw[:i]
	}
	return raw
}

// parseDocument decodes the body using the declared or sniffed charset and
// parses it as HTML.
func parseDocument(resp *http.Response) (*html.Node, error) {
	defer resp.Body.Close()
	r, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("unsupported charset: %w", err)
	}
	return htmlquery.Parse(r)
}

// decodedBody reads a sub-resource body, converting it to UTF-8 when the
// response declares another charset.
func decodedBody(resp *http.Response) ([]byte, error) {
	_, params, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	label := strings.ToLower(params["charset"])
	if label == "" || label == "utf-8" || label == "utf8" {
		return io.ReadAll(resp.Body)
	}
	r, err := charset.NewReaderLabel(label, resp.Body)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", label, err)
	}
	return io.ReadAll(r)
}
