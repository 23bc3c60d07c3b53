// internal/browser/session/environment.go
package session

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/xkilldash9x/alertbench/api/schemas"
	"github.com/xkilldash9x/alertbench/internal/browser/jsbind"
)

// pageEnv is the jsbind.BrowserEnvironment of one document. Calls from a
// document that has been replaced are ignored.
type pageEnv struct {
	s *Session
	p *page
}

var _ jsbind.BrowserEnvironment = (*pageEnv)(nil)

func (e *pageEnv) current() (*url.URL, bool) {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	if e.s.closed || e.s.page != e.p || e.s.currentURL == nil {
		return nil, false
	}
	u := *e.s.currentURL
	return &u, true
}

func (e *pageEnv) CurrentURL() string {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	if e.s.currentURL == nil {
		return "about:blank"
	}
	return e.s.currentURL.String()
}

func (e *pageEnv) ResolveURL(ref string) (string, error) {
	base, err := url.Parse(e.CurrentURL())
	if err != nil {
		return "", err
	}
	u, err := base.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// JSNavigate applies fragment navigations at once and queues document
// loads until the running script has finished. A later request replaces
// one that has not started yet.
func (e *pageEnv) JSNavigate(req schemas.NavigationRequest) {
	cur, ok := e.current()
	if !ok {
		return
	}
	target, err := url.Parse(req.URL)
	if err != nil {
		e.s.logger.Debug("Ignoring navigation to invalid URL", zap.String("url", req.URL), zap.Error(err))
		return
	}
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	if req.Method == http.MethodGet && strings.Contains(req.URL, "#") && sameDocument(cur, target) {
		e.navigateFragment(cur, target, req.Replace)
		return
	}

	e.s.mu.Lock()
	e.p.pendingNav = &req
	scheduled := e.p.navScheduled
	e.p.navScheduled = true
	e.s.mu.Unlock()
	if scheduled {
		return
	}

	referrer := cur.String()
	e.s.afterCurrentTask(e.p, func(ctx context.Context) {
		e.s.mu.Lock()
		next := e.p.pendingNav
		e.p.pendingNav, e.p.navScheduled = nil, false
		e.s.mu.Unlock()
		if next == nil {
			return
		}
		if err := e.s.navigate(ctx, navigation{req: *next, referrer: referrer}); err != nil {
			e.s.logger.Warn("Script navigation failed", zap.String("url", next.URL), zap.Error(err))
			e.s.reportNavigationError(e.p, next.URL, err)
		}
	})
}

// sameDocument reports whether a and b differ at most in their fragment.
func sameDocument(a, b *url.URL) bool {
	x, y := *a, *b
	x.Fragment, x.RawFragment = "", ""
	y.Fragment, y.RawFragment = "", ""
	return x.String() == y.String()
}

func (e *pageEnv) navigateFragment(cur, target *url.URL, replace bool) {
	oldURL, newURL := cur.String(), target.String()
	e.s.mu.Lock()
	e.s.currentURL = target
	entry := &historyEntry{HistoryState: schemas.HistoryState{URL: newURL}, doc: e.p.id}
	if replace {
		e.s.history.replace(entry)
	} else {
		e.s.history.push(entry)
	}
	e.s.mu.Unlock()

	if oldURL == newURL {
		return
	}
	e.p.rt.Go("hashchange", func() func(vm *goja.Runtime) {
		return func(*goja.Runtime) { e.p.bridge.DispatchHashChange(oldURL, newURL) }
	})
}

// ExecuteFetch performs a request for XMLHttpRequest or a dynamically
// inserted script. It may be called off the loop.
func (e *pageEnv) ExecuteFetch(ctx context.Context, req schemas.FetchRequest) (*schemas.FetchResponse, error) {
	fctx, cancel := CombineContext(e.s.ctx, ctx)
	defer cancel()

	header := make(http.Header)
	var contentType string
	for _, h := range req.Headers {
		if strings.EqualFold(h.Name, "Content-Type") {
			contentType = h.Value
			continue
		}
		header.Add(h.Name, h.Value)
	}
	resp, err := e.s.fetch(fctx, req.Method, req.URL, req.Body, contentType, e.CurrentURL(), header)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body []byte
	if isText(resp.Header.Get("Content-Type")) {
		body, err = decodedBody(resp)
	} else {
		body, err = io.ReadAll(resp.Body)
	}
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	keys := make([]string, 0, len(resp.Header))
	for k := range resp.Header {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	headers := make([]schemas.NVPair, 0, len(keys))
	for _, k := range keys {
		for _, v := range resp.Header[k] {
			headers = append(headers, schemas.NVPair{Name: k, Value: v})
		}
	}

	return &schemas.FetchResponse{
		URL:        resp.Request.URL.String(),
		Status:     resp.StatusCode,
		StatusText: strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode))),
		Headers:    headers,
		Body:       body,
	}, nil
}

func isText(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.HasPrefix(ct, "text/") || strings.Contains(ct, "xml") ||
		strings.Contains(ct, "json") || strings.Contains(ct, "javascript")
}

// AddCookieFromString stores a cookie set through document.cookie.
// HttpOnly cookies cannot be created from script.
func (e *pageEnv) AddCookieFromString(cookieStr string) error {
	cur, ok := e.current()
	if !ok {
		return nil
	}
	c, err := http.ParseSetCookie(cookieStr)
	if err != nil {
		return fmt.Errorf("invalid cookie %q: %w", cookieStr, err)
	}
	if c.HttpOnly {
		return nil
	}
	e.s.jar.SetCookies(cur, []*http.Cookie{c})
	return nil
}

func (e *pageEnv) GetCookieString() (string, error) {
	cur, ok := e.current()
	if !ok {
		return "", nil
	}
	cookies := e.s.jar.Cookies(cur)
	parts := make([]string, len(cookies))
	for i, c := range cookies {
		parts[i] = c.Name + "=" + c.Value
	}
	return strings.Join(parts, "; "), nil
}

func (e *pageEnv) PushHistory(state *schemas.HistoryState) error {
	return e.updateHistory(state, false)
}

func (e *pageEnv) ReplaceHistory(state *schemas.HistoryState) error {
	return e.updateHistory(state, true)
}

func (e *pageEnv) updateHistory(state *schemas.HistoryState, replace bool) error {
	u, err := url.Parse(state.URL)
	if err != nil {
		return fmt.Errorf("invalid history URL %q: %w", state.URL, err)
	}
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	if e.s.closed || e.s.page != e.p {
		return nil
	}
	entry := &historyEntry{HistoryState: *state, doc: e.p.id}
	if replace {
		if cur := e.s.history.current(); cur != nil {
			entry.method, entry.body, entry.ctype = cur.method, cur.body, cur.ctype
		}
		e.s.history.replace(entry)
	} else {
		e.s.history.push(entry)
	}
	e.s.currentURL = u
	return nil
}

func (e *pageEnv) GetHistoryLength() int {
	return e.s.HistoryLength()
}

func (e *pageEnv) GetCurrentHistoryState() interface{} {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	if cur := e.s.history.current(); cur != nil {
		return cur.State
	}
	return nil
}

// TraverseHistory queues back, forward and go(n). Entries of the current
// document fire popstate; other entries load their document again.
func (e *pageEnv) TraverseHistory(delta int) {
	if _, ok := e.current(); !ok {
		return
	}
	e.s.afterCurrentTask(e.p, func(ctx context.Context) {
		e.s.mu.Lock()
		target, index, ok := e.s.history.at(delta)
		if !ok {
			e.s.mu.Unlock()
			return
		}
		cur := e.s.history.current()
		oldURL := e.s.currentURL.String()
		sameDoc := delta != 0 && target.doc == e.p.id
		if sameDoc {
			e.s.history.index = index
			e.s.currentURL, _ = url.Parse(target.URL)
		}
		e.s.mu.Unlock()

		if sameDoc {
			err := e.p.rt.Run(ctx, func(*goja.Runtime) error {
				e.p.bridge.DispatchPopState(target.State)
				if oldURL != target.URL && stripFragment(oldURL) == stripFragment(target.URL) && cur != nil && cur.State == nil && target.State == nil {
					e.p.bridge.DispatchHashChange(oldURL, target.URL)
				}
				return nil
			})
			if err != nil {
				e.s.logger.Debug("Failed to dispatch popstate", zap.Error(err))
			}
			return
		}

		method := target.method
		if method == "" {
			method = http.MethodGet
		}
		nav := navigation{
			req:      schemas.NavigationRequest{URL: target.URL, Method: method, Body: target.body, ContentType: target.ctype},
			traverse: true,
			index:    index,
		}
		if err := e.s.navigate(ctx, nav); err != nil {
			e.s.logger.Warn("History traversal failed", zap.String("url", target.URL), zap.Error(err))
		}
	})
}

func (e *pageEnv) RecordDialog(kind schemas.DialogKind, message string) {
	e.s.recordDialog(kind, message)
}
