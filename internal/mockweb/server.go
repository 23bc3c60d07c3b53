package mockweb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/elazarl/goproxy"
	"go.uber.org/zap"
)

// Server exposes a MockConnection over HTTP so an external browser can load
// the same pages the in-process session sees. It answers both proxy-style
// requests (absolute URLs, when the browser is configured with
// --proxy-server) and direct requests, which are resolved against BaseHost.
type Server struct {
	conn     *MockConnection
	proxy    *goproxy.ProxyHttpServer
	baseHost string
	logger   *zap.Logger

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// NewServer wires a goproxy server in front of conn. baseHost (e.g.
// "localhost:12345") supplies the host for direct, non-proxy requests.
func NewServer(conn *MockConnection, baseHost string, verbose bool, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := goproxy.NewProxyHttpServer()
	p.Verbose = verbose

	s := &Server{
		conn:     conn,
		proxy:    p,
		baseHost: baseHost,
		logger:   logger.Named("mock_server"),
	}
	p.OnRequest().DoFunc(s.handleRequest)
	p.NonproxyHandler = http.HandlerFunc(s.serveDirect)
	return s
}

// handleRequest answers every proxied request from the mock table; nothing is
// forwarded upstream.
func (s *Server) handleRequest(r *http.Request, ctx *goproxy.ProxyCtx) (*http.Request, *http.Response) {
	resp, err := s.conn.RoundTrip(r)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, ErrNoResponse) {
			status = http.StatusNotFound
		}
		s.logger.Warn("Mock lookup failed.", zap.String("url", getRequestURL(ctx)), zap.Error(err))
		return r, goproxy.NewResponse(r, goproxy.ContentTypeText, status, err.Error())
	}
	return r, resp
}

// serveDirect handles requests addressed to the server itself.
func (s *Server) serveDirect(w http.ResponseWriter, r *http.Request) {
	u := *r.URL
	u.Scheme = "http"
	u.Host = s.baseHost
	if u.Host == "" {
		u.Host = r.Host
	}
	outReq := r.Clone(r.Context())
	outReq.URL = &u
	outReq.RequestURI = ""

	_, resp := s.handleRequest(outReq, &goproxy.ProxyCtx{Req: outReq})
	defer resp.Body.Close()
	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		s.logger.Debug("Client went away while writing mock body.", zap.Error(err))
	}
}

// Start begins listening on addr and serves in the background. It returns the
// bound address, which differs from addr when addr uses port 0.
func (s *Server) Start(addr string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return "", fmt.Errorf("mock server already started on %s", s.listener.Addr())
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = ln
	s.server = &http.Server{
		Handler:           s.proxy,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Mock server stopped unexpectedly.", zap.Error(err))
		}
	}()
	s.logger.Info("Mock server listening.", zap.String("addr", ln.Addr().String()))
	return ln.Addr().String(), nil
}

// Shutdown stops the server, waiting for in-flight requests until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Handler exposes the underlying handler, mainly for httptest.
func (s *Server) Handler() http.Handler { return s.proxy }

func getRequestURL(ctx *goproxy.ProxyCtx) string {
	if ctx != nil && ctx.Req != nil && ctx.Req.URL != nil {
		return ctx.Req.URL.String()
	}
	return "unknown"
}
