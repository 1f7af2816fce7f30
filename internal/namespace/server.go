// Package namespace translates the hierarchical path+op surface of §6.1
// into calls against the orchestrator, over plain HTTP for request/response
// paths and a WebSocket upgrade for the one watchable path
// (/sessions/<id>/output).
package namespace

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/asheshgoplani/claude-orchestrator/internal/logging"
	"github.com/asheshgoplani/claude-orchestrator/internal/mcppool"
	"github.com/asheshgoplani/claude-orchestrator/internal/orchestrator"
	"github.com/asheshgoplani/claude-orchestrator/internal/tunnelauth"
)

// Config defines runtime options for the namespace HTTP server.
type Config struct {
	ListenAddr string
	Token      string
}

// Server wraps the HTTP listener exposing the orchestrator's namespace.
type Server struct {
	cfg        Config
	httpServer *http.Server
	orch       *orchestrator.Orchestrator
	tunnels    *tunnelauth.State
	pool       *mcppool.Pool
	proxy      *mcppool.Proxy
	metrics    *metricsRegistry
	baseCtx    context.Context
	cancelBase context.CancelFunc
}

// NewServer builds the namespace HTTP surface over the given orchestrator
// and its tunnel-auth/pool/proxy side-state.
func NewServer(cfg Config, orch *orchestrator.Orchestrator, tunnels *tunnelauth.State, pool *mcppool.Pool, proxy *mcppool.Proxy) *Server {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:8787"
	}

	reg := prometheus.NewRegistry()
	s := &Server{
		cfg:     cfg,
		orch:    orch,
		tunnels: tunnels,
		pool:    pool,
		proxy:   proxy,
		metrics: newMetricsRegistry(reg),
	}
	s.baseCtx, s.cancelBase = context.WithCancel(context.Background())

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	mux.HandleFunc("/new", s.handleNew)
	mux.HandleFunc("/policy", s.handlePolicy)
	mux.HandleFunc("/usage", s.handleUsage)

	mux.HandleFunc("/providers", s.handleProvidersList)
	mux.HandleFunc("/providers/tunnel/endpoints", s.handleTunnelEndpoints)
	mux.HandleFunc("/providers/", s.handleProviderByID)

	mux.HandleFunc("/auth/tunnels", s.handleAuthTunnels)
	mux.HandleFunc("/auth/challenge", s.handleAuthChallenge)
	mux.HandleFunc("/auth/status", s.handleAuthStatus)

	mux.HandleFunc("/sessions/", s.handleSessionByID)

	mux.HandleFunc("/pool/config", s.handlePoolConfig)
	mux.HandleFunc("/pool/status", s.handlePoolStatus)
	mux.HandleFunc("/pool/metrics", s.handlePoolMetrics)

	mux.HandleFunc("/proxy/status", s.handleProxyStatus)
	mux.HandleFunc("/proxy/metrics", s.handleProxyMetrics)
	mux.HandleFunc("/proxy/allowlist", s.handleProxyAllowlist)

	mux.HandleFunc("/workers", s.handleWorkersList)
	mux.HandleFunc("/workers/", s.handleWorkerByID)

	mux.HandleFunc("/debug/logtail", s.handleDebugLogtail)

	handler := withRecover(s.authMiddleware(mux))

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		BaseContext:       func(_ net.Listener) context.Context { return s.baseCtx },
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) Addr() string { return s.httpServer.Addr }

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start runs the HTTP server and blocks until shutdown or error.
func (s *Server) Start() error {
	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server, force-closing if the context
// deadline is hit before long-lived connections (watch streams) drain.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancelBase != nil {
		s.cancelBase()
	}
	err := s.httpServer.Shutdown(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		if closeErr := s.httpServer.Close(); closeErr == nil {
			return nil
		} else {
			return fmt.Errorf("graceful shutdown timed out and force close failed: %w", closeErr)
		}
	}
	return err
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		if !s.authorizeRequest(r) {
			writeAPIError(w, http.StatusUnauthorized, "AUTH_REQUIRED", "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func withRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logging.ForComponent(logging.CompNamespace).Error("panic",
					"recover", fmt.Sprintf("%v", rec), "path", r.URL.Path)
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeAPIError(w, http.StatusNotFound, "NOT_FOUND", "route not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": []string{"providers", "new", "policy", "usage", "auth", "sessions", "workers", "pool", "proxy"},
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "time": time.Now().UTC().Format(time.RFC3339)})
}
