// Package gateway hosts the WebSocket Dispatcher and HTTP management
// surface (spec.md §4.G, §6): the thin multiplexer that authenticates
// a connection, decodes each inbound frame, and routes it to the
// Registry, Room Manager, or Upload Manager, then serializes the
// result back onto the wire through the Connection Manager. Grounded
// on the teacher's pkg/server Server (HTTP+WS listener, graceful
// shutdown, trusted-proxy cookie policy), generalized from a vdom
// patch session to the Live Components message protocol.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/liveframe/live/internal/envconfig"
	"github.com/liveframe/live/internal/registry"
	"github.com/liveframe/live/pkg/authgate"
	"github.com/liveframe/live/pkg/connmgr"
	"github.com/liveframe/live/pkg/middleware"
	"github.com/liveframe/live/pkg/rooms"
	"github.com/liveframe/live/pkg/signature"
	"github.com/liveframe/live/pkg/upload"
)

// Gateway is the process composition root (spec.md §9 "Ambient
// singletons ... a single process-wide composition root constructed at
// startup and threaded explicitly"): it owns the HTTP server and holds
// references to every subsystem the dispatcher routes into.
type Gateway struct {
	config *Config
	env    *envconfig.Config
	logger *slog.Logger

	signer   *signature.Engine
	gate     *authgate.Gate
	conns    *connmgr.Manager
	rooms    *rooms.Manager
	registry *registry.Registry
	uploads  *upload.Manager
	metrics  *middleware.Collector

	upgrader       websocket.Upgrader
	trustedProxies *proxyMatcher
	cookiePolicy   *CookiePolicy

	httpServer *http.Server
	startedAt  time.Time

	debug *debugHub
}

// Deps bundles the already-constructed subsystems a Gateway multiplexes
// across. The caller (cmd/liveserver) owns their lifecycle.
type Deps struct {
	Signer   *signature.Engine
	Gate     *authgate.Gate
	Conns    *connmgr.Manager
	Rooms    *rooms.Manager
	Registry *registry.Registry
	Uploads  *upload.Manager
	Metrics  *middleware.Collector
}

// New builds a Gateway and its HTTP router.
func New(cfg *Config, env *envconfig.Config, deps Deps, logger *slog.Logger) *Gateway {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = middleware.Global()
	}

	g := &Gateway{
		config:         cfg,
		env:            env,
		logger:         logger.With("component", "gateway"),
		signer:         deps.Signer,
		gate:           deps.Gate,
		conns:          deps.Conns,
		rooms:          deps.Rooms,
		registry:       deps.Registry,
		uploads:        deps.Uploads,
		metrics:        deps.Metrics,
		trustedProxies: newProxyMatcher(cfg.TrustedProxies, logger),
		debug:          newDebugHub(256),
		startedAt:      time.Now(),
		upgrader: websocket.Upgrader{
			HandshakeTimeout: cfg.HandshakeTimeout,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
		},
	}
	g.cookiePolicy = newCookiePolicy(cfg, g.trustedProxies, logger)
	g.upgrader.CheckOrigin = g.checkOrigin

	g.registry.OnRecovered(g.onComponentRecovered)

	return g
}

// Router builds the HTTP mux for the WebSocket endpoint, the read-only
// management surface, and the debug channel (spec.md §6).
func (g *Gateway) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/api/live/ws", g.handleWebSocket)

	r.Get("/api/live/stats", g.handleStats)
	r.Get("/api/live/health", g.handleHealth)
	r.Get("/api/live/connections", g.handleConnections)
	r.Get("/api/live/connections/{id}", g.handleConnection)
	r.Get("/api/live/pools/{id}/stats", g.handlePoolStats)
	r.Get("/api/live/performance/dashboard", g.handlePerformanceDashboard)
	r.Get("/api/live/performance/components/{id}", g.handlePerformanceComponent)
	r.Post("/api/live/performance/alerts/{id}/resolve", g.handleResolveAlert)

	r.Get("/api/live/debug/ws", g.handleDebugWebSocket)
	r.Get("/api/live/debug/snapshot", g.handleDebugSnapshot)
	r.Get("/api/live/debug/events", g.handleDebugEvents)
	r.Post("/api/live/debug/toggle", g.handleDebugToggle)
	r.Post("/api/live/debug/clear", g.handleDebugClear)

	r.Handle("/metrics", promhttp.Handler())

	return r
}

// Run starts the HTTP/WebSocket server and blocks until ctx is
// cancelled, then drains in-flight connections within the configured
// shutdown timeout (spec.md §5 "Closing a connection cancels all
// in-flight work tagged to it").
func (g *Gateway) Run(ctx context.Context) error {
	g.httpServer = &http.Server{
		Addr:         g.config.Address,
		Handler:      g.Router(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("gateway listening", "address", g.config.Address)
		if err := g.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return g.Shutdown()
	}
}

// Shutdown drains the HTTP server and stops every subsystem's
// background loops.
func (g *Gateway) Shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), g.config.ShutdownTimeout)
	defer cancel()

	var err error
	if g.httpServer != nil {
		err = g.httpServer.Shutdown(shutdownCtx)
	}
	g.conns.Shutdown()
	g.uploads.Stop()
	g.registry.Stop()
	g.signer.Close()
	return err
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	if len(g.config.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range g.config.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

func (g *Gateway) onComponentRecovered(componentID string) {
	msg := fmt.Sprintf("COMPONENT_RECOVERED:%s", componentID)
	g.debug.record("lifecycle", msg)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
