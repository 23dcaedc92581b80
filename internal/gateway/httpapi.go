package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// handleStats serves GET /api/live/stats: registry-wide instance counts
// by class and health, plus connection totals (spec.md §6). Room totals
// are not included.
func (g *Gateway) handleStats(w http.ResponseWriter, r *http.Request) {
	regStats := g.registry.Stats()
	connStats := g.conns.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"components":  regStats,
		"connections": connStats,
	})
}

// handleHealth serves GET /api/live/health: process uptime and a coarse
// liveness signal.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(g.startedAt).String(),
	})
}

// handleConnections serves GET /api/live/connections.
func (g *Gateway) handleConnections(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, g.conns.Snapshots())
}

// handleConnection serves GET /api/live/connections/{id}.
func (g *Gateway) handleConnection(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, ok := g.conns.SnapshotOne(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handlePoolStats serves GET /api/live/pools/{id}/stats.
func (g *Gateway) handlePoolStats(w http.ResponseWriter, r *http.Request) {
	pool := chi.URLParam(r, "id")
	stats, ok := g.conns.PoolStatsFor(pool)
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handlePerformanceDashboard serves GET /api/live/performance/dashboard:
// every live instance's accumulated metrics.
func (g *Gateway) handlePerformanceDashboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, g.registry.Instances())
}

// handlePerformanceComponent serves GET
// /api/live/performance/components/{id}.
func (g *Gateway) handlePerformanceComponent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, ok := g.registry.InstanceSnapshot(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleResolveAlert serves POST
// /api/live/performance/alerts/{id}/resolve. The runtime raises no
// standing alerts of its own (health degradation is visible via
// /stats and /performance/dashboard instead); this endpoint just acks
// so an operator's alert-tracking tool has somewhere to post to.
func (g *Gateway) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	g.debug.record("performance", "alert resolved: "+id)
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "resolved": true})
}

// handleDebugSnapshot serves GET /api/live/debug/snapshot.
func (g *Gateway) handleDebugSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, g.debug.snapshot())
}

// handleDebugEvents serves GET /api/live/debug/events (alias of
// snapshot; kept separate since the debug channel distinguishes a
// point-in-time snapshot from a tailed event stream per spec.md §6).
func (g *Gateway) handleDebugEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, g.debug.snapshot())
}

type debugTogglePayload struct {
	Enabled bool `json:"enabled"`
}

// handleDebugToggle serves POST /api/live/debug/toggle.
func (g *Gateway) handleDebugToggle(w http.ResponseWriter, r *http.Request) {
	var p debugTogglePayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}
	g.debug.setEnabled(p.Enabled)
	writeJSON(w, http.StatusOK, map[string]any{"enabled": p.Enabled})
}

// handleDebugClear serves POST /api/live/debug/clear.
func (g *Gateway) handleDebugClear(w http.ResponseWriter, r *http.Request) {
	g.debug.clear()
	writeJSON(w, http.StatusOK, map[string]any{"cleared": true})
}

// handleDebugWebSocket serves the live debug event stream at
// /api/live/debug/ws: every event recorded after connect is forwarded
// until the client disconnects.
func (g *Gateway) handleDebugWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ch := g.debug.subscribe()
	defer g.debug.unsubscribe(ch)

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for ev := range ch {
		encoded, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, encoded); err != nil {
			return
		}
	}
}
