// Package middleware hosts process-wide Prometheus instrumentation for
// the live runtime, grounded on the teacher's pkg/middleware Prometheus
// collector (itself adapted here from per-event vdom metrics to
// per-connection/room/upload metrics).
package middleware

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Config configures the metrics collector.
type Config struct {
	Namespace   string
	Subsystem   string
	ConstLabels prometheus.Labels
	Buckets     []float64
	Registry    prometheus.Registerer
}

// Option configures a Config.
type Option func(*Config)

func WithNamespace(namespace string) Option { return func(c *Config) { c.Namespace = namespace } }
func WithSubsystem(subsystem string) Option { return func(c *Config) { c.Subsystem = subsystem } }
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) { c.ConstLabels = labels }
}
func WithBuckets(buckets []float64) Option   { return func(c *Config) { c.Buckets = buckets } }
func WithRegistry(r prometheus.Registerer) Option { return func(c *Config) { c.Registry = r } }

func defaultConfig() Config {
	return Config{
		Namespace: "live",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Collector holds every gauge/counter/histogram the runtime publishes.
type Collector struct {
	ActionsTotal       *prometheus.CounterVec
	ActionDuration     *prometheus.HistogramVec
	ActionErrors       *prometheus.CounterVec
	StateUpdatesSent   prometheus.Counter
	ActiveConnections  prometheus.Gauge
	OfflineConnections prometheus.Gauge
	ConnectionMemory   prometheus.Histogram
	WebSocketErrors    *prometheus.CounterVec
	ReconnectsTotal    prometheus.Counter
	RoomsActive        prometheus.Gauge
	RoomEmitsTotal     *prometheus.CounterVec
	UploadsCompleted   prometheus.Counter
	UploadsRejected    *prometheus.CounterVec
	AuthDenials        *prometheus.CounterVec
}

var (
	global     *Collector
	globalOnce sync.Once
	globalMu   sync.Mutex
)

// New builds a Collector registered against config.Registry.
func New(opts ...Option) *Collector {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Collector{
		ActionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace, Subsystem: config.Subsystem,
			Name: "actions_total", Help: "Total component actions dispatched", ConstLabels: config.ConstLabels,
		}, []string{"component", "status"}),
		ActionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: config.Namespace, Subsystem: config.Subsystem,
			Name: "action_duration_seconds", Help: "Action dispatch duration", ConstLabels: config.ConstLabels, Buckets: config.Buckets,
		}, []string{"component"}),
		ActionErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace, Subsystem: config.Subsystem,
			Name: "action_errors_total", Help: "Total action errors", ConstLabels: config.ConstLabels,
		}, []string{"component", "kind"}),
		StateUpdatesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace, Subsystem: config.Subsystem,
			Name: "state_updates_total", Help: "Total STATE_UPDATE messages sent", ConstLabels: config.ConstLabels,
		}),
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: config.Namespace, Subsystem: config.Subsystem,
			Name: "active_connections", Help: "Number of active WebSocket connections", ConstLabels: config.ConstLabels,
		}),
		OfflineConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: config.Namespace, Subsystem: config.Subsystem,
			Name: "offline_connections", Help: "Connections with a non-empty offline queue", ConstLabels: config.ConstLabels,
		}),
		ConnectionMemory: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: config.Namespace, Subsystem: config.Subsystem,
			Name: "connection_memory_bytes", Help: "Estimated memory per connection", ConstLabels: config.ConstLabels,
			Buckets: []float64{1024, 10240, 102400, 1048576, 10485760},
		}),
		WebSocketErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace, Subsystem: config.Subsystem,
			Name: "websocket_errors_total", Help: "Total WebSocket errors by type", ConstLabels: config.ConstLabels,
		}, []string{"type"}),
		ReconnectsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace, Subsystem: config.Subsystem,
			Name: "reconnects_total", Help: "Total rehydration-based reconnections", ConstLabels: config.ConstLabels,
		}),
		RoomsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: config.Namespace, Subsystem: config.Subsystem,
			Name: "rooms_active", Help: "Number of non-empty rooms", ConstLabels: config.ConstLabels,
		}),
		RoomEmitsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace, Subsystem: config.Subsystem,
			Name: "room_emits_total", Help: "Total room emits by event", ConstLabels: config.ConstLabels,
		}, []string{"event"}),
		UploadsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace, Subsystem: config.Subsystem,
			Name: "uploads_completed_total", Help: "Total uploads completed", ConstLabels: config.ConstLabels,
		}),
		UploadsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace, Subsystem: config.Subsystem,
			Name: "uploads_rejected_total", Help: "Total uploads rejected by reason", ConstLabels: config.ConstLabels,
		}, []string{"reason"}),
		AuthDenials: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace, Subsystem: config.Subsystem,
			Name: "auth_denials_total", Help: "Total authorization denials by surface", ConstLabels: config.ConstLabels,
		}, []string{"surface"}),
	}
}

// Global lazily initializes and returns the process-wide collector.
func Global() *Collector {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalOnce.Do(func() {
		global = New()
	})
	return global
}
