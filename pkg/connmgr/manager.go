// Package connmgr implements the Connection Manager (spec.md §4.C):
// registration, per-connection metrics, named pools, load balancing,
// heartbeat/latency tracking, health scoring, and offline message
// queueing. Grounded on the teacher's pkg/session Manager (LRU eviction,
// per-IP limiting, container/list bookkeeping), generalized from
// resumable UI sessions to live WebSocket connections.
package connmgr

import (
	"container/list"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Transport is the capability interface every concrete socket type is
// adapted to (spec.md §9 "Duck-typed ... define a transport capability
// interface"). The gateway's gorilla/websocket connection implements it.
type Transport interface {
	Send(messageType int, data []byte) error
	Close() error
	IsOpen() bool
	Ping() error
}

// Status is a connection's lifecycle state.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// Connection tracks one live WebSocket peer (spec.md §3 "Connection").
type Connection struct {
	ID            string
	IP            string
	ConnectedAt   time.Time
	LastActivity  time.Time
	MessagesSent  int64
	MessagesRecv  int64
	BytesSent     int64
	BytesRecv     int64
	Errors        int64
	Reconnects    int64
	LatencyMillis float64
	Status        Status
	UserID        string
	Components    map[string]struct{}

	transport   Transport
	limiter     *rate.Limiter
	offline     *offlineQueue
	lastPing    time.Time
	pingPending bool

	mu sync.Mutex
}

// newConnection constructs a Connection with a fresh rate limiter and
// offline queue per the spec's defaults (100 token bucket, 50/sec
// refill; bounded offline queue).
func newConnection(id, ip string, transport Transport, cfg Config) *Connection {
	return &Connection{
		ID:           id,
		IP:           ip,
		ConnectedAt:  time.Now(),
		LastActivity: time.Now(),
		Status:       StatusOpen,
		Components:   make(map[string]struct{}),
		transport:    transport,
		limiter:      rate.NewLimiter(rate.Limit(cfg.RateLimitRefillPerSec), cfg.RateLimitBurst),
		offline:      newOfflineQueue(cfg.OfflineQueueSize),
	}
}

// Allow consumes one token from the connection's rate limiter.
func (c *Connection) Allow() bool { return c.limiter.Allow() }

// IsOpen reports whether the underlying transport is writable.
func (c *Connection) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Status == StatusOpen && c.transport != nil && c.transport.IsOpen()
}

func (c *Connection) touch() {
	c.mu.Lock()
	c.LastActivity = time.Now()
	c.mu.Unlock()
}

// QueueLen reports the connection's pending offline queue length, used
// by the least-connections load balancing strategy.
func (c *Connection) QueueLen() int { return c.offline.Len() }

// Config configures the Connection Manager.
type Config struct {
	MaxConnections        int
	MaxConnectionsPerIP   int
	HeartbeatInterval     time.Duration
	HealthCheckInterval   time.Duration
	UnhealthyLatency      time.Duration
	DegradedIdleMultiple  int
	OfflineQueueSize      int
	RateLimitBurst        int
	RateLimitRefillPerSec float64
	EvictionPolicy        EvictionPolicy
}

// EvictionPolicy selects which connection is dropped when MaxConnections
// is exceeded by a new registration.
type EvictionPolicy int

const (
	EvictionLRU EvictionPolicy = iota
	EvictionOldest
	EvictionRandom
)

// DefaultConfig returns the baseline configuration (spec.md §3, §4.C).
func DefaultConfig() Config {
	return Config{
		MaxConnections:        10000,
		MaxConnectionsPerIP:   100,
		HeartbeatInterval:     30 * time.Second,
		HealthCheckInterval:   30 * time.Second,
		UnhealthyLatency:      5 * time.Second,
		DegradedIdleMultiple:  2,
		OfflineQueueSize:      1000,
		RateLimitBurst:        100,
		RateLimitRefillPerSec: 50,
		EvictionPolicy:        EvictionLRU,
	}
}

var (
	ErrMaxConnectionsReached = errors.New("maximum connection limit reached")
	ErrTooManyFromIP         = errors.New("too many connections from this IP address")
	ErrConnectionNotFound    = errors.New("connection not found")
	ErrManagerStopped        = errors.New("connection manager is stopped")
)

// Manager is the Connection Manager.
type Manager struct {
	mu sync.RWMutex

	connections map[string]*Connection
	byIP        map[string]int
	lru         *list.List
	lruIndex    map[string]*list.Element
	pools       map[string]map[string]struct{} // pool name -> connection ids

	config Config
	logger *slog.Logger
	randN  func(int) int
	rrState *roundRobinState

	done    chan struct{}
	stopped bool
}

// NewManager builds a Connection Manager and starts its heartbeat/health
// background loops.
func NewManager(config Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		connections: make(map[string]*Connection),
		byIP:        make(map[string]int),
		lru:         list.New(),
		lruIndex:    make(map[string]*list.Element),
		pools:       make(map[string]map[string]struct{}),
		config:      config,
		logger:      logger.With("component", "connection_manager"),
		randN:       rand.IntN,
		done:        make(chan struct{}),
	}
	go m.heartbeatLoop()
	go m.healthLoop()
	return m
}

// Register adds a new connection, enforcing the global and per-IP
// maximums (spec.md §4.C "Registration").
func (m *Manager) Register(id, ip string, transport Transport) (*Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil, ErrManagerStopped
	}
	if m.config.MaxConnectionsPerIP > 0 && m.byIP[ip] >= m.config.MaxConnectionsPerIP {
		return nil, ErrTooManyFromIP
	}
	if m.config.MaxConnections > 0 && len(m.connections) >= m.config.MaxConnections {
		m.evictOneLocked()
	}
	if m.config.MaxConnections > 0 && len(m.connections) >= m.config.MaxConnections {
		return nil, ErrMaxConnectionsReached
	}

	conn := newConnection(id, ip, transport, m.config)
	m.connections[id] = conn
	m.byIP[ip]++
	elem := m.lru.PushFront(id)
	m.lruIndex[id] = elem

	m.logger.Debug("connection registered", "id", id, "ip", ip)
	return conn, nil
}

// Get retrieves a connection by id.
func (m *Manager) Get(id string) (*Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.connections[id]
	return c, ok
}

// Touch marks a connection as recently active and moves it to the front
// of the LRU list.
func (m *Manager) Touch(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if conn, ok := m.connections[id]; ok {
		conn.touch()
	}
	if elem, ok := m.lruIndex[id]; ok {
		m.lru.MoveToFront(elem)
	}
}

// Remove unregisters a connection and drops it from all pools.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(id)
}

func (m *Manager) removeLocked(id string) {
	conn, exists := m.connections[id]
	if !exists {
		return
	}
	delete(m.connections, id)
	m.byIP[conn.IP]--
	if m.byIP[conn.IP] <= 0 {
		delete(m.byIP, conn.IP)
	}
	if elem, ok := m.lruIndex[id]; ok {
		m.lru.Remove(elem)
		delete(m.lruIndex, id)
	}
	for _, members := range m.pools {
		delete(members, id)
	}
	m.logger.Debug("connection removed", "id", id)
}

func (m *Manager) evictOneLocked() {
	if m.lru.Len() == 0 {
		return
	}
	var id string
	switch m.config.EvictionPolicy {
	case EvictionOldest:
		var oldestID string
		var oldestAt time.Time
		found := false
		for e := m.lru.Front(); e != nil; e = e.Next() {
			cid := e.Value.(string)
			conn := m.connections[cid]
			if conn == nil {
				continue
			}
			if !found || conn.ConnectedAt.Before(oldestAt) {
				found = true
				oldestID = cid
				oldestAt = conn.ConnectedAt
			}
		}
		id = oldestID
	case EvictionRandom:
		n := m.lru.Len()
		idx := m.randN(n)
		e := m.lru.Front()
		for i := 0; i < idx && e != nil; i++ {
			e = e.Next()
		}
		if e != nil {
			id = e.Value.(string)
		}
	default: // EvictionLRU
		if back := m.lru.Back(); back != nil {
			id = back.Value.(string)
		}
	}
	if id == "" {
		return
	}
	if conn, ok := m.connections[id]; ok && conn.transport != nil {
		_ = conn.transport.Close()
	}
	m.removeLocked(id)
}

// JoinPool adds a connection id to a named pool.
func (m *Manager) JoinPool(pool, connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pools[pool] == nil {
		m.pools[pool] = make(map[string]struct{})
	}
	m.pools[pool][connID] = struct{}{}
}

// LeavePool removes a connection id from a named pool.
func (m *Manager) LeavePool(pool, connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if members, ok := m.pools[pool]; ok {
		delete(members, connID)
	}
}

// poolSnapshot returns the live, writable connections currently in a
// pool.
func (m *Manager) poolSnapshot(pool string) []*Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	members := m.pools[pool]
	out := make([]*Connection, 0, len(members))
	for id := range members {
		if conn, ok := m.connections[id]; ok && conn.IsOpen() {
			out = append(out, conn)
		}
	}
	return out
}

// Shutdown stops background loops and closes every connection.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	close(m.done)
	conns := make([]*Connection, 0, len(m.connections))
	for _, c := range m.connections {
		conns = append(conns, c)
	}
	m.mu.Unlock()

	for _, c := range conns {
		if c.transport != nil {
			_ = c.transport.Close()
		}
	}
}

// Stats summarizes manager state for the HTTP management surface.
type Stats struct {
	Total     int
	Open      int
	UniqueIPs int
	Pools     int
}

func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	open := 0
	for _, c := range m.connections {
		if c.IsOpen() {
			open++
		}
	}
	return Stats{
		Total:     len(m.connections),
		Open:      open,
		UniqueIPs: len(m.byIP),
		Pools:     len(m.pools),
	}
}
