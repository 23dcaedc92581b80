package connmgr

import (
	"errors"
	"math/rand/v2"
)

// Strategy selects a connection from a pool snapshot (spec.md §4.C "Load
// balancing"). Only connections whose transport reports open are ever
// passed in.
type Strategy string

const (
	StrategyRoundRobin       Strategy = "round-robin"
	StrategyLeastConnections Strategy = "least-connections"
	StrategyRandom           Strategy = "random"
)

// Target is where a Send call delivers a message: a specific connection,
// a named pool (load-balanced), or every connection (broadcast).
type Target struct {
	ConnectionID string
	Pool         string
	Strategy     Strategy
	Broadcast    bool
}

// SendOptions controls fallback behavior when a target connection is not
// currently writable.
type SendOptions struct {
	QueueIfOffline bool
	Priority       Priority
}

var ErrNoEligibleConnection = errors.New("no eligible connection for target")

type roundRobinState struct {
	cursor map[string]int
}

func newRoundRobinState() *roundRobinState {
	return &roundRobinState{cursor: make(map[string]int)}
}

// Send delivers a message to the resolved target(s) per spec.md §4.C
// "Sending": if the peer is not writable and QueueIfOffline, enqueue
// with priority; otherwise serialize, write, and update counters.
func (m *Manager) Send(messageType int, payload []byte, target Target, opts SendOptions) error {
	switch {
	case target.Broadcast:
		m.mu.RLock()
		conns := make([]*Connection, 0, len(m.connections))
		for _, c := range m.connections {
			conns = append(conns, c)
		}
		m.mu.RUnlock()
		var firstErr error
		for _, c := range conns {
			if err := m.sendToConnection(c, messageType, payload, opts); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr

	case target.Pool != "":
		conns := m.poolSnapshot(target.Pool)
		if len(conns) == 0 {
			return ErrNoEligibleConnection
		}
		chosen := m.selectFromPool(target.Pool, conns, target.Strategy)
		if chosen == nil {
			return ErrNoEligibleConnection
		}
		return m.sendToConnection(chosen, messageType, payload, opts)

	default:
		conn, ok := m.Get(target.ConnectionID)
		if !ok {
			return ErrConnectionNotFound
		}
		return m.sendToConnection(conn, messageType, payload, opts)
	}
}

func (m *Manager) sendToConnection(c *Connection, messageType int, payload []byte, opts SendOptions) error {
	if !c.IsOpen() {
		if opts.QueueIfOffline {
			if c.offline.Enqueue(messageType, payload, opts.Priority) {
				return nil
			}
		}
		return errors.New("connection not writable")
	}

	if err := c.transport.Send(messageType, payload); err != nil {
		c.mu.Lock()
		c.Errors++
		c.mu.Unlock()
		if opts.QueueIfOffline {
			c.offline.Enqueue(messageType, payload, opts.Priority)
		}
		return err
	}

	c.mu.Lock()
	c.MessagesSent++
	c.BytesSent += int64(len(payload))
	c.mu.Unlock()
	return nil
}

// DrainOffline flushes a connection's offline queue once it becomes
// writable again, retrying failed sends up to the per-message budget.
func (m *Manager) DrainOffline(connID string) {
	conn, ok := m.Get(connID)
	if !ok || !conn.IsOpen() {
		return
	}
	for _, e := range conn.offline.Drain() {
		if err := conn.transport.Send(e.messageType, e.payload); err != nil {
			conn.offline.Requeue(e)
			continue
		}
		conn.mu.Lock()
		conn.MessagesSent++
		conn.BytesSent += int64(len(e.payload))
		conn.mu.Unlock()
	}
}

func (m *Manager) selectFromPool(pool string, conns []*Connection, strategy Strategy) *Connection {
	switch strategy {
	case StrategyLeastConnections:
		best := conns[0]
		bestLoad := best.MessagesSent + int64(best.QueueLen())
		for _, c := range conns[1:] {
			load := c.MessagesSent + int64(c.QueueLen())
			if load < bestLoad {
				best = c
				bestLoad = load
			}
		}
		return best
	case StrategyRandom:
		return conns[rand.IntN(len(conns))]
	default: // round-robin
		m.mu.Lock()
		if m.rrState == nil {
			m.rrState = newRoundRobinState()
		}
		idx := m.rrState.cursor[pool] % len(conns)
		m.rrState.cursor[pool] = idx + 1
		m.mu.Unlock()
		return conns[idx]
	}
}
