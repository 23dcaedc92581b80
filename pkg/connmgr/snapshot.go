package connmgr

import "time"

// ConnectionSnapshot is the read-only view of a connection exposed by
// the HTTP management surface (spec.md §6 "GET /api/live/connections").
type ConnectionSnapshot struct {
	ID            string
	IP            string
	ConnectedAt   time.Time
	LastActivity  time.Time
	Status        Status
	UserID        string
	MessagesSent  int64
	MessagesRecv  int64
	BytesSent     int64
	BytesRecv     int64
	Errors        int64
	Reconnects    int64
	LatencyMillis float64
	QueueLen      int
}

func (c *Connection) snapshot() ConnectionSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ConnectionSnapshot{
		ID:            c.ID,
		IP:            c.IP,
		ConnectedAt:   c.ConnectedAt,
		LastActivity:  c.LastActivity,
		Status:        c.Status,
		UserID:        c.UserID,
		MessagesSent:  c.MessagesSent,
		MessagesRecv:  c.MessagesRecv,
		BytesSent:     c.BytesSent,
		BytesRecv:     c.BytesRecv,
		Errors:        c.Errors,
		Reconnects:    c.Reconnects,
		LatencyMillis: c.LatencyMillis,
		QueueLen:      c.offline.Len(),
	}
}

// Snapshots returns a read-only view of every registered connection.
func (m *Manager) Snapshots() []ConnectionSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ConnectionSnapshot, 0, len(m.connections))
	for _, c := range m.connections {
		out = append(out, c.snapshot())
	}
	return out
}

// SnapshotOne returns a single connection's read-only view.
func (m *Manager) SnapshotOne(id string) (ConnectionSnapshot, bool) {
	m.mu.RLock()
	c, ok := m.connections[id]
	m.mu.RUnlock()
	if !ok {
		return ConnectionSnapshot{}, false
	}
	return c.snapshot(), true
}

// PoolStats summarizes one named pool's membership (spec.md §6 "GET
// /api/live/pools/:id/stats").
type PoolStats struct {
	Pool  string
	Total int
	Open  int
}

func (m *Manager) PoolStatsFor(pool string) (PoolStats, bool) {
	m.mu.RLock()
	members, ok := m.pools[pool]
	if !ok {
		m.mu.RUnlock()
		return PoolStats{}, false
	}
	stats := PoolStats{Pool: pool, Total: len(members)}
	for id := range members {
		if c, exists := m.connections[id]; exists && c.IsOpen() {
			stats.Open++
		}
	}
	m.mu.RUnlock()
	return stats, true
}
