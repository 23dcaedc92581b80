package connmgr

import "sync"

// Priority orders offline-queue entries; higher values are drained and
// retained first (spec.md §4.C "Offline queue").
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

type queueEntry struct {
	priority Priority
	payload  []byte
	messageType int
	retries  int
	insertedAt int64
}

const maxRetries = 5

// offlineQueue is a bounded, priority-ordered queue of outbound messages
// for a peer that is not currently writable. Single-writer (the
// connection's owning task) / single-reader (the sender on drain), per
// SPEC_FULL.md §5.
type offlineQueue struct {
	mu       sync.Mutex
	entries  []*queueEntry
	capacity int
	seq      int64
}

func newOfflineQueue(capacity int) *offlineQueue {
	if capacity <= 0 {
		capacity = 1000
	}
	return &offlineQueue{capacity: capacity}
}

// Enqueue inserts a message in priority order. On overflow, the lowest
// priority entry older than the new one is dropped; if only
// same-or-higher priority entries remain, the new entry is rejected.
func (q *offlineQueue) Enqueue(messageType int, payload []byte, priority Priority) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.seq++
	entry := &queueEntry{priority: priority, payload: payload, messageType: messageType, insertedAt: q.seq}

	if len(q.entries) >= q.capacity {
		if !q.evictLowerPriorityLocked(priority) {
			return false
		}
	}

	idx := len(q.entries)
	for i, e := range q.entries {
		if entry.priority > e.priority {
			idx = i
			break
		}
	}
	q.entries = append(q.entries, nil)
	copy(q.entries[idx+1:], q.entries[idx:])
	q.entries[idx] = entry
	return true
}

func (q *offlineQueue) evictLowerPriorityLocked(incoming Priority) bool {
	worstIdx := -1
	for i := len(q.entries) - 1; i >= 0; i-- {
		if q.entries[i].priority < incoming {
			worstIdx = i
			break
		}
	}
	if worstIdx == -1 {
		return false
	}
	q.entries = append(q.entries[:worstIdx], q.entries[worstIdx+1:]...)
	return true
}

// Drain removes and returns every queued entry in priority order.
func (q *offlineQueue) Drain() []*queueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.entries
	q.entries = nil
	return out
}

func (q *offlineQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Requeue reinserts an entry that failed to send, incrementing its retry
// count; returns false once the per-message retry budget is exhausted.
func (q *offlineQueue) Requeue(e *queueEntry) bool {
	e.retries++
	if e.retries > maxRetries {
		return false
	}
	q.mu.Lock()
	q.entries = append([]*queueEntry{e}, q.entries...)
	q.mu.Unlock()
	return true
}
