package connmgr

import "testing"

func TestEnqueueDrainOrdersByPriority(t *testing.T) {
	q := newOfflineQueue(10)
	q.Enqueue(1, []byte("low"), PriorityLow)
	q.Enqueue(1, []byte("high"), PriorityHigh)
	q.Enqueue(1, []byte("normal"), PriorityNormal)

	drained := q.Drain()
	if len(drained) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(drained))
	}
	if string(drained[0].payload) != "high" {
		t.Fatalf("expected high priority first, got %q", drained[0].payload)
	}
}

func TestEnqueueOverflowEvictsLowerPriority(t *testing.T) {
	q := newOfflineQueue(2)
	q.Enqueue(1, []byte("a"), PriorityLow)
	q.Enqueue(1, []byte("b"), PriorityLow)

	ok := q.Enqueue(1, []byte("c"), PriorityHigh)
	if !ok {
		t.Fatalf("expected high priority entry to evict a lower priority one")
	}
	if q.Len() != 2 {
		t.Fatalf("expected queue length to stay at capacity 2, got %d", q.Len())
	}
}

func TestEnqueueOverflowRejectsWhenNoLowerPriority(t *testing.T) {
	q := newOfflineQueue(1)
	q.Enqueue(1, []byte("a"), PriorityHigh)

	ok := q.Enqueue(1, []byte("b"), PriorityHigh)
	if ok {
		t.Fatalf("expected rejection when only same-or-higher priority entries remain")
	}
}

func TestRequeueRespectsRetryBudget(t *testing.T) {
	q := newOfflineQueue(10)
	entry := &queueEntry{priority: PriorityNormal, payload: []byte("x")}
	entry.retries = maxRetries
	if q.Requeue(entry) {
		t.Fatalf("expected Requeue to refuse once retry budget is exhausted")
	}
}
