package connmgr

import "testing"

type fakeTransport struct {
	open bool
	sent [][]byte
}

func (f *fakeTransport) Send(messageType int, data []byte) error {
	f.sent = append(f.sent, data)
	return nil
}
func (f *fakeTransport) Close() error  { f.open = false; return nil }
func (f *fakeTransport) IsOpen() bool  { return f.open }
func (f *fakeTransport) Ping() error   { return nil }

func newTestManager() *Manager {
	cfg := DefaultConfig()
	return NewManager(cfg, nil)
}

func TestRegisterAndGet(t *testing.T) {
	m := newTestManager()
	defer m.Shutdown()

	conn, err := m.Register("c1", "1.2.3.4", &fakeTransport{open: true})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	got, ok := m.Get("c1")
	if !ok || got != conn {
		t.Fatalf("Get did not return the registered connection")
	}
}

func TestPerIPLimitEnforced(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConnectionsPerIP = 1
	m := NewManager(cfg, nil)
	defer m.Shutdown()

	if _, err := m.Register("c1", "1.2.3.4", &fakeTransport{open: true}); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if _, err := m.Register("c2", "1.2.3.4", &fakeTransport{open: true}); err != ErrTooManyFromIP {
		t.Fatalf("expected ErrTooManyFromIP, got %v", err)
	}
}

func TestRemoveClearsPools(t *testing.T) {
	m := newTestManager()
	defer m.Shutdown()

	m.Register("c1", "1.2.3.4", &fakeTransport{open: true})
	m.JoinPool("roomA", "c1")
	m.Remove("c1")

	if conns := m.poolSnapshot("roomA"); len(conns) != 0 {
		t.Fatalf("expected empty pool after removal, got %d", len(conns))
	}
}

func TestSendDirectDeliversAndCountsBytes(t *testing.T) {
	m := newTestManager()
	defer m.Shutdown()

	transport := &fakeTransport{open: true}
	m.Register("c1", "1.2.3.4", transport)

	if err := m.Send(1, []byte("hello"), Target{ConnectionID: "c1"}, SendOptions{}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	conn, _ := m.Get("c1")
	if conn.MessagesSent != 1 || conn.BytesSent != 5 {
		t.Fatalf("unexpected counters: sent=%d bytes=%d", conn.MessagesSent, conn.BytesSent)
	}
}

func TestSendQueuesWhenOffline(t *testing.T) {
	m := newTestManager()
	defer m.Shutdown()

	transport := &fakeTransport{open: false}
	m.Register("c1", "1.2.3.4", transport)

	err := m.Send(1, []byte("hi"), Target{ConnectionID: "c1"}, SendOptions{QueueIfOffline: true})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	conn, _ := m.Get("c1")
	if conn.QueueLen() != 1 {
		t.Fatalf("expected 1 queued message, got %d", conn.QueueLen())
	}
}

func TestLoadBalanceLeastConnections(t *testing.T) {
	m := newTestManager()
	defer m.Shutdown()

	t1 := &fakeTransport{open: true}
	t2 := &fakeTransport{open: true}
	m.Register("c1", "1.1.1.1", t1)
	m.Register("c2", "1.1.1.2", t2)
	m.JoinPool("poolA", "c1")
	m.JoinPool("poolA", "c2")

	conn1, _ := m.Get("c1")
	conn1.MessagesSent = 10

	if err := m.Send(1, []byte("x"), Target{Pool: "poolA", Strategy: StrategyLeastConnections}, SendOptions{}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(t2.sent) != 1 {
		t.Fatalf("expected least-loaded connection c2 to receive the message")
	}
}

func TestBroadcastReachesAllConnections(t *testing.T) {
	m := newTestManager()
	defer m.Shutdown()

	t1 := &fakeTransport{open: true}
	t2 := &fakeTransport{open: true}
	m.Register("c1", "1.1.1.1", t1)
	m.Register("c2", "1.1.1.2", t2)

	if err := m.Send(1, []byte("x"), Target{Broadcast: true}, SendOptions{}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(t1.sent) != 1 || len(t2.sent) != 1 {
		t.Fatalf("expected broadcast to reach both connections")
	}
}
