package gateway

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/liveframe/live/pkg/authgate"
	"github.com/liveframe/live/pkg/connmgr"
	"github.com/liveframe/live/pkg/protocol"
)

// wsTransport adapts a *websocket.Conn to connmgr.Transport (spec.md §9
// "Duck-typed (ws as any)._pingTime ... define a transport capability
// interface"). All writes to the underlying connection go through this
// type so they are serialized by wmu, per gorilla/websocket's
// single-writer requirement.
type wsTransport struct {
	conn *websocket.Conn

	wmu    sync.Mutex
	closed bool
}

func (t *wsTransport) Send(messageType int, data []byte) error {
	t.wmu.Lock()
	defer t.wmu.Unlock()
	if t.closed {
		return websocket.ErrCloseSent
	}
	return t.conn.WriteMessage(messageType, data)
}

func (t *wsTransport) Close() error {
	t.wmu.Lock()
	defer t.wmu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.conn.Close()
}

func (t *wsTransport) IsOpen() bool {
	t.wmu.Lock()
	defer t.wmu.Unlock()
	return !t.closed
}

func (t *wsTransport) Ping() error {
	t.wmu.Lock()
	defer t.wmu.Unlock()
	if t.closed {
		return websocket.ErrCloseSent
	}
	return t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
}

// handleWebSocket upgrades the connection, authenticates any
// `token` query parameter, announces CONNECTION_ESTABLISHED, and hands
// off to a dedicated read loop that owns the connection's inbound
// message ordering (spec.md §5 "Each connection is served by a
// dedicated logical task").
func (g *Gateway) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	if g.config.MaxMessageBytes > 0 {
		conn.SetReadLimit(g.config.MaxMessageBytes)
	}

	transport := &wsTransport{conn: conn}
	connID := uuid.NewString()
	ip := g.clientIP(r)

	registered, err := g.conns.Register(connID, ip, transport)
	if err != nil {
		g.logger.Warn("connection registration refused", "error", err)
		_ = transport.Close()
		return
	}

	authCtx := authgate.Anonymous()
	var provider authgate.Provider
	if token := r.URL.Query().Get("token"); token != "" {
		authCtx, provider = g.gate.Authenticate(r.Context(), authgate.Credentials{"token": token}, "")
	}

	established := map[string]any{
		"connectionId":  connID,
		"authenticated": authCtx.Authenticated,
		"features":      []string{"rooms", "uploads", "rehydration"},
	}
	if authCtx.Authenticated {
		established["userId"] = authCtx.UserID
	}
	payload, _ := json.Marshal(established)
	msg := &protocol.Message{Type: protocol.TagConnectionEstablished, Payload: payload, Timestamp: time.Now().UnixMilli()}
	encoded, _ := protocol.Encode(msg)
	_ = transport.Send(websocket.TextMessage, encoded)

	session := &connSession{
		gateway:      g,
		conn:         registered,
		connID:       connID,
		auth:         authCtx,
		authProvider: provider,
		transport:    transport,
	}
	session.readLoop(conn)
}

// connSession owns one connection's inbound message ordering: its
// readLoop runs on a dedicated goroutine and feeds every decoded
// message into the dispatcher in arrival order (spec.md §5 "Per
// connection: inbound messages are processed in arrival order").
type connSession struct {
	gateway   *Gateway
	conn      *connmgr.Connection
	connID    string
	transport connmgr.Transport

	authMu       sync.Mutex
	auth         *authgate.AuthContext
	authProvider authgate.Provider
}

func (s *connSession) readLoop(conn *websocket.Conn) {
	defer s.close()
	conn.SetPongHandler(func(string) error {
		s.gateway.conns.OnPong(s.connID)
		return nil
	})

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if !s.conn.Allow() {
			s.sendError("", "RATE_LIMITED")
			continue
		}

		switch messageType {
		case websocket.BinaryMessage:
			s.gateway.handleBinaryFrame(s, data)
		case websocket.TextMessage:
			msg, err := protocol.Decode(data)
			if err != nil {
				s.sendError("", "malformed message")
				continue
			}
			s.gateway.dispatch(s, msg)
		}
	}
}

func (s *connSession) close() {
	for _, inst := range s.gateway.registry.Instances() {
		if inst.ConnectionID == s.connID {
			s.gateway.uploads.CleanupComponent(inst.ID)
		}
	}
	s.gateway.registry.CleanupConnection(s.connID)
	_ = s.transport.Close()
	s.gateway.conns.Remove(s.connID)
}

func (s *connSession) sendError(requestID, detail string) {
	msg := protocol.ErrorMessage(requestID, detail)
	encoded, _ := protocol.Encode(msg)
	_ = s.transport.Send(websocket.TextMessage, encoded)
}

func (s *connSession) send(msg *protocol.Message) {
	encoded, err := protocol.Encode(msg)
	if err != nil {
		return
	}
	_ = s.transport.Send(websocket.TextMessage, encoded)
}

func (s *connSession) authContext() *authgate.AuthContext {
	s.authMu.Lock()
	defer s.authMu.Unlock()
	return s.auth
}

func (s *connSession) setAuthContext(ctx *authgate.AuthContext, provider authgate.Provider) {
	s.authMu.Lock()
	s.auth = ctx
	s.authProvider = provider
	s.authMu.Unlock()
}

func (s *connSession) authProviderContext() authgate.Provider {
	s.authMu.Lock()
	defer s.authMu.Unlock()
	return s.authProvider
}
