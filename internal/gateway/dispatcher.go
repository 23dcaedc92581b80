package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"

	"github.com/liveframe/live/internal/registry"
	"github.com/liveframe/live/pkg/authgate"
	"github.com/liveframe/live/pkg/connmgr"
	"github.com/liveframe/live/pkg/liveerr"
	"github.com/liveframe/live/pkg/protocol"
	"github.com/liveframe/live/pkg/signature"
)

// roomBusType namespaces every room event bus key this gateway emits
// under; the runtime has exactly one notion of "room" so a constant
// namespace is sufficient (spec.md §4.D bus keys are
// (roomType, roomId, event)).
const roomBusType = "room"

// dispatch routes one decoded JSON frame to its handler (spec.md §4.G).
// The caller (connSession.readLoop) has already consumed a rate-limiter
// token before reaching here.
func (g *Gateway) dispatch(s *connSession, msg *protocol.Message) {
	ctx := context.Background()
	g.debug.record("messages", string(msg.Type))

	switch msg.Type {
	case protocol.TagAuth:
		g.handleAuth(ctx, s, msg)
	case protocol.TagComponentMount:
		g.handleMount(ctx, s, msg)
	case protocol.TagComponentRehydrate:
		g.handleRehydrate(ctx, s, msg)
	case protocol.TagComponentUnmount:
		g.handleUnmount(s, msg)
	case protocol.TagCallAction:
		g.handleCallAction(ctx, s, msg)
	case protocol.TagPropertyUpdate:
		g.handlePropertyUpdate(s, msg)
	case protocol.TagComponentPing:
		g.handlePing(s, msg)
	case protocol.TagFileUploadStart:
		g.handleUploadStart(s, msg)
	case protocol.TagFileUploadComplete:
		g.handleUploadComplete(s, msg)
	case protocol.TagRoomJoin:
		g.handleRoomJoin(ctx, s, msg)
	case protocol.TagRoomLeave:
		g.handleRoomLeave(s, msg)
	case protocol.TagRoomEmit:
		g.handleRoomEmit(s, msg)
	case protocol.TagRoomStateSet:
		g.handleRoomStateSet(s, msg)
	default:
		s.sendError(msg.RequestID, "unknown message type")
	}
}

// handleBinaryFrame ingests a chunked-upload frame (spec.md §4.G binary
// framing, §4.E "Chunk transfer").
func (g *Gateway) handleBinaryFrame(s *connSession, data []byte) {
	header, chunk, err := protocol.DecodeChunkFrame(data)
	if err != nil {
		s.sendError("", "malformed binary frame")
		return
	}
	if err := g.uploads.Chunk(header.UploadID, header.ChunkIndex, chunk); err != nil {
		g.replyUploadError(s, header.RequestID, err)
		return
	}
}

// respondIfRequested emits a correlated response only when the inbound
// message asked for one (spec.md §4.G: "if the message carries
// expectResponse or requestId, emit a correlated response").
func (s *connSession) respondIfRequested(msg *protocol.Message, respType protocol.Tag, success bool, result any, errMsg string) {
	if msg.RequestID == "" && !msg.ExpectResponse {
		return
	}
	resp := &protocol.Message{
		Type:        respType,
		ComponentID: msg.ComponentID,
		RequestID:   msg.RequestID,
		Success:     protocol.Bool(success),
		Timestamp:   time.Now().UnixMilli(),
	}
	if errMsg != "" {
		resp.Error = errMsg
	}
	if result != nil {
		if encoded, err := json.Marshal(result); err == nil {
			resp.Result = encoded
		}
	}
	s.send(resp)
}

// wireError renders an error the way the literal scenarios show it:
// AUTH_DENIED and COMPONENT_REHYDRATION_REQUIRED carry their kind
// prefix; every other kind surfaces its bare detail message.
func wireError(err error) string {
	var le *liveerr.Error
	if errors.As(err, &le) {
		switch le.Kind {
		case liveerr.KindAuthDenied, liveerr.KindRehydrationRequired:
			return le.Wire()
		}
		if le.Detail != "" {
			return le.Detail
		}
		return string(le.Kind)
	}
	return err.Error()
}

type mountPayload struct {
	Component string         `json:"component"`
	Props     map[string]any `json:"props"`
	RoomID    string         `json:"roomId,omitempty"`
}

func (g *Gateway) handleMount(ctx context.Context, s *connSession, msg *protocol.Message) {
	var p mountPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		s.respondIfRequested(msg, protocol.TagComponentMounted, false, nil, "malformed mount payload")
		return
	}

	var mountedID string
	broadcast := func(event string, payload any) error {
		return g.emitToRoom(p.RoomID, mountedID, event, payload)
	}

	result, err := g.registry.Mount(ctx, registry.MountOptions{
		ComponentName: p.Component,
		Props:         p.Props,
		ConnectionID:  s.connID,
		UserID:        s.authContext().UserID,
		Auth:          s.authContext(),
		AuthProvider:  s.authProviderContext(),
		RoomID:        p.RoomID,
		Broadcast:     broadcast,
	})
	if err != nil {
		g.debug.record("lifecycle", "mount denied: "+wireError(err))
		s.respondIfRequested(msg, protocol.TagComponentMounted, false, nil, wireError(err))
		return
	}
	mountedID = result.ComponentID

	s.respondIfRequested(msg, protocol.TagComponentMounted, true, map[string]any{
		"componentId":  result.ComponentID,
		"initialState": result.InitialState,
		"signedState":  result.Envelope,
	}, "")
}

type rehydratePayload struct {
	Component string              `json:"component"`
	Envelope  *signature.Envelope `json:"envelope"`
	RoomID    string              `json:"roomId,omitempty"`
}

func (g *Gateway) handleRehydrate(ctx context.Context, s *connSession, msg *protocol.Message) {
	var p rehydratePayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil || p.Envelope == nil {
		s.respondIfRequested(msg, protocol.TagComponentRehydrated, false, nil, "malformed rehydrate payload")
		return
	}

	var newID string
	broadcast := func(event string, payload any) error {
		return g.emitToRoom(p.RoomID, newID, event, payload)
	}

	result, err := g.registry.Rehydrate(ctx, registry.RehydrateOptions{
		OldComponentID: msg.ComponentID,
		ComponentName:  p.Component,
		Envelope:       p.Envelope,
		ConnectionID:   s.connID,
		UserID:         s.authContext().UserID,
		Auth:           s.authContext(),
		AuthProvider:   s.authProviderContext(),
		Broadcast:      broadcast,
	})
	if err != nil {
		s.respondIfRequested(msg, protocol.TagComponentRehydrated, false, nil, wireError(err))
		return
	}
	newID = result.NewComponentID

	if p.RoomID != "" {
		roomDecision := g.gate.AuthorizeRoom(ctx, s.authContext(), s.authProviderContext(), p.RoomID)
		if !roomDecision.Allowed {
			g.logger.Warn("rehydrated component denied room rejoin", "room", p.RoomID, "reason", roomDecision.Reason)
		} else if _, joinErr := g.rooms.Join(p.RoomID, newID, s.connID); joinErr != nil {
			g.logger.Warn("rehydrated component failed to rejoin room", "room", p.RoomID, "error", joinErr)
		}
	}

	s.respondIfRequested(msg, protocol.TagComponentRehydrated, true, map[string]any{
		"newComponentId": newID,
		"state":          result.State,
		"signedState":    result.Envelope,
	}, "")
}

func (g *Gateway) handleUnmount(s *connSession, msg *protocol.Message) {
	g.registry.Unmount(msg.ComponentID)
	s.respondIfRequested(msg, protocol.TagComponentUnmount, true, nil, "")
}

func (g *Gateway) handleCallAction(ctx context.Context, s *connSession, msg *protocol.Message) {
	result, err := g.registry.Dispatch(ctx, msg.ComponentID, msg.Action, msg.Payload)
	if err != nil {
		s.respondIfRequested(msg, protocol.TagActionResponse, false, nil, wireError(err))
		return
	}

	s.respondIfRequested(msg, protocol.TagActionResponse, true, result, "")
	g.pushStateUpdate(s, msg.ComponentID)
}

func (g *Gateway) handlePropertyUpdate(s *connSession, msg *protocol.Message) {
	var value any
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &value); err != nil {
			s.respondIfRequested(msg, protocol.TagStateUpdate, false, nil, "malformed property payload")
			return
		}
	}
	if _, err := g.registry.SetProperty(msg.ComponentID, msg.Property, value); err != nil {
		s.respondIfRequested(msg, protocol.TagStateUpdate, false, nil, wireError(err))
		return
	}
	g.pushStateUpdate(s, msg.ComponentID)
}

func (g *Gateway) handlePing(s *connSession, msg *protocol.Message) {
	alive := g.registry.Touch(msg.ComponentID)
	if !alive {
		s.respondIfRequested(msg, protocol.TagComponentPing, false, nil, wireError(liveerr.RehydrationRequired(msg.ComponentID)))
		return
	}
	s.respondIfRequested(msg, protocol.TagComponentPing, true, nil, "")
}

// pushStateUpdate signs a component's current state and delivers it to
// its owning connection (spec.md §5: "State updates from an action
// reach the owning client after the action's response").
func (g *Gateway) pushStateUpdate(s *connSession, componentID string) {
	env, err := g.registry.Sign(componentID, signature.Options{})
	if err != nil {
		return
	}
	s.send(&protocol.Message{
		Type:        protocol.TagStateUpdate,
		ComponentID: componentID,
		Result:      mustMarshal(env),
		Timestamp:   time.Now().UnixMilli(),
	})
}

func mustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

type roomJoinPayload struct {
	RoomID string `json:"roomId"`
}

func (g *Gateway) handleRoomJoin(ctx context.Context, s *connSession, msg *protocol.Message) {
	var p roomJoinPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil || p.RoomID == "" {
		s.respondIfRequested(msg, protocol.TagRoomJoined, false, nil, "malformed room join payload")
		return
	}
	roomDecision := g.gate.AuthorizeRoom(ctx, s.authContext(), s.authProviderContext(), p.RoomID)
	if !roomDecision.Allowed {
		s.respondIfRequested(msg, protocol.TagRoomJoined, false, nil, wireError(liveerr.AuthDenied(roomDecision.Reason)))
		return
	}
	if _, err := g.rooms.Join(p.RoomID, msg.ComponentID, s.connID); err != nil {
		s.respondIfRequested(msg, protocol.TagRoomJoined, false, nil, err.Error())
		return
	}
	s.respondIfRequested(msg, protocol.TagRoomJoined, true, map[string]any{"roomId": p.RoomID}, "")
}

func (g *Gateway) handleRoomLeave(s *connSession, msg *protocol.Message) {
	var p roomJoinPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil || p.RoomID == "" {
		s.respondIfRequested(msg, protocol.TagRoomJoined, false, nil, "malformed room leave payload")
		return
	}
	g.rooms.Leave(p.RoomID, msg.ComponentID)
	s.respondIfRequested(msg, protocol.TagRoomJoined, true, nil, "")
}

type roomEmitPayload struct {
	RoomID string          `json:"roomId"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data"`
}

func (g *Gateway) handleRoomEmit(s *connSession, msg *protocol.Message) {
	var p roomEmitPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil || p.RoomID == "" || p.Event == "" {
		s.sendError(msg.RequestID, "malformed room emit payload")
		return
	}
	if err := g.emitToRoom(p.RoomID, msg.ComponentID, p.Event, json.RawMessage(p.Data)); err != nil {
		s.sendError(msg.RequestID, err.Error())
		return
	}
	s.respondIfRequested(msg, protocol.TagRoomEvent, true, nil, "")
}

type roomStateSetPayload struct {
	RoomID string         `json:"roomId"`
	State  map[string]any `json:"state"`
}

func (g *Gateway) handleRoomStateSet(s *connSession, msg *protocol.Message) {
	var p roomStateSetPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil || p.RoomID == "" {
		s.sendError(msg.RequestID, "malformed room state payload")
		return
	}
	recipients, err := g.rooms.ApplyStateUpdate(roomBusType, p.RoomID, msg.ComponentID, p.State)
	if err != nil {
		s.respondIfRequested(msg, protocol.TagRoomEvent, false, nil, err.Error())
		return
	}
	g.deliverRoomEvent(recipients, "$state:update", mustMarshal(p.State))
	s.respondIfRequested(msg, protocol.TagRoomEvent, true, nil, "")
}

// emitToRoom invokes every server-side bus subscriber for
// (roomBusType, roomID, event) and delivers the same event to every
// other connected member over the Connection Manager (spec.md §4.D
// "Broadcast" + "Room Event Bus").
func (g *Gateway) emitToRoom(roomID, senderComponentID, event string, payload any) error {
	if roomID == "" {
		return nil
	}
	g.rooms.Emit(roomBusType, roomID, event, payload)
	recipients := g.rooms.Broadcast(roomID, senderComponentID)
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	g.deliverRoomEvent(recipients, event, data)
	return nil
}

func (g *Gateway) deliverRoomEvent(connIDs []string, event string, data json.RawMessage) {
	if len(connIDs) == 0 {
		return
	}
	out := &protocol.Message{Type: protocol.TagRoomEvent, Event: event, Data: data, Timestamp: time.Now().UnixMilli()}
	encoded, err := protocol.Encode(out)
	if err != nil {
		return
	}
	for _, connID := range connIDs {
		_ = g.conns.Send(websocket.TextMessage, encoded, connmgr.Target{ConnectionID: connID}, connmgr.SendOptions{QueueIfOffline: true})
	}
}

type uploadStartPayload struct {
	UploadID     string `json:"uploadId"`
	Filename     string `json:"filename"`
	ContentType  string `json:"contentType"`
	DeclaredSize int64  `json:"declaredSize"`
	TotalChunks  int    `json:"totalChunks"`
}

func (g *Gateway) handleUploadStart(s *connSession, msg *protocol.Message) {
	var p uploadStartPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		s.respondIfRequested(msg, protocol.TagFileUploadStart, false, nil, "malformed upload start payload")
		return
	}
	userID := s.authContext().UserID
	if _, err := g.uploads.Start(p.UploadID, msg.ComponentID, userID, p.Filename, p.ContentType, p.DeclaredSize, p.TotalChunks); err != nil {
		g.replyUploadError(s, msg.RequestID, err)
		return
	}
	s.respondIfRequested(msg, protocol.TagFileUploadStart, true, map[string]any{"uploadId": p.UploadID}, "")
}

type uploadCompletePayload struct {
	UploadID string `json:"uploadId"`
}

func (g *Gateway) handleUploadComplete(s *connSession, msg *protocol.Message) {
	var p uploadCompletePayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		s.respondIfRequested(msg, protocol.TagFileUploadComplete, false, nil, "malformed upload complete payload")
		return
	}
	url, err := g.uploads.Complete(p.UploadID)
	if err != nil {
		g.replyUploadError(s, msg.RequestID, err)
		return
	}
	resp := &protocol.Message{
		Type:        protocol.TagFileUploadComplete,
		ComponentID: msg.ComponentID,
		RequestID:   msg.RequestID,
		Success:     protocol.Bool(true),
		FileURL:     url,
		Timestamp:   time.Now().UnixMilli(),
	}
	s.send(resp)
}

func (g *Gateway) replyUploadError(s *connSession, requestID string, err error) {
	resp := &protocol.Message{
		Type:      protocol.TagFileUploadComplete,
		RequestID: requestID,
		Success:   protocol.Bool(false),
		Error:     err.Error(),
		Timestamp: time.Now().UnixMilli(),
	}
	s.send(resp)
}

type authPayload struct {
	Provider    string            `json:"provider,omitempty"`
	Credentials map[string]string `json:"credentials"`
}

func (g *Gateway) handleAuth(ctx context.Context, s *connSession, msg *protocol.Message) {
	var p authPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		s.respondIfRequested(msg, protocol.TagAuthResult, false, nil, "malformed auth payload")
		return
	}
	authCtx, provider := g.gate.Authenticate(ctx, authgate.Credentials(p.Credentials), p.Provider)
	s.setAuthContext(authCtx, provider)

	s.respondIfRequested(msg, protocol.TagAuthResult, authCtx.Authenticated, map[string]any{
		"authenticated": authCtx.Authenticated,
		"userId":        authCtx.UserID,
	}, "")
}
