// Package protocol defines the wire message envelope and binary chunk
// framing used between the gateway's WebSocket Dispatcher and clients
// (spec.md §4.G, §6). Grounded on the teacher's tagged-message style in
// its WebSocket handler, generalized from vdom patches to Live
// Components' fourteen message tags.
package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
)

// Tag identifies a message's route through the dispatcher.
type Tag string

const (
	TagComponentMount     Tag = "COMPONENT_MOUNT"
	TagComponentRehydrate Tag = "COMPONENT_REHYDRATE"
	TagComponentUnmount   Tag = "COMPONENT_UNMOUNT"
	TagCallAction         Tag = "CALL_ACTION"
	TagPropertyUpdate     Tag = "PROPERTY_UPDATE"
	TagComponentPing      Tag = "COMPONENT_PING"
	TagAuth               Tag = "AUTH"
	TagFileUploadStart    Tag = "FILE_UPLOAD_START"
	TagFileUploadChunk    Tag = "FILE_UPLOAD_CHUNK"
	TagFileUploadComplete Tag = "FILE_UPLOAD_COMPLETE"
	TagRoomJoin           Tag = "ROOM_JOIN"
	TagRoomLeave          Tag = "ROOM_LEAVE"
	TagRoomEmit           Tag = "ROOM_EMIT"
	TagRoomStateSet       Tag = "ROOM_STATE_SET"

	// TagConnectionEstablished is server-to-client only, sent once on
	// WebSocket upgrade.
	TagConnectionEstablished Tag = "CONNECTION_ESTABLISHED"
	// TagError is the dispatcher's generic failure response.
	TagError Tag = "ERROR"

	// The following are server-to-client response tags correlating to
	// one of the inbound tags above.
	TagComponentMounted    Tag = "COMPONENT_MOUNTED"
	TagComponentRehydrated Tag = "COMPONENT_REHYDRATED"
	TagActionResponse      Tag = "ACTION_RESPONSE"
	TagStateUpdate         Tag = "STATE_UPDATE"
	TagRoomJoined          Tag = "ROOM_JOINED"
	TagRoomEvent           Tag = "ROOM_EVENT"
	TagAuthResult          Tag = "AUTH_RESULT"
)

// Message is the JSON envelope exchanged over the WebSocket (spec.md §6
// "Message envelopes").
type Message struct {
	Type           Tag             `json:"type"`
	ComponentID    string          `json:"componentId,omitempty"`
	Action         string          `json:"action,omitempty"`
	Property       string          `json:"property,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	RequestID      string          `json:"requestId,omitempty"`
	ExpectResponse bool            `json:"expectResponse,omitempty"`
	Timestamp      int64           `json:"timestamp,omitempty"`

	// The following are outbound-only response fields (spec.md §8's
	// literal scenarios show them flat on the envelope rather than
	// nested in Payload). They are never populated on a client-sent
	// message.
	Success        *bool           `json:"success,omitempty"`
	Error          string          `json:"error,omitempty"`
	Result         json.RawMessage `json:"result,omitempty"`
	FileURL        string          `json:"fileUrl,omitempty"`
	NewComponentID string          `json:"newComponentId,omitempty"`
	Event          string          `json:"event,omitempty"`
	Data           json.RawMessage `json:"data,omitempty"`
}

// Bool is a small helper for building the Success pointer field.
func Bool(v bool) *bool { return &v }

// Decode parses a raw JSON message frame.
func Decode(raw []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, err
	}
	if msg.Type == "" {
		return nil, errors.New("protocol: message missing type")
	}
	return &msg, nil
}

// Encode serializes a message frame.
func Encode(msg *Message) ([]byte, error) {
	return json.Marshal(msg)
}

// ErrorMessage builds a correlated ERROR response.
func ErrorMessage(requestID, detail string) *Message {
	payload, _ := json.Marshal(map[string]string{"error": detail})
	return &Message{Type: TagError, RequestID: requestID, Payload: payload}
}

// ChunkHeader is the JSON header preceding a binary chunk's raw bytes
// (spec.md §6 "Binary chunk framing").
type ChunkHeader struct {
	Type        Tag    `json:"type"`
	UploadID    string `json:"uploadId"`
	ChunkIndex  int    `json:"chunkIndex"`
	ComponentID string `json:"componentId"`
	RequestID   string `json:"requestId,omitempty"`
}

// EncodeChunkFrame builds [uint32 LE headerLen][header JSON][chunk bytes].
func EncodeChunkFrame(header ChunkHeader, chunk []byte) ([]byte, error) {
	header.Type = TagFileUploadChunk
	headerJSON, err := json.Marshal(header)
	if err != nil {
		return nil, err
	}
	frame := make([]byte, 4+len(headerJSON)+len(chunk))
	binary.LittleEndian.PutUint32(frame[0:4], uint32(len(headerJSON)))
	copy(frame[4:], headerJSON)
	copy(frame[4+len(headerJSON):], chunk)
	return frame, nil
}

// ErrFrameTooShort is returned when a binary frame does not contain
// enough bytes for its declared header length.
var ErrFrameTooShort = errors.New("protocol: binary frame shorter than declared header length")

// DecodeChunkFrame splits a binary frame into its header and raw chunk
// bytes.
func DecodeChunkFrame(frame []byte) (ChunkHeader, []byte, error) {
	var header ChunkHeader
	if len(frame) < 4 {
		return header, nil, ErrFrameTooShort
	}
	headerLen := binary.LittleEndian.Uint32(frame[0:4])
	if uint64(4+headerLen) > uint64(len(frame)) {
		return header, nil, ErrFrameTooShort
	}
	if err := json.Unmarshal(frame[4:4+headerLen], &header); err != nil {
		return header, nil, err
	}
	chunk := frame[4+headerLen:]
	return header, chunk, nil
}
