package model

import "encoding/json"

// WSMessage 보드 채널 WebSocket 메시지
type WSMessage struct {
	Type    string          `json:"type"`            // joined, broadcast, track, presence_sync, presence_leave, ping, pong, error
	Event   string          `json:"event,omitempty"` // broadcast 이벤트 이름
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WebSocket message types
const (
	WSJoined        = "joined"
	WSBroadcast     = "broadcast"
	WSTrack         = "track"
	WSPresenceSync  = "presence_sync"
	WSPresenceLeave = "presence_leave"
	WSPing          = "ping"
	WSPong          = "pong"
	WSError         = "error"
)

// NewWSMessage marshals payload into a message. A nil payload leaves Payload empty.
func NewWSMessage(msgType, event string, payload any) (WSMessage, error) {
	msg := WSMessage{Type: msgType, Event: event}
	if payload == nil {
		return msg, nil
	}
	if raw, ok := payload.(json.RawMessage); ok {
		msg.Payload = raw
		return msg, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return msg, err
	}
	msg.Payload = b
	return msg, nil
}

// ErrorPayload error 메시지 페이로드
type ErrorPayload struct {
	Message string `json:"message"`
}
