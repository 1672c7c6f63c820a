// Package channel owns the single real-time connection a client keeps per board.
//
// A Connector creates Channel instances; the Manager keeps exactly one alive per
// topic, watches its health by polling, replaces it with exponential backoff
// when it errors or closes, and tells subscribers when a replacement has joined
// so they can re-fetch whatever they missed.
package channel

import (
	"context"
	"encoding/json"

	"realtime-whiteboard/internal/model"
)

// State is the transport-reported state of one channel instance.
type State string

const (
	StateJoining State = "joining"
	StateJoined  State = "joined"
	StateErrored State = "errored"
	StateClosed  State = "closed"
)

// Status is the Manager's view across channel replacements.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusJoined
)

// String 상태 문자열
func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusJoined:
		return "joined"
	default:
		return "unknown"
	}
}

// Channel is one logical connection to a board topic.
type Channel interface {
	// State must be cheap and safe to call from any goroutine.
	State() State
	// Send publishes a broadcast event to the other members of the topic.
	Send(event string, payload any) error
	// Track publishes this client's presence. Implementations hold on to it
	// and publish once joined if called earlier.
	Track(meta model.PresenceUser) error
	Close() error
}

// Handler receives inbound traffic from a channel.
type Handler interface {
	HandleBroadcast(event string, payload json.RawMessage)
	// HandlePresenceSync carries the full presence state, keyed by presence key.
	HandlePresenceSync(state map[string][]model.PresenceUser)
	HandlePresenceLeave(left []model.PresenceUser)
}

// Connector creates channel instances. Connect must not block on the network;
// failures surface as StateErrored on the returned channel.
type Connector interface {
	Connect(ctx context.Context, topic string, h Handler) Channel
}

// BroadcastFunc handles one inbound broadcast payload.
type BroadcastFunc func(payload json.RawMessage)
