package channel

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"realtime-whiteboard/internal/model"
)

// Compile-time interface check.
var _ Connector = (*MemoryHub)(nil)

// ErrHubOffline is returned by sends on a hub that has been taken offline.
var ErrHubOffline = errors.New("memory hub offline")

// MemoryHub is an in-process relay. Every channel it creates for the same
// topic sees the others' broadcasts and presence, delivered synchronously on
// the sender's goroutine. Tests use SetOnline and Drop to simulate outages.
type MemoryHub struct {
	mu       sync.Mutex
	online   bool
	channels map[string]map[*MemoryChannel]struct{}
	sent     []Sent
}

// Sent records one broadcast that went through the hub.
type Sent struct {
	Topic   string
	Event   string
	Payload json.RawMessage
}

// NewMemoryHub 온라인 상태의 허브 생성
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{
		online:   true,
		channels: make(map[string]map[*MemoryChannel]struct{}),
	}
}

// Connect joins immediately when the hub is online and errors otherwise.
func (h *MemoryHub) Connect(_ context.Context, topic string, handler Handler) Channel {
	ch := &MemoryChannel{hub: h, topic: topic, handler: handler, state: StateJoining}

	h.mu.Lock()
	if !h.online {
		h.mu.Unlock()
		ch.setState(StateErrored)
		return ch
	}
	members := h.channels[topic]
	if members == nil {
		members = make(map[*MemoryChannel]struct{})
		h.channels[topic] = members
	}
	members[ch] = struct{}{}
	h.mu.Unlock()

	ch.setState(StateJoined)
	return ch
}

// SetOnline toggles whether new channels can join. Going offline does not
// affect channels already joined; use Drop for that.
func (h *MemoryHub) SetOnline(online bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.online = online
}

// Drop errors every joined channel and takes the hub offline.
func (h *MemoryHub) Drop() {
	h.mu.Lock()
	h.online = false
	var dropped []*MemoryChannel
	for _, members := range h.channels {
		for ch := range members {
			dropped = append(dropped, ch)
		}
	}
	h.channels = make(map[string]map[*MemoryChannel]struct{})
	h.mu.Unlock()

	for _, ch := range dropped {
		ch.setState(StateErrored)
	}
}

// Sent returns every broadcast published so far, in order.
func (h *MemoryHub) Sent() []Sent {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Sent, len(h.sent))
	copy(out, h.sent)
	return out
}

// Members 토픽에 join 된 채널 수
func (h *MemoryHub) Members(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.channels[topic])
}

func (h *MemoryHub) peers(topic string, except *MemoryChannel) []*MemoryChannel {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []*MemoryChannel
	for ch := range h.channels[topic] {
		if ch != except {
			out = append(out, ch)
		}
	}
	return out
}

func (h *MemoryHub) presenceState(topic string) map[string][]model.PresenceUser {
	h.mu.Lock()
	defer h.mu.Unlock()
	state := make(map[string][]model.PresenceUser)
	for ch := range h.channels[topic] {
		if p := ch.tracked(); p != nil {
			state[p.UserID] = append(state[p.UserID], *p)
		}
	}
	return state
}

func (h *MemoryHub) syncPresence(topic string) {
	state := h.presenceState(topic)
	for _, ch := range h.peers(topic, nil) {
		ch.handler.HandlePresenceSync(state)
	}
}

func (h *MemoryHub) leave(ch *MemoryChannel) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	members := h.channels[ch.topic]
	if _, ok := members[ch]; !ok {
		return false
	}
	delete(members, ch)
	return true
}

// MemoryChannel is one member of a MemoryHub topic.
type MemoryChannel struct {
	hub     *MemoryHub
	topic   string
	handler Handler

	mu       sync.Mutex
	state    State
	presence *model.PresenceUser
}

func (c *MemoryChannel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *MemoryChannel) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateClosed {
		c.state = s
	}
}

func (c *MemoryChannel) tracked() *model.PresenceUser {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.presence
}

func (c *MemoryChannel) Send(event string, payload any) error {
	if c.State() != StateJoined {
		return ErrNotJoined
	}
	raw, ok := payload.(json.RawMessage)
	if !ok {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		raw = b
	}

	c.hub.mu.Lock()
	if !c.hub.online {
		c.hub.mu.Unlock()
		return ErrHubOffline
	}
	c.hub.sent = append(c.hub.sent, Sent{Topic: c.topic, Event: event, Payload: raw})
	c.hub.mu.Unlock()

	for _, peer := range c.hub.peers(c.topic, c) {
		peer.handler.HandleBroadcast(event, raw)
	}
	return nil
}

func (c *MemoryChannel) Track(meta model.PresenceUser) error {
	c.mu.Lock()
	c.presence = &meta
	joined := c.state == StateJoined
	c.mu.Unlock()

	if joined {
		c.hub.syncPresence(c.topic)
	}
	return nil
}

func (c *MemoryChannel) Close() error {
	c.mu.Lock()
	c.state = StateClosed
	presence := c.presence
	c.mu.Unlock()

	if !c.hub.leave(c) {
		return nil
	}
	if presence != nil {
		for _, peer := range c.hub.peers(c.topic, nil) {
			peer.handler.HandlePresenceLeave([]model.PresenceUser{*presence})
		}
		c.hub.syncPresence(c.topic)
	}
	return nil
}
