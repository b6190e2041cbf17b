// Package hub routes server events to live sessions. It knows nothing
// about websockets: sessions attach with a buffered outbound queue and the
// transport drains it.
package hub

import (
	"sync"

	"chatsync/pkg/logger"
	"chatsync/pkg/telemetry"
)

// Client is one attached live session. Payloads queued on send are
// already-marshaled event frames.
type Client struct {
	UserID string
	ConnID string
	send   chan []byte
	closed bool
}

// Send exposes the outbound queue for the transport's write loop. The
// channel is closed when the client detaches or falls too far behind.
func (c *Client) Send() <-chan []byte { return c.send }

// Hub fans out event frames to conversation channels (sessions actively
// viewing a conversation) and personal channels (every session of a user).
// Delivery is at-least-once to currently connected sessions only; there is
// no durable outbox, slow sessions are dropped and catch up over the
// fallback endpoints on reconnect.
type Hub struct {
	mu sync.Mutex
	// conversation channel -> member sessions
	convs map[string]map[*Client]struct{}
	// user id -> that user's sessions (personal channel)
	users map[string]map[*Client]struct{}

	sendBuffer int
}

// New returns an empty hub. sendBuffer is the per-session queue length.
func New(sendBuffer int) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = 16
	}
	return &Hub{
		convs:      make(map[string]map[*Client]struct{}),
		users:      make(map[string]map[*Client]struct{}),
		sendBuffer: sendBuffer,
	}
}

// Attach registers a session on its user's personal channel.
func (h *Hub) Attach(userID, connID string) *Client {
	c := &Client{UserID: userID, ConnID: connID, send: make(chan []byte, h.sendBuffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.users[userID]
	if set == nil {
		set = make(map[*Client]struct{})
		h.users[userID] = set
	}
	set[c] = struct{}{}
	return c
}

// Detach removes the session from its personal channel and every
// conversation channel, closing its queue.
func (h *Hub) Detach(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.users[c.UserID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.users, c.UserID)
		}
	}
	for convID, set := range h.convs {
		if _, ok := set[c]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(h.convs, convID)
			}
		}
	}
	h.closeClient(c)
}

// Join subscribes the session to a conversation channel.
func (h *Hub) Join(c *Client, convID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.convs[convID]
	if set == nil {
		set = make(map[*Client]struct{})
		h.convs[convID] = set
	}
	set[c] = struct{}{}
}

// Leave unsubscribes the session from a conversation channel.
func (h *Hub) Leave(c *Client, convID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.convs[convID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.convs, convID)
		}
	}
}

// ToConversation delivers the frame to every session subscribed to the
// conversation channel. exclude may name a connection to skip (typing
// indicators do not echo to their origin).
func (h *Hub) ToConversation(convID string, frame []byte, exclude string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.convs[convID] {
		if exclude != "" && c.ConnID == exclude {
			continue
		}
		h.push(c, frame, h.convs[convID])
	}
}

// ToUser delivers the frame to every session on the user's personal
// channel, covering devices not currently viewing the conversation.
func (h *Hub) ToUser(userID string, frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.users[userID] {
		h.push(c, frame, h.users[userID])
	}
}

// Broadcast delivers the frame to every attached session. Used for
// presence edges.
func (h *Hub) Broadcast(frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, set := range h.users {
		for c := range set {
			h.push(c, frame, set)
		}
	}
}

// push enqueues without blocking; a session that cannot keep up is
// dropped from the set so fanout never stalls on one connection.
func (h *Hub) push(c *Client, frame []byte, from map[*Client]struct{}) {
	if c.closed {
		delete(from, c)
		return
	}
	select {
	case c.send <- frame:
		telemetry.EventsDelivered.Inc()
	default:
		logger.Warn("session_dropped_slow", "user", c.UserID, "conn", c.ConnID)
		telemetry.EventsDropped.Inc()
		delete(from, c)
		h.closeClient(c)
	}
}

func (h *Hub) closeClient(c *Client) {
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}
