// Package chat implements the conversation synchronization engine: access
// gating, conversation resolution, the message pipeline, read/like state
// and event fanout. Both the live channel and the fallback endpoints call
// into the same Service so their outcomes are identical.
package chat

import (
	"time"

	"chatsync/pkg/hub"
	"chatsync/pkg/logger"
	"chatsync/pkg/models"
	"chatsync/pkg/presence"
	"chatsync/pkg/store"
	"chatsync/pkg/telemetry"
)

// Service wires storage, presence and the broadcast hub together.
type Service struct {
	store    *store.Store
	hub      *hub.Hub
	presence *presence.Registry
	pageSize int
}

// New constructs the service. pageSize bounds message history pages.
func New(st *store.Store, h *hub.Hub, pr *presence.Registry, pageSize int) *Service {
	if pageSize <= 0 {
		pageSize = 50
	}
	return &Service{store: st, hub: h, presence: pr, pageSize: pageSize}
}

// Presence exposes the registry for transports that register connections.
func (s *Service) Presence() *presence.Registry { return s.presence }

// Hub exposes the broadcast router for transports that attach sessions.
func (s *Service) Hub() *hub.Hub { return s.hub }

// PresenceEdge broadcasts an online/offline transition to every attached
// session. Wired as the registry's edge callback by the app.
func (s *Service) PresenceEdge(userID string, online bool) {
	typ := EventUserOnline
	if !online {
		typ = EventUserOffline
	}
	s.hub.Broadcast(Frame(PresenceEvent{Type: typ, UserID: userID}))
	telemetry.OnlineUsers.Set(float64(len(s.presence.OnlineUsers())))
}

// SendResult is the authoritative outcome of a send, shared by the live
// ack and the fallback response.
type SendResult struct {
	Message              models.WireMessage `json:"message"`
	ResolvedConversation string             `json:"resolved_conversation"`
	WasNewConversation   bool               `json:"was_new_conversation"`
}

// SendMessage resolves the destination, appends the message and fans out
// events. dest is either a conversation id or, before any conversation
// exists, the counterpart's user id.
func (s *Service) SendMessage(senderID, dest string, p Payload) (SendResult, error) {
	if err := p.Validate(); err != nil {
		return SendResult{}, err
	}
	d, err := s.ResolveDestination(senderID, dest)
	if err != nil {
		return SendResult{}, err
	}
	conv := d.Conversation

	msg, err := s.appendMessage(conv, senderID, p)
	if err != nil {
		return SendResult{}, err
	}
	sender, err := s.resolveSender(senderID)
	if err != nil {
		return SendResult{}, err
	}
	wire := FormatMessage(msg, sender)

	// a fresh conversation must exist on clients before its first message
	if d.Created {
		created := Frame(ConversationCreatedEvent{
			Type:         EventConversationCreated,
			Conversation: conv.ID,
			Participants: conv.Participants,
		})
		for _, participant := range conv.Participants {
			s.hub.ToUser(participant, created)
		}
	}

	frame := Frame(NewMessageEvent{Type: EventNewMessage, Message: wire})
	s.hub.ToConversation(conv.ID, frame, "")
	updated := Frame(ConversationUpdatedEvent{
		Type:         EventConversationUpdated,
		Conversation: conv.ID,
		PreviewText:  previewText(msg),
		TS:           msg.TS,
	})
	for _, participant := range conv.Participants {
		s.hub.ToUser(participant, frame)
		s.hub.ToUser(participant, updated)
	}

	logger.Info("message_sent", "conversation", conv.ID, "sender", senderID, "msg", msg.ID, "new_conversation", d.Created)
	return SendResult{Message: wire, ResolvedConversation: conv.ID, WasNewConversation: d.Created}, nil
}

// User returns the resolved profile for an account.
func (s *Service) User(userID string) (models.WireSender, error) {
	return s.resolveSender(userID)
}

// Open finds or creates the conversation with peerID without sending a
// message, returning the caller's summary of it. A creation is announced
// to both participants so their lists update immediately.
func (s *Service) Open(userID, peerID string) (models.ConversationSummary, bool, error) {
	conv, created, err := s.FindOrCreate(userID, peerID)
	if err != nil {
		return models.ConversationSummary{}, false, err
	}
	if created {
		frame := Frame(ConversationCreatedEvent{
			Type:         EventConversationCreated,
			Conversation: conv.ID,
			Participants: conv.Participants,
		})
		for _, participant := range conv.Participants {
			s.hub.ToUser(participant, frame)
		}
	}
	sum, err := s.summarize(conv, userID)
	if err != nil {
		return models.ConversationSummary{}, false, err
	}
	return sum, created, nil
}

// Typing relays a typing indicator to the conversation channel without
// echoing it back to the originating connection.
func (s *Service) Typing(convID, userID, connID string, isTyping bool) error {
	if _, err := s.Verify(convID, userID); err != nil {
		return err
	}
	s.hub.ToConversation(convID, Frame(TypingEvent{
		Type:         EventTyping,
		Conversation: convID,
		UserID:       userID,
		IsTyping:     isTyping,
	}), connID)
	return nil
}

// Conversations returns the user's conversation list projection, most
// recently active first.
func (s *Service) Conversations(userID string) ([]models.ConversationSummary, error) {
	convs, err := s.store.ListConversationsFor(userID)
	if err != nil {
		return nil, wrapStore(err, "list conversations")
	}
	out := make([]models.ConversationSummary, 0, len(convs))
	for _, c := range convs {
		sum, err := s.summarize(c, userID)
		if err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	// newest activity first
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].UpdatedTS > out[j-1].UpdatedTS; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

func (s *Service) summarize(c models.Conversation, userID string) (models.ConversationSummary, error) {
	peerID := c.Peer(userID)
	peer, err := s.resolveSender(peerID)
	if err != nil {
		return models.ConversationSummary{}, err
	}
	sum := models.ConversationSummary{
		ID:         c.ID,
		Peer:       peer,
		PeerOnline: s.presence.IsOnline(peerID),
		UpdatedTS:  c.UpdatedTS,
	}
	msgs, err := s.store.ListMessages(c.ID, 0, 0)
	if err != nil {
		return models.ConversationSummary{}, wrapStore(err, "list messages")
	}
	for _, m := range msgs {
		if m.Sender != userID && !m.ReadableBy(userID) {
			sum.Unread++
		}
	}
	if len(msgs) > 0 {
		last := msgs[0]
		sender, err := s.resolveSender(last.Sender)
		if err != nil {
			return models.ConversationSummary{}, err
		}
		wm := FormatMessage(last, sender)
		sum.LastMessage = &wm
	}
	return sum, nil
}

// Messages returns a page of the conversation's log. Storage iterates
// newest-first; the page is returned oldest-first for display.
func (s *Service) Messages(convID, userID string, beforeTS int64, limit int) ([]models.WireMessage, error) {
	if _, err := s.Verify(convID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > s.pageSize {
		limit = s.pageSize
	}
	msgs, err := s.store.ListMessages(convID, beforeTS, limit)
	if err != nil {
		return nil, wrapStore(err, "list messages")
	}
	senders := make(map[string]models.WireSender, 2)
	out := make([]models.WireMessage, 0, len(msgs))
	// reverse to oldest-first
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		sender, ok := senders[m.Sender]
		if !ok {
			sender, err = s.resolveSender(m.Sender)
			if err != nil {
				return nil, err
			}
			senders[m.Sender] = sender
		}
		out = append(out, FormatMessage(m, sender))
	}
	return out, nil
}

// SoftDelete hides the conversation from the user's own view. The row is
// purged by retention only after both participants have done so.
func (s *Service) SoftDelete(convID, userID string) error {
	if _, err := s.Verify(convID, userID); err != nil {
		return err
	}
	if err := s.store.SoftDeleteConversation(convID, userID); err != nil {
		return wrapStore(err, "soft delete")
	}
	return nil
}

func previewText(m models.Message) string {
	switch {
	case m.Text != "":
		return m.Text
	case m.ImageRef != "":
		return "Image"
	case m.VoiceRef != "":
		return "Voice message"
	}
	return ""
}

func now() int64 { return time.Now().UTC().UnixNano() }
