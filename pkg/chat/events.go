package chat

import (
	"encoding/json"

	"chatsync/pkg/models"
)

// Server → client live-channel event types.
const (
	EventNewMessage          = "new-message"
	EventMessageSent         = "message-sent"
	EventConversationUpdated = "conversation-updated"
	EventConversationCreated = "conversation-created"
	EventUserOnline          = "user-online"
	EventUserOffline         = "user-offline"
	EventMessagesRead        = "messages-read"
	EventMessageLikeToggled  = "message-like-toggled"
	EventTyping              = "typing"
	EventError               = "error"
)

// NewMessageEvent carries the display-ready message.
type NewMessageEvent struct {
	Type    string             `json:"type"`
	Message models.WireMessage `json:"message"`
}

// MessageSentEvent is the sender's ack. ResolvedConversation tells the
// sending session which conversation the message actually landed in so it
// can redirect future operations after a user-id destination.
type MessageSentEvent struct {
	Type                 string             `json:"type"`
	Ref                  string             `json:"ref,omitempty"`
	MessageID            string             `json:"message_id"`
	ResolvedConversation string             `json:"resolved_conversation"`
	WasNewConversation   bool               `json:"was_new_conversation"`
	Message              models.WireMessage `json:"message"`
}

// ConversationUpdatedEvent refreshes conversation-list previews on devices
// not viewing the conversation.
type ConversationUpdatedEvent struct {
	Type         string `json:"type"`
	Conversation string `json:"conversation"`
	PreviewText  string `json:"preview_text"`
	TS           int64  `json:"ts"`
}

// ConversationCreatedEvent materializes a conversation entry before its
// first message event arrives.
type ConversationCreatedEvent struct {
	Type         string   `json:"type"`
	Conversation string   `json:"conversation"`
	Participants []string `json:"participants"`
}

// PresenceEvent announces an online/offline edge.
type PresenceEvent struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
}

// MessagesReadEvent is the read receipt.
type MessagesReadEvent struct {
	Type         string `json:"type"`
	UserID       string `json:"user_id"`
	Conversation string `json:"conversation"`
}

// MessageLikeToggledEvent carries the new reaction state.
type MessageLikeToggledEvent struct {
	Type         string `json:"type"`
	Conversation string `json:"conversation"`
	MessageID    string `json:"message_id"`
	UserID       string `json:"user_id"`
	IsLiked      bool   `json:"is_liked"`
	LikesCount   int    `json:"likes_count"`
}

// TypingEvent relays a typing indicator; never persisted.
type TypingEvent struct {
	Type         string `json:"type"`
	Conversation string `json:"conversation"`
	UserID       string `json:"user_id"`
	IsTyping     bool   `json:"is_typing"`
}

// ErrorEvent is the scoped error emitted by live handlers. Ref echoes the
// client's request tag when one was supplied.
type ErrorEvent struct {
	Type    string `json:"type"`
	Ref     string `json:"ref,omitempty"`
	Message string `json:"message"`
}

// Frame marshals an event for fanout. Marshaling these shapes cannot
// fail; a nil frame would only follow a programming error.
func Frame(v interface{}) []byte {
	b, _ := json.Marshal(v)
	return b
}
