package models

// Conversation is the two-party message thread and its metadata. At most
// one conversation exists per unordered participant pair; the store
// enforces that with a pair index independent of participant ordering.
type Conversation struct {
	ID string `json:"id"`
	// Participants holds exactly two user ids; order is not significant.
	Participants []string `json:"participants"`
	// Created timestamp (ns)
	CreatedTS int64 `json:"created_ts"`
	// UpdatedTS is bumped on every appended message (last activity).
	UpdatedTS int64 `json:"updated_ts"`
	// DeletedFor lists participants who soft-deleted the conversation from
	// their own view. The row is purged only once both participants appear.
	DeletedFor []string `json:"deleted_for,omitempty"`
}

// HasParticipant reports whether the user is one of the two participants.
func (c Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// Peer returns the other participant for the given user, or "" when the
// user is not a participant.
func (c Conversation) Peer(userID string) string {
	for _, p := range c.Participants {
		if p != userID {
			return p
		}
	}
	return ""
}

// DeletedBy reports whether the user soft-deleted this conversation.
func (c Conversation) DeletedBy(userID string) bool {
	for _, d := range c.DeletedFor {
		if d == userID {
			return true
		}
	}
	return false
}

// ConversationSummary is the per-user conversation list projection.
type ConversationSummary struct {
	ID          string       `json:"id"`
	Peer        WireSender   `json:"peer"`
	PeerOnline  bool         `json:"peer_online"`
	UpdatedTS   int64        `json:"updated_ts"`
	Unread      int          `json:"unread"`
	LastMessage *WireMessage `json:"last_message,omitempty"`
}
