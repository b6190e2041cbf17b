package chat

import (
	"fmt"

	"chatsync/pkg/models"
)

// Verify is the single authorization choke point binding a conversation
// to a user. Every component that touches a conversation goes through it
// first. No side effects: it loads and checks, nothing else.
func (s *Service) Verify(convID, userID string) (models.Conversation, error) {
	conv, err := s.store.GetConversation(convID)
	if err != nil {
		return models.Conversation{}, wrapStore(err, "conversation "+convID)
	}
	if !conv.HasParticipant(userID) {
		return models.Conversation{}, fmt.Errorf("user %s not a participant of %s: %w", userID, convID, ErrForbidden)
	}
	return conv, nil
}
