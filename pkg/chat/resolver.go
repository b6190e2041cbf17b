package chat

import (
	"errors"
	"fmt"

	"chatsync/pkg/models"
	"chatsync/pkg/store"
	"chatsync/pkg/telemetry"
	"chatsync/pkg/utils"
)

// Destination is the tagged outcome of resolving a live-channel send
// destination: either an existing conversation, or one freshly created
// for a counterpart user id.
type Destination struct {
	Conversation models.Conversation
	// Created reports a new conversation; callers must tell the sending
	// session the resolved id so it can redirect future operations.
	Created bool
}

// FindOrCreate returns the unique conversation for the unordered pair,
// creating it when absent. Atomic with respect to concurrent callers:
// the store serializes creation on the pair key and re-checks before
// insert, so a racing creator wins outright or observes the winner's row.
func (s *Service) FindOrCreate(userID, peerID string) (models.Conversation, bool, error) {
	if peerID == "" || peerID == userID {
		return models.Conversation{}, false, fmt.Errorf("invalid counterpart %q: %w", peerID, ErrValidation)
	}
	if _, err := s.store.GetUser(peerID); err != nil {
		return models.Conversation{}, false, wrapStore(err, "counterpart "+peerID)
	}

	conv, err := s.store.FindConversationByPair(userID, peerID)
	if err == nil {
		return conv, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return models.Conversation{}, false, wrapStore(err, "pair lookup")
	}

	conv, created, err := s.store.CreateConversation(models.Conversation{
		ID:           utils.GenConversationID(),
		Participants: []string{userID, peerID},
		CreatedTS:    now(),
		UpdatedTS:    now(),
	})
	if err != nil {
		return models.Conversation{}, false, wrapStore(err, "create conversation")
	}
	if created {
		telemetry.ConversationsCreated.Inc()
	}
	return conv, created, nil
}

// ResolveDestination interprets a send destination. A destination the
// Access Gate accepts is an existing conversation; one it reports as
// missing is reinterpreted as a counterpart user id and resolved through
// FindOrCreate. A Forbidden verdict propagates unchanged.
func (s *Service) ResolveDestination(senderID, dest string) (Destination, error) {
	if dest == "" {
		return Destination{}, fmt.Errorf("empty destination: %w", ErrValidation)
	}
	conv, err := s.Verify(dest, senderID)
	if err == nil {
		return Destination{Conversation: conv}, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Destination{}, err
	}
	conv, created, err := s.FindOrCreate(senderID, dest)
	if err != nil {
		return Destination{}, err
	}
	return Destination{Conversation: conv, Created: created}, nil
}
