package chat

// MarkRead adds the reader to the read-by set of every message in the
// conversation they have not read and did not send. Idempotent; the read
// receipt is emitted only when at least one message actually changed.
func (s *Service) MarkRead(convID, readerID string) (int, error) {
	conv, err := s.Verify(convID, readerID)
	if err != nil {
		return 0, err
	}
	changed, err := s.store.MarkRead(convID, readerID)
	if err != nil {
		return 0, wrapStore(err, "mark read")
	}
	if changed == 0 {
		return 0, nil
	}
	frame := Frame(MessagesReadEvent{Type: EventMessagesRead, UserID: readerID, Conversation: convID})
	s.hub.ToConversation(convID, frame, "")
	s.hub.ToUser(conv.Peer(readerID), frame)
	return changed, nil
}

// ToggleLike flips the user's like on a message and reports the new
// state. An involution: toggling twice restores the original state.
func (s *Service) ToggleLike(convID, msgID, userID string) (bool, int, error) {
	conv, err := s.Verify(convID, userID)
	if err != nil {
		return false, 0, err
	}
	liked, count, err := s.store.ToggleLike(convID, msgID, userID)
	if err != nil {
		return false, 0, wrapStore(err, "message "+msgID)
	}
	frame := Frame(MessageLikeToggledEvent{
		Type:         EventMessageLikeToggled,
		Conversation: convID,
		MessageID:    msgID,
		UserID:       userID,
		IsLiked:      liked,
		LikesCount:   count,
	})
	s.hub.ToConversation(convID, frame, "")
	for _, participant := range conv.Participants {
		s.hub.ToUser(participant, frame)
	}
	return liked, count, nil
}
