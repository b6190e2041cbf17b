package chat

import (
	"fmt"

	"chatsync/pkg/models"
	"chatsync/pkg/telemetry"
	"chatsync/pkg/utils"
)

// Payload is the inbound message content. At least one of Text, ImageRef
// or VoiceRef must be present; more than one is allowed but unusual.
type Payload struct {
	Text          string  `json:"text,omitempty"`
	ImageRef      string  `json:"image_ref,omitempty"`
	VoiceRef      string  `json:"voice_ref,omitempty"`
	VoiceDuration float64 `json:"voice_duration,omitempty"`
}

// Validate rejects empty payloads.
func (p Payload) Validate() error {
	if p.Text == "" && p.ImageRef == "" && p.VoiceRef == "" {
		return fmt.Errorf("message requires text, image or voice content: %w", ErrValidation)
	}
	return nil
}

// appendMessage builds the stored message (read-by initialized to the
// sender, server-assigned timestamp) and persists it.
func (s *Service) appendMessage(conv models.Conversation, senderID string, p Payload) (models.Message, error) {
	msg := models.Message{
		ID:            utils.GenID(),
		Conversation:  conv.ID,
		Sender:        senderID,
		Text:          p.Text,
		ImageRef:      p.ImageRef,
		VoiceRef:      p.VoiceRef,
		VoiceDuration: p.VoiceDuration,
		TS:            now(),
		ReadBy:        []string{senderID},
	}
	if err := s.store.AppendMessage(msg); err != nil {
		return models.Message{}, wrapStore(err, "append message")
	}
	telemetry.MessagesAppended.Inc()
	return msg, nil
}

// resolveSender normalizes a sender id into the canonical resolved shape
// at the pipeline boundary so no bare id propagates past formatting.
func (s *Service) resolveSender(userID string) (models.WireSender, error) {
	u, err := s.store.GetUser(userID)
	if err != nil {
		return models.WireSender{}, wrapStore(err, "sender "+userID)
	}
	return u.Wire(), nil
}

// FormatMessage produces the wire payload for a stored message. Pure: it
// mutates nothing and is shared by both transports so their outputs are
// identical in shape.
func FormatMessage(m models.Message, sender models.WireSender) models.WireMessage {
	wm := models.WireMessage{
		ID:           m.ID,
		Conversation: m.Conversation,
		Sender:       sender,
		Text:         m.Text,
		ImageRef:     m.ImageRef,
		TS:           m.TS,
		ReadBy:       append([]string{}, m.ReadBy...),
		LikedBy:      append([]string{}, m.LikedBy...),
		LikesCount:   len(m.LikedBy),
	}
	if m.VoiceRef != "" {
		wm.Voice = &models.WireVoice{Ref: m.VoiceRef, Duration: m.VoiceDuration}
	}
	return wm
}
