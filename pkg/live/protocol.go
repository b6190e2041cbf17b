package live

// request is the client → server frame. Type selects the operation; the
// remaining fields are per-type. Ref is an opaque client tag echoed on the
// ack or error for that frame.
type request struct {
	Type string `json:"type"`
	Ref  string `json:"ref,omitempty"`

	// join-conversation, leave-conversation, typing, mark-read
	Conversation string `json:"conversation,omitempty"`

	// send-message: a conversation id, or a user id before any
	// conversation with that user exists
	Destination string `json:"destination,omitempty"`

	// send-message content
	Text          string  `json:"text,omitempty"`
	ImageRef      string  `json:"image_ref,omitempty"`
	VoiceRef      string  `json:"voice_ref,omitempty"`
	VoiceDuration float64 `json:"voice_duration,omitempty"`

	// toggle-like
	Message string `json:"message,omitempty"`

	// typing
	IsTyping bool `json:"is_typing,omitempty"`
}

// Client → server frame types.
const (
	opJoin       = "join-conversation"
	opLeave      = "leave-conversation"
	opSend       = "send-message"
	opTyping     = "typing"
	opMarkRead   = "mark-read"
	opToggleLike = "toggle-like"
)
