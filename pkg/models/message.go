package models

// Message is the stored shape of a single chat message. Messages are
// immutable after append except for the ReadBy and LikedBy sets, which
// change by single-member toggle only.
type Message struct {
	ID           string `json:"id"`
	Conversation string `json:"conversation"`
	Sender       string `json:"sender"`
	// Payload: at least one of Text, ImageRef or VoiceRef must be set.
	Text          string  `json:"text,omitempty"`
	ImageRef      string  `json:"image_ref,omitempty"`
	VoiceRef      string  `json:"voice_ref,omitempty"`
	VoiceDuration float64 `json:"voice_duration,omitempty"`
	// TS is the server-assigned creation timestamp (ns); authoritative for ordering.
	TS int64 `json:"ts"`
	// ReadBy always contains the sender.
	ReadBy  []string `json:"read_by"`
	LikedBy []string `json:"liked_by,omitempty"`
}

// HasPayload reports whether the message carries at least one payload kind.
func (m Message) HasPayload() bool {
	return m.Text != "" || m.ImageRef != "" || m.VoiceRef != ""
}

// ReadableBy reports whether the given user is in the read-by set.
func (m Message) ReadableBy(userID string) bool {
	for _, r := range m.ReadBy {
		if r == userID {
			return true
		}
	}
	return false
}

// LikedByUser reports whether the given user is in the liked-by set.
func (m Message) LikedByUser(userID string) bool {
	for _, l := range m.LikedBy {
		if l == userID {
			return true
		}
	}
	return false
}

// WireVoice is the voice payload sub-object of the display-ready shape.
type WireVoice struct {
	Ref      string  `json:"ref"`
	Duration float64 `json:"duration"`
}

// WireSender is the resolved sender profile carried by wire payloads.
// Handlers must never emit a bare sender id past the formatting step.
type WireSender struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// WireMessage is the denormalized, display-ready shape of a message as
// delivered to clients over both transports.
type WireMessage struct {
	ID           string     `json:"id"`
	Conversation string     `json:"conversation"`
	Sender       WireSender `json:"sender"`
	Text         string     `json:"text,omitempty"`
	ImageRef     string     `json:"image_ref,omitempty"`
	Voice        *WireVoice `json:"voice,omitempty"`
	TS           int64      `json:"ts"`
	ReadBy       []string   `json:"read_by"`
	LikedBy      []string   `json:"liked_by"`
	LikesCount   int        `json:"likes_count"`
}
