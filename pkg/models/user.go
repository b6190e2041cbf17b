package models

// User is a registered account. PasswordHash never leaves the store layer
// in API responses.
type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	DisplayName  string `json:"display_name,omitempty"`
	AvatarURL    string `json:"avatar_url,omitempty"`
	PasswordHash string `json:"password_hash,omitempty"`
	CreatedTS    int64  `json:"created_ts"`
	// LastSeenTS records the last offline transition (ns); zero until the
	// user has disconnected at least once.
	LastSeenTS int64 `json:"last_seen_ts,omitempty"`
}

// Wire returns the resolved sender shape for this user.
func (u User) Wire() WireSender {
	return WireSender{ID: u.ID, Username: u.Username, DisplayName: u.DisplayName, AvatarURL: u.AvatarURL}
}

// Session binds a bearer token to a user with an expiry.
type Session struct {
	Token     string `json:"token"`
	UserID    string `json:"user_id"`
	ExpiresTS int64  `json:"expires_ts"`
}
