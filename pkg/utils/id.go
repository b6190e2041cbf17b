package utils

import "github.com/google/uuid"

// GenID returns a fresh random identifier for messages and sessions.
func GenID() string { return uuid.NewString() }

// GenConversationID returns a prefixed identifier so conversation ids are
// distinguishable from user ids in live-channel destinations.
func GenConversationID() string { return "conv_" + uuid.NewString() }

// GenConnID returns an identifier for a single live connection.
func GenConnID() string { return "conn_" + uuid.NewString() }
