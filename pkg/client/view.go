// Package client is the reconciliation layer embedded in chat clients.
// It maintains an optimistic local projection of one conversation plus
// the conversation list and merges authoritative server events into it
// without duplicating or losing entries.
package client

import (
	"sync"

	"chatsync/pkg/chat"
	"chatsync/pkg/models"
)

// Entry is one row of the local message list. Provisional entries carry a
// client-generated temporary id until the authoritative message replaces
// them.
type Entry struct {
	Message     models.WireMessage
	Provisional bool
	TempID      string
}

// View is the optimistic message list for a single conversation.
type View struct {
	mu      sync.Mutex
	entries []Entry
}

// NewView returns an empty view.
func NewView() *View { return &View{} }

// Load replaces the view with an authoritative page, discarding nothing
// provisional: in-flight sends are re-appended after the page so they
// remain visible until confirmed or failed.
func (v *View) Load(msgs []models.WireMessage) {
	v.mu.Lock()
	defer v.mu.Unlock()
	pending := make([]Entry, 0)
	for _, e := range v.entries {
		if e.Provisional {
			pending = append(pending, e)
		}
	}
	v.entries = make([]Entry, 0, len(msgs)+len(pending))
	for _, m := range msgs {
		v.entries = append(v.entries, Entry{Message: m})
	}
	v.entries = append(v.entries, pending...)
}

// AddProvisional inserts a local echo of an in-flight send.
func (v *View) AddProvisional(tempID, senderID string, p chat.Payload) {
	v.mu.Lock()
	defer v.mu.Unlock()
	m := models.WireMessage{
		ID:       tempID,
		Sender:   models.WireSender{ID: senderID},
		Text:     p.Text,
		ImageRef: p.ImageRef,
		ReadBy:   []string{senderID},
	}
	if p.VoiceRef != "" {
		m.Voice = &models.WireVoice{Ref: p.VoiceRef, Duration: p.VoiceDuration}
	}
	v.entries = append(v.entries, Entry{Message: m, Provisional: true, TempID: tempID})
}

// payloadEqual reports whether an authoritative message carries the same
// content as a provisional entry. Matching is by payload, not id: the
// server assigned its own id.
func payloadEqual(a models.WireMessage, e Entry) bool {
	b := e.Message
	if a.Sender.ID != b.Sender.ID || a.Text != b.Text || a.ImageRef != b.ImageRef {
		return false
	}
	av, bv := a.Voice, b.Voice
	if (av == nil) != (bv == nil) {
		return false
	}
	if av != nil && av.Ref != bv.Ref {
		return false
	}
	return true
}

// Apply merges an authoritative message. If it matches a provisional
// entry the entry is replaced in place and loses its provisional flag;
// otherwise the message is appended. Returns true when a provisional
// entry was consumed.
func (v *View) Apply(m models.WireMessage) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, e := range v.entries {
		if !e.Provisional {
			if e.Message.ID == m.ID {
				// duplicate delivery; at-least-once fanout
				v.entries[i].Message = m
				return false
			}
			continue
		}
		if payloadEqual(m, e) {
			v.entries[i] = Entry{Message: m}
			return true
		}
	}
	v.entries = append(v.entries, Entry{Message: m})
	return false
}

// Fail removes a provisional entry after its send errored.
func (v *View) Fail(tempID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, e := range v.entries {
		if e.Provisional && e.TempID == tempID {
			v.entries = append(v.entries[:i], v.entries[i+1:]...)
			return
		}
	}
}

// ApplyLike patches reaction state from a message-like-toggled event.
func (v *View) ApplyLike(messageID string, isLiked bool, likesCount int, userID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, e := range v.entries {
		if e.Message.ID != messageID {
			continue
		}
		e.Message.LikesCount = likesCount
		liked := make([]string, 0, likesCount)
		for _, u := range e.Message.LikedBy {
			if u != userID {
				liked = append(liked, u)
			}
		}
		if isLiked {
			liked = append(liked, userID)
		}
		e.Message.LikedBy = liked
		v.entries[i] = e
	}
}

// ApplyRead adds the reader to every message they had not read.
func (v *View) ApplyRead(readerID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, e := range v.entries {
		if e.Message.Sender.ID == readerID {
			continue
		}
		seen := false
		for _, u := range e.Message.ReadBy {
			if u == readerID {
				seen = true
				break
			}
		}
		if !seen {
			e.Message.ReadBy = append(e.Message.ReadBy, readerID)
			v.entries[i] = e
		}
	}
}

// Entries returns a snapshot of the current list.
func (v *View) Entries() []Entry {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]Entry, len(v.entries))
	copy(out, v.entries)
	return out
}
