package client

import (
	"sync"

	"chatsync/pkg/models"
)

// List is the optimistic conversation-list projection. Optimistic bumps
// are taken against a snapshot so a failed send can revert, and any
// authoritative refresh wins over earlier guesses.
type List struct {
	mu       sync.Mutex
	items    []models.ConversationSummary
	snapshot []models.ConversationSummary
}

// NewList returns an empty list.
func NewList() *List { return &List{} }

func cloneSummaries(in []models.ConversationSummary) []models.ConversationSummary {
	out := make([]models.ConversationSummary, len(in))
	copy(out, in)
	return out
}

// Refresh replaces the list with the server's view and clears any pending
// snapshot; the authoritative state supersedes optimistic guesses.
func (l *List) Refresh(items []models.ConversationSummary) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = cloneSummaries(items)
	l.snapshot = nil
}

// OptimisticBump records a snapshot (if none is pending) and moves the
// conversation to the top with the given preview.
func (l *List) OptimisticBump(convID, previewText string, ts int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.snapshot == nil {
		l.snapshot = cloneSummaries(l.items)
	}
	l.bump(convID, previewText, ts)
}

// Rollback restores the last snapshot after a failed optimistic
// mutation. No-op when nothing is pending.
func (l *List) Rollback() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.snapshot != nil {
		l.items = l.snapshot
		l.snapshot = nil
	}
}

// Commit finalizes an optimistic mutation. The bumped entry was keyed by
// the send destination, which may have been a peer user id; when the
// server resolved it to a different conversation id the placeholder is
// removed so the authoritative update owns the only entry.
func (l *List) Commit(dest, resolvedID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.snapshot = nil
	if dest == resolvedID {
		return
	}
	for i, it := range l.items {
		if it.ID == dest {
			l.items = append(l.items[:i], l.items[i+1:]...)
			return
		}
	}
}

// ApplyUpdated merges a conversation-updated event.
func (l *List) ApplyUpdated(convID, previewText string, ts int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bump(convID, previewText, ts)
}

// ApplyCreated materializes a conversation entry ahead of its first
// message event. Idempotent per conversation id.
func (l *List) ApplyCreated(convID string, peer models.WireSender) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, it := range l.items {
		if it.ID == convID {
			return
		}
	}
	l.items = append([]models.ConversationSummary{{ID: convID, Peer: peer}}, l.items...)
}

// ApplyPresence flips the peer-online flag on every conversation with
// that peer.
func (l *List) ApplyPresence(userID string, online bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.items {
		if l.items[i].Peer.ID == userID {
			l.items[i].PeerOnline = online
		}
	}
}

// bump moves convID to the front, updating its preview. Callers hold the
// lock.
func (l *List) bump(convID, previewText string, ts int64) {
	idx := -1
	for i, it := range l.items {
		if it.ID == convID {
			idx = i
			break
		}
	}
	if idx < 0 {
		l.items = append([]models.ConversationSummary{{ID: convID, UpdatedTS: ts}}, l.items...)
		idx = 0
	} else {
		it := l.items[idx]
		copy(l.items[1:idx+1], l.items[:idx])
		l.items[0] = it
		idx = 0
	}
	if ts >= l.items[idx].UpdatedTS {
		l.items[idx].UpdatedTS = ts
		if previewText != "" {
			if l.items[idx].LastMessage == nil {
				l.items[idx].LastMessage = &models.WireMessage{}
			}
			l.items[idx].LastMessage.Text = previewText
			l.items[idx].LastMessage.TS = ts
		}
	}
}

// Items returns a snapshot of the current ordering.
func (l *List) Items() []models.ConversationSummary {
	l.mu.Lock()
	defer l.mu.Unlock()
	return cloneSummaries(l.items)
}
