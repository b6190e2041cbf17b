// Package presence tracks which users currently hold live connections.
//
// The registry is process-local state: it starts empty, mutates on every
// connect/disconnect and is never persisted. After a restart every user
// appears offline until their client reconnects.
package presence

import (
	"sync"
	"time"

	"chatsync/pkg/logger"
)

// LastSeenRecorder is the user-profile collaborator notified on the
// offline edge so "last seen" survives the registry's volatility.
type LastSeenRecorder interface {
	SetLastSeen(userID string, ts int64) error
}

// EdgeFunc is invoked on every online/offline transition. Edges are
// 0→1 and 1→0 only; intermediate connects and disconnects of a
// multi-device user do not fire.
type EdgeFunc func(userID string, online bool)

// Registry is the single synchronized owner of the connection map. It is
// injectable so tests construct a fresh one and a distributed store could
// replace it behind the same surface.
type Registry struct {
	mu    sync.Mutex
	conns map[string]map[string]struct{}

	onEdge   EdgeFunc
	lastSeen LastSeenRecorder
}

// New returns an empty registry. Either collaborator may be nil.
func New(onEdge EdgeFunc, lastSeen LastSeenRecorder) *Registry {
	return &Registry{
		conns:    make(map[string]map[string]struct{}),
		onEdge:   onEdge,
		lastSeen: lastSeen,
	}
}

// SetEdgeFunc installs the edge callback after construction; the fanout
// side needs the registry to exist first.
func (r *Registry) SetEdgeFunc(fn EdgeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onEdge = fn
}

// Register adds a connection to the user's set, creating the entry if
// absent. Returns true when this was the user's first connection (the
// online edge), in which case the edge callback has been fired.
func (r *Registry) Register(userID, connID string) bool {
	r.mu.Lock()
	set, ok := r.conns[userID]
	if !ok {
		set = make(map[string]struct{})
		r.conns[userID] = set
	}
	set[connID] = struct{}{}
	first := !ok && len(set) == 1
	fn := r.onEdge
	r.mu.Unlock()

	if first {
		logger.Info("user_online", "user", userID)
		if fn != nil {
			fn(userID, true)
		}
	}
	return first
}

// Unregister removes a connection. When the user's set becomes empty the
// entry is dropped, the offline edge fires and last-seen is recorded.
// Returns true on the offline edge.
func (r *Registry) Unregister(userID, connID string) bool {
	r.mu.Lock()
	set, ok := r.conns[userID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(set, connID)
	last := len(set) == 0
	if last {
		delete(r.conns, userID)
	}
	fn := r.onEdge
	r.mu.Unlock()

	if last {
		logger.Info("user_offline", "user", userID)
		if r.lastSeen != nil {
			if err := r.lastSeen.SetLastSeen(userID, time.Now().UTC().UnixNano()); err != nil {
				logger.Warn("last_seen_record_failed", "user", userID, "error", err)
			}
		}
		if fn != nil {
			fn(userID, false)
		}
	}
	return last
}

// IsOnline reports whether the user has at least one live connection.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns[userID]) > 0
}

// OnlineUsers returns the set of users with at least one live connection.
func (r *Registry) OnlineUsers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.conns))
	for u := range r.conns {
		out = append(out, u)
	}
	return out
}
