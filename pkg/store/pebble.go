package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"

	"chatsync/pkg/logger"
	"chatsync/pkg/models"
)

// ErrNotFound is returned for missing users, conversations, messages and
// sessions. Callers translate it into their own taxonomy.
var ErrNotFound = errors.New("store: not found")

// ErrConflict is returned when a uniqueness constraint (username, pair
// index) would be violated.
var ErrConflict = errors.New("store: conflict")

const lockStripes = 64

// Store is a Pebble-backed persistence layer for users, sessions,
// conversations and messages.
//
// Key layout:
//
//	user:id:<userID>                 -> models.User
//	user:name:<username>             -> userID
//	session:<token>                  -> models.Session
//	conv:<convID>:meta               -> models.Conversation
//	conv:<convID>:msg:<ts>-<seq>     -> models.Message (ts zero-padded)
//	pair:<loID>|<hiID>               -> convID (unordered-pair uniqueness)
//	msgidx:<msgID>                   -> full message key
//
// Mutations of a single conversation (append, mark-read, like-toggle,
// soft-delete) run under a striped per-conversation mutex so the
// read-modify-write cycle cannot lose updates under concurrent senders.
// Pair creation is serialized by the same striping keyed on the pair key,
// which is the atomicity boundary for find-or-create.
type Store struct {
	db      *pebble.DB
	seq     uint64
	stripes [lockStripes]sync.Mutex
}

// Open opens (or creates) a Pebble database at the given path.
func Open(path string) (*Store, error) {
	logger.Info("opening_pebble_db", "path", path)
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying pebble DB.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	logger.Info("pebble_closed")
	return err
}

// Ready reports whether the store is opened and ready.
func (s *Store) Ready() bool { return s != nil && s.db != nil }

func (s *Store) lockFor(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &s.stripes[h.Sum32()%lockStripes]
}

func (s *Store) get(key string, out interface{}) error {
	v, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	defer closer.Close()
	return json.Unmarshal(v, out)
}

func (s *Store) set(key string, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return s.db.Set([]byte(key), b, pebble.Sync)
}

// PairKey returns the unordered-pair index key for two user ids.
func PairKey(a, b string) string {
	lo, hi := a, b
	if hi < lo {
		lo, hi = hi, lo
	}
	return "pair:" + lo + "|" + hi
}

// --- users ---

// CreateUser stores a new user and its username index entry. Returns
// ErrConflict when the username is already taken.
func (s *Store) CreateUser(u models.User) error {
	nameKey := "user:name:" + u.Username
	mu := s.lockFor(nameKey)
	mu.Lock()
	defer mu.Unlock()

	if _, closer, err := s.db.Get([]byte(nameKey)); err == nil {
		closer.Close()
		return ErrConflict
	} else if !errors.Is(err, pebble.ErrNotFound) {
		return err
	}
	b, err := json.Marshal(u)
	if err != nil {
		return err
	}
	batch := s.db.NewBatch()
	defer batch.Close()
	_ = batch.Set([]byte("user:id:"+u.ID), b, nil)
	_ = batch.Set([]byte(nameKey), []byte(u.ID), nil)
	if err := batch.Commit(pebble.Sync); err != nil {
		logger.Error("create_user_failed", "user", u.ID, "error", err)
		return err
	}
	logger.Info("user_created", "user", u.ID, "username", u.Username)
	return nil
}

// GetUser loads a user by id.
func (s *Store) GetUser(id string) (models.User, error) {
	var u models.User
	err := s.get("user:id:"+id, &u)
	return u, err
}

// GetUserByName loads a user via the username index.
func (s *Store) GetUserByName(username string) (models.User, error) {
	v, closer, err := s.db.Get([]byte("user:name:" + username))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, err
	}
	id := string(v)
	closer.Close()
	return s.GetUser(id)
}

// SetLastSeen records the last offline transition for a user.
func (s *Store) SetLastSeen(userID string, ts int64) error {
	key := "user:id:" + userID
	mu := s.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	var u models.User
	if err := s.get(key, &u); err != nil {
		return err
	}
	u.LastSeenTS = ts
	return s.set(key, u)
}

// --- sessions ---

// PutSession stores a bearer session.
func (s *Store) PutSession(sess models.Session) error {
	return s.set("session:"+sess.Token, sess)
}

// GetSession loads a session by token; expired sessions count as missing.
func (s *Store) GetSession(token string) (models.Session, error) {
	var sess models.Session
	if err := s.get("session:"+token, &sess); err != nil {
		return models.Session{}, err
	}
	if sess.ExpiresTS <= time.Now().UTC().UnixNano() {
		return models.Session{}, ErrNotFound
	}
	return sess, nil
}

// DeleteExpiredSessions removes sessions past their expiry and returns the
// number purged. Used by the retention sweeper.
func (s *Store) DeleteExpiredSessions(now int64) (int, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	prefix := []byte("session:")
	var purged int
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var sess models.Session
		if json.Unmarshal(iter.Value(), &sess) != nil {
			continue
		}
		if sess.ExpiresTS <= now {
			k := append([]byte(nil), iter.Key()...)
			if err := s.db.Delete(k, pebble.Sync); err != nil {
				return purged, err
			}
			purged++
		}
	}
	return purged, iter.Error()
}

// --- conversations ---

// FindConversationByPair resolves the unordered pair index.
func (s *Store) FindConversationByPair(a, b string) (models.Conversation, error) {
	v, closer, err := s.db.Get([]byte(PairKey(a, b)))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return models.Conversation{}, ErrNotFound
		}
		return models.Conversation{}, err
	}
	id := string(v)
	closer.Close()
	return s.GetConversation(id)
}

// CreateConversation inserts a conversation and its pair index inside the
// pair's serialization stripe, re-checking existence before insert so a
// racing creator observes the winner's row instead of erroring.
func (s *Store) CreateConversation(conv models.Conversation) (models.Conversation, bool, error) {
	if len(conv.Participants) != 2 {
		return models.Conversation{}, false, fmt.Errorf("conversation requires two participants")
	}
	pairKey := PairKey(conv.Participants[0], conv.Participants[1])
	mu := s.lockFor(pairKey)
	mu.Lock()
	defer mu.Unlock()

	// re-check under the lock: the race loser returns the winner's row
	if v, closer, err := s.db.Get([]byte(pairKey)); err == nil {
		id := string(v)
		closer.Close()
		existing, gerr := s.GetConversation(id)
		return existing, false, gerr
	} else if !errors.Is(err, pebble.ErrNotFound) {
		return models.Conversation{}, false, err
	}

	b, err := json.Marshal(conv)
	if err != nil {
		return models.Conversation{}, false, err
	}
	batch := s.db.NewBatch()
	defer batch.Close()
	_ = batch.Set([]byte("conv:"+conv.ID+":meta"), b, nil)
	_ = batch.Set([]byte(pairKey), []byte(conv.ID), nil)
	if err := batch.Commit(pebble.Sync); err != nil {
		logger.Error("create_conversation_failed", "conversation", conv.ID, "error", err)
		return models.Conversation{}, false, err
	}
	logger.Info("conversation_created", "conversation", conv.ID)
	return conv, true, nil
}

// GetConversation loads conversation metadata by id.
func (s *Store) GetConversation(id string) (models.Conversation, error) {
	var c models.Conversation
	err := s.get("conv:"+id+":meta", &c)
	return c, err
}

// ListConversationsFor returns all conversations the user participates in
// and has not soft-deleted.
func (s *Store) ListConversationsFor(userID string) ([]models.Conversation, error) {
	all, err := s.ListConversations()
	if err != nil {
		return nil, err
	}
	var out []models.Conversation
	for _, c := range all {
		if c.HasParticipant(userID) && !c.DeletedBy(userID) {
			out = append(out, c)
		}
	}
	return out, nil
}

// ListConversations returns every stored conversation.
func (s *Store) ListConversations() ([]models.Conversation, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	prefix := []byte("conv:")
	var out []models.Conversation
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		if !bytes.HasSuffix(iter.Key(), []byte(":meta")) {
			continue
		}
		var c models.Conversation
		if json.Unmarshal(iter.Value(), &c) == nil {
			out = append(out, c)
		}
	}
	return out, iter.Error()
}

// SoftDeleteConversation adds the user to the conversation's deleted-for
// set. Idempotent.
func (s *Store) SoftDeleteConversation(convID, userID string) error {
	metaKey := "conv:" + convID + ":meta"
	mu := s.lockFor(convID)
	mu.Lock()
	defer mu.Unlock()

	var c models.Conversation
	if err := s.get(metaKey, &c); err != nil {
		return err
	}
	if c.DeletedBy(userID) {
		return nil
	}
	c.DeletedFor = append(c.DeletedFor, userID)
	if err := s.set(metaKey, c); err != nil {
		return err
	}
	logger.Info("conversation_soft_deleted", "conversation", convID, "user", userID)
	return nil
}

// PurgeConversation physically removes a conversation, its messages and
// indexes. Only the retention sweeper calls this, and only once both
// participants have soft-deleted the conversation.
func (s *Store) PurgeConversation(convID string) error {
	mu := s.lockFor(convID)
	mu.Lock()
	defer mu.Unlock()

	c, err := s.GetConversation(convID)
	if err != nil {
		return err
	}
	batch := s.db.NewBatch()
	defer batch.Close()

	prefix := []byte("conv:" + convID + ":msg:")
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return err
	}
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var m models.Message
		if json.Unmarshal(iter.Value(), &m) == nil && m.ID != "" {
			_ = batch.Delete([]byte("msgidx:"+m.ID), nil)
		}
		_ = batch.Delete(append([]byte(nil), iter.Key()...), nil)
	}
	if err := iter.Close(); err != nil {
		return err
	}
	_ = batch.Delete([]byte("conv:"+convID+":meta"), nil)
	_ = batch.Delete([]byte(PairKey(c.Participants[0], c.Participants[1])), nil)
	if err := batch.Commit(pebble.Sync); err != nil {
		return err
	}
	logger.Info("conversation_purged", "conversation", convID)
	return nil
}

// --- messages ---

// AppendMessage appends a message to its conversation's log and bumps the
// conversation's last-activity timestamp, atomically within the
// conversation's stripe.
func (s *Store) AppendMessage(msg models.Message) error {
	convID := msg.Conversation
	metaKey := "conv:" + convID + ":meta"
	mu := s.lockFor(convID)
	mu.Lock()
	defer mu.Unlock()

	var c models.Conversation
	if err := s.get(metaKey, &c); err != nil {
		return err
	}

	// key ordering follows the server-assigned timestamp; the counter only
	// breaks ties within the same nanosecond
	n := atomic.AddUint64(&s.seq, 1)
	msgKey := fmt.Sprintf("conv:%s:msg:%020d-%06d", convID, msg.TS, n)

	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.UpdatedTS = msg.TS
	cb, err := json.Marshal(c)
	if err != nil {
		return err
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	_ = batch.Set([]byte(msgKey), b, nil)
	_ = batch.Set([]byte("msgidx:"+msg.ID), []byte(msgKey), nil)
	_ = batch.Set([]byte(metaKey), cb, nil)
	if err := batch.Commit(pebble.Sync); err != nil {
		logger.Error("append_message_failed", "conversation", convID, "error", err)
		return err
	}
	logger.Debug("message_saved", "conversation", convID, "msg", msg.ID)
	return nil
}

// ListMessages returns messages for a conversation newest-first, up to
// limit, skipping messages with TS >= beforeTS when beforeTS > 0.
func (s *Store) ListMessages(convID string, beforeTS int64, limit int) ([]models.Message, error) {
	prefix := []byte("conv:" + convID + ":msg:")
	upper := []byte(fmt.Sprintf("conv:%s:msg:%020d", convID, beforeTS))
	if beforeTS <= 0 {
		// one past every possible message key for this conversation
		upper = []byte("conv:" + convID + ":msg;")
	}
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upper})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []models.Message
	for valid := iter.Last(); valid; valid = iter.Prev() {
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			return nil, fmt.Errorf("invalid message JSON at %s: %w", iter.Key(), err)
		}
		out = append(out, m)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, iter.Error()
}

// GetMessage resolves a message by id via the message index.
func (s *Store) GetMessage(msgID string) (models.Message, error) {
	v, closer, err := s.db.Get([]byte("msgidx:" + msgID))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return models.Message{}, ErrNotFound
		}
		return models.Message{}, err
	}
	key := string(v)
	closer.Close()
	var m models.Message
	if err := s.get(key, &m); err != nil {
		return models.Message{}, err
	}
	return m, nil
}

// MarkRead adds the reader to the read-by set of every message in the
// conversation not sent by them. Returns the number of messages changed;
// zero on repeat calls, making the operation idempotent.
func (s *Store) MarkRead(convID, readerID string) (int, error) {
	mu := s.lockFor(convID)
	mu.Lock()
	defer mu.Unlock()

	if _, err := s.GetConversation(convID); err != nil {
		return 0, err
	}

	prefix := []byte("conv:" + convID + ":msg:")
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	batch := s.db.NewBatch()
	defer batch.Close()
	changed := 0
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			continue
		}
		if m.Sender == readerID || m.ReadableBy(readerID) {
			continue
		}
		m.ReadBy = append(m.ReadBy, readerID)
		nb, err := json.Marshal(m)
		if err != nil {
			continue
		}
		_ = batch.Set(append([]byte(nil), iter.Key()...), nb, nil)
		_ = batch.Set([]byte("msgidx:"+m.ID), append([]byte(nil), iter.Key()...), nil)
		changed++
	}
	if err := iter.Error(); err != nil {
		return 0, err
	}
	if changed == 0 {
		return 0, nil
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return 0, err
	}
	logger.Debug("messages_marked_read", "conversation", convID, "reader", readerID, "changed", changed)
	return changed, nil
}

// ToggleLike flips the user's membership in the message's liked-by set
// and returns the new state. The operation is an involution: applying it
// twice restores the original state.
func (s *Store) ToggleLike(convID, msgID, userID string) (bool, int, error) {
	mu := s.lockFor(convID)
	mu.Lock()
	defer mu.Unlock()

	v, closer, err := s.db.Get([]byte("msgidx:" + msgID))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return false, 0, ErrNotFound
		}
		return false, 0, err
	}
	key := string(v)
	closer.Close()

	var m models.Message
	if err := s.get(key, &m); err != nil {
		return false, 0, err
	}
	if m.Conversation != convID {
		return false, 0, ErrNotFound
	}

	liked := false
	if m.LikedByUser(userID) {
		next := m.LikedBy[:0]
		for _, l := range m.LikedBy {
			if l != userID {
				next = append(next, l)
			}
		}
		m.LikedBy = next
	} else {
		m.LikedBy = append(m.LikedBy, userID)
		liked = true
	}
	if err := s.set(key, m); err != nil {
		return false, 0, err
	}
	logger.Debug("message_like_toggled", "conversation", convID, "msg", msgID, "user", userID, "liked", liked)
	return liked, len(m.LikedBy), nil
}
