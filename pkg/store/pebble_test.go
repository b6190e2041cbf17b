package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"chatsync/pkg/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mkUser(t *testing.T, s *Store, id, name string) models.User {
	t.Helper()
	u := models.User{ID: id, Username: name, CreatedTS: time.Now().UnixNano()}
	if err := s.CreateUser(u); err != nil {
		t.Fatalf("create user %s: %v", id, err)
	}
	return u
}

func mkConv(t *testing.T, s *Store, id, a, b string) models.Conversation {
	t.Helper()
	conv, created, err := s.CreateConversation(models.Conversation{
		ID:           id,
		Participants: []string{a, b},
		CreatedTS:    time.Now().UnixNano(),
		UpdatedTS:    time.Now().UnixNano(),
	})
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	if !created {
		t.Fatalf("expected fresh conversation for %s/%s", a, b)
	}
	return conv
}

func TestCreateUserUsernameConflict(t *testing.T) {
	s := openTestStore(t)
	mkUser(t, s, "u1", "ada")
	err := s.CreateUser(models.User{ID: "u2", Username: "ada"})
	if err != ErrConflict {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	got, err := s.GetUserByName("ada")
	if err != nil || got.ID != "u1" {
		t.Fatalf("username index corrupted: %v %+v", err, got)
	}
}

func TestSessionExpiry(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC().UnixNano()
	if err := s.PutSession(models.Session{Token: "live", UserID: "u1", ExpiresTS: now + int64(time.Hour)}); err != nil {
		t.Fatalf("put session: %v", err)
	}
	if err := s.PutSession(models.Session{Token: "dead", UserID: "u1", ExpiresTS: now - 1}); err != nil {
		t.Fatalf("put session: %v", err)
	}
	if _, err := s.GetSession("live"); err != nil {
		t.Fatalf("live session rejected: %v", err)
	}
	if _, err := s.GetSession("dead"); err != ErrNotFound {
		t.Fatalf("expired session accepted: %v", err)
	}
	purged, err := s.DeleteExpiredSessions(now)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if purged != 1 {
		t.Fatalf("purged = %d, want 1", purged)
	}
}

func TestPairKeyUnordered(t *testing.T) {
	if PairKey("a", "b") != PairKey("b", "a") {
		t.Fatalf("pair key depends on argument order")
	}
}

func TestCreateConversationRace(t *testing.T) {
	s := openTestStore(t)
	const attempts = 16
	ids := make(chan string, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		// alternate participant order to exercise the unordered index
		a, b := "alice", "bob"
		if i%2 == 1 {
			a, b = b, a
		}
		id := fmt.Sprintf("conv-%d", i)
		go func(id, a, b string) {
			defer wg.Done()
			conv, _, err := s.CreateConversation(models.Conversation{ID: id, Participants: []string{a, b}})
			if err != nil {
				t.Errorf("create: %v", err)
				return
			}
			ids <- conv.ID
		}(id, a, b)
	}
	wg.Wait()
	close(ids)
	seen := map[string]bool{}
	for id := range ids {
		seen[id] = true
	}
	if len(seen) != 1 {
		t.Fatalf("race produced %d conversations, want 1", len(seen))
	}
}

func TestAppendAndListMessages(t *testing.T) {
	s := openTestStore(t)
	conv := mkConv(t, s, "c1", "alice", "bob")

	base := time.Now().UTC().UnixNano()
	for i := 0; i < 5; i++ {
		msg := models.Message{
			ID:           fmt.Sprintf("m%d", i),
			Conversation: conv.ID,
			Sender:       "alice",
			Text:         fmt.Sprintf("hello %d", i),
			TS:           base + int64(i),
			ReadBy:       []string{"alice"},
		}
		if err := s.AppendMessage(msg); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	// newest-first, full page
	msgs, err := s.ListMessages(conv.ID, 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 5 || msgs[0].ID != "m4" || msgs[4].ID != "m0" {
		t.Fatalf("unexpected order: %+v", msgs)
	}

	// paginate strictly before m2's timestamp
	page, err := s.ListMessages(conv.ID, base+2, 10)
	if err != nil {
		t.Fatalf("list before: %v", err)
	}
	if len(page) != 2 || page[0].ID != "m1" || page[1].ID != "m0" {
		t.Fatalf("pagination wrong: %+v", page)
	}

	// limit applies from the newest end
	top, err := s.ListMessages(conv.ID, 0, 2)
	if err != nil {
		t.Fatalf("list limit: %v", err)
	}
	if len(top) != 2 || top[0].ID != "m4" {
		t.Fatalf("limit wrong: %+v", top)
	}

	// conversation activity follows the last append
	got, err := s.GetConversation(conv.ID)
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if got.UpdatedTS != base+4 {
		t.Fatalf("UpdatedTS = %d, want %d", got.UpdatedTS, base+4)
	}

	// secondary index resolves ids
	m, err := s.GetMessage("m3")
	if err != nil || m.Text != "hello 3" {
		t.Fatalf("get by id: %v %+v", err, m)
	}
}

func TestMarkReadIdempotent(t *testing.T) {
	s := openTestStore(t)
	conv := mkConv(t, s, "c1", "alice", "bob")
	ts := time.Now().UTC().UnixNano()
	for i := 0; i < 3; i++ {
		if err := s.AppendMessage(models.Message{
			ID: fmt.Sprintf("m%d", i), Conversation: conv.ID, Sender: "alice",
			Text: "hi", TS: ts + int64(i), ReadBy: []string{"alice"},
		}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	changed, err := s.MarkRead(conv.ID, "bob")
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if changed != 3 {
		t.Fatalf("changed = %d, want 3", changed)
	}
	changed, err = s.MarkRead(conv.ID, "bob")
	if err != nil {
		t.Fatalf("second mark read: %v", err)
	}
	if changed != 0 {
		t.Fatalf("second call changed %d messages, want 0", changed)
	}
	msgs, _ := s.ListMessages(conv.ID, 0, 0)
	for _, m := range msgs {
		if !m.ReadableBy("bob") || !m.ReadableBy("alice") {
			t.Fatalf("read-by incomplete: %+v", m)
		}
	}
	// the sender never marks their own messages
	if changed, _ := s.MarkRead(conv.ID, "alice"); changed != 0 {
		t.Fatalf("sender mark-read changed %d", changed)
	}
}

func TestToggleLikeInvolution(t *testing.T) {
	s := openTestStore(t)
	conv := mkConv(t, s, "c1", "alice", "bob")
	if err := s.AppendMessage(models.Message{
		ID: "m1", Conversation: conv.ID, Sender: "alice",
		Text: "like me", TS: time.Now().UTC().UnixNano(), ReadBy: []string{"alice"},
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	liked, count, err := s.ToggleLike(conv.ID, "m1", "bob")
	if err != nil || !liked || count != 1 {
		t.Fatalf("first toggle: liked=%v count=%d err=%v", liked, count, err)
	}
	liked, count, err = s.ToggleLike(conv.ID, "m1", "bob")
	if err != nil || liked || count != 0 {
		t.Fatalf("second toggle: liked=%v count=%d err=%v", liked, count, err)
	}

	if _, _, err := s.ToggleLike(conv.ID, "missing", "bob"); err != ErrNotFound {
		t.Fatalf("missing message toggle: %v", err)
	}
	// a message cannot be liked through another conversation's id
	other := mkConv(t, s, "c2", "alice", "carol")
	if _, _, err := s.ToggleLike(other.ID, "m1", "alice"); err != ErrNotFound {
		t.Fatalf("cross-conversation toggle: %v", err)
	}
}

func TestSoftDeleteAndPurge(t *testing.T) {
	s := openTestStore(t)
	conv := mkConv(t, s, "c1", "alice", "bob")
	if err := s.AppendMessage(models.Message{
		ID: "m1", Conversation: conv.ID, Sender: "alice", Text: "bye",
		TS: time.Now().UTC().UnixNano(), ReadBy: []string{"alice"},
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	if err := s.SoftDeleteConversation(conv.ID, "alice"); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if err := s.SoftDeleteConversation(conv.ID, "alice"); err != nil {
		t.Fatalf("repeat soft delete: %v", err)
	}
	got, _ := s.GetConversation(conv.ID)
	if len(got.DeletedFor) != 1 {
		t.Fatalf("deleted-for duplicated: %+v", got.DeletedFor)
	}

	// hidden from alice, still visible to bob
	if convs, _ := s.ListConversationsFor("alice"); len(convs) != 0 {
		t.Fatalf("alice still sees conversation")
	}
	if convs, _ := s.ListConversationsFor("bob"); len(convs) != 1 {
		t.Fatalf("bob lost conversation")
	}

	if err := s.PurgeConversation(conv.ID); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if _, err := s.GetConversation(conv.ID); err != ErrNotFound {
		t.Fatalf("meta survived purge: %v", err)
	}
	if _, err := s.GetMessage("m1"); err != ErrNotFound {
		t.Fatalf("message index survived purge: %v", err)
	}
	if _, err := s.FindConversationByPair("alice", "bob"); err != ErrNotFound {
		t.Fatalf("pair index survived purge: %v", err)
	}
}

func TestSetLastSeen(t *testing.T) {
	s := openTestStore(t)
	mkUser(t, s, "u1", "ada")
	ts := time.Now().UTC().UnixNano()
	if err := s.SetLastSeen("u1", ts); err != nil {
		t.Fatalf("set last seen: %v", err)
	}
	u, err := s.GetUser("u1")
	if err != nil || u.LastSeenTS != ts {
		t.Fatalf("last seen not recorded: %v %+v", err, u)
	}
}

func TestSystemKeysAndReindex(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetSystemKey("version"); err != ErrNotFound {
		t.Fatalf("missing system key: %v", err)
	}
	if err := s.SetSystemKey("version", []byte("v1")); err != nil {
		t.Fatalf("set system key: %v", err)
	}
	v, err := s.GetSystemKey("version")
	if err != nil || v != "v1" {
		t.Fatalf("system key roundtrip: %v %q", err, v)
	}

	conv := mkConv(t, s, "c1", "alice", "bob")
	// simulate a pre-index row by deleting the pair entry directly
	if err := s.db.Delete([]byte(PairKey("alice", "bob")), nil); err != nil {
		t.Fatalf("delete pair: %v", err)
	}
	n, err := s.ReindexPairs()
	if err != nil || n != 1 {
		t.Fatalf("reindex: n=%d err=%v", n, err)
	}
	got, err := s.FindConversationByPair("bob", "alice")
	if err != nil || got.ID != conv.ID {
		t.Fatalf("pair lookup after reindex: %v %+v", err, got)
	}
	if n, _ := s.ReindexPairs(); n != 0 {
		t.Fatalf("reindex not idempotent: %d", n)
	}
}
