package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"chatsync/pkg/auth"
	"chatsync/pkg/chat"
	"chatsync/pkg/hub"
	"chatsync/pkg/models"
	"chatsync/pkg/presence"
	"chatsync/pkg/store"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	h := hub.New(16)
	reg := presence.New(nil, st)
	svc := chat.New(st, h, reg, 50)
	reg.SetEdgeFunc(svc.PresenceEdge)
	authSvc := auth.New(st, time.Hour)

	r := mux.NewRouter()
	mw := auth.NewMiddleware(authSvc, 1000, 1000, []string{"*"})
	New(svc, authSvc).Register(r, mw)

	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, ts *httptest.Server, method, path, token string, body interface{}, out interface{}) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

type account struct {
	id    string
	token string
}

func registerAndLogin(t *testing.T, ts *httptest.Server, username string) account {
	t.Helper()
	var u models.WireSender
	if code := doJSON(t, ts, http.MethodPost, "/v1/auth/register", "", map[string]string{
		"username": username, "password": "secret",
	}, &u); code != http.StatusCreated {
		t.Fatalf("register %s: status %d", username, code)
	}
	var login struct {
		Token string `json:"token"`
	}
	if code := doJSON(t, ts, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"username": username, "password": "secret",
	}, &login); code != http.StatusOK {
		t.Fatalf("login %s: status %d", username, code)
	}
	return account{id: u.ID, token: login.Token}
}

func TestRegisterConflictAndBadLogin(t *testing.T) {
	ts := newTestServer(t)
	registerAndLogin(t, ts, "alice")

	if code := doJSON(t, ts, http.MethodPost, "/v1/auth/register", "", map[string]string{
		"username": "alice", "password": "other",
	}, nil); code != http.StatusConflict {
		t.Fatalf("duplicate register: status %d", code)
	}
	if code := doJSON(t, ts, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"username": "alice", "password": "wrong",
	}, nil); code != http.StatusUnauthorized {
		t.Fatalf("bad password: status %d", code)
	}
}

func TestAuthGate(t *testing.T) {
	ts := newTestServer(t)
	if code := doJSON(t, ts, http.MethodGet, "/v1/me", "", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("missing token: status %d", code)
	}
	if code := doJSON(t, ts, http.MethodGet, "/v1/me", "bogus", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("bad token: status %d", code)
	}

	acc := registerAndLogin(t, ts, "alice")
	var me models.WireSender
	if code := doJSON(t, ts, http.MethodGet, "/v1/me", acc.token, nil, &me); code != http.StatusOK {
		t.Fatalf("me: status %d", code)
	}
	if me.ID != acc.id || me.Username != "alice" {
		t.Fatalf("me = %+v", me)
	}
}

func TestConversationFlow(t *testing.T) {
	ts := newTestServer(t)
	alice := registerAndLogin(t, ts, "alice")
	bob := registerAndLogin(t, ts, "bob")

	var sum models.ConversationSummary
	if code := doJSON(t, ts, http.MethodPost, "/v1/conversations", alice.token, map[string]string{
		"peer_id": bob.id,
	}, &sum); code != http.StatusCreated {
		t.Fatalf("open: status %d", code)
	}
	if sum.Peer.ID != bob.id {
		t.Fatalf("summary peer = %+v", sum.Peer)
	}

	// reopening from either side resolves to the same conversation
	var again models.ConversationSummary
	if code := doJSON(t, ts, http.MethodPost, "/v1/conversations", bob.token, map[string]string{
		"peer_id": alice.id,
	}, &again); code != http.StatusOK {
		t.Fatalf("reopen: status %d", code)
	}
	if again.ID != sum.ID {
		t.Fatalf("reopen resolved %q, want %q", again.ID, sum.ID)
	}

	var res chat.SendResult
	path := fmt.Sprintf("/v1/conversations/%s/messages", sum.ID)
	if code := doJSON(t, ts, http.MethodPost, path, alice.token, map[string]string{
		"text": "hello",
	}, &res); code != http.StatusCreated {
		t.Fatalf("send: status %d", code)
	}
	if res.ResolvedConversation != sum.ID || res.WasNewConversation {
		t.Fatalf("send result = %+v", res)
	}
	if res.Message.Sender.ID != alice.id || res.Message.Text != "hello" {
		t.Fatalf("message = %+v", res.Message)
	}

	var page struct {
		Conversation string               `json:"conversation"`
		Messages     []models.WireMessage `json:"messages"`
	}
	if code := doJSON(t, ts, http.MethodGet, path, bob.token, nil, &page); code != http.StatusOK {
		t.Fatalf("list messages: status %d", code)
	}
	if len(page.Messages) != 1 || page.Messages[0].ID != res.Message.ID {
		t.Fatalf("messages = %+v", page.Messages)
	}

	var list struct {
		Conversations []models.ConversationSummary `json:"conversations"`
	}
	if code := doJSON(t, ts, http.MethodGet, "/v1/conversations", bob.token, nil, &list); code != http.StatusOK {
		t.Fatalf("list conversations: status %d", code)
	}
	if len(list.Conversations) != 1 || list.Conversations[0].Unread != 1 {
		t.Fatalf("conversations = %+v", list.Conversations)
	}

	var read struct {
		Marked int `json:"marked"`
	}
	if code := doJSON(t, ts, http.MethodPost, "/v1/conversations/"+sum.ID+"/read", bob.token, nil, &read); code != http.StatusOK {
		t.Fatalf("mark read: status %d", code)
	}
	if read.Marked != 1 {
		t.Fatalf("marked = %d", read.Marked)
	}

	likePath := fmt.Sprintf("/v1/conversations/%s/messages/%s/like", sum.ID, res.Message.ID)
	var like struct {
		IsLiked    bool `json:"is_liked"`
		LikesCount int  `json:"likes_count"`
	}
	if code := doJSON(t, ts, http.MethodPost, likePath, bob.token, nil, &like); code != http.StatusOK {
		t.Fatalf("like: status %d", code)
	}
	if !like.IsLiked || like.LikesCount != 1 {
		t.Fatalf("like = %+v", like)
	}
	if code := doJSON(t, ts, http.MethodPost, likePath, bob.token, nil, &like); code != http.StatusOK {
		t.Fatalf("unlike: status %d", code)
	}
	if like.IsLiked || like.LikesCount != 0 {
		t.Fatalf("unlike = %+v", like)
	}
}

func TestSendByPeerUserID(t *testing.T) {
	ts := newTestServer(t)
	alice := registerAndLogin(t, ts, "alice")
	bob := registerAndLogin(t, ts, "bob")

	var res chat.SendResult
	path := fmt.Sprintf("/v1/conversations/%s/messages", bob.id)
	if code := doJSON(t, ts, http.MethodPost, path, alice.token, map[string]string{
		"text": "first contact",
	}, &res); code != http.StatusCreated {
		t.Fatalf("send: status %d", code)
	}
	if !res.WasNewConversation || res.ResolvedConversation == "" {
		t.Fatalf("send result = %+v", res)
	}
}

func TestAccessErrors(t *testing.T) {
	ts := newTestServer(t)
	alice := registerAndLogin(t, ts, "alice")
	bob := registerAndLogin(t, ts, "bob")
	mallory := registerAndLogin(t, ts, "mallory")

	var sum models.ConversationSummary
	doJSON(t, ts, http.MethodPost, "/v1/conversations", alice.token, map[string]string{"peer_id": bob.id}, &sum)

	path := "/v1/conversations/" + sum.ID + "/messages"
	if code := doJSON(t, ts, http.MethodGet, path, mallory.token, nil, nil); code != http.StatusForbidden {
		t.Fatalf("outsider list: status %d", code)
	}
	if code := doJSON(t, ts, http.MethodGet, "/v1/conversations/conv_missing/messages", alice.token, nil, nil); code != http.StatusNotFound {
		t.Fatalf("missing conversation: status %d", code)
	}
	if code := doJSON(t, ts, http.MethodPost, path, alice.token, map[string]string{}, nil); code != http.StatusBadRequest {
		t.Fatalf("empty payload: status %d", code)
	}
	if code := doJSON(t, ts, http.MethodPost, "/v1/conversations", alice.token, map[string]string{
		"peer_id": alice.id,
	}, nil); code != http.StatusBadRequest {
		t.Fatalf("self conversation: status %d", code)
	}
}

func TestSoftDelete(t *testing.T) {
	ts := newTestServer(t)
	alice := registerAndLogin(t, ts, "alice")
	bob := registerAndLogin(t, ts, "bob")

	var sum models.ConversationSummary
	doJSON(t, ts, http.MethodPost, "/v1/conversations", alice.token, map[string]string{"peer_id": bob.id}, &sum)

	if code := doJSON(t, ts, http.MethodDelete, "/v1/conversations/"+sum.ID, alice.token, nil, nil); code != http.StatusNoContent {
		t.Fatalf("delete: status %d", code)
	}
	var list struct {
		Conversations []models.ConversationSummary `json:"conversations"`
	}
	doJSON(t, ts, http.MethodGet, "/v1/conversations", alice.token, nil, &list)
	if len(list.Conversations) != 0 {
		t.Fatalf("deleted conversation still listed: %+v", list.Conversations)
	}
	doJSON(t, ts, http.MethodGet, "/v1/conversations", bob.token, nil, &list)
	if len(list.Conversations) != 1 {
		t.Fatalf("counterpart lost the conversation: %+v", list.Conversations)
	}
}
