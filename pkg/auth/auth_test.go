package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chatsync/pkg/store"
)

func newTestService(t *testing.T, ttl time.Duration) *Service {
	t.Helper()
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return New(st, ttl)
}

func TestRegisterAndLogin(t *testing.T) {
	svc := newTestService(t, time.Hour)
	u, err := svc.Register("alice", "secret", "Alice", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if u.ID == "" || u.PasswordHash != "" {
		t.Fatalf("registered user leaks state: %+v", u)
	}

	token, got, err := svc.Login("alice", "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if token == "" || got.ID != u.ID || got.PasswordHash != "" {
		t.Fatalf("login result token=%q user=%+v", token, got)
	}

	userID, err := svc.Verify(token)
	if err != nil || userID != u.ID {
		t.Fatalf("verify: %q %v", userID, err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := newTestService(t, time.Hour)
	if _, err := svc.Register("", "secret", "", ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("empty username: %v", err)
	}
	if _, err := svc.Register("alice", "", "", ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("empty password: %v", err)
	}
	if _, err := svc.Register("alice", "secret", "", ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Register("alice", "other", "", ""); !errors.Is(err, ErrTaken) {
		t.Fatalf("duplicate username: %v", err)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc := newTestService(t, time.Hour)
	if _, err := svc.Register("alice", "secret", "", ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, _, err := svc.Login("alice", "wrong"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("wrong password: %v", err)
	}
	if _, _, err := svc.Login("nobody", "secret"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("unknown user: %v", err)
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	svc := newTestService(t, time.Nanosecond)
	if _, err := svc.Register("alice", "secret", "", ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	token, _, err := svc.Login("alice", "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	time.Sleep(time.Millisecond)
	if _, err := svc.Verify(token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expired token: %v", err)
	}
	if _, err := svc.Verify(""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("empty token: %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	r.Header.Set("Authorization", "Bearer tok123")
	if got := BearerToken(r); got != "tok123" {
		t.Fatalf("header token = %q", got)
	}

	r = httptest.NewRequest(http.MethodGet, "/ws?token=tok456", nil)
	if got := BearerToken(r); got != "tok456" {
		t.Fatalf("query token = %q", got)
	}

	r = httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	if got := BearerToken(r); got != "" {
		t.Fatalf("absent token = %q", got)
	}
}

func TestRateLimitKicksIn(t *testing.T) {
	svc := newTestService(t, time.Hour)
	mw := NewMiddleware(svc, 1, 2, nil)
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := mw.Public(ok)

	limited := false
	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil))
		if rec.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	if !limited {
		t.Fatalf("burst of 10 never rate limited")
	}
}

func TestRequireRejectsWithoutToken(t *testing.T) {
	svc := newTestService(t, time.Hour)
	mw := NewMiddleware(svc, 100, 100, nil)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserIDFromContext(r.Context()); !ok {
			t.Fatalf("handler ran without user in context")
		}
		w.WriteHeader(http.StatusOK)
	})
	h := mw.Require(next)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/me", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: status %d", rec.Code)
	}

	if _, err := svc.Register("alice", "secret", "", ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	token, _, err := svc.Login("alice", "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid token: status %d", rec.Code)
	}
}
