// Package auth issues and verifies bearer credentials and gates the
// fallback endpoints. Token issuance is deliberately minimal: opaque
// random tokens bound to stored sessions with a TTL.
package auth

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"chatsync/pkg/logger"
	"chatsync/pkg/models"
	"chatsync/pkg/store"
	"chatsync/pkg/utils"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrTaken        = errors.New("username taken")
)

// Service performs credential checks against the store.
type Service struct {
	store    *store.Store
	tokenTTL time.Duration
}

// New constructs the auth service.
func New(st *store.Store, tokenTTL time.Duration) *Service {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &Service{store: st, tokenTTL: tokenTTL}
}

// Register creates an account with a bcrypt-hashed password.
func (s *Service) Register(username, password, displayName, avatarURL string) (models.User, error) {
	if username == "" || password == "" {
		return models.User{}, fmt.Errorf("username and password required: %w", ErrUnauthorized)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}
	u := models.User{
		ID:           utils.GenID(),
		Username:     username,
		DisplayName:  displayName,
		AvatarURL:    avatarURL,
		PasswordHash: string(hash),
		CreatedTS:    time.Now().UTC().UnixNano(),
	}
	if err := s.store.CreateUser(u); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return models.User{}, ErrTaken
		}
		return models.User{}, err
	}
	u.PasswordHash = ""
	return u, nil
}

// Login verifies the password and issues a bearer token.
func (s *Service) Login(username, password string) (string, models.User, error) {
	u, err := s.store.GetUserByName(username)
	if err != nil {
		return "", models.User{}, ErrUnauthorized
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return "", models.User{}, ErrUnauthorized
	}
	token := utils.GenID()
	sess := models.Session{
		Token:     token,
		UserID:    u.ID,
		ExpiresTS: time.Now().UTC().Add(s.tokenTTL).UnixNano(),
	}
	if err := s.store.PutSession(sess); err != nil {
		return "", models.User{}, err
	}
	logger.Info("session_issued", "user", u.ID)
	u.PasswordHash = ""
	return token, u, nil
}

// Verify resolves a bearer token to a user id; expired or unknown tokens
// fail Unauthorized.
func (s *Service) Verify(token string) (string, error) {
	if token == "" {
		return "", ErrUnauthorized
	}
	sess, err := s.store.GetSession(token)
	if err != nil {
		return "", ErrUnauthorized
	}
	return sess.UserID, nil
}
