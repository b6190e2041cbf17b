// Package api exposes the REST fallback surface. Every mutation here
// goes through the same chat.Service as the live socket, so a client
// that drops to HTTP sees identical payloads and side effects.
package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"chatsync/pkg/auth"
	"chatsync/pkg/chat"
)

// Server bundles the handler dependencies.
type Server struct {
	svc  *chat.Service
	auth *auth.Service
}

// New constructs the REST server.
func New(svc *chat.Service, authSvc *auth.Service) *Server {
	return &Server{svc: svc, auth: authSvc}
}

// Register mounts all versioned routes. mw gates the authenticated
// subtree; register and login stay public.
func (s *Server) Register(r *mux.Router, mw *auth.Middleware) {
	pub := r.PathPrefix("/v1/auth").Subrouter()
	pub.Handle("/register", mw.Public(http.HandlerFunc(s.register))).Methods(http.MethodPost, http.MethodOptions)
	pub.Handle("/login", mw.Public(http.HandlerFunc(s.login))).Methods(http.MethodPost, http.MethodOptions)

	priv := r.PathPrefix("/v1").Subrouter()
	priv.Use(mw.Require)
	priv.HandleFunc("/me", s.me).Methods(http.MethodGet, http.MethodOptions)
	priv.HandleFunc("/conversations", s.listConversations).Methods(http.MethodGet, http.MethodOptions)
	priv.HandleFunc("/conversations", s.openConversation).Methods(http.MethodPost)
	priv.HandleFunc("/conversations/{id}", s.deleteConversation).Methods(http.MethodDelete, http.MethodOptions)
	priv.HandleFunc("/conversations/{id}/messages", s.listMessages).Methods(http.MethodGet, http.MethodOptions)
	priv.HandleFunc("/conversations/{id}/messages", s.sendMessage).Methods(http.MethodPost)
	priv.HandleFunc("/conversations/{id}/read", s.markRead).Methods(http.MethodPost, http.MethodOptions)
	priv.HandleFunc("/conversations/{id}/messages/{msgID}/like", s.toggleLike).Methods(http.MethodPost, http.MethodOptions)
}
