package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"chatsync/pkg/auth"
	"chatsync/pkg/logger"
	"chatsync/pkg/utils"
)

type registerReq struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

type loginReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req registerReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	u, err := s.auth.Register(req.Username, req.Password, req.DisplayName, req.AvatarURL)
	if err != nil {
		if errors.Is(err, auth.ErrTaken) {
			utils.JSONError(w, http.StatusConflict, "username taken")
			return
		}
		if errors.Is(err, auth.ErrUnauthorized) {
			utils.JSONError(w, http.StatusBadRequest, "username and password required")
			return
		}
		writeErr(w, err)
		return
	}
	logger.Info("user_registered", "user", u.ID)
	utils.JSONWrite(w, http.StatusCreated, u.Wire())
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	token, u, err := s.auth.Login(req.Username, req.Password)
	if err != nil {
		utils.JSONError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	utils.JSONWrite(w, http.StatusOK, struct {
		Token string      `json:"token"`
		User  interface{} `json:"user"`
	}{Token: token, User: u.Wire()})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	u, err := s.svc.User(userID)
	if err != nil {
		writeErr(w, err)
		return
	}
	utils.JSONWrite(w, http.StatusOK, u)
}
