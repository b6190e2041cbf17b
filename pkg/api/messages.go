package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"chatsync/pkg/auth"
	"chatsync/pkg/chat"
	"chatsync/pkg/utils"
)

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	convID := mux.Vars(r)["id"]
	var beforeTS int64
	if v := r.URL.Query().Get("before"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			utils.JSONError(w, http.StatusBadRequest, "invalid before timestamp")
			return
		}
		beforeTS = n
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			utils.JSONError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	msgs, err := s.svc.Messages(convID, userID, beforeTS, limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	utils.JSONWrite(w, http.StatusOK, struct {
		Conversation string      `json:"conversation"`
		Messages     interface{} `json:"messages"`
	}{Conversation: convID, Messages: msgs})
}

// sendMessage accepts the same payload as the live channel. The path id
// may be a conversation id or, before any conversation exists, the
// counterpart's user id; the response reports what it resolved to.
func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	dest := mux.Vars(r)["id"]
	var p chat.Payload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	res, err := s.svc.SendMessage(userID, dest, p)
	if err != nil {
		writeErr(w, err)
		return
	}
	utils.JSONWrite(w, http.StatusCreated, res)
}

func (s *Server) markRead(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	convID := mux.Vars(r)["id"]
	changed, err := s.svc.MarkRead(convID, userID)
	if err != nil {
		writeErr(w, err)
		return
	}
	utils.JSONWrite(w, http.StatusOK, struct {
		Conversation string `json:"conversation"`
		Marked       int    `json:"marked"`
	}{Conversation: convID, Marked: changed})
}

func (s *Server) toggleLike(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	vars := mux.Vars(r)
	liked, count, err := s.svc.ToggleLike(vars["id"], vars["msgID"], userID)
	if err != nil {
		writeErr(w, err)
		return
	}
	utils.JSONWrite(w, http.StatusOK, struct {
		Message    string `json:"message"`
		IsLiked    bool   `json:"is_liked"`
		LikesCount int    `json:"likes_count"`
	}{Message: vars["msgID"], IsLiked: liked, LikesCount: count})
}
