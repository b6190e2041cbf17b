package api

import (
	"errors"
	"net/http"

	"chatsync/pkg/chat"
	"chatsync/pkg/logger"
	"chatsync/pkg/utils"
)

// writeErr maps service error classes onto HTTP statuses so every
// endpoint reports failures the same way.
func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrValidation):
		utils.JSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chat.ErrUnauthorized):
		utils.JSONError(w, http.StatusUnauthorized, "missing or invalid token")
	case errors.Is(err, chat.ErrForbidden):
		utils.JSONError(w, http.StatusForbidden, "not a participant")
	case errors.Is(err, chat.ErrNotFound):
		utils.JSONError(w, http.StatusNotFound, "not found")
	default:
		logger.Error("request_failed", "err", err)
		utils.JSONError(w, http.StatusInternalServerError, "internal error")
	}
}
