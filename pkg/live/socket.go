// Package live is the websocket transport. It authenticates the upgrade,
// registers the session with presence and the hub, then runs a read loop
// dispatching client frames into chat.Service and a write loop draining
// the hub queue. Handler errors are reported as error events on the
// socket; they never terminate the connection.
package live

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chatsync/pkg/auth"
	"chatsync/pkg/chat"
	"chatsync/pkg/hub"
	"chatsync/pkg/logger"
	"chatsync/pkg/telemetry"
	"chatsync/pkg/utils"
)

// Options are the connection limits, normally taken from config.
type Options struct {
	MaxMessageSize int64
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	AllowedOrigins []string
}

func (o *Options) defaults() {
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 64 << 10
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
}

// Handler upgrades /ws requests into live sessions.
type Handler struct {
	svc      *chat.Service
	auth     *auth.Service
	opts     Options
	upgrader websocket.Upgrader
}

// NewHandler constructs the websocket endpoint.
func NewHandler(svc *chat.Service, authSvc *auth.Service, opts Options) *Handler {
	opts.defaults()
	h := &Handler{svc: svc, auth: authSvc, opts: opts}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, o := range opts.AllowedOrigins {
				if o == "*" || strings.EqualFold(o, origin) {
					return true
				}
			}
			return false
		},
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := h.auth.Verify(auth.BearerToken(r))
	if err != nil {
		utils.JSONError(w, http.StatusUnauthorized, "missing or invalid token")
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response
		logger.Warn("ws_upgrade_failed", "user", userID, "error", err)
		return
	}

	connID := utils.GenConnID()
	client := h.svc.Hub().Attach(userID, connID)
	h.svc.Presence().Register(userID, connID)
	telemetry.LiveConnections.Inc()
	logger.Info("ws_connected", "user", userID, "conn", connID)

	s := &session{h: h, conn: conn, client: client, userID: userID, connID: connID}
	go s.writeLoop()
	s.readLoop()
}

type session struct {
	h      *Handler
	conn   *websocket.Conn
	client *hub.Client
	userID string
	connID string

	// serializes writes between the ack path and the fanout drain;
	// gorilla/websocket permits one concurrent writer
	wmu sync.Mutex
}

func (s *session) write(messageType int, data []byte) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.h.opts.WriteTimeout))
	return s.conn.WriteMessage(messageType, data)
}

// readLoop owns the connection lifecycle: when it returns the session is
// detached from the hub and the presence registry.
func (s *session) readLoop() {
	defer func() {
		s.h.svc.Hub().Detach(s.client)
		s.h.svc.Presence().Unregister(s.userID, s.connID)
		telemetry.LiveConnections.Dec()
		_ = s.conn.Close()
		logger.Info("ws_disconnected", "user", s.userID, "conn", s.connID)
	}()

	s.conn.SetReadLimit(s.h.opts.MaxMessageSize)
	pongWait := s.h.opts.PingInterval * 2
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("ws_read_failed", "user", s.userID, "conn", s.connID, "error", err)
			}
			return
		}
		var req request
		if err := json.Unmarshal(data, &req); err != nil {
			s.sendError("", "invalid frame")
			continue
		}
		s.dispatch(req)
	}
}

func (s *session) dispatch(req request) {
	switch req.Type {
	case opJoin:
		if _, err := s.h.svc.Verify(req.Conversation, s.userID); err != nil {
			s.sendError(req.Ref, errText(err))
			return
		}
		s.h.svc.Hub().Join(s.client, req.Conversation)
	case opLeave:
		s.h.svc.Hub().Leave(s.client, req.Conversation)
	case opSend:
		res, err := s.h.svc.SendMessage(s.userID, req.Destination, chat.Payload{
			Text:          req.Text,
			ImageRef:      req.ImageRef,
			VoiceRef:      req.VoiceRef,
			VoiceDuration: req.VoiceDuration,
		})
		if err != nil {
			s.sendError(req.Ref, errText(err))
			return
		}
		// sender's session follows the conversation it just wrote to
		s.h.svc.Hub().Join(s.client, res.ResolvedConversation)
		s.sendEvent(chat.MessageSentEvent{
			Type:                 chat.EventMessageSent,
			Ref:                  req.Ref,
			MessageID:            res.Message.ID,
			ResolvedConversation: res.ResolvedConversation,
			WasNewConversation:   res.WasNewConversation,
			Message:              res.Message,
		})
	case opTyping:
		if err := s.h.svc.Typing(req.Conversation, s.userID, s.connID, req.IsTyping); err != nil {
			s.sendError(req.Ref, errText(err))
		}
	case opMarkRead:
		if _, err := s.h.svc.MarkRead(req.Conversation, s.userID); err != nil {
			s.sendError(req.Ref, errText(err))
		}
	case opToggleLike:
		if _, _, err := s.h.svc.ToggleLike(req.Conversation, req.Message, s.userID); err != nil {
			s.sendError(req.Ref, errText(err))
		}
	default:
		s.sendError(req.Ref, "unknown frame type")
	}
}

// sendEvent writes a session-scoped frame directly, bypassing the hub;
// acks and errors belong to one connection only.
func (s *session) sendEvent(v interface{}) {
	if err := s.write(websocket.TextMessage, chat.Frame(v)); err != nil {
		logger.Warn("ws_write_failed", "user", s.userID, "conn", s.connID, "error", err)
	}
}

func (s *session) sendError(ref, msg string) {
	s.sendEvent(chat.ErrorEvent{Type: chat.EventError, Ref: ref, Message: msg})
}

// errText maps service errors to client-safe strings.
func errText(err error) string {
	switch {
	case errors.Is(err, chat.ErrValidation):
		return err.Error()
	case errors.Is(err, chat.ErrForbidden):
		return "not a participant"
	case errors.Is(err, chat.ErrNotFound):
		return "not found"
	default:
		return "internal error"
	}
}

// writeLoop drains the hub queue and keeps the connection alive with
// pings. It exits when the hub closes the queue or a write fails.
func (s *session) writeLoop() {
	ticker := time.NewTicker(s.h.opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-s.client.Send():
			if !ok {
				_ = s.write(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.write(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			if err := s.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
