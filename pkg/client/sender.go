package client

import (
	"errors"
	"strconv"
	"sync/atomic"
	"time"

	"chatsync/pkg/chat"
)

// Transport delivers a send request to the server. The live channel and
// the fallback endpoints both satisfy it; either way the server ends in
// the same state.
type Transport interface {
	Send(dest string, p chat.Payload) (chat.SendResult, error)
}

// ErrLiveUnavailable should be returned by a live Transport whose socket
// is down so the Sender falls back.
var ErrLiveUnavailable = errors.New("live channel unavailable")

var tempSeq uint64

// NextTempID generates a client-local temporary message id.
func NextTempID() string {
	return "temp-" + strconv.FormatUint(atomic.AddUint64(&tempSeq, 1), 10) + "-" + strconv.FormatInt(time.Now().UnixNano(), 10)
}

// Sender runs the optimistic send flow: provisional insert, live-first
// transport with fallback, reconcile on ack, rollback on failure.
type Sender struct {
	Live     Transport
	Fallback Transport

	UserID string
	View   *View
	List   *List
}

// Send performs one optimistic send to dest (conversation id or peer
// user id). On failure the provisional entry and the list preview are
// rolled back and the error is returned for user-visible retry.
func (s *Sender) Send(dest string, p chat.Payload) (chat.SendResult, error) {
	tempID := NextTempID()
	s.View.AddProvisional(tempID, s.UserID, p)
	s.List.OptimisticBump(dest, preview(p), time.Now().UTC().UnixNano())

	res, err := s.deliver(dest, p)
	if err != nil {
		s.View.Fail(tempID)
		s.List.Rollback()
		return chat.SendResult{}, err
	}
	s.View.Apply(res.Message)
	s.List.Commit(dest, res.ResolvedConversation)
	s.List.ApplyUpdated(res.ResolvedConversation, preview(p), res.Message.TS)
	return res, nil
}

func (s *Sender) deliver(dest string, p chat.Payload) (chat.SendResult, error) {
	if s.Live != nil {
		res, err := s.Live.Send(dest, p)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, ErrLiveUnavailable) {
			return chat.SendResult{}, err
		}
	}
	if s.Fallback == nil {
		return chat.SendResult{}, ErrLiveUnavailable
	}
	return s.Fallback.Send(dest, p)
}

func preview(p chat.Payload) string {
	switch {
	case p.Text != "":
		return p.Text
	case p.ImageRef != "":
		return "Image"
	case p.VoiceRef != "":
		return "Voice message"
	}
	return ""
}
