package hub

import (
	"testing"
)

func drain(c *Client) [][]byte {
	var out [][]byte
	for {
		select {
		case f, ok := <-c.Send():
			if !ok {
				return out
			}
			out = append(out, f)
		default:
			return out
		}
	}
}

func TestConversationFanoutWithExclude(t *testing.T) {
	h := New(4)
	a := h.Attach("alice", "conn-a")
	b := h.Attach("bob", "conn-b")
	h.Join(a, "c1")
	h.Join(b, "c1")

	h.ToConversation("c1", []byte("typing"), "conn-a")
	if got := drain(a); len(got) != 0 {
		t.Fatalf("excluded origin received %d frames", len(got))
	}
	if got := drain(b); len(got) != 1 || string(got[0]) != "typing" {
		t.Fatalf("peer frames = %v", got)
	}
}

func TestPersonalChannelCoversAllDevices(t *testing.T) {
	h := New(4)
	d1 := h.Attach("alice", "conn-1")
	d2 := h.Attach("alice", "conn-2")

	h.ToUser("alice", []byte("update"))
	if len(drain(d1)) != 1 || len(drain(d2)) != 1 {
		t.Fatalf("personal channel missed a device")
	}
}

func TestSlowSessionDropped(t *testing.T) {
	h := New(1)
	c := h.Attach("alice", "conn-1")
	h.ToUser("alice", []byte("one"))
	// queue full: this delivery drops the session and closes its queue
	h.ToUser("alice", []byte("two"))

	frames := 0
	closed := false
	for {
		f, ok := <-c.Send()
		if !ok {
			closed = true
			break
		}
		frames++
		_ = f
	}
	if frames != 1 || !closed {
		t.Fatalf("frames=%d closed=%v, want 1 frame then close", frames, closed)
	}

	// dropped session no longer receives
	h.ToUser("alice", []byte("three"))
}

func TestDetachLeavesAllChannels(t *testing.T) {
	h := New(4)
	c := h.Attach("alice", "conn-1")
	h.Join(c, "c1")
	h.Detach(c)

	h.ToConversation("c1", []byte("x"), "")
	h.ToUser("alice", []byte("y"))
	if _, ok := <-c.Send(); ok {
		t.Fatalf("detached client still receives")
	}
}

func TestBroadcastReachesEveryone(t *testing.T) {
	h := New(4)
	a := h.Attach("alice", "conn-a")
	b := h.Attach("bob", "conn-b")
	h.Broadcast([]byte("user-online"))
	if len(drain(a)) != 1 || len(drain(b)) != 1 {
		t.Fatalf("broadcast missed a session")
	}
}
