package ping

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"github.com/featherchain/featherd/app/appmessage"
	"github.com/featherchain/featherd/app/protocol/timeout"
)

type fakePeerIO struct {
	mtx          sync.Mutex
	sendErr      error
	sent         []appmessage.Message
	disconnected []string
}

func (f *fakePeerIO) send(peerID string, message appmessage.Message) error {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, message)
	return nil
}

func (f *fakePeerIO) disconnect(peerID string) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.disconnected = append(f.disconnected, peerID)
}

func (f *fakePeerIO) sentMessages() []appmessage.Message {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return append([]appmessage.Message{}, f.sent...)
}

func waitFor(t *testing.T, condition func() bool, what string) {
	deadline := time.Now().Add(time.Second)
	for !condition() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func newTestHandler(io *fakePeerIO) *Handler {
	return New(Config{
		Send:       io.send,
		Disconnect: io.disconnect,
		Timeouts:   timeout.New(timeout.Config{Disconnect: io.disconnect}),
	})
}

func TestPingIsAnsweredWithPong(t *testing.T) {
	io := &fakePeerIO{}
	h := newTestHandler(io)

	err := h.OnMessage("peer-1", appmessage.NewMsgPing(77))
	if err != nil {
		t.Fatalf("OnMessage: %s", err)
	}
	if len(io.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(io.sent))
	}
	pong, ok := io.sent[0].(*appmessage.MsgPong)
	if !ok {
		t.Fatalf("sent %s, want pong", io.sent[0].Command())
	}
	if pong.Nonce != 77 {
		t.Fatalf("pong nonce: got %d, want 77", pong.Nonce)
	}
}

func TestMatchingPongClearsThePending(t *testing.T) {
	io := &fakePeerIO{}
	h := newTestHandler(io)
	h.pending["peer-1"] = 5

	err := h.OnMessage("peer-1", appmessage.NewMsgPong(5))
	if err != nil {
		t.Fatalf("OnMessage: %s", err)
	}
	if len(io.disconnected) != 0 {
		t.Fatalf("disconnected %v on a matching pong", io.disconnected)
	}
	if _, ok := h.pending["peer-1"]; ok {
		t.Fatal("pending entry survived the matching pong")
	}
}

func TestMismatchedPongDisconnects(t *testing.T) {
	io := &fakePeerIO{}
	h := newTestHandler(io)
	h.pending["peer-1"] = 5

	err := h.OnMessage("peer-1", appmessage.NewMsgPong(6))
	if err == nil {
		t.Fatal("OnMessage accepted a mismatched pong")
	}
	if len(io.disconnected) != 1 || io.disconnected[0] != "peer-1" {
		t.Fatalf("disconnected: got %v, want [peer-1]", io.disconnected)
	}
}

func TestUnsolicitedPongIsIgnored(t *testing.T) {
	io := &fakePeerIO{}
	h := newTestHandler(io)

	err := h.OnMessage("peer-1", appmessage.NewMsgPong(9))
	if err != nil {
		t.Fatalf("OnMessage: %s", err)
	}
	if len(io.disconnected) != 0 {
		t.Fatalf("disconnected %v on an unsolicited pong", io.disconnected)
	}
}

func TestPingRoundFollowsTheClock(t *testing.T) {
	io := &fakePeerIO{}
	mock := clock.NewMock()
	h := New(Config{
		PingInterval: time.Second,
		Clock:        mock,
		Peers:        func() []string { return []string{"peer-1"} },
		Send:         io.send,
		Disconnect:   io.disconnect,
		Timeouts:     timeout.New(timeout.Config{Disconnect: io.disconnect}),
	})
	h.Start()
	defer h.Stop()

	mock.Add(time.Second)
	waitFor(t, func() bool { return len(io.sentMessages()) == 1 }, "ping")

	pingMsg, ok := io.sentMessages()[0].(*appmessage.MsgPing)
	if !ok {
		t.Fatalf("sent %s, want ping", io.sentMessages()[0].Command())
	}
	h.pendingLock.Lock()
	pending, ok := h.pending["peer-1"]
	h.pendingLock.Unlock()
	if !ok || pending != pingMsg.Nonce {
		t.Fatalf("pending nonce: got %d, want %d", pending, pingMsg.Nonce)
	}
}

func TestFailedPingSendLeavesNoPending(t *testing.T) {
	io := &fakePeerIO{sendErr: errors.New("peer went away")}
	h := newTestHandler(io)
	h.cfg.Peers = func() []string { return []string{"peer-1"} }

	h.pingRound()

	if _, ok := h.pending["peer-1"]; ok {
		t.Fatal("pending entry survived the failed send")
	}
	if len(io.disconnected) != 0 {
		t.Fatalf("disconnected %v on a failed send", io.disconnected)
	}
}

func TestUnrelatedMessagesAreIgnored(t *testing.T) {
	io := &fakePeerIO{}
	h := newTestHandler(io)

	err := h.OnMessage("peer-1", appmessage.NewMsgVerAck())
	if err != nil {
		t.Fatalf("OnMessage: %s", err)
	}
	if len(io.sent) != 0 {
		t.Fatalf("sent %d messages for an unrelated message", len(io.sent))
	}
}
