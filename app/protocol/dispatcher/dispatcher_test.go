package dispatcher

import (
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/featherchain/featherd/app/appmessage"
	"github.com/featherchain/featherd/infrastructure/network/connmanager"
)

// recordingListener records every message it sees, in order, and fails on
// nonces it was told to fail on.
type recordingListener struct {
	name    string
	failOn  map[uint64]bool
	mtx     sync.Mutex
	nonces  []uint64
	peerIDs []string
}

func (l *recordingListener) Name() string { return l.name }

func (l *recordingListener) OnMessage(peerID string, message appmessage.Message) error {
	ping := message.(*appmessage.MsgPing)

	l.mtx.Lock()
	l.nonces = append(l.nonces, ping.Nonce)
	l.peerIDs = append(l.peerIDs, peerID)
	l.mtx.Unlock()

	if l.failOn[ping.Nonce] {
		return errors.Errorf("refusing nonce %d", ping.Nonce)
	}
	return nil
}

func (l *recordingListener) recorded() []uint64 {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return append([]uint64{}, l.nonces...)
}

func waitForCount(t *testing.T, l *recordingListener, want int) {
	deadline := time.Now().Add(time.Second)
	for len(l.recorded()) < want {
		if time.Now().After(deadline) {
			t.Fatalf("listener %s: recorded %d messages, want %d",
				l.name, len(l.recorded()), want)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestDeliveryOrderAndIsolation(t *testing.T) {
	const messageCount = 100

	incoming := make(chan connmanager.Envelope, messageCount)
	d := New(incoming)

	// The first listener fails on every third message. The second must
	// still see every message, in arrival order.
	failing := &recordingListener{name: "failing", failOn: map[uint64]bool{}}
	for nonce := uint64(0); nonce < messageCount; nonce += 3 {
		failing.failOn[nonce] = true
	}
	second := &recordingListener{name: "second"}
	d.AddListener(failing)
	d.AddListener(second)
	d.Start()
	defer d.Stop()

	for nonce := uint64(0); nonce < messageCount; nonce++ {
		incoming <- connmanager.Envelope{
			PeerID:  "peer-1",
			Message: appmessage.NewMsgPing(nonce),
		}
	}

	waitForCount(t, failing, messageCount)
	waitForCount(t, second, messageCount)

	for _, l := range []*recordingListener{failing, second} {
		nonces := l.recorded()
		for i, nonce := range nonces {
			if nonce != uint64(i) {
				t.Fatalf("listener %s: message %d has nonce %d, want %d",
					l.name, i, nonce, i)
			}
		}
	}
	if second.peerIDs[0] != "peer-1" {
		t.Errorf("peer id: got %s, want peer-1", second.peerIDs[0])
	}
}

func TestStopTerminatesDelivery(t *testing.T) {
	incoming := make(chan connmanager.Envelope, 10)
	d := New(incoming)
	listener := &recordingListener{name: "only"}
	d.AddListener(listener)
	d.Start()

	incoming <- connmanager.Envelope{PeerID: "p", Message: appmessage.NewMsgPing(1)}
	waitForCount(t, listener, 1)

	d.Stop()
	incoming <- connmanager.Envelope{PeerID: "p", Message: appmessage.NewMsgPing(2)}
	time.Sleep(50 * time.Millisecond)
	if got := len(listener.recorded()); got != 1 {
		t.Fatalf("messages after Stop: got %d, want 1", got)
	}
}
