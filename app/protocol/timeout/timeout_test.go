package timeout

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

type firingRecorder struct {
	mtx          sync.Mutex
	fired        []string
	disconnected []string
}

func (r *firingRecorder) action(tag string) func() {
	return func() {
		r.mtx.Lock()
		r.fired = append(r.fired, tag)
		r.mtx.Unlock()
	}
}

func (r *firingRecorder) disconnect(peerID string) {
	r.mtx.Lock()
	r.disconnected = append(r.disconnected, peerID)
	r.mtx.Unlock()
}

func (r *firingRecorder) firedTags() []string {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return append([]string{}, r.fired...)
}

func (r *firingRecorder) disconnectedPeers() []string {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return append([]string{}, r.disconnected...)
}

func newTestRegistry(recorder *firingRecorder) (*Registry, *clock.Mock) {
	mock := clock.NewMock()
	r := New(Config{
		SweepInterval: time.Second,
		Clock:         mock,
		Disconnect:    recorder.disconnect,
	})
	r.Start()
	return r, mock
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

func TestExpiryFiresExactlyOnce(t *testing.T) {
	recorder := &firingRecorder{}
	r, mock := newTestRegistry(recorder)
	defer r.Stop()

	r.Arm("peer-1", KindPong, 2*time.Second, recorder.action("a"))

	mock.Add(time.Second)
	time.Sleep(10 * time.Millisecond)
	if got := recorder.firedTags(); len(got) != 0 {
		t.Fatalf("fired before the deadline: %v", got)
	}

	mock.Add(2 * time.Second)
	waitFor(t, func() bool { return len(recorder.firedTags()) == 1 }, "expiry")

	// Further sweeps must not fire the removed entry again.
	mock.Add(5 * time.Second)
	time.Sleep(10 * time.Millisecond)
	if got := recorder.firedTags(); len(got) != 1 {
		t.Fatalf("fired %d times, want 1: %v", len(got), got)
	}
}

func TestDisarmCancels(t *testing.T) {
	recorder := &firingRecorder{}
	r, mock := newTestRegistry(recorder)
	defer r.Stop()

	r.Arm("peer-1", KindPong, time.Second, recorder.action("a"))
	r.Disarm("peer-1", KindPong)

	mock.Add(5 * time.Second)
	time.Sleep(10 * time.Millisecond)
	if got := recorder.firedTags(); len(got) != 0 {
		t.Fatalf("disarmed timeout fired: %v", got)
	}
}

func TestRearmReplaces(t *testing.T) {
	recorder := &firingRecorder{}
	r, mock := newTestRegistry(recorder)
	defer r.Stop()

	r.Arm("peer-1", KindPong, time.Second, recorder.action("old"))
	r.Arm("peer-1", KindPong, 10*time.Second, recorder.action("new"))

	// The old deadline passes without firing: the re-arm replaced it.
	mock.Add(3 * time.Second)
	time.Sleep(10 * time.Millisecond)
	if got := recorder.firedTags(); len(got) != 0 {
		t.Fatalf("replaced timeout fired: %v", got)
	}

	mock.Add(10 * time.Second)
	waitFor(t, func() bool { return len(recorder.firedTags()) == 1 }, "expiry")
	if got := recorder.firedTags(); got[0] != "new" {
		t.Fatalf("fired action: got %q, want %q", got[0], "new")
	}
}

func TestKindsAreIndependent(t *testing.T) {
	recorder := &firingRecorder{}
	r, mock := newTestRegistry(recorder)
	defer r.Stop()

	r.Arm("peer-1", KindPong, time.Second, recorder.action("pong"))
	r.Arm("peer-1", KindHeaders, 10*time.Second, recorder.action("headers"))
	r.Disarm("peer-1", KindHeaders)

	mock.Add(2 * time.Second)
	waitFor(t, func() bool { return len(recorder.firedTags()) == 1 }, "pong expiry")
	if got := recorder.firedTags(); got[0] != "pong" {
		t.Fatalf("fired action: got %q, want %q", got[0], "pong")
	}
}

func TestNilActionDisconnects(t *testing.T) {
	recorder := &firingRecorder{}
	r, mock := newTestRegistry(recorder)
	defer r.Stop()

	r.Arm("peer-1", KindPong, time.Second, nil)

	mock.Add(2 * time.Second)
	waitFor(t, func() bool { return len(recorder.disconnectedPeers()) == 1 }, "disconnect")
	if got := recorder.disconnectedPeers(); got[0] != "peer-1" {
		t.Fatalf("disconnected peer: got %q, want peer-1", got[0])
	}
}

func TestDisarmPeerDropsAllKinds(t *testing.T) {
	recorder := &firingRecorder{}
	r, mock := newTestRegistry(recorder)
	defer r.Stop()

	r.Arm("peer-1", KindPong, time.Second, recorder.action("pong"))
	r.Arm("peer-1", KindHeaders, time.Second, recorder.action("headers"))
	r.Arm("peer-2", KindPong, time.Second, recorder.action("other"))
	r.DisarmPeer("peer-1")

	mock.Add(2 * time.Second)
	waitFor(t, func() bool { return len(recorder.firedTags()) == 1 }, "other peer expiry")
	time.Sleep(10 * time.Millisecond)
	if got := recorder.firedTags(); len(got) != 1 || got[0] != "other" {
		t.Fatalf("fired actions: got %v, want [other]", got)
	}
}
