package connectivity

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/featherchain/featherd/infrastructure/network/addressmanager"
)

type dialRecorder struct {
	mtx    sync.Mutex
	dialed []string
}

func (r *dialRecorder) connect(address string) {
	r.mtx.Lock()
	r.dialed = append(r.dialed, address)
	r.mtx.Unlock()
}

func (r *dialRecorder) dialedAddresses() []string {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return append([]string{}, r.dialed...)
}

func waitForDials(t *testing.T, recorder *dialRecorder, want int) {
	deadline := time.Now().Add(time.Second)
	for len(recorder.dialedAddresses()) < want {
		if time.Now().After(deadline) {
			t.Fatalf("dialed %d addresses, want %d", len(recorder.dialedAddresses()), want)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestDialsTowardsTarget(t *testing.T) {
	pool := addressmanager.New()
	pool.AddAddresses("10.0.0.1:18333", "10.0.0.2:18333", "10.0.0.3:18333",
		"10.0.0.4:18333", "10.0.0.5:18333")

	recorder := &dialRecorder{}
	mock := clock.NewMock()
	m := New(Config{
		MinConnections: 3,
		TickInterval:   time.Second,
		Clock:          mock,
		// Every dial succeeds immediately.
		ConnectedPeerCount: func() int { return len(recorder.dialedAddresses()) },
		Connect:            recorder.connect,
		AddressPool:        pool,
	})
	m.Start()
	defer m.Stop()

	// One dial per tick, so reaching the target takes three ticks.
	for tick := 1; tick <= 3; tick++ {
		mock.Add(time.Second)
		waitForDials(t, recorder, tick)
		if got := len(recorder.dialedAddresses()); got != tick {
			t.Fatalf("after tick %d: dialed %d addresses, want %d", tick, got, tick)
		}
	}

	// All three dialed addresses must be distinct.
	seen := make(map[string]bool)
	for _, address := range recorder.dialedAddresses() {
		if seen[address] {
			t.Fatalf("address %s dialed twice", address)
		}
		seen[address] = true
	}

	// At the target, further ticks dial nothing.
	mock.Add(5 * time.Second)
	time.Sleep(10 * time.Millisecond)
	if got := len(recorder.dialedAddresses()); got != 3 {
		t.Fatalf("dialed %d addresses at target, want 3", got)
	}
}

func TestEmptyPoolIsHarmless(t *testing.T) {
	recorder := &dialRecorder{}
	mock := clock.NewMock()
	m := New(Config{
		MinConnections:     3,
		TickInterval:       time.Second,
		Clock:              mock,
		ConnectedPeerCount: func() int { return 0 },
		Connect:            recorder.connect,
		AddressPool:        addressmanager.New(),
	})
	m.Start()
	defer m.Stop()

	mock.Add(3 * time.Second)
	time.Sleep(10 * time.Millisecond)
	if got := len(recorder.dialedAddresses()); got != 0 {
		t.Fatalf("dialed %d addresses from an empty pool", got)
	}
}
