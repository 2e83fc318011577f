// Package timeout tracks per-peer reply deadlines.
//
// A protocol component arms a timeout when it sends a request and disarms it
// when the reply arrives. A timeout that expires fires exactly once, by
// default disconnecting the offending peer.
package timeout

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

// RequestKind distinguishes the outstanding request types a peer can have.
// A peer holds at most one armed timeout per kind.
type RequestKind uint8

// Request kinds.
const (
	// KindPong is an outstanding ping awaiting its pong.
	KindPong RequestKind = iota

	// KindHeaders is an outstanding headers request awaiting its batch.
	KindHeaders
)

func (k RequestKind) String() string {
	switch k {
	case KindPong:
		return "pong"
	case KindHeaders:
		return "headers"
	default:
		return "unknown"
	}
}

const defaultSweepInterval = 2 * time.Second

// Config holds the configuration of a Registry.
type Config struct {
	// SweepInterval is how often expired entries are collected.
	SweepInterval time.Duration

	// Clock supplies time. Defaults to the wall clock.
	Clock clock.Clock

	// Disconnect tears down the session of the given peer. It is the
	// default expiry action.
	Disconnect func(peerID string)
}

type entryKey struct {
	peerID string
	kind   RequestKind
}

type entry struct {
	deadline time.Time
	action   func()
}

// Registry tracks armed timeouts and fires the ones that expire.
type Registry struct {
	cfg Config

	entries map[entryKey]*entry
	mtx     sync.Mutex

	started uint32
	stop    uint32
	quit    chan struct{}
	done    chan struct{}
}

// New returns a new Registry. Call Start to begin sweeping.
func New(cfg Config) *Registry {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	return &Registry{
		cfg:     cfg,
		entries: make(map[entryKey]*entry),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Arm sets a deadline for the given peer and request kind. An already armed
// timeout of the same kind is replaced, deadline and action both. A nil
// action means disconnect the peer.
func (r *Registry) Arm(peerID string, kind RequestKind, duration time.Duration, action func()) {
	if action == nil {
		action = func() { r.cfg.Disconnect(peerID) }
	}

	r.mtx.Lock()
	defer r.mtx.Unlock()

	r.entries[entryKey{peerID, kind}] = &entry{
		deadline: r.cfg.Clock.Now().Add(duration),
		action:   action,
	}
}

// Disarm cancels the armed timeout of the given peer and kind, if any.
func (r *Registry) Disarm(peerID string, kind RequestKind) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	delete(r.entries, entryKey{peerID, kind})
}

// DisarmPeer cancels every armed timeout of the given peer. Called when the
// peer disconnects for any other reason.
func (r *Registry) DisarmPeer(peerID string) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	for key := range r.entries {
		if key.peerID == peerID {
			delete(r.entries, key)
		}
	}
}

// Start launches the sweep loop. The sweep ticker is registered with the
// clock by the time Start returns.
func (r *Registry) Start() {
	if !atomic.CompareAndSwapUint32(&r.started, 0, 1) {
		panic("timeout registry started more than once")
	}
	ticker := r.cfg.Clock.Ticker(r.cfg.SweepInterval)
	spawn("Registry.sweepLoop", func() {
		r.sweepLoop(ticker)
	})
}

// Stop terminates the sweep loop and waits for it to exit.
func (r *Registry) Stop() {
	if !atomic.CompareAndSwapUint32(&r.stop, 0, 1) {
		log.Warnf("Timeout registry stopped more than once")
		return
	}
	close(r.quit)
	<-r.done
}

func (r *Registry) sweepLoop(ticker *clock.Ticker) {
	defer close(r.done)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sweep()
		case <-r.quit:
			return
		}
	}
}

// sweep collects the expired entries under the lock, removes them, and fires
// their actions outside the lock. Removal before firing makes every expiry
// fire exactly once even if the action re-arms.
func (r *Registry) sweep() {
	now := r.cfg.Clock.Now()

	r.mtx.Lock()
	var expired []*entry
	for key, e := range r.entries {
		if !e.deadline.After(now) {
			log.Debugf("Request %s to peer %s timed out", key.kind, key.peerID)
			expired = append(expired, e)
			delete(r.entries, key)
		}
	}
	r.mtx.Unlock()

	for _, e := range expired {
		e.action()
	}
}
