// Package connectivity keeps the node's outbound connection count at its
// configured target.
package connectivity

import (
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/featherchain/featherd/infrastructure/network/addressmanager"
)

const defaultTickInterval = 10 * time.Second

// Config holds the configuration of a Maintainer.
type Config struct {
	// MinConnections is the connection count the maintainer dials towards.
	MinConnections int

	// TickInterval is the pause between connectivity checks.
	TickInterval time.Duration

	// Clock supplies time. Defaults to the wall clock.
	Clock clock.Clock

	// ConnectedPeerCount reports the current number of live sessions.
	ConnectedPeerCount func() int

	// Connect dials and handshakes the given address, blocking until the
	// session is Ready or failed. Failures are the dialed peer's problem;
	// the maintainer just moves on to another address next tick.
	Connect func(address string)

	// AddressPool supplies candidate addresses.
	AddressPool *addressmanager.AddressManager
}

// Maintainer periodically compares the live session count against the target
// and dials at most one new address per tick. Dialing one at a time keeps a
// burst of failures from exhausting the address pool in a single tick.
type Maintainer struct {
	cfg Config

	started uint32
	stop    uint32
	quit    chan struct{}
	done    chan struct{}
}

// New returns a new Maintainer. Call Start to begin the tick loop.
func New(cfg Config) *Maintainer {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTickInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	return &Maintainer{
		cfg:  cfg,
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Start launches the tick loop. The ticker is registered with the clock by
// the time Start returns.
func (m *Maintainer) Start() {
	if !atomic.CompareAndSwapUint32(&m.started, 0, 1) {
		panic("connectivity maintainer started more than once")
	}
	ticker := m.cfg.Clock.Ticker(m.cfg.TickInterval)
	spawn("Maintainer.tickLoop", func() {
		m.tickLoop(ticker)
	})
}

// Stop terminates the tick loop and waits for it to exit. A dial already in
// flight is not interrupted.
func (m *Maintainer) Stop() {
	if !atomic.CompareAndSwapUint32(&m.stop, 0, 1) {
		log.Warnf("Connectivity maintainer stopped more than once")
		return
	}
	close(m.quit)
	<-m.done
}

func (m *Maintainer) tickLoop(ticker *clock.Ticker) {
	defer close(m.done)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.tick()
		case <-m.quit:
			return
		}
	}
}

func (m *Maintainer) tick() {
	connected := m.cfg.ConnectedPeerCount()
	if connected >= m.cfg.MinConnections {
		return
	}

	address, ok := m.cfg.AddressPool.SelectUntried()
	if !ok {
		log.Debugf("Want %d more connections but the address pool is empty",
			m.cfg.MinConnections-connected)
		return
	}

	log.Debugf("Have %d/%d connections, dialing %s",
		connected, m.cfg.MinConnections, address)
	spawn("Maintainer.connect-"+address, func() {
		m.cfg.Connect(address)
	})
}
