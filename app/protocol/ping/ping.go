// Package ping answers peer pings and probes peer liveness with its own.
package ping

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"github.com/featherchain/featherd/app/appmessage"
	"github.com/featherchain/featherd/app/protocol/timeout"
	"github.com/featherchain/featherd/util/random"
)

const (
	defaultPingInterval = 2 * time.Minute
	defaultPongTimeout  = 30 * time.Second
)

// Config holds the configuration of a Handler.
type Config struct {
	// PingInterval is the pause between outgoing ping rounds.
	PingInterval time.Duration

	// PongTimeout is how long a peer has to answer a ping.
	PongTimeout time.Duration

	// Clock supplies time. Defaults to the wall clock.
	Clock clock.Clock

	// Peers snapshots the ids of the currently connected peers.
	Peers func() []string

	// Send delivers a message to the given peer.
	Send func(peerID string, message appmessage.Message) error

	// Disconnect tears down the session of the given peer.
	Disconnect func(peerID string)

	// Timeouts tracks outstanding pings.
	Timeouts *timeout.Registry
}

// Handler responds to inbound pings with pongs and periodically pings every
// connected peer. A peer that answers with the wrong nonce, or doesn't answer
// at all, is disconnected.
type Handler struct {
	cfg Config

	pending     map[string]uint64
	pendingLock sync.Mutex

	started uint32
	stop    uint32
	quit    chan struct{}
	done    chan struct{}
}

// New returns a new ping Handler. Register it on the dispatcher and call
// Start to begin the ping rounds.
func New(cfg Config) *Handler {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = defaultPongTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	return &Handler{
		cfg:     cfg,
		pending: make(map[string]uint64),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Name identifies the handler in logs.
func (h *Handler) Name() string {
	return "ping"
}

// OnMessage answers pings and matches pongs against the outstanding nonce.
// Messages of any other type are ignored.
func (h *Handler) OnMessage(peerID string, message appmessage.Message) error {
	switch msg := message.(type) {
	case *appmessage.MsgPing:
		return h.cfg.Send(peerID, appmessage.NewMsgPong(msg.Nonce))
	case *appmessage.MsgPong:
		return h.onPong(peerID, msg)
	default:
		return nil
	}
}

func (h *Handler) onPong(peerID string, msg *appmessage.MsgPong) error {
	h.pendingLock.Lock()
	expected, ok := h.pending[peerID]
	delete(h.pending, peerID)
	h.pendingLock.Unlock()

	if !ok {
		// A pong with no outstanding ping is harmless.
		return nil
	}
	h.cfg.Timeouts.Disarm(peerID, timeout.KindPong)

	if msg.Nonce != expected {
		h.cfg.Disconnect(peerID)
		return errors.Errorf("peer %s answered ping %d with pong %d",
			peerID, expected, msg.Nonce)
	}
	return nil
}

// OnPeerDisconnected drops the peer's outstanding ping state.
func (h *Handler) OnPeerDisconnected(peerID string) {
	h.pendingLock.Lock()
	delete(h.pending, peerID)
	h.pendingLock.Unlock()
}

// Start launches the periodic ping loop. The ticker is registered with the
// clock by the time Start returns.
func (h *Handler) Start() {
	if !atomic.CompareAndSwapUint32(&h.started, 0, 1) {
		panic("ping handler started more than once")
	}
	ticker := h.cfg.Clock.Ticker(h.cfg.PingInterval)
	spawn("Handler.pingLoop", func() {
		h.pingLoop(ticker)
	})
}

// Stop terminates the ping loop and waits for it to exit.
func (h *Handler) Stop() {
	if !atomic.CompareAndSwapUint32(&h.stop, 0, 1) {
		log.Warnf("Ping handler stopped more than once")
		return
	}
	close(h.quit)
	<-h.done
}

func (h *Handler) pingLoop(ticker *clock.Ticker) {
	defer close(h.done)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.pingRound()
		case <-h.quit:
			return
		}
	}
}

// pingRound sends one ping to every connected peer and arms a pong timeout
// for each. An expired timeout disconnects the peer.
func (h *Handler) pingRound() {
	for _, peerID := range h.cfg.Peers() {
		nonce, err := random.Uint64()
		if err != nil {
			log.Errorf("Couldn't generate ping nonce: %s", err)
			return
		}

		h.pendingLock.Lock()
		h.pending[peerID] = nonce
		h.pendingLock.Unlock()

		err = h.cfg.Send(peerID, appmessage.NewMsgPing(nonce))
		if err != nil {
			log.Debugf("Couldn't ping %s: %s", peerID, err)
			h.pendingLock.Lock()
			delete(h.pending, peerID)
			h.pendingLock.Unlock()
			continue
		}
		h.cfg.Timeouts.Arm(peerID, timeout.KindPong, h.cfg.PongTimeout, nil)
	}
}
