// Package headersync downloads the header chain from connected peers.
//
// The node syncs from one peer at a time. When a peer reaches Ready it
// becomes a sync candidate; headers are requested batch by batch from the
// current tip until a partial batch signals the peer has no more.
package headersync

import (
	"math/rand"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/featherchain/featherd/app/appmessage"
	"github.com/featherchain/featherd/app/protocol/timeout"
)

const defaultHeadersTimeout = 60 * time.Second

// HeaderStore is the persistent header chain the handler extends.
type HeaderStore interface {
	Tip() (appmessage.Hash, uint64)
	PutHeaders(headers []*appmessage.BlockHeader) (int, error)
}

// Config holds the configuration of a Handler.
type Config struct {
	// HeadersTimeout is how long a peer has to answer a headers request.
	HeadersTimeout time.Duration

	// Store is the header chain being extended.
	Store HeaderStore

	// Send delivers a message to the given peer.
	Send func(peerID string, message appmessage.Message) error

	// Disconnect tears down the session of the given peer.
	Disconnect func(peerID string)

	// Timeouts tracks outstanding headers requests.
	Timeouts *timeout.Registry
}

// Handler drives header download. It is a dispatcher listener and also
// reacts to peer lifecycle events from the connection manager.
type Handler struct {
	cfg Config

	mtx        sync.Mutex
	candidates []string
	syncPeer   string
}

// New returns a new headersync Handler.
func New(cfg Config) *Handler {
	if cfg.HeadersTimeout <= 0 {
		cfg.HeadersTimeout = defaultHeadersTimeout
	}
	return &Handler{cfg: cfg}
}

// Name identifies the handler in logs.
func (h *Handler) Name() string {
	return "headersync"
}

// OnPeerReady adds the peer to the candidate set and, if no sync is in
// progress, starts syncing from it.
func (h *Handler) OnPeerReady(peerID string) {
	h.mtx.Lock()
	h.candidates = append(h.candidates, peerID)
	shouldSync := h.syncPeer == ""
	if shouldSync {
		h.syncPeer = peerID
	}
	h.mtx.Unlock()

	if shouldSync {
		h.requestHeaders(peerID)
	}
}

// OnPeerDisconnected drops the peer from the candidate set. If it was the
// sync peer, sync moves to another candidate.
func (h *Handler) OnPeerDisconnected(peerID string) {
	h.mtx.Lock()
	for i, candidate := range h.candidates {
		if candidate == peerID {
			h.candidates = append(h.candidates[:i], h.candidates[i+1:]...)
			break
		}
	}
	wasSyncPeer := h.syncPeer == peerID
	next := ""
	if wasSyncPeer {
		h.syncPeer = ""
		next = h.pickCandidateNoLock()
	}
	h.mtx.Unlock()

	if wasSyncPeer {
		h.cfg.Timeouts.Disarm(peerID, timeout.KindHeaders)
		if next != "" {
			h.requestHeaders(next)
		}
	}
}

// OnMessage handles headers batches from the sync peer. Messages of any other
// type, and headers volunteered by other peers, are ignored.
func (h *Handler) OnMessage(peerID string, message appmessage.Message) error {
	msg, ok := message.(*appmessage.MsgHeaders)
	if !ok {
		return nil
	}

	h.mtx.Lock()
	isSyncPeer := h.syncPeer == peerID
	h.mtx.Unlock()
	if !isSyncPeer {
		return nil
	}

	h.cfg.Timeouts.Disarm(peerID, timeout.KindHeaders)

	added, err := h.cfg.Store.PutHeaders(msg.Headers)
	if err != nil {
		h.cfg.Disconnect(peerID)
		return errors.Wrapf(err, "rejecting headers batch from %s", peerID)
	}
	if added > 0 {
		_, height := h.cfg.Store.Tip()
		log.Infof("Added %d headers from %s, tip height %d", added, peerID, height)
	}

	// A full batch means the peer has more. A partial one means the chain
	// is caught up with this peer.
	if len(msg.Headers) == appmessage.MaxHeadersPerMsg {
		h.requestHeaders(peerID)
		return nil
	}

	h.mtx.Lock()
	h.syncPeer = ""
	h.mtx.Unlock()
	log.Debugf("Header sync with %s complete", peerID)
	return nil
}

// requestHeaders asks the given peer for the batch after the current tip and
// arms the reply timeout. An expired timeout disconnects the peer and retries
// against another candidate.
func (h *Handler) requestHeaders(peerID string) {
	tipHash, _ := h.cfg.Store.Tip()
	err := h.cfg.Send(peerID, appmessage.NewMsgGetHeaders(tipHash, appmessage.MaxHeadersPerMsg))
	if err != nil {
		log.Debugf("Couldn't request headers from %s: %s", peerID, err)
		return
	}

	h.cfg.Timeouts.Arm(peerID, timeout.KindHeaders, h.cfg.HeadersTimeout, func() {
		log.Warnf("Peer %s did not answer headers request, disconnecting", peerID)
		h.cfg.Disconnect(peerID)
	})
}

// pickCandidateNoLock returns a random remaining candidate, or empty when
// there are none. Must be called with the lock held.
func (h *Handler) pickCandidateNoLock() string {
	if len(h.candidates) == 0 {
		return ""
	}
	next := h.candidates[rand.Intn(len(h.candidates))]
	h.syncPeer = next
	return next
}
