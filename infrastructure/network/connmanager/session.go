package connmanager

import (
	"net"
	"sync"

	"github.com/pkg/errors"

	"github.com/featherchain/featherd/app/appmessage"
)

// outgoingQueueCapacity bounds the per-session send queue. A peer that stops
// draining it is torn down rather than allowed to stall senders.
const outgoingQueueCapacity = 128

// session is one active or pending connection. It owns its transport and
// translates raw bytes to and from typed messages through the configured
// codec.
type session struct {
	cm   *ConnectionManager
	conn net.Conn
	peer *Peer

	outgoing       chan appmessage.Message
	outgoingClosed bool
	outgoingLock   sync.Mutex

	quit      chan struct{}
	closeOnce sync.Once
}

func newSession(cm *ConnectionManager, conn net.Conn, direction Direction) *session {
	address := conn.RemoteAddr().String()
	return &session{
		cm:   cm,
		conn: conn,
		peer: &Peer{
			id:        address,
			address:   address,
			direction: direction,
			state:     uint32(StateConnecting),
		},
		outgoing: make(chan appmessage.Message, outgoingQueueCapacity),
		quit:     make(chan struct{}),
	}
}

// start launches the read and write loops. Must only be called on a session
// whose handshake succeeded.
func (s *session) start() {
	s.cm.readersWaitGroup.Add(1)
	spawn("session.readLoop-"+s.peer.ID(), s.readLoop)
	spawn("session.writeLoop-"+s.peer.ID(), s.writeLoop)
}

// readLoop decodes inbound messages and pushes them onto the shared channel.
// The push blocks when the channel is full: this is the backpressure
// mechanism that lets a slow consumer throttle all peer readers uniformly.
func (s *session) readLoop() {
	defer s.cm.readersWaitGroup.Done()
	defer s.close()

	for {
		message, err := s.cm.cfg.Codec.ReadMessage(s.conn)
		if err != nil {
			if s.peer.State() != StateDisconnected {
				log.Debugf("Read from %s failed: %s", s.peer, err)
			}
			return
		}

		select {
		case s.cm.incomingMessages <- Envelope{PeerID: s.peer.ID(), Message: message}:
		case <-s.quit:
			return
		}
	}
}

func (s *session) writeLoop() {
	defer s.close()

	for {
		select {
		case message, ok := <-s.outgoing:
			if !ok {
				return
			}
			err := s.cm.cfg.Codec.WriteMessage(s.conn, message)
			if err != nil {
				if s.peer.State() != StateDisconnected {
					log.Debugf("Write to %s failed: %s", s.peer, err)
				}
				return
			}
		case <-s.quit:
			return
		}
	}
}

// enqueueOutgoing queues a message for the write loop. Enqueueing to a
// session that already disconnected is a silent no-op. A full queue tears
// the session down.
func (s *session) enqueueOutgoing(message appmessage.Message) error {
	s.outgoingLock.Lock()
	defer s.outgoingLock.Unlock()

	if s.outgoingClosed {
		return nil
	}
	if len(s.outgoing) == outgoingQueueCapacity {
		spawn("session.close-sendQueueFull", s.close)
		return errors.Wrapf(ErrSendQueueFull, "dropping %s to %s", message.Command(), s.peer)
	}
	s.outgoing <- message
	return nil
}

// close tears the session down: it marks the peer Disconnected, closes the
// transport and queues, and removes the connection table entry. Idempotent.
func (s *session) close() {
	s.closeOnce.Do(func() {
		s.peer.setState(StateDisconnected)
		close(s.quit)
		_ = s.conn.Close()

		s.outgoingLock.Lock()
		s.outgoingClosed = true
		close(s.outgoing)
		s.outgoingLock.Unlock()

		s.cm.onSessionClosed(s)
	})
}
