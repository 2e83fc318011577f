// Package connmanager owns the set of peer sessions of a featherd node.
//
// It binds listening endpoints, dials outbound peers, performs the version
// handshake, and funnels every inbound message from every Ready session into
// one shared bounded channel. A full channel blocks the reading session - the
// slow consumer throttles all peers uniformly instead of dropping messages.
package connmanager

import (
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/featherchain/featherd/app/appmessage"
)

const (
	defaultBackPressure     = 10
	defaultHandshakeTimeout = 30 * time.Second
)

var (
	// ErrPeerNotFound is returned by Send when the given peer id has no
	// entry in the connection table.
	ErrPeerNotFound = errors.New("peer not found")

	// ErrDuplicatePeer is returned by AddPeer when a session with the same
	// peer id already exists.
	ErrDuplicatePeer = errors.New("peer with the same id already exists")

	// ErrSelfConnection signifies that a handshake returned the node's own
	// nonce, meaning the node connected to itself.
	ErrSelfConnection = errors.New("connected to self")

	// ErrProtocolVersion signifies that a peer advertised a protocol
	// version below the configured minimum.
	ErrProtocolVersion = errors.New("protocol version below minimum")

	// ErrSendQueueFull signifies that a peer stopped draining its outgoing
	// queue. The offending session is torn down.
	ErrSendQueueFull = errors.New("peer send queue is full")

	// ErrStopped is returned for operations attempted after Stop.
	ErrStopped = errors.New("connection manager is stopped")
)

// Envelope couples an inbound message with the id of the peer session it
// arrived on.
type Envelope struct {
	PeerID  string
	Message appmessage.Message
}

// MessageCodec translates raw bytes to and from typed messages. Wire format
// is the business of the collaborator implementing it.
type MessageCodec interface {
	ReadMessage(r io.Reader) (appmessage.Message, error)
	WriteMessage(w io.Writer, message appmessage.Message) error
}

// DialFunc connects to the given TCP address.
type DialFunc func(address string) (net.Conn, error)

// Config holds the configuration of a ConnectionManager.
type Config struct {
	// Nonce is the self-identifying nonce sent in version messages and
	// used to detect self-connections.
	Nonce uint64

	// ProtocolVersion is advertised in version messages.
	ProtocolVersion uint32

	// MinProtocolVersion is the lowest acceptable peer protocol version.
	MinProtocolVersion uint32

	// Services is the service bitfield advertised in version messages.
	Services appmessage.ServiceFlag

	// UserAgent is advertised in version messages.
	UserAgent string

	// Height supplies the chain height advertised in version messages.
	// May be nil, in which case zero is advertised.
	Height func() uint64

	// BackPressure is the capacity of the shared inbound message channel.
	BackPressure int

	// Codec translates between raw bytes and typed messages.
	Codec MessageCodec

	// Dial connects to an outbound address. Defaults to a plain TCP dial
	// with a timeout.
	Dial DialFunc

	// HandshakeTimeout bounds the whole version/verack exchange.
	HandshakeTimeout time.Duration
}

// ConnectionManager owns the connection table and all peer sessions.
type ConnectionManager struct {
	cfg Config

	incomingMessages chan Envelope

	connections     connectionSet
	connectionsLock sync.RWMutex

	listeners     []net.Listener
	listenersLock sync.Mutex

	onPeerReady        func(peerID string)
	onPeerDisconnected func(peerID string)

	readersWaitGroup sync.WaitGroup
	stop             uint32
	quit             chan struct{}
}

// New returns a new ConnectionManager. Use Bind and AddPeer to populate it
// with sessions, and Stop to tear everything down.
func New(cfg Config) (*ConnectionManager, error) {
	if cfg.Codec == nil {
		return nil, errors.New("config: Codec cannot be nil")
	}
	if cfg.BackPressure <= 0 {
		cfg.BackPressure = defaultBackPressure
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.Dial == nil {
		cfg.Dial = DefaultDialer()
	}

	return &ConnectionManager{
		cfg:              cfg,
		incomingMessages: make(chan Envelope, cfg.BackPressure),
		connections:      make(connectionSet),
		quit:             make(chan struct{}),
	}, nil
}

// SetOnPeerReadyHandler sets the function called whenever a session reaches
// Ready. Must be called before the manager accepts or dials peers.
func (cm *ConnectionManager) SetOnPeerReadyHandler(handler func(peerID string)) {
	cm.onPeerReady = handler
}

// SetOnPeerDisconnectedHandler sets the function called whenever a session is
// torn down. Must be called before the manager accepts or dials peers.
func (cm *ConnectionManager) SetOnPeerDisconnectedHandler(handler func(peerID string)) {
	cm.onPeerDisconnected = handler
}

// IncomingMessages returns the shared bounded channel every Ready session
// writes into. There must be exactly one consumer, and it must keep its own
// stop signal: the channel stays open across Stop.
func (cm *ConnectionManager) IncomingMessages() <-chan Envelope {
	return cm.incomingMessages
}

// Bind opens a listening endpoint on the given address and accepts inbound
// connections until the manager stops.
func (cm *ConnectionManager) Bind(address string) error {
	if cm.isStopped() {
		return errors.WithStack(ErrStopped)
	}

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return errors.Wrapf(err, "couldn't listen on %s", address)
	}

	cm.listenersLock.Lock()
	cm.listeners = append(cm.listeners, listener)
	cm.listenersLock.Unlock()

	spawn("ConnectionManager.listenHandler-"+address, func() {
		cm.listenHandler(listener)
	})
	return nil
}

func (cm *ConnectionManager) listenHandler(listener net.Listener) {
	log.Infof("Listening on %s", listener.Addr())
	for {
		conn, err := listener.Accept()
		if err != nil {
			// Only log the error if not shutting down.
			if !cm.isStopped() {
				log.Errorf("Can't accept connection: %s", err)
				continue
			}
			return
		}
		spawn("ConnectionManager.AddPeer-inbound", func() {
			_, err := cm.AddPeer(InboundPeer(conn))
			if err != nil {
				log.Debugf("Inbound connection from %s failed: %s", conn.RemoteAddr(), err)
			}
		})
	}
}

// AddPeer establishes a new peer session from the given source and blocks
// until the session reaches Ready or fails. Callers that need a handle
// instead of blocking run it in its own goroutine.
func (cm *ConnectionManager) AddPeer(source PeerSource) (*Peer, error) {
	if cm.isStopped() {
		if source.conn != nil {
			_ = source.conn.Close()
		}
		return nil, errors.WithStack(ErrStopped)
	}

	conn := source.conn
	if conn == nil {
		var err error
		conn, err = cm.cfg.Dial(source.address)
		if err != nil {
			return nil, errors.Wrapf(err, "couldn't connect to %s", source.address)
		}
	}

	s := newSession(cm, conn, source.direction)
	err := s.handshake()
	if err != nil {
		s.close()
		return nil, err
	}

	err = cm.registerSession(s)
	if err != nil {
		s.close()
		return nil, err
	}

	s.start()
	log.Infof("New peer %s, useragent %s, protocol %d",
		s.peer, s.peer.UserAgent(), s.peer.ProtocolVersion())

	if cm.onPeerReady != nil {
		cm.onPeerReady(s.peer.ID())
	}
	return s.peer, nil
}

func (cm *ConnectionManager) registerSession(s *session) error {
	cm.connectionsLock.Lock()
	defer cm.connectionsLock.Unlock()

	if cm.isStopped() {
		return errors.WithStack(ErrStopped)
	}
	if _, ok := cm.connections.get(s.peer.ID()); ok {
		return errors.Wrapf(ErrDuplicatePeer, "already connected to %s", s.peer.ID())
	}
	cm.connections.add(s)
	return nil
}

// onSessionClosed removes the torn-down session from the connection table.
func (cm *ConnectionManager) onSessionClosed(s *session) {
	cm.connectionsLock.Lock()
	existing, ok := cm.connections.get(s.peer.ID())
	removed := ok && existing == s
	if removed {
		cm.connections.remove(s)
	}
	cm.connectionsLock.Unlock()

	if removed {
		log.Infof("Disconnected from %s", s.peer)
		if cm.onPeerDisconnected != nil {
			cm.onPeerDisconnected(s.peer.ID())
		}
	}
}

// Send enqueues a message for delivery to the given peer. It returns
// ErrPeerNotFound when the id is unknown. A peer that disconnected after the
// lookup is a silent no-op: delivery is fire-and-forget.
func (cm *ConnectionManager) Send(peerID string, message appmessage.Message) error {
	cm.connectionsLock.RLock()
	s, ok := cm.connections.get(peerID)
	cm.connectionsLock.RUnlock()

	if !ok {
		return errors.Wrapf(ErrPeerNotFound, "cannot send %s to %s", message.Command(), peerID)
	}
	return s.enqueueOutgoing(message)
}

// Disconnect tears down the session of the given peer and removes its table
// entry. Unknown ids and repeated calls are no-ops.
func (cm *ConnectionManager) Disconnect(peerID string) {
	cm.connectionsLock.RLock()
	s, ok := cm.connections.get(peerID)
	cm.connectionsLock.RUnlock()

	if !ok {
		return
	}
	log.Debugf("Disconnecting from %s", peerID)
	s.close()
}

// ConnectedPeerCount returns the number of live entries in the connection
// table.
func (cm *ConnectionManager) ConnectedPeerCount() int {
	cm.connectionsLock.RLock()
	defer cm.connectionsLock.RUnlock()

	return len(cm.connections)
}

// Peers returns a snapshot of all connected peers.
func (cm *ConnectionManager) Peers() []*Peer {
	cm.connectionsLock.RLock()
	defer cm.connectionsLock.RUnlock()

	peers := make([]*Peer, 0, len(cm.connections))
	for _, s := range cm.connections {
		peers = append(peers, s.peer)
	}
	return peers
}

// ConnectedPeerIDs returns a snapshot of the ids of all connected peers.
func (cm *ConnectionManager) ConnectedPeerIDs() []string {
	cm.connectionsLock.RLock()
	defer cm.connectionsLock.RUnlock()

	peerIDs := make([]string, 0, len(cm.connections))
	for peerID := range cm.connections {
		peerIDs = append(peerIDs, peerID)
	}
	return peerIDs
}

// Stop closes all listeners and sessions and waits for the session readers
// to exit.
func (cm *ConnectionManager) Stop() {
	if !atomic.CompareAndSwapUint32(&cm.stop, 0, 1) {
		log.Warnf("Connection manager stopped more than once")
		return
	}
	close(cm.quit)

	cm.listenersLock.Lock()
	for _, listener := range cm.listeners {
		_ = listener.Close()
	}
	cm.listenersLock.Unlock()

	cm.connectionsLock.RLock()
	sessions := make([]*session, 0, len(cm.connections))
	for _, s := range cm.connections {
		sessions = append(sessions, s)
	}
	cm.connectionsLock.RUnlock()
	for _, s := range sessions {
		s.close()
	}

	cm.readersWaitGroup.Wait()
	log.Infof("Connection manager stopped")
}

func (cm *ConnectionManager) isStopped() bool {
	return atomic.LoadUint32(&cm.stop) != 0
}
