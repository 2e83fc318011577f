package connmanager

import (
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/featherchain/featherd/app/appmessage"
)

// Direction is the direction of a peer session.
type Direction uint8

// Direction constants.
const (
	// Inbound marks a session accepted on a listening endpoint.
	Inbound Direction = iota

	// Outbound marks a session this node dialed.
	Outbound
)

func (d Direction) String() string {
	if d == Inbound {
		return "inbound"
	}
	return "outbound"
}

// State is the lifecycle state of a peer session.
type State uint32

// State constants. A session only moves forward through them.
const (
	StateConnecting State = iota
	StateHandshaking
	StateReady
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateReady:
		return "ready"
	case StateDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("unknown state %d", uint32(s))
	}
}

// PeerSource describes where a new peer session comes from: either an
// address to dial or an already-accepted inbound connection.
type PeerSource struct {
	address   string
	conn      net.Conn
	direction Direction
}

// OutboundPeer returns a PeerSource that dials the given address.
func OutboundPeer(address string) PeerSource {
	return PeerSource{address: address, direction: Outbound}
}

// InboundPeer returns a PeerSource wrapping an accepted connection.
func InboundPeer(conn net.Conn) PeerSource {
	return PeerSource{conn: conn, direction: Inbound}
}

// Peer is the read-only view of a peer session. It is owned by the
// ConnectionManager; other components reference peers by id only.
type Peer struct {
	id        string
	address   string
	direction Direction
	state     uint32 // atomic. Actually a State.

	// Fields negotiated during handshake.
	services        appmessage.ServiceFlag
	userAgent       string
	protocolVersion uint32
	nonce           uint64
	lastBlock       uint64

	timeConnected time.Time
}

// ID returns the opaque id of the peer, derived from its network address.
func (p *Peer) ID() string {
	return p.id
}

// Address returns the network address of the peer.
func (p *Peer) Address() string {
	return p.address
}

// Direction returns whether the session was accepted or dialed.
func (p *Peer) Direction() Direction {
	return p.direction
}

// State returns the current session state.
func (p *Peer) State() State {
	return State(atomic.LoadUint32(&p.state))
}

func (p *Peer) setState(state State) {
	atomic.StoreUint32(&p.state, uint32(state))
}

// Services returns the services advertised by the peer during handshake.
func (p *Peer) Services() appmessage.ServiceFlag {
	return p.services
}

// UserAgent returns the user agent advertised by the peer during handshake.
func (p *Peer) UserAgent() string {
	return p.userAgent
}

// ProtocolVersion returns the protocol version negotiated during handshake.
func (p *Peer) ProtocolVersion() uint32 {
	return p.protocolVersion
}

// LastBlock returns the chain height the peer advertised during handshake.
func (p *Peer) LastBlock() uint64 {
	return p.lastBlock
}

// TimeConnected returns the time the session reached Ready.
func (p *Peer) TimeConnected() time.Time {
	return p.timeConnected
}

func (p *Peer) String() string {
	return fmt.Sprintf("%s (%s)", p.id, p.direction)
}
