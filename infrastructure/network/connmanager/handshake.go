package connmanager

import (
	"time"

	"github.com/pkg/errors"

	"github.com/featherchain/featherd/app/appmessage"
)

// handshake performs the version/verack exchange on a fresh session. Both
// sides write their version first and then read, so the exchange cannot
// deadlock. The whole exchange runs under a single transport deadline.
//
// A received nonce equal to the node's own nonce means the node connected to
// itself; the session must be torn down before it ever reaches the
// connection table.
func (s *session) handshake() error {
	s.peer.setState(StateHandshaking)

	err := s.conn.SetDeadline(time.Now().Add(s.cm.cfg.HandshakeTimeout))
	if err != nil {
		return errors.Wrap(err, "couldn't set handshake deadline")
	}

	cfg := &s.cm.cfg
	height := uint64(0)
	if cfg.Height != nil {
		height = cfg.Height()
	}
	localVersion := appmessage.NewMsgVersion(cfg.ProtocolVersion, cfg.Services,
		cfg.UserAgent, cfg.Nonce, height)
	err = cfg.Codec.WriteMessage(s.conn, localVersion)
	if err != nil {
		return errors.Wrapf(err, "couldn't send version to %s", s.peer)
	}

	message, err := cfg.Codec.ReadMessage(s.conn)
	if err != nil {
		return errors.Wrapf(err, "couldn't receive version from %s", s.peer)
	}
	remoteVersion, ok := message.(*appmessage.MsgVersion)
	if !ok {
		return errors.Errorf("expected version message from %s, got %s", s.peer, message.Command())
	}

	if remoteVersion.Nonce == cfg.Nonce {
		return errors.Wrapf(ErrSelfConnection, "%s sent our own nonce %d", s.peer, cfg.Nonce)
	}
	if remoteVersion.ProtocolVersion < cfg.MinProtocolVersion {
		return errors.Wrapf(ErrProtocolVersion, "%s speaks protocol %d, minimum is %d",
			s.peer, remoteVersion.ProtocolVersion, cfg.MinProtocolVersion)
	}
	err = appmessage.ValidateUserAgent(remoteVersion.UserAgent)
	if err != nil {
		return errors.Wrapf(err, "invalid user agent from %s", s.peer)
	}

	s.peer.services = remoteVersion.Services
	s.peer.userAgent = remoteVersion.UserAgent
	s.peer.protocolVersion = remoteVersion.ProtocolVersion
	s.peer.nonce = remoteVersion.Nonce
	s.peer.lastBlock = remoteVersion.LastBlock

	err = cfg.Codec.WriteMessage(s.conn, appmessage.NewMsgVerAck())
	if err != nil {
		return errors.Wrapf(err, "couldn't send verack to %s", s.peer)
	}
	message, err = cfg.Codec.ReadMessage(s.conn)
	if err != nil {
		return errors.Wrapf(err, "couldn't receive verack from %s", s.peer)
	}
	if _, ok := message.(*appmessage.MsgVerAck); !ok {
		return errors.Errorf("expected verack message from %s, got %s", s.peer, message.Command())
	}

	err = s.conn.SetDeadline(time.Time{})
	if err != nil {
		return errors.Wrap(err, "couldn't clear handshake deadline")
	}

	s.peer.timeConnected = time.Now()
	s.peer.setState(StateReady)
	return nil
}
