package appmessage

import (
	"fmt"
	"strings"
)

// MaxUserAgentLen is the maximum allowed length for the user agent field in a
// version message.
const MaxUserAgentLen = 256

// MsgVersion implements the Message interface and represents a version
// message. It is used for a peer to advertise itself as soon as an outbound
// connection is made.
type MsgVersion struct {
	// Version of the protocol the node is using.
	ProtocolVersion uint32

	// Bitfield which identifies the enabled services.
	Services ServiceFlag

	// The user agent that generated the message.
	UserAgent string

	// Unique value associated with the message that is used to detect self
	// connections.
	Nonce uint64

	// Last block height seen by the generator of the version message.
	LastBlock uint64

	// Don't announce transactions to peer.
	DisableRelayTx bool
}

// Command returns the protocol command string for the message
func (msg *MsgVersion) Command() MessageCommand {
	return CmdVersion
}

// HasService returns whether the specified service is supported by the node
// that generated the message.
func (msg *MsgVersion) HasService(service ServiceFlag) bool {
	return msg.Services&service == service
}

// ValidateUserAgent checks the user agent length against MaxUserAgentLen
func ValidateUserAgent(userAgent string) error {
	if len(userAgent) > MaxUserAgentLen {
		return fmt.Errorf("user agent too long [len %d, max %d]",
			len(userAgent), MaxUserAgentLen)
	}
	return nil
}

// NewMsgVersion returns a new version message that conforms to the Message
// interface.
func NewMsgVersion(protocolVersion uint32, services ServiceFlag, userAgent string,
	nonce uint64, lastBlock uint64) *MsgVersion {

	return &MsgVersion{
		ProtocolVersion: protocolVersion,
		Services:        services,
		UserAgent:       strings.TrimSpace(userAgent),
		Nonce:           nonce,
		LastBlock:       lastBlock,
	}
}
