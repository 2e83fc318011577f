package appmessage

// MsgPing implements the Message interface and represents a ping message.
//
// The nonce is used to identify which pong message the remote peer is
// replying to.
type MsgPing struct {
	// Unique value associated with message that is used to identify
	// specific ping message.
	Nonce uint64
}

// Command returns the protocol command string for the message
func (msg *MsgPing) Command() MessageCommand {
	return CmdPing
}

// NewMsgPing returns a new ping message that conforms to the Message
// interface.
func NewMsgPing(nonce uint64) *MsgPing {
	return &MsgPing{
		Nonce: nonce,
	}
}
