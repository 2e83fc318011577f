package appmessage

// MsgPong implements the Message interface and represents a pong message
// which is used primarily to confirm that a connection is still valid in
// response to a ping message.
type MsgPong struct {
	// Unique value associated with message that is used to identify
	// specific ping message.
	Nonce uint64
}

// Command returns the protocol command string for the message
func (msg *MsgPong) Command() MessageCommand {
	return CmdPong
}

// NewMsgPong returns a new pong message that conforms to the Message
// interface.
func NewMsgPong(nonce uint64) *MsgPong {
	return &MsgPong{
		Nonce: nonce,
	}
}
