package appmessage

// MsgVerAck defines a version acknowledge message which is used for a peer to
// acknowledge a version message. It has no payload.
type MsgVerAck struct{}

// Command returns the protocol command string for the message
func (msg *MsgVerAck) Command() MessageCommand {
	return CmdVerAck
}

// NewMsgVerAck returns a new verack message that conforms to the Message
// interface.
func NewMsgVerAck() *MsgVerAck {
	return &MsgVerAck{}
}
