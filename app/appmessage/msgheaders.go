package appmessage

// MsgHeaders implements the Message interface and represents a headers
// message. It is used to deliver block header information in response to a
// getheaders message.
type MsgHeaders struct {
	Headers []*BlockHeader
}

// Command returns the protocol command string for the message
func (msg *MsgHeaders) Command() MessageCommand {
	return CmdHeaders
}

// AddBlockHeader adds a new block header to the message.
func (msg *MsgHeaders) AddBlockHeader(header *BlockHeader) {
	msg.Headers = append(msg.Headers, header)
}

// NewMsgHeaders returns a new headers message that conforms to the Message
// interface.
func NewMsgHeaders(headers ...*BlockHeader) *MsgHeaders {
	return &MsgHeaders{
		Headers: headers,
	}
}
