package appmessage

// MaxHeadersPerMsg is the maximum number of block headers that can be in a
// single headers message.
const MaxHeadersPerMsg = 2000

// MsgGetHeaders implements the Message interface and represents a getheaders
// message. It is used to request a list of block headers starting after the
// given start hash.
type MsgGetHeaders struct {
	StartHash Hash
	Limit     uint32
}

// Command returns the protocol command string for the message
func (msg *MsgGetHeaders) Command() MessageCommand {
	return CmdGetHeaders
}

// NewMsgGetHeaders returns a new getheaders message that conforms to the
// Message interface.
func NewMsgGetHeaders(startHash Hash, limit uint32) *MsgGetHeaders {
	return &MsgGetHeaders{
		StartHash: startHash,
		Limit:     limit,
	}
}
