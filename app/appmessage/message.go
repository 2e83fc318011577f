package appmessage

import "fmt"

// MaxMessagePayload is the maximum bytes a message can be regardless of other
// individual limits imposed by messages themselves.
const MaxMessagePayload = 1024 * 1024 * 32 // 32MB

// MessageCommand is a number in the header of a message that represents its type.
type MessageCommand uint32

func (cmd MessageCommand) String() string {
	cmdString, ok := MessageCommandToString[cmd]
	if !ok {
		cmdString = "unknown command"
	}
	return fmt.Sprintf("%s [code %d]", cmdString, uint32(cmd))
}

// Commands used in message headers which describe the type of message.
const (
	CmdVersion MessageCommand = iota
	CmdVerAck
	CmdPing
	CmdPong
	CmdGetHeaders
	CmdHeaders
)

// MessageCommandToString maps all MessageCommands to their string representation
var MessageCommandToString = map[MessageCommand]string{
	CmdVersion:    "Version",
	CmdVerAck:     "VerAck",
	CmdPing:       "Ping",
	CmdPong:       "Pong",
	CmdGetHeaders: "GetHeaders",
	CmdHeaders:    "Headers",
}

// Message is an interface that describes a message that flows between peers on
// the network. Wire-level encoding and decoding of messages is the business of
// the codec that the transport is constructed with.
type Message interface {
	Command() MessageCommand
}
