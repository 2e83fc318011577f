// Package wire implements a frame codec for featherd network messages.
//
// The orchestration core is codec-agnostic: sessions consume any
// implementation of connmanager.MessageCodec. This package provides the
// codec used by the featherd binary and the loopback tests: a 12-byte frame
// header (network magic, message command, payload length) followed by a
// gob-encoded payload.
package wire

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"io"

	"github.com/pkg/errors"

	"github.com/featherchain/featherd/app/appmessage"
)

const headerLength = 12

// ErrBadMagic signifies that a frame arrived with the magic value of a
// different network.
var ErrBadMagic = errors.New("message from wrong network")

// GobCodec reads and writes typed messages as gob-encoded frames tagged with
// a per-network magic value.
type GobCodec struct {
	magic uint32
}

// NewGobCodec returns a codec for the network identified by magic.
func NewGobCodec(magic uint32) *GobCodec {
	return &GobCodec{magic: magic}
}

// WriteMessage encodes message and writes a single frame to w.
func (c *GobCodec) WriteMessage(w io.Writer, message appmessage.Message) error {
	var payload bytes.Buffer
	err := gob.NewEncoder(&payload).Encode(message)
	if err != nil {
		return errors.Wrapf(err, "couldn't encode %s payload", message.Command())
	}
	if payload.Len() > appmessage.MaxMessagePayload {
		return errors.Errorf("%s payload is %d bytes, above the %d limit",
			message.Command(), payload.Len(), appmessage.MaxMessagePayload)
	}

	var header [headerLength]byte
	binary.LittleEndian.PutUint32(header[0:], c.magic)
	binary.LittleEndian.PutUint32(header[4:], uint32(message.Command()))
	binary.LittleEndian.PutUint32(header[8:], uint32(payload.Len()))

	_, err = w.Write(header[:])
	if err != nil {
		return errors.WithStack(err)
	}
	_, err = w.Write(payload.Bytes())
	return errors.WithStack(err)
}

// ReadMessage reads a single frame from r and decodes it into a typed
// message.
func (c *GobCodec) ReadMessage(r io.Reader) (appmessage.Message, error) {
	var header [headerLength]byte
	_, err := io.ReadFull(r, header[:])
	if err != nil {
		return nil, errors.WithStack(err)
	}

	magic := binary.LittleEndian.Uint32(header[0:])
	if magic != c.magic {
		return nil, errors.Wrapf(ErrBadMagic, "got magic %08x, want %08x", magic, c.magic)
	}

	command := appmessage.MessageCommand(binary.LittleEndian.Uint32(header[4:]))
	length := binary.LittleEndian.Uint32(header[8:])
	if length > appmessage.MaxMessagePayload {
		return nil, errors.Errorf("%s payload is %d bytes, above the %d limit",
			command, length, appmessage.MaxMessagePayload)
	}

	payload := make([]byte, length)
	_, err = io.ReadFull(r, payload)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	message, err := emptyMessage(command)
	if err != nil {
		return nil, err
	}
	err = gob.NewDecoder(bytes.NewReader(payload)).Decode(message)
	if err != nil {
		return nil, errors.Wrapf(err, "couldn't decode %s payload", command)
	}
	return message, nil
}

func emptyMessage(command appmessage.MessageCommand) (appmessage.Message, error) {
	switch command {
	case appmessage.CmdVersion:
		return &appmessage.MsgVersion{}, nil
	case appmessage.CmdVerAck:
		return &appmessage.MsgVerAck{}, nil
	case appmessage.CmdPing:
		return &appmessage.MsgPing{}, nil
	case appmessage.CmdPong:
		return &appmessage.MsgPong{}, nil
	case appmessage.CmdGetHeaders:
		return &appmessage.MsgGetHeaders{}, nil
	case appmessage.CmdHeaders:
		return &appmessage.MsgHeaders{}, nil
	default:
		return nil, errors.Errorf("unhandled command [%s]", command)
	}
}
