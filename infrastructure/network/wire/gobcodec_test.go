package wire

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"

	"github.com/featherchain/featherd/app/appmessage"
)

func TestRoundtrip(t *testing.T) {
	codec := NewGobCodec(0x12345678)
	var buf bytes.Buffer

	sent := appmessage.NewMsgVersion(70001, appmessage.SFNodeNetwork,
		"/featherd-test:0.0.1/", 11, 42)
	if err := codec.WriteMessage(&buf, sent); err != nil {
		t.Fatalf("WriteMessage: %s", err)
	}

	received, err := codec.ReadMessage(&buf)
	if err != nil {
		t.Fatalf("ReadMessage: %s", err)
	}
	version, ok := received.(*appmessage.MsgVersion)
	if !ok {
		t.Fatalf("received %s, want version", received.Command())
	}
	if version.UserAgent != sent.UserAgent || version.Nonce != sent.Nonce ||
		version.LastBlock != sent.LastBlock {
		t.Fatalf("received version %+v, want %+v", version, sent)
	}
}

func TestFramesKeepTheirBoundaries(t *testing.T) {
	codec := NewGobCodec(0x12345678)
	var buf bytes.Buffer

	if err := codec.WriteMessage(&buf, appmessage.NewMsgPing(1)); err != nil {
		t.Fatalf("WriteMessage: %s", err)
	}
	if err := codec.WriteMessage(&buf, appmessage.NewMsgPong(2)); err != nil {
		t.Fatalf("WriteMessage: %s", err)
	}

	first, err := codec.ReadMessage(&buf)
	if err != nil {
		t.Fatalf("ReadMessage: %s", err)
	}
	if ping, ok := first.(*appmessage.MsgPing); !ok || ping.Nonce != 1 {
		t.Fatalf("first frame: got %+v", first)
	}
	second, err := codec.ReadMessage(&buf)
	if err != nil {
		t.Fatalf("ReadMessage: %s", err)
	}
	if pong, ok := second.(*appmessage.MsgPong); !ok || pong.Nonce != 2 {
		t.Fatalf("second frame: got %+v", second)
	}
}

func TestWrongNetworkIsRejected(t *testing.T) {
	mainnet := NewGobCodec(0x11111111)
	testnet := NewGobCodec(0x22222222)
	var buf bytes.Buffer

	if err := mainnet.WriteMessage(&buf, appmessage.NewMsgPing(1)); err != nil {
		t.Fatalf("WriteMessage: %s", err)
	}
	_, err := testnet.ReadMessage(&buf)
	if !errors.Is(err, ErrBadMagic) {
		t.Fatalf("ReadMessage: got %v, want ErrBadMagic", err)
	}
}

func TestUnknownCommandIsRejected(t *testing.T) {
	codec := NewGobCodec(0x12345678)
	var buf bytes.Buffer

	if err := codec.WriteMessage(&buf, appmessage.NewMsgPing(1)); err != nil {
		t.Fatalf("WriteMessage: %s", err)
	}
	// Corrupt the command field of the frame header.
	frame := buf.Bytes()
	frame[4], frame[5], frame[6], frame[7] = 0xff, 0xff, 0xff, 0xff

	_, err := codec.ReadMessage(bytes.NewReader(frame))
	if err == nil {
		t.Fatal("ReadMessage accepted an unknown command")
	}
}
