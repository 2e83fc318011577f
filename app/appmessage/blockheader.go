package appmessage

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"time"
)

// Hash is the double-sha256 digest identifying a block header.
type Hash [32]byte

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// BlockHeader defines information about a block. Only the fields the header
// synchronization handler needs are modeled here; full consensus validation
// belongs to the chain-state collaborator.
type BlockHeader struct {
	Version    uint32
	ParentHash Hash
	MerkleRoot Hash
	Timestamp  time.Time
	Bits       uint32
	Nonce      uint64
}

// blockHeaderLength is the size of the serialized form hashed by BlockHash:
// version (4) + parent (32) + merkle root (32) + timestamp (8) + bits (4) +
// nonce (8).
const blockHeaderLength = 88

// BlockHash computes the hash identifying this header.
func (h *BlockHeader) BlockHash() Hash {
	var buf [blockHeaderLength]byte
	binary.LittleEndian.PutUint32(buf[0:], h.Version)
	copy(buf[4:], h.ParentHash[:])
	copy(buf[36:], h.MerkleRoot[:])
	binary.LittleEndian.PutUint64(buf[68:], uint64(h.Timestamp.Unix()))
	binary.LittleEndian.PutUint32(buf[76:], h.Bits)
	binary.LittleEndian.PutUint64(buf[80:], h.Nonce)

	first := sha256.Sum256(buf[:])
	return sha256.Sum256(first[:])
}
