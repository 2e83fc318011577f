// Package headersstore persists the chain of block headers the node has
// synchronized so far.
//
// The store is shared state owned outside the orchestration core: protocol
// handlers read it concurrently and the header synchronizer extends it.
// Access follows a reader/writer exclusion discipline - many concurrent
// readers, at most one writer.
package headersstore

import (
	"bytes"
	"encoding/gob"
	"sync"

	"github.com/pkg/errors"

	"github.com/featherchain/featherd/app/appmessage"
	"github.com/featherchain/featherd/infrastructure/db/ldb"
)

var (
	tipKey          = []byte("tip")
	headerKeyPrefix = []byte("hdr:")
)

// ErrOrphanHeader signifies that a header does not connect to the current
// tip.
var ErrOrphanHeader = errors.New("header does not extend the current tip")

// Store is a leveldb-backed store of block headers, indexed by block hash,
// that tracks the current tip of the header chain.
type Store struct {
	mtx sync.RWMutex
	db  *ldb.LevelDB

	tipHash   appmessage.Hash
	tipHeight uint64
	hasTip    bool
}

type tipRecord struct {
	Hash   appmessage.Hash
	Height uint64
}

// New returns a Store over the given database, loading the current tip if
// one was persisted by an earlier run.
func New(db *ldb.LevelDB) (*Store, error) {
	store := &Store{db: db}

	serialized, err := db.Get(tipKey)
	if errors.Is(err, ldb.ErrNotFound) {
		// Fresh database. The first header accepted becomes height 0.
		return store, nil
	}
	if err != nil {
		return nil, err
	}

	var tip tipRecord
	err = gob.NewDecoder(bytes.NewReader(serialized)).Decode(&tip)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't deserialize headers store tip")
	}
	store.tipHash = tip.Hash
	store.tipHeight = tip.Height
	store.hasTip = true

	log.Infof("Loaded headers store with tip %s at height %d", tip.Hash, tip.Height)
	return store, nil
}

// Tip returns the hash and height of the current header chain tip. The zero
// hash and height are returned while the store is empty.
func (s *Store) Tip() (appmessage.Hash, uint64) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	return s.tipHash, s.tipHeight
}

// Height returns the height of the current tip, or zero for an empty store.
func (s *Store) Height() uint64 {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	return s.tipHeight
}

// HasHeader returns whether the header with the given hash was stored.
func (s *Store) HasHeader(hash appmessage.Hash) (bool, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	return s.db.Has(headerKey(hash))
}

// PutHeaders appends the given headers to the chain, in order. Each header
// must have the current tip as its parent; the first header appended to an
// empty store is exempt and becomes the chain root. The number of accepted
// headers is returned. A header that does not connect stops the batch with
// ErrOrphanHeader; headers accepted before it remain stored.
func (s *Store) PutHeaders(headers []*appmessage.BlockHeader) (int, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	added := 0
	for _, header := range headers {
		hash := header.BlockHash()
		if s.hasTip {
			if header.ParentHash != s.tipHash {
				err := errors.Wrapf(ErrOrphanHeader,
					"header %s has parent %s, tip is %s", hash, header.ParentHash, s.tipHash)
				if added > 0 {
					if persistErr := s.storeTipNoLock(); persistErr != nil {
						return added, persistErr
					}
				}
				return added, err
			}
		}

		err := s.putHeaderNoLock(hash, header)
		if err != nil {
			return added, err
		}

		if s.hasTip {
			s.tipHeight++
		}
		s.tipHash = hash
		s.hasTip = true
		added++
	}

	if added > 0 {
		err := s.storeTipNoLock()
		if err != nil {
			return added, err
		}
	}
	return added, nil
}

func (s *Store) putHeaderNoLock(hash appmessage.Hash, header *appmessage.BlockHeader) error {
	var serialized bytes.Buffer
	err := gob.NewEncoder(&serialized).Encode(header)
	if err != nil {
		return errors.Wrapf(err, "couldn't serialize header %s", hash)
	}
	return s.db.Put(headerKey(hash), serialized.Bytes())
}

func (s *Store) storeTipNoLock() error {
	var serialized bytes.Buffer
	err := gob.NewEncoder(&serialized).Encode(&tipRecord{Hash: s.tipHash, Height: s.tipHeight})
	if err != nil {
		return errors.Wrap(err, "couldn't serialize headers store tip")
	}
	return s.db.Put(tipKey, serialized.Bytes())
}

func headerKey(hash appmessage.Hash) []byte {
	key := make([]byte, len(headerKeyPrefix)+len(hash))
	copy(key, headerKeyPrefix)
	copy(key[len(headerKeyPrefix):], hash[:])
	return key
}
