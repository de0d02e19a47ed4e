// Package blockstore is a content-addressed block payload store backed by
// bbolt, a reference implementation of the collab.Collaborators
// BlockStorePut/BlockStoreGet capability pair.
package blockstore

import (
	"go.etcd.io/bbolt"

	"github.com/mezonai/dagnode/internal/corestore"
)

var bucketName = []byte("blocks")

// BoltBlockStore stores block payloads keyed by their 32-byte hash.
type BoltBlockStore struct {
	db *bbolt.DB
}

// Open opens (creating if necessary) a bbolt database at path.
func Open(path string) (*BoltBlockStore, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, corestore.Wrap(corestore.KindIOError, "open bbolt db", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, corestore.Wrap(corestore.KindIOError, "create blocks bucket", err)
	}
	return &BoltBlockStore{db: db}, nil
}

// Put stores payload under hash, overwriting any existing entry.
func (s *BoltBlockStore) Put(hash [32]byte, payload []byte) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put(hash[:], payload)
	})
	if err != nil {
		return corestore.Wrap(corestore.KindIOError, "put block payload", err)
	}
	return nil
}

// Get returns the payload stored under hash, if any.
func (s *BoltBlockStore) Get(hash [32]byte) ([]byte, bool, error) {
	var out []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketName).Get(hash[:])
		if v != nil {
			out = append([]byte{}, v...) // bbolt's slice is only valid for the transaction
		}
		return nil
	})
	if err != nil {
		return nil, false, corestore.Wrap(corestore.KindIOError, "get block payload", err)
	}
	return out, out != nil, nil
}

// Close releases the database file handle.
func (s *BoltBlockStore) Close() error {
	return s.db.Close()
}
