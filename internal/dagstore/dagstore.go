// Package dagstore implements the block DAG façade (spec component E): the
// single entry point that coordinates the append-only log, the block
// metadata store, the latest-messages store and the in-memory DAG index
// under one writer permit, and exposes the read/write operations the rest
// of the node uses.
package dagstore

import (
	"os"
	"sync"

	"github.com/mezonai/dagnode/internal/clog"
	"github.com/mezonai/dagnode/internal/corestore"
	"github.com/mezonai/dagnode/internal/dagcore"
	"github.com/mezonai/dagnode/internal/laststore"
	"github.com/mezonai/dagnode/internal/metastore"
)

// Config bundles the tunables of the two persistent sub-stores.
type Config struct {
	Dir       string // empty means in-memory only, no persistence
	MetaStore metastore.Config
	LastStore laststore.Config
}

func DefaultConfig(dir string) Config {
	return Config{Dir: dir, MetaStore: metastore.DefaultConfig(), LastStore: laststore.DefaultConfig()}
}

// Store is the DAG façade. All writes take mu for the duration of the
// single-writer permit described in the concurrency model; reads take a
// snapshot of the index and release the lock immediately, so a long-running
// reader holding a snapshot never blocks the writer. Taking a snapshot waits
// for any write in progress to finish.
type Store struct {
	mu  sync.Mutex
	idx *dagcore.Index

	persistent bool
	meta       *metastore.Store
	last       *laststore.Store

	closed bool
}

// Open builds a DAG store. If cfg.Dir is empty the store is purely
// in-memory; otherwise it replays persisted state from disk first.
func Open(cfg Config) (*Store, error) {
	idx := dagcore.NewIndex()

	if cfg.Dir == "" {
		return &Store{idx: idx}, nil
	}

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, corestore.Wrap(corestore.KindIOError, "mkdir store dir", err)
	}

	meta, err := metastore.Open(cfg.Dir, cfg.MetaStore, func(m *dagcore.BlockMetadata) {
		idx.Insert(m)
	})
	if err != nil {
		return nil, err
	}

	last, err := laststore.Open(cfg.Dir, cfg.LastStore)
	if err != nil {
		_ = meta.Close()
		return nil, err
	}
	// The index derived its Latest map while replaying the metadata log;
	// laststore is resynced to match it so the two never diverge.
	if err := last.Resync(idx.Snapshot().LatestMessageHashes()); err != nil {
		_ = meta.Close()
		_ = last.Close()
		return nil, err
	}

	clog.Info("DAGSTORE", "opened store at", cfg.Dir)
	return &Store{idx: idx, persistent: true, meta: meta, last: last}, nil
}

// Insert validates and inserts one block's metadata (spec §4.5 insert).
// Rank is computed by the store from parents already present in the index,
// per §4.4, overriding whatever the caller set on meta.Rank.
func (s *Store) Insert(meta *dagcore.BlockMetadata) error {
	if err := meta.Validator.Validate(); err != nil {
		return err
	}
	for _, bv := range meta.BondedValidators {
		if err := bv.Validator.Validate(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return corestore.New(corestore.KindStoreClosed, "dagstore")
	}

	meta.Rank = s.idx.ComputeRank(meta.Parents)

	// Every fallible persistence write happens before the index is touched,
	// so a failure here leaves idx (and the snapshot readers see) exactly as
	// it was before this call: nothing to roll back.
	if s.persistent {
		if err := s.meta.Insert(meta); err != nil {
			return err
		}
		if !meta.Validator.Empty() {
			if err := s.last.Put(meta.Validator, meta.Hash); err != nil {
				return err
			}
		}
		for _, v := range meta.NewlyBondedSince() {
			if v.Empty() || string(v) == string(meta.Validator) {
				continue
			}
			if _, ok := s.last.Latest(v); !ok {
				if err := s.last.Put(v, meta.Hash); err != nil {
					return err
				}
			}
		}
	}

	s.idx.Insert(meta)
	return nil
}

// Snapshot returns an immutable view of the DAG, safe to read without
// holding the store's lock.
func (s *Store) Snapshot() *dagcore.DagRepresentation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idx.Snapshot()
}

// Contains reports whether hash has been inserted.
func (s *Store) Contains(hash dagcore.BlockHash) bool {
	return s.Snapshot().Contains(hash)
}

// Lookup returns a block's metadata, if present.
func (s *Store) Lookup(hash dagcore.BlockHash) (*dagcore.BlockMetadata, bool) {
	return s.Snapshot().Lookup(hash)
}

// Children returns hash's direct children.
func (s *Store) Children(hash dagcore.BlockHash) (map[dagcore.BlockHash]struct{}, bool) {
	return s.Snapshot().Children(hash)
}

// JustificationToBlocks returns the blocks citing hash as a latest message.
func (s *Store) JustificationToBlocks(hash dagcore.BlockHash) (map[dagcore.BlockHash]struct{}, bool) {
	return s.Snapshot().JustificationToBlocks(hash)
}

// LatestMessageHash returns validator v's latest-message hash.
func (s *Store) LatestMessageHash(v dagcore.ValidatorId) (dagcore.BlockHash, bool) {
	return s.Snapshot().LatestMessageHash(v)
}

// Checkpoint forces a metadata-store checkpoint rollover. On the in-memory
// variant this is an idempotent no-op (spec §4.5).
func (s *Store) Checkpoint() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return corestore.New(corestore.KindStoreClosed, "dagstore")
	}
	if !s.persistent {
		return nil
	}
	return s.meta.Checkpoint()
}

// Clear atomically empties every store (spec §4.5), including both on-disk
// logs and every checkpoint file on the persistent variant.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return corestore.New(corestore.KindStoreClosed, "dagstore")
	}
	s.idx.Clear()
	if !s.persistent {
		return nil
	}
	if err := s.meta.Clear(); err != nil {
		return err
	}
	return s.last.Clear()
}

// Close flushes and releases every file handle. Subsequent Insert,
// Checkpoint and Clear calls fail with KindStoreClosed; Snapshot and the
// other read methods keep answering from the in-memory index.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if !s.persistent {
		return nil
	}
	err1 := s.meta.Close()
	err2 := s.last.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
