// Package laststore implements the persistent latest-messages store (spec
// component C): a durable validator -> latest block hash mapping, kept as
// its own append-only log independent of the block metadata log so a reader
// can answer "what did validator V last say" without scanning the entire
// DAG history.
package laststore

import (
	"path/filepath"

	"github.com/mezonai/dagnode/internal/clog"
	"github.com/mezonai/dagnode/internal/corestore"
	"github.com/mezonai/dagnode/internal/dagcore"
	"github.com/mezonai/dagnode/internal/logcodec"
)

const logFileName = "latest-messages-log"
const recordSize = 64 // 32-byte validator id || 32-byte block hash

// Config tunes squash: the log is rewritten to one record per validator once
// its record count exceeds MaxSizeFactor * (distinct validator count).
type Config struct {
	MaxSizeFactor float64
}

func DefaultConfig() Config {
	return Config{MaxSizeFactor: 4}
}

type entry struct {
	validator dagcore.ValidatorId
	hash      dagcore.BlockHash
}

// Store is the persistent latest-messages store.
type Store struct {
	dir  string
	cfg  Config
	log  *logcodec.Log
	live map[string]entry // key = string(ValidatorId)

	recordCount uint64
	closed      bool
}

// Open replays the latest-messages log, returning a Store whose Snapshot
// reflects every surviving record (later records for the same validator
// override earlier ones, since the log is append-only and only rewritten
// by squash, Resync and Clear).
func Open(dir string, cfg Config) (*Store, error) {
	path := filepath.Join(dir, logFileName)
	log, records, err := logcodec.Open(path)
	if err != nil {
		return nil, err
	}
	if log.CorruptTailWasDropped() {
		clog.Warn("LASTSTORE", corestore.KindCorruptTail, "discarded trailing garbage from latest-messages log at open:", path)
	}
	live := map[string]entry{}
	var decoded uint64
	for _, raw := range records {
		v, h, err := decodeRecord(raw)
		if err != nil {
			clog.Warn("LASTSTORE", "corrupt record in latest-messages log, stopping replay:", err)
			break
		}
		live[string(v)] = entry{validator: v, hash: h}
		decoded++
	}
	return &Store{dir: dir, cfg: cfg, log: log, live: live, recordCount: decoded}, nil
}

// Put records validator's latest message, appending one record and
// triggering a squash if the log has grown disproportionately to the
// number of distinct validators tracked.
func (s *Store) Put(validator dagcore.ValidatorId, hash dagcore.BlockHash) error {
	if s.closed {
		return corestore.New(corestore.KindStoreClosed, "laststore")
	}
	if validator.Empty() {
		return nil // genesis identifier never has a latest-message entry
	}
	if err := validator.Validate(); err != nil {
		return err
	}
	if err := s.log.Append(encodeRecord(validator, hash)); err != nil {
		return err
	}
	s.live[string(validator)] = entry{validator: validator, hash: hash}
	s.recordCount++
	if float64(s.recordCount) > s.cfg.MaxSizeFactor*float64(len(s.live)) {
		return s.squash()
	}
	return nil
}

// Latest returns validator's latest-message hash, if known.
func (s *Store) Latest(validator dagcore.ValidatorId) (dagcore.BlockHash, bool) {
	e, ok := s.live[string(validator)]
	return e.hash, ok
}

// Snapshot returns every tracked validator's latest-message entry.
func (s *Store) Snapshot() map[string]dagcore.BlockHash {
	out := make(map[string]dagcore.BlockHash, len(s.live))
	for _, e := range s.live {
		out[string(e.validator)] = e.hash
	}
	return out
}

// Resync overwrites the store's on-disk and in-memory state to exactly
// match the given authoritative latest-message entries. The façade calls
// this once at startup, after replaying the block metadata log into the DAG
// index, so this store can never drift from the index it mirrors.
func (s *Store) Resync(entries map[string]dagcore.BlockHash) error {
	if s.closed {
		return corestore.New(corestore.KindStoreClosed, "laststore")
	}
	if err := s.log.Truncate(); err != nil {
		return err
	}
	live := make(map[string]entry, len(entries))
	for k, h := range entries {
		v := dagcore.ValidatorId(k)
		if err := s.log.Append(encodeRecord(v, h)); err != nil {
			return err
		}
		live[string(v)] = entry{validator: v, hash: h}
	}
	s.live = live
	s.recordCount = uint64(len(live))
	return nil
}

func (s *Store) squash() error {
	before := s.log.Path()
	if err := s.log.Truncate(); err != nil {
		return err
	}
	for _, e := range s.live {
		if err := s.log.Append(encodeRecord(e.validator, e.hash)); err != nil {
			return err
		}
	}
	s.recordCount = uint64(len(s.live))
	clog.Info("LASTSTORE", "squashed", before, "to", s.recordCount, "records")
	return nil
}

// Clear empties the store.
func (s *Store) Clear() error {
	if s.closed {
		return corestore.New(corestore.KindStoreClosed, "laststore")
	}
	if err := s.log.Truncate(); err != nil {
		return err
	}
	s.live = map[string]entry{}
	s.recordCount = 0
	return nil
}

// Close releases the log's file handle.
func (s *Store) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.log.Close()
}

func encodeRecord(v dagcore.ValidatorId, h dagcore.BlockHash) []byte {
	rec := make([]byte, recordSize)
	copy(rec[0:32], v)
	copy(rec[32:64], h[:])
	return rec
}

func decodeRecord(raw []byte) (dagcore.ValidatorId, dagcore.BlockHash, error) {
	if len(raw) != recordSize {
		return nil, dagcore.BlockHash{}, corestore.New(corestore.KindCorruptTail,
			"latest-message record has wrong size")
	}
	v := append(dagcore.ValidatorId{}, raw[0:32]...)
	var h dagcore.BlockHash
	copy(h[:], raw[32:64])
	return v, h, nil
}
