// Package metastore implements the persistent block metadata store (spec
// component B): an in-memory map<BlockHash, BlockMetadata> backed by an
// append-only log (internal/logcodec) with numbered checkpoint rollover.
package metastore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/mezonai/dagnode/internal/checkpointsign"
	"github.com/mezonai/dagnode/internal/clog"
	"github.com/mezonai/dagnode/internal/corestore"
	"github.com/mezonai/dagnode/internal/dagcore"
	"github.com/mezonai/dagnode/internal/logcodec"
)

const logFileName = "block-metadata-log"
const checkpointsDirName = "checkpoints"

// Config tunes checkpoint rollover: the active log rolls into a checkpoint
// once its size exceeds MaxSizeFactor * CheckpointSizeBytes (spec §4.2).
type Config struct {
	MaxSizeFactor       float64
	CheckpointSizeBytes int64

	// Signer, if set, signs every checkpoint segment on rollover and
	// verifies each checkpoint's signature while replaying it at Open.
	// A checkpoint whose signature fails to verify is skipped (treated
	// like a corrupt record) rather than aborting the whole replay.
	Signer *checkpointsign.SigningKey
}

func DefaultConfig() Config {
	return Config{MaxSizeFactor: 4, CheckpointSizeBytes: 1 << 20}
}

// Store is the persistent block metadata store.
type Store struct {
	dir           string
	checkpointDir string
	cfg           Config

	log      *logcodec.Log
	startIdx uint64 // global record index of the active log's first record
	count    uint64 // records currently in the active log
	closed   bool
}

// Open replays any checkpoints (lexicographic order) followed by the active
// log, invoking onRecord for every surviving record in replay order so the
// caller can rebuild the in-memory DAG index (spec component D).
func Open(dir string, cfg Config, onRecord func(*dagcore.BlockMetadata)) (*Store, error) {
	checkpointDir := filepath.Join(dir, checkpointsDirName)
	if err := os.MkdirAll(checkpointDir, 0o755); err != nil {
		return nil, corestore.Wrap(corestore.KindIOError, "mkdir checkpoints dir", err)
	}

	entries, err := os.ReadDir(checkpointDir)
	if err != nil {
		return nil, corestore.Wrap(corestore.KindIOError, "read checkpoints dir", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names) // spec: checkpoints replayed in lexicographic order

	var maxEnd uint64
	var sawCheckpoint bool
	for _, name := range names {
		start, end, ok := parseCheckpointRange(name)
		if !ok {
			continue
		}
		path := filepath.Join(checkpointDir, name)
		if cfg.Signer != nil {
			if err := checkpointsign.VerifyFile(path, cfg.Signer.PublicKey()); err != nil {
				clog.Warn("METASTORE", "checkpoint signature invalid, skipping", name, ":", err)
				continue
			}
		}
		records, err := logcodec.ReadCheckpoint(path)
		if err != nil {
			return nil, err
		}
		for _, raw := range records {
			m, err := dagcore.Unmarshal(raw)
			if err != nil {
				clog.Warn("METASTORE", "skipping corrupt record in checkpoint", name, ":", err)
				continue
			}
			onRecord(m)
		}
		if !sawCheckpoint || end > maxEnd {
			maxEnd = end
			sawCheckpoint = true
		}
		_ = start
	}

	startIdx := uint64(0)
	if sawCheckpoint {
		startIdx = maxEnd + 1
	}

	logPath := filepath.Join(dir, logFileName)
	log, records, err := logcodec.Open(logPath)
	if err != nil {
		return nil, err
	}
	if log.CorruptTailWasDropped() {
		clog.Warn("METASTORE", corestore.KindCorruptTail, "discarded trailing garbage from active log at open:", logPath)
	}
	var decoded uint64
	var goodLen int64
	for _, raw := range records {
		m, err := dagcore.Unmarshal(raw)
		if err != nil {
			clog.Warn("METASTORE", "corrupt record in active log, stopping replay at this offset:", err)
			break
		}
		onRecord(m)
		decoded++
		goodLen += 4 + int64(len(raw)) // u32 length prefix + payload
	}
	if decoded < uint64(len(records)) {
		_ = log.Close()
		if err := os.Truncate(logPath, goodLen); err != nil {
			return nil, corestore.Wrap(corestore.KindIOError, "truncate active log at corrupt record", err)
		}
		if log, _, err = logcodec.Open(logPath); err != nil {
			return nil, err
		}
	}

	return &Store{
		dir:           dir,
		checkpointDir: checkpointDir,
		cfg:           cfg,
		log:           log,
		startIdx:      startIdx,
		count:         decoded,
	}, nil
}

// Insert appends one block's metadata record and rolls a checkpoint if the
// active log has grown past the configured threshold.
func (s *Store) Insert(m *dagcore.BlockMetadata) error {
	if s.closed {
		return corestore.New(corestore.KindStoreClosed, "metastore")
	}
	if err := s.log.Append(dagcore.Marshal(m)); err != nil {
		return err
	}
	s.count++
	if float64(s.log.Size()) > s.cfg.MaxSizeFactor*float64(s.cfg.CheckpointSizeBytes) {
		return s.rollover()
	}
	return nil
}

// Checkpoint forces a rollover; a no-op if the active log is empty.
func (s *Store) Checkpoint() error {
	if s.closed {
		return corestore.New(corestore.KindStoreClosed, "metastore")
	}
	if s.count == 0 {
		return nil
	}
	return s.rollover()
}

func (s *Store) rollover() error {
	dest := filepath.Join(s.checkpointDir, checkpointName(s.startIdx, s.startIdx+s.count-1))
	newLog, err := s.log.RolloverTo(dest)
	if err != nil {
		return err
	}
	s.log = newLog
	s.startIdx += s.count
	s.count = 0
	if s.cfg.Signer != nil {
		if err := s.cfg.Signer.SignFile(dest); err != nil {
			return err
		}
	}
	clog.Info("METASTORE", "rolled checkpoint", dest)
	return nil
}

// Clear truncates the active log and removes every checkpoint file,
// resetting the store to the state a fresh directory would have.
func (s *Store) Clear() error {
	if s.closed {
		return corestore.New(corestore.KindStoreClosed, "metastore")
	}
	if err := s.log.Truncate(); err != nil {
		return err
	}
	entries, err := os.ReadDir(s.checkpointDir)
	if err != nil {
		return corestore.Wrap(corestore.KindIOError, "read checkpoints dir", err)
	}
	for _, e := range entries {
		if err := os.Remove(filepath.Join(s.checkpointDir, e.Name())); err != nil {
			return corestore.Wrap(corestore.KindIOError, "remove checkpoint", err)
		}
	}
	s.startIdx = 0
	s.count = 0
	return nil
}

// Close releases the active log's file handle.
func (s *Store) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.log.Close()
}

func checkpointName(start, end uint64) string {
	return fmt.Sprintf("%d-%d", start, end)
}

func parseCheckpointRange(name string) (start, end uint64, ok bool) {
	parts := strings.SplitN(name, "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	s, err1 := strconv.ParseUint(parts[0], 10, 64)
	e, err2 := strconv.ParseUint(parts[1], 10, 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return s, e, true
}
