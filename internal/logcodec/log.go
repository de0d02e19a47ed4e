// Package logcodec implements the append-only, length-prefixed, CRC-32
// checked log file shared by the block-metadata store and the
// latest-messages store (spec component A).
//
// Record framing: `u32_length_le || payload_bytes`. A sidecar file
// `<name>.crc` holds one little-endian u32, the CRC-32/IEEE of every payload
// written so far, concatenated in order. Recovery on open reads records
// until a length prefix or payload does not fully fit in the remaining
// bytes, then truncates the file to the last known-good offset and
// recomputes the sidecar from the surviving records; a file with no
// recoverable records starts empty rather than failing to open.
package logcodec

import (
	"encoding/binary"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"

	"github.com/mezonai/dagnode/internal/corestore"
)

const lengthPrefixSize = 4

// Log is one append-only record file plus its CRC sidecar.
type Log struct {
	path    string
	crcPath string
	file    *os.File
	crc     uint32
	size    int64 // current file size, tracked to avoid a stat() per append

	corruptTail bool // true if Open had to discard trailing garbage
}

// Open replays path (truncating any corrupt tail per the package doc) and
// returns the surviving records in append order together with a Log handle
// ready to accept further Append calls. Opening a path that does not exist
// yet creates an empty log.
func Open(path string) (*Log, [][]byte, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, corestore.Wrap(corestore.KindIOError, "mkdir log dir", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, nil, corestore.Wrap(corestore.KindIOError, "read log", err)
	}

	records, validLen := splitRecords(raw)
	corruptTail := validLen < int64(len(raw))

	crc := crc32.ChecksumIEEE(nil)
	for _, r := range records {
		crc = crc32.Update(crc, crc32.IEEETable, r)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, nil, corestore.Wrap(corestore.KindIOError, "open log", err)
	}
	if validLen != int64(len(raw)) {
		if err := f.Truncate(validLen); err != nil {
			f.Close()
			return nil, nil, corestore.Wrap(corestore.KindIOError, "truncate corrupt tail", err)
		}
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, nil, corestore.Wrap(corestore.KindIOError, "seek log end", err)
	}

	l := &Log{
		path:        path,
		crcPath:     path + ".crc",
		file:        f,
		crc:         crc,
		size:        validLen,
		corruptTail: corruptTail,
	}
	if err := l.writeCRCSidecar(); err != nil {
		f.Close()
		return nil, nil, err
	}
	return l, records, nil
}

// CorruptTailWasDropped reports whether the Open call that returned l had to
// discard trailing bytes that did not form a complete record. Callers log
// corestore.KindCorruptTail when this is true.
func (l *Log) CorruptTailWasDropped() bool { return l.corruptTail }

// splitRecords scans raw for complete length-prefixed records, stopping at
// the first incomplete one (a truncated length prefix or a payload that
// does not fully fit). validLen is the offset up to which raw holds only
// complete records; Open truncates the file to validLen and drops the rest.
func splitRecords(raw []byte) (records [][]byte, validLen int64) {
	var off int64
	for off < int64(len(raw)) {
		if off+lengthPrefixSize > int64(len(raw)) {
			break
		}
		n := binary.LittleEndian.Uint32(raw[off : off+lengthPrefixSize])
		recEnd := off + lengthPrefixSize + int64(n)
		if recEnd > int64(len(raw)) {
			break
		}
		records = append(records, raw[off+lengthPrefixSize:recEnd])
		off = recEnd
	}
	return records, off
}

// Append writes one framed record and durably updates the CRC sidecar.
func (l *Log) Append(payload []byte) error {
	buf := make([]byte, lengthPrefixSize+len(payload))
	binary.LittleEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[lengthPrefixSize:], payload)

	if _, err := l.file.Write(buf); err != nil {
		return corestore.Wrap(corestore.KindIOError, "append record", err)
	}
	if err := l.file.Sync(); err != nil {
		return corestore.Wrap(corestore.KindIOError, "sync log", err)
	}

	newCRC := crc32.Update(l.crc, crc32.IEEETable, payload)
	prevCRC, prevSize := l.crc, l.size
	l.crc = newCRC
	l.size += int64(len(buf))
	if err := l.writeCRCSidecar(); err != nil {
		// Roll back in-memory bookkeeping and cut the just-written record
		// off the file, since the caller's in-memory state is rolled back
		// too (facade-level contract); the next successful append then
		// recomputes the sidecar correctly from the then-current crc/size.
		l.crc, l.size = prevCRC, prevSize
		if terr := l.file.Truncate(prevSize); terr == nil {
			_, _ = l.file.Seek(prevSize, io.SeekStart)
		}
		return err
	}
	return nil
}

// Truncate empties the log file and resets the CRC to zero, used by clear().
func (l *Log) Truncate() error {
	if err := l.file.Truncate(0); err != nil {
		return corestore.Wrap(corestore.KindIOError, "truncate log", err)
	}
	if _, err := l.file.Seek(0, io.SeekStart); err != nil {
		return corestore.Wrap(corestore.KindIOError, "seek log start", err)
	}
	l.crc = 0
	l.size = 0
	return l.writeCRCSidecar()
}

// Size returns the current file size in bytes.
func (l *Log) Size() int64 { return l.size }

// Path returns the log file's path.
func (l *Log) Path() string { return l.path }

// Close releases the underlying file handle.
func (l *Log) Close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	if err != nil {
		return corestore.Wrap(corestore.KindIOError, "close log", err)
	}
	return nil
}

// RolloverTo closes this log's handle, moves its file to destPath (creating
// destPath's directory if it does not exist yet), and
// reopens path as a fresh, empty log. Used by checkpoint rollover (§4.2).
func (l *Log) RolloverTo(destPath string) (*Log, error) {
	if err := l.Close(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return nil, corestore.Wrap(corestore.KindIOError, "mkdir checkpoint dir", err)
	}
	if err := os.Rename(l.path, destPath); err != nil {
		return nil, corestore.Wrap(corestore.KindIOError, "rename log to checkpoint", err)
	}
	// Drop any stale sidecar for the old path; checkpoints carry no sidecar
	// of their own (they are immutable once rolled).
	_ = os.Remove(l.crcPath)

	fresh, _, err := Open(l.path)
	if err != nil {
		return nil, err
	}
	return fresh, nil
}

// writeCRCSidecar rewrites the sidecar atomically via write-then-rename.
func (l *Log) writeCRCSidecar() error {
	tmp := l.crcPath + ".tmp"
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], l.crc)
	if err := os.WriteFile(tmp, buf[:], 0o644); err != nil {
		return corestore.Wrap(corestore.KindIOError, "write crc sidecar", err)
	}
	if err := os.Rename(tmp, l.crcPath); err != nil {
		return corestore.Wrap(corestore.KindIOError, "rename crc sidecar", err)
	}
	return nil
}

// ReadCheckpoint reads an immutable, rolled checkpoint segment and returns
// its surviving records, tolerating a corrupt/truncated tail exactly like
// an active log (but never rewriting the checkpoint file itself).
func ReadCheckpoint(path string) ([][]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, corestore.Wrap(corestore.KindIOError, "read checkpoint", err)
	}
	records, _ := splitRecords(raw)
	return records, nil
}
