// Package wire implements the protobuf wire format (varint tags, LEB128
// varints, length-delimited byte strings) by hand. The consensus core needs
// a canonical, deterministic encoding for two things: the block-metadata log
// record (spec: "stable binary encoding - field order and wire tags are
// fixed as part of the external contract") and the genesis candidate digest
// (spec: "canonical (protobuf-deterministic) serialisation"). Both only need
// a handful of scalar/bytes/repeated-message fields, so rather than depend
// on generated protoreflect types (which requires running protoc, a build
// step this repository does not take) we hand-write the same wire format
// google.golang.org/protobuf's generated code would produce.
package wire

import (
	"encoding/binary"
	"fmt"
)

// WireType mirrors the protobuf wire types actually used here.
type WireType byte

const (
	Varint     WireType = 0
	LengthDelim WireType = 2
)

// Writer appends protobuf-wire-encoded fields to an in-memory buffer in the
// order they are written; callers are responsible for writing fields in
// ascending field-number order to keep the encoding canonical.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer { return &Writer{} }

func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) tag(field int, wt WireType) {
	w.putVarint(uint64(field)<<3 | uint64(wt))
}

func (w *Writer) putVarint(v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	w.buf = append(w.buf, tmp[:n]...)
}

// Uint64 writes a varint-encoded scalar field.
func (w *Writer) Uint64(field int, v uint64) {
	if v == 0 {
		return
	}
	w.tag(field, Varint)
	w.putVarint(v)
}

// BytesField writes a length-delimited bytes field.
func (w *Writer) BytesField(field int, v []byte) {
	if len(v) == 0 {
		return
	}
	w.tag(field, LengthDelim)
	w.putVarint(uint64(len(v)))
	w.buf = append(w.buf, v...)
}

// Message writes a nested, length-delimited message field whose bytes have
// already been encoded by a nested Writer.
func (w *Writer) Message(field int, nested []byte) {
	w.tag(field, LengthDelim)
	w.putVarint(uint64(len(nested)))
	w.buf = append(w.buf, nested...)
}

// Reader decodes fields written by Writer. Fields may arrive in any order
// and a given field number may repeat (repeated fields); callers drive a
// loop calling Next until it returns ok=false.
type Reader struct {
	buf []byte
	pos int
}

func NewReader(b []byte) *Reader { return &Reader{buf: b} }

func (r *Reader) Done() bool { return r.pos >= len(r.buf) }

// Next reads the next field's tag, returning its field number and wire type.
func (r *Reader) Next() (field int, wt WireType, ok bool, err error) {
	if r.pos >= len(r.buf) {
		return 0, 0, false, nil
	}
	tag, n := binary.Uvarint(r.buf[r.pos:])
	if n <= 0 {
		return 0, 0, false, fmt.Errorf("wire: truncated tag at offset %d", r.pos)
	}
	r.pos += n
	return int(tag >> 3), WireType(tag & 0x7), true, nil
}

// Varint reads a varint-encoded scalar value (call after Next reports Varint).
func (r *Reader) Varint() (uint64, error) {
	v, n := binary.Uvarint(r.buf[r.pos:])
	if n <= 0 {
		return 0, fmt.Errorf("wire: truncated varint at offset %d", r.pos)
	}
	r.pos += n
	return v, nil
}

// Bytes reads a length-delimited byte string (call after Next reports LengthDelim).
func (r *Reader) Bytes() ([]byte, error) {
	l, n := binary.Uvarint(r.buf[r.pos:])
	if n <= 0 {
		return nil, fmt.Errorf("wire: truncated length at offset %d", r.pos)
	}
	r.pos += n
	if r.pos+int(l) > len(r.buf) {
		return nil, fmt.Errorf("wire: length-delimited field overruns buffer")
	}
	v := r.buf[r.pos : r.pos+int(l)]
	r.pos += int(l)
	return v, nil
}

// Skip advances past a field's value without interpreting it, used when a
// decoder encounters a field number it does not recognise.
func (r *Reader) Skip(wt WireType) error {
	switch wt {
	case Varint:
		_, err := r.Varint()
		return err
	case LengthDelim:
		_, err := r.Bytes()
		return err
	default:
		return fmt.Errorf("wire: unsupported wire type %d", wt)
	}
}
