/*
Copyright (C) 2026  tlog contributors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
package tlog

import (
	"bytes"
	"encoding/binary"
	"os"
)

// opTag is the on-wire discriminant for an Operation. Operations are
// modeled as a tagged sum (distinct structs behind the Operation
// interface), not an inheritance hierarchy: encode/decode dispatch on tag,
// never on Go's dynamic type outside of a single type switch per site.
type opTag byte

const (
	tagLegacyCreate opTag = 1 // decodes as Index; never written by this package
	tagIndex        opTag = 2
	tagDelete       opTag = 3
	tagNoOp         opTag = 4
)

// currentFormatVersion is written as the first field of every payload.
// Only version 1 exists today; a future version that adds fields should
// bump this and have decodeXPayload special-case older versions by
// defaulting the new fields, never by breaking old readers.
const currentFormatVersion = 1

// Operation is the tagged sum of the three payload kinds the transaction
// log frames. It intentionally exposes only what every variant shares;
// callers type-switch on the concrete type for variant-specific fields.
type Operation interface {
	tag() opTag
	SeqNo() int64
	PrimaryTerm() int64
}

// IndexOp represents a document index (or legacy create) operation.
type IndexOp struct {
	Seq                      int64
	Term                     int64
	Version                  int64
	ID                       string
	Type                     string
	Source                   []byte
	Routing                  string // empty means absent
	Parent                   string // empty means absent
	AutoGeneratedIDTimestamp int64
}

func (o IndexOp) tag() opTag        { return tagIndex }
func (o IndexOp) SeqNo() int64      { return o.Seq }
func (o IndexOp) PrimaryTerm() int64 { return o.Term }

// DeleteOp represents a document delete operation.
type DeleteOp struct {
	Seq      int64
	Term     int64
	Version  int64
	UIDField string
	UIDValue string
}

func (o DeleteOp) tag() opTag        { return tagDelete }
func (o DeleteOp) SeqNo() int64      { return o.Seq }
func (o DeleteOp) PrimaryTerm() int64 { return o.Term }

// NoOpOp represents a sequence-number placeholder that carries no document
// mutation, only a reason (e.g. a failed operation that still had to
// consume a sequence number).
type NoOpOp struct {
	Seq    int64
	Term   int64
	Reason string
}

func (o NoOpOp) tag() opTag        { return tagNoOp }
func (o NoOpOp) SeqNo() int64      { return o.Seq }
func (o NoOpOp) PrimaryTerm() int64 { return o.Term }

// --- payload codec helpers -------------------------------------------------

type payloadWriter struct{ buf bytes.Buffer }

func (w *payloadWriter) varint(v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	w.buf.Write(tmp[:n])
}

func (w *payloadWriter) i64(v int64)   { var b [8]byte; binary.BigEndian.PutUint64(b[:], uint64(v)); w.buf.Write(b[:]) }
func (w *payloadWriter) str(s string)  { w.bytesField([]byte(s)) }
func (w *payloadWriter) bytesField(b []byte) {
	w.varint(uint64(len(b)))
	w.buf.Write(b)
}

type payloadReader struct {
	buf []byte
	pos int
}

func (r *payloadReader) varint() (uint64, error) {
	v, n := binary.Uvarint(r.buf[r.pos:])
	if n <= 0 {
		return 0, newErr(KindCorruption, nil, "malformed varint in operation payload")
	}
	r.pos += n
	return v, nil
}

func (r *payloadReader) i64() (int64, error) {
	if r.pos+8 > len(r.buf) {
		return 0, newErr(KindCorruption, nil, "operation payload too short for int64 field")
	}
	v := int64(binary.BigEndian.Uint64(r.buf[r.pos : r.pos+8]))
	r.pos += 8
	return v, nil
}

func (r *payloadReader) bytesField() ([]byte, error) {
	n, err := r.varint()
	if err != nil {
		return nil, err
	}
	if r.pos+int(n) > len(r.buf) {
		return nil, newErr(KindCorruption, nil, "operation payload too short for length-prefixed field")
	}
	out := r.buf[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return out, nil
}

func (r *payloadReader) str() (string, error) {
	b, err := r.bytesField()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// --- encode -----------------------------------------------------------------

func encodePayload(op Operation) []byte {
	var w payloadWriter
	w.varint(currentFormatVersion)
	switch o := op.(type) {
	case IndexOp:
		w.i64(o.Seq)
		w.i64(o.Term)
		w.i64(o.Version)
		w.str(o.ID)
		w.str(o.Type)
		w.bytesField(o.Source)
		w.str(o.Routing)
		w.str(o.Parent)
		w.i64(o.AutoGeneratedIDTimestamp)
	case DeleteOp:
		w.i64(o.Seq)
		w.i64(o.Term)
		w.i64(o.Version)
		w.str(o.UIDField)
		w.str(o.UIDValue)
	case NoOpOp:
		w.i64(o.Seq)
		w.i64(o.Term)
		w.str(o.Reason)
	}
	return w.buf.Bytes()
}

func decodeIndexPayload(payload []byte, legacy bool) (IndexOp, error) {
	r := payloadReader{buf: payload}
	version, err := r.varint()
	if err != nil {
		return IndexOp{}, err
	}
	var o IndexOp
	if o.Seq, err = r.i64(); err != nil {
		return IndexOp{}, err
	}
	if o.Term, err = r.i64(); err != nil {
		return IndexOp{}, err
	}
	if o.Version, err = r.i64(); err != nil {
		return IndexOp{}, err
	}
	if o.ID, err = r.str(); err != nil {
		return IndexOp{}, err
	}
	if o.Type, err = r.str(); err != nil {
		return IndexOp{}, err
	}
	if o.Source, err = r.bytesField(); err != nil {
		return IndexOp{}, err
	}
	if o.Routing, err = r.str(); err != nil {
		return IndexOp{}, err
	}
	if o.Parent, err = r.str(); err != nil {
		return IndexOp{}, err
	}
	// AutoGeneratedIDTimestamp was part of format version 1 from the start;
	// a hypothetical older version would default it to 0 here instead of
	// reading past the end of a shorter payload.
	if version >= 1 && r.pos < len(r.buf) {
		if o.AutoGeneratedIDTimestamp, err = r.i64(); err != nil {
			return IndexOp{}, err
		}
	}
	_ = legacy
	return o, nil
}

func decodeDeletePayload(payload []byte) (DeleteOp, error) {
	r := payloadReader{buf: payload}
	var o DeleteOp
	var err error
	if _, err = r.varint(); err != nil {
		return DeleteOp{}, err
	}
	if o.Seq, err = r.i64(); err != nil {
		return DeleteOp{}, err
	}
	if o.Term, err = r.i64(); err != nil {
		return DeleteOp{}, err
	}
	if o.Version, err = r.i64(); err != nil {
		return DeleteOp{}, err
	}
	if o.UIDField, err = r.str(); err != nil {
		return DeleteOp{}, err
	}
	if o.UIDValue, err = r.str(); err != nil {
		return DeleteOp{}, err
	}
	return o, nil
}

func decodeNoOpPayload(payload []byte) (NoOpOp, error) {
	r := payloadReader{buf: payload}
	var o NoOpOp
	var err error
	if _, err = r.varint(); err != nil {
		return NoOpOp{}, err
	}
	if o.Seq, err = r.i64(); err != nil {
		return NoOpOp{}, err
	}
	if o.Term, err = r.i64(); err != nil {
		return NoOpOp{}, err
	}
	if o.Reason, err = r.str(); err != nil {
		return NoOpOp{}, err
	}
	return o, nil
}

// encodeOperation frames op as [size_prefix u32][tag][payload][crc32 u32].
// size_prefix counts tag+payload+crc (N), excluding itself.
func encodeOperation(op Operation) []byte {
	payload := encodePayload(op)
	body := make([]byte, 1+len(payload)+4)
	body[0] = byte(op.tag())
	copy(body[1:], payload)
	crc := crc32Checksum(body[:1+len(payload)])
	binary.BigEndian.PutUint32(body[1+len(payload):], crc)

	out := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(len(body)))
	copy(out[4:], body)
	return out
}

// decodeOperationBody decodes body = tag || payload || crc (i.e. the bytes
// following the size prefix) into an Operation, verifying the checksum
// first. Returns a *Error with KindCorruption on any failure.
func decodeOperationBody(body []byte) (Operation, error) {
	if len(body) < 8 {
		return nil, newErr(KindCorruption, nil, "operation record body too short (%d bytes)", len(body))
	}
	n := len(body)
	wantCRC := binary.BigEndian.Uint32(body[n-4:])
	gotCRC := crc32Checksum(body[:n-4])
	if wantCRC != gotCRC {
		return nil, newErr(KindCorruption, nil, "operation crc mismatch: got %x want %x", gotCRC, wantCRC)
	}
	tag := opTag(body[0])
	payload := body[1 : n-4]
	switch tag {
	case tagLegacyCreate, tagIndex:
		return decodeIndexPayload(payload, tag == tagLegacyCreate)
	case tagDelete:
		return decodeDeletePayload(payload)
	case tagNoOp:
		return decodeNoOpPayload(payload)
	default:
		return nil, newErr(KindCorruption, nil, "unknown operation tag %d", tag)
	}
}

// --- file header --------------------------------------------------------

// headerCodecVersion identifies the layout of the fixed file header:
// version(4) || uuid(16) || crc32(4).
const headerCodecVersion = 1
const headerLength = 4 + 16 + 4

func writeFileHeader(f *os.File, id TlogUUID) error {
	buf := make([]byte, headerLength)
	binary.BigEndian.PutUint32(buf[0:4], headerCodecVersion)
	copy(buf[4:20], id[:])
	crc := crc32Checksum(buf[0:20])
	binary.BigEndian.PutUint32(buf[20:24], crc)
	if _, err := f.WriteAt(buf, 0); err != nil {
		return newErr(KindIo, err, "write tlog file header")
	}
	return nil
}

// readFileHeader reads and verifies the header of a sealed/being-recovered
// tlog file, checking it against expected if expected is non-nil.
func readFileHeader(f *os.File, expected *TlogUUID) (TlogUUID, error) {
	buf := make([]byte, headerLength)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return TlogUUID{}, newErr(KindIo, err, "read tlog file header")
	}
	wantCRC := binary.BigEndian.Uint32(buf[20:24])
	gotCRC := crc32Checksum(buf[0:20])
	if wantCRC != gotCRC {
		return TlogUUID{}, newErr(KindCorruption, nil, "tlog file header crc mismatch")
	}
	version := binary.BigEndian.Uint32(buf[0:4])
	if version != headerCodecVersion {
		return TlogUUID{}, newErr(KindCorruption, nil, "unsupported tlog header version %d", version)
	}
	var id TlogUUID
	copy(id[:], buf[4:20])
	if expected != nil && id != *expected {
		return TlogUUID{}, newErr(KindCorruption, nil, "tlog uuid mismatch: file has %s, expected %s", id, *expected)
	}
	return id, nil
}
