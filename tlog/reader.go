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
	"encoding/binary"
	"io"
	"os"
)

// Reader is an immutable, random-access view over one sealed generation
// file. It is created either by sealing a Writer or by recovery re-opening
// an on-disk file.
type Reader struct {
	gen          Generation
	f            *os.File
	headerLength uint64
	opsCount     uint32
	sizeInBytes  uint64
}

// openReader opens an existing, already-sealed generation file for
// reading, verifying its header against expected.
func openReader(dir, prefix string, gen Generation, expected TlogUUID, opsCount uint32, sizeInBytes uint64) (*Reader, error) {
	path := tlogPath(dir, prefix, gen)
	f, err := os.Open(path)
	if err != nil {
		return nil, newErr(KindIo, err, "open generation %d", gen)
	}
	if _, err := readFileHeader(f, &expected); err != nil {
		f.Close()
		return nil, err
	}
	return &Reader{gen: gen, f: f, headerLength: headerLength, opsCount: opsCount, sizeInBytes: sizeInBytes}, nil
}

func (r *Reader) Generation() Generation  { return r.gen }
func (r *Reader) TotalOperations() uint32 { return r.opsCount }
func (r *Reader) SizeInBytes() uint64     { return r.sizeInBytes }

func (r *Reader) Close() error {
	if err := r.f.Close(); err != nil {
		return newErr(KindIo, err, "close reader for generation %d", r.gen)
	}
	return nil
}

// NewSnapshot returns a lazy, finite, non-restartable iterator over this
// generation's operations.
func (r *Reader) NewSnapshot() *opIterator {
	return &opIterator{ra: r.f, gen: r.gen, pos: r.headerLength, end: r.sizeInBytes}
}

// opIterator walks an io.ReaderAt from pos to end, framing and checksum
// verifying each record. It holds no lock: callers of NewSnapshot/
// newSnapshotTail each get their own independent cursor, so concurrent
// snapshots over the same reader never interfere.
type opIterator struct {
	ra  io.ReaderAt
	gen Generation
	pos uint64
	end uint64
}

// Next returns the next operation and its Location, or ok=false at a clean
// end of generation. A partially-written tail record surfaces as
// KindTruncation; a checksum/framing failure surfaces as KindCorruption.
// Once either error is returned, the iterator must not be called again.
func (it *opIterator) Next() (op Operation, loc Location, ok bool, err error) {
	remaining := it.end - it.pos
	if remaining == 0 {
		return nil, Location{}, false, nil
	}
	if remaining < 4 {
		return nil, Location{}, false, newErr(KindTruncation, nil, "generation %d: %d trailing bytes, too short for a size prefix", it.gen, remaining)
	}

	var prefixBuf [4]byte
	if _, err := it.ra.ReadAt(prefixBuf[:], int64(it.pos)); err != nil {
		if err == io.EOF {
			return nil, Location{}, false, newErr(KindTruncation, err, "generation %d offset %d: file ends inside the size prefix", it.gen, it.pos)
		}
		return nil, Location{}, false, newErr(KindIo, err, "read size prefix at generation %d offset %d", it.gen, it.pos)
	}
	n := binary.BigEndian.Uint32(prefixBuf[:])
	if n < 8 {
		return nil, Location{}, false, newErr(KindCorruption, nil, "generation %d offset %d: invalid record size %d", it.gen, it.pos, n)
	}

	recordTotal := uint64(4) + uint64(n)
	if it.pos+recordTotal > it.end {
		return nil, Location{}, false, newErr(KindTruncation, nil, "generation %d offset %d: record of size %d exceeds remaining %d bytes", it.gen, it.pos, n, remaining)
	}

	body := make([]byte, n)
	if _, err := it.ra.ReadAt(body, int64(it.pos+4)); err != nil {
		if err == io.EOF {
			return nil, Location{}, false, newErr(KindTruncation, err, "generation %d offset %d: file ends inside a record of size %d", it.gen, it.pos, n)
		}
		return nil, Location{}, false, newErr(KindIo, err, "read record body at generation %d offset %d", it.gen, it.pos)
	}

	decoded, err := decodeOperationBody(body)
	if err != nil {
		return nil, Location{}, false, err
	}

	loc = Location{Generation: it.gen, Offset: it.pos, Size: uint32(recordTotal)}
	it.pos += recordTotal
	return decoded, loc, true, nil
}
