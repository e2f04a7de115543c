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
	"os"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Writer owns the single currently-active log file of a generation.
// Appends are framed and written as one atomic unit per call; sync forces
// the data and a fresh live checkpoint to disk. A Writer is sealed into a
// Reader exactly once, at rotation.
type Writer struct {
	dir    string
	prefix string
	gen    Generation
	uuid   TlogUUID

	gcpSupplier func() int64

	mu               sync.Mutex
	f                *os.File
	writeOffset      uint64
	opsCount         uint32
	lastSyncedOffset uint64
	tragic           error
	sealed           bool

	syncOnce singleflight.Group
}

// newWriter creates generation gen's file and writes its header. Callers
// that are bringing this generation live must follow up by writing a live
// checkpoint for it: rotation and recovery's new writer call
// writeInitialCheckpoint, while a fresh open calls writeCheckpointNow with
// the caller's initial global checkpoint.
func newWriter(dir, prefix string, gen Generation, id TlogUUID, gcpSupplier func() int64) (*Writer, error) {
	if gcpSupplier == nil {
		// Without a supplier, each live checkpoint write carries over the
		// global checkpoint already on disk (unassigned if there is none).
		livePath := liveCheckpointPath(dir, prefix)
		gcpSupplier = func() int64 {
			if cp, err := readCheckpoint(livePath); err == nil {
				return cp.GlobalCheckpoint
			}
			return UnassignedGlobalCheckpoint
		}
	}
	path := tlogPath(dir, prefix, gen)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0640)
	if err != nil {
		return nil, newErr(KindIo, err, "create tlog file %s", path)
	}
	if err := writeFileHeader(f, id); err != nil {
		f.Close()
		return nil, err
	}
	w := &Writer{
		dir:         dir,
		prefix:      prefix,
		gen:         gen,
		uuid:        id,
		gcpSupplier: gcpSupplier,
		f:           f,
		writeOffset: headerLength,
	}
	return w, nil
}

func (w *Writer) Generation() Generation { return w.gen }

// Append encodes and appends op, returning the Location it was written at.
// Appends from a single goroutine are observed in the order issued; the
// write itself is a single call so it cannot interleave with another
// Append's bytes.
func (w *Writer) Append(op Operation) (Location, error) {
	encoded := encodeOperation(op)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.tragic != nil {
		return Location{}, newErr(KindAlreadyClosed, w.tragic, "writer for generation %d is tragically closed", w.gen)
	}
	if w.sealed {
		return Location{}, newErr(KindAlreadyClosed, nil, "writer for generation %d already sealed", w.gen)
	}

	offsetBefore := w.writeOffset
	if _, err := w.f.Write(encoded); err != nil {
		w.tragic = newErr(KindIo, err, "append to generation %d", w.gen)
		return Location{}, w.tragic
	}
	w.writeOffset += uint64(len(encoded))
	w.opsCount++

	return Location{Generation: w.gen, Offset: offsetBefore, Size: uint32(len(encoded))}, nil
}

// currentOffset returns the writer's logical write offset (including bytes
// already visible to readers via the shared file handle, whether or not
// they have been fsynced).
func (w *Writer) currentOffset() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writeOffset
}

func (w *Writer) OpsCount() uint32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.opsCount
}

func (w *Writer) SizeInBytes() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writeOffset
}

func (w *Writer) lastSynced() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastSyncedOffset
}

// SyncUpTo flushes and fsyncs the file and rewrites the live checkpoint if
// lastSyncedOffset < minOffset. It returns true iff an fsync actually
// occurred. Concurrent callers whose ranges overlap coalesce onto a single
// in-flight fsync via singleflight; a caller whose target is already
// covered by a just-finished round returns without doing further I/O.
func (w *Writer) SyncUpTo(minOffset uint64) (bool, error) {
	for {
		if w.lastSynced() >= minOffset {
			return false, nil
		}
		v, err, _ := w.syncOnce.Do("sync", func() (interface{}, error) {
			return w.doSyncOnce()
		})
		if err != nil {
			return false, err
		}
		if w.lastSynced() >= minOffset {
			return v.(bool), nil
		}
		// Our target wasn't covered by the round we just (maybe) waited
		// on -- another writer raced ahead of us. Try again.
	}
}

// Sync is equivalent to SyncUpTo(current write offset).
func (w *Writer) Sync() (bool, error) {
	return w.SyncUpTo(w.currentOffset())
}

func (w *Writer) doSyncOnce() (bool, error) {
	w.mu.Lock()
	if w.tragic != nil {
		err := newErr(KindAlreadyClosed, w.tragic, "writer for generation %d is tragically closed", w.gen)
		w.mu.Unlock()
		return false, err
	}
	offset := w.writeOffset
	opsCount := w.opsCount
	w.mu.Unlock()

	if err := w.f.Sync(); err != nil {
		w.mu.Lock()
		w.tragic = newErr(KindIo, err, "fsync generation %d", w.gen)
		w.mu.Unlock()
		return false, w.tragic
	}

	var gcp int64 = UnassignedGlobalCheckpoint
	if w.gcpSupplier != nil {
		gcp = w.gcpSupplier()
	}
	rec := Checkpoint{OpsCount: opsCount, Offset: offset, Generation: w.gen, GlobalCheckpoint: gcp}
	if err := writeCheckpoint(liveCheckpointPath(w.dir, w.prefix), rec, checkpointOverwrite); err != nil {
		w.mu.Lock()
		w.tragic = err
		w.mu.Unlock()
		return false, err
	}

	w.mu.Lock()
	w.lastSyncedOffset = offset
	w.mu.Unlock()
	return true, nil
}

// writeInitialCheckpoint writes and fsyncs a live checkpoint describing this
// writer's current, otherwise-empty state. It is the "first act" a newly
// created writer performs before any append is allowed to reach it, both
// immediately after rotation creates the next generation and when recovery
// opens its new writer. A fresh open uses writeCheckpointNow instead.
func (w *Writer) writeInitialCheckpoint() error {
	gcp := UnassignedGlobalCheckpoint
	if w.gcpSupplier != nil {
		gcp = w.gcpSupplier()
	}
	return w.writeCheckpointNow(gcp, checkpointOverwrite)
}

// writeCheckpointNow writes a checkpoint record reflecting this writer's
// current state with an explicit global checkpoint value, used when a
// caller-supplied value (e.g. a fresh open's initial gcp) must take
// precedence over the gcp supplier.
func (w *Writer) writeCheckpointNow(gcp int64, mode checkpointCreateMode) error {
	w.mu.Lock()
	offset := w.writeOffset
	ops := w.opsCount
	gen := w.gen
	w.mu.Unlock()

	rec := Checkpoint{OpsCount: ops, Offset: offset, Generation: gen, GlobalCheckpoint: gcp}
	if err := writeCheckpoint(liveCheckpointPath(w.dir, w.prefix), rec, mode); err != nil {
		return err
	}
	w.mu.Lock()
	w.lastSyncedOffset = offset
	w.mu.Unlock()
	return nil
}

// sealIntoReader flushes, fsyncs, closes the write handle, reopens it
// read-only, and hands ownership of the file to a new Reader for the same
// generation. The Writer cannot be used afterwards.
func (w *Writer) sealIntoReader() (*Reader, error) {
	if _, err := w.Sync(); err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sealed {
		return nil, newErr(KindAlreadyClosed, nil, "writer for generation %d already sealed", w.gen)
	}
	size := w.writeOffset
	ops := w.opsCount
	if err := w.f.Close(); err != nil {
		return nil, newErr(KindIo, err, "close sealed writer %d", w.gen)
	}

	path := tlogPath(w.dir, w.prefix, w.gen)
	rf, err := os.Open(path)
	if err != nil {
		return nil, newErr(KindIo, err, "reopen sealed generation %d", w.gen)
	}
	w.sealed = true
	return &Reader{
		gen:          w.gen,
		f:            rf,
		headerLength: headerLength,
		opsCount:     ops,
		sizeInBytes:  size,
	}, nil
}

// closeTragically marks the writer as failed without attempting any
// further I/O, used when the controller tears itself down after observing
// a tragic exception elsewhere.
func (w *Writer) closeTragically(cause error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.tragic == nil {
		w.tragic = cause
	}
}

// closeForShutdown flushes, fsyncs and closes the file handle on an
// orderly Close(), without sealing into a Reader.
func (w *Writer) closeForShutdown() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sealed {
		return nil
	}
	if err := w.f.Sync(); err != nil {
		return newErr(KindIo, err, "fsync on close, generation %d", w.gen)
	}
	if err := w.f.Close(); err != nil {
		return newErr(KindIo, err, "close writer, generation %d", w.gen)
	}
	w.sealed = true
	return nil
}

// newSnapshotTail returns a finite iterator over this writer's readable
// bytes as of the moment of the call, plus the operation count as of that
// same moment. Appends issued after this point are not observed by the
// returned iterator.
func (w *Writer) newSnapshotTail() (*opIterator, uint32) {
	w.mu.Lock()
	end := w.writeOffset
	count := w.opsCount
	f := w.f
	gen := w.gen
	w.mu.Unlock()
	return &opIterator{ra: f, gen: gen, pos: headerLength, end: end}, count
}
