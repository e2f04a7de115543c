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
	"fmt"
	"os"
	"sync"
	"sync/atomic"
)

// Config holds the open-time parameters of a Log: directory, naming
// prefix, and the supplier the controller consults for the current
// global checkpoint value whenever it writes a live checkpoint.
type Config struct {
	Dir         string
	Prefix      string
	GCPSupplier func() int64
}

func (c Config) prefixOrDefault() string {
	if c.Prefix == "" {
		return "translog"
	}
	return c.Prefix
}

// Log is the per-shard transaction log controller: it owns the current
// writer and the list of sealed readers, orchestrates rotation, retention
// and recovery, and enforces the readers-writer locking discipline that
// lets append and sync proceed concurrently with each other while
// serializing against rotation, retention and close.
type Log struct {
	dir    string
	prefix string
	uuid   TlogUUID

	gcpSupplier func() int64

	mu      sync.RWMutex
	writer  *Writer
	readers *readerList
	views   *viewSet

	lastCommittedGeneration     Generation
	currentCommittingGeneration Generation
	closePending                bool

	closed atomic.Bool
}

// OpenFresh discards any existing contents of cfg.Dir and starts a new
// tlog instance at generation 1, with last_committed_generation unset
// until the first commit.
func OpenFresh(cfg Config, initialGCP int64) (*Log, error) {
	dir := cfg.Dir
	prefix := cfg.prefixOrDefault()

	if err := os.RemoveAll(dir); err != nil {
		return nil, newErr(KindIo, err, "clear tlog directory %s", dir)
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, newErr(KindIo, err, "create tlog directory %s", dir)
	}

	id := NewTlogUUID()
	w, err := newWriter(dir, prefix, 1, id, cfg.GCPSupplier)
	if err != nil {
		return nil, err
	}
	if err := w.writeCheckpointNow(initialGCP, checkpointCreateNew); err != nil {
		w.f.Close()
		return nil, err
	}

	return &Log{
		dir:                         dir,
		prefix:                      prefix,
		uuid:                        id,
		gcpSupplier:                 cfg.GCPSupplier,
		writer:                      w,
		readers:                     newReaderList(),
		views:                       newViewSet(),
		lastCommittedGeneration:     NotSet,
		currentCommittingGeneration: NotSet,
	}, nil
}

// OpenRecover reconstructs a Log from the on-disk files left by a prior
// instance, per the recovery procedure. expectedGeneration is the
// generation the caller last believed was committed.
func OpenRecover(cfg Config, expectedUUID TlogUUID, expectedGeneration Generation) (*Log, error) {
	return recover_(cfg.Dir, cfg.prefixOrDefault(), expectedUUID, expectedGeneration, cfg.GCPSupplier)
}

// ReadGlobalCheckpoint opens only the live checkpoint in dir/prefix and
// returns its global_checkpoint field without mutating anything.
func ReadGlobalCheckpoint(dir, prefix string) (int64, error) {
	if prefix == "" {
		prefix = "translog"
	}
	cp, err := readCheckpoint(liveCheckpointPath(dir, prefix))
	if err != nil {
		return 0, err
	}
	return cp.GlobalCheckpoint, nil
}

func (l *Log) checkOpen() error {
	if l.closed.Load() {
		// Chain the writer's tragic exception, if any, as the cause.
		var cause error
		if l.writer != nil {
			l.writer.mu.Lock()
			cause = l.writer.tragic
			l.writer.mu.Unlock()
		}
		return newErr(KindAlreadyClosed, cause, "tlog is closed")
	}
	return nil
}

// Append encodes and appends op through the current writer. Per the append
// protocol, the read lock is held across the delegation to writer.append,
// not just the pointer read: a PrepareCommit/Commit in progress holds the
// write lock while it seals the writer into a reader, and releasing the
// read lock early would let an Append land bytes (and return a successful
// Location to its caller) after the seal already snapshotted the writer's
// size for the sidecar checkpoint, silently losing that op on recovery. A
// tragic writer failure closes the controller before the error is returned.
func (l *Log) Append(op Operation) (Location, error) {
	l.mu.RLock()
	if err := l.checkOpen(); err != nil {
		l.mu.RUnlock()
		return Location{}, err
	}
	loc, err := l.writer.Append(op)
	l.mu.RUnlock()

	if err != nil {
		l.onWriterFailure(err)
		return Location{}, err
	}
	return loc, nil
}

// onWriterFailure marks the controller closed and best-effort tears down
// its handles when the writer has recorded a tragic I/O exception; it
// does not attempt to swallow or replace the original error.
func (l *Log) onWriterFailure(err error) {
	e, ok := err.(*Error)
	if !ok || e.Kind != KindIo {
		return
	}
	if !l.closed.CompareAndSwap(false, true) {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writer.closeTragically(err)
	for _, r := range l.readers.all() {
		r.Close()
	}
	l.writer.f.Close()
}

// Sync flushes the writer up to its current write offset. Like Append, the
// read lock is held for the full delegation to writer.sync, so it cannot
// observe a writer mid-seal (file handle closed by sealIntoReader) and
// misreport a rotation as a tragic I/O failure.
func (l *Log) Sync() (bool, error) {
	l.mu.RLock()
	if err := l.checkOpen(); err != nil {
		l.mu.RUnlock()
		return false, err
	}
	ok, err := l.writer.Sync()
	l.mu.RUnlock()

	if err != nil {
		l.onWriterFailure(err)
	}
	return ok, err
}

// SyncUpTo flushes up to loc. A location whose generation is strictly
// less than the current writer's generation is a no-op: it was already
// sealed and fsynced during rotation. The read lock is held across the
// generation check and the delegation to writer.sync_up_to for the same
// reason as Append and Sync.
func (l *Log) SyncUpTo(loc Location) (bool, error) {
	l.mu.RLock()
	if err := l.checkOpen(); err != nil {
		l.mu.RUnlock()
		return false, err
	}
	if loc.Generation < l.writer.Generation() {
		l.mu.RUnlock()
		return false, nil
	}
	ok, err := l.writer.SyncUpTo(loc.Offset + uint64(loc.Size))
	l.mu.RUnlock()

	if err != nil {
		l.onWriterFailure(err)
	}
	return ok, err
}

// EnsureSynced collapses to SyncUpTo(max(locs)).
func (l *Log) EnsureSynced(locs ...Location) (bool, error) {
	if len(locs) == 0 {
		return false, nil
	}
	max := locs[0]
	for _, loc := range locs[1:] {
		max = maxLocation(max, loc)
	}
	return l.SyncUpTo(max)
}

// LastSyncedGlobalCheckpoint returns the global_checkpoint field of the
// live checkpoint as of the last sync.
func (l *Log) LastSyncedGlobalCheckpoint() (int64, error) {
	return ReadGlobalCheckpoint(l.dir, l.prefix)
}

// NewSnapshot returns a point-in-time iterator over every retained
// generation plus the writer's current tail.
func (l *Log) NewSnapshot() (*Snapshot, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if err := l.checkOpen(); err != nil {
		return nil, err
	}
	tail, tailCount := l.writer.newSnapshotTail()
	return newSnapshot(l.readers.all(), tail, tailCount), nil
}

// snapshotFromGeneration is the View-scoped counterpart of NewSnapshot,
// restricted to generations >= minGen.
func (l *Log) snapshotFromGeneration(minGen Generation) (*Snapshot, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if err := l.checkOpen(); err != nil {
		return nil, err
	}
	tail, tailCount := l.writer.newSnapshotTail()
	return newSnapshot(l.readers.fromGeneration(minGen), tail, tailCount), nil
}

// NewView registers a retention handle pinning the current
// last_committed_generation.
func (l *Log) NewView() *View {
	l.mu.RLock()
	minGen := l.lastCommittedGeneration
	l.mu.RUnlock()
	id := l.views.register(minGen)
	return newView(l, id, minGen)
}

// releaseView unregisters a closed view's pin, finalizes a pending close
// if this was the last outstanding view, and otherwise runs a trim pass
// now that the retention floor may have moved.
func (l *Log) releaseView(id uint64) {
	l.views.unregister(id)

	l.mu.Lock()
	if l.closed.Load() {
		if l.closePending && l.views.len() == 0 {
			l.teardownLocked()
			l.closePending = false
		}
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()

	l.trimUnreferencedReaders()
}

// PrepareCommit seals the current writer into a reader, seals its sidecar
// checkpoint, and opens a new writer for the next generation, without yet
// advancing last_committed_generation.
func (l *Log) PrepareCommit() (Generation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.checkOpen(); err != nil {
		return 0, err
	}
	if l.currentCommittingGeneration.hasValue() {
		return 0, newErr(KindIllegalState, nil, "prepare_commit already in progress for generation %d", l.currentCommittingGeneration)
	}
	return l.prepareCommitLocked()
}

// prepareCommitLocked assumes the caller holds the write lock.
func (l *Log) prepareCommitLocked() (Generation, error) {
	sealedGen := l.writer.Generation()
	l.currentCommittingGeneration = sealedGen

	abort := func(err error) (Generation, error) {
		l.currentCommittingGeneration = NotSet
		return 0, err
	}

	reader, err := l.writer.sealIntoReader()
	if err != nil {
		return abort(err)
	}

	livePath := liveCheckpointPath(l.dir, l.prefix)
	cp, err := readCheckpoint(livePath)
	if err != nil {
		reader.Close()
		return abort(err)
	}
	if cp.Generation != sealedGen {
		reader.Close()
		return abort(newErr(KindCorruption, nil, "live checkpoint describes generation %d, expected just-sealed %d", cp.Generation, sealedGen))
	}

	sidecarPath := checkpointSidecarPath(l.dir, l.prefix, sealedGen)
	if err := copyCheckpointFile(livePath, sidecarPath); err != nil {
		reader.Close()
		return abort(err)
	}

	nextGen := sealedGen + 1
	nw, err := newWriter(l.dir, l.prefix, nextGen, l.uuid, l.gcpSupplier)
	if err != nil {
		reader.Close()
		return abort(err)
	}
	if err := nw.writeInitialCheckpoint(); err != nil {
		nw.f.Close()
		os.Remove(tlogPath(l.dir, l.prefix, nextGen))
		reader.Close()
		return abort(err)
	}

	l.readers.add(reader)
	l.writer = nw
	return sealedGen, nil
}

// Commit finalizes the generation sealed by PrepareCommit (calling it
// implicitly if it has not already run), advances
// last_committed_generation to the new live generation, and trims
// whatever readers are no longer referenced.
func (l *Log) Commit() (Generation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.checkOpen(); err != nil {
		return 0, err
	}
	if !l.currentCommittingGeneration.hasValue() {
		if _, err := l.prepareCommitLocked(); err != nil {
			return 0, err
		}
	}

	committingGen := l.currentCommittingGeneration
	if _, ok := l.readers.get(committingGen); !ok {
		return 0, newErr(KindIllegalState, nil, "reader list missing just-sealed generation %d", committingGen)
	}

	l.lastCommittedGeneration = l.writer.Generation()
	l.currentCommittingGeneration = NotSet
	l.trimUnreferencedReadersLocked()
	return l.lastCommittedGeneration, nil
}

// Rollback distinguishes itself from Close by first confirming that no
// live view pins a generation beyond last_committed_generation -- true by
// construction, since every View captures exactly that value at creation
// and last_committed_generation never decreases -- before closing.
func (l *Log) Rollback() (Generation, error) {
	l.mu.RLock()
	gen := l.lastCommittedGeneration
	if vmin, ok := l.views.minGeneration(); ok && vmin > gen {
		l.mu.RUnlock()
		return 0, newErr(KindIllegalState, nil, "view pins generation %d beyond last committed generation %d", vmin, gen)
	}
	l.mu.RUnlock()
	return gen, l.Close()
}

// trimUnreferencedReaders acquires the write lock and delegates to
// trimUnreferencedReadersLocked.
func (l *Log) trimUnreferencedReaders() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.trimUnreferencedReadersLocked()
}

// trimUnreferencedReadersLocked assumes the caller holds the write lock.
func (l *Log) trimUnreferencedReadersLocked() {
	if !l.lastCommittedGeneration.hasValue() {
		return
	}
	minRetained := l.lastCommittedGeneration
	if vmin, ok := l.views.minGeneration(); ok && vmin < minRetained {
		minRetained = vmin
	}

	for _, r := range l.readers.all() {
		if r.Generation() >= minRetained {
			continue
		}
		gen := r.Generation()
		l.readers.remove(gen)
		if err := r.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "tlog: close reader for generation %d during trim: %v\n", gen, err)
		}
		if err := os.Remove(tlogPath(l.dir, l.prefix, gen)); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "tlog: unlink generation %d during trim: %v\n", gen, err)
		}
		if err := os.Remove(checkpointSidecarPath(l.dir, l.prefix, gen)); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "tlog: unlink sidecar for generation %d during trim: %v\n", gen, err)
		}
	}
}

// Close is idempotent. On first invocation it marks the controller closed
// and fsyncs the current writer; file handles are closed immediately
// unless a view is still outstanding, in which case teardown is deferred
// to the last view's Close.
func (l *Log) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	_, syncErr := l.writer.Sync()
	if l.views.len() == 0 {
		l.teardownLocked()
	} else {
		l.closePending = true
	}
	return syncErr
}

// teardownLocked assumes the caller holds the write lock and that it is
// safe to close every remaining handle (no further views will arrive).
func (l *Log) teardownLocked() {
	for _, r := range l.readers.all() {
		r.Close()
	}
	l.writer.closeForShutdown()
}

func (l *Log) CurrentFileGeneration() Generation { l.mu.RLock(); defer l.mu.RUnlock(); return l.writer.Generation() }

// Generation returns the uuid this instance is bound to and its current
// writer generation.
func (l *Log) Generation() (TlogUUID, Generation) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.uuid, l.writer.Generation()
}

func (l *Log) TotalOperations() uint32 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	total := l.writer.OpsCount()
	for _, r := range l.readers.all() {
		total += r.TotalOperations()
	}
	return total
}

func (l *Log) SizeInBytes() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	total := l.writer.SizeInBytes()
	for _, r := range l.readers.all() {
		total += r.SizeInBytes()
	}
	return total
}

// Stats snapshots the controller's size and retention counters for
// operator-facing reporting.
func (l *Log) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s := Stats{
		TotalOperations:         l.writer.OpsCount(),
		SizeInBytes:             l.writer.SizeInBytes(),
		ReaderCount:             l.readers.len(),
		ViewCount:               l.views.len(),
		CurrentGeneration:       l.writer.Generation(),
		LastCommittedGeneration: l.lastCommittedGeneration,
	}
	for _, r := range l.readers.all() {
		s.TotalOperations += r.TotalOperations()
		s.SizeInBytes += r.SizeInBytes()
	}
	return s
}
