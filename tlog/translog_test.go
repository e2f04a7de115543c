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
	"errors"
	"os"
	"sort"
	"sync"
	"testing"
)

func drain(t *testing.T, snap *Snapshot) []Operation {
	t.Helper()
	var ops []Operation
	for {
		op, _, ok, err := snap.Next()
		if err != nil {
			t.Fatalf("snapshot Next: %v", err)
		}
		if !ok {
			break
		}
		ops = append(ops, op)
	}
	return ops
}

// S1: simple round trip -- open fresh, append, sync, read back in order.
func TestScenarioSimpleRoundTrip(t *testing.T) {
	dir := t.TempDir()
	log, err := OpenFresh(Config{Dir: dir}, UnassignedGlobalCheckpoint)
	if err != nil {
		t.Fatalf("OpenFresh: %v", err)
	}
	defer log.Close()

	want := []Operation{
		IndexOp{Seq: 1, Term: 1, Version: 1, ID: "a", Type: "doc", Source: []byte("one")},
		IndexOp{Seq: 2, Term: 1, Version: 1, ID: "b", Type: "doc", Source: []byte("two")},
		DeleteOp{Seq: 3, Term: 1, Version: 2, UIDField: "_uid", UIDValue: "doc#a"},
	}
	var locs []Location
	for _, op := range want {
		loc, err := log.Append(op)
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		locs = append(locs, loc)
	}
	for i := 1; i < len(locs); i++ {
		if !locs[i-1].Less(locs[i]) {
			t.Fatalf("locations not increasing: %v then %v", locs[i-1], locs[i])
		}
	}

	if synced, err := log.EnsureSynced(locs...); err != nil || !synced {
		t.Fatalf("EnsureSynced: synced=%v err=%v", synced, err)
	}

	snap, err := log.NewSnapshot()
	if err != nil {
		t.Fatalf("NewSnapshot: %v", err)
	}
	if snap.TotalOperations() != uint32(len(want)) {
		t.Fatalf("TotalOperations() = %d, want %d", snap.TotalOperations(), len(want))
	}
	got := drain(t, snap)
	if len(got) != len(want) {
		t.Fatalf("got %d ops, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].SeqNo() != want[i].SeqNo() {
			t.Fatalf("op %d: got seq %d, want %d", i, got[i].SeqNo(), want[i].SeqNo())
		}
	}
}

// S2: rotation with retention -- a View pins generation 1 across a commit,
// keeping its file alive until the view closes, at which point it is
// trimmed.
func TestScenarioRotationWithRetention(t *testing.T) {
	dir := t.TempDir()
	log, err := OpenFresh(Config{Dir: dir}, UnassignedGlobalCheckpoint)
	if err != nil {
		t.Fatalf("OpenFresh: %v", err)
	}
	defer log.Close()

	if _, err := log.Append(IndexOp{Seq: 1, Term: 1, Version: 1, ID: "a", Type: "doc", Source: []byte("x")}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := log.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	view := log.NewView()
	if view.MinGeneration() != NotSet {
		t.Fatalf("view pinned generation %d before any commit, want NotSet", view.MinGeneration())
	}

	if _, err := log.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if log.CurrentFileGeneration() != 2 {
		t.Fatalf("CurrentFileGeneration() = %d, want 2", log.CurrentFileGeneration())
	}

	gen1Path := tlogPath(dir, "translog", 1)
	if _, err := os.Stat(gen1Path); err != nil {
		t.Fatalf("generation 1 file should still exist while view is open: %v", err)
	}

	viewSnap, err := view.Snapshot()
	if err != nil {
		t.Fatalf("view.Snapshot: %v", err)
	}
	gotFromView := drain(t, viewSnap)
	if len(gotFromView) != 1 {
		t.Fatalf("view snapshot returned %d ops, want 1", len(gotFromView))
	}

	if err := view.Close(); err != nil {
		t.Fatalf("view.Close: %v", err)
	}

	if _, err := os.Stat(gen1Path); !os.IsNotExist(err) {
		t.Fatalf("generation 1 file should be trimmed after view closes, stat err = %v", err)
	}
}

// P2/S3: durability -- data synced before a restart is recoverable, and a
// mid-rotation orphan (writer created the next file but crashed before its
// first checkpoint) is cleaned up by recovery.
func TestScenarioCrashMidRotationRecovery(t *testing.T) {
	dir := t.TempDir()
	log, err := OpenFresh(Config{Dir: dir}, 100)
	if err != nil {
		t.Fatalf("OpenFresh: %v", err)
	}
	uuidBefore, _ := log.Generation()

	if _, err := log.Append(IndexOp{Seq: 1, Term: 1, Version: 1, ID: "a", Type: "doc", Source: []byte("x")}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := log.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if _, err := log.Append(IndexOp{Seq: 2, Term: 1, Version: 1, ID: "b", Type: "doc", Source: []byte("y")}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := log.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Simulate a crash between prepare_commit creating the next generation's
	// file and its first checkpoint write: manufacture an empty orphan at
	// generation 3 (the live checkpoint still describes generation 2).
	orphan, err := newWriter(dir, "translog", 3, uuidBefore, nil)
	if err != nil {
		t.Fatalf("newWriter (orphan): %v", err)
	}
	if err := orphan.f.Close(); err != nil {
		t.Fatalf("close orphan handle: %v", err)
	}

	recovered, err := OpenRecover(Config{Dir: dir}, uuidBefore, 2)
	if err != nil {
		t.Fatalf("OpenRecover: %v", err)
	}
	defer recovered.Close()

	if recovered.CurrentFileGeneration() != 3 {
		t.Fatalf("CurrentFileGeneration() = %d, want 3 (orphan slot reclaimed)", recovered.CurrentFileGeneration())
	}

	snap, err := recovered.NewSnapshot()
	if err != nil {
		t.Fatalf("NewSnapshot: %v", err)
	}
	got := drain(t, snap)
	if len(got) != 1 || got[0].SeqNo() != 2 {
		t.Fatalf("recovered ops = %v, want exactly seq 2", got)
	}

	gcp, err := recovered.LastSyncedGlobalCheckpoint()
	if err != nil {
		t.Fatalf("LastSyncedGlobalCheckpoint: %v", err)
	}
	if gcp != 100 {
		t.Fatalf("LastSyncedGlobalCheckpoint() = %d, want 100", gcp)
	}
}

// S4: a corrupted tail record surfaces as a decode error from the
// iterator, without affecting the records before it.
func TestScenarioTailCorruptionDetected(t *testing.T) {
	dir := t.TempDir()
	log, err := OpenFresh(Config{Dir: dir}, UnassignedGlobalCheckpoint)
	if err != nil {
		t.Fatalf("OpenFresh: %v", err)
	}
	defer log.Close()

	if _, err := log.Append(IndexOp{Seq: 1, Term: 1, Version: 1, ID: "a", Type: "doc", Source: []byte("x")}); err != nil {
		t.Fatalf("Append 1: %v", err)
	}
	if _, err := log.Append(IndexOp{Seq: 2, Term: 1, Version: 1, ID: "b", Type: "doc", Source: []byte("y")}); err != nil {
		t.Fatalf("Append 2: %v", err)
	}
	if _, err := log.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	path := tlogPath(dir, "translog", 1)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("open for corruption: %v", err)
	}
	info, err := f.Stat()
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if _, err := f.WriteAt([]byte{0xFF}, info.Size()-1); err != nil {
		t.Fatalf("corrupt last byte: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	snap, err := log.NewSnapshot()
	if err != nil {
		t.Fatalf("NewSnapshot: %v", err)
	}
	_, _, ok, err := snap.Next()
	if err != nil || !ok {
		t.Fatalf("first record should still decode cleanly: ok=%v err=%v", ok, err)
	}
	_, _, _, err = snap.Next()
	var e *Error
	if !errors.As(err, &e) || (e.Kind != KindCorruption && e.Kind != KindTruncation) {
		t.Fatalf("expected corruption/truncation on the corrupted second record, got %v", err)
	}
}

// P6/S5: recovering against the wrong expected uuid is rejected.
func TestScenarioUUIDMismatchRejected(t *testing.T) {
	dir := t.TempDir()
	log, err := OpenFresh(Config{Dir: dir}, UnassignedGlobalCheckpoint)
	if err != nil {
		t.Fatalf("OpenFresh: %v", err)
	}
	if _, err := log.Append(IndexOp{Seq: 1, Term: 1, Version: 1, ID: "a", Type: "doc", Source: []byte("x")}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := log.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := log.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	wrong := NewTlogUUID()
	_, err = OpenRecover(Config{Dir: dir}, wrong, 2)
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindCorruption {
		t.Fatalf("expected KindCorruption recovering with the wrong uuid, got %v", err)
	}
}

// P4: a view prevents unlinking a generation that a concurrent trim would
// otherwise reclaim, even across multiple rotations.
func TestRetentionAcrossMultipleRotations(t *testing.T) {
	dir := t.TempDir()
	log, err := OpenFresh(Config{Dir: dir}, UnassignedGlobalCheckpoint)
	if err != nil {
		t.Fatalf("OpenFresh: %v", err)
	}
	defer log.Close()

	view := log.NewView()
	defer view.Close()

	for i := 0; i < 3; i++ {
		if _, err := log.Append(IndexOp{Seq: int64(i), Term: 1, Version: 1, ID: "x", Type: "doc", Source: []byte("x")}); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
		if _, err := log.Commit(); err != nil {
			t.Fatalf("Commit %d: %v", i, err)
		}
	}

	for gen := Generation(1); gen <= 3; gen++ {
		if _, err := os.Stat(tlogPath(dir, "translog", gen)); err != nil {
			t.Fatalf("generation %d should be retained by the open view: %v", gen, err)
		}
	}

	snap, err := view.Snapshot()
	if err != nil {
		t.Fatalf("view.Snapshot: %v", err)
	}
	got := drain(t, snap)
	if len(got) != 3 {
		t.Fatalf("view snapshot returned %d ops, want 3", len(got))
	}
}

// S6: concurrent appenders racing a background syncer never observe
// colliding or out-of-order locations within the writer's generation.
func TestScenarioConcurrentAppendAndSync(t *testing.T) {
	dir := t.TempDir()
	log, err := OpenFresh(Config{Dir: dir}, UnassignedGlobalCheckpoint)
	if err != nil {
		t.Fatalf("OpenFresh: %v", err)
	}
	defer log.Close()

	const goroutines = 8
	const perGoroutine = 50

	type stamped struct {
		thread int
		index  int
		loc    Location
	}

	results := make([][]stamped, goroutines)
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			local := make([]stamped, 0, perGoroutine)
			for i := 0; i < perGoroutine; i++ {
				loc, err := log.Append(NoOpOp{Seq: int64(g*perGoroutine + i), Term: 1, Reason: "stress"})
				if err != nil {
					t.Errorf("goroutine %d append %d: %v", g, i, err)
					return
				}
				local = append(local, stamped{thread: g, index: i, loc: loc})
			}
			results[g] = local
		}(g)
	}

	stop := make(chan struct{})
	var syncWg sync.WaitGroup
	syncWg.Add(1)
	go func() {
		defer syncWg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				log.Sync()
			}
		}
	}()

	wg.Wait()
	close(stop)
	syncWg.Wait()

	if _, err := log.Sync(); err != nil {
		t.Fatalf("final Sync: %v", err)
	}

	var all []stamped
	for _, r := range results {
		all = append(all, r...)
	}
	if len(all) != goroutines*perGoroutine {
		t.Fatalf("collected %d locations, want %d", len(all), goroutines*perGoroutine)
	}

	sort.Slice(all, func(i, j int) bool { return all[i].loc.Less(all[j].loc) })
	for i := 1; i < len(all); i++ {
		if !all[i-1].loc.Less(all[i].loc) {
			t.Fatalf("locations not strictly ordered after sort at %d: %v then %v", i, all[i-1].loc, all[i].loc)
		}
	}

	snap, err := log.NewSnapshot()
	if err != nil {
		t.Fatalf("NewSnapshot: %v", err)
	}
	if snap.TotalOperations() != uint32(len(all)) {
		t.Fatalf("TotalOperations() = %d, want %d", snap.TotalOperations(), len(all))
	}
	got := drain(t, snap)
	if len(got) != len(all) {
		t.Fatalf("snapshot replayed %d ops, want %d", len(got), len(all))
	}
}

// Regression for the append-protocol lock ordering: Append/Sync/SyncUpTo
// must hold the read lock across the writer delegation, not just the
// pointer read, or a concurrent PrepareCommit/Commit sealing the writer
// into a reader can race an in-flight append/sync and misreport the
// rotation as a tragic writer failure, tearing the whole controller down.
func TestConcurrentAppendDuringRotationDoesNotRace(t *testing.T) {
	dir := t.TempDir()
	log, err := OpenFresh(Config{Dir: dir}, UnassignedGlobalCheckpoint)
	if err != nil {
		t.Fatalf("OpenFresh: %v", err)
	}
	defer log.Close()

	const appenders = 6
	failures := make([]error, appenders)
	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < appenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			seq := int64(0)
			for {
				select {
				case <-stop:
					return
				default:
				}
				if _, err := log.Append(NoOpOp{Seq: int64(i)*1_000_000 + seq, Term: 1, Reason: "rotation-race"}); err != nil {
					failures[i] = err
					return
				}
				seq++
			}
		}(i)
	}

	const rotations = 20
	for i := 0; i < rotations; i++ {
		if _, err := log.Commit(); err != nil {
			t.Fatalf("Commit %d: %v", i, err)
		}
	}
	close(stop)
	wg.Wait()

	for i, err := range failures {
		if err != nil {
			t.Fatalf("goroutine %d append failed during concurrent rotation: %v", i, err)
		}
	}
	if err := log.checkOpen(); err != nil {
		t.Fatalf("controller was closed by a spurious tragic failure during rotation: %v", err)
	}

	if _, err := log.Append(NoOpOp{Seq: 999, Term: 1, Reason: "post-race"}); err != nil {
		t.Fatalf("Append after rotation race: %v", err)
	}
	if _, err := log.Sync(); err != nil {
		t.Fatalf("Sync after rotation race: %v", err)
	}
}

func TestLogStats(t *testing.T) {
	dir := t.TempDir()
	log, err := OpenFresh(Config{Dir: dir}, UnassignedGlobalCheckpoint)
	if err != nil {
		t.Fatalf("OpenFresh: %v", err)
	}
	defer log.Close()

	if _, err := log.Append(NoOpOp{Seq: 1, Term: 1, Reason: "x"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	view := log.NewView()
	defer view.Close()
	if _, err := log.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	stats := log.Stats()
	if stats.TotalOperations != 1 {
		t.Fatalf("TotalOperations = %d, want 1", stats.TotalOperations)
	}
	if stats.ReaderCount != 1 {
		t.Fatalf("ReaderCount = %d, want 1", stats.ReaderCount)
	}
	if stats.ViewCount != 1 {
		t.Fatalf("ViewCount = %d, want 1", stats.ViewCount)
	}
	if stats.CurrentGeneration != 2 {
		t.Fatalf("CurrentGeneration = %d, want 2", stats.CurrentGeneration)
	}
	if stats.LastCommittedGeneration != 2 {
		t.Fatalf("LastCommittedGeneration = %d, want 2", stats.LastCommittedGeneration)
	}
	if stats.HumanSize() == "" {
		t.Fatal("HumanSize() returned empty string")
	}
}

func TestAppendAfterCloseFails(t *testing.T) {
	dir := t.TempDir()
	log, err := OpenFresh(Config{Dir: dir}, UnassignedGlobalCheckpoint)
	if err != nil {
		t.Fatalf("OpenFresh: %v", err)
	}
	if err := log.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := log.Append(NoOpOp{Seq: 1, Term: 1}); err == nil {
		t.Fatal("expected error appending after close")
	}
	var e *Error
	if _, err := log.Append(NoOpOp{Seq: 1, Term: 1}); !errors.As(err, &e) || e.Kind != KindAlreadyClosed {
		t.Fatalf("expected KindAlreadyClosed, got %v", err)
	}
}

// Rollback's precondition (no view pins a generation beyond
// last_committed_generation) holds by construction for any view obtained
// through NewView, so a well-behaved sequence always succeeds.
func TestRollbackSucceedsOnCleanController(t *testing.T) {
	dir := t.TempDir()
	log, err := OpenFresh(Config{Dir: dir}, UnassignedGlobalCheckpoint)
	if err != nil {
		t.Fatalf("OpenFresh: %v", err)
	}
	defer log.Close()

	if _, err := log.Append(NoOpOp{Seq: 1, Term: 1}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := log.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if _, err := log.Rollback(); err != nil {
		t.Fatalf("Rollback on a clean controller should succeed: %v", err)
	}
}
