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
	"path/filepath"
	"testing"
)

func TestCheckpointEncodeDecodeRoundTrip(t *testing.T) {
	rec := Checkpoint{OpsCount: 7, Offset: 1024, Generation: 3, GlobalCheckpoint: 42}
	buf := rec.encode()
	if len(buf) != checkpointRecordSize {
		t.Fatalf("encoded length %d, want %d", len(buf), checkpointRecordSize)
	}
	got, err := decodeCheckpoint(buf)
	if err != nil {
		t.Fatalf("decodeCheckpoint: %v", err)
	}
	if got != rec {
		t.Fatalf("got %#v, want %#v", got, rec)
	}
}

func TestCheckpointChecksumDetection(t *testing.T) {
	rec := Checkpoint{OpsCount: 1, Offset: 24, Generation: 1, GlobalCheckpoint: UnassignedGlobalCheckpoint}
	buf := rec.encode()
	buf[0] ^= 0xFF

	_, err := decodeCheckpoint(buf)
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindCorruption {
		t.Fatalf("expected KindCorruption, got %v", err)
	}
}

func TestWriteReadCheckpointAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "translog-1.ckp")
	rec := Checkpoint{OpsCount: 3, Offset: 100, Generation: 1, GlobalCheckpoint: 5}

	if err := writeCheckpoint(path, rec, checkpointCreateNew); err != nil {
		t.Fatalf("writeCheckpoint: %v", err)
	}

	// A second create-new at the same path must fail: O_EXCL guards against
	// silently clobbering an existing live checkpoint.
	if err := writeCheckpoint(path, rec, checkpointCreateNew); err == nil {
		t.Fatal("expected error re-creating existing checkpoint with checkpointCreateNew")
	}

	got, err := readCheckpoint(path)
	if err != nil {
		t.Fatalf("readCheckpoint: %v", err)
	}
	if got != rec {
		t.Fatalf("got %#v, want %#v", got, rec)
	}

	rec2 := Checkpoint{OpsCount: 9, Offset: 200, Generation: 1, GlobalCheckpoint: 10}
	if err := writeCheckpoint(path, rec2, checkpointOverwrite); err != nil {
		t.Fatalf("overwrite writeCheckpoint: %v", err)
	}
	got2, err := readCheckpoint(path)
	if err != nil {
		t.Fatalf("readCheckpoint after overwrite: %v", err)
	}
	if got2 != rec2 {
		t.Fatalf("got %#v, want %#v", got2, rec2)
	}
}

func TestReadCheckpointMissing(t *testing.T) {
	dir := t.TempDir()
	_, err := readCheckpoint(filepath.Join(dir, "nonexistent.ckp"))
	if err == nil {
		t.Fatal("expected error for missing checkpoint")
	}
}

func TestCopyCheckpointFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "translog.ckp")
	dst := filepath.Join(dir, "translog-1.ckp")
	rec := Checkpoint{OpsCount: 2, Offset: 48, Generation: 1, GlobalCheckpoint: 1}

	if err := writeCheckpoint(src, rec, checkpointCreateNew); err != nil {
		t.Fatalf("writeCheckpoint: %v", err)
	}
	if err := copyCheckpointFile(src, dst); err != nil {
		t.Fatalf("copyCheckpointFile: %v", err)
	}

	got, err := readCheckpoint(dst)
	if err != nil {
		t.Fatalf("readCheckpoint(dst): %v", err)
	}
	if got != rec {
		t.Fatalf("sidecar got %#v, want %#v", got, rec)
	}

	// No leftover temp file should remain in the directory.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if e.Name()[0] == '.' {
			t.Fatalf("leftover temp file: %s", e.Name())
		}
	}
}
