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

import "testing"

func TestSnapshotConcatenatesReadersAndTail(t *testing.T) {
	dir := t.TempDir()
	w1 := newTestWriter(t, dir, 1)
	for i := 0; i < 2; i++ {
		if _, err := w1.Append(NoOpOp{Seq: int64(i), Term: 1, Reason: "sealed"}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	r1, err := w1.sealIntoReader()
	if err != nil {
		t.Fatalf("sealIntoReader: %v", err)
	}
	defer r1.Close()

	w2 := newTestWriter(t, dir, 2)
	if _, err := w2.Append(NoOpOp{Seq: 2, Term: 1, Reason: "tail"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	tailIter, tailCount := w2.newSnapshotTail()
	snap := newSnapshot([]*Reader{r1}, tailIter, tailCount)

	if snap.TotalOperations() != 3 {
		t.Fatalf("TotalOperations() = %d, want 3", snap.TotalOperations())
	}

	var gotGens []Generation
	for {
		_, loc, ok, err := snap.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		gotGens = append(gotGens, loc.Generation)
	}
	if len(gotGens) != 3 {
		t.Fatalf("got %d records, want 3", len(gotGens))
	}
	if gotGens[0] != 1 || gotGens[1] != 1 || gotGens[2] != 2 {
		t.Fatalf("generation order wrong: %v", gotGens)
	}
}

func TestSnapshotDoesNotObserveAppendsAfterConstruction(t *testing.T) {
	dir := t.TempDir()
	w := newTestWriter(t, dir, 1)
	if _, err := w.Append(NoOpOp{Seq: 1, Term: 1, Reason: "before"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	tailIter, tailCount := w.newSnapshotTail()
	snap := newSnapshot(nil, tailIter, tailCount)

	if _, err := w.Append(NoOpOp{Seq: 2, Term: 1, Reason: "after"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	count := 0
	for {
		_, _, ok, err := snap.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		count++
	}
	if count != 1 {
		t.Fatalf("snapshot observed %d records, want 1 (appends after construction must not be visible)", count)
	}
}
