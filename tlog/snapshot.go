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

// Snapshot is a point-in-time iterator over the log's contents as of the
// moment it was constructed: a concatenation, in generation order, of the
// retained readers plus a frozen view of the writer's readable tail. It
// does not observe operations appended to the writer after construction,
// and it is safe to iterate concurrently with further appends to the
// owning Log.
type Snapshot struct {
	iters []*opIterator
	idx   int
	total uint32
}

// newSnapshot concatenates snapshots of readers (already in ascending
// generation order) with the writer's current tail.
func newSnapshot(readers []*Reader, tail *opIterator, tailCount uint32) *Snapshot {
	s := &Snapshot{}
	for _, r := range readers {
		s.iters = append(s.iters, r.NewSnapshot())
		s.total += r.TotalOperations()
	}
	s.iters = append(s.iters, tail)
	s.total += tailCount
	return s
}

// TotalOperations returns the operation count across all underlying
// readers and the writer tail, computed at construction time.
func (s *Snapshot) TotalOperations() uint32 { return s.total }

// Next returns the next operation in the snapshot, or ok=false once the
// snapshot is exhausted. A non-nil error means the snapshot has hit
// corruption or truncation and must not be read further.
func (s *Snapshot) Next() (op Operation, loc Location, ok bool, err error) {
	for s.idx < len(s.iters) {
		op, loc, ok, err = s.iters[s.idx].Next()
		if err != nil {
			return nil, Location{}, false, err
		}
		if !ok {
			s.idx++
			continue
		}
		return op, loc, true, nil
	}
	return nil, Location{}, false, nil
}
