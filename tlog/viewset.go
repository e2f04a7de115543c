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
	"sync"

	"github.com/google/btree"
)

// viewEntry is one registered retention handle, ordered first by the
// generation it pins (so the minimum is always the first element of the
// tree) and then by id to keep entries with an equal minGen distinct.
type viewEntry struct {
	id     uint64
	minGen Generation
}

func viewEntryLess(a, b viewEntry) bool {
	if a.minGen != b.minGen {
		return a.minGen < b.minGen
	}
	return a.id < b.id
}

// viewSet tracks every outstanding View's pinned generation so trim can
// compute the true retention floor in O(log N) instead of scanning every
// live view. Views churn far less than appends, but trim needs the current
// minimum on essentially every rotation, which is exactly the shape a
// btree handles better than a slice scan once the view count grows.
type viewSet struct {
	mu     sync.Mutex
	tree   *btree.BTreeG[viewEntry]
	byID   map[uint64]Generation
	nextID uint64
}

func newViewSet() *viewSet {
	return &viewSet{
		tree: btree.NewG[viewEntry](32, viewEntryLess),
		byID: make(map[uint64]Generation),
	}
}

// register pins minGen and returns the id the caller must present to
// unregister later.
func (s *viewSet) register(minGen Generation) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.byID[id] = minGen
	s.tree.ReplaceOrInsert(viewEntry{id: id, minGen: minGen})
	return id
}

// unregister releases the pin held by id. Safe to call more than once.
func (s *viewSet) unregister(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	minGen, ok := s.byID[id]
	if !ok {
		return
	}
	delete(s.byID, id)
	s.tree.Delete(viewEntry{id: id, minGen: minGen})
}

// minGeneration returns the lowest generation pinned by any live view, and
// false if no view is currently registered.
func (s *viewSet) minGeneration() (Generation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	min, ok := s.tree.Min()
	if !ok {
		return 0, false
	}
	return min.minGen, true
}

func (s *viewSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.Len()
}
