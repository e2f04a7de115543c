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
	"github.com/launix-de/NonLockingReadMap"
)

// readerEntry adapts *Reader to NonLockingReadMap's KeyGetter constraint.
type readerEntry struct {
	gen Generation
	r   *Reader
}

func (e readerEntry) GetKey() Generation { return e.gen }

// ComputeSize is not used for capacity accounting here (unlike the
// teacher's cache, the reader list is not a size-bounded cache); it exists
// only to satisfy the KeyGetter/Sizable constraint.
func (e readerEntry) ComputeSize() uint { return 0 }

// readerList is the controller's ordered, read-heavy collection of sealed
// readers: append/sync/snapshot construction all consult it far more often
// than prepare_commit/trim mutate it, which is exactly the access pattern
// NonLockingReadMap is built for.
type readerList struct {
	m NonLockingReadMap.NonLockingReadMap[readerEntry, Generation]
}

func newReaderList() *readerList {
	return &readerList{m: NonLockingReadMap.New[readerEntry, Generation]()}
}

// add registers a newly sealed reader. Callers must already hold the
// controller's write lock, per the reader-list ownership discipline.
func (l *readerList) add(r *Reader) {
	l.m.Set(&readerEntry{gen: r.Generation(), r: r})
}

func (l *readerList) get(gen Generation) (*Reader, bool) {
	e := l.m.Get(gen)
	if e == nil {
		return nil, false
	}
	return e.r, true
}

func (l *readerList) remove(gen Generation) (*Reader, bool) {
	e := l.m.Remove(gen)
	if e == nil {
		return nil, false
	}
	return e.r, true
}

// all returns every reader currently retained, in ascending generation
// order (NonLockingReadMap keeps its backing slice sorted by key).
func (l *readerList) all() []*Reader {
	entries := l.m.GetAll()
	out := make([]*Reader, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.r)
	}
	return out
}

// fromGeneration returns every retained reader whose generation is >= min,
// in ascending order.
func (l *readerList) fromGeneration(min Generation) []*Reader {
	all := l.all()
	out := all[:0:0]
	for _, r := range all {
		if r.Generation() >= min {
			out = append(out, r)
		}
	}
	return out
}

func (l *readerList) len() int { return len(l.m.GetAll()) }
