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

import "sync"

// View is a retention handle: while it is open, the owning Log will not
// trim any generation at or above the one the View was created against,
// regardless of how many rotations happen afterward. Acquire one before
// a long-running consumer (replication, archival) starts reading, and
// Close it as soon as the consumer has caught up, or the log will retain
// generations indefinitely.
type View struct {
	id     uint64
	minGen Generation
	log    *Log

	closeOnce sync.Once
	closed    bool
	mu        sync.Mutex
}

func newView(log *Log, id uint64, minGen Generation) *View {
	return &View{log: log, id: id, minGen: minGen}
}

// MinGeneration returns the generation this view pins; the owning Log
// will never trim a generation >= this value while the view is open.
func (v *View) MinGeneration() Generation { return v.minGen }

// Snapshot returns a point-in-time iterator starting at this view's pinned
// generation, covering everything appended up to the moment of the call.
// Unlike Log.NewSnapshot, it is guaranteed not to observe a gap even if
// rotations and trims happen concurrently, because the underlying
// generations cannot be removed while this view is open.
func (v *View) Snapshot() (*Snapshot, error) {
	v.mu.Lock()
	closed := v.closed
	v.mu.Unlock()
	if closed {
		return nil, newErr(KindAlreadyClosed, nil, "view %d already closed", v.id)
	}
	return v.log.snapshotFromGeneration(v.minGen)
}

// Close releases the retention pin. Safe to call more than once.
func (v *View) Close() error {
	v.closeOnce.Do(func() {
		v.mu.Lock()
		v.closed = true
		v.mu.Unlock()
		v.log.releaseView(v.id)
	})
	return nil
}
