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
)

// recover_ rebuilds a Log from the on-disk files a prior instance left
// behind. It reads the live checkpoint to find cp_gen, reconciles any
// mid-rotation crash, re-opens every generation from expectedGeneration
// through cp_gen as a reader, reconciles the sealed sidecar for cp_gen,
// and opens a fresh writer at cp_gen+1.
func recover_(dir, prefix string, expectedUUID TlogUUID, expectedGeneration Generation, gcpSupplier func() int64) (*Log, error) {
	checkpoint, err := readCheckpoint(liveCheckpointPath(dir, prefix))
	if err != nil {
		return nil, err
	}
	cpGen := checkpoint.Generation

	if err := recoverMidRotationCleanup(dir, prefix, cpGen); err != nil {
		return nil, err
	}

	var opened []*Reader
	abort := func(err error) (*Log, error) {
		for _, r := range opened {
			r.Close()
		}
		return nil, err
	}

	for g := expectedGeneration; g < cpGen; g++ {
		path := tlogPath(dir, prefix, g)
		if _, statErr := os.Stat(path); statErr != nil {
			return abort(newErr(KindIllegalState, statErr, "generations must be consecutive: missing generation %d", g))
		}
		sidecar, err := readCheckpoint(checkpointSidecarPath(dir, prefix, g))
		if err != nil {
			return abort(err)
		}
		r, err := openReader(dir, prefix, g, expectedUUID, sidecar.OpsCount, sidecar.Offset)
		if err != nil {
			return abort(err)
		}
		opened = append(opened, r)
	}

	tail, err := openReader(dir, prefix, cpGen, expectedUUID, checkpoint.OpsCount, checkpoint.Offset)
	if err != nil {
		return abort(err)
	}
	opened = append(opened, tail)

	if len(opened) == 0 {
		return abort(newErr(KindIllegalState, nil, "recovery produced no readers"))
	}

	if err := reconcileSidecar(dir, prefix, cpGen, checkpoint); err != nil {
		return abort(err)
	}

	nextGen := cpGen + 1
	w, err := newWriter(dir, prefix, nextGen, expectedUUID, gcpSupplier)
	if err != nil {
		return abort(err)
	}
	if err := w.writeInitialCheckpoint(); err != nil {
		w.f.Close()
		os.Remove(tlogPath(dir, prefix, nextGen))
		return abort(err)
	}

	readers := newReaderList()
	for _, r := range opened {
		readers.add(r)
	}

	return &Log{
		dir:                         dir,
		prefix:                      prefix,
		uuid:                        expectedUUID,
		gcpSupplier:                 gcpSupplier,
		writer:                      w,
		readers:                     readers,
		views:                       newViewSet(),
		lastCommittedGeneration:     expectedGeneration,
		currentCommittingGeneration: NotSet,
	}, nil
}

// recoverMidRotationCleanup handles a crash between prepare_commit's
// creation of the next-generation file and the writer's first live
// checkpoint write into it: the orphan file is empty (no more than its
// header) and is removed so the new writer can claim the name.
func recoverMidRotationCleanup(dir, prefix string, cpGen Generation) error {
	orphanPath := tlogPath(dir, prefix, cpGen+1)
	info, err := os.Stat(orphanPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return newErr(KindIo, err, "stat orphan %s", orphanPath)
	}
	if uint64(info.Size()) > headerLength {
		return newErr(KindCorruption, nil, "orphan generation %d file is data-bearing (%d bytes), newer than checkpoint generation %d", cpGen+1, info.Size(), cpGen)
	}
	if err := os.Remove(orphanPath); err != nil {
		return newErr(KindIo, err, "remove orphan %s", orphanPath)
	}
	return nil
}

// reconcileSidecar ensures <prefix>-<cpGen>.ckp exists and matches the
// live checkpoint byte-for-byte, reconstructing it via copy-then-rename
// if it is missing.
func reconcileSidecar(dir, prefix string, cpGen Generation, live Checkpoint) error {
	sidecarPath := checkpointSidecarPath(dir, prefix, cpGen)
	existing, err := readCheckpoint(sidecarPath)
	if err != nil {
		if os.IsNotExist(unwrapIo(err)) {
			return copyCheckpointFile(liveCheckpointPath(dir, prefix), sidecarPath)
		}
		return err
	}
	if existing != live {
		return newErr(KindCorruption, nil, "sealed sidecar for generation %d diverges from live checkpoint", cpGen)
	}
	return nil
}

// unwrapIo extracts the underlying os error from a *Error wrapping one, so
// os.IsNotExist can be applied to it.
func unwrapIo(err error) error {
	if e, ok := err.(*Error); ok {
		return e.Cause
	}
	return err
}
