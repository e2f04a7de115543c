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
	"path/filepath"
	"strconv"
	"strings"
)

// Generation is the monotonically increasing identifier of a single log
// file.
type Generation uint64

// NotSet marks last_committed_generation / current_committing_generation
// before they have ever been assigned.
const NotSet Generation = 0

// hasValue distinguishes "generation 0 used as NOT_SET sentinel" from a
// real assigned generation; real generations start at 1.
func (g Generation) hasValue() bool { return g != NotSet }

func tlogFileName(prefix string, gen Generation) string {
	return fmt.Sprintf("%s-%d.tlog", prefix, uint64(gen))
}

func checkpointSidecarName(prefix string, gen Generation) string {
	return fmt.Sprintf("%s-%d.ckp", prefix, uint64(gen))
}

func liveCheckpointName(prefix string) string {
	return prefix + ".ckp"
}

func tlogPath(dir, prefix string, gen Generation) string {
	return filepath.Join(dir, tlogFileName(prefix, gen))
}

func checkpointSidecarPath(dir, prefix string, gen Generation) string {
	return filepath.Join(dir, checkpointSidecarName(prefix, gen))
}

func liveCheckpointPath(dir, prefix string) string {
	return filepath.Join(dir, liveCheckpointName(prefix))
}

// parseGenerationFromTlogName extracts the generation from a "<prefix>-<gen>.tlog"
// file name. Returns an IllegalArgument error if name does not match.
func parseGenerationFromTlogName(prefix, name string) (Generation, error) {
	wantSuffix := ".tlog"
	if !strings.HasPrefix(name, prefix+"-") || !strings.HasSuffix(name, wantSuffix) {
		return 0, newErr(KindIllegalArgument, nil, "not a tlog file name: %q", name)
	}
	mid := strings.TrimSuffix(strings.TrimPrefix(name, prefix+"-"), wantSuffix)
	n, err := strconv.ParseUint(mid, 10, 64)
	if err != nil {
		return 0, newErr(KindIllegalArgument, err, "malformed generation in %q", name)
	}
	return Generation(n), nil
}

// Location identifies one appended record by the generation and byte
// offset it was written at, plus its on-disk size. Locations are ordered
// lexicographically by (generation, offset); size does not participate in
// ordering.
type Location struct {
	Generation Generation
	Offset     uint64
	Size       uint32
}

// Compare returns <0, 0, >0 as l sorts before, at, or after o.
func (l Location) Compare(o Location) int {
	if l.Generation != o.Generation {
		if l.Generation < o.Generation {
			return -1
		}
		return 1
	}
	if l.Offset != o.Offset {
		if l.Offset < o.Offset {
			return -1
		}
		return 1
	}
	return 0
}

// Less reports whether l sorts strictly before o.
func (l Location) Less(o Location) bool { return l.Compare(o) < 0 }

func (l Location) String() string {
	return fmt.Sprintf("(gen=%d,off=%d,size=%d)", l.Generation, l.Offset, l.Size)
}

// maxLocation returns the greater of two locations, used to collapse
// ensure_synced(stream_of_locations) into ensure_synced(max(locs)).
func maxLocation(a, b Location) Location {
	if a.Less(b) {
		return b
	}
	return a
}
