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
	"encoding/binary"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// TlogUUID binds a tlog instance to the engine commit that created it.
// Opening a directory whose files carry a different TlogUUID than the one
// the caller expects is fatal (KindCorruption).
type TlogUUID [16]byte

// NilTlogUUID is the zero value, used by callers opening fresh (no
// expectation yet).
var NilTlogUUID TlogUUID

func (u TlogUUID) String() string {
	return uuid.UUID(u).String()
}

func (u TlogUUID) IsNil() bool {
	return u == NilTlogUUID
}

var uuidCounter uint64 = uint64(time.Now().UnixNano())

// uuidPid is mixed into every generated TlogUUID. A single host commonly
// opens many shards' tlog directories at once (a restart fanning out
// across dozens of shards in the same process, or several shard processes
// forked within the same clock tick), so the nanotime+counter pair alone
// is not enough to keep them from colliding with each other across
// processes; folding in the pid separates them without touching
// crypto/rand.
var uuidPid uint64 = uint64(os.Getpid())

// NewTlogUUID returns a UUIDv4-shaped identifier without blocking on
// crypto/rand. The tlog UUID only has to be unique per engine commit
// within a single host's lifetime, not cryptographically unguessable, so
// a counter mixed with the clock and the process id avoids startup
// stalls on low-entropy systems.
func NewTlogUUID() TlogUUID {
	ctr := atomic.AddUint64(&uuidCounter, 1)
	now := uint64(time.Now().UnixNano())
	var b [16]byte
	binary.LittleEndian.PutUint64(b[0:8], ctr^(uuidPid<<32))
	binary.LittleEndian.PutUint64(b[8:16], ctr^now^(now<<17)^uuidPid)
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	return TlogUUID(b)
}
