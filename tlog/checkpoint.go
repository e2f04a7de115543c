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
	"errors"
	"io"
	"os"
	"path/filepath"
)

// checkpointRecordSize is the fixed on-disk size of a Checkpoint record:
// ops_count(4) + offset(8) + generation(8) + global_checkpoint(8) + crc32(4).
// It fits comfortably inside a single disk sector, so a healthy filesystem
// write of this size is effectively atomic; torn writes are not repaired
// here, only detected by CRC mismatch at read time.
const checkpointRecordSize = 4 + 8 + 8 + 8 + 4

// UnassignedGlobalCheckpoint is the sentinel written when no global
// checkpoint has been supplied yet.
const UnassignedGlobalCheckpoint int64 = -2

// Checkpoint is the fixed-size record describing the durable state of one
// generation. Byte order on disk is little-endian throughout.
type Checkpoint struct {
	OpsCount         uint32
	Offset           uint64
	Generation       Generation
	GlobalCheckpoint int64
}

func (c Checkpoint) encode() []byte {
	buf := make([]byte, checkpointRecordSize)
	binary.LittleEndian.PutUint32(buf[0:4], c.OpsCount)
	binary.LittleEndian.PutUint64(buf[4:12], c.Offset)
	binary.LittleEndian.PutUint64(buf[12:20], uint64(c.Generation))
	binary.LittleEndian.PutUint64(buf[20:28], uint64(c.GlobalCheckpoint))
	crc := crc32Checksum(buf[0:28])
	binary.LittleEndian.PutUint32(buf[28:32], crc)
	return buf
}

func decodeCheckpoint(buf []byte) (Checkpoint, error) {
	if len(buf) != checkpointRecordSize {
		return Checkpoint{}, newErr(KindCorruption, nil, "checkpoint record has %d bytes, want %d", len(buf), checkpointRecordSize)
	}
	wantCRC := binary.LittleEndian.Uint32(buf[28:32])
	gotCRC := crc32Checksum(buf[0:28])
	if wantCRC != gotCRC {
		return Checkpoint{}, newErr(KindCorruption, nil, "checkpoint crc mismatch: got %x want %x", gotCRC, wantCRC)
	}
	return Checkpoint{
		OpsCount:         binary.LittleEndian.Uint32(buf[0:4]),
		Offset:           binary.LittleEndian.Uint64(buf[4:12]),
		Generation:       Generation(binary.LittleEndian.Uint64(buf[12:20])),
		GlobalCheckpoint: int64(binary.LittleEndian.Uint64(buf[20:28])),
	}, nil
}

// checkpointCreateMode selects whether writeCheckpoint expects to create a
// brand-new file or overwrite an existing one in place.
type checkpointCreateMode int

const (
	checkpointCreateNew checkpointCreateMode = iota
	checkpointOverwrite
)

// writeCheckpoint writes rec to path per mode, fsyncs the file, then fsyncs
// the containing directory. Partial/torn writes are not recovered here:
// they surface as a CRC failure the next time the file is read.
func writeCheckpoint(path string, rec Checkpoint, mode checkpointCreateMode) error {
	buf := rec.encode()

	var flags int
	switch mode {
	case checkpointCreateNew:
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	case checkpointOverwrite:
		flags = os.O_WRONLY | os.O_CREATE
	}

	f, err := os.OpenFile(path, flags, 0640)
	if err != nil {
		return newErr(KindIo, err, "open checkpoint %s", path)
	}
	defer f.Close()

	if mode == checkpointOverwrite {
		if err := f.Truncate(0); err != nil {
			return newErr(KindIo, err, "truncate checkpoint %s", path)
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return newErr(KindIo, err, "seek checkpoint %s", path)
		}
	}

	if _, err := f.Write(buf); err != nil {
		return newErr(KindIo, err, "write checkpoint %s", path)
	}
	if err := f.Sync(); err != nil {
		return newErr(KindIo, err, "fsync checkpoint %s", path)
	}
	if err := fsyncDir(filepath.Dir(path)); err != nil {
		return err
	}
	return nil
}

// readCheckpoint reads and verifies the checkpoint record at path.
func readCheckpoint(path string) (Checkpoint, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Checkpoint{}, newErr(KindIo, err, "checkpoint %s does not exist", path)
		}
		return Checkpoint{}, newErr(KindIo, err, "read checkpoint %s", path)
	}
	if len(buf) != checkpointRecordSize {
		return Checkpoint{}, newErr(KindCorruption, nil, "checkpoint %s: short file (%d bytes)", path, len(buf))
	}
	rec, err := decodeCheckpoint(buf)
	if err != nil {
		return Checkpoint{}, err
	}
	return rec, nil
}

// copyCheckpointFile copies a live checkpoint to a sealed sidecar using the
// copy-then-atomic-rename protocol: write to a temp file in the same
// directory, fsync the temp file, rename it into place, then fsync the
// directory. The temp file is removed on any failure.
func copyCheckpointFile(srcPath, dstPath string) error {
	buf, err := os.ReadFile(srcPath)
	if err != nil {
		return newErr(KindIo, err, "read %s for sidecar copy", srcPath)
	}
	dir := filepath.Dir(dstPath)
	tmp, err := os.CreateTemp(dir, ".ckp-tmp-*")
	if err != nil {
		return newErr(KindIo, err, "create temp sidecar in %s", dir)
	}
	tmpPath := tmp.Name()
	succeeded := false
	defer func() {
		tmp.Close()
		if !succeeded {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(buf); err != nil {
		return newErr(KindIo, err, "write temp sidecar %s", tmpPath)
	}
	if err := tmp.Sync(); err != nil {
		return newErr(KindIo, err, "fsync temp sidecar %s", tmpPath)
	}
	if err := tmp.Close(); err != nil {
		return newErr(KindIo, err, "close temp sidecar %s", tmpPath)
	}
	if err := os.Rename(tmpPath, dstPath); err != nil {
		return newErr(KindIo, err, "rename %s -> %s", tmpPath, dstPath)
	}
	succeeded = true
	if err := fsyncDir(dir); err != nil {
		return err
	}
	return nil
}

func fsyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return newErr(KindIo, err, "open dir %s for fsync", dir)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return newErr(KindIo, err, "fsync dir %s", dir)
	}
	return nil
}
