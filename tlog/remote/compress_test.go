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
package remote

import (
	"bytes"
	"io"
	"testing"

	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
)

func TestCodecLZ4RoundTrip(t *testing.T) {
	raw := bytes.Repeat([]byte("tlog generation payload\n"), 256)

	compressed, err := CodecLZ4.Compress(raw)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if len(compressed) == 0 {
		t.Fatal("Compress returned empty output")
	}
	if CodecLZ4.Extension() != ".lz4" {
		t.Fatalf("Extension() = %q, want .lz4", CodecLZ4.Extension())
	}

	got, err := io.ReadAll(lz4.NewReader(bytes.NewReader(compressed)))
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if !bytes.Equal(got, raw) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d bytes", len(got), len(raw))
	}
}

func TestCodecXZRoundTrip(t *testing.T) {
	raw := bytes.Repeat([]byte("tlog generation payload\n"), 256)

	compressed, err := CodecXZ.Compress(raw)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if len(compressed) == 0 {
		t.Fatal("Compress returned empty output")
	}
	if CodecXZ.Extension() != ".xz" {
		t.Fatalf("Extension() = %q, want .xz", CodecXZ.Extension())
	}

	r, err := xz.NewReader(bytes.NewReader(compressed))
	if err != nil {
		t.Fatalf("xz.NewReader: %v", err)
	}
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if !bytes.Equal(got, raw) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d bytes", len(got), len(raw))
	}
}

func TestCodecEmptyInput(t *testing.T) {
	for _, codec := range []Codec{CodecLZ4, CodecXZ} {
		compressed, err := codec.Compress(nil)
		if err != nil {
			t.Fatalf("Compress(nil) with %s: %v", codec.Extension(), err)
		}
		_ = compressed
	}
}
