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

	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
)

// Codec compresses an archived generation's bytes before upload. Never
// applied to the live .tlog file itself, which must stay a plain
// random-access file for Reader.
type Codec interface {
	Compress(raw []byte) ([]byte, error)
	Extension() string
}

// CodecLZ4 favors low compression latency, suited to archiving generations
// shortly after they seal.
var CodecLZ4 Codec = lz4Codec{}

// CodecXZ favors density over speed, suited to colder, longer-term storage.
var CodecXZ Codec = xzCodec{}

type lz4Codec struct{}

func (lz4Codec) Extension() string { return ".lz4" }

func (lz4Codec) Compress(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type xzCodec struct{}

func (xzCodec) Extension() string { return ".xz" }

func (xzCodec) Compress(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(w, bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
