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

import "github.com/docker/go-units"

// Stats is a point-in-time summary of a Log's size, exposed for operators
// and the tlogctl inspector.
type Stats struct {
	TotalOperations      uint32
	SizeInBytes          uint64
	ReaderCount          int
	ViewCount            int
	CurrentGeneration    Generation
	LastCommittedGeneration Generation
}

// HumanSize renders SizeInBytes the way an operator reads it, e.g. "12MiB".
func (s Stats) HumanSize() string {
	return units.BytesSize(float64(s.SizeInBytes))
}
