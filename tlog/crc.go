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

import "hash/crc32"

// crc32Checksum is the single checksum function used across the checkpoint,
// file header, and operation record codecs, so that a corruption in any of
// them is detected the same way.
func crc32Checksum(b []byte) uint32 {
	return crc32.ChecksumIEEE(b)
}
