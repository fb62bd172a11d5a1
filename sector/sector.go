// Copyright (c) 2025 The iso2raw Authors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of iso2raw.
//
// iso2raw is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// iso2raw is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with iso2raw.  If not, see <https://www.gnu.org/licenses/>.

// Package sector assembles and verifies CD-ROM MODE1 physical sectors.
//
// A MODE1 sector is 2352 bytes:
//
//	Offset    0: Sync pattern (12 bytes)
//	Offset   12: Header, BCD minute/second/frame + mode (4 bytes)
//	Offset   16: User data (2048 bytes)
//	Offset 2064: EDC over bytes 0..2063, little-endian (4 bytes)
//	Offset 2068: Reserved, zero (8 bytes)
//	Offset 2076: P parity (172 bytes)
//	Offset 2248: Q parity (104 bytes)
package sector

import (
	"encoding/binary"

	"github.com/sftwninja/iso2raw/lec"
)

// Sector sizes.
const (
	UserDataSize = 2048
	RawSize      = lec.RawSectorSize
)

// Field offsets inside a raw sector.
const (
	SyncOffset     = 0
	HeaderOffset   = 12
	DataOffset     = 16
	EDCOffset      = DataOffset + UserDataSize
	ReservedOffset = EDCOffset + lec.EDCSize
	POffset        = lec.POffset
	QOffset        = lec.QOffset

	SyncSize     = HeaderOffset
	HeaderSize   = DataOffset - HeaderOffset
	ReservedSize = POffset - ReservedOffset
)

// Mode1 is the header mode byte of a MODE1 sector.
const Mode1 = 0x01

// Sync is the 12-byte pattern that opens every data sector.
var Sync = [SyncSize]byte{0x00, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x00}

// Assemble builds the MODE1 sector for user data at index.
func Assemble(index uint32, data *[UserDataSize]byte) [RawSize]byte {
	var out [RawSize]byte
	AssembleInto(&out, index, data)
	return out
}

// AssembleInto writes the MODE1 sector for user data at index into dst,
// overwriting every byte. It does not allocate.
func AssembleInto(dst *[RawSize]byte, index uint32, data *[UserDataSize]byte) {
	copy(dst[SyncOffset:HeaderOffset], Sync[:])

	addr := AddressFromLBA(index).BCD()
	copy(dst[HeaderOffset:], addr[:])
	dst[HeaderOffset+3] = Mode1

	copy(dst[DataOffset:EDCOffset], data[:])

	binary.LittleEndian.PutUint32(dst[EDCOffset:ReservedOffset], lec.EDC(dst[:EDCOffset]))
	clear(dst[ReservedOffset:POffset])

	lec.Default().Generate(dst)
}

// Mode returns the mode byte of a raw sector.
func Mode(raw *[RawSize]byte) byte {
	return raw[HeaderOffset+3]
}

// HasSync reports whether b starts with the sync pattern.
func HasSync(b []byte) bool {
	return len(b) >= SyncSize && [SyncSize]byte(b[:SyncSize]) == Sync
}

// UserData returns the user data portion of a raw sector.
func UserData(raw *[RawSize]byte) *[UserDataSize]byte {
	return (*[UserDataSize]byte)(raw[DataOffset:EDCOffset])
}
