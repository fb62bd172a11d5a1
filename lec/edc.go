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

// Package lec implements the CD-ROM layered error correction primitives:
// the 32-bit EDC checksum and the Reed-Solomon P and Q parity of ECMA-130.
package lec

import "hash"

// EDCPoly is the bit-reflected form of the EDC generator polynomial
// (x^16 + x^15 + x^2 + 1)(x^16 + x^2 + x + 1).
const EDCPoly uint32 = 0xd8018001

// EDCSize is the size of the stored EDC field in bytes.
const EDCSize = 4

var edcTable = makeEDCTable()

func makeEDCTable() *[256]uint32 {
	var table [256]uint32
	for i := range table {
		r := uint32(i)
		for range 8 {
			if r&1 != 0 {
				r = (r >> 1) ^ EDCPoly
			} else {
				r >>= 1
			}
		}
		table[i] = r
	}
	return &table
}

// UpdateEDC returns the result of adding the bytes in p to crc.
func UpdateEDC(crc uint32, p []byte) uint32 {
	for _, b := range p {
		crc = edcTable[byte(crc)^b] ^ (crc >> 8)
	}
	return crc
}

// EDC computes the checksum of p with a zero initial value and no final XOR.
func EDC(p []byte) uint32 {
	return UpdateEDC(0, p)
}

// NewEDC returns a streaming EDC. Sum appends the checksum little-endian,
// matching its on-disc byte order.
func NewEDC() hash.Hash32 {
	return &edcDigest{}
}

type edcDigest struct {
	crc uint32
}

func (d *edcDigest) Write(p []byte) (int, error) {
	d.crc = UpdateEDC(d.crc, p)
	return len(p), nil
}

func (d *edcDigest) Sum(b []byte) []byte {
	return append(b, byte(d.crc), byte(d.crc>>8), byte(d.crc>>16), byte(d.crc>>24))
}

func (d *edcDigest) Sum32() uint32 { return d.crc }
func (d *edcDigest) Reset()        { d.crc = 0 }
func (*edcDigest) Size() int       { return EDCSize }
func (*edcDigest) BlockSize() int  { return 1 }
