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

package lec

import (
	"sync"

	"github.com/sftwninja/iso2raw/internal/gf256"
)

// Region and parity sizes of the MODE1 L-EC layer. Both regions start at
// the sector header (offset 12 of a 2352-byte sector).
const (
	// PRegionSize covers header, user data, EDC and the 8 reserved bytes.
	PRegionSize = 2064
	// QRegionSize is the P region followed by the P parity.
	QRegionSize = PRegionSize + PParitySize

	PParitySize = 172
	QParitySize = 104

	// RegionOffset is where both regions begin inside a raw sector.
	RegionOffset = 12
	// POffset and QOffset locate the parity fields inside a raw sector.
	POffset = RegionOffset + PRegionSize
	QOffset = POffset + PParitySize

	// RawSectorSize is the full physical sector length.
	RawSectorSize = QOffset + QParitySize
)

// P codewords run down 43 columns of 24 rows; Q codewords run along 26
// diagonals of 43 steps. Each byte lane (even/odd offset) is an independent
// codeword, so every column and diagonal yields two codewords.
const (
	pColumns = 43
	pRows    = 24
	pStride  = 2 * pColumns

	qDiagonals = 26
	qSteps     = 43
	qStride    = 2 * (pColumns + 1)
)

// Encoder computes P and Q parity. It is read-only once built and is
// shared by every worker.
type Encoder struct {
	// coeffs[j][v] packs v*q0[j] in the low byte and v*q1[j] in the high
	// byte, where (q0, q1) weight codeword position j in the two parity
	// equations. P codewords use rows 19..42, Q codewords rows 0..42.
	coeffs [qSteps][256]uint16
}

var defaultEncoder = sync.OnceValue(func() *Encoder {
	return NewEncoder(gf256.New(gf256.CDROM))
})

// Default returns the process-wide encoder for the CD-ROM field.
func Default() *Encoder {
	return defaultEncoder()
}

// NewEncoder derives the parity coefficient table from field f.
//
// For a codeword of length 45 (43 data + 2 parity) the parity bytes satisfy
// sum(c_j) = 0 and sum(c_j * alpha^(44-j)) = 0. Solving that system for the
// two parity positions gives, per data position j, the weights q0[j] and
// q1[j] applied to the data byte.
func NewEncoder(f *gf256.Field) *Encoder {
	const n = qSteps + 2

	var e0, e1, q0, q1 [n]byte
	for j := range n {
		e0[j] = 1
		e1[j] = f.Exp(n - 1 - j)
	}

	for j := range n {
		q1[j] = gf256.Add(e1[j], e0[j])
	}
	d1 := q1[n-2]
	for j := range n {
		q1[j] = f.Div(q1[j], d1)
	}

	alpha := f.Exp(1)
	for j := range n {
		q0[j] = gf256.Add(e0[j], f.Div(e1[j], alpha))
	}
	d0 := q0[n-1]
	for j := range n {
		q0[j] = f.Div(q0[j], d0)
	}

	enc := &Encoder{}
	for j := range qSteps {
		for v := 1; v < 256; v++ {
			lo := f.Mul(byte(v), q0[j])
			hi := f.Mul(byte(v), q1[j])
			enc.coeffs[j][v] = uint16(lo) | uint16(hi)<<8
		}
	}
	return enc
}

// PParity computes the 172 P parity bytes of region. The first 86 bytes
// hold parity 1 of every column, the last 86 hold parity 0.
func (e *Encoder) PParity(region *[PRegionSize]byte) [PParitySize]byte {
	var out [PParitySize]byte
	for col := range pColumns {
		idx := 2 * col
		var even, odd uint16
		for row := range pRows {
			c := &e.coeffs[qSteps-pRows+row]
			even ^= c[region[idx]]
			odd ^= c[region[idx+1]]
			idx += pStride
		}
		out[2*col] = byte(even >> 8)
		out[2*col+1] = byte(odd >> 8)
		out[pStride+2*col] = byte(even)
		out[pStride+2*col+1] = byte(odd)
	}
	return out
}

// QParity computes the 104 Q parity bytes of region, which must already
// carry the P parity in its last 172 bytes.
func (e *Encoder) QParity(region *[QRegionSize]byte) [QParitySize]byte {
	var out [QParitySize]byte
	for diag := range qDiagonals {
		idx := pStride * diag
		var even, odd uint16
		for step := range qSteps {
			c := &e.coeffs[step]
			even ^= c[region[idx]]
			odd ^= c[region[idx+1]]
			idx += qStride
			if idx >= QRegionSize {
				idx -= QRegionSize
			}
		}
		out[2*diag] = byte(even >> 8)
		out[2*diag+1] = byte(odd >> 8)
		out[2*qDiagonals+2*diag] = byte(even)
		out[2*qDiagonals+2*diag+1] = byte(odd)
	}
	return out
}

// Generate fills the P and Q parity of a raw sector in place. Everything
// from the header through the reserved bytes must already be final.
func (e *Encoder) Generate(sector *[RawSectorSize]byte) {
	p := e.PParity((*[PRegionSize]byte)(sector[RegionOffset:POffset]))
	copy(sector[POffset:QOffset], p[:])

	q := e.QParity((*[QRegionSize]byte)(sector[RegionOffset:QOffset]))
	copy(sector[QOffset:], q[:])
}

// Check reports whether the stored P and Q parity of sector match a fresh
// computation.
func (e *Encoder) Check(sector *[RawSectorSize]byte) (pOK, qOK bool) {
	p := e.PParity((*[PRegionSize]byte)(sector[RegionOffset:POffset]))
	q := e.QParity((*[QRegionSize]byte)(sector[RegionOffset:QOffset]))
	return [PParitySize]byte(sector[POffset:QOffset]) == p,
		[QParitySize]byte(sector[QOffset:]) == q
}
