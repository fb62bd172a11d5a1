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

// Package gf256 provides log/exp table arithmetic over GF(2^8).
package gf256

// CDROM is the primitive polynomial x^8 + x^4 + x^3 + x^2 + 1 used by the
// CD-ROM L-EC code.
const CDROM uint16 = 0x11d

// Field holds the exponent and logarithm tables for one GF(2^8) field.
// A Field is immutable after New returns and safe for concurrent use.
type Field struct {
	// exp is doubled so exp[log a + log b] never needs a mod 255.
	exp [512]byte
	log [256]byte
}

// New builds the tables for the field generated by poly, with alpha = 2.
func New(poly uint16) *Field {
	f := &Field{}
	b := uint16(1)
	for i := range 255 {
		f.exp[i] = byte(b)
		f.log[b] = byte(i)
		b <<= 1
		if b&0x100 != 0 {
			b ^= poly
		}
	}
	for i := 255; i < len(f.exp); i++ {
		f.exp[i] = f.exp[i-255]
	}
	return f
}

// Exp returns alpha^n for any non-negative n.
func (f *Field) Exp(n int) byte {
	return f.exp[n%255]
}

// Log returns the discrete logarithm of a. Log(0) is undefined and panics.
func (f *Field) Log(a byte) int {
	if a == 0 {
		panic("gf256: log of zero")
	}
	return int(f.log[a])
}

// Mul multiplies a and b.
func (f *Field) Mul(a, b byte) byte {
	if a == 0 || b == 0 {
		return 0
	}
	return f.exp[int(f.log[a])+int(f.log[b])]
}

// Div divides a by b. Division by zero panics.
func (f *Field) Div(a, b byte) byte {
	if b == 0 {
		panic("gf256: division by zero")
	}
	if a == 0 {
		return 0
	}
	return f.exp[int(f.log[a])+255-int(f.log[b])]
}

// Add is addition (and subtraction) in characteristic 2.
func Add(a, b byte) byte {
	return a ^ b
}
