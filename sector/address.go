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

package sector

import "fmt"

// CD addressing constants.
const (
	// Pregap is the two-second lead-in before LBA 0 (00:02:00).
	Pregap          = 150
	FramesPerSecond = 75
	SecondsPerMin   = 60
	FramesPerMinute = FramesPerSecond * SecondsPerMin

	// MaxLBA is the last address representable as 99:59:74.
	MaxLBA = 100*FramesPerMinute - 1 - Pregap
)

// Address is a minute/second/frame position on the disc.
type Address struct {
	Minute uint8
	Second uint8
	Frame  uint8
}

// AddressFromLBA converts a logical block address to its MSF position,
// adding the 150-frame pregap. Minutes wrap at 100 because the header field
// holds two BCD digits.
func AddressFromLBA(lba uint32) Address {
	abs := lba + Pregap
	return Address{
		Minute: uint8((abs / FramesPerMinute) % 100), //nolint:gosec // bounded by % 100
		Second: uint8((abs / FramesPerSecond) % SecondsPerMin),
		Frame:  uint8(abs % FramesPerSecond),
	}
}

// LBA returns the logical block address of a, undoing the pregap.
// Addresses inside the pregap yield negative values.
func (a Address) LBA() int64 {
	return int64(a.Minute)*FramesPerMinute + int64(a.Second)*FramesPerSecond + int64(a.Frame) - Pregap
}

// BCD returns the three header address bytes.
func (a Address) BCD() [3]byte {
	return [3]byte{toBCD(a.Minute), toBCD(a.Second), toBCD(a.Frame)}
}

func (a Address) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", a.Minute, a.Second, a.Frame)
}

// ParseAddress decodes three BCD header bytes.
func ParseAddress(b [3]byte) (Address, error) {
	m, okM := fromBCD(b[0])
	s, okS := fromBCD(b[1])
	f, okF := fromBCD(b[2])
	if !okM || !okS || !okF || s >= SecondsPerMin || f >= FramesPerSecond {
		return Address{}, fmt.Errorf("%w: % x", ErrBadAddress, b[:])
	}
	return Address{Minute: m, Second: s, Frame: f}, nil
}

func toBCD(v uint8) byte {
	return (v/10)<<4 | v%10
}

func fromBCD(b byte) (uint8, bool) {
	hi, lo := b>>4, b&0x0f
	if hi > 9 || lo > 9 {
		return 0, false
	}
	return hi*10 + lo, true
}
