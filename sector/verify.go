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

import (
	"encoding/binary"
	"fmt"

	"github.com/sftwninja/iso2raw/lec"
)

// Verify checks every fixed field of a raw MODE1 sector. index is used for
// error reporting and, when wantLBA is non-negative, the header address
// must decode to wantLBA. The first failing field is returned as *Error.
func Verify(raw *[RawSize]byte, index, wantLBA int64) error {
	if !HasSync(raw[:]) {
		return &Error{Index: index, Fault: FaultSync}
	}

	if mode := Mode(raw); mode != Mode1 {
		return &Error{
			Index: index,
			Fault: FaultMode,
			Err:   fmt.Errorf("%w: %d", ErrUnsupportedMode, mode),
		}
	}

	addr, err := ParseAddress([3]byte(raw[HeaderOffset : HeaderOffset+3]))
	if err != nil {
		return &Error{Index: index, Fault: FaultAddress, Err: err}
	}
	if wantLBA >= 0 && addr.LBA() != wantLBA {
		return &Error{
			Index: index,
			Fault: FaultAddress,
			Err:   fmt.Errorf("header says %s, want %s", addr, AddressFromLBA(uint32(wantLBA))), //nolint:gosec // checked non-negative
		}
	}

	stored := binary.LittleEndian.Uint32(raw[EDCOffset:ReservedOffset])
	if sum := lec.EDC(raw[:EDCOffset]); sum != stored {
		return &Error{
			Index: index,
			Fault: FaultEDC,
			Err:   fmt.Errorf("stored %08x, computed %08x", stored, sum),
		}
	}

	for _, b := range raw[ReservedOffset:POffset] {
		if b != 0 {
			return &Error{Index: index, Fault: FaultReserved}
		}
	}

	pOK, qOK := lec.Default().Check(raw)
	if !pOK {
		return &Error{Index: index, Fault: FaultPParity}
	}
	if !qOK {
		return &Error{Index: index, Fault: FaultQParity}
	}

	return nil
}
