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
	"errors"
	"fmt"
)

// Common errors for sector checks.
var (
	// ErrBadAddress indicates header address bytes that are not valid BCD MSF.
	ErrBadAddress = errors.New("invalid sector address")

	// ErrUnsupportedMode indicates a sector whose mode byte is not 1.
	ErrUnsupportedMode = errors.New("unsupported sector mode")
)

// Fault names the field that failed verification.
type Fault int

// Faults reported by Verify, in the order they are checked.
const (
	FaultSync Fault = iota + 1
	FaultMode
	FaultAddress
	FaultEDC
	FaultReserved
	FaultPParity
	FaultQParity
)

func (f Fault) String() string {
	switch f {
	case FaultSync:
		return "sync pattern"
	case FaultMode:
		return "mode byte"
	case FaultAddress:
		return "header address"
	case FaultEDC:
		return "EDC"
	case FaultReserved:
		return "reserved bytes"
	case FaultPParity:
		return "P parity"
	case FaultQParity:
		return "Q parity"
	default:
		return fmt.Sprintf("fault(%d)", int(f))
	}
}

// Error reports a sector that failed verification.
type Error struct {
	Err   error // optional cause, e.g. ErrUnsupportedMode
	Index int64
	Fault Fault
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sector %d: bad %s: %v", e.Index, e.Fault, e.Err)
	}
	return fmt.Sprintf("sector %d: bad %s", e.Index, e.Fault)
}

func (e *Error) Unwrap() error {
	return e.Err
}
