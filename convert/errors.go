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

package convert

import (
	"fmt"

	"github.com/sftwninja/iso2raw/sector"
)

// SizeError reports an input whose size cannot be split into whole
// 2048-byte sectors, or that holds more sectors than a disc can address.
type SizeError struct {
	Size int64
}

func (e SizeError) Error() string {
	if r := e.Size % sector.UserDataSize; r != 0 {
		return fmt.Sprintf("input size %d is not a multiple of %d (%d trailing bytes)",
			e.Size, sector.UserDataSize, r)
	}
	return fmt.Sprintf("input size %d exceeds %d sectors (99:59:74)", e.Size, sector.MaxLBA+1)
}

// SectorError wraps an I/O failure with the sector that triggered it.
type SectorError struct {
	Op     string
	Sector int64
	Err    error
}

func (e SectorError) Error() string {
	return fmt.Sprintf("%s sector %d: %v", e.Op, e.Sector, e.Err)
}

func (e SectorError) Unwrap() error {
	return e.Err
}
