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

//go:build unix

package source

import (
	"io/fs"

	"golang.org/x/sys/unix"
)

// isBlockDevice reports whether info describes a block device such as
// /dev/sr0.
func isBlockDevice(info fs.FileInfo) bool {
	st, ok := info.Sys().(*unix.Stat_t)
	if ok {
		return st.Mode&unix.S_IFMT == unix.S_IFBLK
	}
	return info.Mode()&fs.ModeDevice != 0 && info.Mode()&fs.ModeCharDevice == 0
}
