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

package console

import "strings"

var saturnMagics = [][]byte{[]byte("SEGA SEGASATURN")}

var saturnDevices = map[byte]string{
	'J': "Joypad",
	'M': "Mouse",
	'G': "Gun",
	'W': "RAM Cart",
	'S': "Steering Wheel",
	'A': "Virtua Stick or Analog Controller",
	'E': "Analog Controller (3D-pad)",
	'T': "Multi-Tap",
	'C': "Link Cable",
	'D': "Link Cable (Direct Link)",
	'X': "X-Band or Netlink Modem",
	'K': "Keyboard",
	'Q': "Pachinko Controller",
	'F': "Floppy Disk Drive",
	'R': "ROM Cart",
	'P': "Video CD Card (MPEG Movie Card)",
}

var saturnAreas = map[byte]string{
	'J': "Japan",
	'T': "Asia NTSC (Taiwan, Philippines)",
	'U': "North America (USA, Canada)",
	'B': "Central and South America NTSC (Brazil)",
	'K': "Korea",
	'A': "East Asia PAL (China, Middle and Near East)",
	'E': "Europe PAL",
	'L': "Central and South America PAL",
}

func detectSaturn(header []byte) *Info {
	base := findAny(header, saturnMagics)
	if base < 0 {
		return nil
	}

	id := field(header, base, 0x20, 0x0a)
	if before, _, ok := strings.Cut(id, " "); ok {
		id = before
	}
	return &Info{
		Console:  Saturn,
		ID:       id,
		Title:    field(header, base, 0x60, 0x70),
		Version:  field(header, base, 0x2a, 0x06),
		Released: saturnDate(field(header, base, 0x30, 0x08)),
		Regions:  codes(header, base, 0x40, 0x10, saturnAreas),
		Devices:  codes(header, base, 0x50, 0x10, saturnDevices),
	}
}

// saturnDate turns YYYYMMDD into YYYY-MM-DD.
func saturnDate(raw string) string {
	if len(raw) != 8 {
		return ""
	}
	return raw[0:4] + "-" + raw[4:6] + "-" + raw[6:8]
}
