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

var segaCDMagics = [][]byte{
	[]byte("SEGADISCSYSTEM"),
	[]byte("SEGABOOTDISC"),
	[]byte("SEGADATADISC"),
	[]byte("SEGADISC"),
}

// The Sega CD system area repeats the Mega Drive cartridge header layout
// at offset 0x100.
var segaCDRegions = map[byte]string{
	'J': "Japan",
	'U': "Americas",
	'E': "Europe",
}

var segaCDDevices = map[byte]string{
	'J': "3-button Controller",
	'6': "6-button Controller",
	'0': "Master System Controller",
	'A': "Analog Joystick",
	'4': "Multitap",
	'G': "Lightgun",
	'L': "Activator",
	'M': "Mouse",
	'B': "Trackball",
	'T': "Tablet",
	'V': "Paddle",
	'K': "Keyboard or Keypad",
	'R': "RS-232",
	'P': "Printer",
	'C': "CD-ROM (Sega CD)",
	'F': "Floppy Drive",
	'D': "Download",
}

func detectSegaCD(header []byte) *Info {
	base := findAny(header, segaCDMagics)
	if base < 0 {
		return nil
	}

	info := &Info{
		Console:  SegaCD,
		ID:       field(header, base, 0x180, 0x10),
		Title:    field(header, base, 0x150, 0x30),
		Released: segaCDBuildDate(field(header, base, 0x050, 0x08)),
		Regions:  codes(header, base, 0x1f0, 0x03, segaCDRegions),
		Devices:  codes(header, base, 0x190, 0x10, segaCDDevices),
	}
	if info.Title == "" {
		info.Title = field(header, base, 0x120, 0x30)
	}
	return info
}

// segaCDBuildDate turns MMDDYYYY into YYYY-MM-DD.
func segaCDBuildDate(raw string) string {
	if len(raw) != 8 {
		return ""
	}
	return raw[4:8] + "-" + raw[0:2] + "-" + raw[2:4]
}
