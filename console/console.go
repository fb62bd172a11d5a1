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

// Package console recognizes the boot headers of consoles whose discs are
// MODE1 data tracks, so a converted image can be labelled with the system
// it targets.
package console

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sftwninja/iso2raw/internal/binary"
)

// Console names a disc-based system.
type Console string

// Recognized consoles.
const (
	SegaCD Console = "Sega CD"
	Saturn Console = "Sega Saturn"
)

// ErrUnknown is returned when no boot header is recognized.
var ErrUnknown = errors.New("no console boot header found")

// headerSize covers the Sega CD system area, the larger of the two.
const headerSize = 0x300

// Info is what a boot header says about the disc.
type Info struct {
	Console  Console
	ID       string
	Title    string
	Version  string
	Released string // YYYY-MM-DD, empty when absent
	Regions  []string
	Devices  []string
}

func (i *Info) String() string {
	var b strings.Builder
	b.WriteString(string(i.Console))
	if i.Title != "" {
		b.WriteString(": " + i.Title)
	}
	if i.ID != "" {
		fmt.Fprintf(&b, " [%s]", i.ID)
	}
	return b.String()
}

var detectors = []func(header []byte) *Info{
	detectSaturn,
	detectSegaCD,
}

// Detect reads the first user-data sector of a cooked image and matches it
// against the known boot headers.
func Detect(r io.ReaderAt, size int64) (*Info, error) {
	if size < headerSize {
		return nil, ErrUnknown
	}
	header, err := binary.ReadBytesAt(r, 0, headerSize)
	if err != nil {
		return nil, fmt.Errorf("read boot header: %w", err)
	}
	for _, detect := range detectors {
		if info := detect(header); info != nil {
			return info, nil
		}
	}
	return nil, ErrUnknown
}

// field returns the trimmed text at off..off+n relative to base, or "" when
// it runs past the header.
func field(header []byte, base, off, n int) string {
	start := base + off
	if start+n > len(header) {
		return ""
	}
	return binary.CleanString(header[start : start+n])
}

// codes maps each known code byte of header[base+off : base+off+n].
func codes(header []byte, base, off, n int, names map[byte]string) []string {
	start := base + off
	if start+n > len(header) {
		return nil
	}
	var out []string
	for _, c := range header[start : start+n] {
		if name, ok := names[c]; ok {
			out = append(out, name)
		}
	}
	return out
}

func findAny(header []byte, magics [][]byte) int {
	for _, m := range magics {
		if i := bytes.Index(header, m); i >= 0 {
			return i
		}
	}
	return -1
}
