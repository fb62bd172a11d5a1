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

package chd

import (
	"encoding/binary"
	"fmt"
	"io"
)

var chdMagic = [8]byte{'M', 'C', 'o', 'm', 'p', 'r', 'H', 'D'}

// Header sizes for the supported versions.
const (
	headerSizeV3 = 120
	headerSizeV4 = 108
	headerSizeV5 = 124
)

// cdFrameSize is one CD frame as stored in a hunk: a raw sector followed by
// its subchannel.
const (
	cdSectorSize = 2352
	cdSubSize    = 96
	cdFrameSize  = cdSectorSize + cdSubSize
)

// Header is a parsed CHD header. V3/V4 fields are zero for V5 files and
// vice versa.
type Header struct {
	Compressors  [4]uint32 // V5 codec tags
	LogicalBytes uint64    // total uncompressed size
	MapOffset    uint64
	MetaOffset   uint64
	HeaderSize   uint32
	Version      uint32
	HunkBytes    uint32
	UnitBytes    uint32
	RawSHA1      [20]byte
	SHA1         [20]byte
	ParentSHA1   [20]byte

	Flags       uint32 // V3/V4
	Compression uint32 // V3/V4
	TotalHunks  uint32 // V3/V4
}

// parseHeader reads the header at the start of r.
func parseHeader(r io.ReaderAt) (*Header, error) {
	var prefix [16]byte
	if _, err := r.ReadAt(prefix[:], 0); err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}
	if [8]byte(prefix[:8]) != chdMagic {
		return nil, ErrInvalidMagic
	}

	h := &Header{
		HeaderSize: binary.BigEndian.Uint32(prefix[8:12]),
		Version:    binary.BigEndian.Uint32(prefix[12:16]),
	}

	var want uint32
	switch h.Version {
	case 3:
		want = headerSizeV3
	case 4:
		want = headerSizeV4
	case 5:
		want = headerSizeV5
	default:
		return nil, fmt.Errorf("%w: version %d", ErrUnsupportedVersion, h.Version)
	}
	if h.HeaderSize < want {
		return nil, fmt.Errorf("%w: v%d header size %d < %d", ErrInvalidHeader, h.Version, h.HeaderSize, want)
	}

	buf := make([]byte, want)
	if _, err := r.ReadAt(buf, 0); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	switch h.Version {
	case 5:
		h.parseV5(buf)
	case 4:
		h.parseV4(buf)
	case 3:
		h.parseV3(buf)
	}

	if h.HunkBytes == 0 || h.HunkBytes > MaxHunkBytes {
		return nil, fmt.Errorf("%w: hunk size %d", ErrInvalidHeader, h.HunkBytes)
	}
	if h.UnitBytes == 0 || h.HunkBytes%h.UnitBytes != 0 {
		return nil, fmt.Errorf("%w: unit size %d for hunk size %d", ErrInvalidHeader, h.UnitBytes, h.HunkBytes)
	}
	return h, nil
}

// parseV5 decodes a V5 header. Offsets are from the start of the file:
//
//	0x10 compressors[4]   0x20 logical bytes   0x28 map offset
//	0x30 meta offset      0x38 hunk bytes      0x3C unit bytes
//	0x40 raw SHA1         0x54 SHA1            0x68 parent SHA1
func (h *Header) parseV5(b []byte) {
	for i := range h.Compressors {
		h.Compressors[i] = binary.BigEndian.Uint32(b[0x10+4*i:])
	}
	h.LogicalBytes = binary.BigEndian.Uint64(b[0x20:])
	h.MapOffset = binary.BigEndian.Uint64(b[0x28:])
	h.MetaOffset = binary.BigEndian.Uint64(b[0x30:])
	h.HunkBytes = binary.BigEndian.Uint32(b[0x38:])
	h.UnitBytes = binary.BigEndian.Uint32(b[0x3c:])
	copy(h.RawSHA1[:], b[0x40:0x54])
	copy(h.SHA1[:], b[0x54:0x68])
	copy(h.ParentSHA1[:], b[0x68:0x7c])
}

// parseV4 decodes a V4 header:
//
//	0x10 flags   0x14 compression   0x18 total hunks   0x1C logical bytes
//	0x24 meta    0x2C hunk bytes    0x30 SHA1          0x44 parent SHA1
//	0x58 raw SHA1
func (h *Header) parseV4(b []byte) {
	h.parseLegacy(b)
	h.HunkBytes = binary.BigEndian.Uint32(b[0x2c:])
	copy(h.SHA1[:], b[0x30:0x44])
	copy(h.ParentSHA1[:], b[0x44:0x58])
	copy(h.RawSHA1[:], b[0x58:0x6c])
}

// parseV3 decodes a V3 header. It matches V4 up to the meta offset, then
// carries two MD5 sums before the hunk size:
//
//	0x2C MD5   0x3C parent MD5   0x4C hunk bytes   0x50 SHA1   0x64 parent SHA1
func (h *Header) parseV3(b []byte) {
	h.parseLegacy(b)
	h.HunkBytes = binary.BigEndian.Uint32(b[0x4c:])
	copy(h.SHA1[:], b[0x50:0x64])
	copy(h.ParentSHA1[:], b[0x64:0x78])
}

func (h *Header) parseLegacy(b []byte) {
	h.Flags = binary.BigEndian.Uint32(b[0x10:])
	h.Compression = binary.BigEndian.Uint32(b[0x14:])
	h.TotalHunks = binary.BigEndian.Uint32(b[0x18:])
	h.LogicalBytes = binary.BigEndian.Uint64(b[0x1c:])
	h.MetaOffset = binary.BigEndian.Uint64(b[0x24:])
	// Legacy CD images always store full frames; the map follows the header.
	h.UnitBytes = cdFrameSize
	h.MapOffset = uint64(h.HeaderSize)
}

// NumHunks returns the total number of hunks in the file.
func (h *Header) NumHunks() uint32 {
	if h.TotalHunks > 0 {
		return h.TotalHunks
	}
	if h.HunkBytes == 0 {
		return 0
	}
	//nolint:gosec // bounded by MaxNumHunks check in the map parser
	return uint32((h.LogicalBytes + uint64(h.HunkBytes) - 1) / uint64(h.HunkBytes))
}

// FramesPerHunk returns how many units fit in one hunk.
func (h *Header) FramesPerHunk() int {
	return int(h.HunkBytes / h.UnitBytes)
}

// IsCompressed reports whether hunks go through a codec.
func (h *Header) IsCompressed() bool {
	if h.Version == 5 {
		return h.Compressors[0] != CodecNone
	}
	return h.Compression != 0
}
