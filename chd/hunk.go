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
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/icza/bitio"
	"golang.org/x/sync/singleflight"
)

// Hunk compression types (V5 map entry types).
const (
	HunkCompTypeCodec0   = 0  // compressed with compressor 0
	HunkCompTypeCodec1   = 1  // compressed with compressor 1
	HunkCompTypeCodec2   = 2  // compressed with compressor 2
	HunkCompTypeCodec3   = 3  // compressed with compressor 3
	HunkCompTypeNone     = 4  // uncompressed
	HunkCompTypeSelf     = 5  // copy of another hunk in this file
	HunkCompTypeParent   = 6  // copy of a hunk in the parent file
	HunkCompTypeRLESmall = 7  // repeat last type, small count
	HunkCompTypeRLELarge = 8  // repeat last type, large count
	HunkCompTypeSelf0    = 9  // self reference, same as last
	HunkCompTypeSelf1    = 10 // self reference, last+1
	HunkCompTypeParSelf  = 11 // parent reference to the same hunk
	HunkCompTypePar0     = 12 // parent reference, same as last
	HunkCompTypePar1     = 13 // parent reference, last+1

	// Types that only occur in uncompressed V5 and legacy maps.
	hunkCompTypeZero = 0x40 // all zero bytes
	hunkCompTypeMini = 0x41 // 8-byte pattern stored in Offset
)

// DefaultHunkCache is how many decompressed hunks a HunkMap keeps.
const DefaultHunkCache = 64

// HunkMapEntry is one decoded map entry.
type HunkMapEntry struct {
	Offset     uint64
	CompLength uint32
	CRC16      uint16
	CompType   uint8
	hasCRC     bool
}

// HunkMap locates, decompresses and caches hunks. It is safe for
// concurrent use; concurrent reads of one hunk share a single decode.
type HunkMap struct {
	reader  io.ReaderAt
	header  *Header
	cache   *lru.Cache[uint32, []byte]
	entries []HunkMapEntry
	codecs  [4]Codec
	flight  singleflight.Group
}

// NewHunkMap parses the map described by header and prepares its codecs.
// A codec that is not registered only fails the hunks that use it.
func NewHunkMap(reader io.ReaderAt, header *Header, opts Options) (*HunkMap, error) {
	cacheHunks := opts.CacheHunks
	if cacheHunks <= 0 {
		cacheHunks = DefaultHunkCache
	}
	cache, err := lru.New[uint32, []byte](cacheHunks)
	if err != nil {
		return nil, fmt.Errorf("hunk cache: %w", err)
	}
	hm := &HunkMap{reader: reader, header: header, cache: cache}

	if header.Version == 5 {
		for i, tag := range header.Compressors {
			if tag == CodecNone {
				continue
			}
			c, err := GetCodec(tag)
			if err != nil {
				continue
			}
			if cd, ok := c.(*cdCodec); ok {
				cd.log = opts.Logger
			}
			hm.codecs[i] = c
		}
	} else if header.Compression != 0 {
		// V3/V4 compression 1 and 2 are both raw deflate.
		hm.codecs[0] = CodecFunc(inflate)
	}

	if err := hm.parseMap(); err != nil {
		return nil, fmt.Errorf("parse hunk map: %w", err)
	}
	return hm, nil
}

func (hm *HunkMap) parseMap() error {
	numHunks := hm.header.NumHunks()
	if numHunks > MaxNumHunks {
		return fmt.Errorf("%w: too many hunks (%d > %d)", ErrInvalidHeader, numHunks, MaxNumHunks)
	}
	hm.entries = make([]HunkMapEntry, numHunks)

	switch {
	case hm.header.Version == 5 && hm.header.IsCompressed():
		return hm.parseMapV5()
	case hm.header.Version == 5:
		return hm.parseMapV5Raw()
	default:
		return hm.parseMapLegacy()
	}
}

// parseMapV5 decodes a compressed V5 map. The 16-byte map header is:
//
//	0  compressed map length (4)
//	4  offset of the first hunk (6)
//	10 map CRC16 (2)
//	12 bits per length, bits per self reference, bits per parent reference
//	15 reserved
//
// followed by a Huffman-coded, run-length-encoded list of entry types and
// then the per-entry fields.
//
//nolint:gocyclo,cyclop,funlen // one case per map entry type
func (hm *HunkMap) parseMapV5() error {
	var mh [16]byte
	//nolint:gosec // offset from a validated header
	if _, err := hm.reader.ReadAt(mh[:], int64(hm.header.MapOffset)); err != nil {
		return fmt.Errorf("read map header: %w", err)
	}

	mapLen := binary.BigEndian.Uint32(mh[0:4])
	if mapLen > MaxCompMapLen {
		return fmt.Errorf("%w: compressed map too large (%d > %d)", ErrInvalidHeader, mapLen, MaxCompMapLen)
	}
	var firstOffs uint64
	for _, b := range mh[4:10] {
		firstOffs = firstOffs<<8 | uint64(b)
	}
	lengthBits, selfBits, parentBits := mh[12], mh[13], mh[14]

	raw := make([]byte, mapLen)
	//nolint:gosec // offset from a validated header
	if _, err := hm.reader.ReadAt(raw, int64(hm.header.MapOffset)+16); err != nil {
		return fmt.Errorf("read compressed map: %w", err)
	}

	br := bitio.NewReader(bytes.NewReader(raw))
	dec := newHuffmanDecoder(16, 8)
	if err := dec.importTreeRLE(br); err != nil {
		return err
	}

	types := make([]uint8, len(hm.entries))
	var last uint8
	rep := 0
	for i := range types {
		if rep > 0 {
			types[i] = last
			rep--
			continue
		}
		switch v := dec.decode(br); v {
		case HunkCompTypeRLESmall:
			types[i] = last
			rep = 2 + int(dec.decode(br))
		case HunkCompTypeRLELarge:
			types[i] = last
			rep = 2 + 16 + int(dec.decode(br))<<4
			rep += int(dec.decode(br))
		default:
			types[i] = v
			last = v
		}
	}

	cur := firstOffs
	var lastSelf, lastParent uint64
	unitsPerHunk := uint64(hm.header.HunkBytes / hm.header.UnitBytes)
	for i, t := range types {
		e := HunkMapEntry{CompType: t}
		switch t {
		case HunkCompTypeCodec0, HunkCompTypeCodec1, HunkCompTypeCodec2, HunkCompTypeCodec3:
			e.CompLength = uint32(br.TryReadBits(lengthBits)) //nolint:gosec // at most 32 bits
			e.Offset = cur
			cur += uint64(e.CompLength)
			e.CRC16, e.hasCRC = uint16(br.TryReadBits(16)), true
		case HunkCompTypeNone:
			e.CompLength = hm.header.HunkBytes
			e.Offset = cur
			cur += uint64(e.CompLength)
			e.CRC16, e.hasCRC = uint16(br.TryReadBits(16)), true
		case HunkCompTypeSelf:
			lastSelf = br.TryReadBits(selfBits)
			e.Offset = lastSelf
		case HunkCompTypeParent:
			lastParent = br.TryReadBits(parentBits)
			e.Offset = lastParent
		case HunkCompTypeSelf1:
			lastSelf++
			fallthrough
		case HunkCompTypeSelf0:
			e.CompType = HunkCompTypeSelf
			e.Offset = lastSelf
		case HunkCompTypeParSelf:
			lastParent = uint64(i) * unitsPerHunk
			e.CompType = HunkCompTypeParent
			e.Offset = lastParent
		case HunkCompTypePar1:
			lastParent += unitsPerHunk
			fallthrough
		case HunkCompTypePar0:
			e.CompType = HunkCompTypeParent
			e.Offset = lastParent
		default:
			return fmt.Errorf("%w: hunk %d has map type %d", ErrInvalidHunk, i, t)
		}
		hm.entries[i] = e
	}

	if br.TryError != nil {
		return fmt.Errorf("%w: truncated map: %w", ErrInvalidHeader, br.TryError)
	}
	return nil
}

// parseMapV5Raw decodes the map of an uncompressed V5 file: one 32-bit
// hunk number per entry, zero meaning a hunk of zeros.
func (hm *HunkMap) parseMapV5Raw() error {
	raw := make([]byte, 4*len(hm.entries))
	//nolint:gosec // offset from a validated header
	if _, err := hm.reader.ReadAt(raw, int64(hm.header.MapOffset)); err != nil {
		return fmt.Errorf("read map: %w", err)
	}
	for i := range hm.entries {
		n := binary.BigEndian.Uint32(raw[4*i:])
		if n == 0 {
			hm.entries[i] = HunkMapEntry{CompType: hunkCompTypeZero}
			continue
		}
		hm.entries[i] = HunkMapEntry{
			CompType:   HunkCompTypeNone,
			CompLength: hm.header.HunkBytes,
			Offset:     uint64(n) * uint64(hm.header.HunkBytes),
		}
	}
	return nil
}

// parseMapLegacy decodes a V3/V4 map of 16-byte entries:
//
//	0  offset (8)   8 CRC32 (4)   12 length low (2)   14 length high (1)
//	15 flags, low nibble = entry type
func (hm *HunkMap) parseMapLegacy() error {
	raw := make([]byte, 16*len(hm.entries))
	//nolint:gosec // offset from a validated header
	if _, err := hm.reader.ReadAt(raw, int64(hm.header.MapOffset)); err != nil {
		return fmt.Errorf("read V%d map: %w", hm.header.Version, err)
	}

	for i := range hm.entries {
		b := raw[16*i : 16*(i+1)]
		e := HunkMapEntry{
			Offset:     binary.BigEndian.Uint64(b[0:8]),
			CompLength: uint32(binary.BigEndian.Uint16(b[12:14])) | uint32(b[14])<<16,
		}
		switch b[15] & 0x0f {
		case 1:
			e.CompType = HunkCompTypeCodec0
		case 2:
			e.CompType = HunkCompTypeNone
		case 3:
			e.CompType = hunkCompTypeMini
		case 4:
			e.CompType = HunkCompTypeSelf
		case 5:
			e.CompType = HunkCompTypeParent
		default:
			return fmt.Errorf("%w: hunk %d has legacy type %d", ErrInvalidHunk, i, b[15]&0x0f)
		}
		hm.entries[i] = e
	}
	return nil
}

// ReadHunk returns the decompressed hunk at index. The returned slice is
// shared with the cache and must not be modified.
func (hm *HunkMap) ReadHunk(index uint32) ([]byte, error) {
	//nolint:gosec // len(entries) is bounded by MaxNumHunks
	if index >= uint32(len(hm.entries)) {
		return nil, fmt.Errorf("%w: index %d >= %d", ErrInvalidHunk, index, len(hm.entries))
	}
	if data, ok := hm.cache.Get(index); ok {
		return data, nil
	}

	v, err, _ := hm.flight.Do(strconv.FormatUint(uint64(index), 10), func() (any, error) {
		data, err := hm.decompressHunk(index)
		if err != nil {
			return nil, err
		}
		hm.cache.Add(index, data)
		return data, nil
	})
	if err != nil {
		return nil, fmt.Errorf("hunk %d: %w", index, err)
	}
	return v.([]byte), nil //nolint:forcetypeassert // the flight only returns []byte
}

func (hm *HunkMap) decompressHunk(index uint32) ([]byte, error) {
	e := hm.entries[index]
	switch e.CompType {
	case HunkCompTypeCodec0, HunkCompTypeCodec1, HunkCompTypeCodec2, HunkCompTypeCodec3:
		return hm.decodeWithCodec(e)
	case HunkCompTypeNone:
		dst := make([]byte, hm.header.HunkBytes)
		//nolint:gosec // offset from the map
		if _, err := hm.reader.ReadAt(dst, int64(e.Offset)); err != nil {
			return nil, fmt.Errorf("read uncompressed: %w", err)
		}
		return dst, hm.checkCRC(e, dst)
	case hunkCompTypeZero:
		return make([]byte, hm.header.HunkBytes), nil
	case hunkCompTypeMini:
		dst := make([]byte, hm.header.HunkBytes)
		for i := 0; i+8 <= len(dst); i += 8 {
			binary.BigEndian.PutUint64(dst[i:], e.Offset)
		}
		return dst, nil
	case HunkCompTypeSelf:
		// References always point backwards; anything else would loop.
		if e.Offset >= uint64(index) {
			return nil, fmt.Errorf("%w: self reference %d from %d", ErrInvalidHunk, e.Offset, index)
		}
		data, err := hm.ReadHunk(uint32(e.Offset)) //nolint:gosec // checked above
		if err != nil {
			return nil, err
		}
		return data, nil
	case HunkCompTypeParent:
		return nil, ErrParentRequired
	default:
		return nil, fmt.Errorf("%w: compression type %d", ErrUnsupportedCodec, e.CompType)
	}
}

func (hm *HunkMap) decodeWithCodec(e HunkMapEntry) ([]byte, error) {
	codec := hm.codecs[e.CompType]
	if codec == nil {
		tag := hm.header.Compressors[e.CompType]
		return nil, fmt.Errorf("%w: compressor %d (%s)", ErrUnsupportedCodec, e.CompType, CodecName(tag))
	}

	src := make([]byte, e.CompLength)
	//nolint:gosec // offset from the map
	if _, err := hm.reader.ReadAt(src, int64(e.Offset)); err != nil {
		return nil, fmt.Errorf("read compressed: %w", err)
	}
	dst := make([]byte, hm.header.HunkBytes)
	if err := codec.Decompress(dst, src); err != nil {
		return nil, err
	}
	return dst, hm.checkCRC(e, dst)
}

func (*HunkMap) checkCRC(e HunkMapEntry, data []byte) error {
	if !e.hasCRC {
		return nil
	}
	if got := crc16(data); got != e.CRC16 {
		return fmt.Errorf("%w: crc16 %#04x, want %#04x", ErrCorruptData, got, e.CRC16)
	}
	return nil
}

// NumHunks returns the total number of hunks.
func (hm *HunkMap) NumHunks() uint32 {
	//nolint:gosec // bounded by MaxNumHunks
	return uint32(len(hm.entries))
}

// HunkBytes returns the decompressed size of one hunk.
func (hm *HunkMap) HunkBytes() uint32 {
	return hm.header.HunkBytes
}
