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
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/klauspost/compress/flate"

	"github.com/sftwninja/iso2raw/lec"
	"github.com/sftwninja/iso2raw/sector"
)

// Codec tags are four ASCII characters packed big-endian.
const (
	CodecNone   uint32 = 0x00000000
	CodecZlib   uint32 = 0x7a6c6962 // "zlib"
	CodecLZMA   uint32 = 0x6c7a6d61 // "lzma"
	CodecHuff   uint32 = 0x68756666 // "huff"
	CodecFLAC   uint32 = 0x666c6163 // "flac"
	CodecZstd   uint32 = 0x7a737464 // "zstd"
	CodecCDZlib uint32 = 0x63647a6c // "cdzl"
	CodecCDLZMA uint32 = 0x63646c7a // "cdlz"
	CodecCDFLAC uint32 = 0x6364666c // "cdfl"
	CodecCDZstd uint32 = 0x63647a73 // "cdzs"
)

// Codec decompresses one hunk. dst has the exact decompressed size and
// must be filled completely. Implementations are safe for concurrent use.
type Codec interface {
	Decompress(dst, src []byte) error
}

// CodecFunc adapts a function to Codec.
type CodecFunc func(dst, src []byte) error

// Decompress calls f(dst, src).
func (f CodecFunc) Decompress(dst, src []byte) error { return f(dst, src) }

var (
	codecRegistry   = make(map[uint32]func() (Codec, error))
	codecRegistryMu sync.RWMutex
)

// RegisterCodec registers a codec factory for tag, replacing any previous
// registration.
func RegisterCodec(tag uint32, factory func() (Codec, error)) {
	codecRegistryMu.Lock()
	defer codecRegistryMu.Unlock()
	codecRegistry[tag] = factory
}

// GetCodec returns a codec instance for tag.
func GetCodec(tag uint32) (Codec, error) {
	codecRegistryMu.RLock()
	factory, ok := codecRegistry[tag]
	codecRegistryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: 0x%08x (%s)", ErrUnsupportedCodec, tag, CodecName(tag))
	}
	c, err := factory()
	if err != nil {
		return nil, fmt.Errorf("init codec %s: %w", CodecName(tag), err)
	}
	return c, nil
}

// CodecName returns the four-character name of tag.
func CodecName(tag uint32) string {
	if tag == CodecNone {
		return "none"
	}
	return string([]byte{byte(tag >> 24), byte(tag >> 16), byte(tag >> 8), byte(tag)})
}

// IsCDCodec reports whether tag is one of the CD frame codecs.
func IsCDCodec(tag uint32) bool {
	switch tag {
	case CodecCDZlib, CodecCDLZMA, CodecCDFLAC, CodecCDZstd:
		return true
	default:
		return false
	}
}

// cdCodec decodes the shared CD hunk layout:
//
//	ecc bitmap    (frames+7)/8 bytes, bit set = sync and ECC were stripped
//	base length   2 bytes, or 3 when the hunk is 64KiB or larger
//	base stream   frames*2352 sector bytes
//	sub stream    frames*96 subchannel bytes
//
// Sectors flagged in the bitmap get their sync pattern and P/Q parity
// rebuilt after decoding. The EDC is stored and left untouched.
type cdCodec struct {
	name string
	base Codec
	sub  Codec
	log  *slog.Logger
}

func (c *cdCodec) Decompress(dst, src []byte) error {
	frames := len(dst) / cdFrameSize
	lenBytes := 2
	if len(dst) >= 1<<16 {
		lenBytes = 3
	}
	eccBytes := (frames + 7) / 8
	headerBytes := eccBytes + lenBytes
	if len(src) < headerBytes {
		return fmt.Errorf("%w: %s: %d byte hunk shorter than header", ErrDecompressFailed, c.name, len(src))
	}

	baseLen := 0
	for _, b := range src[eccBytes:headerBytes] {
		baseLen = baseLen<<8 | int(b)
	}
	if headerBytes+baseLen > len(src) {
		return fmt.Errorf("%w: %s: base length %d exceeds hunk", ErrDecompressFailed, c.name, baseLen)
	}

	sectors := make([]byte, frames*(cdSectorSize+cdSubSize))
	base, sub := sectors[:frames*cdSectorSize], sectors[frames*cdSectorSize:]
	if err := c.base.Decompress(base, src[headerBytes:headerBytes+baseLen]); err != nil {
		return fmt.Errorf("%s sectors: %w", c.name, err)
	}
	if rest := src[headerBytes+baseLen:]; len(rest) > 0 {
		if err := c.sub.Decompress(sub, rest); err != nil {
			// Subchannel data is not needed to rebuild sectors.
			if c.log != nil {
				c.log.Debug("subchannel undecodable, zeroed", "codec", c.name, "frames", frames, "error", err)
			}
			clear(sub)
		}
	}

	ecc := src[:eccBytes]
	for i := range frames {
		frame := dst[i*cdFrameSize : (i+1)*cdFrameSize]
		copy(frame, base[i*cdSectorSize:(i+1)*cdSectorSize])
		copy(frame[cdSectorSize:], sub[i*cdSubSize:(i+1)*cdSubSize])
		if ecc[i/8]&(1<<(i%8)) != 0 {
			raw := (*[sector.RawSize]byte)(frame[:cdSectorSize])
			copy(raw[:], sector.Sync[:])
			lec.Default().Generate(raw)
		}
	}
	return nil
}

// inflate decodes a raw deflate stream into dst, which must be filled
// exactly.
func inflate(dst, src []byte) error {
	r := flate.NewReader(bytes.NewReader(src))
	defer func() { _ = r.Close() }()

	if _, err := io.ReadFull(r, dst); err != nil {
		return fmt.Errorf("%w: deflate: %w", ErrDecompressFailed, err)
	}
	return nil
}

// crc16 is the CRC-16/CCITT checksum stored in V5 map entries.
func crc16(data []byte) uint16 {
	crc := uint16(0xffff)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for range 8 {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
