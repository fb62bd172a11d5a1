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
	"errors"
	"fmt"
	"io"

	"github.com/mewkiz/flac"
)

func init() {
	RegisterCodec(CodecFLAC, func() (Codec, error) { return CodecFunc(unflac), nil })
	RegisterCodec(CodecCDFLAC, func() (Codec, error) { return CodecFunc(uncdflac), nil })
}

// CHD FLAC streams carry no stream header. The decoder is primed with a
// STREAMINFO block describing 44.1kHz 16-bit stereo and the block size the
// encoder picked from the hunk size.
var flacHeaderTemplate = [42]byte{
	'f', 'L', 'a', 'C',
	0x80, 0x00, 0x00, 0x22, // last block, STREAMINFO, 34 bytes
	0x00, 0x00, // min block size
	0x00, 0x00, // max block size
	0x00, 0x00, 0x00, // min frame size
	0x00, 0x00, 0x00, // max frame size
	0x0a, 0xc4, 0x42, 0xf0, // 44100Hz, 2 channels, 16 bits
	0x00, 0x00, 0x00, 0x00, // total samples
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

func flacHeader(blockSize uint16) []byte {
	h := flacHeaderTemplate
	h[0x08], h[0x09] = byte(blockSize>>8), byte(blockSize)
	h[0x0a], h[0x0b] = byte(blockSize>>8), byte(blockSize)
	return h[:]
}

// flacBlockSize halves a quarter of the hunk until it fits limit.
func flacBlockSize(n, limit int) uint16 {
	bs := n / 4
	for bs > limit {
		bs /= 2
	}
	//nolint:gosec // bounded by limit
	return uint16(bs)
}

// unflac decodes a generic FLAC hunk. The first byte names the sample byte
// order of the output: 'L' or 'B'.
func unflac(dst, src []byte) error {
	if len(src) == 0 {
		return fmt.Errorf("%w: flac: empty hunk", ErrDecompressFailed)
	}
	var bigEndian bool
	switch src[0] {
	case 'B':
		bigEndian = true
	case 'L':
	default:
		return fmt.Errorf("%w: flac: bad endian marker %#02x", ErrDecompressFailed, src[0])
	}
	return decodeFLAC(dst, flacHeader(flacBlockSize(len(dst), 2048)), src[1:], bigEndian)
}

// uncdflac decodes CD audio frames. Samples are big-endian as on the disc.
// The subchannel bytes follow the FLAC frames at an offset the decoder does
// not report, so they are left zero.
func uncdflac(dst, src []byte) error {
	frames := len(dst) / cdFrameSize
	audio := make([]byte, frames*cdSectorSize)
	if err := decodeFLAC(audio, flacHeader(flacBlockSize(len(audio), cdSectorSize)), src, true); err != nil {
		return fmt.Errorf("cdfl: %w", err)
	}
	clear(dst)
	for i := range frames {
		copy(dst[i*cdFrameSize:], audio[i*cdSectorSize:(i+1)*cdSectorSize])
	}
	return nil
}

// decodeFLAC writes interleaved 16-bit stereo samples into dst until it is
// full.
func decodeFLAC(dst, header, src []byte, bigEndian bool) error {
	stream, err := flac.New(io.MultiReader(bytes.NewReader(header), bytes.NewReader(src)))
	if err != nil {
		return fmt.Errorf("%w: flac init: %w", ErrDecompressFailed, err)
	}
	defer func() { _ = stream.Close() }()

	off := 0
	for off < len(dst) {
		f, err := stream.ParseNext()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: flac frame: %w", ErrDecompressFailed, err)
		}
		if len(f.Subframes) < 2 {
			return fmt.Errorf("%w: flac: %d channels", ErrDecompressFailed, len(f.Subframes))
		}
		left, right := f.Subframes[0].Samples, f.Subframes[1].Samples
		for i := 0; i < f.Subframes[0].NSamples && off+4 <= len(dst); i++ {
			putSample(dst[off:], left[i], bigEndian)
			putSample(dst[off+2:], right[i], bigEndian)
			off += 4
		}
	}
	if off != len(dst) {
		return fmt.Errorf("%w: flac: got %d bytes, want %d", ErrDecompressFailed, off, len(dst))
	}
	return nil
}

func putSample(b []byte, s int32, bigEndian bool) {
	if bigEndian {
		b[0], b[1] = byte(s>>8), byte(s)
		return
	}
	b[0], b[1] = byte(s), byte(s>>8)
}
