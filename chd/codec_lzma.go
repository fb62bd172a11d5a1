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

	"github.com/ulikunitz/xz/lzma"
)

func init() {
	RegisterCodec(CodecLZMA, func() (Codec, error) { return CodecFunc(unlzma), nil })
	RegisterCodec(CodecCDLZMA, func() (Codec, error) {
		return &cdCodec{name: "cdlz", base: CodecFunc(unlzma), sub: CodecFunc(inflate)}, nil
	})
}

// lzmaProps is lc=3, lp=0, pb=2.
const lzmaProps = 0x5d

// lzmaDictSize reproduces LzmaEncProps_Normalize for a stream whose size is
// known up front: the smallest 2<<i or 3<<i that holds it.
func lzmaDictSize(size uint32) uint32 {
	for i := uint32(11); i <= 30; i++ {
		if size <= 2<<i {
			return 2 << i
		}
		if size <= 3<<i {
			return 3 << i
		}
	}
	return 1 << 26
}

// unlzma decodes a headerless LZMA stream. CHD omits the 13-byte header and
// derives the properties from the output size, so one is synthesized here.
func unlzma(dst, src []byte) error {
	var hdr [13]byte
	hdr[0] = lzmaProps
	//nolint:gosec // hunk sizes are bounded by MaxHunkBytes
	binary.LittleEndian.PutUint32(hdr[1:5], lzmaDictSize(uint32(len(dst))))
	binary.LittleEndian.PutUint64(hdr[5:13], uint64(len(dst)))

	r, err := lzma.NewReader(io.MultiReader(bytes.NewReader(hdr[:]), bytes.NewReader(src)))
	if err != nil {
		return fmt.Errorf("%w: lzma init: %w", ErrDecompressFailed, err)
	}
	if _, err := io.ReadFull(r, dst); err != nil {
		return fmt.Errorf("%w: lzma: %w", ErrDecompressFailed, err)
	}
	return nil
}
