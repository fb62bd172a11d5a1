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
	"fmt"

	"github.com/klauspost/compress/zstd"
)

func init() {
	RegisterCodec(CodecZstd, func() (Codec, error) { return newZstdCodec() })
	RegisterCodec(CodecCDZstd, func() (Codec, error) {
		z, err := newZstdCodec()
		if err != nil {
			return nil, err
		}
		return &cdCodec{name: "cdzs", base: z, sub: z}, nil
	})
}

// zstdCodec wraps one shared decoder; DecodeAll is safe for concurrent use.
type zstdCodec struct {
	decoder *zstd.Decoder
}

func newZstdCodec() (*zstdCodec, error) {
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		return nil, fmt.Errorf("zstd init: %w", err)
	}
	return &zstdCodec{decoder: dec}, nil
}

func (z *zstdCodec) Decompress(dst, src []byte) error {
	out, err := z.decoder.DecodeAll(src, dst[:0])
	if err != nil {
		return fmt.Errorf("%w: zstd: %w", ErrDecompressFailed, err)
	}
	if len(out) != len(dst) {
		return fmt.Errorf("%w: zstd: got %d bytes, want %d", ErrDecompressFailed, len(out), len(dst))
	}
	copy(dst, out)
	return nil
}
