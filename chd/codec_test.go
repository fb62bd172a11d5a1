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
	"log/slog"
	"strings"
	"testing"

	"github.com/sftwninja/iso2raw/sector"
)

func TestCRC16(t *testing.T) {
	t.Parallel()

	if got := crc16([]byte("123456789")); got != 0x29b1 {
		t.Errorf("crc16 check value = %#04x, want 0x29b1", got)
	}
	if got := crc16(nil); got != 0xffff {
		t.Errorf("crc16(nil) = %#04x, want 0xffff", got)
	}
}

func TestCodecName(t *testing.T) {
	t.Parallel()

	tests := map[uint32]string{
		CodecNone:   "none",
		CodecZlib:   "zlib",
		CodecCDLZMA: "cdlz",
		CodecCDZstd: "cdzs",
		CodecCDFLAC: "cdfl",
	}
	for tag, want := range tests {
		if got := CodecName(tag); got != want {
			t.Errorf("CodecName(%#08x) = %q, want %q", tag, got, want)
		}
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	for _, tag := range []uint32{CodecZlib, CodecLZMA, CodecZstd, CodecFLAC, CodecCDZlib, CodecCDLZMA, CodecCDZstd, CodecCDFLAC} {
		if _, err := GetCodec(tag); err != nil {
			t.Errorf("GetCodec(%s): %v", CodecName(tag), err)
		}
		if IsCDCodec(tag) != (CodecName(tag)[:2] == "cd") {
			t.Errorf("IsCDCodec(%s) wrong", CodecName(tag))
		}
	}
	if _, err := GetCodec(CodecHuff); !errors.Is(err, ErrUnsupportedCodec) {
		t.Errorf("GetCodec(huff) err = %v, want ErrUnsupportedCodec", err)
	}
}

func TestLZMADictSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		size, want uint32
	}{
		{1, 4096},
		{4096, 4096},
		{4097, 6144},
		{8 * 2352, 3 << 13},
		{8 * 2448, 3 << 13},
		{1 << 20, 1 << 20},
		{1<<20 + 1, 3 << 19},
	}
	for _, tt := range tests {
		if got := lzmaDictSize(tt.size); got != tt.want {
			t.Errorf("lzmaDictSize(%d) = %d, want %d", tt.size, got, tt.want)
		}
	}
}

// cdHunk holds four MODE1 sectors, an all-zero frame and an audio-like
// frame, each followed by a recognisable subchannel.
func cdHunk() []byte {
	data := userData(4)
	var hunk []byte
	for j := range data {
		raw := sector.Assemble(uint32(100+j), &data[j]) //nolint:gosec // small
		hunk = append(hunk, raw[:]...)
		hunk = append(hunk, bytes.Repeat([]byte{byte(j + 1)}, cdSubSize)...)
	}
	hunk = append(hunk, make([]byte, cdFrameSize)...)
	audio := make([]byte, cdFrameSize)
	for i := range cdSectorSize {
		audio[i] = byte(i * 5)
	}
	return append(hunk, audio...)
}

func TestCDCodecsRoundTrip(t *testing.T) {
	t.Parallel()

	for _, tag := range []uint32{CodecCDZlib, CodecCDZstd, CodecCDLZMA} {
		t.Run(CodecName(tag), func(t *testing.T) {
			t.Parallel()

			hunk := cdHunk()
			src := encodeCDHunk(t, tag, hunk)
			if src[0] != 0x0f {
				t.Fatalf("ecc bitmap = %#02x, want 0x0f", src[0])
			}

			codec, err := GetCodec(tag)
			if err != nil {
				t.Fatal(err)
			}
			dst := make([]byte, len(hunk))
			if err := codec.Decompress(dst, src); err != nil {
				t.Fatalf("Decompress: %v", err)
			}
			if !bytes.Equal(dst, hunk) {
				t.Error("decoded hunk differs from original")
			}
		})
	}
}

func TestCDCodecErrors(t *testing.T) {
	t.Parallel()

	codec, err := GetCodec(CodecCDZlib)
	if err != nil {
		t.Fatal(err)
	}
	dst := make([]byte, 4*cdFrameSize)

	if err := codec.Decompress(dst, []byte{0}); !errors.Is(err, ErrDecompressFailed) {
		t.Errorf("short hunk err = %v", err)
	}
	if err := codec.Decompress(dst, []byte{0, 0xff, 0xff, 1, 2}); !errors.Is(err, ErrDecompressFailed) {
		t.Errorf("oversized base length err = %v", err)
	}
	if err := codec.Decompress(dst, []byte{0, 0, 3, 1, 2, 3}); !errors.Is(err, ErrDecompressFailed) {
		t.Errorf("garbage base err = %v", err)
	}
}

func TestCDCodecBadSubchannel(t *testing.T) {
	t.Parallel()

	hunk := cdHunk()
	src := encodeCDHunk(t, CodecCDZlib, hunk)
	baseLen := int(src[1])<<8 | int(src[2])
	src = append(src[:3+baseLen:3+baseLen], 0xff, 0xff)

	var logs bytes.Buffer
	codec := &cdCodec{
		name: "cdzl",
		base: CodecFunc(inflate),
		sub:  CodecFunc(inflate),
		log:  slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
	}
	dst := make([]byte, len(hunk))
	if err := codec.Decompress(dst, src); err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	for i := range len(hunk) / cdFrameSize {
		frame := i * cdFrameSize
		if !bytes.Equal(dst[frame:frame+cdSectorSize], hunk[frame:frame+cdSectorSize]) {
			t.Errorf("frame %d sector differs", i)
		}
		if sub := dst[frame+cdSectorSize : frame+cdFrameSize]; !bytes.Equal(sub, make([]byte, cdSubSize)) {
			t.Errorf("frame %d subchannel not zeroed", i)
		}
	}
	if !strings.Contains(logs.String(), "subchannel undecodable") || !strings.Contains(logs.String(), "codec=cdzl") {
		t.Errorf("log = %q", logs.String())
	}
}

func TestZstdWrongSize(t *testing.T) {
	t.Parallel()

	codec, err := GetCodec(CodecZstd)
	if err != nil {
		t.Fatal(err)
	}
	src := zstdBytes(t, make([]byte, 100))
	if err := codec.Decompress(make([]byte, 200), src); !errors.Is(err, ErrDecompressFailed) {
		t.Errorf("short output err = %v", err)
	}
	dst := make([]byte, 100)
	if err := codec.Decompress(dst, src); err != nil {
		t.Errorf("exact output: %v", err)
	}
}

func TestFLACHeader(t *testing.T) {
	t.Parallel()

	h := flacHeader(588)
	if string(h[:4]) != "fLaC" || len(h) != 42 {
		t.Fatalf("header = %x", h)
	}
	if h[8] != 0x02 || h[9] != 0x4c || h[10] != 0x02 || h[11] != 0x4c {
		t.Errorf("block sizes = %x", h[8:12])
	}
	if flacHeaderTemplate[8] != 0 {
		t.Error("template modified")
	}

	if got := flacBlockSize(8*cdSectorSize, cdSectorSize); got != 2352 {
		t.Errorf("cd block size = %d, want 2352", got)
	}
	if got := flacBlockSize(8*cdSectorSize, 2048); got != 1176 {
		t.Errorf("generic block size = %d, want 1176", got)
	}
}

func TestFLACRejectsGarbage(t *testing.T) {
	t.Parallel()

	dst := make([]byte, 4*cdFrameSize)
	if err := unflac(dst, nil); !errors.Is(err, ErrDecompressFailed) {
		t.Errorf("empty err = %v", err)
	}
	if err := unflac(dst, []byte{'X', 1, 2}); !errors.Is(err, ErrDecompressFailed) {
		t.Errorf("bad marker err = %v", err)
	}
	if err := uncdflac(dst, []byte{1, 2, 3, 4}); !errors.Is(err, ErrDecompressFailed) {
		t.Errorf("garbage cdfl err = %v", err)
	}
}
