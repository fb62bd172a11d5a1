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

package iso2raw

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"github.com/sftwninja/iso2raw/console"
	"github.com/sftwninja/iso2raw/convert"
	"github.com/sftwninja/iso2raw/internal/binary"
	"github.com/sftwninja/iso2raw/sector"
)

// buildISO returns a cooked image with a primary volume descriptor at
// block 16 and a terminator at block 17. Every other block holds a
// pattern unique to its index.
func buildISO(blocks int, xa bool) []byte {
	data := make([]byte, blocks*sector.UserDataSize)
	for i := range data {
		data[i] = byte(i*7 + i/sector.UserDataSize)
	}

	pvd := data[16*sector.UserDataSize : 17*sector.UserDataSize]
	clear(pvd)
	pvd[0] = 1
	copy(pvd[1:], "CD001")
	pvd[6] = 1
	copy(pvd[40:], "TEST_VOLUME")
	binary.PutUint32Both(pvd[80:88], uint32(blocks)) //nolint:gosec // test sizes are small
	binary.PutUint16Both(pvd[128:132], sector.UserDataSize)
	if xa {
		copy(pvd[1024:], "CD-XA001")
	}

	term := data[17*sector.UserDataSize : 18*sector.UserDataSize]
	clear(term)
	term[0] = 255
	copy(term[1:], "CD001")
	term[6] = 1
	return data
}

func writeInput(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// checkRaw asserts that raw is the MODE1/2352 form of iso.
func checkRaw(t *testing.T, iso, raw []byte) {
	t.Helper()
	n := len(iso) / sector.UserDataSize
	if len(raw) != n*sector.RawSize {
		t.Fatalf("output is %d bytes, want %d", len(raw), n*sector.RawSize)
	}
	for i := range n {
		s := (*[sector.RawSize]byte)(raw[i*sector.RawSize:])
		if err := sector.Verify(s, int64(i), int64(i)); err != nil {
			t.Fatalf("sector %d: %v", i, err)
		}
		if !bytes.Equal(sector.UserData(s)[:], iso[i*sector.UserDataSize:(i+1)*sector.UserDataSize]) {
			t.Fatalf("sector %d: user data differs", i)
		}
	}
}

func TestConvert(t *testing.T) {
	t.Parallel()

	iso := buildISO(40, false)
	in := writeInput(t, "disc.iso", iso)

	res, err := Convert(context.Background(), in, "", Options{
		Workers:      3,
		ChunkSectors: 5,
		Cue:          true,
		Digest:       true,
	})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}

	wantOut := filepath.Join(filepath.Dir(in), "disc.bin")
	if res.Output != wantOut || res.Format != "raw" || res.Stats.Sectors != 40 {
		t.Errorf("result = %+v", res)
	}
	if res.Volume == nil || res.Volume.VolumeID != "TEST_VOLUME" {
		t.Errorf("volume = %+v", res.Volume)
	}

	raw, err := os.ReadFile(wantOut)
	if err != nil {
		t.Fatal(err)
	}
	checkRaw(t, iso, raw)

	sum := blake3.Sum256(raw)
	if !bytes.Equal(res.Digest, sum[:]) {
		t.Errorf("digest = %x, want %x", res.Digest, sum)
	}

	sheet, err := os.ReadFile(filepath.Join(filepath.Dir(in), "disc.cue"))
	if err != nil {
		t.Fatalf("cue sheet: %v", err)
	}
	if !bytes.HasPrefix(sheet, []byte(`FILE "disc.bin" BINARY`)) {
		t.Errorf("cue sheet = %q", sheet)
	}
}

func TestConvertDetectsConsole(t *testing.T) {
	t.Parallel()

	iso := buildISO(20, false)
	copy(iso, "SEGA SEGASATURN SEGA ENTERPRISESMK-81009 ")
	copy(iso[0x60:], "NiGHTS into dreams...")
	in := writeInput(t, "nights.iso", iso)

	res, err := Convert(context.Background(), in, "", Options{})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if res.Console == nil || res.Console.Console != console.Saturn || res.Console.ID != "MK-81009" {
		t.Errorf("Console = %+v", res.Console)
	}

	plain, err := Convert(context.Background(), writeInput(t, "plain.iso", buildISO(20, false)), "", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if plain.Console != nil {
		t.Errorf("Console = %+v for an image without boot header", plain.Console)
	}
}

func TestConvertOrderedMatchesDirect(t *testing.T) {
	t.Parallel()

	iso := buildISO(33, false)
	in := writeInput(t, "disc.iso", iso)
	dir := t.TempDir()

	var outputs [][]byte
	for _, ordered := range []bool{false, true} {
		out := filepath.Join(dir, "out.bin")
		if _, err := Convert(context.Background(), in, out, Options{Workers: 4, ChunkSectors: 2, Ordered: ordered}); err != nil {
			t.Fatalf("Convert(ordered=%v): %v", ordered, err)
		}
		raw, err := os.ReadFile(out)
		if err != nil {
			t.Fatal(err)
		}
		outputs = append(outputs, raw)
	}
	if !bytes.Equal(outputs[0], outputs[1]) {
		t.Error("ordered and direct conversions differ")
	}
	checkRaw(t, iso, outputs[0])
}

func TestConvertCompressedOutput(t *testing.T) {
	t.Parallel()

	iso := buildISO(20, false)
	in := writeInput(t, "disc.iso", iso)
	out := filepath.Join(t.TempDir(), "disc.bin.zst")

	res, err := Convert(context.Background(), in, out, Options{Workers: 2, Digest: true})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if res.Format != "zstd" {
		t.Errorf("Format = %q", res.Format)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = f.Close() }()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	defer dec.Close()
	raw, err := io.ReadAll(dec)
	if err != nil {
		t.Fatal(err)
	}
	checkRaw(t, iso, raw)

	sum := blake3.Sum256(raw)
	if !bytes.Equal(res.Digest, sum[:]) {
		t.Error("digest is not over the uncompressed image")
	}
}

func TestConvertArchiveMember(t *testing.T) {
	t.Parallel()

	iso := buildISO(18, false)
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("images/game.iso")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(iso); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	arc := writeInput(t, "disc.zip", buf.Bytes())

	res, err := Convert(context.Background(), arc, "", Options{})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if want := filepath.Join(filepath.Dir(arc), "disc.bin"); res.Output != want {
		t.Errorf("Output = %q, want %q", res.Output, want)
	}
	raw, err := os.ReadFile(res.Output)
	if err != nil {
		t.Fatal(err)
	}
	checkRaw(t, iso, raw)
}

func TestConvertPlainData(t *testing.T) {
	t.Parallel()

	data := bytes.Repeat([]byte{0xa5, 0x5a, 0x01}, 2048*3)
	in := writeInput(t, "blob.img", data)
	res, err := Convert(context.Background(), in, "", Options{})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if res.Volume != nil {
		t.Errorf("Volume = %+v, want nil for data without descriptors", res.Volume)
	}
	raw, err := os.ReadFile(res.Output)
	if err != nil {
		t.Fatal(err)
	}
	checkRaw(t, data, raw)
}

func TestConvertRejects(t *testing.T) {
	t.Parallel()

	var block [sector.UserDataSize]byte
	var rawImage []byte
	for i := range 4 {
		raw := sector.Assemble(uint32(i), &block) //nolint:gosec // small index
		rawImage = append(rawImage, raw[:]...)
	}

	tests := []struct {
		name  string
		data  []byte
		out   string
		opts  Options
		check func(error) bool
	}{
		{"empty", nil, "", Options{}, func(err error) bool { return errors.Is(err, ErrEmpty) }},
		{"partial sector", make([]byte, 2049), "", Options{}, func(err error) bool {
			var se convert.SizeError
			return errors.As(err, &se)
		}},
		{"already raw", rawImage, "", Options{}, func(err error) bool { return errors.Is(err, ErrAlreadyRaw) }},
		{"xa volume", buildISO(20, true), "", Options{}, func(err error) bool { return errors.Is(err, ErrXA) }},
		{"cue for compressed output", buildISO(20, false), "disc.bin.gz", Options{Cue: true}, func(err error) bool {
			return errors.Is(err, ErrCueCompressed)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			in := writeInput(t, "disc.iso", tt.data)
			dir := filepath.Dir(in)
			out := tt.out
			if out != "" {
				out = filepath.Join(dir, out)
			}
			_, err := Convert(context.Background(), in, out, tt.opts)
			if !tt.check(err) {
				t.Fatalf("Convert err = %v", err)
			}
			entries, _ := os.ReadDir(dir)
			if len(entries) != 1 {
				t.Errorf("output created despite rejection: %v", entries)
			}
		})
	}
}

func TestConvertSyncPrefixedISO(t *testing.T) {
	t.Parallel()

	// 147 cooked blocks are also a whole number of raw sectors.
	iso := buildISO(147, false)
	copy(iso, sector.Sync[:])
	in := writeInput(t, "synced.iso", iso)

	res, err := Convert(context.Background(), in, "", Options{})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if res.Volume == nil || res.Stats.Sectors != 147 {
		t.Errorf("result = %+v", res)
	}
	raw, err := os.ReadFile(res.Output)
	if err != nil {
		t.Fatal(err)
	}
	checkRaw(t, iso, raw)
}

func TestConvertPathErrors(t *testing.T) {
	t.Parallel()

	in := writeInput(t, "disc.iso", buildISO(20, false))
	if _, err := Convert(context.Background(), in, in, Options{}); !errors.Is(err, ErrSamePath) {
		t.Errorf("same path err = %v", err)
	}
	rel, err := filepath.Rel(".", in)
	if err == nil {
		if _, err := Convert(context.Background(), in, rel, Options{}); !errors.Is(err, ErrSamePath) {
			t.Errorf("relative same path err = %v", err)
		}
	}
	if _, err := Convert(context.Background(), "-", "", Options{}); !errors.Is(err, ErrNoOutput) {
		t.Errorf("stdin without output err = %v", err)
	}
	if _, err := Convert(context.Background(), filepath.Join(t.TempDir(), "nope.iso"), "", Options{}); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing input err = %v", err)
	}
}

func TestConvertCancelled(t *testing.T) {
	t.Parallel()

	in := writeInput(t, "disc.iso", buildISO(64, false))
	out := filepath.Join(t.TempDir(), "disc.bin")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Convert(ctx, in, out, Options{Workers: 2, ChunkSectors: 1}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	entries, _ := os.ReadDir(filepath.Dir(out))
	if len(entries) != 0 {
		t.Errorf("cancelled conversion left %v", entries)
	}
}

func TestDefaultOutputPath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	arc := filepath.Join(dir, "pack.zip")
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	if _, err := zw.Create("sub/Game.iso"); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(arc, buf.Bytes(), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		in   string
		want string
	}{
		{"game.iso", "game.bin"},
		{filepath.Join("roms", "game.iso"), filepath.Join("roms", "game.bin")},
		{"game.iso.zst", "game.bin"},
		{"game.iso.gz", "game.bin"},
		{"game", "game.bin"},
		{"game.chd", "game.bin"},
		{arc + "/sub/Game.iso", filepath.Join(dir, "Game.bin")},
		{"-", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := DefaultOutputPath(tt.in); got != tt.want {
			t.Errorf("DefaultOutputPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCuePath(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"game.bin":                          "game.cue",
		"game.bin.zst":                      "game.cue",
		filepath.Join("out", "My Game.raw"): filepath.Join("out", "My Game.cue"),
	}
	for in, want := range tests {
		if got := CuePath(in); got != want {
			t.Errorf("CuePath(%q) = %q, want %q", in, got, want)
		}
	}
}
