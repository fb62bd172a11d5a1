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

// Package iso2raw converts 2048-byte ISO 9660 images into raw MODE1/2352
// CD-ROM images. Every output sector carries the sync pattern, a BCD
// address header, the EDC checksum and the P/Q Reed-Solomon parity a drive
// or emulator expects.
//
// Inputs may be plain files, optical drives, compressed streams, members of
// zip/7z/rar archives or the data track of a CHD. Outputs may be plain
// .bin files or compressed streams.
package iso2raw

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/sftwninja/iso2raw/archive"
	"github.com/sftwninja/iso2raw/console"
	"github.com/sftwninja/iso2raw/convert"
	"github.com/sftwninja/iso2raw/iso9660"
	"github.com/sftwninja/iso2raw/sector"
	"github.com/sftwninja/iso2raw/sink"
	"github.com/sftwninja/iso2raw/source"
)

var (
	// ErrSamePath is returned when the output would overwrite the input.
	ErrSamePath = errors.New("input and output are the same file")
	// ErrNoOutput is returned when no output path was given and none can
	// be derived, e.g. for standard input.
	ErrNoOutput = errors.New("no output path")
	// ErrEmpty is returned for a zero-length input.
	ErrEmpty = errors.New("input image is empty")
	// ErrAlreadyRaw is returned when the input already starts with a raw
	// sector sync pattern.
	ErrAlreadyRaw = errors.New("input already holds raw 2352-byte sectors")
	// ErrXA is returned for CD-XA volumes, whose sectors are MODE2.
	ErrXA = errors.New("CD-XA volume needs MODE2 sectors, only MODE1 is supported")
	// ErrCueCompressed is returned when a cue sheet is requested for a
	// compressed output, which no cue consumer can read.
	ErrCueCompressed = errors.New("cue sheets need an uncompressed output")
)

// Options configure Convert. The zero value converts with every CPU, the
// default chunk size, no cue sheet and no digest.
type Options struct {
	Logger   *slog.Logger
	Progress convert.Progress
	// TempDir receives decompressed copies of streamed inputs.
	TempDir      string
	Workers      int
	ChunkSectors int
	// Level is the compression level for compressed outputs.
	Level int
	// Cue writes a cue sheet next to the output.
	Cue bool
	// Digest computes the BLAKE3 digest of the output image.
	Digest bool
	// Ordered forces sequential appends even when the output supports
	// offset writes.
	Ordered bool
}

// Result describes a finished conversion.
type Result struct {
	// Volume is nil when the input carries no ISO 9660 descriptors.
	Volume *iso9660.Volume
	// Console is nil unless a known boot header opens the image.
	Console   *console.Info
	Input     string
	Output    string
	CuePath   string
	Format    string
	Digest    []byte
	Stats     convert.Stats
	InputKind source.Kind
}

// Convert reads the image at in and writes its raw MODE1/2352 form to out.
// An empty out selects DefaultOutputPath(in); "-" writes to standard
// output. Preconditions are checked before the output is created, and a
// failed or cancelled conversion leaves nothing at out.
func Convert(ctx context.Context, in, out string, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if out == "" {
		out = DefaultOutputPath(in)
		if out == "" {
			return nil, ErrNoOutput
		}
	}
	if same, err := samePath(in, out); err != nil {
		return nil, err
	} else if same {
		return nil, fmt.Errorf("%s: %w", out, ErrSamePath)
	}
	if opts.Cue {
		switch {
		case out == sink.Stdout:
			return nil, sink.ErrCueStdout
		case sink.IsCompressed(out):
			return nil, fmt.Errorf("%s: %w", out, ErrCueCompressed)
		}
	}

	src, err := source.Open(in, source.Options{TempDir: opts.TempDir, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer func() { _ = src.Close() }()

	res := &Result{Input: src.Name(), Output: out, InputKind: src.Kind()}
	sectors, vol, err := inspect(src, logger)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", src.Name(), err)
	}
	res.Volume = vol
	if info, err := console.Detect(src, src.Size()); err == nil {
		res.Console = info
		logger.Debug("detected console", "console", info.Console, "id", info.ID, "title", info.Title)
	} else if !errors.Is(err, console.ErrUnknown) {
		logger.Warn("boot header unreadable", "error", err)
	}

	snk, err := sink.Create(out, sink.Options{
		Logger: logger,
		Size:   sectors * sector.RawSize,
		Level:  opts.Level,
		Digest: opts.Digest,
	})
	if err != nil {
		return nil, fmt.Errorf("create output: %w", err)
	}
	res.Format = snk.Format()

	conv := convert.New(convert.Options{
		Progress:     opts.Progress,
		Logger:       logger,
		Workers:      opts.Workers,
		ChunkSectors: opts.ChunkSectors,
		Ordered:      opts.Ordered,
	})
	res.Stats, err = conv.Run(ctx, src, sectors, snk.Writer())
	if err != nil {
		_ = snk.Abort()
		return nil, fmt.Errorf("convert %s: %w", src.Name(), err)
	}
	if err := snk.Commit(); err != nil {
		return nil, fmt.Errorf("finish output: %w", err)
	}
	res.Digest = snk.Digest()

	if opts.Cue {
		res.CuePath = CuePath(out)
		if err := snk.WriteCue(res.CuePath); err != nil {
			return res, err //nolint:wrapcheck // names the sheet already
		}
	}
	logger.Info("converted image",
		"input", res.Input, "output", out, "sectors", res.Stats.Sectors, "elapsed", res.Stats.Elapsed)
	return res, nil
}

// inspect validates the input before any output exists.
func inspect(src *source.Image, logger *slog.Logger) (int64, *iso9660.Volume, error) {
	if src.Size() == 0 {
		return 0, nil, ErrEmpty
	}
	raw, err := iso9660.LooksRaw(src, src.Size())
	if err != nil {
		return 0, nil, err //nolint:wrapcheck // names the failed read
	}
	if raw {
		return 0, nil, ErrAlreadyRaw
	}
	sectors, err := convert.CheckSize(src.Size())
	if err != nil {
		return 0, nil, err //nolint:wrapcheck // SizeError is descriptive
	}

	vol, err := iso9660.Inspect(src, src.Size())
	switch {
	case errors.Is(err, iso9660.ErrPVDNotFound),
		errors.Is(err, iso9660.ErrInvalidPVD),
		errors.Is(err, iso9660.ErrUnsupportedSize):
		logger.Debug("no usable ISO 9660 volume, converting as plain data", "reason", err)
		return sectors, nil, nil
	case err != nil:
		return 0, nil, err //nolint:wrapcheck // names the descriptor
	}
	if vol.IsXA() {
		return 0, nil, ErrXA
	}
	if vs := vol.Size(); vs > src.Size() {
		logger.Warn("image is shorter than its volume", "image", src.Size(), "volume", vs)
	}
	logger.Debug("inspected volume", "volume_id", vol.VolumeID, "system_id", vol.SystemID, "blocks", vol.SpaceSize)
	return sectors, vol, nil
}

// DefaultOutputPath derives the output for in: its base name with a .bin
// extension, in the directory of the input (or of the archive holding
// it). Compression extensions are dropped first, so "game.iso.zst" maps
// to "game.bin". It returns "" for standard input.
func DefaultOutputPath(in string) string {
	if in == source.Stdin || in == "" {
		return ""
	}
	dir, name := filepath.Split(in)
	if archive.IsArchivePath(in) {
		if ap, ok, err := archive.ParsePath(in); err == nil && ok && ap.InternalPath != "" {
			dir = filepath.Dir(ap.ArchivePath) + string(filepath.Separator)
			name = filepath.Base(filepath.FromSlash(ap.InternalPath))
		}
	}
	for source.IsCompressed(name) {
		name = strings.TrimSuffix(name, filepath.Ext(name))
	}
	return dir + strings.TrimSuffix(name, filepath.Ext(name)) + ".bin"
}

// CuePath returns the cue sheet path that accompanies the image at out.
func CuePath(out string) string {
	for sink.IsCompressed(out) {
		out = strings.TrimSuffix(out, filepath.Ext(out))
	}
	return strings.TrimSuffix(out, filepath.Ext(out)) + ".cue"
}

// samePath reports whether in and out name one file. Archive inputs are
// compared by the archive itself.
func samePath(in, out string) (bool, error) {
	if in == source.Stdin || out == sink.Stdout {
		return false, nil
	}
	if ap, ok, err := archive.ParsePath(in); err == nil && ok {
		in = ap.ArchivePath
	}
	ai, err := filepath.Abs(in)
	if err != nil {
		return false, fmt.Errorf("resolve input: %w", err)
	}
	ao, err := filepath.Abs(out)
	if err != nil {
		return false, fmt.Errorf("resolve output: %w", err)
	}
	if ai == ao {
		return true, nil
	}
	si, err := os.Stat(ai)
	if err != nil {
		return false, nil //nolint:nilerr // a missing input is reported by Open
	}
	so, err := os.Stat(ao)
	if err != nil {
		return false, nil //nolint:nilerr // output does not exist yet
	}
	return os.SameFile(si, so), nil
}
