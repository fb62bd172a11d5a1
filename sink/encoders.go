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

package sink

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
)

// ErrLevel is returned for a compression level the output format does not
// accept.
var ErrLevel = errors.New("compression level out of range")

type encoder struct {
	name string
	// min and max bound Options.Level; 0 always selects the default.
	min, max int
	open     func(w io.Writer, level int) (io.WriteCloser, error)
}

var encoders = map[string]encoder{
	".gz": {name: "gzip", min: 1, max: 9, open: func(w io.Writer, level int) (io.WriteCloser, error) {
		if level == 0 {
			level = gzip.DefaultCompression
		}
		return gzip.NewWriterLevel(w, level) //nolint:wrapcheck // wrapped by Create
	}},
	".zst": {name: "zstd", min: 1, max: 22, open: func(w io.Writer, level int) (io.WriteCloser, error) {
		lvl := zstd.SpeedDefault
		if level != 0 {
			lvl = zstd.EncoderLevelFromZstd(level)
		}
		return zstd.NewWriter(w, zstd.WithEncoderLevel(lvl)) //nolint:wrapcheck // wrapped by Create
	}},
	".xz": {name: "xz", min: 0, max: 0, open: func(w io.Writer, _ int) (io.WriteCloser, error) {
		return xz.NewWriter(w) //nolint:wrapcheck // wrapped by Create
	}},
	".lz4": {name: "lz4", min: 1, max: 9, open: func(w io.Writer, level int) (io.WriteCloser, error) {
		zw := lz4.NewWriter(w)
		if level != 0 {
			lvl := lz4.CompressionLevel(1 << (8 + level))
			if err := zw.Apply(lz4.CompressionLevelOption(lvl)); err != nil {
				return nil, err //nolint:wrapcheck // wrapped by Create
			}
		}
		return zw, nil
	}},
	".br": {name: "brotli", min: 1, max: 11, open: func(w io.Writer, level int) (io.WriteCloser, error) {
		if level == 0 {
			level = brotli.DefaultCompression
		}
		return brotli.NewWriterLevel(w, level), nil
	}},
}

// IsCompressed reports whether writing to path produces a compressed
// stream.
func IsCompressed(path string) bool {
	_, ok := encoders[strings.ToLower(filepath.Ext(path))]
	return ok
}

func newEncoder(path string, w io.Writer, level int) (io.WriteCloser, string, error) {
	enc, ok := encoders[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil, "", nil
	}
	if level != 0 && (level < enc.min || level > enc.max) {
		return nil, "", fmt.Errorf("%w: %s accepts %d..%d, got %d", ErrLevel, enc.name, enc.min, enc.max, level)
	}
	wc, err := enc.open(w, level)
	if err != nil {
		return nil, "", fmt.Errorf("create %s encoder: %w", enc.name, err)
	}
	return wc, enc.name, nil
}
