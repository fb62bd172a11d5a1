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

// Package source opens conversion inputs as random-access 2048-byte sector
// images: plain ISO files, optical drives, compressed streams, archive
// members, CHD data tracks and standard input.
package source

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"

	"github.com/sftwninja/iso2raw/archive"
	"github.com/sftwninja/iso2raw/chd"
	"github.com/sftwninja/iso2raw/internal/spool"
)

// Stdin is the path that selects standard input.
const Stdin = "-"

// Kind is the kind of input an Image was opened from.
type Kind int

// Input kinds.
const (
	KindFile Kind = iota
	KindBlockDevice
	KindCompressed
	KindArchive
	KindCHD
	KindStream
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindBlockDevice:
		return "block device"
	case KindCompressed:
		return "compressed"
	case KindArchive:
		return "archive"
	case KindCHD:
		return "chd"
	case KindStream:
		return "stream"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ErrNotRegular is returned for directories, sockets and other inputs that
// cannot hold a disc image.
var ErrNotRegular = errors.New("not a regular file or block device")

// Options tune Open.
type Options struct {
	// TempDir receives spooled copies of streamed inputs. Empty means
	// os.TempDir.
	TempDir string
	Logger  *slog.Logger
}

// Image is an opened input. It is safe for concurrent ReadAt calls.
type Image struct {
	r       io.ReaderAt
	closers []io.Closer
	name    string
	kind    Kind
	size    int64
}

// ReadAt implements io.ReaderAt.
func (im *Image) ReadAt(p []byte, off int64) (int, error) {
	return im.r.ReadAt(p, off) //nolint:wrapcheck // ReaderAt passthrough
}

// Size returns the image size in bytes.
func (im *Image) Size() int64 { return im.size }

// Kind returns how the image was opened.
func (im *Image) Kind() Kind { return im.kind }

// Name describes the image for messages, e.g. "disc.7z/game.iso".
func (im *Image) Name() string { return im.name }

// Close releases everything Open acquired, innermost first.
func (im *Image) Close() error {
	var errs []error
	for _, c := range im.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// compressors maps stream extensions to decoders.
var compressors = map[string]func(io.Reader) (io.Reader, error){
	".gz": func(r io.Reader) (io.Reader, error) {
		return gzip.NewReader(r) //nolint:wrapcheck // wrapped by the caller
	},
	".xz": func(r io.Reader) (io.Reader, error) {
		return xz.NewReader(r) //nolint:wrapcheck // wrapped by the caller
	},
	".zst": func(r io.Reader) (io.Reader, error) {
		d, err := zstd.NewReader(r)
		if err != nil {
			return nil, err //nolint:wrapcheck // wrapped by the caller
		}
		return d.IOReadCloser(), nil
	},
	".lz4": func(r io.Reader) (io.Reader, error) {
		return lz4.NewReader(r), nil
	},
	".br": func(r io.Reader) (io.Reader, error) {
		return brotli.NewReader(r), nil
	},
}

// IsCompressed reports whether path names a compressed stream Open can
// decode.
func IsCompressed(path string) bool {
	_, ok := compressors[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Open opens path as a 2048-byte sector image. The kind is chosen from the
// path: "-" is standard input, archive paths (optionally with an inner
// member) go through the archive package, .chd files yield their MODE1
// data track, compressed streams are decoded into a temporary file and
// anything else is opened directly.
func Open(path string, opts Options) (*Image, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	im, err := open(path, opts)
	if err != nil {
		return nil, err
	}
	logger.Debug("opened input", "path", path, "kind", im.kind, "size", im.size)
	return im, nil
}

func open(path string, opts Options) (*Image, error) {
	if path == Stdin {
		return openStream(os.Stdin, "stdin", KindStream, opts)
	}

	ap, ok, err := archive.ParsePath(path)
	if err != nil {
		return nil, err //nolint:wrapcheck // already names the archive
	}
	if ok {
		return openArchive(ap)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".chd" {
		return openCHD(path, opts)
	}
	if decode, ok := compressors[ext]; ok {
		return openCompressed(path, decode, opts)
	}
	return openFile(path)
}

func openFile(path string) (*Image, error) {
	f, err := os.Open(path) //nolint:gosec // user-supplied path is expected
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat input: %w", err)
	}

	im := &Image{r: f, closers: []io.Closer{f}, name: path, kind: KindFile, size: info.Size()}
	switch {
	case info.Mode().IsRegular():
	case isBlockDevice(info):
		im.kind = KindBlockDevice
		if im.size, err = deviceSize(f); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("size of %s: %w", path, err)
		}
	default:
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w", path, ErrNotRegular)
	}
	return im, nil
}

func openCompressed(path string, decode func(io.Reader) (io.Reader, error), opts Options) (*Image, error) {
	f, err := os.Open(path) //nolint:gosec // user-supplied path is expected
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer func() { _ = f.Close() }()

	r, err := decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if c, ok := r.(io.Closer); ok {
		defer func() { _ = c.Close() }()
	}
	return openStream(r, path, KindCompressed, opts)
}

// openStream spools a sequential stream into a temporary file.
func openStream(r io.Reader, name string, kind Kind, opts Options) (*Image, error) {
	sf, err := spool.Copy(r, opts.TempDir, "iso2raw-*.iso", -1)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return &Image{r: sf, closers: []io.Closer{sf}, name: name, kind: kind, size: sf.Size()}, nil
}

func openArchive(ap archive.Path) (*Image, error) {
	arc, err := archive.Open(ap.ArchivePath)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	inner := ap.InternalPath
	if inner == "" {
		if inner, err = archive.DetectDiscImage(arc); err != nil {
			_ = arc.Close()
			return nil, err //nolint:wrapcheck // NoDiscImageError names the archive
		}
	}
	m, err := arc.OpenMember(inner)
	if err != nil {
		_ = arc.Close()
		return nil, err //nolint:wrapcheck // archive errors name the member
	}
	return &Image{
		r:       m,
		closers: []io.Closer{m, arc},
		name:    ap.ArchivePath + "/" + m.Name(),
		kind:    KindArchive,
		size:    m.Size(),
	}, nil
}

func openCHD(path string, opts Options) (*Image, error) {
	c, err := chd.Open(path, chd.Options{Logger: opts.Logger})
	if err != nil {
		return nil, err //nolint:wrapcheck // chd errors carry context
	}
	tr, err := c.DataTrack()
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &Image{
		r:       tr,
		closers: []io.Closer{c},
		name:    fmt.Sprintf("%s (track %d)", path, tr.Track().Number),
		kind:    KindCHD,
		size:    tr.Size(),
	}, nil
}
