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

// Package sink creates conversion outputs. Files are written under a
// temporary name next to the destination and renamed into place on Commit,
// so an interrupted run never leaves a truncated image behind.
package sink

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"

	"github.com/sftwninja/iso2raw/cue"
)

// Stdout is the path that selects standard output.
const Stdout = "-"

var (
	// ErrClosed is returned by Commit and Abort after the sink was already
	// committed or aborted.
	ErrClosed = errors.New("sink already closed")
	// ErrCueStdout is returned when a cue sheet is requested for output
	// that has no file name.
	ErrCueStdout = errors.New("cannot write a cue sheet for standard output")
)

// Options tune Create.
type Options struct {
	Logger *slog.Logger
	// Size, when positive, is the final size of an uncompressed file
	// output. The file is extended to it before any sector is written.
	Size int64
	// Level selects the compressor level for compressed outputs; 0 picks
	// the format default.
	Level int
	// Digest enables a BLAKE3 digest of the uncompressed output.
	Digest bool
}

// Sink is an output image being written.
type Sink struct {
	log    *slog.Logger
	path   string
	f      *os.File // nil for standard output
	tmp    string
	enc    io.WriteCloser
	w      io.Writer
	hash   *blake3.Hasher
	format string
	// rehash is set when the digest has to be computed from the finished
	// file because sectors were written out of order.
	rehash bool
	digest []byte
	closed bool
}

// Create opens an output at path. The extension picks the format: .gz,
// .zst, .xz, .lz4 and .br produce compressed streams; anything else is a
// plain image that also accepts offset writes. "-" writes a plain stream
// to standard output.
func Create(path string, opts Options) (*Sink, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Sink{log: logger, path: path, format: "raw"}
	if opts.Digest {
		s.hash = blake3.New()
	}

	if path == Stdout {
		s.w = os.Stdout
		if s.hash != nil {
			s.w = io.MultiWriter(os.Stdout, s.hash)
		}
		return s, nil
	}

	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	f, err := os.CreateTemp(dir, "."+base+".*.part")
	if err != nil {
		return nil, fmt.Errorf("create output: %w", err)
	}
	s.f, s.tmp = f, f.Name()

	enc, format, err := newEncoder(path, f, opts.Level)
	if err != nil {
		s.discard()
		return nil, err
	}
	if enc != nil {
		s.enc, s.format = enc, format
		s.w = enc
		if s.hash != nil {
			s.w = io.MultiWriter(enc, s.hash)
		}
	} else {
		s.rehash = s.hash != nil
		if opts.Size > 0 {
			if err := f.Truncate(opts.Size); err != nil {
				s.discard()
				return nil, fmt.Errorf("allocate output: %w", err)
			}
		}
	}
	s.log.Debug("created output", "path", path, "temp", s.tmp, "format", s.format, "size", opts.Size)
	return s, nil
}

// Writer returns the destination for converted sectors. For plain files
// the result also implements io.WriterAt; sequential outputs deliberately
// hide it so callers append in order.
func (s *Sink) Writer() io.Writer {
	if s.f != nil && s.enc == nil {
		return s.f
	}
	return sequential{s.w}
}

// sequential strips every method but Write.
type sequential struct {
	w io.Writer
}

func (q sequential) Write(p []byte) (int, error) {
	return q.w.Write(p) //nolint:wrapcheck // Writer passthrough
}

// Path returns the final output path.
func (s *Sink) Path() string { return s.path }

// Format names the output encoding: "raw", "gzip", "zstd", "xz", "lz4" or
// "brotli".
func (s *Sink) Format() string { return s.format }

// Compressed reports whether the output is a compressed stream.
func (s *Sink) Compressed() bool { return s.enc != nil }

// Digest returns the BLAKE3 digest of the uncompressed output. It is nil
// before Commit or when Options.Digest was not set.
func (s *Sink) Digest() []byte { return s.digest }

// Commit finishes the output: the compressor is flushed, the file synced
// and renamed to its final path. On failure the partial file is removed.
func (s *Sink) Commit() error {
	if s.closed {
		return ErrClosed
	}
	s.closed = true

	if err := s.finish(); err != nil {
		s.discard()
		return err
	}
	if s.hash != nil {
		s.digest = s.hash.Sum(nil)
	}
	s.log.Debug("committed output", "path", s.path)
	return nil
}

func (s *Sink) finish() error {
	if s.enc != nil {
		if err := s.enc.Close(); err != nil {
			return fmt.Errorf("flush %s stream: %w", s.format, err)
		}
	}
	if s.f == nil {
		return nil
	}
	if s.rehash {
		if _, err := s.f.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("rewind output: %w", err)
		}
		if _, err := io.Copy(s.hash, s.f); err != nil {
			return fmt.Errorf("digest output: %w", err)
		}
	}
	if err := s.f.Chmod(0o644); err != nil {
		return fmt.Errorf("chmod output: %w", err)
	}
	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("sync output: %w", err)
	}
	if err := s.f.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	if err := os.Rename(s.tmp, s.path); err != nil {
		return fmt.Errorf("rename output: %w", err)
	}
	s.f = nil
	return nil
}

// Abort discards the output. Nothing is left at the final path.
func (s *Sink) Abort() error {
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	if s.enc != nil {
		_ = s.enc.Close()
	}
	s.discard()
	s.log.Debug("aborted output", "path", s.path)
	return nil
}

func (s *Sink) discard() {
	if s.f == nil {
		return
	}
	_ = s.f.Close()
	_ = os.Remove(s.tmp)
	s.f = nil
}

// WriteCue writes a one-track MODE1/2352 cue sheet at cuePath describing
// the committed image. The FILE entry is the image's base name, which
// assumes both files share a directory.
func (s *Sink) WriteCue(cuePath string) error {
	if s.path == Stdout {
		return ErrCueStdout
	}
	if err := cue.Single(filepath.Base(s.path)).Write(cuePath); err != nil {
		return err //nolint:wrapcheck // cue errors name the sheet
	}
	s.log.Debug("wrote cue sheet", "path", cuePath)
	return nil
}
