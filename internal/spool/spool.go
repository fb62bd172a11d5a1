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

// Package spool copies sequential streams into temporary files so they
// can be read at random offsets.
package spool

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrSizeMismatch is returned when a stream ends before or after the
// size announced for it.
var ErrSizeMismatch = errors.New("stream size differs from announced size")

// File is a temporary file that is removed on Close.
type File struct {
	f    *os.File
	size int64
}

// Copy drains r into a new temporary file in dir (os.TempDir when empty).
// When want is non-negative the stream must hold exactly want bytes.
func Copy(r io.Reader, dir, pattern string, want int64) (*File, error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, fmt.Errorf("create spool file: %w", err)
	}
	sf := &File{f: f}

	n, err := io.Copy(f, r)
	if err != nil {
		_ = sf.Close()
		return nil, fmt.Errorf("spool stream: %w", err)
	}
	if want >= 0 && n != want {
		_ = sf.Close()
		return nil, fmt.Errorf("%w: got %d, want %d", ErrSizeMismatch, n, want)
	}
	sf.size = n
	return sf, nil
}

// ReadAt implements io.ReaderAt.
func (s *File) ReadAt(p []byte, off int64) (int, error) {
	return s.f.ReadAt(p, off) //nolint:wrapcheck // ReaderAt passthrough
}

// Size returns the number of bytes spooled.
func (s *File) Size() int64 {
	return s.size
}

// Name returns the path of the temporary file.
func (s *File) Name() string {
	return s.f.Name()
}

// Close closes and removes the temporary file.
func (s *File) Close() error {
	err := s.f.Close()
	if rmErr := os.Remove(s.f.Name()); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) && err == nil {
		err = rmErr
	}
	return err
}
