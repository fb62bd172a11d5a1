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

// Package chd reads MAME CHD (Compressed Hunks of Data) CD images and
// exposes the user data of their MODE1 data track.
package chd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/sftwninja/iso2raw/sector"
)

// CHD is an open CHD image.
type CHD struct {
	reader  io.ReaderAt
	closer  io.Closer
	header  *Header
	hunkMap *HunkMap
	tracks  []Track
}

// Options tune how a CHD is read.
type Options struct {
	// Logger receives recoverable decode problems. Nil discards them.
	Logger *slog.Logger
	// CacheHunks defaults to DefaultHunkCache.
	CacheHunks int
}

// Open opens the CHD file at path.
func Open(path string, opts Options) (*CHD, error) {
	file, err := os.Open(path) //nolint:gosec // user-supplied path is expected
	if err != nil {
		return nil, fmt.Errorf("open CHD file: %w", err)
	}
	c, err := New(file, opts)
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	c.closer = file
	return c, nil
}

// New parses a CHD image held by r. Closing the result does not close r.
func New(r io.ReaderAt, opts Options) (*CHD, error) {
	header, err := parseHeader(r)
	if err != nil {
		return nil, fmt.Errorf("parse header: %w", err)
	}
	hunkMap, err := NewHunkMap(r, header, opts)
	if err != nil {
		return nil, fmt.Errorf("create hunk map: %w", err)
	}
	c := &CHD{reader: r, header: header, hunkMap: hunkMap}

	if header.MetaOffset > 0 {
		entries, err := parseMetadata(r, header.MetaOffset)
		if err != nil {
			return nil, fmt.Errorf("parse metadata: %w", err)
		}
		if c.tracks, err = parseTracks(entries); err != nil {
			return nil, fmt.Errorf("parse tracks: %w", err)
		}
	}
	return c, nil
}

// Close releases the underlying file when the CHD was opened by path.
func (c *CHD) Close() error {
	if c.closer == nil {
		return nil
	}
	if err := c.closer.Close(); err != nil {
		return fmt.Errorf("close CHD file: %w", err)
	}
	return nil
}

// Header returns the parsed header.
func (c *CHD) Header() *Header {
	return c.header
}

// Tracks returns the tracks in stored order.
func (c *CHD) Tracks() []Track {
	return c.tracks
}

// Size returns the logical (uncompressed) size of the image.
func (c *CHD) Size() int64 {
	return int64(c.header.LogicalBytes) //nolint:gosec // bounded by MaxNumHunks * MaxHunkBytes
}

// DataTrack returns a reader over the 2048-byte user data of the first data
// track. Only MODE1 tracks qualify; a MODE2 first data track yields
// ErrUnsupportedTrack.
func (c *CHD) DataTrack() (*TrackReader, error) {
	if len(c.tracks) == 0 {
		return nil, ErrNoTracks
	}
	for i := range c.tracks {
		t := c.tracks[i]
		if !t.IsDataTrack() {
			continue
		}
		if !t.IsMode1() {
			return nil, fmt.Errorf("%w: track %d is %s", ErrUnsupportedTrack, t.Number, t.Type)
		}
		frames := t.DataFrames()
		if frames < 0 {
			return nil, fmt.Errorf("%w: track %d pregap exceeds its frames", ErrInvalidMetadata, t.Number)
		}
		end := int64(t.FirstDataFrame()) + int64(frames)
		if end > int64(c.hunkMap.NumHunks())*int64(c.header.FramesPerHunk()) {
			return nil, fmt.Errorf("%w: track %d ends past the last hunk", ErrInvalidMetadata, t.Number)
		}
		return &TrackReader{
			chd:   c,
			track: t,
			size:  int64(frames) * sector.UserDataSize,
		}, nil
	}
	return nil, ErrNoDataTrack
}

// TrackReader reads the user data of one MODE1 track as a flat 2048-byte
// sector image. It is safe for concurrent use.
type TrackReader struct {
	chd   *CHD
	track Track
	size  int64
}

// Size returns the track length in bytes of user data.
func (tr *TrackReader) Size() int64 {
	return tr.size
}

// Track returns the track being read.
func (tr *TrackReader) Track() Track {
	return tr.track
}

var errNegativeOffset = errors.New("chd: negative offset")

// ReadAt implements io.ReaderAt.
func (tr *TrackReader) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errNegativeOffset
	}
	if off >= tr.size {
		return 0, io.EOF
	}

	fph := int64(tr.chd.header.FramesPerHunk())
	unit := int64(tr.chd.header.UnitBytes)
	userOff := int64(tr.track.UserDataOffset())
	first := int64(tr.track.FirstDataFrame())

	n := 0
	for n < len(p) && off < tr.size {
		lba, within := off/sector.UserDataSize, off%sector.UserDataSize
		frame := first + lba
		data, err := tr.chd.hunkMap.ReadHunk(uint32(frame / fph)) //nolint:gosec // bounded by DataTrack
		if err != nil {
			return n, fmt.Errorf("read sector %d: %w", lba, err)
		}
		start := (frame%fph)*unit + userOff + within
		c := copy(p[n:], data[start:start+sector.UserDataSize-within])
		n += c
		off += int64(c)
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
