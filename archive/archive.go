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

// Package archive reads disc images stored inside ZIP, 7z and RAR archives.
package archive

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/sftwninja/iso2raw/internal/spool"
)

// FileInfo describes one regular file in an archive.
type FileInfo struct {
	Name string // Full path within archive
	Size int64  // Uncompressed size
}

// Archive provides read access to files within an archive.
type Archive interface {
	// List returns all regular files in the archive.
	List() ([]FileInfo, error)

	// Open opens a file within the archive for sequential reading.
	// Returns the reader, uncompressed size, and any error.
	Open(internalPath string) (io.ReadCloser, int64, error)

	// OpenMember opens a file for random access. Compressed members are
	// spooled to a temporary file that is removed when the Member closes.
	OpenMember(internalPath string) (*Member, error)

	// Path returns the archive's path on disk.
	Path() string

	// Close closes the archive.
	Close() error
}

// Open opens an archive file based on its extension.
// Supported formats: .zip, .7z, .rar
func Open(path string) (Archive, error) {
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".zip":
		return OpenZIP(path)
	case ".7z":
		return OpenSevenZip(path)
	case ".rar":
		return OpenRAR(path)
	default:
		return nil, FormatError{Format: ext}
	}
}

// IsArchiveExtension checks if an extension is a supported archive format.
func IsArchiveExtension(ext string) bool {
	switch strings.ToLower(ext) {
	case ".zip", ".7z", ".rar":
		return true
	default:
		return false
	}
}

// Member is an archive entry that can be read at any offset.
type Member struct {
	r      io.ReaderAt
	closer io.Closer
	name   string
	size   int64
}

// ReadAt implements io.ReaderAt.
func (m *Member) ReadAt(p []byte, off int64) (int, error) {
	return m.r.ReadAt(p, off) //nolint:wrapcheck // ReaderAt passthrough
}

// Size returns the uncompressed size of the member.
func (m *Member) Size() int64 { return m.size }

// Name returns the member's path inside the archive.
func (m *Member) Name() string { return m.name }

// Close releases the member. It does not close the archive.
func (m *Member) Close() error {
	if m.closer == nil {
		return nil
	}
	return m.closer.Close() //nolint:wrapcheck // Close error passthrough is intentional
}

// spoolMember copies a member into a temporary file. Disc images are far
// too large to hold in memory.
func spoolMember(arc Archive, internalPath string) (*Member, error) {
	reader, size, err := arc.Open(internalPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = reader.Close() }()

	sf, err := spool.Copy(reader, "", "iso2raw-*"+filepath.Ext(internalPath), size)
	if err != nil {
		return nil, fmt.Errorf("extract %s from %s: %w", internalPath, arc.Path(), err)
	}
	return &Member{r: sf, closer: sf, name: internalPath, size: sf.Size()}, nil
}

// matchName compares archive member names the way users type them:
// case-insensitive and with forward slashes.
func matchName(member, want string) bool {
	return strings.EqualFold(filepath.ToSlash(member), filepath.ToSlash(want))
}
