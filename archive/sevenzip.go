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

package archive

import (
	"fmt"
	"io"

	"github.com/bodgit/sevenzip"
)

// SevenZipArchive provides access to files in a 7z archive.
type SevenZipArchive struct {
	reader *sevenzip.ReadCloser
	path   string
}

// OpenSevenZip opens a 7z archive for reading.
func OpenSevenZip(path string) (*SevenZipArchive, error) {
	reader, err := sevenzip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open 7z archive: %w", err)
	}
	return &SevenZipArchive{reader: reader, path: path}, nil
}

// List returns all files in the 7z archive.
func (sza *SevenZipArchive) List() ([]FileInfo, error) {
	files := make([]FileInfo, 0, len(sza.reader.File))
	for _, file := range sza.reader.File {
		if file.FileInfo().IsDir() {
			continue
		}
		files = append(files, FileInfo{
			Name: file.Name,
			Size: int64(file.UncompressedSize), //nolint:gosec // Safe: file sizes don't exceed int64
		})
	}
	return files, nil
}

// Open opens a file within the 7z archive. 7z folders are solid, so
// opening a late member decompresses everything before it.
func (sza *SevenZipArchive) Open(internalPath string) (io.ReadCloser, int64, error) {
	for _, file := range sza.reader.File {
		if !matchName(file.Name, internalPath) {
			continue
		}
		reader, err := file.Open()
		if err != nil {
			return nil, 0, fmt.Errorf("open file in 7z: %w", err)
		}
		//nolint:gosec // Safe: file sizes don't exceed int64
		return reader, int64(file.UncompressedSize), nil
	}
	return nil, 0, FileNotFoundError{Archive: sza.path, InternalPath: internalPath}
}

// OpenMember extracts a file to a temporary spool for random access.
func (sza *SevenZipArchive) OpenMember(internalPath string) (*Member, error) {
	return spoolMember(sza, internalPath)
}

// Path returns the archive's path on disk.
func (sza *SevenZipArchive) Path() string { return sza.path }

// Close closes the 7z archive.
func (sza *SevenZipArchive) Close() error {
	return sza.reader.Close() //nolint:wrapcheck // Close error passthrough is intentional
}
