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
	"archive/zip"
	"fmt"
	"io"
	"os"
)

// ZIPArchive provides access to files in a ZIP archive.
type ZIPArchive struct {
	file   *os.File
	reader *zip.Reader
	path   string
}

// OpenZIP opens a ZIP archive for reading.
func OpenZIP(path string) (*ZIPArchive, error) {
	file, err := os.Open(path) //nolint:gosec // User-provided path is expected
	if err != nil {
		return nil, fmt.Errorf("open ZIP archive: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("stat ZIP archive: %w", err)
	}
	reader, err := zip.NewReader(file, info.Size())
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("open ZIP archive: %w", err)
	}

	return &ZIPArchive{file: file, reader: reader, path: path}, nil
}

// List returns all files in the ZIP archive.
func (za *ZIPArchive) List() ([]FileInfo, error) {
	files := make([]FileInfo, 0, len(za.reader.File))
	for _, file := range za.reader.File {
		if file.FileInfo().IsDir() {
			continue
		}
		files = append(files, FileInfo{
			Name: file.Name,
			Size: int64(file.UncompressedSize64), //nolint:gosec // Safe: file sizes don't exceed int64
		})
	}
	return files, nil
}

func (za *ZIPArchive) find(internalPath string) (*zip.File, error) {
	for _, file := range za.reader.File {
		if matchName(file.Name, internalPath) {
			return file, nil
		}
	}
	return nil, FileNotFoundError{Archive: za.path, InternalPath: internalPath}
}

// Open opens a file within the ZIP archive.
func (za *ZIPArchive) Open(internalPath string) (io.ReadCloser, int64, error) {
	file, err := za.find(internalPath)
	if err != nil {
		return nil, 0, err
	}
	reader, err := file.Open()
	if err != nil {
		return nil, 0, fmt.Errorf("open file in ZIP: %w", err)
	}
	//nolint:gosec // Safe: file sizes don't exceed int64
	return reader, int64(file.UncompressedSize64), nil
}

// OpenMember opens a file for random access. Stored (uncompressed)
// members are read in place; deflated ones are spooled.
func (za *ZIPArchive) OpenMember(internalPath string) (*Member, error) {
	file, err := za.find(internalPath)
	if err != nil {
		return nil, err
	}
	if file.Method != zip.Store || file.Flags&0x1 != 0 {
		return spoolMember(za, internalPath)
	}

	offset, err := file.DataOffset()
	if err != nil {
		return nil, fmt.Errorf("locate %s in ZIP: %w", internalPath, err)
	}
	size := int64(file.UncompressedSize64) //nolint:gosec // Safe: file sizes don't exceed int64
	return &Member{
		r:    io.NewSectionReader(za.file, offset, size),
		name: file.Name,
		size: size,
	}, nil
}

// Path returns the archive's path on disk.
func (za *ZIPArchive) Path() string { return za.path }

// Close closes the ZIP archive.
func (za *ZIPArchive) Close() error {
	return za.file.Close() //nolint:wrapcheck // Close error passthrough is intentional
}
