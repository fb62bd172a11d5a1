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
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/nwaples/rardecode/v2"
)

// RARArchive provides access to files in a RAR archive.
type RARArchive struct {
	file *os.File
	path string
}

// OpenRAR opens a RAR archive for reading.
func OpenRAR(path string) (*RARArchive, error) {
	file, err := os.Open(path) //nolint:gosec // User-provided path is expected
	if err != nil {
		return nil, fmt.Errorf("open RAR archive: %w", err)
	}
	return &RARArchive{file: file, path: path}, nil
}

// walk calls fn for each file header until fn returns true or the
// archive ends. RAR has no central directory, so every lookup rescans.
func (ra *RARArchive) walk(fn func(*rardecode.Reader, *rardecode.FileHeader) bool) error {
	if _, err := ra.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek RAR archive: %w", err)
	}
	reader, err := rardecode.NewReader(ra.file)
	if err != nil {
		return fmt.Errorf("create RAR reader: %w", err)
	}
	for {
		header, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read RAR header: %w", err)
		}
		if header.IsDir {
			continue
		}
		if fn(reader, header) {
			return nil
		}
	}
}

// List returns all files in the RAR archive.
func (ra *RARArchive) List() ([]FileInfo, error) {
	var files []FileInfo //nolint:prealloc // RAR file count unknown until full scan
	err := ra.walk(func(_ *rardecode.Reader, h *rardecode.FileHeader) bool {
		files = append(files, FileInfo{Name: h.Name, Size: h.UnPackedSize})
		return false
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// Open opens a file within the RAR archive. The returned reader is only
// valid until the next call on ra.
func (ra *RARArchive) Open(internalPath string) (io.ReadCloser, int64, error) {
	var (
		found io.ReadCloser
		size  int64
	)
	err := ra.walk(func(r *rardecode.Reader, h *rardecode.FileHeader) bool {
		if !matchName(h.Name, internalPath) {
			return false
		}
		found, size = io.NopCloser(r), h.UnPackedSize
		return true
	})
	if err != nil {
		return nil, 0, err
	}
	if found == nil {
		return nil, 0, FileNotFoundError{Archive: ra.path, InternalPath: internalPath}
	}
	return found, size, nil
}

// OpenMember extracts a file to a temporary spool for random access.
func (ra *RARArchive) OpenMember(internalPath string) (*Member, error) {
	return spoolMember(ra, internalPath)
}

// Path returns the archive's path on disk.
func (ra *RARArchive) Path() string { return ra.path }

// Close closes the RAR archive.
func (ra *RARArchive) Close() error {
	return ra.file.Close() //nolint:wrapcheck // Close error passthrough is intentional
}
