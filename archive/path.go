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
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// Path is an archive on disk plus an optional member inside it.
type Path struct {
	ArchivePath  string // Path to the archive file
	InternalPath string // Path inside the archive (empty means auto-detect)
}

// archiveExtensions are the supported archive extensions.
var archiveExtensions = []string{".zip", ".7z", ".rar"}

// ParsePath recognizes "dir/disc.7z" and "dir/disc.7z/inner/game.iso".
// ok is false when path does not refer to an existing archive; a
// candidate archive that cannot be stat'ed for another reason is an error.
func ParsePath(path string) (p Path, ok bool, err error) {
	lower := strings.ToLower(filepath.ToSlash(path))

	for _, ext := range archiveExtensions {
		idx := strings.Index(lower, ext+"/")
		if idx == -1 {
			continue
		}
		candidate := path[:idx+len(ext)]
		exists, err := isRegular(candidate)
		if err != nil {
			return Path{}, false, err
		}
		if !exists {
			continue
		}
		return Path{ArchivePath: candidate, InternalPath: filepath.ToSlash(path[idx+len(ext)+1:])}, true, nil
	}

	if !IsArchiveExtension(filepath.Ext(path)) {
		return Path{}, false, nil
	}
	exists, err := isRegular(path)
	if err != nil || !exists {
		return Path{}, false, err
	}
	return Path{ArchivePath: path}, true, nil
}

func isRegular(path string) (bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat archive %s: %w", path, err)
	}
	return info.Mode().IsRegular(), nil
}

// IsArchivePath checks if a path references an archive without touching
// the filesystem.
func IsArchivePath(path string) bool {
	lower := strings.ToLower(filepath.ToSlash(path))
	for _, ext := range archiveExtensions {
		if strings.Contains(lower, ext+"/") {
			return true
		}
	}
	return IsArchiveExtension(filepath.Ext(path))
}
