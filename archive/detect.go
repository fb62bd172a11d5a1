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
	"path/filepath"
	"strings"
)

// discExtensions are the cooked image extensions picked up automatically.
var discExtensions = map[string]bool{
	".iso": true,
}

// IsDiscImage checks if a filename looks like a 2048-byte disc image.
func IsDiscImage(filename string) bool {
	return discExtensions[strings.ToLower(filepath.Ext(filename))]
}

// DetectDiscImage returns the path of the first disc image in arc.
// macOS resource forks are skipped.
func DetectDiscImage(arc Archive) (string, error) {
	files, err := arc.List()
	if err != nil {
		return "", fmt.Errorf("list archive files: %w", err)
	}

	for _, file := range files {
		if strings.HasPrefix(filepath.ToSlash(file.Name), "__MACOSX/") {
			continue
		}
		if IsDiscImage(file.Name) {
			return file.Name, nil
		}
	}

	return "", NoDiscImageError{Archive: arc.Path()}
}
