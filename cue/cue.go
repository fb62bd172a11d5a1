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

// Package cue reads and writes CUE sheets for raw disc images.
package cue

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sftwninja/iso2raw/sector"
)

// ModeMode1Raw is the track type of every image this tool writes.
const ModeMode1Raw = "MODE1/2352"

var (
	ErrNoFiles   = errors.New("cue sheet references no files")
	ErrBadIndex  = errors.New("malformed INDEX position")
	ErrNoTrack   = errors.New("FILE has no TRACK")
	ErrBadTrack  = errors.New("malformed TRACK line")
	ErrBadFormat = errors.New("malformed FILE line")
)

// Sheet is a parsed CUE sheet.
type Sheet struct {
	Path  string // Path to the CUE file, empty for generated sheets
	Files []File
}

// File is one FILE entry and the tracks it holds.
type File struct {
	Name   string // as written in the sheet
	Path   string // Name resolved against the sheet's directory
	Type   string
	Tracks []Track
}

// Track is one TRACK entry. Index01 is in frames from the file start.
type Track struct {
	Mode    string
	Number  int
	Index01 int64
}

// SectorSize returns the bytes per sector implied by the track mode,
// or 0 for modes without a size suffix.
func (t Track) SectorSize() int {
	_, size, ok := strings.Cut(t.Mode, "/")
	if !ok {
		if t.Mode == "AUDIO" {
			return sector.RawSize
		}
		return 0
	}
	n, err := strconv.Atoi(size)
	if err != nil {
		return 0
	}
	return n
}

// Single returns the sheet for one MODE1/2352 track stored in binName.
func Single(binName string) *Sheet {
	return &Sheet{Files: []File{{
		Name:   binName,
		Path:   binName,
		Type:   "BINARY",
		Tracks: []Track{{Number: 1, Mode: ModeMode1Raw}},
	}}}
}

// Parse reads the CUE sheet at path.
func Parse(path string) (*Sheet, error) {
	f, err := os.Open(path) //nolint:gosec // path is user-provided input
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	sheet, err := ParseReader(f, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	sheet.Path = path
	return sheet, nil
}

// ParseReader parses a sheet, resolving relative FILE names against dir.
func ParseReader(r io.Reader, dir string) (*Sheet, error) {
	sheet := &Sheet{}
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		keyword, rest := text, ""
		if i := strings.IndexAny(text, " \t"); i >= 0 {
			keyword, rest = text[:i], text[i+1:]
		}
		switch strings.ToUpper(keyword) {
		case "FILE":
			name, typ, err := splitFileLine(rest)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			path := name
			if !filepath.IsAbs(path) {
				path = filepath.Join(dir, path)
			}
			sheet.Files = append(sheet.Files, File{Name: name, Path: path, Type: typ})
		case "TRACK":
			if len(sheet.Files) == 0 {
				return nil, fmt.Errorf("line %d: TRACK before FILE: %w", line, ErrBadTrack)
			}
			fields := strings.Fields(rest)
			if len(fields) != 2 {
				return nil, fmt.Errorf("line %d: %w", line, ErrBadTrack)
			}
			num, err := strconv.Atoi(fields[0])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, ErrBadTrack)
			}
			f := &sheet.Files[len(sheet.Files)-1]
			f.Tracks = append(f.Tracks, Track{Number: num, Mode: strings.ToUpper(fields[1])})
		case "INDEX":
			fields := strings.Fields(rest)
			if len(fields) != 2 || (fields[0] != "01" && fields[0] != "1") {
				continue
			}
			if len(sheet.Files) == 0 {
				return nil, fmt.Errorf("line %d: %w", line, ErrNoTrack)
			}
			f := &sheet.Files[len(sheet.Files)-1]
			if len(f.Tracks) == 0 {
				return nil, fmt.Errorf("line %d: %w", line, ErrNoTrack)
			}
			frames, err := parseMSF(fields[1])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			f.Tracks[len(f.Tracks)-1].Index01 = frames
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(sheet.Files) == 0 {
		return nil, ErrNoFiles
	}
	return sheet, nil
}

// splitFileLine splits `"name with spaces.bin" BINARY` or `name.bin BINARY`.
func splitFileLine(rest string) (name, typ string, err error) {
	rest = strings.TrimSpace(rest)
	if strings.HasPrefix(rest, `"`) {
		end := strings.LastIndex(rest, `"`)
		if end == 0 {
			return "", "", ErrBadFormat
		}
		name = rest[1:end]
		typ = strings.TrimSpace(rest[end+1:])
	} else {
		i := strings.LastIndexAny(rest, " \t")
		if i < 0 {
			return "", "", ErrBadFormat
		}
		name, typ = strings.TrimSpace(rest[:i]), rest[i+1:]
	}
	if name == "" || typ == "" {
		return "", "", ErrBadFormat
	}
	return name, strings.ToUpper(typ), nil
}

// parseMSF parses a decimal mm:ss:ff position into frames.
func parseMSF(s string) (int64, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("%w: %q", ErrBadIndex, s)
	}
	var v [3]int64
	for i, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("%w: %q", ErrBadIndex, s)
		}
		v[i] = n
	}
	if v[1] >= sector.SecondsPerMin || v[2] >= sector.FramesPerSecond {
		return 0, fmt.Errorf("%w: %q", ErrBadIndex, s)
	}
	return v[0]*sector.FramesPerMinute + v[1]*sector.FramesPerSecond + v[2], nil
}

func formatMSF(frames int64) string {
	return fmt.Sprintf("%02d:%02d:%02d",
		frames/sector.FramesPerMinute,
		frames/sector.FramesPerSecond%sector.SecondsPerMin,
		frames%sector.FramesPerSecond)
}

// WriteTo writes the sheet in the conventional indented layout.
func (s *Sheet) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	for _, f := range s.Files {
		fmt.Fprintf(&b, "FILE \"%s\" %s\n", f.Name, f.Type)
		for _, t := range f.Tracks {
			fmt.Fprintf(&b, "  TRACK %02d %s\n", t.Number, t.Mode)
			fmt.Fprintf(&b, "    INDEX 01 %s\n", formatMSF(t.Index01))
		}
	}
	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

// Write creates path and writes the sheet into it.
func (s *Sheet) Write(path string) error {
	f, err := os.Create(path) //nolint:gosec // path is user-provided output
	if err != nil {
		return fmt.Errorf("create cue sheet: %w", err)
	}
	if _, err := s.WriteTo(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write cue sheet: %w", err)
	}
	return f.Close()
}
