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

package archive_test

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sftwninja/iso2raw/archive"
)

type zipEntry struct {
	name   string
	data   []byte
	method uint16
}

// createTestZIP creates a ZIP archive in tmpDir with the given entries.
//
//nolint:gosec // Test helper creates files in test temp directory
func createTestZIP(t *testing.T, tmpDir, name string, entries ...zipEntry) string {
	t.Helper()

	zipPath := filepath.Join(tmpDir, name)
	file, err := os.Create(zipPath)
	if err != nil {
		t.Fatalf("create zip file: %v", err)
	}
	defer func() { _ = file.Close() }()

	writer := zip.NewWriter(file)
	for _, e := range entries {
		w, err := writer.CreateHeader(&zip.FileHeader{Name: e.name, Method: e.method})
		if err != nil {
			t.Fatalf("create file in zip: %v", err)
		}
		if _, err := w.Write(e.data); err != nil {
			t.Fatalf("write file content: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close zip writer: %v", err)
	}
	return zipPath
}

func imageBytes(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i * 31)
	}
	return b
}

func TestOpen(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	zipPath := createTestZIP(t, tmpDir, "test.zip", zipEntry{name: "test.txt", data: []byte("x")})
	garbage := filepath.Join(tmpDir, "broken.7z")
	if err := os.WriteFile(garbage, []byte("not an archive"), 0o600); err != nil {
		t.Fatal(err)
	}
	garbageRAR := filepath.Join(tmpDir, "broken.rar")
	if err := os.WriteFile(garbageRAR, []byte("not an archive"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"ZIP archive", zipPath, false},
		{"non-existent file", filepath.Join(tmpDir, "nonexistent.zip"), true},
		{"unsupported format", filepath.Join(tmpDir, "test.tar"), true},
		{"corrupt 7z", garbage, true},
		{"missing 7z", filepath.Join(tmpDir, "none.7z"), true},
		{"missing RAR", filepath.Join(tmpDir, "none.rar"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			arc, err := archive.Open(tt.path)
			if tt.wantErr {
				if err == nil {
					_ = arc.Close()
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if arc.Path() != tt.path {
				t.Errorf("Path() = %q, want %q", arc.Path(), tt.path)
			}
			_ = arc.Close()
		})
	}

	// rardecode only notices a bad signature once reading starts.
	arc, err := archive.Open(garbageRAR)
	if err == nil {
		defer func() { _ = arc.Close() }()
		if _, err := arc.List(); err == nil {
			t.Error("List() on corrupt RAR returned nil error")
		}
	}
}

func TestUnsupportedFormatError(t *testing.T) {
	t.Parallel()

	_, err := archive.Open("disc.tar")
	var fe archive.FormatError
	if !errors.As(err, &fe) || fe.Format != ".tar" {
		t.Fatalf("Open() error = %v, want FormatError{.tar}", err)
	}
	if !strings.Contains(fe.Error(), ".tar") {
		t.Errorf("message %q does not name the format", fe.Error())
	}
}

func TestIsArchiveExtension(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ext  string
		want bool
	}{
		{".zip", true},
		{".ZIP", true},
		{".7z", true},
		{".rar", true},
		{".tar", false},
		{".gz", false},
		{".iso", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := archive.IsArchiveExtension(tt.ext); got != tt.want {
			t.Errorf("IsArchiveExtension(%q) = %v, want %v", tt.ext, got, tt.want)
		}
	}
}

func TestZIPListSkipsDirectories(t *testing.T) {
	t.Parallel()

	zipPath := createTestZIP(t, t.TempDir(), "disc.zip",
		zipEntry{name: "folder/", method: zip.Store},
		zipEntry{name: "folder/disc.iso", data: imageBytes(4096), method: zip.Deflate},
		zipEntry{name: "readme.txt", data: []byte("hi"), method: zip.Deflate},
	)
	arc, err := archive.OpenZIP(zipPath)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = arc.Close() }()

	files, err := arc.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("List() = %v, want 2 files", files)
	}
	if files[0].Name != "folder/disc.iso" || files[0].Size != 4096 {
		t.Errorf("files[0] = %+v", files[0])
	}
}

func TestZIPOpenMember(t *testing.T) {
	t.Parallel()

	data := imageBytes(3 * 2048)
	for _, method := range []uint16{zip.Store, zip.Deflate} {
		zipPath := createTestZIP(t, t.TempDir(), "disc.zip",
			zipEntry{name: "notes.txt", data: []byte("padding before the image"), method: zip.Deflate},
			zipEntry{name: "Game/Disc.ISO", data: data, method: method},
		)
		arc, err := archive.OpenZIP(zipPath)
		if err != nil {
			t.Fatal(err)
		}

		m, err := arc.OpenMember("game/disc.iso")
		if err != nil {
			t.Fatalf("method %d: OpenMember() error = %v", method, err)
		}
		if m.Size() != int64(len(data)) {
			t.Errorf("method %d: Size() = %d", method, m.Size())
		}
		got := make([]byte, 100)
		if _, err := m.ReadAt(got, 2048+7); err != nil {
			t.Fatalf("method %d: ReadAt() error = %v", method, err)
		}
		if !bytes.Equal(got, data[2048+7:2048+107]) {
			t.Errorf("method %d: ReadAt() returned wrong bytes", method)
		}
		if err := m.Close(); err != nil {
			t.Errorf("method %d: member Close() error = %v", method, err)
		}
		_ = arc.Close()
	}
}

func TestZIPOpen(t *testing.T) {
	t.Parallel()

	zipPath := createTestZIP(t, t.TempDir(), "disc.zip",
		zipEntry{name: "disc.iso", data: []byte("payload"), method: zip.Deflate})
	arc, err := archive.OpenZIP(zipPath)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = arc.Close() }()

	rc, size, err := arc.Open("disc.iso")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = rc.Close() }()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "payload" || size != 7 {
		t.Errorf("Open() = %q (%d bytes)", got, size)
	}

	_, _, err = arc.Open("missing.iso")
	var nf archive.FileNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("Open(missing) error = %v, want FileNotFoundError", err)
	}
	if nf.InternalPath != "missing.iso" || nf.Archive != zipPath {
		t.Errorf("FileNotFoundError = %+v", nf)
	}
	if _, err := arc.OpenMember("missing.iso"); !errors.As(err, &nf) {
		t.Errorf("OpenMember(missing) error = %v", err)
	}
}

func TestDetectDiscImage(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	tests := []struct {
		name    string
		entries []zipEntry
		want    string
	}{
		{
			name: "single image",
			entries: []zipEntry{
				{name: "readme.txt", data: []byte("x")},
				{name: "disc.iso", data: []byte("y")},
			},
			want: "disc.iso",
		},
		{
			name: "upper case extension",
			entries: []zipEntry{
				{name: "DISC.ISO", data: []byte("y")},
			},
			want: "DISC.ISO",
		},
		{
			name: "resource fork skipped",
			entries: []zipEntry{
				{name: "__MACOSX/._disc.iso", data: []byte("x")},
				{name: "disc.iso", data: []byte("y")},
			},
			want: "disc.iso",
		},
		{
			name: "first of several",
			entries: []zipEntry{
				{name: "a/one.iso", data: []byte("x")},
				{name: "b/two.iso", data: []byte("y")},
			},
			want: "a/one.iso",
		},
	}

	for i, tt := range tests {
		zipPath := createTestZIP(t, tmpDir, strings.Repeat("z", i+1)+".zip", tt.entries...)
		arc, err := archive.Open(zipPath)
		if err != nil {
			t.Fatal(err)
		}
		got, err := archive.DetectDiscImage(arc)
		_ = arc.Close()
		if err != nil {
			t.Errorf("%s: DetectDiscImage() error = %v", tt.name, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s: DetectDiscImage() = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestDetectDiscImageNone(t *testing.T) {
	t.Parallel()

	zipPath := createTestZIP(t, t.TempDir(), "nodisc.zip",
		zipEntry{name: "game.bin", data: []byte("raw")},
		zipEntry{name: "game.cue", data: []byte("cue")},
	)
	arc, err := archive.Open(zipPath)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = arc.Close() }()

	_, err = archive.DetectDiscImage(arc)
	var nd archive.NoDiscImageError
	if !errors.As(err, &nd) {
		t.Fatalf("DetectDiscImage() error = %v, want NoDiscImageError", err)
	}
	if nd.Archive != zipPath || !strings.Contains(nd.Error(), "nodisc.zip") {
		t.Errorf("NoDiscImageError = %+v", nd)
	}
}

func TestIsDiscImage(t *testing.T) {
	t.Parallel()

	for name, want := range map[string]bool{
		"game.iso":   true,
		"GAME.ISO":   true,
		"game.bin":   false,
		"game.cue":   false,
		"game.chd":   false,
		"iso":        false,
		"archive.7z": false,
	} {
		if got := archive.IsDiscImage(name); got != want {
			t.Errorf("IsDiscImage(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestParsePath(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	zipPath := createTestZIP(t, tmpDir, "Discs.ZIP", zipEntry{name: "sub/game.iso", data: []byte("x")})
	dirLikeArchive := filepath.Join(tmpDir, "folder.zip")
	if err := os.Mkdir(dirLikeArchive, 0o750); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		path     string
		wantOK   bool
		archive  string
		internal string
	}{
		{"archive only", zipPath, true, zipPath, ""},
		{"archive with member", zipPath + "/sub/game.iso", true, zipPath, "sub/game.iso"},
		{"plain file", filepath.Join(tmpDir, "game.iso"), false, "", ""},
		{"missing archive", filepath.Join(tmpDir, "none.7z"), false, "", ""},
		{"missing archive with member", filepath.Join(tmpDir, "none.7z", "game.iso"), false, "", ""},
		{"directory named like an archive", dirLikeArchive + "/game.iso", false, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, ok, err := archive.ParsePath(tt.path)
			if err != nil {
				t.Fatalf("ParsePath() error = %v", err)
			}
			if ok != tt.wantOK {
				t.Fatalf("ParsePath() ok = %v, want %v", ok, tt.wantOK)
			}
			if p.ArchivePath != tt.archive || p.InternalPath != tt.internal {
				t.Errorf("ParsePath() = %+v", p)
			}
		})
	}
}

func TestIsArchivePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want bool
	}{
		{"/games/disc.zip", true},
		{"/games/disc.ZIP/inner.iso", true},
		{"/games/disc.7z/a/b.iso", true},
		{"/games/disc.rar", true},
		{"/games/disc.iso", false},
		{"/games/disc.iso.gz", false},
	}
	for _, tt := range tests {
		if got := archive.IsArchivePath(tt.path); got != tt.want {
			t.Errorf("IsArchivePath(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
