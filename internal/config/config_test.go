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

package config

import (
	"errors"
	"io/fs"
	"testing"

	"github.com/spf13/afero"
)

func memFS(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fsys := afero.NewMemMapFs()
	for name, body := range files {
		if err := afero.WriteFile(fsys, name, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return fsys
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	fsys := memFS(t, map[string]string{
		"/etc/iso2raw.yaml": "workers: 4\nchunk_sectors: 128\nlevel: 19\ncue: true\ndigest: true\nquiet: true\ntemp_dir: /var/tmp\n",
		"/empty.yaml":       "",
		"/partial.yaml":     "cue: true\n",
	})

	tests := []struct {
		path string
		want Config
	}{
		{"/etc/iso2raw.yaml", Config{
			Workers: 4, ChunkSectors: 128, Level: 19, Cue: true, Digest: true, Quiet: true, TempDir: "/var/tmp",
		}},
		{"/empty.yaml", *Default()},
		{"/partial.yaml", Config{ChunkSectors: 64, Cue: true}},
	}
	for _, tt := range tests {
		got, err := LoadFile(fsys, tt.path)
		if err != nil {
			t.Errorf("LoadFile(%s): %v", tt.path, err)
			continue
		}
		if *got != tt.want {
			t.Errorf("LoadFile(%s) = %+v, want %+v", tt.path, *got, tt.want)
		}
	}
}

func TestLoadFileErrors(t *testing.T) {
	t.Parallel()

	fsys := memFS(t, map[string]string{
		"/typo.yaml":     "wokers: 4\n",
		"/syntax.yaml":   "workers: [\n",
		"/negative.yaml": "workers: -1\n",
		"/chunk.yaml":    "chunk_sectors: 0\n",
		"/level.yaml":    "level: -3\n",
	})

	for _, name := range []string{"/typo.yaml", "/syntax.yaml"} {
		if _, err := LoadFile(fsys, name); err == nil {
			t.Errorf("LoadFile(%s) succeeded", name)
		}
	}
	for _, name := range []string{"/negative.yaml", "/chunk.yaml", "/level.yaml"} {
		if _, err := LoadFile(fsys, name); !errors.Is(err, ErrInvalid) {
			t.Errorf("LoadFile(%s) = %v, want ErrInvalid", name, err)
		}
	}
	if _, err := LoadFile(fsys, "/missing.yaml"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("missing file err = %v, want ErrNotExist", err)
	}
}

func TestLoadResolution(t *testing.T) {
	fsys := memFS(t, map[string]string{
		"/flag.yaml": "workers: 2\n",
		"/env.yaml":  "workers: 3\n",
	})

	t.Setenv(EnvVar, "/env.yaml")
	cfg, err := Load(fsys, "/flag.yaml")
	if err != nil || cfg.Workers != 2 {
		t.Errorf("explicit path: %+v, %v", cfg, err)
	}
	cfg, err = Load(fsys, "")
	if err != nil || cfg.Workers != 3 {
		t.Errorf("environment path: %+v, %v", cfg, err)
	}

	t.Setenv(EnvVar, "/gone.yaml")
	if _, err := Load(fsys, ""); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("missing environment path err = %v", err)
	}

	t.Setenv(EnvVar, "")
	cfg, err = Load(fsys, "")
	if err != nil || *cfg != *Default() {
		t.Errorf("default location should be optional: %+v, %v", cfg, err)
	}
}
