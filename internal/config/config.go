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

// Package config loads the optional iso2raw configuration file.
//
// The file is looked up in this order: the --config flag, the
// ISO2RAW_CONFIG environment variable, then config.yaml under the user
// configuration directory. Only the last one may be missing. Command-line
// flags override every value read here.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable holding a configuration path.
const EnvVar = "ISO2RAW_CONFIG"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config holds the tunables a user may persist.
type Config struct {
	// Workers is the number of conversion goroutines. 0 uses every CPU.
	Workers int `yaml:"workers"`

	// ChunkSectors is the number of sectors handed to a worker at once.
	ChunkSectors int `yaml:"chunk_sectors"`

	// Level is the compression level for compressed outputs; 0 picks the
	// format's default.
	Level int `yaml:"level"`

	// Cue writes a cue sheet next to every converted image.
	Cue bool `yaml:"cue"`

	// Digest prints the BLAKE3 digest of every converted image.
	Digest bool `yaml:"digest"`

	// Quiet disables the progress bar and the summary line.
	Quiet bool `yaml:"quiet"`

	// TempDir receives decompressed copies of streamed inputs.
	TempDir string `yaml:"temp_dir"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{ChunkSectors: 64}
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch {
	case c.Workers < 0:
		return fmt.Errorf("%w: workers must not be negative, got %d", ErrInvalid, c.Workers)
	case c.ChunkSectors < 1:
		return fmt.Errorf("%w: chunk_sectors must be at least 1, got %d", ErrInvalid, c.ChunkSectors)
	case c.Level < 0:
		return fmt.Errorf("%w: level must not be negative, got %d", ErrInvalid, c.Level)
	}
	return nil
}

// DefaultPath returns config.yaml under the user configuration directory,
// or "" when that directory is unknown.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "iso2raw", "config.yaml")
}

// Load resolves the configuration file as described in the package
// documentation and reads it from fsys. An explicit path (flag or
// environment) must exist; the default location is optional.
func Load(fsys afero.Fs, explicit string) (*Config, error) {
	path, required := explicit, true
	if path == "" {
		path = os.Getenv(EnvVar)
	}
	if path == "" {
		path, required = DefaultPath(), false
	}
	if path == "" {
		return Default(), nil
	}

	cfg, err := LoadFile(fsys, path)
	if !required && errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// LoadFile reads path from fsys over the defaults. Unknown keys are
// rejected so a misspelt option does not silently do nothing.
func LoadFile(fsys afero.Fs, path string) (*Config, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer func() { _ = f.Close() }()

	cfg := Default()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}
