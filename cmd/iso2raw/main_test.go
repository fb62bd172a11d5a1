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

package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/sftwninja/iso2raw/sector"
)

// run executes the CLI in-process with an isolated configuration file.
func run(t *testing.T, cfg string, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}

	var out, errb bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(append(args, "--config", cfgPath))
	cmd.SetOut(&out)
	cmd.SetErr(&errb)
	err = cmd.ExecuteContext(context.Background())
	return out.String(), errb.String(), err
}

func writeImage(t *testing.T, sectors int) string {
	t.Helper()
	data := make([]byte, sectors*sector.UserDataSize)
	for i := range data {
		data[i] = byte(i / 3)
	}
	path := filepath.Join(t.TempDir(), "game.iso")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

var digestLine = regexp.MustCompile(`^[0-9a-f]{64}  .+game\.bin\n$`)

func TestCLIConvert(t *testing.T) {
	t.Parallel()

	in := writeImage(t, 12)
	stdout, stderr, err := run(t, "", in, "--digest", "--cue", "-j", "2")
	if err != nil {
		t.Fatalf("convert: %v\nstderr: %s", err, stderr)
	}

	bin := strings.TrimSuffix(in, ".iso") + ".bin"
	info, err := os.Stat(bin)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 12*sector.RawSize {
		t.Errorf("output size = %d", info.Size())
	}
	if _, err := os.Stat(strings.TrimSuffix(in, ".iso") + ".cue"); err != nil {
		t.Errorf("cue sheet: %v", err)
	}
	if !digestLine.MatchString(stdout) {
		t.Errorf("stdout = %q, want a digest line", stdout)
	}
	if !strings.Contains(stderr, "12 sectors") {
		t.Errorf("summary missing from stderr: %q", stderr)
	}
}

func TestCLIConfigAndOverrides(t *testing.T) {
	t.Parallel()

	in := writeImage(t, 4)
	cuePath := strings.TrimSuffix(in, ".iso") + ".cue"

	if _, stderr, err := run(t, "cue: true\nquiet: true\n", in); err != nil {
		t.Fatalf("convert: %v", err)
	} else if stderr != "" {
		t.Errorf("quiet run wrote %q", stderr)
	}
	if _, err := os.Stat(cuePath); err != nil {
		t.Errorf("cue from config file not written: %v", err)
	}
	if err := os.Remove(cuePath); err != nil {
		t.Fatal(err)
	}

	if _, _, err := run(t, "cue: true\n", in, "--cue=false", "-q"); err != nil {
		t.Fatalf("convert: %v", err)
	}
	if _, err := os.Stat(cuePath); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("--cue=false did not override the config file: %v", err)
	}

	if _, _, err := run(t, "workers: -2\n", in); err == nil {
		t.Error("invalid config accepted")
	}
	if _, _, err := run(t, "", in, "--chunk", "0"); err == nil {
		t.Error("--chunk 0 accepted")
	}
}

func TestCLIErrors(t *testing.T) {
	t.Parallel()

	in := writeImage(t, 2)
	if _, _, err := run(t, "", in, in, "-o", "x.bin"); !errors.Is(err, errOutputWithMany) {
		t.Errorf("two inputs with -o: %v", err)
	}
	if _, _, err := run(t, ""); err == nil {
		t.Error("missing input accepted")
	}
	if _, _, err := run(t, "", in, "-o", in); err == nil {
		t.Error("overwriting the input accepted")
	}
}

func TestCLIVerify(t *testing.T) {
	t.Parallel()

	in := writeImage(t, 30)
	if _, _, err := run(t, "", in, "-q"); err != nil {
		t.Fatal(err)
	}
	bin := strings.TrimSuffix(in, ".iso") + ".bin"

	stdout, _, err := run(t, "", "verify", bin)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !strings.Contains(stdout, "OK") || !strings.Contains(stdout, "30 sectors") {
		t.Errorf("verify output = %q", stdout)
	}

	data, err := os.ReadFile(bin)
	if err != nil {
		t.Fatal(err)
	}
	data[5*sector.RawSize+sector.DataOffset] ^= 0xff
	if err := os.WriteFile(bin, data, 0o600); err != nil {
		t.Fatal(err)
	}
	stdout, _, err = run(t, "", "verify", bin)
	if !errors.Is(err, errVerifyFailed) {
		t.Fatalf("verify err = %v, want errVerifyFailed", err)
	}
	if !strings.Contains(stdout, "FAILED") || !strings.Contains(stdout, "sector 5 (00:02:05): bad EDC") {
		t.Errorf("verify output = %q", stdout)
	}
}

func TestCLIVersion(t *testing.T) {
	t.Parallel()

	stdout, _, err := run(t, "", "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(stdout, "iso2raw ") || !strings.Contains(stdout, "MODE1/2352") {
		t.Errorf("version output = %q", stdout)
	}
}
