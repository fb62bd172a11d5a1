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
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/sftwninja/iso2raw"
	"github.com/sftwninja/iso2raw/internal/config"
	"github.com/sftwninja/iso2raw/sector"
	"github.com/sftwninja/iso2raw/sink"
)

// version is set with -ldflags "-X main.version=..." for release builds.
var version = ""

var errOutputWithMany = errors.New("-o/--output needs exactly one input")

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	tempDir    string
	workers    int
	quiet      bool
	verbose    bool
}

type convertFlags struct {
	output  string
	chunk   int
	level   int
	cue     bool
	digest  bool
	ordered bool
}

func (g *globalFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&g.configPath, "config", "", "configuration file (default $"+config.EnvVar+" or the user config dir)")
	fs.StringVar(&g.tempDir, "temp-dir", "", "directory for decompressed copies of streamed inputs")
	fs.IntVarP(&g.workers, "jobs", "j", 0, "number of worker goroutines (default: all CPUs)")
	fs.BoolVarP(&g.quiet, "quiet", "q", false, "disable the progress bar and summary")
	fs.BoolVarP(&g.verbose, "verbose", "v", false, "log debug details to stderr")
}

// settings merges the configuration file under explicitly set flags.
func (g *globalFlags) settings(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(afero.NewOsFs(), g.configPath)
	if err != nil {
		return nil, err //nolint:wrapcheck // config errors name the file
	}
	fs := cmd.Flags()
	if fs.Changed("jobs") {
		cfg.Workers = g.workers
	}
	if fs.Changed("quiet") {
		cfg.Quiet = g.quiet
	}
	if fs.Changed("temp-dir") {
		cfg.TempDir = g.tempDir
	}
	if err := cfg.Validate(); err != nil {
		return nil, err //nolint:wrapcheck // names the bad value
	}
	return cfg, nil
}

func (g *globalFlags) logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if g.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func newRootCmd() *cobra.Command {
	var (
		g globalFlags
		c convertFlags
	)

	root := &cobra.Command{
		Use:   "iso2raw [flags] INPUT...",
		Short: "Convert ISO images to raw MODE1/2352 CD-ROM images",
		Long: `iso2raw converts 2048-byte ISO 9660 images into raw 2352-byte MODE1
sectors with sync, header, EDC and P/Q parity regenerated.

INPUT may be a plain image, an optical drive such as /dev/sr0, a .gz, .xz,
.zst, .lz4 or .br stream, a zip/7z/rar archive (optionally followed by the
member path, e.g. games.7z/disc/game.iso), a CHD with a MODE1 data track,
or "-" for standard input.

The output defaults to the input name with a .bin extension. Output names
ending in .gz, .zst, .xz, .lz4 or .br are compressed; "-" writes to
standard output.

Examples:
  iso2raw game.iso
  iso2raw -o game.bin.zst --level 19 game.iso
  iso2raw --cue -j 8 disc1.iso disc2.iso
  iso2raw verify game.cue`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(cmd, &g, &c, args)
		},
	}
	g.register(root.PersistentFlags())

	fs := root.Flags()
	fs.StringVarP(&c.output, "output", "o", "", "output path (default: INPUT with .bin extension)")
	fs.IntVar(&c.chunk, "chunk", 0, "sectors handed to a worker at once")
	fs.IntVar(&c.level, "level", 0, "compression level for compressed outputs")
	fs.BoolVar(&c.cue, "cue", false, "write a cue sheet next to the output")
	fs.BoolVar(&c.digest, "digest", false, "print the BLAKE3 digest of the output")
	fs.BoolVar(&c.ordered, "ordered", false, "append sectors in order instead of writing at offsets")

	root.AddCommand(newVerifyCmd(&g), newVersionCmd())
	return root
}

func runConvert(cmd *cobra.Command, g *globalFlags, c *convertFlags, inputs []string) error {
	cfg, err := g.settings(cmd)
	if err != nil {
		return err
	}
	fs := cmd.Flags()
	if fs.Changed("chunk") {
		cfg.ChunkSectors = c.chunk
	}
	if fs.Changed("level") {
		cfg.Level = c.level
	}
	if fs.Changed("cue") {
		cfg.Cue = c.cue
	}
	if fs.Changed("digest") {
		cfg.Digest = c.digest
	}
	if err := cfg.Validate(); err != nil {
		return err //nolint:wrapcheck // names the bad value
	}
	if c.output != "" && len(inputs) > 1 {
		return errOutputWithMany
	}

	stderr := cmd.ErrOrStderr()
	// Reports go to stdout unless the image itself does.
	report := cmd.OutOrStdout()
	if c.output == sink.Stdout {
		report = stderr
	}
	logger := g.logger(stderr)

	for _, in := range inputs {
		bar := newProgressBar(stderr, "converting", !cfg.Quiet && isTerminal(stderr))
		res, err := iso2raw.Convert(cmd.Context(), in, c.output, iso2raw.Options{
			Logger:       logger,
			Progress:     bar.progress(),
			TempDir:      cfg.TempDir,
			Workers:      cfg.Workers,
			ChunkSectors: cfg.ChunkSectors,
			Level:        cfg.Level,
			Cue:          cfg.Cue,
			Digest:       cfg.Digest,
			Ordered:      c.ordered,
		})
		bar.finish()
		if err != nil {
			return err //nolint:wrapcheck // Convert errors name the input
		}

		if !cfg.Quiet {
			fmt.Fprintf(stderr, "%s -> %s: %s sectors (%s) in %s, %s/s\n",
				res.Input, res.Output,
				humanize.Comma(res.Stats.Sectors),
				humanize.IBytes(uint64(res.Stats.Bytes)), //nolint:gosec // byte counts are non-negative
				res.Stats.Elapsed.Round(time.Millisecond),
				humanize.IBytes(uint64(res.Stats.Throughput())))
			if res.Console != nil {
				fmt.Fprintf(stderr, "disc: %s\n", res.Console)
			}
			if res.CuePath != "" {
				fmt.Fprintf(stderr, "cue sheet: %s\n", res.CuePath)
			}
		}
		if res.Digest != nil {
			fmt.Fprintf(report, "%s  %s\n", hex.EncodeToString(res.Digest), res.Output)
		}
	}
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "iso2raw %s (%d-byte sectors to MODE1/%d)\n",
				buildVersion(), sector.UserDataSize, sector.RawSize)
		},
	}
}

func buildVersion() string {
	if version != "" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "devel"
}

// isTerminal reports whether w is a terminal. Only *os.File can be one.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd())) //nolint:gosec // fds fit in int
}
