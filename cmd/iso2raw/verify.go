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
	"errors"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/sftwninja/iso2raw"
	"github.com/sftwninja/iso2raw/sector"
)

// errVerifyFailed is returned after the failures have been printed.
var errVerifyFailed = errors.New("verification failed")

var (
	okStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2"))
	failStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1"))
)

func newVerifyCmd(g *globalFlags) *cobra.Command {
	var maxFailures int
	cmd := &cobra.Command{
		Use:   "verify [flags] IMAGE...",
		Short: "Check every sector of raw MODE1/2352 images",
		Long: `verify checks the sync pattern, header address, mode, EDC, reserved
bytes and P/Q parity of every sector. IMAGE may be a .bin, a compressed
stream, an archive member or a cue sheet with a single MODE1/2352 track.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.settings(cmd)
			if err != nil {
				return err
			}
			stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
			logger := g.logger(stderr)

			failed := false
			for _, path := range args {
				bar := newProgressBar(stderr, "verifying", !cfg.Quiet && isTerminal(stderr))
				res, err := iso2raw.Verify(cmd.Context(), path, iso2raw.VerifyOptions{
					Logger:      logger,
					Progress:    bar.progress(),
					TempDir:     cfg.TempDir,
					Workers:     cfg.Workers,
					MaxFailures: maxFailures,
				})
				bar.finish()
				if err != nil {
					return err //nolint:wrapcheck // Verify errors name the image
				}

				if res.OK() {
					fmt.Fprintf(stdout, "%s: %s (%s sectors)\n",
						res.Path, okStyle.Render("OK"), humanize.Comma(res.Sectors))
					continue
				}
				failed = true
				fmt.Fprintf(stdout, "%s: %s (%s of %s sectors bad)\n", res.Path, failStyle.Render("FAILED"),
					humanize.Comma(res.FailureCount), humanize.Comma(res.Sectors))
				for _, f := range res.Failures {
					addr := sector.AddressFromLBA(uint32(f.Index)) //nolint:gosec // index <= MaxLBA
					if f.Err != nil {
						fmt.Fprintf(stdout, "  sector %d (%s): bad %s: %v\n", f.Index, addr, f.Fault, f.Err)
					} else {
						fmt.Fprintf(stdout, "  sector %d (%s): bad %s\n", f.Index, addr, f.Fault)
					}
				}
				if n := res.FailureCount - int64(len(res.Failures)); n > 0 {
					fmt.Fprintf(stdout, "  ... and %s more\n", humanize.Comma(n))
				}
			}
			if failed {
				return errVerifyFailed
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&maxFailures, "max-failures", iso2raw.DefaultMaxFailures, "number of failing sectors to list per image")
	return cmd
}
