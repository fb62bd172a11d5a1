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

package iso2raw

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sftwninja/iso2raw/convert"
	"github.com/sftwninja/iso2raw/cue"
	"github.com/sftwninja/iso2raw/sector"
	"github.com/sftwninja/iso2raw/source"
)

// DefaultMaxFailures is how many failing sectors Verify reports in detail.
const DefaultMaxFailures = 16

var (
	// ErrNotRaw is returned when an image size is not a whole number of
	// 2352-byte sectors.
	ErrNotRaw = errors.New("image size is not a multiple of 2352")
	// ErrUnsupportedCue is returned for cue sheets that do not describe a
	// single MODE1/2352 track.
	ErrUnsupportedCue = errors.New("cue sheet does not describe one MODE1/2352 track")
	// ErrCookedInput is returned when Verify is pointed at an input that
	// only yields 2048-byte user data, such as a CHD data track.
	ErrCookedInput = errors.New("input does not hold raw sectors")
)

// VerifyOptions configure Verify.
type VerifyOptions struct {
	Logger   *slog.Logger
	Progress convert.Progress
	TempDir  string
	Workers  int
	// MaxFailures caps Result.Failures; 0 selects DefaultMaxFailures.
	// Every failure is still counted.
	MaxFailures int
}

// VerifyResult is the outcome of Verify.
type VerifyResult struct {
	Path string
	// Failures holds the lowest-indexed failing sectors, ascending.
	Failures     []*sector.Error
	Sectors      int64
	FailureCount int64
	Elapsed      time.Duration
}

// OK reports whether every sector passed.
func (r *VerifyResult) OK() bool { return r.FailureCount == 0 }

// Verify checks every sector of the raw MODE1/2352 image at path: sync,
// mode, address, EDC, reserved bytes and both parity layers. path may be
// a cue sheet describing a single MODE1/2352 track. Sector faults are
// collected in the result; only I/O problems are returned as errors.
func Verify(ctx context.Context, path string, opts VerifyOptions) (*VerifyResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if strings.EqualFold(filepath.Ext(path), ".cue") {
		bin, err := cueImage(path)
		if err != nil {
			return nil, err
		}
		logger.Debug("verifying cue image", "cue", path, "image", bin)
		path = bin
	}

	src, err := source.Open(path, source.Options{TempDir: opts.TempDir, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer func() { _ = src.Close() }()
	if src.Kind() == source.KindCHD {
		return nil, fmt.Errorf("%s: %w", src.Name(), ErrCookedInput)
	}
	if src.Size() == 0 {
		return nil, fmt.Errorf("%s: %w", src.Name(), ErrEmpty)
	}
	if src.Size()%sector.RawSize != 0 {
		return nil, fmt.Errorf("%s: %w (%d bytes)", src.Name(), ErrNotRaw, src.Size())
	}

	v := &verifier{
		src:      src,
		sectors:  src.Size() / sector.RawSize,
		progress: opts.Progress,
		max:      opts.MaxFailures,
		workers:  opts.Workers,
	}
	if v.max <= 0 {
		v.max = DefaultMaxFailures
	}
	if v.workers <= 0 {
		v.workers = runtime.NumCPU()
	}

	start := time.Now()
	if err := v.run(ctx); err != nil {
		return nil, fmt.Errorf("verify %s: %w", src.Name(), err)
	}
	res := &VerifyResult{
		Path:         src.Name(),
		Sectors:      v.sectors,
		Failures:     v.failures,
		FailureCount: v.count.Load(),
		Elapsed:      time.Since(start),
	}
	logger.Debug("verified image", "path", res.Path, "sectors", res.Sectors, "failures", res.FailureCount)
	return res, nil
}

func cueImage(path string) (string, error) {
	sheet, err := cue.Parse(path)
	if err != nil {
		return "", err //nolint:wrapcheck // names the sheet
	}
	if len(sheet.Files) != 1 || len(sheet.Files[0].Tracks) != 1 ||
		sheet.Files[0].Tracks[0].Mode != cue.ModeMode1Raw {
		return "", fmt.Errorf("%s: %w", path, ErrUnsupportedCue)
	}
	return sheet.Files[0].Path, nil
}

// verifyChunk is the number of sectors a worker claims at once.
const verifyChunk = 64

// verifier hands out chunks through an atomic cursor; there is no
// ordering stage because nothing is written.
type verifier struct {
	src      io.ReaderAt
	progress convert.Progress
	failures []*sector.Error
	next     atomic.Int64
	done     atomic.Int64
	count    atomic.Int64
	mu       sync.Mutex
	sectors  int64
	max      int
	workers  int
}

func (v *verifier) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for range min(int64(v.workers), max(1, (v.sectors+verifyChunk-1)/verifyChunk)) {
		g.Go(func() error { return v.work(gctx) })
	}
	if err := g.Wait(); err != nil {
		return err //nolint:wrapcheck // wrapped by Verify
	}
	slices.SortFunc(v.failures, func(a, b *sector.Error) int {
		return cmp.Compare(a.Index, b.Index)
	})
	return nil
}

func (v *verifier) work(ctx context.Context) error {
	buf := make([]byte, verifyChunk*sector.RawSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		first := v.next.Add(verifyChunk) - verifyChunk
		if first >= v.sectors {
			return nil
		}
		n := min(verifyChunk, v.sectors-first)
		chunk := buf[:n*sector.RawSize]
		if got, err := v.src.ReadAt(chunk, first*sector.RawSize); got < len(chunk) {
			if err == nil || errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return convert.SectorError{Op: "read", Sector: first + int64(got/sector.RawSize), Err: err}
		}

		for i := range n {
			idx := first + i
			raw := (*[sector.RawSize]byte)(chunk[i*sector.RawSize:])
			if err := sector.Verify(raw, idx, idx); err != nil {
				v.fail(err)
			}
			done := v.done.Add(1)
			if v.progress != nil {
				v.progress.Update(done, v.sectors)
			}
		}
	}
}

// fail records err, keeping only the lowest-indexed failures.
func (v *verifier) fail(err error) {
	v.count.Add(1)
	var se *sector.Error
	if !errors.As(err, &se) {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.failures) < v.max {
		v.failures = append(v.failures, se)
		return
	}
	worst := 0
	for i, f := range v.failures {
		if f.Index > v.failures[worst].Index {
			worst = i
		}
	}
	if se.Index < v.failures[worst].Index {
		v.failures[worst] = se
	}
}
