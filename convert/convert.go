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

// Package convert runs the sector assembler over a whole image with a
// bounded worker pool.
//
// Sectors are dispatched in contiguous chunks. When the destination
// supports io.WriterAt each worker writes its chunk at index*2352 and no
// ordering stage exists; otherwise finished chunks pass through a
// sequence-keyed reorder buffer and are appended in ascending order.
package convert

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sftwninja/iso2raw/sector"
)

// DefaultChunkSectors is the number of sectors handed to a worker at once.
const DefaultChunkSectors = 64

// windowPerWorker bounds how many chunks may be in flight per worker in
// ordered mode, which caps the reorder buffer.
const windowPerWorker = 4

// Progress receives the number of completed sectors and the total.
// Update is called from several goroutines.
type Progress interface {
	Update(done, total int64)
}

// ProgressFunc adapts a function to Progress.
type ProgressFunc func(done, total int64)

// Update calls f(done, total).
func (f ProgressFunc) Update(done, total int64) { f(done, total) }

// Options configures a Converter. The zero value is usable.
type Options struct {
	Progress Progress
	Logger   *slog.Logger
	// Workers defaults to runtime.NumCPU.
	Workers int
	// ChunkSectors defaults to DefaultChunkSectors.
	ChunkSectors int
	// Ordered forces sequential appends even if the destination
	// implements io.WriterAt.
	Ordered bool
}

// Stats describes a finished (or aborted) run.
type Stats struct {
	Sectors int64
	Bytes   int64
	Workers int
	Elapsed time.Duration
}

// Throughput returns output bytes per second.
func (s Stats) Throughput() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Bytes) / s.Elapsed.Seconds()
}

// CheckSize validates an input size and returns its sector count.
// It is meant to be called before any output is created.
func CheckSize(size int64) (int64, error) {
	if size < 0 || size%sector.UserDataSize != 0 {
		return 0, SizeError{Size: size}
	}
	n := size / sector.UserDataSize
	if n > sector.MaxLBA+1 {
		return 0, SizeError{Size: size}
	}
	return n, nil
}

// Converter is safe to reuse for several runs, but not concurrently with
// a shared Progress that expects a single total.
type Converter struct {
	progress Progress
	log      *slog.Logger
	workers  int
	chunk    int
	ordered  bool
	bufs     sync.Pool
}

// New returns a Converter with defaults applied to opts.
func New(opts Options) *Converter {
	c := &Converter{
		progress: opts.Progress,
		log:      opts.Logger,
		workers:  opts.Workers,
		chunk:    opts.ChunkSectors,
		ordered:  opts.Ordered,
	}
	if c.workers <= 0 {
		c.workers = runtime.NumCPU()
	}
	if c.chunk <= 0 {
		c.chunk = DefaultChunkSectors
	}
	if c.log == nil {
		c.log = slog.New(slog.DiscardHandler)
	}
	size := c.chunk * sector.RawSize
	c.bufs.New = func() any {
		b := make([]byte, size)
		return &b
	}
	return c
}

// Workers returns the effective worker count.
func (c *Converter) Workers() int {
	return c.workers
}

type job struct {
	seq   int64
	first int64
	count int
}

type chunk struct {
	buf   *[]byte
	seq   int64
	first int64
	count int
}

// Run converts sectors user-data blocks read from src and writes the
// resulting raw sectors to dst. The first failure cancels every worker
// and is returned; a SectorError carries the sector that failed.
func (c *Converter) Run(ctx context.Context, src io.ReaderAt, sectors int64, dst io.Writer) (Stats, error) {
	start := time.Now()
	stats := Stats{Workers: c.workers}
	if _, err := CheckSize(sectors * sector.UserDataSize); err != nil {
		return stats, err
	}

	wa, direct := dst.(io.WriterAt)
	direct = direct && !c.ordered
	c.log.Debug("starting conversion",
		"sectors", sectors, "workers", c.workers, "chunk", c.chunk, "direct", direct)

	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan job, c.workers)

	var (
		out    chan chunk
		window chan struct{}
	)
	if !direct {
		out = make(chan chunk, c.workers)
		window = make(chan struct{}, windowPerWorker*c.workers)
	}

	g.Go(func() error {
		defer close(jobs)
		return c.dispatch(gctx, sectors, jobs, window)
	})

	var wg sync.WaitGroup
	for range c.workers {
		wg.Add(1)
		g.Go(func() error {
			defer wg.Done()
			w := worker{c: c, src: src, wa: wa, out: out, done: &done, total: sectors}
			return w.run(gctx, jobs)
		})
	}

	if !direct {
		go func() {
			wg.Wait()
			close(out)
		}()
		g.Go(func() error {
			return c.collect(gctx, out, window, dst)
		})
	}

	err := g.Wait()
	stats.Sectors = done.Load()
	stats.Bytes = stats.Sectors * sector.RawSize
	stats.Elapsed = time.Since(start)
	if err != nil {
		c.log.Debug("conversion aborted", "converted", stats.Sectors, "error", err)
		return stats, err
	}
	c.log.Debug("conversion finished",
		"sectors", stats.Sectors, "elapsed", stats.Elapsed, "mib_per_sec", stats.Throughput()/(1<<20))
	return stats, nil
}

func (c *Converter) dispatch(ctx context.Context, sectors int64, jobs chan<- job, window chan<- struct{}) error {
	var seq int64
	for first := int64(0); first < sectors; first += int64(c.chunk) {
		if window != nil {
			select {
			case window <- struct{}{}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		j := job{seq: seq, first: first, count: int(min(int64(c.chunk), sectors-first))}
		select {
		case jobs <- j:
		case <-ctx.Done():
			return ctx.Err()
		}
		seq++
	}
	return nil
}

// collect appends chunks in sequence order. A chunk is written with a
// single Write so cancellation always stops on a sector boundary.
func (c *Converter) collect(ctx context.Context, out <-chan chunk, window <-chan struct{}, dst io.Writer) error {
	pending := make(map[int64]chunk)
	var next int64
	for ch := range out {
		pending[ch.seq] = ch
		for {
			p, ok := pending[next]
			if !ok {
				break
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, err := dst.Write((*p.buf)[:p.count*sector.RawSize]); err != nil {
				return SectorError{Op: "write", Sector: p.first, Err: err}
			}
			delete(pending, next)
			c.bufs.Put(p.buf)
			next++
			<-window
		}
	}
	return nil
}

type worker struct {
	c     *Converter
	src   io.ReaderAt
	wa    io.WriterAt
	out   chan<- chunk
	done  *atomic.Int64
	total int64
}

func (w *worker) run(ctx context.Context, jobs <-chan job) error {
	in := make([]byte, w.c.chunk*sector.UserDataSize)
	var direct *[]byte
	if w.out == nil {
		direct = w.c.bufs.Get().(*[]byte) //nolint:forcetypeassert // pool only holds *[]byte
		defer w.c.bufs.Put(direct)
	}

	for j := range jobs {
		if err := ctx.Err(); err != nil {
			return err
		}
		data := in[:j.count*sector.UserDataSize]
		if err := readBlocks(w.src, data, j.first); err != nil {
			return err
		}

		buf := direct
		if buf == nil {
			buf = w.c.bufs.Get().(*[]byte) //nolint:forcetypeassert // pool only holds *[]byte
		}
		raw := (*buf)[:j.count*sector.RawSize]
		for i := range j.count {
			idx := j.first + int64(i)
			sector.AssembleInto(
				(*[sector.RawSize]byte)(raw[i*sector.RawSize:]),
				uint32(idx), //nolint:gosec // idx <= MaxLBA, checked by Run
				(*[sector.UserDataSize]byte)(data[i*sector.UserDataSize:]),
			)
			if w.c.progress != nil {
				w.c.progress.Update(w.done.Add(1), w.total)
			} else {
				w.done.Add(1)
			}
		}

		if w.out == nil {
			if _, err := w.wa.WriteAt(raw, j.first*sector.RawSize); err != nil {
				return SectorError{Op: "write", Sector: j.first, Err: err}
			}
			continue
		}
		select {
		case w.out <- chunk{buf: buf, seq: j.seq, first: j.first, count: j.count}:
		case <-ctx.Done():
			w.c.bufs.Put(buf)
			return ctx.Err()
		}
	}
	return nil
}

// readBlocks fills p from src starting at sector first. A short read is
// reported against the first sector it could not fill.
func readBlocks(src io.ReaderAt, p []byte, first int64) error {
	n, err := src.ReadAt(p, first*sector.UserDataSize)
	if n == len(p) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return SectorError{Op: "read", Sector: first + int64(n/sector.UserDataSize), Err: err}
}
