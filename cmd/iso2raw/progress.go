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
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/dustin/go-humanize"

	"github.com/sftwninja/iso2raw/convert"
	"github.com/sftwninja/iso2raw/sector"
)

const redrawInterval = 100 * time.Millisecond

// progressBar redraws a single status line on a terminal. Workers only
// touch the atomics; a separate goroutine renders.
type progressBar struct {
	w     io.Writer
	stop  chan struct{}
	label string
	bar   progress.Model
	wg    sync.WaitGroup
	done  atomic.Int64
	total atomic.Int64
}

// newProgressBar returns a bar drawing to w. A disabled bar draws nothing
// and hands out a nil Progress.
func newProgressBar(w io.Writer, label string, enabled bool) *progressBar {
	if !enabled {
		return nil
	}
	p := &progressBar{
		w:     w,
		label: label,
		bar:   progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		stop:  make(chan struct{}),
	}
	p.wg.Add(1)
	go p.loop()
	return p
}

func (p *progressBar) progress() convert.Progress {
	if p == nil {
		return nil
	}
	return p
}

// Update records the highest completed count seen; calls arrive from
// several workers out of order.
func (p *progressBar) Update(done, total int64) {
	p.total.Store(total)
	for {
		cur := p.done.Load()
		if done <= cur || p.done.CompareAndSwap(cur, done) {
			return
		}
	}
}

func (p *progressBar) loop() {
	defer p.wg.Done()
	t := time.NewTicker(redrawInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			p.draw()
		case <-p.stop:
			p.draw()
			fmt.Fprintln(p.w)
			return
		}
	}
}

func (p *progressBar) draw() {
	done, total := p.done.Load(), p.total.Load()
	if total == 0 {
		return
	}
	frac := float64(done) / float64(total)
	fmt.Fprintf(p.w, "\r%s %s %s / %s ", p.bar.ViewAs(frac), p.label,
		humanize.IBytes(uint64(done*sector.RawSize)),  //nolint:gosec // counts are non-negative
		humanize.IBytes(uint64(total*sector.RawSize))) //nolint:gosec // counts are non-negative
}

// finish draws the final state and ends the line. It is a no-op on a
// disabled bar.
func (p *progressBar) finish() {
	if p == nil {
		return
	}
	close(p.stop)
	p.wg.Wait()
}
