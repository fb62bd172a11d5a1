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

package chd

import (
	"fmt"

	"github.com/icza/bitio"
)

// huffmanDecoder decodes the canonical Huffman code MAME uses for V5 hunk
// maps. Codes are assigned from the longest length down.
type huffmanDecoder struct {
	nodeBits []uint8
	// byLen[l][code] is the symbol for an l-bit code, or -1.
	byLen   [][]int16
	maxBits int
}

func newHuffmanDecoder(numCodes, maxBits int) *huffmanDecoder {
	return &huffmanDecoder{
		nodeBits: make([]uint8, numCodes),
		byLen:    make([][]int16, maxBits+1),
		maxBits:  maxBits,
	}
}

// importTreeRLE reads the code lengths. A length of 1 is an escape: 1 1 is
// a literal 1, 1 n c repeats n for c+3 symbols.
func (hd *huffmanDecoder) importTreeRLE(br *bitio.Reader) error {
	width := uint8(3)
	switch {
	case hd.maxBits >= 16:
		width = 5
	case hd.maxBits >= 8:
		width = 4
	}

	for cur := 0; cur < len(hd.nodeBits); {
		n := uint8(br.TryReadBits(width))
		if n == 1 {
			n = uint8(br.TryReadBits(width))
			if n != 1 {
				rep := int(br.TryReadBits(width)) + 3
				for ; rep > 0 && cur < len(hd.nodeBits); rep-- {
					hd.nodeBits[cur] = n
					cur++
				}
				continue
			}
		}
		hd.nodeBits[cur] = n
		cur++
	}
	if br.TryError != nil {
		return fmt.Errorf("read huffman tree: %w", br.TryError)
	}
	return hd.assignCodes()
}

func (hd *huffmanDecoder) assignCodes() error {
	var histo [33]uint32
	for _, n := range hd.nodeBits {
		if int(n) > hd.maxBits {
			return fmt.Errorf("%w: huffman code length %d > %d", ErrInvalidHeader, n, hd.maxBits)
		}
		histo[n]++
	}

	var start uint32
	for l := 32; l > 0; l-- {
		next := (start + histo[l]) >> 1
		if l != 1 && next*2 != start+histo[l] {
			return fmt.Errorf("%w: inconsistent huffman tree", ErrInvalidHeader)
		}
		histo[l] = start
		start = next
	}

	for sym, n := range hd.nodeBits {
		if n == 0 {
			continue
		}
		if hd.byLen[n] == nil {
			hd.byLen[n] = make([]int16, 1<<n)
			for i := range hd.byLen[n] {
				hd.byLen[n][i] = -1
			}
		}
		code := histo[n]
		histo[n]++
		if int(code) >= len(hd.byLen[n]) {
			return fmt.Errorf("%w: huffman code overflow", ErrInvalidHeader)
		}
		hd.byLen[n][code] = int16(sym) //nolint:gosec // numCodes is small
	}
	return nil
}

// decode reads one symbol. Read errors surface through br.TryError.
func (hd *huffmanDecoder) decode(br *bitio.Reader) uint8 {
	var code uint64
	for l := 1; l <= hd.maxBits; l++ {
		code = code<<1 | br.TryReadBits(1)
		if br.TryError != nil {
			return 0
		}
		if t := hd.byLen[l]; t != nil && t[code] >= 0 {
			return uint8(t[code])
		}
	}
	if br.TryError == nil {
		br.TryError = fmt.Errorf("%w: invalid huffman code", ErrInvalidHeader)
	}
	return 0
}
