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
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Metadata tags, four ASCII characters packed big-endian.
const (
	MetaTagCHT2 = 0x43485432 // "CHT2", CD track v2
	MetaTagCHCD = 0x43484344 // "CHCD", binary CD table of contents
	MetaTagCHTR = 0x43485452 // "CHTR", CD track v1
	MetaTagGDTR = 0x43484744 // "CHGD", GD-ROM track
)

// trackPadding is the frame alignment of every track inside a CD CHD.
const trackPadding = 4

// Track is one CD track from the metadata.
type Track struct {
	Type       string
	SubType    string
	PregapType string
	Number     int
	// Frames counts the frames stored for the track, including the pregap
	// when PregapStored reports true.
	Frames   int
	Pregap   int
	Postgap  int
	DataSize int
	SubSize  int
	// PadFrames aligns the next track to a multiple of trackPadding.
	PadFrames int
	// StartFrame is the first stored frame of the track within the image.
	StartFrame int
}

type metadataEntry struct {
	Data  []byte
	Next  uint64
	Tag   uint32
	Flags uint8
}

// parseMetadata follows the metadata chain starting at offset.
func parseMetadata(r io.ReaderAt, offset uint64) ([]metadataEntry, error) {
	var entries []metadataEntry
	seen := make(map[uint64]bool)

	for offset != 0 {
		if seen[offset] {
			return entries, fmt.Errorf("%w: metadata loop at offset %d", ErrInvalidMetadata, offset)
		}
		seen[offset] = true
		if len(entries) >= MaxMetadataEntries {
			return entries, fmt.Errorf("%w: more than %d metadata entries", ErrInvalidMetadata, MaxMetadataEntries)
		}

		e, err := readMetadataEntry(r, offset)
		if err != nil {
			return entries, fmt.Errorf("read metadata at %d: %w", offset, err)
		}
		entries = append(entries, e)
		offset = e.Next
	}
	return entries, nil
}

// readMetadataEntry reads one entry:
//
//	0 tag (4)   4 flags (1)   5 length (3)   8 next offset (8)   16 data
func readMetadataEntry(r io.ReaderAt, offset uint64) (metadataEntry, error) {
	var hdr [16]byte
	//nolint:gosec // offset from the metadata chain
	if _, err := r.ReadAt(hdr[:], int64(offset)); err != nil {
		return metadataEntry{}, fmt.Errorf("read metadata header: %w", err)
	}

	e := metadataEntry{
		Tag:   binary.BigEndian.Uint32(hdr[0:4]),
		Flags: hdr[4],
		Next:  binary.BigEndian.Uint64(hdr[8:16]),
	}
	length := uint32(hdr[5])<<16 | uint32(hdr[6])<<8 | uint32(hdr[7])
	if length > MaxMetadataLen {
		return metadataEntry{}, fmt.Errorf("%w: entry of %d bytes", ErrInvalidMetadata, length)
	}
	if length > 0 {
		e.Data = make([]byte, length)
		//nolint:gosec // offset from the metadata chain
		if _, err := r.ReadAt(e.Data, int64(offset)+16); err != nil {
			return metadataEntry{}, fmt.Errorf("read metadata data: %w", err)
		}
	}
	return e, nil
}

// parseTracks extracts the tracks from the metadata entries and lays them
// out in stored frame order.
func parseTracks(entries []metadataEntry) ([]Track, error) {
	var tracks []Track
	for _, e := range entries {
		switch e.Tag {
		case MetaTagCHT2, MetaTagCHTR, MetaTagGDTR:
			t, err := parseTrackText(e.Data)
			if err != nil {
				return nil, fmt.Errorf("parse %s: %w", CodecName(e.Tag), err)
			}
			if e.Tag != MetaTagGDTR {
				t.PadFrames = (trackPadding - t.Frames%trackPadding) % trackPadding
			}
			tracks = append(tracks, t)
		case MetaTagCHCD:
			parsed, err := parseCHCD(e.Data)
			if err != nil {
				return nil, fmt.Errorf("parse CHCD: %w", err)
			}
			tracks = append(tracks, parsed...)
		}
	}
	if len(tracks) > MaxNumTracks {
		return nil, fmt.Errorf("%w: %d tracks", ErrInvalidMetadata, len(tracks))
	}

	start := 0
	for i := range tracks {
		tracks[i].StartFrame = start
		start += tracks[i].Frames + tracks[i].PadFrames
	}
	return tracks, nil
}

// parseTrackText parses the KEY:VALUE form shared by CHTR, CHT2 and CHGD:
//
//	TRACK:1 TYPE:MODE1_RAW SUBTYPE:NONE FRAMES:1234 PREGAP:150 PGTYPE:VMODE1_RAW PGSUB:RW POSTGAP:0
func parseTrackText(data []byte) (Track, error) {
	var t Track
	ints := map[string]*int{
		"TRACK":   &t.Number,
		"FRAMES":  &t.Frames,
		"PREGAP":  &t.Pregap,
		"POSTGAP": &t.Postgap,
		"PAD":     &t.PadFrames,
	}

	for _, field := range strings.Fields(strings.TrimRight(string(data), "\x00")) {
		key, value, ok := strings.Cut(field, ":")
		if !ok {
			continue
		}
		key = strings.ToUpper(key)
		if p, isInt := ints[key]; isInt {
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return t, fmt.Errorf("%w: %s %q", ErrInvalidMetadata, key, value)
			}
			*p = n
			continue
		}
		switch key {
		case "TYPE":
			t.Type = strings.ToUpper(value)
			t.DataSize = trackTypeToDataSize(t.Type)
		case "SUBTYPE":
			t.SubType = strings.ToUpper(value)
			t.SubSize = subTypeToSize(t.SubType)
		case "PGTYPE":
			t.PregapType = strings.ToUpper(value)
		}
	}
	if t.Number == 0 {
		return t, fmt.Errorf("%w: missing track number", ErrInvalidMetadata)
	}
	return t, nil
}

// parseCHCD parses the binary table of contents: a track count followed by
// 24-byte entries of type, subtype, data size, sub size, frames and pad
// frames.
func parseCHCD(data []byte) ([]Track, error) {
	if len(data) < 4 {
		return nil, ErrInvalidMetadata
	}
	n := binary.BigEndian.Uint32(data[0:4])
	if n > MaxNumTracks {
		return nil, fmt.Errorf("%w: %d tracks", ErrInvalidMetadata, n)
	}
	if len(data) < 4+int(n)*24 {
		return nil, fmt.Errorf("%w: CHCD truncated", ErrInvalidMetadata)
	}

	tracks := make([]Track, n)
	for i := range tracks {
		b := data[4+i*24:]
		tracks[i] = Track{
			Number:    i + 1,
			Type:      cdTypeToString(binary.BigEndian.Uint32(b[0:])),
			SubType:   cdSubTypeToString(binary.BigEndian.Uint32(b[4:])),
			DataSize:  int(binary.BigEndian.Uint32(b[8:])),
			SubSize:   int(binary.BigEndian.Uint32(b[12:])),
			Frames:    int(binary.BigEndian.Uint32(b[16:])),
			PadFrames: int(binary.BigEndian.Uint32(b[20:])),
		}
	}
	return tracks, nil
}

// trackTypeToDataSize returns the stored bytes per frame for a track type.
func trackTypeToDataSize(trackType string) int {
	switch trackType {
	case "MODE1", "MODE1/2048", "MODE2_FORM1", "MODE2/2048":
		return 2048
	case "MODE2_FORM2":
		return 2324
	case "MODE2", "MODE2_FORM_MIX", "MODE2/2336":
		return 2336
	default:
		return cdSectorSize
	}
}

func subTypeToSize(subType string) int {
	switch subType {
	case "RW", "RW_RAW":
		return cdSubSize
	default:
		return 0
	}
}

func cdTypeToString(cdType uint32) string {
	names := [...]string{"MODE1", "MODE1_RAW", "MODE2", "MODE2_FORM1", "MODE2_FORM2", "MODE2_FORM_MIX", "MODE2_RAW", "AUDIO"}
	if int(cdType) < len(names) {
		return names[cdType]
	}
	return "UNKNOWN"
}

func cdSubTypeToString(subType uint32) string {
	switch subType {
	case 0:
		return "RW"
	case 1:
		return "RW_RAW"
	default:
		return "NONE"
	}
}

// IsDataTrack reports whether the track holds data rather than audio.
func (t *Track) IsDataTrack() bool {
	return t.Type != "AUDIO"
}

// IsMode1 reports whether the track holds MODE1 sectors.
func (t *Track) IsMode1() bool {
	return t.Type == "MODE1" || t.Type == "MODE1_RAW" || strings.HasPrefix(t.Type, "MODE1/")
}

// PregapStored reports whether the pregap frames are part of the image.
func (t *Track) PregapStored() bool {
	return strings.HasPrefix(t.PregapType, "V")
}

// DataFrames returns the frames of the track proper, without a stored
// pregap.
func (t *Track) DataFrames() int {
	if t.PregapStored() {
		return t.Frames - t.Pregap
	}
	return t.Frames
}

// FirstDataFrame returns the stored frame holding the track's index 01.
func (t *Track) FirstDataFrame() int {
	if t.PregapStored() {
		return t.StartFrame + t.Pregap
	}
	return t.StartFrame
}

// UserDataOffset returns where the 2048 user bytes start inside a stored
// MODE1 frame.
func (t *Track) UserDataOffset() int {
	if t.DataSize == cdSectorSize {
		return 16
	}
	return 0
}
