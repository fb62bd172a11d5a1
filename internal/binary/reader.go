// Package binary provides helpers for reading fixed-layout fields out of
// disc images and on-disc structures.
package binary

import (
	"encoding/binary"
	"errors"
	"io"
	"strings"
)

// ErrEndianMismatch is returned when the two halves of an ISO 9660
// both-byte-order field disagree.
var ErrEndianMismatch = errors.New("both-endian field halves differ")

// ReadAt fills buf from r at offset. A read that fills buf completely is
// a success even if r reports io.EOF alongside it.
func ReadAt(r io.ReaderAt, offset int64, buf []byte) error {
	n, err := r.ReadAt(buf, offset)
	if n == len(buf) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// ReadBytesAt reads n bytes from r at offset.
func ReadBytesAt(r io.ReaderAt, offset int64, n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := ReadAt(r, offset, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadUint32LEAt reads a little-endian uint32 from r at offset.
func ReadUint32LEAt(r io.ReaderAt, offset int64) (uint32, error) {
	buf := make([]byte, 4)
	if err := ReadAt(r, offset, buf); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf), nil
}

// Uint16Both decodes a 4-byte both-byte-order field (LE then BE).
func Uint16Both(b []byte) (uint16, error) {
	le := binary.LittleEndian.Uint16(b[0:2])
	if be := binary.BigEndian.Uint16(b[2:4]); le != be {
		return le, ErrEndianMismatch
	}
	return le, nil
}

// Uint32Both decodes an 8-byte both-byte-order field (LE then BE).
func Uint32Both(b []byte) (uint32, error) {
	le := binary.LittleEndian.Uint32(b[0:4])
	if be := binary.BigEndian.Uint32(b[4:8]); le != be {
		return le, ErrEndianMismatch
	}
	return le, nil
}

// PutUint16Both encodes v as a 4-byte both-byte-order field.
func PutUint16Both(b []byte, v uint16) {
	binary.LittleEndian.PutUint16(b[0:2], v)
	binary.BigEndian.PutUint16(b[2:4], v)
}

// PutUint32Both encodes v as an 8-byte both-byte-order field.
func PutUint32Both(b []byte, v uint32) {
	binary.LittleEndian.PutUint32(b[0:4], v)
	binary.BigEndian.PutUint32(b[4:8], v)
}

// CleanString converts a padded identifier to a string, stopping at the
// first NUL and trimming surrounding spaces.
func CleanString(b []byte) string {
	end := len(b)
	for i, c := range b {
		if c == 0 {
			end = i
			break
		}
	}
	return strings.TrimSpace(string(b[:end]))
}
