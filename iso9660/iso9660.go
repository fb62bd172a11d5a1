// Package iso9660 inspects the volume descriptors of a 2048-byte
// ISO 9660 image before it is converted.
package iso9660

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/sftwninja/iso2raw/internal/binary"
	"github.com/sftwninja/iso2raw/sector"
)

// BlockSize is the logical block size of a cooked image.
const BlockSize = 2048

const (
	// descriptorStart is the first block of the volume descriptor set.
	descriptorStart = 16
	// maxDescriptors bounds the descriptor walk on images with no terminator.
	maxDescriptors = 32
	// xaOffset is where the CD-XA signature sits inside the PVD.
	xaOffset = 1024
)

var (
	ErrPVDNotFound     = errors.New("primary volume descriptor not found")
	ErrInvalidPVD      = errors.New("invalid primary volume descriptor")
	ErrUnsupportedSize = errors.New("unsupported logical block size")
)

var (
	standardID  = []byte("CD001")
	xaSignature = []byte("CD-XA001")
)

// DescriptorType is the first byte of a volume descriptor.
type DescriptorType byte

const (
	BootRecord    DescriptorType = 0
	Primary       DescriptorType = 1
	Supplementary DescriptorType = 2
	Partition     DescriptorType = 3
	Terminator    DescriptorType = 255
)

func (d DescriptorType) String() string {
	switch d {
	case BootRecord:
		return "boot"
	case Primary:
		return "primary"
	case Supplementary:
		return "supplementary"
	case Partition:
		return "partition"
	case Terminator:
		return "terminator"
	default:
		return "type " + strconv.Itoa(int(d))
	}
}

// Volume is the subset of the primary volume descriptor needed to decide
// whether an image can be converted and to describe it in logs.
type Volume struct {
	Created        time.Time
	SystemID       string
	VolumeID       string
	VolumeSetID    string
	PublisherID    string
	DataPreparerID string
	ApplicationID  string
	Descriptors    []DescriptorType
	// SpaceSize is the volume size in logical blocks.
	SpaceSize        uint32
	LogicalBlockSize uint16
	xa               bool
	joliet           bool
}

// IsXA reports whether the PVD carries the CD-XA signature. Such discs
// expect MODE2 sectors and cannot be rebuilt as MODE1.
func (v *Volume) IsXA() bool {
	return v.xa
}

// HasJoliet reports whether a Joliet supplementary descriptor follows
// the PVD.
func (v *Volume) HasJoliet() bool {
	return v.joliet
}

// Size returns the size the volume claims for itself in bytes.
func (v *Volume) Size() int64 {
	return int64(v.SpaceSize) * int64(v.LogicalBlockSize)
}

// Inspect walks the volume descriptor set of a cooked image of the given
// size. It returns ErrPVDNotFound when block 16 holds no descriptor, which
// callers may treat as "plain data image".
func Inspect(r io.ReaderAt, size int64) (*Volume, error) {
	if size < (descriptorStart+1)*BlockSize {
		return nil, ErrPVDNotFound
	}

	vol := &Volume{}
	block := make([]byte, BlockSize)
	seenPVD := false
	for i := range maxDescriptors {
		off := int64(descriptorStart+i) * BlockSize
		if off+BlockSize > size {
			break
		}
		if err := binary.ReadAt(r, off, block); err != nil {
			return nil, fmt.Errorf("read volume descriptor %d: %w", descriptorStart+i, err)
		}
		if !bytes.Equal(block[1:6], standardID) {
			break
		}

		typ := DescriptorType(block[0])
		vol.Descriptors = append(vol.Descriptors, typ)
		switch typ {
		case Primary:
			if seenPVD {
				continue
			}
			if err := vol.parsePrimary(block); err != nil {
				return nil, err
			}
			seenPVD = true
		case Supplementary:
			vol.joliet = vol.joliet || isJoliet(block)
		}
		if typ == Terminator {
			break
		}
	}

	if !seenPVD {
		return nil, ErrPVDNotFound
	}
	return vol, nil
}

func (v *Volume) parsePrimary(pvd []byte) error {
	if pvd[6] != 1 {
		return fmt.Errorf("%w: version %d", ErrInvalidPVD, pvd[6])
	}

	space, err := binary.Uint32Both(pvd[80:88])
	if err != nil {
		return fmt.Errorf("%w: volume space size: %w", ErrInvalidPVD, err)
	}
	lbs, err := binary.Uint16Both(pvd[128:132])
	if err != nil {
		return fmt.Errorf("%w: logical block size: %w", ErrInvalidPVD, err)
	}
	if lbs != BlockSize {
		return fmt.Errorf("%w: %d", ErrUnsupportedSize, lbs)
	}

	v.SystemID = binary.CleanString(pvd[8:40])
	v.VolumeID = binary.CleanString(pvd[40:72])
	v.SpaceSize = space
	v.LogicalBlockSize = lbs
	v.VolumeSetID = binary.CleanString(pvd[190:318])
	v.PublisherID = binary.CleanString(pvd[318:446])
	v.DataPreparerID = binary.CleanString(pvd[446:574])
	v.ApplicationID = binary.CleanString(pvd[574:702])
	v.Created = parseDate(pvd[813:830])
	v.xa = bytes.Equal(pvd[xaOffset:xaOffset+len(xaSignature)], xaSignature)
	return nil
}

// isJoliet checks the SVD escape sequences for UCS-2 level 1, 2 or 3.
func isJoliet(svd []byte) bool {
	esc := svd[88:91]
	return esc[0] == '%' && esc[1] == '/' && (esc[2] == '@' || esc[2] == 'C' || esc[2] == 'E')
}

// parseDate decodes a 17-byte descriptor timestamp: 16 ASCII digits
// (YYYYMMDDhhmmsscc) and a signed offset from GMT in 15-minute steps.
// Unset or malformed dates yield the zero time.
func parseDate(b []byte) time.Time {
	digits := b[:16]
	for _, c := range digits {
		if c < '0' || c > '9' {
			return time.Time{}
		}
	}
	num := func(from, to int) int {
		n, _ := strconv.Atoi(string(digits[from:to]))
		return n
	}
	year := num(0, 4)
	if year == 0 {
		return time.Time{}
	}
	offset := int(int8(b[16])) * 15 * 60
	return time.Date(year, time.Month(num(4, 6)), num(6, 8),
		num(8, 10), num(10, 12), num(12, 14), num(14, 16)*int(10*time.Millisecond),
		time.FixedZone("", offset))
}

// LooksRaw reports whether r already holds 2352-byte raw sectors and must
// not be encoded a second time. A cooked image may begin with the sync
// bytes, so the size must also be a whole number of raw sectors, and the
// first raw sector must either verify or the cooked descriptor set must
// be missing.
func LooksRaw(r io.ReaderAt, size int64) (bool, error) {
	if size < sector.RawSize || size%sector.RawSize != 0 {
		return false, nil
	}
	var raw [sector.RawSize]byte
	if err := binary.ReadAt(r, 0, raw[:]); err != nil {
		return false, fmt.Errorf("read image head: %w", err)
	}
	if !sector.HasSync(raw[:]) {
		return false, nil
	}
	if sector.Verify(&raw, 0, -1) == nil {
		return true, nil
	}
	cooked, err := hasDescriptor(r, size)
	if err != nil {
		return false, err
	}
	return !cooked, nil
}

// hasDescriptor reports whether a volume descriptor sits at the first
// block of the descriptor set.
func hasDescriptor(r io.ReaderAt, size int64) (bool, error) {
	off := int64(descriptorStart) * BlockSize
	if size < off+BlockSize {
		return false, nil
	}
	head := make([]byte, 1+len(standardID))
	if err := binary.ReadAt(r, off, head); err != nil {
		return false, fmt.Errorf("read volume descriptor %d: %w", descriptorStart, err)
	}
	return bytes.Equal(head[1:], standardID), nil
}
