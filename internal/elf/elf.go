// Package elf decodes the minimal 64-bit ELF subset the process loader
// needs: the file header and LOAD program headers (§4.9 "ELF load
// steps"). Grounded in qor-core's structures/elf package, trimmed to what
// the loader actually consumes.
package elf

import (
	"encoding/binary"
	"errors"
)

// ErrBadMagic is returned when the first four bytes aren't 0x7F 'E' 'L' 'F'.
var ErrBadMagic = errors.New("elf: bad magic")

// ErrTruncated is returned when the buffer is too short to hold a header.
var ErrTruncated = errors.New("elf: truncated")

// ErrNot64Bit is returned for anything other than a 64-bit, little-endian
// ELF file — the only class this kernel's loader supports.
var ErrNot64Bit = errors.New("elf: not a 64-bit little-endian ELF file")

const (
	classELF64   = 2
	dataLittle   = 1
	headerSize   = 64
	phEntrySize  = 56

	// ProgramHeaderType values this loader recognizes; everything else is
	// skipped rather than rejected (§4.9 only cares about PT_LOAD).
	ptLoad = 1
)

// ProgramHeaderFlag bits, matching the ELF spec (and qor-core's
// ProgramHeaderFlag): Execute=0x1, Write=0x2, Read=0x4.
type ProgramHeaderFlag uint32

const (
	FlagExecute ProgramHeaderFlag = 0x1
	FlagWrite   ProgramHeaderFlag = 0x2
	FlagRead    ProgramHeaderFlag = 0x4
)

// Has reports whether flag is set.
func (f ProgramHeaderFlag) Has(flag ProgramHeaderFlag) bool {
	return f&flag != 0
}

// Header is the decoded subset of the ELF file header the loader needs.
type Header struct {
	Entry       uint64
	ProgramHeaderOffset uint64
	ProgramHeaderEntrySize uint16
	ProgramHeaderCount     uint16
}

// ProgramHeader is a decoded PT_LOAD segment descriptor (§4.9 "for each
// LOAD header map with permissions and copy filesz bytes, zero BSS").
type ProgramHeader struct {
	Type     uint32
	Flags    ProgramHeaderFlag
	Offset   uint64
	VAddr    uint64
	FileSize uint64
	MemSize  uint64
	Align    uint64
}

// IsLoad reports whether this is a PT_LOAD segment.
func (p ProgramHeader) IsLoad() bool { return p.Type == ptLoad }

// Image is a fully parsed ELF file: its header and every program header.
type Image struct {
	Header         Header
	ProgramHeaders []ProgramHeader
	data           []byte
}

// Parse decodes an ELF file from data. It validates the magic number and
// class/endianness but does not copy data — ProgramHeader.FileSize bytes
// for a given segment live at data[Offset:Offset+FileSize] for the
// lifetime of the returned Image.
func Parse(data []byte) (*Image, error) {
	if len(data) < headerSize {
		return nil, ErrTruncated
	}
	if data[0] != 0x7F || data[1] != 'E' || data[2] != 'L' || data[3] != 'F' {
		return nil, ErrBadMagic
	}
	if data[4] != classELF64 || data[5] != dataLittle {
		return nil, ErrNot64Bit
	}

	h := Header{
		Entry:                  binary.LittleEndian.Uint64(data[24:32]),
		ProgramHeaderOffset:    binary.LittleEndian.Uint64(data[32:40]),
		ProgramHeaderEntrySize: binary.LittleEndian.Uint16(data[54:56]),
		ProgramHeaderCount:     binary.LittleEndian.Uint16(data[56:58]),
	}

	img := &Image{Header: h, data: data}
	off := h.ProgramHeaderOffset
	for i := uint16(0); i < h.ProgramHeaderCount; i++ {
		if off+phEntrySize > uint64(len(data)) {
			return nil, ErrTruncated
		}
		row := data[off : off+phEntrySize]
		ph := ProgramHeader{
			Type:     binary.LittleEndian.Uint32(row[0:4]),
			Flags:    ProgramHeaderFlag(binary.LittleEndian.Uint32(row[4:8])),
			Offset:   binary.LittleEndian.Uint64(row[8:16]),
			VAddr:    binary.LittleEndian.Uint64(row[16:24]),
			FileSize: binary.LittleEndian.Uint64(row[32:40]),
			MemSize:  binary.LittleEndian.Uint64(row[40:48]),
			Align:    binary.LittleEndian.Uint64(row[48:56]),
		}
		img.ProgramHeaders = append(img.ProgramHeaders, ph)
		off += uint64(h.ProgramHeaderEntrySize)
	}
	return img, nil
}

// SegmentData returns the file bytes backing a LOAD segment (FileSize
// bytes; the caller zero-fills the remainder up to MemSize).
func (img *Image) SegmentData(ph ProgramHeader) []byte {
	return img.data[ph.Offset : ph.Offset+ph.FileSize]
}
