package elf

import (
	"encoding/binary"
	"testing"
)

// buildMinimal constructs a single-PT_LOAD 64-bit ELF image by hand: a
// 64-byte file header followed directly by one 56-byte program header.
func buildMinimal(entry, vaddr uint64, fileBytes []byte, memSize uint64, flags ProgramHeaderFlag) []byte {
	const phOff = 64
	buf := make([]byte, phOff+phEntrySize+len(fileBytes))

	buf[0], buf[1], buf[2], buf[3] = 0x7F, 'E', 'L', 'F'
	buf[4] = classELF64
	buf[5] = dataLittle
	binary.LittleEndian.PutUint64(buf[24:32], entry)
	binary.LittleEndian.PutUint64(buf[32:40], phOff)
	binary.LittleEndian.PutUint16(buf[54:56], phEntrySize)
	binary.LittleEndian.PutUint16(buf[56:58], 1)

	ph := buf[phOff : phOff+phEntrySize]
	binary.LittleEndian.PutUint32(ph[0:4], ptLoad)
	binary.LittleEndian.PutUint32(ph[4:8], uint32(flags))
	binary.LittleEndian.PutUint64(ph[8:16], uint64(phOff+phEntrySize))
	binary.LittleEndian.PutUint64(ph[16:24], vaddr)
	binary.LittleEndian.PutUint64(ph[32:40], uint64(len(fileBytes)))
	binary.LittleEndian.PutUint64(ph[40:48], memSize)

	copy(buf[phOff+phEntrySize:], fileBytes)
	return buf
}

func TestParseSingleLoadSegment(t *testing.T) {
	payload := []byte{1, 2, 3, 4}
	raw := buildMinimal(0x1000, 0x10000, payload, 4096, FlagRead|FlagExecute)

	img, err := Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if img.Header.Entry != 0x1000 {
		t.Fatalf("entry = %#x", img.Header.Entry)
	}
	if len(img.ProgramHeaders) != 1 {
		t.Fatalf("expected 1 program header, got %d", len(img.ProgramHeaders))
	}
	ph := img.ProgramHeaders[0]
	if !ph.IsLoad() {
		t.Fatal("expected PT_LOAD")
	}
	if ph.VAddr != 0x10000 || ph.MemSize != 4096 || ph.FileSize != uint64(len(payload)) {
		t.Fatalf("unexpected program header: %+v", ph)
	}
	if !ph.Flags.Has(FlagRead) || !ph.Flags.Has(FlagExecute) || ph.Flags.Has(FlagWrite) {
		t.Fatalf("unexpected flags: %v", ph.Flags)
	}
	if got := img.SegmentData(ph); string(got) != string(payload) {
		t.Fatalf("segment data = %v, want %v", got, payload)
	}
}

func TestParseRejectsBadMagic(t *testing.T) {
	raw := buildMinimal(0, 0, nil, 0, 0)
	raw[0] = 0x00
	if _, err := Parse(raw); err != ErrBadMagic {
		t.Fatalf("err = %v, want ErrBadMagic", err)
	}
}

func TestParseRejectsTruncated(t *testing.T) {
	if _, err := Parse(make([]byte, 10)); err != ErrTruncated {
		t.Fatalf("err = %v, want ErrTruncated", err)
	}
}
