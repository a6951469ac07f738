package proc

import (
	"encoding/binary"
	"testing"
	"unsafe"

	"github.com/AshTS/QorKernel/internal/elf"
	"github.com/AshTS/QorKernel/internal/mem"
	"github.com/AshTS/QorKernel/internal/sv39"
)

func newArena(pages uintptr) *mem.BumpAllocator {
	backing := make([]mem.Page, pages)
	base := mem.Pa(uintptr(unsafe.Pointer(&backing[0])))
	var a mem.BumpAllocator
	a.AssignRegion(base, base+mem.Pa(pages)*mem.PageSize)
	return &a
}

func buildELF(entry, vaddr uint64, data []byte, memSize uint64) []byte {
	const phOff = 64
	const phEntrySize = 56
	buf := make([]byte, phOff+phEntrySize+len(data))
	buf[0], buf[1], buf[2], buf[3] = 0x7F, 'E', 'L', 'F'
	buf[4], buf[5] = 2, 1
	binary.LittleEndian.PutUint64(buf[24:32], entry)
	binary.LittleEndian.PutUint64(buf[32:40], phOff)
	binary.LittleEndian.PutUint16(buf[54:56], phEntrySize)
	binary.LittleEndian.PutUint16(buf[56:58], 1)

	ph := buf[phOff : phOff+phEntrySize]
	binary.LittleEndian.PutUint32(ph[0:4], 1)   // PT_LOAD
	binary.LittleEndian.PutUint32(ph[4:8], 0x5) // R|X
	binary.LittleEndian.PutUint64(ph[8:16], uint64(phOff+phEntrySize))
	binary.LittleEndian.PutUint64(ph[16:24], vaddr)
	binary.LittleEndian.PutUint64(ph[32:40], uint64(len(data)))
	binary.LittleEndian.PutUint64(ph[40:48], memSize)
	copy(buf[phOff+phEntrySize:], data)
	return buf
}

func TestLoadELFMapsSegmentsAndStack(t *testing.T) {
	arena := newArena(64)
	raw := buildELF(0x2000, 0x2000, []byte{1, 2, 3, 4}, mem.PageSize)
	img, err := elf.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}

	tableArena := newArena(16)
	allocPage := func() (mem.Pa, *sv39.Table, error) {
		pages, pa, err := tableArena.AllocatePages(1)
		if err != nil {
			return 0, nil, err
		}
		return pa, (*sv39.Table)(unsafe.Pointer(&pages[0])), nil
	}

	p, err := LoadELF(img, 4, arena, allocPage)
	if err != nil {
		t.Fatal(err)
	}
	if p.ProgramCounter != 0x2000 {
		t.Fatalf("pc = %#x, want 0x2000", p.ProgramCounter)
	}
	if _, ok := p.Translate(StackVirtualAddress); !ok {
		t.Fatal("expected stack mapped")
	}
	if _, ok := p.Translate(0x2000); !ok {
		t.Fatal("expected segment mapped at entry vaddr")
	}
}
