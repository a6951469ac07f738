package proc

import (
	"fmt"

	"github.com/AshTS/QorKernel/internal/elf"
	"github.com/AshTS/QorKernel/internal/mem"
	"github.com/AshTS/QorKernel/internal/sv39"
)

// StackVirtualAddress is the fixed userspace stack base every process
// gets mapped at (§4.9).
const StackVirtualAddress = 0x1_0000_0000

// PageSource allocates the physical pages the loader and page-table
// builder need.
type PageSource interface {
	AllocatePages(n uintptr) ([]mem.Page, mem.Pa, error)
}

func toPermFlags(f elf.ProgramHeaderFlag) sv39.Flag {
	var out sv39.Flag
	if f.Has(elf.FlagRead) {
		out |= sv39.FlagR
	}
	if f.Has(elf.FlagWrite) {
		out |= sv39.FlagW
	}
	if f.Has(elf.FlagExecute) {
		out |= sv39.FlagX
	}
	return out
}

// LoadELF builds a new Process from a parsed ELF image: starting from the
// process's empty page table, it maps a stack at StackVirtualAddress and
// then maps and populates every PT_LOAD segment (§4.9 "ELF load steps").
// It does not identity-map the kernel into that page table; the table
// holds only the stack and the segments.
func LoadELF(img *elf.Image, stackPages uintptr, pages PageSource, allocPage sv39.AllocPage) (*Process, error) {
	p := New()
	p.ProgramCounter = img.Header.Entry

	stack, stackBase, err := pages.AllocatePages(stackPages)
	if err != nil {
		return nil, fmt.Errorf("proc: load: stack: %w", err)
	}
	if err := p.PageTable.MapRange(StackVirtualAddress, stackBase, uint64(stackPages), sv39.FlagR|sv39.FlagW|sv39.FlagU, allocPage); err != nil {
		return nil, fmt.Errorf("proc: load: map stack: %w", err)
	}
	p.Mapped = append(p.Mapped, &MappedPageSequence{
		VirtualAddress: StackVirtualAddress,
		Pages:          stack,
		Flags:          sv39.FlagR | sv39.FlagW | sv39.FlagU,
	})
	p.Stats.RecordMapping(uint64(stackPages))
	p.Frame.Registers[2] = StackVirtualAddress + uint64(stackPages)*mem.PageSize // x2 = sp

	for _, ph := range img.ProgramHeaders {
		if !ph.IsLoad() {
			continue
		}
		if err := p.mapSegment(img, ph, pages, allocPage); err != nil {
			return nil, err
		}
	}

	return p, nil
}

func (p *Process) mapSegment(img *elf.Image, ph elf.ProgramHeader, pages PageSource, allocPage sv39.AllocPage) error {
	base := ph.VAddr &^ (mem.PageSize - 1)
	pageOffset := ph.VAddr & (mem.PageSize - 1)
	spanBytes := pageOffset + ph.MemSize
	nPages := (spanBytes + mem.PageSize - 1) / mem.PageSize

	segPages, segBase, err := pages.AllocatePages(uintptr(nPages))
	if err != nil {
		return fmt.Errorf("proc: load: segment at %#x: %w", ph.VAddr, err)
	}
	flags := toPermFlags(ph.Flags) | sv39.FlagU
	if err := p.PageTable.MapRange(base, segBase, nPages, flags, allocPage); err != nil {
		return fmt.Errorf("proc: load: map segment at %#x: %w", ph.VAddr, err)
	}

	seq := &MappedPageSequence{VirtualAddress: base, Pages: segPages, Flags: flags}
	p.Mapped = append(p.Mapped, seq)
	p.Stats.RecordMapping(nPages)

	dst := seq.Bytes()
	src := img.SegmentData(ph)
	copy(dst[pageOffset:pageOffset+uint64(len(src))], src)
	// bytes beyond FileSize up to MemSize are left zeroed: fresh pages
	// from the allocator are already zero (§4.9 "zero BSS").

	return nil
}
