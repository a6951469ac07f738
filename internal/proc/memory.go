package proc

import (
	"sync/atomic"
	"unsafe"

	"github.com/AshTS/QorKernel/internal/mem"
	"github.com/AshTS/QorKernel/internal/sv39"
)

// MemoryStatistics tracks the page and byte counts a process's mappings
// consume, shared via a pointer so future multi-threaded accounting
// (out of scope today, §1 Non-goals) can simply add more writers.
type MemoryStatistics struct {
	pagesMapped atomic.Uint64
	bytesMapped atomic.Uint64
}

// RecordMapping adds n freshly mapped pages to the running totals.
func (m *MemoryStatistics) RecordMapping(n uint64) {
	m.pagesMapped.Add(n)
	m.bytesMapped.Add(n * mem.PageSize)
}

// PagesMapped and BytesMapped report the running totals.
func (m *MemoryStatistics) PagesMapped() uint64 { return m.pagesMapped.Load() }
func (m *MemoryStatistics) BytesMapped() uint64 { return m.bytesMapped.Load() }

// MappedPageSequence is one contiguous run of pages mapped into a
// process's address space, backed by real physical pages this process
// owns (§4.9 "alloc + map").
type MappedPageSequence struct {
	VirtualAddress uint64
	Pages          []mem.Page
	Flags          sv39.Flag
}

// Bytes views the mapped pages as one contiguous byte slice backed by the
// same physical memory (the []mem.Page backing array is contiguous), so
// writes through it land directly in committed page memory — needed to
// copy ELF segment data and zero BSS in place.
func (s *MappedPageSequence) Bytes() []byte {
	if len(s.Pages) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&s.Pages[0])), len(s.Pages)*mem.PageSize)
}
