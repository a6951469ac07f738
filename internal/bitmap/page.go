package bitmap

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/AshTS/QorKernel/internal/mem"
	"github.com/AshTS/QorKernel/internal/util"
)

// u64sPerPage is size_of(Page)/8 in the original's notation.
const u64sPerPage = mem.PageSize / 8

// PageAllocator carves the low portion of a page slice into its own
// bitmap storage and hands out the rest (§4.2, §9 "Carving a bitmap out
// of its own region"). With U = u64sPerPage and N input pages, it reserves
// ⌈N/(64·U+1)⌉ pages for the bitmap itself — the same formula the original
// uses, preserved exactly so capacity matches the tests.
type PageAllocator struct {
	bitmap    *Lock
	start     atomic.Pointer[mem.Page]
	npages    uint64
}

// ErrUninitialized is returned by Allocate/Free before FromPages has run.
var ErrUninitialized = fmt.Errorf("bitmap: allocator uninitialized")

// ErrOutOfMemory is returned when no run of the requested length is free.
type ErrOutOfMemory struct{ Requested uint64 }

func (e *ErrOutOfMemory) Error() string {
	return fmt.Sprintf("bitmap: out of memory (requested %d pages)", e.Requested)
}

// FromPages builds a PageAllocator over data, reserving its own bitmap
// storage from the front of the slice.
func FromPages(data []mem.Page) *PageAllocator {
	denominator := uint64(64*u64sPerPage + 1)
	pagesForBitmap := util.DivRoundup(uint64(len(data)), denominator)
	if pagesForBitmap == 0 {
		pagesForBitmap = 1
	}

	forBitmap := data[:pagesForBitmap]
	forAllocation := data[pagesForBitmap:]

	words := unsafe.Slice(
		(*atomic.Uint64)(unsafe.Pointer(&forBitmap[0])),
		uint64(len(forBitmap))*u64sPerPage,
	)
	for i := range words {
		words[i].Store(0)
	}

	a := &PageAllocator{
		bitmap: NewLock(words, uint64(len(forAllocation))),
		npages: uint64(len(forAllocation)),
	}
	if len(forAllocation) > 0 {
		a.start.Store(&forAllocation[0])
	}
	return a
}

// Allocate reserves count contiguous pages and returns a pointer to the
// first one.
func (a *PageAllocator) Allocate(count uint64) (*mem.Page, error) {
	if count == 0 {
		panic("bitmap: zero page allocation")
	}
	start := a.start.Load()
	if start == nil {
		return nil, ErrUninitialized
	}
	idx, err := a.bitmap.ReserveSequence(count)
	if err != nil {
		if _, ok := err.(*ErrUnableToAllocate); ok {
			return nil, &ErrOutOfMemory{Requested: count}
		}
		panic(err)
	}
	base := unsafe.Pointer(start)
	return (*mem.Page)(unsafe.Add(base, uintptr(idx)*mem.PageSize)), nil
}

// Free clears count pages starting at ptr, which must have come from a
// previous Allocate(count) on this allocator.
func (a *PageAllocator) Free(ptr *mem.Page, count uint64) error {
	start := a.start.Load()
	if start == nil {
		return ErrUninitialized
	}
	index := (uintptr(unsafe.Pointer(ptr)) - uintptr(unsafe.Pointer(start))) / mem.PageSize
	if err := a.bitmap.Clear(uint64(index), count); err != nil {
		panic(fmt.Sprintf("bitmap: free violated allocator contract: %v", err))
	}
	return nil
}

// Capacity reports the number of pages available for allocation.
func (a *PageAllocator) Capacity() uint64 { return a.npages }
