package mem

import (
	"sync/atomic"
)

// AllocErrKind distinguishes the two ways an allocator can fail (§4.1).
type AllocErrKind int

const (
	OutOfMemory AllocErrKind = iota
	Uninitialized
)

// AllocError reports a failed allocation.
type AllocError struct {
	Kind      AllocErrKind
	Remaining uintptr
	Total     uintptr
	Requested uintptr
}

func (e *AllocError) Error() string {
	switch e.Kind {
	case Uninitialized:
		return "mem: allocator uninitialized"
	default:
		return "mem: out of memory"
	}
}

// BumpAllocator hands out disjoint, page-aligned ranges from a single
// region, monotonically, and never reclaims them (§3 "BumpAllocator
// state", §4.1). All state is atomic so concurrent callers racing on
// Allocate still receive disjoint ranges.
type BumpAllocator struct {
	base    atomic.Uintptr // first page of the assigned region; 0 = uninitialized
	walking atomic.Uintptr // next page to hand out, in units of pages from base
	end     atomic.Uintptr // one past the last page, in units of pages from base
	total   atomic.Uintptr
}

// AssignRegion installs the half-open page range [start, end) that the
// allocator may hand out. start must be page-aligned and less than end;
// the caller (cmd/kernel, from bootcfg) guarantees the pages are free and
// disjoint from every other region.
func (b *BumpAllocator) AssignRegion(start, end Pa) {
	if start%PageSize != 0 || end%PageSize != 0 || end <= start {
		panic("mem: bad bump allocator region")
	}
	pages := uintptr(end-start) / PageSize
	b.base.Store(uintptr(start))
	b.walking.Store(0)
	b.total.Store(pages)
	// end is stored last, with release ordering matching the original's
	// design note: a successful Allocate observes the assigned region
	// because it loads end with acquire semantics below.
	b.end.Store(pages)
}

// Allocate reserves n contiguous pages and returns the physical address of
// the first one. Concurrent callers racing on Allocate receive disjoint,
// monotonically increasing ranges; a successful allocation is never
// reclaimed by this allocator.
func (b *BumpAllocator) Allocate(n uintptr) (Pa, error) {
	end := b.end.Load()
	if end == 0 {
		return 0, &AllocError{Kind: Uninitialized}
	}
	start := b.walking.Add(n) - n
	if start+n > end {
		return 0, &AllocError{
			Kind:      OutOfMemory,
			Remaining: 0,
			Total:     b.total.Load(),
			Requested: n,
		}
	}
	base := b.base.Load()
	return Pa(base) + Pa(start)*PageSize, nil
}

// PagesAvailable reports a lower bound on free pages remaining; racing
// concurrent allocations can make this stale the instant it is read.
func (b *BumpAllocator) PagesAvailable() uintptr {
	end, walking := b.end.Load(), b.walking.Load()
	if walking >= end {
		return 0
	}
	return end - walking
}

// TotalPages reports the size of the assigned region, in pages.
func (b *BumpAllocator) TotalPages() uintptr { return b.total.Load() }

// AllocatePages returns a slice over n freshly bumped pages, for callers
// (the bitmap allocator's initial carve-out) that need a contiguous []Page
// rather than just a base address.
func (b *BumpAllocator) AllocatePages(n uintptr) ([]Page, Pa, error) {
	pa, err := b.Allocate(n)
	if err != nil {
		return nil, 0, err
	}
	return unsafePageSlice(pa, n), pa, nil
}

