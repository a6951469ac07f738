package byteheap

import (
	"fmt"
	"unsafe"

	"github.com/AshTS/QorKernel/internal/bitmap"
	"github.com/AshTS/QorKernel/internal/mem"
)

// PageSource is satisfied by the bitmap page allocator; the byte heap
// falls back to it for whole-page-sized requests, and uses it to grow its
// own table chain (§4.3's failure model: "the large-request path falls
// through to the bitmap allocator for requests that fit into whole
// pages").
type PageSource interface {
	Allocate(count uint64) (*mem.Page, error)
}

// ErrFatal reports an alignment demand §4.3 deems fatal rather than
// recoverable: any request that can't fit a single 4 KiB entry
// (s + a >= 4096) and doesn't cleanly reduce to whole pages.
type ErrFatal struct{ Size, Align uintptr }

func (e *ErrFatal) Error() string {
	return fmt.Sprintf("byteheap: fatal allocation demand size=%d align=%d", e.Size, e.Align)
}

// Heap owns the head of the allocation-table chain and the page source it
// falls back to for large/table-growth allocations.
type Heap struct {
	head  *Table
	tail  *Table
	pages PageSource
}

// NewHeap constructs a heap with one table seeded from an initial region,
// falling back to pages for growth and large allocations.
func NewHeap(initialRegion []byte, pages PageSource) *Heap {
	t := NewTable()
	t.AddRegion(initialRegion)
	return &Heap{head: t, tail: t, pages: pages}
}

// growTableChain allocates a fresh page from the page source, reinterprets
// it as a Table, and links it at the tail — used when find_first_invalid
// can find no free entry anywhere in the existing chain.
func (h *Heap) growTableChain() (*Table, error) {
	pg, err := h.pages.Allocate(1)
	if err != nil {
		return nil, err
	}
	nt := (*Table)(unsafe.Pointer(pg))
	*nt = Table{}
	h.tail.setNext(nt)
	h.tail = nt
	return nt, nil
}

// Alloc allocates size bytes aligned to align. Requests that don't fit
// within a single 4 KiB entry (s + a >= 4096, per §4.3's precondition) are
// satisfied directly from the page allocator when they reduce to whole
// pages, and are fatal otherwise.
func (h *Heap) Alloc(size, align uintptr) (uintptr, error) {
	if size+align >= pageSize {
		if align > mem.PageSize || size%mem.PageSize != 0 {
			return 0, &ErrFatal{Size: size, Align: align}
		}
		pg, err := h.pages.Allocate(uint64(size / mem.PageSize))
		if err != nil {
			return 0, err
		}
		return uintptr(unsafe.Pointer(pg)), nil
	}

	if ptr, ok := h.head.Alloc(size, align); ok {
		return ptr, nil
	}

	// Exhausted: grow the table chain with a fresh page-backed region and
	// retry once.
	region, err := h.pages.Allocate(1)
	if err != nil {
		return 0, err
	}
	if _, err := h.growTableChain(); err != nil {
		return 0, err
	}
	h.tail.AddRegion(unsafe.Slice((*byte)(unsafe.Pointer(region)), mem.PageSize))
	if ptr, ok := h.head.Alloc(size, align); ok {
		return ptr, nil
	}
	return 0, &bitmap.ErrOutOfMemory{Requested: uint64(size)}
}

// Free frees a previous allocation. It does not attempt to distinguish a
// page-granularity allocation from a table-backed one; callers that need
// that distinction track it themselves (the kernel's general-purpose
// allocator always routes sub-page frees here and page frees to the
// bitmap allocator directly, the same split §4.3 describes).
func (h *Heap) Free(ptr uintptr) {
	h.head.Free(ptr)
}

// Coalesce walks every table in the chain, merging adjacent free regions.
func (h *Heap) Coalesce() {
	for t := h.head; t != nil; t = t.next.Load() {
		t.CoalesceFreeRegions()
	}
}
