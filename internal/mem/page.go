// Package mem implements the page-grained physical memory allocators:
// BumpAllocator (§4.1), carried over from the teacher's Physmem_t in spirit
// — atomic, lock-free, single-shot hand-out of pages.
package mem

import "unsafe"

// PGSHIFT is the base-2 exponent for the page size, matching the teacher's
// naming (biscuit's mem.PGSHIFT).
const PGSHIFT = 12

// PageSize is the size of a single page in bytes. Go has no const generic
// over a Page type the way the original's PageBumpAllocator<Page> does;
// the page size is fixed here and documented rather than parameterised.
const PageSize = 1 << PGSHIFT

// Pa is a physical address.
type Pa uintptr

// Page is an opaque, 4096-byte, 4096-aligned region of physical memory.
type Page [PageSize]byte

// PageOf returns the page-aligned base of pa.
func PageOf(pa Pa) Pa { return pa &^ (PageSize - 1) }

// unsafePageSlice views n pages starting at pa as a Go slice. Valid only
// before the MMU is enabled (bump/bitmap carve-out happen identity-mapped)
// or when pa is already a direct-mapped virtual address.
func unsafePageSlice(pa Pa, n uintptr) []Page {
	return unsafe.Slice((*Page)(unsafe.Pointer(uintptr(pa))), n)
}
