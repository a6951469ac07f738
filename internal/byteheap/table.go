package byteheap

import (
	"sync/atomic"
	"unsafe"

	"github.com/AshTS/QorKernel/internal/util"
)

// pageSize mirrors internal/mem.PageSize without importing it; the byte
// allocator is defined purely in terms of untyped backing memory, the way
// the original takes &'static mut [u8] regions rather than Page objects.
const pageSize = 4096

// entriesPerTable is (4096 - 4*sizeof(usize))/sizeof(Entry); on a 64-bit
// host sizeof(usize) = 8 and sizeof(Entry) = 8, giving 508.
const entriesPerTable = (pageSize - 4*8) / 8

// Table is a 4096-byte-budget node in the doubly-linked list of allocation
// tables (§3 "AllocationTable"). Each table shares one upper-32-bits field
// for all of its regions' base pointers.
type Table struct {
	previous   atomic.Pointer[Table]
	next       atomic.Pointer[Table]
	upper32    uint32
	startIndex int
	entries    [entriesPerTable]Entry
}

// NewTable returns an empty table ready to have a region added to it.
func NewTable() *Table {
	return &Table{}
}

// setPrevious links prev before t, matching the original's set_previous:
// it also fixes up prev's start_index.
func (t *Table) setPrevious(prev *Table) {
	prev.next.Store(t)
	prev.startIndex = t.startIndex - entriesPerTable
	t.previous.Store(prev)
}

// setNext links next after t, matching the original's set_next.
func (t *Table) setNext(next *Table) {
	next.previous.Store(t)
	next.startIndex = t.startIndex + entriesPerTable
	t.next.Store(next)
}

// index walks the table's previous/next chain to find the entry at the
// given global index.
func (t *Table) index(idx int) *Entry {
	switch {
	case idx < t.startIndex:
		if p := t.previous.Load(); p != nil {
			return p.index(idx)
		}
		return nil
	case idx >= t.startIndex+entriesPerTable:
		if n := t.next.Load(); n != nil {
			return n.index(idx)
		}
		return nil
	default:
		return &t.entries[idx-t.startIndex]
	}
}

// findFirstInvalid finds an invalid (unused) entry in whichever table in
// the chain shares ptr's upper 32 bits, starting the search at t.
func (t *Table) findFirstInvalid(ptr uintptr) (idx int, upper32 uint32, g guard, ok bool) {
	if t.upper32 == uint32(uint64(ptr)>>32) {
		for i := range t.entries {
			if g, locked := t.entries[i].tryLock(); locked {
				if !g.valid() {
					return i + t.startIndex, t.upper32, g, true
				}
				g.unlock()
			}
		}
		return 0, 0, guard{}, false
	}
	if n := t.next.Load(); n != nil {
		return n.findFirstInvalid(ptr)
	}
	return 0, 0, guard{}, false
}

// AddRegion makes the byte range [uintptr(unsafe.Pointer(&region[0])),
// +len(region)) available to the allocator rooted at t. All regions added
// to tables reachable from t must share the same upper 32 address bits
// as the first region ever added (this mirrors the original's
// single-upper-32-per-chain assumption — a kernel heap lives well within
// one 4 GiB window in practice).
func (t *Table) AddRegion(region []byte) {
	if len(region) == 0 {
		panic("byteheap: empty region")
	}
	if len(region) > 0x1FFF {
		panic("byteheap: region too large for a single entry (see §4.3's s+a<4096 precondition)")
	}
	ptr := uintptr(unsafe.Pointer(&region[0]))
	low := uint32(ptr & 0xFFFFFFFF)
	high := uint32(ptr >> 32)

	first := t.index(0)
	g, ok := first.tryLock()
	if !ok {
		panic("byteheap: could not lock entry 0 while adding region")
	}
	if !g.valid() {
		g.update(true, false, uint64(len(region)), low)
		g.setNext(0)
		g.unlock()
		t.upper32 = high
		return
	}
	cur := g
	curEntry := first
	g.unlock()
	for {
		cg, locked := curEntry.tryLock()
		if !locked {
			panic("byteheap: add_region contended on a busy entry")
		}
		nextIdx := cg.next()
		if nextIdx > 0 {
			cg.unlock()
			curEntry = t.index(int(nextIdx))
			continue
		}
		freeIdx, _, freeGuard, ok := t.findFirstInvalid(ptr)
		if !ok {
			panic("byteheap: out of table entries for add_region")
		}
		freeGuard.setNext(0)
		freeGuard.update(true, false, uint64(len(region)), low)
		cg.setNext(uint16(freeIdx))
		cg.unlock()
		freeGuard.unlock()
		break
	}
	_ = cur
	if t.upper32 != high {
		panic("byteheap: region crosses the table chain's upper-32-bit window")
	}
}

// Alloc searches the table chain rooted at t for a free region that fits
// size bytes aligned to align, splitting it if it's larger than needed
// (§4.3's allocation protocol).
func (t *Table) Alloc(size, align uintptr) (uintptr, bool) {
	cur := t.index(0)
	if cur == nil {
		return 0, false
	}
	for {
		g, locked := cur.tryLock()
		if !locked {
			return 0, false
		}
		if !g.valid() {
			panic("byteheap: walked into an invalid entry")
		}
		if !g.allocated() {
			lowPtr := uintptr(g.lowPointer())
			slack := util.Roundup(lowPtr, align) - lowPtr
			length := g.length()
			need := uint64(slack) + uint64(size)
			if length == need {
				g.setAllocated(true)
				ptr := g.pointer(t.upper32) + slack
				g.unlock()
				return ptr, true
			} else if length > need {
				tailPtr := g.pointer(t.upper32) + uintptr(need)
				freeIdx, upper32, freeGuard, ok := t.findFirstInvalid(tailPtr)
				if !ok {
					g.unlock()
					return 0, false
				}
				freeGuard.update(true, false, length-need, uint32(g.lowPointer())+uint32(need))
				freeGuard.setNext(g.next())

				g.update(true, true, need, g.lowPointer())
				g.setNext(uint16(freeIdx))

				ptr := g.pointer(upper32) + slack
				freeGuard.unlock()
				g.unlock()
				return ptr, true
			}
		}
		nextIdx := g.next()
		g.unlock()
		if nextIdx == 0 {
			return 0, false
		}
		cur = t.index(int(nextIdx))
		if cur == nil {
			return 0, false
		}
	}
}

// Free clears the allocated bit on the first allocated entry whose range
// contains ptr (§4.3's free protocol — ptr need not equal the base).
func (t *Table) Free(ptr uintptr) {
	cur := t.index(0)
	if cur == nil {
		panic("byteheap: free on empty table")
	}
	for {
		g, locked := cur.tryLock()
		if !locked {
			panic("byteheap: free contended on a busy entry")
		}
		if g.allocated() {
			base := g.pointer(t.upper32)
			length := uintptr(g.length())
			if ptr >= base && ptr < base+length {
				g.setAllocated(false)
				g.unlock()
				return
			}
		}
		nextIdx := g.next()
		g.unlock()
		if nextIdx == 0 {
			panic("byteheap: free of pointer not found in table")
		}
		cur = t.index(int(nextIdx))
	}
}

// CoalesceFreeRegions merges adjacent, both-free entries whose combined
// length is at most 4096 bytes, keeping fragmentation
// bounded (§4.3 "Coalesce").
func (t *Table) CoalesceFreeRegions() {
	cur := t.index(0)
	if cur == nil {
		return
	}
	for {
		g, locked := cur.tryLock()
		if !locked {
			return
		}
		nextIdx := g.next()
		if nextIdx == 0 {
			g.unlock()
			return
		}
		nextEntry := t.index(int(nextIdx))
		ng, nlocked := nextEntry.tryLock()
		if !nlocked {
			g.unlock()
			return
		}
		merged := false
		if !g.allocated() && !ng.allocated() && ng.valid() &&
			uint32(g.lowPointer()+uint32(g.length())) == ng.lowPointer() &&
			g.length()+ng.length() <= 4096 {
			g.setLength(g.length() + ng.length())
			g.setNext(ng.next())
			ng.setValid(false)
			merged = true
		}
		ng.unlock()
		if merged {
			g.unlock()
			continue
		}
		g.unlock()
		cur = nextEntry
	}
}
