package sv39

import (
	"fmt"
	"unsafe"

	"github.com/AshTS/QorKernel/internal/mem"
)

// Table is a single Sv39 page table: 512 entries, 4096-aligned (§3
// "PageTable").
type Table struct {
	Entries [512]PTE
}

// AllocPage is called by Map whenever it must install a fresh sub-table;
// it returns the physical address of a freshly zeroed page and a way to
// view it as a *Table. Kept as a callback (rather than baking in a
// specific allocator) so the kernel can satisfy it from the bitmap
// allocator while tests satisfy it from a plain Go slice.
type AllocPage func() (mem.Pa, *Table, error)

// FreePage is the inverse of AllocPage, used by UnmapAll.
type FreePage func(mem.Pa)

// tableAt views a physical address as a *Table. Before the MMU is enabled
// (or for any identity-mapped kernel page table) physical and usable
// addresses coincide.
func tableAt(pa mem.Pa) *Table {
	return (*Table)(unsafe.Pointer(uintptr(pa)))
}

// Map walks from Level2 down to level, installing non-leaf entries (via
// allocPage) as needed, and writes a leaf entry at level with the given
// permission bits (§4.4 "map").
func (t *Table) Map(va uint64, pa mem.Pa, flags Flag, level Level, allocPage AllocPage) error {
	cur := t
	for l := Level2; l > level; l-- {
		idx := vpn(va, l)
		pte := &cur.Entries[idx]
		if !pte.IsValid() {
			childPa, childTable, err := allocPage()
			if err != nil {
				return fmt.Errorf("sv39: map: %w", err)
			}
			*pte = makePTE(uint64(childPa)>>mem.PGSHIFT, FlagV)
			cur = childTable
		} else {
			if pte.IsLeaf() {
				return fmt.Errorf("sv39: map: va %#x already mapped by a superpage above level %d", va, level)
			}
			cur = tableAt(pte.PhysAddr())
		}
	}
	idx := vpn(va, level)
	cur.Entries[idx] = makePTE(uint64(pa)>>mem.PGSHIFT, flags)
	return nil
}

// MapRange greedily picks the largest superpage level that both va and pa
// are aligned to and that at least that many pages remain, repeating
// until nPages pages are mapped (§4.4 "map_range"). Misaligned callers get
// a fatal error, per §9's documented lack of resilience.
func (t *Table) MapRange(va uint64, pa mem.Pa, nPages uint64, flags Flag, allocPage AllocPage) error {
	remaining := nPages
	for remaining > 0 {
		level := chooseLevel(va, uint64(pa), remaining)
		if err := t.Map(va, pa, flags, level, allocPage); err != nil {
			return err
		}
		span := PageSizeAt(level) / mem.PageSize
		va += PageSizeAt(level)
		pa += mem.Pa(PageSizeAt(level))
		remaining -= span
	}
	return nil
}

func chooseLevel(va, pa uint64, remainingPages uint64) Level {
	for l := Level2; l >= Level0; l-- {
		span := PageSizeAt(l) / mem.PageSize
		align := PageSizeAt(l)
		if va%align == 0 && pa%align == 0 && remainingPages >= span {
			return l
		}
	}
	panic(fmt.Sprintf("sv39: map_range: no level fits va=%#x pa=%#x remaining=%d (misaligned callers must page-align first, §9)", va, pa, remainingPages))
}

// Translate walks the table and, on success, returns the physical address
// va maps to, reconstructed from the leaf PPN and the in-page offset at
// that leaf's level (§4.4, §8 "Page table").
func (t *Table) Translate(va uint64) (mem.Pa, bool) {
	cur := t
	for l := Level2; l >= Level0; l-- {
		idx := vpn(va, l)
		pte := cur.Entries[idx]
		if !pte.IsValid() {
			return 0, false
		}
		if pte.IsLeaf() {
			offsetMask := uint64(PageSizeAt(l) - 1)
			return pte.PhysAddr() | mem.Pa(va&offsetMask), true
		}
		cur = tableAt(pte.PhysAddr())
	}
	return 0, false
}

// UnmapAll walks the top table and frees every non-leaf child page
// (leaves are external data this table does not own, §4.4 "unmap_all").
func (t *Table) UnmapAll(freePage FreePage) {
	for i := range t.Entries {
		pte := t.Entries[i]
		if pte.IsValid() && !pte.IsLeaf() {
			child := tableAt(pte.PhysAddr())
			child.unmapChildren(freePage)
			freePage(pte.PhysAddr())
		}
	}
}

func (t *Table) unmapChildren(freePage FreePage) {
	for i := range t.Entries {
		pte := t.Entries[i]
		if pte.IsValid() && !pte.IsLeaf() {
			child := tableAt(pte.PhysAddr())
			child.unmapChildren(freePage)
			freePage(pte.PhysAddr())
		}
	}
}

// Satp builds the SATP register value for Sv39 mode with the given ASID
// and root page table physical address: (8<<60) | (asid<<44) |
// (page_table_addr>>12), per §4.4.
func Satp(asid uint16, root mem.Pa) uint64 {
	return (uint64(8) << 60) | (uint64(asid) << 44) | (uint64(root) >> mem.PGSHIFT)
}
