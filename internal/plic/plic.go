// Package plic drives the Platform-Level Interrupt Controller: per-source
// priorities, per-hart enable bitmaps and thresholds, and the
// claim/complete handshake (§6 "PLIC").
package plic

import (
	"sync/atomic"
	"unsafe"

	"github.com/AshTS/QorKernel/internal/id"
)

const (
	priorityStride = 4
	enableBase     = 0x2000
	enableStride   = 0x80
	thresholdBase  = 0x20_0000
	thresholdStride = 0x1000
	claimBase      = 0x20_0004
	claimStride    = 0x1000
)

// PLIC is the memory-mapped PLIC device at a fixed base address.
type PLIC struct {
	base uintptr
}

// New returns a PLIC mapped at base.
func New(base uintptr) *PLIC {
	return &PLIC{base: base}
}

func (p *PLIC) priorityPtr(source uint32) *uint32 {
	return (*uint32)(unsafe.Pointer(p.base + uintptr(source)*priorityStride))
}

func (p *PLIC) enablePtr(hart id.HartID) *uint64 {
	return (*uint64)(unsafe.Pointer(p.base + enableBase + uintptr(hart)*enableStride))
}

func (p *PLIC) thresholdPtr(hart id.HartID) *uint32 {
	return (*uint32)(unsafe.Pointer(p.base + thresholdBase + uintptr(hart)*thresholdStride))
}

func (p *PLIC) claimPtr(hart id.HartID) *uint32 {
	return (*uint32)(unsafe.Pointer(p.base + claimBase + uintptr(hart)*claimStride))
}

// SetPriority sets source's interrupt priority (0 disables it globally).
func (p *PLIC) SetPriority(source uint32, priority uint32) {
	atomic.StoreUint32(p.priorityPtr(source), priority)
}

// SetThreshold sets hart's priority threshold; sources at or below
// threshold are masked.
func (p *PLIC) SetThreshold(hart id.HartID, threshold uint32) {
	atomic.StoreUint32(p.thresholdPtr(hart), threshold)
}

// Enable sets source's bit in hart's enable bitmap.
func (p *PLIC) Enable(hart id.HartID, source uint32) {
	fetchOr(p.enablePtr(hart), uint64(1)<<uint(source))
}

// Disable clears source's bit in hart's enable bitmap. Idempotent: calling
// it again, or on an already-disabled source, is a no-op (§8 "PLIC").
func (p *PLIC) Disable(hart id.HartID, source uint32) {
	fetchAnd(p.enablePtr(hart), ^(uint64(1) << uint(source)))
}

// IsEnabled reports whether source is enabled for hart.
func (p *PLIC) IsEnabled(hart id.HartID, source uint32) bool {
	return atomic.LoadUint64(p.enablePtr(hart))&(uint64(1)<<uint(source)) != 0
}

// Claim returns the highest-priority pending interrupt source for hart, or
// ok=false if none is pending.
func (p *PLIC) Claim(hart id.HartID) (uint32, bool) {
	source := atomic.LoadUint32(p.claimPtr(hart))
	if source == 0 {
		return 0, false
	}
	return source, true
}

// Complete acknowledges source as serviced for hart.
func (p *PLIC) Complete(hart id.HartID, source uint32) {
	atomic.StoreUint32(p.claimPtr(hart), source)
}

// Initialize mirrors the boot-time setup the kernel performs on the boot
// hart: every wired interrupt source gets priority 7 and is enabled, and
// the hart's threshold is set to 1, so only sources with priority above 1
// fire (grounded in qor-os's initialize_plic).
func (p *PLIC) Initialize(bootHart id.HartID, sources []uint32) {
	for _, s := range sources {
		p.SetPriority(s, 7)
		p.Enable(bootHart, s)
	}
	p.SetThreshold(bootHart, 1)
}

// fetchOr and fetchAnd implement the read-modify-write atomics go1.21's
// atomic.Uint64 doesn't expose directly (Or/And were added in go1.23); we
// use a raw *uint64 with sync/atomic's CAS loop instead.
func fetchOr(addr *uint64, mask uint64) {
	for {
		old := atomic.LoadUint64(addr)
		if atomic.CompareAndSwapUint64(addr, old, old|mask) {
			return
		}
	}
}

func fetchAnd(addr *uint64, mask uint64) {
	for {
		old := atomic.LoadUint64(addr)
		if atomic.CompareAndSwapUint64(addr, old, old&mask) {
			return
		}
	}
}
