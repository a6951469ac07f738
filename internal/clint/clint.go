// Package clint drives the Core Local Interruptor: per-hart software
// interrupt bits and the machine timer compare registers (§6 "CLINT").
package clint

import (
	"sync/atomic"
	"unsafe"

	"github.com/AshTS/QorKernel/internal/id"
)

const (
	msipOffset      = 0x0000
	mtimecmpOffset  = 0x4000
	mtimeOffset     = 0xBFF8
	mtimecmpStride  = 8
	msipStride      = 4
	tickHz          = 10_000_000 // 10MHz per §6
)

// Clint is the memory-mapped CLINT device at a fixed base address.
type Clint struct {
	base     uintptr
	stepUs   atomic.Uint64
}

// New returns a Clint mapped at base, with a default 10ms (10_000us) tick
// step until SetFrequency or SetStepMicros changes it.
func New(base uintptr) *Clint {
	c := &Clint{base: base}
	c.stepUs.Store(10_000)
	return c
}

// SetFrequency sets the rearm step so the timer fires at hz ticks per
// second.
func (c *Clint) SetFrequency(hz uint64) {
	if hz == 0 {
		hz = 1
	}
	c.stepUs.Store(1_000_000 / hz)
}

// SetStepMicros sets the rearm step directly, in microseconds.
func (c *Clint) SetStepMicros(us uint64) {
	c.stepUs.Store(us)
}

// mtime is a single free-running counter shared by every hart (§6).
func (c *Clint) mtimePtr() *uint64 {
	return (*uint64)(unsafe.Pointer(c.base + mtimeOffset))
}

func (c *Clint) mtimecmpPtr(hart id.HartID) *uint64 {
	return (*uint64)(unsafe.Pointer(c.base + mtimecmpOffset + uintptr(hart)*mtimecmpStride))
}

func (c *Clint) msipPtr(hart id.HartID) *uint32 {
	return (*uint32)(unsafe.Pointer(c.base + msipOffset + uintptr(hart)*msipStride))
}

// Now reads the free-running mtime counter (shared across harts).
func (c *Clint) Now() uint64 {
	return atomic.LoadUint64(c.mtimePtr())
}

// SetTime arms mtimecmp[hart] to fire deltaUs microseconds from now
// (§4.5/§8 "timer tick").
func (c *Clint) SetTime(hart id.HartID, deltaUs uint64) {
	now := c.Now()
	ticks := deltaUs * (tickHz / 1_000_000)
	atomic.StoreUint64(c.mtimecmpPtr(hart), now+ticks)
}

// HandleInterrupt rearms the timer for the given hart using the
// previously configured step, acknowledging the current tick (§4.5
// MachineTimer handling).
func (c *Clint) HandleInterrupt(hart id.HartID) {
	c.SetTime(hart, c.stepUs.Load())
}

// SendSoftwareInterrupt sets hart's MSIP bit, requesting an IPI.
func (c *Clint) SendSoftwareInterrupt(hart id.HartID) {
	atomic.StoreUint32(c.msipPtr(hart), 1)
}

// ClearSoftwareInterrupt clears hart's MSIP bit.
func (c *Clint) ClearSoftwareInterrupt(hart id.HartID) {
	atomic.StoreUint32(c.msipPtr(hart), 0)
}
