package clint

import (
	"testing"
	"unsafe"

	"github.com/AshTS/QorKernel/internal/id"
)

func newTestClint() *Clint {
	buf := make([]byte, mtimeOffset+8)
	return New(uintptr(unsafe.Pointer(&buf[0])))
}

func TestSetTimeArmsMtimecmpAheadOfNow(t *testing.T) {
	c := newTestClint()
	const hart id.HartID = 0
	before := c.Now()
	c.SetTime(hart, 1000) // 1ms
	got := *c.mtimecmpPtr(hart)
	want := before + 1000*(tickHz/1_000_000)
	if got != want {
		t.Fatalf("mtimecmp = %d, want %d", got, want)
	}
}

func TestHandleInterruptRearmsUsingConfiguredStep(t *testing.T) {
	c := newTestClint()
	const hart id.HartID = 0
	c.SetStepMicros(500)
	c.HandleInterrupt(hart)
	got := *c.mtimecmpPtr(hart)
	want := c.Now() + 500*(tickHz/1_000_000)
	if got != want {
		t.Fatalf("mtimecmp = %d, want %d", got, want)
	}
}

func TestSetFrequencyDerivesStep(t *testing.T) {
	c := newTestClint()
	c.SetFrequency(100) // 100Hz -> 10ms step
	if got := c.stepUs.Load(); got != 10_000 {
		t.Fatalf("stepUs = %d, want 10000", got)
	}
}

func TestSoftwareInterruptSendClear(t *testing.T) {
	c := newTestClint()
	const hart id.HartID = 1
	c.SendSoftwareInterrupt(hart)
	if *c.msipPtr(hart) == 0 {
		t.Fatal("expected MSIP bit set")
	}
	c.ClearSoftwareInterrupt(hart)
	if *c.msipPtr(hart) != 0 {
		t.Fatal("expected MSIP bit cleared")
	}
}
