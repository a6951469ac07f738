package plic

import (
	"testing"
	"unsafe"

	"github.com/AshTS/QorKernel/internal/id"
)

// newTestPLIC backs a PLIC with a plain heap allocation standing in for
// the MMIO window, large enough to cover hart 0's claim register.
func newTestPLIC() *PLIC {
	buf := make([]byte, claimBase+claimStride)
	return New(uintptr(unsafe.Pointer(&buf[0])))
}

func TestEnableSetsBitDisableClearsIt(t *testing.T) {
	p := newTestPLIC()
	const hart id.HartID = 0
	const source uint32 = 5

	if p.IsEnabled(hart, source) {
		t.Fatal("source should start disabled")
	}
	p.Enable(hart, source)
	if !p.IsEnabled(hart, source) {
		t.Fatal("Enable should set the bit")
	}
	p.Disable(hart, source)
	if p.IsEnabled(hart, source) {
		t.Fatal("Disable should clear the bit")
	}
}

func TestEnableDisableIdempotent(t *testing.T) {
	p := newTestPLIC()
	const hart id.HartID = 0
	const source uint32 = 12

	p.Enable(hart, source)
	p.Enable(hart, source)
	if !p.IsEnabled(hart, source) {
		t.Fatal("double Enable should stay enabled")
	}

	p.Disable(hart, source)
	p.Disable(hart, source)
	if p.IsEnabled(hart, source) {
		t.Fatal("double Disable should stay disabled")
	}
}

func TestEnableDoesNotDisturbOtherSources(t *testing.T) {
	p := newTestPLIC()
	const hart id.HartID = 0

	p.Enable(hart, 1)
	p.Enable(hart, 2)
	p.Disable(hart, 1)

	if p.IsEnabled(hart, 1) {
		t.Fatal("source 1 should be disabled")
	}
	if !p.IsEnabled(hart, 2) {
		t.Fatal("source 2 should remain enabled")
	}
}

func TestClaimCompleteRoundTrip(t *testing.T) {
	p := newTestPLIC()
	const hart id.HartID = 0

	if _, ok := p.Claim(hart); ok {
		t.Fatal("expected no pending source initially")
	}

	// simulate the PLIC presenting source 3 as claimable
	*p.claimPtr(hart) = 3
	source, ok := p.Claim(hart)
	if !ok || source != 3 {
		t.Fatalf("Claim() = %d,%v, want 3,true", source, ok)
	}
	p.Complete(hart, source)
}
