package bitmap

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/AshTS/QorKernel/internal/mem"
	"golang.org/x/sync/errgroup"
)

func TestLockTrySetAndClear(t *testing.T) {
	words := make([]atomic.Uint64, 2)
	l := NewLock(words, 128)

	ok, err := l.TrySet(0, 10)
	if err != nil || !ok {
		t.Fatalf("TrySet(0,10) = %v, %v", ok, err)
	}
	ok, err = l.TrySet(5, 3)
	if err != nil || ok {
		t.Fatalf("overlapping TrySet should fail cleanly: %v, %v", ok, err)
	}
	// the failed overlapping set must not have disturbed the original bits
	ok, err = l.TrySet(10, 1)
	if err != nil || !ok {
		t.Fatalf("TrySet(10,1) after failed overlap = %v, %v", ok, err)
	}
	if err := l.Clear(0, 11); err != nil {
		t.Fatal(err)
	}
}

func TestLockReserveSequenceAcrossWordBoundary(t *testing.T) {
	words := make([]atomic.Uint64, 4)
	l := NewLock(words, 256)
	// fill the first word entirely
	if _, err := l.ReserveSequence(64); err != nil {
		t.Fatal(err)
	}
	idx, err := l.ReserveSequence(8)
	if err != nil {
		t.Fatal(err)
	}
	if idx != 64 {
		t.Fatalf("expected next run to start at bit 64, got %d", idx)
	}
}

// Scenario 1 (§8): 4096 pages, 4 threads x 128 rounds of
// allocate(thread_index+1) then free. No thread observes an error; the
// final bitmap is all zero.
func TestPageAllocatorContention(t *testing.T) {
	const totalPages = 4096
	backing := make([]mem.Page, totalPages)
	a := FromPages(backing)

	var g errgroup.Group
	for tid := 0; tid < 4; tid++ {
		tid := tid
		g.Go(func() error {
			for round := 0; round < 128; round++ {
				n := uint64(tid + 1)
				p, err := a.Allocate(n)
				if err != nil {
					return fmt.Errorf("thread %d round %d: %w", tid, round, err)
				}
				if err := a.Free(p, n); err != nil {
					return fmt.Errorf("thread %d round %d free: %w", tid, round, err)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	for i, w := range a.bitmap.bitmap {
		if v := w.Load(); v != 0 {
			t.Fatalf("bitmap word %d not fully cleared: %#x", i, v)
		}
	}
}

func TestPageAllocatorFullCapacity(t *testing.T) {
	backing := make([]mem.Page, 1024)
	a := FromPages(backing)
	cap := a.Capacity()

	p, err := a.Allocate(cap)
	if err != nil {
		t.Fatalf("full-capacity allocation should succeed: %v", err)
	}
	if _, err := a.Allocate(1); err == nil {
		t.Fatal("expected OutOfMemory once fully allocated")
	}
	if err := a.Free(p, cap); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Allocate(cap); err != nil {
		t.Fatalf("should be able to reallocate full capacity after free: %v", err)
	}
}
