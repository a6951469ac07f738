package proc_test

import (
	"bytes"
	"testing"

	"github.com/AshTS/QorKernel/internal/bitmap"
	"github.com/AshTS/QorKernel/internal/byteheap"
	"github.com/AshTS/QorKernel/internal/mem"
	"github.com/AshTS/QorKernel/internal/proc"
)

func TestConsoleFileWriteStagesThroughHeap(t *testing.T) {
	backing := make([]mem.Page, 4)
	pages := bitmap.FromPages(backing)
	seed, err := pages.Allocate(1)
	if err != nil {
		t.Fatalf("seed allocation: %v", err)
	}
	heap := byteheap.NewHeap(seed[:], pages)

	var out bytes.Buffer
	f := proc.NewConsoleFile(&out, heap)

	future := f.Write([]byte("hello"))
	if future.Poll() != proc.WriteReady {
		t.Fatal("expected console write to be Ready on first poll")
	}
	n, err := future.Result()
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if n != 5 || out.String() != "hello" {
		t.Fatalf("got n=%d out=%q, want n=5 out=%q", n, out.String(), "hello")
	}
}

func TestConsoleFileWriteWithoutHeapWritesDirectly(t *testing.T) {
	var out bytes.Buffer
	f := proc.NewConsoleFile(&out, nil)

	future := f.Write([]byte("world"))
	n, err := future.Result()
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if n != 5 || out.String() != "world" {
		t.Fatalf("got n=%d out=%q, want n=5 out=%q", n, out.String(), "world")
	}
}
