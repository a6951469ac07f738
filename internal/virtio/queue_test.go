package virtio

import (
	"testing"

	"github.com/AshTS/QorKernel/internal/executor"
)

func TestQueueAddDescriptorChaining(t *testing.T) {
	q := NewQueue()
	a := q.AddDescriptor(Descriptor{Addr: 1, Len: 16})
	b := q.AddDescriptor(Descriptor{Addr: 2, Len: 512})
	q.LinkChain(a, b)

	if q.Descriptors[a].Next != b {
		t.Fatalf("Descriptors[a].Next = %d, want %d", q.Descriptors[a].Next, b)
	}
	if q.Descriptors[a].Flags&DescFNext == 0 {
		t.Fatal("expected DescFNext set on chained descriptor")
	}
}

func TestQueueSubmitAdvancesAvailableIdx(t *testing.T) {
	q := NewQueue()
	before := q.Available.Idx
	head := q.AddDescriptor(Descriptor{Addr: 1, Len: 16})
	q.Submit(head)
	if q.Available.Idx != before+1 {
		t.Fatalf("Available.Idx = %d, want %d", q.Available.Idx, before+1)
	}
	if q.Available.Ring[before] != head {
		t.Fatalf("Available.Ring[%d] = %d, want %d", before, q.Available.Ring[before], head)
	}
}

func TestOperationFuturePendingUntilStatusWritten(t *testing.T) {
	req := newRequest(reqTypeIn, 0, nil)
	f := &OperationFuture{req: req}

	if f.Poll() != executor.Pending {
		t.Fatal("expected Pending while status is still the sentinel")
	}
	req.status.Store(0)
	if f.Poll() != executor.Ready {
		t.Fatal("expected Ready once status leaves the sentinel")
	}
	if f.Result() != nil {
		t.Fatalf("Result() = %v, want nil", f.Result())
	}
}

func TestOperationFutureReportsIOError(t *testing.T) {
	req := newRequest(reqTypeOut, 0, nil)
	req.status.Store(1)
	f := &OperationFuture{req: req}
	f.Poll()
	if f.Result() != ErrIO {
		t.Fatalf("Result() = %v, want ErrIO", f.Result())
	}
}
