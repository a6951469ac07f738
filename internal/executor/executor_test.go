package executor

import "testing"

func TestStepFIFOOrder(t *testing.T) {
	e := New()
	var order []int
	for i := 0; i < 3; i++ {
		i := i
		ran := false
		e.Spawn(FutureFunc(func() Poll {
			if ran {
				return Ready
			}
			ran = true
			order = append(order, i)
			return Ready
		}))
	}
	e.Run()
	want := []int{0, 1, 2}
	if len(order) != len(want) {
		t.Fatalf("order = %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestTaskYieldPendingThenReady(t *testing.T) {
	y := Yield()
	if y.Poll() != Pending {
		t.Fatal("first poll should be Pending")
	}
	if y.Poll() != Ready {
		t.Fatal("second poll should be Ready")
	}
}

func TestRunUntilPendingStopsWhenNoProgress(t *testing.T) {
	e := New()
	polls := 0
	e.Spawn(FutureFunc(func() Poll {
		polls++
		return Pending // never completes on its own
	}))
	e.RunUntilPending()
	if polls != 1 {
		t.Fatalf("expected exactly one poll in a single stalled sweep, got %d", polls)
	}
	if e.Len() != 1 {
		t.Fatalf("stalled task should remain queued, Len() = %d", e.Len())
	}
}

type fakeClock struct{ t uint64 }

func (c *fakeClock) Now() uint64 { return c.t }

func TestTimerFutureReadyAtTarget(t *testing.T) {
	clock := &fakeClock{t: 0}
	timer := After(clock, 10)
	if timer.Poll() != Pending {
		t.Fatal("expected Pending before target")
	}
	clock.t = 10
	if timer.Poll() != Ready {
		t.Fatal("expected Ready at target")
	}
}

func TestRunDrainsMixedPendingAndReady(t *testing.T) {
	e := New()
	remaining := 3
	e.Spawn(FutureFunc(func() Poll {
		remaining--
		if remaining <= 0 {
			return Ready
		}
		return Pending
	}))
	e.Spawn(Yield())
	e.Run()
	if e.Len() != 0 {
		t.Fatalf("Run should drain the queue, Len() = %d", e.Len())
	}
}
