package executor

// TaskYield is Pending the first time it's polled and Ready the second,
// giving other queued tasks a turn without blocking on any real condition
// (§4.8 "task_yield").
type TaskYield struct {
	polledOnce bool
}

// Yield returns a fresh TaskYield future.
func Yield() *TaskYield {
	return &TaskYield{}
}

// Poll implements Future.
func (y *TaskYield) Poll() Poll {
	if !y.polledOnce {
		y.polledOnce = true
		return Pending
	}
	return Ready
}

// Clock is the minimal time source a TimerFuture polls.
type Clock interface {
	Now() uint64
}

// TimerFuture is Ready once the clock reaches a target tick (§4.8/§8
// "timer tick", built on the CLINT's free-running counter).
type TimerFuture struct {
	clock  Clock
	target uint64
}

// After returns a future that becomes Ready once clock.Now() >= target.
func After(clock Clock, target uint64) *TimerFuture {
	return &TimerFuture{clock: clock, target: target}
}

// Poll implements Future.
func (t *TimerFuture) Poll() Poll {
	if t.clock.Now() >= t.target {
		return Ready
	}
	return Pending
}
