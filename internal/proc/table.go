package proc

import "sync"

// Table is the kernel-wide process table, keyed by PID (§3 "Process
// table"). Scenario-level code (cmd/kernel, tests) owns one instance;
// there is no package-level global so tests can run in isolation.
type Table struct {
	mu   sync.Mutex
	byID map[uint16]*Process
	// order preserves insertion order so SwitchToFirst is deterministic,
	// matching the single-threaded run loop §4.8 assumes.
	order []uint16
}

// NewTable returns an empty process table.
func NewTable() *Table {
	return &Table{byID: make(map[uint16]*Process)}
}

// Insert adds p to the table.
func (t *Table) Insert(p *Process) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := uint16(p.PID)
	if _, exists := t.byID[key]; !exists {
		t.order = append(t.order, key)
	}
	t.byID[key] = p
}

// Remove deletes a process from the table, e.g. on termination.
func (t *Table) Remove(pid uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byID, pid)
	for i, k := range t.order {
		if k == pid {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// Lookup finds a process by PID.
func (t *Table) Lookup(pid uint16) (*Process, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.byID[pid]
	return p, ok
}

// First returns the earliest-inserted still-present process, if any.
func (t *Table) First() (*Process, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.order) == 0 {
		return nil, false
	}
	return t.byID[t.order[0]], true
}

// SwitchToFirst implements trap.Scheduler: it switches to the first
// process in the table, if any (§4.5 MachineTimer handling). It returns
// false when the table is empty; otherwise it calls SwitchTo, which does
// not return on riscv64 and panics on other architectures.
func (t *Table) SwitchToFirst() bool {
	p, ok := t.First()
	if !ok {
		return false
	}
	SwitchTo(p)
	return true
}
