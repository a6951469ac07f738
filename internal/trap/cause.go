package trap

import "fmt"

// Sync is one of the 14 synchronous trap causes (§4.5).
type Sync int

const (
	InstructionAddressMisaligned Sync = iota
	InstructionAccessFault
	IllegalInstruction
	Breakpoint
	LoadAddressMisaligned
	LoadAccessFault
	StoreAddressMisaligned
	StoreAccessFault
	EnvironmentCallFromUMode
	EnvironmentCallFromSMode
	EnvironmentCallFromMMode
	InstructionPageFault
	LoadPageFault
	StorePageFault
)

// Async is one of the 9 asynchronous trap causes (§4.5).
type Async int

const (
	UserSoftware Async = iota
	SupervisorSoftware
	MachineSoftware
	UserTimer
	SupervisorTimer
	MachineTimer
	UserExternal
	SupervisorExternal
	MachineExternal
)

// Cause is a decoded RISC-V trap cause: either Sync or Async is set, never
// both (discriminated by IsAsync).
type Cause struct {
	IsAsync bool
	Sync    Sync
	Async   Async
}

const asyncFlag = uint64(1) << 63

// causeFromRaw decodes the raw mcause register value. The top bit is the
// async flag (§4.5); the remaining bits select one of a small, fixed set
// of codes. Unknown codes return ok=false — dispatch treats them as
// fatal, per §7 ("Unknown cause codes ... are fatal").
func causeFromRaw(raw uint64) (Cause, bool) {
	if raw&asyncFlag == 0 {
		s, ok := syncTable[raw]
		if !ok {
			return Cause{}, false
		}
		return Cause{Sync: s}, true
	}
	a, ok := asyncTable[raw&^asyncFlag]
	if !ok {
		return Cause{}, false
	}
	return Cause{IsAsync: true, Async: a}, true
}

var syncTable = map[uint64]Sync{
	0:  InstructionAddressMisaligned,
	1:  InstructionAccessFault,
	2:  IllegalInstruction,
	3:  Breakpoint,
	4:  LoadAddressMisaligned,
	5:  LoadAccessFault,
	6:  StoreAddressMisaligned,
	7:  StoreAccessFault,
	8:  EnvironmentCallFromUMode,
	9:  EnvironmentCallFromSMode,
	11: EnvironmentCallFromMMode,
	12: InstructionPageFault,
	13: LoadPageFault,
	15: StorePageFault,
}

var asyncTable = map[uint64]Async{
	0:  UserSoftware,
	1:  SupervisorSoftware,
	3:  MachineSoftware,
	4:  UserTimer,
	5:  SupervisorTimer,
	7:  MachineTimer,
	8:  UserExternal,
	9:  SupervisorExternal,
	11: MachineExternal,
}

func (c Cause) String() string {
	if c.IsAsync {
		return fmt.Sprintf("async(%d)", c.Async)
	}
	return fmt.Sprintf("sync(%d)", c.Sync)
}
