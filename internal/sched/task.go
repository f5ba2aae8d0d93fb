// Package sched implements the per-thread task scheduler and syscall
// dispatch of spec §3 "Scheduler state", §4.7, §4.8.
//
// Grounded on the teacher's goroutine.go/stack_growth.go (a saved-register
// snapshot driving a cooperative-scheduling interrupt frame): the same
// "save a register file, restore a different one" shape, generalized from
// the Go runtime's own g/m/p bookkeeping to the spec's explicit
// round-robin-with-priority-counts state machine.
package sched

// LoadType bits categorize a task's resource usage for the system
// scheduler's lowest-total-load placement (spec §3 "load_type bitmask").
type LoadType uint32

const (
	LoadInteger LoadType = 1 << iota
	LoadFloat
	LoadMemory
	LoadPeripheral
)

// WaitState is a task's suspension kind (spec §3, §4.7 state diagram).
type WaitState int

const (
	WaitNone WaitState = iota
	WaitSkip
	WaitLazy
)

// RegisterFile is the saved CPU state for one task: general registers,
// RFLAGS, RSP, RIP, and the 512-byte FXSAVE area (spec §3: "16-byte
// aligned"). The FXSave array's own alignment is documented, not enforced
// by the Go type system — the interrupt-frame save/restore routine that
// copies into and out of this struct is the architecture-specific,
// explicitly-unsafe piece spec §9 calls out ("preserve as-is with a
// clearly-marked save/restore routine").
type RegisterFile struct {
	RAX, RBX, RCX, RDX uint64
	RSI, RDI, RBP      uint64
	R8, R9, R10, R11    uint64
	R12, R13, R14, R15  uint64
	RFLAGS, RSP, RIP    uint64
	FXSave              [512]byte
}

// Task is one scheduled unit of work (spec §3 process/task record).
type Task struct {
	SavedState RegisterFile

	Pid             int64
	Priority        int
	RoundsRemaining int64 // -1 == infinite
	PriorityCount   int
	LoadType        LoadType
	Wait            WaitState
	LazyUntil       uint64 // valid only when Wait == WaitLazy

	Main   func()
	Output OutputStream

	// IOBuf is the pre-sliced user buffer for the read/write syscall
	// currently in flight. No code in this repository fills it from a raw
	// user-space pointer; when it is nil or its length differs from the
	// requested count, the syscall table falls back to a throwaway buffer
	// — see DESIGN.md's note on the read/write syscalls.
	IOBuf []byte

	AddressSpaceIndex int

	UserStack, KernelStack uintptr

	Parent   *Task
	Children []*Task
}

// Runnable reports whether t is eligible to be scheduled this tick (spec
// §4.7's check_waiting): WaitNone is always runnable; WaitSkip never is
// until explicitly cleared by whatever condition it is skipping for;
// WaitLazy becomes runnable once now has reached LazyUntil (spec §4.6
// sleep()'s lazy_check mechanism).
func (t *Task) Runnable(now uint64) bool {
	switch t.Wait {
	case WaitNone:
		return true
	case WaitLazy:
		return now >= t.LazyUntil
	default: // WaitSkip
		return false
	}
}
