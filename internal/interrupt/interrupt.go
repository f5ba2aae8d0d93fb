// Package interrupt builds the x86_64 IDT and dispatches CPU exceptions and
// device IRQs to Go handlers, indexed the same way internal/devtree's
// InterruptTree indexes its 256-wide vector table (spec §4.4, §6).
//
// Grounded on the teacher's main/exceptions.go: a fixed exception-class
// switch (SYNC_EXCEPTION/IRQ/FIQ/SERROR, decoded from ESR_EL1) dispatching
// into Go handlers fed a saved-register snapshot, with InitializeExceptions
// loading a vector table via VBAR_EL1 — retargeted from AArch64's four
// exception classes and one vector-table register to x86_64's 256-entry
// IDT loaded via LIDT, one gate per vector (spec §9: "clearly-marked
// architecture-specific save/restore routine, invoked from the interrupt
// frame handler").
package interrupt

import (
	"unsafe"

	"kstratum/internal/asm"
	"kstratum/internal/klog"
	"kstratum/internal/sched"
)

// CPU exception vectors (Intel SDM Vol. 3A §6.3.1), the x86_64 analogue of
// the teacher's EC_* exception-class constants.
const (
	VecDivideError        = 0
	VecDebug              = 1
	VecNMI                = 2
	VecBreakpoint         = 3
	VecOverflow           = 4
	VecBoundRange         = 5
	VecInvalidOpcode      = 6
	VecDeviceNotAvailable = 7
	VecDoubleFault        = 8
	VecInvalidTSS         = 10
	VecSegmentNotPresent  = 11
	VecStackFault         = 12
	VecGeneralProtection  = 13
	VecPageFault          = 14
	VecFPUError           = 16
	VecAlignmentCheck     = 17
	VecMachineCheck       = 18
	VecSIMDError          = 19

	// NumVectors is the fixed IDT size (spec §3's interrupt tree root also
	// has exactly 256 children, one per vector).
	NumVectors = 256
)

// vectorPushesErrorCode reports whether the CPU pushes a 64-bit error code
// for this exception vector before entering the handler, per the SDM's
// per-vector table; every other vector (including all IRQs) does not.
func vectorPushesErrorCode(vector uint8) bool {
	switch vector {
	case VecDoubleFault, VecInvalidTSS, VecSegmentNotPresent, VecStackFault,
		VecGeneralProtection, VecPageFault, VecAlignmentCheck:
		return true
	default:
		return false
	}
}

// gateDescriptor is one 16-byte IDT entry (64-bit interrupt gate).
type gateDescriptor struct {
	offsetLow  uint16
	selector   uint16
	ist        uint8
	typeAttr   uint8
	offsetMid  uint16
	offsetHigh uint32
	reserved   uint32
}

const gatePresentInterrupt64 = 0x8E // present, DPL=0, type=64-bit interrupt gate

func encodeGate(handler uintptr, selector uint16, ist uint8) gateDescriptor {
	return gateDescriptor{
		offsetLow:  uint16(handler),
		selector:   selector,
		ist:        ist & 0x7,
		typeAttr:   gatePresentInterrupt64,
		offsetMid:  uint16(handler >> 16),
		offsetHigh: uint32(handler >> 32),
	}
}

// pseudoDescriptor is the 10-byte LIDT operand (limit, then base).
type pseudoDescriptor struct {
	limit uint16
	base  uint64
}

// Handler processes one interrupt/exception given the saved register file
// and, for vectors that push one, the CPU error code (0 otherwise).
type Handler func(frame *sched.RegisterFile, errCode uint64)

// Table owns the 256-entry IDT and the Go-side handler table it dispatches
// through. The per-vector entry stubs (save RegisterFile, call Dispatch,
// restore RegisterFile, IRET) are not part of this repository; SetHandler
// takes each stub's address from its caller.
type Table struct {
	entries [NumVectors]gateDescriptor
	pseudo  pseudoDescriptor

	handlers [NumVectors]Handler
	codeSeg  uint16
}

// New builds a Table whose every vector initially runs haltOnUnhandled,
// which parks the core in a halt loop without reporting anything; codeSelector is the kernel code segment
// selector installed in every gate (spec §6: the GDT is set up, and its
// code selector known, before the IDT is loaded).
func New(codeSelector uint16) *Table {
	t := &Table{codeSeg: codeSelector}
	for i := range t.handlers {
		t.handlers[i] = haltOnUnhandled
	}
	return t
}

// haltOnUnhandled mirrors the teacher's unrecognized-exception-class
// default path (print FATAL, then `for {}`): this kernel has no
// unwind/recovery machinery (spec Non-goals exclude user-mode fault
// recovery), so an unexpected vector parks the core rather than risk
// running further on corrupted state.
func haltOnUnhandled(frame *sched.RegisterFile, errCode uint64) {
	for {
		asm.HLT()
	}
}

// NewFaultLogger builds a Handler for a CPU exception vector that logs the
// fault (RIP, RSP, error code, and CR2 for page faults) through log and
// then halts the core — the Go-side equivalent of handleException's
// default branch in the teacher, which prints the ESR/ELR/FAR fields
// before hanging.
func NewFaultLogger(log *klog.Logger, name string) Handler {
	return func(frame *sched.RegisterFile, errCode uint64) {
		log.Fatal(name,
			klog.Hex("rip", frame.RIP),
			klog.Hex("rsp", frame.RSP),
			klog.Hex("err_code", errCode),
			klog.Hex("cr2", asm.ReadCR2()))
	}
}

// SetHandler installs fn as the handler for vector, replacing the default
// halt-on-unhandled behavior, and points that vector's IDT gate at
// stubAddr — the assembly entry trampoline for this specific vector. ist
// selects an alternate stack via the TSS's Interrupt Stack Table (0 means
// "use the current stack"; non-NMI/#DF vectors in this kernel all use 0,
// matching the teacher's single-stack exception path).
func (t *Table) SetHandler(vector uint8, stubAddr uintptr, ist uint8, fn Handler) {
	t.handlers[vector] = fn
	t.entries[vector] = encodeGate(stubAddr, t.codeSeg, ist)
}

// Load installs the table via LIDT. Caller must have interrupts disabled
// (spec §6) and must keep t alive for as long as the IDT stays loaded —
// the CPU holds a pointer to t.entries, not a copy.
func (t *Table) Load() {
	t.pseudo = pseudoDescriptor{
		limit: uint16(unsafe.Sizeof(t.entries) - 1),
		base:  uint64(uintptr(unsafe.Pointer(&t.entries[0]))),
	}
	asm.LIDT(unsafe.Pointer(&t.pseudo))
}

// Dispatch is what every vector's assembly stub calls after saving frame:
// the single Go-side entry point handleException played on the ARM64
// teacher, generalized to dispatch by raw vector number instead of a
// decoded ESR exception class. errCode is whatever vectorPushesErrorCode
// says the CPU pushed, or 0.
func (t *Table) Dispatch(vector uint8, frame *sched.RegisterFile, errCode uint64) {
	t.handlers[vector](frame, errCode)
}

// ErrorCodeFor reports whether vector pushes a CPU error code, so an entry
// stub for that vector knows whether to pop one before building the
// RegisterFile.
func ErrorCodeFor(vector uint8) bool {
	return vectorPushesErrorCode(vector)
}
