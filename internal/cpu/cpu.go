// Package cpu holds processor feature flags decoded once from CPUID and
// shared across the packages that need them, instead of each caller
// re-issuing the same leaf (spec §4.5 "legacy-PIC-vs-APIC mode
// detection", §4.6 "HPET vs. invariant TSC as a time source").
//
// Grounded on the teacher's internal/cpu (itself adapted from the Go
// runtime's runtime/internal/cpu): a cache-line-padded struct of booleans
// populated once at init, read everywhere else without locking. Retargeted
// from the ARM64 LSE-atomics flag mazboot carried to the x86_64 feature
// bits this kernel's APIC, timer, and topology layers actually consult.
package cpu

import "kstratum/internal/asm"

// CacheLinePad pads a struct to avoid false sharing between feature flags
// read from every core and whatever the linker places next to them.
type CacheLinePad struct{ _ [64]byte }

// X86 holds the feature bits this kernel consults at boot. Detect must run
// once on the BSP before any of these are read.
var X86 struct {
	_ CacheLinePad

	HasAPIC         bool // CPUID.1:EDX[9] — local APIC present (spec §4.5)
	HasMSR          bool // CPUID.1:EDX[5] — RDMSR/WRMSR available
	HasX2APIC       bool // CPUID.1:ECX[21] — x2APIC mode available
	HasInvariantTSC bool // CPUID.80000007h:EDX[8] — TSC rate is constant across P-states
	HasHTT          bool // CPUID.1:EDX[28] — logical processors field in EBX is meaningful

	_ CacheLinePad
}

// Detect reads CPUID once and populates X86. Safe to call more than once;
// later calls simply re-derive the same values.
func Detect() {
	_, _, ecx, edx := asm.CPUID(1, 0)
	X86.HasAPIC = edx&(1<<9) != 0
	X86.HasMSR = edx&(1<<5) != 0
	X86.HasX2APIC = ecx&(1<<21) != 0
	X86.HasHTT = edx&(1<<28) != 0

	_, _, _, edx8 := asm.CPUID(0x80000007, 0)
	X86.HasInvariantTSC = edx8&(1<<8) != 0
}
