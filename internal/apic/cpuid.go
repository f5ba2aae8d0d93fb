package apic

import (
	"kstratum/internal/asm"
	"kstratum/internal/cpu"
)

// HasLocalAPIC reports whether the running CPU advertises a local APIC
// (spec §4.5). Delegates to internal/cpu's CPUID-leaf-1 decode rather than
// re-issuing the same leaf, so every caller of cpu.Detect sees a consistent
// answer. Callers must have called cpu.Detect at least once (done at boot).
func HasLocalAPIC() bool {
	return cpu.X86.HasAPIC
}

// TopologyBitWidths discovers the APIC-ID bit widths used to decode
// core/thread indices from an APIC ID (spec §4.5:
// "(apic_id, core_bits, thread_bits) -> (core_index, thread_index)").
// It prefers Intel's CPUID leaf 0x0B (extended topology enumeration) and
// falls back to AMD's leaf 0x80000008 when leaf 0x0B reports no levels.
// coreBits is the width of the core field alone, above the thread bits, so
// leaf 0x0B's cumulative core shift has the SMT shift subtracted.
//
// Grounded on the amd64 CPUID register-struct idiom in
// _examples/other_examples (arch_amd64.go.go): small leaf/subleaf wrapper
// functions over the single asm.CPUID primitive rather than a giant
// feature-bitmask struct, since only two leaves matter here.
func TopologyBitWidths() (threadBits, coreBits uint8) {
	if tb, cb, ok := intelExtendedTopology(); ok {
		if cb >= tb {
			cb -= tb
		}
		return tb, cb
	}
	return amdTopologyFromLeaf8()
}

// intelExtendedTopology walks CPUID leaf 0x0B subleaves until level type 1
// (SMT) and level type 2 (core) are found, returning the "x2APIC ID shift"
// each level reports (EAX bits 0-4), which is the number of low bits of the
// APIC ID identifying that level and everything below it.
func intelExtendedTopology() (threadBits, coreBits uint8, ok bool) {
	const (
		levelTypeInvalid = 0
		levelTypeSMT     = 1
		levelTypeCore    = 2
	)
	for subleaf := uint32(0); subleaf < 8; subleaf++ {
		eax, _, ecx, _ := asm.CPUID(0x0B, subleaf)
		levelType := (ecx >> 8) & 0xFF
		shift := eax & 0x1F
		switch levelType {
		case levelTypeSMT:
			threadBits = uint8(shift)
			ok = true
		case levelTypeCore:
			coreBits = uint8(shift)
			ok = true
		case levelTypeInvalid:
			return threadBits, coreBits, ok
		}
	}
	return threadBits, coreBits, ok
}

// amdTopologyFromLeaf8 reads CPUID leaf 0x80000008 ECX, whose bits 12-15
// give ApicIdCoreIdSize (log2 of the maximum number of cores per package);
// AMD parts before the SMT era expose no separate thread field, so
// threadBits is reported as 0 (matching the spec's silence on an AMD SMT
// fallback — every AMD "thread" it must distinguish is modeled as a core).
func amdTopologyFromLeaf8() (threadBits, coreBits uint8) {
	_, _, ecx, _ := asm.CPUID(0x80000008, 0)
	apicIDCoreIDSize := (ecx >> 12) & 0xF
	return 0, uint8(apicIDCoreIDSize)
}
