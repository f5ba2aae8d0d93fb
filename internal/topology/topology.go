// Package topology builds the logical/physical/socket/NUMA mapping of
// spec §4.5/§6 from parsed MADT processor entries and CPUID-discovered
// APIC-ID bit widths, plus SRAT affinity entries bucketing cores and
// memory ranges into NUMA domains.
//
// Grounded on the teacher's dtb_qemu.go, which walks a firmware-supplied
// device tree blob to discover CPU/memory topology at boot; this package
// performs the equivalent walk over ACPI MADT/SRAT table entries instead of
// a DTB, keeping the same "parse a firmware table once at boot into a
// small in-memory struct" shape.
package topology

// ProcessorEntry mirrors one ACPI MADT processor_apic/processor_x2apic
// record (spec §6): a CPU's APIC ID and whether the firmware marked it
// enabled.
type ProcessorEntry struct {
	ApicID  uint32
	Enabled bool
}

// CoreLocation is the decoded (core_index, thread_index) pair for one APIC
// ID (spec §4.5).
type CoreLocation struct {
	ApicID      uint32
	CoreIndex   uint32
	ThreadIndex uint32
}

// BitWidths carries the core/thread bit counts CPUID leaf 0x0B or
// 0x80000008 reported (internal/apic.TopologyBitWidths), so this package
// never imports internal/apic and stays free of any CPUID dependency
// itself — it only decodes APIC IDs it is handed.
type BitWidths struct {
	ThreadBits uint8
	CoreBits   uint8
}

// Decode splits apicID into (core_index, thread_index) using bw's bit
// widths: the low ThreadBits bits select the thread within a core, the
// next CoreBits bits select the core within a package (spec §4.5).
func (bw BitWidths) Decode(apicID uint32) CoreLocation {
	threadMask := uint32(1)<<bw.ThreadBits - 1
	thread := apicID & threadMask
	core := (apicID >> bw.ThreadBits) & (uint32(1)<<bw.CoreBits - 1)
	return CoreLocation{ApicID: apicID, CoreIndex: core, ThreadIndex: thread}
}

// MemoryRange is one ACPI SRAT mem_affinity record: a physical range
// attributed to a NUMA domain.
type MemoryRange struct {
	Domain uint32
	Base   uint64
	Length uint64
}

// Topology is the fully-decoded system topology: every enabled processor's
// location, plus the NUMA domain each belongs to and the memory ranges
// attributed to each domain.
type Topology struct {
	Widths    BitWidths
	Cores     []CoreLocation
	CoreNUMA  map[uint32]uint32 // apic ID -> NUMA domain, from SRAT apic_affinity/x2apic_affinity
	MemRanges []MemoryRange
}

// Build decodes every enabled processor entry against widths, yielding a
// Topology with an empty NUMA map; callers add SRAT data with
// AddCoreAffinity/AddMemoryRange as they parse the table (ACPI parsing
// itself is an external contract per spec §1 — this package only consumes
// already-parsed entries).
func Build(widths BitWidths, processors []ProcessorEntry) *Topology {
	t := &Topology{Widths: widths, CoreNUMA: make(map[uint32]uint32)}
	for _, p := range processors {
		if !p.Enabled {
			continue
		}
		t.Cores = append(t.Cores, widths.Decode(p.ApicID))
	}
	return t
}

// AddCoreAffinity records that apicID belongs to NUMA domain, from an SRAT
// apic_affinity or x2apic_affinity entry.
func (t *Topology) AddCoreAffinity(apicID uint32, domain uint32) {
	t.CoreNUMA[apicID] = domain
}

// AddMemoryRange records an SRAT mem_affinity entry.
func (t *Topology) AddMemoryRange(r MemoryRange) {
	t.MemRanges = append(t.MemRanges, r)
}

// DomainOf returns the NUMA domain apicID was placed in by SRAT, or
// (0, false) if no affinity entry named it (uniform-memory systems with no
// SRAT table leave every core in the implicit single domain 0).
func (t *Topology) DomainOf(apicID uint32) (uint32, bool) {
	d, ok := t.CoreNUMA[apicID]
	return d, ok
}
