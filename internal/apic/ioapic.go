// Package apic implements the I/O-APIC, local-APIC, and legacy-PIC drivers
// of spec §4.5, plus the CPUID-leaf topology helpers that feed
// internal/topology.
//
// Grounded on the teacher's GIC driver (main/gic_qemu.go under the
// qemuvirt/aarch64 build tag): an MMIO register-offset const block, a
// distributor/CPU-interface split, and EOI/acknowledge functions gated
// through a narrow MMIO seam. The IOAPIC here plays the distributor's role
// (route ownership, masking) and the LocalAPIC the CPU interface's
// (EOI, IPI, timer) — the same two-level split, retargeted from GICv2's
// register layout to the x86 IOAPIC/LAPIC layout.
package apic

import (
	"kstratum/internal/devtree"
	"kstratum/internal/ioport"
)

// IOAPIC register offsets, accessed indirectly through an index/data pair
// (IOREGSEL selects a register, IOWIN reads/writes it).
const (
	ioregsel = 0x00
	iowin    = 0x10

	ioapicIDReg  = 0x00
	ioapicVerReg = 0x01
	ioapicArbReg = 0x02
	ioredtblBase = 0x10 // entry i occupies registers 0x10+2i (low), 0x10+2i+1 (high)
)

// RedirectionEntry is one 64-bit I/O-redirection-table entry (split here
// into fields rather than carried as a raw uint64, per spec §9's guidance
// to replace ad-hoc bit-packing with explicit config structs).
type RedirectionEntry struct {
	Vector       uint8
	DeliveryMode uint8 // 0=fixed, 4=NMI, ...
	DestMode     uint8 // 0=physical, 1=logical
	Polarity     uint8 // 0=active-high, 1=active-low
	TriggerMode  uint8 // 0=edge, 1=level
	Masked       bool
	Dest         uint8
}

func (e RedirectionEntry) encode() (low, high uint32) {
	low = uint32(e.Vector)
	low |= uint32(e.DeliveryMode&0x7) << 8
	low |= uint32(e.DestMode&0x1) << 11
	low |= uint32(e.Polarity&0x1) << 13
	low |= uint32(e.TriggerMode&0x1) << 15
	if e.Masked {
		low |= 1 << 16
	}
	high = uint32(e.Dest) << 24
	return low, high
}

func decodeRedirectionEntry(low, high uint32) RedirectionEntry {
	return RedirectionEntry{
		Vector:       uint8(low & 0xFF),
		DeliveryMode: uint8((low >> 8) & 0x7),
		DestMode:     uint8((low >> 11) & 0x1),
		Polarity:     uint8((low >> 13) & 0x1),
		TriggerMode:  uint8((low >> 15) & 0x1),
		Masked:       low&(1<<16) != 0,
		Dest:         uint8(high >> 24),
	}
}

// SourceOverride is one ACPI Interrupt-Source-Override record (spec §6):
// retargets a legacy ISA IRQ (e.g. PIT's IRQ 0) onto a different Global
// System Interrupt with its own polarity/trigger flags.
type SourceOverride struct {
	SourceIRQ   uint8
	GSI         uint32
	Polarity    uint8
	TriggerMode uint8
}

// IOAPIC drives one I/O APIC's redirection table and owns the portion of
// the interrupt tree rooted at its device node.
type IOAPIC struct {
	mmio    ioport.MMIO
	gsiBase uint32
	it      *devtree.InterruptTree
	node    devtree.NodeId
	path    string
}

// NewIOAPIC wraps mmio (the I/O APIC's 32-byte register window), covering
// global system interrupts starting at gsiBase, and associates it with
// node/path in the interrupt tree for route bookkeeping.
func NewIOAPIC(mmio ioport.MMIO, gsiBase uint32, it *devtree.InterruptTree, node devtree.NodeId, path string) *IOAPIC {
	return &IOAPIC{mmio: mmio, gsiBase: gsiBase, it: it, node: node, path: path}
}

func (a *IOAPIC) readReg(reg uint32) uint32 {
	a.mmio.Write32(ioregsel, reg)
	return a.mmio.Read32(iowin)
}

func (a *IOAPIC) writeReg(reg, v uint32) {
	a.mmio.Write32(ioregsel, reg)
	a.mmio.Write32(iowin, v)
}

// SetIRQ writes the 64-bit redirection entry for local IRQ index i (GSI =
// gsiBase+i) by programming the selector then the low/high data registers,
// then registers the route's owner into the interrupt tree (spec §4.5
// set_irq).
func (a *IOAPIC) SetIRQ(i int, e RedirectionEntry, owner devtree.NodeId) bool {
	reg := uint32(ioredtblBase + 2*i)
	low, high := e.encode()
	a.writeReg(reg+1, high) // high word first so a half-written entry is never unmasked
	a.writeReg(reg, low)
	return a.it.RegisterIntRoute(owner, a.path, i)
}

// GetIRQ reads back local IRQ index i's redirection entry (spec get_irq).
func (a *IOAPIC) GetIRQ(i int) RedirectionEntry {
	reg := uint32(ioredtblBase + 2*i)
	low := a.readReg(reg)
	high := a.readReg(reg + 1)
	return decodeRedirectionEntry(low, high)
}

// ApplyOverride retargets the redirection entry at src.GSI-gsiBase to carry
// src's polarity/trigger flags and vector/owner, the ACPI
// Interrupt-Source-Override handling spec §4.5 calls for (e.g. legacy IRQ 0
// -> GSI 2 on most chipsets).
func (a *IOAPIC) ApplyOverride(src SourceOverride, vector uint8, owner devtree.NodeId) bool {
	if src.GSI < a.gsiBase {
		return false
	}
	i := int(src.GSI - a.gsiBase)
	return a.SetIRQ(i, RedirectionEntry{
		Vector:      vector,
		Polarity:    src.Polarity,
		TriggerMode: src.TriggerMode,
	}, owner)
}

// ApplyNMI configures local IRQ index i as an NMI source, as ACPI MADT
// apic_nmi entries require (spec §6): delivery mode NMI, polarity/trigger
// taken from the table, never masked.
func (a *IOAPIC) ApplyNMI(i int, polarity, triggerMode uint8, dest uint8, owner devtree.NodeId) bool {
	const deliveryModeNMI = 4
	return a.SetIRQ(i, RedirectionEntry{
		DeliveryMode: deliveryModeNMI,
		Polarity:     polarity,
		TriggerMode:  triggerMode,
		Dest:         dest,
	}, owner)
}
