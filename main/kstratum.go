package main

import (
	"unsafe"

	"kstratum/internal/apic"
	"kstratum/internal/asm"
	"kstratum/internal/chunk"
	"kstratum/internal/cpu"
	"kstratum/internal/devtree"
	"kstratum/internal/interrupt"
	"kstratum/internal/ioport"
	"kstratum/internal/klog"
	"kstratum/internal/mm"
	"kstratum/internal/registry"
	"kstratum/internal/sched"
	"kstratum/internal/serial"
	"kstratum/internal/terminal"
	"kstratum/internal/vmm"

	"kstratum/internal/boot"
)

// KernelMain is the entry point a small assembly trampoline (outside this
// tree; see SPEC_FULL.md §2) calls once the CPU is in 64-bit long mode
// with a flat low-memory identity map already established, passing the
// physical address the bootloader left the Multiboot2 info struct at
// (EBX per the Multiboot2 calling convention).
//
// This is the staged bring-up sequence kernelMainBody in the teacher's
// main/kernel.go follows (UART first for breadcrumbs, then device
// discovery, then interrupts, then timers, then the scheduler), retargeted
// from the teacher's Raspberry Pi peripheral set to this kernel's
// Multiboot2/x86_64 one.
func KernelMain(multibootInfoPhys uintptr) {
	// Stage 0: serial console, before anything else can report failure.
	com1 := serial.New(serial.COM1, ioport.HardwarePort{})
	com1.Init(1) // divisor 1 == 115200 baud
	log := klog.New(com1, "kstratum", func() { haltBSP() })

	log.Info("boot", klog.Hex("multiboot_info", uint64(multibootInfoPhys)))

	// Stage 1: parse the Multiboot2 info struct. Its own first 4 bytes are
	// its total size (spec §6), so the byte slice is built in two steps.
	totalSize := *(*uint32)(unsafe.Pointer(multibootInfoPhys))
	raw := unsafe.Slice((*byte)(unsafe.Pointer(multibootInfoPhys)), totalSize)
	info, err := boot.Parse(raw)
	if err != nil {
		log.Fatal("multiboot parse failed", klog.Str("message", err.Message))
		return
	}
	log.Info("multiboot parsed",
		klog.Str("cmdline", info.CommandLine),
		klog.Int("mem_regions", int64(len(info.MemMap))))

	// Stage 2: CPU feature detection (local APIC presence gates legacy-PIC
	// vs. APIC mode for stage 4).
	cpu.Detect()

	// Stage 3: seed the chunk allocator from every available memory-map
	// region, then build the malloc/free composition layer on top of it.
	numCPU := 1 // AP count isn't known until stage 6's MADT walk; BSP-only until then.
	alloc := chunk.New(numCPU)
	protected := []boot.Region{info.BootImage, info.KernelStack, info.Trampoline, info.BootInfoRegion}
	for _, region := range info.MemMap {
		if region.Type != boot.MemAvailable {
			continue
		}
		for _, piece := range excludeProtected(region, protected) {
			seedRegion(alloc, piece.PhysStart, piece.Length)
		}
	}

	kernelTables := directTables{}
	frames := vmm.NewChunkFrameSource(alloc)
	var kernelHalf vmm.KernelHalf
	kernelSpace, verr := vmm.NewAddressSpace(0, kernelTables, frames, &kernelHalf, nil)
	if verr != nil {
		log.Fatal("address space init failed", klog.Str("message", verr.Message))
		return
	}
	memory := mm.New(alloc, kernelSpace, &registry.Registry{})
	total, free := memory.MemInfo()
	log.Info("chunk allocator seeded", klog.Hex("total_bytes", total), klog.Hex("free_bytes", free))

	// Stage 4: device tree plus the interrupt-controller driver appropriate
	// to this CPU (spec §4.4/§4.5).
	dt := devtree.NewDeviceTree()
	it := devtree.NewInterruptTree(dt)
	dt.RegisterDevice("/", "serial0", "16550", []devtree.Property{
		{Key: "reg", Value: string([]byte{byte(serial.COM1), byte(serial.COM1 >> 8)})},
	})

	mode := apic.DetectMode(cpu.X86.HasAPIC)
	log.Info("interrupt controller mode", klog.Str("mode", modeString(mode)))

	var lapic *apic.LocalAPIC
	if mode == apic.ModeAPIC {
		lapic = apic.NewLocalAPIC(ioport.HardwareMMIO{Base: lapicDefaultBase})
		lapic.EnableSpurious(vectorSpurious)

		ioapicID, ioapicPath := dt.RegisterDevice("/", "ioapic0", "ioapic", nil)
		apic.NewIOAPIC(ioport.HardwareMMIO{Base: ioapicDefaultBase}, ioapicDefaultGSIBase, it, ioapicID, ioapicPath)
	} else {
		pic := apic.NewPIC(ioport.HardwarePort{})
		pic.Remap(vectorPICMasterBase, vectorPICSlaveBase)
	}

	// Stage 5: framebuffer-backed terminal, once the Multiboot2 framebuffer
	// tag has resolved an address (spec §2.10).
	var term *terminal.Terminal
	stream := &terminal.StreamBuffer{}
	if info.Framebuffer.Addr != 0 {
		fbBuf := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(info.Framebuffer.Addr))),
			int(info.Framebuffer.Pitch)*int(info.Framebuffer.Height))
		fb, ferr := terminal.NewFramebuffer(
			int(info.Framebuffer.Width), int(info.Framebuffer.Height), int(info.Framebuffer.Pitch),
			fbBuf, embeddedConsoleFont)
		if ferr != nil {
			log.Warn("framebuffer init failed", klog.Str("message", ferr.Error()))
			term = terminal.New(stream, nil)
		} else {
			term = terminal.New(stream, fb)
		}
	} else {
		term = terminal.New(stream, nil)
	}
	term.MemInfo = memInfoAdapter{memory}
	term.DeviceTree = deviceTreeAdapter{dt}
	term.Boot = bootInfoAdapter{info}

	// Stage 6: HPET-driven timer core, local-APIC oneshot calibrated
	// against it when running in APIC mode (spec §4.6). internal/timer.HPET
	// needs its MMIO base from the ACPI HPET table, which isn't parsed yet
	// (see DESIGN.md's remaining-work note) — deferred rather than wired
	// against a fabricated address.
	log.Warn("HPET wiring deferred: ACPI HPET table parsing not yet implemented")

	// Stage 7: BSP scheduler bring-up. AP startup via INIT/SIPI and the
	// MADT/SRAT topology walk are deferred — see DESIGN.md's remaining
	// teacher main/*.go status section.
	bspSched := sched.NewPerThreadScheduler(0, nil)
	sys := sched.NewSystemScheduler([]*sched.PerThreadScheduler{bspSched})
	term.Processes = processAdapter{sys}

	// Stage 8: x86_64 IDT (spec §6/§9). The gate-descriptor encoding and
	// vector dispatch table are ready (internal/interrupt), but every gate
	// still needs a real assembly entry-stub address — the "clearly-marked
	// architecture-specific save/restore routine" spec §9 calls for —
	// before the table can be loaded safely; an unset gate means "not
	// present", so faulting into one before stubs exist would double-fault.
	// Deferred rather than loaded against fabricated addresses, same as
	// stage 6's HPET wiring.
	interrupt.New(kernelCodeSelector)
	log.Warn("IDT not loaded: per-vector assembly entry stubs not yet written")

	log.Info("boot complete")
}

// excludeProtected splits region into the sub-ranges not covered by any of
// the boot-reserved regions (spec §6: boot image, kernel stack, startup
// trampoline, boot-info itself must not be handed to the chunk allocator).
func excludeProtected(region boot.MemMapEntry, protected []boot.Region) []boot.MemMapEntry {
	pieces := []boot.MemMapEntry{region}
	for _, p := range protected {
		if p.Length == 0 {
			continue
		}
		var next []boot.MemMapEntry
		for _, piece := range pieces {
			pieceEnd := piece.PhysStart + piece.Length
			protEnd := p.Start + p.Length
			if p.Start >= pieceEnd || protEnd <= piece.PhysStart {
				next = append(next, piece) // no overlap
				continue
			}
			if piece.PhysStart < p.Start {
				next = append(next, boot.MemMapEntry{PhysStart: piece.PhysStart, Length: p.Start - piece.PhysStart, Type: piece.Type})
			}
			if protEnd < pieceEnd {
				next = append(next, boot.MemMapEntry{PhysStart: protEnd, Length: pieceEnd - protEnd, Type: piece.Type})
			}
		}
		pieces = next
	}
	return pieces
}

// seedRegion decomposes an available memory-map region into chunk size
// classes the same way internal/mm's super-page path decomposes a
// request: largest class first, so the fewest possible chunk records are
// produced per region.
func seedRegion(alloc *chunk.Allocator, start, length uint64) {
	const pageSize = 4096
	aligned := (start + pageSize - 1) &^ (pageSize - 1)
	length -= aligned - start
	start = aligned

	for class := chunk.Class(chunk.NumClasses - 1); ; class-- {
		size := class.Size()
		for length >= size {
			alloc.Seed(chunk.Chunk{PhysStart: start, Class: class})
			start += size
			length -= size
		}
		if class == chunk.Class4K {
			break
		}
	}
}

// directTables resolves a physical table address by direct pointer
// dereference, relying on the flat identity map the boot trampoline
// establishes for all of low physical memory before calling KernelMain
// (spec §3: "every page table this kernel allocates lives in
// identity-mapped physical RAM").
type directTables struct{}

func (directTables) Table(phys uint64) *vmm.Table {
	return (*vmm.Table)(unsafe.Pointer(uintptr(phys)))
}

func modeString(m apic.Mode) string {
	if m == apic.ModeAPIC {
		return "apic"
	}
	return "legacy-pic"
}

// Local-APIC/IOAPIC MMIO bases and the PIC/APIC vector offsets this kernel
// programs at boot (spec §6).
const (
	lapicDefaultBase     = 0xFEE00000
	ioapicDefaultBase    = 0xFEC00000
	ioapicDefaultGSIBase = 0
	vectorSpurious       = 0xFF
	vectorPICMasterBase  = 0x20
	vectorPICSlaveBase   = 0x28

	// kernelCodeSelector is the GDT selector for ring-0 code, installed in
	// every IDT gate (spec §6: the GDT the boot trampoline sets up before
	// calling KernelMain uses the conventional flat-model layout: null,
	// code, data at indices 0-2).
	kernelCodeSelector = 0x08
)

//go:nosplit
func haltBSP() {
	asm.CLI()
	for {
		asm.HLT()
	}
}
