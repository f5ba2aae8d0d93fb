// Package boot ingests the boot-info record spec §6 describes: a
// Multiboot2-style fixed-slot tag table delivered by the boot stub, out of
// scope itself (spec §1: "the boot loader and ELF loader... deliver a
// memory map, module table, and a framebuffer") but consumed here to
// populate the structures the rest of the kernel initializes from.
//
// Grounded on the teacher's dtb_qemu.go: a raw big-endian tag-stream
// parser reading a firmware-supplied blob with manual byte decoding
// through unsafe.Pointer, no allocation beyond what's needed to hold the
// decoded result. This package performs the equivalent walk over a
// little-endian Multiboot2 tag stream instead of a big-endian FDT.
package boot

import (
	"encoding/binary"

	"kstratum/internal/kernelerr"
)

// Multiboot2 tag types (spec §6 plus the command-line/bootloader-name tags
// SPEC_FULL.md supplements: every real Multiboot2 loader emits them and
// original_source/include/loader.h reads them, even though spec.md's list
// omits them).
const (
	tagEnd          = 0
	tagCommandLine  = 1
	tagLoaderName   = 2
	tagModule       = 3
	tagBasicMeminfo = 4
	tagMemoryMap    = 6
	tagFramebuffer  = 8
	tagELFSections  = 9
	tagACPIOldRSDP  = 14
	tagACPINewRSDP  = 15
	tagEFIMemoryMap = 17
)

// MemRegionType classifies one memory-map entry (spec §6).
type MemRegionType uint32

const (
	MemAvailable   MemRegionType = 1
	MemReserved    MemRegionType = 2
	MemACPIReclaim MemRegionType = 3
	MemACPINVS     MemRegionType = 4
	MemBad         MemRegionType = 5
)

// MemMapEntry is one physical range from the boot memory map.
type MemMapEntry struct {
	PhysStart uint64
	Length    uint64
	Type      MemRegionType
}

// Region is a protected range the chunk allocator must exclude when
// building reservoirs from the memory map (spec §6: "region descriptors
// for boot image, kernel stack, thread-startup trampoline, and boot-info
// itself").
type Region struct {
	Start, Length uint64
}

// FramebufferInfo describes the linear frame buffer (spec §6).
type FramebufferInfo struct {
	Addr          uint64
	Pitch         uint32
	Width, Height uint32
	BPP           uint8
}

// ELFSection is one section header from the kernel's own ELF image (spec
// §6 "ELF sections").
type ELFSection struct {
	Addr  uint64
	Size  uint64
	Flags uint64
}

// Module is one boot module tag: the kernel module (named
// "pintos_kernel_64" per spec §6) or one of the extra-module tags.
type Module struct {
	Start, End uint64
	Name       string
}

// BootInfo is the fully-parsed boot-info record (spec §6).
type BootInfo struct {
	BootImage, KernelStack, Trampoline, BootInfoRegion Region

	MemMap      []MemMapEntry
	Framebuffer FramebufferInfo
	ACPIOldRSDP uint64
	ACPINewRSDP uint64
	ELFSections []ELFSection
	EFIMemMap   []byte // opaque; EFI memory-map parsing is an external contract (spec §1)

	KernelModule Module
	ExtraModules []Module

	CommandLine string
	LoaderName  string
}

// Parse walks the Multiboot2 tag stream at data (the fixed-slot table spec
// §6 describes), starting after the 8-byte total-size/reserved header.
func Parse(data []byte) (*BootInfo, *kernelerr.Error) {
	if len(data) < 8 {
		return nil, kernelerr.New(kernelerr.ModuleBoot, "boot-info buffer shorter than header")
	}
	totalSize := binary.LittleEndian.Uint32(data[0:4])
	if int(totalSize) > len(data) {
		return nil, kernelerr.New(kernelerr.ModuleBoot, "boot-info total_size exceeds buffer length")
	}

	info := &BootInfo{}
	off := 8
	for off+8 <= int(totalSize) {
		tagType := binary.LittleEndian.Uint32(data[off : off+4])
		tagSize := binary.LittleEndian.Uint32(data[off+4 : off+8])
		if tagType == tagEnd {
			break
		}
		if off+int(tagSize) > len(data) {
			return nil, kernelerr.New(kernelerr.ModuleBoot, "tag overruns boot-info buffer")
		}
		payload := data[off+8 : off+int(tagSize)]
		parseTag(info, tagType, payload)

		off += int(tagSize)
		off = (off + 7) &^ 7 // tags are 8-byte aligned
	}
	return info, nil
}

func parseTag(info *BootInfo, tagType uint32, payload []byte) {
	switch tagType {
	case tagCommandLine:
		info.CommandLine = cString(payload)
	case tagLoaderName:
		info.LoaderName = cString(payload)
	case tagModule:
		if len(payload) < 8 {
			return
		}
		m := Module{
			Start: uint64(binary.LittleEndian.Uint32(payload[0:4])),
			End:   uint64(binary.LittleEndian.Uint32(payload[4:8])),
			Name:  cString(payload[8:]),
		}
		if m.Name == "pintos_kernel_64" {
			info.KernelModule = m
		} else {
			info.ExtraModules = append(info.ExtraModules, m)
		}
	case tagMemoryMap:
		parseMemoryMap(info, payload)
	case tagFramebuffer:
		parseFramebuffer(info, payload)
	case tagELFSections:
		parseELFSections(info, payload)
	case tagACPIOldRSDP:
		if len(payload) >= 8 {
			info.ACPIOldRSDP = binary.LittleEndian.Uint64(payload[:8])
		}
	case tagACPINewRSDP:
		if len(payload) >= 8 {
			info.ACPINewRSDP = binary.LittleEndian.Uint64(payload[:8])
		}
	case tagEFIMemoryMap:
		info.EFIMemMap = append([]byte(nil), payload...)
	case tagBasicMeminfo:
		// spec §6: "basic meminfo" — lower/upper KiB counts, superseded by
		// the full memory map tag for every purpose this kernel needs.
	}
}

func parseMemoryMap(info *BootInfo, payload []byte) {
	if len(payload) < 8 {
		return
	}
	entrySize := binary.LittleEndian.Uint32(payload[0:4])
	if entrySize < 24 {
		return
	}
	for off := 8; off+int(entrySize) <= len(payload); off += int(entrySize) {
		e := payload[off : off+int(entrySize)]
		info.MemMap = append(info.MemMap, MemMapEntry{
			PhysStart: binary.LittleEndian.Uint64(e[0:8]),
			Length:    binary.LittleEndian.Uint64(e[8:16]),
			Type:      MemRegionType(binary.LittleEndian.Uint32(e[16:20])),
		})
	}
}

func parseFramebuffer(info *BootInfo, payload []byte) {
	if len(payload) < 15 {
		return
	}
	info.Framebuffer = FramebufferInfo{
		Addr:   binary.LittleEndian.Uint64(payload[0:8]),
		Pitch:  binary.LittleEndian.Uint32(payload[8:12]),
		Width:  binary.LittleEndian.Uint32(payload[12:16]),
		Height: 0,
		BPP:    0,
	}
	if len(payload) >= 20 {
		info.Framebuffer.Height = binary.LittleEndian.Uint32(payload[16:20])
	}
	if len(payload) >= 21 {
		info.Framebuffer.BPP = payload[20]
	}
}

func parseELFSections(info *BootInfo, payload []byte) {
	if len(payload) < 12 {
		return
	}
	num := binary.LittleEndian.Uint32(payload[0:4])
	entSize := binary.LittleEndian.Uint32(payload[4:8])
	shndxOff := 12
	for i := uint32(0); i < num && shndxOff+int(entSize) <= len(payload); i++ {
		sh := payload[shndxOff : shndxOff+int(entSize)]
		if len(sh) >= 40 {
			info.ELFSections = append(info.ELFSections, ELFSection{
				Addr:  binary.LittleEndian.Uint64(sh[16:24]),
				Size:  binary.LittleEndian.Uint64(sh[32:40]),
				Flags: binary.LittleEndian.Uint64(sh[8:16]),
			})
		}
		shndxOff += int(entSize)
	}
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
