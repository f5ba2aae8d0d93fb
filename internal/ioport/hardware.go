package ioport

import (
	"unsafe"

	"kstratum/internal/asm"
)

// HardwarePort is the production Port backed by the IN/OUT instructions.
type HardwarePort struct{}

func (HardwarePort) In8(port uint16) uint8    { return asm.In8(port) }
func (HardwarePort) Out8(port uint16, v uint8) { asm.Out8(port, v) }
func (HardwarePort) In32(port uint16) uint32  { return asm.In32(port) }
func (HardwarePort) Out32(port uint16, v uint32) { asm.Out32(port, v) }

// HardwareMMIO is the production MMIO backed by raw pointer dereference at
// base+offset. base must already be mapped (identity-mapped low memory or a
// recursive-self-map virtual address); this type performs no bounds or
// mapping checks, matching spec §9's note that unsafe accessors sit behind
// a small platform seam while the rest of the kernel consumes typed
// wrappers.
type HardwareMMIO struct {
	Base uintptr
}

func (m HardwareMMIO) Read32(offset uintptr) uint32 {
	return *(*uint32)(unsafe.Pointer(m.Base + offset))
}

func (m HardwareMMIO) Write32(offset uintptr, v uint32) {
	*(*uint32)(unsafe.Pointer(m.Base + offset)) = v
}

func (m HardwareMMIO) Read64(offset uintptr) uint64 {
	return *(*uint64)(unsafe.Pointer(m.Base + offset))
}

func (m HardwareMMIO) Write64(offset uintptr, v uint64) {
	*(*uint64)(unsafe.Pointer(m.Base + offset)) = v
}
