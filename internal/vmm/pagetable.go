// Package vmm implements the 4-level x86_64 address-space manager of
// spec §3 "Virtual memory" and §4.2: a shared kernel half, a per-address-
// space user half, a recursive self-map for O(1) table lookup, and a
// sub-page bump allocator for sizes below one page.
//
// Grounded on gopher-os's vmm.go (other_examples' vmm.go.go) for the
// overall page-table-walk shape (Map/MapTemporary-style helpers backed by
// a frame allocator), adapted from gopher-os's single kernel-only address
// space to the spec's per-process address spaces with a shared kernel
// half and copy-on-create semantics.
package vmm

// Page table entry bits (x86_64, Intel SDM vol 3A §4.5).
const (
	PTEPresent  = 1 << 0
	PTEWritable = 1 << 1
	PTEUser     = 1 << 2
	PTEPWT      = 1 << 3
	PTEPCD      = 1 << 4
	PTEAccessed = 1 << 5
	PTEDirty    = 1 << 6
	PTEHuge     = 1 << 7 // PS bit at PD/PDP level; unused, see spec §4.2.
	PTEGlobal   = 1 << 8
	PTENX       = 1 << 63

	pteAddrMask = 0x000F_FFFF_FFFF_F000
)

const (
	PageSize  = 4096
	PageShift = 12
	entries   = 512

	l4Shift = 39
	l3Shift = 30
	l2Shift = 21
	l1Shift = 12

	levelMask = 0x1FF // 9 bits per level
)

// Recursive self-map slots (spec §3): PML4 indices 0x1fe/0x1ff are wired
// so the PML4 and every PDP/PD/PT is reachable by linear index computation
// instead of a table walk, following the classic amd64 recursive-mapping
// trick.
const (
	SelfMapLo = 0x1fe
	SelfMapHi = 0x1ff
)

// KernelHalfStart/End are the shared PML4 index range (spec §3): "high
// half (indices 256-509) shared among every address space".
const (
	KernelHalfStart = 256
	KernelHalfEnd   = 509
)

// Table is one level of the paging hierarchy: 512 64-bit entries.
type Table [entries]uint64

func tableIndex(virt uintptr, shift uint) uintptr {
	return (virt >> shift) & levelMask
}

// Flags bundles the permission/caching bits callers pass to Map*.
type Flags uint64

const (
	FlagWritable Flags = PTEWritable
	FlagUser     Flags = PTEUser
	FlagNoCache  Flags = PTEPCD
	FlagNoExec   Flags = PTENX
)

func entryFor(phys uint64, f Flags) uint64 {
	return (phys & pteAddrMask) | uint64(f) | PTEPresent
}
