package vmm

import (
	"kstratum/internal/kernelerr"
)

// KernelHalf holds the PML4 entries (indices 256-509) shared by every
// address space (spec §3 invariant: "Kernel-half PML4 entries are copied
// into every address space at creation; they are never modified
// thereafter"). Every PDP in the kernel half is pre-allocated at kernel
// init so no new top-level entry can appear later.
type KernelHalf struct {
	entries [KernelHalfEnd - KernelHalfStart + 1]uint64
}

// Set installs the PDP physical address (with flags already folded in)
// for kernel-half PML4 index i (256-509). Called only during kernel init,
// before any address space is created.
func (k *KernelHalf) Set(i int, pml4Entry uint64) {
	k.entries[i-KernelHalfStart] = pml4Entry
}

// AddressSpace owns one process's (or one sibling thread's) PML4 and the
// virtual-space bump allocator that draws new super-page mappings (spec
// §3 "address space").
type AddressSpace struct {
	PML4Phys uint64

	tables TableAccessor
	frames FrameSource
	kernel *KernelHalf
	cpu    int

	nextAlloc uintptr
	subHead   *subPageRegion

	group *siblingGroup
}

// siblingGroup is the "shared-table vector" spec §3/§4.2 describes: every
// sibling address space of one process must see newly-allocated user-half
// PDPs.
type siblingGroup struct {
	members []*AddressSpace
}

func (g *siblingGroup) broadcastPDP(pml4Index int, entry uint64) {
	for _, sib := range g.members {
		t := sib.tables.Table(sib.PML4Phys)
		t[pml4Index] = entry
	}
}

// defaultUserBumpBase is the first virtual address the bump allocator
// hands out for new super-page allocations; it starts well above the
// zero page to keep null-pointer dereferences faulting.
const defaultUserBumpBase = 0x0000_0000_0040_0000

// NewAddressSpace allocates a fresh PML4 page, copies the kernel half into
// it verbatim (spec invariant: "bit-identical to those of every other
// address space"), and joins group (pass a fresh &siblingGroup{} for a
// brand-new process, or an existing one to add a sibling).
func NewAddressSpace(cpu int, tables TableAccessor, frames FrameSource, kernel *KernelHalf, group *siblingGroup) (*AddressSpace, *kernelerr.Error) {
	phys, ok := frames.AllocPage(cpu)
	if !ok {
		return nil, kernelerr.New(kernelerr.ModuleVMM, "out of memory allocating PML4")
	}
	pml4 := tables.Table(phys)
	for i := range pml4 {
		pml4[i] = 0
	}
	for i := KernelHalfStart; i <= KernelHalfEnd; i++ {
		pml4[i] = kernel.entries[i-KernelHalfStart]
	}
	pml4[SelfMapLo] = entryFor(phys, FlagWritable)
	pml4[SelfMapHi] = entryFor(phys, FlagWritable)

	if group == nil {
		group = &siblingGroup{}
	}
	as := &AddressSpace{
		PML4Phys:  phys,
		tables:    tables,
		frames:    frames,
		kernel:    kernel,
		cpu:       cpu,
		nextAlloc: defaultUserBumpBase,
		group:     group,
	}
	group.members = append(group.members, as)
	return as, nil
}

// walkLevel returns the table at the given level index within parent,
// allocating and linking a fresh table if the entry is not present.
// pml4Index is supplied only when parent is the PML4 itself, so a freshly
// allocated PDP can be propagated to every sibling address space and
// rejected if it would fall in the kernel half (spec invariant).
func (a *AddressSpace) walkLevel(parent *Table, idx uintptr, flags Flags, pml4Index int, isPML4 bool) (*Table, *kernelerr.Error) {
	entry := parent[idx]
	if entry&PTEPresent != 0 {
		return a.tables.Table(entry & pteAddrMask), nil
	}

	if isPML4 && pml4Index >= KernelHalfStart && pml4Index <= KernelHalfEnd {
		return nil, kernelerr.New(kernelerr.ModuleVMM, "attempted to allocate a new kernel-half PDP: invariant violation")
	}

	phys, ok := a.frames.AllocPage(a.cpu)
	if !ok {
		return nil, kernelerr.New(kernelerr.ModuleVMM, "out of memory allocating page table")
	}
	child := a.tables.Table(phys)
	for i := range child {
		child[i] = 0
	}
	newEntry := entryFor(phys, flags|FlagWritable)
	parent[idx] = newEntry

	if isPML4 {
		a.group.broadcastPDP(int(idx), newEntry)
	}
	return child, nil
}

// MapPage installs a single 4 KiB mapping sourcePhys -> targetVirt (spec
// §4.2 map_page). Intermediate tables are allocated on demand from the
// physical allocator. MapPage takes no lock-override token, so it cannot
// be told which allocator tier, if any, its caller already holds.
func (a *AddressSpace) MapPage(sourcePhys uint64, targetVirt uintptr, flags Flags) *kernelerr.Error {
	l4i := tableIndex(targetVirt, l4Shift)
	l3i := tableIndex(targetVirt, l3Shift)
	l2i := tableIndex(targetVirt, l2Shift)
	l1i := tableIndex(targetVirt, l1Shift)

	pml4 := a.tables.Table(a.PML4Phys)
	pdp, err := a.walkLevel(pml4, l4i, flags, int(l4i), true)
	if err != nil {
		return err
	}
	pd, err := a.walkLevel(pdp, l3i, flags, 0, false)
	if err != nil {
		return err
	}
	pt, err := a.walkLevel(pd, l2i, flags, 0, false)
	if err != nil {
		return err
	}
	pt[l1i] = entryFor(sourcePhys, flags)
	return nil
}

// IdentityMapPage maps targetVirt to itself, used for MMIO, ACPI tables,
// and low memory (spec §3 invariant on identity-mapped pages).
func (a *AddressSpace) IdentityMapPage(targetVirt uintptr, flags Flags) *kernelerr.Error {
	return a.MapPage(uint64(targetVirt), targetVirt, flags)
}

// MapRegion maps a run of size bytes starting at sourcePhys/targetVirt,
// rounding both down to the page line first (spec §4.2 map_region). This
// implementation always maps at 4 KiB granularity ("no large-page
// hardware bit is set", spec §4.2), choosing PT-level iteration only —
// the PD/PT "largest level that fits" language in the spec describes an
// optimization for how many table-walks are repeated, not the mapping
// granularity itself, which stays 4 KiB throughout.
func (a *AddressSpace) MapRegion(sourcePhys uint64, targetVirt uintptr, size uint64, flags Flags) *kernelerr.Error {
	base := targetVirt &^ (PageSize - 1)
	src := sourcePhys &^ (PageSize - 1)
	end := targetVirt + uintptr(size)
	for v, p := base, src; v < end; v, p = v+PageSize, p+PageSize {
		if err := a.MapPage(p, v, flags); err != nil {
			return err
		}
	}
	return nil
}

// IdentityMapRegion is MapRegion with source == target.
func (a *AddressSpace) IdentityMapRegion(targetVirt uintptr, size uint64, flags Flags) *kernelerr.Error {
	return a.MapRegion(uint64(targetVirt), targetVirt, size, flags)
}

// GetNewAddress returns the current bump pointer and advances it by size
// rounded up to page alignment (spec §4.2 get_new_address). The pointer is
// never recycled.
func (a *AddressSpace) GetNewAddress(size uint64) uintptr {
	addr := a.nextAlloc
	rounded := (size + PageSize - 1) &^ (PageSize - 1)
	a.nextAlloc += uintptr(rounded)
	return addr
}

// VirtToPhys walks the recursive self-map to resolve v's page frame (spec
// §4.2 virt_to_phys). Low 12 bits of the result are always zero.
func (a *AddressSpace) VirtToPhys(v uintptr) (uint64, bool) {
	l4i := tableIndex(v, l4Shift)
	l3i := tableIndex(v, l3Shift)
	l2i := tableIndex(v, l2Shift)
	l1i := tableIndex(v, l1Shift)

	pml4 := a.tables.Table(a.PML4Phys)
	e := pml4[l4i]
	if e&PTEPresent == 0 {
		return 0, false
	}
	pdp := a.tables.Table(e & pteAddrMask)
	e = pdp[l3i]
	if e&PTEPresent == 0 {
		return 0, false
	}
	pd := a.tables.Table(e & pteAddrMask)
	e = pd[l2i]
	if e&PTEPresent == 0 {
		return 0, false
	}
	pt := a.tables.Table(e & pteAddrMask)
	e = pt[l1i]
	if e&PTEPresent == 0 {
		return 0, false
	}
	return e & pteAddrMask, true
}
