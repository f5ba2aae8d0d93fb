package chunk

// Allocator owns the full reservoir chain and the per-CPU piles, and wires
// the cross-tier and cross-CPU fallback paths spec §4.1 describes.
type Allocator struct {
	reservoirs  [NumClasses]*Reservoir
	numCPU      int
	piles       [][NumClasses]*Pile // piles[cpu][class]
	totalSeeded uint64
}

// New builds an Allocator for a system with numCPU logical cores. Callers
// should feed initial memory-map chunks in with Seed before any Malloc.
func New(numCPU int) *Allocator {
	a := &Allocator{
		reservoirs: NewReservoirChain(),
		numCPU:     numCPU,
		piles:      make([][NumClasses]*Pile, numCPU),
	}
	for cpu := 0; cpu < numCPU; cpu++ {
		for class := 0; class < NumClasses; class++ {
			a.piles[cpu][class] = NewPile(cpu, Class(class), a.reservoirs[class])
			a.piles[cpu][class].SetSiblingScanner(a.scanSiblingPiles)
		}
	}
	for class := 0; class < NumClasses-1; class++ {
		a.reservoirs[class].SetSiblingScanner(func(c Class) (Chunk, bool) {
			return a.scanSiblingPiles(-1, c) // a reservoir belongs to no CPU, so every CPU's pile is scanned.
		})
	}
	return a
}

// Seed adds physical chunks discovered from the boot memory map (spec §2
// "build chunk reservoirs from the memory map excluding protected
// regions"). class must match the chunk's natural size class.
func (a *Allocator) Seed(c Chunk) {
	a.reservoirs[c.Class].AddChunk(c, NoLock)
	a.reservoirs[c.Class].SetCanFree(true)
	a.totalSeeded += c.Class.Size()
}

// Stats reports total bytes ever seeded from the boot memory map and bytes
// currently free across every reservoir and pile (spec §2.1 expansion:
// backs internal/terminal's meminfo command). Grounded on gopher-os's
// BitmapAllocator.printStats (_examples/other_examples): a cheap snapshot
// walk over existing Len() accessors rather than a separately maintained
// running counter for the free side, so Stats can never drift from the
// structures it reports on.
func (a *Allocator) Stats() (totalBytes, freeBytes uint64) {
	for class := 0; class < NumClasses; class++ {
		size := Class(class).Size()
		freeBytes += uint64(a.reservoirs[class].Len()) * size
		for cpu := 0; cpu < a.numCPU; cpu++ {
			freeBytes += uint64(a.piles[cpu][class].Len()) * size
		}
	}
	return a.totalSeeded, freeBytes
}

// Reservoir exposes the reservoir for a class, for diagnostics and tests.
func (a *Allocator) Reservoir(class Class) *Reservoir { return a.reservoirs[class] }

// Pile exposes the pile owned by cpu for class.
func (a *Allocator) Pile(cpu int, class Class) *Pile { return a.piles[cpu][class] }

// WirePileScheduling attaches the background-refill enqueue hook for every
// pile owned by cpu. Called once per core during scheduler bring-up.
func (a *Allocator) WirePileScheduling(cpu int, enqueue func(func())) {
	for class := 0; class < NumClasses; class++ {
		a.piles[cpu][class].SetEnqueueRefill(enqueue)
	}
}

// scanSiblingPiles searches every CPU's pile of class for a free chunk,
// skipping excludeCPU (the caller's own pile, already known empty). Only
// chunks already cached in a pile are taken; a sibling pile's reservoir and
// its own sibling scan are not consulted, so the scan cannot recurse.
func (a *Allocator) scanSiblingPiles(excludeCPU int, class Class) (Chunk, bool) {
	for cpu := 0; cpu < a.numCPU; cpu++ {
		if cpu == excludeCPU {
			continue
		}
		p := a.piles[cpu][class]
		p.mu.Lock()
		if n := len(p.free); n > 0 {
			c := p.free[n-1]
			p.free = p.free[:n-1]
			p.mu.Unlock()
			return c, true
		}
		p.mu.Unlock()
	}
	return Chunk{}, false
}

// Alloc draws one chunk of class for cpu, going through the pile cache.
func (a *Allocator) Alloc(cpu int, class Class) (Chunk, bool) {
	return a.piles[cpu][class].GetChunk()
}

// Free returns a chunk to the owning CPU's pile. Freeing always lands on
// the pile of the CPU that is currently freeing it, not necessarily the
// one that allocated it — matching spec §5's "owner transitions
// chunk→pile→allocation. Freeing re-enters the reservoir"). The freed
// chunk stays on that pile, which is an unbounded cache here (see
// DESIGN.md); nothing moves chunks from a pile back to its reservoir.
func (a *Allocator) Free(cpu int, c Chunk) {
	a.piles[cpu][c.Class].PutChunk(c)
}
