package chunk

import "kstratum/internal/spinlock"

// Reservoir is the global free-list for one chunk size class (spec §3,
// §4.1). The backing array is a plain Go slice: the original C++ kernel
// grows its backing array by drawing a same-tier chunk from itself (a
// bootstrap concern, since it has no general-purpose heap yet), freeing
// the old array only once canFree is set. Go already provides a safe,
// general allocator for this kind of bookkeeping slice, so Reservoir uses
// ordinary slice growth instead of re-implementing that bootstrap trick —
// see DESIGN.md for why this simplification doesn't lose the invariant the
// flag exists to protect (the reservoir never frees something it doesn't
// own yet).
type Reservoir struct {
	mu    spinlock.Mutex
	class Class
	free  []Chunk

	// canFree tracks whether the reservoir has stabilized enough that
	// chunks may flow back into it; mirrors spec's can_free_reservoir.
	canFree bool

	// next is reservoir[k+1], nil for the top tier (Class4G).
	next *Reservoir

	// scanSiblingPiles is called only when both this tier and the next
	// tier up are exhausted; it searches every logical CPU's pile
	// of the given class (spec §4.1). Nil is treated as "no piles yet".
	scanSiblingPiles func(Class) (Chunk, bool)
}

// NewReservoirChain builds the six-tier chain, top tier first has no
// parent to split from and therefore is the hard out-of-memory ceiling.
func NewReservoirChain() [NumClasses]*Reservoir {
	var chain [NumClasses]*Reservoir
	for i := NumClasses - 1; i >= 0; i-- {
		r := &Reservoir{class: Class(i), canFree: true}
		if i < NumClasses-1 {
			r.next = chain[i+1]
		}
		chain[i] = r
	}
	return chain
}

// SetSiblingScanner wires the pile-scan fallback (spec §4.1 step: "if k+1
// recursion also fails and there are live per-CPU piles, the caller scans
// all CPUs' piles of tier k+1").
func (r *Reservoir) SetSiblingScanner(fn func(Class) (Chunk, bool)) {
	r.scanSiblingPiles = fn
}

// Class reports the reservoir's size class.
func (r *Reservoir) Class() Class { return r.class }

// Len reports the number of free chunks currently cached (diagnostic use,
// e.g. internal/terminal's meminfo command).
func (r *Reservoir) Len() int {
	r.mu.Lock()
	n := len(r.free)
	r.mu.Unlock()
	return n
}

// GetChunk pops a chunk of this reservoir's class, splitting a chunk from
// the next tier up (and ultimately scanning sibling piles) when empty.
// tok records whether the caller already holds this tier's mutex (spec
// §4.2 "Lock override parameter" / §9 lock-override design note); holding
// it prevents re-entrant self-deadlock on paths where an intermediate
// page-table allocation re-enters the same tier.
func (r *Reservoir) GetChunk(tok LockToken) (Chunk, bool) {
	if !tok.holds(r.class) {
		r.mu.Lock()
	}
	if n := len(r.free); n > 0 {
		c := r.free[n-1] // LIFO: most recently freed chunk is cache-hottest.
		r.free = r.free[:n-1]
		if !tok.holds(r.class) {
			r.mu.Unlock()
		}
		return c, true
	}
	if !tok.holds(r.class) {
		r.mu.Unlock()
	}

	if r.next == nil {
		// Top tier exhausted: hard out-of-memory (spec §4.1).
		return Chunk{}, false
	}

	parent, ok := r.next.GetChunk(NoLock)
	if !ok {
		if r.scanSiblingPiles != nil {
			if c, ok := r.scanSiblingPiles(r.next.class); ok {
				return r.split(c, tok)
			}
		}
		return Chunk{}, false
	}
	return r.split(parent, tok)
}

// split breaks a single chunk of the next tier up into 16 chunks of this
// tier, returning one to the caller and adding the other 15 to this
// reservoir (spec invariant: size_class[k+1] == 16 * size_class[k]).
func (r *Reservoir) split(parent Chunk, tok LockToken) (Chunk, bool) {
	stride := r.class.Size()
	result := Chunk{PhysStart: parent.PhysStart, Class: r.class}
	for i := uint64(1); i < 16; i++ {
		r.AddChunk(Chunk{PhysStart: parent.PhysStart + i*stride, Class: r.class}, tok)
	}
	return result, true
}

// AddChunk returns a chunk to this reservoir. tok records whether the
// caller already holds this tier's mutex.
func (r *Reservoir) AddChunk(c Chunk, tok LockToken) {
	if !tok.holds(r.class) {
		r.mu.Lock()
		defer r.mu.Unlock()
	}
	r.free = append(r.free, c)
}

// SetCanFree marks the reservoir as safe to recycle its own chunks,
// matching spec's can_free_reservoir gate that prevents a reservoir from
// freeing its own bootstrap allocation on the very first grow.
func (r *Reservoir) SetCanFree(v bool) {
	r.mu.Lock()
	r.canFree = v
	r.mu.Unlock()
}

// CanFree reports whether the reservoir is past its bootstrap phase.
func (r *Reservoir) CanFree() bool {
	r.mu.Lock()
	v := r.canFree
	r.mu.Unlock()
	return v
}
