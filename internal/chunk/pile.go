package chunk

import "kstratum/internal/spinlock"

// Pile is a per-logical-CPU cache of up to PileCapacity chunks of one size
// class (spec §3, §4.1). Refill is asynchronous: a background task tops
// the pile back up from the reservoir once it drops below a quarter full.
type Pile struct {
	mu        spinlock.Mutex
	cpu       int
	class     Class
	free      []Chunk
	refilling spinlock.Flag

	reservoir *Reservoir

	// enqueueRefill schedules pile.Refill to run as a background task on
	// this pile's owning scheduler (spec §4.1). Wired by the per-thread
	// scheduler at boot; nil is valid for unit tests, which call Refill
	// directly instead.
	enqueueRefill func(func())

	// scanSiblings finds a donor chunk from another CPU's pile of the
	// same class when both this pile and the reservoir chain are empty
	// (spec §4.1's last-resort sibling scan).
	scanSiblings func(cpu int, class Class) (Chunk, bool)
}

// NewPile builds an empty pile for the given CPU/class, backed by
// reservoir.
func NewPile(cpu int, class Class, reservoir *Reservoir) *Pile {
	return &Pile{cpu: cpu, class: class, reservoir: reservoir}
}

// SetEnqueueRefill wires the background-task scheduler hook.
func (p *Pile) SetEnqueueRefill(fn func(func())) { p.enqueueRefill = fn }

// SetSiblingScanner wires the cross-CPU pile scan fallback.
func (p *Pile) SetSiblingScanner(fn func(cpu int, class Class) (Chunk, bool)) {
	p.scanSiblings = fn
}

// CPU reports the owning logical CPU index.
func (p *Pile) CPU() int { return p.cpu }

// Class reports the pile's size class.
func (p *Pile) Class() Class { return p.class }

// Len reports the number of cached chunks.
func (p *Pile) Len() int {
	p.mu.Lock()
	n := len(p.free)
	p.mu.Unlock()
	return n
}

// GetChunk pops a cached chunk, falling through to the reservoir and then
// to sibling piles on a local miss (spec §4.1).
func (p *Pile) GetChunk() (Chunk, bool) {
	p.mu.Lock()
	if n := len(p.free); n > 0 {
		c := p.free[n-1]
		p.free = p.free[:n-1]
		belowQuarter := len(p.free) < refillThreshold
		p.mu.Unlock()
		if belowQuarter {
			p.maybeQueueRefill()
		}
		return c, true
	}
	p.mu.Unlock()

	if p.reservoir != nil {
		if c, ok := p.reservoir.GetChunk(NoLock); ok {
			return c, true
		}
	}
	if p.scanSiblings != nil {
		if c, ok := p.scanSiblings(p.cpu, p.class); ok {
			return c, true
		}
	}
	return Chunk{}, false
}

// PutChunk returns a chunk to this pile's cache, for frees that land back
// on the owning CPU. Callers that want strict per-tier capacity can check
// Len() against PileCapacity first; PutChunk itself never rejects a chunk,
// matching the reservoir's unbounded free list for that class.
func (p *Pile) PutChunk(c Chunk) {
	p.mu.Lock()
	p.free = append(p.free, c)
	p.mu.Unlock()
}

// maybeQueueRefill sets the refill-pending flag (CAS) and enqueues a
// background refill task if one is not already queued (spec §4.1).
func (p *Pile) maybeQueueRefill() {
	if !p.refilling.TrySet() {
		return
	}
	if p.enqueueRefill != nil {
		p.enqueueRefill(p.Refill)
	} else {
		p.Refill()
	}
}

// Refill drains the reservoir into the pile until full or the reservoir
// yields empty, then clears the refill-pending flag (spec §4.1).
func (p *Pile) Refill() {
	defer p.refilling.Clear()
	if p.reservoir == nil {
		return
	}
	for {
		p.mu.Lock()
		full := len(p.free) >= PileCapacity
		p.mu.Unlock()
		if full {
			return
		}
		c, ok := p.reservoir.GetChunk(NoLock)
		if !ok {
			return
		}
		p.mu.Lock()
		p.free = append(p.free, c)
		p.mu.Unlock()
	}
}
