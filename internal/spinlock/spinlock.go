// Package spinlock provides the test-and-set spin mutex used by every
// shared kernel data structure that spec §5 requires to be lock-protected:
// chunk reservoirs and piles, the allocation registry's AVL tree, and the
// interrupt tree's per-device route table.
//
// mazboot's internal/runtime/atomic package (vendored from the Go runtime)
// hand-declares LDAXR/STLXR-backed primitives because ARM64 bare metal has
// no other way to get an atomic compare-and-swap. On amd64 the stdlib
// sync/atomic package already compiles CompareAndSwap to a LOCK CMPXCHG
// instruction with no runtime dependency beyond what this kernel already
// links, so Mutex is built directly on it instead of re-declaring amd64
// asm the standard library already provides correctly — see DESIGN.md's
// standard-library justification for this package.
package spinlock

import (
	"sync/atomic"

	"kstratum/internal/asm"
)

// Mutex is a non-reentrant spin mutex. Zero value is unlocked.
type Mutex struct {
	locked atomic.Bool
}

// Lock spins until the mutex is acquired, issuing PAUSE between attempts so
// hyper-threaded siblings make progress while this core waits.
func (m *Mutex) Lock() {
	for !m.locked.CompareAndSwap(false, true) {
		asm.Pause()
	}
}

// TryLock attempts to acquire the mutex without spinning.
func (m *Mutex) TryLock() bool {
	return m.locked.CompareAndSwap(false, true)
}

// Unlock releases the mutex. Calling Unlock on an already-unlocked Mutex is
// a caller bug; it is not detected.
func (m *Mutex) Unlock() {
	m.locked.Store(false)
}

// Flag is a single CAS-guarded boolean, used for the pile refill-pending
// flag (spec §4.1).
type Flag struct {
	v atomic.Bool
}

// TrySet atomically transitions the flag from false to true, returning
// whether this call performed the transition.
func (f *Flag) TrySet() bool {
	return f.v.CompareAndSwap(false, true)
}

// Clear unconditionally resets the flag to false.
func (f *Flag) Clear() {
	f.v.Store(false)
}

// Get reads the flag's current value.
func (f *Flag) Get() bool {
	return f.v.Load()
}
