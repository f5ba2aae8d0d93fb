package sched

import (
	"kstratum/internal/spinlock"
	"kstratum/internal/timer"
)

// PerThreadScheduler owns one logical core's run queue (spec §3
// "Per-thread scheduler"). All state is touched only from that core's
// interrupt context or with interrupts disabled (spec §5 concurrency
// contract) except for Submit, which a remote core may call under mu when
// placing a new task (spec §4.7: "cross-core calls (task submission)
// acquire the target scheduler's lock").
type PerThreadScheduler struct {
	Core int

	mu      spinlock.Mutex
	tasks   []*Task
	current int

	loadCounters [4]int // indexed by bit position of LoadType

	Timer   *timer.Timer
	InSleep bool
}

// NewPerThreadScheduler builds an empty scheduler owned by core.
func NewPerThreadScheduler(core int, tm *timer.Timer) *PerThreadScheduler {
	return &PerThreadScheduler{Core: core, Timer: tm}
}

func loadBit(lt LoadType) int {
	for i := 0; i < 4; i++ {
		if lt&(1<<i) != 0 {
			return i
		}
	}
	return 0
}

// TotalLoad is priority-weighted count of every task this scheduler owns
// (spec §4.7: "the thread with the lowest total_load").
func (s *PerThreadScheduler) TotalLoad() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, t := range s.tasks {
		total += t.Priority
	}
	return total
}

// Submit adds t to this scheduler's run queue, locked so a remote core
// placing a task contends only on this one scheduler (spec §4.7).
func (s *PerThreadScheduler) Submit(t *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, t)
	s.loadCounters[loadBit(t.LoadType)]++
}

// scanForRunnable walks tasks forward from start (wrapping), returning the
// first index for which Runnable(now) is true, and whether a full circle
// completed without finding one. Caller holds s.mu.
func (s *PerThreadScheduler) scanForRunnable(start int, now uint64) (int, bool) {
	n := len(s.tasks)
	if n == 0 {
		return 0, false
	}
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		if s.tasks[idx].Runnable(now) {
			return idx, true
		}
	}
	return 0, false
}

// Tick runs one scheduling-tick invocation from the per-CPU timer (spec
// §4.7, ~100Hz). frame is the interrupt frame to load the chosen task's
// state into; now is the scheduler's own timer's current tick count (for
// WaitLazy resolution). It returns true if the core should enter its sleep
// loop (every task waiting, or no tasks at all).
func (s *PerThreadScheduler) Tick(frame *RegisterFile, now uint64) (enterSleep bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.InSleep {
		if len(s.tasks) == 0 {
			return true
		}
		s.InSleep = false
		s.current = 0
		*frame = s.tasks[0].SavedState
		return false
	}

	if len(s.tasks) == 0 {
		s.InSleep = true
		return true
	}

	t := s.tasks[s.current]
	if t.PriorityCount < t.Priority {
		t.PriorityCount++
		return false
	}

	t.SavedState = *frame
	idx, found := s.scanForRunnable(s.current+1, now)
	if !found {
		s.InSleep = true
		return true
	}
	s.current = idx
	s.tasks[idx].PriorityCount = 0
	*frame = s.tasks[idx].SavedState
	return false
}

// Yield implements the int 0xA1 software-interrupt path: the same forward
// scan Tick uses, but unconditional (spec §4.7: "follows the same scan but
// starts at current+1 unconditionally").
func (s *PerThreadScheduler) Yield(frame *RegisterFile, now uint64) (enterSleep bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.tasks) == 0 {
		s.InSleep = true
		return true
	}
	s.tasks[s.current].SavedState = *frame
	idx, found := s.scanForRunnable(s.current+1, now)
	if !found {
		s.InSleep = true
		return true
	}
	s.current = idx
	s.tasks[idx].PriorityCount = 0
	*frame = s.tasks[idx].SavedState
	return false
}

// EndOfTask handles a task's main function returning (spec §4.7
// end_of_task): decrements rounds; erases the task and frees its memory
// once rounds hits zero, otherwise re-enters the same task's Main.
func (s *PerThreadScheduler) EndOfTask() {
	s.mu.Lock()
	t := s.tasks[s.current]
	if t.RoundsRemaining > 0 {
		t.RoundsRemaining--
	}
	done := t.RoundsRemaining == 0
	if done {
		s.tasks = append(s.tasks[:s.current], s.tasks[s.current+1:]...)
		s.loadCounters[loadBit(t.LoadType)]--
		if s.current >= len(s.tasks) && len(s.tasks) > 0 {
			s.current = 0
		}
	}
	s.mu.Unlock()

	if !done && t.Main != nil {
		t.Main()
	}
}

// TaskSnapshot is a read-only summary of one scheduled task, for diagnostics
// (spec §2.10's "ps" terminal command) — grounded on the teacher's
// dumpAllGs, which walks live goroutine state for a debug dump rather than
// handing out live pointers.
type TaskSnapshot struct {
	Pid      int64
	Priority int
	Core     int
}

// Snapshot copies out a diagnostic view of every task this scheduler
// currently owns, without exposing the live *Task pointers a caller could
// use to race the scheduler's own tick/yield paths.
func (s *PerThreadScheduler) Snapshot() []TaskSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TaskSnapshot, len(s.tasks))
	for i, t := range s.tasks {
		out[i] = TaskSnapshot{Pid: t.Pid, Priority: t.Priority, Core: s.Core}
	}
	return out
}

// SystemScheduler is the array of per-thread schedulers plus the monotonic
// pid counter (spec §3 "System scheduler").
type SystemScheduler struct {
	mu      spinlock.Mutex
	Threads []*PerThreadScheduler
	nextPid int64
}

// NewSystemScheduler builds a SystemScheduler over threads, one per
// logical core.
func NewSystemScheduler(threads []*PerThreadScheduler) *SystemScheduler {
	return &SystemScheduler{Threads: threads}
}

// Place assigns t a fresh pid and submits it to the thread with the lowest
// TotalLoad (spec §4.7: "No migration across cores after placement except
// via the sibling-pile scan path in §4.1").
func (s *SystemScheduler) Place(t *Task) {
	s.mu.Lock()
	s.nextPid++
	t.Pid = s.nextPid
	s.mu.Unlock()

	best := s.Threads[0]
	bestLoad := best.TotalLoad()
	for _, th := range s.Threads[1:] {
		if l := th.TotalLoad(); l < bestLoad {
			best, bestLoad = th, l
		}
	}
	best.Submit(t)
}

// Snapshot aggregates every thread's TaskSnapshot list into one diagnostic
// view of the whole system's runnable/waiting tasks.
func (s *SystemScheduler) Snapshot() []TaskSnapshot {
	var out []TaskSnapshot
	for _, th := range s.Threads {
		out = append(out, th.Snapshot()...)
	}
	return out
}
