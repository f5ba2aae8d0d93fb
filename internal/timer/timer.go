// Package timer implements the shared min-heap task-scheduling logic of
// spec §4.6, wrapping two concrete hardware timers (HPET and the
// local-APIC oneshot timer) behind one TimableDevice contract.
//
// Grounded on the teacher's timer_channels.go (a single hardware timer
// interrupt fanning out to multiple software consumers via a tick
// counter): this package generalizes that one-fanout-channel shape into a
// full priority queue of independently-timed tasks, since the spec calls
// for arbitrary relative/absolute/periodic tasks rather than one global
// tick broadcast.
package timer

import (
	"container/heap"

	"kstratum/internal/spinlock"
)

// sentinelTime represents "no task armed" (spec §8: "active.time == infinity").
const sentinelTime = ^uint64(0)

// TimableDevice is the contract both HPET and the local-APIC oneshot timer
// satisfy (spec §4.6).
type TimableDevice interface {
	Now() uint64
	TimeToNext() uint64
	ConvertSeconds(s float64) uint64
	ConvertRate(hz uint64) uint64
	SetInterruptRelative(ticks uint64)
	SetInterruptAbsolute(ticks uint64)
	SetInterruptPeriodic(ticks uint64)
}

// Task is one timed callback (spec §5 "Timed tasks carry a rounds
// counter"). Rounds: -1 runs forever, 0 fires once more then is dropped,
// n>0 fires n times then is dropped.
type Task struct {
	Time     uint64
	Rounds   int64
	Interval uint64
	Fire     func()

	index int // heap bookkeeping, unused by callers
}

// taskHeap is a container/heap min-heap keyed by Task.Time.
type taskHeap []*Task

func (h taskHeap) Len() int            { return len(h) }
func (h taskHeap) Less(i, j int) bool  { return h[i].Time < h[j].Time }
func (h taskHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *taskHeap) Push(x any)         { t := x.(*Task); t.index = len(*h); *h = append(*h, t) }
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

var sentinelTask = &Task{Time: sentinelTime, Rounds: 0}

// Timer drives one TimableDevice with the heap-plus-active-task protocol of
// spec §4.6.
type Timer struct {
	mu     spinlock.Mutex
	dev    TimableDevice
	heap   taskHeap
	active *Task
}

// NewTimer builds a Timer over dev with no tasks armed.
func NewTimer(dev TimableDevice) *Timer {
	return &Timer{dev: dev, active: sentinelTask}
}

// Active returns the currently-armed task (sentinel if none).
func (t *Timer) Active() *Task {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Add inserts task, following spec §4.6's "adding a task" rule: if it fires
// earlier than the current active task, it becomes active (displacing the
// old one onto the heap) and the hardware is reprogrammed; otherwise it is
// pushed onto the heap to wait its turn.
func (t *Timer) Add(task *Task) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if task.Time < t.active.Time {
		if t.active.Time != sentinelTime {
			heap.Push(&t.heap, t.active)
		}
		t.active = task
		t.dev.SetInterruptAbsolute(t.active.Time)
		return
	}
	heap.Push(&t.heap, task)
}

// Run fires the currently-active task (spec §4.6 "on fire"): rearms a
// periodic task's time, selects the new active task from the four cases
// the spec enumerates, reprograms the hardware, then invokes the callback.
func (t *Timer) Run() {
	t.mu.Lock()
	fired := t.active

	if fired.Rounds > 0 {
		fired.Rounds--
	}
	repeats := fired.Rounds != 0
	if repeats {
		fired.Time += fired.Interval
	}

	switch {
	case t.heap.Len() == 0 && !repeats:
		t.active = sentinelTask
	case t.heap.Len() == 0 && repeats:
		// t.active already points at fired; nothing to do.
	case t.heap.Len() > 0 && repeats:
		heap.Push(&t.heap, fired)
		t.active = heap.Pop(&t.heap).(*Task)
	default: // heap non-empty, task finished
		t.active = heap.Pop(&t.heap).(*Task)
	}

	if t.active.Time != sentinelTime {
		t.dev.SetInterruptAbsolute(t.active.Time)
	}
	cb := fired.Fire
	t.mu.Unlock()

	if cb != nil {
		cb()
	}
}
