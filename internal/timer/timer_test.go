package timer

import "testing"

// fakeDevice records whatever SetInterruptAbsolute programs, without
// modeling real hardware cycles — the Timer's heap logic is independent of
// the device beneath it (spec §4.6 contract).
type fakeDevice struct {
	armed uint64
}

func (d *fakeDevice) Now() uint64                      { return 0 }
func (d *fakeDevice) TimeToNext() uint64                { return d.armed }
func (d *fakeDevice) ConvertSeconds(s float64) uint64   { return uint64(s) }
func (d *fakeDevice) ConvertRate(hz uint64) uint64      { return hz }
func (d *fakeDevice) SetInterruptRelative(ticks uint64) { d.armed = ticks }
func (d *fakeDevice) SetInterruptAbsolute(ticks uint64) { d.armed = ticks }
func (d *fakeDevice) SetInterruptPeriodic(ticks uint64) { d.armed = ticks }

// TestTimerOrdering mirrors spec §8 boundary scenario 5 exactly: push
// three one-shot tasks at times (100, 50, 75); the first fire occurs at
// 50, the next heap-top after run() is 75, then 100, then sentinel.
func TestTimerOrdering(t *testing.T) {
	dev := &fakeDevice{}
	tm := NewTimer(dev)

	tm.Add(&Task{Time: 100})
	tm.Add(&Task{Time: 50})
	tm.Add(&Task{Time: 75})

	if tm.Active().Time != 50 {
		t.Fatalf("expected active task to be the earliest (50), got %d", tm.Active().Time)
	}

	tm.Run()
	if tm.Active().Time != 75 {
		t.Fatalf("expected next active to be 75 after firing 50, got %d", tm.Active().Time)
	}

	tm.Run()
	if tm.Active().Time != 100 {
		t.Fatalf("expected next active to be 100 after firing 75, got %d", tm.Active().Time)
	}

	tm.Run()
	if tm.Active().Time != sentinelTime {
		t.Fatalf("expected sentinel after firing the last task, got %d", tm.Active().Time)
	}
}

func TestTimerInvariantActiveIsAlwaysEarliest(t *testing.T) {
	dev := &fakeDevice{}
	tm := NewTimer(dev)
	times := []uint64{40, 10, 90, 20, 5, 60}
	for _, tt := range times {
		tm.Add(&Task{Time: tt})
	}

	for tm.Active().Time != sentinelTime {
		for _, h := range tm.heap {
			if tm.Active().Time > h.Time {
				t.Fatalf("active.Time %d exceeds a heap entry %d", tm.Active().Time, h.Time)
			}
		}
		tm.Run()
	}
}

func TestPeriodicTaskReArms(t *testing.T) {
	dev := &fakeDevice{}
	tm := NewTimer(dev)

	fired := 0
	tm.Add(&Task{Time: 10, Rounds: -1, Interval: 10, Fire: func() { fired++ }})

	tm.Run()
	if fired != 1 {
		t.Fatalf("expected Fire invoked once, got %d", fired)
	}
	if tm.Active().Time != 20 {
		t.Fatalf("expected periodic task re-armed at time 20, got %d", tm.Active().Time)
	}
	if tm.Active().Rounds != -1 {
		t.Fatalf("expected rounds to remain -1 (infinite), got %d", tm.Active().Rounds)
	}
}

func TestFiniteRoundsTaskExpires(t *testing.T) {
	dev := &fakeDevice{}
	tm := NewTimer(dev)
	tm.Add(&Task{Time: 10, Rounds: 2, Interval: 10})

	tm.Run() // rounds 2 -> 1, re-arms at 20
	if tm.Active().Rounds != 1 || tm.Active().Time != 20 {
		t.Fatalf("expected rounds=1 time=20, got rounds=%d time=%d", tm.Active().Rounds, tm.Active().Time)
	}
	tm.Run() // rounds 1 -> 0, fires once more, does not re-arm
	if tm.Active().Time != sentinelTime {
		t.Fatalf("expected sentinel once rounds reaches 0, got %d", tm.Active().Time)
	}
}
