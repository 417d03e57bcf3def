// Package timing is the Timer collaborator: a single-shot, cancellable
// virtual-time wheel. One tick is 0.5µs, so one millisecond is 2000 ticks —
// the FDC's seek/settle/head-load delays are all expressed in milliseconds
// and converted through MillisecondTicks.
package timing

// MillisecondTicks is the number of ticks (0.5µs each) in one millisecond.
const MillisecondTicks = 2000

// Func is a timer callback.
type Func func()

type entry struct {
	fn      Func
	fireAt  uint64
	running bool
}

// Wheel is a cooperative virtual-time clock: nothing fires until Advance is
// called, and firing happens synchronously on the calling goroutine, in
// registration order for any tick where more than one timer is due.
type Wheel struct {
	now    uint64
	timers []entry
}

// New creates an empty Wheel at time zero.
func New() *Wheel {
	return &Wheel{}
}

// Now returns the current virtual time in ticks.
func (w *Wheel) Now() uint64 {
	return w.now
}

// RegisterTimer allocates a new timer bound to fn and returns its id. The
// timer starts stopped.
func (w *Wheel) RegisterTimer(fn Func) uint32 {
	w.timers = append(w.timers, entry{fn: fn})
	return uint32(len(w.timers) - 1)
}

// StartTimerWithValue (re)arms timer id to fire after the given number of
// ticks from now, replacing any previously scheduled deadline.
func (w *Wheel) StartTimerWithValue(id uint32, ticks uint64) {
	t := &w.timers[id]
	t.running = true
	t.fireAt = w.now + ticks
}

// StopTimer disarms timer id. Idempotent: stopping an already-stopped timer
// is a no-op.
func (w *Wheel) StopTimer(id uint32) {
	w.timers[id].running = false
}

// TimerIsRunning reports whether timer id is currently armed.
func (w *Wheel) TimerIsRunning(id uint32) bool {
	return w.timers[id].running
}

// Advance moves virtual time forward by the given number of ticks, firing
// any timer whose deadline falls within the advanced interval. A timer
// firing callback may itself start a new timer; that new deadline is still
// eligible to fire within the same Advance call if it falls before target.
func (w *Wheel) Advance(ticks uint64) {
	target := w.now + ticks
	for w.now < target {
		w.now++
		for i := range w.timers {
			t := &w.timers[i]
			if t.running && t.fireAt == w.now {
				t.running = false
				t.fn()
			}
		}
	}
}
