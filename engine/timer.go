package engine

import "time"

// Timer measures wall time between two engine events. Start resets the
// clock, so a timer attached to EpochStarted measures the current epoch.
// Reading Value while the timer runs gives the elapsed time so far.
type Timer struct {
	startedAt time.Time
	total     time.Duration
	running   bool
}

func NewTimer() *Timer {
	return &Timer{}
}

// Start resets and starts the timer.
func (t *Timer) Start() {
	t.startedAt = time.Now()
	t.total = 0
	t.running = true
}

// Pause stops the clock, keeping the accumulated time readable.
func (t *Timer) Pause() {
	if !t.running {
		return
	}
	t.total += time.Since(t.startedAt)
	t.running = false
}

// Resume continues a paused timer without resetting it.
func (t *Timer) Resume() {
	if t.running {
		return
	}
	t.startedAt = time.Now()
	t.running = true
}

// Value returns the measured duration.
func (t *Timer) Value() time.Duration {
	if t.running {
		return t.total + time.Since(t.startedAt)
	}
	return t.total
}

// Attach wires the timer to an engine: Start on the start event, Pause on
// the pause event. Attach the timer before any handler on the pause event
// that reads its value, so the value is final when that handler runs.
func (t *Timer) Attach(e *Engine, start, pause EventName) error {
	if err := e.On(start, func(*Engine) error {
		t.Start()
		return nil
	}); err != nil {
		return err
	}
	return e.On(pause, func(*Engine) error {
		t.Pause()
		return nil
	})
}
