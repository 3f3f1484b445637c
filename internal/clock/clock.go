package clock

import (
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// ErrInvalidDuration is returned when a countdown is created or reset with a
// non-positive duration.
var ErrInvalidDuration = errors.New("countdown duration must be a positive number of seconds")

// State defines the lifecycle state of a countdown.
type State string

const (
	StateStopped State = "STOPPED"
	StateRunning State = "RUNNING"
	StatePaused  State = "PAUSED"
	StateExpired State = "EXPIRED"
)

// DefaultTickInterval is how often the progress driver wakes to deliver
// notifications. The authoritative remaining value is always computed from
// wall-clock deltas, so a missed or late tick never skews the countdown.
const DefaultTickInterval = 100 * time.Millisecond

// Snapshot is a point-in-time view of a countdown.
type Snapshot struct {
	Duration  time.Duration `json:"duration"`
	Remaining time.Duration `json:"remaining"`
	State     State         `json:"state"`
}

// NotifyFunc receives progress snapshots from the tick driver and a final
// snapshot when the countdown expires. It must not call back into the
// Countdown it observes.
type NotifyFunc func(Snapshot)

// Countdown is a single countdown clock. It knows nothing about
// competitions or athletes; it only counts seconds.
//
// Remaining time is derived from the start reference and the wall clock on
// every read, never accumulated by decrementing per tick, so Snapshot stays
// correct even if no tick has run recently.
type Countdown struct {
	mu        sync.Mutex
	clk       clockwork.Clock
	duration  time.Duration
	remaining time.Duration // frozen value while stopped/paused/expired
	startedAt time.Time     // start reference, shifted forward on resume
	state     State
	gen       uint64        // bumped on every state mutation; guards late ticks
	notified  bool          // expiry notification fired
	cancel    chan struct{} // closed on cancellation to wake the run driver

	tick   time.Duration
	notify NotifyFunc

	// deliverMu serializes notification delivery so that Stop/Pause/Reset
	// can wait out an in-flight delivery: once they return, no further
	// notification from the cancelled run is observed.
	deliverMu sync.Mutex
}

// Option configures a Countdown.
type Option func(*Countdown)

// WithClock substitutes the time source. Tests pass a clockwork.FakeClock.
func WithClock(clk clockwork.Clock) Option {
	return func(c *Countdown) { c.clk = clk }
}

// WithTickInterval overrides the progress notification interval.
func WithTickInterval(d time.Duration) Option {
	return func(c *Countdown) { c.tick = d }
}

// WithNotify registers the progress/expiry callback.
func WithNotify(fn NotifyFunc) Option {
	return func(c *Countdown) { c.notify = fn }
}

// New creates a stopped countdown for the given duration.
func New(duration time.Duration, opts ...Option) (*Countdown, error) {
	if duration < time.Second {
		return nil, ErrInvalidDuration
	}
	c := &Countdown{
		clk:       clockwork.NewRealClock(),
		duration:  duration,
		remaining: duration,
		state:     StateStopped,
		tick:      DefaultTickInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Start transitions STOPPED->RUNNING (fresh, remaining reset to duration) or
// PAUSED->RUNNING (resume, preserving elapsed time by shifting the start
// reference forward by the paused span). Returns false without effect when
// the countdown is already running or has expired.
func (c *Countdown) Start() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clk.Now()
	switch c.state {
	case StateStopped:
		c.remaining = c.duration
		c.startedAt = now
	case StatePaused:
		// Resume: elapsed while paused must not count against the countdown.
		c.startedAt = now.Add(c.remaining - c.duration)
	default:
		return false
	}

	c.state = StateRunning
	c.notified = false
	c.gen++
	c.cancel = make(chan struct{})
	go c.run(c.gen, c.cancel)
	return true
}

// Pause freezes the remaining time. Only valid from RUNNING.
func (c *Countdown) Pause() bool {
	c.mu.Lock()
	if c.state != StateRunning {
		c.mu.Unlock()
		return false
	}
	c.remaining = c.remainingLocked()
	if c.remaining <= 0 {
		// Raced with expiry; report it rather than freezing at zero.
		c.mu.Unlock()
		return false
	}
	c.state = StatePaused
	c.gen++
	c.cancelRunLocked()
	c.mu.Unlock()

	c.flushDelivery()
	return true
}

// Stop resets the countdown to its full duration from any state. Stopping
// an already-stopped countdown is a no-op returning false.
func (c *Countdown) Stop() bool {
	c.mu.Lock()
	if c.state == StateStopped {
		c.mu.Unlock()
		return false
	}
	c.state = StateStopped
	c.remaining = c.duration
	c.startedAt = time.Time{}
	c.notified = false
	c.gen++
	c.cancelRunLocked()
	c.mu.Unlock()

	c.flushDelivery()
	return true
}

// Reset is Stop plus an optional new duration. Passing 0 keeps the current
// duration; a duration below one second is rejected.
func (c *Countdown) Reset(newDuration time.Duration) error {
	if newDuration != 0 && newDuration < time.Second {
		return ErrInvalidDuration
	}
	c.mu.Lock()
	if newDuration != 0 {
		c.duration = newDuration
	}
	c.state = StateStopped
	c.remaining = c.duration
	c.startedAt = time.Time{}
	c.notified = false
	c.gen++
	c.cancelRunLocked()
	c.mu.Unlock()

	c.flushDelivery()
	return nil
}

// Snapshot computes the current view on demand. If the countdown ran out
// while RUNNING, the state is reported as EXPIRED and the one-time expiry
// notification fires.
func (c *Countdown) Snapshot() Snapshot {
	c.mu.Lock()
	snap, fire := c.observeLocked()
	notify := c.notify
	c.mu.Unlock()

	if fire && notify != nil {
		c.deliverMu.Lock()
		notify(snap)
		c.deliverMu.Unlock()
	}
	return snap
}

// observeLocked folds a RUNNING countdown that reached zero over into
// EXPIRED and reports whether the expiry notification should fire now.
func (c *Countdown) observeLocked() (Snapshot, bool) {
	if c.state == StateRunning {
		rem := c.remainingLocked()
		if rem <= 0 {
			c.state = StateExpired
			c.remaining = 0
			fire := !c.notified
			c.notified = true
			return Snapshot{Duration: c.duration, Remaining: 0, State: StateExpired}, fire
		}
		return Snapshot{Duration: c.duration, Remaining: rem, State: StateRunning}, false
	}
	return Snapshot{Duration: c.duration, Remaining: c.remaining, State: c.state}, false
}

// remainingLocked computes remaining from the wall clock. Caller holds mu
// and state is RUNNING.
func (c *Countdown) remainingLocked() time.Duration {
	elapsed := c.clk.Since(c.startedAt)
	if elapsed >= c.duration {
		return 0
	}
	return c.duration - elapsed
}

// run is the progress driver for one RUNNING span. It only reads the wall
// clock and publishes notifications; it never decides state transitions
// beyond observing expiry. A generation mismatch means this run was
// cancelled and nothing may be delivered; the cancel channel wakes the
// driver immediately instead of waiting out its current tick.
func (c *Countdown) run(gen uint64, cancel <-chan struct{}) {
	for {
		select {
		case <-cancel:
			return
		case <-c.clk.After(c.tick):
		}

		c.deliverMu.Lock()
		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			c.deliverMu.Unlock()
			return
		}
		snap, fire := c.observeLocked()
		notify := c.notify
		c.mu.Unlock()

		// Progress ticks always deliver; the expired snapshot only once.
		if notify != nil && (snap.State != StateExpired || fire) {
			notify(snap)
		}
		c.deliverMu.Unlock()

		if snap.State == StateExpired {
			return
		}
	}
}

// cancelRunLocked wakes the current run driver so it retires without
// waiting for its next tick. Caller holds mu.
func (c *Countdown) cancelRunLocked() {
	if c.cancel != nil {
		close(c.cancel)
		c.cancel = nil
	}
}

// flushDelivery waits for any in-flight notification to finish so callers
// observe no notification after a cancelling call returns.
func (c *Countdown) flushDelivery() {
	c.deliverMu.Lock()
	c.deliverMu.Unlock() //nolint:staticcheck // empty section drains an in-flight delivery
}
