package clock

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestNew_RejectsInvalidDuration(t *testing.T) {
	t.Parallel()

	for _, d := range []time.Duration{0, -time.Second, 500 * time.Millisecond} {
		if _, err := New(d); !errors.Is(err, ErrInvalidDuration) {
			t.Errorf("New(%v): expected ErrInvalidDuration, got %v", d, err)
		}
	}
}

func TestSnapshot_ComputedFromWallClock(t *testing.T) {
	t.Parallel()

	fake := clockwork.NewFakeClock()
	c, err := New(60*time.Second, WithClock(fake))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if !c.Start() {
		t.Fatal("Start returned false on a stopped countdown")
	}
	fake.Advance(time.Second)

	snap := c.Snapshot()
	if snap.State != StateRunning {
		t.Errorf("expected RUNNING, got %s", snap.State)
	}
	if snap.Remaining != 59*time.Second {
		t.Errorf("expected 59s remaining, got %v", snap.Remaining)
	}
}

func TestStart_WhileRunningFails(t *testing.T) {
	t.Parallel()

	fake := clockwork.NewFakeClock()
	c, _ := New(60*time.Second, WithClock(fake))
	if !c.Start() {
		t.Fatal("first Start failed")
	}
	if c.Start() {
		t.Error("second Start succeeded while running")
	}
}

func TestPauseResume_PreservesRemaining(t *testing.T) {
	t.Parallel()

	fake := clockwork.NewFakeClock()
	c, _ := New(60*time.Second, WithClock(fake))
	c.Start()
	fake.Advance(25 * time.Second)

	if !c.Pause() {
		t.Fatal("Pause failed on a running countdown")
	}
	if got := c.Snapshot(); got.State != StatePaused || got.Remaining != 35*time.Second {
		t.Fatalf("after pause: state=%s remaining=%v", got.State, got.Remaining)
	}

	// Time spent paused must not count against the countdown.
	fake.Advance(2 * time.Minute)
	if !c.Start() {
		t.Fatal("resume failed")
	}
	if got := c.Snapshot(); got.Remaining != 35*time.Second {
		t.Errorf("resume changed remaining: got %v, want 35s", got.Remaining)
	}

	fake.Advance(5 * time.Second)
	if got := c.Snapshot(); got.Remaining != 30*time.Second {
		t.Errorf("after 5s of resumed running: got %v, want 30s", got.Remaining)
	}
}

func TestPause_OnlyValidFromRunning(t *testing.T) {
	t.Parallel()

	c, _ := New(10 * time.Second)
	if c.Pause() {
		t.Error("Pause succeeded on a stopped countdown")
	}
}

func TestStop_IdempotentAndResets(t *testing.T) {
	t.Parallel()

	fake := clockwork.NewFakeClock()
	c, _ := New(60*time.Second, WithClock(fake))
	c.Start()
	fake.Advance(10 * time.Second)

	if !c.Stop() {
		t.Fatal("Stop failed on a running countdown")
	}
	if got := c.Snapshot(); got.State != StateStopped || got.Remaining != 60*time.Second {
		t.Fatalf("after stop: state=%s remaining=%v", got.State, got.Remaining)
	}

	// Stopping again is a benign no-op.
	if c.Stop() {
		t.Error("Stop on an already-stopped countdown returned true")
	}
	if got := c.Snapshot(); got.Remaining != 60*time.Second {
		t.Errorf("second Stop changed remaining: %v", got.Remaining)
	}
}

func TestReset_OverridesDuration(t *testing.T) {
	t.Parallel()

	fake := clockwork.NewFakeClock()
	c, _ := New(60*time.Second, WithClock(fake))
	c.Start()
	fake.Advance(10 * time.Second)

	if err := c.Reset(90 * time.Second); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if got := c.Snapshot(); got.State != StateStopped || got.Remaining != 90*time.Second {
		t.Fatalf("after reset: state=%s remaining=%v", got.State, got.Remaining)
	}

	if err := c.Reset(time.Millisecond); !errors.Is(err, ErrInvalidDuration) {
		t.Errorf("Reset with sub-second duration: expected ErrInvalidDuration, got %v", err)
	}
}

func TestExpiry_ReportedAndNotifiedOnce(t *testing.T) {
	t.Parallel()

	fake := clockwork.NewFakeClock()
	var mu sync.Mutex
	expiries := 0
	c, _ := New(2*time.Second, WithClock(fake), WithNotify(func(s Snapshot) {
		if s.State == StateExpired {
			mu.Lock()
			expiries++
			mu.Unlock()
		}
	}))
	c.Start()
	fake.Advance(3 * time.Second)

	if got := c.Snapshot(); got.State != StateExpired || got.Remaining != 0 {
		t.Fatalf("expected expired/0, got state=%s remaining=%v", got.State, got.Remaining)
	}
	// Repeated snapshots must not re-fire the expiry notification.
	c.Snapshot()
	c.Snapshot()
	mu.Lock()
	got := expiries
	mu.Unlock()
	if got != 1 {
		t.Errorf("expiry notification fired %d times, want 1", got)
	}

	if c.Start() {
		t.Error("Start succeeded on an expired countdown without a reset")
	}
}

func TestTickDriver_DeliversProgressAndStopsCleanly(t *testing.T) {
	t.Parallel()

	fake := clockwork.NewFakeClock()
	ticks := make(chan Snapshot, 16)
	c, _ := New(60*time.Second, WithClock(fake), WithNotify(func(s Snapshot) {
		ticks <- s
	}))
	c.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fake.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("driver never armed its tick: %v", err)
	}
	fake.Advance(DefaultTickInterval)

	select {
	case s := <-ticks:
		if s.State != StateRunning {
			t.Errorf("tick snapshot state = %s", s.State)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no progress notification delivered")
	}

	// After Stop returns, no notification from the cancelled run may land.
	c.Stop()
	drain(ticks)
	fake.Advance(10 * DefaultTickInterval)
	select {
	case s := <-ticks:
		t.Errorf("notification after Stop: %+v", s)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCancelledRun_RetiresWithoutNextTick(t *testing.T) {
	// Not parallel: the assertion counts live goroutines.
	fake := clockwork.NewFakeClock()
	before := runtime.NumGoroutine()

	const n = 32
	for i := 0; i < n; i++ {
		paused, _ := New(60*time.Second, WithClock(fake))
		paused.Start()
		paused.Pause()

		stopped, _ := New(60*time.Second, WithClock(fake))
		stopped.Start()
		stopped.Stop()
	}

	// The fake clock never advances: only immediate cancellation can
	// retire the drivers.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if runtime.NumGoroutine() <= before+4 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("%d goroutines still live, started near %d", runtime.NumGoroutine(), before)
}

func drain(ch chan Snapshot) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}
