package timers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

func TestFanout_DeliversInOrder(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var got []string
	f := NewFanout(func(_ uuid.UUID, s Snapshot) {
		mu.Lock()
		got = append(got, s.TimerID)
		mu.Unlock()
	}, 16)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.Run(ctx)

	comp := uuid.New()
	want := []string{"attempt:a", "attempt:b", "attempt:c"}
	for _, id := range want {
		f.Notify(comp, Snapshot{TimerID: id})
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n == len(want) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != len(want) {
		t.Fatalf("delivered %d snapshots, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestFanout_NotifyNeverBlocksOnStalledSink(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	f := NewFanout(func(uuid.UUID, Snapshot) { <-release }, 2)
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.Run(ctx)

	comp := uuid.New()
	done := make(chan struct{})
	go func() {
		// Far more notifications than the buffer holds while the sink is
		// stuck; overflow must drop, never block the clock's delivery.
		for i := 0; i < 100; i++ {
			f.Notify(comp, Snapshot{TimerID: "attempt:x"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Notify blocked on a stalled sink")
	}
}

func TestRegistryMutations_CompleteWhileSinkReadsBack(t *testing.T) {
	t.Parallel()

	fake := clockwork.NewFakeClock()
	comp := uuid.New()
	timerID := AttemptTimerID(uuid.New())

	// The sink does slow work and reads back into the registry — the
	// shape of the production wiring (publish + snapshot the live
	// timers). Off the delivery path this must never stall timer owners.
	var r *Registry
	f := NewFanout(func(competitionID uuid.UUID, _ Snapshot) {
		time.Sleep(3 * time.Millisecond)
		r.ListForCompetition(competitionID)
	}, 4)
	r = NewRegistry(WithClock(fake), WithNotify(f.Notify))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.Run(ctx)

	if _, err := r.Create(comp, timerID, 60*time.Second, KindAttempt); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !r.Start(comp, timerID) {
		t.Fatal("Start failed")
	}

	wctx, wcancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer wcancel()
	if err := fake.BlockUntilContext(wctx, 1); err != nil {
		t.Fatalf("driver never armed: %v", err)
	}
	// Cross zero so the delivery in flight is the expiry notification.
	fake.Advance(61 * time.Second)

	stopped := make(chan bool, 1)
	go func() { stopped <- r.Stop(comp, timerID) }()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked behind notification delivery")
	}
}
