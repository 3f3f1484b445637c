package broadcast

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingPublisher) Publish(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingPublisher) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func TestDispatcher_PreservesEnqueueOrder(t *testing.T) {
	t.Parallel()

	pub := &recordingPublisher{}
	d := NewDispatcher(pub, 64)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	comp := uuid.New()
	const n = 50
	var want []uuid.UUID
	for i := 0; i < n; i++ {
		ev, err := New(comp, TypeAttemptUpdate, map[string]int{"seq": i})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		want = append(want, ev.ID)
		d.Enqueue(ev)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if len(pub.snapshot()) == n {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	got := pub.snapshot()
	if len(got) != n {
		t.Fatalf("published %d events, want %d", len(got), n)
	}
	for i, ev := range got {
		if ev.ID != want[i] {
			t.Fatalf("event %d published out of order", i)
		}
	}
}
