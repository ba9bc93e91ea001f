package notifications_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"shelver/internal/notifications"
)

type recorder struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (r *recorder) Notify(_ context.Context, event notifications.Event, _ notifications.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recorder) snapshot() []notifications.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notifications.Event(nil), r.events...)
}

func TestBusDeliversInOrderAndDrainsOnClose(t *testing.T) {
	rec := &recorder{}
	bus := notifications.NewBus(8, nil, rec)

	bus.Publish(context.Background(), notifications.EventDiscovered, nil)
	bus.Publish(context.Background(), notifications.EventClassified, nil)
	bus.Publish(context.Background(), notifications.EventMoved, nil)
	bus.Close()

	got := rec.snapshot()
	want := []notifications.Event{notifications.EventDiscovered, notifications.EventClassified, notifications.EventMoved}
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestBusDropsWhenFull(t *testing.T) {
	release := make(chan struct{})
	blocking := notifications.SubscriberFunc(func(context.Context, notifications.Event, notifications.Payload) error {
		<-release
		return nil
	})
	bus := notifications.NewBus(1, nil, blocking)
	var drops atomic.Int32
	bus.OnDrop = func(notifications.Event) { drops.Add(1) }

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			bus.Publish(context.Background(), notifications.EventMoved, nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full buffer")
	}
	if drops.Load() == 0 {
		t.Fatal("expected at least one dropped event")
	}
	close(release)
	bus.Close()
}

func TestBusRecoversSubscriberPanicAndClosesTwice(t *testing.T) {
	rec := &recorder{}
	panicky := notifications.SubscriberFunc(func(context.Context, notifications.Event, notifications.Payload) error {
		panic("boom")
	})
	bus := notifications.NewBus(4, nil, panicky, rec)

	bus.Publish(context.Background(), notifications.EventFailed, nil)
	bus.Close()
	bus.Close()
	bus.Publish(context.Background(), notifications.EventMoved, nil)

	if got := rec.snapshot(); len(got) != 1 || got[0] != notifications.EventFailed {
		t.Fatalf("expected later subscriber to receive event after panic, got %v", got)
	}
}
