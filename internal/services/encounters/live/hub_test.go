package live

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

func newTestHub(buffer int) *Hub {
	return NewHub(buffer, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestHubDeliversToEncounterWatchers(t *testing.T) {
	t.Parallel()

	hub := newTestHub(4)
	a := hub.Subscribe("enc-1")
	defer a.Close()
	b := hub.Subscribe("enc-2")
	defer b.Close()

	hub.Publish(Event{Type: EventTurnResolved, EncounterID: "enc-1", TurnID: "turn-1"})

	select {
	case ev := <-a.C:
		if ev.Type != EventTurnResolved || ev.TurnID != "turn-1" {
			t.Fatalf("event = %+v", ev)
		}
		if ev.At.IsZero() {
			t.Fatal("event time should be stamped")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}

	select {
	case ev := <-b.C:
		t.Fatalf("other encounter received %+v", ev)
	default:
	}
}

func TestHubDropsSlowSubscriber(t *testing.T) {
	t.Parallel()

	hub := newTestHub(1)
	sub := hub.Subscribe("enc-1")

	hub.Publish(Event{Type: EventSubmissionAccepted, EncounterID: "enc-1"})
	hub.Publish(Event{Type: EventSubmissionAccepted, EncounterID: "enc-1"})

	if got := hub.Subscribers("enc-1"); got != 0 {
		t.Fatalf("subscribers = %d, want slow subscriber dropped", got)
	}
	if _, ok := <-sub.C; !ok {
		t.Fatal("buffered event should still be readable")
	}
	if _, ok := <-sub.C; ok {
		t.Fatal("channel should be closed after drop")
	}
	sub.Close()
}

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	hub := newTestHub(1)
	sub := hub.Subscribe("enc-1")
	sub.Close()
	sub.Close()
	if got := hub.Subscribers("enc-1"); got != 0 {
		t.Fatalf("subscribers = %d, want 0", got)
	}
}

func TestHubShutdownClosesAll(t *testing.T) {
	t.Parallel()

	hub := newTestHub(1)
	a := hub.Subscribe("enc-1")
	b := hub.Subscribe("enc-2")
	hub.Shutdown(context.Background())

	for _, sub := range []*Subscription{a, b} {
		if _, ok := <-sub.C; ok {
			t.Fatal("expected closed channel")
		}
	}
	hub.Publish(Event{EncounterID: "enc-1"})
}

func TestNilHubPublishIsNoop(t *testing.T) {
	t.Parallel()

	var hub *Hub
	hub.Publish(Event{EncounterID: "enc-1"})
}
