// Package live fans encounter events out to in-process watchers.
package live

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Event types.
const (
	EventSubmissionAccepted = "submission.accepted"
	EventTurnResolved       = "turn.resolved"
	EventEncounterClosed    = "encounter.closed"
)

const defaultBuffer = 16

// Event is one message delivered to encounter watchers.
type Event struct {
	Type        string    `json:"type"`
	EncounterID string    `json:"encounter_id"`
	TurnID      string    `json:"turn_id,omitempty"`
	At          time.Time `json:"at"`
	Data        any       `json:"data,omitempty"`
}

// Subscription receives events for one encounter until closed.
type Subscription struct {
	C <-chan Event

	hub         *Hub
	encounterID string
	ch          chan Event
	once        sync.Once
}

// Close detaches the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() { s.hub.remove(s.encounterID, s.ch) })
}

// Hub is an in-process publish/subscribe registry keyed by encounter id.
// A subscriber whose buffer is full is dropped and its channel closed.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[chan Event]struct{}
	buffer int
	logger *slog.Logger
}

// NewHub creates a hub with the given per-subscriber buffer size.
func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:   make(map[string]map[chan Event]struct{}),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe registers a watcher for encounterID.
func (h *Hub) Subscribe(encounterID string) *Subscription {
	ch := make(chan Event, h.buffer)
	h.mu.Lock()
	set, ok := h.subs[encounterID]
	if !ok {
		set = make(map[chan Event]struct{})
		h.subs[encounterID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()
	return &Subscription{C: ch, hub: h, encounterID: encounterID, ch: ch}
}

// Publish delivers event to every watcher of its encounter without blocking.
func (h *Hub) Publish(event Event) {
	if h == nil {
		return
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[event.EncounterID] {
		select {
		case ch <- event:
		default:
			h.logger.Warn("dropping slow live subscriber",
				"encounter_id", event.EncounterID,
				"event", event.Type,
			)
			h.dropLocked(event.EncounterID, ch)
		}
	}
}

// Subscribers returns the number of watchers for encounterID.
func (h *Hub) Subscribers(encounterID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[encounterID])
}

// Shutdown closes every subscription.
func (h *Hub) Shutdown(context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for encounterID, set := range h.subs {
		for ch := range set {
			h.dropLocked(encounterID, ch)
		}
	}
}

func (h *Hub) remove(encounterID string, ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(encounterID, ch)
}

func (h *Hub) dropLocked(encounterID string, ch chan Event) {
	set, ok := h.subs[encounterID]
	if !ok {
		return
	}
	if _, ok := set[ch]; !ok {
		return
	}
	delete(set, ch)
	close(ch)
	if len(set) == 0 {
		delete(h.subs, encounterID)
	}
}
