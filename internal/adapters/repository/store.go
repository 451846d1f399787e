// Package repository collects finished impact events for a run.
package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/okian/hitscore/internal/domain/model"
)

// Store provides concurrent write and ordered read access to the events of
// one run.
type Store interface {
	// Add records an event. Each frame index may be recorded once.
	Add(ctx context.Context, event model.ImpactEvent) error

	// Get returns the event at frameIndex, or ErrNotFound.
	Get(ctx context.Context, frameIndex int) (model.ImpactEvent, error)

	// Events returns all events in increasing frame (timestamp) order.
	Events(ctx context.Context) []model.ImpactEvent

	// Total returns the sum of point values over scored events.
	Total(ctx context.Context) int

	// Count returns the number of recorded events.
	Count(ctx context.Context) int
}

// EventStore implements Store with a slice kept sorted by frame index.
type EventStore struct {
	mu     sync.RWMutex
	events []model.ImpactEvent
	total  int
}

// NewEventStore creates an empty store.
func NewEventStore() *EventStore {
	return &EventStore{}
}

func (s *EventStore) search(frameIndex int) int {
	return sort.Search(len(s.events), func(i int) bool {
		return s.events[i].FrameIndex >= frameIndex
	})
}

// Add inserts event at its sorted position.
func (s *EventStore) Add(ctx context.Context, event model.ImpactEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.search(event.FrameIndex)
	if i < len(s.events) && s.events[i].FrameIndex == event.FrameIndex {
		return fmt.Errorf("%w: frame %d", ErrDuplicate, event.FrameIndex)
	}
	s.events = append(s.events, model.ImpactEvent{})
	copy(s.events[i+1:], s.events[i:])
	s.events[i] = event

	if event.Scored {
		s.total += event.PointValue
	}
	return nil
}

// Get returns the event recorded for frameIndex.
func (s *EventStore) Get(_ context.Context, frameIndex int) (model.ImpactEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.search(frameIndex)
	if i < len(s.events) && s.events[i].FrameIndex == frameIndex {
		return s.events[i], nil
	}
	return model.ImpactEvent{}, ErrNotFound
}

// Events returns a copy of the ordered event list.
func (s *EventStore) Events(_ context.Context) []model.ImpactEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.ImpactEvent, len(s.events))
	copy(out, s.events)
	return out
}

// Total returns the running score.
func (s *EventStore) Total(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.total
}

// Count returns the number of events.
func (s *EventStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

var _ Store = (*EventStore)(nil)
