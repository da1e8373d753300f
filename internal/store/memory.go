package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/dpavlenko/marksync/internal/common"
	"github.com/dpavlenko/marksync/internal/events"
)

// MemStore is an in-memory Store used by unit tests of higher layers.
type MemStore struct {
	mu      sync.Mutex
	byID    map[string]events.Event
	pending map[string]bool
}

func NewMemStore() *MemStore {
	return &MemStore{byID: make(map[string]events.Event), pending: make(map[string]bool)}
}

func (s *MemStore) Append(ctx context.Context, e events.Event) error {
	return s.insert(ctx, e, true)
}

func (s *MemStore) AppendRemote(ctx context.Context, e events.Event) error {
	return s.insert(ctx, e, false)
}

func (s *MemStore) insert(ctx context.Context, e events.Event, pending bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.byID[e.EventID]; dup {
		return nil
	}
	s.byID[e.EventID] = e
	if pending {
		s.pending[e.EventID] = true
	}
	return nil
}

func (s *MemStore) LoadAll(ctx context.Context) ([]events.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]events.Event, 0, len(s.byID))
	for _, e := range s.byID {
		out = append(out, e)
	}
	events.Sort(out)
	return out, nil
}

func (s *MemStore) LoadPending(ctx context.Context) ([]events.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []events.Event
	for id := range s.pending {
		out = append(out, s.byID[id])
	}
	events.Sort(out)
	return out, nil
}

func (s *MemStore) MarkReplicated(ctx context.Context, eventID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[eventID]; !ok {
		return fmt.Errorf("%w: event %s", common.ErrNotFound, eventID)
	}
	delete(s.pending, eventID)
	return nil
}

func (s *MemStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID = make(map[string]events.Event)
	s.pending = make(map[string]bool)
	return nil
}
