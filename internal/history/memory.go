package history

import (
	"context"
	"sync"

	"github.com/Iron-Ham/clusterscaler/internal/scaling"
)

const defaultMemoryLimit = 1000

// MemoryStore keeps scaling events in process memory. It is safe for
// concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	limit   int
	events  map[string][]scaling.ScalingEvent
	indexes map[string]*index
}

// NewMemoryStore creates a store retaining at most limit events per cluster.
func NewMemoryStore(limit int) *MemoryStore {
	if limit <= 0 {
		limit = defaultMemoryLimit
	}
	return &MemoryStore{
		limit:   limit,
		events:  make(map[string][]scaling.ScalingEvent),
		indexes: make(map[string]*index),
	}
}

// LastEvent returns the most recent event for clusterID, or nil.
func (s *MemoryStore) LastEvent(ctx context.Context, clusterID string) (*scaling.ScalingEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ix, ok := s.indexes[clusterID]; ok {
		return clone(ix.Last), nil
	}
	return nil, nil
}

// LastSuccess returns the most recent successful resize in dir, or nil.
func (s *MemoryStore) LastSuccess(ctx context.Context, clusterID string, dir scaling.Direction) (*scaling.ScalingEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ix, ok := s.indexes[clusterID]; ok {
		return clone(ix.lastSuccess(dir)), nil
	}
	return nil, nil
}

// Append records ev, evicting the oldest event past the limit. Re-appending
// the most recent event is a no-op.
func (s *MemoryStore) Append(ctx context.Context, ev scaling.ScalingEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ix, ok := s.indexes[ev.ClusterID]
	if !ok {
		ix = &index{}
		s.indexes[ev.ClusterID] = ix
	}
	if ix.seen(ev) {
		return nil
	}

	events := append(s.events[ev.ClusterID], ev)
	if over := len(events) - s.limit; over > 0 {
		events = append(events[:0:0], events[over:]...)
	}
	s.events[ev.ClusterID] = events
	ix.observe(ev)
	return nil
}

// Recent returns up to limit events for clusterID, newest first.
func (s *MemoryStore) Recent(ctx context.Context, clusterID string, limit int) ([]scaling.ScalingEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newestFirst(s.events[clusterID], limit), nil
}

// Count returns the number of retained events for clusterID.
func (s *MemoryStore) Count(clusterID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events[clusterID])
}

// Close is a no-op.
func (s *MemoryStore) Close(context.Context) error { return nil }

// newestFirst copies the last limit events of an oldest-first slice in
// reverse order. A non-positive limit returns everything.
func newestFirst(events []scaling.ScalingEvent, limit int) []scaling.ScalingEvent {
	n := len(events)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]scaling.ScalingEvent, 0, n)
	for i := len(events) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, events[i])
	}
	return out
}
