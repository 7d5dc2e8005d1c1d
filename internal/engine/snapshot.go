package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/devblac/counter-watch/internal/counter"
	"github.com/devblac/counter-watch/internal/metrics"
)

// Source is a chain adapter for one counter contract.
type Source interface {
	ID() string
	// History returns the complete event snapshot, newest first.
	History(ctx context.Context) ([]counter.RawEvent, error)
	// ProcessNext returns the events of the next confirmed block in log order.
	ProcessNext(ctx context.Context) ([]counter.RawEvent, error)
}

// Views is everything derived from one full history snapshot of a source.
// A Views value is never mutated after it is published.
type Views struct {
	SourceID    string                     `json:"source_id"`
	BuiltAt     time.Time                  `json:"built_at"`
	Stats       counter.AggregateView      `json:"stats"`
	Leaderboard []counter.LeaderboardEntry `json:"leaderboard"`
	// Events holds the normalized history in chronological order.
	Events []counter.NormalizedEvent `json:"-"`
}

// Running is the reconstructed counter value after the last event.
func (v *Views) Running() int64 {
	if len(v.Events) == 0 {
		return 0
	}
	return v.Events[len(v.Events)-1].Running
}

// Recent returns up to n latest events, newest first.
func (v *Views) Recent(n int) []counter.NormalizedEvent {
	return counter.Recent(v.Events, n)
}

// Snapshotter recomputes and caches Views per source. Every refresh rebuilds
// the views wholesale from a fresh history fetch.
type Snapshotter struct {
	mu          sync.RWMutex
	views       map[string]*Views
	newestFirst bool
	metrics     *metrics.Metrics
	now         func() time.Time
}

// NewSnapshotter creates an empty cache. newestFirst is the order sources
// deliver history in.
func NewSnapshotter(newestFirst bool, m *metrics.Metrics) *Snapshotter {
	return &Snapshotter{
		views:       map[string]*Views{},
		newestFirst: newestFirst,
		metrics:     m,
		now:         time.Now,
	}
}

// Refresh fetches the history of src and publishes new views. On failure the
// previously published views stay in place.
func (s *Snapshotter) Refresh(ctx context.Context, src Source) (*Views, error) {
	history, err := src.History(ctx)
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", src.ID(), err)
	}
	return s.Publish(src.ID(), history), nil
}

// Publish builds views from a history snapshot and stores them for sourceID.
func (s *Snapshotter) Publish(sourceID string, history []counter.RawEvent) *Views {
	events := counter.Normalize(history, s.newestFirst)
	v := &Views{
		SourceID:    sourceID,
		BuiltAt:     s.now(),
		Stats:       counter.Summarize(events),
		Leaderboard: counter.Rank(events),
		Events:      events,
	}

	s.mu.Lock()
	s.views[sourceID] = v
	s.mu.Unlock()

	s.metrics.SnapshotBuilt(sourceID)
	return v
}

// Views returns the latest published views for sourceID.
func (s *Snapshotter) Views(sourceID string) (*Views, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.views[sourceID]
	return v, ok
}

// SourceIDs lists sources with published views, sorted.
func (s *Snapshotter) SourceIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.views))
	for id := range s.views {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
