package api

import (
	"time"

	"github.com/devblac/counter-watch/internal/counter"
)

// SourceRequest selects one source. Source may be omitted when exactly one
// source has a snapshot.
type SourceRequest struct {
	Source string `query:"source" validate:"omitempty,max=64"`
}

// ListRequest selects a source and a result size. Zero means the configured default.
type ListRequest struct {
	Source string `query:"source" validate:"omitempty,max=64"`
	Limit  int    `query:"limit" validate:"gte=0,lte=100"`
}

type SourceSummary struct {
	ID           string    `json:"id"`
	BuiltAt      time.Time `json:"built_at"`
	TotalChanges int       `json:"total_changes"`
	CurrentValue int64     `json:"current_value"`
}

type SourcesResponse struct {
	Sources []SourceSummary `json:"sources"`
}

type StatsResponse struct {
	SourceID       string    `json:"source_id"`
	BuiltAt        time.Time `json:"built_at"`
	TotalChanges   int       `json:"total_changes"`
	Increases      int       `json:"increases"`
	Decreases      int       `json:"decreases"`
	Resets         int       `json:"resets"`
	Sets           int       `json:"sets"`
	UniqueUsers    int       `json:"unique_users"`
	AveragePerUser float64   `json:"average_per_user"`
	CurrentValue   int64     `json:"current_value"`
}

type AnalyticsResponse struct {
	SourceID    string                   `json:"source_id"`
	BuiltAt     time.Time                `json:"built_at"`
	IncreasePct float64                  `json:"increase_pct"`
	DecreasePct float64                  `json:"decrease_pct"`
	ResetPct    float64                  `json:"reset_pct"`
	SetPct      float64                  `json:"set_pct"`
	Evolution   []counter.EvolutionPoint `json:"evolution"`
}

type LeaderboardResponse struct {
	SourceID string                     `json:"source_id"`
	BuiltAt  time.Time                  `json:"built_at"`
	Entries  []counter.LeaderboardEntry `json:"entries"`
}

// Event is a normalized event plus its human-readable change.
type Event struct {
	counter.NormalizedEvent
	Change string `json:"change"`
}

type EventsResponse struct {
	SourceID string    `json:"source_id"`
	BuiltAt  time.Time `json:"built_at"`
	Events   []Event   `json:"events"`
}
