package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/devblac/counter-watch/internal/counter"
	"github.com/devblac/counter-watch/internal/engine"
)

// GetSources lists every source with a published snapshot.
func (s *Server) GetSources(c echo.Context) error {
	ids := s.views.SourceIDs()
	resp := SourcesResponse{Sources: make([]SourceSummary, 0, len(ids))}
	for _, id := range ids {
		v, ok := s.views.Views(id)
		if !ok {
			continue
		}
		resp.Sources = append(resp.Sources, SourceSummary{
			ID:           id,
			BuiltAt:      v.BuiltAt,
			TotalChanges: v.Stats.TotalChanges,
			CurrentValue: v.Running(),
		})
	}
	return c.JSON(http.StatusOK, resp)
}

// GetStats returns the headline counters of a source.
func (s *Server) GetStats(c echo.Context) error {
	var req SourceRequest
	v, err := s.bindSource(c, &req, &req.Source)
	if err != nil {
		return err
	}
	st := v.Stats
	return c.JSON(http.StatusOK, StatsResponse{
		SourceID:       v.SourceID,
		BuiltAt:        v.BuiltAt,
		TotalChanges:   st.TotalChanges,
		Increases:      st.Increases,
		Decreases:      st.Decreases,
		Resets:         st.Resets,
		Sets:           st.Sets,
		UniqueUsers:    st.UniqueUsers,
		AveragePerUser: st.AveragePerUser,
		CurrentValue:   v.Running(),
	})
}

// GetAnalytics returns the reason distribution and value evolution.
func (s *Server) GetAnalytics(c echo.Context) error {
	var req SourceRequest
	v, err := s.bindSource(c, &req, &req.Source)
	if err != nil {
		return err
	}
	st := v.Stats
	evolution := st.Evolution
	if evolution == nil {
		evolution = []counter.EvolutionPoint{}
	}
	return c.JSON(http.StatusOK, AnalyticsResponse{
		SourceID:    v.SourceID,
		BuiltAt:     v.BuiltAt,
		IncreasePct: st.IncreasePct,
		DecreasePct: st.DecreasePct,
		ResetPct:    st.ResetPct,
		SetPct:      st.SetPct,
		Evolution:   evolution,
	})
}

// GetLeaderboard returns the top callers of a source.
func (s *Server) GetLeaderboard(c echo.Context) error {
	var req ListRequest
	v, err := s.bindSource(c, &req, &req.Source)
	if err != nil {
		return err
	}
	limit := req.Limit
	if limit == 0 {
		limit = s.cfg.LeaderboardLimit
	}
	entries := counter.Top(v.Leaderboard, limit)
	if entries == nil {
		entries = []counter.LeaderboardEntry{}
	}
	return c.JSON(http.StatusOK, LeaderboardResponse{
		SourceID: v.SourceID,
		BuiltAt:  v.BuiltAt,
		Entries:  entries,
	})
}

// GetEvents returns the latest events of a source, newest first.
func (s *Server) GetEvents(c echo.Context) error {
	var req ListRequest
	v, err := s.bindSource(c, &req, &req.Source)
	if err != nil {
		return err
	}
	limit := req.Limit
	if limit == 0 {
		limit = s.cfg.RecentEvents
	}
	recent := v.Recent(limit)
	events := make([]Event, 0, len(recent))
	for _, ev := range recent {
		events = append(events, Event{NormalizedEvent: ev, Change: ev.Change()})
	}
	return c.JSON(http.StatusOK, EventsResponse{
		SourceID: v.SourceID,
		BuiltAt:  v.BuiltAt,
		Events:   events,
	})
}

// bindSource binds and validates req, then resolves the views of *source.
func (s *Server) bindSource(c echo.Context, req interface{}, source *string) (*engine.Views, error) {
	if err := c.Bind(req); err != nil {
		return nil, err
	}
	if err := c.Validate(req); err != nil {
		return nil, err
	}

	id := *source
	if id == "" {
		ids := s.views.SourceIDs()
		if len(ids) != 1 {
			return nil, echo.NewHTTPError(http.StatusBadRequest, "source is required")
		}
		id = ids[0]
	}
	v, ok := s.views.Views(id)
	if !ok {
		return nil, echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("no snapshot for source %q", id))
	}
	return v, nil
}
