package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/devblac/counter-watch/internal/config"
	"github.com/devblac/counter-watch/internal/engine"
)

// ViewStore is the read side of the snapshot cache.
type ViewStore interface {
	Views(sourceID string) (*engine.Views, bool)
	SourceIDs() []string
}

// Server serves read-only JSON views over the latest snapshots.
type Server struct {
	*echo.Echo
	views ViewStore
	cfg   config.APIConfig
	log   *slog.Logger
}

// New builds a server with all routes registered.
func New(views ViewStore, cfg config.APIConfig, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	if cfg.LeaderboardLimit <= 0 {
		cfg.LeaderboardLimit = config.DefaultLeaderboardLimit
	}
	if cfg.RecentEvents <= 0 {
		cfg.RecentEvents = config.DefaultRecentEvents
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &requestValidator{validate: validator.New()}
	e.Use(middleware.Recover())
	e.Use(requestLogger(log))

	s := &Server{Echo: e, views: views, cfg: cfg, log: log}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.GET("/sources", s.GetSources)
	s.GET("/stats", s.GetStats)
	s.GET("/analytics", s.GetAnalytics)
	s.GET("/leaderboard", s.GetLeaderboard)
	s.GET("/events", s.GetEvents)
}

// ListenAndServe starts the server on addr. It returns nil after Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	if err := s.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts the server down within timeout.
func (s *Server) Stop(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.Shutdown(ctx)
}

type requestValidator struct {
	validate *validator.Validate
}

func (v *requestValidator) Validate(i interface{}) error {
	if err := v.validate.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func requestLogger(log *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			log.Debug("api request",
				"method", c.Request().Method,
				"path", c.Path(),
				"status", c.Response().Status,
				"took", time.Since(start))
			return nil
		}
	}
}
