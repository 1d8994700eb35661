package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const (
	// shutdownTimeout bounds graceful shutdown of the status server.
	shutdownTimeout = time.Second * 5
)

// ServerConfig represents the status server configuration.
type ServerConfig struct {
	// Address is the listening address, e.g. :9090.
	Address string
	// Metrics serves the prometheus metrics.
	Metrics http.Handler
	// LastCycle returns the completion time of the last cycle, zero if none completed.
	LastCycle func() time.Time
	// MaxCycleAge is the age after which the last cycle is considered stale.
	MaxCycleAge time.Duration
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *ServerConfig) Validate() error {
	var errs error

	if cfg.Address == "" {
		errs = errors.Join(errs, fmt.Errorf("address cannot be an empty string"))
	}
	if cfg.Metrics == nil {
		errs = errors.Join(errs, fmt.Errorf("metrics handler cannot be nil"))
	}
	if cfg.LastCycle == nil {
		errs = errors.Join(errs, fmt.Errorf("last cycle func cannot be nil"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Health represents the status server health response.
type Health struct {
	Status    string `json:"status"`
	LastCycle string `json:"lastcycle,omitempty"`
}

// Server represents the status server exposing metrics and health.
type Server struct {
	cfg  *ServerConfig
	echo *echo.Echo
}

// NewServer initializes a new status server.
func NewServer(cfg *ServerConfig) (*Server, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating server config: %w", err)
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{cfg: cfg, echo: e}

	e.GET("/metrics", echo.WrapHandler(cfg.Metrics))
	e.GET("/healthz", s.health)

	return s, nil
}

// health reports whether cycles are completing on schedule.
func (s *Server) health(c echo.Context) error {
	last := s.cfg.LastCycle()
	if last.IsZero() {
		return c.JSON(http.StatusOK, Health{Status: "starting"})
	}

	resp := Health{Status: "ok", LastCycle: last.UTC().Format(time.RFC3339)}
	if s.cfg.MaxCycleAge > 0 && s.cfg.Now().Sub(last) > s.cfg.MaxCycleAge {
		resp.Status = "stale"
		return c.JSON(http.StatusServiceUnavailable, resp)
	}

	return c.JSON(http.StatusOK, resp)
}

// Run serves until the provided context is cancelled.
func (s *Server) Run(ctx context.Context) {
	go func() {
		s.cfg.Logger.Info().Msgf("status server listening on %s", s.cfg.Address)
		err := s.echo.Start(s.cfg.Address)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.cfg.Logger.Error().Msgf("status server: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := s.echo.Shutdown(shutdownCtx)
	if err != nil {
		s.cfg.Logger.Error().Msgf("shutting down status server: %v", err)
	}
}
