// Package httpserver exposes the dashboard REST API, the relay WebSocket
// endpoint and the operational routes over echo.
package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/premiumeclipse/essencefurro/internal/adapter/metrics"
	"github.com/premiumeclipse/essencefurro/internal/app"
	"github.com/premiumeclipse/essencefurro/internal/domain"
	"github.com/premiumeclipse/essencefurro/internal/platform/config"
)

type statsService interface {
	Get(ctx context.Context) (domain.Stats, error)
	Merge(ctx context.Context, patch domain.StatsPatch) (domain.Stats, error)
}

type incidentService interface {
	Create(ctx context.Context, req app.CreateIncidentRequest) (domain.Incident, error)
	Update(ctx context.Context, id int64, req app.UpdateIncidentRequest) (domain.Incident, error)
	ListPublic(ctx context.Context) ([]domain.Incident, error)
	ListAll(ctx context.Context) ([]domain.Incident, error)
}

type relayStatus interface {
	BotStatus(ctx context.Context) (domain.BotStatus, error)
	ActiveUsers(ctx context.Context) ([]domain.UserSession, error)
}

type adminVerifier interface {
	Verify(raw string) (string, error)
}

// connectionLoad reports WebSocket connection usage for the readiness probe.
type connectionLoad interface {
	Current() int64
	Max() int64
}

// Dependencies are the collaborators the server routes to.
type Dependencies struct {
	Stats     statsService
	Incidents incidentService
	Relay     relayStatus
	Admin     adminVerifier

	WebSocketHandler http.Handler
	Connections      connectionLoad
	MetricsHandler   http.Handler
	HTTPMetrics      *metrics.HTTPMetrics

	HealthChecks []HealthCheck
	Clock        clockwork.Clock
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	stats     statsService
	incidents incidentService
	relay     relayStatus
	admin     adminVerifier

	websocketHandler http.Handler
	connections      connectionLoad
	metricsHandler   http.Handler
	httpMetrics      *metrics.HTTPMetrics

	healthChecks []HealthCheck
	clock        clockwork.Clock
	startTime    time.Time
}

func NewServer(cfg *config.Config, deps Dependencies) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	srv := &Server{
		echo:             e,
		config:           cfg,
		stats:            deps.Stats,
		incidents:        deps.Incidents,
		relay:            deps.Relay,
		admin:            deps.Admin,
		websocketHandler: deps.WebSocketHandler,
		connections:      deps.Connections,
		metricsHandler:   deps.MetricsHandler,
		httpMetrics:      deps.HTTPMetrics,
		healthChecks:     deps.HealthChecks,
		clock:            clock,
		startTime:        clock.Now(),
	}

	srv.registerRoutes()

	return srv
}

// Handler exposes the router, mainly for tests driving it through httptest.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
