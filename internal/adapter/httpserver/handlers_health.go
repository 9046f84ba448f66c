package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/premiumeclipse/essencefurro/internal/platform/version"
)

const (
	serviceName           = "essence-server"
	startupProbeTimeout   = 2 * time.Second
	readinessProbeTimeout = 5 * time.Second
)

// HealthCheck is a named dependency probe.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type probeFailure struct {
	check string
	err   error
}

func (s *Server) registerHealthRoutes() {
	s.echo.GET("/health/startup", s.handleStartup)
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/version", s.handleVersion)
}

// handleStartup only waits for the storage dependencies; the relay starts in-process.
func (s *Server) handleStartup(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), startupProbeTimeout)
	defer cancel()

	if f := s.firstFailingCheck(ctx); f != nil {
		return writeUnhealthy(c, f)
	}
	return writeJSON(c, http.StatusOK, map[string]any{"status": "ready"})
}

func (s *Server) handleLiveness(c echo.Context) error {
	return writeJSON(c, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": s.clock.Since(s.startTime).Seconds(),
	})
}

// handleReadiness fails when a storage dependency is down, the relay actor has
// stopped, or the WebSocket endpoint is at capacity. An offline bot is
// reported but does not fail the probe: dashboards are still served.
func (s *Server) handleReadiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), readinessProbeTimeout)
	defer cancel()

	if f := s.firstFailingCheck(ctx); f != nil {
		return writeUnhealthy(c, f)
	}

	bot, err := s.relay.BotStatus(ctx)
	if err != nil {
		return writeUnhealthy(c, &probeFailure{check: "relay", err: err})
	}

	body := map[string]any{
		"status":     "ready",
		"bot_online": bot.IsOnline,
	}
	if s.connections != nil {
		current, limit := s.connections.Current(), s.connections.Max()
		body["connections"] = current
		body["max_connections"] = limit
		if limit > 0 && current >= limit {
			return writeUnhealthy(c, &probeFailure{
				check: "websocket_capacity",
				err:   fmt.Errorf("%d of %d websocket connections in use", current, limit),
			})
		}
	}
	return writeJSON(c, http.StatusOK, body)
}

// firstFailingCheck runs the dependency checks in registration order.
func (s *Server) firstFailingCheck(ctx context.Context) *probeFailure {
	for _, hc := range s.healthChecks {
		if err := hc.Check(ctx); err != nil {
			return &probeFailure{check: hc.Name, err: err}
		}
	}
	return nil
}

func writeUnhealthy(c echo.Context, f *probeFailure) error {
	return writeJSON(c, http.StatusServiceUnavailable, map[string]any{
		"status":       "unhealthy",
		"failed_check": f.check,
		"error":        f.err.Error(),
	})
}

func (s *Server) handleVersion(c echo.Context) error {
	return writeJSON(c, http.StatusOK, version.Get(serviceName))
}
