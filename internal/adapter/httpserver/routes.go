package httpserver

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func (s *Server) registerRoutes() {
	s.echo.Use(correlationMiddleware)
	s.echo.Use(s.setupRequestLoggerMiddleware())
	s.echo.Use(middleware.Recover())
	if s.httpMetrics != nil {
		s.echo.Use(s.httpMetrics.Middleware())
	}
	s.echo.Use(ErrorHandlingMiddleware(s.httpMetrics))
	s.echo.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
		HSTSMaxAge:         63072000,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
	}))

	s.registerHealthRoutes()
	s.registerAPIRoutes()

	if s.websocketHandler != nil {
		s.echo.GET("/ws", echo.WrapHandler(s.websocketHandler))
	}
	if s.metricsHandler != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metricsHandler))
	}
}

func (s *Server) registerAPIRoutes() {
	writeLimiter := newRateLimiter(s.config.APIRateLimit, s.config.APIRateBurst)

	api := s.echo.Group("/api")

	api.GET("/stats", s.handleGetStats)
	api.POST("/stats", s.handleUpdateStats, writeLimiter, s.requireAdmin)

	api.GET("/incidents", s.handleListPublicIncidents)
	api.GET("/incidents/all", s.handleListAllIncidents, s.requireAdmin)
	api.POST("/incidents", s.handleCreateIncident, writeLimiter, s.requireAdmin)
	api.PATCH("/incidents/:id", s.handleUpdateIncident, writeLimiter, s.requireAdmin)

	api.GET("/bot/status", s.handleBotStatus)
	api.GET("/users/active", s.handleActiveUsers)
}

func (s *Server) setupRequestLoggerMiddleware() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/health/live" || c.Path() == "/metrics"
		},
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			slog.InfoContext(c.Request().Context(), "Request", attrs...)
			return nil
		},
	})
}
