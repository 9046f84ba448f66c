package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/premiumeclipse/essencefurro/internal/app"
	"github.com/premiumeclipse/essencefurro/internal/domain"
	apperrors "github.com/premiumeclipse/essencefurro/internal/platform/errors"
)

func (s *Server) handleGetStats(c echo.Context) error {
	stats, err := s.stats.Get(c.Request().Context())
	if err != nil {
		return apperrors.InternalError("Failed to fetch bot statistics", err)
	}
	return writeJSON(c, http.StatusOK, stats)
}

func (s *Server) handleUpdateStats(c echo.Context) error {
	var patch domain.StatsPatch
	if err := c.Bind(&patch); err != nil {
		return apperrors.ValidationErrorf(err, "Invalid request body")
	}

	stats, err := s.stats.Merge(c.Request().Context(), patch)
	if err != nil {
		return serviceError(err, "Failed to update bot stats")
	}
	return writeJSON(c, http.StatusOK, stats)
}

func (s *Server) handleListPublicIncidents(c echo.Context) error {
	incidents, err := s.incidents.ListPublic(c.Request().Context())
	if err != nil {
		return apperrors.InternalError("Failed to fetch incidents", err)
	}
	return writeJSON(c, http.StatusOK, incidents)
}

func (s *Server) handleListAllIncidents(c echo.Context) error {
	incidents, err := s.incidents.ListAll(c.Request().Context())
	if err != nil {
		return apperrors.InternalError("Failed to fetch incidents", err)
	}
	return writeJSON(c, http.StatusOK, incidents)
}

func (s *Server) handleCreateIncident(c echo.Context) error {
	var req app.CreateIncidentRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationErrorf(err, "Invalid request body")
	}

	incident, err := s.incidents.Create(c.Request().Context(), req)
	if err != nil {
		return serviceError(err, "Failed to create incident")
	}
	return writeJSON(c, http.StatusCreated, incident)
}

func (s *Server) handleUpdateIncident(c echo.Context) error {
	rawID := c.Param("id")
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return apperrors.ValidationError("Invalid incident ID").WithField("id", rawID)
	}

	var req app.UpdateIncidentRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationErrorf(err, "Invalid request body")
	}

	incident, err := s.incidents.Update(c.Request().Context(), id, req)
	if err != nil {
		return serviceError(err, "Failed to update incident")
	}
	return writeJSON(c, http.StatusOK, incident)
}

func (s *Server) handleBotStatus(c echo.Context) error {
	status, err := s.relay.BotStatus(c.Request().Context())
	if err != nil {
		return apperrors.InternalError("Failed to read bot status", err)
	}
	return writeJSON(c, http.StatusOK, status)
}

func (s *Server) handleActiveUsers(c echo.Context) error {
	users, err := s.relay.ActiveUsers(c.Request().Context())
	if err != nil {
		return apperrors.InternalError("Failed to read active users", err)
	}
	return writeJSON(c, http.StatusOK, users)
}

// serviceError keeps structured service errors and wraps anything else as internal.
func serviceError(err error, message string) error {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) && appErr.Type != apperrors.TypeInternal {
		return err
	}
	return apperrors.InternalError(message, err)
}

func writeJSON(c echo.Context, status int, body any) error {
	if err := c.JSON(status, body); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
