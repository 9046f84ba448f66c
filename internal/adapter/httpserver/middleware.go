package httpserver

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/premiumeclipse/essencefurro/internal/adapter/metrics"
	"github.com/premiumeclipse/essencefurro/internal/platform/correlation"
	apperrors "github.com/premiumeclipse/essencefurro/internal/platform/errors"
)

const adminSubjectKey = "adminSubject"

func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := correlation.WithID(c.Request().Context(), correlation.NewID())
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

// ErrorHandlingMiddleware renders structured errors as JSON. Echo's own
// HTTP errors pass through to its default handler.
func ErrorHandlingMiddleware(m *metrics.HTTPMetrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			var appErr *apperrors.Error
			var httpErr *echo.HTTPError
			if !errors.As(err, &appErr) && errors.As(err, &httpErr) {
				return err
			}

			structuredErr := apperrors.AsStructuredError(err)
			logError(c, structuredErr)
			if m != nil {
				m.ErrorsTotal.WithLabelValues(string(structuredErr.Type)).Inc()
			}

			if err := c.JSON(structuredErr.HTTPStatus(), structuredErr.ToResponse()); err != nil {
				return fmt.Errorf("failed to write error response: %w", err)
			}
			return nil
		}
	}
}

func logError(c echo.Context, err *apperrors.Error) {
	attrs := []any{
		"error_type", err.Type,
		"message", err.Message,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", err.HTTPStatus(),
	}

	for k, v := range err.Context {
		attrs = append(attrs, k, v)
	}

	if subject := c.Get(adminSubjectKey); subject != nil {
		attrs = append(attrs, "admin", subject)
	}

	ctx := c.Request().Context()
	switch err.Type {
	case apperrors.TypeValidation:
		slog.InfoContext(ctx, "Validation error", attrs...)
	case apperrors.TypeUnauthorized:
		slog.InfoContext(ctx, "Unauthorized", attrs...)
	case apperrors.TypeNotFound:
		slog.InfoContext(ctx, "Not found", attrs...)
	case apperrors.TypeConflict:
		slog.WarnContext(ctx, "Conflict", attrs...)
	case apperrors.TypeInternal:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "Internal error", attrs...)
	case apperrors.TypeExternal:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "External service error", attrs...)
	default:
		slog.ErrorContext(ctx, "Unknown error type", attrs...)
	}
}

// requireAdmin accepts only requests carrying a valid admin bearer token.
func (s *Server) requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			return apperrors.UnauthorizedError("Missing bearer token")
		}

		subject, err := s.admin.Verify(strings.TrimSpace(raw))
		if err != nil {
			return apperrors.UnauthorizedError("Invalid or expired token")
		}

		c.Set(adminSubjectKey, subject)
		return next(c)
	}
}
