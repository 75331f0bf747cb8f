package httpserver

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	middleware "github.com/Skotchmaster/restaurant_orders/pkg/middleware/auth"
	"github.com/Skotchmaster/restaurant_orders/services/order/internal/service"
)

var errNoTenant = errors.New("no restaurant on request")

func tenant(c echo.Context) (string, error) {
	s, ok := c.Get(middleware.CtxRestaurantID).(string)
	if !ok || s == "" {
		return "", errNoTenant
	}
	return s, nil
}

// fail logs the failure under event and maps service errors to HTTP codes.
func fail(l *slog.Logger, event string, err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidArgument):
		l.Warn(event, "status", 400, "reason", "invalid request", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNotFound):
		l.Warn(event, "status", 404, "reason", "not found", "error", err)
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	case errors.Is(err, service.ErrConflict):
		l.Warn(event, "status", 409, "reason", "conflict", "error", err)
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrResourceExhausted):
		l.Warn(event, "status", 503, "reason", "resource exhausted", "error", err)
		return echo.NewHTTPError(http.StatusServiceUnavailable, "service busy, retry later")
	default:
		l.Error(event, "status", 500, "reason", "internal error", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

func badRequest(l *slog.Logger, event, reason string, err error) error {
	l.Warn(event, "status", 400, "reason", reason, "error", err)
	return echo.NewHTTPError(http.StatusBadRequest, reason)
}

func forbidden(l *slog.Logger, event string, err error) error {
	l.Warn(event, "status", 403, "reason", "no restaurant", "error", err)
	return echo.NewHTTPError(http.StatusForbidden, "token is not bound to a restaurant")
}
