package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	pkgdb "github.com/Skotchmaster/restaurant_orders/pkg/db"
	"github.com/Skotchmaster/restaurant_orders/services/order/internal/replication"
)

type Health struct {
	Pool       *pkgdb.Pool
	Replicator *replication.Client
}

func (h *Health) Live(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

// Ready reports 503 until the database answers and the replica is bound.
func (h *Health) Ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), time.Second)
	defer cancel()

	body := map[string]any{"database": "ok", "replica": h.Replicator.State().String()}
	code := http.StatusOK

	if err := h.Pool.Ping(ctx); err != nil {
		body["database"] = err.Error()
		code = http.StatusServiceUnavailable
	}
	if h.Replicator.State() != replication.Ready {
		code = http.StatusServiceUnavailable
	}
	stats := h.Pool.Stats()
	body["connections_in_use"] = stats.InUse
	body["connections_open"] = stats.OpenConnections

	return c.JSON(code, body)
}
