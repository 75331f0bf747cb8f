package httpserver

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/restaurant_orders/pkg/logging"
	"github.com/Skotchmaster/restaurant_orders/services/order/internal/models"
	"github.com/Skotchmaster/restaurant_orders/services/order/internal/replication"
	"github.com/Skotchmaster/restaurant_orders/services/order/internal/service"
	"github.com/Skotchmaster/restaurant_orders/services/order/internal/transport"
)

const defaultReconcileWindow = 24 * time.Hour

type OrderHTTP struct {
	Svc *service.OrderService
}

func (h *OrderHTTP) CreateOrder(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.create_order")

	restaurantID, err := tenant(c)
	if err != nil {
		return forbidden(l, "create_order_error", err)
	}

	var req transport.CreateOrderRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(l, "create_order_error", "invalid body", err)
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(l, "create_order_error", "invalid body", err)
	}

	view, err := h.Svc.CreateOrder(ctx, restaurantID, req)
	if err != nil {
		return fail(l, "create_order_error", err)
	}

	l.Info("create_order_success", "order_id", view.Order.ID, "order_number", view.Order.OrderNumber)
	return c.JSON(http.StatusCreated, view)
}

func (h *OrderHTTP) GetOrder(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.get_order")

	restaurantID, err := tenant(c)
	if err != nil {
		return forbidden(l, "get_order_error", err)
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(l, "get_order_error", "id not a uuid", err)
	}

	view, err := h.Svc.GetOrder(ctx, restaurantID, id)
	if err != nil {
		return fail(l, "get_order_error", err)
	}

	c.Response().Header().Set("X-Data-Source", view.Source)
	return c.JSON(http.StatusOK, view)
}

func (h *OrderHTTP) ListOrders(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.list_orders")

	restaurantID, err := tenant(c)
	if err != nil {
		return forbidden(l, "list_orders_error", err)
	}

	var q transport.ListOrdersQuery
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, &q); err != nil {
		return badRequest(l, "list_orders_error", "invalid query", err)
	}
	if err := c.Validate(&q); err != nil {
		return badRequest(l, "list_orders_error", "invalid query", err)
	}

	orders, err := h.Svc.ListOrders(ctx, restaurantID, service.ListOptions{
		Status: models.OrderStatus(q.Status),
		Limit:  q.Limit,
	})
	if err != nil {
		return fail(l, "list_orders_error", err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"data": orders,
		"meta": map[string]any{"count": len(orders)},
	})
}

func (h *OrderHTTP) UpdateStatus(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.update_status")

	restaurantID, err := tenant(c)
	if err != nil {
		return forbidden(l, "update_status_error", err)
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(l, "update_status_error", "id not a uuid", err)
	}

	var req transport.UpdateStatusRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(l, "update_status_error", "invalid body", err)
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(l, "update_status_error", "invalid body", err)
	}

	order, err := h.Svc.UpdateOrderStatus(ctx, restaurantID, id, models.OrderStatus(req.Status))
	if err != nil {
		return fail(l, "update_status_error", err)
	}

	l.Info("update_status_success", "order_id", id, "status", order.Status)
	return c.JSON(http.StatusOK, order)
}

func (h *OrderHTTP) UpdatePayment(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.update_payment")

	restaurantID, err := tenant(c)
	if err != nil {
		return forbidden(l, "update_payment_error", err)
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(l, "update_payment_error", "id not a uuid", err)
	}

	var req transport.UpdatePaymentRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(l, "update_payment_error", "invalid body", err)
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(l, "update_payment_error", "invalid body", err)
	}

	order, err := h.Svc.UpdatePayment(ctx, restaurantID, id, req)
	if err != nil {
		return fail(l, "update_payment_error", err)
	}

	l.Info("update_payment_success", "order_id", id, "payment_status", req.PaymentStatus)
	return c.JSON(http.StatusOK, order)
}

func (h *OrderHTTP) DeleteOrder(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.delete_order")

	restaurantID, err := tenant(c)
	if err != nil {
		return forbidden(l, "delete_order_error", err)
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(l, "delete_order_error", "id not a uuid", err)
	}

	if err := h.Svc.DeleteOrder(ctx, restaurantID, id); err != nil {
		return fail(l, "delete_order_error", err)
	}

	l.Info("delete_order_success", "order_id", id)
	return c.NoContent(http.StatusNoContent)
}

// Reconcile replays recent orders into the replica. since defaults to one
// day back.
func (h *OrderHTTP) Reconcile(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.reconcile")

	since := time.Now().Add(-defaultReconcileWindow)
	if raw := c.QueryParam("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return badRequest(l, "reconcile_error", "since must be RFC3339", err)
		}
		since = t
	}

	stats, err := h.Svc.Reconcile(ctx, since)
	if err != nil {
		if errors.Is(err, replication.ErrNotInitialized) {
			l.Warn("reconcile_error", "status", 503, "reason", "replica not ready", "error", err)
			return echo.NewHTTPError(http.StatusServiceUnavailable, "replica not ready")
		}
		return fail(l, "reconcile_error", err)
	}
	return c.JSON(http.StatusOK, stats)
}
