package httpserver

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/restaurant_orders/pkg/logging"
	"github.com/Skotchmaster/restaurant_orders/services/order/internal/service"
	"github.com/Skotchmaster/restaurant_orders/services/order/internal/transport"
)

type MenuHTTP struct {
	Svc *service.MenuService
}

func (h *MenuHTTP) ListItems(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "menu.list_items")

	restaurantID, err := tenant(c)
	if err != nil {
		return forbidden(l, "list_menu_items_error", err)
	}

	items, err := h.Svc.List(ctx, restaurantID)
	if err != nil {
		return fail(l, "list_menu_items_error", err)
	}
	return c.JSON(http.StatusOK, map[string]any{"data": items})
}

func (h *MenuHTTP) GetItem(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "menu.get_item")

	restaurantID, err := tenant(c)
	if err != nil {
		return forbidden(l, "get_menu_item_error", err)
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(l, "get_menu_item_error", "id not a uuid", err)
	}

	item, err := h.Svc.Get(ctx, restaurantID, id)
	if err != nil {
		return fail(l, "get_menu_item_error", err)
	}
	return c.JSON(http.StatusOK, item)
}

func (h *MenuHTTP) CreateItem(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "menu.create_item")

	restaurantID, err := tenant(c)
	if err != nil {
		return forbidden(l, "create_menu_item_error", err)
	}

	var req transport.CreateMenuItemRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(l, "create_menu_item_error", "invalid body", err)
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(l, "create_menu_item_error", "invalid body", err)
	}

	item, err := h.Svc.Create(ctx, restaurantID, req)
	if err != nil {
		return fail(l, "create_menu_item_error", err)
	}

	l.Info("create_menu_item_success", "menu_item_id", item.ID)
	return c.JSON(http.StatusCreated, item)
}

func (h *MenuHTTP) PatchItem(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "menu.patch_item")

	restaurantID, err := tenant(c)
	if err != nil {
		return forbidden(l, "patch_menu_item_error", err)
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(l, "patch_menu_item_error", "id not a uuid", err)
	}

	var req transport.PatchMenuItemRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(l, "patch_menu_item_error", "invalid body", err)
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(l, "patch_menu_item_error", "invalid body", err)
	}

	item, err := h.Svc.Patch(ctx, restaurantID, id, req)
	if err != nil {
		return fail(l, "patch_menu_item_error", err)
	}

	l.Info("patch_menu_item_success", "menu_item_id", id)
	return c.JSON(http.StatusOK, item)
}

func (h *MenuHTTP) DeleteItem(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "menu.delete_item")

	restaurantID, err := tenant(c)
	if err != nil {
		return forbidden(l, "delete_menu_item_error", err)
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(l, "delete_menu_item_error", "id not a uuid", err)
	}

	if err := h.Svc.Delete(ctx, restaurantID, id); err != nil {
		return fail(l, "delete_menu_item_error", err)
	}

	l.Info("delete_menu_item_success", "menu_item_id", id)
	return c.NoContent(http.StatusNoContent)
}
