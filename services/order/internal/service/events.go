package service

import (
	"context"
	"time"

	"github.com/Skotchmaster/restaurant_orders/services/order/internal/models"
)

const (
	EventOrderCreated        = "order_created"
	EventOrderStatusChanged  = "order_status_changed"
	EventOrderPaymentUpdated = "order_payment_updated"
	EventOrderDeleted        = "order_deleted"
	EventMenuItemChanged     = "menu_item_changed"
	EventMenuItemDeleted     = "menu_item_deleted"
)

// OrderEvent is the message published to the order events topic, keyed by
// restaurant so one tenant's events stay ordered within a partition.
type OrderEvent struct {
	Type           string    `json:"type"`
	RestaurantID   string    `json:"restaurant_id"`
	OrderID        string    `json:"order_id"`
	OrderNumber    string    `json:"order_number"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	PaymentStatus  string    `json:"payment_status,omitempty"`
	TotalAmount    string    `json:"total_amount"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// LiveEvent is pushed to websocket subscribers of a restaurant.
type LiveEvent struct {
	Type       string             `json:"type"`
	OrderID    string             `json:"order_id,omitempty"`
	MenuItemID string             `json:"menu_item_id,omitempty"`
	Order      *models.Order      `json:"order,omitempty"`
	Items      []models.OrderItem `json:"items,omitempty"`
	MenuItem   *models.MenuItem   `json:"menu_item,omitempty"`
}

func newOrderEvent(kind string, o *models.Order) OrderEvent {
	ev := OrderEvent{
		Type:         kind,
		RestaurantID: o.RestaurantID,
		OrderID:      o.ID.String(),
		OrderNumber:  o.OrderNumber,
		Status:       string(o.Status),
		TotalAmount:  o.TotalAmount.StringFixed(2),
		OccurredAt:   o.UpdatedAt,
	}
	if o.PaymentStatus != nil {
		ev.PaymentStatus = *o.PaymentStatus
	}
	return ev
}

// publish hands the event to the broker off the request path. Broker failures
// are logged by the dispatcher and never fail the write.
func (s *OrderService) publish(ev OrderEvent) {
	if s.Events == nil || s.Dispatcher == nil || s.EventsTopic == "" {
		return
	}
	s.Dispatcher.Submit("publish:"+ev.Type+":"+ev.OrderID, func(ctx context.Context) error {
		return s.Events.PublishEvent(ctx, s.EventsTopic, ev.RestaurantID, ev)
	})
}
