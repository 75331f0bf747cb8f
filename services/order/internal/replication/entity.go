package replication

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Skotchmaster/restaurant_orders/services/order/internal/models"
	"github.com/Skotchmaster/restaurant_orders/services/order/internal/replica"
)

// Entity is anything mirrored into the replica.
type Entity interface {
	Kind() replica.Kind
	ReplicaID() string
	Tenant() string
	Version() int64
	Payload() map[string]any
}

const timeLayout = time.RFC3339Nano

func stamp(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

type OrderEntity struct {
	Order     *models.Order
	ItemCount int
}

func (e OrderEntity) Kind() replica.Kind { return replica.KindOrder }
func (e OrderEntity) ReplicaID() string  { return e.Order.ID.String() }
func (e OrderEntity) Tenant() string     { return e.Order.RestaurantID }
func (e OrderEntity) Version() int64     { return models.Version(e.Order.UpdatedAt) }

func (e OrderEntity) Payload() map[string]any {
	o := e.Order
	return map[string]any{
		"order_number":           o.OrderNumber,
		"table_id":               o.TableID,
		"customer_name":          o.CustomerName,
		"status":                 string(o.Status),
		"subtotal":               money(o.Subtotal),
		"tax_amount":             money(o.TaxAmount),
		"tip_amount":             money(o.TipAmount),
		"discount_amount":        money(o.DiscountAmount),
		"deposit_used":           money(o.DepositUsed),
		"total_amount":           money(o.TotalAmount),
		"payment_status":         o.PaymentStatus,
		"payment_method":         o.PaymentMethod,
		"payment_transaction_id": o.PaymentTransactionID,
		"notes":                  o.Notes,
		"item_count":             e.ItemCount,
		"created_at":             stamp(o.CreatedAt),
		"updated_at":             stamp(o.UpdatedAt),
	}
}

type OrderItemEntity struct {
	Item *models.OrderItem
}

func (e OrderItemEntity) Kind() replica.Kind { return replica.KindOrderItem }
func (e OrderItemEntity) ReplicaID() string  { return e.Item.ID.String() }
func (e OrderItemEntity) Tenant() string     { return e.Item.RestaurantID }
func (e OrderItemEntity) Version() int64     { return models.Version(e.Item.UpdatedAt) }

func (e OrderItemEntity) Payload() map[string]any {
	it := e.Item
	customizations := []string(it.Customizations)
	if customizations == nil {
		customizations = []string{}
	}
	return map[string]any{
		"postgres_order_id":    it.OrderID.String(),
		"menu_item_id":         it.MenuItemID.String(),
		"name":                 it.Name,
		"price":                money(it.Price),
		"quantity":             it.Quantity,
		"subtotal":             money(it.Subtotal),
		"position":             it.Position,
		"customizations":       customizations,
		"special_instructions": it.SpecialInstructions,
		"created_at":           stamp(it.CreatedAt),
		"updated_at":           stamp(it.UpdatedAt),
	}
}

type MenuItemEntity struct {
	Item *models.MenuItem
}

func (e MenuItemEntity) Kind() replica.Kind { return replica.KindMenuItem }
func (e MenuItemEntity) ReplicaID() string  { return e.Item.ID.String() }
func (e MenuItemEntity) Tenant() string     { return e.Item.RestaurantID }
func (e MenuItemEntity) Version() int64     { return models.Version(e.Item.UpdatedAt) }

func (e MenuItemEntity) Payload() map[string]any {
	m := e.Item
	return map[string]any{
		"name":        m.Name,
		"description": m.Description,
		"price":       money(m.Price),
		"category":    m.Category,
		"available":   m.Available,
		"updated_at":  stamp(m.UpdatedAt),
	}
}

// TableEntity is a dining table as published by the floor-plan collaborator.
type TableEntity struct {
	ID           string
	RestaurantID string
	Number       string
	Zone         *string
	Capacity     *int
	Status       *string
	UpdatedAt    time.Time
}

func (e TableEntity) Kind() replica.Kind { return replica.KindTable }
func (e TableEntity) ReplicaID() string  { return e.ID }
func (e TableEntity) Tenant() string     { return e.RestaurantID }
func (e TableEntity) Version() int64     { return models.Version(e.UpdatedAt) }

func (e TableEntity) Payload() map[string]any {
	return map[string]any{
		"number":     e.Number,
		"zone":       e.Zone,
		"capacity":   e.Capacity,
		"status":     e.Status,
		"updated_at": stamp(e.UpdatedAt),
	}
}

// PaymentEntity is the payment state attached to an order; it shares the
// order's id.
type PaymentEntity struct {
	Order  *models.Order
	Amount *decimal.Decimal
}

func (e PaymentEntity) Kind() replica.Kind { return replica.KindPayment }
func (e PaymentEntity) ReplicaID() string  { return e.Order.ID.String() }
func (e PaymentEntity) Tenant() string     { return e.Order.RestaurantID }
func (e PaymentEntity) Version() int64     { return models.Version(e.Order.UpdatedAt) }

func (e PaymentEntity) Payload() map[string]any {
	var amount *string
	if e.Amount != nil {
		s := money(*e.Amount)
		amount = &s
	}
	return map[string]any{
		"postgres_order_id":      e.Order.ID.String(),
		"payment_status":         e.Order.PaymentStatus,
		"payment_method":         e.Order.PaymentMethod,
		"payment_transaction_id": e.Order.PaymentTransactionID,
		"amount":                 amount,
		"updated_at":             stamp(e.Order.UpdatedAt),
	}
}
