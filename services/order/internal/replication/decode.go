package replication

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/Skotchmaster/restaurant_orders/services/order/internal/models"
	"github.com/Skotchmaster/restaurant_orders/services/order/internal/replica"
)

type orderDoc struct {
	OrderNumber          string          `json:"order_number"`
	TableID              *string         `json:"table_id"`
	CustomerName         *string         `json:"customer_name"`
	Status               string          `json:"status"`
	Subtotal             decimal.Decimal `json:"subtotal"`
	TaxAmount            decimal.Decimal `json:"tax_amount"`
	TipAmount            decimal.Decimal `json:"tip_amount"`
	DiscountAmount       decimal.Decimal `json:"discount_amount"`
	DepositUsed          decimal.Decimal `json:"deposit_used"`
	TotalAmount          decimal.Decimal `json:"total_amount"`
	PaymentStatus        *string         `json:"payment_status"`
	PaymentMethod        *string         `json:"payment_method"`
	PaymentTransactionID *string         `json:"payment_transaction_id"`
	Notes                *string         `json:"notes"`
	ItemCount            int             `json:"item_count"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

type orderItemDoc struct {
	OrderID             string          `json:"postgres_order_id"`
	MenuItemID          string          `json:"menu_item_id"`
	Name                string          `json:"name"`
	Price               decimal.Decimal `json:"price"`
	Quantity            int             `json:"quantity"`
	Subtotal            decimal.Decimal `json:"subtotal"`
	Position            int             `json:"position"`
	Customizations      []string        `json:"customizations"`
	SpecialInstructions *string         `json:"special_instructions"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

func decodeFields(rec replica.Record, dst any) error {
	raw, err := json.Marshal(rec.Fields)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode %s %s: %w", rec.Kind, rec.ID, err)
	}
	return nil
}

// OrderFromRecord rebuilds an order from its replica record and returns the
// item count the record was written with.
func OrderFromRecord(rec replica.Record) (*models.Order, int, error) {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return nil, 0, fmt.Errorf("decode order id %q: %w", rec.ID, err)
	}
	var doc orderDoc
	if err := decodeFields(rec, &doc); err != nil {
		return nil, 0, err
	}
	return &models.Order{
		ID:                   id,
		RestaurantID:         rec.Tenant,
		OrderNumber:          doc.OrderNumber,
		TableID:              doc.TableID,
		CustomerName:         doc.CustomerName,
		Status:               models.OrderStatus(doc.Status),
		Subtotal:             doc.Subtotal,
		TaxAmount:            doc.TaxAmount,
		TipAmount:            doc.TipAmount,
		DiscountAmount:       doc.DiscountAmount,
		DepositUsed:          doc.DepositUsed,
		TotalAmount:          doc.TotalAmount,
		PaymentStatus:        doc.PaymentStatus,
		PaymentMethod:        doc.PaymentMethod,
		PaymentTransactionID: doc.PaymentTransactionID,
		Notes:                doc.Notes,
		CreatedAt:            doc.CreatedAt,
		UpdatedAt:            doc.UpdatedAt,
	}, doc.ItemCount, nil
}

func OrderItemFromRecord(rec replica.Record) (*models.OrderItem, error) {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return nil, fmt.Errorf("decode order item id %q: %w", rec.ID, err)
	}
	var doc orderItemDoc
	if err := decodeFields(rec, &doc); err != nil {
		return nil, err
	}
	orderID, err := uuid.Parse(doc.OrderID)
	if err != nil {
		return nil, fmt.Errorf("decode order item %s order id: %w", rec.ID, err)
	}
	menuItemID, err := uuid.Parse(doc.MenuItemID)
	if err != nil {
		return nil, fmt.Errorf("decode order item %s menu item id: %w", rec.ID, err)
	}
	customizations := doc.Customizations
	if customizations == nil {
		customizations = []string{}
	}
	return &models.OrderItem{
		ID:                  id,
		OrderID:             orderID,
		RestaurantID:        rec.Tenant,
		MenuItemID:          menuItemID,
		Name:                doc.Name,
		Price:               doc.Price,
		Quantity:            doc.Quantity,
		Subtotal:            doc.Subtotal,
		Position:            doc.Position,
		Customizations:      datatypes.NewJSONSlice(customizations),
		SpecialInstructions: doc.SpecialInstructions,
		CreatedAt:           doc.CreatedAt,
		UpdatedAt:           doc.UpdatedAt,
	}, nil
}
