package transport

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CreateOrderItem struct {
	MenuItemID          uuid.UUID `json:"menu_item_id"         validate:"required"`
	Quantity            int       `json:"quantity"             validate:"required,gt=0,lte=1000"`
	Customizations      []string  `json:"customizations"       validate:"omitempty,dive,max=128"`
	SpecialInstructions *string   `json:"special_instructions" validate:"omitempty,max=1000"`
}

// CreateOrderRequest carries the caller-supplied part of an order. Totals and
// the order number are always computed server side.
type CreateOrderRequest struct {
	TableID        *string           `json:"table_id"        validate:"omitempty,max=64"`
	CustomerName   *string           `json:"customer_name"   validate:"omitempty,max=255"`
	Items          []CreateOrderItem `json:"items"           validate:"required,min=1,dive"`
	TipAmount      *decimal.Decimal  `json:"tip_amount"`
	DiscountAmount *decimal.Decimal  `json:"discount_amount"`
	DepositUsed    *decimal.Decimal  `json:"deposit_used"`
	PaymentMethod  *string           `json:"payment_method"  validate:"omitempty,max=32"`
	Notes          *string           `json:"notes"           validate:"omitempty,max=2000"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending preparing ready completed cancelled"`
}

type UpdatePaymentRequest struct {
	PaymentStatus        string           `json:"payment_status"         validate:"required,oneof=pending paid failed refunded"`
	PaymentMethod        *string          `json:"payment_method"         validate:"omitempty,max=32"`
	PaymentTransactionID *string          `json:"payment_transaction_id" validate:"omitempty,max=128"`
	Amount               *decimal.Decimal `json:"amount"`
}

type ListOrdersQuery struct {
	Status string `query:"status" validate:"omitempty,oneof=pending preparing ready completed cancelled"`
	Limit  int    `query:"limit"  validate:"omitempty,gt=0"`
}

type CreateMenuItemRequest struct {
	Name        string          `json:"name"        validate:"required,max=255"`
	Description *string         `json:"description" validate:"omitempty,max=2000"`
	Price       decimal.Decimal `json:"price"`
	Category    *string         `json:"category"    validate:"omitempty,max=64"`
	Available   *bool           `json:"available"`
}

type PatchMenuItemRequest struct {
	Name        *string          `json:"name"        validate:"omitempty,min=1,max=255"`
	Description *string          `json:"description" validate:"omitempty,max=2000"`
	Price       *decimal.Decimal `json:"price"`
	Category    *string          `json:"category"    validate:"omitempty,max=64"`
	Available   *bool            `json:"available"`
}
