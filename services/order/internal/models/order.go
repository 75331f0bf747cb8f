package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Order struct {
	ID           uuid.UUID   `gorm:"type:uuid;primaryKey"                                                    json:"id"`
	RestaurantID string      `gorm:"type:varchar(64);not null;uniqueIndex:idx_orders_tenant_number,priority:1;index:idx_orders_tenant_created,priority:1" json:"restaurant_id"`
	OrderNumber  string      `gorm:"type:varchar(32);not null;uniqueIndex:idx_orders_tenant_number,priority:2" json:"order_number"`
	TableID      *string     `gorm:"type:varchar(64)"                                                        json:"table_id,omitempty"`
	CustomerName *string     `gorm:"type:varchar(255)"                                                       json:"customer_name,omitempty"`
	Status       OrderStatus `gorm:"type:varchar(16);not null;index"                                         json:"status"`

	Subtotal       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"subtotal"`
	TaxAmount      decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"tax_amount"`
	TipAmount      decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"tip_amount"`
	DiscountAmount decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"discount_amount"`
	DepositUsed    decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"deposit_used"`
	TotalAmount    decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total_amount"`

	PaymentStatus        *string `gorm:"type:varchar(32)"  json:"payment_status,omitempty"`
	PaymentMethod        *string `gorm:"type:varchar(32)"  json:"payment_method,omitempty"`
	PaymentTransactionID *string `gorm:"type:varchar(128)" json:"payment_transaction_id,omitempty"`
	Notes                *string `gorm:"type:text"         json:"notes,omitempty"`

	CreatedAt time.Time      `gorm:"not null;index:idx_orders_tenant_created,priority:2" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;index"                                      json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index"                                               json:"-"`

	Items []OrderItem `gorm:"foreignKey:OrderID" json:"-"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

type OrderItem struct {
	ID                  uuid.UUID                   `gorm:"type:uuid;primaryKey"                 json:"id"`
	OrderID             uuid.UUID                   `gorm:"type:uuid;not null;index"             json:"order_id"`
	RestaurantID        string                      `gorm:"type:varchar(64);not null;index"      json:"restaurant_id"`
	MenuItemID          uuid.UUID                   `gorm:"type:uuid;not null"                   json:"menu_item_id"`
	Name                string                      `gorm:"type:varchar(255);not null"           json:"name"`
	Price               decimal.Decimal             `gorm:"type:numeric(12,2);not null"          json:"price"`
	Position            int                         `gorm:"not null"                             json:"position"`
	Quantity            int                         `gorm:"not null;check:quantity > 0"          json:"quantity"`
	Subtotal            decimal.Decimal             `gorm:"type:numeric(12,2);not null"          json:"subtotal"`
	Customizations      datatypes.JSONSlice[string] `json:"customizations"`
	SpecialInstructions *string                     `gorm:"type:text"                            json:"special_instructions,omitempty"`

	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index"    json:"-"`
}

func (i *OrderItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// OrderCounter holds the last order number handed out for a restaurant on a
// calendar day (UTC, YYYY-MM-DD).
type OrderCounter struct {
	RestaurantID string `gorm:"type:varchar(64);primaryKey"`
	Day          string `gorm:"type:char(10);primaryKey"`
	LastValue    int    `gorm:"not null"`
}

// Version orders successive states of a row for last-write-wins replication.
// Microseconds match what PostgreSQL keeps for timestamps, so a value re-read
// from the database yields the same version as the one written.
func Version(updatedAt time.Time) int64 {
	return updatedAt.UnixMicro()
}

const dayLayout = "2006-01-02"

func CounterDay(t time.Time) string {
	return t.UTC().Format(dayLayout)
}

func FormatOrderNumber(day string, seq int) string {
	return fmt.Sprintf("ORD-%s-%04d", day, seq)
}
