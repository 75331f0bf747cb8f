package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type MenuItem struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey"            json:"id"`
	RestaurantID string          `gorm:"type:varchar(64);not null;index" json:"restaurant_id"`
	Name         string          `gorm:"type:varchar(255);not null"      json:"name"`
	Description  *string         `gorm:"type:text"                       json:"description,omitempty"`
	Price        decimal.Decimal `gorm:"type:numeric(12,2);not null"     json:"price"`
	Category     *string         `gorm:"type:varchar(64)"                json:"category,omitempty"`
	Available    bool            `gorm:"not null"                        json:"available"`

	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index"    json:"-"`
}

func (m *MenuItem) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
