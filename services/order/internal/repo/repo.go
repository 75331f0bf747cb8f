package repo

import (
	"gorm.io/gorm"

	"github.com/Skotchmaster/restaurant_orders/services/order/internal/models"
)

// GormRepo holds the order queries. It keeps no handle of its own: callers pass
// the transaction or read handle checked out from the pool, and every method
// takes the tenant as a required argument.
type GormRepo struct{}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.MenuItem{},
		&models.Order{},
		&models.OrderItem{},
		&models.OrderCounter{},
	)
}
