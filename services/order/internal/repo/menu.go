package repo

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Skotchmaster/restaurant_orders/services/order/internal/models"
)

// GetMenuItem resolves a live menu item of the tenant.
func (r *GormRepo) GetMenuItem(db *gorm.DB, tenant string, id uuid.UUID) (*models.MenuItem, error) {
	var item models.MenuItem
	if err := db.Where("restaurant_id = ? AND id = ?", tenant, id).First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *GormRepo) ListMenuItems(db *gorm.DB, tenant string) ([]models.MenuItem, error) {
	items := make([]models.MenuItem, 0)
	if err := db.Where("restaurant_id = ?", tenant).Order("name ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *GormRepo) CreateMenuItem(tx *gorm.DB, item *models.MenuItem) error {
	return tx.Create(item).Error
}

func (r *GormRepo) SaveMenuItem(tx *gorm.DB, item *models.MenuItem) error {
	return tx.Save(item).Error
}

func (r *GormRepo) SoftDeleteMenuItem(tx *gorm.DB, tenant string, id uuid.UUID, at time.Time) error {
	res := tx.Model(&models.MenuItem{}).
		Where("restaurant_id = ? AND id = ?", tenant, id).
		Updates(map[string]any{"deleted_at": at, "updated_at": at})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
