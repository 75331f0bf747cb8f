package repo

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Skotchmaster/restaurant_orders/services/order/internal/models"
)

// NextOrderSeq bumps the per-restaurant, per-day counter and returns the new
// value. The upsert holds the counter row lock until the surrounding
// transaction ends, so concurrent callers for the same day get distinct values.
func (r *GormRepo) NextOrderSeq(tx *gorm.DB, tenant, day string) (int, error) {
	counter := models.OrderCounter{RestaurantID: tenant, Day: day, LastValue: 1}
	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "restaurant_id"}, {Name: "day"}},
		DoUpdates: clause.Assignments(map[string]any{
			"last_value": gorm.Expr("order_counters.last_value + 1"),
		}),
	}).Create(&counter).Error
	if err != nil {
		return 0, err
	}

	if err := tx.Where("restaurant_id = ? AND day = ?", tenant, day).First(&counter).Error; err != nil {
		return 0, err
	}
	return counter.LastValue, nil
}

func (r *GormRepo) InsertOrder(tx *gorm.DB, order *models.Order, items []models.OrderItem) error {
	if err := tx.Omit(clause.Associations).Create(order).Error; err != nil {
		return err
	}
	for i := range items {
		items[i].OrderID = order.ID
		items[i].RestaurantID = order.RestaurantID
		items[i].Position = i
	}
	if len(items) == 0 {
		return nil
	}
	return tx.Create(&items).Error
}

func (r *GormRepo) GetOrder(db *gorm.DB, tenant string, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := db.Where("restaurant_id = ? AND id = ?", tenant, id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderForUpdate loads the order and locks its row for the rest of tx.
func (r *GormRepo) GetOrderForUpdate(tx *gorm.DB, tenant string, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("restaurant_id = ? AND id = ?", tenant, id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *GormRepo) ListItems(db *gorm.DB, tenant string, orderID uuid.UUID) ([]models.OrderItem, error) {
	items := make([]models.OrderItem, 0)
	err := db.Where("restaurant_id = ? AND order_id = ?", tenant, orderID).
		Order("position ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *GormRepo) ListOrders(db *gorm.DB, tenant string, status models.OrderStatus, limit int) ([]models.Order, error) {
	q := db.Model(&models.Order{}).Where("restaurant_id = ?", tenant)
	if status != "" {
		q = q.Where("status = ?", status)
	}

	orders := make([]models.Order, 0, limit)
	if err := q.Order("created_at DESC").Order("order_number DESC").Limit(limit).Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// UpdateOrder writes the given columns on a live order and bumps updated_at.
// It returns gorm.ErrRecordNotFound when no row matched.
func (r *GormRepo) UpdateOrder(tx *gorm.DB, tenant string, id uuid.UUID, cols map[string]any, at time.Time) error {
	values := make(map[string]any, len(cols)+1)
	for k, v := range cols {
		values[k] = v
	}
	values["updated_at"] = at

	res := tx.Model(&models.Order{}).
		Where("restaurant_id = ? AND id = ?", tenant, id).
		Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SoftDeleteOrder stamps the order and all of its items with the same
// deleted_at. It returns gorm.ErrRecordNotFound when the order is absent or
// already deleted.
func (r *GormRepo) SoftDeleteOrder(tx *gorm.DB, tenant string, id uuid.UUID, at time.Time) error {
	stamp := map[string]any{"deleted_at": at, "updated_at": at}

	res := tx.Model(&models.Order{}).
		Where("restaurant_id = ? AND id = ?", tenant, id).
		Updates(stamp)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return tx.Model(&models.OrderItem{}).
		Where("restaurant_id = ? AND order_id = ?", tenant, id).
		Updates(stamp).Error
}

// ChangedSince returns orders of any tenant, deleted ones included, whose
// updated_at is at or after since, oldest first.
func (r *GormRepo) ChangedSince(db *gorm.DB, since time.Time, limit int) ([]models.Order, error) {
	orders := make([]models.Order, 0)
	err := db.Unscoped().
		Where("updated_at >= ?", since).
		Order("updated_at ASC").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// ListItemsUnscoped is ListItems including soft-deleted rows.
func (r *GormRepo) ListItemsUnscoped(db *gorm.DB, tenant string, orderID uuid.UUID) ([]models.OrderItem, error) {
	return r.ListItems(db.Unscoped(), tenant, orderID)
}
