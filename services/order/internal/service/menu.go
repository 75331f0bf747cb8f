package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgdb "github.com/Skotchmaster/restaurant_orders/pkg/db"
	"github.com/Skotchmaster/restaurant_orders/pkg/logging"
	"github.com/Skotchmaster/restaurant_orders/services/order/internal/models"
	"github.com/Skotchmaster/restaurant_orders/services/order/internal/replica"
	"github.com/Skotchmaster/restaurant_orders/services/order/internal/replication"
	"github.com/Skotchmaster/restaurant_orders/services/order/internal/repo"
	"github.com/Skotchmaster/restaurant_orders/services/order/internal/transport"
)

// MenuService manages the per-restaurant menu that orders are priced from.
type MenuService struct {
	Pool       *pkgdb.Pool
	Repo       *repo.GormRepo
	Replicator *replication.Client
	Dispatcher *replication.Dispatcher
	Live       Broadcaster

	Now func() time.Time
}

func (s *MenuService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return pkgdb.Now()
}

func (s *MenuService) Create(ctx context.Context, tenant string, req transport.CreateMenuItemRequest) (*models.MenuItem, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name required", ErrInvalidArgument)
	}
	if err := checkAmount("price", req.Price); err != nil {
		return nil, err
	}

	available := true
	if req.Available != nil {
		available = *req.Available
	}
	now := s.now()
	item := &models.MenuItem{
		RestaurantID: tenant,
		Name:         name,
		Description:  req.Description,
		Price:        req.Price,
		Category:     req.Category,
		Available:    available,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := s.Pool.WithTransaction(ctx, func(tx *gorm.DB) error {
		return s.Repo.CreateMenuItem(tx, item)
	})
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx).Info("menu_item_created", "restaurant_id", tenant, "menu_item_id", item.ID)
	s.syncAsync(*item)
	return item, nil
}

func (s *MenuService) Get(ctx context.Context, tenant string, id uuid.UUID) (*models.MenuItem, error) {
	var item *models.MenuItem
	err := s.Pool.Read(ctx, func(db *gorm.DB) error {
		var err error
		item, err = s.Repo.GetMenuItem(db, tenant, id)
		return notFound(err, "menu item", id)
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (s *MenuService) List(ctx context.Context, tenant string) ([]models.MenuItem, error) {
	var items []models.MenuItem
	err := s.Pool.Read(ctx, func(db *gorm.DB) error {
		var err error
		items, err = s.Repo.ListMenuItems(db, tenant)
		return err
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// Patch applies the non-nil fields. Prices already captured on order items
// are unaffected.
func (s *MenuService) Patch(ctx context.Context, tenant string, id uuid.UUID, req transport.PatchMenuItemRequest) (*models.MenuItem, error) {
	if req.Price != nil {
		if err := checkAmount("price", *req.Price); err != nil {
			return nil, err
		}
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		return nil, fmt.Errorf("%w: name must not be empty", ErrInvalidArgument)
	}

	item, err := pkgdb.InTx(ctx, s.Pool, func(tx *gorm.DB) (*models.MenuItem, error) {
		item, err := s.Repo.GetMenuItem(tx, tenant, id)
		if err != nil {
			return nil, notFound(err, "menu item", id)
		}
		if req.Name != nil {
			item.Name = strings.TrimSpace(*req.Name)
		}
		if req.Description != nil {
			item.Description = req.Description
		}
		if req.Price != nil {
			item.Price = *req.Price
		}
		if req.Category != nil {
			item.Category = req.Category
		}
		if req.Available != nil {
			item.Available = *req.Available
		}
		item.UpdatedAt = s.now()
		if err := s.Repo.SaveMenuItem(tx, item); err != nil {
			return nil, err
		}
		return item, nil
	})
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx).Info("menu_item_updated", "restaurant_id", tenant, "menu_item_id", id)
	s.syncAsync(*item)
	return item, nil
}

func (s *MenuService) Delete(ctx context.Context, tenant string, id uuid.UUID) error {
	at := s.now()
	err := s.Pool.WithTransaction(ctx, func(tx *gorm.DB) error {
		return notFound(s.Repo.SoftDeleteMenuItem(tx, tenant, id, at), "menu item", id)
	})
	if err != nil {
		return err
	}

	logging.FromContext(ctx).Info("menu_item_deleted", "restaurant_id", tenant, "menu_item_id", id)
	if s.Dispatcher != nil && s.Replicator != nil {
		version := models.Version(at)
		s.Dispatcher.Submit("tombstone_menu_item:"+id.String(), func(ctx context.Context) error {
			res := s.Replicator.DeleteEntity(ctx, replica.KindMenuItem, tenant, id.String(), version)
			if !res.OK {
				return res.Err
			}
			if s.Live != nil {
				s.Live.Broadcast(tenant, LiveEvent{Type: EventMenuItemDeleted, MenuItemID: id.String()})
			}
			return nil
		})
	}
	return nil
}

func (s *MenuService) syncAsync(item models.MenuItem) {
	if s.Dispatcher == nil || s.Replicator == nil {
		return
	}
	s.Dispatcher.Submit("sync_menu_item:"+item.ID.String(), func(ctx context.Context) error {
		res := s.Replicator.SyncMenuItem(ctx, &item)
		if !res.OK {
			return res.Err
		}
		if s.Live != nil {
			s.Live.Broadcast(item.RestaurantID, LiveEvent{Type: EventMenuItemChanged, MenuItemID: item.ID.String(), MenuItem: &item})
		}
		return nil
	})
}
