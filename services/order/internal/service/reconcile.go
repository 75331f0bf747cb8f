package service

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/Skotchmaster/restaurant_orders/pkg/logging"
	"github.com/Skotchmaster/restaurant_orders/services/order/internal/models"
	"github.com/Skotchmaster/restaurant_orders/services/order/internal/replication"
)

const reconcileBatch = 500

type ReconcileStats struct {
	Synced     int `json:"synced"`
	Tombstoned int `json:"tombstoned"`
	Failed     int `json:"failed"`
}

type changedOrder struct {
	order models.Order
	items []models.OrderItem
}

// Reconcile replays every order changed at or after since into the replica,
// deleted ones as tombstones. Writes are idempotent and version guarded, so
// overlapping runs are harmless.
func (s *OrderService) Reconcile(ctx context.Context, since time.Time) (ReconcileStats, error) {
	var stats ReconcileStats
	if s.Replicator == nil || s.Replicator.State() != replication.Ready {
		return stats, replication.ErrNotInitialized
	}
	l := logging.FromContext(ctx)

	seen := make(map[string]struct{})
	cursor := since
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		batch, err := s.loadChanged(ctx, cursor)
		if err != nil {
			return stats, err
		}

		for _, c := range batch {
			key := c.order.ID.String() + "@" + c.order.UpdatedAt.String()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			var res replication.Result
			if c.order.DeletedAt.Valid {
				ids := make([]string, 0, len(c.items))
				for _, it := range c.items {
					ids = append(ids, it.ID.String())
				}
				res = s.Replicator.DeleteOrder(ctx, c.order.RestaurantID, c.order.ID.String(), ids, models.Version(c.order.UpdatedAt))
				if res.OK {
					stats.Tombstoned++
					s.pending.remove(c.order.RestaurantID, c.order.ID)
				}
			} else {
				res = s.Replicator.SyncOrder(ctx, &c.order, c.items)
				if res.OK {
					stats.Synced++
				}
			}
			if !res.OK {
				stats.Failed++
				l.Warn("reconcile_order_failed", "order_id", c.order.ID, "error", res.Err)
			}
		}

		if len(batch) < reconcileBatch {
			break
		}
		next := batch[len(batch)-1].order.UpdatedAt
		if !next.After(cursor) {
			// a full batch sharing one timestamp; step past it
			next = cursor.Add(time.Microsecond)
		}
		cursor = next
	}

	l.Info("reconcile_done", "since", since, "synced", stats.Synced, "tombstoned", stats.Tombstoned, "failed", stats.Failed)
	return stats, nil
}

func (s *OrderService) loadChanged(ctx context.Context, since time.Time) ([]changedOrder, error) {
	var out []changedOrder
	err := s.Pool.Read(ctx, func(db *gorm.DB) error {
		orders, err := s.Repo.ChangedSince(db, since, reconcileBatch)
		if err != nil {
			return err
		}
		out = make([]changedOrder, 0, len(orders))
		for _, o := range orders {
			var items []models.OrderItem
			if o.DeletedAt.Valid {
				items, err = s.Repo.ListItemsUnscoped(db, o.RestaurantID, o.ID)
			} else {
				items, err = s.Repo.ListItems(db, o.RestaurantID, o.ID)
			}
			if err != nil {
				return err
			}
			out = append(out, changedOrder{order: o, items: items})
		}
		return nil
	})
	return out, err
}
