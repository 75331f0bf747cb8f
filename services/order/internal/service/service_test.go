package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	pkgdb "github.com/Skotchmaster/restaurant_orders/pkg/db"
	"github.com/Skotchmaster/restaurant_orders/services/order/internal/models"
	"github.com/Skotchmaster/restaurant_orders/services/order/internal/replica"
	"github.com/Skotchmaster/restaurant_orders/services/order/internal/replication"
	"github.com/Skotchmaster/restaurant_orders/services/order/internal/repo"
	"github.com/Skotchmaster/restaurant_orders/services/order/internal/testdb"
	"github.com/Skotchmaster/restaurant_orders/services/order/internal/transport"
)

type fixture struct {
	pool   *pkgdb.Pool
	store  *replica.MemoryStore
	client *replication.Client
	orders *OrderService
	menu   *MenuService
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newFixture wires the services over an in-memory database. The replica is
// bound only when bind is true.
func newFixture(t *testing.T, bind bool) *fixture {
	t.Helper()

	pool := testdb.Open(t)
	store := replica.NewMemoryStore()
	client := replication.NewClient(replication.Options{
		Attempts:       2,
		BaseDelay:      time.Millisecond,
		AttemptTimeout: time.Second,
	}, quietLogger())
	if bind {
		client.Bind(store)
	}
	disp := replication.NewDispatcher(16, quietLogger())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = disp.Close(ctx)
	})

	r := &repo.GormRepo{}
	return &fixture{
		pool:   pool,
		store:  store,
		client: client,
		orders: &OrderService{
			Pool:               pool,
			Repo:               r,
			Replicator:         client,
			Dispatcher:         disp,
			TaxRate:            d("0.05"),
			ReplicaReadTimeout: time.Second,
		},
		menu: &MenuService{
			Pool:       pool,
			Repo:       r,
			Replicator: client,
			Dispatcher: disp,
		},
	}
}

func (f *fixture) settle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.orders.Dispatcher.Wait(ctx))
}

func (f *fixture) addMenuItem(t *testing.T, tenant, name, price string, available bool) *models.MenuItem {
	t.Helper()
	item, err := f.menu.Create(context.Background(), tenant, transport.CreateMenuItemRequest{
		Name:      name,
		Price:     d(price),
		Available: &available,
	})
	require.NoError(t, err)
	return item
}

func (f *fixture) count(t *testing.T, table string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.pool.Query(context.Background(), &n, "SELECT count(*) FROM "+table))
	return n
}

func amount(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

func line(id uuid.UUID, qty int) transport.CreateOrderItem {
	return transport.CreateOrderItem{MenuItemID: id, Quantity: qty}
}
