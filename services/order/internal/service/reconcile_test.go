package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/restaurant_orders/services/order/internal/replica"
	"github.com/Skotchmaster/restaurant_orders/services/order/internal/replication"
	"github.com/Skotchmaster/restaurant_orders/services/order/internal/transport"
)

func TestReconcile_NotReadyWithoutReplica(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.orders.Reconcile(context.Background(), time.Time{})
	require.ErrorIs(t, err, replication.ErrNotInitialized)
}

func TestReconcile_ReplaysMissedWritesAndDeletes(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	burger := f.addMenuItem(t, "rA", "Burger", "10", true)
	fries := f.addMenuItem(t, "rB", "Fries", "5", true)

	kept, err := f.orders.CreateOrder(ctx, "rA", transport.CreateOrderRequest{
		Items: []transport.CreateOrderItem{line(burger.ID, 1), line(burger.ID, 2)},
	})
	require.NoError(t, err)
	gone, err := f.orders.CreateOrder(ctx, "rB", transport.CreateOrderRequest{
		Items: []transport.CreateOrderItem{line(fries.ID, 1)},
	})
	require.NoError(t, err)
	f.settle(t)

	// the replica saw the order before it was deleted
	f.client.Bind(f.store)
	res := f.client.SyncOrder(ctx, &gone.Order, gone.Items)
	require.True(t, res.OK)
	f.client.Unbind()

	require.NoError(t, f.orders.DeleteOrder(ctx, "rB", gone.Order.ID))
	f.settle(t)

	f.client.Bind(f.store)
	stats, err := f.orders.Reconcile(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, ReconcileStats{Synced: 1, Tombstoned: 1}, stats)

	assert.Equal(t, 1, f.store.Len(replica.KindOrder))
	assert.Equal(t, 2, f.store.Len(replica.KindOrderItem))
	_, err = f.store.Get(ctx, replica.KindOrder, "rA", kept.Order.ID.String())
	require.NoError(t, err)
	_, err = f.store.Get(ctx, replica.KindOrder, "rB", gone.Order.ID.String())
	require.ErrorIs(t, err, replica.ErrNotFound)

	again, err := f.orders.Reconcile(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, stats, again)
	assert.Equal(t, 1, f.store.Len(replica.KindOrder))
}

func TestReconcile_SinceSkipsOlderOrders(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	burger := f.addMenuItem(t, "rA", "Burger", "10", true)

	_, err := f.orders.CreateOrder(ctx, "rA", transport.CreateOrderRequest{
		Items: []transport.CreateOrderItem{line(burger.ID, 1)},
	})
	require.NoError(t, err)
	f.settle(t)

	stats, err := f.orders.Reconcile(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, stats.Synced)
}
