package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/restaurant_orders/services/order/internal/models"
	"github.com/Skotchmaster/restaurant_orders/services/order/internal/replica"
	"github.com/Skotchmaster/restaurant_orders/services/order/internal/transport"
)

func TestCreateOrder_ComputesTotalsAndNumber(t *testing.T) {
	f := newFixture(t, true)
	fixed := time.Date(2026, 3, 14, 18, 30, 0, 0, time.UTC)
	f.orders.Now = func() time.Time { return fixed }
	ctx := context.Background()

	burger := f.addMenuItem(t, "rA", "Burger", "100", true)
	fries := f.addMenuItem(t, "rA", "Fries", "50", true)

	view, err := f.orders.CreateOrder(ctx, "rA", transport.CreateOrderRequest{
		Items:          []transport.CreateOrderItem{line(burger.ID, 2), line(fries.ID, 1)},
		TipAmount:      amount("20"),
		DiscountAmount: amount("10"),
	})
	require.NoError(t, err)

	o := view.Order
	assert.Equal(t, "ORD-2026-03-14-0001", o.OrderNumber)
	assert.Equal(t, models.StatusPending, o.Status)
	assert.True(t, o.Subtotal.Equal(d("250")), "subtotal %s", o.Subtotal)
	assert.True(t, o.TaxAmount.Equal(d("12.5")), "tax %s", o.TaxAmount)
	assert.True(t, o.TotalAmount.Equal(d("272.5")), "total %s", o.TotalAmount)
	assert.True(t, o.DepositUsed.IsZero())

	require.Len(t, view.Items, 2)
	assert.Equal(t, "Burger", view.Items[0].Name)
	assert.True(t, view.Items[0].Subtotal.Equal(d("200")))
	assert.Equal(t, 0, view.Items[0].Position)
	assert.Equal(t, 1, view.Items[1].Position)
	assert.Equal(t, []string{}, []string(view.Items[1].Customizations))

	second, err := f.orders.CreateOrder(ctx, "rA", transport.CreateOrderRequest{
		Items: []transport.CreateOrderItem{line(fries.ID, 1)},
	})
	require.NoError(t, err)
	assert.Equal(t, "ORD-2026-03-14-0002", second.Order.OrderNumber)
}

func TestCreateOrder_MissingMenuItemRollsBack(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	burger := f.addMenuItem(t, "rA", "Burger", "10", true)

	_, err := f.orders.CreateOrder(ctx, "rA", transport.CreateOrderRequest{
		Items: []transport.CreateOrderItem{line(burger.ID, 1), line(uuid.New(), 1)},
	})
	require.ErrorIs(t, err, ErrNotFound)

	assert.EqualValues(t, 0, f.count(t, "orders"))
	assert.EqualValues(t, 0, f.count(t, "order_items"))
	assert.EqualValues(t, 0, f.count(t, "order_counters"))

	view, err := f.orders.CreateOrder(ctx, "rA", transport.CreateOrderRequest{
		Items: []transport.CreateOrderItem{line(burger.ID, 1)},
	})
	require.NoError(t, err)
	assert.Equal(t, models.FormatOrderNumber(models.CounterDay(view.Order.CreatedAt), 1), view.Order.OrderNumber)
}

func TestCreateOrder_Rejections(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	burger := f.addMenuItem(t, "rA", "Burger", "10", true)
	soldOut := f.addMenuItem(t, "rA", "Soup", "5", false)
	other := f.addMenuItem(t, "rB", "Pizza", "12", true)
	pricey := f.addMenuItem(t, "rA", "Caviar", "99999999.99", true)

	tests := []struct {
		name string
		req  transport.CreateOrderRequest
		want error
	}{
		{"no items", transport.CreateOrderRequest{}, ErrInvalidArgument},
		{"zero quantity", transport.CreateOrderRequest{Items: []transport.CreateOrderItem{line(burger.ID, 0)}}, ErrInvalidArgument},
		{"quantity above limit", transport.CreateOrderRequest{Items: []transport.CreateOrderItem{line(burger.ID, MaxQuantity+1)}}, ErrInvalidArgument},
		{"subtotal overflows column", transport.CreateOrderRequest{Items: []transport.CreateOrderItem{line(pricey.ID, MaxQuantity)}}, ErrInvalidArgument},
		{"tip overflows column", transport.CreateOrderRequest{
			Items:     []transport.CreateOrderItem{line(burger.ID, 1)},
			TipAmount: amount("10000000000"),
		}, ErrInvalidArgument},
		{"unavailable item", transport.CreateOrderRequest{Items: []transport.CreateOrderItem{line(soldOut.ID, 1)}}, ErrInvalidArgument},
		{"other tenant's item", transport.CreateOrderRequest{Items: []transport.CreateOrderItem{line(other.ID, 1)}}, ErrNotFound},
		{"deposit above subtotal", transport.CreateOrderRequest{
			Items:       []transport.CreateOrderItem{line(burger.ID, 1)},
			DepositUsed: amount("10.01"),
		}, ErrInvalidArgument},
		{"negative tip", transport.CreateOrderRequest{
			Items:     []transport.CreateOrderItem{line(burger.ID, 1)},
			TipAmount: amount("-1"),
		}, ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.orders.CreateOrder(ctx, "rA", tt.req)
			require.ErrorIs(t, err, tt.want)
		})
	}
	assert.EqualValues(t, 0, f.count(t, "orders"))
}

// The in-memory pool has one connection, so creates are serialized here and
// the counter row is never contended. repo's postgres-tagged
// TestNextOrderSeq_ContendedCounterRow covers the contended upsert.
func TestCreateOrder_ConcurrentNumbersAreUnique(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	burger := f.addMenuItem(t, "rA", "Burger", "10", true)

	const n = 12
	var (
		mu      sync.Mutex
		numbers []string
		wg      sync.WaitGroup
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			view, err := f.orders.CreateOrder(ctx, "rA", transport.CreateOrderRequest{
				Items: []transport.CreateOrderItem{line(burger.ID, 1)},
			})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			numbers = append(numbers, view.Order.OrderNumber)
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, numbers, n)
	seen := make(map[string]bool, n)
	for _, num := range numbers {
		assert.False(t, seen[num], "duplicate order number %s", num)
		seen[num] = true
	}
	sort.Strings(numbers)
	assert.Equal(t, models.FormatOrderNumber(models.CounterDay(time.Now()), n), numbers[n-1])
}

func TestGetOrder_TenantIsolation(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	burger := f.addMenuItem(t, "rB", "Burger", "10", true)

	view, err := f.orders.CreateOrder(ctx, "rB", transport.CreateOrderRequest{
		Items: []transport.CreateOrderItem{line(burger.ID, 1)},
	})
	require.NoError(t, err)
	f.settle(t)

	_, err = f.orders.GetOrder(ctx, "rA", view.Order.ID)
	require.ErrorIs(t, err, ErrNotFound)

	got, err := f.orders.GetOrder(ctx, "rB", view.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, view.Order.ID, got.Order.ID)
}

func TestGetOrder_ReadRepairAfterOutage(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	burger := f.addMenuItem(t, "rA", "Burger", "100", true)
	fries := f.addMenuItem(t, "rA", "Fries", "50", true)

	created, err := f.orders.CreateOrder(ctx, "rA", transport.CreateOrderRequest{
		Items:     []transport.CreateOrderItem{line(burger.ID, 2), line(fries.ID, 1)},
		TipAmount: amount("20"),
	})
	require.NoError(t, err)
	f.settle(t)
	assert.Zero(t, f.store.Len(replica.KindOrder))

	// replica comes back empty
	f.client.Bind(f.store)

	first, err := f.orders.GetOrder(ctx, "rA", created.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, SourcePrimary, first.Source)
	f.settle(t)

	assert.Equal(t, 1, f.store.Len(replica.KindOrder))
	assert.Equal(t, 2, f.store.Len(replica.KindOrderItem))

	second, err := f.orders.GetOrder(ctx, "rA", created.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, SourceReplica, second.Source)
	assert.Equal(t, created.Order.OrderNumber, second.Order.OrderNumber)
	assert.True(t, created.Order.TotalAmount.Equal(second.Order.TotalAmount))
	require.Len(t, second.Items, 2)
	assert.Equal(t, "Burger", second.Items[0].Name)
	assert.Equal(t, "Fries", second.Items[1].Name)
	assert.Equal(t, 2, second.Items[0].Quantity)
}

func TestGetOrder_IncompleteReplicaFallsBack(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	burger := f.addMenuItem(t, "rA", "Burger", "10", true)
	fries := f.addMenuItem(t, "rA", "Fries", "5", true)

	created, err := f.orders.CreateOrder(ctx, "rA", transport.CreateOrderRequest{
		Items: []transport.CreateOrderItem{line(burger.ID, 1), line(fries.ID, 1)},
	})
	require.NoError(t, err)
	f.settle(t)

	item := created.Items[1]
	require.NoError(t, f.store.Delete(ctx, replica.KindOrderItem, "rA", item.ID.String(), models.Version(item.UpdatedAt)+1))

	got, err := f.orders.GetOrder(ctx, "rA", created.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, SourcePrimary, got.Source)
	assert.Len(t, got.Items, 2)
}

func TestListOrders_NewestFirstWithStatusFilter(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	burger := f.addMenuItem(t, "rA", "Burger", "10", true)

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		view, err := f.orders.CreateOrder(ctx, "rA", transport.CreateOrderRequest{
			Items: []transport.CreateOrderItem{line(burger.ID, 1)},
		})
		require.NoError(t, err)
		ids = append(ids, view.Order.ID)
	}
	_, err := f.orders.UpdateOrderStatus(ctx, "rA", ids[0], models.StatusPreparing)
	require.NoError(t, err)

	all, err := f.orders.ListOrders(ctx, "rA", ListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ids[2], all[0].ID)

	preparing, err := f.orders.ListOrders(ctx, "rA", ListOptions{Status: models.StatusPreparing})
	require.NoError(t, err)
	require.Len(t, preparing, 1)
	assert.Equal(t, ids[0], preparing[0].ID)

	limited, err := f.orders.ListOrders(ctx, "rA", ListOptions{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	none, err := f.orders.ListOrders(ctx, "rB", ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = f.orders.ListOrders(ctx, "rA", ListOptions{Status: "lost"})
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestUpdateOrderStatus_Lifecycle(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	burger := f.addMenuItem(t, "rA", "Burger", "10", true)

	view, err := f.orders.CreateOrder(ctx, "rA", transport.CreateOrderRequest{
		Items: []transport.CreateOrderItem{line(burger.ID, 1)},
	})
	require.NoError(t, err)
	id := view.Order.ID

	o, err := f.orders.UpdateOrderStatus(ctx, "rA", id, models.StatusReady)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReady, o.Status)

	_, err = f.orders.UpdateOrderStatus(ctx, "rA", id, models.StatusPending)
	require.ErrorIs(t, err, ErrConflict)

	again, err := f.orders.UpdateOrderStatus(ctx, "rA", id, models.StatusReady)
	require.NoError(t, err)
	assert.True(t, o.UpdatedAt.Equal(again.UpdatedAt), "no-op must not touch updated_at")

	_, err = f.orders.UpdateOrderStatus(ctx, "rA", id, models.StatusCompleted)
	require.NoError(t, err)

	_, err = f.orders.UpdateOrderStatus(ctx, "rA", id, models.StatusCancelled)
	require.ErrorIs(t, err, ErrConflict)

	_, err = f.orders.UpdateOrderStatus(ctx, "rA", id, "lost")
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = f.orders.UpdateOrderStatus(ctx, "rB", id, models.StatusCompleted)
	require.ErrorIs(t, err, ErrNotFound)

	f.settle(t)
	rec, err := f.store.Get(ctx, replica.KindOrder, "rA", id.String())
	require.NoError(t, err)
	assert.Equal(t, "completed", rec.Fields["status"])
}

func TestUpdatePayment_ReplicatesPaymentRecord(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	burger := f.addMenuItem(t, "rA", "Burger", "10", true)

	view, err := f.orders.CreateOrder(ctx, "rA", transport.CreateOrderRequest{
		Items: []transport.CreateOrderItem{line(burger.ID, 1)},
	})
	require.NoError(t, err)

	method := "card"
	o, err := f.orders.UpdatePayment(ctx, "rA", view.Order.ID, transport.UpdatePaymentRequest{
		PaymentStatus: "paid",
		PaymentMethod: &method,
		Amount:        amount("10.50"),
	})
	require.NoError(t, err)
	require.NotNil(t, o.PaymentStatus)
	assert.Equal(t, "paid", *o.PaymentStatus)
	assert.Equal(t, "card", *o.PaymentMethod)

	f.settle(t)
	rec, err := f.store.Get(ctx, replica.KindPayment, "rA", view.Order.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "paid", rec.Fields["payment_status"])

	_, err = f.orders.UpdatePayment(ctx, "rA", view.Order.ID, transport.UpdatePaymentRequest{
		PaymentStatus: "paid",
		Amount:        amount("-1"),
	})
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestDeleteOrder_HiddenEverywhere(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	burger := f.addMenuItem(t, "rA", "Burger", "10", true)

	view, err := f.orders.CreateOrder(ctx, "rA", transport.CreateOrderRequest{
		Items: []transport.CreateOrderItem{line(burger.ID, 1)},
	})
	require.NoError(t, err)
	f.settle(t)
	require.Equal(t, 1, f.store.Len(replica.KindOrder))

	require.NoError(t, f.orders.DeleteOrder(ctx, "rA", view.Order.ID))

	_, err = f.orders.GetOrder(ctx, "rA", view.Order.ID)
	require.ErrorIs(t, err, ErrNotFound)

	list, err := f.orders.ListOrders(ctx, "rA", ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, list)

	f.settle(t)
	assert.Zero(t, f.store.Len(replica.KindOrder))
	assert.Zero(t, f.store.Len(replica.KindOrderItem))

	require.ErrorIs(t, f.orders.DeleteOrder(ctx, "rA", view.Order.ID), ErrNotFound)
}

type failingDeleteStore struct {
	*replica.MemoryStore
}

func (failingDeleteStore) Delete(context.Context, replica.Kind, string, string, int64) error {
	return errors.New("replica unavailable")
}

func TestDeleteOrder_TombstoneFailureStillHidden(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	burger := f.addMenuItem(t, "rA", "Burger", "10", true)

	view, err := f.orders.CreateOrder(ctx, "rA", transport.CreateOrderRequest{
		Items: []transport.CreateOrderItem{line(burger.ID, 1)},
	})
	require.NoError(t, err)
	f.settle(t)

	f.client.Bind(failingDeleteStore{MemoryStore: f.store})
	require.NoError(t, f.orders.DeleteOrder(ctx, "rA", view.Order.ID))
	f.settle(t)

	// the stale replica copy is still there but must not be served
	require.Equal(t, 1, f.store.Len(replica.KindOrder))
	assert.Equal(t, 1, f.orders.pending.size())
	_, err = f.orders.GetOrder(ctx, "rA", view.Order.ID)
	require.ErrorIs(t, err, ErrNotFound)

	f.client.Bind(f.store)
	stats, err := f.orders.Reconcile(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Tombstoned)
	assert.Zero(t, f.orders.pending.size())
	assert.Zero(t, f.store.Len(replica.KindOrder))

	_, err = f.orders.GetOrder(ctx, "rA", view.Order.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []OrderEvent
}

func (p *recordingPublisher) PublishEvent(_ context.Context, topic, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event.(OrderEvent))
	return nil
}

type recordingHub struct {
	mu   sync.Mutex
	msgs map[string][]LiveEvent
}

func (h *recordingHub) Broadcast(tenant string, msg any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.msgs == nil {
		h.msgs = make(map[string][]LiveEvent)
	}
	h.msgs[tenant] = append(h.msgs[tenant], msg.(LiveEvent))
}

func TestOrderEventsPublishedAndBroadcast(t *testing.T) {
	f := newFixture(t, true)
	pub := &recordingPublisher{}
	hub := &recordingHub{}
	f.orders.Events = pub
	f.orders.EventsTopic = "order_events"
	f.orders.Live = hub
	ctx := context.Background()
	burger := f.addMenuItem(t, "rA", "Burger", "10", true)

	view, err := f.orders.CreateOrder(ctx, "rA", transport.CreateOrderRequest{
		Items: []transport.CreateOrderItem{line(burger.ID, 1)},
	})
	require.NoError(t, err)
	f.settle(t)
	_, err = f.orders.UpdateOrderStatus(ctx, "rA", view.Order.ID, models.StatusPreparing)
	require.NoError(t, err)
	f.settle(t)

	pub.mu.Lock()
	require.Len(t, pub.events, 2)
	assert.Equal(t, EventOrderCreated, pub.events[0].Type)
	assert.Equal(t, "10.50", pub.events[0].TotalAmount)
	assert.Equal(t, EventOrderStatusChanged, pub.events[1].Type)
	assert.Equal(t, "pending", pub.events[1].PreviousStatus)
	pub.mu.Unlock()

	hub.mu.Lock()
	assert.Len(t, hub.msgs["rA"], 2)
	assert.Empty(t, hub.msgs["rB"])
	hub.mu.Unlock()
}
