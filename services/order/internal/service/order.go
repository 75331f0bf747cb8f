package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	pkgdb "github.com/Skotchmaster/restaurant_orders/pkg/db"
	"github.com/Skotchmaster/restaurant_orders/pkg/logging"
	"github.com/Skotchmaster/restaurant_orders/services/order/internal/models"
	"github.com/Skotchmaster/restaurant_orders/services/order/internal/replica"
	"github.com/Skotchmaster/restaurant_orders/services/order/internal/replication"
	"github.com/Skotchmaster/restaurant_orders/services/order/internal/repo"
	"github.com/Skotchmaster/restaurant_orders/services/order/internal/transport"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200

	defaultTombstoneTimeout = 2 * time.Second

	SourceReplica = "replica"
	SourcePrimary = "primary"
)

type EventPublisher interface {
	PublishEvent(ctx context.Context, topic, key string, event any) error
}

type Broadcaster interface {
	Broadcast(tenant string, msg any)
}

type OrderView struct {
	Order  models.Order       `json:"order"`
	Items  []models.OrderItem `json:"items"`
	Source string             `json:"-"`
}

type ListOptions struct {
	Status models.OrderStatus
	Limit  int
}

type OrderService struct {
	Pool       *pkgdb.Pool
	Repo       *repo.GormRepo
	Replicator *replication.Client
	Dispatcher *replication.Dispatcher
	Events     EventPublisher
	Live       Broadcaster

	TaxRate            decimal.Decimal
	EventsTopic        string
	ReplicaReadTimeout time.Duration
	TombstoneTimeout   time.Duration

	Now func() time.Time

	pending pendingTombstones
}

func (s *OrderService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return pkgdb.Now()
}

func notFound(err error, what string, id uuid.UUID) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s %s", ErrNotFound, what, id)
	}
	return err
}

func amountOrZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

func (s *OrderService) CreateOrder(ctx context.Context, tenant string, req transport.CreateOrderRequest) (*OrderView, error) {
	if tenant == "" {
		return nil, fmt.Errorf("%w: restaurant required", ErrInvalidArgument)
	}
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: items required", ErrInvalidArgument)
	}
	for i, line := range req.Items {
		if line.MenuItemID == uuid.Nil {
			return nil, fmt.Errorf("%w: items[%d].menu_item_id required", ErrInvalidArgument, i)
		}
		if line.Quantity <= 0 || line.Quantity > MaxQuantity {
			return nil, fmt.Errorf("%w: items[%d].quantity must be between 1 and %d", ErrInvalidArgument, i, MaxQuantity)
		}
	}
	tip := amountOrZero(req.TipAmount)
	discount := amountOrZero(req.DiscountAmount)
	deposit := amountOrZero(req.DepositUsed)

	view, err := pkgdb.InTx(ctx, s.Pool, func(tx *gorm.DB) (*OrderView, error) {
		items := make([]models.OrderItem, 0, len(req.Items))
		subtotal := decimal.Zero

		for _, line := range req.Items {
			menuItem, err := s.Repo.GetMenuItem(tx, tenant, line.MenuItemID)
			if err != nil {
				return nil, notFound(err, "menu item", line.MenuItemID)
			}
			if !menuItem.Available {
				return nil, fmt.Errorf("%w: menu item %s is not available", ErrInvalidArgument, menuItem.ID)
			}

			lineTotal := menuItem.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
			subtotal = subtotal.Add(lineTotal)

			customizations := line.Customizations
			if customizations == nil {
				customizations = []string{}
			}
			items = append(items, models.OrderItem{
				MenuItemID:          menuItem.ID,
				Name:                menuItem.Name,
				Price:               menuItem.Price,
				Quantity:            line.Quantity,
				Subtotal:            lineTotal,
				Customizations:      datatypes.NewJSONSlice(customizations),
				SpecialInstructions: line.SpecialInstructions,
			})
		}

		totals, err := ComputeTotals(subtotal, s.TaxRate, tip, discount, deposit)
		if err != nil {
			return nil, err
		}

		now := s.now()
		day := models.CounterDay(now)
		seq, err := s.Repo.NextOrderSeq(tx, tenant, day)
		if err != nil {
			return nil, fmt.Errorf("allocate order number: %w", err)
		}

		order := &models.Order{
			RestaurantID:   tenant,
			OrderNumber:    models.FormatOrderNumber(day, seq),
			TableID:        req.TableID,
			CustomerName:   req.CustomerName,
			Status:         models.StatusPending,
			Subtotal:       totals.Subtotal,
			TaxAmount:      totals.Tax,
			TipAmount:      totals.Tip,
			DiscountAmount: totals.Discount,
			DepositUsed:    totals.Deposit,
			TotalAmount:    totals.Total,
			PaymentMethod:  req.PaymentMethod,
			Notes:          req.Notes,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		for i := range items {
			items[i].CreatedAt = now
			items[i].UpdatedAt = now
		}
		if err := s.Repo.InsertOrder(tx, order, items); err != nil {
			return nil, fmt.Errorf("insert order: %w", err)
		}
		return &OrderView{Order: *order, Items: items, Source: SourcePrimary}, nil
	})
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx).Info("order_created",
		"restaurant_id", tenant, "order_id", view.Order.ID, "order_number", view.Order.OrderNumber,
		"total_amount", view.Order.TotalAmount.StringFixed(2))

	s.syncOrderAsync(EventOrderCreated, view.Order, view.Items, true)
	s.publish(newOrderEvent(EventOrderCreated, &view.Order))
	return view, nil
}

// GetOrder serves the replica view when it is complete and falls back to
// the system of record otherwise, scheduling a repair of the replica.
func (s *OrderService) GetOrder(ctx context.Context, tenant string, id uuid.UUID) (*OrderView, error) {
	if view, ok := s.readReplica(ctx, tenant, id); ok {
		return view, nil
	}

	view, err := s.readPrimary(ctx, tenant, id)
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx).Debug("order_read_repair", "restaurant_id", tenant, "order_id", id)
	s.syncOrderAsync("order_repair", view.Order, view.Items, false)
	return view, nil
}

func (s *OrderService) readReplica(ctx context.Context, tenant string, id uuid.UUID) (*OrderView, bool) {
	if s.Replicator == nil || s.Replicator.State() != replication.Ready {
		return nil, false
	}
	if s.pending.has(tenant, id) {
		return nil, false
	}
	l := logging.FromContext(ctx)

	if s.ReplicaReadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.ReplicaReadTimeout)
		defer cancel()
	}

	rec, err := s.Replicator.Get(ctx, replica.KindOrder, tenant, id.String())
	if err != nil {
		if !errors.Is(err, replica.ErrNotFound) {
			l.Warn("replica_read_error", "order_id", id, "error", err)
		}
		return nil, false
	}
	order, itemCount, err := replication.OrderFromRecord(*rec)
	if err != nil {
		l.Warn("replica_read_error", "order_id", id, "error", err)
		return nil, false
	}

	recs, err := s.Replicator.Query(ctx, replica.KindOrderItem, tenant, "postgres_order_id", id.String())
	if err != nil {
		l.Warn("replica_read_error", "order_id", id, "error", err)
		return nil, false
	}
	if len(recs) != itemCount {
		l.Debug("replica_read_incomplete", "order_id", id, "want_items", itemCount, "got_items", len(recs))
		return nil, false
	}

	items := make([]models.OrderItem, 0, len(recs))
	for _, r := range recs {
		item, err := replication.OrderItemFromRecord(r)
		if err != nil {
			l.Warn("replica_read_error", "order_id", id, "error", err)
			return nil, false
		}
		items = append(items, *item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Position < items[j].Position })

	return &OrderView{Order: *order, Items: items, Source: SourceReplica}, true
}

func (s *OrderService) readPrimary(ctx context.Context, tenant string, id uuid.UUID) (*OrderView, error) {
	var view OrderView
	err := s.Pool.Read(ctx, func(db *gorm.DB) error {
		order, err := s.Repo.GetOrder(db, tenant, id)
		if err != nil {
			return notFound(err, "order", id)
		}
		items, err := s.Repo.ListItems(db, tenant, id)
		if err != nil {
			return err
		}
		view = OrderView{Order: *order, Items: items, Source: SourcePrimary}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &view, nil
}

func (s *OrderService) ListOrders(ctx context.Context, tenant string, opts ListOptions) ([]models.Order, error) {
	if opts.Status != "" && !opts.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidArgument, opts.Status)
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	var orders []models.Order
	err := s.Pool.Read(ctx, func(db *gorm.DB) error {
		var err error
		orders, err = s.Repo.ListOrders(db, tenant, opts.Status, limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	return orders, nil
}

type statusChange struct {
	view    OrderView
	from    models.OrderStatus
	changed bool
}

// UpdateOrderStatus moves the order along its lifecycle. Re-applying the
// current status succeeds without a write.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, tenant string, id uuid.UUID, status models.OrderStatus) (*models.Order, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidArgument, status)
	}

	change, err := pkgdb.InTx(ctx, s.Pool, func(tx *gorm.DB) (statusChange, error) {
		order, err := s.Repo.GetOrderForUpdate(tx, tenant, id)
		if err != nil {
			return statusChange{}, notFound(err, "order", id)
		}
		from := order.Status
		if !from.CanTransitionTo(status) {
			return statusChange{}, fmt.Errorf("%w: order %s cannot move from %s to %s", ErrConflict, id, from, status)
		}
		if from == status {
			return statusChange{view: OrderView{Order: *order}, from: from}, nil
		}

		now := s.now()
		if err := s.Repo.UpdateOrder(tx, tenant, id, map[string]any{"status": status}, now); err != nil {
			return statusChange{}, notFound(err, "order", id)
		}
		order.Status = status
		order.UpdatedAt = now

		items, err := s.Repo.ListItems(tx, tenant, id)
		if err != nil {
			return statusChange{}, err
		}
		return statusChange{view: OrderView{Order: *order, Items: items}, from: from, changed: true}, nil
	})
	if err != nil {
		return nil, err
	}

	order := change.view.Order
	if change.changed {
		logging.FromContext(ctx).Info("order_status_changed",
			"restaurant_id", tenant, "order_id", id, "from", change.from, "to", status)
		s.syncOrderAsync(EventOrderStatusChanged, order, change.view.Items, true)
		ev := newOrderEvent(EventOrderStatusChanged, &order)
		ev.PreviousStatus = string(change.from)
		s.publish(ev)
	}
	return &order, nil
}

// UpdatePayment attaches payment details to an order.
func (s *OrderService) UpdatePayment(ctx context.Context, tenant string, id uuid.UUID, req transport.UpdatePaymentRequest) (*models.Order, error) {
	if req.PaymentStatus == "" {
		return nil, fmt.Errorf("%w: payment_status required", ErrInvalidArgument)
	}
	if req.Amount != nil {
		if err := checkAmount("amount", *req.Amount); err != nil {
			return nil, err
		}
	}

	view, err := pkgdb.InTx(ctx, s.Pool, func(tx *gorm.DB) (OrderView, error) {
		order, err := s.Repo.GetOrderForUpdate(tx, tenant, id)
		if err != nil {
			return OrderView{}, notFound(err, "order", id)
		}

		cols := map[string]any{"payment_status": req.PaymentStatus}
		order.PaymentStatus = &req.PaymentStatus
		if req.PaymentMethod != nil {
			cols["payment_method"] = *req.PaymentMethod
			order.PaymentMethod = req.PaymentMethod
		}
		if req.PaymentTransactionID != nil {
			cols["payment_transaction_id"] = *req.PaymentTransactionID
			order.PaymentTransactionID = req.PaymentTransactionID
		}

		now := s.now()
		if err := s.Repo.UpdateOrder(tx, tenant, id, cols, now); err != nil {
			return OrderView{}, notFound(err, "order", id)
		}
		order.UpdatedAt = now

		items, err := s.Repo.ListItems(tx, tenant, id)
		if err != nil {
			return OrderView{}, err
		}
		return OrderView{Order: *order, Items: items}, nil
	})
	if err != nil {
		return nil, err
	}

	order := view.Order
	s.syncOrderAsync(EventOrderPaymentUpdated, order, view.Items, true)
	s.submit("sync_payment:"+order.ID.String(), func(ctx context.Context) error {
		res := s.Replicator.SyncPayment(ctx, replication.PaymentEntity{Order: &order, Amount: req.Amount})
		return res.Err
	})
	s.publish(newOrderEvent(EventOrderPaymentUpdated, &order))
	return &order, nil
}

// DeleteOrder soft-deletes the order and its items in one transaction, with a
// shared deleted_at, then tombstones them in the replica.
func (s *OrderService) DeleteOrder(ctx context.Context, tenant string, id uuid.UUID) error {
	type deleted struct {
		order   models.Order
		itemIDs []string
		at      time.Time
	}

	d, err := pkgdb.InTx(ctx, s.Pool, func(tx *gorm.DB) (deleted, error) {
		order, err := s.Repo.GetOrderForUpdate(tx, tenant, id)
		if err != nil {
			return deleted{}, notFound(err, "order", id)
		}
		items, err := s.Repo.ListItems(tx, tenant, id)
		if err != nil {
			return deleted{}, err
		}

		at := s.now()
		if err := s.Repo.SoftDeleteOrder(tx, tenant, id, at); err != nil {
			return deleted{}, notFound(err, "order", id)
		}

		ids := make([]string, 0, len(items))
		for _, it := range items {
			ids = append(ids, it.ID.String())
		}
		order.UpdatedAt = at
		return deleted{order: *order, itemIDs: ids, at: at}, nil
	})
	if err != nil {
		return err
	}

	logging.FromContext(ctx).Info("order_deleted", "restaurant_id", tenant, "order_id", id)

	s.tombstoneOrder(ctx, tenant, id, d.itemIDs, models.Version(d.at))
	s.publish(newOrderEvent(EventOrderDeleted, &d.order))
	return nil
}

// tombstoneOrder deletes the order from the replica before DeleteOrder
// returns. Until a tombstone lands the id stays pending, so replica reads
// never serve the deleted order; a failed attempt is retried in the
// background and by the reconciler.
func (s *OrderService) tombstoneOrder(ctx context.Context, tenant string, id uuid.UUID, itemIDs []string, version int64) {
	s.pending.add(tenant, id)
	if s.Replicator == nil || s.Replicator.State() != replication.Ready {
		return
	}

	timeout := s.TombstoneTimeout
	if timeout <= 0 {
		timeout = defaultTombstoneTimeout
	}
	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	res := s.Replicator.DeleteOrder(tctx, tenant, id.String(), itemIDs, version)
	cancel()
	if res.OK {
		s.pending.remove(tenant, id)
		s.broadcast(tenant, LiveEvent{Type: EventOrderDeleted, OrderID: id.String()})
		return
	}

	logging.FromContext(ctx).Warn("order_tombstone_failed", "restaurant_id", tenant, "order_id", id, "attempts", res.Attempts, "error", res.Err)
	s.submit("tombstone_order:"+id.String(), func(ctx context.Context) error {
		res := s.Replicator.DeleteOrder(ctx, tenant, id.String(), itemIDs, version)
		if !res.OK {
			return res.Err
		}
		s.pending.remove(tenant, id)
		s.broadcast(tenant, LiveEvent{Type: EventOrderDeleted, OrderID: id.String()})
		return nil
	})
}

func (s *OrderService) submit(name string, task replication.Task) {
	if s.Dispatcher == nil || s.Replicator == nil {
		return
	}
	s.Dispatcher.Submit(name, task)
}

// syncOrderAsync replicates the order after commit. Live subscribers are told
// once the replica holds the new state.
func (s *OrderService) syncOrderAsync(reason string, order models.Order, items []models.OrderItem, notify bool) {
	s.submit(reason+":"+order.ID.String(), func(ctx context.Context) error {
		res := s.Replicator.SyncOrder(ctx, &order, items)
		if !res.OK {
			return res.Err
		}
		if notify {
			s.broadcast(order.RestaurantID, LiveEvent{Type: reason, OrderID: order.ID.String(), Order: &order, Items: items})
		}
		return nil
	})
}

func (s *OrderService) broadcast(tenant string, ev LiveEvent) {
	if s.Live != nil {
		s.Live.Broadcast(tenant, ev)
	}
}
