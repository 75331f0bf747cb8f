// Package replication propagates system-of-record changes into the replica.
// Every operation reports a Result instead of failing the caller: the replica
// is a cache that read-repair and reconciliation can always rebuild.
package replication

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Skotchmaster/restaurant_orders/services/order/internal/models"
	"github.com/Skotchmaster/restaurant_orders/services/order/internal/replica"
)

var (
	ErrNotInitialized = errors.New("replication: replica store not initialized")
	ErrReplication    = errors.New("replication failed")
)

type State int

const (
	NotReady State = iota
	Ready
)

func (s State) String() string {
	if s == Ready {
		return "ready"
	}
	return "not_ready"
}

type Result struct {
	OK       bool
	Err      error
	Attempts int
}

type Options struct {
	Attempts       int
	BaseDelay      time.Duration
	AttemptTimeout time.Duration
}

type Client struct {
	mu    sync.RWMutex
	store replica.Store

	retry          Retryer
	attemptTimeout time.Duration
	logger         *slog.Logger
}

func NewClient(opts Options, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = 5 * time.Second
	}
	return &Client{
		retry:          NewLinearBackoff(opts.Attempts, opts.BaseDelay),
		attemptTimeout: opts.AttemptTimeout,
		logger:         logger.With("component", "replication"),
	}
}

// Bind attaches the replica store and moves the client to Ready.
func (c *Client) Bind(store replica.Store) {
	c.mu.Lock()
	c.store = store
	c.mu.Unlock()
	c.logger.Info("replica_bound")
}

// Unbind detaches and returns the store, moving the client back to NotReady.
func (c *Client) Unbind() replica.Store {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.store
	c.store = nil
	return s
}

func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.store == nil {
		return NotReady
	}
	return Ready
}

func (c *Client) bound() (replica.Store, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.store == nil {
		return nil, ErrNotInitialized
	}
	return c.store, nil
}

// call runs op once under the per-attempt timeout, turning a panic into an
// error.
func (c *Client) call(ctx context.Context, store replica.Store, op func(ctx context.Context, s replica.Store) error) (err error) {
	actx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("replica store panic: %v", r)
		}
	}()
	return op(actx, store)
}

func (c *Client) withRetry(ctx context.Context, kind replica.Kind, id string, op func(ctx context.Context, s replica.Store) error) Result {
	store, err := c.bound()
	if err != nil {
		return Result{Err: err}
	}

	for attempt := 1; ; attempt++ {
		err := c.call(ctx, store, op)
		if err == nil {
			return Result{OK: true, Attempts: attempt}
		}
		c.logger.Warn("replication_attempt_failed", "kind", kind, "id", id, "attempt", attempt, "error", err)

		delay, again := c.retry.NextDelay(attempt, err)
		if !again {
			return Result{
				Err:      fmt.Errorf("%w: %s %s after %d attempts: %w", ErrReplication, kind, id, attempt, err),
				Attempts: attempt,
			}
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Result{
				Err:      fmt.Errorf("%w: %s %s: %w", ErrReplication, kind, id, ctx.Err()),
				Attempts: attempt,
			}
		case <-timer.C:
		}
	}
}

// Sync upserts one entity with the retry policy.
func (c *Client) Sync(ctx context.Context, e Entity) Result {
	rec := replica.Record{
		Kind:    e.Kind(),
		ID:      e.ReplicaID(),
		Tenant:  e.Tenant(),
		Version: e.Version(),
		Fields:  Normalize(e.Payload()),
	}
	return c.withRetry(ctx, rec.Kind, rec.ID, func(ctx context.Context, s replica.Store) error {
		return s.Upsert(ctx, rec)
	})
}

// SyncOrder upserts the order, then every item with the same retry policy.
// Items are still attempted after one of them fails; the first failure is
// reported and Attempts sums all attempts made.
func (c *Client) SyncOrder(ctx context.Context, order *models.Order, items []models.OrderItem) Result {
	res := c.Sync(ctx, OrderEntity{Order: order, ItemCount: len(items)})
	if !res.OK {
		return res
	}

	total := res.Attempts
	var firstErr error
	for i := range items {
		r := c.Sync(ctx, OrderItemEntity{Item: &items[i]})
		total += r.Attempts
		if !r.OK && firstErr == nil {
			firstErr = r.Err
		}
	}
	if firstErr != nil {
		return Result{Err: firstErr, Attempts: total}
	}
	return Result{OK: true, Attempts: total}
}

func (c *Client) SyncMenuItem(ctx context.Context, item *models.MenuItem) Result {
	return c.Sync(ctx, MenuItemEntity{Item: item})
}

func (c *Client) SyncTable(ctx context.Context, table TableEntity) Result {
	return c.Sync(ctx, table)
}

func (c *Client) SyncPayment(ctx context.Context, payment PaymentEntity) Result {
	return c.Sync(ctx, payment)
}

// DeleteEntity tombstones a record at version with the retry policy.
func (c *Client) DeleteEntity(ctx context.Context, kind replica.Kind, tenant, id string, version int64) Result {
	return c.withRetry(ctx, kind, id, func(ctx context.Context, s replica.Store) error {
		return s.Delete(ctx, kind, tenant, id, version)
	})
}

// DeleteOrder tombstones the order and its items.
func (c *Client) DeleteOrder(ctx context.Context, tenant, orderID string, itemIDs []string, version int64) Result {
	res := c.DeleteEntity(ctx, replica.KindOrder, tenant, orderID, version)
	total := res.Attempts
	firstErr := res.Err
	for _, id := range itemIDs {
		r := c.DeleteEntity(ctx, replica.KindOrderItem, tenant, id, version)
		total += r.Attempts
		if !r.OK && firstErr == nil {
			firstErr = r.Err
		}
	}
	if firstErr != nil {
		return Result{Err: firstErr, Attempts: total}
	}
	return Result{OK: true, Attempts: total}
}

// Get reads one record. Reads are single-shot; callers bound them with ctx.
func (c *Client) Get(ctx context.Context, kind replica.Kind, tenant, id string) (*replica.Record, error) {
	store, err := c.bound()
	if err != nil {
		return nil, err
	}
	return store.Get(ctx, kind, tenant, id)
}

func (c *Client) Query(ctx context.Context, kind replica.Kind, tenant, field, value string) ([]replica.Record, error) {
	store, err := c.bound()
	if err != nil {
		return nil, err
	}
	return store.Query(ctx, kind, tenant, field, value)
}

func (c *Client) Ping(ctx context.Context) error {
	store, err := c.bound()
	if err != nil {
		return err
	}
	return store.Ping(ctx)
}
