package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/sync/semaphore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/Skotchmaster/restaurant_orders/pkg/logging"
)

// ErrResourceExhausted marks backpressure from the pool or the transaction
// infrastructure. Callers may retry it; it never wraps a domain error.
var ErrResourceExhausted = errors.New("resource exhausted")

type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	AcquireTimeout time.Duration
	TxTimeout      time.Duration
}

func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    20,
		MaxIdleConns:    10,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
		AcquireTimeout:  2 * time.Second,
		TxTimeout:       10 * time.Second,
	}
}

func configurePool(sqlDB *sql.DB, cfg PoolConfig) {
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
}

// Pool owns the connection to the system of record. Every checkout goes
// through a semaphore sized to MaxOpenConns so a saturated pool fails fast
// with ErrResourceExhausted instead of queueing without bound.
type Pool struct {
	db    *gorm.DB
	slots *semaphore.Weighted
	cfg   PoolConfig
}

func Open(ctx context.Context, dsn string, cfg PoolConfig) (*Pool, error) {
	if dsn == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}
	return OpenDialector(ctx, postgres.Open(dsn), &gorm.Config{
		PrepareStmt: true,
		NowFunc:     Now,
	}, cfg)
}

// Now is the clock used for row timestamps: UTC at the precision PostgreSQL
// stores.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func OpenDialector(ctx context.Context, dialector gorm.Dialector, gormCfg *gorm.Config, cfg PoolConfig) (*Pool, error) {
	gdb, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = DefaultPoolConfig().MaxOpenConns
	}
	configurePool(sqlDB, cfg)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	return &Pool{
		db:    gdb,
		slots: semaphore.NewWeighted(int64(cfg.MaxOpenConns)),
		cfg:   cfg,
	}, nil
}

// DB returns the underlying handle for schema migrations only; request paths
// must use WithTransaction, Read or Query.
func (p *Pool) DB() *gorm.DB {
	return p.db
}

func (p *Pool) acquire(ctx context.Context) (func(), error) {
	actx := ctx
	if p.cfg.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, p.cfg.AcquireTimeout)
		defer cancel()
	}
	if err := p.slots.Acquire(actx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: no free connection within %s", ErrResourceExhausted, p.cfg.AcquireTimeout)
	}
	var once sync.Once
	return func() { once.Do(func() { p.slots.Release(1) }) }, nil
}

// txContext detaches the transaction from caller cancellation: once begun, a
// transaction either commits or rolls back on its own deadline.
func (p *Pool) txContext(ctx context.Context) (context.Context, context.CancelFunc) {
	base := context.WithoutCancel(ctx)
	if p.cfg.TxTimeout > 0 {
		return context.WithTimeout(base, p.cfg.TxTimeout)
	}
	return context.WithCancel(base)
}

// WithTransaction runs fn inside a transaction. Exactly one of commit or
// rollback runs per call, including when fn panics (rollback, then the panic
// is re-raised). The connection slot is released on every path.
func (p *Pool) WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	l := logging.FromContext(ctx)

	release, err := p.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	txCtx, cancel := p.txContext(ctx)
	defer cancel()

	tx := p.db.WithContext(txCtx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("%w: begin: %w", ErrResourceExhausted, tx.Error)
	}

	finished := false
	defer func() {
		if finished {
			return
		}
		if r := recover(); r != nil {
			if rbErr := tx.Rollback().Error; rbErr != nil {
				l.Error("tx_rollback_error", "reason", "panic", "error", rbErr)
			}
			l.Error("tx_panic", "panic", r)
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		finished = true
		if rbErr := tx.Rollback().Error; rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			l.Warn("tx_rollback_error", "error", rbErr)
		}
		return classify(err)
	}

	finished = true
	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("%w: commit: %w", ErrResourceExhausted, err)
	}
	return nil
}

// InTx is WithTransaction for callbacks that produce a value.
func InTx[T any](ctx context.Context, p *Pool, fn func(tx *gorm.DB) (T, error)) (T, error) {
	var out T
	err := p.WithTransaction(ctx, func(tx *gorm.DB) error {
		v, err := fn(tx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// Read checks out a connection for a non-transactional read. The read keeps
// the caller's cancellation and is bounded by TxTimeout.
func (p *Pool) Read(ctx context.Context, fn func(db *gorm.DB) error) error {
	release, err := p.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	if p.cfg.TxTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.TxTimeout)
		defer cancel()
	}
	return classify(fn(p.db.WithContext(ctx)))
}

func (p *Pool) Query(ctx context.Context, dest any, query string, args ...any) error {
	return p.Read(ctx, func(db *gorm.DB) error {
		return db.Raw(query, args...).Scan(dest).Error
	})
}

func (p *Pool) Ping(ctx context.Context) error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (p *Pool) Stats() sql.DBStats {
	sqlDB, err := p.db.DB()
	if err != nil {
		return sql.DBStats{}
	}
	return sqlDB.Stats()
}

func (p *Pool) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// classify maps infrastructure failures to ErrResourceExhausted and passes
// everything else through untouched.
func classify(err error) error {
	if err == nil || errors.Is(err, ErrResourceExhausted) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// class 53: insufficient resources, 57P03: cannot connect now
		if strings.HasPrefix(pgErr.Code, "53") || pgErr.Code == "57P03" {
			return fmt.Errorf("%w: %w", ErrResourceExhausted, err)
		}
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %w", ErrResourceExhausted, err)
	}
	return err
}
