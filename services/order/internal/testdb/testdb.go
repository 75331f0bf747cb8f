// Package testdb opens throwaway in-memory databases with the order schema.
package testdb

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	pkgdb "github.com/Skotchmaster/restaurant_orders/pkg/db"
	"github.com/Skotchmaster/restaurant_orders/services/order/internal/repo"
)

// Open returns a pool over a private in-memory SQLite database. The pool is
// limited to a single connection because every new SQLite connection to
// ":memory:" would see an empty database.
func Open(t testing.TB) *pkgdb.Pool {
	t.Helper()

	cfg := pkgdb.PoolConfig{
		MaxOpenConns:   1,
		MaxIdleConns:   1,
		AcquireTimeout: 5 * time.Second,
		TxTimeout:      5 * time.Second,
	}
	p, err := pkgdb.OpenDialector(context.Background(), sqlite.Open(":memory:"), &gorm.Config{
		NowFunc: pkgdb.Now,
		Logger:  logger.Discard,
	}, cfg)
	require.NoError(t, err)
	require.NoError(t, repo.Migrate(p.DB()))

	t.Cleanup(func() { _ = p.Close() })
	return p
}
