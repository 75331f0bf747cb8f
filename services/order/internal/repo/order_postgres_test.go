//go:build postgres

package repo_test

import (
	"context"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	pkgdb "github.com/Skotchmaster/restaurant_orders/pkg/db"
	"github.com/Skotchmaster/restaurant_orders/services/order/internal/models"
	"github.com/Skotchmaster/restaurant_orders/services/order/internal/repo"
)

// Run with: TEST_DATABASE_URL=postgres://... go test -tags postgres ./...
func openPostgres(t *testing.T) *pkgdb.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	cfg := pkgdb.DefaultPoolConfig()
	cfg.MaxOpenConns = 8
	cfg.MaxIdleConns = 8
	p, err := pkgdb.Open(context.Background(), dsn, cfg)
	require.NoError(t, err)
	require.NoError(t, repo.Migrate(p.DB()))
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestNextOrderSeq_ContendedCounterRow(t *testing.T) {
	p := openPostgres(t)
	r := &repo.GormRepo{}
	tenant := "seq-" + uuid.NewString()
	day := models.CounterDay(time.Now())
	t.Cleanup(func() {
		p.DB().Where("restaurant_id = ?", tenant).Delete(&models.OrderCounter{})
	})

	const n = 32
	var (
		mu   sync.Mutex
		seqs []int
		wg   sync.WaitGroup
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			seq, err := pkgdb.InTx(context.Background(), p, func(tx *gorm.DB) (int, error) {
				return r.NextOrderSeq(tx, tenant, day)
			})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			seqs = append(seqs, seq)
			mu.Unlock()
		}()
	}
	close(start)
	wg.Wait()

	require.Len(t, seqs, n)
	sort.Ints(seqs)
	for i, seq := range seqs {
		assert.Equal(t, i+1, seq)
	}
}
