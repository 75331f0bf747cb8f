package replica

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func orderRecord(version int64, status string) Record {
	return Record{
		Kind:    KindOrder,
		ID:      "o1",
		Tenant:  "rA",
		Version: version,
		Fields:  map[string]any{"status": status},
	}
}

func TestMemoryStore_LastWriteWins(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, orderRecord(2, "ready")))
	require.NoError(t, s.Upsert(ctx, orderRecord(1, "pending")))

	got, err := s.Get(ctx, KindOrder, "rA", "o1")
	require.NoError(t, err)
	assert.Equal(t, "ready", got.Fields["status"])
	assert.EqualValues(t, 2, got.Version)
}

func TestMemoryStore_ReplayIsIdempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	rec := orderRecord(5, "preparing")

	require.NoError(t, s.Upsert(ctx, rec))
	first, err := s.Get(ctx, KindOrder, "rA", "o1")
	require.NoError(t, err)

	require.NoError(t, s.Upsert(ctx, rec))
	second, err := s.Get(ctx, KindOrder, "rA", "o1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, s.Len(KindOrder))
}

func TestMemoryStore_TenantScoped(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, orderRecord(1, "pending")))

	_, err := s.Get(ctx, KindOrder, "rB", "o1")
	assert.ErrorIs(t, err, ErrNotFound)

	recs, err := s.Query(ctx, KindOrder, "rB", "status", "pending")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestMemoryStore_TombstoneBlocksStaleUpsert(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, orderRecord(1, "pending")))
	require.NoError(t, s.Delete(ctx, KindOrder, "rA", "o1", 3))

	_, err := s.Get(ctx, KindOrder, "rA", "o1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Upsert(ctx, orderRecord(2, "ready")))
	_, err = s.Get(ctx, KindOrder, "rA", "o1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, s.Len(KindOrder))
}

func TestMemoryStore_QueryByField(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	for _, id := range []string{"i2", "i1"} {
		require.NoError(t, s.Upsert(ctx, Record{
			Kind: KindOrderItem, ID: id, Tenant: "rA", Version: 1,
			Fields: map[string]any{"postgres_order_id": "o1"},
		}))
	}
	require.NoError(t, s.Upsert(ctx, Record{
		Kind: KindOrderItem, ID: "i3", Tenant: "rA", Version: 1,
		Fields: map[string]any{"postgres_order_id": "o2"},
	}))

	recs, err := s.Query(ctx, KindOrderItem, "rA", "postgres_order_id", "o1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "i1", recs[0].ID)
	assert.Equal(t, "i2", recs[1].ID)
}

func TestDocumentRoundTrip(t *testing.T) {
	rec := Record{Kind: KindOrder, ID: "o1", Tenant: "rA", Version: 7, Fields: map[string]any{"status": "ready"}}
	doc := document(rec)
	assert.Equal(t, "o1", doc[FieldID])
	assert.Equal(t, "rA", doc[FieldTenant])

	back := fromDocument(KindOrder, doc)
	assert.Equal(t, rec.ID, back.ID)
	assert.Equal(t, rec.Tenant, back.Tenant)
	assert.Equal(t, rec.Version, back.Version)
	assert.False(t, back.Deleted)
	assert.Equal(t, "ready", back.Fields["status"])
}
