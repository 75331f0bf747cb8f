package replica

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/pkg/models"
)

// SurrealStore mirrors records into one SurrealDB table per kind, with the
// relational id as record id.
type SurrealStore struct {
	db *surrealdb.DB
}

type SurrealConfig struct {
	URL       string
	Namespace string
	Database  string
	Username  string
	Password  string
}

func NewSurrealStore(ctx context.Context, cfg SurrealConfig) (*SurrealStore, error) {
	db, err := surrealdb.FromEndpointURLString(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("surrealdb: connect: %w", err)
	}

	if cfg.Username != "" && cfg.Password != "" {
		if _, err := db.SignIn(ctx, map[string]any{
			"user": cfg.Username,
			"pass": cfg.Password,
		}); err != nil {
			_ = db.Close(ctx)
			return nil, fmt.Errorf("surrealdb: sign in: %w", err)
		}
	}

	if err := db.Use(ctx, cfg.Namespace, cfg.Database); err != nil {
		_ = db.Close(ctx)
		return nil, fmt.Errorf("surrealdb: use %s/%s: %w", cfg.Namespace, cfg.Database, err)
	}
	return &SurrealStore{db: db}, nil
}

func table(kind Kind) string {
	return "replica_" + string(kind)
}

// upsertQuery only writes when the stored version is missing or not newer.
const upsertQuery = `
LET $current = (SELECT VALUE version FROM ONLY $rid);
IF $current = NONE OR $current <= $version {
	UPSERT $rid CONTENT $doc;
};`

func (s *SurrealStore) write(ctx context.Context, rec Record) error {
	params := map[string]any{
		"rid":     models.NewRecordID(table(rec.Kind), rec.ID),
		"version": rec.Version,
		"doc":     document(rec),
	}
	res, err := surrealdb.Query[any](ctx, s.db, upsertQuery, params)
	if err != nil {
		return fmt.Errorf("surrealdb: upsert %s %s: %w", rec.Kind, rec.ID, err)
	}
	return statementErr(res)
}

func (s *SurrealStore) Upsert(ctx context.Context, rec Record) error {
	rec.Deleted = false
	return s.write(ctx, rec)
}

func (s *SurrealStore) Delete(ctx context.Context, kind Kind, tenant, id string, version int64) error {
	return s.write(ctx, Record{Kind: kind, ID: id, Tenant: tenant, Version: version, Deleted: true})
}

func (s *SurrealStore) Get(ctx context.Context, kind Kind, tenant, id string) (*Record, error) {
	res, err := surrealdb.Query[[]map[string]any](ctx, s.db,
		"SELECT * FROM $rid WHERE restaurant_id = $tenant AND deleted = false",
		map[string]any{
			"rid":    models.NewRecordID(table(kind), id),
			"tenant": tenant,
		})
	if err != nil {
		return nil, fmt.Errorf("surrealdb: get %s %s: %w", kind, id, err)
	}
	if err := statementErr(res); err != nil {
		return nil, err
	}
	if res == nil || len(*res) == 0 || len((*res)[0].Result) == 0 {
		return nil, ErrNotFound
	}
	rec := fromDocument(kind, (*res)[0].Result[0])
	return &rec, nil
}

func (s *SurrealStore) Query(ctx context.Context, kind Kind, tenant, field, value string) ([]Record, error) {
	res, err := surrealdb.Query[[]map[string]any](ctx, s.db,
		`SELECT * FROM type::table($tb)
		 WHERE restaurant_id = $tenant AND type::field($field) = $value AND deleted = false
		 ORDER BY postgres_id`,
		map[string]any{
			"tb":     table(kind),
			"tenant": tenant,
			"field":  field,
			"value":  value,
		})
	if err != nil {
		return nil, fmt.Errorf("surrealdb: query %s: %w", kind, err)
	}
	if err := statementErr(res); err != nil {
		return nil, err
	}

	out := make([]Record, 0)
	if res == nil || len(*res) == 0 {
		return out, nil
	}
	for _, doc := range (*res)[0].Result {
		out = append(out, fromDocument(kind, doc))
	}
	return out, nil
}

func (s *SurrealStore) Ping(ctx context.Context) error {
	if _, err := surrealdb.Query[any](ctx, s.db, "RETURN true", nil); err != nil {
		return fmt.Errorf("surrealdb: ping: %w", err)
	}
	return nil
}

func (s *SurrealStore) Close(ctx context.Context) error {
	return s.db.Close(ctx)
}

func statementErr[T any](res *[]surrealdb.QueryResult[T]) error {
	if res == nil {
		return nil
	}
	for i, r := range *res {
		if r.Status != "" && r.Status != "OK" {
			return fmt.Errorf("surrealdb: statement %d: status %s", i, r.Status)
		}
	}
	return nil
}
