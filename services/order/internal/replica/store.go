// Package replica holds the read-optimized mirror of orders and menu data.
// Records are keyed by the relational id, scoped by tenant, and versioned:
// a write older than the stored version is ignored, so replays and
// out-of-order arrivals converge on the newest state.
package replica

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("replica: record not found")

type Kind string

const (
	KindOrder     Kind = "order"
	KindOrderItem Kind = "order_item"
	KindMenuItem  Kind = "menu_item"
	KindTable     Kind = "table"
	KindPayment   Kind = "payment"
)

var Kinds = []Kind{KindOrder, KindOrderItem, KindMenuItem, KindTable, KindPayment}

const (
	FieldID      = "postgres_id"
	FieldTenant  = "restaurant_id"
	FieldVersion = "version"
	FieldDeleted = "deleted"
)

type Record struct {
	Kind    Kind
	ID      string
	Tenant  string
	Version int64
	Deleted bool
	Fields  map[string]any
}

type Store interface {
	// Upsert writes rec unless the store already holds a newer version.
	Upsert(ctx context.Context, rec Record) error
	// Get returns ErrNotFound for missing, tombstoned or foreign-tenant records.
	Get(ctx context.Context, kind Kind, tenant, id string) (*Record, error)
	// Query returns the live records of kind whose field equals value.
	Query(ctx context.Context, kind Kind, tenant, field, value string) ([]Record, error)
	// Delete tombstones the record at version.
	Delete(ctx context.Context, kind Kind, tenant, id string, version int64) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// document flattens rec into the stored shape.
func document(rec Record) map[string]any {
	doc := make(map[string]any, len(rec.Fields)+4)
	for k, v := range rec.Fields {
		doc[k] = v
	}
	doc[FieldID] = rec.ID
	doc[FieldTenant] = rec.Tenant
	doc[FieldVersion] = rec.Version
	doc[FieldDeleted] = rec.Deleted
	return doc
}

// fromDocument splits a stored document back into a Record.
func fromDocument(kind Kind, doc map[string]any) Record {
	rec := Record{Kind: kind, Fields: make(map[string]any, len(doc))}
	for k, v := range doc {
		switch k {
		case FieldVersion:
			rec.Version = toInt64(v)
		case FieldDeleted:
			rec.Deleted, _ = v.(bool)
		case "id":
		default:
			rec.Fields[k] = v
		}
	}
	rec.ID, _ = doc[FieldID].(string)
	rec.Tenant, _ = doc[FieldTenant].(string)
	return rec
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case uint64:
		return int64(n)
	case uint32:
		return int64(n)
	case float64:
		return int64(n)
	case interface{ Int64() (int64, error) }:
		i, _ := n.Int64()
		return i
	}
	return 0
}
