package replica

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/elastic/go-elasticsearch/v9/esapi"
)

const maxQueryHits = 1000

// ElasticStore keeps one index per kind. Versions are passed as external
// versions with version_type=external_gte, so Elasticsearch itself rejects
// stale writes with 409.
type ElasticStore struct {
	es     *elasticsearch.Client
	prefix string
}

type ElasticConfig struct {
	Addresses   []string
	Username    string
	Password    string
	IndexPrefix string
}

func NewElasticStore(cfg ElasticConfig) (*ElasticStore, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: new client: %w", err)
	}
	prefix := cfg.IndexPrefix
	if prefix == "" {
		prefix = "replica"
	}
	return &ElasticStore{es: client, prefix: prefix}, nil
}

func (s *ElasticStore) index(kind Kind) string {
	return s.prefix + "_" + string(kind)
}

// indexMapping stores every string as keyword so id lookups are exact term
// matches.
const indexMapping = `{
  "mappings": {
    "dynamic_templates": [
      {"strings": {"match_mapping_type": "string", "mapping": {"type": "keyword"}}}
    ],
    "properties": {
      "postgres_id":   {"type": "keyword"},
      "restaurant_id": {"type": "keyword"},
      "version":       {"type": "long"},
      "deleted":       {"type": "boolean"}
    }
  }
}`

// EnsureIndices creates missing indices. It is safe to call on every start.
func (s *ElasticStore) EnsureIndices(ctx context.Context) error {
	for _, kind := range Kinds {
		name := s.index(kind)
		res, err := s.es.Indices.Exists([]string{name}, s.es.Indices.Exists.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("elasticsearch: index exists %s: %w", name, err)
		}
		drain(res)
		if res.StatusCode == http.StatusOK {
			continue
		}

		res, err = s.es.Indices.Create(name,
			s.es.Indices.Create.WithContext(ctx),
			s.es.Indices.Create.WithBody(strings.NewReader(indexMapping)),
		)
		if err != nil {
			return fmt.Errorf("elasticsearch: create index %s: %w", name, err)
		}
		if res.IsError() && !strings.Contains(readError(res), "resource_already_exists_exception") {
			return fmt.Errorf("elasticsearch: create index %s: %s", name, res.Status())
		}
		drain(res)
	}
	return nil
}

func (s *ElasticStore) write(ctx context.Context, rec Record) error {
	body, err := json.Marshal(document(rec))
	if err != nil {
		return fmt.Errorf("elasticsearch: marshal %s %s: %w", rec.Kind, rec.ID, err)
	}

	res, err := s.es.Index(s.index(rec.Kind), bytes.NewReader(body),
		s.es.Index.WithContext(ctx),
		s.es.Index.WithDocumentID(rec.ID),
		s.es.Index.WithVersion(int(rec.Version)),
		s.es.Index.WithVersionType("external_gte"),
		s.es.Index.WithRefresh("wait_for"),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch: index %s %s: %w", rec.Kind, rec.ID, err)
	}
	defer drain(res)

	if res.StatusCode == http.StatusConflict {
		// a newer version is already stored
		return nil
	}
	if res.IsError() {
		return fmt.Errorf("elasticsearch: index %s %s: %s: %s", rec.Kind, rec.ID, res.Status(), readError(res))
	}
	return nil
}

func (s *ElasticStore) Upsert(ctx context.Context, rec Record) error {
	rec.Deleted = false
	return s.write(ctx, rec)
}

func (s *ElasticStore) Delete(ctx context.Context, kind Kind, tenant, id string, version int64) error {
	return s.write(ctx, Record{Kind: kind, ID: id, Tenant: tenant, Version: version, Deleted: true})
}

func (s *ElasticStore) Get(ctx context.Context, kind Kind, tenant, id string) (*Record, error) {
	res, err := s.es.Get(s.index(kind), id, s.es.Get.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: get %s %s: %w", kind, id, err)
	}
	defer drain(res)

	if res.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch: get %s %s: %s", kind, id, res.Status())
	}

	var doc struct {
		Found  bool           `json:"found"`
		Source map[string]any `json:"_source"`
	}
	if err := decode(res.Body, &doc); err != nil {
		return nil, fmt.Errorf("elasticsearch: decode %s %s: %w", kind, id, err)
	}
	if !doc.Found {
		return nil, ErrNotFound
	}

	rec := fromDocument(kind, doc.Source)
	if rec.Deleted || rec.Tenant != tenant {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (s *ElasticStore) Query(ctx context.Context, kind Kind, tenant, field, value string) ([]Record, error) {
	query := map[string]any{
		"size": maxQueryHits,
		"query": map[string]any{
			"bool": map[string]any{
				"filter": []any{
					map[string]any{"term": map[string]any{FieldTenant: tenant}},
					map[string]any{"term": map[string]any{field: value}},
				},
				"must_not": []any{
					map[string]any{"term": map[string]any{FieldDeleted: true}},
				},
			},
		},
		"sort": []any{map[string]any{FieldID: "asc"}},
	}
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}

	res, err := s.es.Search(
		s.es.Search.WithContext(ctx),
		s.es.Search.WithIndex(s.index(kind)),
		s.es.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: search %s: %w", kind, err)
	}
	defer drain(res)
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch: search %s: %s: %s", kind, res.Status(), readError(res))
	}

	var out struct {
		Hits struct {
			Hits []struct {
				Source map[string]any `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := decode(res.Body, &out); err != nil {
		return nil, fmt.Errorf("elasticsearch: decode search %s: %w", kind, err)
	}

	recs := make([]Record, 0, len(out.Hits.Hits))
	for _, h := range out.Hits.Hits {
		recs = append(recs, fromDocument(kind, h.Source))
	}
	return recs, nil
}

func (s *ElasticStore) Ping(ctx context.Context) error {
	res, err := s.es.Ping(s.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch: ping: %w", err)
	}
	defer drain(res)
	if res.IsError() {
		return fmt.Errorf("elasticsearch: ping: %s", res.Status())
	}
	return nil
}

// Close is a no-op: the client holds only pooled HTTP connections.
func (s *ElasticStore) Close(ctx context.Context) error {
	return nil
}

func decode(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	return dec.Decode(v)
}

func readError(res *esapi.Response) string {
	b, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	return string(b)
}

func drain(res *esapi.Response) {
	if res == nil || res.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, res.Body)
	_ = res.Body.Close()
}
