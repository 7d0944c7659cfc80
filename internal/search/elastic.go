package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/elastic/go-elasticsearch/v9"

	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/models"
)

type Config struct {
	URL      string
	Username string
	Password string
	Index    string
}

// ElasticIndex keeps a searchable copy of every product. The database stays
// the source of truth; only ids come back from a search.
type ElasticIndex struct {
	es    *elasticsearch.Client
	index string
}

type document struct {
	ID          uint   `json:"id"`
	UserID      uint   `json:"user_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

const indexMapping = `{
  "mappings": {
    "properties": {
      "id":          {"type": "long"},
      "user_id":     {"type": "long"},
      "name":        {"type": "text"},
      "description": {"type": "text"}
    }
  }
}`

func NewElasticIndex(cfg Config) (*ElasticIndex, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("elastic: url is empty")
	}
	if cfg.Index == "" {
		cfg.Index = "products"
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("elastic: new client: %w", err)
	}
	return &ElasticIndex{es: client, index: cfg.Index}, nil
}

// EnsureIndex creates the index with its mapping when it does not exist yet.
func (x *ElasticIndex) EnsureIndex(ctx context.Context) error {
	res, err := x.es.Indices.Exists([]string{x.index}, x.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elastic: index exists: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	res, err = x.es.Indices.Create(x.index,
		x.es.Indices.Create.WithContext(ctx),
		x.es.Indices.Create.WithBody(bytes.NewReader([]byte(indexMapping))),
	)
	if err != nil {
		return fmt.Errorf("elastic: create index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError("create index", res.Status(), res.Body)
	}
	return nil
}

func (x *ElasticIndex) IndexProduct(ctx context.Context, p *models.Product) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(document{
		ID:          p.ID,
		UserID:      p.UserID,
		Name:        p.Name,
		Description: p.Description,
	}); err != nil {
		return err
	}

	res, err := x.es.Index(x.index, &buf,
		x.es.Index.WithContext(ctx),
		x.es.Index.WithDocumentID(strconv.FormatUint(uint64(p.ID), 10)),
	)
	if err != nil {
		return fmt.Errorf("elastic: index product: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError("index product", res.Status(), res.Body)
	}
	return nil
}

func (x *ElasticIndex) DeleteProduct(ctx context.Context, id uint) error {
	res, err := x.es.Delete(x.index, strconv.FormatUint(uint64(id), 10), x.es.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elastic: delete product: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return responseError("delete product", res.Status(), res.Body)
	}
	return nil
}

// DeleteUserProducts drops every document owned by userID.
func (x *ElasticIndex) DeleteUserProducts(ctx context.Context, userID uint) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(map[string]any{
		"query": map[string]any{
			"term": map[string]any{"user_id": userID},
		},
	}); err != nil {
		return err
	}

	res, err := x.es.DeleteByQuery([]string{x.index}, &buf,
		x.es.DeleteByQuery.WithContext(ctx),
		x.es.DeleteByQuery.WithConflicts("proceed"),
		x.es.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return fmt.Errorf("elastic: delete user products: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return responseError("delete user products", res.Status(), res.Body)
	}
	return nil
}

// Search runs a fuzzy multi_match limited to the owner's products.
func (x *ElasticIndex) Search(ctx context.Context, userID uint, query string, from, size int) (int64, []uint, error) {
	body := map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"must": map[string]any{
					"multi_match": map[string]any{
						"query":     query,
						"fields":    []string{"name^2", "description"},
						"fuzziness": "AUTO",
					},
				},
				"filter": map[string]any{
					"term": map[string]any{"user_id": userID},
				},
			},
		},
		"_source": []string{"id"},
		"from":    from,
		"size":    size,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return 0, nil, err
	}

	res, err := x.es.Search(
		x.es.Search.WithContext(ctx),
		x.es.Search.WithIndex(x.index),
		x.es.Search.WithBody(&buf),
	)
	if err != nil {
		return 0, nil, fmt.Errorf("elastic: search: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, nil, responseError("search", res.Status(), res.Body)
	}

	var r struct {
		Hits struct {
			Total struct{ Value int64 } `json:"total"`
			Hits  []struct {
				Source document `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return 0, nil, fmt.Errorf("elastic: decode search response: %w", err)
	}

	ids := make([]uint, len(r.Hits.Hits))
	for i, hit := range r.Hits.Hits {
		ids[i] = hit.Source.ID
	}
	return r.Hits.Total.Value, ids, nil
}

func responseError(op, status string, body io.Reader) error {
	msg, _ := io.ReadAll(io.LimitReader(body, 1024))
	return fmt.Errorf("elastic: %s: %s: %s", op, status, bytes.TrimSpace(msg))
}
