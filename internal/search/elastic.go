package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ElasticConfig holds connection settings for the Elasticsearch engine.
type ElasticConfig struct {
	Addresses []string `yaml:"addresses" mapstructure:"addresses"`
	Index     string   `yaml:"index" mapstructure:"index"`
	APIKey    string   `yaml:"api_key" mapstructure:"api_key"`
}

// ElasticEngine implements Engine against an Elasticsearch cluster.
type ElasticEngine struct {
	client *elasticsearch.Client
	index  string
}

// esErrorResponse is used to decode Elasticsearch error responses.
type esErrorResponse struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
	Status int `json:"status"`
}

// esBulkResponse is the structure used to decode Elasticsearch bulk responses.
type esBulkResponse struct {
	Errors bool `json:"errors"`
	Items  []struct {
		Index struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"index"`
	} `json:"items"`
}

// NewElastic connects to the cluster and makes sure the index exists.
func NewElastic(cfg ElasticConfig) (*ElasticEngine, error) {
	if cfg.Index == "" {
		cfg.Index = "catalog_products"
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		APIKey:    cfg.APIKey,
	})
	if err != nil {
		return nil, eris.Wrap(err, "search: create elasticsearch client")
	}

	e := &ElasticEngine{client: client, index: cfg.Index}
	if err := e.ensureIndex(); err != nil {
		return nil, err
	}
	return e, nil
}

// Ping checks whether the cluster is reachable.
func (e *ElasticEngine) Ping(ctx context.Context) error {
	res, err := e.client.Ping(e.client.Ping.WithContext(ctx))
	if err != nil {
		return eris.Wrap(err, "search: ping")
	}
	defer res.Body.Close()

	if res.IsError() {
		return eris.Errorf("search: ping: unexpected status %s", res.Status())
	}
	return nil
}

func (e *ElasticEngine) ensureIndex() error {
	res, err := e.client.Indices.Exists([]string{e.index})
	if err != nil {
		return eris.Wrap(err, "search: check index exists")
	}
	defer res.Body.Close()

	if res.StatusCode == 200 {
		return nil
	}

	res, err = e.client.Indices.Create(e.index)
	if err != nil {
		return eris.Wrap(err, "search: create index")
	}
	defer res.Body.Close()

	if res.IsError() {
		return decodeESError(res.Body, res.Status(), "search: create index")
	}

	zap.L().Info("search index created", zap.String("index", e.index))
	return nil
}

// BulkUpsert replaces documents keyed by ObjectID using the bulk NDJSON API.
// Per-item failures are surfaced as one aggregated error.
func (e *ElasticEngine) BulkUpsert(ctx context.Context, objects []SearchIndexObject) error {
	if len(objects) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for i := range objects {
		action := map[string]any{
			"index": map[string]any{
				"_index": e.index,
				"_id":    objects[i].ObjectID,
			},
		}
		if err := json.NewEncoder(&buf).Encode(action); err != nil {
			return eris.Wrap(err, "search: encode bulk action")
		}
		if err := json.NewEncoder(&buf).Encode(objects[i]); err != nil {
			return eris.Wrap(err, "search: encode bulk document")
		}
	}

	res, err := e.client.Bulk(
		bytes.NewReader(buf.Bytes()),
		e.client.Bulk.WithIndex(e.index),
		e.client.Bulk.WithRefresh("true"),
		e.client.Bulk.WithContext(ctx),
	)
	if err != nil {
		return eris.Wrap(err, "search: bulk upsert")
	}
	defer res.Body.Close()

	if res.IsError() {
		return decodeESError(res.Body, res.Status(), "search: bulk upsert")
	}

	var bulkResp esBulkResponse
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return eris.Wrap(err, "search: decode bulk response")
	}

	if bulkResp.Errors {
		var msgs []string
		for _, item := range bulkResp.Items {
			if item.Index.Error.Type != "" {
				msgs = append(msgs, fmt.Sprintf("id=%s: %s: %s",
					item.Index.ID, item.Index.Error.Type, item.Index.Error.Reason))
			}
		}
		return eris.Errorf("search: bulk upsert partial errors: %s", strings.Join(msgs, "; "))
	}

	zap.L().Debug("bulk upserted index objects",
		zap.String("index", e.index),
		zap.Int("count", len(objects)),
	)
	return nil
}

// ApplySettings pushes the index schema: keyword mappings for facet fields,
// text mappings for searchable fields, and the ranking contract recorded in
// the mapping metadata.
func (e *ElasticEngine) ApplySettings(ctx context.Context, settings Settings) error {
	properties := make(map[string]any)
	for _, attr := range settings.SearchableAttributes {
		properties[attr] = map[string]any{"type": "text"}
	}
	// Facet fields need exact-match keyword semantics; they win when an
	// attribute is both searchable and faceted.
	for _, attr := range settings.FacetAttributes {
		properties[attr] = map[string]any{"type": "keyword"}
	}

	mapping := map[string]any{
		"properties": properties,
		"_meta": map[string]any{
			"custom_ranking":       settings.CustomRanking,
			"snippet_attributes":   settings.SnippetAttributes,
			"highlight_attributes": settings.HighlightAttributes,
		},
	}

	body, err := json.Marshal(mapping)
	if err != nil {
		return eris.Wrap(err, "search: marshal mapping")
	}

	res, err := e.client.Indices.PutMapping(
		[]string{e.index},
		bytes.NewReader(body),
		e.client.Indices.PutMapping.WithContext(ctx),
	)
	if err != nil {
		return eris.Wrap(err, "search: apply settings")
	}
	defer res.Body.Close()

	if res.IsError() {
		return decodeESError(res.Body, res.Status(), "search: apply settings")
	}

	zap.L().Info("search index settings applied", zap.String("index", e.index))
	return nil
}

// Purge removes every document from the index without touching the schema.
func (e *ElasticEngine) Purge(ctx context.Context) error {
	query := strings.NewReader(`{"query":{"match_all":{}}}`)
	res, err := e.client.DeleteByQuery(
		[]string{e.index},
		query,
		e.client.DeleteByQuery.WithContext(ctx),
		e.client.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return eris.Wrap(err, "search: purge")
	}
	defer res.Body.Close()

	if res.IsError() {
		return decodeESError(res.Body, res.Status(), "search: purge")
	}
	return nil
}

func decodeESError(body io.Reader, status, op string) error {
	var errResp esErrorResponse
	if err := json.NewDecoder(body).Decode(&errResp); err == nil && errResp.Error.Type != "" {
		return eris.Errorf("%s: %s: %s", op, errResp.Error.Type, errResp.Error.Reason)
	}
	return eris.Errorf("%s: unexpected status %s", op, status)
}
