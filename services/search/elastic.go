package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esutil"
)

const profilesMapping = `{"settings":{"number_of_shards":1},"mappings":{"dynamic":"strict","properties":{
	"user_id":{"type":"long"},"university_id":{"type":"long"},"name":{"type":"text"},
	"headline":{"type":"text"},"bio":{"type":"text"},"company":{"type":"text","fields":{"raw":{"type":"keyword"}}},
	"job_title":{"type":"text"},"major":{"type":"text","fields":{"raw":{"type":"keyword"}}},
	"location":{"type":"text"},"graduation_year":{"type":"integer"},"skills":{"type":"keyword"},
	"is_mentor":{"type":"boolean"},"avatar_url":{"type":"keyword","index":false},"updated_at":{"type":"date"}
}}}`

const jobsMapping = `{"settings":{"number_of_shards":1},"mappings":{"dynamic":"strict","properties":{
	"university_id":{"type":"long"},"title":{"type":"text"},"company":{"type":"text","fields":{"raw":{"type":"keyword"}}},
	"location":{"type":"text"},"type":{"type":"keyword"},"description":{"type":"text"},"tags":{"type":"keyword"},
	"status":{"type":"keyword"},"salary_min":{"type":"integer"},"salary_max":{"type":"integer"},
	"deadline":{"type":"date"},"updated_at":{"type":"date"}
}}}`

// ElasticConfig holds the cluster address and optional basic auth
type ElasticConfig struct {
	URL      string
	Username string
	Password string
}

// ElasticEngine is the Elasticsearch backed Engine
type ElasticEngine struct {
	client *es.Client
}

// NewElasticEngine creates a client and checks the cluster answers
func NewElasticEngine(cfg ElasticConfig) (*ElasticEngine, error) {
	if cfg.URL == "" {
		return nil, errors.New("elasticsearch url is empty")
	}
	client, err := es.NewClient(es.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	res, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to reach elasticsearch: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch info: %s", res.Status())
	}

	log.Printf("[SYNC] Connected to Elasticsearch at %s", cfg.URL)
	return &ElasticEngine{client: client}, nil
}

// Ping checks the cluster answers
func (e *ElasticEngine) Ping(ctx context.Context) error {
	res, err := e.client.Ping(e.client.Ping.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch ping: %s", res.Status())
	}
	return nil
}

func (e *ElasticEngine) EnsureIndexes(ctx context.Context) error {
	if err := e.ensure(ctx, IdxProfiles, profilesMapping); err != nil {
		return err
	}
	return e.ensure(ctx, IdxJobs, jobsMapping)
}

func (e *ElasticEngine) ensure(ctx context.Context, index, body string) error {
	exists, err := e.client.Indices.Exists([]string{index}, e.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index %s: %w", index, err)
	}
	exists.Body.Close()
	if exists.StatusCode == 200 {
		return nil
	}

	res, err := e.client.Indices.Create(index,
		e.client.Indices.Create.WithBody(strings.NewReader(body)),
		e.client.Indices.Create.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("create index %s: %w", index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("create index %s: %s", index, res.Status())
	}
	log.Printf("[SYNC] Created index %s", index)
	return nil
}

func (e *ElasticEngine) NewBatch() (Batch, error) {
	bi, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Client:     e.client,
		FlushBytes: 5 << 20,
		NumWorkers: 2,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bulk indexer: %w", err)
	}
	return &elasticBatch{bi: bi}, nil
}

type elasticBatch struct {
	bi esutil.BulkIndexer
}

func (b *elasticBatch) Index(ctx context.Context, index, id string, body []byte, onFailure func(error)) error {
	return b.add(ctx, "index", index, id, body, onFailure)
}

func (b *elasticBatch) Delete(ctx context.Context, index, id string, onFailure func(error)) error {
	return b.add(ctx, "delete", index, id, nil, onFailure)
}

func (b *elasticBatch) add(ctx context.Context, action, index, id string, body []byte, onFailure func(error)) error {
	item := esutil.BulkIndexerItem{
		Action:     action,
		Index:      index,
		DocumentID: id,
		OnFailure: func(ctx context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
			// deleting a document that was never indexed is not a failure
			if action == "delete" && res.Status == 404 {
				return
			}
			if onFailure == nil {
				return
			}
			switch {
			case err != nil:
				onFailure(err)
			case res.Error.Reason != "":
				onFailure(fmt.Errorf("%s: %s", res.Error.Type, res.Error.Reason))
			default:
				onFailure(fmt.Errorf("status=%d failed to %s", res.Status, action))
			}
		},
	}
	if len(body) > 0 {
		item.Body = bytes.NewReader(body)
	}
	return b.bi.Add(ctx, item)
}

func (b *elasticBatch) Close(ctx context.Context) (BatchStats, error) {
	if err := b.bi.Close(ctx); err != nil {
		return BatchStats{}, err
	}
	s := b.bi.Stats()
	return BatchStats{Indexed: s.NumIndexed, Deleted: s.NumDeleted, Failed: s.NumFailed}, nil
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID     string          `json:"_id"`
			Score  float64         `json:"_score"`
			Source json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (e *ElasticEngine) Search(ctx context.Context, q Query) (*Result, error) {
	body, err := json.Marshal(buildQuery(q))
	if err != nil {
		return nil, err
	}

	res, err := e.client.Search(
		e.client.Search.WithContext(ctx),
		e.client.Search.WithIndex(q.Index),
		e.client.Search.WithBody(bytes.NewReader(body)),
		e.client.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", q.Index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, fmt.Errorf("search %s: %s %s", q.Index, res.Status(), msg)
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	out := &Result{Total: parsed.Hits.Total.Value, Hits: make([]Hit, 0, len(parsed.Hits.Hits))}
	for _, h := range parsed.Hits.Hits {
		out.Hits = append(out.Hits, Hit{ID: h.ID, Score: h.Score, Source: h.Source})
	}
	return out, nil
}

// buildQuery renders the request body: a boosted multi_match over the
// index's text fields, or match_all for an empty query, with term filters.
func buildQuery(q Query) map[string]interface{} {
	var must interface{}
	if strings.TrimSpace(q.Text) == "" {
		must = map[string]interface{}{"match_all": map[string]interface{}{}}
	} else {
		must = map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":     q.Text,
				"fields":    searchFields[q.Index],
				"fuzziness": "AUTO",
			},
		}
	}

	filters := make([]interface{}, 0, len(q.Filters))
	for field, value := range q.Filters {
		filters = append(filters, map[string]interface{}{
			"term": map[string]interface{}{field: value},
		})
	}

	return map[string]interface{}{
		"from": q.Offset,
		"size": q.Limit,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must":   must,
				"filter": filters,
			},
		},
	}
}
