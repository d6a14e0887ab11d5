package search

import (
	"context"
	"encoding/json"
	"errors"
)

// Index names, versioned so mappings can change with a reindex
const (
	IdxProfiles = "profiles_v1"
	IdxJobs     = "jobs_v1"
)

// ErrUnknownIndex is returned for a search type that has no index
var ErrUnknownIndex = errors.New("unknown search index")

// IndexForType maps the public search type to an index name
func IndexForType(t string) (string, error) {
	switch t {
	case "", "profiles":
		return IdxProfiles, nil
	case "jobs":
		return IdxJobs, nil
	}
	return "", ErrUnknownIndex
}

// Query is a full text search against one index. Filters are exact term
// matches on keyword fields.
type Query struct {
	Index   string
	Text    string
	Filters map[string]interface{}
	Limit   int
	Offset  int
}

// Hit is one matching document
type Hit struct {
	ID     string          `json:"id"`
	Score  float64         `json:"score"`
	Source json.RawMessage `json:"source"`
}

// Result is a page of hits with the total match count
type Result struct {
	Total int64 `json:"total"`
	Hits  []Hit `json:"hits"`
}

// BatchStats summarises a closed batch
type BatchStats struct {
	Indexed uint64
	Deleted uint64
	Failed  uint64
}

// Batch accumulates index and delete operations. onFailure runs for items the
// engine rejects after Close has flushed them.
type Batch interface {
	Index(ctx context.Context, index, id string, body []byte, onFailure func(error)) error
	Delete(ctx context.Context, index, id string, onFailure func(error)) error
	Close(ctx context.Context) (BatchStats, error)
}

// Engine is the search backend used by the sync worker and the search API
type Engine interface {
	EnsureIndexes(ctx context.Context) error
	NewBatch() (Batch, error)
	Search(ctx context.Context, q Query) (*Result, error)
}
