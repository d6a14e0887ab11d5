package mirror

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
)

// Collections maintained by the outbox sync worker
const (
	CollUniversities = "universities"
	CollConnections  = "connections"
	CollAdminUsers   = "admin_users"
)

// ErrNotFound is returned when a document does not exist in the mirror
var ErrNotFound = errors.New("document not found")

// Query selects documents from a collection. Filter supports equality on top
// level fields and a single "$or" of equality filters.
type Query struct {
	Filter bson.M
	Limit  int64
	Offset int64
}

// Store is the document mirror. Documents are keyed by the relational id.
type Store interface {
	Upsert(ctx context.Context, collection string, id uint, doc interface{}) error
	Delete(ctx context.Context, collection string, id uint) error
	Get(ctx context.Context, collection string, id uint, out interface{}) error
	// Find decodes matching documents into out, which must point to a slice,
	// and returns the total number of matches ignoring Limit and Offset.
	Find(ctx context.Context, collection string, q Query, out interface{}) (int64, error)
}
