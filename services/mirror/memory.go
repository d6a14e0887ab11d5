package mirror

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
)

// MemoryStore is an in-process Store used in development without MongoDB
// and in tests. Documents round-trip through BSON so decoding matches Mongo.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[uint]bson.Raw
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[uint]bson.Raw)}
}

func (m *MemoryStore) Upsert(_ context.Context, collection string, id uint, doc interface{}) error {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal %s/%d: %w", collection, id, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[collection] == nil {
		m.data[collection] = make(map[uint]bson.Raw)
	}
	m.data[collection][id] = raw
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, collection string, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data[collection], id)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, collection string, id uint, out interface{}) error {
	m.mu.RLock()
	raw, ok := m.data[collection][id]
	m.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	return bson.Unmarshal(raw, out)
}

func (m *MemoryStore) Find(_ context.Context, collection string, q Query, out interface{}) (int64, error) {
	m.mu.RLock()
	ids := make([]uint, 0, len(m.data[collection]))
	for id := range m.data[collection] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var matched []bson.Raw
	for _, id := range ids {
		raw := m.data[collection][id]
		var doc bson.M
		if err := bson.Unmarshal(raw, &doc); err != nil {
			m.mu.RUnlock()
			return 0, err
		}
		if matches(doc, q.Filter) {
			matched = append(matched, raw)
		}
	}
	m.mu.RUnlock()

	total := int64(len(matched))
	start := q.Offset
	if start > total {
		start = total
	}
	end := total
	if q.Limit > 0 && start+q.Limit < end {
		end = start + q.Limit
	}
	page := matched[start:end]
	if page == nil {
		page = []bson.Raw{}
	}

	wrapped, err := bson.Marshal(bson.M{"v": page})
	if err != nil {
		return 0, err
	}
	if err := bson.Raw(wrapped).Lookup("v").Unmarshal(out); err != nil {
		return 0, err
	}
	return total, nil
}

// Len returns the number of documents in a collection
func (m *MemoryStore) Len(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data[collection])
}

func matches(doc bson.M, filter bson.M) bool {
	for key, want := range filter {
		if key == "$or" {
			alts, ok := want.([]bson.M)
			if !ok {
				return false
			}
			found := false
			for _, alt := range alts {
				if matches(doc, alt) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
			continue
		}
		// numbers decode as int32 or int64 depending on size
		if fmt.Sprint(doc[key]) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}
