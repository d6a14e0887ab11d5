package search

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// MemoryEngine is an in-process Engine for tests and local runs without a
// cluster. Text matching is a case-insensitive substring match on the source.
type MemoryEngine struct {
	mu   sync.RWMutex
	docs map[string]map[string][]byte
	// Fail makes every batch item fail with this error
	Fail error
}

func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{docs: make(map[string]map[string][]byte)}
}

func (m *MemoryEngine) EnsureIndexes(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, idx := range []string{IdxProfiles, IdxJobs} {
		if m.docs[idx] == nil {
			m.docs[idx] = make(map[string][]byte)
		}
	}
	return nil
}

func (m *MemoryEngine) NewBatch() (Batch, error) {
	return &memoryBatch{engine: m}, nil
}

// Doc returns the stored source for a document
func (m *MemoryEngine) Doc(index, id string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.docs[index][id]
	return b, ok
}

func (m *MemoryEngine) Search(_ context.Context, q Query) (*Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.docs[q.Index]))
	for id := range m.docs[q.Index] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, _ := strconv.Atoi(ids[i])
		b, _ := strconv.Atoi(ids[j])
		return a < b
	})

	text := strings.ToLower(strings.TrimSpace(q.Text))
	var hits []Hit
	for _, id := range ids {
		src := m.docs[q.Index][id]
		if text != "" && !strings.Contains(strings.ToLower(string(src)), text) {
			continue
		}
		if !matchesFilters(src, q.Filters) {
			continue
		}
		hits = append(hits, Hit{ID: id, Score: 1, Source: json.RawMessage(src)})
	}

	res := &Result{Total: int64(len(hits)), Hits: []Hit{}}
	start := q.Offset
	if start > len(hits) {
		start = len(hits)
	}
	end := len(hits)
	if q.Limit > 0 && start+q.Limit < end {
		end = start + q.Limit
	}
	res.Hits = append(res.Hits, hits[start:end]...)
	return res, nil
}

func matchesFilters(src []byte, filters map[string]interface{}) bool {
	if len(filters) == 0 {
		return true
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(src, &doc); err != nil {
		return false
	}
	for field, want := range filters {
		if fmt.Sprint(doc[field]) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

type memoryBatch struct {
	engine *MemoryEngine
	stats  BatchStats
}

func (b *memoryBatch) Index(_ context.Context, index, id string, body []byte, onFailure func(error)) error {
	if b.engine.Fail != nil {
		b.fail(onFailure)
		return nil
	}
	b.engine.mu.Lock()
	if b.engine.docs[index] == nil {
		b.engine.docs[index] = make(map[string][]byte)
	}
	b.engine.docs[index][id] = append([]byte(nil), body...)
	b.engine.mu.Unlock()
	b.stats.Indexed++
	return nil
}

func (b *memoryBatch) Delete(_ context.Context, index, id string, onFailure func(error)) error {
	if b.engine.Fail != nil {
		b.fail(onFailure)
		return nil
	}
	b.engine.mu.Lock()
	delete(b.engine.docs[index], id)
	b.engine.mu.Unlock()
	b.stats.Deleted++
	return nil
}

func (b *memoryBatch) fail(onFailure func(error)) {
	b.stats.Failed++
	if onFailure != nil {
		onFailure(b.engine.Fail)
	}
}

func (b *memoryBatch) Close(context.Context) (BatchStats, error) {
	return b.stats, nil
}
