package memory

import (
	"context"
	"sort"
	"sync"

	"astra/internal/domain"
	"astra/internal/vectorstore"
)

// Storage is an in-memory vector index using brute-force cosine
// similarity, keyed by the same stable ids as the real index so
// upserts stay idempotent. Useful for development and tests.
type Storage struct {
	mu      sync.RWMutex
	records map[uint64]domain.VectorRecord
}

func NewStorage() *Storage {
	return &Storage{records: make(map[uint64]domain.VectorRecord)}
}

func (s *Storage) EnsureSchema(ctx context.Context) error { return nil }

func (s *Storage) UpsertBatch(ctx context.Context, records []domain.VectorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range records {
		s.records[vectorstore.StableID(rec.Key)] = rec
	}
	return nil
}

func (s *Storage) Search(ctx context.Context, vector []float64, scope domain.SearchScope, k int) ([]domain.SearchHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if k <= 0 {
		k = 5
	}
	hits := make([]domain.SearchHit, 0)
	for _, rec := range s.records {
		if scope.CrawlID != "" && rec.Payload.CrawlID != scope.CrawlID {
			continue
		}
		if scope.SiteID != "" && rec.Payload.SiteID != scope.SiteID {
			continue
		}
		hits = append(hits, domain.SearchHit{Payload: rec.Payload, Score: dot(rec.Vector, vector)})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

func (s *Storage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, vectorstore.StableID(key))
	return nil
}

func (s *Storage) DeleteSite(ctx context.Context, siteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rec := range s.records {
		if rec.Payload.SiteID == siteID {
			delete(s.records, id)
		}
	}
	return nil
}

// Len reports the number of stored records.
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func dot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
