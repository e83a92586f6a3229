package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"astra/internal/domain"
	"astra/internal/vectorstore"
)

// Storage is a minimal REST client to one Qdrant collection. It
// assumes cosine distance over L2-normalized vectors. The widget
// subsystem runs a second Storage over its own collection.
type Storage struct {
	url        string
	apiKey     string
	collection string
	dimension  int
	batchSize  int
	client     *http.Client
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Dimension  int
	BatchSize  int
	Timeout    time.Duration
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 64
	}
	return &Storage{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
		batchSize:  batch,
		client:     &http.Client{Timeout: timeout},
	}
}

var errCollectionMissing = errors.New("collection not found")

// EnsureSchema verifies the collection exists with the configured
// dimensionality. A mismatched collection is destroyed and recreated;
// dimension changes invalidate all prior vectors, so the data loss is
// deliberate and logged.
func (s *Storage) EnsureSchema(ctx context.Context) error {
	existing, err := s.collectionDimension(ctx)
	if errors.Is(err, errCollectionMissing) {
		return s.createCollection(ctx)
	}
	if err != nil {
		return domain.Upstream("qdrant", err)
	}
	if existing != 0 && existing != s.dimension {
		slog.Warn("vector collection dimension mismatch, recreating; all stored vectors are lost",
			"collection", s.collection, "existing", existing, "required", s.dimension)
		if err := s.deleteCollection(ctx); err != nil {
			return domain.Upstream("qdrant", err)
		}
		return s.createCollection(ctx)
	}
	return nil
}

// UpsertBatch writes records in fixed-size batches. A collection-not-
// found response is treated as a race with schema creation: recreate
// and retry exactly once.
func (s *Storage) UpsertBatch(ctx context.Context, records []domain.VectorRecord) error {
	for start := 0; start < len(records); start += s.batchSize {
		end := start + s.batchSize
		if end > len(records) {
			end = len(records)
		}
		if err := s.upsert(ctx, records[start:end]); err != nil {
			if !errors.Is(err, errCollectionMissing) {
				return domain.Upstream("qdrant", err)
			}
			if err := s.EnsureSchema(ctx); err != nil {
				return err
			}
			if err := s.upsert(ctx, records[start:end]); err != nil {
				return domain.Upstream("qdrant", err)
			}
		}
	}
	return nil
}

// Search runs a scoped similarity search. The scope filter is
// mandatory; hits whose payload fails the scope re-check are dropped
// since filter semantics can differ across index HTTP paths.
func (s *Storage) Search(ctx context.Context, vector []float64, scope domain.SearchScope, k int) ([]domain.SearchHit, error) {
	field, value := scopeField(scope)
	if value == "" {
		return nil, errors.New("search scope is required")
	}
	if k <= 0 {
		k = 5
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
		"filter": map[string]any{
			"must": []map[string]any{
				{"key": field, "match": map[string]any{"value": value}},
			},
		},
	}
	var resp struct {
		Result []struct {
			Score   float64         `json:"score"`
			Payload json.RawMessage `json:"payload"`
		} `json:"result"`
	}
	if err := s.postJSON(ctx, fmt.Sprintf("%s/collections/%s/points/search", s.url, s.collection), req, &resp); err != nil {
		return nil, domain.Upstream("qdrant", err)
	}
	hits := make([]domain.SearchHit, 0, len(resp.Result))
	for _, r := range resp.Result {
		var payload domain.VectorPayload
		if err := json.Unmarshal(r.Payload, &payload); err != nil {
			continue
		}
		if scope.CrawlID != "" && payload.CrawlID != scope.CrawlID {
			continue
		}
		if scope.SiteID != "" && payload.SiteID != scope.SiteID {
			continue
		}
		hits = append(hits, domain.SearchHit{Payload: payload, Score: r.Score})
	}
	return hits, nil
}

// Delete removes the record for one logical key.
func (s *Storage) Delete(ctx context.Context, key string) error {
	body := map[string]any{"points": []uint64{vectorstore.StableID(key)}}
	if err := s.postJSON(ctx, fmt.Sprintf("%s/collections/%s/points/delete?wait=true", s.url, s.collection), body, nil); err != nil {
		return domain.Upstream("qdrant", err)
	}
	return nil
}

// DeleteSite removes every record for a widget site, used before a
// refresh so re-indexing replaces rather than merges.
func (s *Storage) DeleteSite(ctx context.Context, siteID string) error {
	body := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{
				{"key": "site_id", "match": map[string]any{"value": siteID}},
			},
		},
	}
	if err := s.postJSON(ctx, fmt.Sprintf("%s/collections/%s/points/delete?wait=true", s.url, s.collection), body, nil); err != nil {
		return domain.Upstream("qdrant", err)
	}
	return nil
}

func scopeField(scope domain.SearchScope) (string, string) {
	if scope.CrawlID != "" {
		return "crawl_id", scope.CrawlID
	}
	return "site_id", scope.SiteID
}

func (s *Storage) upsert(ctx context.Context, records []domain.VectorRecord) error {
	points := make([]map[string]any, len(records))
	for i, rec := range records {
		points[i] = map[string]any{
			"id":      vectorstore.StableID(rec.Key),
			"vector":  rec.Vector,
			"payload": rec.Payload,
		}
	}
	body := map[string]any{"points": points}
	return s.putJSON(ctx, fmt.Sprintf("%s/collections/%s/points?wait=true", s.url, s.collection), body)
}

func (s *Storage) collectionDimension(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/collections/%s", s.url, s.collection), nil)
	if err != nil {
		return 0, err
	}
	s.auth(req)
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return 0, errCollectionMissing
	}
	if resp.StatusCode >= 300 {
		return 0, fmt.Errorf("qdrant GET collection failed: %s", resp.Status)
	}
	var out struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, err
	}
	return out.Result.Config.Params.Vectors.Size, nil
}

func (s *Storage) createCollection(ctx context.Context) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     s.dimension,
			"distance": "Cosine",
		},
	}
	if err := s.putJSON(ctx, fmt.Sprintf("%s/collections/%s", s.url, s.collection), body); err != nil {
		return domain.Upstream("qdrant", err)
	}
	slog.Info("ensured vector collection", "collection", s.collection, "dimension", s.dimension)
	return nil
}

func (s *Storage) deleteCollection(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, fmt.Sprintf("%s/collections/%s", s.url, s.collection), nil)
	if err != nil {
		return err
	}
	s.auth(req)
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant DELETE collection failed: %s", resp.Status)
	}
	return nil
}

func (s *Storage) putJSON(ctx context.Context, url string, body any) error {
	data, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	s.auth(req)
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return errCollectionMissing
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant PUT %s failed: %s", url, resp.Status)
	}
	return nil
}

func (s *Storage) postJSON(ctx context.Context, url string, body any, out any) error {
	data, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	s.auth(req)
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant POST %s failed: %s", url, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (s *Storage) auth(req *http.Request) {
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
}
