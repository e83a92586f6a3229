package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"time"

	"astra/internal/domain"
)

// Client calls a HuggingFace-style feature-extraction endpoint and
// implements the Embedder interface. Inputs are truncated, batched by
// aggregate size, retried with backoff and L2-normalized on return.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	dimension  int
	batchSize  int
	client     *http.Client
	maxRetries int
}

// Config configures the embeddings client.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Dimension int
	BatchSize int
	Timeout   time.Duration
}

// Character budget per text; protects against provider token limits.
const maxTextChars = 4000

// NewClient creates a new embeddings client using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	t := cfg.Timeout
	if t == 0 {
		t = 30 * time.Second
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 32
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     key,
		model:      cfg.Model,
		dimension:  cfg.Dimension,
		batchSize:  batch,
		client:     &http.Client{Timeout: t},
		maxRetries: 5,
	}, nil
}

// Dimension returns the dimensionality of the produced embedding vectors.
func (c *Client) Dimension() int { return c.dimension }

// EmbedBatch embeds texts one-to-one and order-preserving. Partial
// provider failure fails the whole call.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	truncated := make([]string, len(texts))
	total := 0
	for i, t := range texts {
		if len(t) > maxTextChars {
			t = t[:maxTextChars]
		}
		truncated[i] = t
		total += len(t)
	}

	size := c.subBatchSize(total)
	out := make([][]float64, 0, len(truncated))
	for start := 0; start < len(truncated); start += size {
		end := start + size
		if end > len(truncated) {
			end = len(truncated)
		}
		vectors, err := c.embedSubBatch(ctx, truncated[start:end])
		if err != nil {
			return nil, domain.Upstream("embeddings", err)
		}
		out = append(out, vectors...)
	}

	for _, v := range out {
		normalize(v)
	}
	if c.dimension == 0 && len(out) > 0 {
		c.dimension = len(out[0])
	}
	return out, nil
}

// EmbedQuery embeds a single query through the batch path.
func (c *Client) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	vectors, err := c.EmbedBatch(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// subBatchSize shrinks the batch as aggregate text volume grows to
// bound individual request size.
func (c *Client) subBatchSize(totalChars int) int {
	size := c.batchSize
	switch {
	case totalChars > 400_000:
		size /= 8
	case totalChars > 160_000:
		size /= 4
	case totalChars > 40_000:
		size /= 2
	}
	if size < 1 {
		size = 1
	}
	return size
}

// embedSubBatch tries one batched call and falls back to per-item
// calls when the provider rejects the batch.
func (c *Client) embedSubBatch(ctx context.Context, texts []string) ([][]float64, error) {
	vectors, err := c.call(ctx, texts)
	if err == nil {
		return vectors, nil
	}
	out := make([][]float64, 0, len(texts))
	for _, t := range texts {
		single, serr := c.call(ctx, []string{t})
		if serr != nil {
			return nil, serr
		}
		out = append(out, single...)
	}
	return out, nil
}

func (c *Client) call(ctx context.Context, inputs []string) ([][]float64, error) {
	url := fmt.Sprintf("%s/%s", c.baseURL, c.model)
	body, _ := json.Marshal(map[string]any{"inputs": inputs})

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay(attempt - 1)):
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if secs, err := strconv.Atoi(ra); err == nil {
					_ = resp.Body.Close()
					lastErr = fmt.Errorf("embeddings request failed: %s", resp.Status)
					select {
					case <-ctx.Done():
						return nil, ctx.Err()
					case <-time.After(time.Duration(secs) * time.Second):
					}
					continue
				}
			}
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("embeddings request failed: %s", resp.Status)
			continue
		}
		if resp.StatusCode >= 300 {
			defer resp.Body.Close()
			return nil, fmt.Errorf("embeddings request failed: %s", resp.Status)
		}

		payload, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		vectors, err := decodeVectors(payload, len(inputs))
		if err != nil {
			lastErr = err
			continue
		}
		return vectors, nil
	}
	return nil, lastErr
}

// decodeVectors accepts either a matrix or, for one input, a bare vector.
func decodeVectors(payload []byte, n int) ([][]float64, error) {
	var matrix [][]float64
	if err := json.Unmarshal(payload, &matrix); err == nil && len(matrix) == n {
		return matrix, nil
	}
	if n == 1 {
		var single []float64
		if err := json.Unmarshal(payload, &single); err == nil && len(single) > 0 {
			return [][]float64{single}, nil
		}
	}
	return nil, fmt.Errorf("unexpected embeddings response shape")
}

func normalize(v []float64) {
	sum := 0.0
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range v {
		v[i] /= norm
	}
}

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := 200 * time.Millisecond
	// exponential backoff capped at 5s, plus jitter
	d := base << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d + time.Duration(rand.Int63n(int64(250*time.Millisecond)))
}
