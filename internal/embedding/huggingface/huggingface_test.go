package huggingface

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	t.Setenv("TEST_HF_KEY", "secret")
	c, err := NewClient(Config{
		BaseURL:   srv.URL,
		APIKeyEnv: "TEST_HF_KEY",
		Model:     "test-model",
		BatchSize: 32,
		Timeout:   5 * time.Second,
	})
	require.NoError(t, err)
	return c, srv
}

func vectorFor(text string) []float64 {
	switch {
	case strings.HasPrefix(text, "alpha"):
		return []float64{3, 0, 0}
	case strings.HasPrefix(text, "beta"):
		return []float64{0, 5, 0}
	default:
		return []float64{0, 0, 7}
	}
}

func embedHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Inputs []string `json:"inputs"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		out := make([][]float64, len(body.Inputs))
		for i, in := range body.Inputs {
			out[i] = vectorFor(in)
		}
		_ = json.NewEncoder(w).Encode(out)
	})
}

func TestEmbedBatchOrderAndNormalization(t *testing.T) {
	c, _ := newTestClient(t, embedHandler(t))
	vectors, err := c.EmbedBatch(context.Background(), []string{"alpha", "beta", "gamma"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)

	assert.InDelta(t, 1.0, vectors[0][0], 1e-9)
	assert.InDelta(t, 1.0, vectors[1][1], 1e-9)
	assert.InDelta(t, 1.0, vectors[2][2], 1e-9)
	for _, v := range vectors {
		norm := 0.0
		for _, x := range v {
			norm += x * x
		}
		assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-9)
	}
	assert.Equal(t, 3, c.Dimension())
}

func TestEmbedQueryMatchesBatch(t *testing.T) {
	c, _ := newTestClient(t, embedHandler(t))
	batch, err := c.EmbedBatch(context.Background(), []string{"alpha", "beta"})
	require.NoError(t, err)
	one, err := c.EmbedQuery(context.Background(), "alpha")
	require.NoError(t, err)
	assert.Equal(t, batch[0], one)
}

func TestEmbedRetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	inner := embedHandler(t)
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		inner.ServeHTTP(w, r)
	}))
	vectors, err := c.EmbedBatch(context.Background(), []string{"alpha"})
	require.NoError(t, err)
	require.Len(t, vectors, 1)
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestEmbedFallsBackToSingletons(t *testing.T) {
	_ = embedHandler(t)
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Inputs []string `json:"inputs"`
		}
		data := json.NewDecoder(r.Body)
		require.NoError(t, data.Decode(&body))
		if len(body.Inputs) > 1 {
			http.Error(w, "batch not supported", http.StatusBadRequest)
			return
		}
		out := [][]float64{vectorFor(body.Inputs[0])}
		_ = json.NewEncoder(w).Encode(out)
	}))
	vectors, err := c.EmbedBatch(context.Background(), []string{"alpha", "beta"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.InDelta(t, 1.0, vectors[0][0], 1e-9)
	assert.InDelta(t, 1.0, vectors[1][1], 1e-9)
}

func TestEmbedTruncatesOversizedText(t *testing.T) {
	var seen atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Inputs []string `json:"inputs"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		for _, in := range body.Inputs {
			seen.Store(int32(len(in)))
		}
		_ = json.NewEncoder(w).Encode([][]float64{{1, 0}})
	}))
	_, err := c.EmbedBatch(context.Background(), []string{strings.Repeat("x", 10_000)})
	require.NoError(t, err)
	assert.Equal(t, int32(maxTextChars), seen.Load())
}

func TestEmbedEmptyInput(t *testing.T) {
	c, _ := newTestClient(t, embedHandler(t))
	vectors, err := c.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}

func TestSubBatchSizeShrinksWithVolume(t *testing.T) {
	c, _ := newTestClient(t, embedHandler(t))
	assert.Equal(t, 32, c.subBatchSize(10_000))
	assert.Equal(t, 16, c.subBatchSize(50_000))
	assert.Equal(t, 8, c.subBatchSize(200_000))
	assert.Equal(t, 4, c.subBatchSize(500_000))
}
