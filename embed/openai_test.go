package embed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/hupe1980/vectable/distance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbeddingResponse builds a minimal OpenAI-compatible embedding
// response. Items are emitted in reverse order.
func fakeEmbeddingResponse(dim int, texts []string) []byte {
	type embItem struct {
		Object    string    `json:"object"`
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	}
	type usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	}
	type resp struct {
		Object string    `json:"object"`
		Model  string    `json:"model"`
		Data   []embItem `json:"data"`
		Usage  usage     `json:"usage"`
	}

	data := make([]embItem, 0, len(texts))
	for i := len(texts) - 1; i >= 0; i-- {
		vec := make([]float64, dim)
		for j := range vec {
			vec[j] = float64(len(texts[i])) * 0.01 * float64(j+1)
		}
		data = append(data, embItem{Object: "embedding", Index: i, Embedding: vec})
	}

	b, _ := json.Marshal(resp{
		Object: "list",
		Model:  "test-model",
		Data:   data,
		Usage:  usage{PromptTokens: 10, TotalTokens: 10},
	})
	return b
}

type fakeServer struct {
	*httptest.Server
	calls atomic.Int32
}

// newFakeServer creates a test HTTP server that returns fake embeddings.
func newFakeServer(t *testing.T, dim int) *fakeServer {
	t.Helper()
	fs := &fakeServer{}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.calls.Add(1)
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req struct {
			Input any `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var texts []string
		switch v := req.Input.(type) {
		case string:
			texts = []string{v}
		case []any:
			for _, item := range v {
				texts = append(texts, fmt.Sprint(item))
			}
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(fakeEmbeddingResponse(dim, texts))
	}))
	t.Cleanup(fs.Close)
	return fs
}

func TestOpenAI_Embed(t *testing.T) {
	const dim = 4
	srv := newFakeServer(t, dim)

	e := NewOpenAI("test-key", WithBaseURL(srv.URL), WithDimension(dim))
	assert.Equal(t, dim, e.Dimension())
	assert.Equal(t, "openai-"+ModelOpenAI3Small+"-4-false@"+srv.URL, e.Name())

	vecs, err := e.Embed(context.Background(), []string{"a", "bbb"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)

	// Results are placed by index, not by response order.
	assert.InDelta(t, 0.01, vecs[0][0], 1e-6)
	assert.InDelta(t, 0.03, vecs[1][0], 1e-6)
}

func TestOpenAI_Batching(t *testing.T) {
	const dim = 2
	srv := newFakeServer(t, dim)

	e := NewOpenAI("test-key", WithBaseURL(srv.URL), WithDimension(dim), WithBatchSize(10))

	texts := make([]string, 25)
	for i := range texts {
		texts[i] = fmt.Sprintf("text-%d", i)
	}
	vecs, err := e.Embed(context.Background(), texts)
	require.NoError(t, err)
	assert.Len(t, vecs, 25)
	assert.Equal(t, int32(3), srv.calls.Load())
}

func TestOpenAI_NameSeparatesSettings(t *testing.T) {
	names := map[string]bool{}
	for _, e := range []*OpenAI{
		NewOpenAI("k"),
		NewOpenAI("k", WithNormalize(true)),
		NewOpenAI("k", WithDimension(384)),
		NewOpenAI("k", WithBaseURL("http://localhost:8080/v1")),
		NewOpenAI("k", WithModel(ModelOpenAI3Large)),
	} {
		names[e.Name()] = true
	}
	assert.Len(t, names, 5)
	assert.Equal(t, "openai-"+ModelOpenAI3Small+"-1536-false", NewOpenAI("k").Name())
}

func TestOpenAI_SharedCacheKeepsSettingsApart(t *testing.T) {
	ctx := context.Background()
	srv := newFakeServer(t, 3)
	cache := NewLRUCache(16)

	raw := NewCached(NewOpenAI("k", WithBaseURL(srv.URL), WithDimension(3)), cache)
	unit := NewCached(NewOpenAI("k", WithBaseURL(srv.URL), WithDimension(3), WithNormalize(true)), cache)

	a, err := raw.Embed(ctx, []string{"hello"})
	require.NoError(t, err)
	b, err := unit.Embed(ctx, []string{"hello"})
	require.NoError(t, err)

	assert.Equal(t, int32(2), srv.calls.Load())
	assert.InDelta(t, 1.0, distance.Norm(b[0]), 1e-5)
	assert.NotEqual(t, a, b)
}

func TestOpenAI_Normalize(t *testing.T) {
	srv := newFakeServer(t, 3)

	e := NewOpenAI("test-key", WithBaseURL(srv.URL), WithDimension(3), WithNormalize(true), WithRateLimit(100, 1))
	vecs, err := e.Embed(context.Background(), []string{"hello"})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, distance.Norm(vecs[0]), 1e-5)
}

func TestOpenAI_DimensionMismatch(t *testing.T) {
	srv := newFakeServer(t, 3)

	e := NewOpenAI("test-key", WithBaseURL(srv.URL), WithDimension(8), WithMaxRetries(0))
	_, err := e.Embed(context.Background(), []string{"hello"})

	var embedErr *Error
	require.ErrorAs(t, err, &embedErr)
	assert.Equal(t, 0, embedErr.Start)
	assert.Equal(t, 1, embedErr.End)
}

func TestOpenAI_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	e := NewOpenAI("test-key", WithBaseURL(srv.URL), WithDimension(2), WithMaxRetries(0), WithBatchSize(2))
	_, err := e.Embed(context.Background(), []string{"a", "b", "c"})

	var embedErr *Error
	require.ErrorAs(t, err, &embedErr)
	assert.Equal(t, 0, embedErr.Start)
	assert.Equal(t, 2, embedErr.End)
	assert.Contains(t, err.Error(), "embed batch [0:2]")
}

func TestOpenAI_Errors(t *testing.T) {
	srv := newFakeServer(t, 2)
	e := NewOpenAI("test-key", WithBaseURL(srv.URL), WithDimension(2))

	_, err := e.Embed(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = e.Embed(context.Background(), []string{"ok", ""})
	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.Equal(t, int32(0), srv.calls.Load())

	require.NoError(t, e.Close())
	_, err = e.Embed(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, ErrClosed)
}
