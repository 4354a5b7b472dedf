package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reviewrag/internal/domain"
)

type embeddingRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions"`
}

// fakeServer answers every input with a vector whose first component is the
// input length.
func fakeServer(t *testing.T, dim int, calls *atomic.Int32, last *embeddingRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/embeddings") {
			http.NotFound(w, r)
			return
		}
		calls.Add(1)
		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		*last = req
		data := make([]map[string]any, len(req.Input))
		for i, in := range req.Input {
			vec := make([]float64, dim)
			vec[0] = float64(len(in))
			data[i] = map[string]any{"object": "embedding", "index": i, "embedding": vec}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]any{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
}

func newTestClient(t *testing.T, url string, dim, batch int) *Client {
	t.Helper()
	t.Setenv("TEST_OPENAI_KEY", "sk-test")
	c, err := NewClient(Config{
		BaseURL:           url + "/v1/",
		APIKeyEnv:         "TEST_OPENAI_KEY",
		Model:             "text-embedding-3-small",
		Dimension:         dim,
		RequestDimensions: true,
		MaxRetries:        1,
		BatchSize:         batch,
	})
	require.NoError(t, err)
	return c
}

func TestNewClient_RequiresKey(t *testing.T) {
	t.Setenv("EMPTY_KEY_ENV", "")
	_, err := NewClient(Config{APIKeyEnv: "EMPTY_KEY_ENV", Dimension: 8})
	assert.Error(t, err)
}

func TestEmbedBatch_BatchesAndSkipsBlank(t *testing.T) {
	var calls atomic.Int32
	var last embeddingRequest
	srv := fakeServer(t, 4, &calls, &last)
	defer srv.Close()

	c := newTestClient(t, srv.URL, 4, 2)
	out, err := c.EmbedBatch(context.Background(), []string{"a", "", "bbb", "cc", "  "})
	require.NoError(t, err)
	require.Len(t, out, 5)

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, []float64{1, 0, 0, 0}, out[0])
	assert.Equal(t, []float64{0, 0, 0, 0}, out[1])
	assert.Equal(t, []float64{3, 0, 0, 0}, out[2])
	assert.Equal(t, []float64{2, 0, 0, 0}, out[3])
	assert.Equal(t, []float64{0, 0, 0, 0}, out[4])
	assert.Equal(t, 4, last.Dimensions)
	assert.Equal(t, "text-embedding-3-small", last.Model)
}

func TestEmbed_EmptyTextDoesNotCallServer(t *testing.T) {
	var calls atomic.Int32
	var last embeddingRequest
	srv := fakeServer(t, 4, &calls, &last)
	defer srv.Close()

	c := newTestClient(t, srv.URL, 4, 8)
	v, err := c.Embed(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, v, 4)
	assert.Zero(t, calls.Load())
}

func TestEmbed_DimensionMismatch(t *testing.T) {
	var calls atomic.Int32
	var last embeddingRequest
	srv := fakeServer(t, 3, &calls, &last)
	defer srv.Close()

	c := newTestClient(t, srv.URL, 4, 8)
	_, err := c.Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestEmbed_ServerErrorIsEmbeddingFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"input too long","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 4, 8)
	_, err := c.Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, domain.ErrEmbedding)
}
