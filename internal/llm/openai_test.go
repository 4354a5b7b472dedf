package llm

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
)

type chatRequest struct {
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func fakeChat(t *testing.T, reply string, last *chatRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(last))
		choices := []map[string]any{}
		if reply != "" {
			choices = append(choices, map[string]any{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": reply},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 0,
			"model":   last.Model,
			"choices": choices,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	t.Setenv("TEST_OPENAI_KEY", "sk-test")
	c, err := NewClient(Config{BaseURL: url + "/v1/", APIKeyEnv: "TEST_OPENAI_KEY", Model: "gpt-test", Temperature: 0.9})
	require.NoError(t, err)
	return c
}

func TestNewClient_RequiresKey(t *testing.T) {
	t.Setenv("EMPTY_KEY_ENV", "")
	_, err := NewClient(Config{APIKeyEnv: "EMPTY_KEY_ENV"})
	assert.Error(t, err)
}

func TestAnswer_SendsReviewsAndQuestion(t *testing.T) {
	var last chatRequest
	srv := fakeChat(t, "  Great coffee, friend! ☕ ", &last)
	c := newTestClient(t, srv.URL)

	out, err := c.Answer(context.Background(), "Is the coffee good?", []string{"Review: tasty | Response: ", "Review: bitter | Response: "})
	require.NoError(t, err)
	assert.Equal(t, "Great coffee, friend! ☕", out)

	assert.Equal(t, "gpt-test", last.Model)
	assert.InDelta(t, 0.9, last.Temperature, 1e-9)
	require.Len(t, last.Messages, 1)
	assert.Equal(t, "user", last.Messages[0].Role)
	prompt := last.Messages[0].Content
	assert.Contains(t, prompt, "Here is the question to answer: Is the coffee good?")
	assert.Contains(t, prompt, "Review: tasty | Response: \nReview: bitter | Response: ")
	assert.Contains(t, prompt, `"I don't know"`)
}

func TestSummarize_SendsSentenceLimit(t *testing.T) {
	var last chatRequest
	srv := fakeChat(t, "People love it.", &last)
	c := newTestClient(t, srv.URL)

	out, err := c.Summarize(context.Background(), []string{"a", "b"}, 3)
	require.NoError(t, err)
	assert.Equal(t, "People love it.", out)
	assert.Contains(t, last.Messages[0].Content, "at most 3 sentences")
	assert.Contains(t, last.Messages[0].Content, "- a\n- b")
}

func TestComplete_NoChoices(t *testing.T) {
	var last chatRequest
	srv := fakeChat(t, "", &last)
	_, err := newTestClient(t, srv.URL).Answer(context.Background(), "q", []string{"r"})
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestComplete_RetriesTransientFailures(t *testing.T) {
	var last chatRequest
	ok := fakeChat(t, "Recovered.", &last)
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After-Ms", "1")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		ok.Config.Handler.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(t, srv.URL)
	out, err := c.Answer(context.Background(), "q", []string{"r"})
	require.NoError(t, err)
	assert.Equal(t, "Recovered.", out)
	assert.EqualValues(t, 2, calls.Load())
}

func TestComplete_MaxRetriesFromConfig(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After-Ms", "1")
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	t.Setenv("TEST_OPENAI_KEY", "sk-test")
	c, err := NewClient(Config{BaseURL: srv.URL + "/v1/", APIKeyEnv: "TEST_OPENAI_KEY", MaxRetries: 3})
	require.NoError(t, err)
	_, err = c.Answer(context.Background(), "q", []string{"r"})
	require.Error(t, err)
	assert.EqualValues(t, 4, calls.Load(), "one attempt plus three retries")
}
