package llm

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(url string) Config {
	return Config{
		APIKey:      "secret",
		BaseURL:     url + "/",
		Model:       "meta/llama-3.1-405b-instruct",
		Temperature: 0.2,
		TopP:        0.7,
		MaxTokens:   1024,
		Timeout:     5 * time.Second,
	}
}

func TestClient_Generate(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "cmpl-1",
			"object": "chat.completion",
			"model": "meta/llama-3.1-405b-instruct",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "<p>Stap 1</p>"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`))
	}))
	defer srv.Close()

	client, err := NewClient(testConfig(srv.URL), testLogger())
	require.NoError(t, err)

	text, err := client.Generate(t.Context(), "Maak een plan")
	require.NoError(t, err)
	assert.Equal(t, "<p>Stap 1</p>", text)

	assert.Equal(t, "meta/llama-3.1-405b-instruct", got["model"])
	assert.InDelta(t, 0.2, got["temperature"], 0.0001)
	assert.InDelta(t, 0.7, got["top_p"], 0.0001)
	assert.EqualValues(t, 1024, got["max_tokens"])
	messages, ok := got["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 1)
	msg := messages[0].(map[string]any)
	assert.Equal(t, "user", msg["role"])
	assert.Equal(t, "Maak een plan", msg["content"])
}

func TestClient_GenerateNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "cmpl-2", "choices": []}`))
	}))
	defer srv.Close()

	client, err := NewClient(testConfig(srv.URL), testLogger())
	require.NoError(t, err)

	_, err = client.Generate(t.Context(), "x")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestClient_GenerateAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "invalid api key", "type": "auth"}}`))
	}))
	defer srv.Close()

	client, err := NewClient(testConfig(srv.URL), testLogger())
	require.NoError(t, err)

	_, err = client.Generate(t.Context(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat completion")
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(Config{BaseURL: "http://x", Model: "m"}, testLogger())
	assert.Error(t, err)

	_, err = NewClient(Config{APIKey: "k", Model: "m"}, testLogger())
	assert.Error(t, err)

	_, err = NewClient(Config{APIKey: "k", BaseURL: "http://x"}, testLogger())
	assert.Error(t, err)
}
