package llm

import (
	"chat-digest-go/internal/config"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	Model       string  `json:"model"`
	Temperature float32 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func newChatServer(t *testing.T, content string, captured *capturedRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		if captured != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(captured))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "cmpl-1",
			"object":  "chat.completion",
			"created": time.Now().Unix(),
			"model":   "test-model",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]string{"role": "assistant", "content": content},
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(baseURL string) config.LLMConfig {
	return config.LLMConfig{
		APIKey:       "test-key",
		BaseURL:      baseURL,
		Model:        "test-model",
		SystemPrompt: "be brief",
		Generation:   config.LLMGenerationConfig{Temperature: 0.8, MaxTokens: 300},
	}
}

func TestSummarize_Success(t *testing.T) {
	var captured capturedRequest
	srv := newChatServer(t, "  - topic one\n  ", &captured)

	summary, err := NewClient(testConfig(srv.URL)).Summarize(context.Background(), "alice: hi\nbob: hello")
	require.NoError(t, err)
	assert.Equal(t, "- topic one", summary)

	assert.Equal(t, "test-model", captured.Model)
	assert.InDelta(t, 0.8, captured.Temperature, 0.001)
	assert.Equal(t, 300, captured.MaxTokens)
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, "be brief", captured.Messages[0].Content)
	assert.Equal(t, "user", captured.Messages[1].Role)
	assert.Contains(t, captured.Messages[1].Content, "alice: hi\nbob: hello")
}

func TestSummarize_EmptyCompletion(t *testing.T) {
	srv := newChatServer(t, "   ", nil)
	_, err := NewClient(testConfig(srv.URL)).Summarize(context.Background(), "x")
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestSummarize_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"boom","type":"server_error"}}`, http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	_, err := NewClient(testConfig(srv.URL)).Summarize(context.Background(), "x")
	assert.Error(t, err)
}

func TestSummarize_ContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewClient(testConfig(srv.URL)).Summarize(ctx, "x")
	assert.Error(t, err)
}
