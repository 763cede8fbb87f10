package inference

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, cfg.Validate())

	cfg = &Config{BaseURL: "http://inference.local"}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 1024, cfg.MaxReplyTokens)
}

func TestHTTPCompleter_Complete(t *testing.T) {
	var gotReq completionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "hello there"}},
			},
		})
	}))
	t.Cleanup(server.Close)

	completer, err := NewHTTPCompleter(&Config{
		BaseURL:        server.URL,
		APIKey:         "test-key",
		MaxReplyTokens: 256,
	})
	require.NoError(t, err)

	reply, err := completer.Complete(context.Background(), "gpt-4o-mini", "You are terse.", "Say hello")
	require.NoError(t, err)
	assert.Equal(t, "hello there", reply)

	assert.Equal(t, "gpt-4o-mini", gotReq.Model)
	assert.Equal(t, 256, gotReq.MaxTokens)
	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, roleSystem, gotReq.Messages[0].Role)
	assert.Equal(t, "You are terse.", gotReq.Messages[0].Content)
	assert.Equal(t, roleUser, gotReq.Messages[1].Role)
}

func TestHTTPCompleter_Complete_NoSystemPrompt(t *testing.T) {
	var gotReq completionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": "ok"}},
			},
		})
	}))
	t.Cleanup(server.Close)

	completer, err := NewHTTPCompleter(&Config{BaseURL: server.URL})
	require.NoError(t, err)

	_, err = completer.Complete(context.Background(), "m", "", "prompt only")
	require.NoError(t, err)
	require.Len(t, gotReq.Messages, 1)
	assert.Equal(t, roleUser, gotReq.Messages[0].Role)
}

func TestHTTPCompleter_Complete_ProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "rate limit exceeded", "type": "rate_limit"},
		})
	}))
	t.Cleanup(server.Close)

	completer, err := NewHTTPCompleter(&Config{BaseURL: server.URL})
	require.NoError(t, err)

	_, err = completer.Complete(context.Background(), "m", "", "p")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit exceeded")
}

func TestHTTPCompleter_Complete_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	t.Cleanup(server.Close)

	completer, err := NewHTTPCompleter(&Config{BaseURL: server.URL})
	require.NoError(t, err)

	_, err = completer.Complete(context.Background(), "m", "", "p")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestOfflineCompleter_Complete(t *testing.T) {
	completer := NewOfflineCompleter()

	reply, err := completer.Complete(context.Background(), "demo-model", "sys", "  What is 2+2?  ")
	require.NoError(t, err)
	assert.Equal(t, "[offline:demo-model] What is 2+2?", reply)
}

func TestOfflineCompleter_Complete_TruncatesLongPrompts(t *testing.T) {
	completer := NewOfflineCompleter()

	long := make([]byte, 300)
	for i := range long {
		long[i] = 'a'
	}

	reply, err := completer.Complete(context.Background(), "demo-model", "", string(long))
	require.NoError(t, err)
	assert.Contains(t, reply, "...")
	assert.Less(t, len(reply), 120)
}
