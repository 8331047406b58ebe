package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catalyst-cli/internal/resilience"
)

func newTestClient(baseURL string) Client {
	return NewClient("test-key", option.WithBaseURL(baseURL))
}

func writeMessage(w http.ResponseWriter, id, text string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
		"id":   id,
		"type": "message",
		"role": "assistant",
		"content": []map[string]any{
			{"type": "text", "text": text},
		},
		"model":       "claude-sonnet-4-5-20250929",
		"stop_reason": "end_turn",
		"usage": map[string]any{
			"input_tokens":                10,
			"output_tokens":               5,
			"cache_creation_input_tokens": 4000,
			"cache_read_input_tokens":     0,
		},
	})
}

func writeError(w http.ResponseWriter, status int, typ string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
		"type":  "error",
		"error": map[string]any{"type": typ, "message": typ},
	})
}

func TestSDKClient_CreateMessage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.URL.Path, "/messages")
		writeMessage(w, "msg_test_001", `{"catalyst_id": null}`)
	}))
	defer ts.Close()

	resp, err := newTestClient(ts.URL).CreateMessage(context.Background(), MessageRequest{
		Model:     "claude-sonnet-4-5-20250929",
		MaxTokens: 1024,
		Messages:  []Message{{Role: "user", Content: "Hello"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "msg_test_001", resp.ID)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, `{"catalyst_id": null}`, resp.Text())
	assert.Equal(t, int64(10), resp.Usage.InputTokens)
	assert.Equal(t, int64(4000), resp.Usage.CacheCreationInputTokens)
}

func TestSDKClient_CreateMessage_SendsSystemAndTemperature(t *testing.T) {
	var body map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		writeMessage(w, "msg_sys", "{}")
	}))
	defer ts.Close()

	temp := 0.0
	_, err := newTestClient(ts.URL).CreateMessage(context.Background(), MessageRequest{
		Model:       "claude-sonnet-4-5-20250929",
		MaxTokens:   512,
		System:      BuildCachedSystemBlocks("resolver instructions"),
		Messages:    []Message{{Role: "user", Content: "chunk"}},
		Temperature: &temp,
	})
	require.NoError(t, err)

	assert.Equal(t, 0.0, body["temperature"])
	system, ok := body["system"].([]any)
	require.True(t, ok, "system should be a block list")
	require.Len(t, system, 1)
	block := system[0].(map[string]any)
	assert.Equal(t, "resolver instructions", block["text"])
	cc := block["cache_control"].(map[string]any)
	assert.Equal(t, "ephemeral", cc["type"])
	assert.Equal(t, "1h", cc["ttl"])
}

func TestSDKClient_CreateMessage_TransientStatus(t *testing.T) {
	for _, status := range []int{http.StatusTooManyRequests, http.StatusInternalServerError, 529} {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, status, "overloaded_error")
		}))

		_, err := newTestClient(ts.URL).CreateMessage(context.Background(), MessageRequest{
			Model: "claude-sonnet-4-5-20250929", MaxTokens: 16,
			Messages: []Message{{Role: "user", Content: "x"}},
		})
		ts.Close()

		require.Error(t, err)
		assert.Contains(t, err.Error(), "anthropic: create message")
		assert.True(t, resilience.IsTransient(err), "status %d should be transient", status)
	}
}

func TestSDKClient_CreateMessage_PermanentStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusBadRequest, "invalid_request_error")
	}))
	defer ts.Close()

	_, err := newTestClient(ts.URL).CreateMessage(context.Background(), MessageRequest{
		Model: "claude-sonnet-4-5-20250929", MaxTokens: 16,
		Messages: []Message{{Role: "user", Content: "x"}},
	})
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
}
