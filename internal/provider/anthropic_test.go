package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helix-gateway/helix/internal/retry"
)

func TestAnthropic_CompleteWithoutKeyFailsBeforeNetwork(t *testing.T) {
	p := NewAnthropic(Config{BaseURL: "http://127.0.0.1:1"})
	_, err := p.Complete(context.Background(), Request{Prompt: "hi"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestAnthropic_CompleteConcatenatesTextBlocks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant-test", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))

		var req anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 1024, req.MaxTokens, "max_tokens is mandatory upstream, default fills it")

		json.NewEncoder(w).Encode(map[string]any{
			"model": "claude-3-5-haiku-latest",
			"content": []map[string]string{
				{"type": "text", "text": "hello "},
				{"type": "tool_use", "text": "ignored"},
				{"type": "text", "text": "world"},
			},
			"usage": map[string]int{"input_tokens": 5, "output_tokens": 2},
		})
	}))
	defer srv.Close()

	p := NewAnthropic(Config{APIKey: "sk-ant-test", BaseURL: srv.URL})
	got, err := p.Complete(context.Background(), Request{Prompt: "hi"})

	require.NoError(t, err)
	assert.Equal(t, "hello world", got.Content)
	require.NotNil(t, got.Usage)
	assert.Equal(t, 5, got.Usage.PromptTokens)
	assert.Equal(t, 2, got.Usage.CompletionTokens)
	assert.Equal(t, 7, got.Usage.TotalTokens)
}

func TestAnthropic_NonOKBecomesStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":{"type":"overloaded_error"}}`))
	}))
	defer srv.Close()

	p := NewAnthropic(Config{APIKey: "sk-ant-test", BaseURL: srv.URL})
	_, err := p.Complete(context.Background(), Request{Prompt: "hi"})

	var statusErr *retry.HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.True(t, retry.IsRetryable(err))
}

func TestRegistry_GetAndNames(t *testing.T) {
	openai := NewOpenAI(Config{APIKey: "a"})
	anthropic := NewAnthropic(Config{APIKey: "b"})
	r := NewRegistry(openai, anthropic)

	p, err := r.Get("openai")
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())

	_, err = r.Get("mistral")
	assert.ErrorIs(t, err, ErrUnknownProvider)

	assert.Equal(t, []string{"anthropic", "openai"}, r.Names())
}
