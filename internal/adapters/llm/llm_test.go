package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SkybrushThriftwood/processIQ/internal/core/domain"
	"github.com/SkybrushThriftwood/processIQ/internal/core/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnthropicChat(t *testing.T) {
	var got anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant-test", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicAPIVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		resp := map[string]any{
			"content": []map[string]any{
				{"type": "text", "text": "Looking at step durations."},
				{"type": "tool_use", "id": "tu-1", "name": "get_step_details", "input": map[string]any{"step_name": "Review"}},
			},
			"stop_reason": "tool_use",
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	client := NewAnthropicClient(srv.URL, "sk-ant-test", time.Second)
	resp, err := client.Chat(context.Background(), ports.ChatRequest{
		Model:       "claude-haiku-4-5-20251001",
		Temperature: 0.3,
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: "You are an advisor."},
			{Role: domain.RoleUser, Content: "Analyze this."},
			{Role: domain.RoleAssistant, ToolCalls: []domain.ToolCall{
				{ID: "tu-0", Name: "get_bottleneck_info", Arguments: json.RawMessage(`{}`)},
			}},
			{Role: domain.RoleTool, ToolCallID: "tu-0", Name: "get_bottleneck_info", Content: `{"step":"Review"}`},
		},
		Tools: []*domain.ToolDef{
			{Name: "get_step_details", Description: "Step detail lookup", Parameters: map[string]interface{}{"type": "object"}},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "claude-haiku-4-5-20251001", got.Model)
	assert.Equal(t, defaultMaxTokens, got.MaxTokens)
	assert.InDelta(t, 0.3, got.Temperature, 1e-9)
	assert.Equal(t, "You are an advisor.", got.System)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "assistant", got.Messages[1].Role)
	assert.Equal(t, "user", got.Messages[2].Role, "tool results travel as user-role tool_result blocks")
	require.Len(t, got.Tools, 1)
	assert.Equal(t, "get_step_details", got.Tools[0].Name)

	assert.Equal(t, "Looking at step durations.", resp.Content)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "tu-1", resp.ToolCalls[0].ID)
	assert.Equal(t, "get_step_details", resp.ToolCalls[0].Name)
	assert.JSONEq(t, `{"step_name":"Review"}`, string(resp.ToolCalls[0].Arguments))
	assert.Equal(t, "tool_use", resp.StopReason)
}

func TestAnthropicChatAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"type":"overloaded_error"}}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewAnthropicClient(srv.URL, "sk-ant-test", time.Second)
	_, err := client.Chat(context.Background(), ports.ChatRequest{Model: "claude-haiku-4-5-20251001"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrModelTransient)

	var transient *domain.ModelTransientError
	require.ErrorAs(t, err, &transient)
	assert.Equal(t, domain.TransientTransport, transient.Kind)
}

func TestAnthropicChatEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content":[],"stop_reason":"end_turn"}`))
	}))
	defer srv.Close()

	client := NewAnthropicClient(srv.URL, "sk-ant-test", time.Second)
	_, err := client.Chat(context.Background(), ports.ChatRequest{Model: "claude-haiku-4-5-20251001"})

	var transient *domain.ModelTransientError
	require.ErrorAs(t, err, &transient)
	assert.Equal(t, domain.TransientEmpty, transient.Kind)
}

func TestOpenAIChat(t *testing.T) {
	var got openAIRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-oa-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		resp := map[string]any{
			"choices": []map[string]any{{
				"message": map[string]any{
					"content": "",
					"tool_calls": []map[string]any{{
						"id":   "call-1",
						"type": "function",
						"function": map[string]any{
							"name":      "get_failure_points",
							"arguments": `{"min_error_rate":0.05}`,
						},
					}},
				},
				"finish_reason": "tool_calls",
			}},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	client := NewOpenAIClient(srv.URL, "sk-oa-test", time.Second)
	resp, err := client.Chat(context.Background(), ports.ChatRequest{
		Model:      "gpt-5-mini",
		JSONOutput: true,
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: "You are an advisor."},
			{Role: domain.RoleUser, Content: "Analyze this."},
			{Role: domain.RoleTool, ToolCallID: "call-0", Name: "get_bottleneck_info", Content: "{}"},
		},
		Tools: []*domain.ToolDef{
			{Name: "get_failure_points", Description: "Failure lookup", Parameters: map[string]interface{}{"type": "object"}},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "gpt-5-mini", got.Model)
	assert.Equal(t, defaultMaxTokens, got.MaxTokens)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "tool", got.Messages[2].Role)
	assert.Equal(t, "call-0", got.Messages[2].ToolCallID)
	require.Len(t, got.Tools, 1)
	assert.Equal(t, "function", got.Tools[0].Type)
	assert.Equal(t, "get_failure_points", got.Tools[0].Function.Name)

	assert.Empty(t, resp.Content)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call-1", resp.ToolCalls[0].ID)
	assert.Equal(t, "get_failure_points", resp.ToolCalls[0].Name)
	assert.JSONEq(t, `{"min_error_rate":0.05}`, string(resp.ToolCalls[0].Arguments))
	assert.Equal(t, "tool_calls", resp.StopReason)
}

func TestOpenAIChatNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	client := NewOpenAIClient(srv.URL, "sk-oa-test", time.Second)
	_, err := client.Chat(context.Background(), ports.ChatRequest{Model: "gpt-5-nano"})

	var transient *domain.ModelTransientError
	require.ErrorAs(t, err, &transient)
	assert.Equal(t, domain.TransientEmpty, transient.Kind)
}

func TestOllamaChat(t *testing.T) {
	var got ollamaChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		resp := map[string]any{
			"message": map[string]any{"role": "assistant", "content": "The approval step dominates."},
			"done":    true,
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	client := NewOllamaClient(srv.URL, time.Second)
	assert.False(t, client.SupportsTools())

	resp, err := client.Chat(context.Background(), ports.ChatRequest{
		Model:       "qwen3:8b",
		Temperature: 0.1,
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: "You are an advisor."},
			{Role: domain.RoleUser, Content: "Analyze this."},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "qwen3:8b", got.Model)
	assert.False(t, got.Stream)
	assert.InDelta(t, 0.1, got.Options.Temperature, 1e-9)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "The approval step dominates.", resp.Content)
}

func TestOllamaChatConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	client := NewOllamaClient(srv.URL, time.Second)
	_, err := client.Chat(context.Background(), ports.ChatRequest{Model: "qwen3:8b"})

	var transient *domain.ModelTransientError
	require.ErrorAs(t, err, &transient)
	assert.Equal(t, domain.TransientTransport, transient.Kind)
}

func TestClientDefaults(t *testing.T) {
	a := NewAnthropicClient("", "key", 0)
	assert.Equal(t, anthropicDefaultBaseURL, a.baseURL)
	assert.Equal(t, "anthropic", a.Name())
	assert.True(t, a.SupportsTools())

	o := NewOpenAIClient("", "key", 0)
	assert.Equal(t, openAIDefaultBaseURL, o.baseURL)
	assert.Equal(t, "openai", o.Name())
	assert.True(t, o.SupportsTools())

	l := NewOllamaClient("", 0)
	assert.Equal(t, ollamaDefaultBaseURL, l.baseURL)
	assert.Equal(t, "ollama", l.Name())
}
