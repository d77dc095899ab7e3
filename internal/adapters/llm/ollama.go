package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/SkybrushThriftwood/processIQ/internal/core/domain"
	"github.com/SkybrushThriftwood/processIQ/internal/core/ports"
)

const ollamaDefaultBaseURL = "http://localhost:11434"

// OllamaClient talks to a local Ollama instance. It reports no tool
// support, so runs on it skip the tool-driven investigation loop.
type OllamaClient struct {
	client  *http.Client
	baseURL string
}

// NewOllamaClient creates a client. An empty baseURL uses localhost.
func NewOllamaClient(baseURL string, timeout time.Duration) *OllamaClient {
	if baseURL == "" {
		baseURL = ollamaDefaultBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &OllamaClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (c *OllamaClient) Name() string { return "ollama" }

func (c *OllamaClient) SupportsTools() bool { return false }

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatResponse struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

// Chat sends a non-streaming chat request.
func (c *OllamaClient) Chat(ctx context.Context, req ports.ChatRequest) (*ports.ChatResponse, error) {
	payload := ollamaChatRequest{
		Model:   req.Model,
		Stream:  false,
		Options: ollamaOptions{Temperature: req.Temperature},
	}
	for _, msg := range req.Messages {
		role := string(msg.Role)
		if msg.Role == domain.RoleTool {
			role = "user"
		}
		payload.Messages = append(payload.Messages, ollamaMessage{Role: role, Content: msg.Content})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, domain.NewModelTransientError(domain.TransientTransport, "ollama connection failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewModelTransientError(domain.TransientTransport, "read ollama response", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("ollama returned status %d: %s", resp.StatusCode, truncate(respBody, 512))
		return nil, domain.NewModelTransientError(domain.TransientTransport, msg, nil)
	}

	var parsed ollamaChatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, domain.NewModelTransientError(domain.TransientTransport, "decode ollama response", err)
	}
	if parsed.Message.Content == "" {
		return nil, domain.NewModelTransientError(domain.TransientEmpty, "ollama returned no content", nil)
	}

	return &ports.ChatResponse{Content: parsed.Message.Content, StopReason: "stop"}, nil
}
