package providers

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/SkybrushThriftwood/processIQ/internal/config"
	"github.com/SkybrushThriftwood/processIQ/internal/core/domain"
	"github.com/SkybrushThriftwood/processIQ/internal/core/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubProvider struct {
	name    string
	tools   bool
	resp    *ports.ChatResponse
	err     error
	lastReq ports.ChatRequest
	calls   int
}

func (s *stubProvider) Chat(_ context.Context, req ports.ChatRequest) (*ports.ChatResponse, error) {
	s.calls++
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

func (s *stubProvider) SupportsTools() bool { return s.tools }

func (s *stubProvider) Name() string { return s.name }

func testGateway(cfg *domain.AppConfig) (*Gateway, *stubProvider) {
	g := NewGateway(testLogger(), cfg, config.DefaultPresets(), time.Second)
	stub := &stubProvider{name: "openai", tools: true, resp: &ports.ChatResponse{Content: "ok"}}
	g.providers["openai"] = stub
	return g, stub
}

func TestResolve(t *testing.T) {
	base := domain.DefaultConfig()
	presets := config.DefaultPresets()

	temp09 := 0.9
	withTask := domain.DefaultConfig()
	withTask.Providers.Tasks = map[domain.TaskName]domain.TaskConfig{
		domain.TaskAnalysis:   {Model: "custom-analysis"},
		domain.TaskExtraction: {Provider: "ollama", Temperature: &temp09},
	}

	withGlobal := domain.DefaultConfig()
	withGlobal.Providers.Model = "global-model"

	tests := []struct {
		name         string
		cfg          *domain.AppConfig
		call         ports.ModelCall
		wantProvider string
		wantModel    string
		wantTemp     float64
	}{
		{"analysis uses balanced preset", base, ports.ModelCall{Task: domain.TaskAnalysis}, "openai", "gpt-5-mini", 0},
		{"extraction stays on cheap model", base, ports.ModelCall{Task: domain.TaskExtraction}, "openai", "gpt-4o-mini", 0},
		{"mode override switches tier", base, ports.ModelCall{Task: domain.TaskAnalysis, Mode: "deep_analysis"}, "openai", "gpt-5", 0},
		{"call provider picks its preset", base, ports.ModelCall{Task: domain.TaskAnalysis, Provider: "anthropic"}, "anthropic", "claude-sonnet-4-5-20250929", 0},
		{"explicit model wins", base, ports.ModelCall{Task: domain.TaskAnalysis, Model: "my-finetune"}, "openai", "my-finetune", 0},
		{"task model beats preset", withTask, ports.ModelCall{Task: domain.TaskAnalysis}, "openai", "custom-analysis", 0},
		{"task provider resolves its preset", withTask, ports.ModelCall{Task: domain.TaskExtraction}, "ollama", "qwen3:8b", 0.9},
		{"no task uses global model", withGlobal, ports.ModelCall{}, "openai", "global-model", 0},
		{"other provider ignores global model", withGlobal, ports.ModelCall{Provider: "anthropic"}, "anthropic", "claude-haiku-4-5-20251001", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, model, temp := resolve(tt.call, tt.cfg, presets)
			assert.Equal(t, tt.wantProvider, provider)
			assert.Equal(t, tt.wantModel, model)
			assert.InDelta(t, tt.wantTemp, temp, 1e-9)
		})
	}
}

func TestGatewayGenerate(t *testing.T) {
	cfg := domain.DefaultConfig()
	cfg.Providers.OpenAIAPIKey = "sk-oa-test"
	g, stub := testGateway(cfg)

	msgs := []domain.Message{{Role: domain.RoleUser, Content: "hi"}}
	out, err := g.Generate(context.Background(), ports.ModelCall{Task: domain.TaskClarification, Messages: msgs})
	require.NoError(t, err)

	assert.Equal(t, "ok", out)
	assert.Equal(t, 1, stub.calls)
	assert.Equal(t, "gpt-4o-mini", stub.lastReq.Model)
	assert.Equal(t, msgs, stub.lastReq.Messages)
	assert.False(t, stub.lastReq.JSONOutput)
}

func TestGatewayGenerateInsight(t *testing.T) {
	cfg := domain.DefaultConfig()
	cfg.Providers.OpenAIAPIKey = "sk-oa-test"
	g, stub := testGateway(cfg)
	stub.resp = &ports.ChatResponse{Content: "```json\n{\"process_summary\":\"Three-step approval flow\"}\n```"}

	insight, err := g.GenerateInsight(context.Background(), ports.ModelCall{Task: domain.TaskAnalysis})
	require.NoError(t, err)

	assert.Equal(t, "Three-step approval flow", insight.ProcessSummary)
	assert.Equal(t, "gpt-5-mini", stub.lastReq.Model)
	assert.True(t, stub.lastReq.JSONOutput, "structured calls ask for JSON mode")
}

func TestGatewayGenerateInsightMalformed(t *testing.T) {
	cfg := domain.DefaultConfig()
	cfg.Providers.OpenAIAPIKey = "sk-oa-test"
	g, stub := testGateway(cfg)
	stub.resp = &ports.ChatResponse{Content: "I could not produce JSON, sorry."}

	_, err := g.GenerateInsight(context.Background(), ports.ModelCall{Task: domain.TaskAnalysis})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrModelTransient)
}

func TestGatewayMissingAPIKey(t *testing.T) {
	g, _ := testGateway(domain.DefaultConfig())

	_, err := g.Generate(context.Background(), ports.ModelCall{Task: domain.TaskAnalysis})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "Please set PROCESSIQ_OPENAI_API_KEY in your environment or .env file.", cfgErr.UserMessage)

	_, err = g.Generate(context.Background(), ports.ModelCall{Provider: "anthropic"})
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "Please set PROCESSIQ_ANTHROPIC_API_KEY in your environment or .env file.", cfgErr.UserMessage)
}

func TestGatewayUnsupportedProvider(t *testing.T) {
	g, _ := testGateway(domain.DefaultConfig())

	_, err := g.Generate(context.Background(), ports.ModelCall{Provider: "groq"})
	require.Error(t, err)

	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "Provider 'groq' is not supported. Use 'anthropic', 'openai', or 'ollama'.", cfgErr.UserMessage)
}

func TestGatewaySupportsTools(t *testing.T) {
	g, _ := testGateway(domain.DefaultConfig())

	assert.True(t, g.SupportsTools(""), "empty name resolves the default provider")
	assert.True(t, g.SupportsTools("openai"))
	assert.True(t, g.SupportsTools("anthropic"))
	assert.False(t, g.SupportsTools("ollama"))
	assert.False(t, g.SupportsTools("groq"))
}

func TestGatewayApplyConfig(t *testing.T) {
	g, _ := testGateway(domain.DefaultConfig())

	next := domain.DefaultConfig()
	next.Providers.Default = "anthropic"
	next.Providers.AnthropicAPIKey = "sk-ant-test"
	next.Analysis.Mode = domain.ModeDeepAnalysis
	g.ApplyConfig(next)

	provider, req, err := g.prepare(ports.ModelCall{Task: domain.TaskAnalysis}, false)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", provider.Name())
	assert.Equal(t, "claude-sonnet-4-5-20250929", req.Model)
}
