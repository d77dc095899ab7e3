// Package providers routes model calls to the configured backend. It owns
// provider selection, per-task model resolution and structured-output
// parsing so the services above it only speak ports.ModelGateway.
package providers

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/SkybrushThriftwood/processIQ/internal/adapters/llm"
	"github.com/SkybrushThriftwood/processIQ/internal/config"
	"github.com/SkybrushThriftwood/processIQ/internal/core/domain"
	"github.com/SkybrushThriftwood/processIQ/internal/core/ports"
)

// Gateway implements ports.ModelGateway over the three provider clients.
// ApplyConfig swaps configuration at runtime, so it doubles as the
// settings store's change callback.
type Gateway struct {
	logger  *slog.Logger
	presets config.Presets
	timeout time.Duration

	mu        sync.RWMutex
	cfg       *domain.AppConfig
	providers map[string]ports.ModelProvider
}

// NewGateway builds a gateway for the given configuration. The timeout
// applies to every provider HTTP call.
func NewGateway(logger *slog.Logger, cfg *domain.AppConfig, presets config.Presets, timeout time.Duration) *Gateway {
	g := &Gateway{
		logger:  logger,
		presets: presets,
		timeout: timeout,
	}
	g.ApplyConfig(cfg)
	return g
}

// ApplyConfig swaps the active configuration and rebuilds the provider
// clients with the new credentials and endpoints.
func (g *Gateway) ApplyConfig(cfg *domain.AppConfig) {
	if cfg == nil {
		cfg = domain.DefaultConfig()
	}
	clients := map[string]ports.ModelProvider{
		"anthropic": llm.NewAnthropicClient("", cfg.Providers.AnthropicAPIKey, g.timeout),
		"openai":    llm.NewOpenAIClient("", cfg.Providers.OpenAIAPIKey, g.timeout),
		"ollama":    llm.NewOllamaClient(cfg.Providers.OllamaBaseURL, g.timeout),
	}

	g.mu.Lock()
	g.cfg = cfg
	g.providers = clients
	g.mu.Unlock()

	g.logger.Info("model providers configured",
		"default", cfg.Providers.Default,
		"mode", cfg.Analysis.Mode,
	)
}

// Generate runs the call and returns the reply text.
func (g *Gateway) Generate(ctx context.Context, call ports.ModelCall) (string, error) {
	provider, req, err := g.prepare(call, false)
	if err != nil {
		return "", err
	}
	resp, err := provider.Chat(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// GenerateInsight runs the call and parses the reply into an
// AnalysisInsight. Callers decide whether to retry transient failures.
func (g *Gateway) GenerateInsight(ctx context.Context, call ports.ModelCall) (*domain.AnalysisInsight, error) {
	provider, req, err := g.prepare(call, true)
	if err != nil {
		return nil, err
	}
	resp, err := provider.Chat(ctx, req)
	if err != nil {
		return nil, err
	}
	return parseInsight(resp.Content)
}

// Chat runs the call and returns the raw response including tool calls.
func (g *Gateway) Chat(ctx context.Context, call ports.ModelCall) (*ports.ChatResponse, error) {
	provider, req, err := g.prepare(call, false)
	if err != nil {
		return nil, err
	}
	return provider.Chat(ctx, req)
}

// SupportsTools reports whether the named provider does native tool
// calling. An empty name means the configured default provider.
func (g *Gateway) SupportsTools(name string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if name == "" {
		name = g.cfg.Providers.Default
	}
	p, ok := g.providers[name]
	return ok && p.SupportsTools()
}

func (g *Gateway) prepare(call ports.ModelCall, structured bool) (ports.ModelProvider, ports.ChatRequest, error) {
	g.mu.RLock()
	cfg := g.cfg
	clients := g.providers
	g.mu.RUnlock()

	name, model, temperature := resolve(call, cfg, g.presets)

	provider, ok := clients[name]
	if !ok {
		return nil, ports.ChatRequest{}, domain.NewConfigurationError(
			"llm_provider",
			"unsupported LLM provider: "+name,
			fmt.Sprintf("Provider '%s' is not supported. Use 'anthropic', 'openai', or 'ollama'.", name),
		)
	}
	if err := checkCredentials(name, cfg); err != nil {
		return nil, ports.ChatRequest{}, err
	}

	g.logger.Info("model call",
		"provider", name,
		"model", model,
		"temperature", temperature,
		"task", string(call.Task),
	)

	return provider, ports.ChatRequest{
		Model:       model,
		Messages:    call.Messages,
		Tools:       call.Tools,
		Temperature: temperature,
		JSONOutput:  structured,
	}, nil
}

// resolve applies the model resolution order: explicit call model, then
// the task's configured model, then the preset for provider x mode x task,
// then the global model, then the provider default. The provider resolves
// before the preset lookup so a task-level provider override picks up that
// provider's preset models.
func resolve(call ports.ModelCall, cfg *domain.AppConfig, presets config.Presets) (provider, model string, temperature float64) {
	provider = call.Provider
	if provider == "" {
		provider = cfg.Providers.Default
	}
	temperature = cfg.Providers.Temperature

	var tc domain.TaskConfig
	if call.Task != "" {
		tc = cfg.Providers.Tasks[call.Task]
	}
	if tc.Provider != "" {
		provider = tc.Provider
	}
	if tc.Temperature != nil {
		temperature = *tc.Temperature
	}

	mode := domain.AnalysisModeName(call.Mode)
	if mode == "" {
		mode = cfg.Analysis.Mode
	}
	if call.Task != "" {
		model = presets.ModelForTask(provider, mode, call.Task)
	}
	if tc.Model != "" {
		model = tc.Model
	}
	if call.Model != "" {
		model = call.Model
	}
	if model == "" {
		if provider == cfg.Providers.Default && cfg.Providers.Model != "" {
			model = cfg.Providers.Model
		} else {
			model = presets.DefaultModel(provider)
		}
	}
	return provider, model, temperature
}

func checkCredentials(name string, cfg *domain.AppConfig) error {
	switch name {
	case "anthropic":
		if cfg.Providers.AnthropicAPIKey == "" {
			return domain.NewConfigurationError(
				"anthropic_api_key",
				"Anthropic API key not configured",
				fmt.Sprintf("Please set %sANTHROPIC_API_KEY in your environment or .env file.", config.EnvPrefix),
			)
		}
	case "openai":
		if cfg.Providers.OpenAIAPIKey == "" {
			return domain.NewConfigurationError(
				"openai_api_key",
				"OpenAI API key not configured",
				fmt.Sprintf("Please set %sOPENAI_API_KEY in your environment or .env file.", config.EnvPrefix),
			)
		}
	}
	return nil
}
