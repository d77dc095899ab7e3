package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/SkybrushThriftwood/processIQ/internal/core/domain"
	"github.com/SkybrushThriftwood/processIQ/internal/core/ports"
)

// settingsKey is the repository key the whole config is stored under.
const settingsKey = "app_config"

// OnChangeFunc is called after settings are updated, outside the store's
// lock, with a private copy of the new config.
type OnChangeFunc func(cfg *domain.AppConfig)

// SettingsStore holds the runtime-updatable settings. API keys are
// encrypted at rest and masked on read; updates trigger registered
// callbacks so providers can hot-reload.
type SettingsStore struct {
	mu       sync.RWMutex
	logger   *slog.Logger
	secret   *SecretKey
	repo     ports.SettingsRepository
	config   *domain.AppConfig
	onChange []OnChangeFunc
}

// NewSettingsStore loads saved settings, seeding the repository with the
// given defaults on first run. Nil defaults fall back to DefaultConfig.
func NewSettingsStore(logger *slog.Logger, repo ports.SettingsRepository, secret *SecretKey, defaults *domain.AppConfig) (*SettingsStore, error) {
	store := &SettingsStore{
		logger: logger,
		secret: secret,
		repo:   repo,
	}

	ctx := context.Background()
	cfg, err := store.load(ctx)
	if err != nil {
		logger.Warn("no saved settings found, using defaults", "error", err)
		if defaults == nil {
			defaults = domain.DefaultConfig()
		}
		cfg = cloneConfig(defaults)
		if err := store.save(ctx, cfg); err != nil {
			return nil, fmt.Errorf("save default settings: %w", err)
		}
	}

	store.config = cfg
	return store, nil
}

// OnChange registers a callback for settings updates.
func (s *SettingsStore) OnChange(fn OnChangeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

// GetConfig returns a copy of the current config with decrypted secrets.
func (s *SettingsStore) GetConfig() *domain.AppConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneConfig(s.config)
}

// GetMaskedConfig returns a copy safe for API responses: API keys masked.
func (s *SettingsStore) GetMaskedConfig() *domain.AppConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp := cloneConfig(s.config)
	cp.Providers.AnthropicAPIKey = MaskSecret(cp.Providers.AnthropicAPIKey)
	cp.Providers.OpenAIAPIKey = MaskSecret(cp.Providers.OpenAIAPIKey)
	return cp
}

// UpdateConfig validates, persists and applies an update, then runs the
// change callbacks. An empty or masked API key keeps the stored one, so
// clients can send back what GetMaskedConfig gave them.
func (s *SettingsStore) UpdateConfig(ctx context.Context, update *domain.AppConfig) error {
	upd := cloneConfig(update)

	s.mu.Lock()
	if upd.Providers.AnthropicAPIKey == "" || isMasked(upd.Providers.AnthropicAPIKey) {
		upd.Providers.AnthropicAPIKey = s.config.Providers.AnthropicAPIKey
	}
	if upd.Providers.OpenAIAPIKey == "" || isMasked(upd.Providers.OpenAIAPIKey) {
		upd.Providers.OpenAIAPIKey = s.config.Providers.OpenAIAPIKey
	}

	if err := ValidateApp(upd); err != nil {
		s.mu.Unlock()
		return err
	}
	if err := s.save(ctx, upd); err != nil {
		s.mu.Unlock()
		return err
	}
	s.config = upd
	callbacks := make([]OnChangeFunc, len(s.onChange))
	copy(callbacks, s.onChange)
	s.mu.Unlock()

	s.logger.Info("settings updated",
		"provider", upd.Providers.Default,
		"mode", upd.Analysis.Mode,
	)
	for _, fn := range callbacks {
		fn(cloneConfig(upd))
	}
	return nil
}

// storedConfig is the repository representation with encrypted keys.
type storedConfig struct {
	Providers storedProviders         `json:"providers"`
	Analysis  domain.AnalysisSettings `json:"analysis"`
}

type storedProviders struct {
	Default               string                                `json:"default"`
	Model                 string                                `json:"model"`
	Temperature           float64                               `json:"temperature"`
	EncryptedAnthropicKey string                                `json:"encrypted_anthropic_key,omitempty"`
	EncryptedOpenAIKey    string                                `json:"encrypted_openai_key,omitempty"`
	OllamaBaseURL         string                                `json:"ollama_base_url"`
	Tasks                 map[domain.TaskName]domain.TaskConfig `json:"tasks,omitempty"`
}

func (s *SettingsStore) load(ctx context.Context) (*domain.AppConfig, error) {
	raw, err := s.repo.GetSetting(ctx, settingsKey)
	if err != nil {
		return nil, err
	}

	var stored storedConfig
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	cfg := &domain.AppConfig{
		Providers: domain.ProviderSettings{
			Default:       stored.Providers.Default,
			Model:         stored.Providers.Model,
			Temperature:   stored.Providers.Temperature,
			OllamaBaseURL: stored.Providers.OllamaBaseURL,
			Tasks:         stored.Providers.Tasks,
		},
		Analysis: stored.Analysis,
	}

	if stored.Providers.EncryptedAnthropicKey != "" {
		key, err := s.secret.Decrypt(stored.Providers.EncryptedAnthropicKey)
		if err != nil {
			s.logger.Warn("failed to decrypt anthropic API key", "error", err)
		} else {
			cfg.Providers.AnthropicAPIKey = key
		}
	}
	if stored.Providers.EncryptedOpenAIKey != "" {
		key, err := s.secret.Decrypt(stored.Providers.EncryptedOpenAIKey)
		if err != nil {
			s.logger.Warn("failed to decrypt openai API key", "error", err)
		} else {
			cfg.Providers.OpenAIAPIKey = key
		}
	}
	return cfg, nil
}

func (s *SettingsStore) save(ctx context.Context, cfg *domain.AppConfig) error {
	stored := storedConfig{
		Providers: storedProviders{
			Default:       cfg.Providers.Default,
			Model:         cfg.Providers.Model,
			Temperature:   cfg.Providers.Temperature,
			OllamaBaseURL: cfg.Providers.OllamaBaseURL,
			Tasks:         cfg.Providers.Tasks,
		},
		Analysis: cfg.Analysis,
	}

	if cfg.Providers.AnthropicAPIKey != "" {
		enc, err := s.secret.Encrypt(cfg.Providers.AnthropicAPIKey)
		if err != nil {
			return fmt.Errorf("encrypt anthropic API key: %w", err)
		}
		stored.Providers.EncryptedAnthropicKey = enc
	}
	if cfg.Providers.OpenAIAPIKey != "" {
		enc, err := s.secret.Encrypt(cfg.Providers.OpenAIAPIKey)
		if err != nil {
			return fmt.Errorf("encrypt openai API key: %w", err)
		}
		stored.Providers.EncryptedOpenAIKey = enc
	}

	raw, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	return s.repo.SaveSetting(ctx, settingsKey, string(raw))
}

func cloneConfig(cfg *domain.AppConfig) *domain.AppConfig {
	cp := *cfg
	cp.Providers.Tasks = maps.Clone(cfg.Providers.Tasks)
	return &cp
}

func isMasked(s string) bool {
	return len(s) >= 4 && s[:4] == "****"
}
