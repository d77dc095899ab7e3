package config

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/SkybrushThriftwood/processIQ/internal/core/domain"
	"github.com/SkybrushThriftwood/processIQ/internal/core/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSettingsRepo struct {
	mu sync.Mutex
	m  map[string]string
}

func newFakeSettingsRepo() *fakeSettingsRepo {
	return &fakeSettingsRepo{m: make(map[string]string)}
}

func (r *fakeSettingsRepo) GetSetting(_ context.Context, key string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.m[key]
	if !ok {
		return "", ports.ErrNotFound
	}
	return v, nil
}

func (r *fakeSettingsRepo) SaveSetting(_ context.Context, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[key] = value
	return nil
}

func (r *fakeSettingsRepo) raw(key string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.m[key]
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSecret(t *testing.T) *SecretKey {
	t.Helper()
	t.Setenv("PROCESSIQ_SECRET_KEY", "settings-store-test-key")
	secret, err := NewSecretKey()
	require.NoError(t, err)
	return secret
}

func TestSettingsStoreSeedsDefaults(t *testing.T) {
	repo := newFakeSettingsRepo()
	store, err := NewSettingsStore(testLogger(), repo, testSecret(t), nil)
	require.NoError(t, err)

	cfg := store.GetConfig()
	assert.Equal(t, "openai", cfg.Providers.Default)
	assert.Equal(t, domain.ModeBalanced, cfg.Analysis.Mode)
	assert.NotEmpty(t, repo.raw("app_config"))
}

func TestSettingsStoreEncryptsSecretsAtRest(t *testing.T) {
	repo := newFakeSettingsRepo()
	secret := testSecret(t)

	defaults := domain.DefaultConfig()
	defaults.Providers.AnthropicAPIKey = "sk-ant-secret123"
	_, err := NewSettingsStore(testLogger(), repo, secret, defaults)
	require.NoError(t, err)

	stored := repo.raw("app_config")
	assert.Contains(t, stored, "enc:")
	assert.NotContains(t, stored, "sk-ant-secret123")

	// A second store over the same repository decrypts what the first saved.
	reopened, err := NewSettingsStore(testLogger(), repo, secret, nil)
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-secret123", reopened.GetConfig().Providers.AnthropicAPIKey)
}

func TestSettingsStoreMasksSecrets(t *testing.T) {
	defaults := domain.DefaultConfig()
	defaults.Providers.AnthropicAPIKey = "sk-ant-secret123"
	defaults.Providers.OpenAIAPIKey = "sk-oa-secret456"

	store, err := NewSettingsStore(testLogger(), newFakeSettingsRepo(), testSecret(t), defaults)
	require.NoError(t, err)

	masked := store.GetMaskedConfig()
	assert.Equal(t, "****t123", masked.Providers.AnthropicAPIKey)
	assert.Equal(t, "****t456", masked.Providers.OpenAIAPIKey)

	// Masking must not leak back into the stored config.
	assert.Equal(t, "sk-ant-secret123", store.GetConfig().Providers.AnthropicAPIKey)
}

func TestSettingsStoreUpdateKeepsMaskedSecrets(t *testing.T) {
	defaults := domain.DefaultConfig()
	defaults.Providers.AnthropicAPIKey = "sk-ant-secret123"

	store, err := NewSettingsStore(testLogger(), newFakeSettingsRepo(), testSecret(t), defaults)
	require.NoError(t, err)

	upd := store.GetMaskedConfig()
	upd.Analysis.Mode = domain.ModeDeepAnalysis
	require.NoError(t, store.UpdateConfig(context.Background(), upd))

	cfg := store.GetConfig()
	assert.Equal(t, domain.ModeDeepAnalysis, cfg.Analysis.Mode)
	assert.Equal(t, "sk-ant-secret123", cfg.Providers.AnthropicAPIKey)

	upd = store.GetConfig()
	upd.Providers.AnthropicAPIKey = "sk-ant-rotated"
	require.NoError(t, store.UpdateConfig(context.Background(), upd))
	assert.Equal(t, "sk-ant-rotated", store.GetConfig().Providers.AnthropicAPIKey)
}

func TestSettingsStoreUpdateValidates(t *testing.T) {
	store, err := NewSettingsStore(testLogger(), newFakeSettingsRepo(), testSecret(t), nil)
	require.NoError(t, err)

	upd := store.GetConfig()
	upd.Analysis.ConfidenceThreshold = 1.5
	assert.Error(t, store.UpdateConfig(context.Background(), upd))
	assert.InDelta(t, 0.6, store.GetConfig().Analysis.ConfidenceThreshold, 1e-9)
}

func TestSettingsStoreOnChange(t *testing.T) {
	store, err := NewSettingsStore(testLogger(), newFakeSettingsRepo(), testSecret(t), nil)
	require.NoError(t, err)

	var got *domain.AppConfig
	store.OnChange(func(cfg *domain.AppConfig) {
		// Callbacks run outside the lock, so reading back must not deadlock.
		_ = store.GetConfig()
		got = cfg
	})

	upd := store.GetConfig()
	upd.Providers.Default = "ollama"
	require.NoError(t, store.UpdateConfig(context.Background(), upd))

	require.NotNil(t, got)
	assert.Equal(t, "ollama", got.Providers.Default)

	// The callback owns its copy.
	got.Providers.Default = "mutated"
	assert.Equal(t, "ollama", store.GetConfig().Providers.Default)
}

func TestSettingsStoreRecoversFromCorruptData(t *testing.T) {
	repo := newFakeSettingsRepo()
	repo.m["app_config"] = "{not json"

	store, err := NewSettingsStore(testLogger(), repo, testSecret(t), nil)
	require.NoError(t, err)
	assert.Equal(t, "openai", store.GetConfig().Providers.Default)
	assert.NotEqual(t, "{not json", repo.raw("app_config"))
}
