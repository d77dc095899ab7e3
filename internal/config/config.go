// Package config loads process-level settings from the environment and
// manages the runtime-updatable application settings with encrypted
// secrets.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/SkybrushThriftwood/processIQ/internal/core/domain"
)

// EnvPrefix is the prefix of every environment variable the service
// reads.
const EnvPrefix = "PROCESSIQ_"

// Settings is the process-level configuration, read once at startup.
// App seeds the settings store on first run; the remaining fields stay
// fixed for the process lifetime.
type Settings struct {
	PersistenceEnabled bool
	DBPath             string
	HTTPAddr           string
	RequestTimeout     time.Duration
	LogLevel           slog.Level
	MaxConcurrentRuns  int64
	PresetsFile        string
	App                domain.AppConfig
}

// Load reads settings from the environment, applying defaults for unset
// variables and rejecting values outside their valid range.
func Load() (*Settings, error) {
	s := &Settings{
		PersistenceEnabled: true,
		DBPath:             "data/processiq.db",
		HTTPAddr:           ":8080",
		RequestTimeout:     120 * time.Second,
		LogLevel:           slog.LevelInfo,
		MaxConcurrentRuns:  4,
		PresetsFile:        os.Getenv(EnvPrefix + "PRESETS_FILE"),
		App:                *domain.DefaultConfig(),
	}

	var err error
	if s.PersistenceEnabled, err = envBool("PERSISTENCE_ENABLED", s.PersistenceEnabled); err != nil {
		return nil, err
	}
	s.DBPath = envString("DB_PATH", s.DBPath)
	s.HTTPAddr = envString("HTTP_ADDR", s.HTTPAddr)
	if s.RequestTimeout, err = envDuration("REQUEST_TIMEOUT", s.RequestTimeout); err != nil {
		return nil, err
	}
	if raw := os.Getenv(EnvPrefix + "LOG_LEVEL"); raw != "" {
		if s.LogLevel, err = parseLogLevel(raw); err != nil {
			return nil, fmt.Errorf("%sLOG_LEVEL: %w", EnvPrefix, err)
		}
	}
	maxRuns, err := envInt("MAX_CONCURRENT_RUNS", int(s.MaxConcurrentRuns))
	if err != nil {
		return nil, err
	}
	s.MaxConcurrentRuns = int64(maxRuns)

	p := &s.App.Providers
	p.Default = envString("PROVIDER", p.Default)
	p.Model = envString("MODEL", p.Model)
	if p.Temperature, err = envFloat("TEMPERATURE", p.Temperature); err != nil {
		return nil, err
	}
	p.AnthropicAPIKey = envString("ANTHROPIC_API_KEY", "")
	p.OpenAIAPIKey = envString("OPENAI_API_KEY", "")
	p.OllamaBaseURL = envString("OLLAMA_BASE_URL", p.OllamaBaseURL)
	if err := loadTaskOverrides(p); err != nil {
		return nil, err
	}

	a := &s.App.Analysis
	a.Mode = domain.AnalysisModeName(envString("MODE", string(a.Mode)))
	if a.MaxCycles, err = envInt("MAX_CYCLES", a.MaxCycles); err != nil {
		return nil, err
	}
	if a.ConfidenceThreshold, err = envFloat("CONFIDENCE_THRESHOLD", a.ConfidenceThreshold); err != nil {
		return nil, err
	}
	if a.ExplanationsEnabled, err = envBool("EXPLANATIONS_ENABLED", a.ExplanationsEnabled); err != nil {
		return nil, err
	}

	if err := ValidateApp(&s.App); err != nil {
		return nil, err
	}
	return s, nil
}

// loadTaskOverrides reads PROCESSIQ_TASK_<NAME>_{PROVIDER,MODEL,TEMPERATURE}
// for each model task.
func loadTaskOverrides(p *domain.ProviderSettings) error {
	tasks := []domain.TaskName{
		domain.TaskExtraction,
		domain.TaskClarification,
		domain.TaskExplanation,
		domain.TaskAnalysis,
	}
	for _, task := range tasks {
		prefix := "TASK_" + strings.ToUpper(string(task)) + "_"
		tc := domain.TaskConfig{
			Provider: envString(prefix+"PROVIDER", ""),
			Model:    envString(prefix+"MODEL", ""),
		}
		if raw := os.Getenv(EnvPrefix + prefix + "TEMPERATURE"); raw != "" {
			f, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return fmt.Errorf("%s%sTEMPERATURE: %w", EnvPrefix, prefix, err)
			}
			tc.Temperature = &f
		}
		if tc == (domain.TaskConfig{}) {
			continue
		}
		if p.Tasks == nil {
			p.Tasks = make(map[domain.TaskName]domain.TaskConfig)
		}
		p.Tasks[task] = tc
	}
	return nil
}

// ValidateApp checks the ranges of the runtime-updatable settings. The
// settings store runs it on every update.
func ValidateApp(cfg *domain.AppConfig) error {
	if !ValidProvider(cfg.Providers.Default) {
		return fmt.Errorf("unsupported provider %q", cfg.Providers.Default)
	}
	if cfg.Providers.Temperature < 0 || cfg.Providers.Temperature > 2 {
		return fmt.Errorf("temperature %g out of range 0..2", cfg.Providers.Temperature)
	}
	for task, tc := range cfg.Providers.Tasks {
		if tc.Provider != "" && !ValidProvider(tc.Provider) {
			return fmt.Errorf("task %s: unsupported provider %q", task, tc.Provider)
		}
		if tc.Temperature != nil && (*tc.Temperature < 0 || *tc.Temperature > 2) {
			return fmt.Errorf("task %s: temperature %g out of range 0..2", task, *tc.Temperature)
		}
	}
	switch cfg.Analysis.Mode {
	case domain.ModeCostOptimized, domain.ModeBalanced, domain.ModeDeepAnalysis:
	default:
		return fmt.Errorf("unknown analysis mode %q", cfg.Analysis.Mode)
	}
	if cfg.Analysis.MaxCycles < 0 {
		return fmt.Errorf("max cycles cannot be negative")
	}
	if cfg.Analysis.ConfidenceThreshold < 0 || cfg.Analysis.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence threshold %g out of range 0..1", cfg.Analysis.ConfidenceThreshold)
	}
	return nil
}

// ValidProvider reports whether the provider name is one the gateway can
// build.
func ValidProvider(name string) bool {
	switch name {
	case "anthropic", "openai", "ollama":
		return true
	}
	return false
}

func envString(name, def string) string {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		return v
	}
	return def
}

func envBool(name string, def bool) (bool, error) {
	raw := os.Getenv(EnvPrefix + name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
	}
	return v, nil
}

func envInt(name string, def int) (int, error) {
	raw := os.Getenv(EnvPrefix + name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
	}
	return v, nil
}

func envFloat(name string, def float64) (float64, error) {
	raw := os.Getenv(EnvPrefix + name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
	}
	return v, nil
}

func envDuration(name string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(EnvPrefix + name)
	if raw == "" {
		return def, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
	}
	return v, nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToUpper(raw) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", raw)
}
