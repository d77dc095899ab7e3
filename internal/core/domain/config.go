package domain

// TaskName identifies a model task for per-task configuration.
type TaskName string

const (
	TaskExtraction    TaskName = "extraction"
	TaskClarification TaskName = "clarification"
	TaskExplanation   TaskName = "explanation"
	TaskAnalysis      TaskName = "analysis"
)

// AnalysisModeName selects a cost/quality preset tier.
type AnalysisModeName string

const (
	ModeCostOptimized AnalysisModeName = "cost_optimized"
	ModeBalanced      AnalysisModeName = "balanced"
	ModeDeepAnalysis  AnalysisModeName = "deep_analysis"
)

// TaskConfig overrides provider, model or temperature for one task.
// Nil/empty fields fall through to the global configuration.
type TaskConfig struct {
	Provider    string   `json:"provider,omitempty"`
	Model       string   `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// ProviderSettings configures the model providers.
type ProviderSettings struct {
	Default         string                  `json:"default"`                     // "openai", "anthropic", "ollama"
	Model           string                  `json:"model"`                       // empty = provider default
	Temperature     float64                 `json:"temperature"`                 // 0..2
	AnthropicAPIKey string                  `json:"anthropic_api_key,omitempty"` // encrypted in storage
	OpenAIAPIKey    string                  `json:"openai_api_key,omitempty"`    // encrypted in storage
	OllamaBaseURL   string                  `json:"ollama_base_url"`
	Tasks           map[TaskName]TaskConfig `json:"tasks,omitempty"`
}

// AnalysisSettings configures run behavior.
type AnalysisSettings struct {
	Mode                AnalysisModeName `json:"mode"`
	MaxCycles           int              `json:"max_cycles"`
	ConfidenceThreshold float64          `json:"confidence_threshold"`
	ExplanationsEnabled bool             `json:"explanations_enabled"`
}

// AppConfig is the runtime-updatable application configuration, persisted
// through the settings store.
type AppConfig struct {
	Providers ProviderSettings `json:"providers"`
	Analysis  AnalysisSettings `json:"analysis"`
}

// DefaultConfig returns safe defaults.
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Providers: ProviderSettings{
			Default:       "openai",
			Temperature:   0,
			OllamaBaseURL: "http://localhost:11434",
		},
		Analysis: AnalysisSettings{
			Mode:                ModeBalanced,
			MaxCycles:           5,
			ConfidenceThreshold: 0.6,
			ExplanationsEnabled: true,
		},
	}
}
