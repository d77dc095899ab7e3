package config

import (
	"fmt"
	"os"

	"github.com/SkybrushThriftwood/processIQ/internal/core/domain"
	"gopkg.in/yaml.v3"
)

// Presets maps provider, analysis mode and task to a model id, plus a
// per-provider fallback model. The built-in table can be overridden per
// entry from a YAML file.
type Presets struct {
	Models   map[string]map[domain.AnalysisModeName]map[domain.TaskName]string
	Defaults map[string]string
}

// ModelForTask returns the preset model for the combination, or "" when
// no preset matches.
func (p Presets) ModelForTask(provider string, mode domain.AnalysisModeName, task domain.TaskName) string {
	return p.Models[provider][mode][task]
}

// DefaultModel returns the provider's fallback model, or "".
func (p Presets) DefaultModel(provider string) string {
	return p.Defaults[provider]
}

func (p *Presets) set(provider string, mode domain.AnalysisModeName, task domain.TaskName, model string) {
	if p.Models == nil {
		p.Models = make(map[string]map[domain.AnalysisModeName]map[domain.TaskName]string)
	}
	if p.Models[provider] == nil {
		p.Models[provider] = make(map[domain.AnalysisModeName]map[domain.TaskName]string)
	}
	if p.Models[provider][mode] == nil {
		p.Models[provider][mode] = make(map[domain.TaskName]string)
	}
	p.Models[provider][mode][task] = model
}

// DefaultPresets returns the built-in table. Extraction and clarification
// stay on cheap models in every tier; the analysis and explanation models
// scale with the mode. Ollama runs whatever single local model is pulled.
func DefaultPresets() Presets {
	return Presets{
		Models: map[string]map[domain.AnalysisModeName]map[domain.TaskName]string{
			"openai": {
				domain.ModeCostOptimized: {
					domain.TaskExtraction:    "gpt-4o-mini",
					domain.TaskClarification: "gpt-4o-mini",
					domain.TaskExplanation:   "gpt-5-nano",
					domain.TaskAnalysis:      "gpt-5-nano",
				},
				domain.ModeBalanced: {
					domain.TaskExtraction:    "gpt-4o-mini",
					domain.TaskClarification: "gpt-4o-mini",
					domain.TaskExplanation:   "gpt-5-mini",
					domain.TaskAnalysis:      "gpt-5-mini",
				},
				domain.ModeDeepAnalysis: {
					domain.TaskExtraction:    "gpt-4o-mini",
					domain.TaskClarification: "gpt-4o-mini",
					domain.TaskExplanation:   "gpt-5",
					domain.TaskAnalysis:      "gpt-5",
				},
			},
			"anthropic": {
				domain.ModeCostOptimized: {
					domain.TaskExtraction:    "claude-haiku-4-5-20251001",
					domain.TaskClarification: "claude-haiku-4-5-20251001",
					domain.TaskExplanation:   "claude-haiku-4-5-20251001",
					domain.TaskAnalysis:      "claude-haiku-4-5-20251001",
				},
				domain.ModeBalanced: {
					domain.TaskExtraction:    "claude-haiku-4-5-20251001",
					domain.TaskClarification: "claude-haiku-4-5-20251001",
					domain.TaskExplanation:   "claude-sonnet-4-5-20250929",
					domain.TaskAnalysis:      "claude-sonnet-4-5-20250929",
				},
				domain.ModeDeepAnalysis: {
					domain.TaskExtraction:    "claude-sonnet-4-5-20250929",
					domain.TaskClarification: "claude-sonnet-4-5-20250929",
					domain.TaskExplanation:   "claude-sonnet-4-5-20250929",
					domain.TaskAnalysis:      "claude-sonnet-4-5-20250929",
				},
			},
			"ollama": {
				domain.ModeCostOptimized: ollamaTasks("qwen3:8b"),
				domain.ModeBalanced:      ollamaTasks("qwen3:8b"),
				domain.ModeDeepAnalysis:  ollamaTasks("qwen3:8b"),
			},
		},
		Defaults: map[string]string{
			"openai":    "gpt-5-nano",
			"anthropic": "claude-haiku-4-5-20251001",
			"ollama":    "qwen3:8b",
		},
	}
}

func ollamaTasks(model string) map[domain.TaskName]string {
	return map[domain.TaskName]string{
		domain.TaskExtraction:    model,
		domain.TaskClarification: model,
		domain.TaskExplanation:   model,
		domain.TaskAnalysis:      model,
	}
}

// presetsFile is the YAML override shape: models.<provider>.<mode>.<task>
// and defaults.<provider>.
type presetsFile struct {
	Models   map[string]map[string]map[string]string `yaml:"models"`
	Defaults map[string]string                       `yaml:"defaults"`
}

// LoadPresets merges a YAML override file over the built-in table. Each
// entry in the file replaces only that entry; everything else keeps its
// built-in value. An empty path returns the built-ins.
func LoadPresets(path string) (Presets, error) {
	presets := DefaultPresets()
	if path == "" {
		return presets, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Presets{}, fmt.Errorf("read presets file: %w", err)
	}
	var file presetsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return Presets{}, fmt.Errorf("parse presets file %s: %w", path, err)
	}

	for provider, modes := range file.Models {
		for mode, tasks := range modes {
			for task, model := range tasks {
				presets.set(provider, domain.AnalysisModeName(mode), domain.TaskName(task), model)
			}
		}
	}
	for provider, model := range file.Defaults {
		presets.Defaults[provider] = model
	}
	return presets, nil
}
