package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/SkybrushThriftwood/processIQ/internal/core/domain"
	"github.com/SkybrushThriftwood/processIQ/internal/core/ports"
	"github.com/SkybrushThriftwood/processIQ/internal/prompts"
)

// draftConfidenceThreshold gates the draft analysis: below it the data is
// too thin for a preview to be worth a model call.
const draftConfidenceThreshold = 0.5

// ExtractionExtras is what the enricher adds to a fresh extraction.
// Either slot may be empty when its task was skipped or failed.
type ExtractionExtras struct {
	ImprovementSuggestions string
	DraftInsight           *domain.AnalysisInsight
}

// PostExtractionEnricher generates the two model-backed extras after an
// extraction: data-quality suggestions for the user and a draft analysis
// preview. The tasks are independent and run in parallel; each one reads
// the same immutable snapshot and writes only its own output slot. A task
// failure is logged and degrades to an empty slot, never failing the
// extraction itself.
type PostExtractionEnricher struct {
	logger  *slog.Logger
	gateway ports.ModelGateway
	engine  *MetricsEngine
	cfg     domain.AnalysisSettings
}

// NewPostExtractionEnricher wires the enricher.
func NewPostExtractionEnricher(logger *slog.Logger, gateway ports.ModelGateway, engine *MetricsEngine, cfg domain.AnalysisSettings) *PostExtractionEnricher {
	return &PostExtractionEnricher{logger: logger, gateway: gateway, engine: engine, cfg: cfg}
}

// Enrich runs both tasks and joins the results.
func (e *PostExtractionEnricher) Enrich(ctx context.Context, process *domain.ProcessData, confidence *domain.ConfidenceScore, mode, provider string) ExtractionExtras {
	var extras ExtractionExtras

	var g errgroup.Group
	g.Go(func() error {
		extras.ImprovementSuggestions = e.improvementSuggestions(ctx, process, confidence, mode, provider)
		return nil
	})
	g.Go(func() error {
		extras.DraftInsight = e.draftAnalysis(ctx, process, confidence, mode, provider)
		return nil
	})
	_ = g.Wait()

	return extras
}

// improvementSuggestions asks the model for a short, encouraging note on
// what data to add before running the analysis.
func (e *PostExtractionEnricher) improvementSuggestions(ctx context.Context, process *domain.ProcessData, confidence *domain.ConfidenceScore, mode, provider string) string {
	if !e.cfg.ExplanationsEnabled {
		e.logger.Debug("model explanations disabled, skipping improvement suggestions")
		return ""
	}

	var withTime, withCost, withErrors, withDeps int
	for i := range process.Steps {
		step := &process.Steps[i]
		if step.AverageTimeHours != 0 {
			withTime++
		}
		if step.CostPerInstance != 0 {
			withCost++
		}
		if step.ErrorRatePct != 0 {
			withErrors++
		}
		if len(step.DependsOn) > 0 {
			withDeps++
		}
	}

	var gaps []string
	if confidence != nil {
		gaps = confidence.DataGaps
	}

	content, err := e.gateway.Generate(ctx, ports.ModelCall{
		Task:     domain.TaskExplanation,
		Provider: provider,
		Mode:     mode,
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: prompts.System(nil)},
			{Role: domain.RoleUser, Content: prompts.ImprovementSuggestions(
				process.Name, len(process.Steps), withTime, withCost, withErrors, withDeps, gaps)},
		},
	})
	if err != nil {
		e.logger.Warn("failed to generate improvement suggestions", "error", err)
		return ""
	}
	e.logger.Info("generated improvement suggestions", "chars", len(content))
	return strings.TrimSpace(content)
}

// draftAnalysis produces a preview insight before the user confirms the
// extraction. It runs only when the data already clears the draft
// threshold, and carries no business context: the draft is about the
// process shape, not the final judgment.
func (e *PostExtractionEnricher) draftAnalysis(ctx context.Context, process *domain.ProcessData, confidence *domain.ConfidenceScore, mode, provider string) *domain.AnalysisInsight {
	if confidence == nil || confidence.Score < draftConfidenceThreshold {
		e.logger.Debug("skipping draft analysis, confidence below threshold")
		return nil
	}
	if !e.cfg.ExplanationsEnabled {
		e.logger.Debug("model explanations disabled, skipping draft analysis")
		return nil
	}

	metricsText := FormatForModel(e.engine.Compute(process))
	e.logger.Info("generating draft analysis", "process", process.Name)

	call := ports.ModelCall{
		Task:     domain.TaskAnalysis,
		Provider: provider,
		Mode:     mode,
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: prompts.System(nil)},
			{Role: domain.RoleUser, Content: prompts.Analysis(metricsText, "", "", "", "")},
		},
	}

	insight, err := e.gateway.GenerateInsight(ctx, call)
	if err != nil && errors.Is(err, domain.ErrModelTransient) {
		e.logger.Warn("draft analysis call failed, retrying once", "error", err)
		insight, err = e.gateway.GenerateInsight(ctx, call)
	}
	if err != nil {
		e.logger.Warn("draft analysis failed", "error", err)
		return nil
	}

	insight.NormalizeLinks()
	e.logger.Info("draft analysis ready",
		"issues", len(insight.Issues), "recommendations", len(insight.Recommendations))
	return insight
}
