package providers

import (
	"encoding/json"
	"strings"

	"github.com/SkybrushThriftwood/processIQ/internal/core/domain"
)

// parseInsight decodes a model reply into an AnalysisInsight. Replies may
// wrap the JSON in Markdown fences or surrounding prose; parse failures
// are transient so the caller's retry policy applies.
func parseInsight(content string) (*domain.AnalysisInsight, error) {
	if strings.TrimSpace(content) == "" {
		return nil, domain.NewModelTransientError(domain.TransientEmpty, "empty analysis reply", nil)
	}

	jsonStr, ok := extractJSON(content)
	if !ok {
		return nil, domain.NewModelTransientError(domain.TransientMalformed, "no JSON object in analysis reply", nil)
	}

	var insight domain.AnalysisInsight
	if err := json.Unmarshal([]byte(jsonStr), &insight); err != nil {
		return nil, domain.NewModelTransientError(domain.TransientMalformed, "decode analysis reply", err)
	}
	return &insight, nil
}

// extractJSON pulls the JSON object out of a reply: a ```json fence first,
// then a bare ``` fence, then the outermost brace pair.
func extractJSON(content string) (string, bool) {
	jsonStr := content
	if i := strings.Index(content, "```json"); i >= 0 {
		start := i + len("```json")
		if end := strings.Index(content[start:], "```"); end > 0 {
			jsonStr = strings.TrimSpace(content[start : start+end])
		}
	} else if i := strings.Index(content, "```"); i >= 0 {
		start := i + 3
		if end := strings.Index(content[start:], "```"); end > 0 {
			jsonStr = strings.TrimSpace(content[start : start+end])
		}
	}

	if !strings.HasPrefix(strings.TrimSpace(jsonStr), "{") {
		first := strings.Index(content, "{")
		last := strings.LastIndex(content, "}")
		if first >= 0 && last > first {
			jsonStr = content[first : last+1]
		}
	}

	jsonStr = strings.TrimSpace(jsonStr)
	return jsonStr, strings.HasPrefix(jsonStr, "{")
}
