package providers

import (
	"testing"

	"github.com/SkybrushThriftwood/processIQ/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const insightJSON = `{
  "process_summary": "Five-step expense approval flow",
  "issues": [{"title": "Approval bottleneck", "severity": "high"}],
  "recommendations": [{"title": "Delegate approvals", "addresses_issue": "Approval bottleneck", "description": "Allow team leads to approve small amounts"}]
}`

func TestParseInsight(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"plain json", insightJSON},
		{"json fence", "Here is the analysis:\n```json\n" + insightJSON + "\n```\nLet me know."},
		{"bare fence", "```\n" + insightJSON + "\n```"},
		{"prose wrapped", "Based on the metrics, " + insightJSON + " covers everything I found."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			insight, err := parseInsight(tt.content)
			require.NoError(t, err)
			assert.Equal(t, "Five-step expense approval flow", insight.ProcessSummary)
			require.Len(t, insight.Issues, 1)
			assert.Equal(t, "Approval bottleneck", insight.Issues[0].Title)
			require.Len(t, insight.Recommendations, 1)
			assert.Equal(t, "Delegate approvals", insight.Recommendations[0].Title)
		})
	}
}

func TestParseInsightFailures(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantKind domain.TransientKind
	}{
		{"whitespace only", "   \n\t", domain.TransientEmpty},
		{"no json at all", "I could not analyze this process.", domain.TransientMalformed},
		{"unclosed object", `{"process_summary": "truncated`, domain.TransientMalformed},
		{"invalid json in fence", "```json\n{\"process_summary\": }\n```", domain.TransientMalformed},
		{"empty fence", "```json``` nothing here", domain.TransientMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseInsight(tt.content)
			require.Error(t, err)

			var transient *domain.ModelTransientError
			require.ErrorAs(t, err, &transient)
			assert.Equal(t, tt.wantKind, transient.Kind)
		})
	}
}

func TestExtractJSONPrefersJSONFence(t *testing.T) {
	content := "```json\n{\"a\": 1}\n```\nand also ```\n{\"b\": 2}\n```"
	got, ok := extractJSON(content)
	require.True(t, ok)
	assert.Equal(t, `{"a": 1}`, got)
}

func TestExtractJSONBraceScanSpansProse(t *testing.T) {
	content := `prefix {"a": {"nested": true}} suffix`
	got, ok := extractJSON(content)
	require.True(t, ok)
	assert.Equal(t, `{"a": {"nested": true}}`, got)
}
