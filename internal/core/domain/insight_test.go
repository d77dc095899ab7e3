package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeLinks(t *testing.T) {
	insight := &AnalysisInsight{
		Issues: []Issue{
			{Title: "Review bottleneck at approval", Severity: "high"},
			{Title: "Manual data entry errors", Severity: "medium"},
		},
		Recommendations: []Recommendation{
			{Title: "r1", AddressesIssue: "Review bottleneck at approval"},
			{Title: "r2", AddressesIssue: "manual data entry errors"},
			{Title: "r3", AddressesIssue: "data entry"},
			{Title: "r4", AddressesIssue: "something unrelated"},
			{Title: "r5", AddressesIssue: ""},
		},
	}

	insight.NormalizeLinks()

	assert.Equal(t, "Review bottleneck at approval", insight.Recommendations[0].AddressesIssue)
	assert.Equal(t, "Manual data entry errors", insight.Recommendations[1].AddressesIssue, "case-insensitive match")
	assert.Equal(t, "Manual data entry errors", insight.Recommendations[2].AddressesIssue, "unique substring match")
	assert.Equal(t, "something unrelated", insight.Recommendations[3].AddressesIssue, "unresolved left as-is")
	assert.Equal(t, "", insight.Recommendations[4].AddressesIssue)
}

func TestNormalizeLinksAmbiguousSubstring(t *testing.T) {
	insight := &AnalysisInsight{
		Issues: []Issue{
			{Title: "Slow review of invoices"},
			{Title: "Slow review of contracts"},
		},
		Recommendations: []Recommendation{
			{Title: "r", AddressesIssue: "slow review"},
		},
	}
	insight.NormalizeLinks()
	assert.Equal(t, "slow review", insight.Recommendations[0].AddressesIssue, "ambiguous substring stays untouched")
}

func TestHighSeverityCount(t *testing.T) {
	insight := &AnalysisInsight{
		Issues: []Issue{{Severity: "high"}, {Severity: "low"}, {Severity: "high"}},
	}
	assert.Equal(t, 2, insight.HighSeverityCount())
}
