package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestROIEstimateExpectedValue(t *testing.T) {
	r := &ROIEstimate{
		PessimisticAnnualSavings: 600,
		LikelyAnnualSavings:      1200,
		OptimisticAnnualSavings:  1560,
	}
	assert.InDelta(t, (600+4*1200+1560)/6.0, r.ExpectedValue(), 1e-9)
}

func TestAnalysisMemoryAcceptanceRate(t *testing.T) {
	m := &AnalysisMemory{Timestamp: time.Now().UTC()}
	assert.Zero(t, m.AcceptanceRate())

	m.SuggestionsAccepted = []string{"a", "b", "c"}
	m.SuggestionsRejected = []string{"d"}
	assert.InDelta(t, 0.75, m.AcceptanceRate(), 1e-9)
}

func TestIndustryLabel(t *testing.T) {
	p := &BusinessProfile{Industry: IndustryHealthcare}
	assert.Equal(t, "healthcare", p.IndustryLabel())

	p = &BusinessProfile{Industry: IndustryOther, CustomIndustry: "logistics brokerage"}
	assert.Equal(t, "logistics brokerage", p.IndustryLabel())
}
