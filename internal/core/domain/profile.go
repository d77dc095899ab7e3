package domain

import "time"

// Industry buckets the business into a broad vertical.
type Industry string

const (
	IndustryFinancialServices Industry = "financial_services"
	IndustryHealthcare        Industry = "healthcare"
	IndustryManufacturing     Industry = "manufacturing"
	IndustryRetail            Industry = "retail"
	IndustryTechnology        Industry = "technology"
	IndustryProfessional      Industry = "professional_services"
	IndustryPublicSector      Industry = "public_sector"
	IndustryOther             Industry = "other"
)

// CompanySize buckets headcount.
type CompanySize string

const (
	SizeStartup    CompanySize = "startup"
	SizeSmall      CompanySize = "small"
	SizeMidMarket  CompanySize = "mid_market"
	SizeEnterprise CompanySize = "enterprise"
)

// RegulatoryEnvironment describes how constrained the business is by regulation.
type RegulatoryEnvironment string

const (
	RegulatoryMinimal         RegulatoryEnvironment = "minimal"
	RegulatoryModerate        RegulatoryEnvironment = "moderate"
	RegulatoryStrict          RegulatoryEnvironment = "strict"
	RegulatoryHighlyRegulated RegulatoryEnvironment = "highly_regulated"
)

// BusinessProfile is durable context about the business that analyses
// should be tailored to.
type BusinessProfile struct {
	Industry              Industry              `json:"industry"`
	CustomIndustry        string                `json:"custom_industry,omitempty"`
	CompanySize           CompanySize           `json:"company_size"`
	RegulatoryEnvironment RegulatoryEnvironment `json:"regulatory_environment"`
	TypicalConstraints    []string              `json:"typical_constraints,omitempty"`
	PreferredFrameworks   []string              `json:"preferred_frameworks,omitempty"`
	PreviousImprovements  []string              `json:"previous_improvements,omitempty"`
	RejectedApproaches    []string              `json:"rejected_approaches,omitempty"`
	Notes                 string                `json:"notes,omitempty"`
}

// IndustryLabel returns the display name for the industry, preferring the
// custom name when the industry is "other".
func (p *BusinessProfile) IndustryLabel() string {
	if p.Industry == IndustryOther && p.CustomIndustry != "" {
		return p.CustomIndustry
	}
	return string(p.Industry)
}

// AnalysisMemory is the outcome record of one past analysis, used to learn
// which kinds of suggestions this business accepts.
type AnalysisMemory struct {
	ID                  string    `json:"id"`
	Timestamp           time.Time `json:"timestamp"`
	ProcessName         string    `json:"process_name"`
	BottlenecksFound    []string  `json:"bottlenecks_found,omitempty"`
	SuggestionsOffered  []string  `json:"suggestions_offered,omitempty"`
	SuggestionsAccepted []string  `json:"suggestions_accepted,omitempty"`
	SuggestionsRejected []string  `json:"suggestions_rejected,omitempty"`
	RejectionReasons    []string  `json:"rejection_reasons,omitempty"`
	OutcomeNotes        string    `json:"outcome_notes,omitempty"`
}

// AcceptanceRate returns accepted / (accepted + rejected), or 0 when no
// suggestion got a verdict.
func (m *AnalysisMemory) AcceptanceRate() float64 {
	total := len(m.SuggestionsAccepted) + len(m.SuggestionsRejected)
	if total == 0 {
		return 0
	}
	return float64(len(m.SuggestionsAccepted)) / float64(total)
}
