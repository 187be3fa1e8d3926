package model

// Rubric maxima for the five ranking factors
const (
	MaxBenefitScale          = 40.0
	MaxApplicationDifficulty = 25.0
	MaxPersonalFit           = 20.0
	MaxUrgency               = 10.0
	MaxStackability          = 5.0
)

// ScoreBreakdown is the five-factor ranking rubric
type ScoreBreakdown struct {
	BenefitScale          float64 `json:"benefit_scale"`
	ApplicationDifficulty float64 `json:"application_difficulty"`
	PersonalFit           float64 `json:"personal_fit"`
	Urgency               float64 `json:"urgency"`
	Stackability          float64 `json:"stackability"`
}

// Sum adds the five components.
func (b ScoreBreakdown) Sum() float64 {
	return b.BenefitScale + b.ApplicationDifficulty + b.PersonalFit + b.Urgency + b.Stackability
}

// ROIEstimate is the heuristic return on applying for a policy
type ROIEstimate struct {
	ExpectedBenefit    int64        `json:"expected_benefit"`
	EstimatedCost      int64        `json:"estimated_cost"`
	SuccessProbability float64      `json:"success_probability"`
	ROIPercent         float64      `json:"roi_percentage"`
	Verified           *VerifiedROI `json:"verified,omitempty"`
}

// VerifiedROI is the rule-based cross-check of an ROI estimate
type VerifiedROI struct {
	ExpectedBenefit int64   `json:"expected_benefit"`
	EstimatedCost   int64   `json:"estimated_cost"`
	ROIPercent      float64 `json:"roi_percentage"`
	Calculation     string  `json:"calculation"`
	Deviation       float64 `json:"deviation_ratio"`
}

// RankedPolicy is an applicable policy with its rank and score
type RankedPolicy struct {
	EligiblePolicy
	Rank           int            `json:"rank"`
	TotalScore     float64        `json:"total_score"`
	ScoreBreakdown ScoreBreakdown `json:"score_breakdown"`
	ROI            ROIEstimate    `json:"roi"`
	Recommendation string         `json:"recommendation"`
}

// StrategicInsights are derived purely from profile arithmetic
type StrategicInsights struct {
	BudgetOptimization   string `json:"budget_optimization,omitempty"`
	AgeWindow            string `json:"age_window,omitempty"`
	TotalExpectedBenefit int64  `json:"total_expected_benefit"`
}

// RankingResult is the output of the ranking stage
type RankingResult struct {
	RankedPolicies    []RankedPolicy    `json:"ranked_policies"`
	RankingRationale  string            `json:"ranking_rationale"`
	StrategicInsights StrategicInsights `json:"strategic_insights"`
	Error             string            `json:"error,omitempty"`
}

// Top returns at most n ranked policies.
func (r RankingResult) Top(n int) []RankedPolicy {
	if len(r.RankedPolicies) <= n {
		return r.RankedPolicies
	}
	return r.RankedPolicies[:n]
}
