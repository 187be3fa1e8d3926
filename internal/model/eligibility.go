package model

// EligiblePolicy is a policy annotated by the eligibility stage
type EligiblePolicy struct {
	PolicyRecord
	EligibilityScore  float64      `json:"eligibility_score"`
	MatchedConditions []string     `json:"matched_conditions"`
	MissingConditions []string     `json:"missing_conditions"`
	Reason            string       `json:"reason,omitempty"`
	VerifiedIncome    *IncomeCheck `json:"verified_income,omitempty"`
	VerifiedAge       *AgeCheck    `json:"verified_age,omitempty"`
}

// IncomeCheck is the rule-table re-verification of an income ceiling
type IncomeCheck struct {
	Limit            int64  `json:"limit"`
	UserIncome       *int64 `json:"user_income"`
	MeetsIncomeLimit *bool  `json:"meets_income_limit"`
	Margin           *int64 `json:"margin,omitempty"`
	Note             string `json:"note,omitempty"`
}

// AgeCheck is the rule-table re-verification of an age window
type AgeCheck struct {
	MinAge              int    `json:"min_age"`
	MaxAge              int    `json:"max_age"`
	UserAge             *int   `json:"user_age"`
	MeetsAgeRequirement *bool  `json:"meets_age_requirement"`
	YearsRemaining      *int   `json:"years_remaining,omitempty"`
	Note                string `json:"note,omitempty"`
}

// EligibilityResult partitions the candidate policies into three buckets
type EligibilityResult struct {
	Eligible          []EligiblePolicy `json:"eligible_policies"`
	PartiallyEligible []EligiblePolicy `json:"partially_eligible_policies"`
	Ineligible        []EligiblePolicy `json:"ineligible_policies"`
	Summary           string           `json:"summary,omitempty"`
	Error             string           `json:"error,omitempty"`
}

// Applicable returns eligible followed by partially eligible policies.
func (r EligibilityResult) Applicable() []EligiblePolicy {
	out := make([]EligiblePolicy, 0, len(r.Eligible)+len(r.PartiallyEligible))
	out = append(out, r.Eligible...)
	return append(out, r.PartiallyEligible...)
}

// HasApplicable reports whether any policy is eligible or partially eligible.
func (r EligibilityResult) HasApplicable() bool {
	return len(r.Eligible) > 0 || len(r.PartiallyEligible) > 0
}

// Total is the number of classified policies.
func (r EligibilityResult) Total() int {
	return len(r.Eligible) + len(r.PartiallyEligible) + len(r.Ineligible)
}
