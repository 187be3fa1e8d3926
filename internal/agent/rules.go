package agent

import (
	_ "embed"
	"fmt"
	"math"
	"os"

	"policychat/internal/model"
	"policychat/internal/utils"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

// ROI bases
const (
	BaseBudgetDeposit       = "budget_deposit"
	BaseBudgetMonthlyAnnual = "budget_monthly_annual"
	BaseFixed               = "fixed"
)

// Rules are the deterministic tables keyed by policy-title fragments.
// Title matching is brittle against rewording; a stable policy-id mapping
// should replace it once policy records carry persistent identifiers.
type Rules struct {
	Eligibility    []EligibilityRule `yaml:"eligibility"`
	ROI            []ROIRule         `yaml:"roi"`
	Deadlines      []DeadlineRule    `yaml:"deadlines"`
	Costs          CostTable         `yaml:"costs"`
	Checklist      []string          `yaml:"checklist"`
	SuccessMetrics struct {
		Quantitative []string `yaml:"quantitative"`
		Qualitative  []string `yaml:"qualitative"`
	} `yaml:"success_metrics"`
}

// EligibilityRule is an income ceiling and/or age window for a policy.
type EligibilityRule struct {
	Key         string `yaml:"key"`
	IncomeLimit int64  `yaml:"income_limit"`
	MinAge      int    `yaml:"min_age"`
	MaxAge      int    `yaml:"max_age"`
}

// ROIRule estimates expected benefit as min(base * ratio, cap).
type ROIRule struct {
	Key   string  `yaml:"key"`
	Base  string  `yaml:"base"`
	Ratio float64 `yaml:"ratio"`
	Cap   int64   `yaml:"cap"`
	Cost  int64   `yaml:"cost"`
}

// DeadlineRule is a known application window.
type DeadlineRule struct {
	Key      string `yaml:"key"`
	Deadline string `yaml:"deadline"`
	ActBy    string `yaml:"act_by"`
	Note     string `yaml:"note"`
}

// CostTable lists fixed application costs by category.
type CostTable struct {
	DocumentPreparation []model.CostItem `yaml:"document_preparation"`
	ApplicationFees     []model.CostItem `yaml:"application_fees"`
	OpportunityCosts    []model.CostItem `yaml:"opportunity_costs"`
}

// DefaultRules returns the embedded rule tables.
func DefaultRules() *Rules {
	r, err := parseRules(defaultRulesYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded rules.yaml is invalid: %v", err))
	}
	return r
}

// LoadRules reads a rule file; an empty path yields the embedded defaults.
func LoadRules(path string) (*Rules, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	return parseRules(raw)
}

func parseRules(raw []byte) (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	if len(r.Checklist) == 0 {
		return nil, fmt.Errorf("rules: checklist must not be empty")
	}
	for _, e := range r.Eligibility {
		if e.Key == "" {
			return nil, fmt.Errorf("rules: eligibility entry without key")
		}
		if e.MaxAge > 0 && e.MinAge > e.MaxAge {
			return nil, fmt.Errorf("rules: %s has min_age > max_age", e.Key)
		}
	}
	return &r, nil
}

func (r *Rules) eligibilityRule(title string) (EligibilityRule, bool) {
	for _, e := range r.Eligibility {
		if utils.TitleMatches(title, e.Key) {
			return e, true
		}
	}
	return EligibilityRule{}, false
}

func (r *Rules) roiRule(title string) (ROIRule, bool) {
	for _, e := range r.ROI {
		if utils.TitleMatches(title, e.Key) {
			return e, true
		}
	}
	return ROIRule{}, false
}

func (r *Rules) deadlineRule(title string) (DeadlineRule, bool) {
	for _, e := range r.Deadlines {
		if utils.TitleMatches(title, e.Key) {
			return e, true
		}
	}
	return DeadlineRule{}, false
}

// VerifyIncome checks the income ceiling of the matching rule, if any.
// Household income is preferred, then personal, then parents.
func (r *Rules) VerifyIncome(profile model.UserProfile, title string) *model.IncomeCheck {
	rule, ok := r.eligibilityRule(title)
	if !ok || rule.IncomeLimit <= 0 {
		return nil
	}
	check := &model.IncomeCheck{Limit: rule.IncomeLimit}
	income, ok := profile.Income()
	if !ok {
		check.Note = "소득 정보가 없어 확인할 수 없습니다"
		return check
	}
	meets := income <= rule.IncomeLimit
	margin := rule.IncomeLimit - income
	check.UserIncome = &income
	check.MeetsIncomeLimit = &meets
	check.Margin = &margin
	if meets {
		check.Note = fmt.Sprintf("소득 기준 %s 대비 %s 여유", utils.FormatWon(rule.IncomeLimit), utils.FormatWon(margin))
	} else {
		check.Note = fmt.Sprintf("소득 기준 %s을 %s 초과", utils.FormatWon(rule.IncomeLimit), utils.FormatWon(-margin))
	}
	return check
}

// VerifyAge checks the age window of the matching rule, if any.
func (r *Rules) VerifyAge(profile model.UserProfile, title string) *model.AgeCheck {
	rule, ok := r.eligibilityRule(title)
	if !ok || rule.MaxAge <= 0 {
		return nil
	}
	check := &model.AgeCheck{MinAge: rule.MinAge, MaxAge: rule.MaxAge}
	if profile.Age == nil {
		check.Note = "나이 정보가 없어 확인할 수 없습니다"
		return check
	}
	age := *profile.Age
	meets := age >= rule.MinAge && age <= rule.MaxAge
	check.UserAge = &age
	check.MeetsAgeRequirement = &meets
	if meets {
		remaining := rule.MaxAge - age
		check.YearsRemaining = &remaining
		check.Note = fmt.Sprintf("만 %d세까지 %d년 남음", rule.MaxAge, remaining)
	} else {
		check.Note = fmt.Sprintf("연령 기준 만 %d~%d세에 해당하지 않음", rule.MinAge, rule.MaxAge)
	}
	return check
}

// VerifyROI recomputes an ROI estimate for policies with a known formula.
// llmBenefit is compared against the rule result to report the deviation.
func (r *Rules) VerifyROI(profile model.UserProfile, title string, llmBenefit int64, successProbability float64) *model.VerifiedROI {
	rule, ok := r.roiRule(title)
	if !ok {
		return nil
	}

	var base int64
	var baseDesc string
	switch rule.Base {
	case BaseBudgetDeposit:
		if profile.BudgetDeposit == nil {
			return nil
		}
		base = *profile.BudgetDeposit
		baseDesc = "보증금 예산 " + utils.FormatWon(base)
	case BaseBudgetMonthlyAnnual:
		if profile.BudgetMonthly == nil {
			return nil
		}
		base = *profile.BudgetMonthly * 12
		baseDesc = "월세 예산×12 " + utils.FormatWon(base)
	default:
		base = rule.Cap
		baseDesc = "정액 " + utils.FormatWon(base)
	}

	benefit := int64(math.Round(float64(base) * rule.Ratio))
	if rule.Cap > 0 && benefit > rule.Cap {
		benefit = rule.Cap
	}

	v := &model.VerifiedROI{
		ExpectedBenefit: benefit,
		EstimatedCost:   rule.Cost,
		Calculation: fmt.Sprintf("min(%s × %.2f, %s) = %s",
			baseDesc, rule.Ratio, utils.FormatWon(rule.Cap), utils.FormatWon(benefit)),
	}
	v.ROIPercent = roiPercent(benefit, rule.Cost, successProbability)
	if benefit > 0 {
		v.Deviation = math.Round(math.Abs(float64(llmBenefit-benefit))/float64(benefit)*100) / 100
	}
	return v
}

// roiPercent is (benefit * p - cost) / cost * 100, rounded to one decimal.
// A missing success probability counts as certain.
func roiPercent(benefit, cost int64, p float64) float64 {
	if cost <= 0 {
		return 0
	}
	if p <= 0 || p > 1 {
		p = 1
	}
	roi := (float64(benefit)*p - float64(cost)) / float64(cost) * 100
	return math.Round(roi*10) / 10
}
