package agent

import (
	"context"
	"fmt"

	"policychat/internal/llm"
	"policychat/internal/logger"
	"policychat/internal/model"
)

// ReasonNotClassified marks a policy the model left out of every bucket.
const ReasonNotClassified = "분류 결과 누락"

// EligibilityChecker classifies candidate policies and re-verifies known cutoffs.
type EligibilityChecker struct {
	llm   llm.Completer
	rules *Rules
	log   *logger.Logger
}

// NewEligibilityChecker creates the eligibility stage.
func NewEligibilityChecker(client llm.Completer, rules *Rules, log *logger.Logger) *EligibilityChecker {
	return &EligibilityChecker{llm: client, rules: rules, log: log.With("agent", model.StageEligibility)}
}

const eligibilityPrompt = `당신은 주거 지원 정책 자격 심사 전문가입니다.
사용자 프로필을 기준으로 각 정책의 신청 자격을 판단하세요.

## 사용자 질문
%s

## 사용자 프로필
%s
## 후보 정책
%s
## 판단 기준
- eligibility_score는 0.0~1.0 사이 값입니다.
- 0.8 이상: eligible (자격 충족)
- 0.6 이상 0.8 미만: partially_eligible (일부 조건 확인 필요)
- 0.6 미만: ineligible (자격 미충족)
- 프로필에 정보가 없는 조건은 missing_conditions에 적고 점수를 보수적으로 매기세요.
- 모든 정책을 정확히 한 번씩 분류하세요. policy_index는 위 목록의 번호입니다.

JSON으로만 답하세요:
{
  "eligible_policies": [
    {"policy_index": 1, "title": "정책명", "eligibility_score": 0.9,
     "matched_conditions": ["충족 조건"], "missing_conditions": ["확인 필요 조건"], "reason": "판단 근거"}
  ],
  "partially_eligible_policies": [],
  "ineligible_policies": [],
  "summary": "전체 요약 한두 문장"
}`

type eligibilityItem struct {
	PolicyIndex       int      `json:"policy_index"`
	Title             string   `json:"title"`
	EligibilityScore  float64  `json:"eligibility_score"`
	MatchedConditions []string `json:"matched_conditions"`
	MissingConditions []string `json:"missing_conditions"`
	Reason            string   `json:"reason"`
}

type eligibilityResponse struct {
	Eligible          []eligibilityItem `json:"eligible_policies"`
	PartiallyEligible []eligibilityItem `json:"partially_eligible_policies"`
	Ineligible        []eligibilityItem `json:"ineligible_policies"`
	Summary           string            `json:"summary"`
}

// Check runs the eligibility stage. The three buckets always partition the
// input. Bucket assignment is the model's; the rule pass only annotates.
func (e *EligibilityChecker) Check(ctx context.Context, profile model.UserProfile, policies []model.PolicyRecord, question string) (model.EligibilityResult, error) {
	if len(policies) == 0 {
		return model.EligibilityResult{
			Eligible:          []model.EligiblePolicy{},
			PartiallyEligible: []model.EligiblePolicy{},
			Ineligible:        []model.EligiblePolicy{},
			Summary:           "검토할 정책이 없습니다.",
		}, nil
	}

	prompt := fmt.Sprintf(eligibilityPrompt, question, formatProfileLines(profile), formatPolicies(policies, 300))
	resp, err := askJSON[eligibilityResponse](ctx, e.llm, prompt)
	if err != nil {
		return FallbackEligibility(policies, err), err
	}

	result := e.partition(policies, resp)
	e.verify(profile, &result)

	e.log.Debug("Eligibility classified",
		"candidates", len(policies),
		"classified", result.Total(),
		"eligible", len(result.Eligible),
		"partial", len(result.PartiallyEligible),
		"ineligible", len(result.Ineligible),
	)
	return result, nil
}

func (e *EligibilityChecker) partition(policies []model.PolicyRecord, resp eligibilityResponse) model.EligibilityResult {
	titles := make([]string, len(policies))
	for i, p := range policies {
		titles[i] = p.Title
	}

	result := model.EligibilityResult{
		Eligible:          []model.EligiblePolicy{},
		PartiallyEligible: []model.EligiblePolicy{},
		Ineligible:        []model.EligiblePolicy{},
		Summary:           resp.Summary,
	}
	assigned := make([]bool, len(policies))

	place := func(items []eligibilityItem, bucket *[]model.EligiblePolicy) {
		for _, it := range items {
			pos := resolvePolicy(it.PolicyIndex, it.Title, titles)
			if pos < 0 || assigned[pos] {
				continue
			}
			assigned[pos] = true
			*bucket = append(*bucket, model.EligiblePolicy{
				PolicyRecord:      policies[pos],
				EligibilityScore:  clamp(it.EligibilityScore, 0, 1),
				MatchedConditions: nonNilSlice(it.MatchedConditions),
				MissingConditions: nonNilSlice(it.MissingConditions),
				Reason:            it.Reason,
			})
		}
	}
	place(resp.Eligible, &result.Eligible)
	place(resp.PartiallyEligible, &result.PartiallyEligible)
	place(resp.Ineligible, &result.Ineligible)

	for i, ok := range assigned {
		if !ok {
			result.Ineligible = append(result.Ineligible, model.EligiblePolicy{
				PolicyRecord:      policies[i],
				MatchedConditions: []string{},
				MissingConditions: []string{},
				Reason:            ReasonNotClassified,
			})
		}
	}
	return result
}

// verify attaches rule-table income and age checks to every bucket.
func (e *EligibilityChecker) verify(profile model.UserProfile, result *model.EligibilityResult) {
	for _, bucket := range [][]model.EligiblePolicy{result.Eligible, result.PartiallyEligible, result.Ineligible} {
		for i := range bucket {
			bucket[i].VerifiedIncome = e.rules.VerifyIncome(profile, bucket[i].Title)
			bucket[i].VerifiedAge = e.rules.VerifyAge(profile, bucket[i].Title)
		}
	}
}

// FallbackEligibility puts every policy into ineligible.
func FallbackEligibility(policies []model.PolicyRecord, err error) model.EligibilityResult {
	result := model.EligibilityResult{
		Eligible:          []model.EligiblePolicy{},
		PartiallyEligible: []model.EligiblePolicy{},
		Ineligible:        make([]model.EligiblePolicy, 0, len(policies)),
		Summary:           "자격 검토 중 오류가 발생하여 모든 정책을 보류했습니다.",
		Error:             err.Error(),
	}
	for _, p := range policies {
		result.Ineligible = append(result.Ineligible, model.EligiblePolicy{
			PolicyRecord:      p,
			MatchedConditions: []string{},
			MissingConditions: []string{},
			Reason:            "자격 검토 실패: " + err.Error(),
		})
	}
	return result
}
