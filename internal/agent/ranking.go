package agent

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"policychat/internal/llm"
	"policychat/internal/logger"
	"policychat/internal/model"
	"policychat/internal/utils"
)

// NoEligibleRationale is the ranking rationale when nothing is applicable.
const NoEligibleRationale = "신청 가능한 정책이 없습니다."

// fallbackRankLimit bounds the identity ordering used when ranking fails.
const fallbackRankLimit = 5

// Recommendation reason constants
const (
	ReasonLargeBenefit   = "지원 규모가 큼"
	ReasonEasyToApply    = "신청 절차가 간단함"
	ReasonGoodFit        = "현재 상황과 잘 맞음"
	ReasonUrgent         = "신청 시기가 임박함"
	ReasonStackable      = "다른 정책과 중복 수혜 가능"
	ReasonHighROI        = "비용 대비 효과가 큼"
	ReasonGeneralBenefit = "검토해볼 만한 정책"
)

// Ranker scores applicable policies with the five-factor rubric
type Ranker struct {
	llm   llm.Completer
	rules *Rules
	log   *logger.Logger
}

// NewRanker creates the ranking stage.
func NewRanker(client llm.Completer, rules *Rules, log *logger.Logger) *Ranker {
	return &Ranker{llm: client, rules: rules, log: log.With("agent", model.StageRanking)}
}

const rankingPrompt = `당신은 주거 지원 정책 우선순위 전략가입니다.
사용자가 신청할 수 있는 정책들을 아래 기준으로 채점하고 순위를 매기세요.

## 사용자 질문
%s

## 사용자 프로필
%s%s
## 신청 가능 정책
%s
## 채점 기준 (총 100점)
- benefit_scale (0~40): 지원 금액과 혜택 규모
- application_difficulty (0~25): 신청 용이성 (쉬울수록 높은 점수)
- personal_fit (0~20): 사용자 상황과의 적합도
- urgency (0~10): 마감 임박도와 시기 적절성
- stackability (0~5): 다른 정책과 중복 수혜 가능성

## ROI 추정
- expected_benefit: 예상 수혜 금액(원)
- estimated_cost: 신청에 드는 비용(원, 서류 발급·교통비·시간 비용 포함)
- success_probability: 선정 확률 (0.0~1.0)

JSON으로만 답하세요:
{
  "ranked_policies": [
    {"policy_index": 1, "title": "정책명", "total_score": 85,
     "score_breakdown": {"benefit_scale": 35, "application_difficulty": 20, "personal_fit": 18, "urgency": 8, "stackability": 4},
     "roi": {"expected_benefit": 10000000, "estimated_cost": 100000, "success_probability": 0.7},
     "recommendation": "추천 이유"}
  ],
  "ranking_rationale": "순위 산정 근거 요약"
}`

type rankingItem struct {
	PolicyIndex    int                  `json:"policy_index"`
	Title          string               `json:"title"`
	TotalScore     float64              `json:"total_score"`
	ScoreBreakdown model.ScoreBreakdown `json:"score_breakdown"`
	ROI            model.ROIEstimate    `json:"roi"`
	Recommendation string               `json:"recommendation"`
}

type rankingResponse struct {
	RankedPolicies   []rankingItem `json:"ranked_policies"`
	RankingRationale string        `json:"ranking_rationale"`
}

// EmptyRanking is the fixed result for an empty applicable set.
func EmptyRanking() model.RankingResult {
	return model.RankingResult{
		RankedPolicies:   []model.RankedPolicy{},
		RankingRationale: NoEligibleRationale,
	}
}

// Rank runs the ranking stage. An empty input never reaches the model.
func (r *Ranker) Rank(ctx context.Context, profile model.UserProfile, applicable []model.EligiblePolicy, question, propertyContext string) (model.RankingResult, error) {
	if len(applicable) == 0 {
		return EmptyRanking(), nil
	}

	records := make([]model.PolicyRecord, len(applicable))
	titles := make([]string, len(applicable))
	for i, p := range applicable {
		records[i] = p.PolicyRecord
		titles[i] = p.Title
	}
	propSection := ""
	if propertyContext != "" {
		propSection = "\n## 관심 매물\n" + propertyContext
	}
	prompt := fmt.Sprintf(rankingPrompt, question, formatProfileLines(profile), propSection, formatPolicies(records, 200))

	resp, err := askJSON[rankingResponse](ctx, r.llm, prompt)
	if err != nil {
		return r.fallback(profile, applicable, err), err
	}

	ranked := r.scoreResults(profile, applicable, titles, resp.RankedPolicies)
	if len(ranked) == 0 {
		err := fmt.Errorf("model returned no usable ranked policies")
		return r.fallback(profile, applicable, err), err
	}

	rationale := resp.RankingRationale
	if rationale == "" {
		rationale = fmt.Sprintf("%d개 정책을 혜택 규모, 신청 난이도, 적합도, 시급성, 중복 수혜 기준으로 평가했습니다.", len(ranked))
	}
	return model.RankingResult{
		RankedPolicies:    ranked,
		RankingRationale:  rationale,
		StrategicInsights: r.insights(profile, ranked),
	}, nil
}

// scoreResults clamps the rubric, cross-checks ROI and sorts by score descending
func (r *Ranker) scoreResults(profile model.UserProfile, applicable []model.EligiblePolicy, titles []string, items []rankingItem) []model.RankedPolicy {
	seen := make([]bool, len(applicable))
	results := make([]model.RankedPolicy, 0, len(items))

	for _, it := range items {
		pos := resolvePolicy(it.PolicyIndex, it.Title, titles)
		if pos < 0 || seen[pos] {
			continue
		}
		seen[pos] = true

		breakdown := clampBreakdown(it.ScoreBreakdown)
		total := breakdown.Sum()
		if total == 0 {
			total = it.TotalScore
		}

		roi := it.ROI
		roi.SuccessProbability = clamp(roi.SuccessProbability, 0, 1)
		roi.ROIPercent = roiPercent(roi.ExpectedBenefit, roi.EstimatedCost, roi.SuccessProbability)
		roi.Verified = r.rules.VerifyROI(profile, titles[pos], roi.ExpectedBenefit, roi.SuccessProbability)

		result := model.RankedPolicy{
			EligiblePolicy: applicable[pos],
			TotalScore:     math.Round(clamp(total, 0, 100)*10) / 10,
			ScoreBreakdown: breakdown,
			ROI:            roi,
			Recommendation: it.Recommendation,
		}
		if result.Recommendation == "" {
			result.Recommendation = strings.Join(r.generateReasons(result), ", ")
		}
		results = append(results, result)
	}

	// Sort by score descending
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].TotalScore > results[j].TotalScore
	})
	for i := range results {
		results[i].Rank = i + 1
	}
	return results
}

func clampBreakdown(b model.ScoreBreakdown) model.ScoreBreakdown {
	return model.ScoreBreakdown{
		BenefitScale:          clamp(b.BenefitScale, 0, model.MaxBenefitScale),
		ApplicationDifficulty: clamp(b.ApplicationDifficulty, 0, model.MaxApplicationDifficulty),
		PersonalFit:           clamp(b.PersonalFit, 0, model.MaxPersonalFit),
		Urgency:               clamp(b.Urgency, 0, model.MaxUrgency),
		Stackability:          clamp(b.Stackability, 0, model.MaxStackability),
	}
}

// generateReasons generates human-readable reasons for why a policy ranks where it does
func (r *Ranker) generateReasons(p model.RankedPolicy) []string {
	reasons := []string{}
	b := p.ScoreBreakdown

	if b.BenefitScale >= model.MaxBenefitScale*0.75 {
		reasons = append(reasons, ReasonLargeBenefit)
	}
	if b.ApplicationDifficulty >= model.MaxApplicationDifficulty*0.75 {
		reasons = append(reasons, ReasonEasyToApply)
	}
	if b.PersonalFit >= model.MaxPersonalFit*0.75 {
		reasons = append(reasons, ReasonGoodFit)
	}
	if b.Urgency >= model.MaxUrgency*0.8 {
		reasons = append(reasons, ReasonUrgent)
	}
	if b.Stackability >= model.MaxStackability*0.8 {
		reasons = append(reasons, ReasonStackable)
	}
	if p.ROI.ROIPercent >= 1000 {
		reasons = append(reasons, ReasonHighROI)
	}

	if len(reasons) == 0 {
		reasons = append(reasons, ReasonGeneralBenefit)
	}
	return reasons
}

// insights are computed from profile arithmetic only.
func (r *Ranker) insights(profile model.UserProfile, ranked []model.RankedPolicy) model.StrategicInsights {
	var out model.StrategicInsights

	for _, p := range ranked[:min(3, len(ranked))] {
		benefit := p.ROI.ExpectedBenefit
		if p.ROI.Verified != nil {
			benefit = p.ROI.Verified.ExpectedBenefit
		}
		out.TotalExpectedBenefit += benefit
	}

	if profile.BudgetDeposit != nil && *profile.BudgetDeposit > 0 {
		deposit := *profile.BudgetDeposit
		top := ranked[0]
		if top.ROI.Verified != nil && top.ROI.Verified.ExpectedBenefit > 0 {
			share := float64(top.ROI.Verified.ExpectedBenefit) / float64(deposit) * 100
			out.BudgetOptimization = fmt.Sprintf("보증금 예산 %s 기준 1순위 정책으로 %s(%.1f%%)까지 지원받을 수 있습니다.",
				utils.FormatWon(deposit), utils.FormatWon(top.ROI.Verified.ExpectedBenefit), share)
		} else {
			out.BudgetOptimization = fmt.Sprintf("보증금 예산 %s 안에서 지원 한도가 큰 정책부터 신청하는 것이 유리합니다.", utils.FormatWon(deposit))
		}
	} else {
		out.BudgetOptimization = "보증금 예산을 알려주시면 정책별 자기부담금을 계산해 드릴 수 있습니다."
	}

	if profile.Age != nil {
		age := *profile.Age
		closest := -1
		var closestTitle string
		for _, p := range ranked {
			if p.VerifiedAge == nil || p.VerifiedAge.YearsRemaining == nil {
				continue
			}
			if closest < 0 || *p.VerifiedAge.YearsRemaining < closest {
				closest = *p.VerifiedAge.YearsRemaining
				closestTitle = p.Title
			}
		}
		switch {
		case closest == 0:
			out.AgeWindow = fmt.Sprintf("만 %d세로 %s 연령 기준의 마지막 해입니다. 올해 안에 신청하세요.", age, closestTitle)
		case closest > 0:
			out.AgeWindow = fmt.Sprintf("만 %d세 기준 %s 신청 가능 기간이 %d년 남았습니다.", age, closestTitle, closest)
		case age <= 34:
			out.AgeWindow = fmt.Sprintf("만 %d세로 대부분의 청년 정책(만 34~39세 이하) 대상입니다.", age)
		}
	}
	return out
}

// FallbackRanking keeps the first five applicable policies in their original order.
func FallbackRanking(applicable []model.EligiblePolicy, err error) model.RankingResult {
	n := min(fallbackRankLimit, len(applicable))
	ranked := make([]model.RankedPolicy, 0, n)
	for i := 0; i < n; i++ {
		ranked = append(ranked, model.RankedPolicy{
			EligiblePolicy: applicable[i],
			Rank:           i + 1,
			TotalScore:     math.Round(clamp(applicable[i].EligibilityScore, 0, 1)*100*10) / 10,
			Recommendation: "자격 검토 결과 순서대로 표시합니다.",
		})
	}
	return model.RankingResult{
		RankedPolicies:   ranked,
		RankingRationale: "순위 산정 중 오류가 발생하여 자격 검토 순서대로 표시합니다.",
		Error:            err.Error(),
	}
}

func (r *Ranker) fallback(profile model.UserProfile, applicable []model.EligiblePolicy, err error) model.RankingResult {
	result := FallbackRanking(applicable, err)
	if len(result.RankedPolicies) > 0 {
		result.StrategicInsights = r.insights(profile, result.RankedPolicies)
	}
	return result
}
