package agent

import (
	"context"
	"fmt"
	"strings"

	"policychat/internal/llm"
	"policychat/internal/logger"
	"policychat/internal/model"
)

// checklistPolicies is how many top-ranked policies get an execution checklist.
const checklistPolicies = 3

// Strategist turns ranked policies into an execution plan
type Strategist struct {
	llm   llm.Completer
	rules *Rules
	log   *logger.Logger
}

// NewStrategist creates the strategy stage.
func NewStrategist(client llm.Completer, rules *Rules, log *logger.Logger) *Strategist {
	return &Strategist{llm: client, rules: rules, log: log.With("agent", model.StageStrategy)}
}

const strategyPrompt = `당신은 주거 지원 정책 신청 전략 코치입니다.
순위가 매겨진 정책을 바탕으로 실행 계획을 세우세요.

## 사용자 질문
%s

## 사용자 프로필
%s
## 우선순위 정책
%s
## 작성 지침
- execution_tracks.primary: 바로 실행할 주력 트랙, backup: 탈락 시 대안 트랙
- timeline: 단계별(예: 1주차, 1개월, 3개월) 기간과 마감일·우선순위(high/medium/low)가 있는 할 일
- document_checklist: 필요 서류와 발급처
- risk_table: 예상 위험, 가능성(high/medium/low), 대응 방안
- monthly_plan: 월별 목표

JSON으로만 답하세요:
{
  "execution_tracks": {
    "primary": [{"name": "트랙명", "policies": ["정책명"], "rationale": "이유"}],
    "backup": [{"name": "트랙명", "policies": ["정책명"], "rationale": "이유"}]
  },
  "timeline": [{"name": "1단계", "period": "1주 이내",
    "actions": [{"task": "할 일", "deadline": "YYYY-MM-DD 또는 기한", "priority": "high", "policy": "정책명"}]}],
  "document_checklist": [{"document": "서류명", "issued_by": "발급처", "policies": ["정책명"]}],
  "risk_table": [{"risk": "위험", "likelihood": "medium", "mitigation": "대응"}],
  "monthly_plan": [{"month": "1개월차", "goal": "목표"}]
}`

// Plan runs the strategy stage. The deterministic tables are always
// layered on top of the model's plan.
func (s *Strategist) Plan(ctx context.Context, profile model.UserProfile, ranked []model.RankedPolicy, question string) (model.StrategyPlan, error) {
	if len(ranked) == 0 {
		return s.augment(profile, ranked, model.StrategyPlan{}), nil
	}

	prompt := fmt.Sprintf(strategyPrompt, question, formatProfileLines(profile), formatRanked(ranked))
	plan, err := askJSON[model.StrategyPlan](ctx, s.llm, prompt)
	if err != nil {
		return FallbackStrategy(err), err
	}

	plan.Error = ""
	return s.augment(profile, ranked, plan), nil
}

func formatRanked(ranked []model.RankedPolicy) string {
	var b strings.Builder
	for _, p := range ranked {
		fmt.Fprintf(&b, "%d위. %s (%.0f점)", p.Rank, p.Title, p.TotalScore)
		if p.Organization != "" {
			fmt.Fprintf(&b, " - %s", p.Organization)
		}
		b.WriteByte('\n')
		if p.Recommendation != "" {
			fmt.Fprintf(&b, "    추천 이유: %s\n", p.Recommendation)
		}
		if method := p.Details.String("application_method"); method != "" {
			fmt.Fprintf(&b, "    신청 방법: %s\n", method)
		}
	}
	return b.String()
}

func (s *Strategist) augment(profile model.UserProfile, ranked []model.RankedPolicy, plan model.StrategyPlan) model.StrategyPlan {
	plan.ExecutionTracks.Primary = nonNilSlice(plan.ExecutionTracks.Primary)
	plan.ExecutionTracks.Backup = nonNilSlice(plan.ExecutionTracks.Backup)
	plan.Timeline = nonNilSlice(plan.Timeline)
	plan.DocumentChecklist = nonNilSlice(plan.DocumentChecklist)
	plan.RiskTable = nonNilSlice(plan.RiskTable)
	plan.MonthlyPlan = nonNilSlice(plan.MonthlyPlan)

	plan.CriticalDeadlines = s.criticalDeadlines(ranked)
	plan.CostBreakdown = s.costBreakdown(profile)
	plan.ExecutionChecklist = s.executionChecklist(ranked)
	plan.SuccessMetrics = model.SuccessMetrics{
		Quantitative: append([]string{}, s.rules.SuccessMetrics.Quantitative...),
		Qualitative:  append([]string{}, s.rules.SuccessMetrics.Qualitative...),
	}
	return plan
}

func (s *Strategist) criticalDeadlines(ranked []model.RankedPolicy) []model.CriticalDeadline {
	out := []model.CriticalDeadline{}
	for _, p := range ranked {
		rule, ok := s.rules.deadlineRule(p.Title)
		if !ok {
			continue
		}
		out = append(out, model.CriticalDeadline{
			Policy:   p.Title,
			Deadline: rule.Deadline,
			ActBy:    rule.ActBy,
			Note:     rule.Note,
		})
	}
	return out
}

// costBreakdown sums the fixed cost table. user_budget_impact is the total
// as a percentage of the deposit budget, or "N/A" without one.
func (s *Strategist) costBreakdown(profile model.UserProfile) model.CostBreakdown {
	category := func(items []model.CostItem) model.CostCategory {
		c := model.CostCategory{Items: append([]model.CostItem{}, items...)}
		for _, it := range items {
			c.Subtotal += it.Amount
		}
		return c
	}

	cb := model.CostBreakdown{
		DocumentPreparation: category(s.rules.Costs.DocumentPreparation),
		ApplicationFees:     category(s.rules.Costs.ApplicationFees),
		OpportunityCosts:    category(s.rules.Costs.OpportunityCosts),
	}
	cb.Total = cb.DocumentPreparation.Subtotal + cb.ApplicationFees.Subtotal + cb.OpportunityCosts.Subtotal

	cb.UserBudgetImpact = "N/A"
	if profile.BudgetDeposit != nil && *profile.BudgetDeposit > 0 {
		cb.UserBudgetImpact = fmt.Sprintf("%.2f", float64(cb.Total)/float64(*profile.BudgetDeposit)*100)
	}
	return cb
}

func (s *Strategist) executionChecklist(ranked []model.RankedPolicy) []model.PolicyChecklist {
	out := []model.PolicyChecklist{}
	for _, p := range ranked[:min(checklistPolicies, len(ranked))] {
		steps := make([]model.ChecklistStep, len(s.rules.Checklist))
		for i, task := range s.rules.Checklist {
			steps[i] = model.ChecklistStep{Step: i + 1, Task: task}
		}
		out = append(out, model.PolicyChecklist{Policy: p.Title, Steps: steps})
	}
	return out
}

// FallbackStrategy is the plan returned when strategy generation fails.
func FallbackStrategy(err error) model.StrategyPlan {
	return model.StrategyPlan{
		ExecutionTracks: model.ExecutionTracks{
			Primary: []model.Track{{
				Name:      "정책 재탐색",
				Policies:  []string{},
				Rationale: "실행 전략을 만들지 못해 조건에 맞는 정책을 다시 확인해야 합니다.",
			}},
			Backup: []model.Track{},
		},
		Timeline: []model.Phase{{
			Name:   "재계획",
			Period: "1주 이내",
			Actions: []model.Action{{
				Task:     "관심 정책의 공고문과 자격 요건을 다시 확인하고 상담을 재요청하세요",
				Deadline: "1주 이내",
				Priority: "high",
			}},
		}},
		DocumentChecklist: []model.DocumentItem{},
		RiskTable: []model.Risk{{
			Risk:       "전략 수립 지연으로 신청 기한을 놓칠 수 있음",
			Likelihood: "medium",
			Mitigation: "주요 정책의 모집 공고를 직접 확인하세요",
		}},
		MonthlyPlan:        []model.Milestone{},
		CriticalDeadlines:  []model.CriticalDeadline{},
		ExecutionChecklist: []model.PolicyChecklist{},
		Error:              err.Error(),
	}
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
