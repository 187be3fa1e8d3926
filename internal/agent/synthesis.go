package agent

import (
	"context"
	"fmt"
	"strings"

	"policychat/internal/llm"
	"policychat/internal/logger"
	"policychat/internal/model"
	"policychat/internal/utils"
)

// FallbackAnswerPrefix starts every synthesis fallback message.
const FallbackAnswerPrefix = "죄송합니다. 답변을 준비하는 중 문제가 발생했습니다."

// FallbackAnswer is the friendly message shown when synthesis fails.
func FallbackAnswer(err error) string {
	return FallbackAnswerPrefix + `

다음과 같이 질문해 주시면 더 정확히 도와드릴 수 있어요.
- 나이, 소득, 희망 지역 같은 현재 상황을 함께 알려주세요.
- 궁금한 정책 이름이 있다면 구체적으로 적어주세요.
- 잠시 후 다시 질문해 주세요.

(오류 정보: ` + err.Error() + `)`
}

// Synthesizer writes the final markdown answer from all stage outputs
type Synthesizer struct {
	llm llm.Completer
	log *logger.Logger
}

// NewSynthesizer creates the synthesis stage.
func NewSynthesizer(client llm.Completer, log *logger.Logger) *Synthesizer {
	return &Synthesizer{llm: client, log: log.With("agent", model.StageSynthesis)}
}

const answerLayout = `## 답변 형식 (마크다운)
1. **현재 상황 요약**: 사용자 상황을 2~3문장으로 정리
2. **추천 정책 TOP 3**: 순위별로 정책명, 예상 혜택, 추천 이유, 주요 자격 요건 표(| 요건 | 기준 | 충족 여부 |)
3. **실행 계획**: 이번 주 / 1개월 / 3개월 단위로 할 일
4. **팁과 주의사항**: 마감, 중복 수혜, 서류 관련 주의점
5. **이런 것도 물어보세요**: 후속 질문 예시 2~3개`

const synthesisPrompt = `당신은 친절한 주거 정책 상담사입니다.
아래 분석 결과를 종합해 사용자 질문에 대한 최종 답변을 작성하세요.
분석 결과에 없는 금액이나 정책을 지어내지 마세요.

## 사용자 질문
%s

## 사용자 프로필
%s

## 분석 결과
%s
` + answerLayout

const synthesisStreamPrompt = `당신은 친절한 주거 정책 상담사입니다.
아래 분석 결과로 사용자 질문에 바로 답하세요. 첫 문장부터 핵심을 말하고, 군더더기 없이 작성하세요.
분석 결과에 없는 금액이나 정책을 지어내지 마세요.

질문: %s
프로필: %s

%s
` + answerLayout

const degradedPrompt = `당신은 친절한 주거 정책 상담사입니다.
사용자의 현재 조건으로 바로 신청할 수 있는 정책을 찾지 못했습니다.
자격 검토 결과를 바탕으로 이유를 설명하고, 조건을 바꾸거나 보완하면 신청할 수 있는 방법과
추가로 알려주면 좋은 정보를 안내하세요. 마크다운으로 간결하게 작성하세요.

## 사용자 질문
%s

## 사용자 프로필
%s

## 자격 검토 결과
%s`

// Synthesize returns the final answer. On failure it returns FallbackAnswer
// together with the error.
func (s *Synthesizer) Synthesize(ctx context.Context, in model.SynthesisInput) (string, error) {
	answer, err := s.llm.Complete(ctx, s.buildPrompt(in, false))
	if err != nil {
		return FallbackAnswer(err), fmt.Errorf("synthesis failed: %w", err)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		err := fmt.Errorf("synthesis returned an empty answer")
		return FallbackAnswer(err), err
	}
	return replacePlaceholders(answer, in.Ranking), nil
}

// SynthesizeStream forwards answer chunks as they arrive. Any failure is
// reported to onChunk as exactly one fallback chunk, after which the stream
// ends and the error is returned.
func (s *Synthesizer) SynthesizeStream(ctx context.Context, in model.SynthesisInput, onChunk func(chunk string) error) error {
	var sinkErr error
	err := s.llm.Stream(ctx, s.buildPrompt(in, true), func(chunk string) error {
		if err := onChunk(chunk); err != nil {
			sinkErr = err
			return err
		}
		return nil
	})
	if err == nil {
		return nil
	}
	if sinkErr != nil {
		// the consumer is gone; nothing left to deliver to
		return sinkErr
	}
	if cbErr := onChunk(FallbackAnswer(err)); cbErr != nil {
		return cbErr
	}
	return fmt.Errorf("synthesis stream failed: %w", err)
}

func (s *Synthesizer) buildPrompt(in model.SynthesisInput, stream bool) string {
	profile := SummarizeProfile(in.Profile)
	if in.Degraded {
		return fmt.Sprintf(degradedPrompt, in.Question, profile, eligibilityLines(in.Eligibility))
	}

	var b strings.Builder
	b.WriteString(profilingLines(in.Profiling))
	fmt.Fprintf(&b, "\n### 검색\n- 관련 정책 %d건 검색\n", len(in.Policies))
	b.WriteString("\n### 자격 검토\n")
	b.WriteString(eligibilityLines(in.Eligibility))
	b.WriteString("\n### 우선순위\n")
	b.WriteString(rankingLines(in.Ranking))
	b.WriteString("\n### 실행 전략\n")
	b.WriteString(strategyLines(in.Strategy))

	tmpl := synthesisPrompt
	if stream {
		tmpl = synthesisStreamPrompt
	}
	return fmt.Sprintf(tmpl, in.Question, profile, b.String())
}

func profilingLines(p model.ProfilingResult) string {
	var b strings.Builder
	b.WriteString("### 프로필 분석\n")
	fmt.Fprintf(&b, "- 프로필 완성도: %.0f%%\n", p.Confidence*100)
	if len(p.MissingFields) > 0 {
		fmt.Fprintf(&b, "- 부족한 정보: %s\n", strings.Join(p.MissingFields, ", "))
	}
	for _, q := range p.SuggestedQuestions {
		fmt.Fprintf(&b, "- 추가 질문 후보: %s\n", q)
	}
	return b.String()
}

func eligibilityLines(r model.EligibilityResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "- 자격 충족 %d건, 일부 충족 %d건, 미충족 %d건\n", len(r.Eligible), len(r.PartiallyEligible), len(r.Ineligible))
	if r.Summary != "" {
		fmt.Fprintf(&b, "- 요약: %s\n", r.Summary)
	}
	write := func(label string, items []model.EligiblePolicy) {
		for _, p := range items {
			fmt.Fprintf(&b, "- [%s] %s (점수 %.2f)", label, p.Title, p.EligibilityScore)
			if p.Reason != "" {
				fmt.Fprintf(&b, ": %s", p.Reason)
			}
			b.WriteByte('\n')
			if p.VerifiedIncome != nil && p.VerifiedIncome.Note != "" {
				fmt.Fprintf(&b, "  - 소득 확인: %s\n", p.VerifiedIncome.Note)
			}
			if p.VerifiedAge != nil && p.VerifiedAge.Note != "" {
				fmt.Fprintf(&b, "  - 연령 확인: %s\n", p.VerifiedAge.Note)
			}
			if len(p.MissingConditions) > 0 {
				fmt.Fprintf(&b, "  - 확인 필요: %s\n", strings.Join(p.MissingConditions, ", "))
			}
		}
	}
	write("충족", r.Eligible)
	write("일부 충족", r.PartiallyEligible)
	write("미충족", r.Ineligible)
	return b.String()
}

func rankingLines(r model.RankingResult) string {
	var b strings.Builder
	if len(r.RankedPolicies) == 0 {
		fmt.Fprintf(&b, "- %s\n", r.RankingRationale)
		return b.String()
	}
	for _, p := range r.Top(3) {
		benefit := p.ROI.ExpectedBenefit
		if p.ROI.Verified != nil {
			benefit = p.ROI.Verified.ExpectedBenefit
		}
		fmt.Fprintf(&b, "- %d위 %s: %.0f점, 예상 혜택 %s", p.Rank, p.Title, p.TotalScore, utils.FormatWon(benefit))
		if p.Recommendation != "" {
			fmt.Fprintf(&b, ", %s", p.Recommendation)
		}
		b.WriteByte('\n')
	}
	if r.RankingRationale != "" {
		fmt.Fprintf(&b, "- 근거: %s\n", r.RankingRationale)
	}
	if r.StrategicInsights.BudgetOptimization != "" {
		fmt.Fprintf(&b, "- 예산: %s\n", r.StrategicInsights.BudgetOptimization)
	}
	if r.StrategicInsights.AgeWindow != "" {
		fmt.Fprintf(&b, "- 연령: %s\n", r.StrategicInsights.AgeWindow)
	}
	if r.StrategicInsights.TotalExpectedBenefit > 0 {
		fmt.Fprintf(&b, "- 상위 정책 예상 혜택 합계: %s\n", utils.FormatWon(r.StrategicInsights.TotalExpectedBenefit))
	}
	return b.String()
}

func strategyLines(p model.StrategyPlan) string {
	var b strings.Builder
	for _, t := range p.ExecutionTracks.Primary {
		fmt.Fprintf(&b, "- 주력 트랙 %s: %s\n", t.Name, strings.Join(t.Policies, ", "))
	}
	for _, t := range p.ExecutionTracks.Backup {
		fmt.Fprintf(&b, "- 대안 트랙 %s: %s\n", t.Name, strings.Join(t.Policies, ", "))
	}
	for _, ph := range p.Timeline {
		fmt.Fprintf(&b, "- %s (%s)\n", ph.Name, ph.Period)
		for _, a := range ph.Actions {
			fmt.Fprintf(&b, "  - [%s] %s (기한: %s)\n", a.Priority, a.Task, a.Deadline)
		}
	}
	for _, d := range p.CriticalDeadlines {
		fmt.Fprintf(&b, "- 마감 %s: %s, %s\n", d.Policy, d.Deadline, d.ActBy)
	}
	if p.CostBreakdown.Total > 0 {
		fmt.Fprintf(&b, "- 예상 신청 비용: %s (보증금 예산 대비 %s%%)\n", utils.FormatWon(p.CostBreakdown.Total), p.CostBreakdown.UserBudgetImpact)
	}
	for _, r := range p.RiskTable {
		fmt.Fprintf(&b, "- 위험: %s → %s\n", r.Risk, r.Mitigation)
	}
	return b.String()
}

// replacePlaceholders fills [정책명] with the ranked titles in order and
// XX만원 with the expected benefit total, when those are known.
func replacePlaceholders(answer string, ranking model.RankingResult) string {
	top := ranking.Top(3)
	if len(top) > 0 && strings.Contains(answer, "[정책명]") {
		parts := strings.Split(answer, "[정책명]")
		var b strings.Builder
		b.WriteString(parts[0])
		for i, part := range parts[1:] {
			b.WriteString(top[min(i, len(top)-1)].Title)
			b.WriteString(part)
		}
		answer = b.String()
	}
	if total := ranking.StrategicInsights.TotalExpectedBenefit; total > 0 {
		answer = strings.ReplaceAll(answer, "XX만원", utils.FormatWon(total))
	}
	return answer
}
