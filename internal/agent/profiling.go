package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"policychat/internal/llm"
	"policychat/internal/logger"
	"policychat/internal/model"
)

// Profiler extracts profile facts from a message and merges them into the store.
type Profiler struct {
	llm   llm.Completer
	store ProfileStore
	log   *logger.Logger
}

// NewProfiler creates the profiling stage.
func NewProfiler(client llm.Completer, store ProfileStore, log *logger.Logger) *Profiler {
	return &Profiler{llm: client, store: store, log: log.With("agent", model.StageProfiling)}
}

const profilingPrompt = `당신은 주거 정책 상담을 위한 사용자 프로필 분석가입니다.
사용자의 최신 메시지에서 새로 알 수 있는 정보만 추출하세요.

## 현재 저장된 프로필
%s
%s
## 사용자 메시지
%s

## 추출 규칙
- 메시지에 명시되었거나 분명히 추론되는 값만 채우고, 알 수 없으면 null로 두세요.
- 금액은 원 단위 정수로 변환하세요 (예: "4천만원" -> 40000000, "월 50" -> 500000).
- 나이는 만 나이 정수로 적으세요.
- transaction_type은 "전세", "월세", "매매" 중 하나입니다.
- family_type 예시: "1인 가구", "신혼부부", "한부모", "다자녀"
- 프로필을 보완하기 위해 물어보면 좋을 질문을 최대 3개 제안하세요.

JSON으로만 답하세요:
{
  "age": null, "age_range": null, "occupation": null,
  "income_personal": null, "income_household": null, "income_parents": null,
  "current_region": null, "desired_region": null,
  "transaction_type": null, "family_type": null, "special_situation": null,
  "budget_deposit": null, "budget_monthly": null,
  "suggested_questions": []
}`

// followUpQuestions ask for missing key fields, in KeyProfileFields order.
var followUpQuestions = map[string]string{
	model.FieldAge:             "만 나이가 어떻게 되시나요?",
	model.FieldOccupation:      "현재 직업(학생, 직장인 등)을 알려주시겠어요?",
	model.FieldIncomeHousehold: "가구 연소득이 대략 얼마인가요?",
	model.FieldDesiredRegion:   "어느 지역에서 집을 구하고 계신가요?",
	model.FieldTransactionType: "전세와 월세 중 어떤 형태를 원하시나요?",
	model.FieldFamilyType:      "1인 가구, 신혼부부 등 가구 형태를 알려주세요.",
	model.FieldBudgetDeposit:   "보증금으로 준비 가능한 금액은 얼마인가요?",
	model.FieldBudgetMonthly:   "월 주거비로 감당 가능한 금액은 얼마인가요?",
}

// Extract runs the profiling stage. On failure the previous profile is
// returned unchanged with ExtractionSuccess false and zero confidence.
func (p *Profiler) Extract(ctx context.Context, userID int64, message, propertyContext string) (model.ProfilingResult, error) {
	previous, err := p.store.LoadProfile(ctx, userID)
	if err != nil {
		return p.fallback(model.UserProfile{}, err), fmt.Errorf("failed to load profile: %w", err)
	}

	propSection := ""
	if propertyContext != "" {
		propSection = "\n## 관심 매물\n" + propertyContext
	}
	current, _ := json.MarshalIndent(previous, "", "  ")
	prompt := fmt.Sprintf(profilingPrompt, string(current), propSection, message)

	fields, err := askJSON[map[string]interface{}](ctx, p.llm, prompt)
	if err != nil {
		return p.fallback(previous, err), err
	}

	extracted := model.ProfileFromMap(fields)
	merged := previous
	if !extracted.IsEmpty() {
		merged, err = p.store.MergeAndSaveProfile(ctx, userID, extracted)
		if err != nil {
			return p.fallback(previous, err), fmt.Errorf("failed to save profile: %w", err)
		}
	}

	missing := merged.MissingFields()
	result := model.ProfilingResult{
		Profile:            merged,
		Extracted:          extracted,
		Confidence:         merged.Completeness(),
		MissingFields:      missing,
		SuggestedQuestions: suggestedQuestions(fields["suggested_questions"], missing),
		ExtractionSuccess:  true,
	}
	p.log.Debug("Profile extracted", "user_id", userID, "confidence", result.Confidence, "missing", len(missing))
	return result, nil
}

func (p *Profiler) fallback(previous model.UserProfile, err error) model.ProfilingResult {
	return model.ProfilingResult{
		Profile:            previous,
		Confidence:         0,
		MissingFields:      previous.MissingFields(),
		SuggestedQuestions: suggestedQuestions(nil, previous.MissingFields()),
		ExtractionSuccess:  false,
		Error:              err.Error(),
	}
}

// suggestedQuestions prefers the model's questions and otherwise asks for
// up to three missing fields.
func suggestedQuestions(raw interface{}, missing []string) []string {
	out := []string{}
	if list, ok := raw.([]interface{}); ok {
		for _, q := range list {
			if s, ok := q.(string); ok && s != "" && len(out) < 3 {
				out = append(out, s)
			}
		}
	}
	if len(out) > 0 {
		return out
	}
	for _, f := range missing {
		if q, ok := followUpQuestions[f]; ok {
			out = append(out, q)
		}
		if len(out) == 3 {
			break
		}
	}
	return out
}
