package agent

import (
	"context"
	"testing"

	"policychat/internal/logger"
	"policychat/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfiler_ExtractMergesAndPersists(t *testing.T) {
	store := newMemoryStore()
	store.profiles[7] = model.UserProfile{Age: intPtr(24), Occupation: strPtr("대학생")}

	fake := &fakeLLM{response: "```json\n" + `{
		"age": 25,
		"occupation": null,
		"income_household": 40000000,
		"desired_region": "서울",
		"suggested_questions": ["보증금 예산은 얼마인가요?"]
	}` + "\n```"}
	p := NewProfiler(fake, store, logger.Nop())

	res, err := p.Extract(context.Background(), 7, "25살이고 가구소득 4천만원, 서울에서 살고 싶어요", "")
	require.NoError(t, err)

	assert.True(t, res.ExtractionSuccess)
	assert.Equal(t, 25, *res.Profile.Age)
	assert.Equal(t, "대학생", *res.Profile.Occupation, "null extraction keeps stored value")
	assert.Equal(t, int64(40000000), *res.Profile.IncomeHousehold)
	assert.Equal(t, "서울", *res.Profile.DesiredRegion)
	assert.Equal(t, 0.5, res.Confidence)
	assert.NotContains(t, res.MissingFields, model.FieldAge)
	assert.Equal(t, []string{"보증금 예산은 얼마인가요?"}, res.SuggestedQuestions)

	assert.Equal(t, 1, store.saves)
	assert.Equal(t, res.Profile, store.profiles[7])
}

func TestProfiler_RepeatedExtractionIsIdempotent(t *testing.T) {
	store := newMemoryStore()
	fake := &fakeLLM{response: `{"age": 31, "family_type": "신혼부부"}`}
	p := NewProfiler(fake, store, logger.Nop())

	first, err := p.Extract(context.Background(), 1, "31살 신혼부부입니다", "")
	require.NoError(t, err)
	second, err := p.Extract(context.Background(), 1, "31살 신혼부부입니다", "")
	require.NoError(t, err)

	assert.Equal(t, first.Profile, second.Profile)
}

func TestProfiler_NothingExtractedSkipsSave(t *testing.T) {
	store := newMemoryStore()
	store.profiles[1] = model.UserProfile{Age: intPtr(30)}
	p := NewProfiler(&fakeLLM{response: `{"age": null}`}, store, logger.Nop())

	res, err := p.Extract(context.Background(), 1, "정책 알려줘", "")
	require.NoError(t, err)
	assert.True(t, res.ExtractionSuccess)
	assert.Equal(t, 0, store.saves)
	assert.Equal(t, 30, *res.Profile.Age)
	assert.Len(t, res.SuggestedQuestions, 3, "missing fields produce follow-up questions")
}

func TestProfiler_MalformedOutputKeepsPreviousProfile(t *testing.T) {
	store := newMemoryStore()
	store.profiles[3] = model.UserProfile{Age: intPtr(29)}
	p := NewProfiler(&fakeLLM{response: "프로필을 추출할 수 없습니다"}, store, logger.Nop())

	res, err := p.Extract(context.Background(), 3, "안녕", "")
	require.Error(t, err)

	assert.False(t, res.ExtractionSuccess)
	assert.Equal(t, 0.0, res.Confidence)
	assert.Equal(t, 29, *res.Profile.Age)
	assert.NotEmpty(t, res.Error)
	assert.Equal(t, 0, store.saves)
}

func TestProfiler_LLMErrorAndStoreErrors(t *testing.T) {
	store := newMemoryStore()
	store.profiles[3] = model.UserProfile{Age: intPtr(29)}

	res, err := NewProfiler(&fakeLLM{err: errUpstream}, store, logger.Nop()).
		Extract(context.Background(), 3, "질문", "")
	require.Error(t, err)
	assert.False(t, res.ExtractionSuccess)
	assert.Equal(t, 29, *res.Profile.Age)

	store.saveErr = errUpstream
	res, err = NewProfiler(&fakeLLM{response: `{"age": 30}`}, store, logger.Nop()).
		Extract(context.Background(), 3, "30살이에요", "")
	require.Error(t, err)
	assert.Equal(t, 29, *res.Profile.Age, "failed save returns the previous profile")

	store.loadErr = errUpstream
	fake := &fakeLLM{response: `{}`}
	res, err = NewProfiler(fake, store, logger.Nop()).Extract(context.Background(), 3, "질문", "")
	require.Error(t, err)
	assert.False(t, res.ExtractionSuccess)
	assert.Equal(t, 0, fake.Calls())
}

func TestProfiler_PromptCarriesPropertyContext(t *testing.T) {
	fake := &fakeLLM{response: `{}`}
	p := NewProfiler(fake, newMemoryStore(), logger.Nop())

	_, err := p.Extract(context.Background(), 1, "질문", "사용자가 찜한 매물:\n1. 서울 마포구")
	require.NoError(t, err)
	require.Len(t, fake.prompts, 1)
	assert.Contains(t, fake.prompts[0], "서울 마포구")
}
