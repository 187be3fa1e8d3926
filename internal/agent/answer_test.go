package agent

import (
	"context"
	"strings"
	"testing"

	"policychat/internal/logger"
	"policychat/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnswerer_Simple(t *testing.T) {
	fake := &fakeLLM{response: " 안녕하세요! 무엇을 도와드릴까요? "}
	a := NewAnswerer(fake, logger.Nop())

	answer, err := a.Simple(context.Background(), "안녕하세요", model.IntentGreeting)
	require.NoError(t, err)
	assert.Equal(t, "안녕하세요! 무엇을 도와드릴까요?", answer)
	assert.Contains(t, fake.prompts[0], "greeting")

	a = NewAnswerer(&fakeLLM{err: errUpstream}, logger.Nop())
	answer, err = a.Simple(context.Background(), "안녕하세요", model.IntentGreeting)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(answer, FallbackAnswerPrefix))
}

func TestAnswerer_RAG(t *testing.T) {
	fake := &fakeLLM{response: "**청년전세임대**를 추천합니다."}
	a := NewAnswerer(fake, logger.Nop())

	answer, err := a.RAG(context.Background(), "전세 지원?", model.UserProfile{Age: intPtr(27)}, samplePolicies()[:1])
	require.NoError(t, err)
	assert.Equal(t, "**청년전세임대**를 추천합니다.", answer)
	assert.Contains(t, fake.prompts[0], "[1] 청년전세임대")
	assert.Contains(t, fake.prompts[0], "나이: 27세")

	_, err = a.RAG(context.Background(), "전세 지원?", model.UserProfile{}, nil)
	require.NoError(t, err)
	assert.Contains(t, fake.prompts[1], "검색된 정책 없음")
}

func TestAnswerer_SimpleStream(t *testing.T) {
	var got []string
	collect := func(c string) error {
		got = append(got, c)
		return nil
	}

	a := NewAnswerer(&fakeLLM{chunks: []string{"안녕", "하세요"}}, logger.Nop())
	require.NoError(t, a.SimpleStream(context.Background(), "hi", model.IntentGreeting, collect))
	assert.Equal(t, []string{"안녕", "하세요"}, got)

	got = nil
	a = NewAnswerer(&fakeLLM{err: errUpstream}, logger.Nop())
	err := a.SimpleStream(context.Background(), "hi", model.IntentGreeting, collect)
	require.Error(t, err)
	require.Len(t, got, 1)
	assert.True(t, strings.HasPrefix(got[0], FallbackAnswerPrefix))

	// a failure after partial output is not papered over
	got = nil
	a = NewAnswerer(&fakeLLM{chunks: []string{"안녕"}, err: errUpstream}, logger.Nop())
	err = a.SimpleStream(context.Background(), "hi", model.IntentGreeting, collect)
	require.Error(t, err)
	assert.Equal(t, []string{"안녕"}, got)
}
