package agent

import (
	"context"
	"fmt"
	"strings"

	"policychat/internal/llm"
	"policychat/internal/logger"
	"policychat/internal/model"
)

// Answerer covers the two single-call paths: the small-talk answer and the
// single-shot retrieval answer.
type Answerer struct {
	llm llm.Completer
	log *logger.Logger
}

// NewAnswerer creates the single-call answerer.
func NewAnswerer(client llm.Completer, log *logger.Logger) *Answerer {
	return &Answerer{llm: client, log: log.With("agent", "answer")}
}

const simplePrompt = `당신은 청년과 신혼부부의 주거 지원 정책을 안내하는 친절한 상담 챗봇입니다.
아래 메시지에 2~3문장으로 짧고 따뜻하게 답하세요.
정책 관련 질문이 아니라면 답한 뒤, 나이·소득·희망 지역을 알려주시면 맞춤 정책을 찾아드릴 수 있다고 안내하세요.

메시지 유형: %s
사용자 메시지: %s`

const ragPrompt = `당신은 주거 지원 정책 상담사입니다.
아래 검색된 정책 정보만 근거로 사용자 질문에 답하세요. 정보가 부족하면 모른다고 말하고 확인 방법을 안내하세요.
마크다운으로 작성하고, 언급한 정책명은 굵게 표시하세요.

## 사용자 프로필
%s

## 검색된 정책
%s
## 질문
%s`

// Simple answers greetings and general chat without retrieval.
func (a *Answerer) Simple(ctx context.Context, message string, intent model.ChatIntent) (string, error) {
	answer, err := a.llm.Complete(ctx, fmt.Sprintf(simplePrompt, intent, message))
	if err != nil {
		return FallbackAnswer(err), err
	}
	return strings.TrimSpace(answer), nil
}

// SimpleStream is the streaming variant of Simple.
func (a *Answerer) SimpleStream(ctx context.Context, message string, intent model.ChatIntent, onChunk func(string) error) error {
	return streamWithFallback(ctx, a.llm, fmt.Sprintf(simplePrompt, intent, message), onChunk)
}

// RAG answers from the retrieved policies in one model call.
func (a *Answerer) RAG(ctx context.Context, question string, profile model.UserProfile, policies []model.PolicyRecord) (string, error) {
	answer, err := a.llm.Complete(ctx, a.ragPrompt(question, profile, policies))
	if err != nil {
		return FallbackAnswer(err), err
	}
	return strings.TrimSpace(answer), nil
}

func (a *Answerer) ragPrompt(question string, profile model.UserProfile, policies []model.PolicyRecord) string {
	docs := formatPolicies(policies, 500)
	if docs == "" {
		docs = "(검색된 정책 없음)\n"
	}
	return fmt.Sprintf(ragPrompt, SummarizeProfile(profile), docs, question)
}

func streamWithFallback(ctx context.Context, client llm.Completer, prompt string, onChunk func(string) error) error {
	emitted := false
	err := client.Stream(ctx, prompt, func(chunk string) error {
		emitted = true
		return onChunk(chunk)
	})
	if err == nil || emitted {
		return err
	}
	if cbErr := onChunk(FallbackAnswer(err)); cbErr != nil {
		return cbErr
	}
	return err
}
