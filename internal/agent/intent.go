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

// IntentClassifier labels a message as greeting, general chat or policy question
type IntentClassifier struct {
	llm llm.Completer
	log *logger.Logger
}

// NewIntentClassifier creates a new intent classifier
func NewIntentClassifier(client llm.Completer, log *logger.Logger) *IntentClassifier {
	return &IntentClassifier{
		llm: client,
		log: log.With("agent", "intent"),
	}
}

const intentPrompt = `당신은 주거 정책 상담 챗봇의 질문 분류기입니다.
사용자 메시지를 다음 세 가지 중 하나로 분류하세요.

- greeting: 인사, 안부, 감사 표현 (예: "안녕하세요", "고마워요")
- general_chat: 주거 정책과 무관한 일반 대화 (예: "오늘 날씨 어때?")
- policy_question: 주거 지원 정책, 대출, 임대, 자격 요건, 개인 상황에 대한 질문

JSON으로만 답하세요: {"intent": "greeting" | "general_chat" | "policy_question"}

사용자 메시지: %s`

type intentResponse struct {
	Intent string `json:"intent"`
}

// Classify makes exactly one model call. Empty input, errors and unknown
// labels all yield a policy question.
func (c *IntentClassifier) Classify(ctx context.Context, message string) model.ChatIntent {
	message = strings.TrimSpace(message)
	if message == "" || c.llm == nil {
		return model.IntentPolicyQuestion
	}

	raw, err := c.llm.Complete(ctx, fmt.Sprintf(intentPrompt, message))
	if err != nil {
		c.log.Warn("Intent classification failed, defaulting to policy question", "error", err)
		return model.IntentPolicyQuestion
	}

	if res := utils.DecodeAIJSON[intentResponse](raw); res.OK {
		return model.ParseChatIntent(strings.ToLower(strings.TrimSpace(res.Value.Intent)))
	}
	// Some models answer with the bare label.
	label := strings.ToLower(strings.Trim(strings.TrimSpace(raw), "\"'`.」「 "))
	return model.ParseChatIntent(label)
}
