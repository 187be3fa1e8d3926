package agent

import (
	"context"
	"testing"

	"policychat/internal/logger"
	"policychat/internal/model"

	"github.com/stretchr/testify/assert"
)

func TestIntentClassifier_Classify(t *testing.T) {
	tests := []struct {
		name     string
		response string
		err      error
		want     model.ChatIntent
	}{
		{name: "JSON greeting", response: `{"intent": "greeting"}`, want: model.IntentGreeting},
		{name: "fenced general chat", response: "```json\n{\"intent\": \"general_chat\"}\n```", want: model.IntentGeneralChat},
		{name: "bare label", response: "greeting", want: model.IntentGreeting},
		{name: "policy question", response: `{"intent":"policy_question"}`, want: model.IntentPolicyQuestion},
		{name: "unknown label", response: `{"intent":"smalltalk"}`, want: model.IntentPolicyQuestion},
		{name: "garbage", response: "잘 모르겠어요", want: model.IntentPolicyQuestion},
		{name: "error", err: errUpstream, want: model.IntentPolicyQuestion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeLLM{response: tt.response, err: tt.err}
			c := NewIntentClassifier(fake, logger.Nop())

			assert.Equal(t, tt.want, c.Classify(context.Background(), "안녕하세요"))
			assert.Equal(t, 1, fake.Calls(), "classification is a single model call")
		})
	}
}

func TestIntentClassifier_EmptyMessageSkipsModel(t *testing.T) {
	fake := &fakeLLM{response: `{"intent":"greeting"}`}
	c := NewIntentClassifier(fake, logger.Nop())

	assert.Equal(t, model.IntentPolicyQuestion, c.Classify(context.Background(), "   "))
	assert.Equal(t, 0, fake.Calls())
}
