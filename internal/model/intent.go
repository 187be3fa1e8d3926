package model

// ChatIntent is the pre-pipeline classification of a user message
type ChatIntent string

const (
	IntentGreeting       ChatIntent = "greeting"
	IntentGeneralChat    ChatIntent = "general_chat"
	IntentPolicyQuestion ChatIntent = "policy_question"
)

// ParseChatIntent maps classifier output onto a known intent.
// Anything unrecognized is treated as a policy question.
func ParseChatIntent(s string) ChatIntent {
	switch ChatIntent(s) {
	case IntentGreeting:
		return IntentGreeting
	case IntentGeneralChat:
		return IntentGeneralChat
	}
	return IntentPolicyQuestion
}
