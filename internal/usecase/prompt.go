package usecase

import (
	"dinner-chat/internal/domain"
)

const (
	DefaultModel       = "gpt-3.5-turbo"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 500

	// DefaultSystemPrompt is the dinner-menu recommender persona.
	DefaultSystemPrompt = "당신은 친근한 저녁 메뉴 추천 전문가입니다. 사용자의 요청에 따라 맛있는 저녁 메뉴를 추천해주세요. 간단하고 친절하게 답변해주세요."

	probePrompt    = "test"
	probeMaxTokens = 5
)

// Settings are the fixed sampling parameters used for every send.
type Settings struct {
	Model        string
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
}

func DefaultSettings() Settings {
	return Settings{
		Model:        DefaultModel,
		SystemPrompt: DefaultSystemPrompt,
		Temperature:  DefaultTemperature,
		MaxTokens:    DefaultMaxTokens,
	}
}

// buildPromptMessages returns the system instruction followed by a copy of
// the transcript. The transcript slice is never aliased.
func buildPromptMessages(systemPrompt string, transcript []domain.ChatMessage) []domain.ChatMessage {
	messages := make([]domain.ChatMessage, 0, len(transcript)+1)
	messages = append(messages, domain.SystemMessage(systemPrompt))
	messages = append(messages, transcript...)
	return messages
}

func probeMessages() []domain.ChatMessage {
	return []domain.ChatMessage{domain.UserMessage(probePrompt)}
}
