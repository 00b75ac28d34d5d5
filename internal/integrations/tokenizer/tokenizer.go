// Package tokenizer estimates prompt sizes with the cl100k_base encoding used
// by the gpt-3.5/gpt-4 chat models.
package tokenizer

import (
	"fmt"

	"github.com/tiktoken-go/tokenizer"

	"dinner-chat/internal/domain"
)

// perMessageOverhead approximates the role/separator tokens the chat format
// adds around every message.
const perMessageOverhead = 4

type Counter struct {
	codec tokenizer.Codec
}

func New() (*Counter, error) {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: load cl100k_base: %w", err)
	}
	return &Counter{codec: codec}, nil
}

// CountMessages returns an estimate of the prompt tokens for messages.
func (c *Counter) CountMessages(messages []domain.ChatMessage) (int, error) {
	total := 0
	for _, m := range messages {
		ids, _, err := c.codec.Encode(m.Content)
		if err != nil {
			return 0, fmt.Errorf("tokenizer: encode %s message: %w", m.Role, err)
		}
		total += len(ids) + perMessageOverhead
	}
	return total, nil
}
