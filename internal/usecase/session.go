package usecase

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"dinner-chat/internal/domain"
	"dinner-chat/internal/integrations/openai"
)

type LLMClient interface {
	Complete(ctx context.Context, in openai.CompletionRequest) (string, error)
	Configured() bool
}

type TokenCounter interface {
	CountMessages(messages []domain.ChatMessage) (int, error)
}

// Archiver receives every completed exchange. It is write-only: nothing read
// back from it ever reaches a transcript.
type Archiver interface {
	SaveExchange(ctx context.Context, sessionID string, turn int, model, question, answer string) error
}

// Reply is the outcome of a successful Send.
type Reply struct {
	Message      domain.ChatMessage
	PromptTokens int
	Skipped      bool
}

// Session owns one ordered transcript. At most one send is in flight at a
// time; a concurrent Send fails with ErrorBusy instead of queueing.
type Session struct {
	id       string
	llm      LLMClient
	settings Settings
	tokens   TokenCounter
	archive  Archiver
	logger   *slog.Logger

	mu         sync.Mutex
	transcript []domain.ChatMessage
	inFlight   bool
	turns      int
	lastUsed   time.Time
}

func (s *Session) ID() string {
	return s.id
}

// Transcript returns a copy of the conversation so far, oldest first.
func (s *Session) Transcript() []domain.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ChatMessage, len(s.transcript))
	copy(out, s.transcript)
	return out
}

func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

func (s *Session) idleSince() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed, s.inFlight
}

// Send appends text as a user message, asks the completion endpoint for a
// reply and appends the reply.
//
// The user message is appended and rendered before the request goes out and
// stays in the transcript when the request fails. Blank text is ignored.
func (s *Session) Send(ctx context.Context, view View, text string) (Reply, error) {
	if strings.TrimSpace(text) == "" {
		return Reply{Skipped: true}, nil
	}
	if view == nil {
		view = NopView{}
	}

	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return Reply{}, newError(ErrorBusy, "send_in_flight", nil)
	}
	s.inFlight = true
	user := domain.UserMessage(text)
	s.transcript = append(s.transcript, user)
	messages := buildPromptMessages(s.settings.SystemPrompt, s.transcript)
	s.lastUsed = now()
	s.mu.Unlock()

	view.AppendMessage(user)
	view.ClearInput()
	view.SetInputEnabled(false)
	defer func() {
		s.mu.Lock()
		s.inFlight = false
		s.lastUsed = now()
		s.mu.Unlock()
		view.SetInputEnabled(true)
		view.FocusInput()
	}()

	promptTokens := s.countTokens(messages)
	temperature := s.settings.Temperature
	content, err := s.llm.Complete(ctx, openai.CompletionRequest{
		Model:       s.settings.Model,
		Messages:    messages,
		Temperature: &temperature,
		MaxTokens:   s.settings.MaxTokens,
	})
	if err != nil {
		ucErr := classifyCompletionError(err)
		s.logger.Warn("send failed",
			"session_id", s.id,
			"code", ucErr.Code,
			"reason", ucErr.Reason,
			"err", err,
		)
		view.AppendError(ucErr)
		return Reply{}, ucErr
	}

	reply := domain.AssistantMessage(content)
	s.mu.Lock()
	s.transcript = append(s.transcript, reply)
	s.turns++
	turn := s.turns
	s.mu.Unlock()

	view.AppendMessage(reply)
	s.logger.Info("send completed",
		"session_id", s.id,
		"turn", turn,
		"prompt_tokens", promptTokens,
	)
	s.archiveExchange(ctx, turn, text, content)

	return Reply{Message: reply, PromptTokens: promptTokens}, nil
}

func (s *Session) countTokens(messages []domain.ChatMessage) int {
	if s.tokens == nil {
		return 0
	}
	n, err := s.tokens.CountMessages(messages)
	if err != nil {
		s.logger.Debug("token estimate failed", "session_id", s.id, "err", err)
		return 0
	}
	return n
}

func (s *Session) archiveExchange(ctx context.Context, turn int, question, answer string) {
	if s.archive == nil {
		return
	}
	if err := s.archive.SaveExchange(ctx, s.id, turn, s.settings.Model, question, answer); err != nil {
		s.logger.Warn("archive exchange failed", "session_id", s.id, "turn", turn, "err", err)
	}
}

var now = time.Now
