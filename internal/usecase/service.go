package usecase

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"

	"dinner-chat/internal/domain"
	"dinner-chat/internal/integrations/openai"
)

const defaultMaxSessions = 1000

// ChatService owns the in-memory sessions of one process and the status probe.
type ChatService struct {
	llm         LLMClient
	settings    Settings
	tokens      TokenCounter
	archive     Archiver
	logger      *slog.Logger
	maxSessions int

	mu       sync.Mutex
	sessions map[string]*Session
}

type ServiceOption func(*ChatService)

func WithTokenCounter(c TokenCounter) ServiceOption {
	return func(s *ChatService) {
		s.tokens = c
	}
}

func WithArchive(a Archiver) ServiceOption {
	return func(s *ChatService) {
		s.archive = a
	}
}

func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *ChatService) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMaxSessions(n int) ServiceOption {
	return func(s *ChatService) {
		if n > 0 {
			s.maxSessions = n
		}
	}
}

func NewChatService(llm LLMClient, settings Settings, opts ...ServiceOption) (*ChatService, error) {
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	if settings.Temperature < 0 || settings.Temperature > 2 {
		return nil, errors.New("usecase: temperature must be within [0, 2]")
	}
	settings.Model = strings.TrimSpace(settings.Model)
	if settings.Model == "" {
		settings.Model = DefaultModel
	}
	if strings.TrimSpace(settings.SystemPrompt) == "" {
		settings.SystemPrompt = DefaultSystemPrompt
	}
	if settings.MaxTokens <= 0 {
		settings.MaxTokens = DefaultMaxTokens
	}

	s := &ChatService{
		llm:         llm,
		settings:    settings,
		logger:      slog.Default(),
		maxSessions: defaultMaxSessions,
		sessions:    make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *ChatService) Settings() Settings {
	return s.settings
}

// NewSession registers an empty session. When the registry is full the
// least recently used idle session is dropped first. If every registered
// session has a send in flight it fails with ErrorBusy instead of growing
// past the limit.
func (s *ChatService) NewSession() (*Session, error) {
	sess := &Session{
		id:       newUUID(),
		llm:      s.llm,
		settings: s.settings,
		tokens:   s.tokens,
		archive:  s.archive,
		logger:   s.logger,
		lastUsed: now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sessions) >= s.maxSessions && !s.evictLocked() {
		s.logger.Warn("session registry full", "max_sessions", s.maxSessions)
		return nil, newError(ErrorBusy, "session_capacity", nil)
	}
	s.sessions[sess.id] = sess
	return sess, nil
}

// evictLocked drops the least recently used idle session and reports
// whether one was found.
func (s *ChatService) evictLocked() bool {
	var (
		victim string
		oldest = now()
	)
	for id, sess := range s.sessions {
		lastUsed, busy := sess.idleSince()
		if busy {
			continue
		}
		if victim == "" || lastUsed.Before(oldest) {
			victim, oldest = id, lastUsed
		}
	}
	if victim == "" {
		return false
	}
	delete(s.sessions, victim)
	s.logger.Info("session evicted", "session_id", victim)
	return true
}

func (s *ChatService) Session(id string) (*Session, error) {
	id = strings.TrimSpace(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, newError(ErrorSessionNotFound, "unknown_session", nil)
	}
	return sess, nil
}

func (s *ChatService) CloseSession(id string) error {
	id = strings.TrimSpace(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return newError(ErrorSessionNotFound, "unknown_session", nil)
	}
	delete(s.sessions, id)
	return nil
}

func (s *ChatService) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// CheckStatus probes the completion endpoint with a tiny request and shows
// the result. Without a credential no request is made.
//
// Any failure other than 401 maps to StatusUnknown, which still counts as
// reachable. That leniency is kept on purpose; see DESIGN.md.
func (s *ChatService) CheckStatus(ctx context.Context, view View) domain.ConnectionStatus {
	if view == nil {
		view = NopView{}
	}
	status := s.probe(ctx)
	view.ShowStatus(status)
	return status
}

func (s *ChatService) probe(ctx context.Context) domain.ConnectionStatus {
	if !s.llm.Configured() {
		s.logger.Warn("status check skipped: api key not configured")
		return domain.StatusUnconfigured
	}
	_, err := s.llm.Complete(ctx, openai.CompletionRequest{
		Model:     s.settings.Model,
		Messages:  probeMessages(),
		MaxTokens: probeMaxTokens,
	})
	// A 2xx with an unusable body still proves the key works.
	if err == nil || errors.Is(err, openai.ErrMalformedResponse) {
		return domain.StatusAvailable
	}
	if errors.Is(err, openai.ErrMissingAPIKey) {
		return domain.StatusUnconfigured
	}
	if status, ok := UpstreamStatus(err); ok && status == http.StatusUnauthorized {
		s.logger.Warn("status check: api key rejected")
		return domain.StatusUnauthorized
	}
	s.logger.Info("status check failed", "err", err)
	return domain.StatusUnknown
}

var newUUID = func() string {
	return uuid.NewString()
}
