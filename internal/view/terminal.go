package view

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"dinner-chat/internal/domain"
	"dinner-chat/internal/usecase"
)

var (
	userStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#74c0fc"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff6b6b"))
	hintStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
)

// MarkdownRenderer turns an assistant reply into terminal output.
type MarkdownRenderer func(markdown string) (string, error)

// GlamourRenderer renders markdown with glamour's dark style.
func GlamourRenderer(markdown string) (string, error) {
	return glamour.Render(markdown, "dark")
}

// Terminal writes session updates to a terminal.
type Terminal struct {
	out    io.Writer
	render MarkdownRenderer

	mu      sync.Mutex
	enabled bool
}

var _ usecase.View = (*Terminal)(nil)

type TerminalOption func(*Terminal)

func WithMarkdownRenderer(r MarkdownRenderer) TerminalOption {
	return func(t *Terminal) {
		if r != nil {
			t.render = r
		}
	}
}

func NewTerminal(out io.Writer, opts ...TerminalOption) *Terminal {
	t := &Terminal{out: out, render: GlamourRenderer, enabled: true}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Terminal) ShowStatus(status domain.ConnectionStatus) {
	ind := IndicatorFor(status)
	dot := lipgloss.NewStyle().Foreground(lipgloss.Color(ind.Color)).Render("●")
	fmt.Fprintf(t.out, "%s %s\n", dot, ind.Text)
}

func (t *Terminal) AppendMessage(msg domain.ChatMessage) {
	if msg.Role != domain.RoleAssistant {
		fmt.Fprintf(t.out, "%s %s\n", userStyle.Render("나:"), msg.Content)
		return
	}
	rendered, err := t.render(msg.Content)
	if err != nil {
		rendered = msg.Content
	}
	fmt.Fprintln(t.out, strings.TrimRight(rendered, "\n"))
}

func (t *Terminal) AppendError(err error) {
	fmt.Fprintln(t.out, errorStyle.Render(ErrorText(err)))
}

// SetInputEnabled prints the sending hint while input is locked.
func (t *Terminal) SetInputEnabled(enabled bool) {
	t.mu.Lock()
	t.enabled = enabled
	t.mu.Unlock()
	if !enabled {
		fmt.Fprintln(t.out, hintStyle.Render(SendingLabel))
	}
}

func (t *Terminal) InputEnabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

// ClearInput is a no-op; the terminal line is consumed on Enter.
func (t *Terminal) ClearInput() {}

// FocusInput prints the prompt for the next line.
func (t *Terminal) FocusInput() {
	fmt.Fprint(t.out, "> ")
}
