package view

import (
	"bytes"
	"html"
	"sync"

	"github.com/yuin/goldmark"

	"dinner-chat/internal/domain"
	"dinner-chat/internal/usecase"
)

type EntryKind string

const (
	EntryUser      EntryKind = "user"
	EntryAssistant EntryKind = "assistant"
	EntryError     EntryKind = "error"
)

// Entry is one rendered line of the transcript log.
type Entry struct {
	Kind EntryKind `json:"kind"`
	Text string    `json:"text"`
	HTML string    `json:"html"`
}

// Snapshot is the state a Recorder has collected so far.
type Snapshot struct {
	Status       *Indicator `json:"status,omitempty"`
	Entries      []Entry    `json:"entries"`
	InputEnabled bool       `json:"inputEnabled"`
	InputCleared bool       `json:"inputCleared"`
	Focused      bool       `json:"focused"`
}

// Recorder collects view updates of one request so a transport can ship them
// to the browser. Assistant replies are rendered from markdown with raw HTML
// disabled; user text and errors are escaped.
type Recorder struct {
	md goldmark.Markdown

	mu           sync.Mutex
	status       *domain.ConnectionStatus
	entries      []Entry
	inputEnabled bool
	inputCleared bool
	focused      bool
}

var _ usecase.View = (*Recorder)(nil)

func NewRecorder() *Recorder {
	return &Recorder{md: goldmark.New(), inputEnabled: true}
}

func (r *Recorder) ShowStatus(status domain.ConnectionStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = &status
}

func (r *Recorder) AppendMessage(msg domain.ChatMessage) {
	entry := Entry{Text: msg.Content}
	switch msg.Role {
	case domain.RoleAssistant:
		entry.Kind = EntryAssistant
		entry.HTML = r.renderMarkdown(msg.Content)
	default:
		entry.Kind = EntryUser
		entry.HTML = paragraph(msg.Content)
	}
	r.append(entry)
}

func (r *Recorder) AppendError(err error) {
	text := ErrorText(err)
	r.append(Entry{Kind: EntryError, Text: text, HTML: paragraph(text)})
}

func (r *Recorder) SetInputEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inputEnabled = enabled
}

func (r *Recorder) ClearInput() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inputCleared = true
}

func (r *Recorder) FocusInput() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.focused = true
}

func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := Snapshot{
		Entries:      make([]Entry, len(r.entries)),
		InputEnabled: r.inputEnabled,
		InputCleared: r.inputCleared,
		Focused:      r.focused,
	}
	copy(snap.Entries, r.entries)
	if r.status != nil {
		ind := IndicatorFor(*r.status)
		snap.Status = &ind
	}
	return snap
}

// RenderTranscript converts a transcript into entries without touching the
// recorder's state.
func (r *Recorder) RenderTranscript(messages []domain.ChatMessage) []Entry {
	out := make([]Entry, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == domain.RoleAssistant {
			out = append(out, Entry{Kind: EntryAssistant, Text: msg.Content, HTML: r.renderMarkdown(msg.Content)})
			continue
		}
		out = append(out, Entry{Kind: EntryUser, Text: msg.Content, HTML: paragraph(msg.Content)})
	}
	return out
}

func (r *Recorder) append(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func (r *Recorder) renderMarkdown(src string) string {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		return paragraph(src)
	}
	return buf.String()
}

func paragraph(text string) string {
	return "<p>" + html.EscapeString(text) + "</p>"
}
