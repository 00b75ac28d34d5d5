package usecase

import "dinner-chat/internal/domain"

// View is the visible surface a session writes into: a status indicator, the
// transcript log and the input controls.
type View interface {
	ShowStatus(status domain.ConnectionStatus)
	AppendMessage(msg domain.ChatMessage)
	AppendError(err error)
	SetInputEnabled(enabled bool)
	ClearInput()
	FocusInput()
}

// NopView discards every update.
type NopView struct{}

func (NopView) ShowStatus(domain.ConnectionStatus) {}
func (NopView) AppendMessage(domain.ChatMessage)   {}
func (NopView) AppendError(error)                  {}
func (NopView) SetInputEnabled(bool)               {}
func (NopView) ClearInput()                        {}
func (NopView) FocusInput()                        {}
