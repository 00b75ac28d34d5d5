// Package view holds the two usecase.View implementations: a Recorder that
// collects updates for the web widget and a Terminal for the chat command.
package view

import (
	"errors"
	"fmt"

	"dinner-chat/internal/domain"
	"dinner-chat/internal/integrations/openai"
	"dinner-chat/internal/usecase"
)

// Tone is the colour class of a status indicator.
type Tone string

const (
	ToneError   Tone = "error"
	ToneOK      Tone = "ok"
	ToneWarning Tone = "warning"
)

// Indicator is the visible form of a connection status.
type Indicator struct {
	Text  string `json:"text"`
	Tone  Tone   `json:"tone"`
	Color string `json:"color"`
}

// IndicatorFor returns the label and colour shown for status.
func IndicatorFor(status domain.ConnectionStatus) Indicator {
	switch status {
	case domain.StatusUnconfigured:
		return Indicator{Text: "API Key 설정 필요", Tone: ToneError, Color: "#ff6b6b"}
	case domain.StatusAvailable:
		return Indicator{Text: "API 정상 작동 중", Tone: ToneOK, Color: "#51cf66"}
	case domain.StatusUnauthorized:
		return Indicator{Text: "API Key 오류", Tone: ToneError, Color: "#ff6b6b"}
	default:
		return Indicator{Text: "연결 상태 확인", Tone: ToneWarning, Color: "#ffd43b"}
	}
}

const (
	SendLabel    = "전송"
	SendingLabel = "전송 중..."
)

// ErrorText is the inline error line shown for a failed send.
func ErrorText(err error) string {
	return "오류가 발생했습니다: " + describe(err)
}

func describe(err error) string {
	if err == nil {
		return "알 수 없는 오류"
	}
	if status, ok := usecase.UpstreamStatus(err); ok {
		return fmt.Sprintf("API 오류: %d", status)
	}
	if errors.Is(err, openai.ErrMalformedResponse) {
		return "응답 형식 오류"
	}
	switch usecase.CodeOf(err) {
	case usecase.ErrorUnconfigured:
		return "API Key 설정 필요"
	case usecase.ErrorTransport:
		return "네트워크 오류 (" + cause(err) + ")"
	case usecase.ErrorBusy:
		return "이전 메시지를 처리하는 중입니다"
	case usecase.ErrorUnauthorized:
		return "API Key 오류"
	default:
		return err.Error()
	}
}

// cause is the message of the error a use-case error wraps.
func cause(err error) string {
	var ucErr *usecase.Error
	if errors.As(err, &ucErr) && ucErr.Err != nil {
		return ucErr.Err.Error()
	}
	return err.Error()
}
