package main

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"dinner-chat/internal/config"
	"dinner-chat/internal/integrations/openai"
	"dinner-chat/internal/usecase"
)

type scriptedLLM struct {
	answers    []string
	err        error
	configured bool
}

func (s *scriptedLLM) Complete(_ context.Context, _ openai.CompletionRequest) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	answer := s.answers[0]
	s.answers = s.answers[1:]
	return answer, nil
}

func (s *scriptedLLM) Configured() bool { return s.configured }

func testSetup(t *testing.T, llm usecase.LLMClient) setupFunc {
	t.Helper()
	svc, err := usecase.NewChatService(llm, usecase.DefaultSettings())
	require.NoError(t, err)
	a := &app{logger: slog.Default(), service: svc}
	return func(*cobra.Command) (*app, error) { return a, nil }
}

func run(t *testing.T, cmd *cobra.Command, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	require.Subset(t, names, []string{"serve", "lambda", "chat", "status", "archive"})
	require.NotNil(t, root.PersistentFlags().Lookup("env-file"))
}

func TestChatCmd_Conversation(t *testing.T) {
	llm := &scriptedLLM{configured: true, answers: []string{"ok", "된장찌개 어때요?"}}
	cmd := newChatCmd(testSetup(t, llm))

	out, err := run(t, cmd, "\n추천해줘\n:q\n")
	require.NoError(t, err)
	require.Contains(t, out, "API 정상 작동 중")
	require.Contains(t, out, "추천해줘")
	require.Contains(t, out, "된장찌개")
}

func TestChatCmd_ErrorIsRenderedAndLoopContinues(t *testing.T) {
	llm := &scriptedLLM{configured: true, err: &openai.HTTPStatusError{StatusCode: http.StatusInternalServerError}}
	cmd := newChatCmd(testSetup(t, llm))

	out, err := run(t, cmd, "추천해줘\n또 추천해줘\n")
	require.NoError(t, err)
	require.Equal(t, 2, strings.Count(out, "오류가 발생했습니다: API 오류: 500"))
}

func TestStatusCmd_ExitsNonZeroWhenUnreachable(t *testing.T) {
	cmd := newStatusCmd(testSetup(t, &scriptedLLM{}))
	out, err := run(t, cmd, "")
	require.ErrorIs(t, err, errNotReachable)
	require.Contains(t, out, "API Key 설정 필요")

	cmd = newStatusCmd(testSetup(t, &scriptedLLM{configured: true, answers: []string{"ok"}}))
	_, err = run(t, cmd, "")
	require.NoError(t, err)
}

func TestArchiveCmd_RequiresTable(t *testing.T) {
	cmd := newArchiveCmd(testSetup(t, &scriptedLLM{}))
	_, err := run(t, cmd, "", "abc")
	require.ErrorIs(t, err, errArchiveDisabled)
}

func TestNewLogger_Format(t *testing.T) {
	var buf bytes.Buffer
	newLogger(config.Config{LogFormat: "json", LogLevel: slog.LevelInfo}, &buf).Info("hello", "k", "v")
	require.Contains(t, buf.String(), `"msg":"hello"`)

	buf.Reset()
	newLogger(config.Config{LogFormat: "text", LogLevel: slog.LevelWarn}, &buf).Info("dropped")
	require.Empty(t, buf.String())
}
