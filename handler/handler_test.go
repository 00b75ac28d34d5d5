package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"

	"dinner-chat/internal/domain"
	"dinner-chat/internal/integrations/openai"
	"dinner-chat/internal/usecase"
	"dinner-chat/internal/view"
)

type stubLLM struct {
	mu         sync.Mutex
	answer     string
	err        error
	configured bool
	requests   []openai.CompletionRequest
}

func (s *stubLLM) Complete(_ context.Context, in openai.CompletionRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, in)
	return s.answer, s.err
}

func (s *stubLLM) Configured() bool { return s.configured }

func newTestHandler(t *testing.T, llm *stubLLM) (*Handler, *usecase.ChatService) {
	t.Helper()
	svc, err := usecase.NewChatService(llm, usecase.DefaultSettings())
	require.NoError(t, err)
	h, err := NewHandler(svc)
	require.NoError(t, err)
	return h, svc
}

func makeEvent(method, path, body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: method,
		Path:       path,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}
}

func parseBody[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

func createSession(t *testing.T, h *Handler) string {
	t.Helper()
	resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/sessions", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	out := parseBody[sessionResponse](t, resp.Body)
	require.NotEmpty(t, out.SessionID)
	return out.SessionID
}

func TestNewHandler_ValidatesDependency(t *testing.T) {
	_, err := NewHandler(nil)
	require.Error(t, err)
}

func TestHandle_Index(t *testing.T) {
	h, _ := newTestHandler(t, &stubLLM{configured: true})
	resp, err := h.Handle(context.Background(), makeEvent(http.MethodGet, "/", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Headers["Content-Type"], "text/html")
	require.NotContains(t, resp.Body, "{{")
	require.Contains(t, resp.Body, `<button id="sendButton">`+view.SendLabel+`</button>`)
	require.Contains(t, resp.Body, view.IndicatorFor(domain.StatusUnknown).Text)
}

func TestIndex_RendersUserMessageBeforeRequest(t *testing.T) {
	page, err := renderIndex()
	require.NoError(t, err)

	body := page[strings.Index(page, "async function sendMessage"):]
	appendUser := strings.Index(body, "appendEntry(textEntry('user', text))")
	firstPost := strings.Index(body, "await postText(text)")
	require.NotEqual(t, -1, appendUser)
	require.NotEqual(t, -1, firstPost)
	require.Less(t, appendUser, firstPost, "user entry is drawn before the send request")

	// The server echoes the user entry first; the page skips it.
	require.Contains(t, body, "!(i === 0 && e.kind === 'user')")
}

func TestIndex_ResendsOnceAfterSessionLoss(t *testing.T) {
	page, err := renderIndex()
	require.NoError(t, err)

	body := page[strings.Index(page, "async function sendMessage"):]
	retry := body[strings.Index(body, "res.status === 404"):]
	require.Contains(t, retry[:200], "sessionId = null")
	require.Contains(t, retry[:200], "res = await postText(text)")
	require.Equal(t, 2, strings.Count(body[:strings.Index(body, "const data")], "postText(text)"))
}

func TestHandle_Health(t *testing.T) {
	h, _ := newTestHandler(t, &stubLLM{})
	resp, err := h.Handle(context.Background(), makeEvent(http.MethodGet, "/health", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"status":"ok"}`, resp.Body)
}

func TestHandle_Status(t *testing.T) {
	cases := []struct {
		name      string
		llm       *stubLLM
		status    string
		reachable bool
		text      string
	}{
		{name: "unconfigured", llm: &stubLLM{}, status: "unconfigured", text: "API Key 설정 필요"},
		{name: "available", llm: &stubLLM{configured: true, answer: "hi"}, status: "available", reachable: true, text: "API 정상 작동 중"},
		{name: "unauthorized", llm: &stubLLM{configured: true, err: &openai.HTTPStatusError{StatusCode: http.StatusUnauthorized}}, status: "unauthorized", text: "API Key 오류"},
		{name: "unknown", llm: &stubLLM{configured: true, err: errors.New("dial tcp: timeout")}, status: "unknown", reachable: true, text: "연결 상태 확인"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, _ := newTestHandler(t, tc.llm)
			resp, err := h.Handle(context.Background(), makeEvent(http.MethodGet, "/status", ""))
			require.NoError(t, err)
			require.Equal(t, http.StatusOK, resp.StatusCode)

			out := parseBody[statusResponse](t, resp.Body)
			require.Equal(t, tc.status, out.Status)
			require.Equal(t, tc.reachable, out.Reachable)
			require.Equal(t, tc.text, out.Indicator.Text)
		})
	}
}

func TestHandle_SendHappyPath(t *testing.T) {
	llm := &stubLLM{configured: true, answer: "된장찌개 어때요?"}
	h, _ := newTestHandler(t, llm)
	id := createSession(t, h)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/sessions/"+id+"/messages", `{"text":"추천해줘"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Headers["X-Correlation-Id"])

	out := parseBody[sendResponse](t, resp.Body)
	require.Equal(t, id, out.SessionID)
	require.NotNil(t, out.Reply)
	require.Equal(t, domain.AssistantMessage("된장찌개 어때요?"), *out.Reply)
	require.True(t, out.View.InputEnabled)
	require.Len(t, out.View.Entries, 2)
	require.Equal(t, view.EntryUser, out.View.Entries[0].Kind)
	require.Equal(t, view.EntryAssistant, out.View.Entries[1].Kind)

	resp, err = h.Handle(context.Background(), makeEvent(http.MethodGet, "/sessions/"+id+"/messages", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	transcript := parseBody[transcriptResponse](t, resp.Body)
	require.Equal(t, []domain.ChatMessage{
		domain.UserMessage("추천해줘"),
		domain.AssistantMessage("된장찌개 어때요?"),
	}, transcript.Messages)
	require.Len(t, transcript.Entries, 2)
}

func TestHandle_SendUpstreamFailureKeepsUserMessage(t *testing.T) {
	llm := &stubLLM{configured: true, err: &openai.HTTPStatusError{StatusCode: http.StatusInternalServerError}}
	h, svc := newTestHandler(t, llm)
	id := createSession(t, h)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/sessions/"+id+"/messages", `{"text":"추천해줘"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)

	out := parseBody[errorResponse](t, resp.Body)
	require.Equal(t, string(usecase.ErrorUpstream), out.Error)
	require.Equal(t, "오류가 발생했습니다: API 오류: 500", out.Message)
	require.NotNil(t, out.View)
	require.Len(t, out.View.Entries, 2)
	require.Equal(t, view.EntryError, out.View.Entries[1].Kind)

	sess, err := svc.Session(id)
	require.NoError(t, err)
	require.Equal(t, []domain.ChatMessage{domain.UserMessage("추천해줘")}, sess.Transcript())
}

func TestHandle_SendBlankTextIsSkipped(t *testing.T) {
	llm := &stubLLM{configured: true, answer: "x"}
	h, _ := newTestHandler(t, llm)
	id := createSession(t, h)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/sessions/"+id+"/messages", `{"text":"   "}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := parseBody[sendResponse](t, resp.Body)
	require.True(t, out.Skipped)
	require.Nil(t, out.Reply)
	require.Empty(t, llm.requests)
}

func TestHandle_SendBase64Body(t *testing.T) {
	llm := &stubLLM{configured: true, answer: "비빔밥"}
	h, _ := newTestHandler(t, llm)
	id := createSession(t, h)

	event := makeEvent(http.MethodPost, "/sessions/"+id+"/messages", base64.StdEncoding.EncodeToString([]byte(`{"text":"점심"}`)))
	event.IsBase64Encoded = true
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandle_InvalidBody(t *testing.T) {
	h, _ := newTestHandler(t, &stubLLM{configured: true})
	id := createSession(t, h)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/sessions/"+id+"/messages", `not-json`))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	out := parseBody[errorResponse](t, resp.Body)
	require.Equal(t, string(usecase.ErrorInvalidInput), out.Error)
}

func TestHandle_UnknownSession(t *testing.T) {
	h, _ := newTestHandler(t, &stubLLM{configured: true})

	for _, event := range []events.APIGatewayProxyRequest{
		makeEvent(http.MethodPost, "/sessions/missing/messages", `{"text":"hi"}`),
		makeEvent(http.MethodGet, "/sessions/missing/messages", ""),
		makeEvent(http.MethodDelete, "/sessions/missing", ""),
	} {
		resp, err := h.Handle(context.Background(), event)
		require.NoError(t, err)
		require.Equal(t, http.StatusNotFound, resp.StatusCode, event.HTTPMethod)
		require.Equal(t, string(usecase.ErrorSessionNotFound), parseBody[errorResponse](t, resp.Body).Error)
	}
}

func TestHandle_DeleteSession(t *testing.T) {
	h, svc := newTestHandler(t, &stubLLM{configured: true})
	id := createSession(t, h)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodDelete, "/sessions/"+id, ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Zero(t, svc.SessionCount())
}

func TestHandle_PathParameterWins(t *testing.T) {
	h, _ := newTestHandler(t, &stubLLM{configured: true})
	id := createSession(t, h)

	event := makeEvent(http.MethodGet, "/sessions/ignored/messages", "")
	event.PathParameters = map[string]string{"id": id}
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandle_RoutingErrors(t *testing.T) {
	h, _ := newTestHandler(t, &stubLLM{})

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodGet, "/nope", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = h.Handle(context.Background(), makeEvent(http.MethodGet, "/sessions", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		code   usecase.ErrorCode
		status int
	}{
		{usecase.ErrorBusy, http.StatusConflict},
		{usecase.ErrorSessionNotFound, http.StatusNotFound},
		{usecase.ErrorInvalidInput, http.StatusBadRequest},
		{usecase.ErrorUnconfigured, http.StatusServiceUnavailable},
		{usecase.ErrorUnauthorized, http.StatusBadGateway},
		{usecase.ErrorUpstream, http.StatusBadGateway},
		{usecase.ErrorTransport, http.StatusBadGateway},
		{usecase.ErrorInternal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(string(tc.code), func(t *testing.T) {
			require.Equal(t, tc.status, StatusFor(tc.code))
		})
	}
}

func TestErrorResponseFor_MapsUseCaseErrors(t *testing.T) {
	resp := errorResponseFor(&usecase.Error{Code: usecase.ErrorBusy, Reason: "send_in_flight"}, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	out := parseBody[errorResponse](t, resp.Body)
	require.Equal(t, "BUSY", out.Error)
	require.Equal(t, "send_in_flight", out.Reason)

	resp = errorResponseFor(errors.New("boom"), nil)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.Equal(t, string(usecase.ErrorInternal), parseBody[errorResponse](t, resp.Body).Error)
}

func TestHandle_UsesProvidedCorrelationID_CaseInsensitive(t *testing.T) {
	h, _ := newTestHandler(t, &stubLLM{})

	event := makeEvent(http.MethodGet, "/health", "")
	event.Headers["x-correlation-id"] = "corr-123"
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, "corr-123", resp.Headers["X-Correlation-Id"])
}
