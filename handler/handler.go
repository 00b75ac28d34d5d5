package handler

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"dinner-chat/internal/domain"
	"dinner-chat/internal/usecase"
	"dinner-chat/internal/view"
)

const correlationHeader = "X-Correlation-Id"

//go:embed static/index.html
var indexSource string

var indexTemplate = template.Must(template.New("index").Parse(indexSource))

type indexData struct {
	SendLabel    string
	SendingLabel string
	Unknown      view.Indicator
}

func renderIndex() (string, error) {
	var buf bytes.Buffer
	err := indexTemplate.Execute(&buf, indexData{
		SendLabel:    view.SendLabel,
		SendingLabel: view.SendingLabel,
		Unknown:      view.IndicatorFor(domain.StatusUnknown),
	})
	if err != nil {
		return "", fmt.Errorf("handler: render index: %w", err)
	}
	return buf.String(), nil
}

// ChatService is the slice of usecase.ChatService the handler routes to.
type ChatService interface {
	NewSession() (*usecase.Session, error)
	Session(id string) (*usecase.Session, error)
	CloseSession(id string) error
	CheckStatus(ctx context.Context, v usecase.View) domain.ConnectionStatus
}

type Handler struct {
	svc    ChatService
	logger *slog.Logger
	index  string
}

type Option func(*Handler)

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

func NewHandler(svc ChatService, opts ...Option) (*Handler, error) {
	if svc == nil {
		return nil, errors.New("handler: chat service must not be nil")
	}
	index, err := renderIndex()
	if err != nil {
		return nil, err
	}
	h := &Handler{svc: svc, logger: slog.Default(), index: index}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

type sendRequest struct {
	Text string `json:"text"`
}

type statusResponse struct {
	Status    string         `json:"status"`
	Reachable bool           `json:"reachable"`
	Indicator view.Indicator `json:"indicator"`
}

type sessionResponse struct {
	SessionID string `json:"sessionId"`
}

type transcriptResponse struct {
	SessionID string               `json:"sessionId"`
	Messages  []domain.ChatMessage `json:"messages"`
	Entries   []view.Entry         `json:"entries"`
}

type sendResponse struct {
	SessionID    string              `json:"sessionId"`
	Reply        *domain.ChatMessage `json:"reply,omitempty"`
	Skipped      bool                `json:"skipped,omitempty"`
	PromptTokens int                 `json:"promptTokens,omitempty"`
	View         view.Snapshot       `json:"view"`
}

type errorResponse struct {
	Error   string         `json:"error"`
	Reason  string         `json:"reason,omitempty"`
	Message string         `json:"message,omitempty"`
	View    *view.Snapshot `json:"view,omitempty"`
}

// Handle serves the widget and the chat API from an API Gateway proxy event.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := headerValue(req.Headers, correlationHeader)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	logger := h.logger.With("correlation_id", correlationID)

	resp := h.route(ctx, logger, req)
	if resp.Headers == nil {
		resp.Headers = map[string]string{}
	}
	resp.Headers[correlationHeader] = correlationID
	logger.Debug("request handled", "method", req.HTTPMethod, "path", req.Path, "status", resp.StatusCode)
	return resp, nil
}

func (h *Handler) route(ctx context.Context, logger *slog.Logger, req events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	segments := splitPath(req.Path)
	method := req.HTTPMethod

	switch {
	case len(segments) == 0:
		if method != http.MethodGet {
			return methodNotAllowed()
		}
		return htmlResponse(h.index)

	case len(segments) == 1 && segments[0] == "health":
		if method != http.MethodGet {
			return methodNotAllowed()
		}
		return jsonResponse(http.StatusOK, map[string]string{"status": "ok"})

	case len(segments) == 1 && segments[0] == "status":
		if method != http.MethodGet {
			return methodNotAllowed()
		}
		return h.status(ctx)

	case len(segments) == 1 && segments[0] == "sessions":
		if method != http.MethodPost {
			return methodNotAllowed()
		}
		sess, err := h.svc.NewSession()
		if err != nil {
			return errorResponseFor(err, nil)
		}
		logger.Info("session created", "session_id", sess.ID())
		return jsonResponse(http.StatusCreated, sessionResponse{SessionID: sess.ID()})

	case len(segments) == 2 && segments[0] == "sessions":
		if method != http.MethodDelete {
			return methodNotAllowed()
		}
		id := sessionID(req, segments[1])
		if err := h.svc.CloseSession(id); err != nil {
			return errorResponseFor(err, nil)
		}
		logger.Info("session closed", "session_id", id)
		return events.APIGatewayProxyResponse{StatusCode: http.StatusNoContent}

	case len(segments) == 3 && segments[0] == "sessions" && segments[2] == "messages":
		id := sessionID(req, segments[1])
		switch method {
		case http.MethodGet:
			return h.transcript(id)
		case http.MethodPost:
			return h.send(ctx, logger, id, req)
		default:
			return methodNotAllowed()
		}
	}
	return jsonResponse(http.StatusNotFound, errorResponse{Error: "NOT_FOUND"})
}

func (h *Handler) status(ctx context.Context) events.APIGatewayProxyResponse {
	status := h.svc.CheckStatus(ctx, nil)
	return jsonResponse(http.StatusOK, statusResponse{
		Status:    status.String(),
		Reachable: status.Reachable(),
		Indicator: view.IndicatorFor(status),
	})
}

func (h *Handler) transcript(id string) events.APIGatewayProxyResponse {
	sess, err := h.svc.Session(id)
	if err != nil {
		return errorResponseFor(err, nil)
	}
	messages := sess.Transcript()
	return jsonResponse(http.StatusOK, transcriptResponse{
		SessionID: sess.ID(),
		Messages:  messages,
		Entries:   view.NewRecorder().RenderTranscript(messages),
	})
}

func (h *Handler) send(ctx context.Context, logger *slog.Logger, id string, req events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	sess, err := h.svc.Session(id)
	if err != nil {
		return errorResponseFor(err, nil)
	}

	body, err := requestBody(req)
	if err != nil {
		return jsonResponse(http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput), Reason: "invalid_body"})
	}
	var in sendRequest
	if err := json.Unmarshal(body, &in); err != nil {
		logger.Warn("invalid request body", "err", err)
		return jsonResponse(http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput), Reason: "invalid_json"})
	}

	rec := view.NewRecorder()
	reply, err := sess.Send(ctx, rec, in.Text)
	if err != nil {
		snap := rec.Snapshot()
		return errorResponseFor(err, &snap)
	}

	out := sendResponse{
		SessionID:    sess.ID(),
		Skipped:      reply.Skipped,
		PromptTokens: reply.PromptTokens,
		View:         rec.Snapshot(),
	}
	if !reply.Skipped {
		msg := reply.Message
		out.Reply = &msg
	}
	return jsonResponse(http.StatusOK, out)
}

// StatusFor maps a use-case error code to an HTTP status.
func StatusFor(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorBusy:
		return http.StatusConflict
	case usecase.ErrorSessionNotFound:
		return http.StatusNotFound
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest
	case usecase.ErrorUnconfigured:
		return http.StatusServiceUnavailable
	case usecase.ErrorUnauthorized, usecase.ErrorUpstream, usecase.ErrorTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func errorResponseFor(err error, snap *view.Snapshot) events.APIGatewayProxyResponse {
	code := usecase.CodeOf(err)
	out := errorResponse{Error: string(code), Message: view.ErrorText(err), View: snap}
	var ucErr *usecase.Error
	if errors.As(err, &ucErr) {
		out.Reason = ucErr.Reason
	}
	return jsonResponse(StatusFor(code), out)
}

func methodNotAllowed() events.APIGatewayProxyResponse {
	return jsonResponse(http.StatusMethodNotAllowed, errorResponse{Error: "METHOD_NOT_ALLOWED"})
}

func jsonResponse(status int, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"INTERNAL_ERROR"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}
}

func htmlResponse(body string) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusOK,
		Headers:    map[string]string{"Content-Type": "text/html; charset=utf-8"},
		Body:       body,
	}
}

func requestBody(req events.APIGatewayProxyRequest) ([]byte, error) {
	if !req.IsBase64Encoded {
		return []byte(req.Body), nil
	}
	return base64.StdEncoding.DecodeString(req.Body)
}

// sessionID prefers the id API Gateway extracted for a {id} path parameter.
func sessionID(req events.APIGatewayProxyRequest, fromPath string) string {
	if id := strings.TrimSpace(req.PathParameters["id"]); id != "" {
		return id
	}
	return fromPath
}

func splitPath(path string) []string {
	var out []string
	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

func headerValue(headers map[string]string, key string) string {
	if v, ok := headers[key]; ok {
		return strings.TrimSpace(v)
	}
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
