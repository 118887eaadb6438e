package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"tutorgate/internal/domain"
	"tutorgate/internal/infra/tracer"
	"tutorgate/internal/usecase"
)

// maxRequestBody bounds the JSON body we read from clients. Attachments are
// base64-encoded inline, so this must comfortably exceed the file size cap.
const maxRequestBody = 16 * 1024 * 1024 // 16 MB

// chatWireRequest is the JSON body accepted by POST /v1/chat.
type chatWireRequest struct {
	ConversationID  string                  `json:"conversation_id,omitempty"`
	Messages        []domain.Message        `json:"messages"`
	Model           domain.ModelSpec        `json:"model"`
	Temperature     *float64                `json:"temperature,omitempty"`
	SafetyOverrides *domain.SafetyOverrides `json:"safety_overrides,omitempty"`
}

// errorBody is the JSON error envelope returned on any non-2xx response.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    domain.ErrorCode `json:"code"`
	Message string           `json:"message"`
	Topics  []domain.Topic   `json:"topics,omitempty"`
}

// Handler exposes the chat pipeline over HTTP.
type Handler struct {
	orch      *usecase.Orchestrator
	providers *providerLister
	logger    *slog.Logger
}

// providerLister is the slice of the registry the handler needs.
type providerLister struct {
	list func() []string
}

// NewHandler creates the HTTP handler set for the gateway.
func NewHandler(orch *usecase.Orchestrator, listProviders func() []string, logger *slog.Logger) *Handler {
	return &Handler{
		orch:      orch,
		providers: &providerLister{list: listProviders},
		logger:    logger,
	}
}

// HandleChat serves POST /v1/chat.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.StartSpan(r.Context(), "gateway.chat")
	defer span.End()

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, domain.CodeInvalidRequest, "method not allowed", nil)
		return
	}

	var wire chatWireRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&wire); err != nil {
		writeError(w, http.StatusBadRequest, domain.CodeInvalidRequest,
			fmt.Sprintf("invalid request body: %v", err), nil)
		return
	}

	req := domain.ChatRequest{
		ConversationID: wire.ConversationID,
		Messages:       wire.Messages,
		Model:          wire.Model,
		Temperature:    wire.Temperature,
		Overrides:      wire.SafetyOverrides,
	}

	if err := validateRequest(req); err != nil {
		writeError(w, http.StatusBadRequest, domain.CodeInvalidRequest, err.Error(), nil)
		return
	}

	span.SetAttributes(
		tracer.StringAttr("chat.provider", req.Model.Provider),
		tracer.StringAttr("chat.model", req.Model.Model),
		tracer.IntAttr("chat.messages", len(req.Messages)),
	)

	resp, err := h.orch.HandleChat(ctx, req)
	if err != nil {
		tracer.RecordError(span, err)
		code := domain.ErrorCodeOf(err)
		h.logger.Info("chat rejected",
			"code", string(code),
			"error", err,
		)
		writeError(w, httpStatusFor(code), code, publicMessage(err), domain.TopicsOf(err))
		return
	}

	tracer.SetOK(span)
	writeJSON(w, http.StatusOK, resp)
}

// HandleModels serves GET /v1/models: the registered provider names.
func (h *Handler) HandleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, domain.CodeInvalidRequest, "method not allowed", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"providers": h.providers.list()})
}

// HandleHealth serves GET /healthz.
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// validateRequest enforces the structural contract before any safety work.
func validateRequest(req domain.ChatRequest) error {
	if len(req.Messages) == 0 {
		return errors.New("messages must not be empty")
	}
	for i, m := range req.Messages {
		if !domain.ValidRole(m.Role) {
			return fmt.Errorf("messages[%d]: invalid role %q", i, m.Role)
		}
		if len(m.Parts) == 0 {
			return fmt.Errorf("messages[%d]: content must not be empty", i)
		}
	}
	if req.Model.Provider == "" {
		return errors.New("model.provider is required")
	}
	if req.Temperature != nil && (*req.Temperature < 0 || *req.Temperature > 2) {
		return errors.New("temperature must be between 0 and 2")
	}
	return nil
}

// httpStatusFor maps pipeline error codes onto HTTP statuses.
func httpStatusFor(code domain.ErrorCode) int {
	switch code {
	case domain.CodeInvalidRequest:
		return http.StatusBadRequest // 400
	case domain.CodeInputSafetyViolation:
		return http.StatusUnprocessableEntity // 422
	case domain.CodeSafetyCheckError:
		return http.StatusServiceUnavailable // 503
	case domain.CodeProviderError:
		return http.StatusBadGateway // 502
	case domain.CodeUnauthorized:
		return http.StatusUnauthorized // 401
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage returns the caller-safe form of a pipeline error. The gateway
// error Detail is written for callers; raw wrapped errors are not.
func publicMessage(err error) string {
	var ge *domain.GatewayError
	if errors.As(err, &ge) && ge.Detail != "" {
		return ge.Detail
	}
	switch domain.ErrorCodeOf(err) {
	case domain.CodeInputSafetyViolation:
		return "request blocked by safety policy"
	case domain.CodeSafetyCheckError:
		return "safety check unavailable"
	case domain.CodeProviderError:
		return "model backend unavailable"
	default:
		return "request failed"
	}
}

func writeError(w http.ResponseWriter, status int, code domain.ErrorCode, msg string, topics []domain.Topic) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: msg, Topics: topics}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
