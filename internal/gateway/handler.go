package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ssrprompt/chat-gateway/internal/apierrors"
	"github.com/ssrprompt/chat-gateway/internal/chat"
	"github.com/ssrprompt/chat-gateway/internal/httputil"
)

// completionPayload is the inbound body of POST /chat/completions.
type completionPayload struct {
	ModelID          string             `json:"modelId" validate:"required,uuid"`
	Messages         []chat.ChatMessage `json:"messages" validate:"required,min=1,dive"`
	PromptID         string             `json:"promptId" validate:"omitempty,uuid"`
	Temperature      *float64           `json:"temperature" validate:"omitempty,gte=0,lte=2"`
	TopP             *float64           `json:"top_p" validate:"omitempty,gte=0,lte=1"`
	MaxTokens        *int               `json:"max_tokens" validate:"omitempty,gt=0"`
	FrequencyPenalty *float64           `json:"frequency_penalty" validate:"omitempty,gte=-2,lte=2"`
	PresencePenalty  *float64           `json:"presence_penalty" validate:"omitempty,gte=-2,lte=2"`
	Stream           *bool              `json:"stream"`
	SaveTrace        *bool              `json:"saveTrace"`
}

type fieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Handler is the transport boundary for completions: it validates the inbound
// payload and wires the orchestrator to the HTTP response as SSE or JSON.
type Handler struct {
	svc      *Service
	validate *validator.Validate
}

// NewHandler constructs a Handler over the orchestrator.
func NewHandler(svc *Service) *Handler {
	v := validator.New()
	// Report violations under the wire field names, not Go names.
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{svc: svc, validate: v}
}

// ServeHTTP handles POST /chat/completions.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.Header.Get("X-User-ID"))
	if userID == "" {
		apierrors.WriteStatus(w, http.StatusUnauthorized, apierrors.CodeUnauthorized, "missing X-User-ID header")
		return
	}

	var payload completionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		apierrors.WriteStatus(w, http.StatusBadRequest, apierrors.CodeValidation, "malformed request body: "+err.Error())
		return
	}
	if err := h.validate.Struct(&payload); err != nil {
		apierrors.Write(w, validationError(err))
		return
	}

	stream := payload.Stream == nil || *payload.Stream
	saveTrace := payload.SaveTrace == nil || *payload.SaveTrace

	req := &CompletionRequest{
		ModelID:   payload.ModelID,
		PromptID:  payload.PromptID,
		Messages:  payload.Messages,
		SaveTrace: saveTrace,
		Options: chat.CompletionOptions{
			Temperature:      payload.Temperature,
			TopP:             payload.TopP,
			MaxTokens:        payload.MaxTokens,
			FrequencyPenalty: payload.FrequencyPenalty,
			PresencePenalty:  payload.PresencePenalty,
		},
	}

	completion, err := h.svc.Prepare(userID, req)
	if err != nil {
		apierrors.Write(w, err)
		return
	}

	if stream {
		httputil.SetSSEHeaders(w)
		completion.Stream(r.Context(), httputil.NewFlushWriter(w))
		return
	}

	result, err := completion.Invoke(r.Context())
	if err != nil {
		apierrors.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": result})
}

// validationError turns validator output into a structured 400 with
// field-level paths.
func validationError(err error) *apierrors.AppError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apierrors.New(http.StatusBadRequest, apierrors.CodeValidation, err.Error())
	}
	details := make([]fieldError, 0, len(verrs))
	for _, fe := range verrs {
		// Namespace starts with the payload struct name; the remainder is
		// the wire path of the offending field.
		path := fe.Namespace()
		if i := strings.IndexByte(path, '.'); i >= 0 {
			path = path[i+1:]
		}
		details = append(details, fieldError{
			Path:    path,
			Message: "failed " + fe.Tag() + " validation",
		})
	}
	return apierrors.New(http.StatusBadRequest, apierrors.CodeValidation, "invalid request").WithDetails(details)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
