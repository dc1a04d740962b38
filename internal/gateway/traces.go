package gateway

import (
	"net/http"
	"strconv"

	"github.com/ssrprompt/chat-gateway/internal/apierrors"
	"github.com/ssrprompt/chat-gateway/internal/trace"
)

const (
	defaultTraceLimit = 50
	maxTraceLimit     = 200
)

// TracesHandler serves GET /traces: recent trace records, newest first.
type TracesHandler struct {
	store trace.Store
}

// NewTracesHandler constructs a TracesHandler over store.
func NewTracesHandler(store trace.Store) *TracesHandler {
	return &TracesHandler{store: store}
}

func (h *TracesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	limit := defaultTraceLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxTraceLimit {
			apierrors.WriteStatus(w, http.StatusBadRequest, apierrors.CodeValidation, "limit must be an integer between 1 and 200")
			return
		}
		limit = n
	}

	records, err := h.store.List(r.Context(), limit)
	if err != nil {
		apierrors.Write(w, err)
		return
	}
	if records == nil {
		records = []*trace.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": records})
}
