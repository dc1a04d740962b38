package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssrprompt/chat-gateway/test/testutil"
)

func postCompletion(t *testing.T, h *Handler, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/chat/completions", strings.NewReader(body))
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func errorBodyOf(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body struct {
		Error map[string]any `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	return body.Error
}

func TestHandler_MissingUserHeader(t *testing.T) {
	f := newFixture(t)
	w := postCompletion(t, NewHandler(f.svc), "", `{}`)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", errorBodyOf(t, w)["code"])
}

func TestHandler_MalformedBody(t *testing.T) {
	f := newFixture(t)
	w := postCompletion(t, NewHandler(f.svc), testUserID, `{not json`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorBodyOf(t, w)["code"])
}

func TestHandler_ValidationErrors(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc)

	tests := []struct {
		name     string
		body     string
		wantPath string
	}{
		{"missing modelId", `{"messages":[{"role":"user","content":"hi"}]}`, "modelId"},
		{"non-uuid modelId", `{"modelId":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`, "modelId"},
		{"empty messages", `{"modelId":"` + testModelID + `","messages":[]}`, "messages"},
		{"bad role", `{"modelId":"` + testModelID + `","messages":[{"role":"robot","content":"hi"}]}`, "messages[0].role"},
		{"temperature out of range", `{"modelId":"` + testModelID + `","messages":[{"role":"user","content":"hi"}],"temperature":3}`, "temperature"},
		{"negative max_tokens", `{"modelId":"` + testModelID + `","messages":[{"role":"user","content":"hi"}],"max_tokens":-1}`, "max_tokens"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := postCompletion(t, h, testUserID, tc.body)
			require.Equal(t, http.StatusBadRequest, w.Code)

			errBody := errorBodyOf(t, w)
			assert.Equal(t, "VALIDATION_ERROR", errBody["code"])
			details, ok := errBody["details"].([]any)
			require.True(t, ok, "expected field-level details")
			paths := make([]string, 0, len(details))
			for _, d := range details {
				paths = append(paths, d.(map[string]any)["path"].(string))
			}
			assert.Contains(t, paths, tc.wantPath)
		})
	}
}

func TestHandler_UnknownModelIs404(t *testing.T) {
	f := newFixture(t)
	body := `{"modelId":"33333333-3333-3333-3333-333333333333","messages":[{"role":"user","content":"hi"}]}`
	w := postCompletion(t, NewHandler(f.svc), testUserID, body)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", errorBodyOf(t, w)["code"])
}

func TestHandler_StreamingDefault(t *testing.T) {
	f := newFixture(t)
	f.upstream.Frames = []string{testutil.OpenAIDelta("Hi"), testutil.OpenAIUsage(1, 1)}

	// stream omitted: streaming is the default.
	body := `{"modelId":"` + testModelID + `","messages":[{"role":"user","content":"hi"}]}`
	w := postCompletion(t, NewHandler(f.svc), testUserID, body)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "no", w.Header().Get("X-Accel-Buffering"))
	assert.Contains(t, w.Body.String(), `data: {`)
	assert.Contains(t, w.Body.String(), "data: [DONE]\n\n")
}

func TestHandler_NonStreaming(t *testing.T) {
	f := newFixture(t)
	f.upstream.BlockingBody = testutil.OpenAIBlocking("Hello", 5, 2)

	body := `{"modelId":"` + testModelID + `","messages":[{"role":"user","content":"hi"}],"stream":false}`
	w := postCompletion(t, NewHandler(f.svc), testUserID, body)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp struct {
		Data Result `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Hello", resp.Data.Content)
	assert.Equal(t, 7, resp.Data.Usage.TotalTokens)
}

func TestHandler_OptionsForwarded(t *testing.T) {
	f := newFixture(t)
	f.upstream.Frames = []string{testutil.OpenAIDelta("ok")}

	body := `{"modelId":"` + testModelID + `","messages":[{"role":"user","content":"hi"}],"temperature":0.5,"max_tokens":64}`
	w := postCompletion(t, NewHandler(f.svc), testUserID, body)
	require.Equal(t, http.StatusOK, w.Code)

	sent := f.upstream.LastRequest()
	assert.Equal(t, 0.5, sent["temperature"])
	assert.Equal(t, float64(64), sent["max_tokens"])
	assert.NotContains(t, sent, "top_p")
}
