package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGateway simulates the completions endpoint without the real stack.
type fakeGateway struct {
	t           *testing.T
	streamLines []string
	result      *Result
	errStatus   int
	errBody     string

	lastUserID string
	lastBody   map[string]any
}

func (f *fakeGateway) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.lastUserID = r.Header.Get("X-User-ID")
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&f.lastBody))

		if f.errStatus != 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(f.errStatus)
			fmt.Fprint(w, f.errBody)
			return
		}
		if streaming, _ := f.lastBody["stream"].(bool); streaming {
			w.Header().Set("Content-Type", "text/event-stream")
			for _, line := range f.streamLines {
				fmt.Fprintf(w, "%s\n", line)
			}
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"data": f.result})
	})
}

func newFakeGateway(t *testing.T) (*fakeGateway, *Client) {
	t.Helper()
	f := &fakeGateway{t: t}
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	return f, New(srv.URL, "user-1", 5*time.Second)
}

func deltaLine(content string) string {
	return fmt.Sprintf(`data: {"id":"c1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":%q},"finish_reason":null}]}`, content)
}

func TestComplete(t *testing.T) {
	f, c := newFakeGateway(t)
	f.result = &Result{Content: "Hello", Usage: Usage{PromptTokens: 5, CompletionTokens: 2, TotalTokens: 7}, LatencyMs: 12}

	result, err := c.Complete(context.Background(), Request{
		ModelID:  "model-1",
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello", result.Content)
	assert.Equal(t, 7, result.Usage.TotalTokens)

	assert.Equal(t, "user-1", f.lastUserID)
	assert.Equal(t, false, f.lastBody["stream"])
}

func TestComplete_APIError(t *testing.T) {
	f, c := newFakeGateway(t)
	f.errStatus = http.StatusNotFound
	f.errBody = `{"error":{"status":404,"code":"NOT_FOUND","message":"Model not found"}}`

	_, err := c.Complete(context.Background(), Request{ModelID: "model-404"})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "NOT_FOUND", apiErr.Code)
	assert.Equal(t, "NOT_FOUND: Model not found", apiErr.Error())
}

func TestComplete_UnstructuredError(t *testing.T) {
	f, c := newFakeGateway(t)
	f.errStatus = http.StatusBadGateway
	f.errBody = `<html>oops</html>`

	_, err := c.Complete(context.Background(), Request{ModelID: "model-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestStreamCompletion_Collect(t *testing.T) {
	f, c := newFakeGateway(t)
	f.streamLines = []string{
		": keep-alive",
		"",
		deltaLine("Hel"),
		"",
		deltaLine("lo"),
		"",
		`data: {"id":"c1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7}}`,
		"",
		"data: [DONE]",
		"",
	}

	events, err := c.StreamCompletion(context.Background(), Request{
		ModelID:  "model-1",
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)

	content, usage, err := Collect(events)
	require.NoError(t, err)
	assert.Equal(t, "Hello", content)
	require.NotNil(t, usage)
	assert.Equal(t, Usage{PromptTokens: 5, CompletionTokens: 2, TotalTokens: 7}, *usage)

	assert.Equal(t, true, f.lastBody["stream"])
}

func TestStreamCompletion_EmbeddedError(t *testing.T) {
	f, c := newFakeGateway(t)
	f.streamLines = []string{
		deltaLine("par"),
		"",
		`data: {"error":{"status":429,"code":"PROVIDER_ERROR","message":"rate limited"}}`,
		"",
		"data: [DONE]",
		"",
	}

	events, err := c.StreamCompletion(context.Background(), Request{ModelID: "model-1"})
	require.NoError(t, err)

	content, _, err := Collect(events)
	assert.Equal(t, "par", content)
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "PROVIDER_ERROR", apiErr.Code)
}

func TestStreamCompletion_RejectedBeforeStream(t *testing.T) {
	f, c := newFakeGateway(t)
	f.errStatus = http.StatusUnauthorized
	f.errBody = `{"error":{"status":401,"code":"UNAUTHORIZED","message":"missing X-User-ID header"}}`

	_, err := c.StreamCompletion(context.Background(), Request{ModelID: "model-1"})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "UNAUTHORIZED", apiErr.Code)
}
