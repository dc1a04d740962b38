// Package testutil provides scripted fake upstream providers for gateway
// tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
)

// MockUpstream is an httptest.Server that simulates a provider completion
// endpoint. Streaming requests replay Frames as SSE data payloads followed by
// [DONE]; blocking requests return BlockingBody verbatim.
type MockUpstream struct {
	Server *httptest.Server

	// Frames are the raw SSE data payloads sent for streaming requests.
	Frames []string
	// BlockingBody is the raw JSON body for non-streaming requests.
	BlockingBody string
	// ErrorStatus, when non-zero, makes every request fail with ErrorBody.
	ErrorStatus int
	ErrorBody   string
	// OmitDone suppresses the upstream [DONE] sentinel so tests can exercise
	// plain end-of-body termination.
	OmitDone bool

	mu          sync.Mutex
	lastRequest map[string]any
	lastHeaders http.Header
}

// NewMockUpstream creates and starts a mock provider server.
func NewMockUpstream() *MockUpstream {
	m := &MockUpstream{}
	m.Server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// Close shuts down the mock server.
func (m *MockUpstream) Close() {
	m.Server.Close()
}

// URL returns the base URL of the mock server.
func (m *MockUpstream) URL() string {
	return m.Server.URL
}

// LastRequest returns the most recent parsed request body.
func (m *MockUpstream) LastRequest() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRequest
}

// LastHeaders returns the headers of the most recent request.
func (m *MockUpstream) LastHeaders() http.Header {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastHeaders
}

func (m *MockUpstream) handle(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	m.mu.Lock()
	m.lastRequest = body
	m.lastHeaders = r.Header.Clone()
	m.mu.Unlock()

	if m.ErrorStatus != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(m.ErrorStatus)
		fmt.Fprint(w, m.ErrorBody)
		return
	}

	if streaming, _ := body["stream"].(bool); streaming {
		m.writeStreaming(w)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, m.BlockingBody)
}

func (m *MockUpstream) writeStreaming(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	flusher, hasFlusher := w.(http.Flusher)

	// SSE comment and blank line up front; clients must skip both.
	fmt.Fprint(w, ": keep-alive\n\n")
	for _, frame := range m.Frames {
		fmt.Fprintf(w, "data: %s\n\n", frame)
		if hasFlusher {
			flusher.Flush()
		}
	}
	if !m.OmitDone {
		fmt.Fprint(w, "data: [DONE]\n\n")
	}
	if hasFlusher {
		flusher.Flush()
	}
}

// OpenAIDelta builds an OpenAI-compatible content-delta frame.
func OpenAIDelta(content string) string {
	return fmt.Sprintf(`{"id":"chunk-1","object":"chat.completion.chunk","created":1700000000,"model":"test-model","choices":[{"index":0,"delta":{"content":%q},"finish_reason":null}]}`, content)
}

// OpenAIUsage builds an OpenAI-compatible final frame carrying usage.
func OpenAIUsage(prompt, completion int) string {
	return fmt.Sprintf(`{"id":"chunk-1","object":"chat.completion.chunk","created":1700000000,"model":"test-model","choices":[{"index":0,"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":%d,"completion_tokens":%d,"total_tokens":%d}}`, prompt, completion, prompt+completion)
}

// OpenAIBlocking builds an OpenAI-compatible non-streaming response body.
func OpenAIBlocking(content string, prompt, completion int) string {
	return fmt.Sprintf(`{"id":"cmpl-1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":%q},"finish_reason":"stop"}],"usage":{"prompt_tokens":%d,"completion_tokens":%d,"total_tokens":%d}}`, content, prompt, completion, prompt+completion)
}

// AnthropicDelta builds an Anthropic content_block_delta frame.
func AnthropicDelta(text string) string {
	return fmt.Sprintf(`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":%q}}`, text)
}

// AnthropicUsage builds an Anthropic message_delta frame carrying usage.
func AnthropicUsage(input, output int, stopReason string) string {
	return fmt.Sprintf(`{"type":"message_delta","delta":{"stop_reason":%q},"usage":{"input_tokens":%d,"output_tokens":%d}}`, stopReason, input, output)
}

// AnthropicStop builds an Anthropic message_stop frame.
func AnthropicStop() string {
	return `{"type":"message_stop"}`
}

// AnthropicBlocking builds an Anthropic non-streaming response body.
func AnthropicBlocking(text string, input, output int) string {
	return fmt.Sprintf(`{"id":"msg-1","type":"message","role":"assistant","content":[{"type":"text","text":%q}],"stop_reason":"end_turn","usage":{"input_tokens":%d,"output_tokens":%d}}`, text, input, output)
}
