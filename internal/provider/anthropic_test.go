package provider

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssrprompt/chat-gateway/internal/chat"
	"github.com/ssrprompt/chat-gateway/internal/registry"
)

func anthropic(t *testing.T) Adapter {
	t.Helper()
	a, err := ForType(registry.TypeAnthropic)
	require.NoError(t, err)
	return a
}

func TestAnthropicBuildURL(t *testing.T) {
	a := anthropic(t)

	url, err := a.BuildURL(&registry.Provider{Type: registry.TypeAnthropic})
	require.NoError(t, err)
	assert.Equal(t, "https://api.anthropic.com/v1/messages", url)

	url, err = a.BuildURL(&registry.Provider{Type: registry.TypeAnthropic, BaseURL: "http://localhost:8111"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8111/chat/completions", url)
}

func TestAnthropicBuildHeaders(t *testing.T) {
	a := anthropic(t)
	headers := a.BuildHeaders(&registry.Provider{Type: registry.TypeAnthropic}, "sk-ant")
	assert.Equal(t, "sk-ant", headers["x-api-key"])
	assert.Equal(t, "2023-06-01", headers["anthropic-version"])
	assert.NotContains(t, headers, "Authorization")
}

func TestAnthropicBuildRequestBody_SystemSplit(t *testing.T) {
	a := anthropic(t)
	model := &registry.Model{ModelID: "claude-sonnet"}
	messages := []chat.ChatMessage{
		{Role: chat.RoleSystem, Content: chat.MessageContent{Text: "be brief"}},
		{Role: chat.RoleUser, Content: chat.MessageContent{Text: "hi"}},
		{Role: chat.RoleAssistant, Content: chat.MessageContent{Text: "hello"}},
	}
	body, err := a.BuildRequestBody(model, messages, chat.CompletionOptions{Stream: true})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "be brief", got["system"])
	msgs := got["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "user", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "assistant", msgs[1].(map[string]any)["role"])
	// Vendor requires max_tokens; defaulted when the caller sets none.
	assert.Equal(t, float64(4096), got["max_tokens"])
}

func TestAnthropicBuildRequestBody_MultipleSystemJoined(t *testing.T) {
	a := anthropic(t)
	messages := []chat.ChatMessage{
		{Role: chat.RoleSystem, Content: chat.MessageContent{Text: "one"}},
		{Role: chat.RoleSystem, Content: chat.MessageContent{Text: "two"}},
		{Role: chat.RoleUser, Content: chat.MessageContent{Text: "hi"}},
	}
	body, err := a.BuildRequestBody(&registry.Model{ModelID: "claude-sonnet"}, messages, chat.CompletionOptions{})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "one\ntwo", got["system"])
}

func TestAnthropicBuildRequestBody_MaxTokensOverride(t *testing.T) {
	a := anthropic(t)
	messages := []chat.ChatMessage{{Role: chat.RoleUser, Content: chat.MessageContent{Text: "hi"}}}
	body, err := a.BuildRequestBody(&registry.Model{ModelID: "claude-sonnet"}, messages, chat.CompletionOptions{MaxTokens: intPtr(256)})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, float64(256), got["max_tokens"])
	// System field absent when there is no system message.
	assert.NotContains(t, got, "system")
}

func TestAnthropicParseFrame_ContentDelta(t *testing.T) {
	a := anthropic(t)
	chunk := a.ParseFrame([]byte(`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hel"}}`))
	require.NotNil(t, chunk)
	assert.Equal(t, "Hel", chunk.DeltaContent())
	assert.Equal(t, "chat.completion.chunk", chunk.Object)
	assert.Nil(t, chunk.Choices[0].FinishReason)
}

func TestAnthropicParseFrame_MessageStop(t *testing.T) {
	a := anthropic(t)
	chunk := a.ParseFrame([]byte(`{"type":"message_stop"}`))
	require.NotNil(t, chunk)
	require.NotNil(t, chunk.Choices[0].FinishReason)
	assert.Equal(t, "stop", *chunk.Choices[0].FinishReason)
	assert.Empty(t, chunk.DeltaContent())
}

func TestAnthropicParseFrame_MessageDeltaUsage(t *testing.T) {
	a := anthropic(t)
	chunk := a.ParseFrame([]byte(`{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"input_tokens":5,"output_tokens":2}}`))
	require.NotNil(t, chunk)
	require.NotNil(t, chunk.Usage)
	assert.Equal(t, 5, chunk.Usage.PromptTokens)
	assert.Equal(t, 2, chunk.Usage.CompletionTokens)
	assert.Equal(t, 7, chunk.Usage.TotalTokens)
	require.NotNil(t, chunk.Choices[0].FinishReason)
	assert.Equal(t, "end_turn", *chunk.Choices[0].FinishReason)
}

func TestAnthropicParseFrame_DroppedEvents(t *testing.T) {
	a := anthropic(t)
	assert.Nil(t, a.ParseFrame([]byte(`{"type":"ping"}`)))
	assert.Nil(t, a.ParseFrame([]byte(`{"type":"message_start","message":{}}`)))
	assert.Nil(t, a.ParseFrame([]byte(`{"type":"message_delta","delta":{"stop_reason":"end_turn"}}`)))
	assert.Nil(t, a.ParseFrame([]byte(`not json at all`)))
}

func TestAnthropicParseResponse(t *testing.T) {
	a := anthropic(t)
	content, usage, err := a.ParseResponse([]byte(`{"content":[{"type":"text","text":"Hello"}],"usage":{"input_tokens":5,"output_tokens":2}}`))
	require.NoError(t, err)
	assert.Equal(t, "Hello", content)
	assert.Equal(t, chat.Usage{PromptTokens: 5, CompletionTokens: 2, TotalTokens: 7}, usage)
}
