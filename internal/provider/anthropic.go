package provider

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ssrprompt/chat-gateway/internal/chat"
	"github.com/ssrprompt/chat-gateway/internal/registry"
)

const (
	anthropicEndpoint = "https://api.anthropic.com/v1/messages"
	anthropicVersion  = "2023-06-01"

	// Anthropic requires max_tokens; applied when the caller sets none.
	anthropicDefaultMaxTokens = 4096
)

// anthropicAdapter translates between the gateway's normalized shapes and the
// Anthropic Messages API, which differs in auth headers, system-message
// handling, and stream event vocabulary.
type anthropicAdapter struct{}

type anthropicMessage struct {
	Role    string              `json:"role"`
	Content chat.MessageContent `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float64           `json:"temperature,omitempty"`
	TopP        *float64           `json:"top_p,omitempty"`
	Stream      bool               `json:"stream"`
}

type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Index *int   `json:"index"`
	Delta struct {
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Usage *struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (anthropicAdapter) BuildURL(p *registry.Provider) (string, error) {
	if p.BaseURL != "" {
		return p.BaseURL + "/chat/completions", nil
	}
	return anthropicEndpoint, nil
}

func (anthropicAdapter) BuildHeaders(_ *registry.Provider, apiKey string) map[string]string {
	return map[string]string{
		"Content-Type":      "application/json",
		"x-api-key":         apiKey,
		"anthropic-version": anthropicVersion,
	}
}

func (anthropicAdapter) BuildRequestBody(m *registry.Model, messages []chat.ChatMessage, opts chat.CompletionOptions) ([]byte, error) {
	var systemParts []string
	rest := make([]anthropicMessage, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == chat.RoleSystem {
			// Only plain-text system content survives the split; part-based
			// system messages contribute an empty segment, as upstream does
			// not accept structured system blocks on this path.
			text, _ := msg.Content.Plain()
			systemParts = append(systemParts, text)
			continue
		}
		rest = append(rest, anthropicMessage{Role: msg.Role, Content: msg.Content})
	}

	maxTokens := anthropicDefaultMaxTokens
	if opts.MaxTokens != nil {
		maxTokens = *opts.MaxTokens
	}

	return json.Marshal(anthropicRequest{
		Model:       m.ModelID,
		Messages:    rest,
		System:      strings.Join(systemParts, "\n"),
		MaxTokens:   maxTokens,
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
		Stream:      opts.Stream,
	})
}

func (anthropicAdapter) ParseFrame(data []byte) *chat.StreamChunk {
	var ev anthropicStreamEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil
	}

	switch ev.Type {
	case "content_block_delta":
		id := "0"
		if ev.Index != nil {
			id = strconv.Itoa(*ev.Index)
		}
		return &chat.StreamChunk{
			ID:      id,
			Object:  "chat.completion.chunk",
			Created: time.Now().Unix(),
			Choices: []chat.ChunkChoice{{
				Index: 0,
				Delta: chat.Delta{Content: ev.Delta.Text},
			}},
		}
	case "message_stop":
		reason := "stop"
		return &chat.StreamChunk{
			ID:      "0",
			Object:  "chat.completion.chunk",
			Created: time.Now().Unix(),
			Choices: []chat.ChunkChoice{{
				Index:        0,
				FinishReason: &reason,
			}},
		}
	case "message_delta":
		if ev.Usage == nil {
			return nil
		}
		var reason *string
		if ev.Delta.StopReason != "" {
			reason = &ev.Delta.StopReason
		}
		return &chat.StreamChunk{
			ID:      "0",
			Object:  "chat.completion.chunk",
			Created: time.Now().Unix(),
			Choices: []chat.ChunkChoice{{
				Index:        0,
				FinishReason: reason,
			}},
			Usage: &chat.Usage{
				PromptTokens:     ev.Usage.InputTokens,
				CompletionTokens: ev.Usage.OutputTokens,
				TotalTokens:      ev.Usage.InputTokens + ev.Usage.OutputTokens,
			},
		}
	}
	// ping, message_start, content_block_start/stop and anything unknown
	// carry nothing for the client.
	return nil
}

func (anthropicAdapter) ParseResponse(body []byte) (string, chat.Usage, error) {
	var resp anthropicResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", chat.Usage{}, fmt.Errorf("decode upstream response: %w", err)
	}
	content := ""
	if len(resp.Content) > 0 {
		content = resp.Content[0].Text
	}
	return content, chat.Usage{
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
		TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
	}, nil
}
