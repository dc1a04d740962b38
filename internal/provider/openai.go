package provider

import (
	"encoding/json"
	"fmt"

	"github.com/ssrprompt/chat-gateway/internal/chat"
	"github.com/ssrprompt/chat-gateway/internal/registry"
)

// Default endpoints for vendors speaking the OpenAI chat-completions wire
// format. Gemini is reached through Google's OpenAI-compatibility surface.
var defaultEndpoints = map[registry.ProviderType]string{
	registry.TypeOpenAI:     "https://api.openai.com/v1/chat/completions",
	registry.TypeGemini:     "https://generativelanguage.googleapis.com/v1beta/openai/chat/completions",
	registry.TypeOpenRouter: "https://openrouter.ai/api/v1/chat/completions",
}

// openAIAdapter serves every OpenAI-compatible vendor (openai, gemini,
// openrouter, custom). Frames on this path already are the normalized shape.
type openAIAdapter struct {
	providerType registry.ProviderType
}

type openAIRequest struct {
	Model            string             `json:"model"`
	Messages         []chat.ChatMessage `json:"messages"`
	Temperature      *float64           `json:"temperature,omitempty"`
	TopP             *float64           `json:"top_p,omitempty"`
	MaxTokens        *int               `json:"max_tokens,omitempty"`
	FrequencyPenalty *float64           `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64           `json:"presence_penalty,omitempty"`
	Stream           bool               `json:"stream"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *chat.Usage `json:"usage"`
}

func (a openAIAdapter) BuildURL(p *registry.Provider) (string, error) {
	if p.BaseURL != "" {
		return p.BaseURL + "/chat/completions", nil
	}
	url, ok := defaultEndpoints[a.providerType]
	if !ok {
		return "", fmt.Errorf("provider type %s requires a base URL", a.providerType)
	}
	return url, nil
}

func (a openAIAdapter) BuildHeaders(_ *registry.Provider, apiKey string) map[string]string {
	return map[string]string{
		"Content-Type":  "application/json",
		"Authorization": "Bearer " + apiKey,
	}
}

func (a openAIAdapter) BuildRequestBody(m *registry.Model, messages []chat.ChatMessage, opts chat.CompletionOptions) ([]byte, error) {
	return json.Marshal(openAIRequest{
		Model:            m.ModelID,
		Messages:         messages,
		Temperature:      opts.Temperature,
		TopP:             opts.TopP,
		MaxTokens:        opts.MaxTokens,
		FrequencyPenalty: opts.FrequencyPenalty,
		PresencePenalty:  opts.PresencePenalty,
		Stream:           opts.Stream,
	})
}

func (a openAIAdapter) ParseFrame(data []byte) *chat.StreamChunk {
	var chunk chat.StreamChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		return nil
	}
	return &chunk
}

func (a openAIAdapter) ParseResponse(body []byte) (string, chat.Usage, error) {
	var resp openAIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", chat.Usage{}, fmt.Errorf("decode upstream response: %w", err)
	}
	content := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}
	usage := chat.Usage{}
	if resp.Usage != nil {
		usage = *resp.Usage
	}
	return content, usage, nil
}
