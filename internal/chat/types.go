// Package chat holds the value types shared by the gateway: inbound messages,
// completion options, and the normalized chunk shape emitted to clients.
package chat

import (
	"encoding/json"
	"fmt"
)

// Message roles accepted on the inbound surface.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is a single conversation turn. Content is either a plain string
// or a list of content parts (text / image_url) for vision-capable models.
type ChatMessage struct {
	Role    string         `json:"role" validate:"required,oneof=system user assistant"`
	Content MessageContent `json:"content"`
}

// MessageContent models the string-or-parts union of the wire format. When
// Parts is nil the content is the plain Text string.
type MessageContent struct {
	Text  string
	Parts []ContentPart
}

// Plain returns the string form of the content and whether it is plain text.
func (c MessageContent) Plain() (string, bool) {
	if c.Parts != nil {
		return "", false
	}
	return c.Text, true
}

func (c *MessageContent) UnmarshalJSON(data []byte) error {
	for _, b := range data {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '[':
			c.Text = ""
			return json.Unmarshal(data, &c.Parts)
		default:
			c.Parts = nil
			return json.Unmarshal(data, &c.Text)
		}
	}
	return fmt.Errorf("empty message content")
}

func (c MessageContent) MarshalJSON() ([]byte, error) {
	if c.Parts != nil {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

// ContentPart is one element of a multi-part message content.
type ContentPart struct {
	Type     string    `json:"type"` // "text" | "image_url"
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL wraps an image reference in a content part.
type ImageURL struct {
	URL string `json:"url"`
}

// CompletionOptions are the sampling parameters forwarded upstream. Nil
// pointers mean "not set" and are omitted from the upstream body.
type CompletionOptions struct {
	Temperature      *float64
	TopP             *float64
	MaxTokens        *int
	FrequencyPenalty *float64
	PresencePenalty  *float64
	Stream           bool
}

// StreamChunk is the normalized chunk shape emitted to the downstream client,
// matching the OpenAI chat.completion.chunk wire format. Every provider
// variant produces this shape regardless of the upstream vendor's native
// stream vocabulary.
type StreamChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
	Usage   *Usage        `json:"usage,omitempty"`
}

// DeltaContent returns the incremental content of the first choice, if any.
func (c *StreamChunk) DeltaContent() string {
	if len(c.Choices) == 0 {
		return ""
	}
	return c.Choices[0].Delta.Content
}

// ChunkChoice is a single choice delta in a stream chunk.
type ChunkChoice struct {
	Index        int     `json:"index"`
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

// Delta carries incremental content in a stream chunk.
type Delta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// Usage carries token counts for one completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
