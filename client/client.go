// Package client is a Go consumer of the chat-gateway completions API. It
// mirrors what the web client does: POST a completion request, then either
// decode the JSON result or follow the SSE stream until the [DONE] terminator.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Message is one conversation turn. Content is plain text on this surface.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the body of POST /chat/completions.
type Request struct {
	ModelID          string    `json:"modelId"`
	Messages         []Message `json:"messages"`
	PromptID         string    `json:"promptId,omitempty"`
	Temperature      *float64  `json:"temperature,omitempty"`
	TopP             *float64  `json:"top_p,omitempty"`
	MaxTokens        *int      `json:"max_tokens,omitempty"`
	FrequencyPenalty *float64  `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64  `json:"presence_penalty,omitempty"`
	Stream           bool      `json:"stream"`
	SaveTrace        *bool     `json:"saveTrace,omitempty"`
}

// Usage carries token counts.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Result is the non-streaming completion result.
type Result struct {
	Content   string `json:"content"`
	Usage     Usage  `json:"usage"`
	LatencyMs int64  `json:"latencyMs"`
}

// Chunk is one streamed frame. Error is set when the gateway embedded an
// error in the stream instead of a delta.
type Chunk struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Model   string `json:"model"`
	Choices []struct {
		Index int `json:"index"`
		Delta struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *Usage    `json:"usage"`
	Error *APIError `json:"error"`
}

// StreamEvent is one delivery on the stream channel: a chunk, or a terminal
// transport error.
type StreamEvent struct {
	Chunk *Chunk
	Err   error
}

// APIError is the gateway's structured error body.
type APIError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Client talks to one chat-gateway instance on behalf of one user.
type Client struct {
	baseURL      string
	userID       string
	httpClient   *http.Client
	streamClient *http.Client
}

// New constructs a Client. timeout applies to non-streaming calls only;
// streaming calls rely on the caller's context.
func New(baseURL, userID string, timeout time.Duration) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		userID:       userID,
		httpClient:   &http.Client{Timeout: timeout},
		streamClient: &http.Client{},
	}
}

func (c *Client) post(ctx context.Context, httpClient *http.Client, req *Request) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-User-ID", c.userID)
	return httpClient.Do(httpReq)
}

func decodeAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(resp.Body)
	var body struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != nil {
		return body.Error
	}
	return fmt.Errorf("gateway %d: %s", resp.StatusCode, string(raw))
}

// Complete performs a non-streaming completion.
func (c *Client) Complete(ctx context.Context, req Request) (*Result, error) {
	req.Stream = false
	resp, err := c.post(ctx, c.httpClient, &req)
	if err != nil {
		return nil, fmt.Errorf("gateway request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp)
	}
	var body struct {
		Data Result `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &body.Data, nil
}

// StreamCompletion performs a streaming completion and returns a channel of
// events. The channel closes at the [DONE] terminator or on a transport
// error; the response body is closed when the channel is drained.
func (c *Client) StreamCompletion(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	req.Stream = true
	resp, err := c.post(ctx, c.streamClient, &req)
	if err != nil {
		return nil, fmt.Errorf("gateway request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeAPIError(resp)
	}

	ch := make(chan StreamEvent, 16)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			payload, ok := strings.CutPrefix(line, "data: ")
			if !ok {
				continue
			}
			if payload == "[DONE]" {
				return
			}
			var chunk Chunk
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				continue
			}
			select {
			case ch <- StreamEvent{Chunk: &chunk}:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			ch <- StreamEvent{Err: err}
		}
	}()
	return ch, nil
}

// Collect drains a stream channel, concatenating delta content. It returns
// the accumulated text and the last usage seen; an embedded gateway error or
// transport error ends collection early.
func Collect(events <-chan StreamEvent) (string, *Usage, error) {
	var sb strings.Builder
	var usage *Usage
	for ev := range events {
		if ev.Err != nil {
			return sb.String(), usage, ev.Err
		}
		if ev.Chunk.Error != nil {
			return sb.String(), usage, ev.Chunk.Error
		}
		if len(ev.Chunk.Choices) > 0 {
			sb.WriteString(ev.Chunk.Choices[0].Delta.Content)
		}
		if ev.Chunk.Usage != nil {
			usage = ev.Chunk.Usage
		}
	}
	return sb.String(), usage, nil
}
