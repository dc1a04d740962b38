// Package relay owns the upstream connection for one completion request: it
// issues the HTTP call, decodes the SSE byte stream into discrete frames,
// drives the provider adapter's per-frame parser, and forwards normalized
// chunks over a channel in arrival order.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ssrprompt/chat-gateway/internal/chat"
)

const doneSentinel = "[DONE]"

// UpstreamError is a non-2xx or malformed response from the provider.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %d: %s", e.Status, e.Message)
}

// Request is a fully built upstream call, produced by a provider adapter.
type Request struct {
	URL     string
	Headers map[string]string
	Body    []byte
}

// FrameParser translates one SSE payload into a chunk; nil drops the frame.
type FrameParser func(data []byte) *chat.StreamChunk

// Client issues upstream completion calls. Non-streaming calls use a client
// with a round-trip timeout; streaming calls use a timeout-free client on the
// same transport and rely on context cancellation.
type Client struct {
	httpClient   *http.Client
	streamClient *http.Client
}

// NewClient constructs a Client with the given non-streaming timeout.
func NewClient(timeout time.Duration) *Client {
	transport := http.DefaultTransport
	return &Client{
		httpClient:   &http.Client{Timeout: timeout, Transport: transport},
		streamClient: &http.Client{Transport: transport},
	}
}

func buildHTTPRequest(ctx context.Context, req Request) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	return httpReq, nil
}

// upstreamError parses the best-effort error body of a non-2xx response.
func upstreamError(resp *http.Response) *UpstreamError {
	raw, _ := io.ReadAll(resp.Body)
	message := "provider API error: " + http.StatusText(resp.StatusCode)
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error.Message != "" {
		message = body.Error.Message
	}
	return &UpstreamError{Status: resp.StatusCode, Message: message}
}

// Do performs a non-streaming upstream call and returns the raw response body.
func (c *Client) Do(ctx context.Context, req Request) ([]byte, error) {
	httpReq, err := buildHTTPRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("upstream request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, upstreamError(resp)
	}
	return io.ReadAll(resp.Body)
}

// Stream is one live upstream token stream. Chunks are delivered in the exact
// order their frames arrived; Usage and Err are valid once the chunk channel
// has been closed.
type Stream struct {
	ch    chan *chat.StreamChunk
	usage chat.Usage
	err   error
}

// Chunks returns the ordered chunk channel. It is closed on stream end,
// upstream error, and cancellation alike.
func (s *Stream) Chunks() <-chan *chat.StreamChunk { return s.ch }

// Usage returns the running usage snapshot, last-write-wins across
// usage-bearing frames.
func (s *Stream) Usage() chat.Usage { return s.usage }

// Err returns the terminal stream error, nil on clean completion and on
// cancellation.
func (s *Stream) Err() error { return s.err }

// OpenStream issues the upstream request with streaming enabled. A non-2xx
// response fails immediately; otherwise the decode loop runs until the body
// ends, the [DONE] sentinel arrives, or ctx is cancelled. The response body is
// closed on every exit path.
func (c *Client) OpenStream(ctx context.Context, req Request, parse FrameParser) (*Stream, error) {
	httpReq, err := buildHTTPRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("upstream request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		uerr := upstreamError(resp)
		resp.Body.Close()
		return nil, uerr
	}

	s := &Stream{ch: make(chan *chat.StreamChunk, 16)}
	go s.readLoop(ctx, resp.Body, parse)
	return s, nil
}

func (s *Stream) readLoop(ctx context.Context, body io.ReadCloser, parse FrameParser) {
	defer close(s.ch)
	defer body.Close()

	buf := make([]byte, 4096)
	var residual string

	for {
		if ctx.Err() != nil {
			return
		}

		n, err := body.Read(buf)
		if n > 0 {
			// Upstream reads do not align to line boundaries; hold the final
			// (possibly incomplete) fragment back for the next read.
			residual += string(buf[:n])
			lines := strings.Split(residual, "\n")
			residual = lines[len(lines)-1]
			for _, line := range lines[:len(lines)-1] {
				done, emitErr := s.handleLine(ctx, line, parse)
				if done || emitErr != nil {
					return
				}
			}
		}
		if err != nil {
			if err != io.EOF && ctx.Err() == nil {
				s.err = fmt.Errorf("read upstream stream: %w", err)
			}
			return
		}
	}
}

// handleLine processes one complete SSE line. It returns done=true when the
// stream terminated via the [DONE] sentinel or cancellation.
func (s *Stream) handleLine(ctx context.Context, line string, parse FrameParser) (done bool, err error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, ":") {
		return false, nil
	}
	payload, ok := strings.CutPrefix(trimmed, "data: ")
	if !ok {
		return false, nil
	}
	if payload == doneSentinel {
		return true, nil
	}

	chunk := parse([]byte(payload))
	if chunk == nil {
		// Unparsable or irrelevant frame; one bad frame never aborts the
		// stream.
		return false, nil
	}
	if chunk.Usage != nil {
		s.usage = *chunk.Usage
	}

	select {
	case s.ch <- chunk:
		return false, nil
	case <-ctx.Done():
		return true, ctx.Err()
	}
}
