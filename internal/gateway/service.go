// Package gateway is the completion orchestrator: it resolves the caller's
// logical model reference to a provider/model/credential tuple, drives the
// streaming or non-streaming upstream path, and guarantees exactly-once trace
// persistence per request.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ssrprompt/chat-gateway/internal/apierrors"
	"github.com/ssrprompt/chat-gateway/internal/chat"
	"github.com/ssrprompt/chat-gateway/internal/metrics"
	"github.com/ssrprompt/chat-gateway/internal/provider"
	"github.com/ssrprompt/chat-gateway/internal/registry"
	"github.com/ssrprompt/chat-gateway/internal/relay"
	"github.com/ssrprompt/chat-gateway/internal/secrets"
	"github.com/ssrprompt/chat-gateway/internal/trace"
)

// Placeholder for non-text message content in trace input summaries.
const complexContentMarker = "[complex content]"

// CompletionRequest is a validated inbound completion request.
type CompletionRequest struct {
	ModelID   string
	PromptID  string
	Messages  []chat.ChatMessage
	Options   chat.CompletionOptions
	SaveTrace bool
}

// Result is the non-streaming response payload.
type Result struct {
	Content   string     `json:"content"`
	Usage     chat.Usage `json:"usage"`
	LatencyMs int64      `json:"latencyMs"`
}

// Service owns the per-request completion lifecycle. All collaborators are
// explicit dependencies; the service holds no per-request state.
type Service struct {
	registry registry.Resolver
	secrets  secrets.Decrypter
	recorder *trace.Recorder
	relay    *relay.Client
	metrics  *metrics.Collector
}

// NewService wires the orchestrator's collaborators.
func NewService(reg registry.Resolver, dec secrets.Decrypter, rec *trace.Recorder, rc *relay.Client, mc *metrics.Collector) *Service {
	return &Service{registry: reg, secrets: dec, recorder: rec, relay: rc, metrics: mc}
}

// Completion is one resolved, ready-to-run request. Exactly one of Stream or
// Invoke must be called on it.
type Completion struct {
	svc     *Service
	req     *CompletionRequest
	userID  string
	model   *registry.Model
	prov    *registry.Provider
	adapter provider.Adapter
	url     string
	headers map[string]string
}

// Prepare runs the resolution phase: model lookup, ownership and enablement
// checks, credential decryption, and upstream endpoint construction. The
// decrypted key lives only inside the returned Completion.
func (s *Service) Prepare(userID string, req *CompletionRequest) (*Completion, error) {
	model, prov, err := s.registry.Resolve(userID, req.ModelID)
	if err != nil {
		switch {
		case errors.Is(err, registry.ErrModelNotFound):
			return nil, apierrors.New(http.StatusNotFound, apierrors.CodeNotFound, "Model not found")
		case errors.Is(err, registry.ErrForbidden):
			return nil, apierrors.New(http.StatusForbidden, apierrors.CodeForbidden, "Access denied to this model")
		case errors.Is(err, registry.ErrProviderDisabled):
			return nil, apierrors.New(http.StatusBadRequest, apierrors.CodeProviderError, "Provider is not enabled")
		default:
			return nil, err
		}
	}

	adapter, err := provider.ForType(prov.Type)
	if err != nil {
		return nil, apierrors.New(http.StatusBadRequest, apierrors.CodeProviderError, err.Error())
	}
	url, err := adapter.BuildURL(prov)
	if err != nil {
		return nil, apierrors.New(http.StatusBadRequest, apierrors.CodeProviderError, err.Error())
	}

	apiKey, err := s.secrets.Decrypt(prov.APIKey)
	if err != nil {
		return nil, apierrors.New(http.StatusInternalServerError, apierrors.CodeCredentialError, "failed to decrypt provider credential")
	}

	return &Completion{
		svc:     s,
		req:     req,
		userID:  userID,
		model:   model,
		prov:    prov,
		adapter: adapter,
		url:     url,
		headers: adapter.BuildHeaders(prov, apiKey),
	}, nil
}

// FrameWriter is the downstream SSE sink: the transport's response writer
// wrapped so every frame can be flushed as it is written.
type FrameWriter interface {
	Write(p []byte) (int, error)
	Flush()
}

// Stream runs the streaming path: it drives the relay, forwards every chunk
// verbatim as an SSE data frame while accumulating content, and finalizes the
// trace once the stream ends for any reason. Cancellation of ctx (the client
// disconnecting) stops the upstream read and suppresses both the error frame
// and the trace.
func (c *Completion) Stream(ctx context.Context, w FrameWriter) {
	start := time.Now()
	opts := c.req.Options
	opts.Stream = true

	var content strings.Builder
	var usage chat.Usage
	var streamErr error

	body, err := c.adapter.BuildRequestBody(c.model, c.req.Messages, opts)
	if err != nil {
		streamErr = err
	} else {
		var st *relay.Stream
		st, streamErr = c.svc.relay.OpenStream(ctx, relay.Request{
			URL:     c.url,
			Headers: c.headers,
			Body:    body,
		}, c.adapter.ParseFrame)
		if streamErr == nil {
			for chunk := range st.Chunks() {
				content.WriteString(chunk.DeltaContent())
				writeFrame(w, chunk)
			}
			usage = st.Usage()
			streamErr = st.Err()
		}
	}

	cancelled := ctx.Err() != nil
	if !cancelled {
		if streamErr != nil {
			writeErrorFrame(w, streamErr)
		}
		writeDone(w)
	}

	status := trace.StatusError
	if content.Len() > 0 {
		status = trace.StatusSuccess
	}
	elapsed := time.Since(start)
	c.svc.metrics.ObserveCompletion(string(c.prov.Type), "stream", status, usage.PromptTokens, usage.CompletionTokens, elapsed)

	// A cancelled request is never traced, even with partial content already
	// streamed. This mirrors the upstream-of-record behavior; see DESIGN.md.
	if cancelled || !c.req.SaveTrace {
		return
	}
	errMessage := ""
	if streamErr != nil {
		errMessage = streamErr.Error()
	}
	c.svc.recorder.Record(context.WithoutCancel(ctx), &trace.Record{
		UserID:       c.userID,
		PromptID:     c.req.PromptID,
		ModelID:      c.model.ID,
		Input:        inputSummary(c.req.Messages),
		Output:       content.String(),
		TokensInput:  usage.PromptTokens,
		TokensOutput: usage.CompletionTokens,
		LatencyMs:    elapsed.Milliseconds(),
		Status:       status,
		ErrorMessage: errMessage,
	})
}

// Invoke runs the non-streaming path: one upstream call, one JSON result, one
// trace.
func (c *Completion) Invoke(ctx context.Context) (*Result, error) {
	start := time.Now()
	opts := c.req.Options
	opts.Stream = false

	body, err := c.adapter.BuildRequestBody(c.model, c.req.Messages, opts)
	if err != nil {
		return nil, fmt.Errorf("build upstream body: %w", err)
	}

	raw, err := c.svc.relay.Do(ctx, relay.Request{URL: c.url, Headers: c.headers, Body: body})
	if err != nil {
		c.finalizeError(ctx, start, err)
		return nil, toAppError(err)
	}
	resultContent, usage, err := c.adapter.ParseResponse(raw)
	if err != nil {
		c.finalizeError(ctx, start, err)
		return nil, apierrors.New(http.StatusBadGateway, apierrors.CodeProviderError, err.Error())
	}

	elapsed := time.Since(start)
	c.svc.metrics.ObserveCompletion(string(c.prov.Type), "sync", trace.StatusSuccess, usage.PromptTokens, usage.CompletionTokens, elapsed)
	if c.req.SaveTrace {
		c.svc.recorder.Record(ctx, &trace.Record{
			UserID:       c.userID,
			PromptID:     c.req.PromptID,
			ModelID:      c.model.ID,
			Input:        inputSummary(c.req.Messages),
			Output:       resultContent,
			TokensInput:  usage.PromptTokens,
			TokensOutput: usage.CompletionTokens,
			LatencyMs:    elapsed.Milliseconds(),
			Status:       trace.StatusSuccess,
		})
	}

	return &Result{Content: resultContent, Usage: usage, LatencyMs: elapsed.Milliseconds()}, nil
}

func (c *Completion) finalizeError(ctx context.Context, start time.Time, cause error) {
	elapsed := time.Since(start)
	c.svc.metrics.ObserveCompletion(string(c.prov.Type), "sync", trace.StatusError, 0, 0, elapsed)
	// A cancelled request is never traced; same rule as the streaming path.
	if ctx.Err() != nil || !c.req.SaveTrace {
		return
	}
	c.svc.recorder.Record(context.WithoutCancel(ctx), &trace.Record{
		UserID:       c.userID,
		PromptID:     c.req.PromptID,
		ModelID:      c.model.ID,
		Input:        inputSummary(c.req.Messages),
		LatencyMs:    elapsed.Milliseconds(),
		Status:       trace.StatusError,
		ErrorMessage: cause.Error(),
	})
}

// inputSummary concatenates message contents for the trace input field,
// replacing non-text parts with a placeholder.
func inputSummary(messages []chat.ChatMessage) string {
	parts := make([]string, len(messages))
	for i, m := range messages {
		if text, ok := m.Content.Plain(); ok {
			parts[i] = text
		} else {
			parts[i] = complexContentMarker
		}
	}
	return strings.Join(parts, "\n")
}

func writeFrame(w FrameWriter, chunk *chat.StreamChunk) {
	data, err := json.Marshal(chunk)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	w.Flush()
}

func writeErrorFrame(w FrameWriter, cause error) {
	payload := struct {
		Error *apierrors.AppError `json:"error"`
	}{Error: toAppError(cause)}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	w.Flush()
}

// toAppError maps relay failures onto the HTTP error taxonomy; upstream
// statuses pass through.
func toAppError(err error) *apierrors.AppError {
	var uerr *relay.UpstreamError
	if errors.As(err, &uerr) {
		return apierrors.New(uerr.Status, apierrors.CodeProviderError, uerr.Message)
	}
	return apierrors.From(err)
}

func writeDone(w FrameWriter) {
	fmt.Fprint(w, "data: [DONE]\n\n")
	w.Flush()
}
