// Package provider encapsulates per-vendor wire differences behind a single
// adapter interface. Each supported vendor is one variant; adding a vendor
// means adding a variant, not editing existing branches.
package provider

import (
	"fmt"

	"github.com/ssrprompt/chat-gateway/internal/chat"
	"github.com/ssrprompt/chat-gateway/internal/registry"
)

// Adapter builds upstream requests and parses upstream responses for one
// vendor wire protocol. Implementations are stateless; all methods are pure.
type Adapter interface {
	// BuildURL returns the upstream endpoint. A configured base URL always
	// wins and gets "/chat/completions" appended; otherwise the vendor's
	// default endpoint is used.
	BuildURL(p *registry.Provider) (string, error)

	// BuildHeaders returns the request headers carrying the credential.
	BuildHeaders(p *registry.Provider, apiKey string) map[string]string

	// BuildRequestBody marshals the upstream request body.
	BuildRequestBody(m *registry.Model, messages []chat.ChatMessage, opts chat.CompletionOptions) ([]byte, error)

	// ParseFrame translates one SSE payload into a normalized chunk. A nil
	// return means the frame carries nothing for the client and is dropped;
	// malformed frames are dropped the same way, never treated as errors.
	ParseFrame(data []byte) *chat.StreamChunk

	// ParseResponse unwraps a non-streaming response body into content and
	// usage.
	ParseResponse(body []byte) (string, chat.Usage, error)
}

// ForType returns the adapter variant for a provider type.
func ForType(t registry.ProviderType) (Adapter, error) {
	switch t {
	case registry.TypeAnthropic:
		return anthropicAdapter{}, nil
	case registry.TypeOpenAI, registry.TypeGemini, registry.TypeOpenRouter, registry.TypeCustom:
		return openAIAdapter{providerType: t}, nil
	default:
		return nil, fmt.Errorf("unknown provider type: %s", t)
	}
}
