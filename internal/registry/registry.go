// Package registry is the gateway's read-only view of configured providers
// and models. Records are loaded once at startup from a yaml file and treated
// as immutable for the life of the process; per-request code never mutates
// them.
package registry

import (
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// ProviderType identifies the upstream vendor wire protocol.
type ProviderType string

const (
	TypeOpenAI     ProviderType = "openai"
	TypeAnthropic  ProviderType = "anthropic"
	TypeGemini     ProviderType = "gemini"
	TypeOpenRouter ProviderType = "openrouter"
	TypeCustom     ProviderType = "custom"
)

// Resolution failures, mapped to HTTP statuses by the gateway handler.
var (
	ErrModelNotFound    = errors.New("model not found")
	ErrForbidden        = errors.New("access denied to this model")
	ErrProviderDisabled = errors.New("provider is not enabled")
)

// Provider is one configured upstream account. APIKey holds the encrypted
// credential; decryption is the secrets package's job.
type Provider struct {
	ID      string       `yaml:"id"`
	UserID  string       `yaml:"user_id"`
	Type    ProviderType `yaml:"type"`
	BaseURL string       `yaml:"base_url"`
	APIKey  string       `yaml:"api_key"`
	Enabled bool         `yaml:"enabled"`
}

// Model maps a logical model ID to an upstream-facing model identifier on a
// provider.
type Model struct {
	ID         string `yaml:"id"`
	ProviderID string `yaml:"provider_id"`
	ModelID    string `yaml:"model_id"`
	Name       string `yaml:"name"`
}

// Resolver looks a logical model reference up on behalf of a user.
type Resolver interface {
	Resolve(userID, modelID string) (*Model, *Provider, error)
}

// Registry indexes providers and models by ID.
type Registry struct {
	providers map[string]*Provider
	models    map[string]*Model
}

type file struct {
	Providers []*Provider `yaml:"providers"`
	Models    []*Model    `yaml:"models"`
}

// Load reads a registry yaml file. Records without an ID get one assigned.
func Load(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}
	return New(f.Providers, f.Models), nil
}

// New builds a Registry from record slices.
func New(providers []*Provider, models []*Model) *Registry {
	r := &Registry{
		providers: make(map[string]*Provider, len(providers)),
		models:    make(map[string]*Model, len(models)),
	}
	for _, p := range providers {
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		r.providers[p.ID] = p
	}
	for _, m := range models {
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		r.models[m.ID] = m
	}
	return r
}

// Resolve returns the model and its provider for modelID, verifying that the
// provider belongs to userID and is enabled.
func (r *Registry) Resolve(userID, modelID string) (*Model, *Provider, error) {
	model, ok := r.models[modelID]
	if !ok {
		return nil, nil, ErrModelNotFound
	}
	provider, ok := r.providers[model.ProviderID]
	if !ok {
		return nil, nil, ErrModelNotFound
	}
	if provider.UserID != userID {
		return nil, nil, ErrForbidden
	}
	if !provider.Enabled {
		return nil, nil, ErrProviderDisabled
	}
	return model, provider, nil
}
