package embed

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// ProviderType identifies an embedding backend.
type ProviderType string

const (
	// ProviderStatic uses the deterministic hash-based embedder. It is the
	// default: no network dependency, always available.
	ProviderStatic ProviderType = "static"

	// ProviderOllama uses a local Ollama server for real vector embeddings.
	ProviderOllama ProviderType = "ollama"
)

// NewEmbedder creates an embedder for the given provider. The
// SEMTOOLS_EMBEDDER environment variable overrides provider selection;
// SEMTOOLS_OLLAMA_HOST and SEMTOOLS_OLLAMA_MODEL override the Ollama
// defaults. The result is wrapped with a query-embedding cache unless
// SEMTOOLS_EMBED_CACHE disables it.
func NewEmbedder(ctx context.Context, provider ProviderType, model string) (Embedder, error) {
	if envProvider := os.Getenv("SEMTOOLS_EMBEDDER"); envProvider != "" {
		provider = ParseProvider(envProvider)
	}

	var embedder Embedder
	var err error

	switch provider {
	case ProviderOllama:
		embedder, err = newOllama(ctx, model)
	case ProviderStatic:
		embedder = NewStaticEmbedder()
	default:
		embedder = NewStaticEmbedder()
	}

	if err != nil {
		return nil, err
	}

	if !isCacheDisabled() {
		embedder = NewCachedEmbedderWithDefaults(embedder)
	}

	return embedder, nil
}

func isCacheDisabled() bool {
	v := strings.ToLower(os.Getenv("SEMTOOLS_EMBED_CACHE"))
	return v == "false" || v == "0" || v == "off" || v == "disabled"
}

func newOllama(ctx context.Context, model string) (Embedder, error) {
	cfg := DefaultOllamaConfig()
	if model != "" {
		cfg.Model = model
	}
	if host := os.Getenv("SEMTOOLS_OLLAMA_HOST"); host != "" {
		cfg.Host = host
	}
	if modelOverride := os.Getenv("SEMTOOLS_OLLAMA_MODEL"); modelOverride != "" {
		cfg.Model = modelOverride
	}

	embedder, err := NewOllamaEmbedder(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ollama unavailable: %w\n\nstart Ollama (ollama serve) or use SEMTOOLS_EMBEDDER=static", err)
	}
	return embedder, nil
}

// ParseProvider converts a string to a ProviderType, defaulting to static
// for unrecognized values.
func ParseProvider(s string) ProviderType {
	switch strings.ToLower(s) {
	case "ollama":
		return ProviderOllama
	default:
		return ProviderStatic
	}
}

// String returns the string representation of the provider.
func (p ProviderType) String() string {
	return string(p)
}

// ValidProviders returns all recognized provider names.
func ValidProviders() []string {
	return []string{string(ProviderStatic), string(ProviderOllama)}
}
