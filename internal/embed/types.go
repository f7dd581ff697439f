package embed

import (
	"context"
	"math"
	"time"
)

// Embedding constants.
const (
	// MinBatchSize is the minimum allowed batch size.
	MinBatchSize = 1

	// MaxBatchSize is the maximum allowed batch size (prevents memory exhaustion).
	MaxBatchSize = 256

	// DefaultBatchSize is the default batch size for embedding requests.
	DefaultBatchSize = 32

	// DefaultTimeout is the default timeout for embedding requests.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRetries is the default number of retry attempts for a networked embedder.
	DefaultMaxRetries = 3
)

// StaticDimensions is the embedding dimension D used throughout the system.
// All vectors stored in one workspace must share this dimension; switching
// embedders that report a different dimension requires a fresh workspace
// (or bumps DocMeta.version, forcing a full re-embed).
const StaticDimensions = 256

// Embedder generates vector embeddings for text. It is loaded once per
// process and treated as shared, read-only state: the only thing that
// varies between calls is the input text.
type Embedder interface {
	// Embed generates the embedding for a single text. Equivalent to
	// EmbedBatch([]string{text})[0].
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, preserving order
	// and length. An empty input returns an empty, non-nil result.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension D.
	Dimensions() int

	// ModelName returns the model identifier; CachedEmbedder uses it as
	// part of its cache key.
	ModelName() string

	// Available reports whether the embedder is ready to serve requests.
	Available(ctx context.Context) bool

	// Close releases resources held by the embedder.
	Close() error
}

// normalizeVector normalizes a vector to unit length. A zero vector is
// returned unchanged: callers treat zero-norm vectors as undefined for
// cosine distance and skip them rather than dividing by zero.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
