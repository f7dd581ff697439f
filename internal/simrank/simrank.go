// Package simrank ranks in-memory documents by cosine distance to a query
// embedding, with a per-match surrounding line-context window. It is the
// stateless counterpart to internal/store's persisted search: nothing
// here touches disk, and it serves one-off `semtools search` runs over
// files. Workspace-backed search ranks inside internal/store, which has
// its own cosine distance and does not call this package.
package simrank

import (
	"math"
	"sort"
)

// Document is a file loaded into memory with one embedding per line.
type Document struct {
	Path       string
	Lines      []string
	Embeddings [][]float32
}

// Config controls ranking behavior.
type Config struct {
	// NLines is how many lines of context to include before and after
	// a matching line.
	NLines int

	// TopK bounds the result count when MaxDistance is not set.
	TopK int

	// MaxDistance, when non-nil, switches ranking to threshold mode:
	// every match strictly under the threshold is returned, and TopK is
	// ignored entirely.
	MaxDistance *float64

	// IgnoreCase indicates the caller already folded document lines to
	// lowercase before embedding; Rank does not itself alter text, it
	// only affects how callers are expected to have built Embeddings.
	IgnoreCase bool
}

// Result is one ranked line match with its surrounding context.
type Result struct {
	Path      string
	Lines     []string
	Start     int
	End       int // half-open
	MatchLine int
	Distance  float64
}

// Rank scores every line embedding in documents against queryEmbedding and
// returns matches sorted by ascending distance (best first).
//
// When cfg.MaxDistance is set, the threshold wins over TopK: every match
// strictly under the threshold is returned, unbounded by TopK. Otherwise
// the result is truncated to the best TopK matches. Lines whose embedding
// has zero norm are skipped — cosine similarity is undefined for them,
// not zero.
func Rank(documents []Document, queryEmbedding []float32, cfg Config) []Result {
	var results []Result

	for _, doc := range documents {
		for idx, lineEmbedding := range doc.Embeddings {
			distance, ok := CosineDistance(queryEmbedding, lineEmbedding)
			if !ok {
				continue
			}

			if cfg.MaxDistance != nil && distance >= *cfg.MaxDistance {
				continue
			}

			start := idx - cfg.NLines
			if start < 0 {
				start = 0
			}
			end := idx + cfg.NLines + 1
			if end > len(doc.Lines) {
				end = len(doc.Lines)
			}

			results = append(results, Result{
				Path:      doc.Path,
				Lines:     doc.Lines[start:end],
				Start:     start,
				End:       end,
				MatchLine: idx,
				Distance:  distance,
			})
		}
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })

	if cfg.MaxDistance != nil {
		return results
	}
	if cfg.TopK > 0 && len(results) > cfg.TopK {
		results = results[:cfg.TopK]
	}
	return results
}

// CosineDistance returns 1 - cosine_similarity(a, b). ok is false when
// either vector has zero norm, in which case similarity is undefined and
// the caller should skip the comparison rather than treat it as a match.
func CosineDistance(a, b []float32) (float64, bool) {
	var dot, normA, normB float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, false
	}
	similarity := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return 1 - similarity, true
}
