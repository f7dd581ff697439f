// Package semsearch is the entry point callers use to run a semantic
// line search, either stateless (embed everything in memory, rank, and
// discard) or workspace-backed (reconcile against a persisted store,
// upsert what changed, then query the store directly).
package semsearch

import (
	"context"
	"os"
	"strings"

	semerrors "github.com/run-llama/semtools/internal/errors"
	"github.com/run-llama/semtools/internal/embed"
	"github.com/run-llama/semtools/internal/reconcile"
	"github.com/run-llama/semtools/internal/simrank"
	"github.com/run-llama/semtools/internal/store"
	"github.com/run-llama/semtools/internal/workspace"
)

// Config mirrors the recognized search options: context window size,
// result cap, an optional distance threshold that overrides the cap,
// and whether to case-fold text before embedding.
type Config struct {
	NLines      int
	TopK        int
	MaxDistance *float64
	IgnoreCase  bool
}

// splitLines splits file content into lines the way a text editor
// would: on "\n", with any trailing "\r" stripped, and no trailing
// empty line for a final newline.
func splitLines(content string) []string {
	content = strings.TrimSuffix(content, "\n")
	if content == "" {
		return nil
	}
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}

func foldLines(lines []string) []string {
	folded := make([]string, len(lines))
	for i, line := range lines {
		folded[i] = strings.ToLower(line)
	}
	return folded
}

func buildDocument(ctx context.Context, embedder embed.Embedder, path, content string, ignoreCase bool) (simrank.Document, bool, error) {
	lines := splitLines(content)
	if len(lines) == 0 {
		return simrank.Document{}, false, nil
	}

	textToEmbed := lines
	if ignoreCase {
		textToEmbed = foldLines(lines)
	}

	vectors, err := embedder.EmbedBatch(ctx, textToEmbed)
	if err != nil {
		return simrank.Document{}, false, semerrors.EmbeddingError("failed to embed "+path, err)
	}

	return simrank.Document{Path: path, Lines: lines, Embeddings: vectors}, true, nil
}

func embedQuery(ctx context.Context, embedder embed.Embedder, query string, ignoreCase bool) ([]float32, error) {
	text := query
	if ignoreCase {
		text = strings.ToLower(query)
	}
	vec, err := embedder.Embed(ctx, text)
	if err != nil {
		return nil, semerrors.EmbeddingError("failed to embed query", err)
	}
	return vec, nil
}

func toSimrankConfig(cfg Config) simrank.Config {
	return simrank.Config{
		NLines:      cfg.NLines,
		TopK:        cfg.TopK,
		MaxDistance: cfg.MaxDistance,
		IgnoreCase:  cfg.IgnoreCase,
	}
}

// SearchFiles embeds every listed file in memory and ranks lines
// against query, without touching any persisted store. Each file is
// read and embedded fully on every call.
func SearchFiles(ctx context.Context, paths []string, query string, embedder embed.Embedder, cfg Config) ([]simrank.Result, error) {
	if len(paths) == 0 {
		return nil, semerrors.ValidationError("no input files provided", nil)
	}

	var documents []simrank.Document
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, semerrors.IOError("failed to read "+path, err)
		}

		doc, ok, err := buildDocument(ctx, embedder, path, string(content), cfg.IgnoreCase)
		if err != nil {
			return nil, err
		}
		if ok {
			documents = append(documents, doc)
		}
	}

	queryEmbedding, err := embedQuery(ctx, embedder, query, cfg.IgnoreCase)
	if err != nil {
		return nil, err
	}

	return simrank.Rank(documents, queryEmbedding, toSimrankConfig(cfg)), nil
}

// SearchWithWorkspace reconciles paths against the active workspace's
// persisted store, upserts any new or changed documents, and ranks
// directly from the store rather than from in-memory documents.
func SearchWithWorkspace(ctx context.Context, paths []string, query string, embedder embed.Embedder, cfg Config, ws *workspace.Workspace) ([]store.RankedLine, error) {
	if len(paths) == 0 {
		return nil, semerrors.ValidationError("no input files provided", nil)
	}

	s, err := store.Open(ws.Config.RootDir, embedder.Dimensions())
	if err != nil {
		return nil, err
	}
	defer s.Close()

	states, err := reconcile.AnalyzeDocumentStates(ctx, s, paths, reconcile.CurrentEmbeddingVersion)
	if err != nil {
		return nil, err
	}

	var lineEmbeddings []store.LineEmbedding
	var metas []store.DocMeta

	for _, state := range states {
		if state.Kind == reconcile.Unchanged {
			continue
		}

		doc, ok, err := buildDocument(ctx, embedder, state.Info.Path, state.Info.Content, cfg.IgnoreCase)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		for lineNumber, vector := range doc.Embeddings {
			lineEmbeddings = append(lineEmbeddings, store.LineEmbedding{
				Path:       doc.Path,
				LineNumber: uint32(lineNumber),
				Vector:     vector,
			})
		}
		metas = append(metas, state.Info.Meta)
	}

	// Lines before metadata: a mid-crash here leaves lines without
	// metadata, which the next reconciliation treats as a new document
	// whose lines get overwritten on re-upsert.
	if len(lineEmbeddings) > 0 {
		if err := s.UpsertLineEmbeddings(ctx, lineEmbeddings); err != nil {
			return nil, err
		}
	}
	if len(metas) > 0 {
		if err := s.UpsertDocumentMetadata(ctx, metas); err != nil {
			return nil, err
		}
	}

	queryEmbedding, err := embedQuery(ctx, embedder, query, cfg.IgnoreCase)
	if err != nil {
		return nil, err
	}

	var maxDistance float32
	if cfg.MaxDistance != nil {
		maxDistance = float32(*cfg.MaxDistance)
	}

	return s.SearchLineEmbeddings(ctx, queryEmbedding, paths, cfg.TopK, maxDistance)
}

// ResolveContext re-reads path and returns the lines in the half-open
// window [lineNumber-nLines, lineNumber+nLines+1), clamped to the
// file's bounds. It is the presentation step that turns a store's bare
// (path, line_number) hit back into a displayable snippet.
func ResolveContext(path string, lineNumber, nLines int) (lines []string, start, end int, err error) {
	content, readErr := os.ReadFile(path)
	if readErr != nil {
		return nil, 0, 0, semerrors.IOError("failed to read "+path, readErr)
	}

	allLines := splitLines(string(content))
	start = lineNumber - nLines
	if start < 0 {
		start = 0
	}
	end = lineNumber + nLines + 1
	if end > len(allLines) {
		end = len(allLines)
	}
	if start > len(allLines) {
		start = len(allLines)
	}

	return allLines[start:end], start, end, nil
}
