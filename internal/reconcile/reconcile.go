// Package reconcile classifies a caller-supplied list of file paths
// against a workspace's persisted document metadata, so a search only
// re-reads and re-embeds files that are new or have changed since they
// were last indexed.
package reconcile

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/run-llama/semtools/internal/store"
)

// CurrentEmbeddingVersion is bumped whenever the embedding pipeline
// changes in a way that invalidates previously persisted vectors,
// forcing every document to be treated as changed on its next
// reconciliation.
const CurrentEmbeddingVersion = 2

// maxConcurrentReads bounds how many files are stat'd and read at once.
const maxConcurrentReads = 8

// Kind classifies a path's relationship to what the store already has.
type Kind int

const (
	// Unchanged means the store's metadata for this path matches the
	// file currently on disk; no re-embedding is needed.
	Unchanged Kind = iota

	// Changed means the store has metadata for this path, but its
	// size, modification time, or embedding version no longer match.
	Changed

	// New means the store has no metadata for this path at all.
	New
)

func (k Kind) String() string {
	switch k {
	case Unchanged:
		return "unchanged"
	case Changed:
		return "changed"
	case New:
		return "new"
	default:
		return "unknown"
	}
}

// DocumentInfo carries the freshly read contents and the metadata a
// Changed or New document should be upserted with.
type DocumentInfo struct {
	Path    string
	Content string
	Meta    store.DocMeta
}

// State is one path's classification. Info is non-nil only for Changed
// and New states.
type State struct {
	Kind Kind
	Path string
	Info *DocumentInfo
}

// AnalyzeDocumentStates stats and conditionally reads every path in
// paths, concurrently, and classifies each against the store's current
// metadata. Paths that no longer exist on disk are silently omitted —
// a missing file is not an error at this stage, it is simply absent
// from the result.
func AnalyzeDocumentStates(ctx context.Context, s store.Store, paths []string, embeddingVersion int) ([]State, error) {
	if len(paths) == 0 {
		return nil, nil
	}

	existingAtVersion, err := s.GetExistingDocs(ctx, paths, embeddingVersion)
	if err != nil {
		return nil, err
	}

	knownPaths, err := s.GetAllDocumentPaths(ctx)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(knownPaths))
	for _, p := range knownPaths {
		known[p] = true
	}

	states := make([]State, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, maxConcurrentReads)
	var mu sync.Mutex

	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-gctx.Done():
				return gctx.Err()
			}

			state, skip, err := classifyPath(path, existingAtVersion, known, embeddingVersion)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			if skip {
				states[i] = State{} // zero value filtered out below
			} else {
				states[i] = state
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := make([]State, 0, len(paths))
	for _, st := range states {
		if st.Path != "" {
			result = append(result, st)
		}
	}
	return result, nil
}

func classifyPath(path string, existingAtVersion map[string]store.DocMeta, known map[string]bool, embeddingVersion int) (State, bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, true, nil
		}
		slog.Warn("reconcile_stat_failed", slog.String("path", path), slog.Any("error", err))
		return State{}, true, nil
	}

	sizeBytes := uint64(info.Size())
	mtime := info.ModTime()

	if meta, ok := existingAtVersion[path]; ok && meta.SizeBytes == sizeBytes && meta.ModTime.Equal(mtime) {
		return State{Kind: Unchanged, Path: path}, false, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, true, nil
		}
		return State{}, false, err
	}

	kind := New
	if known[path] {
		kind = Changed
	}

	return State{
		Kind: kind,
		Path: path,
		Info: &DocumentInfo{
			Path:    path,
			Content: string(content),
			Meta: store.DocMeta{
				Path:      path,
				SizeBytes: sizeBytes,
				ModTime:   mtime,
				Version:   embeddingVersion,
			},
		},
	}, false, nil
}
