package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	semerrors "github.com/run-llama/semtools/internal/errors"
)

// hnswCandidateThreshold is the minimum live vector count above which
// SQLiteStore uses the HNSW index to narrow candidates before an exact
// rescore. Below it, brute force over the filtered rows is already cheap
// and guarantees recall, so the index is skipped entirely.
const hnswCandidateThreshold = 5000

// sqliteStore is the SQLite-backed implementation of Store. It keeps an
// exclusive lock on the workspace root directory for its lifetime and
// mirrors every persisted line embedding into an in-memory HNSW index for
// fast candidate generation.
type sqliteStore struct {
	db   *sql.DB
	lock *flock.Flock
	dim  int
	ann  *hnswIndex

	rootDir   string
	indexPath string
}

// Open opens (creating if necessary) the SQLite-backed store rooted at
// rootDir, acquiring an exclusive lock so only one process may write to
// the workspace at a time. dim is the embedding dimensionality this store
// will accept.
func Open(rootDir string, dim int) (Store, error) {
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, semerrors.IOError("failed to create workspace directory", err)
	}

	lockPath := filepath.Join(rootDir, ".lock")
	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, semerrors.IOError("failed to acquire workspace lock", err)
	}
	if !locked {
		return nil, semerrors.New(semerrors.ErrCodeStoreLocked, fmt.Sprintf("workspace %s is locked by another process", rootDir), nil)
	}

	dbPath := filepath.Join(rootDir, "semtools.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		_ = lock.Unlock()
		return nil, semerrors.StoreCorruptError("failed to open store database", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers on one handle

	if err := applySchema(db); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, semerrors.StoreCorruptError("failed to initialize store schema", err)
	}

	s := &sqliteStore{
		db:        db,
		lock:      lock,
		dim:       dim,
		ann:       newHNSWIndex(VectorStoreConfig{Dimensions: dim, Metric: "cos"}),
		rootDir:   rootDir,
		indexPath: filepath.Join(rootDir, "line_embeddings.hnsw"),
	}

	if err := s.loadIndex(context.Background()); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, semerrors.StoreCorruptError("failed to load vector index", err)
	}

	return s, nil
}

func applySchema(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id INTEGER PRIMARY KEY,
	path TEXT NOT NULL UNIQUE,
	size_bytes INTEGER NOT NULL,
	mtime INTEGER NOT NULL,
	version INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS line_embeddings (
	id INTEGER PRIMARY KEY,
	path TEXT NOT NULL,
	line_number INTEGER NOT NULL,
	vector BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_line_embeddings_path ON line_embeddings(path);
`
	_, err := db.Exec(schema)
	return err
}

// loadIndex repopulates the in-memory ANN index from the line_embeddings
// table. Called once at Open; the SQLite table, not the index file, is
// the source of truth.
func (s *sqliteStore) loadIndex(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT id, vector FROM line_embeddings`)
	if err != nil {
		return err
	}
	defer rows.Close()

	var ids []string
	var vectors [][]float32
	for rows.Next() {
		var id int64
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return err
		}
		ids = append(ids, strconv.FormatInt(id, 10))
		vectors = append(vectors, decodeVector(blob))
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	return s.ann.Add(ctx, ids, vectors)
}

// UpsertDocumentMetadata implements Store.
func (s *sqliteStore) UpsertDocumentMetadata(ctx context.Context, metas []DocMeta) error {
	if len(metas) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return semerrors.IOError("begin transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO documents (id, path, size_bytes, mtime, version)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET size_bytes = excluded.size_bytes, mtime = excluded.mtime, version = excluded.version
	`)
	if err != nil {
		return semerrors.IOError("prepare document upsert", err)
	}
	defer stmt.Close()

	for _, m := range metas {
		// SQLite INTEGER columns are signed 64-bit; store the hash's bit
		// pattern reinterpreted as int64 rather than passing a uint64
		// that may exceed math.MaxInt64 and be rejected by the driver.
		id := int64(docID(m.Path))
		if _, err := stmt.ExecContext(ctx, id, m.Path, m.SizeBytes, m.ModTime.UnixNano(), m.Version); err != nil {
			return semerrors.IOError("upsert document metadata", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return semerrors.IOError("commit document upsert", err)
	}
	return nil
}

// UpsertLineEmbeddings implements Store.
func (s *sqliteStore) UpsertLineEmbeddings(ctx context.Context, embeddings []LineEmbedding) error {
	if len(embeddings) == 0 {
		return nil
	}

	for start := 0; start < len(embeddings); start += maxChunkSize {
		end := start + maxChunkSize
		if end > len(embeddings) {
			end = len(embeddings)
		}
		if err := s.upsertLineEmbeddingBatch(ctx, embeddings[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqliteStore) upsertLineEmbeddingBatch(ctx context.Context, batch []LineEmbedding) error {
	for _, e := range batch {
		if len(e.Vector) != s.dim {
			return semerrors.New(semerrors.ErrCodeDimensionMismatch,
				ErrDimensionMismatch{Expected: s.dim, Got: len(e.Vector)}.Error(), nil)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return semerrors.IOError("begin transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO line_embeddings (id, path, line_number, vector)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET vector = excluded.vector
	`)
	if err != nil {
		return semerrors.IOError("prepare line embedding upsert", err)
	}
	defer stmt.Close()

	ids := make([]string, len(batch))
	vectors := make([][]float32, len(batch))
	for i, e := range batch {
		id := int64(lineID(e.Path, e.LineNumber))
		if _, err := stmt.ExecContext(ctx, id, e.Path, e.LineNumber, encodeVector(e.Vector)); err != nil {
			return semerrors.IOError("upsert line embedding", err)
		}
		ids[i] = strconv.FormatInt(id, 10)
		vectors[i] = e.Vector
	}

	if err := tx.Commit(); err != nil {
		return semerrors.IOError("commit line embedding upsert", err)
	}

	return s.ann.Add(ctx, ids, vectors)
}

// DeleteDocuments implements Store.
func (s *sqliteStore) DeleteDocuments(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}

	for _, chunk := range chunkPaths(paths) {
		placeholders, args := inClauseArgs(chunk)

		// Documents shard first: if the process dies here, the paths
		// simply look unseen on next reconcile and get re-indexed,
		// rather than serving metadata for embeddings that no longer
		// exist.
		if _, err := s.db.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM documents WHERE path IN (%s)`, placeholders), args...); err != nil {
			return semerrors.IOError("delete document metadata", err)
		}

		ids, err := s.lineIDsForPaths(ctx, chunk)
		if err != nil {
			return err
		}

		if _, err := s.db.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM line_embeddings WHERE path IN (%s)`, placeholders), args...); err != nil {
			return semerrors.IOError("delete line embeddings", err)
		}

		if err := s.ann.Delete(ctx, ids); err != nil {
			return semerrors.IOError("delete line embeddings from vector index", err)
		}
	}

	return nil
}

func (s *sqliteStore) lineIDsForPaths(ctx context.Context, paths []string) ([]string, error) {
	placeholders, args := inClauseArgs(paths)
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id FROM line_embeddings WHERE path IN (%s)`, placeholders), args...)
	if err != nil {
		return nil, semerrors.IOError("query line embedding ids", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, semerrors.IOError("scan line embedding id", err)
		}
		ids = append(ids, strconv.FormatInt(id, 10))
	}
	return ids, rows.Err()
}

// GetExistingDocs implements Store.
func (s *sqliteStore) GetExistingDocs(ctx context.Context, paths []string, embeddingVersion int) (map[string]DocMeta, error) {
	result := make(map[string]DocMeta)
	if len(paths) == 0 {
		return result, nil
	}

	for _, chunk := range chunkPaths(paths) {
		placeholders, args := inClauseArgs(chunk)
		args = append(args, embeddingVersion)

		rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
			`SELECT path, size_bytes, mtime, version FROM documents WHERE path IN (%s) AND version = ?`,
			placeholders), args...)
		if err != nil {
			return nil, semerrors.IOError("query existing documents", err)
		}

		err = func() error {
			defer rows.Close()
			for rows.Next() {
				var path string
				var sizeBytes uint64
				var mtimeNanos int64
				var version int
				if err := rows.Scan(&path, &sizeBytes, &mtimeNanos, &version); err != nil {
					return err
				}
				result[path] = DocMeta{
					Path:      path,
					SizeBytes: sizeBytes,
					ModTime:   time.Unix(0, mtimeNanos),
					Version:   version,
				}
			}
			return rows.Err()
		}()
		if err != nil {
			return nil, semerrors.IOError("scan existing documents", err)
		}
	}

	return result, nil
}

// GetAllDocumentPaths implements Store.
func (s *sqliteStore) GetAllDocumentPaths(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path FROM documents`)
	if err != nil {
		return nil, semerrors.IOError("query document paths", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, semerrors.IOError("scan document path", err)
		}
		paths = append(paths, path)
	}
	return paths, rows.Err()
}

// SearchLineEmbeddings implements Store. When maxDistance is set, the
// threshold wins over topK: every match strictly under it is returned,
// unbounded by topK, mirroring internal/simrank.Rank's threshold mode.
func (s *sqliteStore) SearchLineEmbeddings(ctx context.Context, query []float32, candidatePaths []string, topK int, maxDistance float32) ([]RankedLine, error) {
	if len(candidatePaths) == 0 || topK <= 0 {
		return nil, nil
	}
	if len(query) != s.dim {
		return nil, semerrors.New(semerrors.ErrCodeDimensionMismatch,
			ErrDimensionMismatch{Expected: s.dim, Got: len(query)}.Error(), nil)
	}

	oversample := topK * 2
	if oversample < topK {
		oversample = topK // guard against overflow for absurd topK
	}
	if maxDistance > 0 {
		// Threshold mode is unbounded by topK, so chunks are not truncated.
		oversample = math.MaxInt32
	}

	var merged []RankedLine
	for _, chunk := range chunkPaths(candidatePaths) {
		chunkResults, err := s.searchChunk(ctx, query, chunk, oversample)
		if err != nil {
			return nil, err
		}
		merged = append(merged, chunkResults...)
	}

	sort.Slice(merged, func(i, j int) bool { return merged[i].Distance < merged[j].Distance })

	if maxDistance > 0 {
		filtered := merged[:0]
		for _, r := range merged {
			if r.Distance < maxDistance {
				filtered = append(filtered, r)
			}
		}
		merged = filtered
		return merged, nil
	}

	if len(merged) > topK {
		merged = merged[:topK]
	}
	return merged, nil
}

// searchChunk ranks line embeddings for a single chunk of candidate paths.
// Below hnswCandidateThreshold live vectors, it always rescans exactly so
// the path filter can never be optimized away; above it, the HNSW index
// narrows candidates first and only those are exactly rescored.
func (s *sqliteStore) searchChunk(ctx context.Context, query []float32, paths []string, limit int) ([]RankedLine, error) {
	if s.ann.Count() > hnswCandidateThreshold {
		if results, ok, err := s.searchChunkViaANN(ctx, query, paths, limit); err != nil {
			return nil, err
		} else if ok {
			return results, nil
		}
	}
	return s.searchChunkBruteForce(ctx, query, paths, limit)
}

// searchChunkViaANN narrows candidates through the HNSW index, filters to
// paths, and exactly rescores. ok is false when filtering left fewer than
// limit survivors, signaling the caller to fall back to a full scan.
func (s *sqliteStore) searchChunkViaANN(ctx context.Context, query []float32, paths []string, limit int) ([]RankedLine, bool, error) {
	pathSet := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		pathSet[p] = struct{}{}
	}

	// Oversample generously in candidate space since most neighbors will
	// be filtered out by the path restriction.
	k := limit * 8
	if k < 256 {
		k = 256
	}
	if k > s.ann.Count() {
		k = s.ann.Count()
	}

	candidates, err := s.ann.Search(ctx, query, k)
	if err != nil {
		return nil, false, semerrors.IOError("ann search", err)
	}

	placeholders := make([]string, 0, len(candidates))
	idToDistance := make(map[string]float32, len(candidates))
	for _, c := range candidates {
		placeholders = append(placeholders, c.ID)
		idToDistance[c.ID] = c.Distance
	}
	if len(placeholders) == 0 {
		return nil, false, nil
	}

	rowPlaceholders, args := inClauseArgsInt(placeholders)
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, path, line_number FROM line_embeddings WHERE id IN (%s)`, rowPlaceholders), args...)
	if err != nil {
		return nil, false, semerrors.IOError("resolve ann candidates", err)
	}
	defer rows.Close()

	var results []RankedLine
	for rows.Next() {
		var id int64
		var path string
		var lineNumber uint32
		if err := rows.Scan(&id, &path, &lineNumber); err != nil {
			return nil, false, semerrors.IOError("scan ann candidate", err)
		}
		if _, ok := pathSet[path]; !ok {
			continue
		}
		results = append(results, RankedLine{
			Path:       path,
			LineNumber: lineNumber,
			Distance:   idToDistance[strconv.FormatInt(id, 10)],
		})
	}
	if err := rows.Err(); err != nil {
		return nil, false, semerrors.IOError("scan ann candidates", err)
	}

	if len(results) < limit {
		return nil, false, nil
	}
	return results, true, nil
}

// searchChunkBruteForce loads every embedding for paths and computes
// exact cosine distance to query.
func (s *sqliteStore) searchChunkBruteForce(ctx context.Context, query []float32, paths []string, limit int) ([]RankedLine, error) {
	placeholders, args := inClauseArgs(paths)
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT path, line_number, vector FROM line_embeddings WHERE path IN (%s)`, placeholders), args...)
	if err != nil {
		return nil, semerrors.IOError("brute force search query", err)
	}
	defer rows.Close()

	var results []RankedLine
	for rows.Next() {
		var path string
		var lineNumber uint32
		var blob []byte
		if err := rows.Scan(&path, &lineNumber, &blob); err != nil {
			return nil, semerrors.IOError("scan brute force row", err)
		}
		vec := decodeVector(blob)
		distance, ok := cosineDistance(query, vec)
		if !ok {
			continue // zero-norm vector: undefined similarity, skip
		}
		results = append(results, RankedLine{Path: path, LineNumber: lineNumber, Distance: distance})
	}
	if err := rows.Err(); err != nil {
		return nil, semerrors.IOError("scan brute force rows", err)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// cosineDistance returns 1 - cosine_similarity(a, b). ok is false if
// either vector has zero norm, in which case similarity is undefined.
func cosineDistance(a, b []float32) (float32, bool) {
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
	return float32(1 - similarity), true
}

// GetStats implements Store.
func (s *sqliteStore) GetStats(ctx context.Context) (Stats, error) {
	var stats Stats

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&stats.DocumentCount); err != nil {
		return Stats{}, semerrors.IOError("count documents", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM line_embeddings`).Scan(&stats.LineVectorCount); err != nil {
		return Stats{}, semerrors.IOError("count line embeddings", err)
	}

	var documentsPageCount, lineEmbeddingsPageCount int64
	_ = s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(LENGTH(path) + 32), 0) FROM documents`).Scan(&documentsPageCount)
	_ = s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(LENGTH(vector) + LENGTH(path) + 16), 0) FROM line_embeddings`).Scan(&lineEmbeddingsPageCount)

	stats.DocumentsSizeBytes = documentsPageCount
	stats.LineVectorsSizeBytes = lineEmbeddingsPageCount

	return stats, nil
}

// CountDocuments implements Store.
func (s *sqliteStore) CountDocuments(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count); err != nil {
		return 0, semerrors.IOError("count documents", err)
	}
	return count, nil
}

// Flush implements Store.
func (s *sqliteStore) Flush(ctx context.Context) error {
	if err := s.ann.Save(s.indexPath); err != nil {
		return semerrors.IOError("save vector index", err)
	}
	return nil
}

// Close implements Store.
func (s *sqliteStore) Close() error {
	var errs []string

	if err := s.ann.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := s.lock.Unlock(); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("close store: %s", strings.Join(errs, "; "))
	}
	return nil
}

// inClauseArgs builds a "?,?,?" placeholder string and matching args for a
// string IN(...) filter.
func inClauseArgs(values []string) (string, []any) {
	placeholders := make([]string, len(values))
	args := make([]any, len(values))
	for i, v := range values {
		placeholders[i] = "?"
		args[i] = v
	}
	return strings.Join(placeholders, ","), args
}

// inClauseArgsInt is like inClauseArgs but parses values as integers,
// matching line_embeddings.id's INTEGER column affinity.
func inClauseArgsInt(values []string) (string, []any) {
	placeholders := make([]string, len(values))
	args := make([]any, len(values))
	for i, v := range values {
		placeholders[i] = "?"
		n, _ := strconv.ParseInt(v, 10, 64)
		args[i] = n
	}
	return strings.Join(placeholders, ","), args
}
