package reconcile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/run-llama/semtools/internal/store"
)

func openTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir(), 4)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestAnalyzeDocumentStates_AllNewWhenStoreEmpty(t *testing.T) {
	s := openTestStore(t)
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "hello")
	b := writeFile(t, dir, "b.txt", "world")

	states, err := AnalyzeDocumentStates(context.Background(), s, []string{a, b}, CurrentEmbeddingVersion)
	require.NoError(t, err)
	require.Len(t, states, 2)
	for _, st := range states {
		assert.Equal(t, New, st.Kind)
		require.NotNil(t, st.Info)
		assert.NotEmpty(t, st.Info.Content)
	}
}

func TestAnalyzeDocumentStates_UnchangedAfterUpsert(t *testing.T) {
	s := openTestStore(t)
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "hello")

	states, err := AnalyzeDocumentStates(context.Background(), s, []string{a}, CurrentEmbeddingVersion)
	require.NoError(t, err)
	require.Len(t, states, 1)
	require.Equal(t, New, states[0].Kind)

	require.NoError(t, s.UpsertDocumentMetadata(context.Background(), []store.DocMeta{states[0].Info.Meta}))

	states, err = AnalyzeDocumentStates(context.Background(), s, []string{a}, CurrentEmbeddingVersion)
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, Unchanged, states[0].Kind)
	assert.Nil(t, states[0].Info)
}

func TestAnalyzeDocumentStates_ChangedAfterModification(t *testing.T) {
	s := openTestStore(t)
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "hello")

	states, err := AnalyzeDocumentStates(context.Background(), s, []string{a}, CurrentEmbeddingVersion)
	require.NoError(t, err)
	require.NoError(t, s.UpsertDocumentMetadata(context.Background(), []store.DocMeta{states[0].Info.Meta}))

	// Ensure the new mtime is observably different from the original.
	past := states[0].Info.Meta.ModTime.Add(-2 * time.Second)
	require.NoError(t, os.Chtimes(a, past, past))
	require.NoError(t, os.WriteFile(a, []byte("hello world, appended"), 0o644))

	states, err = AnalyzeDocumentStates(context.Background(), s, []string{a}, CurrentEmbeddingVersion)
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, Changed, states[0].Kind)
	require.NotNil(t, states[0].Info)
	assert.Equal(t, "hello world, appended", states[0].Info.Content)
}

func TestAnalyzeDocumentStates_ChangedWhenEmbeddingVersionBumped(t *testing.T) {
	s := openTestStore(t)
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "hello")

	states, err := AnalyzeDocumentStates(context.Background(), s, []string{a}, 1)
	require.NoError(t, err)
	require.NoError(t, s.UpsertDocumentMetadata(context.Background(), []store.DocMeta{states[0].Info.Meta}))

	states, err = AnalyzeDocumentStates(context.Background(), s, []string{a}, 2)
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, Changed, states[0].Kind)
}

func TestAnalyzeDocumentStates_MissingFileSilentlyDropped(t *testing.T) {
	s := openTestStore(t)
	dir := t.TempDir()
	missing := filepath.Join(dir, "does-not-exist.txt")

	states, err := AnalyzeDocumentStates(context.Background(), s, []string{missing}, CurrentEmbeddingVersion)
	require.NoError(t, err)
	assert.Empty(t, states)
}

func TestAnalyzeDocumentStates_EmptyInputReturnsEmpty(t *testing.T) {
	s := openTestStore(t)
	states, err := AnalyzeDocumentStates(context.Background(), s, nil, CurrentEmbeddingVersion)
	require.NoError(t, err)
	assert.Empty(t, states)
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "unchanged", Unchanged.String())
	assert.Equal(t, "changed", Changed.String())
	assert.Equal(t, "new", New.String())
}
