package modelstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nlud/pkg/types"
)

func sampleModel(lang, hash string, finished time.Time) types.Model {
	return types.Model{
		Hash:         hash,
		LanguageCode: lang,
		StartedAt:    finished.Add(-time.Second),
		FinishedAt:   finished,
		Data:         types.ModelData{Input: `[{"name":"greet"}]`, Output: `{"version":1}`},
	}
}

func backends(t *testing.T) map[string]Store {
	t.Helper()
	mem, err := NewMemoryStore(16)
	require.NoError(t, err)
	file, err := NewFileStore(filepath.Join(t.TempDir(), "models"))
	require.NoError(t, err)
	sq, err := NewSQLiteStore(filepath.Join(t.TempDir(), "models.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sq.Close() })
	cached, err := NewCachedStore(file, 4)
	require.NoError(t, err)
	return map[string]Store{
		"memory": mem,
		"file":   file,
		"sqlite": sq,
		"cached": cached,
		"scoped": Scoped(mem, "b1"),
	}
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ok, err := s.HasModel(ctx, "en.abc")
			require.NoError(t, err)
			assert.False(t, ok)

			_, err = s.GetModel(ctx, "en.abc")
			assert.True(t, IsModelNotFound(err), "got %v", err)

			require.NoError(t, s.PutModel(ctx, "en.abc", sampleModel("en", "abc", now)))
			require.NoError(t, s.PutModel(ctx, "fr.def", sampleModel("fr", "def", now)))

			ok, err = s.HasModel(ctx, "en.abc")
			require.NoError(t, err)
			assert.True(t, ok)

			got, err := s.GetModel(ctx, "en.abc")
			require.NoError(t, err)
			assert.Equal(t, "abc", got.Hash)
			assert.Equal(t, "en", got.LanguageCode)
			assert.True(t, got.FinishedAt.Equal(now))
			assert.Equal(t, `{"version":1}`, got.Data.Output)

			ids, err := s.ListModels(ctx, "en.")
			require.NoError(t, err)
			assert.Equal(t, []string{"en.abc"}, ids)

			require.NoError(t, s.DeleteModel(ctx, "en.abc"))
			require.NoError(t, s.DeleteModel(ctx, "en.abc"))
			ok, err = s.HasModel(ctx, "en.abc")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open("postgres", "", 0)
	assert.Error(t, err)
}

func TestScopedIsolatesBots(t *testing.T) {
	ctx := context.Background()
	inner, err := NewMemoryStore(0)
	require.NoError(t, err)
	a, b := Scoped(inner, "a"), Scoped(inner, "b")

	require.NoError(t, a.PutModel(ctx, "en.x", sampleModel("en", "x", time.Now())))
	ok, err := b.HasModel(ctx, "en.x")
	require.NoError(t, err)
	assert.False(t, ok)

	all, err := inner.ListModels(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/en.x"}, all)

	_, err = b.GetModel(ctx, "en.x")
	require.True(t, IsModelNotFound(err))
	assert.Contains(t, err.Error(), "en.x")
	assert.NotContains(t, err.Error(), "b/")
}

func TestCachedInvalidate(t *testing.T) {
	ctx := context.Background()
	inner, err := NewMemoryStore(0)
	require.NoError(t, err)
	c, err := NewCachedStore(inner, 2)
	require.NoError(t, err)

	require.NoError(t, c.PutModel(ctx, "en.x", sampleModel("en", "x", time.Now())))
	// another replica removes it from the shared backend
	require.NoError(t, inner.DeleteModel(ctx, "en.x"))

	ok, err := c.HasModel(ctx, "en.x")
	require.NoError(t, err)
	assert.True(t, ok, "stale entry should still be served before invalidation")

	c.Invalidate("en.x")
	ok, err = c.HasModel(ctx, "en.x")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPruneKeepsNewest(t *testing.T) {
	ctx := context.Background()
	s, err := NewMemoryStore(0)
	require.NoError(t, err)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, h := range []string{"h1", "h2", "h3", "h4"} {
		require.NoError(t, s.PutModel(ctx, types.ModelID("en", h), sampleModel("en", h, base.Add(time.Duration(i)*time.Hour))))
	}
	require.NoError(t, s.PutModel(ctx, "fr.h0", sampleModel("fr", "h0", base)))

	deleted, err := Prune(ctx, s, "en", 2, "en.h4")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"en.h1", "en.h2"}, deleted)

	ids, err := s.ListModels(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"en.h3", "en.h4", "fr.h0"}, ids)
}

func TestPruneDisabled(t *testing.T) {
	s, err := NewMemoryStore(0)
	require.NoError(t, err)
	deleted, err := Prune(context.Background(), s, "en", 0, "")
	require.NoError(t, err)
	assert.Empty(t, deleted)
}
