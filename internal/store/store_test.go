package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vanpelt/livesync/internal/models"
)

func eachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("memory", func(t *testing.T) {
		s := NewMemory()
		defer s.Close()
		fn(t, s)
	})
	t.Run("sqlite", func(t *testing.T) {
		s, err := NewSQLite(filepath.Join(t.TempDir(), "state", "livesync.db"))
		require.NoError(t, err)
		defer s.Close()
		fn(t, s)
	})
}

func TestStore_PutGetDelete(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		_, err := s.Get(ctx, "img-1")
		assert.ErrorIs(t, err, ErrNotFound)

		stored, err := s.Put(ctx, &models.Resource{ID: "img-1", Kind: "image", Fields: map[string]any{"name": "web"}})
		require.NoError(t, err)
		assert.False(t, stored.UpdatedAt.IsZero())

		got, err := s.Get(ctx, "img-1")
		require.NoError(t, err)
		assert.Equal(t, "image", got.Kind)
		assert.Equal(t, "web", got.Fields["name"])

		require.NoError(t, s.Delete(ctx, "img-1"))
		assert.ErrorIs(t, s.Delete(ctx, "img-1"), ErrNotFound)
		_, err = s.Get(ctx, "img-1")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStore_ApplyMergesAndResets(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		_, err := s.Put(ctx, &models.Resource{ID: "img-1", Fields: map[string]any{
			"name":  "web",
			"ports": []any{"80"},
		}})
		require.NoError(t, err)

		res, err := s.Apply(ctx, "img-1", map[string]any{"tag": "v2"}, "ports")
		require.NoError(t, err)
		assert.Equal(t, "web", res.Fields["name"])
		assert.Equal(t, "v2", res.Fields["tag"])
		assert.Contains(t, res.Fields, "ports")
		assert.Nil(t, res.Fields["ports"])

		got, err := s.Get(ctx, "img-1")
		require.NoError(t, err)
		assert.Equal(t, res.Fields, got.Fields)

		_, err = s.Apply(ctx, "missing", map[string]any{"a": 1}, "")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStore_ReturnsCopies(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		_, err := s.Put(ctx, &models.Resource{ID: "img-1", Fields: map[string]any{"name": "web"}})
		require.NoError(t, err)

		got, err := s.Get(ctx, "img-1")
		require.NoError(t, err)
		got.Fields["name"] = "mutated"

		again, err := s.Get(ctx, "img-1")
		require.NoError(t, err)
		assert.Equal(t, "web", again.Fields["name"])
	})
}

func TestStore_List(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		for _, id := range []string{"b", "a", "c"} {
			_, err := s.Put(ctx, &models.Resource{ID: id})
			require.NoError(t, err)
		}

		list, err := s.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, "a", list[0].ID)
		assert.Equal(t, "c", list[2].ID)
	})
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "livesync.db")
	ctx := context.Background()

	s, err := NewSQLite(path)
	require.NoError(t, err)
	_, err = s.Put(ctx, &models.Resource{ID: "img-1", Fields: map[string]any{"name": "web"}})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := NewSQLite(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "img-1")
	require.NoError(t, err)
	assert.Equal(t, "web", got.Fields["name"])
}

func TestOpen(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	s, err = Open(filepath.Join(t.TempDir(), "x.db"))
	require.NoError(t, err)
	defer s.Close()
	assert.IsType(t, &SQLite{}, s)
}
