package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStorage(t *testing.T) *SurfaceStorage {
	t.Helper()

	storage, err := NewSurfaceStorage(t.TempDir())
	require.NoError(t, err, "Не удалось создать хранилище")
	t.Cleanup(func() { storage.Close() })
	return storage
}

func TestSaveAndLoadSnapshot(t *testing.T) {
	storage := setupTestStorage(t)

	snap := SurfaceSnapshot{
		ID:        "surface-1",
		Pattern:   "knife_blade",
		Mode:      "advanced",
		Mistakes:  2,
		Strikes:   7,
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	for z := range snap.Occupancy {
		snap.Occupancy[z] = 0xFFFF
	}
	snap.Occupancy[0] = 0x00F0

	require.NoError(t, storage.SaveSnapshot(snap))

	loaded, err := storage.LoadSnapshot("surface-1")
	require.NoError(t, err)
	assert.Equal(t, snap.Pattern, loaded.Pattern)
	assert.Equal(t, snap.Mode, loaded.Mode)
	assert.Equal(t, snap.Occupancy, loaded.Occupancy)
	assert.Equal(t, 2, loaded.Mistakes)
	assert.Equal(t, 7, loaded.Strikes)
	assert.False(t, loaded.UpdatedAt.IsZero())
	assert.True(t, snap.CreatedAt.Equal(loaded.CreatedAt))
}

func TestLoadMissingSnapshot(t *testing.T) {
	storage := setupTestStorage(t)

	_, err := storage.LoadSnapshot("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteAndListSnapshots(t *testing.T) {
	storage := setupTestStorage(t)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, storage.SaveSnapshot(SurfaceSnapshot{ID: id, Pattern: "axe_head"}))
	}
	require.NoError(t, storage.DeleteSnapshot("b"))

	ids, err := storage.ListSnapshotIDs()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "c"}, ids)

	_, err = storage.LoadSnapshot("b")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSnapshotRequiresID(t *testing.T) {
	storage := setupTestStorage(t)
	assert.Error(t, storage.SaveSnapshot(SurfaceSnapshot{}))
}

func TestClosedStorage(t *testing.T) {
	storage, err := NewSurfaceStorage(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, storage.Close())
	require.NoError(t, storage.Close())

	assert.Error(t, storage.SaveSnapshot(SurfaceSnapshot{ID: "x"}))
	_, err = storage.LoadSnapshot("x")
	assert.Error(t, err)
}

func TestMemoryCompletionRepo(t *testing.T) {
	repo := NewMemoryCompletionRepo()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"first", "second", "third"} {
		require.NoError(t, repo.Record(ctx, CompletionRecord{
			SurfaceID:  id,
			Pattern:    "arrowhead",
			FinishedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	assert.Error(t, repo.Record(ctx, CompletionRecord{}))

	recent, err := repo.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "third", recent[0].SurfaceID)
	assert.Equal(t, "second", recent[1].SurfaceID)

	all, err := repo.ListRecent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
