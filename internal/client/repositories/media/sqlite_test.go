package media

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/dmitrijs2005/ankisync/internal/client/migrations"
	"github.com/dmitrijs2005/ankisync/internal/client/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "media.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, migrations.Apply(context.Background(), db, migrations.MediaDir))
	return db
}

func TestUpsertAndGet(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	missing, err := r.Get(ctx, "a.jpg")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, r.Upsert(ctx, models.MediaEntry{Fname: "a.jpg", Csum: "abc", Mtime: 10, Dirty: true}))
	require.NoError(t, r.Upsert(ctx, models.MediaEntry{Fname: "gone.mp3", Mtime: 11, Dirty: true}))

	got, err := r.Get(ctx, "gone.mp3")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Deleted())

	present, err := r.CountPresent(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), present)

	require.NoError(t, r.Upsert(ctx, models.MediaEntry{Fname: "a.jpg", Csum: "def", Mtime: 12}))
	got, err = r.Get(ctx, "a.jpg")
	require.NoError(t, err)
	assert.Equal(t, models.MediaEntry{Fname: "a.jpg", Csum: "def", Mtime: 12}, *got)
}

func TestDirtyPagingAndMarkClean(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	for _, name := range []string{"c", "a", "b"} {
		require.NoError(t, r.Upsert(ctx, models.MediaEntry{Fname: name, Csum: "x", Dirty: true}))
	}

	page, err := r.Dirty(ctx, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "a", page[0].Fname)
	assert.Equal(t, "b", page[1].Fname)

	require.NoError(t, r.MarkClean(ctx, []string{"a", "b"}))
	n, err := r.CountDirty(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, r.Delete(ctx, "c"))
	all, err := r.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestMarkSent_MatchesChecksum(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, models.MediaEntry{Fname: "same", Csum: "x", Dirty: true}))
	require.NoError(t, r.Upsert(ctx, models.MediaEntry{Fname: "edited", Csum: "new", Dirty: true}))
	require.NoError(t, r.Upsert(ctx, models.MediaEntry{Fname: "gone", Dirty: true}))

	require.NoError(t, r.MarkSent(ctx, []models.MediaEntry{
		{Fname: "same", Csum: "x"},
		{Fname: "edited", Csum: "old"},
		{Fname: "gone"},
	}))

	dirty, err := r.Dirty(ctx, 10)
	require.NoError(t, err)
	require.Len(t, dirty, 1)
	assert.Equal(t, "edited", dirty[0].Fname)
}

func TestMetaAndForceResync(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	usn, err := r.LastUsn(ctx)
	require.NoError(t, err)
	assert.Zero(t, usn)

	require.NoError(t, r.SetLastUsn(ctx, 41))
	require.NoError(t, r.SetDirMod(ctx, 1700000000))
	require.NoError(t, r.Upsert(ctx, models.MediaEntry{Fname: "a", Csum: "x"}))

	usn, err = r.LastUsn(ctx)
	require.NoError(t, err)
	assert.Equal(t, 41, usn)

	require.NoError(t, r.ForceResync(ctx))

	usn, err = r.LastUsn(ctx)
	require.NoError(t, err)
	assert.Zero(t, usn)
	mod, err := r.DirMod(ctx)
	require.NoError(t, err)
	assert.Zero(t, mod)
	all, err := r.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}
