package endpoint

import (
	"context"
	"database/sql"
	"testing"

	"github.com/dmitrijs2005/ankisync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/ankisync/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupPrefs(t *testing.T) *metadata.SQLiteRepository {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(`CREATE TABLE metadata (key TEXT PRIMARY KEY, value BLOB NOT NULL)`)
	require.NoError(t, err)
	return metadata.NewSQLiteRepository(db)
}

func TestDefaultURLs(t *testing.T) {
	e := New()

	u, err := e.CollectionURL()
	require.NoError(t, err)
	assert.Equal(t, "https://sync.ankiweb.net/sync/", u)

	e.SetHostNum(3)
	u, err = e.CollectionURL()
	require.NoError(t, err)
	assert.Equal(t, "https://sync3.ankiweb.net/sync/", u)
	u, err = e.MediaURL()
	require.NoError(t, err)
	assert.Equal(t, "https://sync3.ankiweb.net/msync/", u)

	e.Reset()
	u, err = e.MediaURL()
	require.NoError(t, err)
	assert.Equal(t, "https://sync.ankiweb.net/msync/", u)
}

func TestCustomURLs(t *testing.T) {
	tests := []struct {
		name      string
		custom    string
		wantColl  string
		wantMedia string
	}{
		{"sync suffix", "https://anki.example.com/sync/", "https://anki.example.com/sync/", "https://anki.example.com/msync/"},
		{"no trailing slash", "http://10.0.0.2:8080/sync", "http://10.0.0.2:8080/sync/", "http://10.0.0.2:8080/msync/"},
		{"bare root", "https://anki.example.com", "https://anki.example.com/", "https://anki.example.com/msync/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New()
			e.SetHostNum(5)
			require.NoError(t, e.SetCustomURL(tt.custom))

			_, ok := e.HostNum()
			assert.False(t, ok, "server change resets host number")

			u, err := e.CollectionURL()
			require.NoError(t, err)
			assert.Equal(t, tt.wantColl, u)
			u, err = e.MediaURL()
			require.NoError(t, err)
			assert.Equal(t, tt.wantMedia, u)
		})
	}
}

func TestCustomMediaURLOverride(t *testing.T) {
	e := New()
	require.NoError(t, e.SetCustomURL("https://a.example.com/sync/"))
	require.NoError(t, e.SetCustomMediaURL("https://media.example.com/m/"))

	u, err := e.MediaURL()
	require.NoError(t, err)
	assert.Equal(t, "https://media.example.com/m/", u)
}

func TestBadCustomURL(t *testing.T) {
	for _, raw := range []string{"anki.example.com/sync", "ftp://x/", "http://", "http://bad host/"} {
		err := New().SetCustomURL(raw)
		assert.ErrorIs(t, err, common.ErrCustomSyncServerURL, raw)
	}
}

func TestLoadSaveRoundTrip(t *testing.T) {
	ctx := context.Background()
	prefs := setupPrefs(t)

	e := New()
	require.NoError(t, e.SetCustomURL("https://anki.example.com/sync/"))
	e.SetHostNum(2)
	require.NoError(t, e.Save(ctx, prefs))

	loaded := New()
	require.NoError(t, loaded.Load(ctx, prefs))
	assert.Equal(t, "https://anki.example.com/sync/", loaded.CustomURL())
	n, ok := loaded.HostNum()
	assert.True(t, ok)
	assert.Equal(t, 2, n)

	loaded.Reset()
	require.NoError(t, loaded.Save(ctx, prefs))
	_, ok, err := prefs.GetInt(ctx, metadata.KeyHostNum)
	require.NoError(t, err)
	assert.False(t, ok)
}
