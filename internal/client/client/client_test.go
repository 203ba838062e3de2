package client

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http/httptest"
	"testing"

	"github.com/dmitrijs2005/ankisync/internal/client/models"
	"github.com/dmitrijs2005/ankisync/internal/client/synctest"
	"github.com/dmitrijs2005/ankisync/internal/client/transport"
	"github.com/dmitrijs2005/ankisync/internal/common"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/segmentio/encoding/json"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTransport(t *testing.T, base string) *transport.Transport {
	t.Helper()
	tr, err := transport.New(func() (string, error) { return base, nil }, transport.Options{Fs: afero.NewMemMapFs()})
	require.NoError(t, err)
	return tr
}

func newEcho(t *testing.T, e *echo.Echo) string {
	t.Helper()
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv.URL
}

func loggedIn(t *testing.T, srv *synctest.Server, compress bool) *HTTPCollectionServer {
	t.Helper()
	c := NewCollectionServer(newTransport(t, srv.URL()), compress)
	_, err := c.HostKey(context.Background(), "user", "pass")
	require.NoError(t, err)
	return c
}

func TestHostKey(t *testing.T) {
	srv := synctest.New(t, nil)
	tr := newTransport(t, srv.URL())
	c := NewCollectionServer(tr, true)

	key, err := c.HostKey(context.Background(), "user", "pass")
	require.NoError(t, err)
	assert.Equal(t, "hostkey-1", key)
	assert.Equal(t, key, tr.HostKey())

	_, err = c.HostKey(context.Background(), "user", "wrong")
	require.ErrorIs(t, err, common.ErrBadAuth)
	assert.Empty(t, tr.HostKey())
}

func TestMeta(t *testing.T) {
	clock := clockwork.NewFakeClock()
	srv := synctest.New(t, clock)
	host := 3
	srv.With(func(st *synctest.State) {
		st.Msg = "hello"
		st.HostNum = &host
		st.Col.Usn = 7
	})
	c := loggedIn(t, srv, false)

	meta, err := c.Meta(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, meta.Usn)
	assert.Equal(t, clock.Now().Unix(), meta.Ts)
	assert.True(t, meta.Cont)
	assert.Equal(t, "hello", meta.Msg)
	require.NotNil(t, meta.HostNum)
	assert.Equal(t, 3, *meta.HostNum)
}

func TestMeta_BadAuth(t *testing.T) {
	srv := synctest.New(t, nil)
	tr := newTransport(t, srv.URL())
	tr.SetHostKey("stale")

	_, err := NewCollectionServer(tr, false).Meta(context.Background())
	require.ErrorIs(t, err, common.ErrBadAuth)
}

func TestMeta_InvalidResponseIsRemoteDBError(t *testing.T) {
	e := echo.New()
	e.POST("/sync/meta", func(c echo.Context) error {
		return c.String(200, `{"mod":1,"scm":1,"usn":0,"ts":0,"cont":true}`)
	})
	e.POST("/sync/chunk", func(c echo.Context) error {
		return c.String(200, `not json`)
	})
	srv := newEcho(t, e)
	c := NewCollectionServer(newTransport(t, srv+"/sync/"), false)

	_, err := c.Meta(context.Background())
	require.ErrorIs(t, err, common.ErrRemoteDB)
	assert.Contains(t, err.Error(), `"ts"`)

	_, err = c.Chunk(context.Background())
	require.ErrorIs(t, err, common.ErrRemoteDB)
}

func TestStartAndChunkRoundTrip(t *testing.T) {
	srv := synctest.New(t, nil)
	srv.With(func(st *synctest.State) {
		st.Col.Cards[5] = synctest.Card(5, 1, 100, 2)
		st.Col.Notes[1] = synctest.Note(1, 100, 2, "a\x1fb")
		st.Col.Graves = []models.Grave{{Oid: 9, Type: models.GraveCard, Usn: 3}}
	})
	c := loggedIn(t, srv, true)
	ctx := context.Background()

	_, err := c.Meta(ctx)
	require.NoError(t, err)
	graves, err := c.Start(ctx, 0, false, models.Graves{Cards: []int64{}, Notes: []int64{42}, Decks: []int64{}})
	require.NoError(t, err)
	assert.Equal(t, []int64{9}, graves.Cards)

	_, err = c.ApplyChanges(ctx, models.Changes{Tags: []string{}})
	require.NoError(t, err)
	chunk, err := c.Chunk(ctx)
	require.NoError(t, err)
	assert.True(t, chunk.Done)
	require.Len(t, chunk.Cards, 1)
	require.Len(t, chunk.Notes, 1)
	assert.Equal(t, "a\x1fb", chunk.Notes[0].Fields)

	require.NoError(t, c.ApplyChunk(ctx, models.Chunk{Done: true, Cards: []models.Card{synctest.Card(6, 1, 100, 0)}}))

	srv.With(func(st *synctest.State) {
		_, ok := st.Col.Cards[6]
		assert.True(t, ok)
	})
}

func TestSanityAndFinish(t *testing.T) {
	srv := synctest.New(t, nil)
	c := loggedIn(t, srv, false)
	ctx := context.Background()

	resp, err := c.SanityCheck(ctx, models.SanityCounts{Decks: 1, DeckConfigs: 1})
	require.NoError(t, err)
	assert.True(t, resp.OK())

	resp, err = c.SanityCheck(ctx, models.SanityCounts{Cards: 3, Decks: 1, DeckConfigs: 1})
	require.NoError(t, err)
	assert.False(t, resp.OK())
	assert.NotEmpty(t, resp.Server)

	mod, err := c.Finish(ctx)
	require.NoError(t, err)
	assert.NotZero(t, mod)
	require.NoError(t, c.Abort(ctx))
}

func TestFullTransfer(t *testing.T) {
	srv := synctest.New(t, nil)
	srv.With(func(st *synctest.State) { st.Col.File = []byte("SQLite format 3\x00...") })
	c := loggedIn(t, srv, true)
	ctx := context.Background()

	var buf bytes.Buffer
	n, err := c.Download(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)
	assert.Equal(t, "SQLite format 3\x00...", buf.String())

	reply, err := c.Upload(ctx, bytes.NewReader([]byte("new file")))
	require.NoError(t, err)
	assert.Equal(t, common.StatusOK, reply)
	srv.With(func(st *synctest.State) { assert.Equal(t, "new file", string(st.Col.File)) })
}

func TestMedia_BeginUsesHostKeyThenSessionKey(t *testing.T) {
	srv := synctest.New(t, nil)
	srv.With(func(st *synctest.State) { st.Media.Put("a.png", []byte("png")) })
	tr := newTransport(t, srv.MediaURL())
	m := NewMediaServer(tr, "hostkey-1", false)
	ctx := context.Background()

	begin, err := m.Begin(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sk-1", begin.SessionKey)
	assert.Equal(t, 1, begin.Usn)

	changes, err := m.MediaChanges(ctx, 0)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "a.png", changes[0].Fname)
	assert.NotEmpty(t, changes[0].Csum)

	z, err := m.DownloadFiles(ctx, []string{"a.png"})
	require.NoError(t, err)
	zr, err := zip.NewReader(bytes.NewReader(z), int64(len(z)))
	require.NoError(t, err)
	assert.Len(t, zr.File, 2)

	reply, err := m.MediaSanity(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, common.StatusOK, reply)
}

func TestMedia_BadHostKey(t *testing.T) {
	srv := synctest.New(t, nil)
	m := NewMediaServer(newTransport(t, srv.MediaURL()), "nope", false)

	_, err := m.Begin(context.Background())
	require.ErrorIs(t, err, common.ErrBadAuth)
}

func TestMedia_EnvelopeError(t *testing.T) {
	srv := synctest.New(t, nil)
	srv.With(func(st *synctest.State) { st.Media.Err["mediaChanges"] = "overloaded" })
	m := NewMediaServer(newTransport(t, srv.MediaURL()), "hostkey-1", false)
	ctx := context.Background()

	_, err := m.Begin(ctx)
	require.NoError(t, err)
	_, err = m.MediaChanges(ctx, 0)

	var mse *common.MediaServerError
	require.ErrorAs(t, err, &mse)
	assert.Equal(t, "mediaChanges", mse.Verb)
	assert.Equal(t, "overloaded", mse.Message)
}

func TestMedia_UploadChanges(t *testing.T) {
	srv := synctest.New(t, nil)
	m := NewMediaServer(newTransport(t, srv.MediaURL()), "hostkey-1", true)
	ctx := context.Background()
	_, err := m.Begin(ctx)
	require.NoError(t, err)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("0")
	require.NoError(t, err)
	_, err = w.Write([]byte("hello"))
	require.NoError(t, err)
	meta, err := json.Marshal([][]string{{"hello.txt", "0"}, {"gone.txt", ""}})
	require.NoError(t, err)
	w, err = zw.Create("_meta")
	require.NoError(t, err)
	_, err = w.Write(meta)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	processed, lastUsn, err := m.UploadChanges(ctx, buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 2, processed)
	assert.Equal(t, 2, lastUsn)
	srv.With(func(st *synctest.State) {
		assert.Equal(t, "hello", string(st.Media.Files["hello.txt"]))
	})
}
