package cli

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/ankisync/internal/client/config"
	"github.com/dmitrijs2005/ankisync/internal/client/media"
	"github.com/dmitrijs2005/ankisync/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewApp_Wiring(t *testing.T) {
	ctx := context.Background()
	c := &config.Config{
		DataDir:      t.TempDir(),
		SyncURL:      "https://anki.example.com/sync/",
		MediaEnabled: true,
		Compress:     true,
		BackupKeep:   2,
	}

	a, err := NewApp(ctx, c)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	require.NotNil(t, a.mediaStore)
	st, err := a.authService.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.LoggedIn)
	assert.Equal(t, "https://anki.example.com/sync/", st.ServerURL)

	for _, p := range []string{c.CollectionPath(), c.MediaDir(), c.MediaDBPath()} {
		_, err := os.Stat(p)
		assert.NoError(t, err, p)
	}
}

func TestNewApp_MediaDisabled(t *testing.T) {
	a, err := NewApp(context.Background(), &config.Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	assert.Nil(t, a.mediaStore)
	require.NoError(t, a.Close())
	require.NoError(t, a.Close(), "second close is a no-op")
}

// slowWatcher lingers after cancellation and then uses the store, the way a
// watcher finishing a Touch does.
type slowWatcher struct {
	store *media.Store
	done  atomic.Bool
	err   error
}

func (w *slowWatcher) Run(ctx context.Context) error {
	<-ctx.Done()
	time.Sleep(50 * time.Millisecond)
	_, w.err = w.store.DirtyCount(context.Background())
	w.done.Store(true)
	return nil
}

func TestRun_StopsWatcherBeforeClosing(t *testing.T) {
	a, err := NewApp(context.Background(), &config.Config{DataDir: t.TempDir(), MediaEnabled: true})
	require.NoError(t, err)

	w := &slowWatcher{store: a.mediaStore}
	orig := newWatcher
	newWatcher = func(*media.Store, logging.Logger) (watcher, error) { return w, nil }
	t.Cleanup(func() { newWatcher = orig })

	var out bytes.Buffer
	a.out = &out
	a.reader = bufio.NewReader(strings.NewReader("exit\n"))
	lines := capturePrints(t)

	a.Run(context.Background())

	assert.True(t, w.done.Load(), "watcher joined")
	assert.NoError(t, w.err, "store still open while the watcher ran")
	assert.Nil(t, a.closers)
	assert.Contains(t, *lines, "Bye!")
}
