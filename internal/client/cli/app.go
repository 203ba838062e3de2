package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/dmitrijs2005/ankisync/internal/client/backup"
	"github.com/dmitrijs2005/ankisync/internal/client/client"
	"github.com/dmitrijs2005/ankisync/internal/client/collection"
	"github.com/dmitrijs2005/ankisync/internal/client/config"
	"github.com/dmitrijs2005/ankisync/internal/client/endpoint"
	"github.com/dmitrijs2005/ankisync/internal/client/media"
	"github.com/dmitrijs2005/ankisync/internal/client/mediawatch"
	"github.com/dmitrijs2005/ankisync/internal/client/services"
	"github.com/dmitrijs2005/ankisync/internal/client/syncer"
	"github.com/dmitrijs2005/ankisync/internal/client/transport"
	"github.com/dmitrijs2005/ankisync/internal/logging"
	"github.com/dmitrijs2005/ankisync/internal/netx"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
)

type App struct {
	config      *config.Config
	authService services.AuthService
	syncService services.SyncService
	mediaStore  *media.Store
	log         logging.Logger
	userName    string
	loggedIn    bool
	reader      *bufio.Reader
	out         io.Writer
	closers     []io.Closer
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	if err := os.MkdirAll(c.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	logger, logCloser := logging.NewFileLogger(logging.FileOptions{
		Path:       c.LogPath(),
		MaxSizeMB:  10,
		MaxBackups: 3,
		Debug:      c.Debug,
	})
	app := &App{config: c, log: logger, reader: bufio.NewReader(os.Stdin), out: os.Stdout, closers: []io.Closer{logCloser}}

	if err := app.wire(ctx); err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) wire(ctx context.Context) error {
	c := a.config
	clock := clockwork.NewRealClock()

	col, err := collection.Open(ctx, c.CollectionPath(), clock)
	if err != nil {
		return fmt.Errorf("error opening collection: %w", err)
	}
	a.closers = append(a.closers, col)

	ep := endpoint.New()
	if err := ep.Load(ctx, col.Store().Prefs); err != nil {
		return err
	}

	if c.MediaEnabled {
		store, err := media.Open(ctx, c.MediaDir(), c.MediaDBPath(), media.Options{Logger: a.log})
		if err != nil {
			return fmt.Errorf("error opening media store: %w", err)
		}
		a.mediaStore = store
		a.closers = append(a.closers, store)
	}

	httpClient := netx.NewHTTPClient(c.HTTPTimeout)
	fs := afero.NewOsFs()
	sinks := backup.Multi{backup.NewLocalSink(fs, c.BackupDir(), c.BackupKeep, clock)}
	if c.S3.Bucket != "" {
		sinks = append(sinks, backup.NewS3Sink(backup.S3Config{
			Bucket:    c.S3.Bucket,
			Region:    c.S3.Region,
			Endpoint:  c.S3.Endpoint,
			AccessKey: c.S3.AccessKey,
			SecretKey: c.S3.SecretKey,
		}, fs, httpClient, clock))
	}

	tr, err := transport.New(ep.CollectionURL, transport.Options{Client: httpClient, Fs: fs, Logger: a.log})
	if err != nil {
		return err
	}
	a.authService = services.NewAuthService(col, ep, client.NewCollectionServer(tr, c.Compress))
	deps := services.SyncDeps{
		Collection: col,
		Media:      a.mediaStore,
		Endpoint:   ep,
		Backup:     sinks,
		Logger:     a.log,
		HTTPClient: httpClient,
		Fs:         fs,
		Compress:   c.Compress,
		OnStage:    a.printStage,
	}
	a.syncService = services.NewSyncService(deps)

	if c.SyncURL != "" {
		if err := a.authService.SetServer(ctx, c.SyncURL); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) printStage(st syncer.Stage) {
	fmt.Fprintf(a.out, "  %s...\n", st)
}

// Close releases the collection, the media store and the log file.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	a.closers = nil
	return errors.Join(errs...)
}

type watcher interface {
	Run(ctx context.Context) error
}

var newWatcher = func(store *media.Store, log logging.Logger) (watcher, error) {
	return mediawatch.New(store, store.Dir(), log)
}

// Run starts the media watcher and blocks in the REPL until the user exits
// or ctx is done. The watcher is stopped before the stores are closed.
func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
		_ = a.Close()
	}()

	if a.mediaStore != nil {
		w, err := newWatcher(a.mediaStore, a.log)
		if err != nil {
			a.log.Warn(ctx, "media watcher disabled", "error", err)
		} else {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := w.Run(ctx); err != nil {
					a.log.Warn(ctx, "media watcher stopped", "error", err)
				}
			}()
		}
	}

	fmt.Fprintln(a.out, "Welcome to ankisync (type 'help' for commands)")
	a.refreshStatus(ctx)
	runREPL(ctx, a, a.getStatus, a.reader)
}

func (a *App) isLoggedIn() bool {
	return a.loggedIn
}

func (a *App) refreshStatus(ctx context.Context) {
	st, err := a.authService.Status(ctx)
	if err != nil {
		a.log.Warn(ctx, "failed to read login state", "error", err)
		return
	}
	a.loggedIn, a.userName = st.LoggedIn, st.UserName
}

func (a *App) getStatus() string {
	if !a.loggedIn {
		return ""
	}
	return fmt.Sprintf("(%s)", a.userName)
}
