// Package fullsync replaces the whole collection in one direction: the
// server copy over the local file, or the local file over the server copy.
package fullsync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/dmitrijs2005/ankisync/internal/client/backup"
	"github.com/dmitrijs2005/ankisync/internal/client/client"
	"github.com/dmitrijs2005/ankisync/internal/client/collection"
	"github.com/dmitrijs2005/ankisync/internal/common"
	"github.com/dmitrijs2005/ankisync/internal/filex"
	"github.com/dmitrijs2005/ankisync/internal/logging"
	"github.com/spf13/afero"
)

type Options struct {
	// Fs must be the file system the collection lives on. Defaults to the
	// OS file system.
	Fs     afero.Fs
	Backup backup.Sink
	Logger logging.Logger
}

type FullSyncer struct {
	col    *collection.Collection
	server client.CollectionServer
	fs     afero.Fs
	sink   backup.Sink
	log    logging.Logger
}

func New(col *collection.Collection, server client.CollectionServer, opts Options) *FullSyncer {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	return &FullSyncer{col: col, server: server, fs: opts.Fs, sink: opts.Backup, log: opts.Logger}
}

func aborted(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return common.ErrUserAborted
	}
	return err
}

// Download fetches the server collection and swaps it in for the local one.
// The local file is left untouched unless the download is complete and
// verifies as a collection this client can open.
func (f *FullSyncer) Download(ctx context.Context) (int64, error) {
	if ctx.Err() != nil {
		return 0, common.ErrUserAborted
	}
	tmp, err := filex.TempFile(f.fs, filepath.Dir(f.col.Path()), "collection-*.download")
	if err != nil {
		return 0, fmt.Errorf("%w: %w", common.ErrSDAccess, err)
	}
	defer filex.CloseAndRemove(f.fs, tmp)

	n, err := f.server.Download(ctx, tmp)
	if err != nil {
		return 0, aborted(ctx, err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("%w: %w", common.ErrSDAccess, err)
	}
	f.log.Debug(ctx, "collection downloaded", "bytes", n)

	if upgrade, err := f.upgradeRequired(tmp.Name(), n); err != nil {
		return 0, err
	} else if upgrade {
		return 0, common.ErrUpgradeRequired
	}

	if err := collection.VerifyFile(ctx, tmp.Name()); err != nil {
		return 0, fmt.Errorf("%w: %w", common.ErrRemoteDB, err)
	}

	if f.sink != nil {
		if err := f.sink.Save(ctx, f.col.Path()); err != nil {
			return 0, fmt.Errorf("failed to back up collection before download: %w", err)
		}
	}

	if err := f.col.Reopen(ctx, func() error {
		return filex.Replace(f.fs, tmp.Name(), f.col.Path())
	}); err != nil {
		return 0, fmt.Errorf("%w: %w", common.ErrDB, err)
	}
	f.log.Info(ctx, "collection replaced by server copy", "bytes", n)
	return n, nil
}

func (f *FullSyncer) upgradeRequired(path string, size int64) (bool, error) {
	if size != int64(len(common.UpgradeRequiredBody)) {
		return false, nil
	}
	b, err := afero.ReadFile(f.fs, path)
	if err != nil {
		return false, fmt.Errorf("%w: %w", common.ErrSDAccess, err)
	}
	return bytes.Equal(b, []byte(common.UpgradeRequiredBody)), nil
}

// Upload marks every row synced and sends the local file. The transport
// gzips the body.
func (f *FullSyncer) Upload(ctx context.Context) (int64, error) {
	if ctx.Err() != nil {
		return 0, common.ErrUserAborted
	}
	if err := collection.IntegrityCheck(ctx, f.col.DB()); err != nil {
		return 0, fmt.Errorf("%w: %w", common.ErrBasicCheckFailed, err)
	}
	err := f.col.WithTx(ctx, func(ctx context.Context, st *collection.Store) error {
		if err := st.BasicCheck(ctx); err != nil {
			return err
		}
		return st.MarkAllSynced(ctx)
	})
	if errors.Is(err, common.ErrBasicCheckFailed) {
		return 0, err
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %w", common.ErrDB, err)
	}

	file, err := f.fs.Open(f.col.Path())
	if err != nil {
		return 0, fmt.Errorf("%w: %w", common.ErrSDAccess, err)
	}
	defer file.Close()
	cr := &countingReader{r: file}

	reply, err := f.server.Upload(ctx, cr)
	if err != nil {
		return 0, aborted(ctx, err)
	}
	if reply != common.StatusOK {
		return 0, fmt.Errorf("%w: server replied %q", common.ErrOverwrite, reply)
	}
	f.log.Info(ctx, "collection uploaded", "bytes", cr.n)
	return cr.n, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
