// Package mediasync reconciles the local media folder with the media server:
// pull the server change log, fetch what changed remotely, push what changed
// locally, then compare file counts.
package mediasync

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/ankisync/internal/client/client"
	"github.com/dmitrijs2005/ankisync/internal/client/models"
	"github.com/dmitrijs2005/ankisync/internal/common"
	"github.com/dmitrijs2005/ankisync/internal/logging"
)

// DefaultMaxRestarts bounds how often a sync starts over after racing with
// another client's upload.
const DefaultMaxRestarts = 5

type Result int

const (
	NoChanges Result = iota
	Success
)

func (r Result) String() string {
	switch r {
	case NoChanges:
		return "noChanges"
	case Success:
		return "success"
	}
	return fmt.Sprintf("Result(%d)", int(r))
}

// Store is the part of the local media store a sync needs.
type Store interface {
	FindChanges(ctx context.Context, force bool) error
	SyncInfo(ctx context.Context, fname string) (string, bool, error)
	MarkClean(ctx context.Context, fnames []string) error
	MarkSent(ctx context.Context, sent []models.MediaEntry) error
	SyncDelete(ctx context.Context, fname string) error
	LastUsn(ctx context.Context) (int, error)
	SetLastUsn(ctx context.Context, usn int) error
	HaveDirty(ctx context.Context) (bool, error)
	Count(ctx context.Context) (int64, error)
	ForceResync(ctx context.Context) error
	ChangesZip(ctx context.Context) ([]byte, []models.MediaEntry, error)
	AddFilesFromZip(ctx context.Context, data []byte) (int, error)
}

// Stats counts files moved by the last Sync.
type Stats struct {
	Downloaded int
	Uploaded   int
	Deleted    int
	Restarts   int
}

type Options struct {
	Logger logging.Logger
	// MaxRestarts defaults to DefaultMaxRestarts.
	MaxRestarts int
	OnProgress  func(Stats)
}

// Syncer is not safe for concurrent use.
type Syncer struct {
	store       Store
	server      client.MediaServer
	log         logging.Logger
	maxRestarts int
	onProgress  func(Stats)

	stats Stats
}

func New(store Store, server client.MediaServer, opts Options) *Syncer {
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.MaxRestarts <= 0 {
		opts.MaxRestarts = DefaultMaxRestarts
	}
	return &Syncer{
		store:       store,
		server:      server,
		log:         opts.Logger,
		maxRestarts: opts.MaxRestarts,
		onProgress:  opts.OnProgress,
	}
}

func (s *Syncer) Stats() Stats { return s.stats }

func (s *Syncer) progress() {
	if s.onProgress != nil {
		s.onProgress(s.stats)
	}
}

func checkpoint(ctx context.Context) error {
	if ctx.Err() != nil {
		return common.ErrUserAborted
	}
	return nil
}

// errRestart means an upload raced with another client and the server log
// moved past what was pulled.
var errRestart = errors.New("media changed on the server during sync")

// Sync runs passes until one completes without a race, up to the restart
// limit.
func (s *Syncer) Sync(ctx context.Context) (Result, error) {
	s.stats = Stats{}

	// skipped by the store when the folder mtime has not moved
	if err := s.store.FindChanges(ctx, false); err != nil {
		if ctx.Err() != nil {
			return 0, common.ErrUserAborted
		}
		return 0, fmt.Errorf("%w: %w", common.ErrCorrupt, err)
	}

	for {
		res, err := s.pass(ctx)
		if !errors.Is(err, errRestart) {
			return res, err
		}
		if s.stats.Restarts >= s.maxRestarts {
			return 0, common.ErrMediaRestartLimit
		}
		s.stats.Restarts++
		s.log.Info(ctx, "media sync restarting", "restart", s.stats.Restarts)
	}
}

func (s *Syncer) pass(ctx context.Context) (Result, error) {
	if err := checkpoint(ctx); err != nil {
		return 0, err
	}
	lastUsn, err := s.store.LastUsn(ctx)
	if err != nil {
		return 0, err
	}
	begin, err := s.server.Begin(ctx)
	if err != nil {
		return 0, err
	}
	dirty, err := s.store.HaveDirty(ctx)
	if err != nil {
		return 0, err
	}
	s.log.Debug(ctx, "media sync begin", "local_usn", lastUsn, "server_usn", begin.Usn, "dirty", dirty)
	if lastUsn == begin.Usn && !dirty {
		return NoChanges, nil
	}

	if lastUsn, err = s.pull(ctx, lastUsn); err != nil {
		return 0, err
	}
	if err := s.push(ctx, lastUsn); err != nil {
		return 0, err
	}
	if err := s.sanity(ctx); err != nil {
		return 0, err
	}
	return Success, nil
}

// pull applies the server change log after lastUsn and returns the new
// last USN.
func (s *Syncer) pull(ctx context.Context, lastUsn int) (int, error) {
	for {
		if err := checkpoint(ctx); err != nil {
			return 0, err
		}
		changes, err := s.server.MediaChanges(ctx, lastUsn)
		if err != nil {
			return 0, err
		}
		if len(changes) == 0 {
			return lastUsn, nil
		}

		var fetch []string
		for _, c := range changes {
			lsum, ldirty, err := s.store.SyncInfo(ctx, c.Fname)
			if err != nil {
				return 0, err
			}
			switch {
			case c.Csum != "":
				if lsum != c.Csum {
					fetch = append(fetch, c.Fname)
				}
				if err := s.store.MarkClean(ctx, []string{c.Fname}); err != nil {
					return 0, err
				}
			case lsum != "":
				if ldirty {
					// local edit wins; it goes up in push
					continue
				}
				if err := s.store.SyncDelete(ctx, c.Fname); err != nil {
					return 0, err
				}
				s.stats.Deleted++
			default:
				if err := s.store.MarkClean(ctx, []string{c.Fname}); err != nil {
					return 0, err
				}
			}
		}

		if err := s.download(ctx, fetch); err != nil {
			return 0, err
		}
		lastUsn = changes[len(changes)-1].Usn
		if err := s.store.SetLastUsn(ctx, lastUsn); err != nil {
			return 0, err
		}
	}
}

func (s *Syncer) download(ctx context.Context, fnames []string) error {
	for len(fnames) > 0 {
		if err := checkpoint(ctx); err != nil {
			return err
		}
		batch := fnames[:min(len(fnames), common.SyncZipCount)]
		data, err := s.server.DownloadFiles(ctx, batch)
		if err != nil {
			return err
		}
		n, err := s.store.AddFilesFromZip(ctx, data)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: downloadFiles returned no files for %v", common.ErrMediaServer, batch)
		}
		fnames = fnames[min(n, len(fnames)):]
		s.stats.Downloaded += n
		s.progress()
	}
	return nil
}

// push uploads dirty entries until none are left. The local USN only
// follows the server when nobody else changed the log in between.
func (s *Syncer) push(ctx context.Context, lastUsn int) error {
	raced := false
	for {
		data, sent, err := s.store.ChangesZip(ctx)
		if err != nil {
			return err
		}
		if len(sent) == 0 {
			break
		}
		if err := checkpoint(ctx); err != nil {
			return err
		}
		processed, serverUsn, err := s.server.UploadChanges(ctx, data)
		if err != nil {
			return err
		}
		if processed <= 0 {
			return fmt.Errorf("%w: uploadChanges processed nothing", common.ErrMediaServer)
		}
		// files edited during the upload keep their dirty flag
		if err := s.store.MarkSent(ctx, sent[:min(processed, len(sent))]); err != nil {
			return err
		}
		s.stats.Uploaded += processed
		s.progress()

		if serverUsn-processed == lastUsn {
			lastUsn = serverUsn
			if err := s.store.SetLastUsn(ctx, lastUsn); err != nil {
				return err
			}
		} else {
			raced = true
		}
	}
	if raced {
		return errRestart
	}
	return nil
}

func (s *Syncer) sanity(ctx context.Context) error {
	if err := checkpoint(ctx); err != nil {
		return err
	}
	n, err := s.store.Count(ctx)
	if err != nil {
		return err
	}
	reply, err := s.server.MediaSanity(ctx, n)
	if err != nil {
		return err
	}
	if reply == common.StatusOK {
		return nil
	}
	s.log.Warn(ctx, "media sanity check failed, forcing full media resync", "local", n, "reply", reply)
	if err := s.store.ForceResync(ctx); err != nil {
		return err
	}
	return &common.MediaSanityError{Reply: reply}
}
