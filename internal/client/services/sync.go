package services

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/ankisync/internal/client/backup"
	"github.com/dmitrijs2005/ankisync/internal/client/client"
	"github.com/dmitrijs2005/ankisync/internal/client/collection"
	"github.com/dmitrijs2005/ankisync/internal/client/endpoint"
	"github.com/dmitrijs2005/ankisync/internal/client/fullsync"
	"github.com/dmitrijs2005/ankisync/internal/client/media"
	"github.com/dmitrijs2005/ankisync/internal/client/mediasync"
	"github.com/dmitrijs2005/ankisync/internal/client/syncer"
	"github.com/dmitrijs2005/ankisync/internal/client/transport"
	"github.com/dmitrijs2005/ankisync/internal/logging"
	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// Direction picks which side wins a full sync.
type Direction string

const (
	Download Direction = "download"
	Upload   Direction = "upload"
)

// SyncService runs syncs for the logged-in user.
//
// Contract:
//   - Sync: incremental collection sync, then media when enabled. A
//     syncer.FullSync result is returned as is; the caller picks a Direction.
//   - FullSync: replace one side with the other, then media when enabled.
//   - Media: media sync only.
type SyncService interface {
	Sync(ctx context.Context) (*Report, error)
	FullSync(ctx context.Context, dir Direction) (*Report, error)
	Media(ctx context.Context) (*Report, error)
}

// Report describes one sync run. Byte counts include request and response
// headers, as the transport counts them.
type Report struct {
	ID          string
	Collection  syncer.Result
	Media       mediasync.Result
	MediaSynced bool
	MediaStats  mediasync.Stats
	// Message is the server's meta message, shown to the user as is.
	Message    string
	Downloaded int64
	Uploaded   int64
}

type SyncDeps struct {
	Collection *collection.Collection
	// Media is nil when media sync is disabled.
	Media    *media.Store
	Endpoint *endpoint.Endpoint
	Backup   backup.Sink
	Logger   logging.Logger

	HTTPClient *http.Client
	// Fs holds transport spool files.
	Fs         afero.Fs
	Compress   bool
	OnStage    func(syncer.Stage)
	OnProgress transport.ProgressFunc
}

type syncService struct {
	d SyncDeps
}

func NewSyncService(d SyncDeps) SyncService {
	if d.Logger == nil {
		d.Logger = logging.Nop()
	}
	return &syncService{d: d}
}

// session is the per-run state: an id for the log and the transports whose
// counters end up in the report.
type session struct {
	key    string
	log    logging.Logger
	report *Report
	used   []*transport.Transport
}

func (s *syncService) begin(ctx context.Context) (*session, error) {
	key, err := hostKey(ctx, s.d.Collection.Store().Prefs)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	return &session{
		key:    key,
		log:    s.d.Logger.With("sync_id", id),
		report: &Report{ID: id},
	}, nil
}

func (s *syncService) transport(sess *session, base transport.BaseURLFunc) (*transport.Transport, error) {
	tr, err := transport.New(base, transport.Options{
		Client:   s.d.HTTPClient,
		Fs:       s.d.Fs,
		Progress: s.d.OnProgress,
		Logger:   sess.log,
	})
	if err != nil {
		return nil, err
	}
	sess.used = append(sess.used, tr)
	return tr, nil
}

func (s *syncService) collectionServer(sess *session) (*client.HTTPCollectionServer, error) {
	tr, err := s.transport(sess, s.d.Endpoint.CollectionURL)
	if err != nil {
		return nil, err
	}
	tr.SetHostKey(sess.key)
	return client.NewCollectionServer(tr, s.d.Compress), nil
}

func (sess *session) done() *Report {
	for _, tr := range sess.used {
		sent, received := tr.Counters()
		sess.report.Uploaded += sent
		sess.report.Downloaded += received
	}
	sess.used = nil
	return sess.report
}

func (s *syncService) Sync(ctx context.Context) (*Report, error) {
	sess, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	srv, err := s.collectionServer(sess)
	if err != nil {
		return nil, err
	}

	sess.log.Info(ctx, "collection sync started")
	sy := syncer.New(s.d.Collection, srv, syncer.Options{
		Endpoint: s.d.Endpoint,
		Logger:   sess.log,
		OnStage:  s.d.OnStage,
	})
	res, err := sy.Sync(ctx)
	sess.report.Collection = res
	sess.report.Message = sy.Message()
	if err != nil {
		sess.log.Error(ctx, "collection sync failed", "error", err)
		return sess.done(), err
	}
	sess.log.Info(ctx, "collection sync finished", "result", res.String())
	if res == syncer.FullSync {
		return sess.done(), nil
	}
	return s.media(ctx, sess)
}

func (s *syncService) FullSync(ctx context.Context, dir Direction) (*Report, error) {
	sess, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	srv, err := s.collectionServer(sess)
	if err != nil {
		return nil, err
	}

	f := fullsync.New(s.d.Collection, srv, fullsync.Options{Backup: s.d.Backup, Logger: sess.log})
	sess.log.Info(ctx, "full sync started", "direction", string(dir))
	switch dir {
	case Download:
		err = s.keepPrefs(ctx, func() error {
			_, err := f.Download(ctx)
			return err
		})
	case Upload:
		_, err = f.Upload(ctx)
	default:
		return nil, fmt.Errorf("unknown full sync direction %q", dir)
	}
	if err != nil {
		sess.log.Error(ctx, "full sync failed", "error", err)
		return sess.done(), err
	}
	sess.report.Collection = syncer.Success
	return s.media(ctx, sess)
}

// keepPrefs carries the preference table over fn, which replaces the
// collection file and with it the stored login.
func (s *syncService) keepPrefs(ctx context.Context, fn func() error) error {
	prefs, err := s.d.Collection.Store().Prefs.List(ctx)
	if err != nil {
		return err
	}
	if err := fn(); err != nil {
		return err
	}
	return s.d.Collection.WithTx(ctx, func(ctx context.Context, st *collection.Store) error {
		if err := st.Prefs.Clear(ctx); err != nil {
			return err
		}
		for k, v := range prefs {
			if err := st.Prefs.Set(ctx, k, v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *syncService) Media(ctx context.Context) (*Report, error) {
	sess, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	return s.media(ctx, sess)
}

func (s *syncService) media(ctx context.Context, sess *session) (*Report, error) {
	if s.d.Media == nil {
		return sess.done(), nil
	}
	tr, err := s.transport(sess, s.d.Endpoint.MediaURL)
	if err != nil {
		return sess.done(), err
	}
	ms := mediasync.New(s.d.Media, client.NewMediaServer(tr, sess.key, s.d.Compress), mediasync.Options{Logger: sess.log})

	sess.log.Info(ctx, "media sync started")
	res, err := ms.Sync(ctx)
	sess.report.MediaStats = ms.Stats()
	if err != nil {
		sess.log.Error(ctx, "media sync failed", "error", err)
		return sess.done(), fmt.Errorf("media sync: %w", err)
	}
	sess.report.Media = res
	sess.report.MediaSynced = true
	sess.log.Info(ctx, "media sync finished", "result", res.String(),
		"downloaded", sess.report.MediaStats.Downloaded, "uploaded", sess.report.MediaStats.Uploaded)
	return sess.done(), nil
}
