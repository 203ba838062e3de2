// Package syncer runs an incremental collection sync: meta exchange, clock
// and schema checks, graves, small objects, chunked record streaming in both
// directions, the sanity check and finish. Everything local happens inside
// one transaction, so any failure leaves the collection as it was.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/ankisync/internal/client/client"
	"github.com/dmitrijs2005/ankisync/internal/client/collection"
	"github.com/dmitrijs2005/ankisync/internal/client/endpoint"
	"github.com/dmitrijs2005/ankisync/internal/common"
	"github.com/dmitrijs2005/ankisync/internal/logging"
	"github.com/jonboulle/clockwork"
)

// Result is the outcome of a sync that did not fail.
type Result int

const (
	NoChanges Result = iota
	// FullSync means the collections cannot be merged; the caller must
	// pick a direction for a full transfer.
	FullSync
	Success
)

func (r Result) String() string {
	switch r {
	case NoChanges:
		return "noChanges"
	case FullSync:
		return "fullSync"
	case Success:
		return "success"
	}
	return fmt.Sprintf("Result(%d)", int(r))
}

// Stage is reported to Options.OnStage as the sync progresses.
type Stage string

const (
	StageMeta      Stage = "meta"
	StageDeletions Stage = "deletions"
	StageObjects   Stage = "smallObjects"
	StageDownload  Stage = "downloadChunks"
	StageUpload    Stage = "uploadChunks"
	StageSanity    Stage = "sanity"
	StageFinish    Stage = "finish"
)

const abortTimeout = 5 * time.Second

var errSchemaDrift = errors.New("note type changed without a schema change")

type Options struct {
	// Endpoint receives the hostNum announced by meta. It may be nil.
	Endpoint *endpoint.Endpoint
	Logger   logging.Logger
	OnStage  func(Stage)
}

// Syncer is not safe for concurrent use; run one sync at a time.
type Syncer struct {
	col     *collection.Collection
	server  client.CollectionServer
	ep      *endpoint.Endpoint
	clock   clockwork.Clock
	log     logging.Logger
	onStage func(Stage)

	msg     string
	started bool
}

func New(col *collection.Collection, server client.CollectionServer, opts Options) *Syncer {
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	return &Syncer{
		col:     col,
		server:  server,
		ep:      opts.Endpoint,
		clock:   col.Clock(),
		log:     opts.Logger,
		onStage: opts.OnStage,
	}
}

// Message is the server's message from the last meta exchange. The caller
// should show it to the user when it is not empty.
func (s *Syncer) Message() string { return s.msg }

type session struct {
	minUsn int
	maxUsn int
	lnewer bool
	queue  []*cursor
}

func dbErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", common.ErrDB, err)
}

func (s *Syncer) stage(st Stage) {
	if s.onStage != nil {
		s.onStage(st)
	}
}

// checkpoint is called before every request to the server.
func (s *Syncer) checkpoint(ctx context.Context) error {
	if ctx.Err() != nil {
		return common.ErrUserAborted
	}
	return nil
}

// Sync runs one incremental sync. NoChanges and FullSync are results, not
// errors. Failures are reported with the sentinels of package common.
func (s *Syncer) Sync(ctx context.Context) (Result, error) {
	s.msg = ""
	s.started = false

	var res Result
	err := s.col.WithTx(ctx, func(ctx context.Context, st *collection.Store) error {
		var err error
		res, err = s.run(ctx, st)
		return err
	})

	switch {
	case err == nil:
		s.log.Info(ctx, "collection sync finished", "result", res)
		return res, nil

	case ctx.Err() != nil || errors.Is(err, common.ErrUserAborted):
		s.abort(ctx)
		s.log.Warn(ctx, "collection sync cancelled")
		return 0, common.ErrUserAborted

	case errors.Is(err, errSchemaDrift):
		s.log.Warn(ctx, "note type changed without schema change, forcing full sync", "error", err)
		s.abort(ctx)
		if err := s.forceFullSync(ctx); err != nil {
			return 0, err
		}
		return FullSync, nil

	case errors.Is(err, common.ErrSanityCheck):
		s.log.Error(ctx, "sanity check failed, next sync will be a full sync", "error", err)
		if ferr := s.forceFullSync(ctx); ferr != nil {
			return 0, errors.Join(err, ferr)
		}
		return 0, err
	}

	s.log.Error(ctx, "collection sync failed", "error", err)
	return 0, err
}

// abort tells the server to drop the session. It runs on a fresh context
// because ctx may already be cancelled, and its failure is ignored.
func (s *Syncer) abort(ctx context.Context) {
	if !s.started {
		return
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abortTimeout)
	defer cancel()
	if err := s.server.Abort(actx); err != nil {
		s.log.Debug(ctx, "abort failed", "error", err)
	}
}

func (s *Syncer) forceFullSync(ctx context.Context) error {
	return dbErr(s.col.Store().ModSchema(context.WithoutCancel(ctx)))
}

func (s *Syncer) run(ctx context.Context, st *collection.Store) (Result, error) {
	s.stage(StageMeta)
	if err := s.checkpoint(ctx); err != nil {
		return 0, err
	}
	rmeta, err := s.server.Meta(ctx)
	if err != nil {
		return 0, err
	}
	s.started = true
	s.msg = rmeta.Msg

	if rmeta.HostNum != nil && s.ep != nil {
		s.ep.SetHostNum(*rmeta.HostNum)
		if err := s.ep.Save(ctx, st.Prefs); err != nil {
			return 0, dbErr(err)
		}
	}
	if !rmeta.Cont {
		return 0, fmt.Errorf("%w: %s", common.ErrServerAbort, rmeta.Msg)
	}

	lmeta, err := st.Header(ctx)
	if err != nil {
		return 0, dbErr(err)
	}

	skew := rmeta.Ts - s.clock.Now().Unix()
	if skew < 0 {
		skew = -skew
	}
	if skew > common.MaxClockSkew {
		return 0, &common.ClockOffError{Skew: skew}
	}

	// A schema difference wins over equal mod times.
	if lmeta.Scm != rmeta.Scm {
		s.log.Info(ctx, "schema differs, full sync required", "local", lmeta.Scm, "remote", rmeta.Scm)
		return FullSync, nil
	}
	if lmeta.Mod == rmeta.Mod {
		return NoChanges, nil
	}

	sess := &session{
		minUsn: lmeta.Usn,
		maxUsn: rmeta.Usn,
		lnewer: lmeta.Mod > rmeta.Mod,
	}
	s.log.Debug(ctx, "incremental sync", "minUsn", sess.minUsn, "maxUsn", sess.maxUsn, "localNewer", sess.lnewer)

	if err := st.BasicCheck(ctx); err != nil {
		if errors.Is(err, common.ErrBasicCheckFailed) {
			return 0, err
		}
		return 0, dbErr(err)
	}

	if err := s.deletions(ctx, st, sess); err != nil {
		return 0, err
	}
	if err := s.smallObjects(ctx, st, sess, lmeta.Conf, lmeta.Crt); err != nil {
		return 0, err
	}
	if err := s.downloadChunks(ctx, st); err != nil {
		return 0, err
	}
	if err := s.uploadChunks(ctx, st, sess); err != nil {
		return 0, err
	}
	if err := s.sanity(ctx, st); err != nil {
		return 0, err
	}
	if err := s.finish(ctx, st, sess); err != nil {
		return 0, err
	}
	return Success, nil
}

func (s *Syncer) deletions(ctx context.Context, st *collection.Store, sess *session) error {
	s.stage(StageDeletions)
	local, err := st.Graves.Pending(ctx)
	if err != nil {
		return dbErr(err)
	}
	if err := st.Graves.StampDirty(ctx, sess.maxUsn); err != nil {
		return dbErr(err)
	}

	if err := s.checkpoint(ctx); err != nil {
		return err
	}
	remote, err := s.server.Start(ctx, sess.minUsn, sess.lnewer, local)
	if err != nil {
		return err
	}
	return dbErr(st.ApplyGraves(ctx, remote))
}

func (s *Syncer) downloadChunks(ctx context.Context, st *collection.Store) error {
	s.stage(StageDownload)
	for {
		if err := s.checkpoint(ctx); err != nil {
			return err
		}
		ch, err := s.server.Chunk(ctx)
		if err != nil {
			return err
		}
		if err := applyChunk(ctx, st.Records, ch); err != nil {
			return dbErr(err)
		}
		if ch.Done {
			return nil
		}
	}
}

func (s *Syncer) uploadChunks(ctx context.Context, st *collection.Store, sess *session) error {
	s.stage(StageUpload)
	sess.queue = newQueue()
	for {
		ch, err := nextChunk(ctx, st.Records, sess, common.ChunkSize)
		if err != nil {
			return dbErr(err)
		}
		if err := s.checkpoint(ctx); err != nil {
			return err
		}
		if err := s.server.ApplyChunk(ctx, ch); err != nil {
			return err
		}
		if ch.Done {
			return nil
		}
	}
}

func (s *Syncer) sanity(ctx context.Context, st *collection.Store) error {
	s.stage(StageSanity)
	if err := st.BasicCheck(ctx); err != nil {
		return fmt.Errorf("%w: %w", common.ErrSanityCheck, err)
	}
	dirty, err := st.CountDirty(ctx)
	if err != nil {
		return dbErr(err)
	}
	if dirty > 0 {
		return fmt.Errorf("%w: %d rows still unsynced", common.ErrSanityCheck, dirty)
	}
	counts, err := st.SanityCounts(ctx)
	if err != nil {
		return dbErr(err)
	}

	if err := s.checkpoint(ctx); err != nil {
		return err
	}
	resp, err := s.server.SanityCheck(ctx, counts)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("%w: status %q, client %s, server %s", common.ErrSanityCheck, resp.Status, resp.Client, resp.Server)
	}
	return nil
}

func (s *Syncer) finish(ctx context.Context, st *collection.Store, sess *session) error {
	s.stage(StageFinish)
	if err := s.checkpoint(ctx); err != nil {
		return err
	}
	mod, err := s.server.Finish(ctx)
	if err != nil {
		return err
	}
	if mod == 0 {
		return common.ErrFinish
	}

	usn := sess.maxUsn + 1
	if err := st.StampDirty(ctx, usn); err != nil {
		return dbErr(err)
	}
	h, err := st.Header(ctx)
	if err != nil {
		return dbErr(err)
	}
	h.Ls = mod
	h.Mod = mod
	h.Usn = usn
	return dbErr(st.SaveHeader(ctx, h))
}
