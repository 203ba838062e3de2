// Package media manages the local media folder and its index database: the
// folder scan that detects changes, per-file sync state, and the zip bundles
// exchanged with the media server.
package media

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dmitrijs2005/ankisync/internal/client/migrations"
	"github.com/dmitrijs2005/ankisync/internal/client/models"
	mediarepo "github.com/dmitrijs2005/ankisync/internal/client/repositories/media"
	"github.com/dmitrijs2005/ankisync/internal/common"
	"github.com/dmitrijs2005/ankisync/internal/cryptox"
	"github.com/dmitrijs2005/ankisync/internal/logging"
	"github.com/spf13/afero"
	"golang.org/x/text/unicode/norm"

	_ "modernc.org/sqlite"
)

const illegalChars = "><:\"/?*^\\|\x00\r\n"

// maxFileSize is the largest file that takes part in sync.
var maxFileSize int64 = common.MaxMediaFileSize

// HasIllegal reports whether name cannot be synced as a media file name.
func HasIllegal(name string) bool {
	return strings.ContainsAny(name, illegalChars) || name == "." || name == ".."
}

func ignored(name string) bool {
	return strings.EqualFold(name, "thumbs.db") || HasIllegal(name)
}

// Store is the media folder plus its index. Mutations are serialized so the
// folder watcher and a running sync do not interleave on the same file.
type Store struct {
	mu   sync.Mutex
	fs   afero.Fs
	dir  string
	db   *sql.DB
	repo mediarepo.Repository
	log  logging.Logger
}

type Options struct {
	Fs     afero.Fs
	Logger logging.Logger
}

// Open opens the media index at dbPath, creating and migrating it when
// needed, for the media folder dir. The folder is created if missing.
func Open(ctx context.Context, dir, dbPath string, opts Options) (*Store, error) {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if err := opts.Fs.MkdirAll(dir, 0o770); err != nil {
		return nil, fmt.Errorf("%w: mkdir %s: %w", common.ErrSDAccess, dir, err)
	}
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open media db %s: %w", dbPath, err)
	}
	if err := migrations.Apply(ctx, db, migrations.MediaDir); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate media db %s: %w", dbPath, err)
	}
	return &Store{
		fs:   opts.Fs,
		dir:  dir,
		db:   db,
		repo: mediarepo.NewSQLiteRepository(db),
		log:  opts.Logger,
	}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Dir() string { return s.dir }

func (s *Store) path(fname string) string {
	return filepath.Join(s.dir, fname)
}

// NeedScan reports whether the index has never been built.
func (s *Store) NeedScan(ctx context.Context) (bool, error) {
	mod, err := s.repo.DirMod(ctx)
	if err != nil {
		return false, err
	}
	return mod == 0, nil
}

func (s *Store) dirMtime() (int64, error) {
	fi, err := s.fs.Stat(s.dir)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", s.dir, err)
	}
	return fi.ModTime().Unix(), nil
}

// FindChanges scans the folder and records additions, edits and removals
// as dirty. Without force the scan is skipped when the folder mtime is the
// one recorded by the previous scan.
func (s *Store) FindChanges(ctx context.Context, force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mtime, err := s.dirMtime()
	if err != nil {
		return err
	}
	if !force {
		mod, err := s.repo.DirMod(ctx)
		if err != nil {
			return err
		}
		if mod != 0 && mod == mtime {
			return nil
		}
	}

	known := map[string]models.MediaEntry{}
	entries, err := s.repo.All(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !e.Deleted() {
			known[e.Fname] = e
		}
	}

	infos, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return fmt.Errorf("read %s: %w", s.dir, err)
	}
	seen := map[string]bool{}
	var added, removed int
	for _, fi := range infos {
		if err := ctx.Err(); err != nil {
			return err
		}
		name, ok, err := s.admit(fi)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		seen[name] = true

		cur, err := s.fs.Stat(s.path(name))
		if err != nil {
			return fmt.Errorf("stat %s: %w", name, err)
		}
		old, have := known[name]
		if have && old.Mtime == cur.ModTime().Unix() {
			continue
		}
		csum, err := s.checksum(name)
		if err != nil {
			return err
		}
		if have && old.Csum == csum {
			continue
		}
		if err := s.repo.Upsert(ctx, models.MediaEntry{Fname: name, Csum: csum, Mtime: cur.ModTime().Unix(), Dirty: true}); err != nil {
			return err
		}
		added++
	}
	for name := range known {
		if seen[name] {
			continue
		}
		if err := s.repo.Upsert(ctx, models.MediaEntry{Fname: name, Dirty: true}); err != nil {
			return err
		}
		removed++
	}
	s.log.Debug(ctx, "media folder scanned", "added", added, "removed", removed)

	// renames and deletions above may have moved the folder mtime
	if mtime, err = s.dirMtime(); err != nil {
		return err
	}
	return s.repo.SetDirMod(ctx, mtime)
}

// admit decides whether a folder entry takes part in sync. Empty files are
// deleted; names that are not NFC are renamed to their NFC form, or
// deleted when that name is taken.
func (s *Store) admit(fi fs.FileInfo) (string, bool, error) {
	name := fi.Name()
	if fi.IsDir() || ignored(name) {
		return "", false, nil
	}
	if fi.Size() == 0 {
		if err := s.fs.Remove(s.path(name)); err != nil {
			return "", false, fmt.Errorf("remove empty %s: %w", name, err)
		}
		return "", false, nil
	}
	if fi.Size() > maxFileSize {
		s.log.Warn(context.Background(), "ignoring media file over 100MB", "file", name)
		return "", false, nil
	}

	nfc := norm.NFC.String(name)
	if nfc == name {
		return name, true, nil
	}
	if _, err := s.fs.Stat(s.path(nfc)); err == nil {
		if err := s.fs.Remove(s.path(name)); err != nil {
			return "", false, fmt.Errorf("remove %s: %w", name, err)
		}
		return "", false, nil
	}
	if err := s.fs.Rename(s.path(name), s.path(nfc)); err != nil {
		return "", false, fmt.Errorf("rename %s: %w", name, err)
	}
	return nfc, true, nil
}

func (s *Store) checksum(fname string) (string, error) {
	f, err := s.fs.Open(s.path(fname))
	if err != nil {
		return "", err
	}
	defer f.Close()
	sum, err := cryptox.Checksum(f)
	if err != nil {
		return "", fmt.Errorf("checksum %s: %w", fname, err)
	}
	return sum, nil
}

// SyncInfo returns the recorded checksum ("" when unknown or deleted) and
// dirty flag of fname.
func (s *Store) SyncInfo(ctx context.Context, fname string) (string, bool, error) {
	e, err := s.repo.Get(ctx, fname)
	if err != nil || e == nil {
		return "", false, err
	}
	return e.Csum, e.Dirty, nil
}

func (s *Store) MarkClean(ctx context.Context, fnames []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo.MarkClean(ctx, fnames)
}

// MarkSent clears the dirty flag of uploaded entries, as returned by
// ChangesZip. An entry edited since it was bundled stays dirty.
func (s *Store) MarkSent(ctx context.Context, sent []models.MediaEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo.MarkSent(ctx, sent)
}

// SyncDelete applies a remote deletion: the file and its entry go away.
func (s *Store) SyncDelete(ctx context.Context, fname string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fs.Remove(s.path(fname)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", fname, err)
	}
	return s.repo.Delete(ctx, fname)
}

func (s *Store) LastUsn(ctx context.Context) (int, error) { return s.repo.LastUsn(ctx) }

func (s *Store) SetLastUsn(ctx context.Context, usn int) error { return s.repo.SetLastUsn(ctx, usn) }

func (s *Store) HaveDirty(ctx context.Context) (bool, error) {
	n, err := s.repo.CountDirty(ctx)
	return n > 0, err
}

func (s *Store) DirtyCount(ctx context.Context) (int64, error) { return s.repo.CountDirty(ctx) }

// Count is the number of files believed present, the figure compared by
// the media sanity check.
func (s *Store) Count(ctx context.Context) (int64, error) { return s.repo.CountPresent(ctx) }

// ForceResync forgets every entry so the next sync rescans the folder and
// replays the whole server change log.
func (s *Store) ForceResync(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo.ForceResync(ctx)
}

// Touch records the current state of one file after an outside change.
// Nothing is recorded when the content matches the index.
func (s *Store) Touch(ctx context.Context, fname string) error {
	if ignored(fname) || fname != norm.NFC.String(fname) {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.repo.Get(ctx, fname)
	if err != nil {
		return err
	}
	fi, err := s.fs.Stat(s.path(fname))
	if errors.Is(err, fs.ErrNotExist) {
		if e == nil || e.Deleted() {
			return nil
		}
		return s.repo.Upsert(ctx, models.MediaEntry{Fname: fname, Dirty: true})
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", fname, err)
	}
	if fi.IsDir() || fi.Size() == 0 || fi.Size() > maxFileSize {
		return nil
	}
	csum, err := s.checksum(fname)
	if err != nil {
		return err
	}
	if e != nil && e.Csum == csum {
		return nil
	}
	return s.repo.Upsert(ctx, models.MediaEntry{Fname: fname, Csum: csum, Mtime: fi.ModTime().Unix(), Dirty: true})
}

// AddFile writes data as fname and marks it for upload.
func (s *Store) AddFile(ctx context.Context, fname string, data []byte) error {
	fname = norm.NFC.String(fname)
	if ignored(fname) {
		return fmt.Errorf("invalid media file name %q", fname)
	}
	if err := afero.WriteFile(s.fs, s.path(fname), data, 0o660); err != nil {
		return fmt.Errorf("%w: write %s: %w", common.ErrSDAccess, fname, err)
	}
	return s.Touch(ctx, fname)
}

// RemoveFile deletes fname and marks the deletion for upload.
func (s *Store) RemoveFile(ctx context.Context, fname string) error {
	if err := s.fs.Remove(s.path(fname)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: remove %s: %w", common.ErrSDAccess, fname, err)
	}
	return s.Touch(ctx, fname)
}
