// Package backup keeps a copy of the collection before a full download
// replaces it.
package backup

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dmitrijs2005/ankisync/internal/filex"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
)

// Sink stores a copy of the file at path. A failing Save must stop the
// caller from replacing the file.
type Sink interface {
	Save(ctx context.Context, path string) error
}

const (
	filePrefix = "collection-"
	fileSuffix = ".anki2"
	stampFmt   = "20060102-150405.000"
)

// LocalSink writes timestamped copies into a directory and keeps the newest
// Keep of them.
type LocalSink struct {
	fs    afero.Fs
	dir   string
	keep  int
	clock clockwork.Clock
}

func NewLocalSink(fs afero.Fs, dir string, keep int, clock clockwork.Clock) *LocalSink {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &LocalSink{fs: fs, dir: dir, keep: keep, clock: clock}
}

func (s *LocalSink) Save(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.fs.MkdirAll(s.dir, 0o770); err != nil {
		return fmt.Errorf("mkdir %s: %w", s.dir, err)
	}
	name := filePrefix + s.clock.Now().UTC().Format(stampFmt) + fileSuffix
	if err := filex.CopyFile(s.fs, path, filepath.Join(s.dir, name)); err != nil {
		return fmt.Errorf("failed to back up %s: %w", path, err)
	}
	return s.prune()
}

// List returns the backup file names, oldest first.
func (s *LocalSink) List() ([]string, error) {
	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.dir, err)
	}
	var names []string
	for _, e := range entries {
		n := e.Name()
		if !e.IsDir() && strings.HasPrefix(n, filePrefix) && strings.HasSuffix(n, fileSuffix) {
			names = append(names, n)
		}
	}
	slices.Sort(names)
	return names, nil
}

func (s *LocalSink) prune() error {
	if s.keep <= 0 {
		return nil
	}
	names, err := s.List()
	if err != nil {
		return err
	}
	for len(names) > s.keep {
		if err := s.fs.Remove(filepath.Join(s.dir, names[0])); err != nil {
			return fmt.Errorf("remove old backup %s: %w", names[0], err)
		}
		names = names[1:]
	}
	return nil
}

// Multi saves to every sink in order and stops at the first failure.
type Multi []Sink

func (m Multi) Save(ctx context.Context, path string) error {
	for _, s := range m {
		if err := s.Save(ctx, path); err != nil {
			return err
		}
	}
	return nil
}
