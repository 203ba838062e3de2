// Package media stores the media database: one row per known file with its
// checksum, mtime and dirty flag, plus the folder mtime and the last server
// media USN.
package media

import (
	"context"

	"github.com/dmitrijs2005/ankisync/internal/client/models"
)

type Repository interface {
	// Get returns nil, nil for an unknown file.
	Get(ctx context.Context, fname string) (*models.MediaEntry, error)
	Upsert(ctx context.Context, e models.MediaEntry) error
	Delete(ctx context.Context, fname string) error
	MarkClean(ctx context.Context, fnames []string) error
	// MarkSent clears the dirty flag of entries whose checksum is still the
	// one given; "" matches a recorded deletion.
	MarkSent(ctx context.Context, sent []models.MediaEntry) error
	// All returns every entry, deleted ones included.
	All(ctx context.Context) ([]models.MediaEntry, error)
	// Dirty returns up to limit dirty entries in name order.
	Dirty(ctx context.Context, limit int) ([]models.MediaEntry, error)
	CountDirty(ctx context.Context) (int64, error)
	// CountPresent counts entries that are not recorded as deleted.
	CountPresent(ctx context.Context) (int64, error)

	LastUsn(ctx context.Context) (int, error)
	SetLastUsn(ctx context.Context, usn int) error
	DirMod(ctx context.Context) (int64, error)
	SetDirMod(ctx context.Context, mod int64) error

	// ForceResync drops all entries and resets the folder mtime and the last
	// USN so the next sync rescans and redownloads the change log.
	ForceResync(ctx context.Context) error
}
