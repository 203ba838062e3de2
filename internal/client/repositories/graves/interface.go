// Package graves stores tombstones for deleted cards, notes and decks until
// the deletion has been synced.
package graves

import (
	"context"

	"github.com/dmitrijs2005/ankisync/internal/client/models"
)

type Repository interface {
	// Add records a deletion. Re-adding an existing grave updates its usn.
	Add(ctx context.Context, g models.Grave) error
	// Pending returns the graves with usn = -1 grouped by type.
	Pending(ctx context.Context) (models.Graves, error)
	StampDirty(ctx context.Context, usn int) error
	ResetUsn(ctx context.Context, usn int) error
	Count(ctx context.Context) (int64, error)
	CountDirty(ctx context.Context) (int64, error)
}
