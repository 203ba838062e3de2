// Package col persists the collection header row: creation time, mod and
// schema times, the USN counter and the last-sync marker.
package col

import (
	"context"

	"github.com/dmitrijs2005/ankisync/internal/client/models"
)

type Repository interface {
	// Get returns the header, or ErrNotFound in a fresh database.
	Get(ctx context.Context) (*models.CollectionMeta, error)

	// Save inserts or replaces the header.
	Save(ctx context.Context, m *models.CollectionMeta) error
}
