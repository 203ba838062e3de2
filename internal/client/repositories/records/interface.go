package records

import (
	"context"

	"github.com/dmitrijs2005/ankisync/internal/client/models"
)

// Table names one of the large, chunk-streamed tables.
type Table string

const (
	Revlog Table = "revlog"
	Cards  Table = "cards"
	Notes  Table = "notes"
)

// Repository covers the cards, notes and revlog tables.
type Repository interface {
	// SaveCard and SaveNote insert or replace a row as the local app does.
	SaveCard(ctx context.Context, c *models.Card) error
	SaveNote(ctx context.Context, n *models.Note) error
	AddRevlog(ctx context.Context, r *models.Revlog) error

	// GetCard and GetNote return nil, nil when the row does not exist.
	GetCard(ctx context.Context, id int64) (*models.Card, error)
	GetNote(ctx context.Context, id int64) (*models.Note, error)

	// DirtyCards, DirtyNotes and DirtyRevlog page through rows with
	// usn = -1 in id order, starting after afterID.
	DirtyCards(ctx context.Context, afterID int64, limit int) ([]models.Card, error)
	DirtyNotes(ctx context.Context, afterID int64, limit int) ([]models.Note, error)
	DirtyRevlog(ctx context.Context, afterID int64, limit int) ([]models.Revlog, error)

	// StampDirty sets usn on every row of table that still has usn = -1.
	StampDirty(ctx context.Context, table Table, usn int) error
	// ResetUsn sets usn on every row of table.
	ResetUsn(ctx context.Context, table Table, usn int) error
	Count(ctx context.Context, table Table) (int64, error)
	CountDirty(ctx context.Context, table Table) (int64, error)

	// MergeRevlog inserts entries that are not present yet. MergeCards and
	// MergeNotes write an incoming row unless a local row with the same id
	// has mod >= the incoming mod. All return the number of rows written.
	MergeRevlog(ctx context.Context, rows []models.Revlog) (int, error)
	MergeCards(ctx context.Context, rows []models.Card) (int, error)
	MergeNotes(ctx context.Context, rows []models.Note) (int, error)

	// DirtyIDs returns the subset of ids whose row in table has usn = -1.
	DirtyIDs(ctx context.Context, table Table, ids []int64) ([]int64, error)
	// MarkDirty sets usn -1 on the given rows so the next sync sends them.
	MarkDirty(ctx context.Context, table Table, ids []int64) error
	CardIDsOfNotes(ctx context.Context, noteIDs []int64) ([]int64, error)
	// DeleteCards keeps the review history of the deleted cards.
	DeleteCards(ctx context.Context, ids []int64) error
	DeleteNotes(ctx context.Context, ids []int64) error
	// NotesWithoutCardsAmong returns the ids in noteIDs that have no card left.
	NotesWithoutCardsAmong(ctx context.Context, noteIDs []int64) ([]int64, error)
	// MoveDeckCards moves the cards of one deck to another, stamping them with
	// mod and usn -1 so the move is sent.
	MoveDeckCards(ctx context.Context, from, to, mod int64) error

	CardsWithoutNotes(ctx context.Context) (int64, error)
	NotesWithoutCards(ctx context.Context) (int64, error)
	// QueueCounts returns the new, learning and due review card counts for
	// the given day number.
	QueueCounts(ctx context.Context, today int64) (newCount, learn, review int64, err error)
}
