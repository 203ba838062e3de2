package graves

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/ankisync/internal/client/models"
	"github.com/dmitrijs2005/ankisync/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a repository over the graves table.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Add records a deletion. An existing grave for the same object takes the new usn.
func (r *SQLiteRepository) Add(ctx context.Context, g models.Grave) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO graves (oid, type, usn) VALUES (?, ?, ?)
		ON CONFLICT(oid, type) DO UPDATE SET usn = excluded.usn
	`, g.Oid, int(g.Type), g.Usn)
	if err != nil {
		return fmt.Errorf("failed to add grave %d/%d: %w", g.Type, g.Oid, err)
	}
	return nil
}

// Pending groups the graves with usn -1 by object type.
func (r *SQLiteRepository) Pending(ctx context.Context) (models.Graves, error) {
	result := models.NewGraves()

	rows, err := r.db.QueryContext(ctx, `SELECT oid, type FROM graves WHERE usn = -1 ORDER BY type, oid`)
	if err != nil {
		return result, fmt.Errorf("failed to select pending graves: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var oid int64
		var typ models.GraveType
		if err := rows.Scan(&oid, &typ); err != nil {
			return result, fmt.Errorf("failed to scan grave: %w", err)
		}
		switch typ {
		case models.GraveCard:
			result.Cards = append(result.Cards, oid)
		case models.GraveNote:
			result.Notes = append(result.Notes, oid)
		case models.GraveDeck:
			result.Decks = append(result.Decks, oid)
		default:
			return result, fmt.Errorf("unknown grave type %d for oid %d", typ, oid)
		}
	}
	if err := rows.Err(); err != nil {
		return result, fmt.Errorf("failed to iterate graves: %w", err)
	}
	return result, nil
}

// StampDirty sets usn on every grave still marked -1.
func (r *SQLiteRepository) StampDirty(ctx context.Context, usn int) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE graves SET usn = ? WHERE usn = -1`, usn); err != nil {
		return fmt.Errorf("failed to stamp graves: %w", err)
	}
	return nil
}

// ResetUsn sets usn on every grave.
func (r *SQLiteRepository) ResetUsn(ctx context.Context, usn int) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE graves SET usn = ?`, usn); err != nil {
		return fmt.Errorf("failed to reset usn of graves: %w", err)
	}
	return nil
}

// Count returns the number of graves.
func (r *SQLiteRepository) Count(ctx context.Context) (int64, error) {
	n, err := dbx.Scalar(ctx, r.db, `SELECT count() FROM graves`)
	if err != nil {
		return 0, fmt.Errorf("failed to count graves: %w", err)
	}
	return n, nil
}

// CountDirty returns the number of graves with usn -1.
func (r *SQLiteRepository) CountDirty(ctx context.Context) (int64, error) {
	n, err := dbx.Scalar(ctx, r.db, `SELECT count() FROM graves WHERE usn = -1`)
	if err != nil {
		return 0, fmt.Errorf("failed to count dirty graves: %w", err)
	}
	return n, nil
}
