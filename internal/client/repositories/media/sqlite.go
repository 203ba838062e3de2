package media

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/ankisync/internal/client/models"
	"github.com/dmitrijs2005/ankisync/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func scanEntry(s interface{ Scan(...any) error }) (models.MediaEntry, error) {
	var e models.MediaEntry
	var csum sql.NullString
	if err := s.Scan(&e.Fname, &csum, &e.Mtime, &e.Dirty); err != nil {
		return e, err
	}
	e.Csum = csum.String
	return e, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, fname string) (*models.MediaEntry, error) {
	e, err := scanEntry(r.db.QueryRowContext(ctx,
		`SELECT fname, csum, mtime, dirty FROM media WHERE fname = ?`, fname))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get media entry %q: %w", fname, err)
	}
	return &e, nil
}

func (r *SQLiteRepository) Upsert(ctx context.Context, e models.MediaEntry) error {
	var csum any
	if !e.Deleted() {
		csum = e.Csum
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO media (fname, csum, mtime, dirty) VALUES (?, ?, ?, ?)
		ON CONFLICT(fname) DO UPDATE SET csum = excluded.csum, mtime = excluded.mtime, dirty = excluded.dirty
	`, e.Fname, csum, e.Mtime, e.Dirty)
	if err != nil {
		return fmt.Errorf("failed to save media entry %q: %w", e.Fname, err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, fname string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM media WHERE fname = ?`, fname); err != nil {
		return fmt.Errorf("failed to delete media entry %q: %w", fname, err)
	}
	return nil
}

func (r *SQLiteRepository) MarkClean(ctx context.Context, fnames []string) error {
	for _, fname := range fnames {
		if _, err := r.db.ExecContext(ctx, `UPDATE media SET dirty = 0 WHERE fname = ?`, fname); err != nil {
			return fmt.Errorf("failed to mark %q clean: %w", fname, err)
		}
	}
	return nil
}

// MarkSent clears the dirty flag of entries whose checksum still matches the one sent.
func (r *SQLiteRepository) MarkSent(ctx context.Context, sent []models.MediaEntry) error {
	for _, e := range sent {
		if _, err := r.db.ExecContext(ctx, `UPDATE media SET dirty = 0 WHERE fname = ? AND IFNULL(csum, '') = ?`, e.Fname, e.Csum); err != nil {
			return fmt.Errorf("failed to mark %q sent: %w", e.Fname, err)
		}
	}
	return nil
}

func (r *SQLiteRepository) query(ctx context.Context, q string, args ...any) ([]models.MediaEntry, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select media entries: %w", err)
	}
	defer rows.Close()

	result := make([]models.MediaEntry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan media entry: %w", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate media entries: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) All(ctx context.Context) ([]models.MediaEntry, error) {
	return r.query(ctx, `SELECT fname, csum, mtime, dirty FROM media ORDER BY fname`)
}

func (r *SQLiteRepository) Dirty(ctx context.Context, limit int) ([]models.MediaEntry, error) {
	return r.query(ctx, `SELECT fname, csum, mtime, dirty FROM media WHERE dirty = 1 ORDER BY fname LIMIT ?`, limit)
}

func (r *SQLiteRepository) CountDirty(ctx context.Context) (int64, error) {
	n, err := dbx.Scalar(ctx, r.db, `SELECT count() FROM media WHERE dirty = 1`)
	if err != nil {
		return 0, fmt.Errorf("failed to count dirty media: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) CountPresent(ctx context.Context) (int64, error) {
	n, err := dbx.Scalar(ctx, r.db, `SELECT count() FROM media WHERE csum IS NOT NULL`)
	if err != nil {
		return 0, fmt.Errorf("failed to count media: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) LastUsn(ctx context.Context) (int, error) {
	n, err := dbx.Scalar(ctx, r.db, `SELECT last_usn FROM meta`)
	if err != nil {
		return 0, fmt.Errorf("failed to get last media usn: %w", err)
	}
	return int(n), nil
}

func (r *SQLiteRepository) SetLastUsn(ctx context.Context, usn int) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE meta SET last_usn = ?`, usn); err != nil {
		return fmt.Errorf("failed to set last media usn: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DirMod(ctx context.Context) (int64, error) {
	n, err := dbx.Scalar(ctx, r.db, `SELECT dir_mod FROM meta`)
	if err != nil {
		return 0, fmt.Errorf("failed to get media folder mtime: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) SetDirMod(ctx context.Context, mod int64) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE meta SET dir_mod = ?`, mod); err != nil {
		return fmt.Errorf("failed to set media folder mtime: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ForceResync(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM media`); err != nil {
		return fmt.Errorf("failed to clear media entries: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, `UPDATE meta SET dir_mod = 0, last_usn = 0`); err != nil {
		return fmt.Errorf("failed to reset media meta: %w", err)
	}
	return nil
}
