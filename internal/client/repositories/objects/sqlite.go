package objects

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/ankisync/internal/client/models"
	"github.com/dmitrijs2005/ankisync/internal/dbx"
	"github.com/segmentio/encoding/json"
)

var kinds = []Kind{Models, Decks, DeckConfigs}

// SQLiteRepository implements Repository over dbx.DBTX.
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a repository over note types, decks, deck configs and tags.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func checkKind(k Kind) error {
	switch k {
	case Models, Decks, DeckConfigs:
		return nil
	}
	return fmt.Errorf("unknown object table %q", k)
}

func list[T any](ctx context.Context, db dbx.DBTX, kind Kind, where string, args ...any) ([]T, error) {
	rows, err := db.QueryContext(ctx, `SELECT json FROM `+string(kind)+` `+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", kind, err)
	}
	defer rows.Close()

	result := make([]T, 0)
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", kind, err)
		}
		var v T
		if err := json.Unmarshal([]byte(doc), &v); err != nil {
			return nil, fmt.Errorf("failed to decode %s row: %w", kind, err)
		}
		result = append(result, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s rows: %w", kind, err)
	}
	return result, nil
}

func get[T any](ctx context.Context, db dbx.DBTX, kind Kind, id int64) (*T, error) {
	var doc string
	err := db.QueryRowContext(ctx, `SELECT json FROM `+string(kind)+` WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s %d: %w", kind, id, err)
	}
	v := new(T)
	if err := json.Unmarshal([]byte(doc), v); err != nil {
		return nil, fmt.Errorf("failed to decode %s %d: %w", kind, id, err)
	}
	return v, nil
}

func save(ctx context.Context, db dbx.DBTX, kind Kind, id, mod int64, usn int, v any) error {
	doc, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s %d: %w", kind, id, err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO `+string(kind)+` (id, mod, usn, json) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET mod = excluded.mod, usn = excluded.usn, json = excluded.json
	`, id, mod, usn, string(doc))
	if err != nil {
		return fmt.Errorf("failed to save %s %d: %w", kind, id, err)
	}
	return nil
}

// Models lists all note types.
func (r *SQLiteRepository) Models(ctx context.Context) ([]models.Model, error) {
	return list[models.Model](ctx, r.db, Models, "")
}

// GetModel returns the note type with the given id.
func (r *SQLiteRepository) GetModel(ctx context.Context, id int64) (*models.Model, error) {
	return get[models.Model](ctx, r.db, Models, id)
}

// SaveModel inserts or replaces a note type.
func (r *SQLiteRepository) SaveModel(ctx context.Context, m *models.Model) error {
	return save(ctx, r.db, Models, m.ID, m.Mod, m.Usn, m)
}

// DirtyModels lists note types with usn -1.
func (r *SQLiteRepository) DirtyModels(ctx context.Context) ([]models.Model, error) {
	return list[models.Model](ctx, r.db, Models, "WHERE usn = -1")
}

// Decks lists all decks.
func (r *SQLiteRepository) Decks(ctx context.Context) ([]models.Deck, error) {
	return list[models.Deck](ctx, r.db, Decks, "")
}

// GetDeck returns the deck with the given id.
func (r *SQLiteRepository) GetDeck(ctx context.Context, id int64) (*models.Deck, error) {
	return get[models.Deck](ctx, r.db, Decks, id)
}

// SaveDeck inserts or replaces a deck.
func (r *SQLiteRepository) SaveDeck(ctx context.Context, d *models.Deck) error {
	return save(ctx, r.db, Decks, d.ID, d.Mod, d.Usn, d)
}

// DeleteDeck removes the deck row. Its cards are left untouched.
func (r *SQLiteRepository) DeleteDeck(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM decks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete deck %d: %w", id, err)
	}
	return nil
}

// DirtyDecks lists decks with usn -1.
func (r *SQLiteRepository) DirtyDecks(ctx context.Context) ([]models.Deck, error) {
	return list[models.Deck](ctx, r.db, Decks, "WHERE usn = -1")
}

// DeckConfigs lists all deck option groups.
func (r *SQLiteRepository) DeckConfigs(ctx context.Context) ([]models.DeckConfig, error) {
	return list[models.DeckConfig](ctx, r.db, DeckConfigs, "")
}

// GetDeckConfig returns the deck option group with the given id.
func (r *SQLiteRepository) GetDeckConfig(ctx context.Context, id int64) (*models.DeckConfig, error) {
	return get[models.DeckConfig](ctx, r.db, DeckConfigs, id)
}

// SaveDeckConfig inserts or replaces a deck option group.
func (r *SQLiteRepository) SaveDeckConfig(ctx context.Context, c *models.DeckConfig) error {
	return save(ctx, r.db, DeckConfigs, c.ID, c.Mod, c.Usn, c)
}

// DirtyDeckConfigs lists deck option groups with usn -1.
func (r *SQLiteRepository) DirtyDeckConfigs(ctx context.Context) ([]models.DeckConfig, error) {
	return list[models.DeckConfig](ctx, r.db, DeckConfigs, "WHERE usn = -1")
}

// Tags lists all registered tags ordered by name.
func (r *SQLiteRepository) Tags(ctx context.Context) ([]models.Tag, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT tag, usn FROM tags ORDER BY tag`)
	if err != nil {
		return nil, fmt.Errorf("failed to select tags: %w", err)
	}
	defer rows.Close()

	result := make([]models.Tag, 0)
	for rows.Next() {
		var t models.Tag
		if err := rows.Scan(&t.Name, &t.Usn); err != nil {
			return nil, fmt.Errorf("failed to scan tag row: %w", err)
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tag rows: %w", err)
	}
	return result, nil
}

// DirtyTags lists the names of tags with usn -1.
func (r *SQLiteRepository) DirtyTags(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT tag FROM tags WHERE usn = -1 ORDER BY tag`)
	if err != nil {
		return nil, fmt.Errorf("failed to select dirty tags: %w", err)
	}
	defer rows.Close()

	result := make([]string, 0)
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		result = append(result, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tags: %w", err)
	}
	return result, nil
}

// RegisterTags adds tags not yet known with the given usn. Empty names are skipped.
func (r *SQLiteRepository) RegisterTags(ctx context.Context, tags []string, usn int) error {
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		if _, err := r.db.ExecContext(ctx, `INSERT OR IGNORE INTO tags (tag, usn) VALUES (?, ?)`, tag, usn); err != nil {
			return fmt.Errorf("failed to register tag %q: %w", tag, err)
		}
	}
	return nil
}

// StampDirty keeps the usn inside each JSON document in step with the column.
func (r *SQLiteRepository) StampDirty(ctx context.Context, usn int) error {
	for _, k := range kinds {
		_, err := r.db.ExecContext(ctx,
			`UPDATE `+string(k)+` SET usn = ?, json = json_set(json, '$.usn', ?) WHERE usn = -1`, usn, usn)
		if err != nil {
			return fmt.Errorf("failed to stamp %s: %w", k, err)
		}
	}
	if _, err := r.db.ExecContext(ctx, `UPDATE tags SET usn = ? WHERE usn = -1`, usn); err != nil {
		return fmt.Errorf("failed to stamp tags: %w", err)
	}
	return nil
}

// ResetUsn sets usn on every object and tag.
func (r *SQLiteRepository) ResetUsn(ctx context.Context, usn int) error {
	for _, k := range kinds {
		_, err := r.db.ExecContext(ctx,
			`UPDATE `+string(k)+` SET usn = ?, json = json_set(json, '$.usn', ?)`, usn, usn)
		if err != nil {
			return fmt.Errorf("failed to reset usn of %s: %w", k, err)
		}
	}
	if _, err := r.db.ExecContext(ctx, `UPDATE tags SET usn = ?`, usn); err != nil {
		return fmt.Errorf("failed to reset usn of tags: %w", err)
	}
	return nil
}

// Count returns the number of objects of kind.
func (r *SQLiteRepository) Count(ctx context.Context, kind Kind) (int64, error) {
	if err := checkKind(kind); err != nil {
		return 0, err
	}
	n, err := dbx.Scalar(ctx, r.db, `SELECT count() FROM `+string(kind))
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", kind, err)
	}
	return n, nil
}

// CountDirty returns the number of objects and tags with usn -1.
func (r *SQLiteRepository) CountDirty(ctx context.Context) (int64, error) {
	n, err := dbx.Scalar(ctx, r.db, `
		SELECT (SELECT count() FROM models WHERE usn = -1)
		     + (SELECT count() FROM decks WHERE usn = -1)
		     + (SELECT count() FROM deck_config WHERE usn = -1)
		     + (SELECT count() FROM tags WHERE usn = -1)`)
	if err != nil {
		return 0, fmt.Errorf("failed to count dirty objects: %w", err)
	}
	return n, nil
}
