package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/ankisync/internal/client/models"
	"github.com/dmitrijs2005/ankisync/internal/dbx"
)

const (
	cardColumns   = `id, nid, did, ord, mod, usn, type, queue, due, ivl, factor, reps, lapses, left, odue, odid, flags, data`
	noteColumns   = `id, guid, mid, mod, usn, tags, flds, sfld, csum, flags, data`
	revlogColumns = `id, cid, usn, ease, ivl, lastIvl, factor, time, type`
)

// SQLiteRepository implements Repository over dbx.DBTX.
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a repository over the cards, notes and revlog tables.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func checkTable(t Table) error {
	switch t {
	case Revlog, Cards, Notes:
		return nil
	}
	return fmt.Errorf("unknown table %q", t)
}

func scanCard(s interface{ Scan(...any) error }, c *models.Card) error {
	return s.Scan(&c.ID, &c.NoteID, &c.DeckID, &c.Ord, &c.Mod, &c.Usn, &c.Type, &c.Queue, &c.Due,
		&c.Ivl, &c.Factor, &c.Reps, &c.Lapses, &c.Left, &c.ODue, &c.ODid, &c.Flags, &c.Data)
}

func scanNote(s interface{ Scan(...any) error }, n *models.Note) error {
	return s.Scan(&n.ID, &n.GUID, &n.ModelID, &n.Mod, &n.Usn, &n.Tags, &n.Fields, &n.SortField, &n.Checksum, &n.Flags, &n.Data)
}

func scanRevlog(s interface{ Scan(...any) error }, r *models.Revlog) error {
	return s.Scan(&r.ID, &r.CardID, &r.Usn, &r.Ease, &r.Ivl, &r.LastIvl, &r.Factor, &r.Time, &r.Type)
}

// SaveCard inserts or replaces a card.
func (r *SQLiteRepository) SaveCard(ctx context.Context, c *models.Card) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO cards (`+cardColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`, c.Values()...)
	if err != nil {
		return fmt.Errorf("failed to save card %d: %w", c.ID, err)
	}
	return nil
}

// SaveNote inserts or replaces a note.
func (r *SQLiteRepository) SaveNote(ctx context.Context, n *models.Note) error {
	n.SortField, n.Checksum = models.FieldCache(n.Fields)
	_, err := r.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO notes (`+noteColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`, n.Values()...)
	if err != nil {
		return fmt.Errorf("failed to save note %d: %w", n.ID, err)
	}
	return nil
}

// AddRevlog appends a review log entry.
func (r *SQLiteRepository) AddRevlog(ctx context.Context, e *models.Revlog) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO revlog (`+revlogColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`, e.Values()...)
	if err != nil {
		return fmt.Errorf("failed to add revlog %d: %w", e.ID, err)
	}
	return nil
}

// GetCard returns the card with the given id.
func (r *SQLiteRepository) GetCard(ctx context.Context, id int64) (*models.Card, error) {
	c := &models.Card{}
	err := scanCard(r.db.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM cards WHERE id = ?`, id), c)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get card %d: %w", id, err)
	}
	return c, nil
}

// GetNote returns the note with the given id.
func (r *SQLiteRepository) GetNote(ctx context.Context, id int64) (*models.Note, error) {
	n := &models.Note{}
	err := scanNote(r.db.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = ?`, id), n)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get note %d: %w", id, err)
	}
	return n, nil
}

// DirtyCards returns up to limit cards with usn -1 and id above afterID, ordered by id.
func (r *SQLiteRepository) DirtyCards(ctx context.Context, afterID int64, limit int) ([]models.Card, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE usn = -1 AND id > ? ORDER BY id LIMIT ?`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select dirty cards: %w", err)
	}
	defer rows.Close()

	result := make([]models.Card, 0, limit)
	for rows.Next() {
		var c models.Card
		if err := scanCard(rows, &c); err != nil {
			return nil, fmt.Errorf("failed to scan card row: %w", err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate card rows: %w", err)
	}
	return result, nil
}

// DirtyNotes returns up to limit notes with usn -1 and id above afterID, ordered by id.
func (r *SQLiteRepository) DirtyNotes(ctx context.Context, afterID int64, limit int) ([]models.Note, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+noteColumns+` FROM notes WHERE usn = -1 AND id > ? ORDER BY id LIMIT ?`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select dirty notes: %w", err)
	}
	defer rows.Close()

	result := make([]models.Note, 0, limit)
	for rows.Next() {
		var n models.Note
		if err := scanNote(rows, &n); err != nil {
			return nil, fmt.Errorf("failed to scan note row: %w", err)
		}
		result = append(result, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate note rows: %w", err)
	}
	return result, nil
}

// DirtyRevlog returns up to limit revlog rows with usn -1 and id above afterID, ordered by id.
func (r *SQLiteRepository) DirtyRevlog(ctx context.Context, afterID int64, limit int) ([]models.Revlog, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+revlogColumns+` FROM revlog WHERE usn = -1 AND id > ? ORDER BY id LIMIT ?`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select dirty revlog: %w", err)
	}
	defer rows.Close()

	result := make([]models.Revlog, 0, limit)
	for rows.Next() {
		var e models.Revlog
		if err := scanRevlog(rows, &e); err != nil {
			return nil, fmt.Errorf("failed to scan revlog row: %w", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate revlog rows: %w", err)
	}
	return result, nil
}

// StampDirty sets usn on every row of table still marked -1.
func (r *SQLiteRepository) StampDirty(ctx context.Context, table Table, usn int) error {
	if err := checkTable(table); err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, `UPDATE `+string(table)+` SET usn = ? WHERE usn = -1`, usn); err != nil {
		return fmt.Errorf("failed to stamp %s: %w", table, err)
	}
	return nil
}

// ResetUsn sets usn on every row of table.
func (r *SQLiteRepository) ResetUsn(ctx context.Context, table Table, usn int) error {
	if err := checkTable(table); err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, `UPDATE `+string(table)+` SET usn = ?`, usn); err != nil {
		return fmt.Errorf("failed to reset usn of %s: %w", table, err)
	}
	return nil
}

// Count returns the number of rows in table.
func (r *SQLiteRepository) Count(ctx context.Context, table Table) (int64, error) {
	if err := checkTable(table); err != nil {
		return 0, err
	}
	n, err := dbx.Scalar(ctx, r.db, `SELECT count() FROM `+string(table))
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

// CountDirty returns the number of rows in table with usn -1.
func (r *SQLiteRepository) CountDirty(ctx context.Context, table Table) (int64, error) {
	if err := checkTable(table); err != nil {
		return 0, err
	}
	n, err := dbx.Scalar(ctx, r.db, `SELECT count() FROM `+string(table)+` WHERE usn = -1`)
	if err != nil {
		return 0, fmt.Errorf("failed to count dirty %s: %w", table, err)
	}
	return n, nil
}

// MergeRevlog inserts revlog rows not present locally and reports how many were written.
func (r *SQLiteRepository) MergeRevlog(ctx context.Context, rows []models.Revlog) (int, error) {
	written := 0
	for i := range rows {
		res, err := r.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO revlog (`+revlogColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`, rows[i].Values()...)
		if err != nil {
			return written, fmt.Errorf("failed to merge revlog %d: %w", rows[i].ID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			written++
		}
	}
	return written, nil
}

// localMods returns id -> mod for the rows of table among ids.
func (r *SQLiteRepository) localMods(ctx context.Context, table Table, ids []int64) (map[int64]int64, error) {
	in, args := dbx.InClause(ids)
	rows, err := r.db.QueryContext(ctx, `SELECT id, mod FROM `+string(table)+` WHERE id IN `+in, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select local %s mods: %w", table, err)
	}
	defer rows.Close()

	mods := make(map[int64]int64, len(ids))
	for rows.Next() {
		var id, mod int64
		if err := rows.Scan(&id, &mod); err != nil {
			return nil, fmt.Errorf("failed to scan %s mod: %w", table, err)
		}
		mods[id] = mod
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s mods: %w", table, err)
	}
	return mods, nil
}

func newer(local map[int64]int64, id, mod int64) bool {
	lmod, ok := local[id]
	return !ok || lmod < mod
}

// MergeCards saves the cards that are missing locally or have a newer mod.
func (r *SQLiteRepository) MergeCards(ctx context.Context, rows []models.Card) (int, error) {
	ids := make([]int64, len(rows))
	for i := range rows {
		ids[i] = rows[i].ID
	}
	local, err := r.localMods(ctx, Cards, ids)
	if err != nil {
		return 0, err
	}

	written := 0
	for i := range rows {
		if !newer(local, rows[i].ID, rows[i].Mod) {
			continue
		}
		if err := r.SaveCard(ctx, &rows[i]); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

// MergeNotes saves the notes that are missing locally or have a newer mod.
func (r *SQLiteRepository) MergeNotes(ctx context.Context, rows []models.Note) (int, error) {
	ids := make([]int64, len(rows))
	for i := range rows {
		ids[i] = rows[i].ID
	}
	local, err := r.localMods(ctx, Notes, ids)
	if err != nil {
		return 0, err
	}

	written := 0
	for i := range rows {
		if !newer(local, rows[i].ID, rows[i].Mod) {
			continue
		}
		if err := r.SaveNote(ctx, &rows[i]); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

func (r *SQLiteRepository) queryIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DirtyIDs returns the subset of ids whose rows in table have usn -1.
func (r *SQLiteRepository) DirtyIDs(ctx context.Context, table Table, ids []int64) ([]int64, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	in, args := dbx.InClause(ids)
	dirty, err := r.queryIDs(ctx, `SELECT id FROM `+string(table)+` WHERE usn = -1 AND id IN `+in, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select dirty %s ids: %w", table, err)
	}
	return dirty, nil
}

// MarkDirty sets usn -1 on the rows of table among ids.
func (r *SQLiteRepository) MarkDirty(ctx context.Context, table Table, ids []int64) error {
	if err := checkTable(table); err != nil {
		return err
	}
	in, args := dbx.InClause(ids)
	if _, err := r.db.ExecContext(ctx, `UPDATE `+string(table)+` SET usn = -1 WHERE id IN `+in, args...); err != nil {
		return fmt.Errorf("failed to mark %s dirty: %w", table, err)
	}
	return nil
}

// CardIDsOfNotes returns the ids of cards belonging to the given notes.
func (r *SQLiteRepository) CardIDsOfNotes(ctx context.Context, noteIDs []int64) ([]int64, error) {
	in, args := dbx.InClause(noteIDs)
	ids, err := r.queryIDs(ctx, `SELECT id FROM cards WHERE nid IN `+in, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select cards of notes: %w", err)
	}
	return ids, nil
}

// NotesWithoutCardsAmong returns the given notes that no card refers to.
func (r *SQLiteRepository) NotesWithoutCardsAmong(ctx context.Context, noteIDs []int64) ([]int64, error) {
	in, args := dbx.InClause(noteIDs)
	ids, err := r.queryIDs(ctx,
		`SELECT id FROM notes WHERE id IN `+in+` AND id NOT IN (SELECT DISTINCT nid FROM cards)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select orphaned notes: %w", err)
	}
	return ids, nil
}

// DeleteCards removes the cards with the given ids.
func (r *SQLiteRepository) DeleteCards(ctx context.Context, ids []int64) error {
	in, args := dbx.InClause(ids)
	if _, err := r.db.ExecContext(ctx, `DELETE FROM cards WHERE id IN `+in, args...); err != nil {
		return fmt.Errorf("failed to delete cards: %w", err)
	}
	return nil
}

// DeleteNotes removes the notes with the given ids.
func (r *SQLiteRepository) DeleteNotes(ctx context.Context, ids []int64) error {
	in, args := dbx.InClause(ids)
	if _, err := r.db.ExecContext(ctx, `DELETE FROM notes WHERE id IN `+in, args...); err != nil {
		return fmt.Errorf("failed to delete notes: %w", err)
	}
	return nil
}

// MoveDeckCards moves every card of deck from into deck to and marks them for upload.
func (r *SQLiteRepository) MoveDeckCards(ctx context.Context, from, to, mod int64) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE cards SET did = ?, mod = ?, usn = -1 WHERE did = ?`, to, mod, from); err != nil {
		return fmt.Errorf("failed to move cards of deck %d: %w", from, err)
	}
	return nil
}

// CardsWithoutNotes counts cards whose note is missing.
func (r *SQLiteRepository) CardsWithoutNotes(ctx context.Context) (int64, error) {
	n, err := dbx.Scalar(ctx, r.db, `SELECT count() FROM cards WHERE nid NOT IN (SELECT id FROM notes)`)
	if err != nil {
		return 0, fmt.Errorf("failed to count cards without notes: %w", err)
	}
	return n, nil
}

// NotesWithoutCards counts notes that have no cards.
func (r *SQLiteRepository) NotesWithoutCards(ctx context.Context) (int64, error) {
	n, err := dbx.Scalar(ctx, r.db, `SELECT count() FROM notes WHERE id NOT IN (SELECT DISTINCT nid FROM cards)`)
	if err != nil {
		return 0, fmt.Errorf("failed to count notes without cards: %w", err)
	}
	return n, nil
}

// QueueCounts counts new cards (queue 0), cards in learning (queues 1 and
// 3) and review cards (queue 2) due on or before today.
func (r *SQLiteRepository) QueueCounts(ctx context.Context, today int64) (int64, int64, int64, error) {
	var newCount, learn, review int64
	err := r.db.QueryRowContext(ctx, `
		SELECT
			coalesce(sum(queue = 0), 0),
			coalesce(sum(queue IN (1, 3)), 0),
			coalesce(sum(queue = 2 AND due <= ?), 0)
		FROM cards`, today).Scan(&newCount, &learn, &review)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to count queues: %w", err)
	}
	return newCount, learn, review, nil
}
