package collection

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/ankisync/internal/client/models"
	"github.com/dmitrijs2005/ankisync/internal/client/repositories/col"
	"github.com/dmitrijs2005/ankisync/internal/client/repositories/graves"
	"github.com/dmitrijs2005/ankisync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/ankisync/internal/client/repositories/objects"
	"github.com/dmitrijs2005/ankisync/internal/client/repositories/records"
	"github.com/dmitrijs2005/ankisync/internal/common"
	"github.com/dmitrijs2005/ankisync/internal/dbx"
	"github.com/jonboulle/clockwork"
)

// DefaultDeckID is the deck that cannot be deleted.
const DefaultDeckID = 1

// Store bundles the collection repositories over one DBTX, so that a sync
// can run every read and write inside the same transaction.
type Store struct {
	db    dbx.DBTX
	clock clockwork.Clock

	Col     col.Repository
	Records records.Repository
	Objects objects.Repository
	Graves  graves.Repository
	Prefs   metadata.Repository
}

func NewStore(db dbx.DBTX, clock clockwork.Clock) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{
		db:      db,
		clock:   clock,
		Col:     col.NewSQLiteRepository(db),
		Records: records.NewSQLiteRepository(db),
		Objects: objects.NewSQLiteRepository(db),
		Graves:  graves.NewSQLiteRepository(db),
		Prefs:   metadata.NewSQLiteRepository(db),
	}
}

func (s *Store) Header(ctx context.Context) (*models.CollectionMeta, error) {
	return s.Col.Get(ctx)
}

func (s *Store) SaveHeader(ctx context.Context, m *models.CollectionMeta) error {
	return s.Col.Save(ctx, m)
}

// Touch marks the collection modified now.
func (s *Store) Touch(ctx context.Context) error {
	m, err := s.Col.Get(ctx)
	if err != nil {
		return err
	}
	m.Mod = s.clock.Now().UnixMilli()
	return s.Col.Save(ctx, m)
}

// ModSchema bumps the schema time so the next sync is a full sync.
func (s *Store) ModSchema(ctx context.Context) error {
	m, err := s.Col.Get(ctx)
	if err != nil {
		return err
	}
	now := s.clock.Now().UnixMilli()
	m.Scm = now
	m.Mod = now
	return s.Col.Save(ctx, m)
}

// Today is the scheduler day number: whole days since the creation time.
func (s *Store) Today(ctx context.Context) (int64, error) {
	m, err := s.Col.Get(ctx)
	if err != nil {
		return 0, err
	}
	return (s.clock.Now().Unix() - m.Crt) / 86400, nil
}

// StampDirty gives every row still at usn -1 the given usn.
func (s *Store) StampDirty(ctx context.Context, usn int) error {
	for _, t := range []records.Table{records.Revlog, records.Cards, records.Notes} {
		if err := s.Records.StampDirty(ctx, t, usn); err != nil {
			return err
		}
	}
	if err := s.Objects.StampDirty(ctx, usn); err != nil {
		return err
	}
	return s.Graves.StampDirty(ctx, usn)
}

// CountDirty counts rows of every synced table still at usn -1.
func (s *Store) CountDirty(ctx context.Context) (int64, error) {
	var total int64
	for _, t := range []records.Table{records.Revlog, records.Cards, records.Notes} {
		n, err := s.Records.CountDirty(ctx, t)
		if err != nil {
			return 0, err
		}
		total += n
	}
	n, err := s.Objects.CountDirty(ctx)
	if err != nil {
		return 0, err
	}
	total += n
	n, err = s.Graves.CountDirty(ctx)
	if err != nil {
		return 0, err
	}
	return total + n, nil
}

// MarkAllSynced prepares the collection for a full upload: every usn goes
// to 0 and the last-sync time to the current mod.
func (s *Store) MarkAllSynced(ctx context.Context) error {
	for _, t := range []records.Table{records.Revlog, records.Cards, records.Notes} {
		if err := s.Records.ResetUsn(ctx, t, 0); err != nil {
			return err
		}
	}
	if err := s.Objects.ResetUsn(ctx, 0); err != nil {
		return err
	}
	if err := s.Graves.ResetUsn(ctx, 0); err != nil {
		return err
	}
	m, err := s.Col.Get(ctx)
	if err != nil {
		return err
	}
	m.Usn = 0
	m.Ls = m.Mod
	return s.Col.Save(ctx, m)
}

// BasicCheck fails with common.ErrBasicCheckFailed when a card has no note
// or a note has no card.
func (s *Store) BasicCheck(ctx context.Context) error {
	n, err := s.Records.CardsWithoutNotes(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: %d cards without notes", common.ErrBasicCheckFailed, n)
	}
	n, err = s.Records.NotesWithoutCards(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: %d notes without cards", common.ErrBasicCheckFailed, n)
	}
	return nil
}

// SanityCounts computes the summary compared with the server at the end
// of a sync.
func (s *Store) SanityCounts(ctx context.Context) (models.SanityCounts, error) {
	var c models.SanityCounts

	today, err := s.Today(ctx)
	if err != nil {
		return c, err
	}
	if c.New, c.Learn, c.Review, err = s.Records.QueueCounts(ctx, today); err != nil {
		return c, err
	}
	if c.Cards, err = s.Records.Count(ctx, records.Cards); err != nil {
		return c, err
	}
	if c.Notes, err = s.Records.Count(ctx, records.Notes); err != nil {
		return c, err
	}
	if c.Revlog, err = s.Records.Count(ctx, records.Revlog); err != nil {
		return c, err
	}
	if c.Graves, err = s.Graves.Count(ctx); err != nil {
		return c, err
	}
	if c.Models, err = s.Objects.Count(ctx, objects.Models); err != nil {
		return c, err
	}
	if c.Decks, err = s.Objects.Count(ctx, objects.Decks); err != nil {
		return c, err
	}
	if c.DeckConfigs, err = s.Objects.Count(ctx, objects.DeckConfigs); err != nil {
		return c, err
	}
	return c, nil
}
