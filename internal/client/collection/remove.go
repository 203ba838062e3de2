package collection

import (
	"context"
	"slices"

	"github.com/dmitrijs2005/ankisync/internal/client/models"
	"github.com/dmitrijs2005/ankisync/internal/client/repositories/records"
)

// RemoveMode selects who initiated a deletion.
type RemoveMode int

const (
	// Local deletions write graves with usn -1 so the next sync sends them.
	Local RemoveMode = iota
	// AsServer applies deletions received from the server. Graves get the
	// collection usn so they are never sent back, and objects with unsynced
	// local edits are kept.
	AsServer
)

func (s *Store) bury(ctx context.Context, ids []int64, typ models.GraveType, mode RemoveMode) error {
	usn := -1
	if mode == AsServer {
		m, err := s.Col.Get(ctx)
		if err != nil {
			return err
		}
		usn = m.Usn
	}
	for _, id := range ids {
		if err := s.Graves.Add(ctx, models.Grave{Oid: id, Type: typ, Usn: usn}); err != nil {
			return err
		}
	}
	return nil
}

func without(ids, drop []int64) []int64 {
	if len(drop) == 0 {
		return ids
	}
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !slices.Contains(drop, id) {
			out = append(out, id)
		}
	}
	return out
}

// RemoveCards deletes cards and then any of their notes left without cards.
func (s *Store) RemoveCards(ctx context.Context, ids []int64, mode RemoveMode) error {
	if len(ids) == 0 {
		return nil
	}
	if mode == AsServer {
		dirty, err := s.Records.DirtyIDs(ctx, records.Cards, ids)
		if err != nil {
			return err
		}
		ids = without(ids, dirty)
		if len(ids) == 0 {
			return nil
		}
	}

	var noteIDs []int64
	for _, id := range ids {
		c, err := s.Records.GetCard(ctx, id)
		if err != nil {
			return err
		}
		if c != nil && !slices.Contains(noteIDs, c.NoteID) {
			noteIDs = append(noteIDs, c.NoteID)
		}
	}

	if err := s.bury(ctx, ids, models.GraveCard, mode); err != nil {
		return err
	}
	if err := s.Records.DeleteCards(ctx, ids); err != nil {
		return err
	}

	orphans, err := s.Records.NotesWithoutCardsAmong(ctx, noteIDs)
	if err != nil {
		return err
	}
	return s.removeNotes(ctx, orphans, mode)
}

// RemoveNotes deletes notes together with their cards.
func (s *Store) RemoveNotes(ctx context.Context, ids []int64, mode RemoveMode) error {
	if len(ids) == 0 {
		return nil
	}
	if mode == AsServer {
		kept, err := s.notesWithLocalEdits(ctx, ids)
		if err != nil {
			return err
		}
		if err := s.keepForUpload(ctx, kept); err != nil {
			return err
		}
		ids = without(ids, kept)
		if len(ids) == 0 {
			return nil
		}
	}

	cids, err := s.Records.CardIDsOfNotes(ctx, ids)
	if err != nil {
		return err
	}
	if err := s.bury(ctx, cids, models.GraveCard, mode); err != nil {
		return err
	}
	if err := s.Records.DeleteCards(ctx, cids); err != nil {
		return err
	}
	return s.removeNotes(ctx, ids, mode)
}

// notesWithLocalEdits returns the notes among ids that have unsynced edits
// themselves or on any of their cards.
func (s *Store) notesWithLocalEdits(ctx context.Context, ids []int64) ([]int64, error) {
	kept, err := s.Records.DirtyIDs(ctx, records.Notes, ids)
	if err != nil {
		return nil, err
	}
	for _, nid := range ids {
		if slices.Contains(kept, nid) {
			continue
		}
		cids, err := s.Records.CardIDsOfNotes(ctx, []int64{nid})
		if err != nil {
			return nil, err
		}
		dirty, err := s.Records.DirtyIDs(ctx, records.Cards, cids)
		if err != nil {
			return nil, err
		}
		if len(dirty) > 0 {
			kept = append(kept, nid)
		}
	}
	return kept, nil
}

// keepForUpload marks surviving notes and all their cards dirty. The server
// has already dropped them, so the whole note must be sent again.
func (s *Store) keepForUpload(ctx context.Context, noteIDs []int64) error {
	if len(noteIDs) == 0 {
		return nil
	}
	if err := s.Records.MarkDirty(ctx, records.Notes, noteIDs); err != nil {
		return err
	}
	cids, err := s.Records.CardIDsOfNotes(ctx, noteIDs)
	if err != nil {
		return err
	}
	return s.Records.MarkDirty(ctx, records.Cards, cids)
}

func (s *Store) removeNotes(ctx context.Context, ids []int64, mode RemoveMode) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.bury(ctx, ids, models.GraveNote, mode); err != nil {
		return err
	}
	return s.Records.DeleteNotes(ctx, ids)
}

// RemoveDeck deletes a deck. A local removal moves its cards to the default
// deck and marks them for upload. A removal from the server leaves the cards
// alone; their new deck arrives with the card rows. The default deck itself
// is never deleted.
func (s *Store) RemoveDeck(ctx context.Context, id int64, mode RemoveMode) error {
	if id == DefaultDeckID {
		return nil
	}
	d, err := s.Objects.GetDeck(ctx, id)
	if err != nil {
		return err
	}
	if d == nil {
		// The removal is recorded even for a deck this side never had.
		return s.bury(ctx, []int64{id}, models.GraveDeck, mode)
	}
	if mode == AsServer && d.Usn == -1 {
		return nil
	}
	if mode == Local {
		if err := s.Records.MoveDeckCards(ctx, id, DefaultDeckID, s.clock.Now().Unix()); err != nil {
			return err
		}
	}
	if err := s.bury(ctx, []int64{id}, models.GraveDeck, mode); err != nil {
		return err
	}
	return s.Objects.DeleteDeck(ctx, id)
}

// ApplyGraves applies deletions received from the server.
func (s *Store) ApplyGraves(ctx context.Context, g models.Graves) error {
	if err := s.RemoveNotes(ctx, g.Notes, AsServer); err != nil {
		return err
	}
	if err := s.RemoveCards(ctx, g.Cards, AsServer); err != nil {
		return err
	}
	for _, id := range g.Decks {
		if err := s.RemoveDeck(ctx, id, AsServer); err != nil {
			return err
		}
	}
	return nil
}
