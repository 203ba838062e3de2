package models

import (
	"fmt"

	"github.com/segmentio/encoding/json"
)

// GraveType is the kind of object a grave records the deletion of.
type GraveType int

const (
	GraveCard GraveType = 0
	GraveNote GraveType = 1
	GraveDeck GraveType = 2
)

// Grave is a tombstone for a deleted card, note or deck.
type Grave struct {
	Oid  int64
	Type GraveType
	Usn  int
}

// Graves is the deletion set exchanged by the start verb.
type Graves struct {
	Cards []int64 `json:"cards"`
	Notes []int64 `json:"notes"`
	Decks []int64 `json:"decks"`
}

// NewGraves returns an empty set that encodes as empty arrays, not null.
func NewGraves() Graves {
	return Graves{Cards: []int64{}, Notes: []int64{}, Decks: []int64{}}
}

func (g Graves) Empty() bool {
	return len(g.Cards) == 0 && len(g.Notes) == 0 && len(g.Decks) == 0
}

// Chunk is one page of large-table rows. A table key present with an empty
// list still means the sender visited that table.
type Chunk struct {
	Done   bool     `json:"done"`
	Revlog []Revlog `json:"revlog,omitempty"`
	Cards  []Card   `json:"cards,omitempty"`
	Notes  []Note   `json:"notes,omitempty"`
}

// Rows returns the total number of rows carried by c.
func (c Chunk) Rows() int {
	return len(c.Revlog) + len(c.Cards) + len(c.Notes)
}

// SanityCounts is the canonical collection summary both sides compute at the
// end of a sync. On the wire it is
// [[new, lrn, rev], cards, notes, revlog, graves, models, decks, dconf].
type SanityCounts struct {
	New         int64
	Learn       int64
	Review      int64
	Cards       int64
	Notes       int64
	Revlog      int64
	Graves      int64
	Models      int64
	Decks       int64
	DeckConfigs int64
}

func (s SanityCounts) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{
		[]int64{s.New, s.Learn, s.Review},
		s.Cards, s.Notes, s.Revlog, s.Graves, s.Models, s.Decks, s.DeckConfigs,
	})
}

func (s *SanityCounts) UnmarshalJSON(b []byte) error {
	var queues []int64
	if err := decodeRow(b, "sanity", &queues, &s.Cards, &s.Notes, &s.Revlog, &s.Graves, &s.Models, &s.Decks, &s.DeckConfigs); err != nil {
		return err
	}
	if len(queues) != 3 {
		return fmt.Errorf("decode sanity row: want 3 queue counts, got %d", len(queues))
	}
	s.New, s.Learn, s.Review = queues[0], queues[1], queues[2]
	return nil
}
