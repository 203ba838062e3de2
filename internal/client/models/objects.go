package models

import (
	"fmt"

	"github.com/segmentio/encoding/json"
)

// Model is a note type. Fields and templates are opaque to sync except for
// their count, which must not change without a schema bump.
type Model struct {
	ID        int64             `json:"id" validate:"required"`
	Name      string            `json:"name"`
	Mod       int64             `json:"mod"`
	Usn       int               `json:"usn"`
	Type      int               `json:"type"`
	CSS       string            `json:"css"`
	Fields    []json.RawMessage `json:"flds"`
	Templates []json.RawMessage `json:"tmpls"`
}

type Deck struct {
	ID       int64  `json:"id" validate:"required"`
	Name     string `json:"name"`
	Mod      int64  `json:"mod"`
	Usn      int    `json:"usn"`
	ConfigID int64  `json:"conf"`
	Dyn      int    `json:"dyn"`
	Desc     string `json:"desc"`
}

type DeckConfig struct {
	ID    int64           `json:"id" validate:"required"`
	Name  string          `json:"name"`
	Mod   int64           `json:"mod"`
	Usn   int             `json:"usn"`
	New   json.RawMessage `json:"new,omitempty"`
	Rev   json.RawMessage `json:"rev,omitempty"`
	Lapse json.RawMessage `json:"lapse,omitempty"`
}

type Tag struct {
	Name string
	Usn  int
}

// DeckChanges is sent on the wire as a two element array [decks, configs].
type DeckChanges struct {
	Decks   []Deck
	Configs []DeckConfig
}

func (d DeckChanges) MarshalJSON() ([]byte, error) {
	decks, configs := d.Decks, d.Configs
	if decks == nil {
		decks = []Deck{}
	}
	if configs == nil {
		configs = []DeckConfig{}
	}
	return json.Marshal([]any{decks, configs})
}

func (d *DeckChanges) UnmarshalJSON(b []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("decode decks: want [decks, configs], got %d elements", len(pair))
	}
	if err := json.Unmarshal(pair[0], &d.Decks); err != nil {
		return fmt.Errorf("decode decks: %w", err)
	}
	if err := json.Unmarshal(pair[1], &d.Configs); err != nil {
		return fmt.Errorf("decode deck configs: %w", err)
	}
	return nil
}

// Changes bundles the small objects exchanged in one applyChanges round
// trip. Conf and Crt are only sent by the side whose collection is newer.
type Changes struct {
	Models []Model         `json:"models" validate:"dive"`
	Decks  DeckChanges     `json:"decks"`
	Tags   []string        `json:"tags"`
	Conf   json.RawMessage `json:"conf,omitempty"`
	Crt    *int64          `json:"crt,omitempty"`
}
