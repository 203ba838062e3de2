package models

import (
	"strconv"
	"strings"

	"github.com/dmitrijs2005/ankisync/internal/cryptox"
	"github.com/segmentio/encoding/json"
)

// FieldSeparator joins the fields of a note in Note.Fields.
const FieldSeparator = "\x1f"

// Card is one row of the cards table.
type Card struct {
	ID     int64
	NoteID int64
	DeckID int64
	Ord    int
	Mod    int64
	Usn    int
	Type   int
	Queue  int
	Due    int64
	Ivl    int
	Factor int
	Reps   int
	Lapses int
	Left   int
	ODue   int64
	ODid   int64
	Flags  int
	Data   string
}

func (c Card) Values() []any {
	return []any{c.ID, c.NoteID, c.DeckID, c.Ord, c.Mod, c.Usn, c.Type, c.Queue, c.Due,
		c.Ivl, c.Factor, c.Reps, c.Lapses, c.Left, c.ODue, c.ODid, c.Flags, c.Data}
}

func (c Card) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Values())
}

func (c *Card) UnmarshalJSON(b []byte) error {
	return decodeRow(b, "card", &c.ID, &c.NoteID, &c.DeckID, &c.Ord, &c.Mod, &c.Usn, &c.Type, &c.Queue, &c.Due,
		&c.Ivl, &c.Factor, &c.Reps, &c.Lapses, &c.Left, &c.ODue, &c.ODid, &c.Flags, &c.Data)
}

// Note is one row of the notes table. SortField and Checksum are a local
// cache derived from Fields and are not trusted from the wire.
type Note struct {
	ID        int64
	GUID      string
	ModelID   int64
	Mod       int64
	Usn       int
	Tags      string
	Fields    string
	SortField string
	Checksum  int64
	Flags     int
	Data      string
}

func (n Note) Values() []any {
	return []any{n.ID, n.GUID, n.ModelID, n.Mod, n.Usn, n.Tags, n.Fields, n.SortField, n.Checksum, n.Flags, n.Data}
}

func (n Note) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{n.ID, n.GUID, n.ModelID, n.Mod, n.Usn, n.Tags, n.Fields, "", "", n.Flags, n.Data})
}

func (n *Note) UnmarshalJSON(b []byte) error {
	return decodeRow(b, "note", &n.ID, &n.GUID, &n.ModelID, &n.Mod, &n.Usn, &n.Tags, &n.Fields, nil, nil, &n.Flags, &n.Data)
}

// Revlog is one review log entry. Entries are immutable once written.
type Revlog struct {
	ID      int64
	CardID  int64
	Usn     int
	Ease    int
	Ivl     int
	LastIvl int
	Factor  int
	Time    int
	Type    int
}

func (r Revlog) Values() []any {
	return []any{r.ID, r.CardID, r.Usn, r.Ease, r.Ivl, r.LastIvl, r.Factor, r.Time, r.Type}
}

func (r Revlog) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Values())
}

func (r *Revlog) UnmarshalJSON(b []byte) error {
	return decodeRow(b, "revlog", &r.ID, &r.CardID, &r.Usn, &r.Ease, &r.Ivl, &r.LastIvl, &r.Factor, &r.Time, &r.Type)
}

// FieldCache derives the sort field and first-field checksum stored with a
// note. The checksum is the first 32 bits of the SHA-1 of the first field.
func FieldCache(fields string) (sortField string, csum int64) {
	first, _, _ := strings.Cut(fields, FieldSeparator)
	sum := cryptox.ChecksumBytes([]byte(first))
	n, _ := strconv.ParseInt(sum[:8], 16, 64)
	return first, n
}
