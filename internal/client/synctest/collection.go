package synctest

import (
	"net/http"
	"slices"
	"time"

	"github.com/dmitrijs2005/ankisync/internal/client/models"
	"github.com/dmitrijs2005/ankisync/internal/common"
	"github.com/labstack/echo/v4"
	"github.com/segmentio/encoding/json"
)

// Collection is the server copy of a collection.
type Collection struct {
	Crt  int64
	Mod  int64
	Scm  int64
	Usn  int
	Conf json.RawMessage

	Cards       map[int64]models.Card
	Notes       map[int64]models.Note
	Revlog      map[int64]models.Revlog
	Models      map[int64]models.Model
	Decks       map[int64]models.Deck
	DeckConfigs map[int64]models.DeckConfig
	Tags        map[string]int
	Graves      []models.Grave

	// File is the body served by download and replaced by upload.
	File []byte
}

// NewCollection returns an empty server collection that has never been
// modified, holding only the default deck and deck options.
func NewCollection(now time.Time) Collection {
	return Collection{
		Crt:         now.Unix(),
		Scm:         now.UnixMilli(),
		Conf:        json.RawMessage(`{}`),
		Cards:       map[int64]models.Card{},
		Notes:       map[int64]models.Note{},
		Revlog:      map[int64]models.Revlog{},
		Models:      map[int64]models.Model{},
		Decks:       map[int64]models.Deck{1: {ID: 1, Name: "Default", ConfigID: 1}},
		DeckConfigs: map[int64]models.DeckConfig{1: {ID: 1, Name: "Default"}},
		Tags:        map[string]int{},
	}
}

type session struct {
	minUsn int
	lnewer bool
	queue  []records
}

type records struct {
	table  string
	revlog []models.Revlog
	cards  []models.Card
	notes  []models.Note
}

func (r *records) len() int {
	return len(r.revlog) + len(r.cards) + len(r.notes)
}

func sortedValues[V any](m map[int64]V, keep func(V) bool) []V {
	ids := make([]int64, 0, len(m))
	for id, v := range m {
		if keep(v) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	out := make([]V, 0, len(ids))
	for _, id := range ids {
		out = append(out, m[id])
	}
	return out
}

func (c *Collection) bury(oid int64, typ models.GraveType, usn int) {
	for i, g := range c.Graves {
		if g.Oid == oid && g.Type == typ {
			c.Graves[i].Usn = usn
			return
		}
	}
	c.Graves = append(c.Graves, models.Grave{Oid: oid, Type: typ, Usn: usn})
}

func (c *Collection) unbury(oid int64, typ models.GraveType) {
	c.Graves = slices.DeleteFunc(c.Graves, func(g models.Grave) bool {
		return g.Oid == oid && g.Type == typ
	})
}

// Remove deletes objects the way a client's grave asks for and records
// graves with usn.
func (c *Collection) Remove(g models.Graves, usn int) {
	for _, nid := range g.Notes {
		for cid, card := range c.Cards {
			if card.NoteID == nid {
				delete(c.Cards, cid)
			}
		}
		delete(c.Notes, nid)
		c.bury(nid, models.GraveNote, usn)
	}
	for _, cid := range g.Cards {
		delete(c.Cards, cid)
		c.bury(cid, models.GraveCard, usn)
	}
	for _, did := range g.Decks {
		if did == 1 {
			continue
		}
		for cid, card := range c.Cards {
			if card.DeckID == did {
				card.DeckID = 1
				c.Cards[cid] = card
			}
		}
		delete(c.Decks, did)
		c.bury(did, models.GraveDeck, usn)
	}
}

func (c *Collection) gravesSince(minUsn int) models.Graves {
	out := models.NewGraves()
	for _, g := range c.Graves {
		if g.Usn < minUsn {
			continue
		}
		switch g.Type {
		case models.GraveCard:
			out.Cards = append(out.Cards, g.Oid)
		case models.GraveNote:
			out.Notes = append(out.Notes, g.Oid)
		case models.GraveDeck:
			out.Decks = append(out.Decks, g.Oid)
		}
	}
	return out
}

func (c *Collection) changesSince(minUsn int, withConf bool) models.Changes {
	ch := models.Changes{
		Models: sortedValues(c.Models, func(m models.Model) bool { return m.Usn >= minUsn }),
		Decks: models.DeckChanges{
			Decks:   sortedValues(c.Decks, func(d models.Deck) bool { return d.Usn >= minUsn }),
			Configs: sortedValues(c.DeckConfigs, func(d models.DeckConfig) bool { return d.Usn >= minUsn }),
		},
		Tags: []string{},
	}
	for tag, usn := range c.Tags {
		if usn >= minUsn {
			ch.Tags = append(ch.Tags, tag)
		}
	}
	slices.Sort(ch.Tags)
	if withConf {
		crt := c.Crt
		ch.Conf = c.Conf
		ch.Crt = &crt
	}
	return ch
}

func (c *Collection) merge(ch models.Changes, usn int) {
	for _, m := range ch.Models {
		if l, ok := c.Models[m.ID]; !ok || m.Mod > l.Mod {
			c.Models[m.ID] = m
		}
	}
	for _, d := range ch.Decks.Decks {
		if l, ok := c.Decks[d.ID]; !ok || d.Mod > l.Mod {
			c.Decks[d.ID] = d
		}
		c.unbury(d.ID, models.GraveDeck)
	}
	for _, d := range ch.Decks.Configs {
		if l, ok := c.DeckConfigs[d.ID]; !ok || d.Mod > l.Mod {
			c.DeckConfigs[d.ID] = d
		}
	}
	for _, tag := range ch.Tags {
		if _, ok := c.Tags[tag]; !ok && tag != "" {
			c.Tags[tag] = usn
		}
	}
	if len(ch.Conf) > 0 {
		c.Conf = ch.Conf
	}
	if ch.Crt != nil {
		c.Crt = *ch.Crt
	}
}

func (c *Collection) applyChunk(ch models.Chunk) {
	for _, r := range ch.Revlog {
		if _, ok := c.Revlog[r.ID]; !ok {
			c.Revlog[r.ID] = r
		}
	}
	for _, card := range ch.Cards {
		if l, ok := c.Cards[card.ID]; !ok || l.Mod < card.Mod {
			c.Cards[card.ID] = card
		}
		c.unbury(card.ID, models.GraveCard)
	}
	for _, n := range ch.Notes {
		if l, ok := c.Notes[n.ID]; !ok || l.Mod < n.Mod {
			c.Notes[n.ID] = n
		}
		c.unbury(n.ID, models.GraveNote)
	}
}

// Counts returns the server half of the sanity check. Queue counts are not
// scheduled here and are taken from queues.
func (c *Collection) Counts(queues models.SanityCounts) models.SanityCounts {
	return models.SanityCounts{
		New:         queues.New,
		Learn:       queues.Learn,
		Review:      queues.Review,
		Cards:       int64(len(c.Cards)),
		Notes:       int64(len(c.Notes)),
		Revlog:      int64(len(c.Revlog)),
		Graves:      int64(len(c.Graves)),
		Models:      int64(len(c.Models)),
		Decks:       int64(len(c.Decks)),
		DeckConfigs: int64(len(c.DeckConfigs)),
	}
}

func (c *Collection) prepareChunks(minUsn int) []records {
	return []records{
		{table: "revlog", revlog: sortedValues(c.Revlog, func(r models.Revlog) bool { return r.Usn >= minUsn })},
		{table: "cards", cards: sortedValues(c.Cards, func(r models.Card) bool { return r.Usn >= minUsn })},
		{table: "notes", notes: sortedValues(c.Notes, func(r models.Note) bool { return r.Usn >= minUsn })},
	}
}

func nextChunk(queue []records) (models.Chunk, []records) {
	var ch models.Chunk
	left := common.ChunkSize
	for len(queue) > 0 && left > 0 {
		r := &queue[0]
		switch r.table {
		case "revlog":
			n := min(left, len(r.revlog))
			ch.Revlog, r.revlog = r.revlog[:n], r.revlog[n:]
			left -= n
		case "cards":
			n := min(left, len(r.cards))
			ch.Cards, r.cards = r.cards[:n], r.cards[n:]
			left -= n
		case "notes":
			n := min(left, len(r.notes))
			ch.Notes, r.notes = r.notes[:n], r.notes[n:]
			left -= n
		}
		if r.len() == 0 {
			queue = queue[1:]
		}
	}
	ch.Done = len(queue) == 0
	return ch, queue
}

type sanityReply struct {
	Status string              `json:"status"`
	Client models.SanityCounts `json:"c"`
	Server models.SanityCounts `json:"s"`
}

func (s *Server) collectionHandler(c echo.Context) error {
	verb := c.Param("verb")
	if code := s.enter(verb); code != 0 {
		return c.String(code, http.StatusText(code))
	}
	r, err := s.read(c)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	st := &s.st
	col := &st.Col

	if verb == "hostKey" {
		var req struct {
			U string `json:"u"`
			P string `json:"p"`
		}
		if err := unmarshal(r.data, &req); err != nil {
			return err
		}
		if req.U != st.User || req.P != st.Password {
			return forbidden(c)
		}
		return writeJSON(c, map[string]string{"key": st.HostKey})
	}
	if r.fields["k"] != st.HostKey {
		return forbidden(c)
	}

	switch verb {
	case "meta":
		st.session = session{}
		return writeJSON(c, map[string]any{
			"mod":     col.Mod,
			"scm":     col.Scm,
			"usn":     col.Usn,
			"ts":      s.clock.Now().Add(st.Skew).Unix(),
			"msg":     st.Msg,
			"cont":    st.Cont,
			"hostNum": st.HostNum,
		})

	case "start":
		var req struct {
			MinUsn int           `json:"minUsn"`
			LNewer bool          `json:"lnewer"`
			Graves models.Graves `json:"graves"`
		}
		if err := unmarshal(r.data, &req); err != nil {
			return err
		}
		st.session.minUsn = req.MinUsn
		st.session.lnewer = req.LNewer
		reply := col.gravesSince(req.MinUsn)
		col.Remove(req.Graves, col.Usn)
		return writeJSON(c, reply)

	case "applyChanges":
		var req struct {
			Changes models.Changes `json:"changes"`
		}
		if err := unmarshal(r.data, &req); err != nil {
			return err
		}
		reply := col.changesSince(st.session.minUsn, !st.session.lnewer)
		col.merge(req.Changes, col.Usn)
		st.session.queue = col.prepareChunks(st.session.minUsn)
		return writeJSON(c, reply)

	case "chunk":
		var ch models.Chunk
		ch, st.session.queue = nextChunk(st.session.queue)
		return writeJSON(c, ch)

	case "applyChunk":
		var req struct {
			Chunk models.Chunk `json:"chunk"`
		}
		if err := unmarshal(r.data, &req); err != nil {
			return err
		}
		col.applyChunk(req.Chunk)
		return writeJSON(c, nil)

	case "sanityCheck2":
		var req struct {
			Client models.SanityCounts `json:"client"`
		}
		if err := unmarshal(r.data, &req); err != nil {
			return err
		}
		reply := sanityReply{Status: "ok", Client: req.Client, Server: col.Counts(req.Client)}
		if reply.Client != reply.Server {
			reply.Status = "bad"
		}
		if st.SanityStatus != "" {
			reply.Status = st.SanityStatus
		}
		return writeJSON(c, reply)

	case "finish":
		if st.FinishMod != nil {
			return writeJSON(c, *st.FinishMod)
		}
		col.Usn++
		col.Mod = s.clock.Now().UnixMilli()
		return writeJSON(c, col.Mod)

	case "abort":
		st.session = session{}
		return c.String(http.StatusOK, "")

	case "download":
		return c.Blob(http.StatusOK, echo.MIMEOctetStream, col.File)

	case "upload":
		col.File = r.data
		if st.UploadReply != "" {
			return c.String(http.StatusOK, st.UploadReply)
		}
		return c.String(http.StatusOK, common.StatusOK)
	}
	return echo.NewHTTPError(http.StatusNotFound, "unknown verb "+verb)
}
