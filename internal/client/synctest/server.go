// Package synctest runs an in-memory sync server behind httptest. It speaks
// the same multipart protocol as the real collection and media endpoints and
// keeps just enough server state to drive complete syncs in tests.
package synctest

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/dmitrijs2005/ankisync/internal/client/models"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/segmentio/encoding/json"
)

// State is everything the fake server knows. Tests change it through
// Server.With.
type State struct {
	User     string
	Password string
	HostKey  string

	// Skew is added to the server clock reported by meta.
	Skew    time.Duration
	Msg     string
	Cont    bool
	HostNum *int

	// SanityStatus, when set, replaces the computed sanityCheck2 status.
	SanityStatus string
	// FinishMod, when set, is returned by finish instead of the new mod.
	FinishMod *int64
	// UploadReply, when set, replaces "OK" for a full upload.
	UploadReply string
	// Fail maps a verb to the HTTP status it answers with.
	Fail map[string]int
	// OnVerb runs before a verb is handled, outside the state lock.
	OnVerb func(verb string)
	Calls  []string

	Col   Collection
	Media Media

	session session
}

// Server is a running fake. It is closed when the test ends.
type Server struct {
	mu    sync.Mutex
	st    State
	clock clockwork.Clock
	srv   *httptest.Server
}

type cleanuper interface {
	Cleanup(func())
}

// New starts a server whose only account is user/password.
func New(t cleanuper, clock clockwork.Clock) *Server {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s := &Server{
		clock: clock,
		st: State{
			User:     "user",
			Password: "pass",
			HostKey:  "hostkey-1",
			Cont:     true,
			Fail:     map[string]int{},
			Col:      NewCollection(clock.Now()),
			Media:    NewMedia(),
		},
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.POST("/sync/:verb", s.collectionHandler)
	e.POST("/msync/:verb", s.mediaHandler)

	s.srv = httptest.NewServer(e)
	t.Cleanup(s.srv.Close)
	return s
}

// URL is the collection endpoint; the media endpoint is at /msync/.
func (s *Server) URL() string {
	return s.srv.URL + "/sync/"
}

func (s *Server) MediaURL() string {
	return s.srv.URL + "/msync/"
}

// With runs fn with exclusive access to the server state.
func (s *Server) With(fn func(st *State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.st)
}

// Calls returns the verbs handled so far, in order.
func (s *Server) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.st.Calls...)
}

// Close stops the server early, so later requests fail at the network level.
func (s *Server) Close() {
	s.srv.Close()
}

type request struct {
	verb   string
	fields map[string]string
	data   []byte
}

func (s *Server) read(c echo.Context) (*request, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r := &request{verb: c.Param("verb"), fields: map[string]string{}}
	for k, v := range form.Value {
		if len(v) > 0 {
			r.fields[k] = v[0]
		}
	}
	if fh, ok := form.File["data"]; ok && len(fh) > 0 {
		f, err := fh[0].Open()
		if err != nil {
			return nil, err
		}
		defer f.Close()
		var src io.Reader = f
		if r.fields["c"] == "1" {
			gz, err := gzip.NewReader(f)
			if err != nil {
				return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
			}
			defer gz.Close()
			src = gz
		}
		if r.data, err = io.ReadAll(src); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// enter records the call and reports a configured failure status, if any.
func (s *Server) enter(verb string) int {
	s.mu.Lock()
	hook := s.st.OnVerb
	s.mu.Unlock()
	if hook != nil {
		hook(verb)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.Calls = append(s.st.Calls, verb)
	return s.st.Fail[verb]
}

func writeJSON(c echo.Context, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, b)
}

func unmarshal(data []byte, dst any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func forbidden(c echo.Context) error {
	return c.String(http.StatusForbidden, "invalid credentials")
}

// Card, Note and Revlog helpers build rows for seeding server state.

func Card(id, nid int64, mod int64, usn int) models.Card {
	return models.Card{ID: id, NoteID: nid, DeckID: 1, Mod: mod, Usn: usn, Factor: 2500}
}

func Note(id int64, mod int64, usn int, fields string) models.Note {
	return models.Note{ID: id, GUID: "guid" + fields, ModelID: 1, Mod: mod, Usn: usn, Fields: fields}
}

func Revlog(id, cid int64, usn int) models.Revlog {
	return models.Revlog{ID: id, CardID: cid, Usn: usn, Ease: 3, Ivl: 1}
}
