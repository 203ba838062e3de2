package synctest

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"

	"github.com/dmitrijs2005/ankisync/internal/client/models"
	"github.com/dmitrijs2005/ankisync/internal/common"
	"github.com/dmitrijs2005/ankisync/internal/cryptox"
	"github.com/labstack/echo/v4"
	"github.com/segmentio/encoding/json"
)

// Media is the server media folder and its change log.
type Media struct {
	Usn        int
	Files      map[string][]byte
	Log        []models.MediaChange
	SessionKey string
	// PageSize bounds one mediaChanges reply.
	PageSize int
	// ConcurrentBumps is the number of upcoming uploads that another
	// client races with a change of its own.
	ConcurrentBumps int
	// SanityReply, when set, replaces the computed mediaSanity answer.
	SanityReply string
	// Err maps a verb to the message sent in the "err" field.
	Err map[string]string
}

func NewMedia() Media {
	return Media{
		Files:      map[string][]byte{},
		SessionKey: "sk-1",
		PageSize:   50,
		Err:        map[string]string{},
	}
}

// Put stores a file as a new change.
func (m *Media) Put(fname string, data []byte) {
	m.Usn++
	m.Files[fname] = data
	m.Log = append(m.Log, models.MediaChange{Fname: fname, Usn: m.Usn, Csum: cryptox.ChecksumBytes(data)})
}

// Remove records a deletion as a new change.
func (m *Media) Remove(fname string) {
	m.Usn++
	delete(m.Files, fname)
	m.Log = append(m.Log, models.MediaChange{Fname: fname, Usn: m.Usn})
}

func (m *Media) changesAfter(lastUsn int) []models.MediaChange {
	latest := map[string]int{}
	for i, ch := range m.Log {
		if ch.Usn > lastUsn {
			latest[ch.Fname] = i
		}
	}
	idx := make([]int, 0, len(latest))
	for _, i := range latest {
		idx = append(idx, i)
	}
	slices.Sort(idx)
	out := make([]models.MediaChange, 0, len(idx))
	for _, i := range idx {
		if m.PageSize > 0 && len(out) == m.PageSize {
			break
		}
		out = append(out, m.Log[i])
	}
	return out
}

func (m *Media) zipFiles(fnames []string) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	meta := map[string]string{}
	n := 0
	for _, fname := range fnames {
		data, ok := m.Files[fname]
		if !ok {
			continue
		}
		name := strconv.Itoa(n)
		w, err := zw.Create(name)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		meta[name] = fname
		n++
	}
	w, err := zw.Create("_meta")
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(b); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (m *Media) applyUpload(data []byte) (int, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, err
	}
	files := map[string]*zip.File{}
	for _, f := range zr.File {
		files[f.Name] = f
	}
	metaFile, ok := files["_meta"]
	if !ok {
		return 0, fmt.Errorf("zip has no _meta")
	}
	raw, err := readZipFile(metaFile)
	if err != nil {
		return 0, err
	}
	var meta [][2]string
	if err := json.Unmarshal(raw, &meta); err != nil {
		return 0, err
	}

	if m.ConcurrentBumps > 0 {
		m.ConcurrentBumps--
		m.Put(fmt.Sprintf("other-%d.txt", m.Usn+1), []byte("from another device"))
	}

	for _, entry := range meta {
		fname, zipName := entry[0], entry[1]
		if zipName == "" {
			m.Remove(fname)
			continue
		}
		f, ok := files[zipName]
		if !ok {
			return 0, fmt.Errorf("zip has no entry %q for %s", zipName, fname)
		}
		b, err := readZipFile(f)
		if err != nil {
			return 0, err
		}
		m.Put(fname, b)
	}
	return len(meta), nil
}

type mediaReply struct {
	Data any    `json:"data"`
	Err  string `json:"err"`
}

func (s *Server) mediaHandler(c echo.Context) error {
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
	m := &st.Media

	if verb == "begin" {
		if r.fields["k"] != st.HostKey {
			return forbidden(c)
		}
	} else if r.fields["sk"] != m.SessionKey {
		return forbidden(c)
	}
	if msg := m.Err[verb]; msg != "" {
		return writeJSON(c, mediaReply{Err: msg})
	}

	switch verb {
	case "begin":
		return writeJSON(c, mediaReply{Data: map[string]any{"sk": m.SessionKey, "usn": m.Usn}})

	case "mediaChanges":
		var req struct {
			LastUsn int `json:"lastUsn"`
		}
		if err := unmarshal(r.data, &req); err != nil {
			return err
		}
		return writeJSON(c, mediaReply{Data: m.changesAfter(req.LastUsn)})

	case "downloadFiles":
		var req struct {
			Files []string `json:"files"`
		}
		if err := unmarshal(r.data, &req); err != nil {
			return err
		}
		b, err := m.zipFiles(req.Files)
		if err != nil {
			return err
		}
		return c.Blob(http.StatusOK, "application/zip", b)

	case "uploadChanges":
		processed, err := m.applyUpload(r.data)
		if err != nil {
			return writeJSON(c, mediaReply{Err: err.Error()})
		}
		return writeJSON(c, mediaReply{Data: []int{processed, m.Usn}})

	case "mediaSanity":
		var req struct {
			Local int64 `json:"local"`
		}
		if err := unmarshal(r.data, &req); err != nil {
			return err
		}
		reply := "FAILED"
		if req.Local == int64(len(m.Files)) {
			reply = common.StatusOK
		}
		if m.SanityReply != "" {
			reply = m.SanityReply
		}
		return writeJSON(c, mediaReply{Data: reply})
	}
	return echo.NewHTTPError(http.StatusNotFound, "unknown verb "+verb)
}
