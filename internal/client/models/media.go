package models

import (
	"github.com/segmentio/encoding/json"
)

// MediaEntry is the local sync state of one media file. An empty Csum means
// the file is believed deleted locally.
type MediaEntry struct {
	Fname string
	Csum  string
	Mtime int64
	Dirty bool
}

// Deleted reports whether the entry records a local deletion.
func (e MediaEntry) Deleted() bool {
	return e.Csum == ""
}

// MediaChange is one server change-log record: [fname, usn, csum|null]. A
// null checksum is a remote deletion and decodes to "".
type MediaChange struct {
	Fname string
	Usn   int
	Csum  string
}

func (c MediaChange) MarshalJSON() ([]byte, error) {
	var csum any
	if c.Csum != "" {
		csum = c.Csum
	}
	return json.Marshal([]any{c.Fname, c.Usn, csum})
}

func (c *MediaChange) UnmarshalJSON(b []byte) error {
	var csum *string
	if err := decodeRow(b, "media change", &c.Fname, &c.Usn, &csum); err != nil {
		return err
	}
	c.Csum = ""
	if csum != nil {
		c.Csum = *csum
	}
	return nil
}
