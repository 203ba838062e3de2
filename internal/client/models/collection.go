package models

import "github.com/segmentio/encoding/json"

// CollectionMeta is the single header row of a collection.
type CollectionMeta struct {
	// Crt is the collection creation time in seconds; day boundaries for
	// scheduling are counted from it.
	Crt int64
	// Mod is the last modification time in milliseconds.
	Mod int64
	// Scm is the schema modification time in milliseconds. Differing
	// values on client and server force a full sync.
	Scm int64
	Ver int
	// Usn is the next USN local changes will get once synced.
	Usn int
	// Ls is the mod time of the last successful sync.
	Ls   int64
	Conf json.RawMessage
}

// Dirty reports whether the collection changed since the last sync.
func (m CollectionMeta) Dirty() bool {
	return m.Mod > m.Ls
}
