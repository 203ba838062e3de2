// Package models defines the collection and media records exchanged during
// sync, together with their wire encodings. Large-table rows (cards, notes,
// revlog) travel as positional JSON arrays; small objects travel as JSON
// objects.
package models

import (
	"fmt"

	"github.com/segmentio/encoding/json"
)

// decodeRow unmarshals a positional JSON array into dst, one element per
// pointer. The array must have exactly len(dst) elements; a nil pointer
// skips that element.
func decodeRow(b []byte, kind string, dst ...any) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("decode %s row: %w", kind, err)
	}
	if len(raw) != len(dst) {
		return fmt.Errorf("decode %s row: want %d columns, got %d", kind, len(dst), len(raw))
	}
	for i, d := range dst {
		if d == nil {
			continue
		}
		if err := json.Unmarshal(raw[i], d); err != nil {
			return fmt.Errorf("decode %s row column %d: %w", kind, i, err)
		}
	}
	return nil
}
