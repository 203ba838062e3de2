// Package timex provides a time.Duration wrapper that JSON config files can
// express either as a Go duration string ("30s") or as integer nanoseconds.
package timex

import (
	"errors"
	"time"

	"github.com/segmentio/encoding/json"
)

// Duration wraps time.Duration for JSON decoding.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		var err error
		d.Duration, err = time.ParseDuration(value)
		return err
	default:
		return errors.New("invalid duration")
	}
}
