package notifier

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrCorrupt is returned by a Store whose persisted history cannot be
// decoded. The notifier recovers from it by starting over with an empty
// history.
var ErrCorrupt = errors.New("persisted state is corrupt")

// Record is one observed value, Timestamp uses chrono.TimestampLayout.
type Record struct {
	Value     string `json:"value"`
	Timestamp string `json:"timestamp"`
}

// UnmarshalJSON also accepts the older {latest, timestamp} shape.
func (r *Record) UnmarshalJSON(b []byte) error {
	var raw struct {
		Value     string `json:"value"`
		Latest    string `json:"latest"`
		Timestamp string `json:"timestamp"`
	}
	err := json.Unmarshal(b, &raw)
	if err != nil {
		return err
	}
	r.Value = raw.Value
	if r.Value == "" {
		r.Value = raw.Latest
	}
	r.Timestamp = raw.Timestamp
	return nil
}

// Store persists the bounded record history and the last sent message.
// Missing state reads as empty.
//
// note: fault injection point
type Store interface {
	LoadRecords(ctx context.Context) ([]Record, error)
	// SaveRecords replaces the whole history.
	SaveRecords(ctx context.Context, records []Record) error
	LoadLastSent(ctx context.Context) (string, error)
	SaveLastSent(ctx context.Context, message string) error
}
