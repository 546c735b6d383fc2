package models

import (
	"encoding/json"
	"time"
)

// Timestamp renders an instant as UTC ISO-8601 with whole seconds.
type Timestamp time.Time

func (t Timestamp) MarshalJSON() ([]byte, error) {
	tt := time.Time(t)
	if tt.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(tt.UTC().Truncate(time.Second).Format("2006-01-02T15:04:05+00:00"))
}

// LocalTime renders a wall-clock time with no zone.
type LocalTime time.Time

func (t LocalTime) MarshalJSON() ([]byte, error) {
	tt := time.Time(t)
	if tt.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(tt.Truncate(time.Second).Format("2006-01-02T15:04:05"))
}
