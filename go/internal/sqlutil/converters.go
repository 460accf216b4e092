package sqlutil

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/sqlc-dev/pqtype"
)

// Helper functions for converting between Go types and nullable SQL types

// ToSqlTime converts a Go time pointer to sql.NullTime, normalised to UTC
func ToSqlTime(val *time.Time) sql.NullTime {
	if val == nil {
		return sql.NullTime{Valid: false}
	}
	return sql.NullTime{Time: val.UTC(), Valid: true}
}

// FromSqlTime converts sql.NullTime to a UTC Go time pointer. Columns are
// zone-less timestamps that always hold UTC.
func FromSqlTime(val sql.NullTime) *time.Time {
	if !val.Valid {
		return nil
	}
	t := AsUTC(val.Time)
	return &t
}

// AsUTC reinterprets a zone-less timestamp's wall clock as UTC.
func AsUTC(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// ToNullRawMessage marshals v into a JSONB-compatible value. A nil v is NULL.
func ToNullRawMessage(v any) (pqtype.NullRawMessage, error) {
	if v == nil {
		return pqtype.NullRawMessage{Valid: false}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return pqtype.NullRawMessage{}, err
	}
	return pqtype.NullRawMessage{RawMessage: data, Valid: true}, nil
}

// FromNullRawMessage unmarshals a JSONB column into dst. It reports false
// when the column is NULL or empty.
func FromNullRawMessage(val pqtype.NullRawMessage, dst any) (bool, error) {
	if !val.Valid || len(val.RawMessage) == 0 || string(val.RawMessage) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(val.RawMessage, dst); err != nil {
		return false, err
	}
	return true, nil
}
