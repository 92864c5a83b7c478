package models

import (
	"strconv"
	"time"
)

// Record is the flat column-name-to-value representation of one table row.
// The mapping registry converts between records and typed entities; the
// database layer produces them straight from row scans, so value types vary
// with the driver (int32 vs int64, []byte vs string) and the accessors below
// normalize.
type Record map[string]any

// Int64 reads a numeric column, tolerating the integer widths pgx produces.
func (r Record) Int64(col string) int64 {
	switch v := r[col].(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	default:
		return 0
	}
}

// String reads a text column, tolerating []byte values.
func (r Record) String(col string) string {
	switch v := r[col].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

// Bool reads a boolean column.
func (r Record) Bool(col string) bool {
	b, _ := r[col].(bool)
	return b
}

// Time reads a timestamp column.
func (r Record) Time(col string) time.Time {
	t, _ := r[col].(time.Time)
	return t
}

// Has reports whether the column is present and non-nil.
func (r Record) Has(col string) bool {
	v, ok := r[col]
	return ok && v != nil
}
