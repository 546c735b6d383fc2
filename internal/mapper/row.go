package mapper

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
)

// RelationSep separates a relation name from the related entity's column.
const RelationSep = "__"

// Row is one result row keyed by column name, exactly as the driver returned it.
type Row map[string]any

// Split separates direct columns from relation-prefixed groups. Only the first
// separator counts, so "event__venue__id" lands in group "event" as "venue__id".
func (r Row) Split() (Row, map[string]Row) {
	direct := Row{}
	rels := map[string]Row{}
	for col, v := range r {
		rel, field, ok := strings.Cut(col, RelationSep)
		if !ok || rel == "" || field == "" {
			direct[col] = v
			continue
		}
		group, exists := rels[rel]
		if !exists {
			group = Row{}
			rels[rel] = group
		}
		group[field] = v
	}
	return direct, rels
}

// Null reports whether every value in the row is NULL, as an outer join yields.
func (r Row) Null() bool {
	for _, v := range r {
		if v != nil {
			return false
		}
	}
	return true
}

// Reader converts driver values to Go types, keeping the first conversion
// error. Absent columns read as zero values.
type Reader struct {
	row Row
	err error
}

func Read(row Row) *Reader {
	return &Reader{row: row}
}

func (rd *Reader) Err() error {
	return rd.err
}

func (rd *Reader) Has(col string) bool {
	_, ok := rd.row[col]
	return ok
}

func (rd *Reader) fail(col string, v any, want string) {
	if rd.err == nil {
		rd.err = fmt.Errorf("column %q: cannot convert %T to %s", col, v, want)
	}
}

func (rd *Reader) Int64(col string) int64 {
	if p := rd.NullInt64(col); p != nil {
		return *p
	}
	return 0
}

func (rd *Reader) NullInt64(col string) *int64 {
	v := rd.row[col]
	var n int64
	switch x := v.(type) {
	case nil:
		return nil
	case int64:
		n = x
	case int:
		n = int64(x)
	case int32:
		n = int64(x)
	case float64:
		n = int64(x)
	case []byte:
		parsed, err := strconv.ParseInt(string(x), 10, 64)
		if err != nil {
			rd.fail(col, v, "int64")
			return nil
		}
		n = parsed
	case string:
		parsed, err := strconv.ParseInt(x, 10, 64)
		if err != nil {
			rd.fail(col, v, "int64")
			return nil
		}
		n = parsed
	default:
		rd.fail(col, v, "int64")
		return nil
	}
	return &n
}

func (rd *Reader) String(col string) string {
	if p := rd.NullString(col); p != nil {
		return *p
	}
	return ""
}

func (rd *Reader) NullString(col string) *string {
	var s string
	switch x := rd.row[col].(type) {
	case nil:
		return nil
	case string:
		s = x
	case []byte:
		s = string(x)
	default:
		rd.fail(col, x, "string")
		return nil
	}
	return &s
}

func (rd *Reader) Bool(col string) bool {
	if p := rd.NullBool(col); p != nil {
		return *p
	}
	return false
}

func (rd *Reader) NullBool(col string) *bool {
	var b bool
	switch x := rd.row[col].(type) {
	case nil:
		return nil
	case bool:
		b = x
	case int64:
		b = x != 0
	case []byte, string:
		parsed, err := strconv.ParseBool(fmt.Sprint(asString(x)))
		if err != nil {
			rd.fail(col, x, "bool")
			return nil
		}
		b = parsed
	default:
		rd.fail(col, x, "bool")
		return nil
	}
	return &b
}

// timeLayouts covers what SQLite drivers hand back for TIMESTAMP/DATE text.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

func (rd *Reader) Time(col string) time.Time {
	if p := rd.NullTime(col); p != nil {
		return *p
	}
	return time.Time{}
}

func (rd *Reader) NullTime(col string) *time.Time {
	switch x := rd.row[col].(type) {
	case nil:
		return nil
	case time.Time:
		return &x
	case []byte, string:
		s := asString(x)
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return &t
			}
		}
		rd.fail(col, x, "time")
		return nil
	default:
		rd.fail(col, x, "time")
		return nil
	}
}

// Strings decodes a text[] column; SQLite stores the same literal as text.
func (rd *Reader) Strings(col string) []string {
	switch x := rd.row[col].(type) {
	case nil:
		return nil
	case []string:
		return x
	case []byte, string:
		var arr pq.StringArray
		if err := arr.Scan([]byte(asString(x))); err != nil {
			rd.fail(col, x, "[]string")
			return nil
		}
		return []string(arr)
	default:
		rd.fail(col, x, "[]string")
		return nil
	}
}

func asString(v any) string {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case string:
		return x
	}
	return fmt.Sprint(v)
}
