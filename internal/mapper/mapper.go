// Package mapper is a small data mapper over bun connections. Each entity
// type declares a static Schema and implements Record; the mapper builds the
// SQL, streams rows through a Cursor and adapts them into typed records.
package mapper

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/uptrace/bun"
)

// Record is implemented by entity pointer types. PKValue must tolerate a nil
// receiver since relations may be unset.
type Record interface {
	PKValue() any
	FieldValue(field string) any
	AdaptRow(direct Row, rels map[string]Row) error
}

type RecordPtr[T any] interface {
	*T
	Record
}

type Schema struct {
	Kind       string // used in NotFound context
	Table      string // read source, table or view
	WriteTable string // defaults to Table
	PK         string // defaults to "id"
	Columns    []string
	Relations  []string
	SaveFields []string // defaults to Columns minus PK, relation groups collapsed
}

var ErrMisuse = errors.New("mapper: where and params must be given together")

var ErrNotFound = errors.New("not found")

type NotFoundError struct {
	Kind string
	Key  any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v: %s", e.Kind, e.Key, ErrNotFound)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

type Query struct {
	PK      any
	From    string // overrides Schema.Table
	Where   string
	Params  []any
	OrderBy string
	Limit   int
}

type Mapper[T any, P RecordPtr[T]] struct {
	schema Schema
}

func New[T any, P RecordPtr[T]](s Schema) *Mapper[T, P] {
	if s.PK == "" {
		s.PK = "id"
	}
	if s.WriteTable == "" {
		s.WriteTable = s.Table
	}
	if s.SaveFields == nil {
		s.SaveFields = defaultSaveFields(s)
	}
	return &Mapper[T, P]{schema: s}
}

func defaultSaveFields(s Schema) []string {
	var fields []string
	for _, col := range s.Columns {
		if col == s.PK {
			continue
		}
		rel, _, ok := strings.Cut(col, RelationSep)
		if !ok {
			fields = append(fields, col)
			continue
		}
		if slices.Contains(s.Relations, rel) && !slices.Contains(fields, rel) {
			fields = append(fields, rel)
		}
	}
	return fields
}

func (m *Mapper[T, P]) Schema() Schema {
	return m.schema
}

func (m *Mapper[T, P]) selectSQL(q Query) (string, []any, error) {
	if (q.Where != "" && q.Params == nil) || (q.Where == "" && len(q.Params) > 0) {
		return "", nil, ErrMisuse
	}

	from := q.From
	if from == "" {
		from = m.schema.Table
	}

	where := q.Where
	params := slices.Clone(q.Params)
	if q.PK != nil {
		pkCond := m.schema.PK + " = ?"
		if where != "" {
			where = "(" + where + ") AND " + pkCond
		} else {
			where = pkCond
		}
		params = append(params, q.PK)
	}

	var b strings.Builder
	b.WriteString("SELECT * FROM ")
	b.WriteString(from)
	if where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}
	if q.OrderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(q.OrderBy)
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.Limit)
	}
	return b.String(), params, nil
}

// Find runs one SELECT and returns a single-pass cursor over the results.
// The caller must drain or Close it.
func (m *Mapper[T, P]) Find(ctx context.Context, db bun.IDB, q Query) (*Cursor[T, P], error) {
	query, params, err := m.selectSQL(q)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", m.schema.Kind, err)
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, err
	}
	return &Cursor[T, P]{rows: rows, cols: cols, m: m}, nil
}

func (m *Mapper[T, P]) FindAll(ctx context.Context, db bun.IDB, q Query) ([]P, error) {
	cur, err := m.Find(ctx, db, q)
	if err != nil {
		return nil, err
	}
	return cur.Collect()
}

// FindOne returns the first match or a *NotFoundError keyed by q.PK.
func (m *Mapper[T, P]) FindOne(ctx context.Context, db bun.IDB, q Query) (P, error) {
	q.Limit = 1
	cur, err := m.Find(ctx, db, q)
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	if cur.Next() {
		return cur.Entity(), nil
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return nil, &NotFoundError{Kind: m.schema.Kind, Key: q.PK}
}

// Save inserts when forceInsert is set or the primary key is unset, otherwise
// updates by primary key. Either way e is re-adapted from the RETURNING row.
func (m *Mapper[T, P]) Save(ctx context.Context, db bun.IDB, e P, forceInsert bool) error {
	fields := m.schema.SaveFields
	values := make([]any, 0, len(fields)+1)
	for _, f := range fields {
		values = append(values, persistValue(e.FieldValue(f)))
	}

	var query string
	pk := e.PKValue()
	if forceInsert || isZero(pk) {
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(fields)), ", ")
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
			m.schema.WriteTable, strings.Join(fields, ", "), marks)
	} else {
		sets := make([]string, len(fields))
		for i, f := range fields {
			sets[i] = f + " = ?"
		}
		query = fmt.Sprintf("UPDATE %s SET %s WHERE %s = ? RETURNING *",
			m.schema.WriteTable, strings.Join(sets, ", "), m.schema.PK)
		values = append(values, pk)
	}

	rows, err := db.QueryContext(ctx, query, values...)
	if err != nil {
		return fmt.Errorf("save %s: %w", m.schema.Kind, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return fmt.Errorf("save %s: %w", m.schema.Kind, err)
		}
		return &NotFoundError{Kind: m.schema.Kind, Key: pk}
	}
	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	row, err := scanRow(rows, cols)
	if err != nil {
		return err
	}
	return m.Adapt(e, row)
}

func (m *Mapper[T, P]) Adapt(e P, row Row) error {
	direct, rels := row.Split()
	if err := e.AdaptRow(direct, rels); err != nil {
		return fmt.Errorf("adapt %s: %w", m.schema.Kind, err)
	}
	return nil
}

// Related builds the entity for relation name: from its column group when the
// row was joined, else from a bare foreign-key column. It returns nil when
// neither is present or the group is all NULL.
func (m *Mapper[T, P]) Related(direct Row, rels map[string]Row, name string) (P, error) {
	if group, ok := rels[name]; ok {
		if group.Null() {
			return nil, nil
		}
		e := P(new(T))
		if err := m.Adapt(e, group); err != nil {
			return nil, err
		}
		return e, nil
	}
	if v, ok := direct[name]; ok && v != nil {
		e := P(new(T))
		if err := m.Adapt(e, Row{m.schema.PK: v}); err != nil {
			return nil, err
		}
		return e, nil
	}
	return nil, nil
}

func scanRow(rows *sql.Rows, cols []string) (Row, error) {
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	row := make(Row, len(cols))
	for i, col := range cols {
		row[col] = values[i]
	}
	return row, nil
}

func persistValue(v any) any {
	if rec, ok := v.(Record); ok {
		return rec.PKValue()
	}
	return v
}

func isZero(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case int64:
		return x == 0
	case int:
		return x == 0
	case string:
		return x == ""
	}
	return false
}
