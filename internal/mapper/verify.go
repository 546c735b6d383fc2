package mapper

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// Verify checks every declared column against the live store catalog. Views
// may expose extra columns; a declared column that is missing is an error.
func Verify(ctx context.Context, db bun.IDB, schemas ...Schema) error {
	var problems []string
	for _, s := range schemas {
		actual, err := TableColumns(ctx, db, s.Table)
		if err != nil {
			return err
		}
		if missing := MissingColumns(s.Columns, actual); len(missing) > 0 {
			problems = append(problems, fmt.Sprintf("%s: missing %s", s.Table, strings.Join(missing, ", ")))
		}

		if s.WriteTable == s.Table {
			continue
		}
		actual, err = TableColumns(ctx, db, s.WriteTable)
		if err != nil {
			return err
		}
		want := append([]string{s.PK}, s.SaveFields...)
		if missing := MissingColumns(want, actual); len(missing) > 0 {
			problems = append(problems, fmt.Sprintf("%s: missing %s", s.WriteTable, strings.Join(missing, ", ")))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("schema mismatch: %s", strings.Join(problems, "; "))
	}
	return nil
}

func MissingColumns(declared, actual []string) []string {
	var missing []string
	for _, col := range declared {
		if !slices.Contains(actual, col) {
			missing = append(missing, col)
		}
	}
	return missing
}

// TableColumns lists a table's or view's columns from the catalog.
func TableColumns(ctx context.Context, db bun.IDB, table string) ([]string, error) {
	query := `SELECT attname FROM pg_attribute WHERE attrelid = ?::regclass AND attnum > 0 AND NOT attisdropped`
	if db.Dialect().Name() == dialect.SQLite {
		query = `SELECT name FROM pragma_table_info(?)`
	}

	rows, err := db.QueryContext(ctx, query, table)
	if err != nil {
		return nil, fmt.Errorf("introspect %s: %w", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("introspect %s: no such table", table)
	}
	return cols, nil
}
