package mapper

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type maker struct {
	ID   int64
	Name string
}

func (m *maker) PKValue() any {
	if m == nil {
		return nil
	}
	return m.ID
}

func (m *maker) FieldValue(field string) any {
	if field == "name" {
		return m.Name
	}
	return nil
}

func (m *maker) AdaptRow(direct Row, _ map[string]Row) error {
	rd := Read(direct)
	m.ID = rd.Int64("id")
	m.Name = rd.String("name")
	return rd.Err()
}

type widget struct {
	ID        int64
	CreatedAt time.Time
	Name      string
	Tags      []string
	Maker     *maker
}

func (w *widget) PKValue() any {
	if w == nil {
		return nil
	}
	return w.ID
}

func (w *widget) FieldValue(field string) any {
	switch field {
	case "name":
		return w.Name
	case "maker":
		return w.Maker
	}
	return nil
}

func (w *widget) AdaptRow(direct Row, rels map[string]Row) error {
	rd := Read(direct)
	w.ID = rd.Int64("id")
	w.CreatedAt = rd.Time("created_at")
	w.Name = rd.String("name")
	w.Tags = rd.Strings("tags")
	if err := rd.Err(); err != nil {
		return err
	}
	var err error
	w.Maker, err = makers.Related(direct, rels, "maker")
	return err
}

var makers = New[maker](Schema{
	Kind:    "maker",
	Table:   "maker",
	Columns: []string{"id", "name"},
})

var widgets = New[widget](Schema{
	Kind:       "widget",
	Table:      "full_widget",
	WriteTable: "widget",
	Columns:    []string{"id", "created_at", "name", "tags", "maker__id", "maker__name"},
	Relations:  []string{"maker"},
	SaveFields: []string{"name", "maker"},
})

func setupTestDB(t *testing.T) *bun.DB {
	sqldb, err := sql.Open(sqliteshim.ShimName, "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	require.NoError(t, err)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { db.Close() })

	for _, stmt := range []string{
		`CREATE TABLE maker (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL)`,
		`CREATE TABLE widget (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			name TEXT NOT NULL,
			tags TEXT,
			maker INTEGER REFERENCES maker (id)
		)`,
		`CREATE VIEW full_widget AS
			SELECT w.id, w.created_at, w.name, w.tags, m.id AS maker__id, m.name AS maker__name
			FROM widget w LEFT JOIN maker m ON m.id = w.maker`,
	} {
		_, err := db.ExecContext(context.Background(), stmt)
		require.NoError(t, err)
	}
	return db
}

func TestRowSplit(t *testing.T) {
	direct, rels := Row{
		"id":                 int64(1),
		"price":              int64(1200),
		"event__id":          int64(5),
		"event__venue__name": "Stubb's",
		"seller__id":         int64(7),
	}.Split()

	assert.Equal(t, Row{"id": int64(1), "price": int64(1200)}, direct)
	assert.Equal(t, Row{"id": int64(5), "venue__name": "Stubb's"}, rels["event"])
	assert.Equal(t, Row{"id": int64(7)}, rels["seller"])
}

func TestReaderConversions(t *testing.T) {
	rd := Read(Row{
		"n":     []byte("42"),
		"s":     []byte("hi"),
		"b":     int64(1),
		"t":     "2026-01-02 03:04:05",
		"arr":   []byte(`{"Foo Fighters","Wilco"}`),
		"null":  nil,
		"wrong": struct{}{},
	})

	assert.Equal(t, int64(42), rd.Int64("n"))
	assert.Equal(t, "hi", rd.String("s"))
	assert.True(t, rd.Bool("b"))
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), rd.Time("t"))
	assert.Equal(t, []string{"Foo Fighters", "Wilco"}, rd.Strings("arr"))
	assert.Nil(t, rd.NullString("null"))
	assert.Nil(t, rd.NullInt64("absent"))
	require.NoError(t, rd.Err())

	rd.Int64("wrong")
	assert.ErrorContains(t, rd.Err(), `column "wrong"`)
}

func TestSelectSQL(t *testing.T) {
	query, params, err := widgets.selectSQL(Query{
		PK:      int64(3),
		Where:   "name = ?",
		Params:  []any{"a"},
		OrderBy: "created_at DESC",
		Limit:   20,
	})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM full_widget WHERE (name = ?) AND id = ? ORDER BY created_at DESC LIMIT 20", query)
	assert.Equal(t, []any{"a", int64(3)}, params)

	query, _, err = widgets.selectSQL(Query{})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM full_widget", query)

	_, _, err = widgets.selectSQL(Query{Where: "name = ?"})
	assert.ErrorIs(t, err, ErrMisuse)

	_, _, err = widgets.selectSQL(Query{Params: []any{1}})
	assert.ErrorIs(t, err, ErrMisuse)
}

func TestDefaultSaveFields(t *testing.T) {
	m := New[widget](Schema{
		Table:     "full_widget",
		Columns:   []string{"id", "created_at", "name", "maker__id", "maker__name", "search__terms"},
		Relations: []string{"maker"},
	})
	assert.Equal(t, []string{"created_at", "name", "maker"}, m.Schema().SaveFields)
	assert.Equal(t, "full_widget", m.Schema().WriteTable)
	assert.Equal(t, "id", m.Schema().PK)
}

func TestFindOneNotFound(t *testing.T) {
	db := setupTestDB(t)

	w, err := widgets.FindOne(context.Background(), db, Query{PK: int64(999)})
	assert.Nil(t, w)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "widget", nf.Kind)
	assert.Equal(t, int64(999), nf.Key)
}

func TestSaveRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	acme := &maker{Name: "Acme"}
	require.NoError(t, makers.Save(ctx, db, acme, false))
	require.NotZero(t, acme.ID)

	w := &widget{Name: "sprocket", Maker: acme}
	require.NoError(t, widgets.Save(ctx, db, w, false))
	assert.NotZero(t, w.ID)
	assert.False(t, w.CreatedAt.IsZero(), "server default captured from RETURNING")
	require.NotNil(t, w.Maker)
	assert.Equal(t, acme.ID, w.Maker.ID)

	fetched, err := widgets.FindOne(ctx, db, Query{PK: w.ID})
	require.NoError(t, err)
	assert.Equal(t, "sprocket", fetched.Name)
	require.NotNil(t, fetched.Maker)
	assert.Equal(t, "Acme", fetched.Maker.Name)

	fetched.Name = "cog"
	require.NoError(t, widgets.Save(ctx, db, fetched, false))
	assert.Equal(t, w.ID, fetched.ID)

	again, err := widgets.FindOne(ctx, db, Query{PK: w.ID})
	require.NoError(t, err)
	assert.Equal(t, "cog", again.Name)
}

func TestSaveNilRelationAndMissingRow(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	orphan := &widget{Name: "orphan"}
	require.NoError(t, widgets.Save(ctx, db, orphan, false))

	fetched, err := widgets.FindOne(ctx, db, Query{PK: orphan.ID})
	require.NoError(t, err)
	assert.Nil(t, fetched.Maker, "all-NULL relation group adapts to nil")

	ghost := &widget{ID: 404, Name: "ghost"}
	err = widgets.Save(ctx, db, ghost, false)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCursorIsLazyAndSinglePass(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, widgets.Save(ctx, db, &widget{Name: name}, false))
	}

	cur, err := widgets.Find(ctx, db, Query{OrderBy: "id", Limit: 2})
	require.NoError(t, err)
	all, err := cur.Collect()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].Name)
	assert.False(t, cur.Next(), "drained cursor yields nothing")

	cur, err = widgets.Find(ctx, db, Query{Where: "name <> ?", Params: []any{"a"}, OrderBy: "id"})
	require.NoError(t, err)
	for w, err := range cur.All() {
		require.NoError(t, err)
		assert.Equal(t, "b", w.Name)
		break
	}
	assert.False(t, cur.Next(), "early break closes the cursor")
}

func TestVerify(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	require.NoError(t, Verify(ctx, db, widgets.Schema(), makers.Schema()))

	broken := widgets.Schema()
	broken.Columns = append(broken.Columns, "color")
	err := Verify(ctx, db, broken)
	assert.ErrorContains(t, err, "color")

	missing := Schema{Table: "nope", WriteTable: "nope", Columns: []string{"id"}}
	assert.Error(t, Verify(ctx, db, missing))
}

func TestMissingColumns(t *testing.T) {
	assert.Empty(t, MissingColumns([]string{"a"}, []string{"a", "b"}))
	assert.Equal(t, []string{"c"}, MissingColumns([]string{"a", "c"}, []string{"a", "b"}))
}
