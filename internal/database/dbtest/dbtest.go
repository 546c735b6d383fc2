// Package dbtest builds an in-memory SQLite store shaped like the PostgreSQL
// schema: same tables, views and relation-prefixed view columns.
package dbtest

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ticket-bazaar/internal/mapper"
	"ticket-bazaar/internal/models"
)

var schema = []string{
	`CREATE TABLE city (id INTEGER PRIMARY KEY, slug TEXT NOT NULL UNIQUE, name TEXT NOT NULL)`,
	`CREATE TABLE seatgeek_venue (
		id INTEGER PRIMARY KEY, name TEXT NOT NULL, address TEXT, postal_code TEXT,
		city TEXT NOT NULL, state TEXT NOT NULL, city_id INTEGER NOT NULL REFERENCES city (id))`,
	`CREATE TABLE seatgeek_event (
		id INTEGER PRIMARY KEY, title TEXT NOT NULL, performer_names TEXT NOT NULL DEFAULT '{}',
		performer_image TEXT, venue INTEGER NOT NULL REFERENCES seatgeek_venue (id),
		datetime_utc TIMESTAMP NOT NULL, datetime_local TIMESTAMP NOT NULL)`,
	`CREATE TABLE account (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		auth_id TEXT NOT NULL UNIQUE, email TEXT, full_name TEXT NOT NULL,
		access_token TEXT, tz TEXT, profile TEXT, stripe_customer TEXT)`,
	`CREATE TABLE connection (auth_id TEXT NOT NULL, friend_auth_id TEXT NOT NULL, PRIMARY KEY (auth_id, friend_auth_id))`,
	`CREATE TABLE listing (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		event INTEGER NOT NULL REFERENCES seatgeek_event (id),
		seller INTEGER NOT NULL REFERENCES account (id),
		price INTEGER NOT NULL CHECK (price >= 0),
		message TEXT,
		deleted_at TIMESTAMP)`,
	`CREATE TABLE stripe_card (
		id TEXT PRIMARY KEY, created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		customer TEXT NOT NULL, fingerprint TEXT NOT NULL, full_name TEXT,
		expiration DATE NOT NULL, last4 INTEGER NOT NULL, brand TEXT NOT NULL)`,
	`CREATE TABLE claim (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		customer TEXT NOT NULL,
		listing INTEGER NOT NULL REFERENCES listing (id),
		stripe_card TEXT REFERENCES stripe_card (id),
		CONSTRAINT claim_listing_key UNIQUE (listing))`,
	`CREATE TABLE pdf (
		ticket INTEGER PRIMARY KEY REFERENCES claim (id),
		filename TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP)`,
	`CREATE VIEW full_event_search AS
		SELECT e.id, e.title, e.performer_names, e.performer_image, e.datetime_utc, e.datetime_local,
			v.id AS venue__id, v.name AS venue__name, v.address AS venue__address,
			v.postal_code AS venue__postal_code, v.city AS venue__city, v.state AS venue__state,
			v.city_id AS city__id,
			lower(e.title || ' ' || e.performer_names) AS search__terms
		FROM seatgeek_event e JOIN seatgeek_venue v ON v.id = e.venue`,
	`CREATE VIEW full_listings AS
		SELECT l.id, l.created_at, l.price, l.message, l.deleted_at,
			e.id AS event__id, e.title AS event__title, e.performer_names AS event__performer_names,
			e.performer_image AS event__performer_image, e.datetime_utc AS event__datetime_utc,
			e.datetime_local AS event__datetime_local,
			a.id AS seller__id, a.created_at AS seller__created_at, a.full_name AS seller__full_name,
			a.tz AS seller__tz, a.profile AS seller__profile, a.auth_id AS seller__auth_id,
			v.city_id AS city__id
		FROM listing l
		JOIN seatgeek_event e ON e.id = l.event
		JOIN seatgeek_venue v ON v.id = e.venue
		JOIN account a ON a.id = l.seller
		WHERE l.deleted_at IS NULL`,
	`CREATE VIEW available_listings AS
		SELECT fl.*, b.auth_id AS buyer,
			EXISTS (SELECT 1 FROM connection c
				WHERE c.auth_id = b.auth_id AND c.friend_auth_id = fl.seller__auth_id) AS first_degree,
			EXISTS (SELECT 1 FROM connection c1 JOIN connection c2 ON c2.auth_id = c1.friend_auth_id
				WHERE c1.auth_id = b.auth_id AND c2.friend_auth_id = fl.seller__auth_id) AS second_degree
		FROM full_listings fl CROSS JOIN account b
		WHERE fl.seller__id <> b.id
			AND fl.event__datetime_utc > CURRENT_TIMESTAMP
			AND NOT EXISTS (SELECT 1 FROM claim c WHERE c.listing = fl.id)`,
}

var catalog = []string{
	`INSERT INTO city (id, slug, name) VALUES (1, 'new-york', 'New York'), (2, 'austin', 'Austin')`,
	`INSERT INTO seatgeek_venue (id, name, address, postal_code, city, state, city_id) VALUES
		(1, 'Terminal 5', '610 W 56th St', '10019', 'New York', 'NY', 1),
		(2, 'Stubb''s BBQ', '801 Red River St', '78701', 'Austin', 'TX', 2)`,
	`INSERT INTO seatgeek_event (id, title, performer_names, venue, datetime_utc, datetime_local) VALUES
		(5, 'Wilco', '{"Wilco"}', 2, '2099-07-04 01:00:00', '2099-07-03 20:00:00'),
		(6, 'Foo Fighters', '{"Foo Fighters"}', 1, '2099-06-01 00:00:00', '2099-05-31 20:00:00'),
		(7, 'Spoon', '{"Spoon"}', 2, '2001-01-01 01:00:00', '2000-12-31 19:00:00')`,
}

// Open returns a fresh store with the schema and event catalog loaded.
// Events 5 and 7 are in Austin (city 2, 7 already happened); 6 is in New York.
func Open(t testing.TB) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	require.NoError(t, err)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	for _, stmt := range append(schema, catalog...) {
		_, err := db.ExecContext(ctx, stmt)
		require.NoError(t, err)
	}
	return db
}

func CreateAccount(t testing.TB, db bun.IDB, authID, name string) *models.Account {
	t.Helper()
	a := &models.Account{AuthID: authID, FullName: name}
	require.NoError(t, models.AccountMapper.Save(context.Background(), db, a, false))
	return a
}

func CreateListing(t testing.TB, db bun.IDB, seller *models.Account, eventID, price int64) *models.Listing {
	t.Helper()
	l := &models.Listing{Event: &models.Event{ID: eventID}, Seller: seller, Price: price}
	require.NoError(t, models.ListingMapper.Save(context.Background(), db, l, false))
	return l
}

// Claim inserts a bare claim row on listingID.
func Claim(t testing.TB, db bun.IDB, listingID int64, customer string) *models.Checkout {
	t.Helper()
	c := &models.Checkout{Customer: customer, ListingID: listingID}
	require.NoError(t, models.CheckoutMapper.Save(context.Background(), db, c, false))
	return c
}

func Connect(t testing.TB, db bun.IDB, authID, friendAuthID string) {
	t.Helper()
	_, err := db.ExecContext(context.Background(),
		`INSERT INTO connection (auth_id, friend_auth_id) VALUES (?, ?)`, authID, friendAuthID)
	require.NoError(t, err)
}

// FetchListingRow reads the raw listing table row, deleted or not.
func FetchListingRow(t testing.TB, db bun.IDB, id int64) mapper.Row {
	t.Helper()
	rows, err := db.QueryContext(context.Background(), `SELECT price, message, deleted_at FROM listing WHERE id = ?`, id)
	require.NoError(t, err)
	defer rows.Close()
	require.True(t, rows.Next())

	var price int64
	var message sql.NullString
	var deletedAt any
	require.NoError(t, rows.Scan(&price, &message, &deletedAt))

	row := mapper.Row{"price": price, "message": nil, "deleted_at": deletedAt}
	if message.Valid {
		row["message"] = message.String
	}
	return row
}
