package database_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"

	"ticket-bazaar/internal/api"
	"ticket-bazaar/internal/apierr"
	"ticket-bazaar/internal/config"
	"ticket-bazaar/internal/database"
	"ticket-bazaar/internal/database/migrations"
	"ticket-bazaar/internal/logger"
	"ticket-bazaar/internal/models"
)

// TestPostgresIntegration runs the store-side pieces SQLite cannot stand in
// for: full-text search, the login upsert and the claim constraints.
func TestPostgresIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping PostgreSQL integration test in short mode")
	}

	ctx := context.Background()
	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "bazaar",
				"POSTGRES_PASSWORD": "bazaar",
				"POSTGRES_DB":       "bazaar",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer pgContainer.Terminate(ctx)

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)
	dsn := fmt.Sprintf("postgres://bazaar:bazaar@%s:%s/bazaar?sslmode=disable", host, port.Port())

	log := logger.New(io.Discard)
	runner := migrations.NewRunner(dsn, migrations.MigrateOptions{SeedData: true}, log)
	require.NoError(t, runner.RunMigrations())
	require.NoError(t, runner.Close())

	db, err := database.Open(ctx, config.DatabaseConfig{DSN: dsn, PoolSize: 8, MaxLifetime: time.Minute}, log)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, database.VerifySchema(ctx, db, log))

	t.Run("search events", func(t *testing.T) {
		events, err := models.SearchEvents(ctx, db, 1, models.Tokenize("foo fight"), 10)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "Foo Fighters", events[0].Title)

		events, err = models.SearchEvents(ctx, db, 2, models.Tokenize("foo"), 10)
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("login is an upsert", func(t *testing.T) {
		oldPicture, newPicture := "https://img.example.com/old.jpg", "https://img.example.com/new.jpg"
		first, err := models.Login(ctx, db, models.Identity{AuthID: "fb-1", Email: "old@example.com", FullName: "Sam", Picture: &oldPicture})
		require.NoError(t, err)
		require.NotNil(t, first.Profile)
		assert.Equal(t, oldPicture, *first.Profile)

		second, err := models.Login(ctx, db, models.Identity{AuthID: "fb-1", Email: "new@example.com", FullName: "Sam", Picture: &newPicture})
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		require.NotNil(t, second.Email)
		assert.Equal(t, "new@example.com", *second.Email)
		require.NotNil(t, second.Profile)
		assert.Equal(t, newPicture, *second.Profile)

		var rows int
		require.NoError(t, db.QueryRowContext(ctx, `SELECT count(*) FROM account WHERE auth_id = 'fb-1'`).Scan(&rows))
		assert.Equal(t, 1, rows)
	})

	seller, err := models.Login(ctx, db, models.Identity{AuthID: "fb-seller", FullName: "Seller"})
	require.NoError(t, err)

	newListing := func(t *testing.T) *models.Listing {
		l := &models.Listing{Event: &models.Event{ID: 1}, Seller: seller, Price: 4000}
		require.NoError(t, models.ListingMapper.Save(ctx, db, l, false))
		return l
	}

	t.Run("one claim per listing under contention", func(t *testing.T) {
		listing := newListing(t)

		const buyers = 8
		var wg sync.WaitGroup
		errs := make([]error, buyers)
		for i := 0; i < buyers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
					return models.CheckoutMapper.Save(ctx, tx, &models.Checkout{
						Customer:  fmt.Sprintf("cus_%d", i),
						ListingID: listing.ID,
					}, false)
				})
			}(i)
		}
		wg.Wait()

		won := 0
		for _, err := range errs {
			if err == nil {
				won++
				continue
			}
			var pqErr *pq.Error
			require.True(t, errors.As(err, &pqErr), "unexpected error: %v", err)
			assert.Equal(t, "claim_listing_key", pqErr.Constraint)
		}
		assert.Equal(t, 1, won)
	})

	t.Run("claimed listing refuses changes", func(t *testing.T) {
		listing := newListing(t)
		require.NoError(t, models.CheckoutMapper.Save(ctx, db, &models.Checkout{Customer: "cus_x", ListingID: listing.ID}, false))

		assert.ErrorIs(t, listing.Update(ctx, db, 1, nil), models.ErrListingClaimed)
		assert.ErrorIs(t, listing.Remove(ctx, db), models.ErrListingClaimed)

		// Writes that skip the guard still hit the trigger.
		_, err := db.ExecContext(ctx, `UPDATE listing SET price = 1 WHERE id = ?`, listing.ID)
		var pqErr *pq.Error
		require.True(t, errors.As(err, &pqErr), "unexpected error: %v", err)
		assert.Equal(t, pq.ErrorCode("ZX001"), pqErr.Code)
	})

	isLive := func(t *testing.T, id int64) bool {
		var live bool
		require.NoError(t, db.QueryRowContext(ctx, `SELECT deleted_at IS NULL FROM listing WHERE id = ?`, id).Scan(&live))
		return live
	}

	t.Run("claim waits out a concurrent remove", func(t *testing.T) {
		listing := newListing(t)

		removal, err := db.BeginTx(ctx, nil)
		require.NoError(t, err)
		require.NoError(t, listing.Remove(ctx, removal))

		claimed := make(chan error, 1)
		go func() {
			claimed <- db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
				return models.CheckoutMapper.Save(ctx, tx, &models.Checkout{Customer: "cus_late", ListingID: listing.ID}, false)
			})
		}()
		require.NoError(t, removal.Commit())

		err = <-claimed
		var pqErr *pq.Error
		require.True(t, errors.As(err, &pqErr), "unexpected error: %v", err)
		assert.Equal(t, pq.ErrorCode("ZX002"), pqErr.Code)
		assert.False(t, isLive(t, listing.ID))
	})

	t.Run("remove waits out a concurrent claim", func(t *testing.T) {
		listing := newListing(t)

		buyer, err := db.BeginTx(ctx, nil)
		require.NoError(t, err)
		require.NoError(t, models.CheckoutMapper.Save(ctx, buyer, &models.Checkout{Customer: "cus_early", ListingID: listing.ID}, false))

		removed := make(chan error, 1)
		go func() {
			removed <- listing.Remove(ctx, db)
		}()
		require.NoError(t, buyer.Commit())

		err = <-removed
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			assert.Equal(t, pq.ErrorCode("ZX001"), pqErr.Code)
		} else {
			assert.ErrorIs(t, err, models.ErrListingClaimed)
		}
		assert.True(t, isLive(t, listing.ID))
	})

	t.Run("commit errors reach the route table", func(t *testing.T) {
		_, err := db.ExecContext(ctx, `CREATE TABLE hold (
			id integer CONSTRAINT hold_id_key UNIQUE DEFERRABLE INITIALLY DEFERRED
		)`)
		require.NoError(t, err)
		defer db.ExecContext(ctx, `DROP TABLE hold`)

		// The duplicate only fails at COMMIT, after the handler returned.
		h := api.Chain(func(req *api.Request) (any, error) {
			_, err := req.Tx.ExecContext(req.Context(), `INSERT INTO hold (id) VALUES (1), (1)`)
			return api.NoContent, err
		}, api.SQLErrors(map[string]api.CodeHandler{
			"unique_violation": api.ByConstraint(map[string]func() *apierr.Error{
				"hold_id_key": apierr.ListingClaimed,
			}),
		}), api.WithDB(db))

		w := httptest.NewRecorder()
		api.Serve(h, log).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", nil))
		assert.Equal(t, http.StatusForbidden, w.Code, w.Body.String())
		assert.Contains(t, w.Body.String(), `"listing_claimed"`)
	})

	t.Run("unknown event", func(t *testing.T) {
		err := models.ListingMapper.Save(ctx, db, &models.Listing{Event: &models.Event{ID: 999}, Seller: seller, Price: 1}, false)
		var pqErr *pq.Error
		require.True(t, errors.As(err, &pqErr), "unexpected error: %v", err)
		assert.Equal(t, "listing_event_fkey", pqErr.Constraint)
	})
}
