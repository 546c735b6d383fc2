package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ticket-bazaar/internal/config"
	"ticket-bazaar/internal/logger"
	"ticket-bazaar/internal/mapper"
	"ticket-bazaar/internal/models"
)

const maxRetries = 5

// Open connects to PostgreSQL with retries and sizes the pool so each
// request can hold one connection for its whole lifetime.
func Open(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*bun.DB, error) {
	sqldb, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	sqldb.SetMaxOpenConns(cfg.PoolSize)
	sqldb.SetMaxIdleConns(cfg.PoolSize)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		if err = sqldb.PingContext(ctx); err == nil {
			break
		}
		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("connect to postgres after %d attempts: %w", maxRetries, err)
	}

	log.Info("DATABASE", fmt.Sprintf("✅ PostgreSQL connection successful (pool size %d)", cfg.PoolSize))
	return bun.NewDB(sqldb, pgdialect.New()), nil
}

// VerifySchema fails when any entity's declared columns are missing from the store.
func VerifySchema(ctx context.Context, db bun.IDB, log *logger.Logger) error {
	schemas := models.Schemas()
	if err := mapper.Verify(ctx, db, schemas...); err != nil {
		return err
	}
	log.Info("DATABASE", fmt.Sprintf("Verified %d entity schemas", len(schemas)))
	return nil
}
