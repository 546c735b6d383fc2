// migrate applies the embedded schema migrations to POSTGRES_DSN.
//
//	migrate            bring the schema up to date
//	migrate --seed     also load the sample catalog
//	migrate --to 1     move to an exact version
//	migrate --down     drop everything
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"ticket-bazaar/internal/cache"
	"ticket-bazaar/internal/config"
	"ticket-bazaar/internal/database/migrations"
	"ticket-bazaar/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var seed, down bool
	var to uint

	flagSet := pflag.NewFlagSet("migrate", pflag.ContinueOnError)
	flagSet.BoolVar(&seed, "seed", false, "apply the seed migrations as well")
	flagSet.BoolVar(&down, "down", false, "roll back every migration")
	flagSet.UintVar(&to, "to", 0, "migrate up or down to this version")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	_ = godotenv.Load()
	log := logger.NewLogger()
	defer log.Close()

	cfg, err := config.Load("conf")
	if err != nil {
		return err
	}

	runner := migrations.NewRunner(cfg.Database.DSN, migrations.MigrateOptions{SeedData: seed}, log)
	defer runner.Close()

	switch {
	case down:
		log.Warn("MIGRATE", "Rolling back all migrations")
		err = runner.MigrateDown()
	case flagSet.Changed("to"):
		log.Info("MIGRATE", fmt.Sprintf("Migrating to version %d", to))
		err = runner.MigrateTo(to)
	default:
		err = runner.RunMigrations()
	}
	if err != nil {
		return err
	}

	// The catalog changed underneath any cached search results.
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		defer client.Close()
		n, err := cache.NewSearchCache(client, cfg.Redis.SearchTTL, log).Flush(context.Background())
		if err != nil {
			log.Warn("REDIS", fmt.Sprintf("Could not flush search cache: %v", err))
		} else {
			log.Info("REDIS", fmt.Sprintf("Flushed %d cached searches", n))
		}
	}
	log.Info("MIGRATE", "✅ Migrations complete")
	return nil
}
