package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"

	"ticket-bazaar/internal/api"
	"ticket-bazaar/internal/auth"
	"ticket-bazaar/internal/cache"
	"ticket-bazaar/internal/checkout"
	"ticket-bazaar/internal/config"
	"ticket-bazaar/internal/database"
	"ticket-bazaar/internal/database/migrations"
	"ticket-bazaar/internal/identity"
	"ticket-bazaar/internal/kafka"
	"ticket-bazaar/internal/logger"
	"ticket-bazaar/internal/market_api"
	"ticket-bazaar/internal/notify"
	"ticket-bazaar/internal/payment"
	"ticket-bazaar/internal/storage"
	"ticket-bazaar/internal/tickets"
)

func verifyConnections(ctx context.Context, cfg *config.Config, logger *logger.Logger) (*bun.DB, *redis.Client) {
	bunDB, err := database.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("DATABASE", err.Error())
	}

	if cfg.AutoMigrate {
		runner := migrations.NewRunner(cfg.Database.DSN, migrations.MigrateOptions{SeedData: cfg.Env == config.DefaultEnv}, logger)
		if err := runner.RunMigrations(); err != nil {
			logger.Fatal("MIGRATE", fmt.Sprintf("Migration failed: %v", err))
		}
		runner.Close()
	}
	if err := database.VerifySchema(ctx, bunDB, logger); err != nil {
		logger.Fatal("DATABASE", fmt.Sprintf("Schema check failed: %v", err))
	}

	if cfg.Redis.Addr == "" {
		logger.Warn("CONFIG", "REDIS_ADDR not set, event search will not be cached")
		return bunDB, nil
	}
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("REDIS", fmt.Sprintf("Redis connection error, continuing without search cache: %v", err))
		redisClient.Close()
		return bunDB, nil
	}
	logger.Info("DATABASE", fmt.Sprintf("✅ Redis connection successful to %s (DB: %d)", cfg.Redis.Addr, redisClient.Options().DB))
	return bunDB, redisClient
}

func identityProvider(ctx context.Context, cfg config.IdentityConfig, client *http.Client, logger *logger.Logger) identity.Provider {
	if cfg.Provider == "oidc" {
		p, err := identity.NewOIDCProvider(ctx, cfg.Issuer, client)
		if err != nil {
			logger.Fatal("AUTH", fmt.Sprintf("OIDC discovery failed for %s: %v", cfg.Issuer, err))
		}
		logger.Info("AUTH", fmt.Sprintf("Using OIDC identity provider %s", cfg.Issuer))
		return p
	}
	logger.Info("AUTH", fmt.Sprintf("Using graph identity provider %s", cfg.GraphURL))
	return &identity.GraphProvider{BaseURL: cfg.GraphURL, Client: client}
}

// claimNotifier publishes to Kafka when it is enabled and leaves mail to the
// claim-mailer; otherwise it mails sellers directly.
func claimNotifier(cfg *config.Config, logger *logger.Logger) (notify.Notifier, func()) {
	if cfg.Kafka.Enabled {
		logger.Info("KAFKA", fmt.Sprintf("Using Kafka brokers: %v", cfg.Kafka.Brokers))
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, []string{cfg.Kafka.ClaimTopic}, logger); err != nil {
			logger.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.ClaimTopic, logger)
		logger.Info("KAFKA", "Kafka producer initialized successfully")
		return producer, func() { producer.Close() }
	}

	transport := notify.PickTransport(cfg.Mail.SendGridAPIKey, cfg.Core.SMTPHost, cfg.Core.Sendmail)
	if transport == nil {
		logger.Warn("MAIL", "No mail transport configured, claim notices will be dropped")
		return notify.Discard, func() {}
	}
	from := cfg.Mail.From
	if from == "" {
		from = notify.DefaultFrom
	}
	logger.Info("MAIL", fmt.Sprintf("Mailing claim notices via %T", transport))
	return &notify.MailNotifier{From: from, Transport: transport}, func() {}
}

func main() {
	logger := logger.NewLogger()
	defer logger.Close()

	logger.Info("APP", "Starting Bazaar API initialization")

	if err := godotenv.Load(); err != nil {
		logger.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		logger.Info("CONFIG", "Loaded environment variables from .env file")
	}

	cfg, err := config.Load("conf")
	if err != nil {
		logger.Fatal("CONFIG", err.Error())
	}
	for _, w := range cfg.Warnings {
		logger.Warn("CONFIG", w)
	}
	logger.Info("CONFIG", fmt.Sprintf("Loaded %s configuration", cfg.Env))

	client := &http.Client{
		Timeout: time.Second * 10,
	}
	ctx := context.Background()

	logger.Info("APP", "Verifying database connections")
	bunDB, redisClient := verifyConnections(ctx, cfg, logger)
	defer bunDB.Close()
	if redisClient != nil {
		defer redisClient.Close()
	}

	stripeService, err := payment.NewStripeService(cfg.Core.StripeSecretKey, nil, logger)
	if err != nil {
		logger.Fatal("STRIPE", err.Error())
	}

	files, err := storage.NewFileStore(cfg.UploadDir)
	if err != nil {
		logger.Fatal("STORAGE", fmt.Sprintf("Upload directory %s: %v", cfg.UploadDir, err))
	}

	notifier, closeNotifier := claimNotifier(cfg, logger)
	defer closeNotifier()

	signer := auth.NewSigner(cfg.Core.SecretKey)
	sessions := &auth.Sessions{
		Signer: signer,
		Name:   cfg.Session.CookieName,
		Domain: cfg.Session.CookieDomain,
		TTL:    cfg.Session.TTL,
	}
	links := &auth.Links{Signer: signer, TTL: cfg.Session.LinkTTL}

	var searchCache *cache.SearchCache
	if redisClient != nil {
		searchCache = cache.NewSearchCache(redisClient, cfg.Redis.SearchTTL, logger)
	}

	handler := market_api.NewHandler(
		bunDB,
		sessions,
		identityProvider(ctx, cfg.Identity, client, logger),
		checkout.NewService(stripeService, notifier, cfg.Core.WWWHost, logger),
		tickets.NewTicketService(files, links, cfg.Core.APIHost, logger),
		searchCache,
		api.NewRateLimiter(cfg.Login.RatePerMinute, cfg.Login.Burst),
		logger,
	)
	handler.AllowedOrigins = []string{cfg.Core.WWWHost}

	logger.Info("HTTP", "Setting up router and middleware")
	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("HTTP", fmt.Sprintf("🚀 Bazaar API running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	logger.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	logger.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		logger.Info("HTTP", "✅ Bazaar API shutdown complete")
	}
}
