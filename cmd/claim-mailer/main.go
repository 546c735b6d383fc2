// claim-mailer consumes claim notices from Kafka and mails each seller.
package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"ticket-bazaar/internal/config"
	"ticket-bazaar/internal/kafka"
	"ticket-bazaar/internal/logger"
	"ticket-bazaar/internal/notify"
)

func main() {
	logger := logger.NewLogger()
	defer logger.Close()

	if err := godotenv.Load(); err != nil {
		logger.Warn("CONFIG", ".env file not found, using environment variables")
	}
	cfg, err := config.Load("conf")
	if err != nil {
		logger.Fatal("CONFIG", err.Error())
	}
	for _, w := range cfg.Warnings {
		logger.Warn("CONFIG", w)
	}

	transport := notify.PickTransport(cfg.Mail.SendGridAPIKey, cfg.Core.SMTPHost, cfg.Core.Sendmail)
	if transport == nil {
		logger.Fatal("MAIL", "No mail transport configured: set SENDGRID_API_KEY, SMTP_HOST or SENDMAIL")
	}
	from := cfg.Mail.From
	if from == "" {
		from = notify.DefaultFrom
	}
	mailer := &notify.MailNotifier{From: from, Transport: transport}

	if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, []string{cfg.Kafka.ClaimTopic}, logger); err != nil {
		logger.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
	}
	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.ClaimTopic, cfg.Kafka.GroupID, logger)
	defer consumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("APP", fmt.Sprintf("Claim mailer consuming %s as %s via %T", cfg.Kafka.ClaimTopic, cfg.Kafka.GroupID, transport))
	if err := consumer.Run(ctx, mailer); err != nil {
		consumer.Close()
		logger.Fatal("KAFKA", err.Error())
	}
	logger.Info("APP", "✅ Claim mailer shutdown complete")
}
