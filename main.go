package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"settlement-service/internal/campaign"
	"settlement-service/internal/category"
	"settlement-service/internal/checkout"
	"settlement-service/internal/config"
	"settlement-service/internal/db"
	"settlement-service/internal/kafka"
	"settlement-service/internal/logging"
	"settlement-service/internal/metrics"
	"settlement-service/internal/outbox"
	"settlement-service/internal/purchase"
	"settlement-service/internal/server"
	"settlement-service/internal/settlement"
	"settlement-service/internal/webhook"

	"github.com/joho/godotenv"
	"github.com/stripe/stripe-go/v74/client"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg := config.MustLoadConfig(".")

	logger := logging.GetLogger(cfg.Logs)
	metrics.Setup(cfg.Metrics)

	connStr := db.GetConnStr(cfg.Database)
	db.RunMigrations(connStr, "migrations")

	dbpool, err := db.GetPool(connStr)
	if err != nil {
		log.Fatal(err)
	}
	defer dbpool.Close()

	repo := db.NewSettlementRepository(dbpool)

	stripeClient := client.New(cfg.Stripe.APIKey, nil)

	verifier := webhook.NewVerifier(cfg.Stripe.WebhookSecret)
	resolver := purchase.NewStripeResolver(stripeClient, logger)
	aggregator := campaign.NewAggregator(repo, logger)
	processor := settlement.NewProcessor(verifier, repo, resolver, aggregator, logger)

	writer := kafka.NewWriter(cfg.Kafka)
	defer writer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	relay := outbox.NewRelay(repo, writer, cfg.Outbox, logger)
	relay.Start(ctx)

	checkoutService := checkout.NewService(stripeClient, cfg.Checkout, logger)
	detector := category.NewDetector(cfg.Category, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /liveness", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("POST /webhook/stripe", server.WebhookHandler(processor, logger))
	mux.Handle("OPTIONS /webhook/stripe", server.PreflightHandler())
	mux.Handle("POST /checkout", checkout.CreateHandler(checkoutService, logger))
	mux.Handle("GET /checkout/{id}", checkout.GetHandler(checkoutService, logger))
	mux.Handle("POST /category-detection", category.DetectHandler(detector))
	mux.Handle("GET /campaigns/{id}", campaign.GetHandler(repo, logger))

	port := cfg.Server.Port
	if port == "" {
		port = "8080"
	}

	logger.Info("Server started", "port", port)
	if err := server.Run(ctx, ":"+port, mux, logger); err != nil {
		log.Fatal(err)
	}
}
