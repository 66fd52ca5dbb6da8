package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/IBM/sarama"

	"github.com/illegalcall/brainyx/internal/api"
	"github.com/illegalcall/brainyx/internal/audit"
	"github.com/illegalcall/brainyx/internal/auth"
	"github.com/illegalcall/brainyx/internal/billing"
	"github.com/illegalcall/brainyx/internal/chat"
	"github.com/illegalcall/brainyx/internal/config"
	"github.com/illegalcall/brainyx/internal/identity"
	"github.com/illegalcall/brainyx/internal/llm"
	"github.com/illegalcall/brainyx/internal/payments"
	"github.com/illegalcall/brainyx/internal/settings"
	"github.com/illegalcall/brainyx/internal/storage"
	"github.com/illegalcall/brainyx/pkg/database"
	"github.com/illegalcall/brainyx/pkg/kafka"
)

func main() {
	// Load configuration
	cfg := config.LoadConfig()
	slog.SetDefault(cfg.NewLogger())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database clients
	db, err := database.NewClients(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize database clients", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("✅ Connected to store", "driver", cfg.Store.Driver)

	if err := db.Migrate(ctx); err != nil {
		slog.Error("Failed to migrate database", "error", err)
		os.Exit(1)
	}
	store := db.Store(cfg.Store.Timeout)

	// Audit records go through Kafka when it is enabled.
	var producer sarama.SyncProducer
	if cfg.Kafka.Enabled {
		producer, err = kafka.NewProducer(ctx, cfg.Kafka)
		if err != nil {
			slog.Error("Failed to create Kafka producer", "error", err)
			os.Exit(1)
		}
		defer producer.Close()
		slog.Info("✅ Connected to Kafka")
	}
	recorder := audit.NewRecorder(store, producer, cfg.Kafka.Topic)

	imageStorage, err := storage.NewLocalStorage(cfg.Storage.Dir, cfg.Storage.MaxSize)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	var checkout payments.Checkout
	if cfg.Stripe.SecretKey != "" {
		stripeCheckout, err := payments.NewStripeCheckout(cfg.Stripe.SecretKey, cfg.Stripe.Currency)
		if err != nil {
			slog.Error("Failed to initialize Stripe", "error", err)
			os.Exit(1)
		}
		checkout = stripeCheckout
	} else {
		slog.Warn("STRIPE_SECRET_KEY not set, checkout is disabled")
	}

	if cfg.LLM.APIKey == "" {
		slog.Warn("LLM_API_KEY not set, every chat reply will be the fallback")
	}
	gateway := llm.NewGateway(llm.NewGeminiProvider(cfg.LLM), cfg.LLM.Timeout, cfg.LLM.HistoryLimit)

	codec := auth.NewTokenCodec(cfg.JWT.Secret, cfg.JWT.Expiration)
	billingSvc := billing.NewService(store, recorder)

	server := api.NewServer(cfg, store, api.Services{
		Identity: identity.NewService(store, codec, cfg.Billing.SignupCredits),
		APIKeys:  identity.NewAPIKeys(store),
		Settings: settings.NewService(store),
		Chat:     chat.NewService(store, gateway, billingSvc, recorder, cfg.Billing.ChatCost),
		Billing:  billingSvc,
		Payments: payments.NewService(checkout, billingSvc, store),
		LLM:      gateway,
		Storage:  imageStorage,
	})

	go func() {
		slog.Info("🚀 Server running", "port", cfg.Server.Port)
		if err := server.Start(); err != nil {
			slog.Error("Server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("🛑 Server shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown failed", "error", err)
	}
}
