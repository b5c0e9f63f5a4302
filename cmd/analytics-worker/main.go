package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/joao-fontenele/catering-orders/internal/analytics"
	"github.com/joao-fontenele/catering-orders/internal/config"
	"github.com/joao-fontenele/catering-orders/internal/logger"
	"github.com/joao-fontenele/catering-orders/internal/messaging"
	"github.com/joao-fontenele/catering-orders/internal/telemetry"
)

const serviceName = "catering-analytics-worker"

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Env, serviceName)
	if err != nil {
		fmt.Fprintln(os.Stderr, "build logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := cfg.Require("KAFKA_BROKERS", "MONGO_URL"); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	if err := run(cfg, log); err != nil {
		log.Fatal("worker stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, cfg.OTLPEndpoint, serviceName, version)
	if err != nil {
		return fmt.Errorf("init tracer provider: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			log.Error("tracer provider shutdown", zap.Error(err))
		}
	}()

	client, err := analytics.Connect(ctx, cfg.MongoURL)
	if err != nil {
		return err
	}
	defer func() { _ = client.Disconnect(context.Background()) }()

	store := analytics.NewMongoStore(client.Database(cfg.MongoDB))
	if err := store.EnsureIndexes(ctx); err != nil {
		return err
	}

	consumer := messaging.NewConsumer(cfg.KafkaBrokers, cfg.AnalyticsTopic, cfg.AnalyticsGroup)
	defer func() { _ = consumer.Close() }()

	handler := analytics.NewSummaryHandler(store, log)

	log.Info("starting analytics worker",
		zap.Strings("brokers", cfg.KafkaBrokers),
		zap.String("topic", cfg.AnalyticsTopic),
		zap.String("group", cfg.AnalyticsGroup),
	)

	if err := consumer.Consume(ctx, handler.Handle); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			log.Info("consumer stopped")
			return nil
		}
		return fmt.Errorf("consume %s: %w", cfg.AnalyticsTopic, err)
	}
	return nil
}
