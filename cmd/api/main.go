package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/joao-fontenele/catering-orders/internal/analytics"
	"github.com/joao-fontenele/catering-orders/internal/api"
	"github.com/joao-fontenele/catering-orders/internal/auth"
	"github.com/joao-fontenele/catering-orders/internal/catalog"
	"github.com/joao-fontenele/catering-orders/internal/config"
	"github.com/joao-fontenele/catering-orders/internal/database"
	"github.com/joao-fontenele/catering-orders/internal/logger"
	"github.com/joao-fontenele/catering-orders/internal/messaging"
	"github.com/joao-fontenele/catering-orders/internal/notify"
	"github.com/joao-fontenele/catering-orders/internal/ordernum"
	"github.com/joao-fontenele/catering-orders/internal/orders"
	"github.com/joao-fontenele/catering-orders/internal/pricing"
	"github.com/joao-fontenele/catering-orders/internal/reviews"
	"github.com/joao-fontenele/catering-orders/internal/telemetry"
)

const serviceName = "catering-api"

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

	if err := cfg.Require("POSTGRES_URL", "JWT_SECRET"); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	if err := run(cfg, log); err != nil {
		log.Fatal("api stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, cfg.OTLPEndpoint, serviceName, version)
	if err != nil {
		return fmt.Errorf("init tracer provider: %w", err)
	}
	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider(serviceName, version)
	if err != nil {
		return fmt.Errorf("init meter provider: %w", err)
	}
	orderMetrics, err := telemetry.NewOrderMetrics(otel.Meter(serviceName))
	if err != nil {
		return fmt.Errorf("create order metrics: %w", err)
	}

	db, err := database.Open(ctx, cfg.PostgresURL, database.Options{
		MaxOpenConns:    20,
		MaxIdleConns:    10,
		ConnMaxLifetime: 30 * time.Minute,
	})
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	var (
		sink      orders.AnalyticsSink
		statsMain analytics.StatsSource
	)
	if len(cfg.KafkaBrokers) > 0 {
		producer := messaging.NewProducer(cfg.KafkaBrokers, cfg.AnalyticsTopic)
		defer func() { _ = producer.Close() }()
		sink = analytics.NewKafkaSink(producer)
		log.Info("order summaries published to kafka",
			zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.AnalyticsTopic))
	}
	if cfg.MongoURL != "" {
		client, err := connectMongo(ctx, cfg)
		if err != nil {
			log.Warn("analytics store unavailable, stats served from postgres", zap.Error(err))
		} else {
			defer func() { _ = client.Disconnect(context.Background()) }()
			store := analytics.NewMongoStore(client.Database(cfg.MongoDB))
			statsMain = store
			if sink == nil {
				sink = store
			}
		}
	}

	menuRepo := catalog.NewRepository(db)
	var (
		menus       catalog.MenuReader = menuRepo
		menuInvalid catalog.Invalidator
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("menu cache unreachable, reads will fall through", zap.Error(err))
		}
		cached := catalog.NewCachedMenus(menuRepo, rdb, cfg.MenuCacheTTL, log)
		menus, menuInvalid = cached, cached
	}

	recorder := notify.NewRecorder(db)
	opts := []orders.Option{
		orders.WithNotifier(recorder),
		orders.WithMetrics(orderMetrics),
		orders.WithLocation(cfg.Location),
	}
	if sink != nil {
		opts = append(opts, orders.WithAnalytics(sink))
	}
	orderService := orders.NewService(
		orders.NewOrderRepository(db),
		ordernum.NewGenerator(cfg.OrderNumberPrefix),
		pricing.NewEngine(cfg.ZeroFeeCity),
		log,
		opts...,
	)

	tokens := auth.NewTokens(cfg.JWTSecret, "catering-orders", cfg.JWTTTL)
	accounts := auth.NewAccounts(auth.NewUserRepository(db), tokens, bcrypt.DefaultCost, log, auth.WithNotifier(recorder))
	authHandler := auth.NewHandler(accounts, log)
	reviewService := reviews.NewService(reviews.NewRepository(db), orders.NewOrderRepository(db), log)
	reviewHandler := reviews.NewHandler(reviewService, log)
	stats := analytics.NewStats(statsMain, analytics.NewPostgresStats(db), log)

	router := api.NewRouter(api.Config{
		Logger:  log,
		Tokens:  tokens,
		DB:      db,
		Metrics: metricsHandler,
		Public: []api.RouteRegistrar{
			api.RouteFunc(authHandler.RegisterPublicRoutes),
			catalog.NewHandler(menus, log),
			api.RouteFunc(reviewHandler.RegisterPublicRoutes),
		},
		Protected: []api.RouteRegistrar{
			orders.NewHandler(orderService, log),
			authHandler,
			catalog.NewAdminHandler(catalog.NewManager(menuRepo, menuInvalid, log), log),
			reviewHandler,
			analytics.NewHandler(stats, log),
		},
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("starting api", zap.String("port", cfg.Port), zap.String("env", cfg.Env))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("serve http: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", zap.Error(err))
	}
	if err := orderService.Drain(shutdownCtx); err != nil {
		log.Warn("pending side effects abandoned", zap.Error(err))
	}
	if err := shutdownMeter(shutdownCtx); err != nil {
		log.Error("meter provider shutdown", zap.Error(err))
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Error("tracer provider shutdown", zap.Error(err))
	}
	return nil
}

func connectMongo(ctx context.Context, cfg *config.Config) (*mongo.Client, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := analytics.Connect(connectCtx, cfg.MongoURL)
	if err != nil {
		return nil, err
	}
	store := analytics.NewMongoStore(client.Database(cfg.MongoDB))
	if err := store.EnsureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return client, nil
}
