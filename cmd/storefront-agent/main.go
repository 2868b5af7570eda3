package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stripe/stripe-go/v79"
	"go.uber.org/zap"

	"goflare.io/storefront"
	"goflare.io/storefront/cart"
	"goflare.io/storefront/category"
	"goflare.io/storefront/checkout"
	"goflare.io/storefront/config"
	"goflare.io/storefront/driver"
	"goflare.io/storefront/event"
	"goflare.io/storefront/gateway"
	"goflare.io/storefront/snapshot"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		if errors.Is(err, config.ErrHelpWanted) {
			return
		}
		fmt.Fprintln(os.Stderr, "parsing config:", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "building logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("Agent stopped", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	if cfg.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	return zc.Build()
}

func run(cfg config.Config, logger *zap.Logger) error {
	logger.Info("Starting storefront agent")
	defer logger.Info("Shutdown complete")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gw, err := gateway.New(cfg.Backend.URL,
		gateway.WithLogger(logger),
		gateway.WithTimeout(cfg.Backend.Timeout),
		gateway.WithTokenCookie(cfg.Backend.TokenCookie))
	if err != nil {
		return fmt.Errorf("failed to build gateway: %w", err)
	}

	var redisClient *redis.Client
	if cfg.Snapshot.Backend == "redis" || cfg.Events.Dedupe == "redis" {
		redisClient, err = driver.ConnectRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			return err
		}
		defer redisClient.Close()
	}

	snapshots, closeSnapshots, err := openSnapshots(ctx, cfg, redisClient, logger)
	if err != nil {
		return err
	}
	defer closeSnapshots()

	var events event.Repository = event.NewMemoryRepository()
	if cfg.Events.Dedupe == "redis" {
		events = event.NewRepository(redisClient, "storefront:event:", cfg.Events.TTL, logger)
	}

	var sessions checkout.Service
	if cfg.Stripe.SecretKey != "" {
		sessions = checkout.NewStripeService(cfg.Stripe.SecretKey, checkout.Config{
			SuccessURL: cfg.Stripe.SuccessURL,
			CancelURL:  cfg.Stripe.CancelURL,
			Currency:   stripe.Currency(cfg.Stripe.Currency),
		}, logger)
	}

	natsConn, err := driver.ConnectNATS(cfg.NATS.URL, cfg.NATS.Name, logger)
	if err != nil {
		return err
	}
	defer natsConn.Close()

	svc := storefront.NewService(
		gw,
		cart.NewLocalRepository(snapshots, cfg.Snapshot.Key, logger),
		category.NewRepository(gw, redisClient, logger),
		sessions,
		events,
		nil,
		natsConn, cfg.NATS.Subject,
		logger,
	)

	if res := svc.LoadCart(ctx); !res.OK() {
		logger.Warn("Starting with an empty guest cart", zap.Error(res.Err))
	}
	if err := svc.LoadCategories(ctx); err != nil {
		logger.Warn("Categories unavailable at startup", zap.Error(err))
	}

	logger.Info("Storefront agent ready",
		zap.String("backend", cfg.Backend.URL),
		zap.String("snapshot_backend", cfg.Snapshot.Backend),
		zap.String("subject", cfg.NATS.Subject),
		zap.Int("items", svc.Cart().TotalItems()))

	<-ctx.Done()
	logger.Info("Shutting down", zap.Error(context.Cause(ctx)))

	done := make(chan struct{})
	go func() {
		svc.Shutdown()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(30 * time.Second):
		return errors.New("timed out waiting for session events to finish")
	}
}

func openSnapshots(ctx context.Context, cfg config.Config, redisClient *redis.Client, logger *zap.Logger) (snapshot.Store, func(), error) {
	switch cfg.Snapshot.Backend {
	case "redis":
		return snapshot.NewRedisStore(redisClient, cfg.Snapshot.Prefix, cfg.Snapshot.TTL, logger), func() {}, nil

	case "postgres":
		pool, err := driver.ConnectSQL(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, nil, err
		}
		store := snapshot.NewPostgresStore(pool, logger)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil

	default:
		return snapshot.NewMemoryStore(), func() {}, nil
	}
}
