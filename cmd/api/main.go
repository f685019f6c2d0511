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

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-marketplace-core/internal/auction"
	"github.com/ariefcatur/go-marketplace-core/internal/config"
	"github.com/ariefcatur/go-marketplace-core/internal/events"
	"github.com/ariefcatur/go-marketplace-core/internal/httpx"
	"github.com/ariefcatur/go-marketplace-core/internal/inventory"
	kafkax "github.com/ariefcatur/go-marketplace-core/internal/kafka"
	"github.com/ariefcatur/go-marketplace-core/internal/logging"
	"github.com/ariefcatur/go-marketplace-core/internal/orders"
	"github.com/ariefcatur/go-marketplace-core/internal/postgres"
	"github.com/ariefcatur/go-marketplace-core/internal/redisx"
	"github.com/ariefcatur/go-marketplace-core/internal/store"
	"github.com/ariefcatur/go-marketplace-core/internal/store/memory"
	"github.com/ariefcatur/go-marketplace-core/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "market-api:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logging.New(logging.Config{Level: cfg.LogLevel, Env: cfg.Env})
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Options{
		ServiceName: cfg.ServiceName,
		Env:         cfg.Env,
		Endpoint:    cfg.OTLPEndpoint,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn("tracer shutdown", zap.Error(err))
		}
	}()

	// Store
	var base store.Store
	switch cfg.StoreDriver {
	case config.DriverMemory:
		mem := memory.New()
		if cfg.SeedDemo {
			items := memory.SeedDemo(mem, time.Now())
			log.Info("seeded demo catalog", zap.Int("items", len(items)))
		}
		base = mem
	default:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN, postgres.PoolConfig{})
		if err != nil {
			return fmt.Errorf("db connect: %w", err)
		}
		defer db.Close()
		base = postgres.NewStore(db, log)
	}
	st := store.WithReadRetry(base, store.RetryOptions{Attempts: cfg.ReadRetryAttempts, Logger: log})

	health := httpx.HealthChecks{Store: st}
	orderOpts := []orders.Option{
		orders.WithProducerName(cfg.ServiceName),
		orders.WithMutationTimeout(cfg.MutationTimeout),
	}
	auctionOpts := []auction.Option{
		auction.WithProducerName(cfg.ServiceName),
		auction.WithMutationTimeout(cfg.MutationTimeout),
	}
	var activity httpx.ActivityReader

	// Redis is optional: without it idempotency falls back to the ledger
	// and bid history is read straight from the store.
	if cfg.RedisURL != "" {
		rdb, err := redisx.New(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer func(rdb *redis.Client) { _ = rdb.Close() }(rdb)
		health.Redis = redisx.Pinger{RDB: rdb}
		orderOpts = append(orderOpts, orders.WithGuard(redisx.NewOrderGuard(rdb, cfg.IdempotencyTTL)))
		auctionOpts = append(auctionOpts, auction.WithHistoryCache(redisx.NewBidHistoryCache(rdb, cfg.HistoryCacheTTL)))
		activity = &redisx.ActivityStore{RDB: rdb}
	}

	// Kafka producer
	var publisher events.Publisher = events.Discard{}
	var prod *kafkax.Producer
	if brokers := cfg.Brokers(); len(brokers) > 0 {
		prod = kafkax.NewProducer(brokers, 1024, log)
		prod.Start()
		publisher = prod
		health.EventBus = prod
	} else {
		log.Warn("no kafka brokers configured, events are discarded")
	}
	orderOpts = append(orderOpts, orders.WithPublisher(publisher))
	auctionOpts = append(auctionOpts, auction.WithPublisher(publisher))

	api := &httpx.API{
		Orders:             orders.NewService(st, inventory.NewEngine(), log, orderOpts...),
		Auctions:           auction.NewEngine(st, log, auctionOpts...),
		Catalog:            st,
		Activity:           activity,
		Health:             health,
		Log:                log,
		MutationsPerMinute: cfg.RateLimitPerMinute,
	}
	router := httpx.NewRouter(httpx.ServerConfig{
		ServiceName:        cfg.ServiceName,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	}, log)
	api.Register(router)

	srv := httpx.NewServer(cfg.HTTPAddr, router)
	errCh := make(chan error, 1)
	go func() {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		log.Info("shutting down", zap.String("signal", s.String()))
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	}

	sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer scancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	// handlers are drained, so nothing publishes after this point
	if prod != nil {
		prod.Close()
		prod.WaitClosed()
	}
	return nil
}
