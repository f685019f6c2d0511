package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-marketplace-core/internal/config"
	kafkax "github.com/ariefcatur/go-marketplace-core/internal/kafka"
	"github.com/ariefcatur/go-marketplace-core/internal/logging"
	"github.com/ariefcatur/go-marketplace-core/internal/projector"
	"github.com/ariefcatur/go-marketplace-core/internal/redisx"
	"github.com/ariefcatur/go-marketplace-core/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "market-projector:", err)
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

	brokers := cfg.Brokers()
	if len(brokers) == 0 {
		return fmt.Errorf("MARKET_KAFKA_BROKERS is required")
	}
	if cfg.RedisURL == "" {
		return fmt.Errorf("MARKET_REDIS_URL is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Options{
		ServiceName: cfg.ServiceName + "-projector",
		Env:         cfg.Env,
		Endpoint:    cfg.OTLPEndpoint,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		_ = shutdownTracing(sctx)
	}()

	rdb, err := redisx.New(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer rdb.Close() //nolint:errcheck

	svc := &projector.Service{
		Activity: &redisx.ActivityStore{RDB: rdb},
		Dedup:    &redisx.Dedup{RDB: rdb, Service: "projector"},
		Log:      log,
	}
	cons := kafkax.NewConsumer(brokers, cfg.KafkaGroupID, projector.Topics, cfg.KafkaWorkers, log)

	done := make(chan error, 1)
	go func() {
		log.Info("projector consuming",
			zap.String("group", cfg.KafkaGroupID),
			zap.Strings("topics", projector.Topics),
			zap.Int("workers", cfg.KafkaWorkers),
		)
		done <- cons.Start(ctx, svc.Handle)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		log.Info("shutting down consumer", zap.String("signal", s.String()))
		cancel()
		return <-done
	case err := <-done:
		if err != nil {
			return fmt.Errorf("consumer: %w", err)
		}
		return nil
	}
}
