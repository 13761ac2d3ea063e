package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ariefcatur/universal-market/internal/config"
	"github.com/ariefcatur/universal-market/internal/events"
	kafkax "github.com/ariefcatur/universal-market/internal/kafka"
	"github.com/ariefcatur/universal-market/internal/logging"
	"github.com/ariefcatur/universal-market/internal/postgres"
	"github.com/ariefcatur/universal-market/internal/reconciler"
	"github.com/ariefcatur/universal-market/internal/redisx"
	"github.com/ariefcatur/universal-market/internal/shutdown"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, err := logging.New(logging.Config{
		ServiceName: cfg.ServiceName + "-reconciler",
		Env:         string(cfg.AppEnv),
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync(log)

	if cfg.Storage != config.StoragePostgres {
		log.Fatal("reconciler requires postgres storage", zap.String("storage", cfg.Storage))
	}
	if len(cfg.KafkaBrokers) == 0 {
		log.Fatal("reconciler requires KAFKA_BROKERS")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sm := shutdown.New(cfg.ShutdownTimeout, log)

	db, err := postgres.Connect(ctx, cfg.PostgresDSN, postgres.Options{
		MaxConns:       cfg.PGMaxConns,
		MinConns:       cfg.PGMinConns,
		AcquireTimeout: cfg.PGAcquireTimeout,
	})
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	sm.Add("postgres", shutdown.Func(db.Close))

	rdb := redisx.New(cfg.RedisAddr)
	sm.Add("redis", shutdown.Closer(rdb.Close))

	dlq := kafkax.NewDLQPublisher(cfg.KafkaBrokers, events.TopicReconcileLineFailedDLQ, log.Named("dlq"))
	sm.Add("kafka-dlq", shutdown.Closer(dlq.Close))

	svc := &reconciler.Service{
		Stock:      &postgres.CatalogRepo{DB: db},
		Dedup:      redisx.NewDedupStore(rdb, "reconciler"),
		DLQ:        dlq,
		Log:        log.Named("reconciler"),
		MaxRetries: cfg.ReconcilerMaxRetries,
		Backoff:    cfg.ReconcilerBackoff,
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ReconcilerGroup, events.TopicReconcileLineFailed,
		cfg.ReconcilerWorkers, log.Named("consumer"))

	done := make(chan struct{})
	go func() {
		defer close(done)
		log.Info("consumer started",
			zap.String("group", cfg.ReconcilerGroup),
			zap.String("topic", events.TopicReconcileLineFailed),
			zap.Int("workers", cfg.ReconcilerWorkers))
		if err := cons.Start(ctx, svc.HandleLineFailed); err != nil {
			log.Error("consumer exit", zap.Error(err))
		}
		cancel()
	}()
	sm.Add("consumer", func(sctx context.Context) error {
		cancel()
		select {
		case <-done:
			return nil
		case <-sctx.Done():
			return fmt.Errorf("consumer did not stop: %w", sctx.Err())
		}
	})

	sm.Wait(ctx)
}
