package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/live-bet-ledger/internal/ledger/custody"
	"github.com/radieske/live-bet-ledger/internal/ledger/store"
	"github.com/radieske/live-bet-ledger/internal/shared/config"
	"github.com/radieske/live-bet-ledger/internal/shared/kafka"
	"github.com/radieske/live-bet-ledger/internal/shared/logger"
	"github.com/radieske/live-bet-ledger/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// o outbox vive no Postgres; com backend em memória o relay roda dentro do ledger-service
	if cfg.LedgerBackend != store.BackendPostgres {
		log.Fatal("custody-relay-worker requires LEDGER_BACKEND=postgres", zap.String("backend", cfg.LedgerBackend))
	}
	st, err := store.Open(ctx, cfg.LedgerBackend, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("ledger store", zap.Error(err))
	}
	defer st.Close()

	// Kafka producer: publica custody_intents e, após os retries, envia para DLQ
	intentsW := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicCustodyIntents)
	defer intentsW.Close()

	var dlq kafka.MessageWriter
	if cfg.TopicCustodyIntentsDLQ != "" {
		dlqW := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicCustodyIntentsDLQ)
		defer dlqW.Close()
		dlq = dlqW
	}

	relay := custody.NewRelay(log, st, intentsW, dlq, prometheus.DefaultRegisterer)
	relay.MaxAttempts, relay.Batch, relay.Period = cfg.RelayMaxTry, cfg.RelayBatch, cfg.RelayPeriod

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, st.Ping)
	defer metricsSrv.Close()

	log.Info("custody-relay-worker started",
		zap.String("publish", cfg.TopicCustodyIntents),
		zap.String("dlq", cfg.TopicCustodyIntentsDLQ),
	)
	if err := relay.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("relay stopped with error", zap.Error(err))
	}
	log.Info("custody-relay-worker stopped")
}
