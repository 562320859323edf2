package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/live-bet-ledger/internal/ledger/service"
	"github.com/radieske/live-bet-ledger/internal/ledger/store"
	"github.com/radieske/live-bet-ledger/internal/match-events/consumer"
	"github.com/radieske/live-bet-ledger/internal/match-events/dedup"
	sharedcache "github.com/radieske/live-bet-ledger/internal/shared/cache"
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

	// Sinalização para shutdown gracioso (SIGINT/SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// o worker compartilha o ledger com o ledger-service: só faz sentido com Postgres
	if cfg.LedgerBackend != store.BackendPostgres {
		log.Fatal("match-event-worker requires LEDGER_BACKEND=postgres", zap.String("backend", cfg.LedgerBackend))
	}
	st, err := store.Open(ctx, cfg.LedgerBackend, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("ledger store", zap.Error(err))
	}
	defer st.Close()

	redisClient, err := sharedcache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer redisClient.Close()

	// Configura o consumer Kafka (consumer group match-event-worker)
	reader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicMatchEvents, "match-event-worker")
	defer reader.Close()
	dlq := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicMatchEventsDLQ)
	defer dlq.Close()

	svc := service.New(st, log, service.Config{
		OpTimeout:        cfg.OpTimeout,
		ConflictRetries:  cfg.ConflictRetries,
		SettleMaxRetries: cfg.SettleMaxRetries,
		SettleBackoff:    cfg.SettleBackoff,
	}, service.WithMetrics(service.NewMetrics(prometheus.DefaultRegisterer)))

	// Métricas Prometheus para monitoramento do processamento
	consumed := prometheus.NewCounter(prometheus.CounterOpts{Name: "match_events_consumed_total", Help: "mensagens consumidas"})
	processedBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "match_events_processed_total", Help: "eventos aplicados por tipo"}, []string{"type"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "match_events_errors_total", Help: "erros por estágio"}, []string{"stage"})
	prometheus.MustRegister(consumed, processedBy, errorsBy)

	proc := &consumer.Processor{
		Log:         log,
		Reader:      reader,
		Ledger:      svc,
		Dedup:       dedup.NewRedisDedup(redisClient, cfg.DedupTTL),
		DLQ:         dlq,
		Retries:     cfg.SettleMaxRetries,
		Backoff:     cfg.SettleBackoff,
		OnConsumed:  func() { consumed.Inc() },
		OnProcessed: func(typ string) { processedBy.WithLabelValues(typ).Inc() },
		OnError:     func(stage string) { errorsBy.WithLabelValues(stage).Inc() },
	}

	// Servidor HTTP para métricas e health check
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort,
		st.Ping,
		func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	)
	defer metricsSrv.Close()

	log.Info("match-event-worker started", zap.String("consume", cfg.TopicMatchEvents))
	if err := proc.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("processor stopped with error", zap.Error(err))
	}
	log.Info("match-event-worker stopped")
}
