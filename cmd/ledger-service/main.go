package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	lhttp "github.com/radieske/live-bet-ledger/internal/ledger-service/http"
	"github.com/radieske/live-bet-ledger/internal/ledger-service/odds"
	kpub "github.com/radieske/live-bet-ledger/internal/ledger-service/producer"
	"github.com/radieske/live-bet-ledger/internal/ledger/custody"
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

	// Backend do ledger (memory | postgres)
	st, err := store.Open(ctx, cfg.LedgerBackend, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("ledger store", zap.String("backend", cfg.LedgerBackend), zap.Error(err))
	}
	defer st.Close()

	// Redis: validação de odds contra o cache (opcional)
	var oddsCheck lhttp.OddsChecker
	var rdb *redis.Client
	if cfg.OddsCheck {
		rdb, err = sharedcache.ConnectRedis(cfg.RedisAddr)
		if err != nil {
			log.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()
		oddsCheck = odds.NewValidator(rdb)
	}

	// Kafka writers: bet_placed / bet_changed
	placedW := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicBetPlaced)
	defer placedW.Close()
	changedW := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicBetChanged)
	defer changedW.Close()
	publ := kpub.NewKafkaPublisher(placedW, changedW)

	// deps
	svc := service.New(st, log, service.Config{
		OpTimeout:        cfg.OpTimeout,
		ConflictRetries:  cfg.ConflictRetries,
		SettleMaxRetries: cfg.SettleMaxRetries,
		SettleBackoff:    cfg.SettleBackoff,
	},
		service.WithFunds(custody.New(cfg.CustodyURL, cfg.CustodyTimeout)),
		service.WithMetrics(service.NewMetrics(prometheus.DefaultRegisterer)),
	)

	// Em memória o outbox só existe neste processo: o relay roda aqui mesmo
	if cfg.LedgerBackend == store.BackendMemory {
		intentsW := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicCustodyIntents)
		defer intentsW.Close()
		dlqW := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicCustodyIntentsDLQ)
		defer dlqW.Close()
		relay := custody.NewRelay(log, st, intentsW, dlqW, prometheus.DefaultRegisterer)
		relay.MaxAttempts, relay.Batch, relay.Period = cfg.RelayMaxTry, cfg.RelayBatch, cfg.RelayPeriod
		go func() { _ = relay.Run(ctx) }()
		log.Info("in-process custody relay started")

		// o feed da partida também precisa chegar neste processo
		reader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicMatchEvents, "ledger-service-memory")
		defer reader.Close()
		eventsDLQ := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicMatchEventsDLQ)
		defer eventsDLQ.Close()
		proc := &consumer.Processor{
			Log:     log,
			Reader:  reader,
			Ledger:  svc,
			DLQ:     eventsDLQ,
			Retries: cfg.SettleMaxRetries,
			Backoff: cfg.SettleBackoff,
		}
		if rdb != nil {
			proc.Dedup = dedup.NewRedisDedup(rdb, cfg.DedupTTL)
		}
		go func() {
			if err := proc.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error("in-process match event consumer stopped", zap.Error(err))
			}
		}()
		log.Info("in-process match event consumer started", zap.String("consume", cfg.TopicMatchEvents))
	}

	// metrics/health
	health := []metrics.HealthFunc{st.Ping}
	if rdb != nil {
		health = append(health, func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, health...)
	log.Info("metrics/health", zap.String("addr", ":"+cfg.MetricsPort))

	// HTTP público
	api := lhttp.NewServer(log, svc, oddsCheck, publ)
	apiSrv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shCtx, shCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shCancel()
		_ = apiSrv.Shutdown(shCtx)
		_ = metricsSrv.Shutdown(shCtx)
	}()

	log.Info("ledger-service listening", zap.String("addr", apiSrv.Addr), zap.String("backend", cfg.LedgerBackend))
	if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("api", zap.Error(err))
	}
	log.Info("ledger-service stopped")
}
