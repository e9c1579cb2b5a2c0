// Command server runs the civil registry ingestion service: HTTP API,
// deduplication pipeline, and the stores behind them. Backends degrade
// gracefully: without a Postgres DSN the registry runs in memory, without
// Redis the review queue does, and without Kafka brokers audit events stay
// in the local store only.
package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"registro/internal/dedupe"
	"registro/internal/dedupe/block"
	"registro/internal/dedupe/decide"
	"registro/internal/dedupe/match"
	dedupemetrics "registro/internal/dedupe/metrics"
	"registro/internal/ingest"
	"registro/internal/ingest/batch"
	ingestmetrics "registro/internal/ingest/metrics"
	"registro/internal/ingest/review"
	"registro/internal/platform/config"
	"registro/internal/platform/httpserver"
	"registro/internal/platform/logger"
	platformredis "registro/internal/platform/redis"
	"registro/internal/registry"
	httptransport "registro/internal/transport/http"
	"registro/pkg/platform/audit"
	"registro/pkg/platform/audit/publisher"
	"registro/pkg/platform/audit/sink"
	auditmemory "registro/pkg/platform/audit/store/memory"
	"registro/pkg/platform/circuit"
	"registro/pkg/platform/middleware/auth"
)

const auditBufferSize = 1024

func main() {
	_ = godotenv.Load()

	cfg := config.FromEnv()
	log := logger.New()

	policy, err := config.LoadMatchingPolicy(cfg.PolicyPath)
	if err != nil {
		log.Error("invalid matching policy", "path", cfg.PolicyPath, "error", err)
		os.Exit(1)
	}

	var (
		store   registry.Store
		batches batch.Store
		db      *sql.DB
	)
	if cfg.PostgresDSN != "" {
		db, err = sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			log.Error("open postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := applySchema(db); err != nil {
			log.Error("apply schema", "error", err)
			os.Exit(1)
		}
		store = registry.NewPostgresStore(db)
		batches = batch.NewPostgresStore(db)
		log.Info("registry store: postgres")
	} else {
		store = registry.NewInMemoryStore()
		batches = batch.NewInMemoryStore()
		log.Warn("registry store: in-memory, data is lost on restart")
	}

	var reviews review.Queue = review.NewInMemoryQueue()
	redisClient, err := platformredis.New(cfg.Redis())
	if err != nil {
		log.Error("connect redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		reviews = review.NewRedisQueue(redisClient.Client)
		log.Info("review queue: redis")
	} else {
		log.Warn("review queue: in-memory")
	}

	var auditStore audit.Store = auditmemory.NewInMemoryStore()
	auditOpts := []publisher.Option{
		publisher.WithAsyncBuffer(auditBufferSize),
		publisher.WithLogger(log),
	}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink, err := sink.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		if err != nil {
			log.Error("connect kafka", "brokers", cfg.KafkaBrokers, "error", err)
			os.Exit(1)
		}
		defer kafkaSink.Close()
		auditStore = kafkaSink
		auditOpts = append(auditOpts, publisher.WithBreaker(circuit.New("audit-kafka")))
		log.Info("audit sink: kafka", "topic", cfg.KafkaTopic)
	}
	auditPublisher := publisher.NewPublisher(auditStore, auditOpts...)
	defer auditPublisher.Close()

	engine, err := decide.New(policy.Thresholds.Match, policy.Thresholds.Review)
	if err != nil {
		log.Error("invalid decision thresholds", "error", err)
		os.Exit(1)
	}
	matcher := match.New(match.WithWeights(match.Weights{
		Name:      policy.Weights.Name,
		BirthDate: policy.Weights.BirthDate,
		Address:   policy.Weights.Address,
	}))

	dedupeSvc, err := dedupe.New(store,
		dedupe.WithLogger(log),
		dedupe.WithMetrics(dedupemetrics.New()),
		dedupe.WithMatcher(matcher),
		dedupe.WithEngine(engine),
		dedupe.WithIndex(block.NewIndex(block.WithCandidateCap(policy.Blocking.CandidateCap))),
	)
	if err != nil {
		log.Error("build dedupe service", "error", err)
		os.Exit(1)
	}

	startup, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	if err := dedupeSvc.RebuildIndex(startup); err != nil {
		cancel()
		log.Error("rebuild blocking index", "error", err)
		os.Exit(1)
	}
	cancel()

	ingestSvc, err := ingest.New(store, dedupeSvc, reviews, batches,
		ingest.WithLogger(log),
		ingest.WithMetrics(ingestmetrics.New()),
		ingest.WithAudit(auditPublisher),
		ingest.WithWorkers(cfg.BatchWorkers),
		ingest.WithRecordTimeout(cfg.RecordTimeout),
	)
	if err != nil {
		log.Error("build ingest service", "error", err)
		os.Exit(1)
	}

	router := httptransport.NewRouter(httptransport.Deps{
		Ingest: ingestSvc,
		Dedupe: dedupeSvc,
		Auth:   auth.New(cfg.JWTSigningKey, log),
		Logger: log,
		HealthFunc: func(r *http.Request) error {
			if db != nil {
				return db.PingContext(r.Context())
			}
			return nil
		},
	})

	srv := httpserver.New(cfg.Addr, router)

	go func() {
		log.Info("starting registro", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdown); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}
