package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"tradepost/internal/audit"
	"tradepost/internal/catalog"
	"tradepost/internal/escrow"
	"tradepost/internal/identity"
	"tradepost/internal/jwttoken"
	"tradepost/internal/ledger"
	"tradepost/internal/platform/config"
	"tradepost/internal/platform/httpserver"
	"tradepost/internal/platform/logger"
	"tradepost/internal/platform/metrics"
	"tradepost/internal/platform/redis"
	"tradepost/internal/storage"
	"tradepost/internal/storage/memory"
	"tradepost/internal/storage/postgres"
	"tradepost/internal/trading"
	httptransport "tradepost/internal/transport/http"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in the internal services.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checks := map[string]httptransport.HealthCheck{}

	var store storage.Store
	if cfg.PostgresURL != "" {
		pg, err := postgres.Open(ctx, cfg.PostgresURL)
		if err != nil {
			log.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			log.Error("failed to migrate schema", "error", err)
			os.Exit(1)
		}
		checks["postgres"] = pg.DB().PingContext
		store = pg
		log.Info("using postgres store")
	} else {
		store = memory.New()
		log.Info("using in-memory store")
	}

	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	var itemCache catalog.Cache
	if redisClient != nil {
		defer redisClient.Close()
		checks["redis"] = redisClient.Health
		itemCache = catalog.NewRedisCache(redisClient, cfg.ItemCacheTTL)
		log.Info("item cache enabled")
	}

	// Audit events drain into the database store, and additionally into
	// Kafka when brokers are configured.
	auditSink := audit.Store(storeAuditSink{store})
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink, err := audit.NewKafkaSink(ctx, cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			log.Error("failed to connect audit kafka sink", "error", err)
			os.Exit(1)
		}
		defer kafkaSink.Close()
		auditSink = fanoutSink{primary: auditSink, secondary: kafkaSink, logger: log}
		log.Info("audit kafka sink enabled", "topic", cfg.KafkaTopic)
	}
	publisher := audit.NewPublisher(cfg.AuditBuffer, log)
	worker := audit.NewWorker(auditSink, publisher.Inbox(), log)

	hostLedger := ledger.NewMemoryLedger(cfg.LedgerSeed)

	m := metrics.New()
	identitySvc := identity.NewService(store, publisher, m, log)
	catalogSvc := catalog.NewService(store, store, itemCache, publisher, m, log)
	tradingSvc := trading.NewService(store, hostLedger, cacheOrNoop(itemCache), publisher, m, log, cfg.Treasury)
	escrowSvc := escrow.NewService(store, hostLedger, publisher, m, log, cfg.Treasury)

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)

	handler := httptransport.NewHandler(identitySvc, catalogSvc, tradingSvc, escrowSvc, store, log, checks)
	router := httptransport.NewRouter(handler, log, m, jwtService)
	srv := httpserver.New(cfg.Addr, router)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("starting tradepost", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		return httpserver.Shutdown(srv, 10*time.Second)
	})

	if err := group.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

// storeAuditSink narrows the storage interface to the audit append.
type storeAuditSink struct {
	store storage.AuditStore
}

func (s storeAuditSink) AppendAuditEvent(ctx context.Context, event audit.Event) error {
	return s.store.AppendAuditEvent(ctx, event)
}

// fanoutSink writes to the database first and then mirrors to Kafka. A Kafka
// failure is logged but never blocks the trail of record.
type fanoutSink struct {
	primary   audit.Store
	secondary audit.Store
	logger    interface {
		ErrorContext(ctx context.Context, msg string, args ...any)
	}
}

func (f fanoutSink) AppendAuditEvent(ctx context.Context, event audit.Event) error {
	if err := f.primary.AppendAuditEvent(ctx, event); err != nil {
		return err
	}
	if err := f.secondary.AppendAuditEvent(ctx, event); err != nil {
		f.logger.ErrorContext(ctx, "failed to mirror audit event to kafka",
			"event_id", event.ID,
			"error", err,
		)
	}
	return nil
}

func cacheOrNoop(cache catalog.Cache) trading.ItemCache {
	if cache == nil {
		return catalog.NoopCache{}
	}
	return cache
}
