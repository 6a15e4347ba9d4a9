package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"

	"kycgate/internal/capability"
	"kycgate/internal/capability/httpprovider"
	"kycgate/internal/capability/static"
	"kycgate/internal/platform/config"
	platformmetrics "kycgate/internal/platform/metrics"
	"kycgate/internal/platform/middleware"
	"kycgate/internal/platform/redis"
	reviewhandler "kycgate/internal/review/handler"
	reviewmetrics "kycgate/internal/review/metrics"
	reviewservice "kycgate/internal/review/service"
	verificationhandler "kycgate/internal/verification/handler"
	verificationmetrics "kycgate/internal/verification/metrics"
	verificationservice "kycgate/internal/verification/service"
	"kycgate/internal/verification/store"
	id "kycgate/pkg/domain"
	audit "kycgate/pkg/platform/audit"
	"kycgate/pkg/platform/audit/publishers/compliance"
	auditmemory "kycgate/pkg/platform/audit/store/memory"
	auditpostgres "kycgate/pkg/platform/audit/store/postgres"
	"kycgate/pkg/platform/audit/worker"
	"kycgate/pkg/platform/circuit"
	"kycgate/pkg/platform/httputil"
	"kycgate/pkg/platform/keylock"
)

const relayBuffer = 1024

// app holds the wired process. background runs until its context ends.
type app struct {
	router     http.Handler
	background []func(ctx context.Context) error
	closers    []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

type sessionStore interface {
	verificationservice.SessionStore
	reviewservice.SessionStore
}

// instrument is false in tests, where promauto collectors would collide on
// the default registry.
func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger, instrument bool) (*app, error) {
	a := &app{}
	var (
		sessions sessionStore
		ledger   audit.Store
		tx       txRunner = store.MemoryTx{}
		checks   []func(context.Context) error
	)

	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		db.SetMaxOpenConns(20)
		db.SetConnMaxIdleTime(5 * time.Minute)
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		checks = append(checks, db.PingContext)
		sessions = store.NewPostgres(db)
		ledger = auditpostgres.New(db)
		tx = newBoundedTx(store.PostgresTx{DB: db})
		log.Info("using postgres for sessions and ledger")
	} else {
		sessions = store.NewInMemoryStore()
		ledger = auditmemory.NewInMemoryStore()
		log.Warn("no database configured, sessions and ledger are in memory")
	}

	var guard verificationservice.DuplicateGuard = store.NewMemoryGuard()
	rdb, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		a.Close()
		return nil, err
	}
	if rdb != nil {
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		checks = append(checks, rdb.Health)
		guard = store.NewRedisGuard(rdb.Client)
	}

	registry, err := buildRegistry(cfg, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	pubOpts := []compliance.Option{compliance.WithLogger(log)}
	if instrument {
		pubOpts = append(pubOpts, compliance.WithMetrics(compliance.NewMetrics()))
	}
	if len(cfg.KafkaBrokers) > 0 {
		sink, err := worker.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, sink.Close)
		relay := make(chan audit.Entry, relayBuffer)
		pubOpts = append(pubOpts, compliance.WithRelay(relay))
		a.background = append(a.background, worker.NewWorker(sink, relay, log).Run)
	}
	publisher := compliance.New(ledger, pubOpts...)

	locks := keylock.New[id.SessionID]()
	verifyOpts := []verificationservice.Option{
		verificationservice.WithLogger(log),
		verificationservice.WithTx(tx),
		verificationservice.WithLocks(locks),
		verificationservice.WithDuplicateGuard(guard, cfg.DuplicateWindow),
		verificationservice.WithProviderTimeout(cfg.ProviderTimeout),
		verificationservice.WithThresholds(cfg.Thresholds),
		verificationservice.WithLedgerReader(ledger),
		verificationservice.WithOptionalStages(cfg.OptionalStages...),
		verificationservice.WithHashKey([]byte(cfg.SubjectHashKey)),
	}
	reviewOpts := []reviewservice.Option{
		reviewservice.WithLogger(log),
		reviewservice.WithTx(tx),
		reviewservice.WithLocks(locks),
	}
	var httpMetrics *platformmetrics.HTTP
	if instrument {
		verifyOpts = append(verifyOpts, verificationservice.WithMetrics(verificationmetrics.New()))
		reviewOpts = append(reviewOpts, reviewservice.WithMetrics(reviewmetrics.New()))
		httpMetrics = platformmetrics.New()
	}
	verification := verificationservice.New(sessions, registry, publisher, verifyOpts...)
	review := reviewservice.New(sessions, publisher, ledger, reviewOpts...)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RequestTime, middleware.ClientIP)
	r.Use(middleware.Logger(log, httpMetrics), middleware.Recovery(log))
	r.Get("/healthz", healthHandler(checks))
	if httpMetrics != nil {
		r.Handle("/metrics", httpMetrics.Handler())
	}
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
		verificationhandler.New(verification, log).Register(r)
		r.Group(func(r chi.Router) {
			if cfg.ReviewerJWTKey != "" {
				r.Use(middleware.RequireReviewer(middleware.NewReviewerTokenValidator(cfg.ReviewerJWTKey), log))
			} else {
				log.Warn("reviewer routes are unauthenticated, set KYC_REVIEWER_JWT_KEY")
			}
			reviewhandler.New(review, log).Register(r)
		})
	})
	a.router = r
	return a, nil
}

// buildRegistry registers a breaker-wrapped remote detector for every
// configured URL and the static stand-in for the rest.
func buildRegistry(cfg *config.Config, log *slog.Logger) (*capability.Registry, error) {
	registry, err := capability.NewRegistry()
	if err != nil {
		return nil, err
	}
	for _, p := range static.Defaults() {
		var provider capability.Provider = p
		if url, ok := cfg.Detectors[p.Variant()]; ok {
			opts := []httpprovider.Option{}
			if cfg.DetectorAPIKey != "" {
				opts = append(opts, httpprovider.WithAPIKey(cfg.DetectorAPIKey))
			}
			remote := httpprovider.New("remote-"+string(p.Variant()), p.Variant(), url, opts...)
			provider = capability.WithBreaker(remote, circuit.New(string(p.Variant())), log)
			log.Info("remote detector configured", "variant", p.Variant(), "url", url)
		}
		if err := registry.Register(provider); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func healthHandler(checks []func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		for _, check := range checks {
			if err := check(ctx); err != nil {
				httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
