package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"pactline/internal/agreement"
	agreementhandler "pactline/internal/agreement/handler"
	"pactline/internal/audit"
	"pactline/internal/identity"
	jwttoken "pactline/internal/jwt_token"
	"pactline/internal/ledger"
	"pactline/internal/notify"
	"pactline/internal/platform/config"
	"pactline/internal/platform/httpserver"
	"pactline/internal/platform/kafka"
	"pactline/internal/platform/logger"
	"pactline/internal/platform/metrics"
	"pactline/internal/platform/redis"
	ratelimitmetrics "pactline/internal/ratelimit/metrics"
	ratelimitmw "pactline/internal/ratelimit/middleware"
	"pactline/internal/ratelimit/store/bucket"
	httptransport "pactline/internal/transport/http"
	"pactline/internal/verification"
	verificationhandler "pactline/internal/verification/handler"
	"pactline/pkg/platform/circuit"
)

// main wires high-level dependencies, exposes the HTTP router, and runs the
// background loops next to the server. Business logic lives in the internal
// service packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("pactline stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	m := metrics.New()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.shutdown()

	// =========================================================================
	// Domain services
	// =========================================================================

	trail := audit.New(st.audit,
		audit.WithLogger(log),
		audit.WithMetrics(audit.NewMetrics(m.Registry)),
	)

	verifier := identity.NewRegistry(identityProvider(cfg.Identity, log), cfg.Identity.ResponseWindow,
		identity.WithTimeout(cfg.Identity.VerifyTimeout),
		identity.WithLogger(log),
		identity.WithMetrics(identity.NewMetrics(m.Registry)),
	)

	appender := ledger.NewAppender(
		ledger.WithMaxAttempts(cfg.Ledger.MaxAttempts),
		ledger.WithTimeout(cfg.Ledger.Timeout),
		ledger.WithBackoff(cfg.Ledger.Backoff),
		ledger.WithLogger(log),
		ledger.WithMetrics(ledger.NewMetrics(m.Registry)),
	)

	issueOn := make([]agreement.Status, 0, len(cfg.Agreement.IssueOn))
	for _, s := range cfg.Agreement.IssueOn {
		issueOn = append(issueOn, agreement.Status(s))
	}
	agreements := agreement.New(st.agreements, verifier, trail,
		agreement.WithLogger(log),
		agreement.WithMetrics(agreement.NewMetrics(m.Registry)),
		agreement.WithAppender(appender),
		agreement.WithCodeLookup(st.verifications),
		agreement.WithIssuanceOn(issueOn...),
		agreement.WithVerifyLease(cfg.Agreement.VerifyLease),
	)

	registry := verification.New(st.verifications, st.chains,
		verification.WithLogger(log),
		verification.WithMetrics(verification.NewMetrics(m.Registry)),
		verification.WithAuditor(trail),
	)

	// =========================================================================
	// Transport
	// =========================================================================

	limiter, closeLimiter, err := rateLimiter(ctx, cfg, log, m, st.checks)
	if err != nil {
		return err
	}
	defer closeLimiter()

	tokens := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience)
	router := httptransport.NewRouter(httptransport.Deps{
		Logger:         log,
		Metrics:        m,
		Agreements:     agreementhandler.New(agreements, log),
		Verification:   verificationhandler.New(registry, log),
		RateLimit:      limiter,
		VerifyLimit:    cfg.RateLimit,
		Tokens:         jwttoken.NewJWTServiceAdapter(tokens),
		AdminToken:     cfg.Auth.AdminToken,
		Checks:         st.checks,
		RequestTimeout: cfg.RequestTimeout,
	})
	srv := httpserver.New(cfg.Addr, router)

	publisher, closePublisher, err := notificationPublisher(ctx, cfg.Kafka, log)
	if err != nil {
		return err
	}
	defer closePublisher()

	worker := notify.NewWorker(st.outbox, publisher,
		notify.WithBatchSize(cfg.Notify.BatchSize),
		notify.WithMaxBackoff(cfg.Notify.MaxBackoff),
		notify.WithBreaker(circuit.New("notify", circuit.WithCooldown(30*time.Second))),
		notify.WithLogger(log),
		notify.WithMetrics(notify.NewMetrics(m.Registry)),
	)

	// =========================================================================
	// Lifecycle
	// =========================================================================

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting pactline", "addr", cfg.Addr, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return worker.Run(gctx, cfg.Notify.PollInterval)
	})
	g.Go(func() error {
		return sweep(gctx, agreements, cfg.Agreement.SweepInterval, log)
	})

	err = g.Wait()
	log.Info("pactline stopped")
	return err
}

// sweep expires agreements whose deadline passed. Signing attempts also
// expire lazily, so a missed tick only delays the expiry event.
func sweep(ctx context.Context, svc *agreement.Service, interval time.Duration, log *slog.Logger) error {
	if interval <= 0 {
		return fmt.Errorf("sweep interval must be positive, got %s", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := svc.SweepExpired(ctx, time.Now())
			if err != nil {
				log.ErrorContext(ctx, "expiry sweep failed", "error", err)
				continue
			}
			if n > 0 {
				log.InfoContext(ctx, "expired agreements", "count", n)
			}
		}
	}
}

func identityProvider(cfg config.IdentityConfig, log *slog.Logger) identity.Provider {
	if cfg.ProviderURL == "" {
		log.Warn("no identity provider configured, using the in-process provider")
		return identity.NewInMemoryProvider()
	}
	return identity.NewHTTPProvider(cfg.ProviderURL, cfg.ProviderToken, cfg.ProviderTimeout)
}

func rateLimiter(ctx context.Context, cfg config.Config, log *slog.Logger, m *metrics.Metrics, checks map[string]httptransport.HealthCheck) (*ratelimitmw.Middleware, func(), error) {
	rlMetrics := ratelimitmetrics.New(m.Registry)
	opts := []ratelimitmw.LimiterOption{
		ratelimitmw.WithLimiterMetrics(rlMetrics),
		ratelimitmw.WithLimiterLogger(log),
	}

	var primary ratelimitmw.BucketStore = bucket.New()
	closeFn := func() {}
	client, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	if client != nil {
		primary = bucket.NewRedis(client.Client)
		closeFn = func() { _ = client.Close() }
		checks["redis"] = client.Health
		log.Info("rate limits shared through redis")
	}

	limiter := ratelimitmw.NewLimiter(primary, opts...)
	return ratelimitmw.New(limiter, log, ratelimitmw.WithMetrics(rlMetrics)), closeFn, nil
}

func notificationPublisher(ctx context.Context, cfg config.KafkaConfig, log *slog.Logger) (notify.Publisher, func(), error) {
	if len(cfg.Brokers) == 0 {
		log.Warn("no kafka brokers configured, notifications are logged")
		return notify.NewLogPublisher(log), func() {}, nil
	}
	kcfg := kafka.Config{
		Brokers:           cfg.Brokers,
		ClientID:          cfg.ClientID,
		Topic:             cfg.Topic,
		Partitions:        cfg.Partitions,
		ReplicationFactor: cfg.ReplicationFactor,
		Linger:            cfg.Linger,
	}
	client, err := kafka.NewClient(ctx, kcfg)
	if err != nil {
		return nil, nil, err
	}
	if err := kafka.EnsureTopic(ctx, client, kcfg); err != nil {
		client.Close()
		return nil, nil, err
	}
	return notify.NewKafkaPublisher(client, cfg.Topic), client.Close, nil
}
