// Package e2e runs the Gherkin scenarios under features/ against an
// in-process pactline deployment on the memory store.
package e2e

import (
	"log/slog"
	"net/http/httptest"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"pactline/internal/agreement"
	agreementhandler "pactline/internal/agreement/handler"
	"pactline/internal/audit"
	"pactline/internal/identity"
	jwttoken "pactline/internal/jwt_token"
	"pactline/internal/ledger"
	"pactline/internal/platform/config"
	"pactline/internal/platform/metrics"
	ratelimitmw "pactline/internal/ratelimit/middleware"
	"pactline/internal/ratelimit/store/bucket"
	"pactline/internal/store/memory"
	httptransport "pactline/internal/transport/http"
	"pactline/internal/verification"
	verificationhandler "pactline/internal/verification/handler"
)

const (
	AdminToken = "e2e-operator-token"
	signingKey = "e2e-signing-key-not-for-production"
)

// Clock is a settable time source shared by every service in a Stack.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Stack is one isolated deployment. Each scenario gets a fresh one.
type Stack struct {
	Server   *httptest.Server
	Provider *identity.InMemoryProvider
	Tokens   *jwttoken.JWTService
	Clock    *Clock
	DB       *memory.DB
}

func NewStack() *Stack {
	logger := slog.New(slog.DiscardHandler)
	clock := &Clock{now: time.Now().UTC()}
	db := memory.New()
	provider := identity.NewInMemoryProvider().WithBcryptCost(bcrypt.MinCost)

	trail := audit.New(db.Audit(), audit.WithLogger(logger))
	svc := agreement.New(db.Agreements(), identity.NewRegistry(provider, 2*time.Minute), trail,
		agreement.WithLogger(logger),
		agreement.WithAppender(ledger.NewAppender(ledger.WithLogger(logger))),
		agreement.WithCodeLookup(db.Verifications()),
		agreement.WithClock(clock.Now),
	)
	registry := verification.New(db.Verifications(), db.Chains(),
		verification.WithLogger(logger),
		verification.WithAuditor(trail),
	)
	tokens := jwttoken.NewJWTService(signingKey, "pactline", "pactline-api")

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:       logger,
		Metrics:      metrics.New(),
		Agreements:   agreementhandler.New(svc, logger, agreementhandler.WithClock(clock.Now)),
		Verification: verificationhandler.New(registry, logger),
		RateLimit:    ratelimitmw.New(ratelimitmw.NewLimiter(bucket.New()), logger),
		VerifyLimit:  config.RateLimitConfig{VerifyPerWindow: 1000, Window: time.Minute},
		Tokens:       jwttoken.NewJWTServiceAdapter(tokens),
		AdminToken:   AdminToken,
	})

	return &Stack{
		Server:   httptest.NewServer(router),
		Provider: provider,
		Tokens:   tokens,
		Clock:    clock,
		DB:       db,
	}
}

func (s *Stack) Close() {
	s.Server.Close()
}
