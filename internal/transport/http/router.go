// Package httptransport assembles the HTTP surface: shared middleware, the
// public verification lookup, the authenticated agreement API and the
// operator endpoints.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	agreementhandler "pactline/internal/agreement/handler"
	"pactline/internal/platform/config"
	"pactline/internal/platform/metrics"
	ratelimitmw "pactline/internal/ratelimit/middleware"
	verificationhandler "pactline/internal/verification/handler"
	"pactline/pkg/platform/httputil"
	"pactline/pkg/platform/middleware/admin"
	authmw "pactline/pkg/platform/middleware/auth"
	"pactline/pkg/platform/middleware/device"
	"pactline/pkg/platform/middleware/metadata"
	request "pactline/pkg/platform/middleware/request"
	"pactline/pkg/platform/middleware/requesttime"
)

const defaultRequestTimeout = 30 * time.Second

// HealthCheck reports whether a dependency can serve traffic.
type HealthCheck func(ctx context.Context) error

// Deps is everything the router mounts.
type Deps struct {
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	Agreements     *agreementhandler.Handler
	Verification   *verificationhandler.Handler
	RateLimit      *ratelimitmw.Middleware
	VerifyLimit    config.RateLimitConfig
	Tokens         authmw.JWTValidator
	AdminToken     string
	RequestTimeout time.Duration
	Checks         map[string]HealthCheck
}

func NewRouter(d Deps) http.Handler {
	timeout := d.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	r := chi.NewRouter()
	r.Use(request.Recovery(d.Logger))
	r.Use(request.RequestID)
	r.Use(request.Logger(d.Logger))
	r.Use(d.Metrics.Instrument)
	r.Use(metadata.ClientMetadata)
	r.Use(device.Fingerprint)
	r.Use(requesttime.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readiness(d.Checks))
	r.Handle("/metrics", d.Metrics.Handler())

	// Verification lookups are anonymous, so they are rate limited per
	// client address instead of per caller.
	r.Group(func(r chi.Router) {
		r.Use(request.Timeout(timeout))
		r.Use(d.RateLimit.PerIP("verify", d.VerifyLimit.VerifyPerWindow, d.VerifyLimit.Window))
		d.Verification.RegisterPublic(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(request.Timeout(timeout))
		r.Use(request.ContentTypeJSON)
		r.Use(authmw.RequireAuth(d.Tokens, d.Logger))
		d.Agreements.Register(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(request.Timeout(timeout))
		r.Use(request.ContentTypeJSON)
		r.Use(admin.RequireAdminToken(d.AdminToken, d.Logger))
		d.Agreements.RegisterAdmin(r)
		d.Verification.RegisterAdmin(r)
	})

	return r
}

func readiness(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		report := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				report[name] = "unavailable"
				status = http.StatusServiceUnavailable
				continue
			}
			report[name] = "ok"
		}
		httputil.WriteJSON(w, status, report)
	}
}
