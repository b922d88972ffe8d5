package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"pactline/internal/verification"
	dErrors "pactline/pkg/domain-errors"
	"pactline/pkg/platform/httputil"
	"pactline/pkg/requestcontext"
)

// Registry defines the verification operations exposed over HTTP.
type Registry interface {
	Resolve(ctx context.Context, code string) (*verification.Result, error)
	Revoke(ctx context.Context, code, reason string) error
}

// Handler serves public code resolution and administrative revocation.
type Handler struct {
	registry Registry
	logger   *slog.Logger
}

func New(registry Registry, logger *slog.Logger) *Handler {
	return &Handler{registry: registry, logger: logger}
}

// RegisterPublic mounts the unauthenticated lookup. Callers wrap the router
// with rate limiting.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Get("/v1/verify/{code}", h.HandleResolve)
}

// RegisterAdmin mounts revocation behind the admin token middleware.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/v1/admin/verifications/{code}/revoke", h.HandleRevoke)
}

// RevokeRequest is the body of the revocation endpoint.
type RevokeRequest struct {
	Reason string `json:"reason"`
}

func (r *RevokeRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Reason = strings.TrimSpace(r.Reason)
	if r.Reason == "" {
		return dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	if len(r.Reason) > 500 {
		return dErrors.New(dErrors.CodeValidation, "reason is too long")
	}
	return nil
}

// HandleResolve handles GET /v1/verify/{code}. A tampered chain is reported
// in the body with status 200; only unknown and revoked codes are errors.
func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	result, err := h.registry.Resolve(ctx, chi.URLParam(r, "code"))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeCodeNotFound) || dErrors.HasCode(err, dErrors.CodeCodeRevoked) {
			h.logger.InfoContext(ctx, "verification lookup refused",
				"request_id", requestID,
				"reason", dErrors.CodeOf(err),
			)
		} else {
			h.logger.ErrorContext(ctx, "verification lookup failed",
				"request_id", requestID,
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleRevoke handles POST /v1/admin/verifications/{code}/revoke.
func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[RevokeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if err := h.registry.Revoke(ctx, chi.URLParam(r, "code"), req.Reason); err != nil {
		h.logger.WarnContext(ctx, "revocation failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "verification code revoked", "request_id", requestID)
	w.WriteHeader(http.StatusNoContent)
}
