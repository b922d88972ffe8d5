package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"pactline/internal/agreement"
	"pactline/internal/identity"
	"pactline/internal/ledger"
	id "pactline/pkg/domain"
	dErrors "pactline/pkg/domain-errors"
	"pactline/pkg/platform/httputil"
	"pactline/pkg/requestcontext"
)

// Service defines the agreement operations exposed over HTTP.
type Service interface {
	CreateAgreement(ctx context.Context, req agreement.CreateRequest) (*agreement.Agreement, error)
	CreateDraft(ctx context.Context, req agreement.CreateRequest) (*agreement.Agreement, error)
	AttachSigners(ctx context.Context, agreementID id.AgreementID, specs []agreement.SignerSpec) ([]agreement.Signer, error)
	Dispatch(ctx context.Context, agreementID id.AgreementID) (*agreement.Agreement, error)
	RequestSignature(ctx context.Context, agreementID id.AgreementID, signerID id.SignerID, proof identity.Proof) (*ledger.Event, error)
	Decline(ctx context.Context, agreementID id.AgreementID, signerID id.SignerID, reason string) error
	GetStatus(ctx context.Context, agreementID id.AgreementID) (*agreement.StatusView, error)
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

// Handler wires agreement endpoints to the agreement service.
type Handler struct {
	service Service
	logger  *slog.Logger
	now     func() time.Time
}

type Option func(*Handler)

// WithClock sets the time the expiry sweep endpoint judges against.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		h.now = now
	}
}

// New constructs an agreement handler with its dependencies.
func New(service Service, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		service: service,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the authenticated agreement endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/agreements", h.HandleCreate)
	r.Post("/v1/agreements/drafts", h.HandleCreateDraft)
	r.Get("/v1/agreements/{id}", h.HandleGetStatus)
	r.Post("/v1/agreements/{id}/signers", h.HandleAttachSigners)
	r.Post("/v1/agreements/{id}/dispatch", h.HandleDispatch)
	r.Post("/v1/agreements/{id}/signers/{signerID}/sign", h.HandleSign)
	r.Post("/v1/agreements/{id}/signers/{signerID}/decline", h.HandleDecline)
}

// RegisterAdmin mounts the administrative endpoints. The router is expected
// to carry the admin token middleware.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/v1/admin/sweep", h.HandleSweep)
}

// HandleCreate handles POST /v1/agreements: create and dispatch in one step.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, h.service.CreateAgreement)
}

// HandleCreateDraft handles POST /v1/agreements/drafts.
func (h *Handler) HandleCreateDraft(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, h.service.CreateDraft)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request, fn func(context.Context, agreement.CreateRequest) (*agreement.Agreement, error)) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CreateAgreementRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	a, err := fn(ctx, req.ToDomain())
	if err != nil {
		h.logFailure(ctx, "failed to create agreement", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}

	view, err := h.service.GetStatus(ctx, a.ID)
	if err != nil {
		h.logFailure(ctx, "failed to load created agreement", err, "request_id", requestID, "agreement_id", a.ID)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "agreement created",
		"request_id", requestID,
		"agreement_id", a.ID,
		"status", a.Status,
	)
	httputil.WriteJSON(w, http.StatusCreated, FromStatusView(view))
}

// HandleGetStatus handles GET /v1/agreements/{id}.
func (h *Handler) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	agreementID, ok := h.agreementID(w, r)
	if !ok {
		return
	}

	view, err := h.service.GetStatus(ctx, agreementID)
	if err != nil {
		h.logFailure(ctx, "failed to load agreement", err, "request_id", requestcontext.RequestID(ctx), "agreement_id", agreementID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromStatusView(view))
}

// HandleAttachSigners handles POST /v1/agreements/{id}/signers.
func (h *Handler) HandleAttachSigners(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	agreementID, ok := h.agreementID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[AttachSignersRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	signers, err := h.service.AttachSigners(ctx, agreementID, req.Specs())
	if err != nil {
		h.logFailure(ctx, "failed to attach signers", err, "request_id", requestID, "agreement_id", agreementID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"signers": FromSigners(signers)})
}

// HandleDispatch handles POST /v1/agreements/{id}/dispatch.
func (h *Handler) HandleDispatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	agreementID, ok := h.agreementID(w, r)
	if !ok {
		return
	}

	a, err := h.service.Dispatch(ctx, agreementID)
	if err != nil {
		h.logFailure(ctx, "failed to dispatch agreement", err, "request_id", requestID, "agreement_id", agreementID)
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "agreement dispatched", "request_id", requestID, "agreement_id", a.ID)
	httputil.WriteJSON(w, http.StatusOK, FromAgreement(a))
}

// HandleSign handles POST /v1/agreements/{id}/signers/{signerID}/sign.
func (h *Handler) HandleSign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	agreementID, signerID, ok := h.signerPath(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[SignRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	event, err := h.service.RequestSignature(ctx, agreementID, signerID, req.Proof())
	if err != nil {
		h.logFailure(ctx, "signing attempt rejected", err,
			"request_id", requestID,
			"agreement_id", agreementID,
			"signer_id", signerID,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, SignResponse{Event: *event})
}

// HandleDecline handles POST /v1/agreements/{id}/signers/{signerID}/decline.
func (h *Handler) HandleDecline(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	agreementID, signerID, ok := h.signerPath(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[DeclineRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if err := h.service.Decline(ctx, agreementID, signerID, req.Reason); err != nil {
		h.logFailure(ctx, "decline rejected", err,
			"request_id", requestID,
			"agreement_id", agreementID,
			"signer_id", signerID,
		)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSweep handles POST /v1/admin/sweep.
func (h *Handler) HandleSweep(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	n, err := h.service.SweepExpired(ctx, h.now().UTC())
	if err != nil {
		h.logFailure(ctx, "expiry sweep failed", err, "request_id", requestcontext.RequestID(ctx))
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, SweepResponse{Expired: n})
}

func (h *Handler) agreementID(w http.ResponseWriter, r *http.Request) (id.AgreementID, bool) {
	agreementID, err := id.ParseAgreementID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "agreement not found"))
		return id.AgreementID{}, false
	}
	return agreementID, true
}

func (h *Handler) signerPath(w http.ResponseWriter, r *http.Request) (id.AgreementID, id.SignerID, bool) {
	agreementID, ok := h.agreementID(w, r)
	if !ok {
		return id.AgreementID{}, id.SignerID{}, false
	}
	signerID, err := id.ParseSignerID(chi.URLParam(r, "signerID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "signer not found"))
		return id.AgreementID{}, id.SignerID{}, false
	}
	return agreementID, signerID, true
}

// logFailure logs client errors at warn and everything else at error.
func (h *Handler) logFailure(ctx context.Context, msg string, err error, args ...any) {
	args = append(args, "error", err)
	if httputil.StatusFor(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, args...)
		return
	}
	h.logger.WarnContext(ctx, msg, args...)
}
