package identity

import (
	"context"
	"errors"
	"log/slog"
	"time"

	id "pactline/pkg/domain"
	dErrors "pactline/pkg/domain-errors"
)

//go:generate mockgen -source=verifier.go -destination=mocks/identity-mocks.go -package=mocks Verifier,Provider

// Verifier checks one signing attempt for one method.
type Verifier interface {
	Verify(ctx context.Context, sc SignerContext, proof Proof) (Outcome, error)
}

// Provider resolves identity references against the external identity
// provider.
type Provider interface {
	Resolve(ctx context.Context, ref id.IdentityRef) (*Identity, error)
}

const defaultVerifyTimeout = 30 * time.Second

// Registry dispatches a signing attempt to the verifier registered for the
// signer's method. It never retries: a failed check is reported to the caller,
// who decides whether to try again or fall back to another method.
type Registry struct {
	verifiers map[Method]Verifier
	timeout   time.Duration
	logger    *slog.Logger
	metrics   *Metrics
	now       func() time.Time
}

type Option func(*Registry)

func WithTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// WithVerifier registers or replaces the verifier for a method.
func WithVerifier(m Method, v Verifier) Option {
	return func(r *Registry) {
		r.verifiers[m] = v
	}
}

// NewRegistry wires the three built-in verifiers against provider.
// responseWindow bounds how old a device assertion may be.
func NewRegistry(provider Provider, responseWindow time.Duration, opts ...Option) *Registry {
	r := &Registry{
		verifiers: map[Method]Verifier{
			MethodBiometric: NewDeviceVerifier(MethodBiometric, provider, responseWindow),
			MethodPasscode:  NewDeviceVerifier(MethodPasscode, provider, responseWindow),
			MethodPassword:  NewPasswordVerifier(provider),
		},
		timeout: defaultVerifyTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Verify runs the method-specific verifier under the configured deadline.
func (r *Registry) Verify(ctx context.Context, sc SignerContext, proof Proof) (Outcome, error) {
	v, ok := r.verifiers[sc.Method]
	if !ok {
		return Outcome{}, dErrors.New(dErrors.CodeMethodUnavailable, "verification method not available: "+sc.Method.String())
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := r.now()
	outcome, err := v.Verify(ctx, sc, proof)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		err = translateContextError(err)
		r.metrics.observe(sc.Method, string(dErrors.CodeOf(err)), time.Since(start))
		if r.logger != nil {
			r.logger.InfoContext(ctx, "identity verification rejected",
				"agreement_id", sc.AgreementID,
				"signer_id", sc.SignerID,
				"method", sc.Method,
				"reason", dErrors.CodeOf(err),
			)
		}
		return Outcome{}, err
	}
	if !outcome.OK {
		r.metrics.observe(sc.Method, string(dErrors.CodeVerificationFailed), time.Since(start))
		return Outcome{}, dErrors.New(dErrors.CodeVerificationFailed, "proof rejected")
	}

	outcome.Method = sc.Method
	if outcome.VerifiedAt.IsZero() {
		outcome.VerifiedAt = r.now().UTC()
	}
	r.metrics.observe(sc.Method, "ok", time.Since(start))
	return outcome, nil
}

func translateContextError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeVerificationTimeout, "signer did not respond within the verification window")
	case errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeVerificationTimeout, "verification cancelled")
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "identity verification failed")
}
