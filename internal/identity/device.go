package identity

import (
	"context"
	"crypto/ed25519"
	"errors"
	"time"

	dErrors "pactline/pkg/domain-errors"
	"pactline/pkg/platform/sentinel"
)

// DeviceVerifier checks biometric and passcode confirmations. The platform
// authenticator runs on the signer's device; the engine only sees an
// assertion reference and the device's signature over the signing challenge.
type DeviceVerifier struct {
	method         Method
	provider       Provider
	responseWindow time.Duration
	now            func() time.Time
}

func NewDeviceVerifier(method Method, provider Provider, responseWindow time.Duration) *DeviceVerifier {
	return &DeviceVerifier{
		method:         method,
		provider:       provider,
		responseWindow: responseWindow,
		now:            time.Now,
	}
}

func (v *DeviceVerifier) Verify(ctx context.Context, sc SignerContext, proof Proof) (Outcome, error) {
	if proof.DeviceID == "" || proof.AssertionRef == "" || len(proof.Signature) == 0 {
		return Outcome{}, dErrors.New(dErrors.CodeVerificationFailed, "device assertion is incomplete")
	}
	if proof.AssertedAt.IsZero() {
		return Outcome{}, dErrors.New(dErrors.CodeVerificationFailed, "device assertion has no timestamp")
	}

	ident, err := resolve(ctx, v.provider, sc)
	if err != nil {
		return Outcome{}, err
	}

	device, ok := ident.Device(proof.DeviceID)
	if !ok {
		return Outcome{}, dErrors.New(dErrors.CodeMethodUnavailable, "device is not registered for this signer")
	}
	if !device.Supports(v.method) {
		return Outcome{}, dErrors.New(dErrors.CodeMethodUnavailable, "device does not support "+v.method.String())
	}

	now := v.now()
	if v.responseWindow > 0 && now.Sub(proof.AssertedAt) > v.responseWindow {
		return Outcome{}, dErrors.New(dErrors.CodeVerificationTimeout, "device assertion is outside the response window")
	}
	if proof.AssertedAt.After(now.Add(time.Minute)) {
		return Outcome{}, dErrors.New(dErrors.CodeVerificationFailed, "device assertion is dated in the future")
	}

	msg := Challenge(sc, proof.AssertionRef, proof.AssertedAt)
	if len(device.PublicKey) != ed25519.PublicKeySize || !ed25519.Verify(device.PublicKey, msg, proof.Signature) {
		return Outcome{}, dErrors.New(dErrors.CodeVerificationFailed, "device signature does not match")
	}

	return Outcome{
		OK:           true,
		Method:       v.method,
		AssertionRef: proof.AssertionRef,
		Confidence:   confidenceFor(v.method),
		DeviceID:     device.ID,
		VerifiedAt:   now.UTC(),
	}, nil
}

func confidenceFor(m Method) Confidence {
	switch m {
	case MethodBiometric:
		return ConfidenceHigh
	case MethodPasscode:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

func resolve(ctx context.Context, provider Provider, sc SignerContext) (*Identity, error) {
	ident, err := provider.Resolve(ctx, sc.IdentityRef)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeVerificationFailed, "identity is not known to the provider")
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		// Every method resolves through the same provider, so an outage is
		// retryable rather than a reason to fall back to another method.
		return nil, dErrors.Wrap(err, dErrors.CodeIdentityUnavailable, "identity provider unavailable")
	}
	return ident, nil
}
