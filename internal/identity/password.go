package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	dErrors "pactline/pkg/domain-errors"
)

// PasswordVerifier is the fallback confirmation for signers without a
// capable device.
type PasswordVerifier struct {
	provider Provider
	now      func() time.Time
}

func NewPasswordVerifier(provider Provider) *PasswordVerifier {
	return &PasswordVerifier{provider: provider, now: time.Now}
}

func (v *PasswordVerifier) Verify(ctx context.Context, sc SignerContext, proof Proof) (Outcome, error) {
	if proof.Password == "" {
		return Outcome{}, dErrors.New(dErrors.CodeVerificationFailed, "password is required")
	}
	ident, err := resolve(ctx, v.provider, sc)
	if err != nil {
		return Outcome{}, err
	}
	if len(ident.PasswordHash) == 0 {
		return Outcome{}, dErrors.New(dErrors.CodeMethodUnavailable, "no password is set for this identity")
	}
	if err := bcrypt.CompareHashAndPassword(ident.PasswordHash, []byte(proof.Password)); err != nil {
		return Outcome{}, dErrors.New(dErrors.CodeVerificationFailed, "password does not match")
	}
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	return Outcome{
		OK:           true,
		Method:       MethodPassword,
		AssertionRef: passwordAssertionRef(sc),
		Confidence:   ConfidenceLow,
		VerifiedAt:   v.now().UTC(),
	}, nil
}

// passwordAssertionRef names a password confirmation. It is random so that two
// confirmations by the same signer never share a reference, and prefixed with a
// digest of the signer context so the reference reads back to its attempt.
func passwordAssertionRef(sc SignerContext) string {
	sum := sha256.Sum256([]byte(sc.AgreementID.String() + "|" + sc.SignerID.String() + "|" + sc.ContentHash))
	return "pwd:" + hex.EncodeToString(sum[:6]) + ":" + uuid.NewString()
}
