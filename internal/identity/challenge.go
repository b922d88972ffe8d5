package identity

import (
	"bytes"
	"time"
)

const challengeDomain = "pactline:sign:v1"

// Challenge is the byte string a device signs to bind a platform assertion to
// one signer, one agreement and one content hash.
func Challenge(sc SignerContext, assertionRef string, assertedAt time.Time) []byte {
	var b bytes.Buffer
	for _, part := range []string{
		challengeDomain,
		sc.AgreementID.String(),
		sc.SignerID.String(),
		sc.IdentityRef.String(),
		sc.ContentHash,
		assertionRef,
		assertedAt.UTC().Format(time.RFC3339Nano),
	} {
		b.WriteString(part)
		b.WriteByte('\n')
	}
	return b.Bytes()
}
