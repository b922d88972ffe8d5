// Package device carries the client-reported device fingerprint into the
// request context. Fingerprints from the identity check itself take
// precedence when a ledger event is recorded.
package device

import (
	"net/http"
	"strings"

	"pactline/pkg/requestcontext"
)

const HeaderFingerprint = "X-Device-Fingerprint"

const maxFingerprintLength = 128

func Fingerprint(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fp := strings.TrimSpace(r.Header.Get(HeaderFingerprint))
		if fp == "" || len(fp) > maxFingerprintLength {
			next.ServeHTTP(w, r)
			return
		}
		ctx := requestcontext.WithDeviceFingerprint(r.Context(), "client:"+fp)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
