package testutil

import (
	"net/http"

	id "pactline/pkg/domain"
	"pactline/pkg/requestcontext"
)

// WithCaller binds an identity to the request context.
// This simulates what the auth middleware would do for authenticated requests.
// Invalid references are silently ignored.
func WithCaller(req *http.Request, ref string) *http.Request {
	if parsed, err := id.ParseIdentityRef(ref); err == nil {
		return req.WithContext(requestcontext.WithCaller(req.Context(), parsed))
	}
	return req
}

// WithAdmin marks the request as carrying a valid admin token.
func WithAdmin(req *http.Request) *http.Request {
	ctx := requestcontext.WithAdmin(req.Context(), true)
	return req.WithContext(requestcontext.WithCaller(ctx, "admin:token"))
}

// WithClient attaches client metadata as the metadata middleware would.
func WithClient(req *http.Request, ip, userAgent string) *http.Request {
	return req.WithContext(requestcontext.WithClientMetadata(req.Context(), ip, userAgent))
}
