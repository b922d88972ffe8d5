package admin

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	dErrors "pactline/pkg/domain-errors"
	"pactline/pkg/platform/httputil"
	request "pactline/pkg/platform/middleware/request"
	"pactline/pkg/requestcontext"
)

const HeaderAdminToken = "X-Admin-Token"

// RequireAdminToken admits requests carrying the operator token and marks the
// context as administrative. An empty expected token disables the routes.
func RequireAdminToken(expectedToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(HeaderAdminToken)
			if expectedToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
				ctx := r.Context()
				logger.WarnContext(ctx, "admin token mismatch",
					"request_id", request.GetRequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "admin token required"))
				return
			}

			ctx := requestcontext.WithAdmin(r.Context(), true)
			if requestcontext.Caller(ctx).IsZero() {
				ctx = requestcontext.WithCaller(ctx, "admin:token")
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
