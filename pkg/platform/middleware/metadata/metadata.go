package metadata

import (
	"net/http"
	"strings"

	"pactline/pkg/requestcontext"
)

// Headers a trusted edge proxy may set with the client's coarse location.
const (
	HeaderGeolocation = "X-Client-Geo"
	headerCFCountry   = "CF-IPCountry"
)

// ClientMetadata extracts client IP address, User-Agent and coarse location
// from the request and adds them to the context for use by handlers and
// services. This middleware should be applied early in the chain.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithClientMetadata(r.Context(), ClientIPFromRequest(r), r.Header.Get("User-Agent"))
		if geo := geolocation(r); geo != "" {
			ctx = requestcontext.WithGeolocation(ctx, geo)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func geolocation(r *http.Request) string {
	if geo := strings.TrimSpace(r.Header.Get(HeaderGeolocation)); geo != "" {
		return geo
	}
	return strings.TrimSpace(r.Header.Get(headerCFCountry))
}

// ClientIPFromRequest extracts the real client IP from the request, handling proxies and load balancers.
func ClientIPFromRequest(r *http.Request) string {
	// X-Forwarded-For can contain multiple IPs (client, proxy1, proxy2, ...);
	// the first is the original client.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// RemoteAddr is "ip:port", or "[::1]:port" for IPv6.
	if addr := r.RemoteAddr; addr != "" {
		if idx := strings.LastIndex(addr, ":"); idx != -1 {
			return strings.Trim(addr[:idx], "[]")
		}
		return addr
	}

	return "unknown"
}
