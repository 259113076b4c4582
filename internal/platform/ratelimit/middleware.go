package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kalamitra/api/internal/platform/auth"
	"github.com/kalamitra/api/internal/platform/httpx"
	"github.com/kalamitra/api/internal/platform/requestctx"
)

// Middleware enforces limit requests per minute per client. Authenticated callers are keyed by uid, so mount it
// after the auth middleware on protected routes; everyone else is keyed by remote address.
// Limiter failures are logged and the request is let through.
func Middleware(limiter Limiter, limit int, clock func() time.Time) func(http.Handler) http.Handler {
	if clock == nil {
		clock = time.Now
	}
	return func(next http.Handler) http.Handler {
		if limiter == nil || limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key := ClientKey(r)
			requestctx.Annotate(ctx, "client_key", key)

			decision, err := limiter.Allow(ctx, key, limit)
			if err != nil {
				requestctx.Logger(ctx).Warn("rate limiter unavailable", zap.Error(err))
				next.ServeHTTP(w, r.WithContext(requestctx.WithClientKey(ctx, key)))
				return
			}

			header := w.Header()
			header.Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			header.Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			header.Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
			if !decision.Allowed {
				requestctx.Annotate(ctx, "rate_limited", "true")
				retry := int(decision.ResetAt.Sub(clock()).Round(time.Second).Seconds())
				header.Set("Retry-After", strconv.Itoa(max(retry, 1)))
				httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many requests", http.StatusTooManyRequests))
				return
			}
			next.ServeHTTP(w, r.WithContext(requestctx.WithClientKey(ctx, key)))
		})
	}
}

// ClientKey identifies the caller for throttling.
func ClientKey(r *http.Request) string {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok && identity.UID != "" {
		return "uid:" + identity.UID
	}
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	return "ip:" + addr
}
