package idempotency

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kalamitra/api/internal/platform/auth"
	"github.com/kalamitra/api/internal/platform/httpx"
	"github.com/kalamitra/api/internal/platform/requestctx"
)

const (
	defaultHeaderName = "Idempotency-Key"
	// ReplayHeader marks responses served from a stored entry.
	ReplayHeader = "X-Idempotent-Replay"
	maxKeyLength = 255
)

type config struct {
	header string
	ttl    time.Duration
}

// Option customises the middleware.
type Option func(*config)

// WithHeader overrides the request header carrying the key.
func WithHeader(name string) Option {
	return func(c *config) {
		if name = strings.TrimSpace(name); name != "" {
			c.header = name
		}
	}
}

// WithTTL sets how long a completed response is replayed.
func WithTTL(ttl time.Duration) Option {
	return func(c *config) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// Middleware replays the first successful response for a repeated key. Requests without the header pass
// straight through. Keys are scoped to the authenticated caller, so it must run after authentication.
func Middleware(store Store, opts ...Option) func(http.Handler) http.Handler {
	cfg := config{header: defaultHeaderName, ttl: DefaultTTL}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key := strings.TrimSpace(r.Header.Get(cfg.header))
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > maxKeyLength {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_idempotency_key", "idempotency key is too long", http.StatusBadRequest))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read request body", http.StatusBadRequest))
				return
			}
			_ = r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))

			caller := requester(r)
			storeKey := hashHex(caller, key)
			fingerprint := hashHex(r.Method, r.URL.Path, r.URL.RawQuery, caller, string(body))
			logger := requestctx.Logger(ctx).With(zap.String("idempotencyKey", key))

			existing, claimed, err := store.Claim(ctx, storeKey, fingerprint, cfg.ttl)
			if err != nil {
				logger.Warn("idempotency claim failed", zap.Error(err))
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_unavailable", "unable to process idempotency key", http.StatusServiceUnavailable))
				return
			}
			if !claimed {
				switch {
				case existing.Fingerprint != fingerprint:
					requestctx.Annotate(ctx, "idempotency", "conflict")
					httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_conflict", ErrKeyReused.Error(), http.StatusUnprocessableEntity))
				case !existing.Done:
					requestctx.Annotate(ctx, "idempotency", "in_progress")
					httpx.WriteError(ctx, w, httpx.NewError("idempotency_in_progress", "a request with this idempotency key is still running", http.StatusConflict))
				default:
					requestctx.Annotate(ctx, "idempotency", "replayed")
					replay(w, existing)
				}
				return
			}

			rec := &recorder{header: make(http.Header)}
			next.ServeHTTP(rec, r)

			// Only successes are kept; a failed checkout may be retried with the same key.
			if rec.statusCode() < http.StatusBadRequest {
				entry := Entry{
					Fingerprint: fingerprint,
					Done:        true,
					Status:      rec.statusCode(),
					Header:      replayableHeader(rec.header),
					Body:        rec.body.Bytes(),
				}
				if err := store.Complete(ctx, storeKey, entry, cfg.ttl); err != nil {
					logger.Warn("idempotency complete failed", zap.Error(err))
				}
			} else if err := store.Forget(ctx, storeKey); err != nil {
				logger.Warn("idempotency release failed", zap.Error(err))
			}
			rec.flush(w)
		})
	}
}

func requester(r *http.Request) string {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok && strings.TrimSpace(identity.UID) != "" {
		return identity.UID
	}
	return "anonymous"
}

func replay(w http.ResponseWriter, entry Entry) {
	for name, values := range entry.Header {
		w.Header()[name] = append([]string(nil), values...)
	}
	w.Header().Set(ReplayHeader, "true")
	status := entry.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(entry.Body)
}

type recorder struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (r *recorder) Header() http.Header { return r.header }

func (r *recorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
}

func (r *recorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.body.Write(p)
}

func (r *recorder) statusCode() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

func (r *recorder) flush(w http.ResponseWriter) {
	for name, values := range r.header {
		w.Header()[name] = values
	}
	w.WriteHeader(r.statusCode())
	_, _ = w.Write(r.body.Bytes())
}
