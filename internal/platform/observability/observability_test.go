package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kalamitra/api/internal/platform/requestctx"
)

func TestParseCloudTrace(t *testing.T) {
	sc, ok := parseCloudTrace("105445aa7843bc8bf206b12000100000/1;o=1")
	if !ok {
		t.Fatalf("expected header to parse")
	}
	if sc.TraceID().String() != "105445aa7843bc8bf206b12000100000" {
		t.Fatalf("unexpected trace id %s", sc.TraceID())
	}
	if sc.SpanID().String() != "0000000000000001" {
		t.Fatalf("expected decimal span id, got %s", sc.SpanID())
	}
	if !sc.IsSampled() || !sc.IsRemote() {
		t.Fatalf("expected sampled remote span context")
	}
	if got := formatCloudTrace(sc); got != "105445aa7843bc8bf206b12000100000/1;o=1" {
		t.Fatalf("expected header to round trip, got %s", got)
	}

	for _, header := range []string{"", "abc", "short/1", "105445aa7843bc8bf206b12000100000/zz", "105445aa7843bc8bf206b12000100000/0"} {
		if _, ok := parseCloudTrace(header); ok {
			t.Fatalf("expected %q to be rejected", header)
		}
	}
}

func TestSpanNameFromRequestTruncatesIdentifiers(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/listings/abc123/images/img1", nil)
	if got := spanNameFromRequest(req); got != "GET /api/listings" {
		t.Fatalf("unexpected span name %s", got)
	}
}

func TestTraceMiddlewareStoresTrace(t *testing.T) {
	var captured requestctx.TraceInfo
	handler := TraceMiddleware("kalamitra-dev")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = requestctx.Trace(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(cloudTraceHeader, "105445aa7843bc8bf206b12000100000/1;o=1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if captured.ProjectID != "kalamitra-dev" {
		t.Fatalf("expected project id on trace, got %q", captured.ProjectID)
	}
	if captured.TraceID != "105445aa7843bc8bf206b12000100000" {
		t.Fatalf("expected caller trace id to be kept, got %q", captured.TraceID)
	}
	if rec.Header().Get(cloudTraceHeader) == "" {
		t.Fatalf("expected trace header on response")
	}
}

func TestTraceMiddlewarePrefersTraceparent(t *testing.T) {
	var captured requestctx.TraceInfo
	handler := TraceMiddleware("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = requestctx.Trace(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/listings", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	req.Header.Set(cloudTraceHeader, "105445aa7843bc8bf206b12000100000/1;o=1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if captured.TraceID != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Fatalf("expected traceparent trace id, got %q", captured.TraceID)
	}
	if !captured.Sampled {
		t.Fatalf("expected sampled flag from traceparent")
	}
	if rec.Header().Get("traceparent") == "" {
		t.Fatalf("expected traceparent on response")
	}
}

func TestTraceMiddlewareWithoutCallerTrace(t *testing.T) {
	var captured requestctx.TraceInfo
	handler := TraceMiddleware("kalamitra-dev")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = requestctx.Trace(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if captured.ProjectID != "kalamitra-dev" {
		t.Fatalf("expected project id, got %q", captured.ProjectID)
	}
	if rec.Header().Get(cloudTraceHeader) != "" {
		t.Fatalf("expected no trace header without a valid span")
	}
}

func TestRecoveryMiddlewareWritesJSON(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	handler := RecoveryMiddleware(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/listings", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if logs.FilterMessage("panic recovered").Len() != 1 {
		t.Fatalf("expected panic to be logged")
	}
}

func TestRecoveryMiddlewareRethrowsAbort(t *testing.T) {
	handler := RecoveryMiddleware(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	defer func() {
		if rec := recover(); rec != http.ErrAbortHandler {
			t.Fatalf("expected ErrAbortHandler to propagate, got %v", rec)
		}
	}()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}

func TestEventLoggerPrefersRequestLogger(t *testing.T) {
	baseCore, baseLogs := observer.New(zap.InfoLevel)
	reqCore, reqLogs := observer.New(zap.InfoLevel)

	log := EventLogger(zap.New(baseCore), "listings")
	log(context.Background(), "listing.created", map[string]any{"listing_id": "L1"})

	ctx := requestctx.WithLogger(context.Background(), zap.New(reqCore))
	log(ctx, "listing.delete.failed", map[string]any{"listing_id": "L2"})

	if baseLogs.Len() != 1 || baseLogs.All()[0].Message != "listing.created" {
		t.Fatalf("expected base logger entry, got %v", baseLogs.All())
	}
	entries := reqLogs.All()
	if len(entries) != 1 || entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected one warn entry on request logger, got %v", entries)
	}
}

func TestRequestLoggerReportsAnnotations(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestctx.Annotate(r.Context(), "user_id", "artisan-1\n")
		requestctx.Annotate(r.Context(), "email", "asha@example.com")
		requestctx.Annotate(r.Context(), "idempotency", "replayed")
		w.WriteHeader(http.StatusCreated)
	})
	handler := InjectLoggerMiddleware(zap.New(core))(RequestLoggerMiddleware("kalamitra-dev")(inner))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/checkout/sessions", nil))

	entries := logs.FilterMessage("request completed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one completion entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["status"] != int64(http.StatusCreated) {
		t.Fatalf("expected status 201, got %v", fields["status"])
	}
	if fields["user_id"] != "artisan-1" {
		t.Fatalf("expected sanitized user id, got %q", fields["user_id"])
	}
	if fields["email"] != "a***@example.com" {
		t.Fatalf("expected masked email, got %q", fields["email"])
	}
	if fields["idempotency"] != "replayed" {
		t.Fatalf("expected idempotency annotation, got %v", fields["idempotency"])
	}
}

func TestRequestLoggerWarnsOnClientErrors(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	handler := InjectLoggerMiddleware(zap.New(core))(RequestLoggerMiddleware("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/listings/missing", nil))

	entries := logs.FilterMessage("request completed").All()
	if len(entries) != 1 || entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected one warn entry, got %v", entries)
	}
}

func TestSanitizeHelpers(t *testing.T) {
	if got := sanitizeString("ok\x1b[31mred", 0); got != "ok[31mred" {
		t.Fatalf("expected control characters removed, got %q", got)
	}
	if got := sanitizeString("कलामित्र", 3); got != "कला" {
		t.Fatalf("expected rune-aware truncation, got %q", got)
	}
	if got := SanitizeMethod("post"); got != "POST" {
		t.Fatalf("expected upper-cased method, got %q", got)
	}
	if got := SanitizeRoute(""); got != "/" {
		t.Fatalf("expected root route, got %q", got)
	}
	for in, want := range map[string]string{
		"asha@example.com": "a***@example.com",
		"not-an-email":     "***",
		"@example.com":     "***",
	} {
		if got := MaskEmail(in); got != want {
			t.Fatalf("MaskEmail(%q) = %q, want %q", in, got, want)
		}
	}
}
