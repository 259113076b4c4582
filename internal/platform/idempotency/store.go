// Package idempotency replays the first response recorded for an Idempotency-Key so a buyer who retries a
// checkout request gets the same session instead of a second pending order.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

// DefaultTTL bounds how long a recorded response is replayed.
const DefaultTTL = 24 * time.Hour

// ErrKeyReused is returned when a key is presented again with a different request.
var ErrKeyReused = errors.New("idempotency: key reused for a different request")

// Entry is what a store keeps per key. Done is false while the first request is still running.
type Entry struct {
	Fingerprint string      `json:"fingerprint"`
	Done        bool        `json:"done"`
	Status      int         `json:"status,omitempty"`
	Header      http.Header `json:"header,omitempty"`
	Body        []byte      `json:"body,omitempty"`
}

// Store claims keys and keeps the response recorded for them.
type Store interface {
	// Claim registers key for fingerprint. claimed is false when the key already exists, in which case the
	// existing entry is returned.
	Claim(ctx context.Context, key, fingerprint string, ttl time.Duration) (existing Entry, claimed bool, err error)
	// Complete stores the final response for a claimed key.
	Complete(ctx context.Context, key string, entry Entry, ttl time.Duration) error
	// Forget drops a key so the request can be retried.
	Forget(ctx context.Context, key string) error
}

func hashHex(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

var hopHeaders = map[string]struct{}{
	"Connection":        {},
	"Content-Length":    {},
	"Date":              {},
	"Keep-Alive":        {},
	"Transfer-Encoding": {},
	"Upgrade":           {},
}

// replayableHeader copies h without hop-by-hop fields.
func replayableHeader(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for name, values := range h {
		canonical := http.CanonicalHeaderKey(strings.TrimSpace(name))
		if _, skip := hopHeaders[canonical]; skip {
			continue
		}
		out[canonical] = append([]string(nil), values...)
	}
	return out
}
