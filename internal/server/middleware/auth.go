package middleware

import (
	"bytes"
	"crypto/subtle"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/consensusbot/internal/crypto"
)

// Webhook authentication headers. A delivery carries either the shared
// secret or a signature with its timestamp.
const (
	WebhookSecretHeader    = "X-Webhook-Secret"
	WebhookSignatureHeader = "X-Webhook-Signature"
	WebhookTimestampHeader = "X-Webhook-Timestamp"
)

const (
	signatureTolerance = 5 * time.Minute
	maxWebhookBody     = 1 << 20
)

// Auth returns middleware that validates API requests using either a Bearer
// token in the Authorization header or a static key in the X-API-Key header.
// If apiKey is empty, the middleware passes all requests through (disabled).
func Auth(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			token := extractToken(r)
			if token == "" {
				writeUnauthorized(w, "missing authentication token")
				return
			}
			if !equal(token, apiKey) {
				writeUnauthorized(w, "invalid authentication token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// WebhookSecret returns middleware that accepts a delivery carrying the
// shared secret in WebhookSecretHeader or a valid HMAC signature of the body
// in WebhookSignatureHeader. An empty secret disables the check.
func WebhookSecret(secret string) func(http.Handler) http.Handler {
	signer := crypto.NewWebhookSigner(secret, signatureTolerance)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				next.ServeHTTP(w, r)
				return
			}
			if got := strings.TrimSpace(r.Header.Get(WebhookSecretHeader)); got != "" {
				if !equal(got, secret) {
					writeUnauthorized(w, "invalid webhook secret")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			sig := strings.TrimSpace(r.Header.Get(WebhookSignatureHeader))
			if sig == "" {
				writeUnauthorized(w, "invalid webhook secret")
				return
			}
			var body []byte
			if r.Body != nil {
				b, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
				if err != nil {
					writeUnauthorized(w, "unreadable webhook body")
					return
				}
				body = b
			}
			if err := signer.Verify(body, strings.TrimSpace(r.Header.Get(WebhookTimestampHeader)), sig); err != nil {
				writeUnauthorized(w, "invalid webhook signature")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}

// equal compares in constant time.
func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// extractToken looks for a token in the Authorization header (Bearer scheme)
// or in the X-API-Key header.
func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return strings.TrimSpace(key)
	}
	return ""
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	writeJSONError(w, http.StatusUnauthorized, msg)
}

// writeJSONError writes {"error": msg}. Messages are fixed strings that need
// no escaping.
func writeJSONError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
