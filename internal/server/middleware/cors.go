package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS returns middleware that sets CORS headers for the allowed origins.
// If allowedOrigins is empty, all origins are allowed.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	origins := allowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key", WebhookSecretHeader, WebhookSignatureHeader, WebhookTimestampHeader},
		ExposedHeaders: []string{"Retry-After"},
		MaxAge:         86400,
	})
}
