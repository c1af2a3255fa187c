package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/magneticlabs/credits-backend/api/responses"
	pkgerrors "github.com/magneticlabs/credits-backend/pkg/errors"
	"github.com/magneticlabs/credits-backend/pkg/logger"
)

// ReconcileSecretHeader carries the shared secret for the reconcile endpoint.
const ReconcileSecretHeader = "X-Internal-Secret"

// SharedSecret requires the named header to match the configured secret.
// With no secret configured the endpoint is closed, never open.
func SharedSecret(header, secret string, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "endpoint not configured"))
				return
			}
			provided := strings.TrimSpace(r.Header.Get(header))
			if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "invalid secret"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// OptionalBearer checks the bearer token only when one is configured. The
// renewal trigger historically shipped without auth; setting the token turns
// the check on without breaking old callers.
func OptionalBearer(token string, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			provided := bearerToken(r)
			if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid token"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
