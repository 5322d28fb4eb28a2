package httpmiddleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// ErrUnauthorized is what an Authenticator returns for a bad key.
var ErrUnauthorized = errors.New("unauthorized")

// Authenticator validates a raw API key.
type Authenticator interface {
	// Check returns nil for a valid key and an error wrapping
	// ErrUnauthorized for a rejected one. Other errors mean the check
	// itself failed.
	Check(ctx context.Context, key string) error
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(ctx context.Context, key string) error

// Check implements Authenticator.
func (f AuthenticatorFunc) Check(ctx context.Context, key string) error { return f(ctx, key) }

// RequireAPIKey rejects requests without a valid key in the api_key or
// X-API-Key header, or a Bearer token.
func RequireAPIKey(a Authenticator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			err := a.Check(r.Context(), apiKey(r))
			switch {
			case err == nil:
				next.ServeHTTP(w, r)
			case errors.Is(err, ErrUnauthorized):
				writeError(w, http.StatusUnauthorized, "unauthorized")
			default:
				zctx.From(r.Context()).Error("API key check failed", zap.Error(err))
				writeError(w, http.StatusServiceUnavailable, "authentication unavailable")
			}
		})
	}
}

func apiKey(r *http.Request) string {
	for _, h := range []string{"api_key", "X-API-Key"} {
		if v := r.Header.Get(h); v != "" {
			return v
		}
	}
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}
