package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/leaflens/leaflens-server/api/responses"
	pkgauth "github.com/leaflens/leaflens-server/pkg/auth"
	"github.com/leaflens/leaflens-server/pkg/config"
	pkgerrors "github.com/leaflens/leaflens-server/pkg/errors"
	"github.com/leaflens/leaflens-server/pkg/logger"
)

// Auth validates a mobile-client bearer token and seeds the request context
// with the authenticated user id.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgauth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			userID := claims.UserID()
			ctx := context.WithValue(r.Context(), ctxUserID, userID)
			if claims.Device != "" {
				ctx = context.WithValue(ctx, ctxDevice, claims.Device)
			}

			if logg != nil {
				ctx = logg.WithUserID(ctx, userID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
