package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/supporttools/GoNetGuard/pkg/auth"
	"github.com/supporttools/GoNetGuard/pkg/config"
)

type userKey struct{}

// CurrentUser returns the caller resolved by Authenticate, or "" outside it
func CurrentUser(ctx context.Context) string {
	user, _ := ctx.Value(userKey{}).(string)
	return user
}

// WithUser stores the caller on ctx
func WithUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// Authenticate resolves the caller from a bearer token, then the dev-user
// header, then the configured default user. With auth enabled only the
// token and header are accepted.
func Authenticate(cfg config.AuthConfig, logger *logrus.Logger, next http.Handler) http.Handler {
	header := cfg.DevUserHeader
	if header == "" {
		header = "X-Dev-User"
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := ""

		if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
			if cfg.JWTSecret == "" {
				writeError(w, logger, http.StatusUnauthorized, "Bearer tokens are not accepted by this server")
				return
			}
			sub, err := auth.VerifyToken(strings.TrimSpace(bearer), []byte(cfg.JWTSecret))
			if err != nil {
				if logger != nil {
					logger.WithError(err).Debug("Rejected bearer token")
				}
				writeError(w, logger, http.StatusUnauthorized, "Invalid token")
				return
			}
			user = sub
		}

		if user == "" {
			user = strings.TrimSpace(r.Header.Get(header))
		}
		if user == "" {
			if cfg.Enabled {
				writeError(w, logger, http.StatusUnauthorized, "Not authenticated")
				return
			}
			user = cfg.DefaultUser
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}
