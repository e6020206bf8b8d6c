package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/dsmirnov82/authuser/internal/server/auth"
	"github.com/dsmirnov82/authuser/internal/server/models"
)

type identityKey struct{}

// identityFromContext returns the authenticated user placed there by
// withAuth, or nil on unauthenticated requests.
func identityFromContext(ctx context.Context) *models.User {
	user, _ := ctx.Value(identityKey{}).(*models.User)
	return user
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// withAuth resolves the bearer token into a live user record and stores it
// in the request context. Missing, malformed, or stale tokens all answer 401.
func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}

		user, err := s.auth.ResolveIdentity(r.Context(), token)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), identityKey{}, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRoles gates a handler on the guard: the identity must hold at least
// one of the required roles.
func (s *Server) requireRoles(req auth.PermissionRequirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := identityFromContext(r.Context())
			if user == nil {
				writeError(w, http.StatusUnauthorized, "missing_token")
				return
			}
			if !req.Check(user.Roles) {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
