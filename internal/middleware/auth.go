package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/Strob0t/StockForge/internal/domain/user"
	"github.com/Strob0t/StockForge/internal/logger"
)

type identityCtxKey struct{}

// DefaultUserID is the actor used when auth is disabled and no X-User-ID is sent.
const DefaultUserID = "00000000-0000-0000-0000-000000000000"

const (
	headerUserID = "X-User-ID"
	headerRoles  = "X-Roles"
)

// publicPaths are exempt from authentication.
var publicPaths = map[string]bool{
	"/health":       true,
	"/health/ready": true,
}

// TokenVerifier validates a bearer token and returns its claims.
type TokenVerifier interface {
	Verify(token string) (*user.TokenClaims, error)
}

// Auth returns middleware that resolves the caller's identity triple.
// When authEnabled is false the X-User-ID, X-Tenant-ID and X-Roles headers are
// trusted as-is, defaulting to an admin of the default tenant.
func Auth(verifier TokenVerifier, authEnabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !authEnabled {
				id := identityFromHeaders(r)
				next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
				return
			}

			if publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			var token string
			if r.URL.Path == "/ws" {
				// Browsers cannot set headers on a WebSocket upgrade.
				token = r.URL.Query().Get("token")
			} else {
				authHeader := r.Header.Get("Authorization")
				if authHeader == "" {
					http.Error(w, `{"error":"authorization required"}`, http.StatusUnauthorized)
					return
				}
				token = strings.TrimPrefix(authHeader, "Bearer ")
				if token == authHeader {
					http.Error(w, `{"error":"invalid authorization header"}`, http.StatusUnauthorized)
					return
				}
			}
			if token == "" {
				http.Error(w, `{"error":"authorization required"}`, http.StatusUnauthorized)
				return
			}

			claims, err := verifier.Verify(token)
			if err != nil {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}
			id := claims.Identity()
			if err := id.Validate(); err != nil {
				http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func identityFromHeaders(r *http.Request) user.Identity {
	id := user.Identity{
		UserID:   r.Header.Get(headerUserID),
		TenantID: r.Header.Get(headerTenantID),
		Roles:    user.ParseRoles(r.Header.Get(headerRoles)),
	}
	if id.UserID == "" {
		id.UserID = DefaultUserID
	}
	if id.TenantID == "" {
		id.TenantID = DefaultTenantID
	}
	if len(id.Roles) == 0 {
		id.Roles = []user.Role{user.RoleAdmin}
	}
	return id
}

// WithIdentity stores id in ctx and tags downstream log records with its tenant.
func WithIdentity(ctx context.Context, id user.Identity) context.Context {
	ctx = logger.WithTenantID(ctx, id.TenantID)
	return context.WithValue(ctx, identityCtxKey{}, &id)
}

// IdentityFromContext returns the authenticated identity, or nil.
func IdentityFromContext(ctx context.Context) *user.Identity {
	id, _ := ctx.Value(identityCtxKey{}).(*user.Identity)
	return id
}
