package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/brandlens/brandlens/internal/api/response"
	"github.com/brandlens/brandlens/internal/store"
	"github.com/brandlens/brandlens/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

// keyPrefixLen is how many leading characters of a raw key are stored in
// clear for lookup; the full key is only ever compared against its bcrypt hash.
const keyPrefixLen = 8

// Auth authenticates requests with bearer API keys and enforces key scopes.
type Auth struct {
	store store.Store
}

func NewAuth(s store.Store) *Auth {
	return &Auth{store: s}
}

// Authenticate resolves the bearer token to an API key and stamps tenant,
// key prefix, and scopes onto the request context.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawKey := bearerToken(r)
		if len(rawKey) < keyPrefixLen {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Missing or invalid Authorization header", nil)
			return
		}

		key, err := a.matchKey(r.Context(), rawKey)
		if err != nil {
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to validate API key", nil)
			return
		}
		if key == nil {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Invalid API key", nil)
			return
		}

		// Best-effort; auth must not wait on this write.
		go a.store.UpdateAPIKeyLastUsed(context.Background(), key.ID)

		ctx := SetTenantID(r.Context(), key.TenantID)
		ctx = SetKeyPrefix(ctx, key.KeyPrefix)
		ctx = setScopes(ctx, key.Scopes)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// matchKey finds the key whose bcrypt hash matches the raw token. Several
// keys can share a prefix, so every candidate is checked.
func (a *Auth) matchKey(ctx context.Context, rawKey string) (*models.APIKey, error) {
	candidates, err := a.store.GetAPIKeyByPrefix(ctx, rawKey[:keyPrefixLen])
	if err != nil {
		return nil, err
	}
	for _, key := range candidates {
		if bcrypt.CompareHashAndPassword([]byte(key.KeyHash), []byte(rawKey)) == nil {
			return key, nil
		}
	}
	return nil, nil
}

// RequireScope gates a route group on the authenticated key carrying the
// given scope.
func (a *Auth) RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, s := range scopesFrom(r) {
				if s == scope {
					next.ServeHTTP(w, r)
					return
				}
			}
			response.Error(w, http.StatusForbidden,
				"FORBIDDEN", "Insufficient permissions", nil)
		})
	}
}

func bearerToken(r *http.Request) string {
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
