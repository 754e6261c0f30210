package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// ctxKey is unexported so no other package can collide with our context values.
type ctxKey int

const (
	ctxTenantID ctxKey = iota
	ctxKeyPrefix
	ctxScopes
)

// SetTenantID stores the authenticated tenant on the context. Handlers read
// it back through GetTenantID; tests use it to fake an authenticated request.
func SetTenantID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, ctxTenantID, id)
}

func GetTenantID(r *http.Request) (uuid.UUID, bool) {
	id, ok := r.Context().Value(ctxTenantID).(uuid.UUID)
	return id, ok
}

// SetKeyPrefix stores the API key prefix used to authenticate the request.
// The rate limiter keys its counters on it.
func SetKeyPrefix(ctx context.Context, prefix string) context.Context {
	return context.WithValue(ctx, ctxKeyPrefix, prefix)
}

func keyPrefixFrom(r *http.Request) (string, bool) {
	prefix, ok := r.Context().Value(ctxKeyPrefix).(string)
	return prefix, ok
}

func setScopes(ctx context.Context, scopes []string) context.Context {
	return context.WithValue(ctx, ctxScopes, scopes)
}

func scopesFrom(r *http.Request) []string {
	scopes, _ := r.Context().Value(ctxScopes).([]string)
	return scopes
}
