package middleware

import (
	"context"
	"net/http"
	"strconv"

	"github.com/lexscore/backend/internal/models"
)

type contextKey string

const ctxAccountKey contextKey = "account"

// AccountLookup is the interface used to resolve the calling account.
type AccountLookup interface {
	GetByID(ctx context.Context, id int64) (*models.Account, error)
}

// ResolveAccount authenticates requests by the X-Account-ID header and loads
// the account into request context. This is the seam where a real token or
// session layer would plug in; the core only needs a resolved account.
func ResolveAccount(accounts AccountLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get("X-Account-ID")
			if raw == "" {
				http.Error(w, `{"error":"missing X-Account-ID header"}`, http.StatusUnauthorized)
				return
			}
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				http.Error(w, `{"error":"invalid X-Account-ID header"}`, http.StatusUnauthorized)
				return
			}
			acc, err := accounts.GetByID(r.Context(), id)
			if err != nil {
				http.Error(w, `{"error":"unknown account"}`, http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), ctxAccountKey, acc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccountFromCtx returns the resolved account or nil.
func AccountFromCtx(ctx context.Context) *models.Account {
	acc, _ := ctx.Value(ctxAccountKey).(*models.Account)
	return acc
}

// WithAccount returns a context carrying the given account.
func WithAccount(ctx context.Context, acc *models.Account) context.Context {
	return context.WithValue(ctx, ctxAccountKey, acc)
}

// RequireCapability rejects requests whose resolved account's role does not
// grant the capability.
func RequireCapability(capability string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			acc := AccountFromCtx(r.Context())
			if acc == nil {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			if !models.RoleCan(acc.Role, capability) {
				http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
