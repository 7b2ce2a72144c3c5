package monitor

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/hazyhaar/sitewatch/store"
)

type ctxKey int

const tenantKey ctxKey = 0

// TenantFrom returns the authenticated tenant from the request context.
func TenantFrom(ctx context.Context) *store.Tenant {
	t, _ := ctx.Value(tenantKey).(*store.Tenant)
	return t
}

// HashToken derives the stored hash for a tenant API secret.
func HashToken(secret string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// requireTenant authenticates "Authorization: Bearer <tenantID>:<secret>"
// against the tenant's stored bcrypt hash and puts the tenant in context.
func (s *Service) requireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		id, secret, ok := strings.Cut(token, ":")
		if !ok || id == "" || secret == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		tenant, err := s.deps.Store.GetTenant(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if tenant == nil || tenant.TokenHash == "" ||
			bcrypt.CompareHashAndPassword([]byte(tenant.TokenHash), []byte(secret)) != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), tenantKey, tenant)))
	})
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, prefix) {
		return auth[len(prefix):]
	}
	return ""
}
