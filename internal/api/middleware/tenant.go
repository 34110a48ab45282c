package middleware

import (
	"context"
	"net/http"

	apiContext "conduit/internal/api/context"
	"conduit/internal/pkg/errors"
)

// TenantContext is the acting tenant and user for an authenticated request.
type TenantContext struct {
	TenantID string
	UserID   string
	Role     string
}

type TenantMiddleware struct{}

func NewTenantMiddleware() *TenantMiddleware {
	return &TenantMiddleware{}
}

// Handle requires claims that name a tenant. Platform-level tokens without a
// tenant cannot manage connections.
func (m *TenantMiddleware) Handle(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFrom(r.Context())
		if !ok {
			errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "No authentication claims found", nil)
			return
		}

		if claims.TenantID == "" {
			errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Tenant context required", nil)
			return
		}

		ctx := context.WithValue(r.Context(), apiContext.Tenant, &TenantContext{
			TenantID: claims.TenantID,
			UserID:   claims.UserID,
			Role:     claims.Role,
		})

		next(w, r.WithContext(ctx))
	}
}

// TenantFrom returns the tenant placed on the context by TenantMiddleware.
func TenantFrom(ctx context.Context) (*TenantContext, bool) {
	tenant, ok := ctx.Value(apiContext.Tenant).(*TenantContext)
	return tenant, ok && tenant != nil
}
