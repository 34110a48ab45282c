package api

import (
	"context"
	"net/http"

	"github.com/julienschmidt/httprouter"

	apiContext "conduit/internal/api/context"
	"conduit/internal/api/handlers"
	"conduit/internal/api/middleware"
	"conduit/internal/pkg/errors"
)

type Dependencies struct {
	IntegrationHandler *handlers.IntegrationHandler
	AuditHandler       *handlers.AuditHandler
	HealthHandler      *handlers.HealthHandler
	MetricsHandler     *handlers.MetricsHandler
	AuthMiddleware     *middleware.AuthMiddleware
	TenantMiddleware   *middleware.TenantMiddleware
	RateLimiter        *middleware.RateLimiter
	WebhookRate        int
}

func NewRouter(deps *Dependencies) *httprouter.Router {
	router := httprouter.New()

	router.GET("/health", wrap(deps.HealthHandler.Check))
	router.GET("/metrics", wrap(deps.MetricsHandler.Export))

	// Middleware references
	authMid := deps.AuthMiddleware
	tenantMid := deps.TenantMiddleware
	ih := deps.IntegrationHandler

	router.GET("/api/v1/integrations",
		chain(ih.List, middleware.Instrument("list"), authMid.Handle, tenantMid.Handle))

	// OAuth
	router.GET("/api/v1/integrations/:provider/auth/start",
		chain(ih.AuthStart, middleware.Instrument("auth_start"), authMid.Handle, tenantMid.Handle, requireRole("admin", "owner")))
	router.GET("/api/v1/integrations/:provider/auth/callback",
		chain(ih.AuthCallback, middleware.Instrument("auth_callback")))

	// Provider push, unauthenticated
	router.POST("/api/v1/integrations/:provider/webhook",
		chain(ih.ReceiveWebhook, middleware.Instrument("webhook"), deps.RateLimiter.Limit("webhook", deps.WebhookRate)))

	// Connection management
	router.POST("/api/v1/integrations/:provider/sync",
		chain(ih.Sync, middleware.Instrument("sync"), authMid.Handle, tenantMid.Handle, deps.RateLimiter.Limit("sync", 10)))
	router.DELETE("/api/v1/integrations/:provider/connection",
		chain(ih.Disconnect, middleware.Instrument("disconnect"), authMid.Handle, tenantMid.Handle, requireRole("admin", "owner")))

	router.GET("/api/v1/audit",
		chain(deps.AuditHandler.List, middleware.Instrument("audit"), authMid.Handle, tenantMid.Handle, requireRole("admin", "owner")))

	return router
}

// Helper function to chain middlewares
func chain(handler http.HandlerFunc, middlewares ...func(http.HandlerFunc) http.HandlerFunc) httprouter.Handle {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return wrap(handler)
}

// Convert http.HandlerFunc to httprouter.Handle
func wrap(handler http.HandlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		// Inject params into context
		ctx := context.WithValue(r.Context(), apiContext.Params, ps)
		handler(w, r.WithContext(ctx))
	}
}

func requireRole(roles ...string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			claims, ok := middleware.ClaimsFrom(r.Context())
			if !ok {
				errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "No authentication claims found", nil)
				return
			}

			allowed := false
			for _, role := range roles {
				if claims.Role == role {
					allowed = true
					break
				}
			}

			if !allowed {
				errors.WriteError(w, http.StatusForbidden, errors.ErrCodeForbidden, "Insufficient permissions", nil)
				return
			}

			next(w, r)
		}
	}
}
