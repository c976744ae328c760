package handler

import (
	"github.com/labstack/echo/v4"
	mid "github.com/suteetoe/billing-service/internal/middleware"
	"github.com/suteetoe/billing-service/internal/store"
	"github.com/suteetoe/billing-service/pkg/jwtutil"
)

// RegisterRoutes mounts the billing API on e.
// The webhook is authenticated by its signature alone, never by a user token.
func RegisterRoutes(e *echo.Echo, billingHandler *BillingHandler, usageHandler *UsageHandler, s store.TenantStore, jwt *jwtutil.JWTUtil) {
	e.GET("/health", HealthCheck(s))

	billingAPI := e.Group("/api/billing")
	billingAPI.POST("/webhook", billingHandler.Webhook)
	billingAPI.GET("/plans", billingHandler.ListPlans)
	billingAPI.POST("/checkout", billingHandler.CreateCheckoutSession, mid.AuthMiddleware(jwt), mid.RequireTenantContext)
	billingAPI.GET("/subscription", billingHandler.GetSubscriptionDetails, mid.AuthMiddleware(jwt))

	usageAPI := e.Group("/api/usage", mid.AuthMiddleware(jwt), mid.RequireTenantContext)
	usageAPI.POST("/labels", usageHandler.IncrementLabelUsage)
}
