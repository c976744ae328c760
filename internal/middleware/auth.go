package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/suteetoe/billing-service/pkg/jwtutil"
	"github.com/suteetoe/billing-service/pkg/logger"
	"github.com/suteetoe/billing-service/prometheus"
	"go.uber.org/zap"
)

// AuthMiddleware validates the JWT token and stores the caller in the echo context
func AuthMiddleware(jwt *jwtutil.JWTUtil) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			log := logger.FromEcho(c)

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				log.Warn("Missing Authorization header")
				prometheus.RecordAuthError("missing_token")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing authorization token"})
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				log.Warn("Invalid Authorization header format")
				prometheus.RecordAuthError("invalid_format")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid authorization format, expected Bearer token"})
			}

			claims, err := jwt.ValidateToken(parts[1])
			if err != nil {
				log.Warn("Invalid JWT token", zap.Error(err))
				prometheus.RecordAuthError("invalid_token")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token"})
			}

			c.Set("user_id", claims.UserID)
			c.Set("email", claims.Email)
			if claims.TenantID != "" {
				c.Set("tenant_id", claims.TenantID)
				c.Set("tenant_name", claims.TenantName)
				c.Set("user_role", claims.Role)
			}

			logger.Attach(c, log.With(zap.String("user_id", claims.UserID), zap.String("tenant_id", claims.TenantID)))

			return next(c)
		}
	}
}

// RequireTenantContext rejects tokens that carry no tenant
func RequireTenantContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, ok := GetTenantIDFromContext(c); !ok {
			logger.FromEcho(c).Warn("JWT token does not contain tenant_id")
			prometheus.RecordAuthError("missing_tenant")
			return c.JSON(http.StatusForbidden, echo.Map{"error": "tenant_id is required in the token"})
		}
		return next(c)
	}
}

// GetUserIDFromContext retrieves the authenticated user ID
func GetUserIDFromContext(c echo.Context) (string, bool) {
	userID, ok := c.Get("user_id").(string)
	return userID, ok && userID != ""
}

// GetTenantIDFromContext retrieves the tenant ID from the context
func GetTenantIDFromContext(c echo.Context) (string, bool) {
	tenantID, ok := c.Get("tenant_id").(string)
	return tenantID, ok && tenantID != ""
}
