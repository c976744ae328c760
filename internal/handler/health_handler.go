package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/suteetoe/billing-service/internal/store"
	"github.com/suteetoe/billing-service/pkg/logger"
	"go.uber.org/zap"
)

// HealthCheck reports liveness, and store connectivity when ?check=db is set
func HealthCheck(s store.TenantStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		response := map[string]interface{}{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		}

		if c.QueryParam("check") == "db" {
			ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
			defer cancel()
			if err := s.Ping(ctx); err != nil {
				logger.FromEcho(c).Error("Database ping error", zap.Error(err))
				response["status"] = "error"
				response["db_status"] = "error"
				response["db_error"] = "Failed to ping database"
				return c.JSON(http.StatusServiceUnavailable, response)
			}
			response["db_status"] = "ok"
		}

		return c.JSON(http.StatusOK, response)
	}
}
