package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	mid "github.com/suteetoe/billing-service/internal/middleware"
	"github.com/suteetoe/billing-service/internal/store"
	"github.com/suteetoe/billing-service/pkg/logger"
	"github.com/suteetoe/billing-service/prometheus"
	"go.uber.org/zap"
)

const maxLabelsPerRequest = 1000

// UsageHandler records metered usage against the caller's organization
type UsageHandler struct {
	store store.TenantStore
}

// NewUsageHandler creates a usage handler on the tenant store
func NewUsageHandler(s store.TenantStore) *UsageHandler {
	return &UsageHandler{store: s}
}

// LabelUsageRequest defines the structure for label usage requests
type LabelUsageRequest struct {
	Count *int `json:"count"`
}

// IncrementLabelUsage adds printed labels to the monthly counter.
// Counting is additive, so it is only reachable from an authenticated user action.
func (h *UsageHandler) IncrementLabelUsage(c echo.Context) error {
	log := logger.FromEcho(c)

	tenantID, ok := mid.GetTenantIDFromContext(c)
	if !ok {
		log.Warn("Missing tenant_id in context")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "tenant_id is required"})
	}

	var req LabelUsageRequest
	if err := c.Bind(&req); err != nil {
		log.Warn("Invalid request data", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request data"})
	}
	count := 1
	if req.Count != nil {
		count = *req.Count
	}
	if count < 1 || count > maxLabelsPerRequest {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "count must be between 1 and 1000"})
	}

	total, err := h.store.IncrementLabelCount(c.Request().Context(), tenantID, count)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Warn("Label usage for organization without subscription", zap.String("tenant_id", tenantID))
			return c.JSON(http.StatusNotFound, echo.Map{"error": "No subscription for organization"})
		}
		log.Error("Failed to record label usage", zap.String("tenant_id", tenantID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to record label usage"})
	}
	prometheus.RecordLabelUsage(count)

	log.Info("Label usage recorded",
		zap.String("tenant_id", tenantID),
		zap.Int("count", count),
		zap.Int("monthly_label_count", total))
	return c.JSON(http.StatusOK, echo.Map{"monthlyLabelCount": total})
}
