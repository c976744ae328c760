package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/suteetoe/billing-service/internal/billing"
	mid "github.com/suteetoe/billing-service/internal/middleware"
	"github.com/suteetoe/billing-service/pkg/logger"
	"github.com/suteetoe/billing-service/prometheus"
	"go.uber.org/zap"
)

// BillingHandler serves the webhook receiver and the user facing billing endpoints
type BillingHandler struct {
	verifier   *billing.Verifier
	reconciler *billing.Reconciler
	checkout   *billing.CheckoutInitiator
	details    *billing.DetailReader
	plans      *billing.PlanDirectory
	bodyLimit  int64
}

// NewBillingHandler wires the billing components into HTTP handlers
func NewBillingHandler(
	verifier *billing.Verifier,
	reconciler *billing.Reconciler,
	checkout *billing.CheckoutInitiator,
	details *billing.DetailReader,
	plans *billing.PlanDirectory,
	bodyLimit int64,
) *BillingHandler {
	return &BillingHandler{
		verifier:   verifier,
		reconciler: reconciler,
		checkout:   checkout,
		details:    details,
		plans:      plans,
		bodyLimit:  bodyLimit,
	}
}

// CheckoutRequest defines the structure for checkout session requests
type CheckoutRequest struct {
	PriceID        string `json:"priceId"`
	OrganizationID string `json:"organizationId"`
	UserID         string `json:"userId"`
}

// Webhook verifies and reconciles one payment provider event.
// The body is read raw because the signature covers the exact bytes.
func (h *BillingHandler) Webhook(c echo.Context) error {
	log := logger.FromEcho(c)

	req := c.Request()
	req.Body = http.MaxBytesReader(c.Response(), req.Body, h.bodyLimit)
	payload, err := io.ReadAll(req.Body)
	if err != nil {
		log.Warn("Failed to read webhook body", zap.Error(err))
		prometheus.RecordWebhookRejected("unreadable_body")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "failed to read request body"})
	}

	event, err := h.verifier.Verify(payload, req.Header.Get("Stripe-Signature"))
	if err != nil {
		status, reason, message := webhookRejection(err)
		log.Warn("Webhook rejected", zap.String("reason", reason), zap.Error(err))
		prometheus.RecordWebhookRejected(reason)
		return c.JSON(status, echo.Map{"error": message})
	}

	result, err := h.reconciler.Apply(req.Context(), event)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "processing failed"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"received": true,
		"outcome":  result.Outcome,
	})
}

func webhookRejection(err error) (int, string, string) {
	switch {
	case errors.Is(err, billing.ErrMissingSecret):
		return http.StatusServiceUnavailable, "missing_secret", "webhook secret not configured"
	case errors.Is(err, billing.ErrMissingSignature):
		return http.StatusBadRequest, "missing_signature", "missing Stripe signature"
	case errors.Is(err, billing.ErrInvalidSignature):
		return http.StatusBadRequest, "invalid_signature", "invalid Stripe signature"
	default:
		return http.StatusBadRequest, "malformed_event", "malformed event"
	}
}

// CreateCheckoutSession starts a hosted checkout and returns its URL
func (h *BillingHandler) CreateCheckoutSession(c echo.Context) error {
	log := logger.FromEcho(c)

	var req CheckoutRequest
	if err := c.Bind(&req); err != nil {
		log.Warn("Invalid request data", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request data"})
	}

	// The token decides who is buying for which tenant
	if userID, ok := mid.GetUserIDFromContext(c); ok {
		req.UserID = userID
	}
	if tenantID, ok := mid.GetTenantIDFromContext(c); ok {
		req.OrganizationID = tenantID
	}

	url, err := h.checkout.Start(c.Request().Context(), billing.CheckoutInput{
		PriceID:        req.PriceID,
		OrganizationID: req.OrganizationID,
		UserID:         req.UserID,
	})
	if err != nil {
		status := checkoutErrorStatus(err)
		log.Warn("Checkout session failed",
			zap.String("organization_id", req.OrganizationID),
			zap.String("price_id", req.PriceID),
			zap.Int("status", status),
			zap.Error(err))
		return c.JSON(status, echo.Map{"error": checkoutErrorMessage(err)})
	}

	return c.JSON(http.StatusOK, echo.Map{"url": url})
}

func checkoutErrorStatus(err error) int {
	switch {
	case errors.Is(err, billing.ErrMissingOrganization),
		errors.Is(err, billing.ErrMissingUser),
		errors.Is(err, billing.ErrMissingPrice),
		errors.Is(err, billing.ErrPlanNotFound):
		return http.StatusBadRequest
	case errors.Is(err, billing.ErrForbiddenOrganization):
		return http.StatusForbidden
	case errors.Is(err, billing.ErrOrganizationNotFound):
		return http.StatusNotFound
	case errors.Is(err, billing.ErrProviderFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func checkoutErrorMessage(err error) string {
	switch {
	case errors.Is(err, billing.ErrMissingOrganization):
		return "Missing organization"
	case errors.Is(err, billing.ErrMissingUser):
		return "Missing user"
	case errors.Is(err, billing.ErrMissingPrice):
		return "Missing price"
	case errors.Is(err, billing.ErrPlanNotFound):
		return "Unknown plan price"
	case errors.Is(err, billing.ErrForbiddenOrganization):
		return "Not a member of this organization"
	case errors.Is(err, billing.ErrOrganizationNotFound):
		return "Organization not found"
	case errors.Is(err, billing.ErrProviderFailure):
		return "Payment provider unavailable, please try again"
	default:
		return "Failed to create checkout session"
	}
}

// GetSubscriptionDetails returns the caller's consolidated billing view
func (h *BillingHandler) GetSubscriptionDetails(c echo.Context) error {
	log := logger.FromEcho(c)

	userID, ok := mid.GetUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "user_id is required"})
	}

	details, err := h.details.Read(c.Request().Context(), userID)
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrUserNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "User not found"})
		case errors.Is(err, billing.ErrProviderFailure):
			log.Error("Failed to read billing details from provider", zap.Error(err))
			return c.JSON(http.StatusBadGateway, echo.Map{"error": "Payment provider unavailable, please try again"})
		default:
			log.Error("Failed to read billing details", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to retrieve subscription details"})
		}
	}

	return c.JSON(http.StatusOK, details)
}

// ListPlans returns every plan for the plan picker
func (h *BillingHandler) ListPlans(c echo.Context) error {
	plans, err := h.plans.List(c.Request().Context())
	if err != nil {
		logger.FromEcho(c).Error("Failed to retrieve plans", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to retrieve plans"})
	}
	return c.JSON(http.StatusOK, plans)
}
