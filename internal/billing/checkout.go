package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/suteetoe/billing-service/internal/store"
	"github.com/suteetoe/billing-service/pkg/logger"
	"github.com/suteetoe/billing-service/prometheus"
	"go.uber.org/zap"
)

// Metadata keys written on checkout sessions and their subscriptions.
const (
	MetadataOrganizationID = "organization_id"
	MetadataUserID         = "user_id"
)

var (
	ErrMissingOrganization  = errors.New("organization id is required")
	ErrMissingUser          = errors.New("user id is required")
	ErrMissingPrice         = errors.New("price id is required")
	ErrOrganizationNotFound = errors.New("organization not found")
	// ErrForbiddenOrganization means the acting user is not a member of the
	// organization it tried to buy for.
	ErrForbiddenOrganization = errors.New("user does not belong to organization")
)

// CheckoutInput is a plan selection made by a user on behalf of a tenant.
type CheckoutInput struct {
	PriceID        string
	OrganizationID string
	UserID         string
}

// CheckoutInitiator starts hosted checkouts. It never writes subscription
// state; the reconciler does once the provider confirms.
type CheckoutInitiator struct {
	store      store.TenantStore
	plans      *PlanDirectory
	provider   Provider
	successURL string
	cancelURL  string
	timeout    time.Duration
}

func NewCheckoutInitiator(s store.TenantStore, plans *PlanDirectory, provider Provider, successURL, cancelURL string, timeout time.Duration) *CheckoutInitiator {
	return &CheckoutInitiator{
		store:      s,
		plans:      plans,
		provider:   provider,
		successURL: successURL,
		cancelURL:  cancelURL,
		timeout:    timeout,
	}
}

// Start validates the selection and returns the provider redirect URL.
func (c *CheckoutInitiator) Start(ctx context.Context, in CheckoutInput) (string, error) {
	url, err := c.start(ctx, in)
	switch {
	case err == nil:
		prometheus.RecordCheckout("created")
	case isCheckoutInputError(err):
		prometheus.RecordCheckout("rejected")
	default:
		prometheus.RecordCheckout("failed")
	}
	return url, err
}

func (c *CheckoutInitiator) start(ctx context.Context, in CheckoutInput) (string, error) {
	log := logger.FromContext(ctx)

	in.OrganizationID = strings.TrimSpace(in.OrganizationID)
	in.UserID = strings.TrimSpace(in.UserID)
	in.PriceID = strings.TrimSpace(in.PriceID)
	switch {
	case in.OrganizationID == "":
		return "", ErrMissingOrganization
	case in.UserID == "":
		return "", ErrMissingUser
	case in.PriceID == "":
		return "", ErrMissingPrice
	}

	plan, err := c.plans.Resolve(ctx, in.PriceID)
	if err != nil {
		return "", err
	}

	org, err := c.store.GetOrganization(ctx, in.OrganizationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", ErrOrganizationNotFound, in.OrganizationID)
		}
		return "", err
	}
	if err := c.checkMembership(ctx, in.UserID, in.OrganizationID); err != nil {
		return "", err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	url, err := c.provider.CreateCheckoutSession(callCtx, CheckoutRequest{
		PriceID:        in.PriceID,
		OrganizationID: in.OrganizationID,
		UserID:         in.UserID,
		CustomerID:     org.CustomerID(),
		SuccessURL:     c.successURL,
		CancelURL:      c.cancelURL,
	})
	if err != nil {
		return "", fmt.Errorf("%w: create checkout session: %w", ErrProviderFailure, err)
	}

	log.Info("Checkout session created",
		zap.String("organization_id", in.OrganizationID),
		zap.String("user_id", in.UserID),
		zap.String("plan_id", plan.ID))
	return url, nil
}

// checkMembership rejects a checkout for an organization the user is not part of.
func (c *CheckoutInitiator) checkMembership(ctx context.Context, userID, orgID string) error {
	user, err := c.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: unknown user %s", ErrForbiddenOrganization, userID)
		}
		return err
	}
	if user.OrganizationID == nil || *user.OrganizationID != orgID {
		return fmt.Errorf("%w: user %s, organization %s", ErrForbiddenOrganization, userID, orgID)
	}
	return nil
}

func isCheckoutInputError(err error) bool {
	return errors.Is(err, ErrMissingOrganization) ||
		errors.Is(err, ErrMissingUser) ||
		errors.Is(err, ErrMissingPrice) ||
		errors.Is(err, ErrPlanNotFound) ||
		errors.Is(err, ErrOrganizationNotFound) ||
		errors.Is(err, ErrForbiddenOrganization)
}
