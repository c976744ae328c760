package store

import (
	"context"
	"errors"
	"time"

	"github.com/suteetoe/billing-service/internal/model"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// SubscriptionUpdate carries the provider-owned fields of a subscription row.
// An empty PlanID leaves the current plan untouched.
type SubscriptionUpdate struct {
	Status    string
	PlanID    string
	PeriodEnd *time.Time
}

// TenantStore is the persisted multi-tenant schema the billing subsystem reads
// and writes. Every write is an overwrite except IncrementLabelCount.
type TenantStore interface {
	Ping(ctx context.Context) error

	PlanByPriceID(ctx context.Context, priceID string) (*model.Plan, error)
	ListPlans(ctx context.Context) ([]model.Plan, error)
	UpsertPlan(ctx context.Context, plan *model.Plan) error

	GetOrganization(ctx context.Context, id string) (*model.Organization, error)
	GetUser(ctx context.Context, id string) (*model.User, error)
	// SetCustomerIDIfAbsent records the external customer id only when the
	// organization has none yet. It reports whether a write happened.
	SetCustomerIDIfAbsent(ctx context.Context, orgID, customerID string) (bool, error)

	GetSubscriptionByOrganization(ctx context.Context, orgID string) (*model.Subscription, error)
	// UpsertSubscription inserts or replaces the organization's row, keyed by
	// organization id. The label counter of an existing row is preserved.
	UpsertSubscription(ctx context.Context, sub *model.Subscription) error
	// UpdateSubscriptionByExternalID applies provider state to the row holding
	// that external id. Rows in a terminal status are only moved to another
	// terminal status. It returns the number of rows changed.
	UpdateSubscriptionByExternalID(ctx context.Context, externalID string, update SubscriptionUpdate) (int64, error)
	CancelSubscriptionByExternalID(ctx context.Context, externalID string) (int64, error)
	// IncrementLabelCount adds delta to the organization's monthly counter and
	// returns the new value. It is additive and must never run from a webhook.
	IncrementLabelCount(ctx context.Context, orgID string, delta int) (int, error)
}

var terminalStatuses = []string{model.StatusCanceled, model.StatusIncompleteExpired}
