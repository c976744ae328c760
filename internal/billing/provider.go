package billing

import (
	"context"
	"errors"
	"time"
)

// ErrProviderFailure marks a failed or timed out provider call on a user
// facing path.
var ErrProviderFailure = errors.New("payment provider request failed")

// ErrSubscriptionNotFound is returned by a Provider when the external
// subscription does not exist. Redelivery cannot fix it.
var ErrSubscriptionNotFound = errors.New("provider subscription not found")

// CheckoutRequest describes a hosted checkout for one subscription price.
type CheckoutRequest struct {
	PriceID        string
	OrganizationID string
	UserID         string
	// CustomerID is reused when the organization already has one.
	CustomerID string
	SuccessURL string
	CancelURL  string
}

// ProviderSubscription is the provider's view of a recurring agreement.
type ProviderSubscription struct {
	ID         string
	CustomerID string
	Status     string
	PriceID    string
	PeriodEnd  *time.Time
}

// ProviderPaymentMethod is a card on file. Expiry fields are month/year numbers.
type ProviderPaymentMethod struct {
	Brand    string
	Last4    string
	ExpMonth int64
	ExpYear  int64
}

// ProviderInvoice carries amounts in minor units and dates in epoch seconds.
type ProviderInvoice struct {
	ID         string
	Number     string
	AmountPaid int64
	Status     string
	Created    int64
	PDFURL     string
}

// ProviderUpcomingInvoice is the next scheduled charge.
type ProviderUpcomingInvoice struct {
	AmountDue int64
	Date      int64
}

// Provider is the payment processor as seen by the billing subsystem.
// DefaultPaymentMethod and UpcomingInvoice return nil, nil when there is none.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (string, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error)
	DefaultPaymentMethod(ctx context.Context, customerID string) (*ProviderPaymentMethod, error)
	ListPaidInvoices(ctx context.Context, customerID string, limit int) ([]ProviderInvoice, error)
	UpcomingInvoice(ctx context.Context, customerID string) (*ProviderUpcomingInvoice, error)
}
