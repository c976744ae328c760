package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/suteetoe/billing-service/internal/model"
	"github.com/suteetoe/billing-service/internal/store"
	"github.com/suteetoe/billing-service/pkg/logger"
	"github.com/suteetoe/billing-service/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var ErrUserNotFound = errors.New("user not found")

type PaymentMethodView struct {
	Brand    string `json:"brand"`
	Last4    string `json:"last4"`
	ExpMonth int64  `json:"expMonth"`
	ExpYear  int64  `json:"expYear"`
}

type UpcomingInvoiceView struct {
	Amount float64    `json:"amount"`
	Date   *time.Time `json:"date"`
}

type InvoiceView struct {
	ID     string    `json:"id"`
	Number string    `json:"number"`
	Amount float64   `json:"amount"`
	Status string    `json:"status"`
	Date   time.Time `json:"date"`
	PDFURL string    `json:"pdfUrl"`
}

// SubscriptionSummary is the locally reconciled row, when there is one.
type SubscriptionSummary struct {
	PlanID            string     `json:"planId"`
	Status            string     `json:"status"`
	CurrentPeriodEnd  *time.Time `json:"currentPeriodEnd"`
	MonthlyLabelCount int        `json:"monthlyLabelCount"`
}

// SubscriptionDetails is the consolidated billing view of one tenant.
type SubscriptionDetails struct {
	HasSubscription bool                 `json:"hasSubscription"`
	Subscription    *SubscriptionSummary `json:"subscription,omitempty"`
	PaymentMethod   *PaymentMethodView   `json:"paymentMethod"`
	UpcomingInvoice *UpcomingInvoiceView `json:"upcomingInvoice"`
	Invoices        []InvoiceView        `json:"invoices"`
}

func noSubscription() *SubscriptionDetails {
	return &SubscriptionDetails{Invoices: []InvoiceView{}}
}

// DetailReader assembles SubscriptionDetails from the store and the provider.
type DetailReader struct {
	store        store.TenantStore
	provider     Provider
	invoiceLimit int
	timeout      time.Duration
}

func NewDetailReader(s store.TenantStore, provider Provider, invoiceLimit int, timeout time.Duration) *DetailReader {
	return &DetailReader{store: s, provider: provider, invoiceLimit: invoiceLimit, timeout: timeout}
}

// Read returns the billing view for the user's organization. A tenant that
// never checked out gets the empty view, not an error.
func (r *DetailReader) Read(ctx context.Context, userID string) (*SubscriptionDetails, error) {
	details, err := r.read(ctx, userID)
	switch {
	case err != nil:
		prometheus.RecordDetailRead("failed")
	case details.HasSubscription:
		prometheus.RecordDetailRead("subscribed")
	default:
		prometheus.RecordDetailRead("no_subscription")
	}
	return details, err
}

func (r *DetailReader) read(ctx context.Context, userID string) (*SubscriptionDetails, error) {
	log := logger.FromContext(ctx)
	if userID == "" {
		return nil, ErrMissingUser
	}

	user, err := r.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
		}
		return nil, err
	}
	if user.OrganizationID == nil || *user.OrganizationID == "" {
		return noSubscription(), nil
	}
	orgID := *user.OrganizationID

	org, err := r.store.GetOrganization(ctx, orgID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Warn("User references a missing organization",
				zap.String("user_id", userID),
				zap.String("organization_id", orgID))
			return noSubscription(), nil
		}
		return nil, err
	}
	customerID := org.CustomerID()
	if customerID == "" {
		return noSubscription(), nil
	}

	details := noSubscription()
	details.HasSubscription = true

	sub, err := r.store.GetSubscriptionByOrganization(ctx, orgID)
	switch {
	case err == nil:
		details.Subscription = summarize(sub)
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var (
		pm       *ProviderPaymentMethod
		invoices []ProviderInvoice
		upcoming *ProviderUpcomingInvoice
	)
	g, gctx := errgroup.WithContext(callCtx)
	g.Go(func() error {
		var err error
		pm, err = r.provider.DefaultPaymentMethod(gctx, customerID)
		if err != nil {
			return fmt.Errorf("payment method: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		invoices, err = r.provider.ListPaidInvoices(gctx, customerID, r.invoiceLimit)
		if err != nil {
			return fmt.Errorf("invoices: %w", err)
		}
		return nil
	})
	// The upcoming invoice is optional; its failure never fails the read.
	upcomingDone := make(chan struct{})
	go func() {
		defer close(upcomingDone)
		u, err := r.provider.UpcomingInvoice(callCtx, customerID)
		if err != nil {
			log.Warn("Upcoming invoice unavailable",
				zap.String("customer_id", customerID),
				zap.Error(err))
			return
		}
		upcoming = u
	}()

	err = g.Wait()
	<-upcomingDone
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderFailure, err)
	}

	if pm != nil {
		details.PaymentMethod = &PaymentMethodView{
			Brand:    pm.Brand,
			Last4:    pm.Last4,
			ExpMonth: pm.ExpMonth,
			ExpYear:  pm.ExpYear,
		}
	}
	if upcoming != nil {
		details.UpcomingInvoice = &UpcomingInvoiceView{
			Amount: majorUnits(upcoming.AmountDue),
			Date:   epochTime(upcoming.Date),
		}
	}
	for _, inv := range invoices {
		view := InvoiceView{
			ID:     inv.ID,
			Number: inv.Number,
			Amount: majorUnits(inv.AmountPaid),
			Status: inv.Status,
			PDFURL: inv.PDFURL,
		}
		if t := epochTime(inv.Created); t != nil {
			view.Date = *t
		}
		details.Invoices = append(details.Invoices, view)
	}
	return details, nil
}

func summarize(sub *model.Subscription) *SubscriptionSummary {
	return &SubscriptionSummary{
		PlanID:            sub.PlanID,
		Status:            sub.Status,
		CurrentPeriodEnd:  sub.PeriodEnd,
		MonthlyLabelCount: sub.MonthlyLabelCount,
	}
}

// majorUnits converts a provider amount in minor units (cents) to major units.
func majorUnits(minor int64) float64 {
	return float64(minor) / 100
}
