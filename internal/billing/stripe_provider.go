package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	stripe "github.com/stripe/stripe-go/v82"
	stripesession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/invoice"
	"github.com/stripe/stripe-go/v82/paymentmethod"
	"github.com/stripe/stripe-go/v82/subscription"
)

// StripeProvider implements Provider with the Stripe API.
type StripeProvider struct {
	createSession func(*stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// NewStripeProvider sets the API key used by every Stripe call.
func NewStripeProvider(secretKey string) *StripeProvider {
	stripe.Key = secretKey
	return &StripeProvider{createSession: stripesession.New}
}

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (string, error) {
	metadata := map[string]string{
		MetadataOrganizationID: req.OrganizationID,
		MetadataUserID:         req.UserID,
	}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.OrganizationID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(req.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: metadata,
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: metadata,
		},
	}
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	}
	params.Context = ctx

	s, err := p.createSession(params)
	if err != nil {
		return "", fmt.Errorf("stripe checkout session: %w", err)
	}
	if s.URL == "" {
		return "", errors.New("stripe checkout session has no url")
	}
	return s.URL, nil
}

func (p *StripeProvider) GetSubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := subscription.Get(subscriptionID, params)
	if err != nil {
		if isResourceMissing(err) {
			return nil, fmt.Errorf("%w: %s", ErrSubscriptionNotFound, subscriptionID)
		}
		return nil, fmt.Errorf("stripe get subscription: %w", err)
	}

	// The period end moved between API versions, so read the raw object.
	var raw []byte
	if sub.LastResponse != nil && len(sub.LastResponse.RawJSON) > 0 {
		raw = sub.LastResponse.RawJSON
	} else if raw, err = json.Marshal(sub); err != nil {
		return nil, fmt.Errorf("encode subscription: %w", err)
	}
	var obj subscriptionObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("decode subscription: %w", err)
	}
	return obj.toProvider(), nil
}

// DefaultPaymentMethod returns the card the customer's invoices are charged
// to, or the first attached card when no invoice default is set.
func (p *StripeProvider) DefaultPaymentMethod(ctx context.Context, customerID string) (*ProviderPaymentMethod, error) {
	params := &stripe.CustomerParams{}
	params.AddExpand("invoice_settings.default_payment_method")
	params.Context = ctx

	c, err := customer.Get(customerID, params)
	if err != nil {
		return nil, fmt.Errorf("stripe get customer: %w", err)
	}
	if c.Deleted {
		return nil, nil
	}
	if c.InvoiceSettings != nil {
		if pm := cardOf(c.InvoiceSettings.DefaultPaymentMethod); pm != nil {
			return pm, nil
		}
	}
	return p.firstCard(ctx, customerID)
}

func (p *StripeProvider) firstCard(ctx context.Context, customerID string) (*ProviderPaymentMethod, error) {
	params := &stripe.PaymentMethodListParams{
		Customer: stripe.String(customerID),
		Type:     stripe.String(string(stripe.PaymentMethodTypeCard)),
	}
	params.Limit = stripe.Int64(1)
	params.Context = ctx

	iter := paymentmethod.List(params)
	for iter.Next() {
		if pm := cardOf(iter.PaymentMethod()); pm != nil {
			return pm, nil
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("stripe list payment methods: %w", err)
	}
	return nil, nil
}

func cardOf(pm *stripe.PaymentMethod) *ProviderPaymentMethod {
	if pm == nil || pm.Card == nil {
		return nil
	}
	return &ProviderPaymentMethod{
		Brand:    string(pm.Card.Brand),
		Last4:    pm.Card.Last4,
		ExpMonth: pm.Card.ExpMonth,
		ExpYear:  pm.Card.ExpYear,
	}
}

func (p *StripeProvider) ListPaidInvoices(ctx context.Context, customerID string, limit int) ([]ProviderInvoice, error) {
	params := &stripe.InvoiceListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String(string(stripe.InvoiceStatusPaid)),
	}
	params.Limit = stripe.Int64(int64(limit))
	params.Context = ctx

	invoices := make([]ProviderInvoice, 0, limit)
	iter := invoice.List(params)
	for len(invoices) < limit && iter.Next() {
		inv := iter.Invoice()
		invoices = append(invoices, ProviderInvoice{
			ID:         inv.ID,
			Number:     inv.Number,
			AmountPaid: inv.AmountPaid,
			Status:     string(inv.Status),
			Created:    inv.Created,
			PDFURL:     inv.InvoicePDF,
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("stripe list invoices: %w", err)
	}
	return invoices, nil
}

func (p *StripeProvider) UpcomingInvoice(ctx context.Context, customerID string) (*ProviderUpcomingInvoice, error) {
	params := &stripe.InvoiceCreatePreviewParams{
		Customer: stripe.String(customerID),
	}
	params.Context = ctx

	inv, err := invoice.CreatePreview(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeInvoiceUpcomingNone {
			return nil, nil
		}
		return nil, fmt.Errorf("stripe preview invoice: %w", err)
	}

	date := inv.NextPaymentAttempt
	if date == 0 {
		date = inv.PeriodEnd
	}
	return &ProviderUpcomingInvoice{AmountDue: inv.AmountDue, Date: date}, nil
}

func isResourceMissing(err error) bool {
	var stripeErr *stripe.Error
	return errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing
}
