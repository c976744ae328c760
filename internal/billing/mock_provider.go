package billing

import (
	"context"
	"fmt"
	"sync"
)

// MockProvider is an in-memory Provider for tests and for local runs with
// STRIPE_PROVIDER=mock. Set the *Err fields to simulate provider failures.
type MockProvider struct {
	mu sync.Mutex

	CheckoutURL   string
	Subscriptions map[string]ProviderSubscription
	PaymentMethod *ProviderPaymentMethod
	Invoices      []ProviderInvoice
	Upcoming      *ProviderUpcomingInvoice

	CheckoutErr      error
	SubscriptionErr  error
	PaymentMethodErr error
	InvoicesErr      error
	UpcomingErr      error

	CheckoutRequests []CheckoutRequest
	Calls            map[string]int
}

func NewMockProvider() *MockProvider {
	return &MockProvider{
		CheckoutURL:   "https://checkout.example.test/session",
		Subscriptions: make(map[string]ProviderSubscription),
		Calls:         make(map[string]int),
	}
}

// AddSubscription registers a subscription returned by GetSubscription.
func (m *MockProvider) AddSubscription(sub ProviderSubscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Subscriptions[sub.ID] = sub
}

// CallCount reports how many times the named method ran.
func (m *MockProvider) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls[method]
}

func (m *MockProvider) record(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls[method]++
}

func (m *MockProvider) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (string, error) {
	m.record("CreateCheckoutSession")
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CheckoutErr != nil {
		return "", m.CheckoutErr
	}
	m.CheckoutRequests = append(m.CheckoutRequests, req)
	return m.CheckoutURL, nil
}

func (m *MockProvider) GetSubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error) {
	m.record("GetSubscription")
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SubscriptionErr != nil {
		return nil, m.SubscriptionErr
	}
	sub, ok := m.Subscriptions[subscriptionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSubscriptionNotFound, subscriptionID)
	}
	return &sub, nil
}

func (m *MockProvider) DefaultPaymentMethod(ctx context.Context, _ string) (*ProviderPaymentMethod, error) {
	m.record("DefaultPaymentMethod")
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.PaymentMethod, m.PaymentMethodErr
}

func (m *MockProvider) ListPaidInvoices(ctx context.Context, _ string, limit int) ([]ProviderInvoice, error) {
	m.record("ListPaidInvoices")
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InvoicesErr != nil {
		return nil, m.InvoicesErr
	}
	invoices := m.Invoices
	if len(invoices) > limit {
		invoices = invoices[:limit]
	}
	return append([]ProviderInvoice(nil), invoices...), nil
}

func (m *MockProvider) UpcomingInvoice(ctx context.Context, _ string) (*ProviderUpcomingInvoice, error) {
	m.record("UpcomingInvoice")
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Upcoming, m.UpcomingErr
}
